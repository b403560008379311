// Package notify implements the broker's in-process wake primitive: one
// edge-triggered latch per review plus a global latch for "any review
// changed" long-polls. Clients that miss a process restart simply fall back
// to polling; nothing here is durable.
package notify

import (
	"context"
	"sync"
	"time"
)

// DefaultWaitTimeout is the long-poll budget. It is chosen to fit within the
// ~30s client-side RPC timeout with margin.
const DefaultWaitTimeout = 25 * time.Second

// Outcome reports why a Wait returned.
type Outcome int

const (
	// OutcomeTimeout means the wait expired with no emit.
	OutcomeTimeout Outcome = iota

	// OutcomeFired means an emit woke the waiter.
	OutcomeFired

	// OutcomeCancelled means the caller's context was cancelled. The
	// waiter is deregistered on the way out, so abandoned long-polls
	// leak nothing.
	OutcomeCancelled
)

// latch is a one-shot wake primitive. An emit with waiters present closes
// the broadcast channel; an emit with nobody listening stores the edge in
// pending so the next waiter returns immediately. This closes the
// lost-wakeup race: the waiter registers under the bus lock before blocking.
type latch struct {
	ch      chan struct{}
	pending bool
	waiters int
}

func newLatch() *latch {
	return &latch{ch: make(chan struct{})}
}

// Bus maps review ids to their latches. Entries are created lazily on first
// use and removed by Cleanup when a review closes.
type Bus struct {
	mu      sync.Mutex
	latches map[string]*latch

	// global fires on every emit, regardless of review id.
	global *latch
}

// NewBus creates an empty notification bus.
func NewBus() *Bus {
	return &Bus{
		latches: make(map[string]*latch),
		global:  newLatch(),
	}
}

// Emit signals the latch for the given review and the global latch. It is
// non-blocking and must be called only after the corresponding write
// transaction has committed, outside the write coordinator lock.
func (b *Bus) Emit(reviewID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if l, ok := b.latches[reviewID]; ok {
		fire(l)
	} else {
		// No waiter has registered yet; store the edge so the next
		// Wait on this review returns immediately.
		l := newLatch()
		l.pending = true
		b.latches[reviewID] = l
	}

	fire(b.global)
}

// fire wakes all current waiters of l, or stores the edge if there are none.
// Callers must hold the bus lock.
func fire(l *latch) {
	if l.waiters > 0 {
		close(l.ch)
		l.ch = make(chan struct{})
	} else {
		l.pending = true
	}
}

// Wait blocks until the review's latch fires, the timeout elapses, or ctx is
// cancelled. A stored edge from an earlier Emit is consumed immediately.
func (b *Bus) Wait(ctx context.Context, reviewID string,
	timeout time.Duration) Outcome {

	b.mu.Lock()
	l, ok := b.latches[reviewID]
	if !ok {
		l = newLatch()
		b.latches[reviewID] = l
	}

	return b.waitLocked(ctx, l, timeout)
}

// WaitAny blocks until any review changes, the timeout elapses, or ctx is
// cancelled.
func (b *Bus) WaitAny(ctx context.Context, timeout time.Duration) Outcome {
	b.mu.Lock()

	return b.waitLocked(ctx, b.global, timeout)
}

// waitLocked consumes a pending edge or registers as a waiter and blocks.
// The bus lock is held on entry and released before blocking.
func (b *Bus) waitLocked(ctx context.Context, l *latch,
	timeout time.Duration) Outcome {

	if l.pending {
		l.pending = false
		b.mu.Unlock()

		return OutcomeFired
	}

	l.waiters++
	ch := l.ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		l.waiters--
		b.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return OutcomeFired

	case <-timer.C:
		return OutcomeTimeout

	case <-ctx.Done():
		return OutcomeCancelled
	}
}

// Cleanup drops the latch for a review. Called when the review closes;
// late waiters simply recreate the entry and time out.
func (b *Bus) Cleanup(reviewID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.latches, reviewID)
}

// NumLatches returns the number of live per-review latches. Test helper.
func (b *Bus) NumLatches() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.latches)
}
