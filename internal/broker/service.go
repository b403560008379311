// Package broker implements the review protocol: the verb surface that
// creates, claims, discusses and resolves reviews, the write coordination
// discipline around the single sqlite writer, and the derived observability
// views. Handlers here are transport-agnostic; the MCP layer is a thin shim
// over this package.
package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/gsdlabs/gsd-review-broker/internal/diff"
	"github.com/gsdlabs/gsd-review-broker/internal/notify"
	"github.com/gsdlabs/gsd-review-broker/internal/store"
)

// Config carries the static facts the service reports and defaults from.
type Config struct {
	// RepoRoot is the working tree reviews are validated against. It is
	// also the default project label.
	RepoRoot string

	// DBPath is the sqlite file backing the store, reported by Info.
	DBPath string

	// Version is the build version string.
	Version string

	// WaitTimeout bounds long-poll verbs. Zero selects the default
	// 25s budget.
	WaitTimeout time.Duration
}

// Service is the broker core. All write verbs serialize on writeMu and run a
// single immediate transaction; notification emits happen after commit with
// the mutex released.
type Service struct {
	cfg       Config
	store     *store.SQLStore
	bus       *notify.Bus
	validator *diff.Validator
	log       *slog.Logger

	// writeMu is the process-wide write coordinator. The conditional
	// updates in the store are the second line of defense.
	writeMu sync.Mutex

	startedAt time.Time
}

// NewService wires the broker core together.
func NewService(cfg Config, st *store.SQLStore, bus *notify.Bus,
	validator *diff.Validator, log *slog.Logger) *Service {

	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = notify.DefaultWaitTimeout
	}

	return &Service{
		cfg:       cfg,
		store:     st,
		bus:       bus,
		validator: validator,
		log:       log,
		startedAt: time.Now().UTC(),
	}
}

// Bus exposes the notification bus so the push channel can piggyback on the
// global latch.
func (s *Service) Bus() *notify.Bus {
	return s.bus
}

// writeTx runs fn under the write coordinator. Callers emit notifications
// after this returns, never inside fn.
func (s *Service) writeTx(ctx context.Context,
	fn func(ctx context.Context, tx *store.SQLStore) error) error {

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.store.WithTx(ctx, fn)
}

// now returns the current time at the store's millisecond resolution so that
// values read back compare equal to values written.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// eventMeta marshals audit metadata. The inputs are broker-built maps, so
// marshalling cannot fail in practice.
func eventMeta(m map[string]any) fn.Option[string] {
	if len(m) == 0 {
		return fn.None[string]()
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fn.None[string]()
	}

	return fn.Some(string(data))
}

// FormatTime renders a timestamp the way every externally visible field
// does: ISO-8601 with millisecond precision, UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// optFromString maps the RPC convention of "empty string means absent" onto
// the store's options.
func optFromString(s string) fn.Option[string] {
	if s == "" {
		return fn.None[string]()
	}

	return fn.Some(s)
}
