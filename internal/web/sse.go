package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// heartbeatInterval keeps idle proxies from dropping the stream.
	heartbeatInterval = 15 * time.Second

	// tailPollInterval is how often a tailed log file is re-checked.
	tailPollInterval = 2 * time.Second

	// busPollTimeout bounds each wait on the global latch so the event
	// loop regains control and notices disconnects.
	busPollTimeout = 30 * time.Second
)

// handleEvents is the server-sent-event stream: a connected event up front,
// heartbeats, overview_update pushes on broker activity, and optionally a
// log_tail stream of one JSON-Lines file.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported",
			http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	writeEvent(w, flusher, "connected", map[string]any{
		"time": time.Now().UTC().Format(time.RFC3339),
	})

	// Ride the global notification latch: each emit coalesces into one
	// overview push.
	wakes := make(chan struct{}, 1)
	go func() {
		for ctx.Err() == nil {
			s.svc.Bus().WaitAny(ctx, busPollTimeout)
			if ctx.Err() != nil {
				return
			}

			select {
			case wakes <- struct{}{}:
			default:
			}
		}
	}()

	var tail *logTail
	if name := r.URL.Query().Get("tail"); name != "" {
		lt, err := s.newLogTail(name)
		if err != nil {
			writeEvent(w, flusher, "log_tail", map[string]any{
				"error": err.Error(),
			})
		} else {
			tail = lt
		}
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	tailTick := time.NewTicker(tailPollInterval)
	defer tailTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-heartbeat.C:
			writeEvent(w, flusher, "heartbeat", map[string]any{
				"time": time.Now().UTC().Format(time.RFC3339),
			})

		case <-wakes:
			snap, err := s.snapshot(ctx)
			if err != nil {
				s.log.Warn("Overview snapshot failed",
					"err", err)

				continue
			}
			writeEvent(w, flusher, "overview_update", snap)

		case <-tailTick.C:
			if tail == nil {
				continue
			}
			for _, line := range tail.poll(s) {
				writeEvent(w, flusher, "log_tail",
					json.RawMessage(line))
			}
		}
	}
}

// writeEvent emits one SSE frame with a JSON payload.
func writeEvent(w io.Writer, flusher http.Flusher, name string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}

	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	flusher.Flush()
}

// logTail tracks the read offset into one JSON-Lines log file.
type logTail struct {
	path   string
	offset int64
}

// newLogTail resolves a tail target inside the log directory. The filename
// must be a bare name; anything path-like is refused.
func (s *Server) newLogTail(name string) (*logTail, error) {
	if name != filepath.Base(name) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("invalid log name %q", name)
	}

	path := filepath.Join(s.cfg.LogDir, name)

	// Start from the current end: the dashboard wants new lines, not
	// history.
	var offset int64
	if info, err := os.Stat(path); err == nil {
		offset = info.Size()
	}

	return &logTail{path: path, offset: offset}, nil
}

// poll reads any complete new lines past the last offset. A file that
// shrank was rotated; reading restarts from the top.
func (t *logTail) poll(s *Server) []string {
	info, err := os.Stat(t.path)
	if err != nil {
		return nil
	}

	if info.Size() < t.offset {
		t.offset = 0
	}
	if info.Size() == t.offset {
		return nil
	}

	f, err := os.Open(t.path)
	if err != nil {
		s.log.Debug("Log tail open failed", "path", t.path,
			"err", err)

		return nil
	}
	defer f.Close()

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil
	}

	delta, err := io.ReadAll(f)
	if err != nil {
		return nil
	}

	// Only complete lines are consumed; a trailing partial line stays in
	// the file for the next poll.
	end := strings.LastIndexByte(string(delta), '\n')
	if end < 0 {
		return nil
	}
	t.offset += int64(end + 1)

	var lines []string
	for _, line := range strings.Split(string(delta[:end]), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Pass through valid JSON lines only; the consumer treats
		// each as a structured record.
		if !json.Valid([]byte(line)) {
			continue
		}
		lines = append(lines, line)
	}

	return lines
}
