package build

import (
	"log/slog"
	"os"

	btclogv2 "github.com/btcsuite/btclog/v2"
)

// Subsystem tags used across the broker.
const (
	SubBroker = "BRKR"
	SubStore  = "STOR"
	SubDB     = "SQLT"
	SubDiff   = "DIFF"
	SubNotify = "NTFY"
	SubMCP    = "MCPS"
	SubWeb    = "WEBC"
)

// LogManager owns the logging fanout: a console handler on stderr and a
// rotating file handler, combined through a HandlerSet.
type LogManager struct {
	set    *HandlerSet
	writer *RotatingLogWriter
}

// NewLogManager initializes the fanout. With a nil rotator config only the
// console stream is active, which keeps tests quiet on disk.
func NewLogManager(rotCfg *LogRotatorConfig) (*LogManager, error) {
	console := btclogv2.NewDefaultHandler(os.Stderr)

	if rotCfg == nil {
		return &LogManager{set: NewHandlerSet(console)}, nil
	}

	writer := NewRotatingLogWriter()
	if err := writer.InitLogRotator(rotCfg); err != nil {
		return nil, err
	}

	file := btclogv2.NewDefaultHandler(writer)

	return &LogManager{
		set:    NewHandlerSet(console, file),
		writer: writer,
	}, nil
}

// Subsystem returns a structured logger tagged with the given subsystem.
func (m *LogManager) Subsystem(tag string) *slog.Logger {
	return slog.New(m.set.SubSystem(tag))
}

// Close flushes the file stream.
func (m *LogManager) Close() error {
	if m.writer != nil {
		return m.writer.Close()
	}

	return nil
}
