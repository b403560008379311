// Package diff validates unified diffs: it extracts the affected file list
// and dry-run applies patches against a working tree. The working tree is
// never mutated from this package.
package diff

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

const (
	// DefaultApplyTimeout bounds the external git apply invocation.
	DefaultApplyTimeout = 10 * time.Second

	// maxStderrLen caps how much subprocess stderr is carried back to
	// callers. Enough to locate the conflicting hunk without shipping
	// megabytes of noise.
	maxStderrLen = 4096
)

// ApplyError is returned when a dry-run apply fails. Stderr carries the
// truncated diagnostics of the diff utility; stdout is never inspected.
type ApplyError struct {
	Stderr string
}

// Error returns the error message.
func (e *ApplyError) Error() string {
	return fmt.Sprintf("patch does not apply: %s", e.Stderr)
}

// Validator parses unified diffs and dry-run applies them against a working
// tree root.
type Validator struct {
	// RepoRoot is the working tree the dry-run apply runs against.
	RepoRoot string

	// Timeout bounds each subprocess invocation.
	Timeout time.Duration

	log *slog.Logger
}

// NewValidator creates a Validator rooted at the given working tree.
func NewValidator(repoRoot string, log *slog.Logger) *Validator {
	return &Validator{
		RepoRoot: repoRoot,
		Timeout:  DefaultApplyTimeout,
		log:      log,
	}
}

// AffectedFiles parses the diff and returns the relative paths it touches,
// in order of first appearance. An empty diff yields an empty list. The
// parser tolerates CRLF and mixed line endings; /dev/null headers resolve to
// the surviving side of the create or delete.
func AffectedFiles(diffText string) ([]string, error) {
	if strings.TrimSpace(diffText) == "" {
		return []string{}, nil
	}

	files, _, err := gitdiff.Parse(
		strings.NewReader(normalizeLineEndings(diffText)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff: %w", err)
	}

	seen := make(map[string]struct{}, len(files))
	paths := make([]string, 0, len(files))
	for _, f := range files {
		// A deletion only has an old name; everything else reports
		// the post-image path.
		path := f.NewName
		if path == "" {
			path = f.OldName
		}
		if path == "" {
			continue
		}

		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}

	return paths, nil
}

// DryRunApply checks whether the diff would apply cleanly to the working
// tree. On conflict it returns an *ApplyError carrying the truncated stderr
// of the diff utility. The tree is never modified: git apply runs in check
// mode only.
func (v *Validator) DryRunApply(ctx context.Context, diffText string) error {
	// An empty diff is a no-op and trivially applies.
	if strings.TrimSpace(diffText) == "" {
		return nil
	}

	timeout := v.Timeout
	if timeout <= 0 {
		timeout = DefaultApplyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(
		ctx, "git", "apply", "--check", "--whitespace=nowarn", "-",
	)
	cmd.Dir = v.RepoRoot
	cmd.Stdin = strings.NewReader(normalizeLineEndings(diffText))

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("diff dry-run timed out: %w",
				ctx.Err())
		}

		detail := truncate(strings.TrimSpace(stderr.String()))
		if detail == "" {
			detail = err.Error()
		}

		v.log.Debug("Dry-run apply failed",
			"repo_root", v.RepoRoot,
			"stderr", detail,
		)

		return &ApplyError{Stderr: detail}
	}

	return nil
}

// normalizeLineEndings converts CRLF to LF so that diffs produced on Windows
// parse and pipe cleanly.
func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// truncate caps s at maxStderrLen bytes, cutting on a rune boundary.
func truncate(s string) string {
	if len(s) <= maxStderrLen {
		return s
	}

	cut := maxStderrLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut] + "... (truncated)"
}
