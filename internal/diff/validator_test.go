package diff

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

const sampleDiff = `diff --git a/hello.txt b/hello.txt
index 557db03..980a0d5 100644
--- a/hello.txt
+++ b/hello.txt
@@ -1 +1 @@
-Hello World
+Hello World!
`

const createDiff = `diff --git a/newfile.txt b/newfile.txt
new file mode 100644
index 0000000..3b18e51
--- /dev/null
+++ b/newfile.txt
@@ -0,0 +1 @@
+hello world
`

const deleteDiff = `diff --git a/gone.txt b/gone.txt
deleted file mode 100644
index 3b18e51..0000000
--- a/gone.txt
+++ /dev/null
@@ -1 +0,0 @@
-hello world
`

func TestAffectedFiles(t *testing.T) {
	tests := []struct {
		name string
		diff string
		want []string
	}{
		{
			name: "single file edit",
			diff: sampleDiff,
			want: []string{"hello.txt"},
		},
		{
			name: "file creation via dev null",
			diff: createDiff,
			want: []string{"newfile.txt"},
		},
		{
			name: "file deletion via dev null",
			diff: deleteDiff,
			want: []string{"gone.txt"},
		},
		{
			name: "empty diff",
			diff: "",
			want: []string{},
		},
		{
			name: "whitespace only diff",
			diff: "\n\n  \n",
			want: []string{},
		},
		{
			name: "multi file order preserved",
			diff: deleteDiff + sampleDiff,
			want: []string{"gone.txt", "hello.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AffectedFiles(tt.diff)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestAffectedFiles_CRLF(t *testing.T) {
	crlf := ""
	for _, line := range []string{
		"diff --git a/hello.txt b/hello.txt",
		"index 557db03..980a0d5 100644",
		"--- a/hello.txt",
		"+++ b/hello.txt",
		"@@ -1 +1 @@",
		"-Hello World",
		"+Hello World!",
	} {
		crlf += line + "\r\n"
	}

	got, err := AffectedFiles(crlf)
	require.NoError(t, err)
	require.Equal(t, []string{"hello.txt"}, got)
}

func TestAffectedFiles_Garbage(t *testing.T) {
	_, err := AffectedFiles("not a diff\n+++ nor headers without hunks")
	require.Error(t, err)
}

// newGitRepo creates a throwaway git repo with hello.txt committed.
func newGitRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=t@t",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=t@t",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init")
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "hello.txt"), []byte("Hello World\n"), 0644,
	))
	run("add", ".")
	run("commit", "-m", "init")

	return dir
}

func TestDryRunApply(t *testing.T) {
	dir := newGitRepo(t)
	v := NewValidator(dir, slog.Default())
	ctx := context.Background()

	// The sample diff applies cleanly against the committed tree.
	require.NoError(t, v.DryRunApply(ctx, sampleDiff))

	// The check never mutates the working tree.
	data, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	require.NoError(t, err)
	require.Equal(t, "Hello World\n", string(data))

	// Empty diffs are a no-op.
	require.NoError(t, v.DryRunApply(ctx, ""))
}

func TestDryRunApply_Conflict(t *testing.T) {
	dir := newGitRepo(t)
	v := NewValidator(dir, slog.Default())

	// Drift the working tree so the patch context no longer matches.
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "hello.txt"),
		[]byte("entirely different content\n"), 0644,
	))

	err := v.DryRunApply(context.Background(), sampleDiff)
	require.Error(t, err)

	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
	require.NotEmpty(t, applyErr.Stderr)
}

func TestTruncateRuneBoundary(t *testing.T) {
	// The leading ASCII byte puts every two-byte rune off phase with the
	// byte cap, so the cut must back up to a rune boundary.
	long := "a" + strings.Repeat("é", maxStderrLen)
	out := truncate(long)
	require.True(t, utf8.ValidString(out))
	require.Equal(t,
		"a"+strings.Repeat("é", (maxStderrLen-1)/2)+"... (truncated)",
		out)

	require.Equal(t, "short", truncate("short"))
}
