package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
review:
  enabled: true
  review_granularity: per_plan
  execution_mode: optimistic
  reviewer_pool:
    size: 2
    model: whatever
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.True(t, cfg.Review.Enabled)
	require.Equal(t, GranularityPerPlan, cfg.Review.Granularity)
	require.Equal(t, ExecutionOptimistic, cfg.Review.ExecutionMode)

	// The reviewer pool is opaque but preserved.
	require.Equal(t, 2, cfg.Review.ReviewerPool["size"])
}

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	require.True(t, cfg.Review.Enabled)
	require.Equal(t, GranularityPerTask, cfg.Review.Granularity)
	require.Equal(t, ExecutionBlocking, cfg.Review.ExecutionMode)
}

func TestLoadFileRejectsBadEnums(t *testing.T) {
	path := writeConfig(t, `
review:
  review_granularity: per_commit
`)

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "review: [unclosed")

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	repo := t.TempDir()
	t.Setenv(EnvRepoRoot, repo)
	t.Setenv(EnvHost, "127.0.0.1")
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvConfigPath, filepath.Join(repo, "missing.yml"))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Addr())
	require.Equal(t, repo, cfg.RepoRoot)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv(EnvRepoRoot, t.TempDir())
	t.Setenv(EnvPort, "not-a-port")

	_, err := Load()
	require.Error(t, err)
}
