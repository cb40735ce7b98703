package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("", DefaultItch())
	require.NoError(t, err)

	assert.Equal(t, ModeConflated, cfg.Mode)
	assert.Equal(t, 100, cfg.ConflationIntervalMs)
	assert.Equal(t, 10, cfg.BookDepth)
	assert.Equal(t, "239.1.1.1", cfg.InputGroup)
	assert.Equal(t, 30001, cfg.InputPort)
	assert.Equal(t, 5000, cfg.RecoveryTimeoutMs)
	assert.Equal(t, 10, cfg.StatsIntervalSec)
	assert.False(t, cfg.MirrorEnabled())
}

func TestMdpDefaultsIncludeSnapshotFeed(t *testing.T) {
	cfg, err := Load("", DefaultMdp())
	require.NoError(t, err)

	assert.Equal(t, "239.2.1.1", cfg.InputGroup)
	assert.Equal(t, "239.2.1.2", cfg.SnapshotGroup)
	assert.Equal(t, 40002, cfg.SnapshotPort)
	assert.Equal(t, "239.2.1.3", cfg.OutputGroup)
}

func TestLoadYAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feedhandler.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: tick
conflation_interval_ms: 25
book_depth: 5
input_group: 239.9.9.9
kafka:
  brokers: ["localhost:9092"]
  topic: md.out
`), 0o644))

	cfg, err := Load(path, DefaultItch())
	require.NoError(t, err)

	assert.Equal(t, ModeTick, cfg.Mode)
	assert.Equal(t, 25, cfg.ConflationIntervalMs)
	assert.Equal(t, 5, cfg.BookDepth)
	assert.Equal(t, "239.9.9.9", cfg.InputGroup)
	assert.True(t, cfg.MirrorEnabled())
	assert.Equal(t, "md.out", cfg.Kafka.Topic)
	// Untouched fields keep defaults.
	assert.Equal(t, 30002, cfg.OutputPort)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FEEDHANDLER_MODE", "tick")
	t.Setenv("FEEDHANDLER_BOOK_DEPTH", "4")

	cfg, err := Load("", DefaultItch())
	require.NoError(t, err)

	assert.Equal(t, ModeTick, cfg.Mode)
	assert.Equal(t, 4, cfg.BookDepth)
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := DefaultItch()
	cfg.Mode = "realtime"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsExcessDepth(t *testing.T) {
	cfg := DefaultItch()
	cfg.BookDepth = 64
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadGroup(t *testing.T) {
	cfg := DefaultItch()
	cfg.InputGroup = "not-an-ip"
	assert.Error(t, cfg.Validate())
}

func TestValidateSnapshotPortRequiredWithGroup(t *testing.T) {
	cfg := DefaultItch()
	cfg.SnapshotGroup = "239.2.1.2"
	cfg.SnapshotPort = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/feedhandler.yaml", DefaultItch())
	assert.Error(t, err)
}
