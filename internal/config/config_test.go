package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConf(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledgod.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 10, cfg.ScanInterval)
	assert.True(t, cfg.BlinkOnInit)
	assert.True(t, cfg.BlinkOnMigration)
	assert.True(t, cfg.RebuildBlinkOnAll)
	assert.False(t, cfg.RaidMembersOnly)
	assert.Equal(t, "/var/lib/ledgod/ledgod.db", cfg.Database)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConf(t, `
scan_interval: 30
log_level: debug
blink_on_migration: false
raid_members_only: true
allowlist:
  - /sys/devices/pci0000:00/0000:00:17.0
database: /tmp/ledgod-test.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Interval())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.BlinkOnMigration)
	// untouched keys keep their defaults
	assert.True(t, cfg.BlinkOnInit)
	assert.True(t, cfg.RebuildBlinkOnAll)
	assert.True(t, cfg.RaidMembersOnly)
	assert.Equal(t, "/tmp/ledgod-test.db", cfg.Database)

	p := cfg.Policy()
	assert.False(t, p.BlinkOnMigration)
	assert.True(t, p.BlinkOnInit)
	assert.True(t, p.RaidMembersOnly)

	f := cfg.Filter()
	assert.Equal(t, []string{"/sys/devices/pci0000:00/0000:00:17.0"}, f.Allowlist)
}

func TestLoadClampsInterval(t *testing.T) {
	cfg, err := Load(writeConf(t, "scan_interval: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, MinScanInterval, cfg.Interval())

	cfg, err = Load(writeConf(t, "scan_interval: -4\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultScanInterval, cfg.Interval())
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	_, err := Load(writeConf(t, "scan_interval: [oops\n"))
	assert.Error(t, err)
}

func TestLoadMissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.conf"))
	assert.Error(t, err)
}
