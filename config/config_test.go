package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Nick)
	assert.Equal(t, DefaultGroup, cfg.MulticastGroup)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, 2*time.Minute, cfg.PeerTimeout)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.False(t, cfg.AutoAccept)
	assert.Equal(t, "239.255.13.37:40556", cfg.GroupAddr())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `nick: Cookie
multicast_group: 239.255.1.1
port: 50000
peer_timeout: 1m
auto_accept: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "Cookie", cfg.Nick)
	assert.Equal(t, "239.255.1.1:50000", cfg.GroupAddr())
	assert.Equal(t, time.Minute, cfg.PeerTimeout)
	assert.True(t, cfg.AutoAccept)

	// Unset keys keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.IdleInterval)
}

func TestLoadBadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(":\n bad yaml ["), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}
