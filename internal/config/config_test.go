package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/underbots/ipcbus/internal/testutils"
	"github.com/underbots/ipcbus/internal/transport"
)

func TestLoadDefaults(t *testing.T) {
	testutils.ClearBusEnv(t)

	cfg, err := Load(afero.NewMemMapFs())
	require.NoError(t, err)

	assert.Equal(t, DefaultAddressPrefix, cfg.AddressPrefix)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, 0, cfg.QueueDepth)
	assert.Equal(t, "json", cfg.Codec)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.Topics)
}

func TestLoadFromEnv(t *testing.T) {
	testutils.ClearBusEnv(t)
	t.Setenv("IPCBUS_ADDRESS_PREFIX", "inproc://bus_")
	t.Setenv("IPCBUS_POLL_INTERVAL", "50ms")
	t.Setenv("IPCBUS_QUEUE_DEPTH", "16")
	t.Setenv("IPCBUS_MAX_FRAME_SIZE", "4096")
	t.Setenv("IPCBUS_CODEC", "proto")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(afero.NewMemMapFs())
	require.NoError(t, err)

	assert.Equal(t, "inproc://bus_", cfg.AddressPrefix)
	assert.Equal(t, 50*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 16, cfg.QueueDepth)
	assert.Equal(t, 4096, cfg.MaxFrameSize)
	assert.Equal(t, "proto", cfg.Codec)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"IPCBUS_POLL_INTERVAL", "soon"},
		{"IPCBUS_POLL_INTERVAL", "-1s"},
		{"IPCBUS_QUEUE_DEPTH", "many"},
		{"IPCBUS_QUEUE_DEPTH", "-3"},
		{"IPCBUS_CODEC", "msgpack"},
		{"IPCBUS_MAX_FRAME_SIZE", "huge"},
		{"IPCBUS_MAX_FRAME_SIZE", "-1"},
		{"LOG_FORMAT", "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			testutils.ClearBusEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load(afero.NewMemMapFs())
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadTopicsFile(t *testing.T) {
	testutils.ClearBusEnv(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/ipcbus/topics.yaml", []byte(`
prefix: ipc:///run/underbots/
topics:
  world:
    conflate: true
  logs:
    depth: 500
  sim_control:
    address: inproc://sim_control
`), 0o644))
	t.Setenv("IPCBUS_TOPICS_FILE", "/etc/ipcbus/topics.yaml")

	cfg, err := Load(fs)
	require.NoError(t, err)

	assert.Equal(t, "ipc:///run/underbots/", cfg.AddressPrefix)
	require.Len(t, cfg.Topics, 3)

	p, ok := cfg.Topics["world"].Policy()
	assert.True(t, ok)
	assert.Equal(t, transport.Conflate(), p)

	p, ok = cfg.Topics["logs"].Policy()
	assert.True(t, ok)
	assert.Equal(t, transport.Bounded(500), p)

	_, ok = cfg.Topics["sim_control"].Policy()
	assert.False(t, ok)
	assert.Equal(t, "inproc://sim_control", cfg.Topics["sim_control"].Address)
}

func TestLoadTopicsFileConflictingPolicy(t *testing.T) {
	testutils.ClearBusEnv(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "topics.yaml", []byte(`
topics:
  world:
    depth: 10
    conflate: true
`), 0o644))
	t.Setenv("IPCBUS_TOPICS_FILE", "topics.yaml")

	_, err := Load(fs)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, transport.ErrConflictingPolicy)
}

func TestLoadTopicsFileMissing(t *testing.T) {
	testutils.ClearBusEnv(t)
	t.Setenv("IPCBUS_TOPICS_FILE", "nope.yaml")

	_, err := Load(afero.NewMemMapFs())
	assert.Error(t, err)
}

func TestLoadFromEnvFile(t *testing.T) {
	testutils.ClearBusEnv(t)
	path := filepath.Join(t.TempDir(), ".env.test")
	require.NoError(t, os.WriteFile(path, []byte("IPCBUS_ADDRESS_PREFIX=inproc://dotenv_\nIPCBUS_QUEUE_DEPTH=64\n"), 0o644))
	testutils.LoadEnvFile(t, path)

	cfg, err := Load(afero.NewMemMapFs())
	require.NoError(t, err)
	assert.Equal(t, "inproc://dotenv_", cfg.AddressPrefix)
	assert.Equal(t, 64, cfg.QueueDepth)
}
