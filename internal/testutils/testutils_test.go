package testutils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFile(t *testing.T) {
	ClearBusEnv(t)
	path := filepath.Join(t.TempDir(), ".env.test")
	require.NoError(t, os.WriteFile(path, []byte("IPCBUS_CODEC=proto\nLOG_LEVEL=warn\n"), 0o644))

	LoadEnvFile(t, path)
	assert.Equal(t, "proto", os.Getenv("IPCBUS_CODEC"))
	assert.Equal(t, "warn", os.Getenv("LOG_LEVEL"))
}

func TestIPCPrefix(t *testing.T) {
	prefix := IPCPrefix(t)
	require.True(t, strings.HasPrefix(prefix, "ipc://"))

	dir := strings.TrimPrefix(prefix, "ipc://")
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
