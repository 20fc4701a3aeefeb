package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
)

// BusEnvKeys are the environment variables that configure the bus.
var BusEnvKeys = []string{
	"IPCBUS_ADDRESS_PREFIX",
	"IPCBUS_POLL_INTERVAL",
	"IPCBUS_QUEUE_DEPTH",
	"IPCBUS_MAX_FRAME_SIZE",
	"IPCBUS_CODEC",
	"IPCBUS_TOPICS_FILE",
	"LOG_FORMAT",
	"LOG_LEVEL",
	"PUBSUB_TRACING_ENABLED",
	"PUBSUB_TRACING_SERVICE_NAME",
	"PUBSUB_TRACING_INSTANCE",
	"PUBSUB_TRACING_SAMPLE_RATIO",
	"PUBSUB_TRACING_ZIPKIN_URL",
}

// ClearBusEnv blanks every bus variable for the duration of the test so
// the developer's environment cannot leak into it.
func ClearBusEnv(t *testing.T) {
	t.Helper()
	for _, key := range BusEnvKeys {
		t.Setenv(key, "")
	}
}

// LoadEnvFile reads a dotenv file and sets its variables for the duration
// of the test.
func LoadEnvFile(t *testing.T, path string) {
	t.Helper()

	env, err := godotenv.Read(path)
	if err != nil {
		t.Fatalf("failed to read env file %s: %v", path, err)
	}
	for key, value := range env {
		t.Setenv(key, value)
	}
}

// IPCPrefix returns an ipc:// address prefix inside a fresh directory that
// is removed when the test ends. The directory is kept short because unix
// socket paths are limited to about a hundred bytes.
func IPCPrefix(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "ipcbus")
	if err != nil {
		t.Fatalf("failed to create socket directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	return "ipc://" + dir + string(filepath.Separator)
}
