package pubsub

import (
	"fmt"
	"os"
	"strconv"
)

// LoadTracingConfigFromEnv reads the PUBSUB_TRACING_* variables on top of
// DefaultTracingConfig: ENABLED, SERVICE_NAME, INSTANCE, ZIPKIN_URL and
// SAMPLE_RATIO (between 0 and 1).
func LoadTracingConfigFromEnv() (TracingConfig, error) {
	cfg := DefaultTracingConfig()

	if v := os.Getenv("PUBSUB_TRACING_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("PUBSUB_TRACING_ENABLED: %w", err)
		}
		cfg.Enabled = enabled
	}
	if v := os.Getenv("PUBSUB_TRACING_SERVICE_NAME"); v != "" {
		cfg.ServiceName = v
	}
	if v := os.Getenv("PUBSUB_TRACING_INSTANCE"); v != "" {
		cfg.Instance = v
	}
	if v := os.Getenv("PUBSUB_TRACING_ZIPKIN_URL"); v != "" {
		cfg.ZipkinURL = v
	}
	if v := os.Getenv("PUBSUB_TRACING_SAMPLE_RATIO"); v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("PUBSUB_TRACING_SAMPLE_RATIO: %w", err)
		}
		if ratio < 0 || ratio > 1 {
			return cfg, fmt.Errorf("PUBSUB_TRACING_SAMPLE_RATIO: %v is outside [0, 1]", ratio)
		}
		cfg.SampleRatio = ratio
	}

	return cfg, nil
}
