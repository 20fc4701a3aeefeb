package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/underbots/ipcbus/internal/config"
	"github.com/underbots/ipcbus/internal/logging"
	"github.com/underbots/ipcbus/internal/pubsub"
)

var (
	prefixFlag string

	cfg           *config.Config
	tracerCleanup = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "busctl",
	Short: "Inspect and drive the underbots IPC bus",
	Long: `busctl talks to the topic-based IPC bus shared by the visualization tool,
the AI process and the simulator.

Available commands:
  topics     List the known topics and the addresses they resolve to
  publish    Publish a JSON payload on a topic
  echo       Print messages received on a topic
  version    Print the version

Configuration is read from the environment (and a .env file if present):
IPCBUS_ADDRESS_PREFIX, IPCBUS_POLL_INTERVAL, IPCBUS_QUEUE_DEPTH, IPCBUS_CODEC,
IPCBUS_TOPICS_FILE, LOG_FORMAT, LOG_LEVEL and PUBSUB_TRACING_*.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.New()
		if err != nil {
			return err
		}
		if prefixFlag != "" {
			cfg.AddressPrefix = prefixFlag
		}

		// stdout is reserved for command output
		logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		tracerCleanup()
	},
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&prefixFlag, "prefix", "", "address prefix, overrides IPCBUS_ADDRESS_PREFIX")
}

// newBus creates a bus from the loaded configuration with tracing set up
// from the environment.
func newBus(ctx context.Context) (*pubsub.Bus, error) {
	tracingCfg, err := pubsub.LoadTracingConfigFromEnv()
	if err != nil {
		return nil, err
	}
	tracingCfg.AddressPrefix = cfg.AddressPrefix
	tracer, cleanup, err := pubsub.SetupOTel(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("set up tracing: %w", err)
	}
	tracerCleanup = cleanup

	return pubsub.NewFromConfig(cfg, pubsub.WithTracer(tracer))
}
