package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/underbots/ipcbus/internal/pubsub"
	"github.com/underbots/ipcbus/internal/wire"
)

var (
	echoCount    int
	echoKeepLast bool
)

var echoCmd = &cobra.Command{
	Use:   "echo <topic>",
	Short: "Print messages received on a topic",
	Long: `Subscribe to a topic and print every received payload as one JSON line.
Any topic name may be used, not only catalogue topics. Requires the json
codec.

Examples:
  busctl echo world
  busctl echo telemetry --count 1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := args[0]
		if cfg.Codec != wire.JSON.Name() {
			return fmt.Errorf("echo needs the json codec, configured codec is %s", cfg.Codec)
		}

		bus, err := newBus(cmd.Context())
		if err != nil {
			return err
		}
		defer bus.Shutdown()

		var (
			mu   sync.Mutex
			seen int
		)
		out := cmd.OutOrStdout()
		err = pubsub.RegisterCallback(bus, topic, func(msg json.RawMessage) {
			mu.Lock()
			defer mu.Unlock()
			if echoCount > 0 && seen >= echoCount {
				return
			}
			fmt.Fprintf(out, "%s %s\n", topic, msg)
			seen++
			if echoCount > 0 && seen == echoCount {
				bus.Stop()
			}
		}, pubsub.KeepOnlyLast(echoKeepLast))
		if err != nil {
			return err
		}
		if err := bus.Start(); err != nil {
			return err
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sig)

		addr, err := bus.Address(topic)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "listening on %s (%s)\n", topic, addr)
		select {
		case <-bus.Done():
		case <-sig:
		}
		return nil
	},
}

func init() {
	echoCmd.Flags().IntVarP(&echoCount, "count", "c", 0, "exit after this many messages (0 = run until interrupted)")
	echoCmd.Flags().BoolVar(&echoKeepLast, "keep-last", false, "use a conflating endpoint")
	rootCmd.AddCommand(echoCmd)
}
