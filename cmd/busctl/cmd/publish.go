package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/spf13/cobra"

	"github.com/underbots/ipcbus/internal/pubsub"
	"github.com/underbots/ipcbus/internal/topics"
)

var (
	publishKeepLast bool
	publishRepeat   int
	publishInterval time.Duration
	publishWait     time.Duration
)

var publishCmd = &cobra.Command{
	Use:   "publish <topic> <json>",
	Short: "Publish a JSON payload on a topic",
	Long: `Publish a JSON payload on a catalogue topic. The payload is decoded into
the topic's payload type first, so unknown fields and type errors are
rejected before anything is sent.

Subscribers connect to a publisher only after it binds, so publish waits
up to --wait for at least one subscriber before sending.

Examples:
  busctl publish telemetry '{"value": 3.14}'
  busctl publish sim_control '{"command": "pause"}' --keep-last=false
  busctl publish world "$(cat world.json)" --repeat 10 --interval 100ms`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, raw := args[0], args[1]

		desc, ok := topics.Lookup(name)
		if !ok {
			return fmt.Errorf("unknown topic %q (see busctl topics)", name)
		}
		payload, err := decodePayload(desc, []byte(raw))
		if err != nil {
			return err
		}

		bus, err := newBus(cmd.Context())
		if err != nil {
			return err
		}
		defer bus.Shutdown()

		opts := []pubsub.EndpointOption{pubsub.KeepOnlyLast(publishKeepLast)}
		if err := bus.Advertise(name, opts...); err != nil {
			return err
		}
		if !waitForPeers(bus, name, publishWait) {
			slog.Warn("No subscriber connected, publishing anyway", "topic", name, "waited", publishWait)
		}

		for i := range publishRepeat {
			if i > 0 {
				time.Sleep(publishInterval)
			}
			if err := bus.Publish(name, payload, opts...); err != nil {
				return err
			}
		}

		// give the socket a moment to flush before shutdown discards the queue
		time.Sleep(publishInterval)
		addr, err := bus.Address(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published %d message(s) on %s (%s)\n", publishRepeat, name, addr)
		return nil
	},
}

// decodePayload strictly decodes raw into a new value of the topic's
// payload type and validates it.
func decodePayload(desc pubsub.Descriptor, raw []byte) (any, error) {
	ptr := reflect.New(desc.PayloadType())

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(ptr.Interface()); err != nil {
		return nil, fmt.Errorf("payload for %s: %w", desc.Name(), err)
	}

	payload := ptr.Elem().Interface()
	if ptr.Elem().Kind() == reflect.Struct {
		if err := topics.Validate(payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func waitForPeers(bus *pubsub.Bus, topic string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for bus.Peers(topic) == 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
	return true
}

func init() {
	publishCmd.Flags().BoolVar(&publishKeepLast, "keep-last", true, "use a conflating endpoint")
	publishCmd.Flags().IntVarP(&publishRepeat, "repeat", "n", 1, "number of times to publish the payload")
	publishCmd.Flags().DurationVar(&publishInterval, "interval", 100*time.Millisecond, "delay between repeats")
	publishCmd.Flags().DurationVar(&publishWait, "wait", time.Second, "how long to wait for a subscriber")
	rootCmd.AddCommand(publishCmd)
}
