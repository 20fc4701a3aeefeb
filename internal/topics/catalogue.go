package topics

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/underbots/ipcbus/internal/pubsub"
)

var (
	WorldTopic = pubsub.NewTopic[World]("world",
		"Filtered world state from the AI process")
	SSLVisionTopic = pubsub.NewTopic[VisionFrame]("ssl_vision",
		"Raw SSL vision frames")
	TrajectoriesTopic = pubsub.NewTopic[Trajectories]("trajectories",
		"Planned robot trajectories")
	MetricsTopic = pubsub.NewTopic[NodePerformance]("metrics",
		"Publish period of every AI node")
	SimControlTopic = pubsub.NewTopic[SimControl]("sim_control",
		"Commands from the GUI to the simulator")
	LogsTopic = pubsub.NewTopic[LogRecord]("logs",
		"Log records forwarded to the GUI")
	TelemetryTopic = pubsub.NewTopic[Metrics]("telemetry",
		"Scalar telemetry samples")
)

var catalogue = map[string]pubsub.Descriptor{}

func init() {
	for _, d := range []pubsub.Descriptor{
		WorldTopic,
		SSLVisionTopic,
		TrajectoriesTopic,
		MetricsTopic,
		SimControlTopic,
		LogsTopic,
		TelemetryTopic,
	} {
		if _, dup := catalogue[d.Name()]; dup {
			panic(fmt.Sprintf("topics: duplicate topic %q", d.Name()))
		}
		catalogue[d.Name()] = d
	}
}

// All returns every known topic sorted by name.
func All() []pubsub.Descriptor {
	out := make([]pubsub.Descriptor, 0, len(catalogue))
	for _, d := range catalogue {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Lookup returns the topic registered under name.
func Lookup(name string) (pubsub.Descriptor, bool) {
	d, ok := catalogue[name]
	return d, ok
}

var validate = validator.New()

// Validate checks the struct tags of a payload before it is sent.
func Validate(payload any) error {
	if err := validate.Struct(payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
