package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/underbots/ipcbus/internal/topicmgr"
	"github.com/underbots/ipcbus/internal/transport"
)

const (
	DefaultAddressPrefix = topicmgr.DefaultAddressPrefix
	DefaultPollInterval  = 250 * time.Millisecond
	DefaultCodec         = "json"
)

// ErrInvalidConfig wraps every validation failure reported by Load.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration for the bus and its tools.
type Config struct {
	AddressPrefix string        `validate:"required"`
	PollInterval  time.Duration `validate:"gt=0"`
	QueueDepth    int           `validate:"gte=0"`
	MaxFrameSize  int           `validate:"gte=0"`
	Codec         string        `validate:"oneof=json proto"`
	TopicsFile    string
	LogFormat     string `validate:"oneof=text json"`
	LogLevel      string `validate:"oneof=debug info warn error"`

	Topics map[string]TopicConfig `validate:"dive"`
}

// TopicConfig overrides the endpoint of a single topic.
type TopicConfig struct {
	Address  string `yaml:"address"`
	Depth    int    `yaml:"depth" validate:"gte=0"`
	Conflate bool   `yaml:"conflate"`
}

// Policy returns the queue policy configured for the topic, and false if
// the topic leaves the policy to the caller.
func (t TopicConfig) Policy() (transport.Policy, bool) {
	if t.Depth == 0 && !t.Conflate {
		return transport.Policy{}, false
	}
	return transport.Policy{Depth: t.Depth, Conflate: t.Conflate}, true
}

// topicsFile is the layout of the YAML file named by IPCBUS_TOPICS_FILE.
type topicsFile struct {
	Prefix string                 `yaml:"prefix"`
	Topics map[string]TopicConfig `yaml:"topics"`
}

// New loads configuration from a .env file if present, the environment and
// the optional topics file on the OS file system.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}
	return Load(afero.NewOsFs())
}

// Load reads configuration from environment variables and the topics file,
// which is opened through fs.
func Load(fs afero.Fs) (*Config, error) {
	cfg := &Config{
		AddressPrefix: getenv("IPCBUS_ADDRESS_PREFIX", DefaultAddressPrefix),
		PollInterval:  DefaultPollInterval,
		Codec:         getenv("IPCBUS_CODEC", DefaultCodec),
		TopicsFile:    os.Getenv("IPCBUS_TOPICS_FILE"),
		LogFormat:     getenv("LOG_FORMAT", "text"),
		LogLevel:      getenv("LOG_LEVEL", "debug"),
	}

	if v := os.Getenv("IPCBUS_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%w: IPCBUS_POLL_INTERVAL: %w", ErrInvalidConfig, err)
		}
		cfg.PollInterval = d
	}
	if v := os.Getenv("IPCBUS_QUEUE_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: IPCBUS_QUEUE_DEPTH: %w", ErrInvalidConfig, err)
		}
		cfg.QueueDepth = n
	}
	if v := os.Getenv("IPCBUS_MAX_FRAME_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: IPCBUS_MAX_FRAME_SIZE: %w", ErrInvalidConfig, err)
		}
		cfg.MaxFrameSize = n
	}

	if cfg.TopicsFile != "" {
		if err := cfg.loadTopics(fs); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadTopics(fs afero.Fs) error {
	data, err := afero.ReadFile(fs, c.TopicsFile)
	if err != nil {
		return fmt.Errorf("read topics file: %w", err)
	}

	var file topicsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, c.TopicsFile, err)
	}

	// the environment wins over the file
	if file.Prefix != "" && os.Getenv("IPCBUS_ADDRESS_PREFIX") == "" {
		c.AddressPrefix = file.Prefix
	}
	c.Topics = file.Topics
	return nil
}

// Validate checks field constraints and that no topic asks for both a
// bounded depth and conflation.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	for name, t := range c.Topics {
		if p, ok := t.Policy(); ok {
			if err := p.Validate(); err != nil {
				return fmt.Errorf("%w: topic %s: %w", ErrInvalidConfig, name, err)
			}
		}
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
