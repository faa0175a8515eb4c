package relay

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/devtools_bridge/internal/wire"
)

// ChannelConfig describes a single named SSE channel and the telemetry
// event types it carries.
type ChannelConfig struct {
	Name   string   `yaml:"name"`
	Events []string `yaml:"events"`
}

// Config is the top-level YAML configuration for the telemetry relay.
type Config struct {
	Channels []ChannelConfig `yaml:"channels"`

	byEvent map[string][]string
}

// LoadConfig reads and validates a relay YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("relay config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("relay config: %w", err)
	}
	for i, ch := range cfg.Channels {
		if ch.Name == "" {
			return nil, fmt.Errorf("relay config: channel[%d] missing name", i)
		}
		if len(ch.Events) == 0 {
			return nil, fmt.Errorf("relay config: channel[%d] (%s) lists no events", i, ch.Name)
		}
	}
	cfg.index()
	return &cfg, nil
}

// DefaultConfig returns the built-in channel layout used when no config file
// is given: console, network and page channels covering the standard
// telemetry event types.
func DefaultConfig() *Config {
	cfg := &Config{
		Channels: []ChannelConfig{
			{Name: "console", Events: []string{wire.TagConsoleLog, wire.TagConsoleError}},
			{Name: "network", Events: []string{wire.TagNetworkRequest}},
			{Name: "page", Events: []string{wire.TagPageNavigated, wire.TagSelectedElement}},
		},
	}
	cfg.index()
	return cfg
}

func (c *Config) index() {
	c.byEvent = make(map[string][]string)
	for _, ch := range c.Channels {
		for _, ev := range ch.Events {
			c.byEvent[ev] = append(c.byEvent[ev], ch.Name)
		}
	}
}

// ChannelsFor returns the channel names that carry the given event type.
func (c *Config) ChannelsFor(eventType string) []string {
	return c.byEvent[eventType]
}

// ChannelNames returns the configured channel names in declaration order.
func (c *Config) ChannelNames() []string {
	names := make([]string, len(c.Channels))
	for i, ch := range c.Channels {
		names[i] = ch.Name
	}
	return names
}
