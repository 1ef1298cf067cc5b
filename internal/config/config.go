// Package config provides YAML-based configuration loading for the garage
// door daemon.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/garage-door/internal/door"
	"github.com/sweeney/garage-door/internal/mqtt"
)

// Travel time bounds accepted for a door.
const (
	MinTravelTime = 8 * time.Second
	MaxTravelTime = 20 * time.Second
)

// Config is the top-level daemon configuration, loaded from garage-door.yaml.
type Config struct {
	Broker    string        `yaml:"broker"`
	HTTP      string        `yaml:"http"`
	HTTPToken string        `yaml:"http_token"` // bearer token for POST /door/command; empty disables commands
	WSBroker  string        `yaml:"ws_broker"`  // "=broker" derives from Broker, "off" disables
	Poll      time.Duration `yaml:"poll"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	LogTracks bool          `yaml:"log_tracks"`
	Chip      string        `yaml:"chip"`
	Notify    NotifyConfig  `yaml:"notify"`
	Doors     []DoorConfig  `yaml:"doors"`
}

// NotifyConfig holds Slack settings. Notifications go to the log only when
// the token is empty.
type NotifyConfig struct {
	SlackToken   string `yaml:"slack_token"`
	SlackChannel string `yaml:"slack_channel"`
}

// DoorConfig describes one door and the GPIO lines wired to it.
type DoorConfig struct {
	Name                string                `yaml:"name"`
	TravelTime          time.Duration         `yaml:"travel_time"`
	VibrationResetDelay time.Duration         `yaml:"vibration_reset_delay"`
	LockAfterClosing    bool                  `yaml:"lock_after_closing"`
	UnlockBeforeOpening bool                  `yaml:"unlock_before_opening"`
	Relay               *RelayConfig          `yaml:"relay"`
	PowerRelay          *RelayConfig          `yaml:"power_relay"`
	LockRelay           *RelayConfig          `yaml:"lock_relay"`
	Sensors             map[string]LineConfig `yaml:"sensors"`
}

// RelayConfig is an output line. Pulse only applies to the activation relay.
type RelayConfig struct {
	Line  int           `yaml:"line"`
	Pulse time.Duration `yaml:"pulse"`
}

// LineConfig is an input line. Invert flips the raw value before edges are
// derived.
type LineConfig struct {
	Line   int  `yaml:"line"`
	Invert bool `yaml:"invert"`
}

// Input binds a GPIO input line to a door role.
type Input struct {
	Role   door.Role
	Line   int
	Invert bool
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.Broker == "" {
		c.Broker = "tcp://192.168.1.200:1883"
	}
	if c.WSBroker == "" {
		c.WSBroker = "=broker"
	}
	if c.Poll == 0 {
		c.Poll = 100 * time.Millisecond
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = 15 * time.Minute
	}
	if c.Chip == "" {
		c.Chip = "gpiochip0"
	}
	for i := range c.Doors {
		d := &c.Doors[i]
		if d.TravelTime == 0 {
			d.TravelTime = 12 * time.Second
		}
		if d.VibrationResetDelay == 0 {
			d.VibrationResetDelay = 5 * time.Second
		}
		if d.Relay != nil && d.Relay.Pulse == 0 {
			d.Relay.Pulse = 500 * time.Millisecond
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Poll < 0 {
		errs = append(errs, "poll must not be negative")
	}
	if c.Heartbeat < 0 {
		errs = append(errs, "heartbeat must not be negative")
	}
	if len(c.Doors) == 0 {
		errs = append(errs, "at least one door is required")
	}

	names := make(map[string]bool)
	slugs := make(map[string]string)
	lines := make(map[int]string)
	claim := func(line int, owner string) {
		if line < 0 {
			errs = append(errs, fmt.Sprintf("%s: line %d is negative", owner, line))
			return
		}
		if prev, ok := lines[line]; ok {
			errs = append(errs, fmt.Sprintf("%s: line %d already in use by %s", owner, line, prev))
			return
		}
		lines[line] = owner
	}

	for i, d := range c.Doors {
		prefix := fmt.Sprintf("doors[%d]", i)
		if d.Name == "" {
			errs = append(errs, prefix+".name is required")
		} else if names[d.Name] {
			errs = append(errs, fmt.Sprintf("%s.name %q is not unique", prefix, d.Name))
		}
		names[d.Name] = true
		if slug := mqtt.Slug(d.Name); d.Name != "" && slug == "" {
			errs = append(errs, fmt.Sprintf("%s.name %q has no letters or digits for its topic", prefix, d.Name))
		} else if prev, ok := slugs[slug]; ok && slug != "" && prev != d.Name {
			errs = append(errs, fmt.Sprintf("%s.name %q shares topic %q with %q", prefix, d.Name, mqtt.StatusTopic(d.Name), prev))
		} else if !ok {
			slugs[slug] = d.Name
		}

		if d.TravelTime < MinTravelTime || d.TravelTime > MaxTravelTime {
			errs = append(errs, fmt.Sprintf("%s.travel_time %v out of range %v..%v", prefix, d.TravelTime, MinTravelTime, MaxTravelTime))
		}
		if d.VibrationResetDelay < 0 {
			errs = append(errs, prefix+".vibration_reset_delay must not be negative")
		}

		if d.Relay != nil {
			claim(d.Relay.Line, prefix+".relay")
			if d.Relay.Pulse < 0 {
				errs = append(errs, prefix+".relay.pulse must not be negative")
			}
		}
		if d.PowerRelay != nil {
			claim(d.PowerRelay.Line, prefix+".power_relay")
		}
		if d.LockRelay != nil {
			claim(d.LockRelay.Line, prefix+".lock_relay")
		}

		for _, key := range sortedKeys(d.Sensors) {
			owner := prefix + ".sensors." + key
			role, err := door.ParseRole(key)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", owner, err))
				continue
			}
			if role == door.RoleTravelTimer || role == door.RoleVirtualLock {
				errs = append(errs, fmt.Sprintf("%s: %s is provided by the daemon, not a GPIO line", owner, key))
				continue
			}
			claim(d.Sensors[key].Line, owner)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Inputs returns the door's input bindings in role scan order.
func (d DoorConfig) Inputs() []Input {
	var out []Input
	for _, role := range door.Roles() {
		lc, ok := d.Sensors[role.Key()]
		if !ok {
			continue
		}
		out = append(out, Input{Role: role, Line: lc.Line, Invert: lc.Invert})
	}
	return out
}

// Door converts the configuration into the core's per-door settings. The
// travel timer and virtual lock are always present; the activation relay
// role is wired when either the relay or its sense line is configured.
func (d DoorConfig) Door(logTracks bool) door.Config {
	wired := door.NewRoleSet(door.RoleTravelTimer, door.RoleVirtualLock)
	var invert door.RoleSet
	if d.Relay != nil {
		wired = wired.With(door.RoleActivationRelay)
	}
	for _, in := range d.Inputs() {
		wired = wired.With(in.Role)
		if in.Invert {
			invert = invert.With(in.Role)
		}
	}
	return door.Config{
		Name:                d.Name,
		Wired:               wired,
		Invert:              invert,
		TravelTime:          d.TravelTime,
		VibrationResetDelay: d.VibrationResetDelay,
		LockAfterClosing:    d.LockAfterClosing,
		UnlockBeforeOpening: d.UnlockBeforeOpening,
		LogTracks:           logTracks,
	}
}

// InputLines returns every input line across all doors, in door order then
// role scan order. The index of a line in this slice is its index in a
// gpio.Reader sample.
func (c *Config) InputLines() []int {
	var out []int
	for _, d := range c.Doors {
		for _, in := range d.Inputs() {
			out = append(out, in.Line)
		}
	}
	return out
}

func sortedKeys(m map[string]LineConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
