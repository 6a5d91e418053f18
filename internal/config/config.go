package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Streams    StreamsConfig    `json:"streams"`
	Situations SituationsConfig `json:"situations"`
	Watchdog   WatchdogConfig   `json:"watchdog"`
	Places     []PlaceConfig    `json:"places"`
	Gateway    GatewayConfig    `json:"gateway"`
	Database   DatabaseConfig   `json:"database"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

// StreamsConfig sizes stream histories. Capacity overrides DefaultCapacity
// per record type.
type StreamsConfig struct {
	DefaultCapacity int                   `json:"default_capacity"`
	Capacity        map[string]int        `json:"capacity,omitempty"`
	Generic         []GenericStreamConfig `json:"generic,omitempty"`
}

// GenericStreamConfig declares a stream for a record type the core does not
// model. Records arrive as free-form JSON through the API.
type GenericStreamConfig struct {
	Type      string   `json:"type"`
	Kind      string   `json:"kind,omitempty"` // "device" (default) or "derived"
	Capacity  int      `json:"capacity,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

type SituationsConfig struct {
	MoodThreshold float64  `json:"mood_threshold"`
	Timezone      string   `json:"timezone,omitempty"`
	MoodReminder  Duration `json:"mood_reminder,omitempty"`
	PlaceChanged  bool     `json:"place_changed"`
}

type WatchdogConfig struct {
	Enabled    bool                `json:"enabled"`
	Interval   Duration            `json:"interval"`
	Thresholds map[string]Duration `json:"thresholds,omitempty"`
}

// PlaceConfig is a named circular geofence.
type PlaceConfig struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"` // meters
}

type GatewayConfig struct {
	Slack     SlackGatewayConfig     `json:"slack"`
	Discord   DiscordGatewayConfig   `json:"discord"`
	WebSocket WebSocketGatewayConfig `json:"websocket"`
	REST      RESTGatewayConfig      `json:"rest"`
}

type SlackGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	AppToken string `json:"app_token"`
	Channel  string `json:"channel"`
}

type DiscordGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
}

type WebSocketGatewayConfig struct {
	Enabled bool `json:"enabled"`
}

type RESTGatewayConfig struct {
	ReplyTimeout Duration `json:"reply_timeout,omitempty"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL    string `json:"url"`
	Stream string `json:"stream,omitempty"`
	MaxLen int64  `json:"max_len,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("90s", "6h").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns a configuration that runs without any external service.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, LogLevel: "info"},
		Streams: StreamsConfig{
			DefaultCapacity: 50,
		},
		Situations: SituationsConfig{
			MoodThreshold: 5,
			MoodReminder:  Duration(12 * time.Hour),
			PlaceChanged:  true,
		},
		Watchdog: WatchdogConfig{
			Enabled:  true,
			Interval: Duration(time.Minute),
			Thresholds: map[string]Duration{
				"mood": Duration(12 * time.Hour),
			},
		},
		Gateway: GatewayConfig{
			WebSocket: WebSocketGatewayConfig{Enabled: true},
		},
	}
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file over Default, substitutes environment
// variable references and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse is Load without the file.
func Parse(data []byte) (*Config, error) {
	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	cfg := Default()
	if err := json.Unmarshal([]byte(resolved), cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the runtime cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Streams.DefaultCapacity < 1 {
		errs = append(errs, fmt.Errorf("streams.default_capacity must be at least 1"))
	}
	for t, n := range c.Streams.Capacity {
		if n < 1 {
			errs = append(errs, fmt.Errorf("streams.capacity.%s must be at least 1", t))
		}
	}
	seen := make(map[string]bool)
	for i, g := range c.Streams.Generic {
		switch {
		case g.Type == "":
			errs = append(errs, fmt.Errorf("streams.generic[%d]: type is required", i))
		case seen[g.Type]:
			errs = append(errs, fmt.Errorf("streams.generic[%d]: duplicate type %s", i, g.Type))
		}
		seen[g.Type] = true
		if g.Kind != "" && g.Kind != "device" && g.Kind != "derived" {
			errs = append(errs, fmt.Errorf("streams.generic[%d]: unknown kind %q", i, g.Kind))
		}
	}
	if c.Situations.MoodThreshold < 0 {
		errs = append(errs, fmt.Errorf("situations.mood_threshold must not be negative"))
	}
	if _, err := c.Situations.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Watchdog.Enabled && c.Watchdog.Interval <= 0 {
		errs = append(errs, fmt.Errorf("watchdog.interval must be positive"))
	}
	for t, d := range c.Watchdog.Thresholds {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("watchdog.thresholds.%s must be positive", t))
		}
	}
	for i, p := range c.Places {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("places[%d]: name is required", i))
		}
		if p.Radius <= 0 {
			errs = append(errs, fmt.Errorf("places[%d]: radius must be positive", i))
		}
		if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
			errs = append(errs, fmt.Errorf("places[%d]: coordinates out of range", i))
		}
	}
	if c.Gateway.Slack.Enabled && (c.Gateway.Slack.BotToken == "" || c.Gateway.Slack.AppToken == "") {
		errs = append(errs, fmt.Errorf("gateway.slack: bot_token and app_token are required"))
	}
	if c.Gateway.Discord.Enabled && c.Gateway.Discord.BotToken == "" {
		errs = append(errs, fmt.Errorf("gateway.discord: bot_token is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// CapacityFor returns the history size for a record type.
func (s StreamsConfig) CapacityFor(t string) int {
	if n, ok := s.Capacity[t]; ok && n > 0 {
		return n
	}
	return s.DefaultCapacity
}

// Location resolves Timezone. Empty means time.Local.
func (s SituationsConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("situations.timezone: %w", err)
	}
	return loc, nil
}
