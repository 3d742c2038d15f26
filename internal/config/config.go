package config

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/circadiand/internal/rhythm"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig                `yaml:"log"`
	Database        DatabaseConfig           `yaml:"database"`
	Solar           SolarConfig              `yaml:"solar"`
	Scheduler       SchedulerConfig          `yaml:"scheduler"`
	Rhythms         map[string]rhythm.Rhythm `yaml:"rhythms"`
	Zones           []ZoneConfig             `yaml:"zones"`
	Areas           []AreaConfig             `yaml:"areas"`
	Actuator        ActuatorConfig           `yaml:"actuator"`
	Hue             HueConfig                `yaml:"hue"`
	MQTT            MQTTConfig               `yaml:"mqtt"`
	Switches        []SwitchConfig           `yaml:"switches"`
	EventBus        EventBusConfig           `yaml:"eventbus"`
	Ledger          LedgerConfig             `yaml:"ledger"`
	Redis           RedisConfig              `yaml:"redis"`
	API             APIConfig                `yaml:"api"`
	ShutdownTimeout Duration                 `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SolarConfig selects the sun-times provider and location
type SolarConfig struct {
	Provider string  `yaml:"provider"` // noaa, suncalc or fixed
	Timezone string  `yaml:"timezone"`
	Lat      float64 `yaml:"lat,omitempty"`
	Lon      float64 `yaml:"lon,omitempty"`
}

// Phase reset policies
const (
	PolicyPreservePower = "preserve_power"
	PolicyClearPower    = "clear_power"
)

// SchedulerConfig contains tick settings
type SchedulerConfig struct {
	Interval         Duration `yaml:"interval"`
	PhaseResetPolicy string   `yaml:"phase_reset_policy"`
	SaveInterval     Duration `yaml:"save_interval"` // How often state is flushed to the database
}

// ZoneConfig groups areas under one rhythm
type ZoneConfig struct {
	Name   string   `yaml:"name"`
	Rhythm string   `yaml:"rhythm"`
	Areas  []string `yaml:"areas"`
}

// Area roles
const (
	RoleRoom  = "room"
	RoleGroup = "group"
)

// AreaConfig describes one area and its lights
type AreaConfig struct {
	ID     string        `yaml:"id"`
	Role   string        `yaml:"role"` // room (default) or group; groups are skipped by ticks
	Lights []LightConfig `yaml:"lights"`
}

// LightConfig is one physical light
type LightConfig struct {
	ID    string `yaml:"id"`
	Color bool   `yaml:"color"` // true: send xy, false: send colour temperature
}

// Actuator backends
const (
	BackendHue  = "hue"
	BackendMQTT = "mqtt"
	BackendLog  = "log"
)

// ActuatorConfig controls command delivery
type ActuatorConfig struct {
	Backend          string   `yaml:"backend"`
	Timeout          Duration `yaml:"timeout"`
	RateLimitRPS     float64  `yaml:"rate_limit_rps"`
	Workers          int      `yaml:"workers"`
	QueueSize        int      `yaml:"queue_size"`
	Transition       Duration `yaml:"transition"`        // Used by scheduler ticks
	ActionTransition Duration `yaml:"action_transition"` // Used by button presses
	TopicPrefix      string   `yaml:"topic_prefix"`      // MQTT backend only
}

// HueConfig contains Hue bridge connection settings
type HueConfig struct {
	Bridge string `yaml:"bridge"`
	Token  string `yaml:"token"`
}

// MQTTConfig contains broker settings and sensor bindings
type MQTTConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Broker   string         `yaml:"broker"`
	ClientID string         `yaml:"client_id"`
	Username string         `yaml:"username"`
	Password string         `yaml:"password"`
	QoS      byte           `yaml:"qos"`
	Sensors  []SensorConfig `yaml:"sensors"`

	RefreshTopic string `yaml:"refresh_topic"` // any message here forces a scheduler tick
}

// Sensor kinds
const (
	SensorMotion  = "motion"
	SensorContact = "contact"
	SensorBoost   = "boost"
)

// SensorConfig binds an MQTT topic to a sensor handler
type SensorConfig struct {
	Topic    string   `yaml:"topic"`
	Kind     string   `yaml:"kind"`
	Areas    []string `yaml:"areas"`
	Mode     string   `yaml:"mode"` // motion only: on_only or on_off
	Duration Duration `yaml:"duration"`
	Amount   int      `yaml:"amount"`  // boost only
	Forever  bool     `yaml:"forever"` // boost only
}

// SwitchConfig binds a physical switch to primitives
type SwitchConfig struct {
	ID       string            `yaml:"id"`
	Type     string            `yaml:"type"`
	Topic    string            `yaml:"topic"`
	Scopes   [][]string        `yaml:"scopes"`
	Mapping  map[string]string `yaml:"mapping"`
	Script   string            `yaml:"script"`
	Debounce Duration          `yaml:"debounce"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// LedgerConfig contains invocation ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// RedisConfig enables the optional status mirror
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// APIConfig contains HTTP server settings
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes configuration bytes and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./circadiand.sqlite"
	}

	if cfg.Solar.Provider == "" {
		cfg.Solar.Provider = "noaa"
	}
	if cfg.Solar.Timezone == "" {
		cfg.Solar.Timezone = "UTC"
	}

	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = Duration(30 * time.Second)
	}
	if cfg.Scheduler.PhaseResetPolicy == "" {
		cfg.Scheduler.PhaseResetPolicy = PolicyPreservePower
	}
	if cfg.Scheduler.SaveInterval == 0 {
		cfg.Scheduler.SaveInterval = Duration(5 * time.Second)
	}

	if cfg.Rhythms == nil {
		cfg.Rhythms = make(map[string]rhythm.Rhythm)
	}
	if _, ok := cfg.Rhythms[rhythm.DefaultName]; !ok {
		cfg.Rhythms[rhythm.DefaultName] = rhythm.Default()
	}
	for name, r := range cfg.Rhythms {
		r.Name = name
		cfg.Rhythms[name] = r.Normalize()
	}

	for i := range cfg.Zones {
		if cfg.Zones[i].Rhythm == "" {
			cfg.Zones[i].Rhythm = rhythm.DefaultName
		}
	}
	for i := range cfg.Areas {
		if cfg.Areas[i].Role == "" {
			cfg.Areas[i].Role = RoleRoom
		}
	}

	if cfg.Actuator.Backend == "" {
		cfg.Actuator.Backend = BackendLog
	}
	if cfg.Actuator.Timeout == 0 {
		cfg.Actuator.Timeout = Duration(5 * time.Second)
	}
	if cfg.Actuator.RateLimitRPS == 0 {
		cfg.Actuator.RateLimitRPS = 10.0 // 10 requests per second
	}
	if cfg.Actuator.Transition == 0 {
		cfg.Actuator.Transition = Duration(2 * time.Second)
	}
	if cfg.Actuator.ActionTransition == 0 {
		cfg.Actuator.ActionTransition = Duration(400 * time.Millisecond)
	}
	if cfg.Actuator.TopicPrefix == "" {
		cfg.Actuator.TopicPrefix = "zigbee2mqtt"
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "circadiand"
	}
	if cfg.MQTT.RefreshTopic == "" {
		cfg.MQTT.RefreshTopic = "circadiand/refresh"
	}
	for i := range cfg.MQTT.Sensors {
		s := &cfg.MQTT.Sensors[i]
		if s.Kind == SensorMotion && s.Mode == "" {
			s.Mode = "on_only"
		}
		if s.Duration == 0 {
			s.Duration = Duration(5 * time.Minute)
		}
	}

	for i := range cfg.Switches {
		if cfg.Switches[i].Debounce == 0 {
			cfg.Switches[i].Debounce = Duration(150 * time.Millisecond)
		}
	}

	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "circadiand:"
	}

	if cfg.API.Port == 0 {
		cfg.API.Port = 9090
	}
	if cfg.API.Host == "" {
		cfg.API.Host = "0.0.0.0"
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate reports configuration the daemon cannot run with
func (cfg *Config) Validate() error {
	for name, r := range cfg.Rhythms {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rhythm %q: %w", name, err)
		}
	}

	switch cfg.Scheduler.PhaseResetPolicy {
	case PolicyPreservePower, PolicyClearPower:
	default:
		return fmt.Errorf("unknown phase_reset_policy %q", cfg.Scheduler.PhaseResetPolicy)
	}

	switch cfg.Actuator.Backend {
	case BackendHue, BackendLog:
	case BackendMQTT:
		if !cfg.MQTT.Enabled {
			return fmt.Errorf("actuator backend %q requires mqtt.enabled", BackendMQTT)
		}
	default:
		return fmt.Errorf("unknown actuator backend %q", cfg.Actuator.Backend)
	}

	owner := make(map[string]string)
	for _, z := range cfg.Zones {
		if z.Name == "" {
			return fmt.Errorf("zone without a name")
		}
		if _, ok := cfg.Rhythms[z.Rhythm]; !ok {
			log.Warn().Str("zone", z.Name).Str("rhythm", z.Rhythm).Msg("Unknown rhythm, zone will use default")
		}
		for _, a := range z.Areas {
			if prev, ok := owner[a]; ok {
				return fmt.Errorf("area %q is in both zone %q and zone %q", a, prev, z.Name)
			}
			owner[a] = z.Name
		}
	}

	for _, a := range cfg.Areas {
		if a.ID == "" {
			return fmt.Errorf("area without an id")
		}
		if a.Role != RoleRoom && a.Role != RoleGroup {
			return fmt.Errorf("area %q: unknown role %q", a.ID, a.Role)
		}
	}

	for _, s := range cfg.MQTT.Sensors {
		switch s.Kind {
		case SensorMotion, SensorContact, SensorBoost:
		default:
			return fmt.Errorf("sensor %q: unknown kind %q", s.Topic, s.Kind)
		}
	}
	return nil
}

// ResolveRhythm returns the named rhythm, falling back to the default
func (cfg *Config) ResolveRhythm(name string) rhythm.Rhythm {
	if r, ok := cfg.Rhythms[name]; ok {
		return r
	}
	// unknown zone rhythms are reported once by Validate
	log.Debug().Str("rhythm", name).Msg("Unknown rhythm, using default")
	if r, ok := cfg.Rhythms[rhythm.DefaultName]; ok {
		return r
	}
	return rhythm.Default()
}

// Area returns the area's configuration, or a room with no lights
func (cfg *Config) Area(id string) AreaConfig {
	for _, a := range cfg.Areas {
		if a.ID == id {
			return a
		}
	}
	return AreaConfig{ID: id, Role: RoleRoom}
}

// AreaIDs returns every area named in areas or zones, sorted
func (cfg *Config) AreaIDs() []string {
	var ids []string
	for _, a := range cfg.Areas {
		ids = append(ids, a.ID)
	}
	for _, z := range cfg.Zones {
		ids = append(ids, z.Areas...)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
