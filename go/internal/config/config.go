// Package config loads service configuration from an optional YAML file and
// the environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/dbconfig"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/timer"
)

const (
	StoreMemory   = "memory"
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
)

type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	// Location is the IANA zone reports bucket days in.
	Location string `yaml:"location"`

	Timer struct {
		DefaultDurationSec int           `yaml:"default_duration_sec"`
		AlarmThresholdSec  int           `yaml:"alarm_threshold_sec"`
		TickInterval       time.Duration `yaml:"tick_interval"`
		AllowUnlimited     bool          `yaml:"allow_unlimited"`
		PresetsMin         []int         `yaml:"presets_min"`
	} `yaml:"timer"`

	Store struct {
		Driver   string `yaml:"driver"`
		MongoURL string `yaml:"mongo_url"`
		MongoDB  string `yaml:"mongo_db"`
	} `yaml:"store"`

	NATS struct {
		URL        string `yaml:"url"`
		InstanceID string `yaml:"instance_id"`
	} `yaml:"nats"`

	Database dbconfig.Config `yaml:"-"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	s := timer.DefaultSettings()
	cfg := &Config{Port: "8080", LogLevel: "info", Location: "Local"}
	cfg.Timer.DefaultDurationSec = s.DefaultSeconds
	cfg.Timer.AlarmThresholdSec = s.AlarmThreshold
	cfg.Timer.TickInterval = s.TickInterval
	cfg.Timer.AllowUnlimited = s.AllowUnlimited
	cfg.Timer.PresetsMin = s.PresetMinutes
	cfg.Store.Driver = StoreMemory
	cfg.Store.MongoDB = "playhouse_timer"
	return cfg
}

// Load reads CONFIG_PATH when set, then applies environment overrides.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.Database = dbconfig.NewConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Location = getEnv("TIMEZONE", c.Location)
	c.Store.Driver = strings.ToLower(getEnv("STORE_DRIVER", c.Store.Driver))
	c.Store.MongoURL = getEnv("MONGO_URL", c.Store.MongoURL)
	c.Store.MongoDB = getEnv("MONGO_DB", c.Store.MongoDB)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.InstanceID = getEnv("INSTANCE_ID", c.NATS.InstanceID)
	c.Timer.DefaultDurationSec = getEnvAsInt("TIMER_DEFAULT_SEC", c.Timer.DefaultDurationSec)
	c.Timer.AlarmThresholdSec = getEnvAsInt("TIMER_ALARM_SEC", c.Timer.AlarmThresholdSec)
	if v, err := strconv.ParseBool(os.Getenv("TIMER_ALLOW_UNLIMITED")); err == nil {
		c.Timer.AllowUnlimited = v
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Timer.DefaultDurationSec <= 0 {
		errs = append(errs, errors.New("timer.default_duration_sec must be positive"))
	}
	if c.Timer.AlarmThresholdSec < 0 {
		errs = append(errs, errors.New("timer.alarm_threshold_sec must not be negative"))
	}
	if c.Timer.TickInterval <= 0 {
		errs = append(errs, errors.New("timer.tick_interval must be positive"))
	}
	for _, m := range c.Timer.PresetsMin {
		if m <= 0 {
			errs = append(errs, fmt.Errorf("timer.presets_min contains %d", m))
			break
		}
	}
	switch c.Store.Driver {
	case StoreMemory, StoreMongo, StorePostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if _, err := c.TimeLocation(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TimerSettings converts the timer section for the manager.
func (c *Config) TimerSettings() timer.Settings {
	return timer.Settings{
		DefaultSeconds: c.Timer.DefaultDurationSec,
		AlarmThreshold: c.Timer.AlarmThresholdSec,
		TickInterval:   c.Timer.TickInterval,
		AllowUnlimited: c.Timer.AllowUnlimited,
		PresetMinutes:  append([]int(nil), c.Timer.PresetsMin...),
	}
}

func (c *Config) TimeLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", c.Location, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
