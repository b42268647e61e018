package config

import (
	"errors"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8088"`

	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"memory"`
	PostgresDSN    string `envconfig:"POSTGRES_DSN"`

	// Household settings. Timezone drives all day-boundary math; Caregivers
	// is the fixed allow-list sharing one child's timeline.
	Timezone   string   `envconfig:"HOUSEHOLD_TZ" default:"UTC"`
	Caregivers []string `envconfig:"CAREGIVERS" default:"mom,dad"`

	// RecommendedSleepMinutes is the daily target the analytics percentage
	// is computed against.
	RecommendedSleepMinutes int `envconfig:"RECOMMENDED_SLEEP_MINUTES" default:"840"`
}

var (
	cfg  *Config
	once sync.Once
)

func Load() *Config {
	once.Do(func() {
		c := &Config{}
		if err := envconfig.Process("babylog", c); err != nil {
			panic("invalid config: " + err.Error())
		}
		if err := c.Validate(); err != nil {
			panic("invalid config: " + err.Error())
		}
		cfg = c
	})
	return cfg
}

func (c *Config) Validate() error {
	if c.StorageBackend != "postgres" && c.StorageBackend != "memory" {
		return errors.New("STORAGE_BACKEND must be one of: postgres, memory")
	}
	if c.StorageBackend == "postgres" && c.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required when STORAGE_BACKEND=postgres")
	}
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return errors.New("APP_ENV must be one of: development, staging, production")
	}
	if len(c.Caregivers) == 0 {
		return errors.New("CAREGIVERS must name at least one caregiver")
	}
	if c.RecommendedSleepMinutes <= 0 {
		return errors.New("RECOMMENDED_SLEEP_MINUTES must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.New("HOUSEHOLD_TZ is not a valid IANA timezone: " + c.Timezone)
	}
	return nil
}

// Location resolves the household timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
