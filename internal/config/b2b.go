package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// B2BConfig tunes the reconciliation machinery. It is loaded from
// b2b.yml and hot-reloaded so operators can adjust batch sizes and lock
// TTLs without a restart.
type B2BConfig struct {
	SchedulerInterval    time.Duration `mapstructure:"schedulerInterval"`
	SchedulerBatchSize   int           `mapstructure:"schedulerBatchSize"`
	JobTimeout           time.Duration `mapstructure:"jobTimeout"`
	ProgramRunLockTTL    time.Duration `mapstructure:"programRunLockTTL"`
	OrgSyncLockTTL       time.Duration `mapstructure:"orgSyncLockTTL"`
	MaxJobAttempts       int           `mapstructure:"maxJobAttempts"`
	CodeOutputFormat     string        `mapstructure:"codeOutputFormat"`
	CodeOutputBatchLimit int           `mapstructure:"codeOutputBatchLimit"`
}

func DefaultB2BConfig() B2BConfig {
	return B2BConfig{
		SchedulerInterval:    30 * time.Second,
		SchedulerBatchSize:   25,
		JobTimeout:           5 * time.Minute,
		ProgramRunLockTTL:    time.Hour,
		OrgSyncLockTTL:       30 * time.Minute,
		MaxJobAttempts:       5,
		CodeOutputFormat:     "fancy",
		CodeOutputBatchLimit: 5000,
	}
}

type B2BConfigHolder struct {
	current atomic.Value // holds B2BConfig
}

func NewB2BConfigHolder() (*B2BConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("b2b")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/learnway/config") // Volume-mounted config
	v.AddConfigPath("/etc/learnway")            // System config
	v.AddConfigPath(".")                        // Current directory (dev mode)

	v.SetEnvPrefix("LEARNWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultB2BConfig()
		v.SetDefault("b2b.schedulerInterval", defaults.SchedulerInterval)
		v.SetDefault("b2b.schedulerBatchSize", defaults.SchedulerBatchSize)
		v.SetDefault("b2b.jobTimeout", defaults.JobTimeout)
		v.SetDefault("b2b.programRunLockTTL", defaults.ProgramRunLockTTL)
		v.SetDefault("b2b.orgSyncLockTTL", defaults.OrgSyncLockTTL)
		v.SetDefault("b2b.maxJobAttempts", defaults.MaxJobAttempts)
		v.SetDefault("b2b.codeOutputFormat", defaults.CodeOutputFormat)
		v.SetDefault("b2b.codeOutputBatchLimit", defaults.CodeOutputBatchLimit)
	}

	var cfg B2BConfig
	if err := v.UnmarshalKey("b2b", &cfg); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if err := validateB2BConfig(cfg); err != nil {
		return nil, err
	}

	holder := &B2BConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated B2BConfig
		if err := v.UnmarshalKey("b2b", &updated); err != nil {
			log.Printf("[b2b-config] reload failed: %v", err)
			return
		}
		updated = updated.withDefaults()
		if err := validateB2BConfig(updated); err != nil {
			log.Printf("[b2b-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[b2b-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *B2BConfigHolder) Get() B2BConfig {
	return h.current.Load().(B2BConfig)
}

// NewStaticB2BConfigHolder wraps a fixed config with no file watching.
// Intended for tests and one-shot tooling.
func NewStaticB2BConfigHolder(cfg B2BConfig) *B2BConfigHolder {
	holder := &B2BConfigHolder{}
	holder.current.Store(cfg.withDefaults())
	return holder
}

func (c B2BConfig) withDefaults() B2BConfig {
	defaults := DefaultB2BConfig()
	if c.SchedulerInterval <= 0 {
		c.SchedulerInterval = defaults.SchedulerInterval
	}
	if c.SchedulerBatchSize <= 0 {
		c.SchedulerBatchSize = defaults.SchedulerBatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.ProgramRunLockTTL <= 0 {
		c.ProgramRunLockTTL = defaults.ProgramRunLockTTL
	}
	if c.OrgSyncLockTTL <= 0 {
		c.OrgSyncLockTTL = defaults.OrgSyncLockTTL
	}
	if c.MaxJobAttempts <= 0 {
		c.MaxJobAttempts = defaults.MaxJobAttempts
	}
	if strings.TrimSpace(c.CodeOutputFormat) == "" {
		c.CodeOutputFormat = defaults.CodeOutputFormat
	}
	if c.CodeOutputBatchLimit <= 0 {
		c.CodeOutputBatchLimit = defaults.CodeOutputBatchLimit
	}
	return c
}

func validateB2BConfig(cfg B2BConfig) error {
	// Per-pair provisioning locks must survive long program imports.
	if cfg.ProgramRunLockTTL < time.Hour {
		return errors.New("programRunLockTTL must be at least one hour")
	}
	switch cfg.CodeOutputFormat {
	case "json", "csv", "fancy":
	default:
		return errors.New("codeOutputFormat must be one of json, csv, fancy")
	}
	return nil
}
