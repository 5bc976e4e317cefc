package config

import (
	"log"

	"gopkg.in/yaml.v3"

	"projectstream/pkg/config"
)

type Config struct {
	Env string `yaml:"-"`

	DB     config.DBConfig     `yaml:"db"`
	MQ     config.MQConfig     `yaml:"mq"`
	Redis  config.RedisConfig  `yaml:"redis"`
	Server config.ServerConfig `yaml:"server"`

	Outbox struct {
		IntervalMS int `yaml:"interval_ms"`
		BatchSize  int `yaml:"batch_size"`
		MaxRetries int `yaml:"max_retries"`
	} `yaml:"outbox"`

	Dedup struct {
		TTLSeconds int `yaml:"ttl_seconds"`
	} `yaml:"dedup"`
}

func Load() *Config {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var cfg Config
	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		log.Fatalf("failed to marshal config: %v", err)
	}
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}
	cfg.Env = env

	// Environment variables win over files.
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideServerFromEnv(&cfg.Server)

	if cfg.Outbox.IntervalMS <= 0 {
		cfg.Outbox.IntervalMS = 1000
	}
	if cfg.Outbox.BatchSize <= 0 {
		cfg.Outbox.BatchSize = 100
	}
	if cfg.Outbox.MaxRetries <= 0 {
		cfg.Outbox.MaxRetries = 5
	}
	if cfg.Dedup.TTLSeconds <= 0 {
		cfg.Dedup.TTLSeconds = 600
	}

	return &cfg
}
