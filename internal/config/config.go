package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pkg/errors"
)

type Config struct {
	GitHub  GitHub  `yaml:"github"`
	Cache   Cache   `yaml:"cache"`
	Triage  Triage  `yaml:"triage"`
	Logger  Logger  `yaml:"logger"`
	Metrics Metrics `yaml:"metrics"`

	// Org is the organization shown at startup. Empty means detect it from
	// the current repository or ask.
	Org string `yaml:"org" env:"PRBOARD_ORG"`
}

type GitHub struct {
	Token     string        `yaml:"token" env:"GITHUB_TOKEN"`
	APIURL    string        `yaml:"api_url" env:"PRBOARD_API_URL" env-default:"https://api.github.com"`
	Transport string        `yaml:"transport" env:"PRBOARD_TRANSPORT" env-default:"http"`
	Hostname  string        `yaml:"hostname" env:"PRBOARD_GH_HOSTNAME"`
	// Timeout bounds read calls only.
	Timeout   time.Duration `yaml:"timeout" env:"PRBOARD_TIMEOUT" env-default:"15s"`
	RPS       float64       `yaml:"rps" env:"PRBOARD_RPS" env-default:"10"`
	Burst     int           `yaml:"burst" env:"PRBOARD_BURST" env-default:"5"`
}

type Cache struct {
	Backend   string `yaml:"backend" env:"PRBOARD_CACHE_BACKEND" env-default:"file"`
	Dir       string `yaml:"dir" env:"PRBOARD_CACHE_DIR"`
	RedisAddr string `yaml:"redis_addr" env:"PRBOARD_REDIS_ADDR" env-default:"localhost:6379"`
	RedisKey  string `yaml:"redis_prefix" env:"PRBOARD_REDIS_PREFIX" env-default:"prboard:"`
}

type Triage struct {
	Concurrency int    `yaml:"concurrency" env:"PRBOARD_CONCURRENCY" env-default:"4"`
	CheckPrefix string `yaml:"check_prefix" env:"PRBOARD_CHECK_PREFIX" env-default:"rails-ci / "`
}

type Logger struct {
	Level string `yaml:"level" env:"PRBOARD_LOG_LEVEL" env-default:"info"`
	File  string `yaml:"file" env:"PRBOARD_LOG_FILE"`
}

type Metrics struct {
	Textfile string `yaml:"textfile" env:"PRBOARD_METRICS_TEXTFILE"`
}

// New reads path when it is not empty and overlays the environment on top.
func New(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, errors.Wrap(err, "read env")
	}

	if err := cfg.fill(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) fill() error {
	if c.Cache.Dir != "" && c.Logger.File != "" {
		return nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return errors.Wrap(err, "locate user cache dir")
	}
	base = filepath.Join(base, "prboard")
	if c.Cache.Dir == "" {
		c.Cache.Dir = base
	}
	if c.Logger.File == "" {
		c.Logger.File = filepath.Join(base, "prboard.log")
	}
	return nil
}

func (c *Config) validate() error {
	switch c.GitHub.Transport {
	case "http":
		if c.GitHub.Token == "" {
			return errors.New("GITHUB_TOKEN is required with the http transport")
		}
	case "gh":
	default:
		return errors.Errorf("unknown transport %q", c.GitHub.Transport)
	}

	switch c.Cache.Backend {
	case "file", "memory", "redis":
	default:
		return errors.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	return nil
}
