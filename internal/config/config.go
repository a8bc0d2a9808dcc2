package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	defaultListen          = ":8080"
	defaultStagingDir      = "staging"
	defaultDatabaseDir     = "databases"
	defaultDownloadTimeout = 30 * time.Minute

	envURL         = "DBLOAD_URL"
	envListen      = "DBLOAD_LISTEN"
	envStagingDir  = "DBLOAD_STAGING_DIRECTORY"
	envDatabaseDir = "DBLOAD_DATABASE_DIRECTORY"
	envEnableWAL   = "DBLOAD_ENABLE_WAL"
	envLogLevel    = "DBLOAD_LOG_LEVEL"
)

type Config struct {
	URL               string        `yaml:"url"`    // Public base URL, used to build status URLs
	Listen            string        `yaml:"listen"` // Listen address
	StagingDirectory  string        `yaml:"staging_directory"`
	DatabaseDirectory string        `yaml:"database_directory"`
	EnableWAL         bool          `yaml:"enable_wal"`
	DownloadTimeout   time.Duration `yaml:"-"` // Network reliability detail, not part of the config surface
	LogLevel          string        `yaml:"log_level"`
}

func (c *Config) SetDefaults() {
	c.Listen = defaultListen
	c.URL = "http://localhost:8080"
	c.StagingDirectory = defaultStagingDir
	c.DatabaseDirectory = defaultDatabaseDir
	c.DownloadTimeout = defaultDownloadTimeout
	c.LogLevel = LogLevelInfo
}

// MustLoad reads the config file, then applies DBLOAD_* environment
// overrides (a .env file is honored if present). Panics on a config it
// cannot read, the service cannot run without one.
func MustLoad(fileName string) *Config {
	cfg, err := Load(fileName)
	if err != nil {
		panic(err)
	}

	return cfg
}

func Load(fileName string) (*Config, error) {
	var cfg Config
	cfg.SetDefaults()

	if fileName != "" {
		data, err := os.ReadFile(fileName)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file: %w", err)
		}
	}

	_ = godotenv.Load()
	cfg.applyEnv()

	if cfg.StagingDirectory == "" || cfg.DatabaseDirectory == "" {
		return nil, fmt.Errorf("staging_directory and database_directory must be set")
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envURL); v != "" {
		c.URL = v
	}

	if v := os.Getenv(envListen); v != "" {
		c.Listen = v
	}

	if v := os.Getenv(envStagingDir); v != "" {
		c.StagingDirectory = v
	}

	if v := os.Getenv(envDatabaseDir); v != "" {
		c.DatabaseDirectory = v
	}

	if v := os.Getenv(envEnableWAL); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.EnableWAL = b
		}
	}

	if v := os.Getenv(envLogLevel); v != "" {
		c.LogLevel = v
	}
}
