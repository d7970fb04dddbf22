package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the stocksync tools.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Logging  Logging  `yaml:"logging"`
	Sync     Sync     `yaml:"sync"`
	Tushare  Tushare  `yaml:"tushare"`
	Baostock Baostock `yaml:"baostock"`
	Daemon   Daemon   `yaml:"daemon"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir      string `yaml:"data_dir"`
	SQLitePath   string `yaml:"sqlite_path"`
	HolidaysFile string `yaml:"holidays_file"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Sync holds parameters for the daily sync job.
type Sync struct {
	StartDate       string `yaml:"start_date"`  // YYYYMMDD
	EndDate         string `yaml:"end_date"`    // YYYYMMDD, empty means today (with the cutoff rule)
	UpdateMode      string `yaml:"update_mode"` // tail, full, head_tail
	Adjust          string `yaml:"adjust"`      // qfq, hfq, or empty for unadjusted
	PreferredSource string `yaml:"preferred_source"`
	DelayMinMS      int    `yaml:"delay_min_ms"`
	DelayMaxMS      int    `yaml:"delay_max_ms"`
	BatchSize       int    `yaml:"batch_size"`
	StartIndex      int    `yaml:"start_index"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Tushare holds credentials for the TuShare Pro API.
type Tushare struct {
	Token string `yaml:"token"`
}

// Baostock holds the BaoStock service endpoint.
type Baostock struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Daemon configures scheduled operation.
type Daemon struct {
	Schedule string `yaml:"schedule"` // cron spec
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir: "data",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Sync: Sync{
			StartDate:       "20000101",
			UpdateMode:      "tail",
			PreferredSource: "baostock",
			DelayMinMS:      500,
			DelayMaxMS:      1500,
		},
		Daemon: Daemon{
			Schedule: "30 18 * * MON-FRI",
		},
	}
}

// Load reads the YAML configuration file at the given path, parses it over
// the defaults, and then applies environment variable overrides. An empty
// path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Sync.UpdateMode {
	case "", "tail", "full", "head_tail":
	default:
		return fmt.Errorf("config: unknown update_mode %q", c.Sync.UpdateMode)
	}
	if c.Sync.DelayMinMS > c.Sync.DelayMaxMS {
		return fmt.Errorf("config: delay_min_ms %d exceeds delay_max_ms %d",
			c.Sync.DelayMinMS, c.Sync.DelayMaxMS)
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("HOLIDAYS_FILE"); v != "" {
		cfg.Storage.HolidaysFile = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("START_DATE"); v != "" {
		cfg.Sync.StartDate = v
	}
	if v := os.Getenv("END_DATE"); v != "" {
		cfg.Sync.EndDate = v
	}
	if v := os.Getenv("UPDATE_MODE"); v != "" {
		cfg.Sync.UpdateMode = v
	}
	if v := os.Getenv("PREFERRED_SOURCE"); v != "" {
		cfg.Sync.PreferredSource = v
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.BatchSize = n
		}
	}
	if v := os.Getenv("START_INDEX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.StartIndex = n
		}
	}

	if v := os.Getenv("TUSHARE_TOKEN"); v != "" {
		cfg.Tushare.Token = v
	}

	if v := os.Getenv("BAOSTOCK_HOST"); v != "" {
		cfg.Baostock.Host = v
	}
	if v := os.Getenv("BAOSTOCK_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Baostock.Port = n
		}
	}
}
