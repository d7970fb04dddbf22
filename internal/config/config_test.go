package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  data_dir: "/srv/stocksync/data"
  sqlite_path: "/srv/stocksync/journal.db"
  holidays_file: "/srv/stocksync/holidays.txt"
logging:
  level: "debug"
  format: "json"
sync:
  start_date: "20150101"
  update_mode: "full"
  preferred_source: "eastmoney"
  delay_min_ms: 100
  delay_max_ms: 300
  batch_size: 500
  rate_limit_per_min: 120
tushare:
  token: "secret"
baostock:
  host: "bs.internal"
  port: 10030
daemon:
  schedule: "0 19 * * MON-FRI"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.DataDir != "/srv/stocksync/data" {
		t.Errorf("data_dir = %s", cfg.Storage.DataDir)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Sync.UpdateMode != "full" || cfg.Sync.BatchSize != 500 {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Tushare.Token != "secret" {
		t.Errorf("token = %s", cfg.Tushare.Token)
	}
	if cfg.Baostock.Host != "bs.internal" || cfg.Baostock.Port != 10030 {
		t.Errorf("baostock = %+v", cfg.Baostock)
	}
	if cfg.Daemon.Schedule != "0 19 * * MON-FRI" {
		t.Errorf("schedule = %s", cfg.Daemon.Schedule)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sync.StartDate != "20000101" {
		t.Errorf("start_date = %s", cfg.Sync.StartDate)
	}
	if cfg.Sync.UpdateMode != "tail" {
		t.Errorf("update_mode = %s", cfg.Sync.UpdateMode)
	}
	if cfg.Sync.PreferredSource != "baostock" {
		t.Errorf("preferred_source = %s", cfg.Sync.PreferredSource)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("level = %s", cfg.Logging.Level)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  data_dir: "/srv/data"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.DataDir != "/srv/data" {
		t.Errorf("data_dir = %s", cfg.Storage.DataDir)
	}
	if cfg.Sync.UpdateMode != "tail" {
		t.Errorf("update_mode = %s, defaults should survive partial files", cfg.Sync.UpdateMode)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("TUSHARE_TOKEN", "env-token")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("UPDATE_MODE", "head_tail")
	t.Setenv("BAOSTOCK_PORT", "12345")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("data_dir = %s", cfg.Storage.DataDir)
	}
	if cfg.Tushare.Token != "env-token" {
		t.Errorf("token = %s", cfg.Tushare.Token)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %s", cfg.Logging.Level)
	}
	if cfg.Sync.UpdateMode != "head_tail" {
		t.Errorf("update_mode = %s", cfg.Sync.UpdateMode)
	}
	if cfg.Baostock.Port != 12345 {
		t.Errorf("port = %d", cfg.Baostock.Port)
	}
}

func TestInvalidUpdateMode(t *testing.T) {
	path := writeConfig(t, `
sync:
  update_mode: "sideways"
`)
	if _, err := Load(path); err == nil {
		t.Error("want error for unknown update_mode")
	}
}

func TestInvalidDelayRange(t *testing.T) {
	path := writeConfig(t, `
sync:
  delay_min_ms: 2000
  delay_max_ms: 100
`)
	if _, err := Load(path); err == nil {
		t.Error("want error when delay_min_ms exceeds delay_max_ms")
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("want error for a missing config file")
	}
}
