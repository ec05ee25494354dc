package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.COT.ReportType != "legacy" {
		t.Errorf("expected default report type legacy, got %s", cfg.COT.ReportType)
	}
	if cfg.COT.Window != 156 {
		t.Errorf("expected default window 156, got %d", cfg.COT.Window)
	}
	if cfg.COT.StalenessDays != 14 {
		t.Errorf("expected default staleness threshold 14, got %d", cfg.COT.StalenessDays)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.API.Port)
	}
	if len(cfg.Prices.Tickers) == 0 {
		t.Error("expected default price tickers")
	}
	if cfg.News.Limit != 6 {
		t.Errorf("expected default news limit 6, got %d", cfg.News.Limit)
	}
	if cfg.Store.Enabled {
		t.Error("store should be disabled by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
cot:
  report_type: disaggregated
  window: 52
  staleness_days: 21
  instruments:
    - id: GOLD
      keywords: ["GOLD"]
    - id: SILVER
      keywords: ["SILVER"]
api:
  port: 9090
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.COT.ReportType != "disaggregated" {
		t.Errorf("expected disaggregated, got %s", cfg.COT.ReportType)
	}
	if cfg.COT.Window != 52 {
		t.Errorf("expected window 52, got %d", cfg.COT.Window)
	}
	if len(cfg.COT.Instruments) != 2 || cfg.COT.Instruments[1].ID != "SILVER" {
		t.Errorf("unexpected instruments %+v", cfg.COT.Instruments)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.API.Port)
	}
	// Unset sections keep their defaults.
	if cfg.News.Limit != 6 {
		t.Errorf("expected default news limit, got %d", cfg.News.Limit)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestFREDKeyEnvOverride(t *testing.T) {
	t.Setenv("MACRODESK_MACRO_FRED_API_KEY", "key-from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Macro.FREDAPIKey != "key-from-env" {
		t.Errorf("expected env override, got %q", cfg.Macro.FREDAPIKey)
	}
}
