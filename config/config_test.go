package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// TestGetConfig tests the singleton pattern
func TestGetConfig(t *testing.T) {
	Reset()

	config1 := GetConfig()
	config2 := GetConfig()
	if config1 != config2 {
		t.Error("GetConfig should return the same singleton instance")
	}
	if config1.Query.TurnoverThreshold != 1000 {
		t.Errorf("Expected default turnover threshold 1000, got %v", config1.Query.TurnoverThreshold)
	}
	if config1.Query.LargeOrderThreshold != 15000 {
		t.Errorf("Expected default large order threshold 15000, got %v", config1.Query.LargeOrderThreshold)
	}
	if config1.Output.Format != "table" {
		t.Errorf("Expected default output format 'table', got %s", config1.Output.Format)
	}
	if err := config1.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

// TestDecodeInvalidExtension tests file extension validation
func TestDecodeInvalidExtension(t *testing.T) {
	Reset()

	tests := []struct {
		name     string
		filename string
	}{
		{"JSON extension", "config.json"},
		{"TXT extension", "config.txt"},
		{"No extension", "config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Decode(tt.filename)
			if err == nil {
				t.Fatalf("Expected error for %s, got nil", tt.filename)
			}
			expectedMsg := "file must be a .yaml or .yml file"
			if err.Error() != expectedMsg {
				t.Errorf("Expected error '%s', got '%s'", expectedMsg, err.Error())
			}
		})
	}
}

func TestDecodeMissingFile(t *testing.T) {
	Reset()
	if err := Decode(filepath.Join(t.TempDir(), "nonexistent.yaml")); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestDecodeInvalidYAML(t *testing.T) {
	Reset()
	path := writeFile(t, "invalid.yaml", "query: [unterminated\n")
	if err := Decode(path); err == nil {
		t.Error("Expected error for invalid YAML, got nil")
	}
}

func TestDecodePartialOverride(t *testing.T) {
	Reset()
	path := writeFile(t, "partial.yml", `
query:
  turnover_threshold: 2500.5
  large_order_threshold: 9000
output:
  format: json
`)
	if err := Decode(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := GetConfig()
	if cfg.Query.TurnoverThreshold != 2500.5 {
		t.Errorf("Expected turnover threshold 2500.5, got %v", cfg.Query.TurnoverThreshold)
	}
	if cfg.Query.LargeOrderThreshold != 9000 {
		t.Errorf("Expected int yaml value to merge as 9000, got %v", cfg.Query.LargeOrderThreshold)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("Expected json output, got %s", cfg.Output.Format)
	}
	// untouched sections keep defaults
	if cfg.Query.CheapMax != 25 || cfg.Query.ExpensiveMin != 50 {
		t.Errorf("Expected default price bounds, got %v/%v", cfg.Query.CheapMax, cfg.Query.ExpensiveMin)
	}
	if cfg.Batch.Size != 1024 {
		t.Errorf("Expected default batch size, got %d", cfg.Batch.Size)
	}
}

func TestDecodeFullOverride(t *testing.T) {
	Reset()
	path := writeFile(t, "full.yaml", `
batch:
  size: 16
query:
  turnover_threshold: 1
  large_order_threshold: 2
  cheap_max: 10
  expensive_min: 20
output:
  format: table
  parquet_compression: zstd
dataset:
  csv_dir: /data/northwind
logging:
  level: DEBUG
  format: json
`)
	if err := Decode(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := GetConfig()
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"batch.size", cfg.Batch.Size, 16},
		{"query.turnover_threshold", cfg.Query.TurnoverThreshold, 1.0},
		{"query.large_order_threshold", cfg.Query.LargeOrderThreshold, 2.0},
		{"query.cheap_max", cfg.Query.CheapMax, 10.0},
		{"query.expensive_min", cfg.Query.ExpensiveMin, 20.0},
		{"output.parquet_compression", cfg.Output.ParquetCompression, "zstd"},
		{"dataset.csv_dir", cfg.Dataset.CSVDir, "/data/northwind"},
		{"logging.level", cfg.Logging.Level, "DEBUG"},
		{"logging.format", cfg.Logging.Format, "json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, tt.got)
			}
		})
	}
}

func TestDecodeRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"inverted price bounds", "query:\n  cheap_max: 60\n  expensive_min: 50\n"},
		{"zero batch", "batch:\n  size: 0\n"},
		{"unknown format", "output:\n  format: xml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Reset()
			if err := Decode(writeFile(t, "bad.yaml", tt.content)); err == nil {
				t.Errorf("Expected validation error")
			}
		})
	}
	Reset()
}

func TestFailedLoadKeepsPreviousConfig(t *testing.T) {
	Reset()
	defer Reset()
	if err := Decode(writeFile(t, "good.yaml", "batch:\n  size: 64\nquery:\n  cheap_max: 10\n")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := GetConfig()

	bad := "batch:\n  size: 128\nquery:\n  cheap_max: 60\n  expensive_min: 50\n"
	if err := Decode(writeFile(t, "bad.yaml", bad)); err == nil {
		t.Fatal("Expected validation error")
	}
	if cfg.Batch.Size != 64 || cfg.Query.CheapMax != 10 || cfg.Query.ExpensiveMin != 50 {
		t.Errorf("rejected file leaked into config: %+v", *cfg)
	}

	t.Setenv(EnvOutputFormat, "xml")
	if err := LoadEnv(); err == nil {
		t.Fatal("Expected validation error")
	}
	if cfg.Output.Format != "table" {
		t.Errorf("rejected env leaked into config: %s", cfg.Output.Format)
	}
	if GetConfig() != cfg {
		t.Error("GetConfig should keep returning the same instance")
	}
}

func TestLoadEnv(t *testing.T) {
	Reset()
	t.Setenv(EnvOutputFormat, "json")
	path := writeFile(t, ".env", "NORTHWIND_LOG_LEVEL=ERROR\nNORTHWIND_OUTPUT_FORMAT=table\n")
	t.Cleanup(func() { os.Unsetenv(EnvLogLevel) })

	if err := LoadEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := GetConfig()
	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level from env file, got %s", cfg.Logging.Level)
	}
	// process env wins over the file
	if cfg.Output.Format != "json" {
		t.Errorf("Expected process env to win, got %s", cfg.Output.Format)
	}
	Reset()
}
