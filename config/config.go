package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvLogLevel     = "NORTHWIND_LOG_LEVEL"
	EnvLogFormat    = "NORTHWIND_LOG_FORMAT"
	EnvOutputFormat = "NORTHWIND_OUTPUT_FORMAT"
	EnvDatasetDir   = "NORTHWIND_DATASET_DIR"
)

type Config struct {
	Batch   batchConfig   `yaml:"batch"`
	Query   queryConfig   `yaml:"query"`
	Output  outputConfig  `yaml:"output"`
	Dataset datasetConfig `yaml:"dataset"`
	Logging loggingConfig `yaml:"logging"`
}
type batchConfig struct {
	Size int `yaml:"size"` // rows requested per Next call
}
type queryConfig struct {
	TurnoverThreshold   float64 `yaml:"turnover_threshold"`
	LargeOrderThreshold float64 `yaml:"large_order_threshold"`
	// price buckets: <= CheapMax is Cheap, >= ExpensiveMin is Expensive
	CheapMax     float64 `yaml:"cheap_max"`
	ExpensiveMin float64 `yaml:"expensive_min"`
}
type outputConfig struct {
	Format             string `yaml:"format"` // table | json
	ParquetCompression string `yaml:"parquet_compression"`
}
type datasetConfig struct {
	// directory holding customers.csv, orders.csv, products.csv, suppliers.csv
	// empty means the built-in fixtures
	CSVDir string `yaml:"csv_dir"`
}
type loggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Batch: batchConfig{
			Size: 1024,
		},
		Query: queryConfig{
			TurnoverThreshold:   1000,
			LargeOrderThreshold: 15000,
			CheapMax:            25,
			ExpensiveMin:        50,
		},
		Output: outputConfig{
			Format:             "table",
			ParquetCompression: "snappy",
		},
		Logging: loggingConfig{
			Level:  "WARN",
			Format: "text",
		},
	}
}

var configInstance *Config = defaults()

func GetConfig() *Config {
	return configInstance
}

// Reset restores the built-in defaults.
func Reset() {
	configInstance = defaults()
}

// Decode merges the file over the current config. The global instance only
// changes when the merged result validates.
func Decode(filePath string) error {
	suffix := strings.Split(filePath, ".")[len(strings.Split(filePath, "."))-1]
	if suffix != "yaml" && suffix != "yml" {
		return errors.New("file must be a .yaml or .yml file")
	}
	r, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer r.Close()
	config := make(map[string]interface{})
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(config); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	merged := *configInstance
	mergeConfig(&merged, config)
	return swap(&merged)
}

// LoadEnv loads the given dotenv files (missing files are skipped) and applies
// the NORTHWIND_* variables on top of the current config. Variables already
// present in the process environment win over the files.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	merged := *configInstance
	if v := os.Getenv(EnvLogLevel); v != "" {
		merged.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		merged.Logging.Format = v
	}
	if v := os.Getenv(EnvOutputFormat); v != "" {
		merged.Output.Format = v
	}
	if v := os.Getenv(EnvDatasetDir); v != "" {
		merged.Dataset.CSVDir = v
	}
	return swap(&merged)
}

// swap copies a validated config into the singleton, keeping its address so
// pointers handed out by GetConfig stay current.
func swap(c *Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	*configInstance = *c
	return nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.Batch.Size <= 0 || c.Batch.Size > 65535 {
		problems = append(problems, fmt.Sprintf("batch.size must be in [1, 65535], got %d", c.Batch.Size))
	}
	if c.Query.CheapMax >= c.Query.ExpensiveMin {
		problems = append(problems, fmt.Sprintf("query.cheap_max (%v) must be below query.expensive_min (%v)", c.Query.CheapMax, c.Query.ExpensiveMin))
	}
	switch c.Output.Format {
	case "table", "json":
	default:
		problems = append(problems, fmt.Sprintf("output.format must be table or json, got %q", c.Output.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func mergeConfig(dst *Config, src map[string]interface{}) {
	// =============================
	// BATCH
	// =============================
	if batch, ok := src["batch"].(map[string]interface{}); ok {
		if v, ok := batch["size"].(int); ok {
			dst.Batch.Size = v
		}
	}

	// =============================
	// QUERY
	// =============================
	if query, ok := src["query"].(map[string]interface{}); ok {
		if v, ok := toFloat(query["turnover_threshold"]); ok {
			dst.Query.TurnoverThreshold = v
		}
		if v, ok := toFloat(query["large_order_threshold"]); ok {
			dst.Query.LargeOrderThreshold = v
		}
		if v, ok := toFloat(query["cheap_max"]); ok {
			dst.Query.CheapMax = v
		}
		if v, ok := toFloat(query["expensive_min"]); ok {
			dst.Query.ExpensiveMin = v
		}
	}

	// =============================
	// OUTPUT
	// =============================
	if output, ok := src["output"].(map[string]interface{}); ok {
		if v, ok := output["format"].(string); ok {
			dst.Output.Format = v
		}
		if v, ok := output["parquet_compression"].(string); ok {
			dst.Output.ParquetCompression = v
		}
	}

	// =============================
	// DATASET
	// =============================
	if dataset, ok := src["dataset"].(map[string]interface{}); ok {
		if v, ok := dataset["csv_dir"].(string); ok {
			dst.Dataset.CSVDir = v
		}
	}

	// =============================
	// LOGGING
	// =============================
	if logging, ok := src["logging"].(map[string]interface{}); ok {
		if v, ok := logging["level"].(string); ok {
			dst.Logging.Level = v
		}
		if v, ok := logging["format"].(string); ok {
			dst.Logging.Format = v
		}
	}
}
