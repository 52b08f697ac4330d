package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every process-wide setting. It is built once by Load and
// treated as read-only afterwards.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCHealthAddr  string        `env:"GRPC_HEALTH_ADDR" envDefault:":9090"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	RateLimit       string        `env:"RATE_LIMIT" envDefault:"100-S"`

	Log LogConfig

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseDSN    string `env:"DATABASE_DSN" envDefault:"host=postgres user=postgres password=postgres dbname=smartfit port=5432 sslmode=disable"`

	RedisAddr       string        `env:"REDIS_ADDR" envDefault:"redis:6379"`
	CacheTTL        time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	ProductCacheTTL time.Duration `env:"PRODUCT_CACHE_TTL" envDefault:"1h"`

	Models ModelConfig

	PredictionSelection     string `env:"PREDICTION_SELECTION" envDefault:"first"`
	DefaultClothingCategory string `env:"DEFAULT_CLOTHING_CATEGORY" envDefault:"streetwear-men"`

	ProductSearch ProductSearchConfig
}

// LogConfig controls the zap logger and its optional rotating file sink.
type LogConfig struct {
	Level    string        `env:"LOG_LEVEL" envDefault:"info"`
	File     string        `env:"LOG_FILE"`
	MaxAge   time.Duration `env:"LOG_MAX_AGE" envDefault:"168h"`
	Rotation time.Duration `env:"LOG_ROTATION" envDefault:"24h"`
}

// ModelConfig locates the two ONNX classifiers.
type ModelConfig struct {
	RuntimeLibrary string `env:"ONNXRUNTIME_LIB"`
	SeasonalPath   string `env:"SEASONAL_MODEL_PATH" envDefault:"models/seasonal_color_model.onnx"`
	SkinTonePath   string `env:"SKINTONE_MODEL_PATH" envDefault:"models/skintone_model.onnx"`
	InputName      string `env:"MODEL_INPUT_NAME" envDefault:"input"`
	OutputName     string `env:"MODEL_OUTPUT_NAME" envDefault:"output"`
	TensorLayout   string `env:"MODEL_TENSOR_LAYOUT" envDefault:"NHWC"`
}

// ProductSearchConfig configures the marketplace search API.
type ProductSearchConfig struct {
	URL            string        `env:"RAPIDAPI_URL"`
	APIKey         string        `env:"RAPIDAPI_KEY"`
	APIHost        string        `env:"RAPIDAPI_HOST"`
	Country        string        `env:"PRODUCT_SEARCH_COUNTRY" envDefault:"US"`
	ResultsPerItem int           `env:"PRODUCT_RESULTS_PER_ITEM" envDefault:"3"`
	ResultsTotal   int           `env:"PRODUCT_RESULTS_TOTAL" envDefault:"3"`
	RetryDelay     time.Duration `env:"PRODUCT_RETRY_DELAY" envDefault:"5s"`
	Timeout        time.Duration `env:"PRODUCT_SEARCH_TIMEOUT" envDefault:"10s"`
}

// Enabled reports whether enough credentials are present to call the API.
func (c ProductSearchConfig) Enabled() bool {
	return c.URL != "" && c.APIKey != ""
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, continuing with environment variables")
	}
	return Parse()
}

// Parse builds a Config from the current environment without touching .env files.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	c.DatabaseDriver = strings.ToLower(strings.TrimSpace(c.DatabaseDriver))
	if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver))
	}

	c.PredictionSelection = strings.ToLower(strings.TrimSpace(c.PredictionSelection))
	if c.PredictionSelection != "first" && c.PredictionSelection != "best" {
		errs = append(errs, fmt.Errorf("PREDICTION_SELECTION must be first or best, got %q", c.PredictionSelection))
	}

	c.Models.TensorLayout = strings.ToUpper(strings.TrimSpace(c.Models.TensorLayout))
	if c.Models.TensorLayout != "NHWC" && c.Models.TensorLayout != "NCHW" {
		errs = append(errs, fmt.Errorf("MODEL_TENSOR_LAYOUT must be NHWC or NCHW, got %q", c.Models.TensorLayout))
	}
	if c.Models.SeasonalPath == "" || c.Models.SkinTonePath == "" {
		errs = append(errs, errors.New("SEASONAL_MODEL_PATH and SKINTONE_MODEL_PATH are required"))
	}

	c.DefaultClothingCategory = strings.ToLower(strings.TrimSpace(c.DefaultClothingCategory))
	if c.DefaultClothingCategory == "" {
		errs = append(errs, errors.New("DEFAULT_CLOTHING_CATEGORY must not be empty"))
	}

	if c.ProductSearch.ResultsPerItem <= 0 || c.ProductSearch.ResultsTotal <= 0 {
		errs = append(errs, errors.New("product result limits must be positive"))
	}
	if c.ProductSearch.URL != "" && c.ProductSearch.APIKey == "" {
		log.Println("Warning: RAPIDAPI_URL is set but RAPIDAPI_KEY is missing, product search disabled")
	}

	return errors.Join(errs...)
}
