package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/feichai0017/document-summarizer/pkg/logger"
)

// Config 服务配置
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        logger.Config    `yaml:"log"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Storage    StorageConfig    `yaml:"storage"`
	OCR        OCRConfig        `yaml:"ocr"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	MaxUploadFiles int           `yaml:"maxUploadFiles"`
}

// PipelineConfig holds the knobs of a summarization run.
type PipelineConfig struct {
	StaleAfter       time.Duration `yaml:"staleAfter"`
	RetryBudget      int           `yaml:"retryBudget"`
	MinTextLength    int           `yaml:"minTextLength"`
	MaxInputLength   int           `yaml:"maxInputLength"`
	ScannedThreshold int           `yaml:"scannedThreshold"`
	FetchTimeout     time.Duration `yaml:"fetchTimeout"`
	ExtractTimeout   time.Duration `yaml:"extractTimeout"`
	SummarizeTimeout time.Duration `yaml:"summarizeTimeout"`
	RunTimeout       time.Duration `yaml:"runTimeout"`
	TempDir          string        `yaml:"tempDir"`
	TempMaxAge       time.Duration `yaml:"tempMaxAge"`
	LegacyRoot       string        `yaml:"legacyRoot"`
	MaxFileSize      int64         `yaml:"maxFileSize"`
	SweepInterval    time.Duration `yaml:"sweepInterval"`
	SweepBatch       int           `yaml:"sweepBatch"`

	// UploadRetention deletes stored uploads older than this on each sweep. Zero keeps them.
	UploadRetention time.Duration `yaml:"uploadRetention"`
}

// LockTTL outlives the longest run so a lease never expires under a live run.
func (p PipelineConfig) LockTTL() time.Duration {
	return p.RunTimeout + time.Minute
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig selects the status store. Driver is one of memory, redis, sqlite, postgres.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// DispatchConfig selects how runs are scheduled. Mode is pool or asynq; Lock is memory or redis.
type DispatchConfig struct {
	Mode        string `yaml:"mode"`
	Lock        string `yaml:"lock"`
	Workers     int    `yaml:"workers"`
	QueueSize   int    `yaml:"queueSize"`
	QueueName   string `yaml:"queueName"`
	Concurrency int    `yaml:"concurrency"`
}

// Default returns a configuration that runs fully in-process.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			MaxUploadFiles: 10,
		},
		Log: logger.DefaultConfig(),
		Pipeline: PipelineConfig{
			StaleAfter:       5 * time.Minute,
			RetryBudget:      1,
			MinTextLength:    50,
			MaxInputLength:   100000,
			ScannedThreshold: 100,
			FetchTimeout:     2 * time.Minute,
			ExtractTimeout:   3 * time.Minute,
			SummarizeTimeout: 2 * time.Minute,
			RunTimeout:       8 * time.Minute,
			TempDir:          os.TempDir(),
			TempMaxAge:       time.Hour,
			LegacyRoot:       ".",
			MaxFileSize:      10 * 1024 * 1024,
			SweepInterval:    time.Minute,
			SweepBatch:       100,
		},
		Storage: StorageConfig{
			Type:  StorageTypeLocal,
			Local: LocalConfig{Prefix: "uploads"},
		},
		OCR: OCRConfig{
			Engine:   OCREngineTesseract,
			Language: "eng",
		},
		Summarizer: SummarizerConfig{
			Provider: ProviderOpenAI,
			BaseURL:  DefaultOpenRouterURL,
			Model:    DefaultModel,
			AppName:  "Document Summarizer",
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Database: DatabaseConfig{
			Driver: "memory",
		},
		Dispatch: DispatchConfig{
			Mode:        "pool",
			Lock:        "memory",
			Workers:     4,
			QueueSize:   256,
			QueueName:   "summaries",
			Concurrency: 4,
		},
	}
}

// Load reads an optional YAML file, then .env, then the process environment.
// Later sources win.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// 加载 .env 文件, missing file is fine
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	setString(&c.Server.Addr, "SERVER_ADDR")
	if v := os.Getenv("CLIENT_URL"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Encoding, "LOG_ENCODING")

	errs = append(errs,
		setDuration(&c.Pipeline.StaleAfter, "PIPELINE_STALE_AFTER"),
		setDuration(&c.Pipeline.RunTimeout, "PIPELINE_RUN_TIMEOUT"),
		setDuration(&c.Pipeline.UploadRetention, "UPLOAD_RETENTION"),
		setInt(&c.Pipeline.RetryBudget, "PIPELINE_RETRY_BUDGET"),
		setInt64(&c.Pipeline.MaxFileSize, "MAX_FILE_SIZE"),
	)
	setString(&c.Pipeline.TempDir, "TEMP_DIR")
	setString(&c.Pipeline.LegacyRoot, "LEGACY_ROOT")

	errs = append(errs, c.Storage.applyEnv())
	c.OCR.applyEnv()
	c.Summarizer.applyEnv()

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	errs = append(errs, setInt(&c.Redis.DB, "REDIS_DB"))

	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.DSN, "DB_DSN")

	setString(&c.Dispatch.Mode, "DISPATCH_MODE")
	setString(&c.Dispatch.Lock, "LOCK_BACKEND")
	errs = append(errs,
		setInt(&c.Dispatch.Workers, "DISPATCH_WORKERS"),
		setInt(&c.Dispatch.Concurrency, "WORKER_CONCURRENCY"),
	)

	return errors.Join(errs...)
}

// Validate fails fast on settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	p := c.Pipeline
	if p.StaleAfter <= 0 || p.FetchTimeout <= 0 || p.ExtractTimeout <= 0 || p.SummarizeTimeout <= 0 || p.RunTimeout <= 0 {
		errs = append(errs, errors.New("pipeline timeouts must be positive"))
	}
	if p.RetryBudget < 0 {
		errs = append(errs, errors.New("pipeline.retryBudget must not be negative"))
	}
	if p.MinTextLength <= 0 || p.MaxInputLength < p.MinTextLength {
		errs = append(errs, errors.New("pipeline text limits are inconsistent"))
	}
	if p.MaxFileSize <= 0 {
		errs = append(errs, errors.New("pipeline.maxFileSize must be positive"))
	}

	errs = append(errs, c.Storage.validate(), c.OCR.validate(), c.Summarizer.validate())

	needsRedis := false
	switch c.Database.Driver {
	case "memory":
	case "redis":
		needsRedis = true
	case "sqlite", "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, fmt.Errorf("database.dsn is required for %s", c.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver: %q", c.Database.Driver))
	}

	switch c.Dispatch.Mode {
	case "pool":
		if c.Dispatch.Workers <= 0 || c.Dispatch.QueueSize <= 0 {
			errs = append(errs, errors.New("dispatch.workers and dispatch.queueSize must be positive"))
		}
	case "asynq":
		needsRedis = true
		if c.Database.Driver == "memory" {
			errs = append(errs, errors.New("asynq dispatch needs a shared status store, not memory"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported dispatch mode: %q", c.Dispatch.Mode))
	}

	switch c.Dispatch.Lock {
	case "memory":
		if c.Dispatch.Mode == "asynq" {
			errs = append(errs, errors.New("asynq dispatch needs the redis lock backend"))
		}
	case "redis":
		needsRedis = true
	default:
		errs = append(errs, fmt.Errorf("unsupported lock backend: %q", c.Dispatch.Lock))
	}

	if needsRedis && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}

	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
