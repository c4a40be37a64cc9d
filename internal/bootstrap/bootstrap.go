// Package bootstrap assembles the document service from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-summarizer/api/handlers"
	"github.com/feichai0017/document-summarizer/config"
	"github.com/feichai0017/document-summarizer/internal/acquire"
	"github.com/feichai0017/document-summarizer/internal/agent"
	"github.com/feichai0017/document-summarizer/internal/agent/document/docx"
	"github.com/feichai0017/document-summarizer/internal/agent/document/image"
	"github.com/feichai0017/document-summarizer/internal/agent/document/image/tesseract"
	"github.com/feichai0017/document-summarizer/internal/agent/document/pdf"
	"github.com/feichai0017/document-summarizer/internal/agent/document/text"
	"github.com/feichai0017/document-summarizer/internal/service/document"
	"github.com/feichai0017/document-summarizer/internal/store"
	"github.com/feichai0017/document-summarizer/internal/summarizer"
	"github.com/feichai0017/document-summarizer/internal/utils/validator"
	"github.com/feichai0017/document-summarizer/pkg/lock"
	"github.com/feichai0017/document-summarizer/pkg/logger"
	"github.com/feichai0017/document-summarizer/pkg/queue"
	"github.com/feichai0017/document-summarizer/pkg/storage"
	"github.com/feichai0017/document-summarizer/pkg/worker"
)

const userAgent = "document-summarizer/1.0"

// App holds the wired service and everything that has to be closed with it.
type App struct {
	Config  *config.Config
	Service *document.DocumentService
	Health  *handlers.HealthHandler

	// Exactly one of Pool and Queue is set, depending on dispatch.mode.
	Pool  *worker.Pool
	Queue *queue.AsynqQueue

	logger  logger.Logger
	closers []func() error
}

// New builds the service. The caller owns the returned App and must Close it.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (app *App, err error) {
	app = &App{Config: cfg, logger: log}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	var (
		rdb    *redis.Client
		checks []handlers.HealthCheck
	)
	if usesRedis(cfg) {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.onClose(rdb.Close)
		checks = append(checks, handlers.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	// 1. 状态存储
	var st store.Store
	switch cfg.Database.Driver {
	case "memory":
		st = store.NewMemoryStore()
	case "redis":
		st = store.NewRedisStore(rdb, log)
	case "sqlite", "postgres":
		gs, err := store.OpenGorm(cfg.Database.Driver, cfg.Database.DSN, log)
		if err != nil {
			return nil, err
		}
		app.onClose(gs.Close)
		checks = append(checks, handlers.HealthCheck{Name: "database", Check: gs.Ping})
		st = gs
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.Dispatch.Lock == "redis" {
		locker = lock.NewRedisLocker(rdb, log)
	}

	// 2. 对象存储
	uploads, registry, err := storage.NewRegistryFromConfig(ctx, cfg.Storage, cfg.Pipeline.LegacyRoot, log)
	if err != nil {
		return nil, err
	}
	for _, b := range registry.Backends() {
		if c, ok := b.(io.Closer); ok {
			app.onClose(c.Close)
		}
	}

	// 3. 文本提取
	recognizer, err := newRecognizer(ctx, cfg.OCR, log)
	if err != nil {
		return nil, err
	}
	router := agent.NewRouter(log,
		pdf.NewProcessor(log, cfg.Pipeline.ScannedThreshold),
		docx.NewProcessor(log),
		text.NewProcessor(log),
		image.NewProcessor(log, recognizer, cfg.OCR.Language, image.DefaultPreprocessors()),
	)
	app.onClose(router.Close)

	// 4. 摘要
	completer, err := newCompleter(ctx, cfg.Summarizer, app)
	if err != nil {
		return nil, err
	}
	if completer == nil {
		log.Warn("Summarizer is not configured, every run will fail until it is")
	}
	summ := summarizer.New(completer, summarizer.Options{
		MinLength: cfg.Pipeline.MinTextLength,
		MaxLength: cfg.Pipeline.MaxInputLength,
	}, log)

	acq := acquire.New(acquire.Config{
		TempDir:    cfg.Pipeline.TempDir,
		LegacyRoot: cfg.Pipeline.LegacyRoot,
		MaxBytes:   cfg.Pipeline.MaxFileSize,
		UserAgent:  userAgent,
	}, registry, log)

	app.Service = document.NewService(document.Deps{
		Store:      st,
		Locker:     locker,
		Acquirer:   acq,
		Extractor:  router,
		Summarizer: summ,
		Uploads:    uploads,
		Registry:   registry,
		Validator: validator.NewDocumentValidator(log, &validator.ValidatorConfig{
			MaxFileSize: cfg.Pipeline.MaxFileSize,
		}),
	}, serviceConfig(cfg), log)

	// 5. 调度
	var inspector handlers.QueueInspector
	switch cfg.Dispatch.Mode {
	case "pool":
		app.Pool = worker.NewPool(cfg.Dispatch.Workers, cfg.Dispatch.QueueSize, log)
		app.Service.SetDispatcher(app.Pool)
	case "asynq":
		q, err := queue.NewAsynqQueue(&queue.QueueConfig{
			RedisAddr:     cfg.Redis.Addr,
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
			Queue:         cfg.Dispatch.QueueName,
			Timeout:       cfg.Pipeline.LockTTL(),
		})
		if err != nil {
			return nil, err
		}
		app.onClose(q.Close)
		app.Queue = q
		app.Service.SetDispatcher(q)
		inspector = q
	default:
		return nil, fmt.Errorf("unsupported dispatch mode: %s", cfg.Dispatch.Mode)
	}

	app.Health = handlers.NewHealthHandler(inspector, checks...)

	log.Info("Document service assembled",
		logger.String("store", cfg.Database.Driver),
		logger.String("storage", cfg.Storage.Type),
		logger.String("ocr", recognizer.Name()),
		logger.String("dispatch", cfg.Dispatch.Mode),
	)
	return app, nil
}

// StartPool runs the in-process workers until ctx is cancelled.
// It does nothing in asynq mode.
func (a *App) StartPool(ctx context.Context) error {
	if a.Pool == nil {
		return nil
	}
	return a.Pool.Start(ctx, a.Service.Process)
}

// StopPool refuses new runs and waits for the queued ones. Runs still going
// when ctx ends are cancelled through cancelRuns; they leave their documents
// pending for the next sweep.
func (a *App) StopPool(ctx context.Context, cancelRuns context.CancelFunc) error {
	if a.Pool == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- a.Pool.Stop() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		a.logger.Warn("Drain deadline reached, cancelling remaining runs")
		cancelRuns()
		return <-done
	}
}

// WorkerConfig is the asynq server configuration for the worker process.
func (a *App) WorkerConfig() *worker.Config {
	cfg := a.Config
	return &worker.Config{
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.Dispatch.Concurrency,
		Queues:        map[string]int{cfg.Dispatch.QueueName: 1},
		SweepInterval: cfg.Pipeline.SweepInterval,
	}
}

// Close stops the pool and releases resources in reverse order.
func (a *App) Close() error {
	var errs []error
	if a.Pool != nil {
		errs = append(errs, a.Pool.Stop())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func usesRedis(cfg *config.Config) bool {
	return cfg.Database.Driver == "redis" || cfg.Dispatch.Lock == "redis" || cfg.Dispatch.Mode == "asynq"
}

func serviceConfig(cfg *config.Config) document.ServiceConfig {
	p := cfg.Pipeline
	return document.ServiceConfig{
		StaleAfter:       p.StaleAfter,
		RetryBudget:      p.RetryBudget,
		MinTextLength:    p.MinTextLength,
		FetchTimeout:     p.FetchTimeout,
		ExtractTimeout:   p.ExtractTimeout,
		SummarizeTimeout: p.SummarizeTimeout,
		RunTimeout:       p.RunTimeout,
		LockTTL:          p.LockTTL(),
		TempMaxAge:       p.TempMaxAge,
		UploadRetention:  p.UploadRetention,
		SweepBatch:       p.SweepBatch,
		MaxUploadFiles:   cfg.Server.MaxUploadFiles,
	}
}

func newRecognizer(ctx context.Context, cfg config.OCRConfig, log logger.Logger) (image.Recognizer, error) {
	switch cfg.Engine {
	case config.OCREngineTextract:
		return image.NewTextractRecognizer(ctx, &image.TextractConfig{
			Region:    cfg.Textract.Region,
			Endpoint:  cfg.Textract.Endpoint,
			AccessKey: cfg.Textract.AccessKey,
			SecretKey: cfg.Textract.SecretKey,
		}, log)
	case config.OCREngineTesseract, "":
		return tesseract.NewRecognizer(log), nil
	default:
		return nil, fmt.Errorf("unsupported ocr engine: %s", cfg.Engine)
	}
}

// newCompleter returns nil when no provider is configured.
func newCompleter(ctx context.Context, cfg config.SummarizerConfig, app *App) (summarizer.Completer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		c, err := summarizer.NewOpenAICompleter(summarizer.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			SiteURL: cfg.SiteURL,
			AppName: cfg.AppName,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderVertex:
		c, err := summarizer.NewVertexCompleter(ctx, cfg.Vertex.ProjectID, cfg.Vertex.Region, cfg.Vertex.Model)
		if err != nil {
			return nil, err
		}
		app.onClose(c.Close)
		return c, nil
	case config.ProviderNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported summarizer provider: %s", cfg.Provider)
	}
}
