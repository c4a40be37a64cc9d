package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-summarizer/pkg/logger"
	"github.com/feichai0017/document-summarizer/pkg/queue"
)

type DocumentWorker struct {
	BaseWorker
	processor Processor
	scheduler *asynq.Scheduler
	cfg       *Config
}

func NewDocumentWorker(cfg *Config, processor Processor, log logger.Logger) (*DocumentWorker, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	log = log.Named("worker")

	server := asynq.NewServer(
		cfg.redisOpt(),
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			Logger:      &asynqLogger{log: log.Named("asynq")},
		},
	)

	w := &DocumentWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log,
			stopChan: make(chan struct{}),
		},
		processor: processor,
		cfg:       cfg,
	}

	if cfg.SweepInterval > 0 {
		w.scheduler = asynq.NewScheduler(cfg.redisOpt(), &asynq.SchedulerOpts{
			Logger: &asynqLogger{log: log.Named("scheduler")},
		})
	}

	// 注册任务处理器
	w.registerHandlers()
	return w, nil
}

func (w *DocumentWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeSummarize, w.handleSummarize)
	w.mux.HandleFunc(queue.TaskTypeSweep, w.handleSweep)
}

func (w *DocumentWorker) handleSummarize(ctx context.Context, t *asynq.Task) error {
	p, err := queue.ParseSummarizePayload(t)
	if err != nil {
		w.logger.Error("Invalid summarize task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	w.logger.Debug("Processing document task", logger.DocumentID(p.DocumentID))

	// run outcomes are recorded on the document, the task itself never retries
	if err := w.processor.Process(ctx, p.DocumentID); err != nil {
		w.logger.Error("Summarization run errored",
			logger.DocumentID(p.DocumentID),
			logger.Error(err),
		)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return nil
}

func (w *DocumentWorker) handleSweep(ctx context.Context, _ *asynq.Task) error {
	if err := sweep(ctx, w.processor, w.logger); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return nil
}

func (w *DocumentWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	if w.scheduler != nil {
		spec := fmt.Sprintf("@every %s", w.cfg.SweepInterval)
		task := asynq.NewTask(queue.TaskTypeSweep, nil)
		opts := []asynq.Option{asynq.MaxRetry(0), asynq.Unique(w.cfg.SweepInterval)}
		if q := w.firstQueue(); q != "" {
			opts = append(opts, asynq.Queue(q))
		}
		if _, err := w.scheduler.Register(spec, task, opts...); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("failed to register sweep: %w", err)
		}
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopChan:
		}
	}()

	w.logger.Info("Worker started",
		logger.Int("concurrency", w.cfg.Concurrency),
		logger.Duration("sweepInterval", w.cfg.SweepInterval),
	)
	return nil
}

func (w *DocumentWorker) Stop() error {
	if w.scheduler != nil {
		w.stopOnce.Do(func() {
			close(w.stopChan)
			w.scheduler.Shutdown()
			w.server.Shutdown()
		})
		return nil
	}
	return w.BaseWorker.Stop()
}

func (w *DocumentWorker) firstQueue() string {
	best, weight := "", -1
	for name, p := range w.cfg.Queues {
		if p > weight || (p == weight && name < best) {
			best, weight = name, p
		}
	}
	return best
}

// asynqLogger routes asynq's internal logging through zap.
type asynqLogger struct {
	log logger.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...interface{}) { l.log.Fatal(fmt.Sprint(args...)) }

var _ Worker = (*DocumentWorker)(nil)
