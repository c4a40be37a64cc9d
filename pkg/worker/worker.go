package worker

import (
	"context"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-summarizer/pkg/logger"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

// Processor is the pipeline surface a worker drives.
type Processor interface {
	Process(ctx context.Context, documentID string) error
	SweepStuck(ctx context.Context) (int, error)
	SweepTempFiles(ctx context.Context) (int, error)
}

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	Queues        map[string]int
	SweepInterval time.Duration
}

func (c *Config) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

type BaseWorker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	logger   logger.Logger
	stopOnce sync.Once
	stopChan chan struct{}
}

func (w *BaseWorker) Stop() error {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.server.Shutdown()
	})
	return nil
}

// Done is closed once Stop has been called.
func (w *BaseWorker) Done() <-chan struct{} {
	return w.stopChan
}

// sweep runs both maintenance passes and logs what they did.
func sweep(ctx context.Context, p Processor, log logger.Logger) error {
	stuck, err := p.SweepStuck(ctx)
	if err != nil {
		log.Error("Stuck sweep failed", logger.Error(err))
	}
	files, tempErr := p.SweepTempFiles(ctx)
	if tempErr != nil {
		log.Error("Temp sweep failed", logger.Error(tempErr))
	}
	if stuck > 0 || files > 0 {
		log.Info("Maintenance sweep finished",
			logger.Int("retriggered", stuck),
			logger.Int("tempFiles", files),
		)
	}
	if err != nil {
		return err
	}
	return tempErr
}

// RunSweeper calls the maintenance passes every interval until ctx ends.
// The in-process deployment uses it in place of the scheduled task.
func RunSweeper(ctx context.Context, interval time.Duration, p Processor, log logger.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx, p, log)
		}
	}
}
