// pkg/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TaskType 定义任务类型
const (
	TaskTypeSummarize = "document:summarize"
	TaskTypeSweep     = "maintenance:sweep"
)

const taskIDPrefix = "summarize:"

// SummarizePayload is the body of a document:summarize task.
type SummarizePayload struct {
	DocumentID string `json:"documentId"`
}

// NewSummarizeTask 创建摘要任务
func NewSummarizeTask(documentID string, opts ...asynq.Option) (*asynq.Task, error) {
	if documentID == "" {
		return nil, errors.New("document id is required")
	}
	payload, err := json.Marshal(SummarizePayload{DocumentID: documentID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TaskTypeSummarize, payload, opts...), nil
}

// ParseSummarizePayload 解析任务负载
func ParseSummarizePayload(t *asynq.Task) (SummarizePayload, error) {
	var p SummarizePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if p.DocumentID == "" {
		return p, errors.New("payload missing documentId")
	}
	return p, nil
}

// QueueConfig 定义队列配置
type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Queue         string
	// Timeout bounds one task on the worker side.
	Timeout time.Duration
}

func (c *QueueConfig) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// Stats is a snapshot of the queue backlog.
type Stats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// AsynqQueue 实现
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	cfg       QueueConfig
}

// NewAsynqQueue 创建新的队列实例
func NewAsynqQueue(cfg *QueueConfig) (*AsynqQueue, error) {
	if cfg == nil || cfg.RedisAddr == "" {
		return nil, errors.New("queue: redis address is required")
	}
	c := *cfg
	if c.Queue == "" {
		c.Queue = "default"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}

	redisOpt := c.RedisOpt()
	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		cfg:       c,
	}, nil
}

// Dispatch enqueues a summarization run. A task still waiting or running
// for the same document absorbs the request; a finished one is replaced.
func (q *AsynqQueue) Dispatch(ctx context.Context, documentID string) error {
	taskID := taskIDPrefix + documentID
	task, err := NewSummarizeTask(documentID,
		asynq.TaskID(taskID),
		asynq.Queue(q.cfg.Queue),
		asynq.MaxRetry(0),
		asynq.Timeout(q.cfg.Timeout),
	)
	if err != nil {
		return err
	}

	_, err = q.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		replaced, rerr := q.replaceFinished(taskID)
		if rerr != nil {
			return rerr
		}
		if !replaced {
			return nil
		}
		_, err = q.client.EnqueueContext(ctx, task)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			// 并发的 Dispatch 已经重新入队
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// replaceFinished deletes an archived or completed task holding taskID so
// the id can be enqueued again. It reports whether the id is now free.
func (q *AsynqQueue) replaceFinished(taskID string) (bool, error) {
	info, err := q.inspector.GetTaskInfo(q.cfg.Queue, taskID)
	if errors.Is(err, asynq.ErrTaskNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to inspect task %s: %w", taskID, err)
	}

	switch info.State {
	case asynq.TaskStateArchived, asynq.TaskStateCompleted:
		err := q.inspector.DeleteTask(q.cfg.Queue, taskID)
		if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			return false, fmt.Errorf("failed to delete finished task %s: %w", taskID, err)
		}
		return true, nil
	default:
		return false, nil
	}
}

// Stats 获取队列状态
func (q *AsynqQueue) Stats(ctx context.Context) (*Stats, error) {
	info, err := q.inspector.GetQueueInfo(q.cfg.Queue)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return &Stats{Queue: q.cfg.Queue}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to inspect queue: %w", err)
	}
	return &Stats{
		Queue:     info.Queue,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
	}, nil
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close())
}
