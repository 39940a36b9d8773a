// Package queue 基于 asynq 的提取任务队列
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"autorbi/internal/config"
	"autorbi/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	defaultQueue    = "extraction"
	defaultTimeout  = 30 * time.Minute
	defaultRetain   = 24 * time.Hour
	defaultMaxRetry = 1
)

// Stats 队列状态
type Stats struct {
	Queue     string `json:"queue"`
	Size      int    `json:"size"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Completed int    `json:"completed"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Paused    bool   `json:"paused"`
}

// Client 提取任务队列客户端
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
	timeout   time.Duration
	maxRetry  int
	logger    *zap.Logger
}

// NewClient 创建任务队列客户端
func NewClient(opt asynq.RedisConnOpt, cfg config.ExtractionConfig, logger *zap.Logger) *Client {
	c := &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		queue:     cfg.Queue,
		timeout:   cfg.TaskTimeoutDuration(),
		maxRetry:  cfg.MaxRetry,
		logger:    logger,
	}
	if c.queue == "" {
		c.queue = defaultQueue
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxRetry < 0 {
		c.maxRetry = defaultMaxRetry
	}
	return c
}

// Queue 提取任务所在队列
func (c *Client) Queue() string {
	return c.queue
}

// EnqueueExtraction 提交提取任务；同一任务重复提交视为成功
func (c *Client) EnqueueExtraction(ctx context.Context, extractionID uint) error {
	payload, err := json.Marshal(tasks.RunExtractionPayload{ExtractionID: extractionID})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeRunExtraction, payload)
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(c.timeout),
		asynq.TaskID(tasks.ExtractionTaskID(extractionID)),
		asynq.Retention(defaultRetain),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		c.logger.Info("提取任务已在队列中", zap.Uint("extraction_id", extractionID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}

	c.logger.Debug("提取任务已入队",
		zap.Uint("extraction_id", extractionID),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
	return nil
}

// Stats 查询提取队列状态
func (c *Client) Stats() (*Stats, error) {
	info, err := c.inspector.GetQueueInfo(c.queue)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return &Stats{Queue: c.queue}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询队列状态失败: %w", err)
	}
	return &Stats{
		Queue:     info.Queue,
		Size:      info.Size,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
		Completed: info.Completed,
		Processed: info.Processed,
		Failed:    info.Failed,
		Paused:    info.Paused,
	}, nil
}

// Close 关闭连接
func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}
