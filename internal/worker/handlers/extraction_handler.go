package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"autorbi/internal/extraction"
	"autorbi/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// ExtractionRunner 提取流程抽象，便于注入 mock
type ExtractionRunner interface {
	Run(ctx context.Context, extractionID uint) error
}

type ExtractionHandler struct {
	runner ExtractionRunner
	logger *zap.Logger
}

func NewExtractionHandler(runner ExtractionRunner, logger *zap.Logger) *ExtractionHandler {
	return &ExtractionHandler{
		runner: runner,
		logger: logger,
	}
}

// HandleRunExtraction 执行提取任务。任务不存在或已标记失败时不再重试，被取消时交回队列
func (h *ExtractionHandler) HandleRunExtraction(ctx context.Context, t *asynq.Task) error {
	var p tasks.RunExtractionPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if p.ExtractionID == 0 {
		return fmt.Errorf("extraction_id 不能为空: %w", asynq.SkipRetry)
	}

	h.logger.Info("开始执行提取任务", zap.Uint("extraction_id", p.ExtractionID))

	err := h.runner.Run(ctx, p.ExtractionID)
	switch {
	case err == nil:
		h.logger.Info("提取任务完成", zap.Uint("extraction_id", p.ExtractionID))
		return nil
	case errors.Is(err, context.Canceled):
		h.logger.Warn("提取任务被取消，等待重新投递", zap.Uint("extraction_id", p.ExtractionID))
		return err
	case errors.Is(err, extraction.ErrExtractionNotFound), errors.Is(err, extraction.ErrExtractionFailed):
		h.logger.Warn("提取任务结束且不再重试", zap.Uint("extraction_id", p.ExtractionID), zap.Error(err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		h.logger.Error("提取任务执行出错", zap.Uint("extraction_id", p.ExtractionID), zap.Error(err))
		return err
	}
}
