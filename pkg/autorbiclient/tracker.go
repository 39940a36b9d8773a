package autorbiclient

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// StatusFetcher 查询单个任务进度
type StatusFetcher interface {
	ExtractionStatus(ctx context.Context, id uint) (*Status, error)
}

// Snapshot 一次轮询后的汇总进度
type Snapshot struct {
	TotalPages     int
	ProcessedPages int
	Percent        float64
	Done           bool
	Statuses       map[uint]Status
	// Errors 本轮查询失败的任务。临时错误沿用上一次成功的计数；
	// 永久错误（见 APIError.Permanent）使该任务按 failed 结束，不再查询
	Errors map[uint]error
}

// Tracker 轮询多个提取任务并汇总页数进度
type Tracker struct {
	fetcher StatusFetcher
	logger  *zap.Logger
}

// NewTracker 创建进度跟踪器
func NewTracker(fetcher StatusFetcher, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{fetcher: fetcher, logger: logger}
}

// Watch 立即轮询一次，之后每个 interval 轮询，直到所有任务进入终态或 ctx 结束。
// onTick 可为 nil；返回最后一次的汇总结果
func (t *Tracker) Watch(ctx context.Context, ids []uint, interval time.Duration, onTick func(Snapshot)) (Snapshot, error) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	last := make(map[uint]Status, len(ids))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snap := t.poll(ctx, ids, last)
		if onTick != nil {
			onTick(snap)
		}
		if snap.Done {
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll 查询尚未结束的任务并更新 last
func (t *Tracker) poll(ctx context.Context, ids []uint, last map[uint]Status) Snapshot {
	snap := Snapshot{Statuses: make(map[uint]Status, len(ids)), Errors: map[uint]error{}}
	for _, id := range ids {
		prev, known := last[id]
		if !known || !prev.Terminal() {
			s, err := t.fetcher.ExtractionStatus(ctx, id)
			var apiErr *APIError
			switch {
			case err == nil:
				last[id] = *s
			case errors.As(err, &apiErr) && apiErr.Permanent():
				t.logger.Warn("提取任务不可访问，停止跟踪", zap.Uint("extraction_id", id), zap.Error(err))
				snap.Errors[id] = err
				rejected := prev
				rejected.ID = id
				rejected.Status = "failed"
				rejected.ErrorMessage = apiErr.Message
				last[id] = rejected
			default:
				t.logger.Warn("查询提取进度失败，下次重试", zap.Uint("extraction_id", id), zap.Error(err))
				snap.Errors[id] = err
			}
		}
		if s, ok := last[id]; ok {
			snap.Statuses[id] = s
		}
	}
	return summarize(ids, snap)
}

// summarize 汇总页数；所有任务都已知且处于终态时 Done
func summarize(ids []uint, snap Snapshot) Snapshot {
	snap.Done = true
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		s, ok := snap.Statuses[id]
		if !ok {
			snap.Done = false
			continue
		}
		snap.TotalPages += s.TotalPages
		snap.ProcessedPages += s.ProcessedPages
		if !s.Terminal() {
			snap.Done = false
		}
	}
	if snap.TotalPages > 0 {
		snap.Percent = float64(snap.ProcessedPages) / float64(snap.TotalPages) * 100
	}
	return snap
}
