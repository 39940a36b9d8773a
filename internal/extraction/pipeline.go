package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autorbi/internal/activity"
	"autorbi/internal/common"
	"autorbi/internal/metrics"
	"autorbi/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrExtractionFailed 提取流程以失败告终，任务已标记为 failed
var ErrExtractionFailed = errors.New("提取失败")

// errNoPass1Data 第一轮所有页面都没有得到数据
const errNoPass1Data = "Pass 1: No extraction data from any page"

// Run 执行提取流程：解析文件名、读取 PDF、逐页提取、重试补全、写回设备。
// 已处于终态的任务直接跳过；流程失败时任务标记为 failed 并返回 ErrExtractionFailed；
// 任务被取消（如 worker 停机）时退回 pending 并原样返回 ctx 错误以便重新投递；
// 任务或所属项目已被删除时放弃结果并返回 ErrExtractionNotFound
func (s *Service) Run(ctx context.Context, extractionID uint) error {
	ctx, span := s.tracer.Start(ctx, "Extraction.Run",
		trace.WithAttributes(attribute.Int64("extraction.id", int64(extractionID))))
	defer span.End()

	e, err := s.load(ctx, extractionID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if e.Status.Terminal() {
		s.logger.Info("提取任务已结束，跳过", zap.Uint("extraction_id", e.ID), zap.String("status", string(e.Status)))
		return nil
	}

	log := s.logger.With(zap.Uint("extraction_id", e.ID), zap.Uint("work_id", e.WorkID))
	if err := s.update(ctx, e, map[string]interface{}{
		"status":          models.ExtractionInProgress,
		"processed_pages": 0,
		"error_message":   "",
	}); err != nil {
		span.RecordError(err)
		return err
	}
	log.Info("开始提取", zap.String("filename", e.OriginalFilename))

	start := time.Now()
	completeness, err := s.execute(ctx, e, log)
	// 任务状态必须落库
	done := context.WithoutCancel(ctx)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			log.Warn("提取被取消，任务退回待处理", zap.Error(err))
			s.requeue(done, e)
			return ctx.Err()
		case errors.Is(err, ErrExtractionNotFound), errors.Is(err, common.ErrWorkNotFound):
			log.Warn("提取任务或项目已删除，放弃提取结果", zap.Error(err))
			return fmt.Errorf("%w: %v", ErrExtractionNotFound, err)
		}
		span.SetStatus(codes.Error, err.Error())
		log.Error("提取失败", zap.Error(err))
		s.finish(done, e, models.ExtractionFailed, err.Error())
		metrics.ExtractionDuration.WithLabelValues(string(models.ExtractionFailed)).Observe(time.Since(start).Seconds())
		return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	span.SetAttributes(attribute.Float64("extraction.completeness", completeness))
	metrics.ExtractionCompleteness.Observe(completeness)
	s.finish(done, e, models.ExtractionCompleted, "")
	metrics.ExtractionDuration.WithLabelValues(string(models.ExtractionCompleted)).Observe(time.Since(start).Seconds())
	log.Info("提取完成", zap.Float64("completeness", completeness), zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Service) execute(ctx context.Context, e *models.Extraction, log *zap.Logger) (float64, error) {
	meta, ok := ParseFilename(e.OriginalFilename)
	if !ok {
		return 0, fmt.Errorf("could not parse equipment number from filename: %s", e.OriginalFilename)
	}
	rule := s.rules.Equipment(meta.EquipmentNumber)
	if rule == nil {
		return 0, fmt.Errorf("equipment %s not found in rules", meta.EquipmentNumber)
	}
	pmtNumber := meta.PMTNumber
	if pmtNumber == "" {
		pmtNumber = rule.PMTNumber
	}
	log = log.With(zap.String("equipment_number", rule.Number))

	data, err := s.storage.ReadAll(e.PDFURL)
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF: %v", err)
	}
	pages, err := s.pages.Pages(data)
	if err != nil {
		return 0, fmt.Errorf("failed to convert PDF: %v", err)
	}
	if err := s.update(ctx, e, map[string]interface{}{"total_pages": len(pages)}); err != nil {
		return 0, err
	}

	result, err := s.firstPass(ctx, e, rule, pmtNumber, pages, log)
	if err != nil {
		return 0, err
	}

	completeness, missing := s.rules.Completeness(rule.Number, result)
	for pass := 1; pass <= s.opts.MaxRetryPasses && completeness < s.opts.CompletenessThreshold; pass++ {
		log.Info("完整度不足，重试缺失字段",
			zap.Int("pass", pass+1),
			zap.Float64("completeness", completeness),
			zap.Any("missing", missing),
		)
		prompt := BuildPrompt(rule, pmtNumber, s.rules, missing)
		for i, text := range pages {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			page, err := s.extractPage(ctx, prompt, text)
			if err != nil {
				log.Warn("重试页面提取失败", zap.Int("pass", pass+1), zap.Int("page", i+1), zap.Error(err))
				continue
			}
			result.Merge(page, true)
		}
		completeness, missing = s.rules.Completeness(rule.Number, result)
	}
	if len(missing) > 0 {
		log.Warn("仍有字段缺失", zap.Float64("completeness", completeness), zap.Any("missing", missing))
	}

	extracted := result.ToEquipment(rule.Number, pmtNumber, rule.Description)
	extracted.ExtractionID = e.ID
	if _, err := s.equipment.Upsert(ctx, e.CreatedBy, e.WorkID, extracted); err != nil {
		return 0, fmt.Errorf("failed to store data: %w", err)
	}
	return completeness, nil
}

// firstPass 逐页提取并推进进度，完整度达到阈值即提前结束
func (s *Service) firstPass(ctx context.Context, e *models.Extraction, rule *EquipmentRule, pmtNumber string, pages []string, log *zap.Logger) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "Extraction.FirstPass", trace.WithAttributes(attribute.Int("pages", len(pages))))
	defer span.End()

	prompt := BuildPrompt(rule, pmtNumber, s.rules, nil)
	var result *Result
	for i, text := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := s.extractPage(ctx, prompt, text)
		switch {
		case err != nil:
			log.Warn("页面提取失败", zap.Int("page", i+1), zap.Int("total", len(pages)), zap.Error(err))
		case len(page.Components) > 0:
			if result == nil {
				result = page
			} else {
				result.Merge(page, false)
			}
		}

		processed := i + 1
		metrics.ExtractionPagesProcessed.Inc()
		if result != nil {
			completeness, _ := s.rules.Completeness(rule.Number, result)
			log.Debug("页面已提取", zap.Int("page", processed), zap.Float64("completeness", completeness))
			if completeness >= s.opts.CompletenessThreshold {
				processed = len(pages)
			}
		}
		if err := s.update(ctx, e, map[string]interface{}{"processed_pages": processed}); err != nil {
			return nil, err
		}
		if processed == len(pages) {
			break
		}
	}

	if result == nil {
		return nil, errors.New(errNoPass1Data)
	}
	return result, nil
}

func (s *Service) extractPage(ctx context.Context, prompt, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("页面没有可识别的文本")
	}
	resp, err := s.extractor.ExtractPage(ctx, prompt, text)
	if err != nil {
		return nil, err
	}
	return ParseResponse(resp)
}

// update 没有命中任何行说明任务已随项目删除
func (s *Service) update(ctx context.Context, e *models.Extraction, changes map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(e).Updates(changes)
	if res.Error != nil {
		return fmt.Errorf("更新提取任务失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrExtractionNotFound.Withf("%d 已被删除", e.ID)
	}
	return nil
}

// requeue 取消后退回 pending，重新投递时从头执行
func (s *Service) requeue(ctx context.Context, e *models.Extraction) {
	err := s.update(ctx, e, map[string]interface{}{
		"status":          models.ExtractionPending,
		"processed_pages": 0,
		"error_message":   "",
	})
	if err != nil {
		s.logger.Warn("提取任务退回待处理失败", zap.Uint("extraction_id", e.ID), zap.Error(err))
	}
}

// finish 写入终态并记录 status_changed
func (s *Service) finish(ctx context.Context, e *models.Extraction, status models.ExtractionStatus, message string) {
	changes := map[string]interface{}{"status": status, "error_message": message}
	if status == models.ExtractionCompleted {
		now := time.Now().UTC()
		changes["completed_at"] = &now
	}
	if err := s.update(ctx, e, changes); err != nil {
		if errors.Is(err, ErrExtractionNotFound) {
			s.logger.Warn("提取任务已删除，跳过终态写入", zap.Uint("extraction_id", e.ID))
			return
		}
		s.logger.Error("写入提取任务终态失败", zap.Uint("extraction_id", e.ID), zap.Error(err))
		return
	}
	metrics.ExtractionsTotal.WithLabelValues(string(status)).Inc()

	data := map[string]interface{}{"work_id": e.WorkID, "status": string(status)}
	if message != "" {
		data["error_message"] = message
	}
	s.recorder.Record(ctx, activity.Entry{
		UserID:     e.CreatedBy,
		EntityType: models.EntityExtraction,
		EntityID:   e.ID,
		Action:     models.ActionStatusChanged,
		WorkID:     e.WorkID,
		Data:       data,
	})
}
