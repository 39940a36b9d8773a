// Package extraction PDF 设备数据提取：上传、排队、多轮 AI 提取与进度查询
package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"autorbi/internal/activity"
	"autorbi/internal/ai"
	"autorbi/internal/auth"
	"autorbi/internal/common"
	"autorbi/internal/config"
	"autorbi/internal/equipment"
	"autorbi/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrExtractionNotFound = common.ErrExtractionNotFound
	ErrInvalidPDF         = common.NewBusinessError(common.CodeInvalidPDF, "只支持 PDF 文件")
	ErrEnqueueFailed      = common.NewBusinessError(common.CodeEnqueueFailed, "提取任务排队失败")
)

// WorkAuthorizer 项目权限校验
type WorkAuthorizer interface {
	Authorize(ctx context.Context, actor auth.Actor, workID uint, min models.CollaboratorRole) (*models.Work, error)
}

// EquipmentWriter 提取结果写回
type EquipmentWriter interface {
	Upsert(ctx context.Context, userID, workID uint, data equipment.ExtractedEquipment) (*equipment.UpsertResult, error)
}

// Storage 上传文件存储
type Storage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, int64, error)
	ReadAll(key string) ([]byte, error)
	Remove(key string) error
}

// Enqueuer 提取任务入队
type Enqueuer interface {
	EnqueueExtraction(ctx context.Context, extractionID uint) error
}

// Options 提取参数
type Options struct {
	CompletenessThreshold float64
	MaxRetryPasses        int
}

// OptionsFromConfig 从配置构造提取参数
func OptionsFromConfig(cfg config.ExtractionConfig) Options {
	return Options{CompletenessThreshold: cfg.CompletenessThreshold, MaxRetryPasses: cfg.MaxRetryPasses}
}

// Deps 提取服务依赖
type Deps struct {
	DB        *gorm.DB
	Works     WorkAuthorizer
	Equipment EquipmentWriter
	Storage   Storage
	Queue     Enqueuer
	Extractor ai.Extractor
	Pages     PageReader
	Rules     *Rules
	Recorder  activity.Recorder
	Logger    *zap.Logger
}

// Service 提取服务
type Service struct {
	db        *gorm.DB
	works     WorkAuthorizer
	equipment EquipmentWriter
	storage   Storage
	queue     Enqueuer
	extractor ai.Extractor
	pages     PageReader
	rules     *Rules
	recorder  activity.Recorder
	logger    *zap.Logger
	opts      Options
	tracer    trace.Tracer
}

// NewService 创建提取服务
func NewService(deps Deps, opts Options) *Service {
	if opts.CompletenessThreshold <= 0 {
		opts.CompletenessThreshold = 85
	}
	if opts.MaxRetryPasses < 0 {
		opts.MaxRetryPasses = 0
	}
	if deps.Pages == nil {
		deps.Pages = TextPageReader{}
	}
	if deps.Rules == nil {
		deps.Rules = DefaultRules()
	}
	return &Service{
		db:        deps.DB,
		works:     deps.Works,
		equipment: deps.Equipment,
		storage:   deps.Storage,
		queue:     deps.Queue,
		extractor: deps.Extractor,
		pages:     deps.Pages,
		rules:     deps.Rules,
		recorder:  deps.Recorder,
		logger:    deps.Logger,
		opts:      opts,
		tracer:    otel.Tracer("autorbi/internal/extraction"),
	}
}

// Start 保存上传的 PDF、创建待处理任务并入队，立即返回
func (s *Service) Start(ctx context.Context, actor auth.Actor, workID uint, filename string, r io.Reader) (*models.Extraction, error) {
	filename = path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return nil, ErrInvalidPDF.Withf("%s", filename)
	}
	if _, err := s.works.Authorize(ctx, actor, workID, models.RoleEditor); err != nil {
		return nil, err
	}

	key, size, err := s.storage.Save(ctx, filename, r)
	if err != nil {
		return nil, err
	}

	e := &models.Extraction{
		WorkID:           workID,
		CreatedBy:        actor.UserID,
		Status:           models.ExtractionPending,
		PDFURL:           key,
		OriginalFilename: filename,
	}
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		if rmErr := s.storage.Remove(key); rmErr != nil {
			s.logger.Warn("清理上传文件失败", zap.String("key", key), zap.Error(rmErr))
		}
		return nil, fmt.Errorf("创建提取任务失败: %w", err)
	}

	s.recorder.Record(ctx, activity.Entry{
		UserID:     actor.UserID,
		EntityType: models.EntityExtraction,
		EntityID:   e.ID,
		Action:     models.ActionUploaded,
		WorkID:     workID,
		Data:       map[string]interface{}{"work_id": workID, "filename": filename, "size": size},
	})

	if err := s.queue.EnqueueExtraction(ctx, e.ID); err != nil {
		s.logger.Error("提取任务入队失败", zap.Uint("extraction_id", e.ID), zap.Error(err))
		s.finish(context.WithoutCancel(ctx), e, models.ExtractionFailed, "排队失败: "+err.Error())
		return nil, ErrEnqueueFailed.Withf("%v", err)
	}

	s.logger.Info("提取任务已创建",
		zap.Uint("extraction_id", e.ID),
		zap.Uint("work_id", workID),
		zap.String("filename", filename),
		zap.Int64("size", size),
	)
	return e, nil
}

// Status 查询单个任务进度
func (s *Service) Status(ctx context.Context, actor auth.Actor, extractionID uint) (*StatusView, error) {
	e, err := s.load(ctx, extractionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.works.Authorize(ctx, actor, e.WorkID, models.RoleViewer); err != nil {
		return nil, err
	}
	v := NewStatusView(e)
	return &v, nil
}

// Latest 项目最近一次提取任务
func (s *Service) Latest(ctx context.Context, actor auth.Actor, workID uint) (*StatusView, error) {
	if _, err := s.works.Authorize(ctx, actor, workID, models.RoleViewer); err != nil {
		return nil, err
	}
	var e models.Extraction
	err := s.db.WithContext(ctx).Where("work_id = ?", workID).
		Order("created_at DESC").Order("id DESC").First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrExtractionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询提取任务失败: %w", err)
	}
	v := NewStatusView(&e)
	return &v, nil
}

// ListByWork 项目下全部提取任务，新任务在前
func (s *Service) ListByWork(ctx context.Context, actor auth.Actor, workID uint) ([]StatusView, error) {
	if _, err := s.works.Authorize(ctx, actor, workID, models.RoleViewer); err != nil {
		return nil, err
	}
	var list []models.Extraction
	if err := s.db.WithContext(ctx).Where("work_id = ?", workID).
		Order("created_at DESC").Order("id DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("查询提取任务失败: %w", err)
	}
	views := make([]StatusView, 0, len(list))
	for i := range list {
		views = append(views, NewStatusView(&list[i]))
	}
	return views, nil
}

// Progress 汇总多个任务的进度，任一任务不存在或无权限即返回错误
func (s *Service) Progress(ctx context.Context, actor auth.Actor, ids []uint) (*Progress, []StatusView, error) {
	if len(ids) == 0 {
		return nil, nil, common.ErrInvalidRequest.Withf("ids 不能为空")
	}
	views := make([]StatusView, 0, len(ids))
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		v, err := s.Status(ctx, actor, id)
		if err != nil {
			return nil, nil, err
		}
		views = append(views, *v)
	}
	p := Aggregate(views)
	return &p, views, nil
}

func (s *Service) load(ctx context.Context, id uint) (*models.Extraction, error) {
	var e models.Extraction
	if err := s.db.WithContext(ctx).First(&e, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExtractionNotFound
		}
		return nil, fmt.Errorf("查询提取任务失败: %w", err)
	}
	return &e, nil
}
