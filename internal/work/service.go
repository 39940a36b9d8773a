// Package work 检验项目的增删改查、协作者管理与权限校验
package work

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"autorbi/internal/activity"
	"autorbi/internal/auth"
	"autorbi/internal/common"
	"autorbi/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxNameLength = 100

var (
	ErrLastOwner            = common.NewBusinessError(common.CodeLastOwner, "不能移除或降级最后一个所有者")
	ErrCollaboratorNotFound = common.NewBusinessError(common.CodeCollaboratorNotFound, "协作者不存在")
	ErrCollaboratorExists   = common.NewBusinessError(common.CodeCollaboratorExists, "该用户已是协作者")
	ErrUserNotFound         = common.ErrUserNotFound
)

// CreateInput 创建项目参数
type CreateInput struct {
	Name               string            `json:"name" binding:"required,max=100"`
	Description        string            `json:"description"`
	Status             models.WorkStatus `json:"status"`
	ExcelMasterfileURL string            `json:"excel_masterfile_url"`
	PPTTemplateURL     string            `json:"ppt_template_url"`
}

// UpdateInput 更新项目参数，nil 字段不修改
type UpdateInput struct {
	Name               *string            `json:"name"`
	Description        *string            `json:"description"`
	Status             *models.WorkStatus `json:"status"`
	ExcelMasterfileURL *string            `json:"excel_masterfile_url"`
	PPTTemplateURL     *string            `json:"ppt_template_url"`
}

// ListQuery 项目列表查询
type ListQuery struct {
	common.PaginationRequest
	Status models.WorkStatus `form:"status"`
}

// UploadRemover 删除上传的 PDF
type UploadRemover interface {
	Remove(key string) error
}

// Service 项目服务
type Service struct {
	db       *gorm.DB
	recorder activity.Recorder
	uploads  UploadRemover
	logger   *zap.Logger
}

// Option 项目服务可选项
type Option func(*Service)

// WithUploads 删除项目时一并清理提取任务上传的 PDF
func WithUploads(r UploadRemover) Option {
	return func(s *Service) { s.uploads = r }
}

// NewService 创建项目服务
func NewService(db *gorm.DB, recorder activity.Recorder, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{db: db, recorder: recorder, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize 校验操作人对项目至少拥有 min 角色，管理员不受限
func (s *Service) Authorize(ctx context.Context, actor auth.Actor, workID uint, min models.CollaboratorRole) (*models.Work, error) {
	var w models.Work
	if err := s.db.WithContext(ctx).First(&w, workID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrWorkNotFound
		}
		return nil, fmt.Errorf("查询项目失败: %w", err)
	}
	if actor.IsAdmin() {
		return &w, nil
	}

	role, err := s.roleOf(ctx, workID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if role.Level() < min.Level() {
		return nil, common.ErrForbidden.Withf("需要 %s 及以上权限", min)
	}
	return &w, nil
}

func (s *Service) roleOf(ctx context.Context, workID, userID uint) (models.CollaboratorRole, error) {
	var c models.WorkCollaborator
	err := s.db.WithContext(ctx).Where("work_id = ? AND user_id = ?", workID, userID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("查询协作者失败: %w", err)
	}
	return c.Role, nil
}

// Create 创建项目，创建人自动成为所有者
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*models.Work, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || len([]rune(name)) > maxNameLength {
		return nil, common.ErrInvalidRequest.Withf("项目名称不能为空且不超过 %d 个字符", maxNameLength)
	}
	status := in.Status
	if status == "" {
		status = models.WorkStatusActive
	}
	if !status.Valid() {
		return nil, common.ErrInvalidRequest.Withf("无效的项目状态: %s", status)
	}

	w := &models.Work{
		Name:               name,
		Description:        in.Description,
		Status:             status,
		ExcelMasterfileURL: in.ExcelMasterfileURL,
		PPTTemplateURL:     in.PPTTemplateURL,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(w).Error; err != nil {
			return fmt.Errorf("创建项目失败: %w", err)
		}
		owner := &models.WorkCollaborator{WorkID: w.ID, UserID: actor.UserID, Role: models.RoleOwner}
		if err := tx.Create(owner).Error; err != nil {
			return fmt.Errorf("创建项目所有者失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, activity.Entry{
		UserID:     actor.UserID,
		EntityType: models.EntityWork,
		EntityID:   w.ID,
		Action:     models.ActionCreated,
		WorkID:     w.ID,
		Data:       map[string]interface{}{"name": w.Name, "status": string(w.Status)},
	})
	s.logger.Info("项目已创建", zap.Uint("work_id", w.ID), zap.Uint("user_id", actor.UserID))
	return w, nil
}

// Get 查询项目
func (s *Service) Get(ctx context.Context, actor auth.Actor, workID uint) (*models.Work, error) {
	return s.Authorize(ctx, actor, workID, models.RoleViewer)
}

// List 列出操作人可见的项目
func (s *Service) List(ctx context.Context, actor auth.Actor, q ListQuery) ([]models.Work, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Work{})
	if !actor.IsAdmin() {
		query = query.Where("id IN (?)",
			s.db.WithContext(ctx).Model(&models.WorkCollaborator{}).Select("work_id").Where("user_id = ?", actor.UserID))
	}
	if q.Status != "" {
		if !q.Status.Valid() {
			return nil, 0, common.ErrInvalidRequest.Withf("无效的项目状态: %s", q.Status)
		}
		query = query.Where("status = ?", q.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计项目失败: %w", err)
	}

	var works []models.Work
	err := query.Order("created_at DESC").Order("id DESC").
		Offset(q.GetOffset()).Limit(q.GetPageSize()).
		Find(&works).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询项目列表失败: %w", err)
	}
	return works, total, nil
}

// Update 更新项目，仅状态变化时记录 status_changed
func (s *Service) Update(ctx context.Context, actor auth.Actor, workID uint, in UpdateInput) (*models.Work, error) {
	w, err := s.Authorize(ctx, actor, workID, models.RoleEditor)
	if err != nil {
		return nil, err
	}

	changes := make(map[string]interface{})
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" || len([]rune(name)) > maxNameLength {
			return nil, common.ErrInvalidRequest.Withf("项目名称不能为空且不超过 %d 个字符", maxNameLength)
		}
		if name != w.Name {
			changes["name"] = name
		}
	}
	if in.Description != nil && *in.Description != w.Description {
		changes["description"] = *in.Description
	}
	if in.ExcelMasterfileURL != nil && *in.ExcelMasterfileURL != w.ExcelMasterfileURL {
		changes["excel_masterfile_url"] = *in.ExcelMasterfileURL
	}
	if in.PPTTemplateURL != nil && *in.PPTTemplateURL != w.PPTTemplateURL {
		changes["ppt_template_url"] = *in.PPTTemplateURL
	}
	oldStatus := w.Status
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, common.ErrInvalidRequest.Withf("无效的项目状态: %s", *in.Status)
		}
		if *in.Status != w.Status {
			changes["status"] = *in.Status
		}
	}
	if len(changes) == 0 {
		return w, nil
	}

	if err := s.db.WithContext(ctx).Model(w).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("更新项目失败: %w", err)
	}
	if err := s.db.WithContext(ctx).First(w, w.ID).Error; err != nil {
		return nil, fmt.Errorf("重新加载项目失败: %w", err)
	}

	entry := activity.Entry{
		UserID:     actor.UserID,
		EntityType: models.EntityWork,
		EntityID:   w.ID,
		Action:     models.ActionUpdated,
		WorkID:     w.ID,
		Data:       map[string]interface{}{"changes": stringify(changes)},
	}
	if _, statusChanged := changes["status"]; statusChanged && len(changes) == 1 {
		entry.Action = models.ActionStatusChanged
		entry.Data = map[string]interface{}{"from": string(oldStatus), "to": string(w.Status)}
	}
	s.recorder.Record(ctx, entry)

	return w, nil
}

// Delete 删除项目及其设备、部件、提取任务、报告文件与协作者，活动日志保留
func (s *Service) Delete(ctx context.Context, actor auth.Actor, workID uint) error {
	w, err := s.Authorize(ctx, actor, workID, models.RoleOwner)
	if err != nil {
		return err
	}

	var uploads []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 排他锁定项目行，与提取结果写回互斥
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&models.Work{}, workID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.ErrWorkNotFound
			}
			return fmt.Errorf("锁定项目失败: %w", err)
		}
		if err := tx.Model(&models.Extraction{}).Where("work_id = ? AND pdf_url <> ''", workID).
			Pluck("pdf_url", &uploads).Error; err != nil {
			return fmt.Errorf("查询提取任务文件失败: %w", err)
		}
		equipmentIDs := tx.Model(&models.Equipment{}).Select("id").Where("work_id = ?", workID)
		if err := tx.Where("equipment_id IN (?)", equipmentIDs).Delete(&models.Component{}).Error; err != nil {
			return fmt.Errorf("删除部件失败: %w", err)
		}
		for _, m := range []interface{}{&models.Equipment{}, &models.Extraction{}, &models.File{}, &models.WorkCollaborator{}} {
			if err := tx.Unscoped().Where("work_id = ?", workID).Delete(m).Error; err != nil {
				return fmt.Errorf("删除项目关联数据失败: %w", err)
			}
		}
		if err := tx.Delete(&models.Work{}, workID).Error; err != nil {
			return fmt.Errorf("删除项目失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.removeUploads(workID, uploads)

	s.recorder.Record(ctx, activity.Entry{
		UserID:     actor.UserID,
		EntityType: models.EntityWork,
		EntityID:   workID,
		Action:     models.ActionDeleted,
		WorkID:     workID,
		Data:       map[string]interface{}{"name": w.Name},
	})
	s.logger.Info("项目已删除", zap.Uint("work_id", workID), zap.Uint("user_id", actor.UserID))
	return nil
}

// removeUploads 提交后清理文件，失败只记录日志
func (s *Service) removeUploads(workID uint, keys []string) {
	if s.uploads == nil {
		return
	}
	for _, key := range keys {
		if err := s.uploads.Remove(key); err != nil {
			s.logger.Warn("删除上传文件失败", zap.Uint("work_id", workID), zap.String("key", key), zap.Error(err))
		}
	}
}

func stringify(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}
