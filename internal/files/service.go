// Package files 报告文件版本登记
package files

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

var (
	ErrFileNotFound    = common.NewBusinessError(common.CodeFileNotFound, "文件不存在")
	ErrInvalidFileType = common.NewBusinessError(common.CodeInvalidFileType, "无效的文件类型")
	ErrVersionConflict = common.NewBusinessError(common.CodeConflict, "版本号冲突，请重试")
)

// registerAttempts 并发登记撞上唯一索引时的最大尝试次数
const registerAttempts = 3

// WorkAuthorizer 项目权限校验
type WorkAuthorizer interface {
	Authorize(ctx context.Context, actor auth.Actor, workID uint, min models.CollaboratorRole) (*models.Work, error)
}

// RegisterInput 登记文件参数
type RegisterInput struct {
	FileType models.FileType `json:"file_type" binding:"required"`
	FileURL  string          `json:"file_url" binding:"required"`
}

// Service 报告文件服务
type Service struct {
	db       *gorm.DB
	works    WorkAuthorizer
	recorder activity.Recorder
	logger   *zap.Logger
}

// NewService 创建报告文件服务
func NewService(db *gorm.DB, works WorkAuthorizer, recorder activity.Recorder, logger *zap.Logger) *Service {
	return &Service{db: db, works: works, recorder: recorder, logger: logger}
}

// Register 登记一个新版本，版本号按 (项目, 类型) 递增
func (s *Service) Register(ctx context.Context, actor auth.Actor, workID uint, in RegisterInput) (*models.File, error) {
	if !in.FileType.Valid() {
		return nil, ErrInvalidFileType.Withf("%s", in.FileType)
	}
	url := strings.TrimSpace(in.FileURL)
	if url == "" {
		return nil, common.ErrInvalidRequest.Withf("文件地址不能为空")
	}
	if _, err := s.works.Authorize(ctx, actor, workID, models.RoleEditor); err != nil {
		return nil, err
	}

	var f *models.File
	var err error
	for attempt := 1; attempt <= registerAttempts; attempt++ {
		f = &models.File{WorkID: workID, CreatedBy: actor.UserID, FileType: in.FileType, FileURL: url}
		err = s.insertNextVersion(ctx, f)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		s.logger.Warn("文件版本号冲突",
			zap.Uint("work_id", workID),
			zap.String("file_type", string(in.FileType)),
			zap.Int("version_number", f.VersionNumber),
			zap.Int("attempt", attempt))
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrVersionConflict.Withf("work %d %s", workID, in.FileType)
	}
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, activity.Entry{
		UserID:     actor.UserID,
		EntityType: models.EntityFile,
		EntityID:   f.ID,
		Action:     models.ActionCreated,
		WorkID:     workID,
		Data: map[string]interface{}{
			"work_id":        workID,
			"file_type":      string(f.FileType),
			"version_number": f.VersionNumber,
		},
	})
	return f, nil
}

// insertNextVersion 锁定项目行后分配下一个版本号。已删除的版本也参与计算，版本号不复用
func (s *Service) insertNextVersion(ctx context.Context, f *models.File) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var w models.Work
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&w, f.WorkID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.ErrWorkNotFound.Withf("work %d", f.WorkID)
		}
		if err != nil {
			return fmt.Errorf("锁定项目失败: %w", err)
		}

		var current int
		if err := tx.Unscoped().Model(&models.File{}).
			Where("work_id = ? AND file_type = ?", f.WorkID, f.FileType).
			Select("COALESCE(MAX(version_number), 0)").
			Scan(&current).Error; err != nil {
			return fmt.Errorf("查询版本号失败: %w", err)
		}
		f.VersionNumber = current + 1
		if err := tx.Create(f).Error; err != nil {
			return fmt.Errorf("登记文件失败: %w", err)
		}
		return nil
	})
}

// List 列出项目文件，新版本在前
func (s *Service) List(ctx context.Context, actor auth.Actor, workID uint, fileType models.FileType) ([]models.File, error) {
	if fileType != "" && !fileType.Valid() {
		return nil, ErrInvalidFileType.Withf("%s", fileType)
	}
	if _, err := s.works.Authorize(ctx, actor, workID, models.RoleViewer); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Where("work_id = ?", workID)
	if fileType != "" {
		q = q.Where("file_type = ?", fileType)
	}
	var list []models.File
	if err := q.Order("file_type ASC").Order("version_number DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("查询文件失败: %w", err)
	}
	return list, nil
}

// Latest 指定类型的最新版本
func (s *Service) Latest(ctx context.Context, actor auth.Actor, workID uint, fileType models.FileType) (*models.File, error) {
	if !fileType.Valid() {
		return nil, ErrInvalidFileType.Withf("%s", fileType)
	}
	if _, err := s.works.Authorize(ctx, actor, workID, models.RoleViewer); err != nil {
		return nil, err
	}

	var f models.File
	err := s.db.WithContext(ctx).
		Where("work_id = ? AND file_type = ?", workID, fileType).
		Order("version_number DESC").
		First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询文件失败: %w", err)
	}
	return &f, nil
}

// Delete 软删除文件记录，版本号保留占位
func (s *Service) Delete(ctx context.Context, actor auth.Actor, fileID uint) error {
	var f models.File
	if err := s.db.WithContext(ctx).First(&f, fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFileNotFound
		}
		return fmt.Errorf("查询文件失败: %w", err)
	}
	if _, err := s.works.Authorize(ctx, actor, f.WorkID, models.RoleEditor); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&f).Error; err != nil {
		return fmt.Errorf("删除文件失败: %w", err)
	}

	s.recorder.Record(ctx, activity.Entry{
		UserID:     actor.UserID,
		EntityType: models.EntityFile,
		EntityID:   f.ID,
		Action:     models.ActionDeleted,
		WorkID:     f.WorkID,
		Data: map[string]interface{}{
			"file_type":      string(f.FileType),
			"version_number": f.VersionNumber,
		},
	})
	s.logger.Info("文件已删除", zap.Uint("file_id", f.ID), zap.Uint("work_id", f.WorkID))
	return nil
}
