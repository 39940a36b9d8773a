package work

import (
	"context"
	"errors"
	"fmt"

	"autorbi/internal/activity"
	"autorbi/internal/auth"
	"autorbi/internal/common"
	"autorbi/internal/models"

	"gorm.io/gorm"
)

// CollaboratorInput 添加/修改协作者参数
type CollaboratorInput struct {
	UserID uint                    `json:"user_id" binding:"required"`
	Role   models.CollaboratorRole `json:"role" binding:"required"`
}

// CollaboratorView 协作者及其用户信息
type CollaboratorView struct {
	models.WorkCollaborator
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// ListCollaborators 列出项目协作者
func (s *Service) ListCollaborators(ctx context.Context, actor auth.Actor, workID uint) ([]CollaboratorView, error) {
	if _, err := s.Authorize(ctx, actor, workID, models.RoleViewer); err != nil {
		return nil, err
	}

	var views []CollaboratorView
	err := s.db.WithContext(ctx).
		Table("work_collaborators AS wc").
		Select("wc.*, u.username, u.full_name").
		Joins("LEFT JOIN users AS u ON u.id = wc.user_id").
		Where("wc.work_id = ?", workID).
		Order("wc.id ASC").
		Scan(&views).Error
	if err != nil {
		return nil, fmt.Errorf("查询协作者失败: %w", err)
	}
	return views, nil
}

// AddCollaborator 添加协作者，仅所有者可操作
func (s *Service) AddCollaborator(ctx context.Context, actor auth.Actor, workID uint, in CollaboratorInput) (*models.WorkCollaborator, error) {
	if _, err := s.Authorize(ctx, actor, workID, models.RoleOwner); err != nil {
		return nil, err
	}
	if !in.Role.Valid() {
		return nil, common.ErrInvalidRequest.Withf("无效的协作者角色: %s", in.Role)
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, in.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}

	existing, err := s.roleOf(ctx, workID, in.UserID)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return nil, ErrCollaboratorExists
	}

	c := &models.WorkCollaborator{WorkID: workID, UserID: in.UserID, Role: in.Role}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("添加协作者失败: %w", err)
	}

	s.recordCollaborator(ctx, actor, workID, map[string]interface{}{
		"collaborator_added": in.UserID,
		"role":               string(in.Role),
	})
	return c, nil
}

// UpdateCollaborator 修改协作者角色
func (s *Service) UpdateCollaborator(ctx context.Context, actor auth.Actor, workID uint, in CollaboratorInput) (*models.WorkCollaborator, error) {
	if _, err := s.Authorize(ctx, actor, workID, models.RoleOwner); err != nil {
		return nil, err
	}
	if !in.Role.Valid() {
		return nil, common.ErrInvalidRequest.Withf("无效的协作者角色: %s", in.Role)
	}

	var c models.WorkCollaborator
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findCollaborator(tx, workID, in.UserID, &c); err != nil {
			return err
		}
		if c.Role == in.Role {
			return nil
		}
		if c.Role == models.RoleOwner {
			if err := ensureAnotherOwner(tx, workID); err != nil {
				return err
			}
		}
		return tx.Model(&c).Update("role", in.Role).Error
	})
	if err != nil {
		return nil, err
	}

	s.recordCollaborator(ctx, actor, workID, map[string]interface{}{
		"collaborator_updated": in.UserID,
		"role":                 string(in.Role),
	})
	return &c, nil
}

// RemoveCollaborator 移除协作者，项目至少保留一个所有者
func (s *Service) RemoveCollaborator(ctx context.Context, actor auth.Actor, workID, userID uint) error {
	if _, err := s.Authorize(ctx, actor, workID, models.RoleOwner); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.WorkCollaborator
		if err := findCollaborator(tx, workID, userID, &c); err != nil {
			return err
		}
		if c.Role == models.RoleOwner {
			if err := ensureAnotherOwner(tx, workID); err != nil {
				return err
			}
		}
		return tx.Delete(&c).Error
	})
	if err != nil {
		return err
	}

	s.recordCollaborator(ctx, actor, workID, map[string]interface{}{"collaborator_removed": userID})
	return nil
}

func (s *Service) recordCollaborator(ctx context.Context, actor auth.Actor, workID uint, data map[string]interface{}) {
	s.recorder.Record(ctx, activity.Entry{
		UserID:     actor.UserID,
		EntityType: models.EntityWork,
		EntityID:   workID,
		Action:     models.ActionUpdated,
		WorkID:     workID,
		Data:       data,
	})
}

func findCollaborator(tx *gorm.DB, workID, userID uint, c *models.WorkCollaborator) error {
	err := tx.Where("work_id = ? AND user_id = ?", workID, userID).First(c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrCollaboratorNotFound
	}
	if err != nil {
		return fmt.Errorf("查询协作者失败: %w", err)
	}
	return nil
}

func ensureAnotherOwner(tx *gorm.DB, workID uint) error {
	var owners int64
	if err := tx.Model(&models.WorkCollaborator{}).
		Where("work_id = ? AND role = ?", workID, models.RoleOwner).
		Count(&owners).Error; err != nil {
		return fmt.Errorf("统计所有者失败: %w", err)
	}
	if owners <= 1 {
		return ErrLastOwner
	}
	return nil
}
