// Package user 个人资料与管理员账号管理
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"autorbi/internal/auth"
	"autorbi/internal/common"
	"autorbi/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrSelfOperation   = common.NewBusinessError(common.CodeInvalidRequest, "不能对自己的账号执行该操作")
	ErrAlreadyInactive = common.NewBusinessError(common.CodeConflict, "用户已停用")
	ErrAlreadyActive   = common.NewBusinessError(common.CodeConflict, "用户已处于启用状态")
	ErrEmailExists     = common.NewBusinessError(common.CodeConflict, "邮箱已被使用")
	ErrSoleOwner       = common.NewBusinessError(common.CodeLastOwner, "用户仍是项目的唯一所有者，请先转移所有权")
)

// ListQuery 用户列表查询
type ListQuery struct {
	common.PaginationRequest
	Role   models.UserRole `form:"role"`
	Active *bool           `form:"is_active"`
}

// UpdateInput 管理员修改用户，nil 字段不修改
type UpdateInput struct {
	FullName *string          `json:"full_name" binding:"omitempty,max=100"`
	Email    *string          `json:"email" binding:"omitempty,email"`
	Role     *models.UserRole `json:"role"`
}

// ProfileInput 用户修改自己的资料；用户名、邮箱与角色只能由管理员修改
type ProfileInput struct {
	FullName *string `json:"full_name" binding:"omitempty,max=100"`
}

// Service 用户服务
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService 创建用户服务
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Lookup 按 ID 读取用户，供认证中间件校验账号状态
func (s *Service) Lookup(ctx context.Context, id uint) (*models.User, error) {
	return s.find(s.db.WithContext(ctx), id)
}

func (s *Service) find(db *gorm.DB, id uint) (*models.User, error) {
	var u models.User
	if err := db.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrUserNotFound.Withf("ID %d", id)
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &u, nil
}

func requireAdmin(actor auth.Actor) error {
	if !actor.IsAdmin() {
		return common.ErrForbidden.Withf("仅管理员可操作")
	}
	return nil
}

// Me 当前用户资料
func (s *Service) Me(ctx context.Context, actor auth.Actor) (*models.User, error) {
	return s.Lookup(ctx, actor.UserID)
}

// UpdateMe 修改当前用户资料
func (s *Service) UpdateMe(ctx context.Context, actor auth.Actor, in ProfileInput) (*models.User, error) {
	u, err := s.Lookup(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if in.FullName == nil {
		return u, nil
	}
	name := strings.TrimSpace(*in.FullName)
	if name == u.FullName {
		return u, nil
	}
	if err := s.db.WithContext(ctx).Model(u).Update("full_name", name).Error; err != nil {
		return nil, fmt.Errorf("更新用户资料失败: %w", err)
	}
	return s.Lookup(ctx, u.ID)
}

// List 用户列表，仅管理员
func (s *Service) List(ctx context.Context, actor auth.Actor, q ListQuery) ([]models.User, int64, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, 0, err
	}
	query := s.db.WithContext(ctx).Model(&models.User{})
	if q.Role != "" {
		if !q.Role.Valid() {
			return nil, 0, common.ErrInvalidRequest.Withf("无效的角色: %s", q.Role)
		}
		query = query.Where("role = ?", q.Role)
	}
	if q.Active != nil {
		query = query.Where("is_active = ?", *q.Active)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计用户失败: %w", err)
	}
	var users []models.User
	if err := query.Order("id ASC").Offset(q.GetOffset()).Limit(q.GetPageSize()).Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("查询用户列表失败: %w", err)
	}
	return users, total, nil
}

// Get 用户详情，管理员或本人可见
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uint) (*models.User, error) {
	if !actor.IsAdmin() && actor.UserID != id {
		return nil, common.ErrForbidden.Withf("只能查看自己的资料")
	}
	return s.Lookup(ctx, id)
}

// Update 管理员修改用户资料与角色，不能修改自己的角色
func (s *Service) Update(ctx context.Context, actor auth.Actor, id uint, in UpdateInput) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	u, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := make(map[string]interface{})
	if in.FullName != nil {
		if name := strings.TrimSpace(*in.FullName); name != u.FullName {
			changes["full_name"] = name
		}
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email != u.Email {
			var n int64
			if err := s.db.WithContext(ctx).Model(&models.User{}).
				Where("email = ? AND id <> ?", email, id).Count(&n).Error; err != nil {
				return nil, fmt.Errorf("校验邮箱失败: %w", err)
			}
			if n > 0 {
				return nil, ErrEmailExists
			}
			changes["email"] = email
		}
	}
	if in.Role != nil && *in.Role != u.Role {
		if !in.Role.Valid() {
			return nil, common.ErrInvalidRequest.Withf("无效的角色: %s", *in.Role)
		}
		if id == actor.UserID {
			return nil, ErrSelfOperation
		}
		changes["role"] = *in.Role
	}
	if len(changes) == 0 {
		return u, nil
	}

	if err := s.db.WithContext(ctx).Model(u).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("更新用户失败: %w", err)
	}
	s.logger.Info("用户已更新", zap.Uint("user_id", id), zap.Uint("admin_id", actor.UserID), zap.Any("changes", changes))
	return s.Lookup(ctx, id)
}

// Delete 删除用户及其协作关系，活动记录保留。
// 用户仍是某项目唯一所有者时拒绝删除
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uint) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if id == actor.UserID {
		return ErrSelfOperation
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.find(tx, id); err != nil {
			return err
		}

		var soleOwned int64
		others := tx.Table("work_collaborators AS o").Select("1").
			Where("o.work_id = wc.work_id AND o.role = ? AND o.user_id <> wc.user_id", models.RoleOwner)
		if err := tx.Table("work_collaborators AS wc").
			Where("wc.user_id = ? AND wc.role = ?", id, models.RoleOwner).
			Where("NOT EXISTS (?)", others).
			Count(&soleOwned).Error; err != nil {
			return fmt.Errorf("检查项目所有权失败: %w", err)
		}
		if soleOwned > 0 {
			return ErrSoleOwner.Withf("%d 个项目", soleOwned)
		}

		if err := tx.Where("user_id = ?", id).Delete(&models.WorkCollaborator{}).Error; err != nil {
			return fmt.Errorf("删除协作关系失败: %w", err)
		}
		if err := tx.Delete(&models.User{}, id).Error; err != nil {
			return fmt.Errorf("删除用户失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("用户已删除", zap.Uint("user_id", id), zap.Uint("admin_id", actor.UserID))
	return nil
}

// Deactivate 停用账号，数据保留但无法再访问接口
func (s *Service) Deactivate(ctx context.Context, actor auth.Actor, id uint) (*models.User, error) {
	return s.setActive(ctx, actor, id, false)
}

// Reactivate 重新启用账号
func (s *Service) Reactivate(ctx context.Context, actor auth.Actor, id uint) (*models.User, error) {
	return s.setActive(ctx, actor, id, true)
}

func (s *Service) setActive(ctx context.Context, actor auth.Actor, id uint, active bool) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if id == actor.UserID && !active {
		return nil, ErrSelfOperation
	}
	u, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.IsActive == active {
		if active {
			return nil, ErrAlreadyActive
		}
		return nil, ErrAlreadyInactive
	}

	if err := s.db.WithContext(ctx).Model(u).Update("is_active", active).Error; err != nil {
		return nil, fmt.Errorf("更新用户状态失败: %w", err)
	}
	s.logger.Info("用户状态已变更", zap.Uint("user_id", id), zap.Bool("is_active", active), zap.Uint("admin_id", actor.UserID))
	return s.Lookup(ctx, id)
}
