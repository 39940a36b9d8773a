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

var adminSortColumns = map[string]string{
	"created_at": "works.created_at",
	"name":       "works.name",
	"status":     "works.status",
}

// AdminListQuery 管理员项目列表查询
type AdminListQuery struct {
	common.PaginationRequest
	Status    models.WorkStatus `form:"status"`
	UserID    uint              `form:"user_id"`
	SortBy    string            `form:"sort_by"`
	SortOrder string            `form:"sort_order"`
}

// Member 项目成员简要信息
type Member struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
}

// AdminWorkView 项目及其所有者
type AdminWorkView struct {
	models.Work
	Owners []Member `json:"owners"`
}

// UserWorkView 某用户参与的项目及其角色
type UserWorkView struct {
	models.Work
	Role models.CollaboratorRole `json:"role"`
}

// AssignInput 转移项目所有权
type AssignInput struct {
	WorkID uint `json:"work_id" binding:"required"`
	UserID uint `json:"user_id" binding:"required"`
}

// AssignResult 所有权转移结果
type AssignResult struct {
	WorkID         uint   `json:"work_id"`
	UserID         uint   `json:"user_id"`
	PreviousOwners []uint `json:"previous_owners"`
}

func requireAdmin(actor auth.Actor) error {
	if !actor.IsAdmin() {
		return common.ErrForbidden.Withf("仅管理员可操作")
	}
	return nil
}

// AdminList 列出全部项目，可按状态、参与用户过滤并排序
func (s *Service) AdminList(ctx context.Context, actor auth.Actor, q AdminListQuery) ([]AdminWorkView, int64, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, 0, err
	}
	column, ok := adminSortColumns[q.SortBy]
	if q.SortBy == "" {
		column, ok = adminSortColumns["created_at"], true
	}
	if !ok {
		return nil, 0, common.ErrInvalidRequest.Withf("不支持的排序字段: %s", q.SortBy)
	}
	dir := "DESC"
	switch strings.ToLower(q.SortOrder) {
	case "", "desc":
	case "asc":
		dir = "ASC"
	default:
		return nil, 0, common.ErrInvalidRequest.Withf("无效的排序方向: %s", q.SortOrder)
	}

	query := s.db.WithContext(ctx).Model(&models.Work{})
	if q.Status != "" {
		if !q.Status.Valid() {
			return nil, 0, common.ErrInvalidRequest.Withf("无效的项目状态: %s", q.Status)
		}
		query = query.Where("works.status = ?", q.Status)
	}
	if q.UserID != 0 {
		query = query.Where("works.id IN (?)",
			s.db.WithContext(ctx).Model(&models.WorkCollaborator{}).Select("work_id").Where("user_id = ?", q.UserID))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计项目失败: %w", err)
	}
	var works []models.Work
	err := query.Order(column + " " + dir).Order("works.id " + dir).
		Offset(q.GetOffset()).Limit(q.GetPageSize()).
		Find(&works).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询项目列表失败: %w", err)
	}

	owners, err := s.ownersOf(ctx, works)
	if err != nil {
		return nil, 0, err
	}
	views := make([]AdminWorkView, len(works))
	for i, w := range works {
		views[i] = AdminWorkView{Work: w, Owners: owners[w.ID]}
		if views[i].Owners == nil {
			views[i].Owners = []Member{}
		}
	}
	return views, total, nil
}

func (s *Service) ownersOf(ctx context.Context, works []models.Work) (map[uint][]Member, error) {
	if len(works) == 0 {
		return nil, nil
	}
	ids := make([]uint, len(works))
	for i, w := range works {
		ids[i] = w.ID
	}
	var rows []struct {
		WorkID   uint
		UserID   uint
		Username string
	}
	err := s.db.WithContext(ctx).
		Table("work_collaborators AS wc").
		Select("wc.work_id, wc.user_id, u.username").
		Joins("LEFT JOIN users AS u ON u.id = wc.user_id").
		Where("wc.work_id IN ? AND wc.role = ?", ids, models.RoleOwner).
		Order("wc.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询项目所有者失败: %w", err)
	}
	out := make(map[uint][]Member, len(works))
	for _, r := range rows {
		out[r.WorkID] = append(out[r.WorkID], Member{UserID: r.UserID, Username: r.Username})
	}
	return out, nil
}

// ListForUser 列出某用户参与的项目，用户不存在时返回 ErrUserNotFound
func (s *Service) ListForUser(ctx context.Context, actor auth.Actor, userID uint, q ListQuery) ([]UserWorkView, int64, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, 0, err
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return nil, 0, fmt.Errorf("查询用户失败: %w", err)
	}
	if n == 0 {
		return nil, 0, ErrUserNotFound.Withf("ID %d", userID)
	}

	query := s.db.WithContext(ctx).
		Table("works").
		Joins("JOIN work_collaborators AS wc ON wc.work_id = works.id").
		Where("wc.user_id = ?", userID)
	if q.Status != "" {
		if !q.Status.Valid() {
			return nil, 0, common.ErrInvalidRequest.Withf("无效的项目状态: %s", q.Status)
		}
		query = query.Where("works.status = ?", q.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计项目失败: %w", err)
	}
	var views []UserWorkView
	err := query.Select("works.*, wc.role").
		Order("works.created_at DESC").Order("works.id DESC").
		Offset(q.GetOffset()).Limit(q.GetPageSize()).
		Scan(&views).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询项目列表失败: %w", err)
	}
	return views, total, nil
}

// Assign 将项目所有权转给指定用户，原所有者降为 editor
func (s *Service) Assign(ctx context.Context, actor auth.Actor, in AssignInput) (*AssignResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	result := &AssignResult{WorkID: in.WorkID, UserID: in.UserID, PreviousOwners: []uint{}}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&models.Work{}, in.WorkID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.ErrWorkNotFound
			}
			return fmt.Errorf("锁定项目失败: %w", err)
		}

		var target models.User
		if err := tx.First(&target, in.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound.Withf("ID %d", in.UserID)
			}
			return fmt.Errorf("查询用户失败: %w", err)
		}
		if !target.IsActive {
			return common.ErrInvalidRequest.Withf("用户 %s 已停用", target.Username)
		}

		if err := tx.Model(&models.WorkCollaborator{}).
			Where("work_id = ? AND role = ? AND user_id <> ?", in.WorkID, models.RoleOwner, in.UserID).
			Pluck("user_id", &result.PreviousOwners).Error; err != nil {
			return fmt.Errorf("查询项目所有者失败: %w", err)
		}
		if len(result.PreviousOwners) > 0 {
			if err := tx.Model(&models.WorkCollaborator{}).
				Where("work_id = ? AND user_id IN ?", in.WorkID, result.PreviousOwners).
				Update("role", models.RoleEditor).Error; err != nil {
				return fmt.Errorf("调整原所有者失败: %w", err)
			}
		}

		var c models.WorkCollaborator
		err := findCollaborator(tx, in.WorkID, in.UserID, &c)
		switch {
		case errors.Is(err, ErrCollaboratorNotFound):
			c = models.WorkCollaborator{WorkID: in.WorkID, UserID: in.UserID, Role: models.RoleOwner}
			if err := tx.Create(&c).Error; err != nil {
				return fmt.Errorf("添加所有者失败: %w", err)
			}
		case err != nil:
			return err
		case c.Role != models.RoleOwner:
			if err := tx.Model(&c).Update("role", models.RoleOwner).Error; err != nil {
				return fmt.Errorf("更新所有者失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, activity.Entry{
		UserID:     actor.UserID,
		EntityType: models.EntityWork,
		EntityID:   in.WorkID,
		Action:     models.ActionUpdated,
		WorkID:     in.WorkID,
		Data: map[string]interface{}{
			"owner_assigned":  in.UserID,
			"previous_owners": result.PreviousOwners,
		},
	})
	s.logger.Info("项目所有权已转移",
		zap.Uint("work_id", in.WorkID),
		zap.Uint("user_id", in.UserID),
		zap.Uints("previous_owners", result.PreviousOwners),
		zap.Uint("admin_id", actor.UserID))
	return result, nil
}
