// Package equipment 设备与部件管理
package equipment

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
)

var (
	ErrEquipmentNotFound  = common.NewBusinessError(common.CodeEquipmentNotFound, "设备不存在")
	ErrComponentNotFound  = common.NewBusinessError(common.CodeComponentNotFound, "部件不存在")
	ErrDuplicateEquipment = common.NewBusinessError(common.CodeDuplicateEquipment, "设备编号在该项目中已存在")
)

// WorkAuthorizer 项目权限校验
type WorkAuthorizer interface {
	Authorize(ctx context.Context, actor auth.Actor, workID uint, min models.CollaboratorRole) (*models.Work, error)
}

// EquipmentInput 创建设备参数
type EquipmentInput struct {
	WorkID          uint             `json:"work_id" binding:"required"`
	EquipmentNumber string           `json:"equipment_number" binding:"required"`
	PMTNumber       string           `json:"pmt_number"`
	Description     string           `json:"description"`
	Components      []ComponentInput `json:"components"`
}

// EquipmentUpdate 更新设备参数，nil 字段不修改
type EquipmentUpdate struct {
	EquipmentNumber *string `json:"equipment_number"`
	PMTNumber       *string `json:"pmt_number"`
	Description     *string `json:"description"`
}

// BulkResult 批量导入结果
type BulkResult struct {
	Created []models.Equipment `json:"created"`
	Skipped []string           `json:"skipped"`
}

// Service 设备服务
type Service struct {
	db       *gorm.DB
	works    WorkAuthorizer
	recorder activity.Recorder
	logger   *zap.Logger
}

// NewService 创建设备服务
func NewService(db *gorm.DB, works WorkAuthorizer, recorder activity.Recorder, logger *zap.Logger) *Service {
	return &Service{db: db, works: works, recorder: recorder, logger: logger}
}

// Create 创建设备及其部件
func (s *Service) Create(ctx context.Context, actor auth.Actor, in EquipmentInput) (*models.Equipment, error) {
	if _, err := s.works.Authorize(ctx, actor, in.WorkID, models.RoleEditor); err != nil {
		return nil, err
	}

	eq, err := s.createOne(ctx, in)
	if err != nil {
		return nil, err
	}
	s.recordCreated(ctx, actor.UserID, eq)
	return eq, nil
}

func (s *Service) createOne(ctx context.Context, in EquipmentInput) (*models.Equipment, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	var eq *models.Equipment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		eq, err = insertEquipment(tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return eq, nil
}

func validateInput(in EquipmentInput) error {
	if strings.TrimSpace(in.EquipmentNumber) == "" {
		return common.ErrInvalidRequest.Withf("设备编号不能为空")
	}
	for _, c := range in.Components {
		if strings.TrimSpace(c.ComponentName) == "" {
			return common.ErrInvalidRequest.Withf("部件名称不能为空")
		}
	}
	return nil
}

// insertEquipment 在事务内写入设备及部件；唯一索引冲突同样映射为编号重复
func insertEquipment(tx *gorm.DB, in EquipmentInput) (*models.Equipment, error) {
	number := strings.TrimSpace(in.EquipmentNumber)
	if err := ensureUniqueNumber(tx, in.WorkID, number, 0); err != nil {
		return nil, err
	}

	eq := &models.Equipment{
		WorkID:          in.WorkID,
		EquipmentNumber: number,
		PMTNumber:       in.PMTNumber,
		Description:     in.Description,
	}
	if err := tx.Create(eq).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateEquipment.Withf("%s", number)
		}
		return nil, fmt.Errorf("创建设备失败: %w", err)
	}
	for _, c := range in.Components {
		comp := c.toModel(eq.ID)
		if err := tx.Create(&comp).Error; err != nil {
			return nil, fmt.Errorf("创建部件失败: %w", err)
		}
		eq.Components = append(eq.Components, comp)
	}
	return eq, nil
}

// BulkImport 在同一事务中批量导入设备。已存在或批内重复的编号跳过；
// 其余任一条失败则整体回滚，不写入任何设备与活动记录
func (s *Service) BulkImport(ctx context.Context, actor auth.Actor, workID uint, items []EquipmentInput) (*BulkResult, error) {
	if _, err := s.works.Authorize(ctx, actor, workID, models.RoleEditor); err != nil {
		return nil, err
	}
	for i, item := range items {
		if err := validateInput(item); err != nil {
			return nil, fmt.Errorf("第 %d 条设备 %q: %w", i+1, item.EquipmentNumber, err)
		}
	}

	result := &BulkResult{Created: []models.Equipment{}, Skipped: []string{}}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, item := range items {
			item.WorkID = workID
			number := strings.TrimSpace(item.EquipmentNumber)
			if err := ensureUniqueNumber(tx, workID, number, 0); err != nil {
				if errors.Is(err, ErrDuplicateEquipment) {
					result.Skipped = append(result.Skipped, number)
					continue
				}
				return err
			}
			eq, err := insertEquipment(tx, item)
			if err != nil {
				return fmt.Errorf("导入第 %d 条设备 %s 失败: %w", i+1, number, err)
			}
			result.Created = append(result.Created, *eq)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("设备批量导入已回滚", zap.Uint("work_id", workID), zap.Error(err))
		return nil, err
	}

	for i := range result.Created {
		s.recordCreated(ctx, actor.UserID, &result.Created[i])
	}
	s.logger.Info("设备批量导入完成",
		zap.Uint("work_id", workID),
		zap.Int("created", len(result.Created)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// ListByWork 列出项目下的设备（含部件）
func (s *Service) ListByWork(ctx context.Context, actor auth.Actor, workID uint) ([]models.Equipment, error) {
	if _, err := s.works.Authorize(ctx, actor, workID, models.RoleViewer); err != nil {
		return nil, err
	}

	var list []models.Equipment
	err := s.db.WithContext(ctx).
		Preload("Components", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("work_id = ?", workID).
		Order("equipment_number ASC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("查询设备列表失败: %w", err)
	}
	return list, nil
}

// Get 查询设备（含部件）
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uint) (*models.Equipment, error) {
	eq, err := s.load(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if _, err := s.works.Authorize(ctx, actor, eq.WorkID, models.RoleViewer); err != nil {
		return nil, err
	}
	return eq, nil
}

// Update 更新设备基本信息
func (s *Service) Update(ctx context.Context, actor auth.Actor, id uint, in EquipmentUpdate) (*models.Equipment, error) {
	eq, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if _, err := s.works.Authorize(ctx, actor, eq.WorkID, models.RoleEditor); err != nil {
		return nil, err
	}

	changes := make(map[string]interface{})
	if in.EquipmentNumber != nil {
		number := strings.TrimSpace(*in.EquipmentNumber)
		if number == "" {
			return nil, common.ErrInvalidRequest.Withf("设备编号不能为空")
		}
		if number != eq.EquipmentNumber {
			changes["equipment_number"] = number
		}
	}
	if in.PMTNumber != nil && *in.PMTNumber != eq.PMTNumber {
		changes["pmt_number"] = *in.PMTNumber
	}
	if in.Description != nil && *in.Description != eq.Description {
		changes["description"] = *in.Description
	}
	if len(changes) == 0 {
		return s.load(ctx, id, true)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if number, ok := changes["equipment_number"].(string); ok {
			if err := ensureUniqueNumber(tx, eq.WorkID, number, eq.ID); err != nil {
				return err
			}
		}
		return tx.Model(eq).Updates(changes).Error
	})
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, activity.Entry{
		UserID:     actor.UserID,
		EntityType: models.EntityEquipment,
		EntityID:   eq.ID,
		Action:     models.ActionUpdated,
		WorkID:     eq.WorkID,
		Data:       map[string]interface{}{"changes": changes},
	})
	return s.load(ctx, id, true)
}

// Delete 删除设备及其部件
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uint) error {
	eq, err := s.load(ctx, id, false)
	if err != nil {
		return err
	}
	if _, err := s.works.Authorize(ctx, actor, eq.WorkID, models.RoleEditor); err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("equipment_id = ?", eq.ID).Delete(&models.Component{}).Error; err != nil {
			return fmt.Errorf("删除部件失败: %w", err)
		}
		if err := tx.Delete(eq).Error; err != nil {
			return fmt.Errorf("删除设备失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recorder.Record(ctx, activity.Entry{
		UserID:     actor.UserID,
		EntityType: models.EntityEquipment,
		EntityID:   eq.ID,
		Action:     models.ActionDeleted,
		WorkID:     eq.WorkID,
		Data:       map[string]interface{}{"equipment_number": eq.EquipmentNumber},
	})
	return nil
}

func (s *Service) load(ctx context.Context, id uint, withComponents bool) (*models.Equipment, error) {
	db := s.db.WithContext(ctx)
	if withComponents {
		db = db.Preload("Components", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") })
	}
	var eq models.Equipment
	if err := db.First(&eq, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEquipmentNotFound
		}
		return nil, fmt.Errorf("查询设备失败: %w", err)
	}
	return &eq, nil
}

func (s *Service) recordCreated(ctx context.Context, userID uint, eq *models.Equipment) {
	s.recorder.Record(ctx, activity.Entry{
		UserID:     userID,
		EntityType: models.EntityEquipment,
		EntityID:   eq.ID,
		Action:     models.ActionCreated,
		WorkID:     eq.WorkID,
		Data:       map[string]interface{}{"equipment_number": eq.EquipmentNumber},
	})
	for _, c := range eq.Components {
		s.recordComponent(ctx, userID, eq.WorkID, &c, models.ActionCreated, nil)
	}
}

func ensureUniqueNumber(tx *gorm.DB, workID uint, number string, exceptID uint) error {
	var count int64
	q := tx.Model(&models.Equipment{}).Where("work_id = ? AND equipment_number = ?", workID, number)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return fmt.Errorf("检查设备编号失败: %w", err)
	}
	if count > 0 {
		return ErrDuplicateEquipment.Withf("%s", number)
	}
	return nil
}
