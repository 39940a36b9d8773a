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

	"gorm.io/gorm"
)

// ComponentInput 部件参数
type ComponentInput struct {
	ComponentName     string `json:"component_name" binding:"required"`
	Phase             string `json:"phase"`
	Fluid             string `json:"fluid"`
	MaterialSpec      string `json:"material_spec"`
	MaterialGrade     string `json:"material_grade"`
	Insulation        string `json:"insulation"`
	DesignTemp        string `json:"design_temp"`
	DesignPressure    string `json:"design_pressure"`
	OperatingTemp     string `json:"operating_temp"`
	OperatingPressure string `json:"operating_pressure"`
}

func (in ComponentInput) toModel(equipmentID uint) models.Component {
	return models.Component{
		EquipmentID:       equipmentID,
		ComponentName:     strings.TrimSpace(in.ComponentName),
		Phase:             in.Phase,
		Fluid:             in.Fluid,
		MaterialSpec:      in.MaterialSpec,
		MaterialGrade:     in.MaterialGrade,
		Insulation:        in.Insulation,
		DesignTemp:        in.DesignTemp,
		DesignPressure:    in.DesignPressure,
		OperatingTemp:     in.OperatingTemp,
		OperatingPressure: in.OperatingPressure,
	}
}

// ComponentUpdate 部件更新，nil 字段不修改
type ComponentUpdate struct {
	ComponentName     *string `json:"component_name"`
	Phase             *string `json:"phase"`
	Fluid             *string `json:"fluid"`
	MaterialSpec      *string `json:"material_spec"`
	MaterialGrade     *string `json:"material_grade"`
	Insulation        *string `json:"insulation"`
	DesignTemp        *string `json:"design_temp"`
	DesignPressure    *string `json:"design_pressure"`
	OperatingTemp     *string `json:"operating_temp"`
	OperatingPressure *string `json:"operating_pressure"`
}

// ComponentPatch 批量更新中的一项
type ComponentPatch struct {
	ID uint `json:"id" binding:"required"`
	ComponentUpdate
}

func (u ComponentUpdate) changes(c *models.Component) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	set := func(column string, v *string, current string) {
		if v != nil && *v != current {
			out[column] = *v
		}
	}
	if u.ComponentName != nil && strings.TrimSpace(*u.ComponentName) == "" {
		return nil, common.ErrInvalidRequest.Withf("部件名称不能为空")
	}
	set("component_name", u.ComponentName, c.ComponentName)
	set("phase", u.Phase, c.Phase)
	set("fluid", u.Fluid, c.Fluid)
	set("material_spec", u.MaterialSpec, c.MaterialSpec)
	set("material_grade", u.MaterialGrade, c.MaterialGrade)
	set("insulation", u.Insulation, c.Insulation)
	set("design_temp", u.DesignTemp, c.DesignTemp)
	set("design_pressure", u.DesignPressure, c.DesignPressure)
	set("operating_temp", u.OperatingTemp, c.OperatingTemp)
	set("operating_pressure", u.OperatingPressure, c.OperatingPressure)
	return out, nil
}

// CreateComponent 为设备添加部件
func (s *Service) CreateComponent(ctx context.Context, actor auth.Actor, equipmentID uint, in ComponentInput) (*models.Component, error) {
	eq, err := s.load(ctx, equipmentID, false)
	if err != nil {
		return nil, err
	}
	if _, err := s.works.Authorize(ctx, actor, eq.WorkID, models.RoleEditor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ComponentName) == "" {
		return nil, common.ErrInvalidRequest.Withf("部件名称不能为空")
	}

	comp := in.toModel(eq.ID)
	if err := s.db.WithContext(ctx).Create(&comp).Error; err != nil {
		return nil, fmt.Errorf("创建部件失败: %w", err)
	}

	s.recordComponent(ctx, actor.UserID, eq.WorkID, &comp, models.ActionCreated, nil)
	return &comp, nil
}

// ListComponents 列出设备的部件
func (s *Service) ListComponents(ctx context.Context, actor auth.Actor, equipmentID uint) ([]models.Component, error) {
	eq, err := s.Get(ctx, actor, equipmentID)
	if err != nil {
		return nil, err
	}
	return eq.Components, nil
}

// GetComponent 查询部件
func (s *Service) GetComponent(ctx context.Context, actor auth.Actor, componentID uint) (*models.Component, error) {
	comp, eq, err := s.loadComponent(ctx, s.db.WithContext(ctx), componentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.works.Authorize(ctx, actor, eq.WorkID, models.RoleViewer); err != nil {
		return nil, err
	}
	return comp, nil
}

// UpdateComponent 更新部件
func (s *Service) UpdateComponent(ctx context.Context, actor auth.Actor, componentID uint, in ComponentUpdate) (*models.Component, error) {
	updated, err := s.BulkUpdateComponents(ctx, actor, []ComponentPatch{{ID: componentID, ComponentUpdate: in}})
	if err != nil {
		return nil, err
	}
	return &updated[0], nil
}

// BulkUpdateComponents 批量更新部件，任一失败则全部回滚
func (s *Service) BulkUpdateComponents(ctx context.Context, actor auth.Actor, patches []ComponentPatch) ([]models.Component, error) {
	if len(patches) == 0 {
		return nil, common.ErrInvalidRequest.Withf("更新列表不能为空")
	}

	type pending struct {
		comp    *models.Component
		workID  uint
		changes map[string]interface{}
	}
	items := make([]pending, 0, len(patches))
	authorized := make(map[uint]bool)

	// 先校验存在性与权限，事务内只做写入
	for _, p := range patches {
		comp, eq, err := s.loadComponent(ctx, s.db.WithContext(ctx), p.ID)
		if err != nil {
			return nil, err
		}
		if !authorized[eq.WorkID] {
			if _, err := s.works.Authorize(ctx, actor, eq.WorkID, models.RoleEditor); err != nil {
				return nil, err
			}
			authorized[eq.WorkID] = true
		}
		changes, err := p.changes(comp)
		if err != nil {
			return nil, err
		}
		items = append(items, pending{comp: comp, workID: eq.WorkID, changes: changes})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, it := range items {
			if len(it.changes) == 0 {
				continue
			}
			if err := tx.Model(it.comp).Updates(it.changes).Error; err != nil {
				return fmt.Errorf("更新部件 %d 失败: %w", it.comp.ID, err)
			}
			if err := tx.First(it.comp, it.comp.ID).Error; err != nil {
				return fmt.Errorf("重新加载部件失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]models.Component, 0, len(items))
	for _, it := range items {
		if len(it.changes) > 0 {
			s.recordComponent(ctx, actor.UserID, it.workID, it.comp, models.ActionUpdated, it.changes)
		}
		result = append(result, *it.comp)
	}
	return result, nil
}

// DeleteComponent 删除部件
func (s *Service) DeleteComponent(ctx context.Context, actor auth.Actor, componentID uint) error {
	comp, eq, err := s.loadComponent(ctx, s.db.WithContext(ctx), componentID)
	if err != nil {
		return err
	}
	if _, err := s.works.Authorize(ctx, actor, eq.WorkID, models.RoleEditor); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(comp).Error; err != nil {
		return fmt.Errorf("删除部件失败: %w", err)
	}

	s.recordComponent(ctx, actor.UserID, eq.WorkID, comp, models.ActionDeleted, nil)
	return nil
}

func (s *Service) loadComponent(ctx context.Context, db *gorm.DB, id uint) (*models.Component, *models.Equipment, error) {
	var comp models.Component
	if err := db.First(&comp, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrComponentNotFound.Withf("id=%d", id)
		}
		return nil, nil, fmt.Errorf("查询部件失败: %w", err)
	}
	var eq models.Equipment
	if err := db.First(&eq, comp.EquipmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrEquipmentNotFound
		}
		return nil, nil, fmt.Errorf("查询设备失败: %w", err)
	}
	return &comp, &eq, nil
}

func (s *Service) recordComponent(ctx context.Context, userID, workID uint, comp *models.Component, action models.Action, changes map[string]interface{}) {
	data := map[string]interface{}{
		"equipment_id":   comp.EquipmentID,
		"component_name": comp.ComponentName,
	}
	if len(changes) > 0 {
		data["changes"] = changes
	}
	s.recorder.Record(ctx, activity.Entry{
		UserID:     userID,
		EntityType: models.EntityComponent,
		EntityID:   comp.ID,
		Action:     action,
		WorkID:     workID,
		Data:       data,
	})
}
