package equipment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autorbi/internal/activity"
	"autorbi/internal/common"
	"autorbi/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ExtractedEquipment AI 提取出的设备数据
type ExtractedEquipment struct {
	// ExtractionID 来源任务，非零时写入前确认任务仍存在
	ExtractionID    uint
	EquipmentNumber string
	PMTNumber       string
	Description     string
	Components      []ComponentInput
}

// UpsertResult 写回结果
type UpsertResult struct {
	Equipment         *models.Equipment
	Created           bool
	ComponentsCreated int
	ComponentsUpdated int
}

type componentWrite struct {
	comp    models.Component
	created bool
	changes map[string]interface{}
}

// Upsert 按 (项目, 设备编号) 写入提取结果：设备不存在则创建；
// 部件按名称匹配，已存在时只覆盖提取到的非空字段
func (s *Service) Upsert(ctx context.Context, userID, workID uint, data ExtractedEquipment) (*UpsertResult, error) {
	number := strings.TrimSpace(data.EquipmentNumber)
	if number == "" {
		return nil, fmt.Errorf("设备编号为空")
	}

	now := time.Now().UTC()
	result := &UpsertResult{}
	var eqChanges map[string]interface{}
	var writes []componentWrite

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockSource(tx, workID, data.ExtractionID); err != nil {
			return err
		}

		var eq models.Equipment
		err := tx.Where("work_id = ? AND equipment_number = ?", workID, number).First(&eq).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			eq = models.Equipment{
				WorkID:          workID,
				EquipmentNumber: number,
				PMTNumber:       data.PMTNumber,
				Description:     data.Description,
				ExtractedDate:   &now,
			}
			if err := tx.Create(&eq).Error; err != nil {
				return fmt.Errorf("创建设备失败: %w", err)
			}
			result.Created = true
		case err != nil:
			return fmt.Errorf("查询设备失败: %w", err)
		default:
			eqChanges = map[string]interface{}{"extracted_date": now}
			if data.PMTNumber != "" && data.PMTNumber != eq.PMTNumber {
				eqChanges["pmt_number"] = data.PMTNumber
			}
			if data.Description != "" && data.Description != eq.Description {
				eqChanges["description"] = data.Description
			}
			if err := tx.Model(&eq).Updates(eqChanges).Error; err != nil {
				return fmt.Errorf("更新设备失败: %w", err)
			}
		}

		var existing []models.Component
		if err := tx.Where("equipment_id = ?", eq.ID).Find(&existing).Error; err != nil {
			return fmt.Errorf("查询部件失败: %w", err)
		}
		byName := make(map[string]*models.Component, len(existing))
		for i := range existing {
			byName[strings.ToUpper(strings.TrimSpace(existing[i].ComponentName))] = &existing[i]
		}

		for _, in := range data.Components {
			name := strings.TrimSpace(in.ComponentName)
			if name == "" {
				continue
			}
			current, ok := byName[strings.ToUpper(name)]
			if !ok {
				comp := in.toModel(eq.ID)
				if err := tx.Create(&comp).Error; err != nil {
					return fmt.Errorf("创建部件 %s 失败: %w", name, err)
				}
				byName[strings.ToUpper(name)] = &comp
				writes = append(writes, componentWrite{comp: comp, created: true})
				continue
			}
			changes := nonEmptyChanges(in, current)
			if len(changes) == 0 {
				continue
			}
			if err := tx.Model(current).Updates(changes).Error; err != nil {
				return fmt.Errorf("更新部件 %s 失败: %w", name, err)
			}
			if err := tx.First(current, current.ID).Error; err != nil {
				return fmt.Errorf("重新加载部件失败: %w", err)
			}
			writes = append(writes, componentWrite{comp: *current, changes: changes})
		}

		if err := tx.Preload("Components", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
			First(&eq, eq.ID).Error; err != nil {
			return fmt.Errorf("重新加载设备失败: %w", err)
		}
		result.Equipment = &eq
		return nil
	})
	if err != nil {
		return nil, err
	}

	eq := result.Equipment
	if result.Created {
		s.recorder.Record(ctx, activity.Entry{
			UserID:     userID,
			EntityType: models.EntityEquipment,
			EntityID:   eq.ID,
			Action:     models.ActionCreated,
			WorkID:     workID,
			Data:       map[string]interface{}{"equipment_number": eq.EquipmentNumber, "source": "extraction"},
		})
	} else if len(eqChanges) > 1 {
		delete(eqChanges, "extracted_date")
		s.recorder.Record(ctx, activity.Entry{
			UserID:     userID,
			EntityType: models.EntityEquipment,
			EntityID:   eq.ID,
			Action:     models.ActionUpdated,
			WorkID:     workID,
			Data:       map[string]interface{}{"changes": eqChanges, "source": "extraction"},
		})
	}
	for i := range writes {
		w := &writes[i]
		if w.created {
			result.ComponentsCreated++
			s.recordComponent(ctx, userID, workID, &w.comp, models.ActionCreated, nil)
		} else {
			result.ComponentsUpdated++
			s.recordComponent(ctx, userID, workID, &w.comp, models.ActionUpdated, w.changes)
		}
	}

	s.logger.Info("提取结果已写入设备",
		zap.Uint("work_id", workID),
		zap.String("equipment_number", number),
		zap.Bool("created", result.Created),
		zap.Int("components_created", result.ComponentsCreated),
		zap.Int("components_updated", result.ComponentsUpdated),
	)
	return result, nil
}

// lockSource 共享锁定项目行，并确认来源任务仍存在；
// 项目删除需等待写回事务结束，已删除的项目或任务不再写入
func lockSource(tx *gorm.DB, workID, extractionID uint) error {
	var w models.Work
	err := tx.Clauses(clause.Locking{Strength: "SHARE"}).Select("id").First(&w, workID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.ErrWorkNotFound.Withf("%d", workID)
	}
	if err != nil {
		return fmt.Errorf("锁定项目失败: %w", err)
	}
	if extractionID == 0 {
		return nil
	}
	var n int64
	if err := tx.Model(&models.Extraction{}).Where("id = ? AND work_id = ?", extractionID, workID).Count(&n).Error; err != nil {
		return fmt.Errorf("查询提取任务失败: %w", err)
	}
	if n == 0 {
		return common.ErrExtractionNotFound.Withf("%d", extractionID)
	}
	return nil
}

func nonEmptyChanges(in ComponentInput, c *models.Component) map[string]interface{} {
	out := make(map[string]interface{})
	set := func(column, v, current string) {
		v = strings.TrimSpace(v)
		if v != "" && v != current {
			out[column] = v
		}
	}
	set("phase", in.Phase, c.Phase)
	set("fluid", in.Fluid, c.Fluid)
	set("material_spec", in.MaterialSpec, c.MaterialSpec)
	set("material_grade", in.MaterialGrade, c.MaterialGrade)
	set("insulation", in.Insulation, c.Insulation)
	set("design_temp", in.DesignTemp, c.DesignTemp)
	set("design_pressure", in.DesignPressure, c.DesignPressure)
	set("operating_temp", in.OperatingTemp, c.OperatingTemp)
	set("operating_pressure", in.OperatingPressure, c.OperatingPressure)
	return out
}
