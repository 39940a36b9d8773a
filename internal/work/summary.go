package work

import (
	"context"
	"fmt"
	"time"

	"autorbi/internal/auth"
	"autorbi/internal/models"
)

// Summary 项目概览统计
type Summary struct {
	WorkID              uint              `json:"work_id"`
	Status              models.WorkStatus `json:"status"`
	EquipmentCount      int64             `json:"equipment_count"`
	ComponentCount      int64             `json:"component_count"`
	FileCount           int64             `json:"file_count"`
	ExtractionsByStatus map[string]int64  `json:"extractions_by_status"`
	LastActivityAt      *time.Time        `json:"last_activity_at,omitempty"`
}

// Summarize 统计项目下的设备、部件、提取任务、文件与最近活动
func (s *Service) Summarize(ctx context.Context, actor auth.Actor, workID uint) (*Summary, error) {
	w, err := s.Authorize(ctx, actor, workID, models.RoleViewer)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	sum := &Summary{
		WorkID:              w.ID,
		Status:              w.Status,
		ExtractionsByStatus: make(map[string]int64),
	}

	if err := db.Model(&models.Equipment{}).Where("work_id = ?", workID).Count(&sum.EquipmentCount).Error; err != nil {
		return nil, fmt.Errorf("统计设备失败: %w", err)
	}
	if err := db.Model(&models.Component{}).
		Where("equipment_id IN (?)", db.Model(&models.Equipment{}).Select("id").Where("work_id = ?", workID)).
		Count(&sum.ComponentCount).Error; err != nil {
		return nil, fmt.Errorf("统计部件失败: %w", err)
	}
	if err := db.Model(&models.File{}).Where("work_id = ?", workID).Count(&sum.FileCount).Error; err != nil {
		return nil, fmt.Errorf("统计文件失败: %w", err)
	}

	var rows []struct {
		Status string
		Total  int64
	}
	if err := db.Model(&models.Extraction{}).
		Select("status, COUNT(*) AS total").
		Where("work_id = ?", workID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("统计提取任务失败: %w", err)
	}
	for _, r := range rows {
		sum.ExtractionsByStatus[r.Status] = r.Total
	}

	var last models.Activity
	res := db.Where("(entity_type = ? AND entity_id = ?) OR work_id = ?", models.EntityWork, workID, workID).
		Order("created_at DESC").Limit(1).Find(&last)
	if res.Error != nil {
		return nil, fmt.Errorf("查询最近活动失败: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		t := last.CreatedAt
		sum.LastActivityAt = &t
	}
	return sum, nil
}
