// Package analytics 管理员统计报表：提取任务、项目、报告文件、用户活动、设备与部件
package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"autorbi/internal/auth"
	"autorbi/internal/common"
	"autorbi/internal/models"

	"gorm.io/gorm"
)

// Period 统计时间窗口
type Period string

const (
	PeriodLast7Days  Period = "last_7_days"
	PeriodLast30Days Period = "last_30_days"
	PeriodAllTime    Period = "all_time"
)

// Cutoff 窗口起点；all_time 返回 false
func (p Period) Cutoff(now time.Time) (time.Time, bool) {
	switch p {
	case PeriodLast7Days:
		return now.AddDate(0, 0, -7), true
	case PeriodLast30Days:
		return now.AddDate(0, 0, -30), true
	}
	return time.Time{}, false
}

// Valid 校验窗口取值
func (p Period) Valid() bool {
	return p == PeriodLast7Days || p == PeriodLast30Days || p == PeriodAllTime
}

// Query 统计查询参数，period 缺省为 last_30_days
type Query struct {
	Period  Period `form:"period"`
	GroupBy string `form:"group_by"`
}

// Metric 统计结果
type Metric struct {
	Metric    string    `json:"metric"`
	Period    Period    `json:"period"`
	GroupBy   string    `json:"group_by,omitempty"`
	Data      any       `json:"data"`
	Total     int64     `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusCount 按状态计数
type StatusCount struct {
	UserID uint   `json:"user_id,omitempty"`
	WorkID uint   `json:"work_id,omitempty"`
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// FileVersionStat 报告文件版本统计
type FileVersionStat struct {
	FileType   string  `json:"file_type,omitempty"`
	WorkID     uint    `json:"work_id,omitempty"`
	Count      int64   `json:"count"`
	AvgVersion float64 `json:"avg_version"`
	MaxVersion int     `json:"max_version"`
}

// UserActivity 用户在窗口内的产出
type UserActivity struct {
	UserID         uint  `json:"user_id"`
	WorksCreated   int64 `json:"works_created"`
	FilesCreated   int64 `json:"files_created"`
	ExtractionsRun int64 `json:"extractions_run"`
	Activities     int64 `json:"activities"`
}

// Bucket 按字段分组计数
type Bucket struct {
	Key   string `gorm:"column:bucket" json:"key,omitempty"`
	Count int64  `json:"count"`
}

// WorkCount 按项目计数
type WorkCount struct {
	WorkID uint  `json:"work_id"`
	Count  int64 `json:"count"`
}

// Service 统计服务
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService 创建统计服务
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// prepare 校验权限与参数，返回窗口内过滤后的查询起点
func (s *Service) prepare(ctx context.Context, actor auth.Actor, q *Query, allowed ...string) (*Metric, func(*gorm.DB, string) *gorm.DB, error) {
	if !actor.IsAdmin() {
		return nil, nil, common.ErrForbidden.Withf("仅管理员可查看统计")
	}
	if q.Period == "" {
		q.Period = PeriodLast30Days
	}
	if !q.Period.Valid() {
		return nil, nil, common.ErrInvalidRequest.Withf("无效的统计窗口: %s", q.Period)
	}
	if q.GroupBy != "" && !contains(allowed, q.GroupBy) {
		return nil, nil, common.ErrInvalidRequest.Withf("不支持的分组: %s", q.GroupBy)
	}

	now := s.now().UTC()
	cutoff, bounded := q.Period.Cutoff(now)
	within := func(db *gorm.DB, column string) *gorm.DB {
		db = db.WithContext(ctx)
		if bounded {
			db = db.Where(column+" >= ?", cutoff)
		}
		return db
	}
	return &Metric{Period: q.Period, GroupBy: q.GroupBy, Timestamp: now}, within, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func sumCounts[T any](rows []T, count func(T) int64) int64 {
	var total int64
	for _, r := range rows {
		total += count(r)
	}
	return total
}

// ExtractionStatus 提取任务状态分布，可按 user_id（发起人）或 work_id 分组
func (s *Service) ExtractionStatus(ctx context.Context, actor auth.Actor, q Query) (*Metric, error) {
	m, within, err := s.prepare(ctx, actor, &q, "user_id", "work_id")
	if err != nil {
		return nil, err
	}
	m.Metric = "extraction_status"

	query := within(s.db.Model(&models.Extraction{}), "created_at")
	switch q.GroupBy {
	case "user_id":
		query = query.Select("created_by AS user_id, status, COUNT(*) AS count").Group("created_by, status").Order("created_by, status")
	case "work_id":
		query = query.Select("work_id, status, COUNT(*) AS count").Group("work_id, status").Order("work_id, status")
	default:
		query = query.Select("status, COUNT(*) AS count").Group("status").Order("status")
	}

	rows := []StatusCount{}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("统计提取任务失败: %w", err)
	}
	m.Data = rows
	m.Total = sumCounts(rows, func(r StatusCount) int64 { return r.Count })
	return m, nil
}

// WorkStatus 项目状态分布，可按 user_id（所有者）分组
func (s *Service) WorkStatus(ctx context.Context, actor auth.Actor, q Query) (*Metric, error) {
	m, within, err := s.prepare(ctx, actor, &q, "user_id")
	if err != nil {
		return nil, err
	}
	m.Metric = "work_status"

	var query *gorm.DB
	if q.GroupBy == "user_id" {
		query = within(s.db.Table("works"), "works.created_at").
			Joins("JOIN work_collaborators AS wc ON wc.work_id = works.id AND wc.role = ?", models.RoleOwner).
			Select("wc.user_id AS user_id, works.status AS status, COUNT(*) AS count").
			Group("wc.user_id, works.status").
			Order("wc.user_id, works.status")
	} else {
		query = within(s.db.Model(&models.Work{}), "created_at").
			Select("status, COUNT(*) AS count").Group("status").Order("status")
	}

	rows := []StatusCount{}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("统计项目失败: %w", err)
	}
	m.Data = rows
	m.Total = sumCounts(rows, func(r StatusCount) int64 { return r.Count })
	return m, nil
}

// FileVersions 报告文件数量与版本分布，可按 file_type 或 work_id 分组；total 为行数
func (s *Service) FileVersions(ctx context.Context, actor auth.Actor, q Query) (*Metric, error) {
	m, within, err := s.prepare(ctx, actor, &q, "file_type", "work_id")
	if err != nil {
		return nil, err
	}
	m.Metric = "file_versions"

	const aggregates = "COUNT(*) AS count, COALESCE(AVG(version_number), 0) AS avg_version, COALESCE(MAX(version_number), 0) AS max_version"
	query := within(s.db.Model(&models.File{}), "created_at")
	switch q.GroupBy {
	case "file_type":
		query = query.Select("file_type, " + aggregates).Group("file_type").Order("file_type")
	case "work_id":
		query = query.Select("work_id, " + aggregates).Group("work_id").Order("work_id")
	default:
		query = query.Select(aggregates)
	}

	rows := []FileVersionStat{}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("统计报告文件失败: %w", err)
	}
	for i := range rows {
		rows[i].AvgVersion = math.Round(rows[i].AvgVersion*100) / 100
	}
	m.Data = rows
	m.Total = int64(len(rows))
	return m, nil
}

// UserActivity 按活动日志统计每个用户创建的项目、报告文件与提取任务；total 为用户数
func (s *Service) UserActivity(ctx context.Context, actor auth.Actor, q Query) (*Metric, error) {
	q.GroupBy = ""
	m, within, err := s.prepare(ctx, actor, &q)
	if err != nil {
		return nil, err
	}
	m.Metric = "user_activity"

	rows := []UserActivity{}
	err = within(s.db.Model(&models.Activity{}), "created_at").
		Select(`user_id,
			SUM(CASE WHEN entity_type = ? AND action = ? THEN 1 ELSE 0 END) AS works_created,
			SUM(CASE WHEN entity_type = ? AND action = ? THEN 1 ELSE 0 END) AS files_created,
			SUM(CASE WHEN entity_type = ? AND action = ? THEN 1 ELSE 0 END) AS extractions_run,
			COUNT(*) AS activities`,
			models.EntityWork, models.ActionCreated,
			models.EntityFile, models.ActionCreated,
			models.EntityExtraction, models.ActionUploaded).
		Group("user_id").
		Order("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("统计用户活动失败: %w", err)
	}
	m.Data = rows
	m.Total = int64(len(rows))
	return m, nil
}

// ComponentCount 部件数量，可按 phase 或 fluid 分组，空值归入 unknown；窗口按所属设备创建时间
func (s *Service) ComponentCount(ctx context.Context, actor auth.Actor, q Query) (*Metric, error) {
	m, within, err := s.prepare(ctx, actor, &q, "phase", "fluid")
	if err != nil {
		return nil, err
	}
	m.Metric = "component_count"

	query := within(s.db.Table("components"), "equipments.created_at").
		Joins("JOIN equipments ON equipments.id = components.equipment_id")
	if q.GroupBy != "" {
		key := "COALESCE(NULLIF(components." + q.GroupBy + ", ''), 'unknown')"
		query = query.Select(key + " AS bucket, COUNT(*) AS count").Group(key).Order(key)
	} else {
		query = query.Select("COUNT(*) AS count")
	}

	rows := []Bucket{}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("统计部件失败: %w", err)
	}
	m.Data = rows
	m.Total = sumCounts(rows, func(r Bucket) int64 { return r.Count })
	return m, nil
}

// EquipmentCount 各项目设备数量
func (s *Service) EquipmentCount(ctx context.Context, actor auth.Actor, q Query) (*Metric, error) {
	q.GroupBy = ""
	m, within, err := s.prepare(ctx, actor, &q)
	if err != nil {
		return nil, err
	}
	m.Metric = "equipment_count"
	m.GroupBy = "work_id"

	rows := []WorkCount{}
	err = within(s.db.Model(&models.Equipment{}), "created_at").
		Select("work_id, COUNT(*) AS count").
		Group("work_id").
		Order("work_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("统计设备失败: %w", err)
	}
	m.Data = rows
	m.Total = sumCounts(rows, func(r WorkCount) int64 { return r.Count })
	return m, nil
}
