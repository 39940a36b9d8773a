// Package activity 活动历史：实体变更的只追加审计日志及其查询
package activity

import (
	"context"
	"fmt"
	"time"

	"autorbi/internal/common"
	"autorbi/internal/metrics"
	"autorbi/internal/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultUserLimit   = 50
	DefaultEntityLimit = 100
	DefaultPeriodDays  = 7
	MaxLimit           = 500
	MaxPeriodDays      = 365
)

var (
	ErrInvalidQuery      = common.NewBusinessError(common.CodeInvalidRequest, "查询参数错误")
	ErrInvalidEntityType = common.NewBusinessError(common.CodeInvalidRequest, "无效的实体类型")
	ErrInvalidAction     = common.NewBusinessError(common.CodeInvalidRequest, "无效的动作")
	ErrEntityNotFound    = common.NewBusinessError(common.CodeNotFound, "实体不存在")
)

// Entry 一条待写入的活动
type Entry struct {
	UserID     uint
	EntityType models.EntityType
	EntityID   uint
	Action     models.Action
	// WorkID 所属项目，0 表示无
	WorkID uint
	Data   map[string]interface{}
}

// Recorder 业务服务写活动日志使用的接口，写入失败不影响主操作
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// Service 活动日志服务
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewService 创建活动日志服务
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger, now: time.Now}
}

// Record 尽力写入活动日志，错误仅记录日志
func (s *Service) Record(ctx context.Context, entry Entry) {
	// 请求结束后仍需落库
	ctx = context.WithoutCancel(ctx)
	if _, err := s.Log(ctx, entry); err != nil {
		metrics.ActivityWriteFailures.WithLabelValues(string(entry.EntityType)).Inc()
		s.logger.Warn("写入活动日志失败",
			zap.Uint("user_id", entry.UserID),
			zap.String("entity_type", string(entry.EntityType)),
			zap.Uint("entity_id", entry.EntityID),
			zap.String("action", string(entry.Action)),
			zap.Error(err),
		)
	}
}

// Log 写入活动日志并返回记录
func (s *Service) Log(ctx context.Context, entry Entry) (*models.Activity, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}

	act := &models.Activity{
		UserID:     entry.UserID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		CreatedAt:  s.now().UTC(),
	}
	if entry.WorkID != 0 {
		workID := entry.WorkID
		act.WorkID = &workID
	}
	if len(entry.Data) > 0 {
		act.Data = datatypes.JSONMap(entry.Data)
	}

	if err := s.db.WithContext(ctx).Create(act).Error; err != nil {
		return nil, fmt.Errorf("保存活动日志失败: %w", err)
	}

	metrics.ActivityWritesTotal.WithLabelValues(string(act.EntityType), string(act.Action)).Inc()
	return act, nil
}

// WorkOf 解析实体所属的项目
func (s *Service) WorkOf(ctx context.Context, entityType models.EntityType, entityID uint) (uint, error) {
	db := s.db.WithContext(ctx)
	var q *gorm.DB
	column := "work_id"
	switch entityType {
	case models.EntityWork:
		q, column = db.Model(&models.Work{}).Where("id = ?", entityID), "id"
	case models.EntityEquipment:
		q = db.Model(&models.Equipment{}).Where("id = ?", entityID)
	case models.EntityComponent:
		q = db.Model(&models.Component{}).
			Joins("JOIN equipments ON equipments.id = components.equipment_id").
			Where("components.id = ?", entityID)
		column = "equipments.work_id"
	case models.EntityFile:
		// 已删除的文件仍可查看历史
		q = db.Unscoped().Model(&models.File{}).Where("id = ?", entityID)
	case models.EntityExtraction:
		q = db.Model(&models.Extraction{}).Where("id = ?", entityID)
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidEntityType, entityType)
	}

	var ids []uint
	if err := q.Limit(1).Pluck(column, &ids).Error; err != nil {
		return 0, fmt.Errorf("查询实体失败: %w", err)
	}
	if len(ids) == 0 {
		return 0, ErrEntityNotFound.Withf("%s %d", entityType, entityID)
	}
	return ids[0], nil
}

func validateEntry(entry Entry) error {
	if entry.UserID == 0 {
		return fmt.Errorf("%w: user_id 不能为空", ErrInvalidQuery)
	}
	if entry.EntityID == 0 {
		return fmt.Errorf("%w: entity_id 不能为空", ErrInvalidQuery)
	}
	if !entry.EntityType.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidEntityType, entry.EntityType)
	}
	if !entry.Action.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidAction, entry.Action)
	}
	return nil
}

// UserQuery 用户活动查询条件
type UserQuery struct {
	UserID     uint
	EntityType models.EntityType
	Limit      int
	Offset     int
}

// ByUser 查询用户的活动，返回当前页与总数
func (s *Service) ByUser(ctx context.Context, q UserQuery) ([]models.Activity, int64, error) {
	limit, err := normalizeLimit(q.Limit, DefaultUserLimit)
	if err != nil {
		return nil, 0, err
	}
	if q.Offset < 0 {
		return nil, 0, fmt.Errorf("%w: offset 不能为负数", ErrInvalidQuery)
	}

	query := s.db.WithContext(ctx).Model(&models.Activity{}).Where("user_id = ?", q.UserID)
	if q.EntityType != "" {
		if !q.EntityType.Valid() {
			return nil, 0, fmt.Errorf("%w: %s", ErrInvalidEntityType, q.EntityType)
		}
		query = query.Where("entity_type = ?", q.EntityType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计用户活动失败: %w", err)
	}

	var acts []models.Activity
	if err := newestFirst(query).Limit(limit).Offset(q.Offset).Find(&acts).Error; err != nil {
		return nil, 0, fmt.Errorf("查询用户活动失败: %w", err)
	}
	return acts, total, nil
}

// ByWork 查询项目本身及其设备、部件、文件、提取任务的全部活动
func (s *Service) ByWork(ctx context.Context, workID uint) ([]models.Activity, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Work{}).Where("id = ?", workID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("查询项目失败: %w", err)
	}
	if count == 0 {
		return nil, common.ErrWorkNotFound
	}

	var acts []models.Activity
	err := newestFirst(s.db.WithContext(ctx).
		Where("(entity_type = ? AND entity_id = ?) OR work_id = ?", models.EntityWork, workID, workID)).
		Find(&acts).Error
	if err != nil {
		return nil, fmt.Errorf("查询项目活动失败: %w", err)
	}
	return acts, nil
}

// ByEntity 查询单个实体的活动
func (s *Service) ByEntity(ctx context.Context, entityType models.EntityType, entityID uint, limit int) ([]models.Activity, error) {
	if !entityType.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntityType, entityType)
	}
	limit, err := normalizeLimit(limit, DefaultEntityLimit)
	if err != nil {
		return nil, err
	}

	var acts []models.Activity
	err = newestFirst(s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID)).
		Limit(limit).Find(&acts).Error
	if err != nil {
		return nil, fmt.Errorf("查询实体活动失败: %w", err)
	}
	return acts, nil
}

// ByAction 按动作查询活动
func (s *Service) ByAction(ctx context.Context, action models.Action, limit, offset int) ([]models.Activity, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAction, action)
	}
	limit, err := normalizeLimit(limit, DefaultEntityLimit)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset 不能为负数", ErrInvalidQuery)
	}

	var acts []models.Activity
	err = newestFirst(s.db.WithContext(ctx).Where("action = ?", action)).
		Limit(limit).Offset(offset).Find(&acts).Error
	if err != nil {
		return nil, fmt.Errorf("查询动作活动失败: %w", err)
	}
	return acts, nil
}

// ByPeriod 查询最近 days 天的活动
func (s *Service) ByPeriod(ctx context.Context, days, limit int) ([]models.Activity, error) {
	days, err := normalizeDays(days)
	if err != nil {
		return nil, err
	}
	limit, err = normalizeLimit(limit, DefaultEntityLimit)
	if err != nil {
		return nil, err
	}

	var acts []models.Activity
	err = newestFirst(s.db.WithContext(ctx).Where("created_at >= ?", s.since(days))).
		Limit(limit).Find(&acts).Error
	if err != nil {
		return nil, fmt.Errorf("查询时段活动失败: %w", err)
	}
	return acts, nil
}

// Summary 最近 days 天的活动统计
type Summary struct {
	Days         int              `json:"days"`
	Total        int64            `json:"total"`
	ByEntityType map[string]int64 `json:"by_entity_type"`
	ByAction     map[string]int64 `json:"by_action"`
}

type groupCount struct {
	GroupKey string
	Total    int64
}

// Summarize 按实体类型与动作统计活动
func (s *Service) Summarize(ctx context.Context, days int) (*Summary, error) {
	days, err := normalizeDays(days)
	if err != nil {
		return nil, err
	}
	since := s.since(days)

	sum := &Summary{
		Days:         days,
		ByEntityType: make(map[string]int64),
		ByAction:     make(map[string]int64),
	}

	for column, target := range map[string]map[string]int64{
		"entity_type": sum.ByEntityType,
		"action":      sum.ByAction,
	} {
		var rows []groupCount
		err := s.db.WithContext(ctx).Model(&models.Activity{}).
			Select(column+" AS group_key, COUNT(*) AS total").
			Where("created_at >= ?", since).
			Group(column).
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("统计活动失败: %w", err)
		}
		for _, r := range rows {
			target[r.GroupKey] = r.Total
		}
	}

	for _, c := range sum.ByEntityType {
		sum.Total += c
	}
	return sum, nil
}

func (s *Service) since(days int) time.Time {
	return s.now().UTC().AddDate(0, 0, -days)
}

func newestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("created_at DESC").Order("id DESC")
}

func normalizeLimit(limit, def int) (int, error) {
	if limit == 0 {
		return def, nil
	}
	if limit < 1 || limit > MaxLimit {
		return 0, fmt.Errorf("%w: limit 必须在 1-%d 之间", ErrInvalidQuery, MaxLimit)
	}
	return limit, nil
}

func normalizeDays(days int) (int, error) {
	if days == 0 {
		return DefaultPeriodDays, nil
	}
	if days < 1 || days > MaxPeriodDays {
		return 0, fmt.Errorf("%w: days 必须在 1-%d 之间", ErrInvalidQuery, MaxPeriodDays)
	}
	return days, nil
}
