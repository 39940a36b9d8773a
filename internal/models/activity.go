package models

import (
	"time"

	"gorm.io/datatypes"
)

// EntityType 活动记录关联的实体类型
type EntityType string

const (
	EntityWork       EntityType = "work"
	EntityEquipment  EntityType = "equipment"
	EntityComponent  EntityType = "component"
	EntityFile       EntityType = "file"
	EntityExtraction EntityType = "extraction"
)

// Valid 校验实体类型
func (t EntityType) Valid() bool {
	switch t {
	case EntityWork, EntityEquipment, EntityComponent, EntityFile, EntityExtraction:
		return true
	}
	return false
}

// Action 活动动作
type Action string

const (
	ActionCreated       Action = "created"
	ActionUpdated       Action = "updated"
	ActionDeleted       Action = "deleted"
	ActionStatusChanged Action = "status_changed"
	ActionUploaded      Action = "uploaded"
)

// Valid 校验动作
func (a Action) Valid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted, ActionStatusChanged, ActionUploaded:
		return true
	}
	return false
}

// Activity 活动历史记录，只追加不修改
type Activity struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	UserID     uint              `gorm:"not null;index:idx_activity_user_entity,priority:1" json:"user_id"`
	EntityType EntityType        `gorm:"type:varchar(50);not null;index:idx_activity_user_entity,priority:2;index:idx_activity_entity,priority:1" json:"entity_type"`
	EntityID   uint              `gorm:"not null;index:idx_activity_entity,priority:2" json:"entity_id"`
	Action     Action            `gorm:"type:varchar(50);not null;index" json:"action"`
	WorkID     *uint             `gorm:"index" json:"work_id,omitempty"`
	Data       datatypes.JSONMap `json:"data,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`
}

// TableName 指定表名
func (Activity) TableName() string {
	return "activities"
}

// All 需要自动迁移的模型
func All() []interface{} {
	return []interface{}{
		&User{},
		&Work{},
		&WorkCollaborator{},
		&Equipment{},
		&Component{},
		&Extraction{},
		&File{},
		&Activity{},
	}
}
