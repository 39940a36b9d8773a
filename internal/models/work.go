package models

import "time"

// WorkStatus 检验项目状态
type WorkStatus string

const (
	WorkStatusActive    WorkStatus = "active"
	WorkStatusCompleted WorkStatus = "completed"
	WorkStatusArchived  WorkStatus = "archived"
)

// Valid 校验状态取值
func (s WorkStatus) Valid() bool {
	switch s {
	case WorkStatusActive, WorkStatusCompleted, WorkStatusArchived:
		return true
	}
	return false
}

// Work 检验项目
type Work struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	Name               string     `gorm:"type:varchar(100);not null" json:"name"`
	Description        string     `gorm:"type:text" json:"description"`
	Status             WorkStatus `gorm:"type:varchar(20);not null;default:active;index" json:"status"`
	ExcelMasterfileURL string     `gorm:"type:varchar(500)" json:"excel_masterfile_url"`
	PPTTemplateURL     string     `gorm:"type:varchar(500)" json:"ppt_template_url"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (Work) TableName() string {
	return "works"
}

// CollaboratorRole 协作者角色
type CollaboratorRole string

const (
	RoleViewer CollaboratorRole = "viewer"
	RoleEditor CollaboratorRole = "editor"
	RoleOwner  CollaboratorRole = "owner"
)

// Level 角色等级，越大权限越高
func (r CollaboratorRole) Level() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleEditor:
		return 2
	case RoleOwner:
		return 3
	}
	return 0
}

// Valid 校验角色取值
func (r CollaboratorRole) Valid() bool {
	return r.Level() > 0
}

// WorkCollaborator 项目协作者
type WorkCollaborator struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	WorkID    uint             `gorm:"not null;uniqueIndex:uq_work_user" json:"work_id"`
	UserID    uint             `gorm:"not null;uniqueIndex:uq_work_user;index" json:"user_id"`
	Role      CollaboratorRole `gorm:"type:varchar(20);not null;default:viewer" json:"role"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// TableName 指定表名
func (WorkCollaborator) TableName() string {
	return "work_collaborators"
}
