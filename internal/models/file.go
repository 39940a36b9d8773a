package models

import (
	"time"

	"gorm.io/gorm"
)

// FileType 报告文件类型
type FileType string

const (
	FileTypeExcel      FileType = "excel"
	FileTypePowerPoint FileType = "powerpoint"
)

// Valid 校验文件类型
func (t FileType) Valid() bool {
	return t == FileTypeExcel || t == FileTypePowerPoint
}

// File 生成的报告文件版本记录。删除为软删除，已用过的版本号不再分配
type File struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	WorkID        uint           `gorm:"not null;uniqueIndex:uq_work_file_version" json:"work_id"`
	CreatedBy     uint           `gorm:"index" json:"created_by"`
	FileType      FileType       `gorm:"type:varchar(20);not null;uniqueIndex:uq_work_file_version" json:"file_type"`
	VersionNumber int            `gorm:"not null;uniqueIndex:uq_work_file_version" json:"version_number"`
	FileURL       string         `gorm:"type:varchar(500);not null" json:"file_url"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName 指定表名
func (File) TableName() string {
	return "files"
}
