package models

import "time"

// ExtractionStatus 提取任务状态
type ExtractionStatus string

const (
	ExtractionPending    ExtractionStatus = "pending"
	ExtractionInProgress ExtractionStatus = "in_progress"
	ExtractionCompleted  ExtractionStatus = "completed"
	ExtractionFailed     ExtractionStatus = "failed"
)

// Terminal 是否为终态
func (s ExtractionStatus) Terminal() bool {
	return s == ExtractionCompleted || s == ExtractionFailed
}

// Extraction PDF 数据提取任务
type Extraction struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	WorkID           uint             `gorm:"not null;index" json:"work_id"`
	CreatedBy        uint             `gorm:"index" json:"created_by"`
	Status           ExtractionStatus `gorm:"type:varchar(20);not null;default:pending;index" json:"status"`
	PDFURL           string           `gorm:"column:pdf_url;type:varchar(500)" json:"pdf_url"`
	OriginalFilename string           `gorm:"type:varchar(255)" json:"original_filename"`
	TotalPages       int              `gorm:"not null;default:0" json:"total_pages"`
	ProcessedPages   int              `gorm:"not null;default:0" json:"processed_pages"`
	ErrorMessage     string           `gorm:"type:text" json:"error_message,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// TableName 指定表名
func (Extraction) TableName() string {
	return "extractions"
}

// ProgressPercent 进度百分比，总页数未知时按 1 计
func (e *Extraction) ProgressPercent() float64 {
	total := e.TotalPages
	if total <= 0 {
		total = 1
	}
	return float64(e.ProcessedPages) / float64(total) * 100
}
