package extraction

import (
	"time"

	"autorbi/internal/models"
)

// StatusView 提取任务进度
type StatusView struct {
	ID              uint                    `json:"id"`
	WorkID          uint                    `json:"work_id"`
	Status          models.ExtractionStatus `json:"status"`
	OriginalFile    string                  `json:"original_filename,omitempty"`
	TotalPages      int                     `json:"total_pages"`
	ProcessedPages  int                     `json:"processed_pages"`
	ProgressPercent float64                 `json:"progress_percent"`
	ErrorMessage    string                  `json:"error_message,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	CompletedAt     *time.Time              `json:"completed_at,omitempty"`
}

// NewStatusView 由任务记录构造进度视图
func NewStatusView(e *models.Extraction) StatusView {
	return StatusView{
		ID:              e.ID,
		WorkID:          e.WorkID,
		Status:          e.Status,
		OriginalFile:    e.OriginalFilename,
		TotalPages:      e.TotalPages,
		ProcessedPages:  e.ProcessedPages,
		ProgressPercent: e.ProgressPercent(),
		ErrorMessage:    e.ErrorMessage,
		CreatedAt:       e.CreatedAt,
		CompletedAt:     e.CompletedAt,
	}
}

// Progress 多个提取任务的汇总进度
type Progress struct {
	Jobs           int     `json:"jobs"`
	TotalPages     int     `json:"total_pages"`
	ProcessedPages int     `json:"processed_pages"`
	Percent        float64 `json:"percent"`
	Pending        int     `json:"pending"`
	InProgress     int     `json:"in_progress"`
	Completed      int     `json:"completed"`
	Failed         int     `json:"failed"`
	Done           bool    `json:"done"`
}

// Aggregate 汇总各任务的页数计数；所有任务进入终态时 Done 为 true，空输入视为已完成
func Aggregate(statuses []StatusView) Progress {
	p := Progress{Jobs: len(statuses), Done: true}
	for _, s := range statuses {
		p.TotalPages += s.TotalPages
		p.ProcessedPages += s.ProcessedPages
		switch s.Status {
		case models.ExtractionCompleted:
			p.Completed++
		case models.ExtractionFailed:
			p.Failed++
		case models.ExtractionInProgress:
			p.InProgress++
		default:
			p.Pending++
		}
		if !s.Status.Terminal() {
			p.Done = false
		}
	}
	if p.TotalPages > 0 {
		p.Percent = float64(p.ProcessedPages) / float64(p.TotalPages) * 100
	}
	return p
}
