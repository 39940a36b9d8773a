package tasks

import "fmt"

// Task Types
const (
	TypeRunExtraction = "extraction:run"
)

// RunExtractionPayload 提取任务载荷
type RunExtractionPayload struct {
	ExtractionID uint `json:"extraction_id"`
}

// ExtractionTaskID 提取任务在队列中的唯一 ID
func ExtractionTaskID(extractionID uint) string {
	return fmt.Sprintf("extraction-%d", extractionID)
}
