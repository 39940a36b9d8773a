package common

import (
	"fmt"
	"net/http"
)

// ============================================================================
// 通用请求类型
// ============================================================================

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `json:"page" form:"page" binding:"omitempty,min=1"`
	PageSize int `json:"page_size" form:"page_size" binding:"omitempty,min=1,max=100"`
}

// GetPage 页码，从 1 开始
func (p PaginationRequest) GetPage() int {
	if p.Page < 1 {
		return 1
	}
	return p.Page
}

// GetOffset 计算数据库查询的偏移量
func (p PaginationRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// GetPageSize 获取每页数量，提供默认值
func (p PaginationRequest) GetPageSize() int {
	if p.PageSize < 1 {
		return 20
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// ============================================================================
// 通用响应类型
// ============================================================================

// APIResponse 统一API响应格式
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// SuccessResponse 成功响应
func SuccessResponse(data any) APIResponse {
	return APIResponse{Success: true, Data: data, Code: CodeSuccess}
}

// SuccessMessageResponse 成功响应（带消息）
func SuccessMessageResponse(message string, data any) APIResponse {
	return APIResponse{Success: true, Data: data, Message: message, Code: CodeSuccess}
}

// ErrorResponse 错误响应
func ErrorResponse(code int, message string) APIResponse {
	return APIResponse{Success: false, Message: message, Code: code}
}

// PaginationMeta 分页元信息
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginationMeta 创建分页元信息
func NewPaginationMeta(page, pageSize int, total int64) PaginationMeta {
	meta := PaginationMeta{Page: page, PageSize: pageSize, Total: total}
	if pageSize > 0 {
		meta.TotalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return meta
}

// ListResponse 列表响应（包含分页信息）
type ListResponse struct {
	Items      any            `json:"items"`
	Pagination PaginationMeta `json:"pagination"`
}

// ============================================================================
// 业务状态码定义
// ============================================================================

const (
	CodeSuccess = 0

	// 通用错误码 (1000-1999)
	CodeInvalidRequest     = 1000
	CodeUnauthorized       = 1001
	CodeForbidden          = 1002
	CodeNotFound           = 1003
	CodeConflict           = 1004
	CodeInternalError      = 1005
	CodeServiceUnavailable = 1006
	CodeUnprocessable      = 1007

	// 项目与协作者 (2000-2099)
	CodeWorkNotFound         = 2000
	CodeLastOwner            = 2001
	CodeCollaboratorNotFound = 2002
	CodeCollaboratorExists   = 2003
	CodeUserNotFound         = 2010

	// 设备与部件 (3000-3099)
	CodeEquipmentNotFound  = 3000
	CodeComponentNotFound  = 3001
	CodeDuplicateEquipment = 3002

	// 提取任务 (4000-4099)
	CodeExtractionNotFound = 4000
	CodeInvalidPDF         = 4001
	CodeEnqueueFailed      = 4002

	// 报告文件 (5000-5099)
	CodeFileNotFound    = 5000
	CodeInvalidFileType = 5001
	CodeFileTooLarge    = 5002
)

// HTTPStatus 业务码对应的 HTTP 状态码
func HTTPStatus(code int) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidRequest, CodeInvalidFileType:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound, CodeWorkNotFound, CodeCollaboratorNotFound, CodeUserNotFound,
		CodeEquipmentNotFound, CodeComponentNotFound, CodeExtractionNotFound, CodeFileNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeLastOwner, CodeCollaboratorExists, CodeDuplicateEquipment:
		return http.StatusConflict
	case CodeUnprocessable, CodeInvalidPDF:
		return http.StatusUnprocessableEntity
	case CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeServiceUnavailable, CodeEnqueueFailed:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ============================================================================
// 通用业务错误类型
// ============================================================================

// BusinessError 业务错误，可作为哨兵错误配合 errors.Is/As 使用
type BusinessError struct {
	Code    int
	Message string
}

// Error 实现error接口
func (e *BusinessError) Error() string {
	return e.Message
}

// NewBusinessError 创建业务错误
func NewBusinessError(code int, message string) *BusinessError {
	return &BusinessError{Code: code, Message: message}
}

// Withf 附加细节，保留原业务错误以便 errors.Is 匹配
func (e *BusinessError) Withf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", e, fmt.Sprintf(format, args...))
}

// 通用哨兵错误
var (
	ErrInvalidRequest = NewBusinessError(CodeInvalidRequest, "请求参数错误")
	ErrForbidden      = NewBusinessError(CodeForbidden, "权限不足")
	ErrWorkNotFound   = NewBusinessError(CodeWorkNotFound, "项目不存在")
	ErrUserNotFound   = NewBusinessError(CodeUserNotFound, "用户不存在")

	ErrExtractionNotFound = NewBusinessError(CodeExtractionNotFound, "提取任务不存在")
)
