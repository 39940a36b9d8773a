// Package ai 设备数据提取所用的大模型客户端
package ai

import (
	"context"
	"errors"
)

// Extractor 将单页文本与提取提示发送给模型，返回模型原始回复
type Extractor interface {
	ExtractPage(ctx context.Context, prompt, pageText string) (string, error)
	Name() string
}

// ErrorType 错误类型
type ErrorType string

const (
	ErrorTypeAuth          ErrorType = "auth"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeInvalidParams ErrorType = "invalid_params"
	ErrorTypeServerError   ErrorType = "server_error"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeEmpty         ErrorType = "empty_response"
	ErrorTypeUnknown       ErrorType = "unknown"
)

// ClientError 模型调用错误
type ClientError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error 实现error接口
func (e *ClientError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap 返回原始错误
func (e *ClientError) Unwrap() error {
	return e.Err
}

// IsRetryable 限流、网络与服务端错误可重试
func (e *ClientError) IsRetryable() bool {
	return e.Type == ErrorTypeRateLimit || e.Type == ErrorTypeNetwork || e.Type == ErrorTypeServerError
}

// IsRetryable 判断任意错误是否可重试
func IsRetryable(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.IsRetryable()
}

// SystemPrompt 提取任务的系统提示
const SystemPrompt = "You are an expert at reading engineering General Arrangement drawings and " +
	"pressure equipment datasheets. Extract the requested component data and reply with JSON only."

// Unavailable 未配置模型时的占位实现，所有调用返回认证错误
type Unavailable struct {
	Reason string
}

// ExtractPage 实现 Extractor
func (u Unavailable) ExtractPage(context.Context, string, string) (string, error) {
	return "", &ClientError{Type: ErrorTypeAuth, Message: u.Reason}
}

// Name 实现 Extractor
func (Unavailable) Name() string {
	return "unavailable"
}
