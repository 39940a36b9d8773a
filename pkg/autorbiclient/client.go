// Package autorbiclient AutoRBI HTTP API 的轻量客户端，用于查询与跟踪提取进度
package autorbiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client AutoRBI API 客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	headers    map[string]string
	retries    int
}

// ClientOption 客户端配置选项
type ClientOption func(*Client)

// WithTimeout 设置请求超时时间
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
		c.httpClient.Timeout = timeout
	}
}

// WithHeaders 设置默认请求头
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithToken 设置 Bearer 令牌
func WithToken(token string) ClientOption {
	return func(c *Client) {
		if token != "" {
			c.headers["Authorization"] = "Bearer " + token
		}
	}
}

// WithRetries 设置 5xx 或网络错误时的重试次数
func WithRetries(retries int) ClientOption {
	return func(c *Client) {
		c.retries = retries
	}
}

// WithHTTPClient 替换底层 HTTP 客户端
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient 创建客户端，baseURL 形如 http://localhost:8000
func NewClient(baseURL string, opts ...ClientOption) *Client {
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		timeout: 30 * time.Second,
		headers: make(map[string]string),
	}

	for _, opt := range opts {
		opt(client)
	}

	if _, ok := client.headers["User-Agent"]; !ok {
		client.headers["User-Agent"] = "autorbi-client/1.0"
	}
	return client
}

// APIError 服务端返回的业务错误
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("autorbi: HTTP %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

// Permanent 重试不会改变结果的错误：未认证、无权限、任务不存在
func (e *APIError) Permanent() bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// envelope 统一响应格式
type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do 执行请求（支持重试），4xx 不重试
func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	var (
		resp *http.Response
		err  error
	)
	for i := 0; i <= c.retries; i++ {
		req, reqErr := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
		if reqErr != nil {
			return nil, fmt.Errorf("创建请求失败: %w", reqErr)
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		resp, err = c.httpClient.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if i == c.retries {
			break
		}
		if resp != nil {
			resp.Body.Close()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
		}
	}
	return resp, err
}

// getJSON 发送 GET 请求并将 data 字段解析到 result
func (c *Client) getJSON(ctx context.Context, path string, result interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return fmt.Errorf("GET %s 失败: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}
		return fmt.Errorf("解析JSON响应失败: %w", err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if result == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return fmt.Errorf("解析响应数据失败: %w", err)
	}
	return nil
}

// Status 单个提取任务进度
type Status struct {
	ID              uint      `json:"id"`
	WorkID          uint      `json:"work_id"`
	Status          string    `json:"status"`
	OriginalFile    string    `json:"original_filename,omitempty"`
	TotalPages      int       `json:"total_pages"`
	ProcessedPages  int       `json:"processed_pages"`
	ProgressPercent float64   `json:"progress_percent"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Terminal 任务是否已结束
func (s Status) Terminal() bool {
	return s.Status == "completed" || s.Status == "failed"
}

// Progress 服务端汇总的多任务进度
type Progress struct {
	Jobs           int      `json:"jobs"`
	TotalPages     int      `json:"total_pages"`
	ProcessedPages int      `json:"processed_pages"`
	Percent        float64  `json:"percent"`
	Pending        int      `json:"pending"`
	InProgress     int      `json:"in_progress"`
	Completed      int      `json:"completed"`
	Failed         int      `json:"failed"`
	Done           bool     `json:"done"`
	Extractions    []Status `json:"extractions"`
}

// ExtractionStatus 查询单个提取任务
func (c *Client) ExtractionStatus(ctx context.Context, id uint) (*Status, error) {
	var s Status
	if err := c.getJSON(ctx, fmt.Sprintf("/api/extractions/%d/status", id), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// AggregateProgress 由服务端一次性汇总多个任务的进度
func (c *Client) AggregateProgress(ctx context.Context, ids []uint) (*Progress, error) {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatUint(uint64(id), 10))
	}
	q := url.Values{"ids": {strings.Join(parts, ",")}}

	var p Progress
	if err := c.getJSON(ctx, "/api/extractions/progress?"+q.Encode(), &p); err != nil {
		return nil, err
	}
	return &p, nil
}
