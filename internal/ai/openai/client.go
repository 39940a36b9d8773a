package openai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"autorbi/internal/ai"
	"autorbi/internal/config"
	"autorbi/internal/metrics"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Client OpenAI 提取客户端
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	maxRetries  int
	backoff     time.Duration
	logger      *zap.Logger
}

var _ ai.Extractor = (*Client)(nil)

// NewClient 创建 OpenAI 提取客户端
func NewClient(cfg config.OpenAIConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &ai.ClientError{Type: ai.ErrorTypeAuth, Message: "OpenAI API Key 不能为空"}
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.OrgID != "" {
		clientConfig.OrgID = cfg.OrgID
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  maxRetries,
		backoff:     time.Second,
		logger:      logger,
	}, nil
}

// Name 返回客户端名称
func (c *Client) Name() string {
	return "openai:" + c.model
}

// ExtractPage 发送单页文本，要求模型以 JSON 对象回复
func (c *Client) ExtractPage(ctx context.Context, prompt, pageText string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: ai.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt + "\n\nPAGE TEXT:\n" + pageText},
		},
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	start := time.Now()
	var resp openai.ChatCompletionResponse
	var err error
	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
		err = wrapError(err)
		if !ai.IsRetryable(err) || i == c.maxRetries {
			break
		}

		// 指数退避
		wait := c.backoff * time.Duration(1<<uint(i))
		c.logger.Warn("模型调用失败，准备重试",
			zap.String("model", c.model),
			zap.Int("attempt", i+1),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	metrics.ModelCallDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ModelCallsTotal.WithLabelValues(c.model, "error").Inc()
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		metrics.ModelCallsTotal.WithLabelValues(c.model, "empty").Inc()
		return "", &ai.ClientError{Type: ai.ErrorTypeEmpty, Message: "API 返回空响应"}
	}

	metrics.ModelCallsTotal.WithLabelValues(c.model, "success").Inc()
	c.logger.Debug("模型调用完成",
		zap.String("model", c.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// wrapError 按 HTTP 状态码归类错误
func wrapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	var errType ai.ErrorType
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		errType = ai.ErrorTypeAuth
	case status == http.StatusTooManyRequests:
		errType = ai.ErrorTypeRateLimit
	case status >= 500:
		errType = ai.ErrorTypeServerError
	case status >= 400:
		errType = ai.ErrorTypeInvalidParams
	case isNetworkError(err):
		errType = ai.ErrorTypeNetwork
	default:
		errType = ai.ErrorTypeUnknown
	}
	return &ai.ClientError{Type: errType, Message: "OpenAI API 错误", Err: err}
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}
