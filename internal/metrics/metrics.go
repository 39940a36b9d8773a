package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorbi_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autorbi_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 提取任务指标
var (
	// ExtractionsTotal 提取任务结束总数
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorbi_extractions_total",
			Help: "提取任务按终态计数",
		},
		[]string{"status"},
	)

	// ExtractionDuration 提取任务耗时（秒）
	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autorbi_extraction_duration_seconds",
			Help:    "提取任务耗时分布",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	// ExtractionPagesProcessed 已处理页数
	ExtractionPagesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autorbi_extraction_pages_processed_total",
			Help: "AI 已处理的 PDF 页数",
		},
	)

	// ExtractionCompleteness 提取完整度（百分比）
	ExtractionCompleteness = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autorbi_extraction_completeness_percent",
			Help:    "提取结果完整度分布",
			Buckets: []float64{25, 50, 70, 85, 95, 100},
		},
	)
)

// AI 调用指标
var (
	// ModelCallsTotal 模型调用总数
	ModelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorbi_model_calls_total",
			Help: "AI 模型调用总数",
		},
		[]string{"model", "status"},
	)

	// ModelCallDuration 模型调用耗时（秒）
	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autorbi_model_call_duration_seconds",
			Help:    "AI 模型调用耗时分布",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model"},
	)
)

// 活动日志指标
var (
	// ActivityWritesTotal 活动日志写入总数
	ActivityWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorbi_activity_writes_total",
			Help: "活动日志写入总数",
		},
		[]string{"entity_type", "action"},
	)

	// ActivityWriteFailures 活动日志写入失败数（已吞掉的错误）
	ActivityWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorbi_activity_write_failures_total",
			Help: "活动日志写入失败总数",
		},
		[]string{"entity_type"},
	)
)
