package api

import (
	"context"
	"errors"

	_ "autorbi/api/docs"
	"autorbi/internal/config"
	"autorbi/internal/logger"
	"autorbi/internal/metrics"
	middlewarepkg "autorbi/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// errQueueUnavailable Redis 未连接时的排队错误
var errQueueUnavailable = errors.New("任务队列不可用")

// unavailableQueue Redis 缺失时使用，新建的提取任务会立即标记为失败
type unavailableQueue struct{}

func (unavailableQueue) EnqueueExtraction(context.Context, uint) error {
	return errQueueUnavailable
}

// SetupRouter 初始化依赖并返回 Gin 路由与容器
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *AppContainer, error) {
	container, err := InitContainer(db, cfg)
	if err != nil {
		return nil, nil, err
	}
	return NewRouter(container), container, nil
}

// NewRouter 基于已初始化的容器构建路由
func NewRouter(container *AppContainer) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middlewarepkg.RequestIDMiddleware(),
		RequestLogger(),
		CORS(container.Config.Server.CORS),
		metrics.PrometheusMiddleware(),
	)

	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(container.DB, container.RedisClient))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	handlers := container.InitHandlers()
	RegisterRoutes(router, container, handlers)

	logger.OrNop().Info("路由注册完成", zap.Int("routes", len(router.Routes())))
	return router
}
