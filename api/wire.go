package api

import (
	"fmt"
	"time"

	"autorbi/internal/activity"
	"autorbi/internal/ai"
	openaiClient "autorbi/internal/ai/openai"
	"autorbi/internal/analytics"
	"autorbi/internal/auth"
	"autorbi/internal/config"
	"autorbi/internal/equipment"
	"autorbi/internal/extraction"
	"autorbi/internal/files"
	"autorbi/internal/infra"
	"autorbi/internal/infra/queue"
	"autorbi/internal/logger"
	"autorbi/internal/storage"
	"autorbi/internal/user"
	"autorbi/internal/work"
	"autorbi/internal/worker"

	analyticsHandlers "autorbi/api/handlers/analytics"
	equipmentHandlers "autorbi/api/handlers/equipments"
	extractionHandlers "autorbi/api/handlers/extractions"
	filesHandlers "autorbi/api/handlers/files"
	historyHandlers "autorbi/api/handlers/history"
	userHandlers "autorbi/api/handlers/users"
	workHandlers "autorbi/api/handlers/works"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AppContainer 应用依赖容器
type AppContainer struct {
	// 基础设施
	DB          *gorm.DB
	Config      *config.Config
	RedisClient redis.UniversalClient
	QueueClient *queue.Client
	Storage     *storage.Store
	Extractor   ai.Extractor

	// 认证
	JWTService *auth.JWTService

	// 业务服务
	UserService       *user.Service
	AnalyticsService  *analytics.Service
	ActivityService   *activity.Service
	WorkService       *work.Service
	EquipmentService  *equipment.Service
	FileService       *files.Service
	ExtractionService *extraction.Service

	// 后台任务
	WorkerServer *worker.Server

	logger *zap.Logger
}

// Handlers HTTP 处理器集合
type Handlers struct {
	Work       *workHandlers.Handler
	Equipment  *equipmentHandlers.Handler
	File       *filesHandlers.Handler
	Extraction *extractionHandlers.Handler
	Progress   *extractionHandlers.WebSocketHandler
	History    *historyHandlers.Handler
	User       *userHandlers.Handler
	Analytics  *analyticsHandlers.Handler
}

// InitContainer 初始化全部依赖
func InitContainer(db *gorm.DB, cfg *config.Config) (*AppContainer, error) {
	c := &AppContainer{DB: db, Config: cfg, logger: logger.Get()}

	c.initRedis()
	if err := c.initQueue(); err != nil {
		return nil, err
	}
	if err := c.initAuth(); err != nil {
		return nil, err
	}
	if err := c.initStorage(); err != nil {
		return nil, err
	}
	c.initExtractor()

	var enqueuer extraction.Enqueuer = unavailableQueue{}
	if c.QueueClient != nil {
		enqueuer = c.QueueClient
	}
	c.initServices(enqueuer)
	c.initWorker()
	return c, nil
}

// initRedis Redis 不可用时仅告警，就绪检查会报告该状态
func (c *AppContainer) initRedis() {
	redisCfg := normalizeRedisConfig(c.Config.Redis)
	c.Config.Redis = redisCfg

	rdb, err := infra.InitRedis(&redisCfg)
	if err != nil {
		c.logger.Warn("Redis 不可用，提取任务将无法排队", zap.Error(err))
		return
	}
	c.RedisClient = rdb
}

func (c *AppContainer) initQueue() error {
	if c.RedisClient == nil {
		return nil
	}
	opt, err := infra.AsynqRedisOpt(c.Config.Redis)
	if err != nil {
		return fmt.Errorf("初始化任务队列失败: %w", err)
	}
	c.QueueClient = queue.NewClient(opt, c.Config.Extraction, c.logger.Named("queue"))
	return nil
}

func (c *AppContainer) initAuth() error {
	secret, fallback := c.Config.SigningSecret()
	if secret == "" {
		return fmt.Errorf("auth.jwt_secret 未配置，生产环境禁止使用默认密钥")
	}
	if fallback {
		c.logger.Warn("auth.jwt_secret 未配置，已回退为开发默认值，请在生产环境设置强随机密钥")
	}
	ttl := time.Duration(c.Config.Auth.TokenTTL) * time.Second
	c.JWTService = auth.NewJWTService(secret, c.Config.Auth.Issuer, ttl)
	return nil
}

func (c *AppContainer) initStorage() error {
	store, err := storage.NewLocalStore(c.Config.Storage.BasePath, c.Config.Storage.MaxFileSize, c.logger.Named("storage"))
	if err != nil {
		return fmt.Errorf("初始化文件存储失败: %w", err)
	}
	c.Storage = store
	return nil
}

func (c *AppContainer) initExtractor() {
	client, err := openaiClient.NewClient(c.Config.AI.OpenAI, c.logger.Named("openai"))
	if err != nil {
		c.logger.Warn("AI 提取未配置，提取任务将失败", zap.Error(err))
		c.Extractor = ai.Unavailable{Reason: "未配置 OpenAI API Key"}
		return
	}
	c.Extractor = client
}

func (c *AppContainer) initServices(enqueuer extraction.Enqueuer) {
	c.UserService = user.NewService(c.DB, c.logger.Named("user"))
	c.AnalyticsService = analytics.NewService(c.DB)
	c.ActivityService = activity.NewService(c.DB, c.logger.Named("activity"))
	c.WorkService = work.NewService(c.DB, c.ActivityService, c.logger.Named("work"), work.WithUploads(c.Storage))
	c.EquipmentService = equipment.NewService(c.DB, c.WorkService, c.ActivityService, c.logger.Named("equipment"))
	c.FileService = files.NewService(c.DB, c.WorkService, c.ActivityService, c.logger.Named("files"))
	c.ExtractionService = extraction.NewService(extraction.Deps{
		DB:        c.DB,
		Works:     c.WorkService,
		Equipment: c.EquipmentService,
		Storage:   c.Storage,
		Queue:     enqueuer,
		Extractor: c.Extractor,
		Recorder:  c.ActivityService,
		Logger:    c.logger.Named("extraction"),
	}, extraction.OptionsFromConfig(c.Config.Extraction))
}

func (c *AppContainer) initWorker() {
	if c.RedisClient == nil {
		return
	}
	opt, err := infra.AsynqRedisOpt(c.Config.Redis)
	if err != nil {
		c.logger.Warn("Worker 初始化失败", zap.Error(err))
		return
	}
	c.WorkerServer = worker.NewServer(opt, c.Config.Extraction, c.ExtractionService, c.logger.Named("worker"))
}

// InitHandlers 创建 HTTP 处理器
func (c *AppContainer) InitHandlers() *Handlers {
	var inspector extractionHandlers.QueueInspector
	if c.QueueClient != nil {
		inspector = c.QueueClient
	}
	return &Handlers{
		Work:       workHandlers.NewHandler(c.WorkService),
		Equipment:  equipmentHandlers.NewHandler(c.EquipmentService),
		File:       filesHandlers.NewHandler(c.FileService),
		Extraction: extractionHandlers.NewHandler(c.ExtractionService, inspector),
		Progress:   extractionHandlers.NewWebSocketHandler(c.ExtractionService, c.Config.Extraction.PollIntervalDuration()),
		History:    historyHandlers.NewHandler(c.ActivityService, c.WorkService),
		User:       userHandlers.NewHandler(c.UserService),
		Analytics:  analyticsHandlers.NewHandler(c.AnalyticsService),
	}
}

// Close 释放队列连接
func (c *AppContainer) Close() {
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			c.logger.Warn("关闭任务队列失败", zap.Error(err))
		}
	}
}
