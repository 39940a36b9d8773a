package api

import (
	"autorbi/internal/auth"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, container *AppContainer, handlers *Handlers) {
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware(container.JWTService, container.UserService))
	registerAPIRoutes(api, handlers)
}

// registerAPIRoutes 注册需要认证的 API 路由
func registerAPIRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	// WebSocket
	apiGroup.GET("/ws/extractions/:id", h.Progress.Connect)

	// 项目管理
	registerWorkRoutes(apiGroup, h)

	// 设备与部件
	registerEquipmentRoutes(apiGroup, h)

	// 文件记录
	apiGroup.DELETE("/files/:id", h.File.Delete)

	// 提取任务
	registerExtractionRoutes(apiGroup, h)

	// 操作历史
	registerHistoryRoutes(apiGroup, h)

	// 用户与管理
	registerUserRoutes(apiGroup, h)
	registerAdminRoutes(apiGroup, h)
	registerAnalyticsRoutes(apiGroup, h)
}

func registerWorkRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	works := apiGroup.Group("/works")
	{
		works.GET("", h.Work.List)
		works.POST("", h.Work.Create)
		works.GET("/:id", h.Work.Get)
		works.PUT("/:id", h.Work.Update)
		works.DELETE("/:id", h.Work.Delete)
		works.GET("/:id/summary", h.Work.Summary)

		works.GET("/:id/collaborators", h.Work.ListCollaborators)
		works.POST("/:id/collaborators", h.Work.AddCollaborator)
		works.PUT("/:id/collaborators/:user_id", h.Work.UpdateCollaborator)
		works.DELETE("/:id/collaborators/:user_id", h.Work.RemoveCollaborator)

		works.GET("/:id/files", h.File.List)
		works.POST("/:id/files", h.File.Register)
		works.GET("/:id/files/latest", h.File.Latest)

		works.POST("/:id/extraction/start", h.Extraction.Start)
		works.GET("/:id/extraction/latest", h.Extraction.Latest)
		works.GET("/:id/extractions", h.Extraction.List)
	}
}

func registerEquipmentRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	equipments := apiGroup.Group("/equipments")
	{
		equipments.POST("", h.Equipment.Create)
		equipments.POST("/bulk", h.Equipment.BulkImport)
		equipments.GET("/work/:work_id", h.Equipment.ListByWork)

		equipments.PUT("/components/bulk", h.Equipment.BulkUpdateComponents)
		equipments.GET("/components/:component_id", h.Equipment.GetComponent)
		equipments.PUT("/components/:component_id", h.Equipment.UpdateComponent)
		equipments.DELETE("/components/:component_id", h.Equipment.DeleteComponent)

		equipments.GET("/:id", h.Equipment.Get)
		equipments.PUT("/:id", h.Equipment.Update)
		equipments.DELETE("/:id", h.Equipment.Delete)
		equipments.GET("/:id/components", h.Equipment.ListComponents)
		equipments.POST("/:id/components", h.Equipment.CreateComponent)
	}
}

func registerExtractionRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	extractions := apiGroup.Group("/extractions")
	{
		extractions.GET("/progress", h.Extraction.Progress)
		extractions.GET("/:id/status", h.Extraction.Status)
	}
}

func registerHistoryRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	history := apiGroup.Group("/history")
	{
		history.GET("/user/:user_id", h.History.ByUser)
		history.GET("/work/:work_id", h.History.ByWork)
		history.GET("/entity/:entity_type/:entity_id", h.History.ByEntity)
		history.GET("/action/:action", h.History.ByAction)
		history.GET("/period", h.History.ByPeriod)
		history.GET("/summary", h.History.Summary)
		history.POST("/log", h.History.Log)
	}
}

func registerUserRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	users := apiGroup.Group("/users")
	{
		users.GET("", h.User.List)
		users.GET("/me", h.User.Me)
		users.PUT("/me", h.User.UpdateMe)
		users.GET("/:id", h.User.Get)
		users.PUT("/:id", h.User.Update)
		users.DELETE("/:id", h.User.Delete)
		users.PUT("/:id/deactivate", h.User.Deactivate)
		users.PUT("/:id/reactivate", h.User.Reactivate)
	}
}

func registerAdminRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	admin := apiGroup.Group("/admin")
	{
		admin.GET("/works", h.Work.AdminList)
		admin.POST("/works/assign", h.Work.Assign)
		admin.GET("/users/:id/works", h.Work.ListForUser)
		admin.GET("/extraction-queue", h.Extraction.QueueStats)
	}
}

func registerAnalyticsRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	analytics := apiGroup.Group("/analytics")
	{
		analytics.GET("/extractions/status", h.Analytics.ExtractionStatus)
		analytics.GET("/works/status", h.Analytics.WorkStatus)
		analytics.GET("/files/versions", h.Analytics.FileVersions)
		analytics.GET("/users/activity", h.Analytics.UserActivity)
		analytics.GET("/components/count", h.Analytics.ComponentCount)
		analytics.GET("/equipment/count", h.Analytics.EquipmentCount)
	}
}
