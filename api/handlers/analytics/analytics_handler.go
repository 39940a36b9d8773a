package analytics

import (
	"context"

	hc "autorbi/api/handlers/common"
	"autorbi/internal/analytics"
	"autorbi/internal/auth"
	"autorbi/internal/common"

	"github.com/gin-gonic/gin"
)

// Handler 统计处理器，全部接口仅管理员可用
type Handler struct {
	svc *analytics.Service
}

// NewHandler 创建统计处理器
func NewHandler(svc *analytics.Service) *Handler {
	return &Handler{svc: svc}
}

type metricFunc func(ctx context.Context, actor auth.Actor, q analytics.Query) (*analytics.Metric, error)

func (h *Handler) serve(c *gin.Context, fn metricFunc) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	var q analytics.Query
	if err := c.ShouldBindQuery(&q); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}
	m, err := fn(c.Request.Context(), actor, q)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, m)
}

// ExtractionStatus 提取任务状态分布
// @Summary 提取任务状态分布
// @Tags Analytics
// @Security BearerAuth
// @Produce json
// @Param period query string false "last_7_days/last_30_days/all_time"
// @Param group_by query string false "user_id/work_id"
// @Success 200 {object} common.APIResponse
// @Failure 403 {object} common.APIResponse
// @Router /api/analytics/extractions/status [get]
func (h *Handler) ExtractionStatus(c *gin.Context) {
	h.serve(c, h.svc.ExtractionStatus)
}

// WorkStatus 项目状态分布
// @Summary 项目状态分布
// @Tags Analytics
// @Security BearerAuth
// @Produce json
// @Param period query string false "last_7_days/last_30_days/all_time"
// @Param group_by query string false "user_id"
// @Success 200 {object} common.APIResponse
// @Router /api/analytics/works/status [get]
func (h *Handler) WorkStatus(c *gin.Context) {
	h.serve(c, h.svc.WorkStatus)
}

// FileVersions 报告文件版本分布
// @Summary 报告文件版本分布
// @Tags Analytics
// @Security BearerAuth
// @Produce json
// @Param period query string false "last_7_days/last_30_days/all_time"
// @Param group_by query string false "file_type/work_id"
// @Success 200 {object} common.APIResponse
// @Router /api/analytics/files/versions [get]
func (h *Handler) FileVersions(c *gin.Context) {
	h.serve(c, h.svc.FileVersions)
}

// UserActivity 用户活动
// @Summary 用户活动
// @Tags Analytics
// @Security BearerAuth
// @Produce json
// @Param period query string false "last_7_days/last_30_days/all_time"
// @Success 200 {object} common.APIResponse
// @Router /api/analytics/users/activity [get]
func (h *Handler) UserActivity(c *gin.Context) {
	h.serve(c, h.svc.UserActivity)
}

// ComponentCount 部件数量
// @Summary 部件数量
// @Tags Analytics
// @Security BearerAuth
// @Produce json
// @Param period query string false "last_7_days/last_30_days/all_time"
// @Param group_by query string false "phase/fluid"
// @Success 200 {object} common.APIResponse
// @Router /api/analytics/components/count [get]
func (h *Handler) ComponentCount(c *gin.Context) {
	h.serve(c, h.svc.ComponentCount)
}

// EquipmentCount 各项目设备数量
// @Summary 各项目设备数量
// @Tags Analytics
// @Security BearerAuth
// @Produce json
// @Param period query string false "last_7_days/last_30_days/all_time"
// @Success 200 {object} common.APIResponse
// @Router /api/analytics/equipment/count [get]
func (h *Handler) EquipmentCount(c *gin.Context) {
	h.serve(c, h.svc.EquipmentCount)
}
