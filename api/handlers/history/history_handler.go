package history

import (
	"context"

	hc "autorbi/api/handlers/common"
	"autorbi/internal/activity"
	"autorbi/internal/auth"
	"autorbi/internal/common"
	"autorbi/internal/models"

	"github.com/gin-gonic/gin"
)

// WorkAuthorizer 项目权限校验
type WorkAuthorizer interface {
	Authorize(ctx context.Context, actor auth.Actor, workID uint, min models.CollaboratorRole) (*models.Work, error)
}

// Handler 活动历史处理器
type Handler struct {
	svc   *activity.Service
	works WorkAuthorizer
}

// NewHandler 创建活动历史处理器
func NewHandler(svc *activity.Service, works WorkAuthorizer) *Handler {
	return &Handler{svc: svc, works: works}
}

// LogRequest 手动写入活动请求
type LogRequest struct {
	EntityType models.EntityType      `json:"entity_type" binding:"required"`
	EntityID   uint                   `json:"entity_id" binding:"required"`
	Action     models.Action          `json:"action" binding:"required"`
	WorkID     uint                   `json:"work_id"`
	Data       map[string]interface{} `json:"data"`
}

// UserHistoryResponse 用户活动分页结果
type UserHistoryResponse struct {
	Items  []models.Activity `json:"items"`
	Total  int64             `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// ByUser 用户活动
// @Summary 用户活动历史
// @Description 非管理员只能查询自己的活动
// @Tags History
// @Security BearerAuth
// @Produce json
// @Param user_id path int true "用户 ID"
// @Param entity_type query string false "实体类型"
// @Param limit query int false "1-500，默认 50"
// @Param offset query int false "偏移量"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} common.APIResponse
// @Router /api/history/user/{user_id} [get]
func (h *Handler) ByUser(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	userID, ok := hc.PathID(c, "user_id")
	if !ok {
		return
	}
	if userID != actor.UserID && !actor.IsAdmin() {
		common.WriteError(c, common.ErrForbidden.Withf("只能查询自己的活动"))
		return
	}
	limit, ok := hc.QueryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := hc.QueryInt(c, "offset")
	if !ok {
		return
	}

	acts, total, err := h.svc.ByUser(c.Request.Context(), activity.UserQuery{
		UserID:     userID,
		EntityType: models.EntityType(c.Query("entity_type")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		common.WriteError(c, err)
		return
	}
	if limit == 0 {
		limit = activity.DefaultUserLimit
	}
	common.ResponseSuccess(c, UserHistoryResponse{Items: acts, Total: total, Limit: limit, Offset: offset})
}

// ByWork 项目活动
// @Summary 项目活动历史
// @Description 包含项目本身及其设备、部件、文件、提取任务的活动，新记录在前
// @Tags History
// @Security BearerAuth
// @Produce json
// @Param work_id path int true "项目 ID"
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /api/history/work/{work_id} [get]
func (h *Handler) ByWork(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	workID, ok := hc.PathID(c, "work_id")
	if !ok {
		return
	}
	if _, err := h.works.Authorize(c.Request.Context(), actor, workID, models.RoleViewer); err != nil {
		common.WriteError(c, err)
		return
	}
	acts, err := h.svc.ByWork(c.Request.Context(), workID)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, acts)
}

// ByEntity 实体活动
// @Summary 单个实体的活动历史
// @Tags History
// @Security BearerAuth
// @Produce json
// @Param entity_type path string true "work|equipment|component|file|extraction"
// @Param entity_id path int true "实体 ID"
// @Param limit query int false "1-500，默认 100"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} common.APIResponse
// @Router /api/history/entity/{entity_type}/{entity_id} [get]
func (h *Handler) ByEntity(c *gin.Context) {
	if _, ok := hc.Actor(c); !ok {
		return
	}
	entityID, ok := hc.PathID(c, "entity_id")
	if !ok {
		return
	}
	limit, ok := hc.QueryInt(c, "limit")
	if !ok {
		return
	}
	acts, err := h.svc.ByEntity(c.Request.Context(), models.EntityType(c.Param("entity_type")), entityID, limit)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, acts)
}

// ByAction 按动作查询
// @Summary 按动作查询活动
// @Tags History
// @Security BearerAuth
// @Produce json
// @Param action path string true "created|updated|deleted|status_changed|uploaded"
// @Param limit query int false "1-500，默认 100"
// @Param offset query int false "偏移量"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} common.APIResponse
// @Router /api/history/action/{action} [get]
func (h *Handler) ByAction(c *gin.Context) {
	if _, ok := hc.Actor(c); !ok {
		return
	}
	limit, ok := hc.QueryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := hc.QueryInt(c, "offset")
	if !ok {
		return
	}
	acts, err := h.svc.ByAction(c.Request.Context(), models.Action(c.Param("action")), limit, offset)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, acts)
}

// ByPeriod 最近一段时间的活动
// @Summary 最近 N 天的活动
// @Tags History
// @Security BearerAuth
// @Produce json
// @Param days query int false "1-365，默认 7"
// @Param limit query int false "1-500，默认 100"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} common.APIResponse
// @Router /api/history/period [get]
func (h *Handler) ByPeriod(c *gin.Context) {
	if _, ok := hc.Actor(c); !ok {
		return
	}
	days, ok := hc.QueryInt(c, "days")
	if !ok {
		return
	}
	limit, ok := hc.QueryInt(c, "limit")
	if !ok {
		return
	}
	acts, err := h.svc.ByPeriod(c.Request.Context(), days, limit)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, acts)
}

// Summary 活动统计
// @Summary 活动统计
// @Description 按实体类型与动作分组计数
// @Tags History
// @Security BearerAuth
// @Produce json
// @Param days query int false "1-365，默认 7"
// @Success 200 {object} common.APIResponse
// @Router /api/history/summary [get]
func (h *Handler) Summary(c *gin.Context) {
	if _, ok := hc.Actor(c); !ok {
		return
	}
	days, ok := hc.QueryInt(c, "days")
	if !ok {
		return
	}
	sum, err := h.svc.Summarize(c.Request.Context(), days)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, sum)
}

// Log 手动写入活动
// @Summary 写入活动记录
// @Description 操作人取自令牌；实体必须存在，需拥有其所属项目的 editor 权限，work_id 由实体推导
// @Tags History
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body LogRequest true "活动内容"
// @Success 201 {object} common.APIResponse
// @Failure 400 {object} common.APIResponse
// @Failure 403 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /api/history/log [post]
func (h *Handler) Log(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	var req LogRequest
	if !hc.BindJSON(c, &req) {
		return
	}
	if !req.EntityType.Valid() {
		common.WriteError(c, activity.ErrInvalidEntityType.Withf("%s", req.EntityType))
		return
	}

	ctx := c.Request.Context()
	workID, err := h.svc.WorkOf(ctx, req.EntityType, req.EntityID)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	if req.WorkID != 0 && req.WorkID != workID {
		common.WriteError(c, common.ErrInvalidRequest.Withf("work_id 与实体所属项目不一致"))
		return
	}
	if _, err := h.works.Authorize(ctx, actor, workID, models.RoleEditor); err != nil {
		common.WriteError(c, err)
		return
	}

	act, err := h.svc.Log(ctx, activity.Entry{
		UserID:     actor.UserID,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Action:     req.Action,
		WorkID:     workID,
		Data:       req.Data,
	})
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseCreated(c, act)
}
