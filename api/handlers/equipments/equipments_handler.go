package equipments

import (
	hc "autorbi/api/handlers/common"
	"autorbi/internal/common"
	"autorbi/internal/equipment"

	"github.com/gin-gonic/gin"
)

// Handler 设备与部件处理器
type Handler struct {
	svc *equipment.Service
}

// NewHandler 创建设备处理器
func NewHandler(svc *equipment.Service) *Handler {
	return &Handler{svc: svc}
}

// BulkImportRequest 批量导入请求
type BulkImportRequest struct {
	WorkID uint                       `json:"work_id" binding:"required"`
	Items  []equipment.EquipmentInput `json:"items" binding:"required,min=1,dive"`
}

// BulkUpdateComponentsRequest 批量更新部件请求
type BulkUpdateComponentsRequest struct {
	Components []equipment.ComponentPatch `json:"components" binding:"required,min=1,dive"`
}

// Create 创建设备
// @Summary 创建设备（可附带部件）
// @Tags Equipments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body equipment.EquipmentInput true "设备信息"
// @Success 201 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse
// @Router /api/equipments [post]
func (h *Handler) Create(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	var in equipment.EquipmentInput
	if !hc.BindJSON(c, &in) {
		return
	}
	eq, err := h.svc.Create(c.Request.Context(), actor, in)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseCreated(c, eq)
}

// BulkImport 批量导入设备
// @Summary 批量导入设备
// @Description 编号重复的设备跳过并在 skipped 中返回；其余任一条失败时整批回滚
// @Tags Equipments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body BulkImportRequest true "设备列表"
// @Success 201 {object} common.APIResponse
// @Failure 400 {object} common.APIResponse
// @Router /api/equipments/bulk [post]
func (h *Handler) BulkImport(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	var req BulkImportRequest
	if !hc.BindJSON(c, &req) {
		return
	}
	result, err := h.svc.BulkImport(c.Request.Context(), actor, req.WorkID, req.Items)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseCreated(c, result)
}

// ListByWork 项目设备列表
// @Summary 项目设备列表
// @Tags Equipments
// @Security BearerAuth
// @Produce json
// @Param work_id path int true "项目 ID"
// @Success 200 {object} common.APIResponse
// @Router /api/equipments/work/{work_id} [get]
func (h *Handler) ListByWork(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	workID, ok := hc.PathID(c, "work_id")
	if !ok {
		return
	}
	list, err := h.svc.ListByWork(c.Request.Context(), actor, workID)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, list)
}

// Get 设备详情
// @Summary 设备详情（含部件）
// @Tags Equipments
// @Security BearerAuth
// @Produce json
// @Param id path int true "设备 ID"
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /api/equipments/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	eq, err := h.svc.Get(c.Request.Context(), actor, id)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, eq)
}

// Update 更新设备
// @Summary 更新设备
// @Tags Equipments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "设备 ID"
// @Param request body equipment.EquipmentUpdate true "修改内容"
// @Success 200 {object} common.APIResponse
// @Router /api/equipments/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	var in equipment.EquipmentUpdate
	if !hc.BindJSON(c, &in) {
		return
	}
	eq, err := h.svc.Update(c.Request.Context(), actor, id, in)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, eq)
}

// Delete 删除设备
// @Summary 删除设备及其部件
// @Tags Equipments
// @Security BearerAuth
// @Produce json
// @Param id path int true "设备 ID"
// @Success 200 {object} common.APIResponse
// @Router /api/equipments/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), actor, id); err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, "设备已删除", nil)
}

// ListComponents 设备部件列表
// @Summary 设备部件列表
// @Tags Components
// @Security BearerAuth
// @Produce json
// @Param id path int true "设备 ID"
// @Success 200 {object} common.APIResponse
// @Router /api/equipments/{id}/components [get]
func (h *Handler) ListComponents(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.ListComponents(c.Request.Context(), actor, id)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, list)
}

// CreateComponent 添加部件
// @Summary 添加部件
// @Tags Components
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "设备 ID"
// @Param request body equipment.ComponentInput true "部件信息"
// @Success 201 {object} common.APIResponse
// @Router /api/equipments/{id}/components [post]
func (h *Handler) CreateComponent(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	var in equipment.ComponentInput
	if !hc.BindJSON(c, &in) {
		return
	}
	comp, err := h.svc.CreateComponent(c.Request.Context(), actor, id, in)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseCreated(c, comp)
}

// GetComponent 部件详情
// @Summary 部件详情
// @Tags Components
// @Security BearerAuth
// @Produce json
// @Param component_id path int true "部件 ID"
// @Success 200 {object} common.APIResponse
// @Router /api/equipments/components/{component_id} [get]
func (h *Handler) GetComponent(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "component_id")
	if !ok {
		return
	}
	comp, err := h.svc.GetComponent(c.Request.Context(), actor, id)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, comp)
}

// UpdateComponent 更新部件
// @Summary 更新部件
// @Tags Components
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param component_id path int true "部件 ID"
// @Param request body equipment.ComponentUpdate true "修改内容"
// @Success 200 {object} common.APIResponse
// @Router /api/equipments/components/{component_id} [put]
func (h *Handler) UpdateComponent(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "component_id")
	if !ok {
		return
	}
	var in equipment.ComponentUpdate
	if !hc.BindJSON(c, &in) {
		return
	}
	comp, err := h.svc.UpdateComponent(c.Request.Context(), actor, id, in)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, comp)
}

// BulkUpdateComponents 批量更新部件
// @Summary 批量更新部件
// @Description 全部成功或全部回滚，任一部件不存在返回 404
// @Tags Components
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body BulkUpdateComponentsRequest true "部件修改列表"
// @Success 200 {object} common.APIResponse
// @Router /api/equipments/components/bulk [put]
func (h *Handler) BulkUpdateComponents(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	var req BulkUpdateComponentsRequest
	if !hc.BindJSON(c, &req) {
		return
	}
	list, err := h.svc.BulkUpdateComponents(c.Request.Context(), actor, req.Components)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, list)
}

// DeleteComponent 删除部件
// @Summary 删除部件
// @Tags Components
// @Security BearerAuth
// @Produce json
// @Param component_id path int true "部件 ID"
// @Success 200 {object} common.APIResponse
// @Router /api/equipments/components/{component_id} [delete]
func (h *Handler) DeleteComponent(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "component_id")
	if !ok {
		return
	}
	if err := h.svc.DeleteComponent(c.Request.Context(), actor, id); err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, "部件已删除", nil)
}
