package files

import (
	hc "autorbi/api/handlers/common"
	"autorbi/internal/common"
	filesSvc "autorbi/internal/files"
	"autorbi/internal/models"

	"github.com/gin-gonic/gin"
)

// Handler 报告文件处理器
type Handler struct {
	svc *filesSvc.Service
}

// NewHandler 构造函数
func NewHandler(svc *filesSvc.Service) *Handler {
	return &Handler{svc: svc}
}

// List 项目文件列表
// @Summary 项目报告文件列表
// @Description 按类型升序、版本降序
// @Tags Files
// @Security BearerAuth
// @Produce json
// @Param id path int true "项目 ID"
// @Param file_type query string false "excel 或 powerpoint"
// @Success 200 {object} common.APIResponse
// @Router /api/works/{id}/files [get]
func (h *Handler) List(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	workID, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.List(c.Request.Context(), actor, workID, models.FileType(c.Query("file_type")))
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, list)
}

// Latest 某类型的最新版本
// @Summary 最新版本文件
// @Tags Files
// @Security BearerAuth
// @Produce json
// @Param id path int true "项目 ID"
// @Param file_type query string true "excel 或 powerpoint"
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /api/works/{id}/files/latest [get]
func (h *Handler) Latest(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	workID, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	f, err := h.svc.Latest(c.Request.Context(), actor, workID, models.FileType(c.Query("file_type")))
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, f)
}

// Register 登记文件新版本
// @Summary 登记报告文件
// @Description 版本号按项目与文件类型递增，已删除版本的编号不再使用；并发冲突重试后仍失败返回 409
// @Tags Files
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "项目 ID"
// @Param request body filesSvc.RegisterInput true "文件信息"
// @Success 201 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse
// @Router /api/works/{id}/files [post]
func (h *Handler) Register(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	workID, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	var in filesSvc.RegisterInput
	if !hc.BindJSON(c, &in) {
		return
	}
	f, err := h.svc.Register(c.Request.Context(), actor, workID, in)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseCreated(c, f)
}

// Delete 删除文件
// @Summary 删除报告文件
// @Tags Files
// @Security BearerAuth
// @Produce json
// @Param id path int true "文件 ID"
// @Success 200 {object} common.APIResponse
// @Router /api/files/{id} [delete]
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
	common.ResponseSuccessMessage(c, "文件已删除", nil)
}
