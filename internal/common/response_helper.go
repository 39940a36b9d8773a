package common

import (
	"errors"
	"net/http"

	"autorbi/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ResponseSuccess 返回成功响应
func ResponseSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, SuccessResponse(data))
}

// ResponseSuccessMessage 返回成功响应（带消息）
func ResponseSuccessMessage(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, SuccessMessageResponse(message, data))
}

// ResponseCreated 返回创建成功响应（201）
func ResponseCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, SuccessResponse(data))
}

// ResponseAccepted 返回已受理响应（202），用于后台任务
func ResponseAccepted(c *gin.Context, message string, data any) {
	c.JSON(http.StatusAccepted, SuccessMessageResponse(message, data))
}

// ResponseList 返回分页列表响应
func ResponseList(c *gin.Context, items any, total int64, req PaginationRequest) {
	c.JSON(http.StatusOK, SuccessResponse(ListResponse{
		Items:      items,
		Pagination: NewPaginationMeta(req.GetPage(), req.GetPageSize(), total),
	}))
}

// ResponseError 返回错误响应
func ResponseError(c *gin.Context, code int, message string) {
	c.JSON(HTTPStatus(code), ErrorResponse(code, message))
}

// ResponseBadRequest 返回参数错误响应
func ResponseBadRequest(c *gin.Context, message string) {
	ResponseError(c, CodeInvalidRequest, message)
}

// ResponseUnauthorized 返回未认证响应
func ResponseUnauthorized(c *gin.Context) {
	ResponseError(c, CodeUnauthorized, "未认证，请先登录")
}

// WriteError 将服务层错误转换为响应
// 业务错误按业务码映射状态码，其余错误记录日志并返回 500
func WriteError(c *gin.Context, err error) {
	var be *BusinessError
	if errors.As(err, &be) {
		ResponseError(c, be.Code, err.Error())
		return
	}

	logger.WithContext(c.Request.Context()).Error("请求处理失败",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	ResponseError(c, CodeInternalError, "服务器内部错误")
}
