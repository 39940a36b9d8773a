package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	notFound := NewBusinessError(CodeWorkNotFound, "项目不存在")

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBiz  int
		wantMsg  string
	}{
		{"业务错误", notFound, http.StatusNotFound, CodeWorkNotFound, "项目不存在"},
		{"带细节的业务错误", ErrInvalidRequest.Withf("limit 超出范围"), http.StatusBadRequest, CodeInvalidRequest, "请求参数错误: limit 超出范围"},
		{"多层包装", fmt.Errorf("查询失败: %w", ErrForbidden), http.StatusForbidden, CodeForbidden, "查询失败: 权限不足"},
		{"未知错误", errors.New("db down"), http.StatusInternalServerError, CodeInternalError, "服务器内部错误"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			WriteError(c, tt.err)

			assert.Equal(t, tt.wantCode, w.Code)
			var resp APIResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantBiz, resp.Code)
			assert.Equal(t, tt.wantMsg, resp.Message)
		})
	}
}

func TestPagination(t *testing.T) {
	assert.Equal(t, 0, PaginationRequest{}.GetOffset())
	assert.Equal(t, 20, PaginationRequest{}.GetPageSize())
	assert.Equal(t, 100, PaginationRequest{PageSize: 500}.GetPageSize())
	assert.Equal(t, 20, PaginationRequest{Page: 3, PageSize: 10}.GetOffset())

	meta := NewPaginationMeta(1, 10, 21)
	assert.Equal(t, 3, meta.TotalPages)
}

func TestBusinessErrorIs(t *testing.T) {
	err := ErrForbidden.Withf("需要 %s 权限", "editor")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.NotErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(CodeInvalidPDF))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(CodeEnqueueFailed))
}
