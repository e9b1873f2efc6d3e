// Package handlers 實作 /api/v1 底下的 HTTP 處理器
package handlers

import (
	"gut-health-kb/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// bindJSON 綁定並驗證 JSON 請求體，失敗時直接寫入錯誤回應
func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		common.LogWarn("請求格式無效",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", common.RequestID(c)),
		)
		common.RespondError(c, common.ErrInvalidRequest.Wrap(err))
		return false
	}
	return true
}

// bindQuery 綁定並驗證查詢參數
func bindQuery(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindQuery(v); err != nil {
		common.RespondError(c, common.ErrInvalidRequest.Wrap(err))
		return false
	}
	return true
}

// pathID 解析路徑中的 UUID
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.RespondError(c, common.ErrInvalidRequest.WithMessage("invalid ingredient id"))
		return uuid.Nil, false
	}
	return id, true
}
