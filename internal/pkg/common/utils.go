package common

import (
	"math"
	"net/http"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GenerateUUID 生成 UUID
func GenerateUUID() string {
	return uuid.New().String()
}

// Round 四捨五入到指定小數位
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// RequestID 取得請求 ID，缺少時產生新的並寫回標頭
func RequestID(c *gin.Context) string {
	if id := requestid.Get(c); id != "" {
		return id
	}
	id := c.GetHeader("X-Request-ID")
	if id == "" {
		id = GenerateUUID()
		c.Header("X-Request-ID", id)
	}
	return id
}

// RespondOK 寫入成功回應
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, NewSuccessResponse(RequestID(c), data))
}

// RespondPaginated 寫入分頁回應
func RespondPaginated(c *gin.Context, data interface{}, pagination Pagination) {
	c.JSON(http.StatusOK, PaginatedResponse{
		BaseResponse: NewSuccessResponse(RequestID(c), data),
		Pagination:   pagination,
	})
}

// RespondError 依錯誤類型寫入錯誤回應
func RespondError(c *gin.Context, err error) {
	ce := AsCustomError(err)
	detail := ErrorDetail{Code: ce.Code, Message: ce.Message}
	if ce.Err != nil && ce.Status < http.StatusInternalServerError {
		detail.Message = ce.Error()
	}
	c.AbortWithStatusJSON(ce.Status, NewErrorResponse(RequestID(c), detail))
}

// RespondFieldErrors 寫入欄位驗證錯誤
func RespondFieldErrors(c *gin.Context, status int, details []ErrorDetail) {
	c.AbortWithStatusJSON(status, NewErrorResponse(RequestID(c), details...))
}
