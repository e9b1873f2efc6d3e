package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPRecorder 接收 HTTP 請求指標
type HTTPRecorder interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

// Metrics 記錄每個請求的狀態與耗時，以路由樣板為標籤避免高基數
func Metrics(recorder HTTPRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		recorder.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
