package middleware

import (
	"fmt"
	"net/http"

	"gut-health-kb/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BodySizeLimit 拒絕宣告長度超過上限的請求，未宣告長度者於讀取時截斷
func BodySizeLimit(maxSize int64) gin.HandlerFunc {
	tooLarge := common.ErrRequestTooLarge.WithMessage(fmt.Sprintf("request body exceeds %d bytes", maxSize))

	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			common.LogWarn("拒絕過大的請求",
				zap.String("request_id", common.RequestID(c)),
				zap.String("path", c.Request.URL.Path),
				zap.Int64("content_length", c.Request.ContentLength),
				zap.Int64("limit", maxSize),
			)
			common.RespondError(c, tooLarge)
			return
		}

		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		}
		c.Next()
	}
}
