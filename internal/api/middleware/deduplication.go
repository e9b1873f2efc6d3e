package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"gut-health-kb/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const defaultDedupWindow = time.Second

// Deduplication 拒絕在時間窗內重複送出的相同 POST 請求
func Deduplication(window time.Duration) gin.HandlerFunc {
	if window <= 0 {
		window = defaultDedupWindow
	}
	// 指紋在時間窗後過期
	seen := cache.New(window, 10*window)

	return func(c *gin.Context) {
		// 只處理 POST 請求
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		// 計算請求體哈希
		fingerprint := c.Request.Method + ":" + c.Request.URL.RequestURI()
		if c.Request.Body != nil {
			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				common.LogWarn("Failed to read request body", zap.Error(err))
				common.RespondError(c, common.ErrRequestTooLarge.Wrap(err))
				return
			}
			hash := sha256.Sum256(body)
			fingerprint += ":" + hex.EncodeToString(hash[:])

			// 恢復請求體
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		// Add 在鍵已存在且未過期時失敗
		if err := seen.Add(fingerprint, struct{}{}, window); err != nil {
			common.LogInfo("Duplicate request rejected",
				zap.String("path", c.Request.URL.Path),
				zap.String("ip", c.ClientIP()),
			)
			common.RespondError(c, common.ErrTooManyRequests.WithMessage("duplicate request, please wait before retrying"))
			return
		}

		c.Next()
	}
}
