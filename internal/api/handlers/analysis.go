package handlers

import (
	"strings"

	"gut-health-kb/internal/core/analysis"
	"gut-health-kb/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AnalysisRecorder 記錄分析操作次數
type AnalysisRecorder interface {
	RecordAnalysis(operation string)
}

// MealRequest 餐點分析請求
type MealRequest struct {
	Ingredients []string `json:"ingredients" binding:"required,min=1,max=50,dive,required"`
}

// names 去除名稱前後空白
func (r MealRequest) names() []string {
	out := make([]string, len(r.Ingredients))
	for i, n := range r.Ingredients {
		out[i] = strings.TrimSpace(n)
	}
	return out
}

// ClassificationResult 單一成分的分類結果
type ClassificationResult struct {
	Ingredient string            `json:"ingredient"`
	Category   analysis.Category `json:"category"`
}

// AnalysisHandler 規則式餐點分析
type AnalysisHandler struct {
	engine   *analysis.Engine
	recorder AnalysisRecorder
}

// NewAnalysisHandler 創建分析處理器，recorder 可為 nil
func NewAnalysisHandler(engine *analysis.Engine, recorder AnalysisRecorder) *AnalysisHandler {
	return &AnalysisHandler{engine: engine, recorder: recorder}
}

// handle 綁定請求後執行分析並回傳結果
func (h *AnalysisHandler) handle(operation string, fn func(names []string) interface{}) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MealRequest
		if !bindJSON(c, &req) {
			return
		}
		names := req.names()
		result := fn(names)

		if h.recorder != nil {
			h.recorder.RecordAnalysis(operation)
		}
		common.LogDebug("分析完成",
			zap.String("operation", operation),
			zap.Int("ingredients", len(names)),
			zap.String("request_id", common.RequestID(c)),
		)
		common.RespondOK(c, result)
	}
}

// Classify 依知識庫為每個成分分類
func (h *AnalysisHandler) Classify() gin.HandlerFunc {
	return h.handle("classify", func(names []string) interface{} {
		out := make([]ClassificationResult, len(names))
		for i, n := range names {
			out[i] = ClassificationResult{Ingredient: n, Category: h.engine.Classify(n)}
		}
		return out
	})
}

// Interactions 偵測成分兩兩之間的交互作用
func (h *AnalysisHandler) Interactions() gin.HandlerFunc {
	return h.handle("interactions", func(names []string) interface{} {
		return h.engine.DetectInteractions(names)
	})
}

// Score 計算餐點腸道分數
func (h *AnalysisHandler) Score() gin.HandlerFunc {
	return h.handle("score", func(names []string) interface{} {
		return h.engine.CalculateMealScore(names)
	})
}

// Diversity 類別多樣性分析
func (h *AnalysisHandler) Diversity() gin.HandlerFunc {
	return h.handle("diversity", func(names []string) interface{} {
		return h.engine.AnalyzeDiversity(names)
	})
}

// Timing 服用時段分析
func (h *AnalysisHandler) Timing() gin.HandlerFunc {
	return h.handle("timing", func(names []string) interface{} {
		return h.engine.AnalyzeTiming(names)
	})
}

// Meal 完整餐點分析
func (h *AnalysisHandler) Meal() gin.HandlerFunc {
	return h.handle("meal", func(names []string) interface{} {
		return h.engine.AnalyzeMeal(names)
	})
}
