package handlers

import (
	"gut-health-kb/internal/core/ai"
	"gut-health-kb/internal/core/ai/service"
	"gut-health-kb/internal/core/analysis"
	"gut-health-kb/internal/core/repository"
	"gut-health-kb/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	candidateMinConfidence = 0.7
	candidateLimit         = 30
)

// ExplainRequest 成分說明請求
type ExplainRequest struct {
	IngredientName string `json:"ingredient_name" binding:"required"`
}

// AIHandler AI 處理器
type AIHandler struct {
	aiService *service.Service
	repo      repository.IngredientRepo
	engine    *analysis.Engine
}

// NewAIHandler 創建 AI 處理器
func NewAIHandler(aiService *service.Service, repo repository.IngredientRepo, engine *analysis.Engine) *AIHandler {
	return &AIHandler{
		aiService: aiService,
		repo:      repo,
		engine:    engine,
	}
}

// enabled 未設定 AI 提供者時直接回應 503
func (h *AIHandler) enabled(c *gin.Context) bool {
	if h.aiService.Enabled() {
		return true
	}
	common.RespondError(c, common.ErrAIServiceError.WithMessage("AI service is not configured"))
	return false
}

// Explain 以自然語言說明資料庫中的成分
func (h *AIHandler) Explain(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	var req ExplainRequest
	if !bindJSON(c, &req) {
		return
	}

	complete, err := h.repo.GetComplete(c.Request.Context(), req.IngredientName)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	explanation, err := h.aiService.Explain(c.Request.Context(), complete)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.RespondOK(c, explanation)
}

// Recommendations 依使用者概況推薦成分，候選清單取自高信心成分
func (h *AIHandler) Recommendations(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	var req ai.RecommendationRequest
	if !bindJSON(c, &req) {
		return
	}

	var candidates []string
	items, err := h.repo.HighConfidence(c.Request.Context(), candidateMinConfidence, candidateLimit)
	if err != nil {
		common.LogWarn("無法載入推薦候選成分",
			zap.Error(err),
			zap.String("request_id", common.RequestID(c)),
		)
	}
	for _, item := range items {
		candidates = append(candidates, item.Name)
	}

	recs, err := h.aiService.Recommend(c.Request.Context(), req, candidates)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.RespondOK(c, recs)
}

// AnalyzeMeal 規則式分析後由模型補充解讀
func (h *AIHandler) AnalyzeMeal(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	var req MealRequest
	if !bindJSON(c, &req) {
		return
	}

	names := req.names()
	insight, err := h.aiService.AnalyzeMeal(c.Request.Context(), names, h.engine.AnalyzeMeal(names))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.RespondOK(c, insight)
}

// Chat 多輪對話
func (h *AIHandler) Chat(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	var req ai.ChatRequest
	if !bindJSON(c, &req) {
		return
	}

	reply, err := h.aiService.Chat(c.Request.Context(), req.Messages)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.RespondOK(c, reply)
}

// Capabilities 回傳 AI 功能狀態，未啟用時仍回應 200
func (h *AIHandler) Capabilities(c *gin.Context) {
	common.RespondOK(c, h.aiService.Capabilities())
}
