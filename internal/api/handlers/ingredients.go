package handlers

import (
	"strings"

	"gut-health-kb/internal/core/ingredient"
	"gut-health-kb/internal/core/repository"
	"gut-health-kb/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultMinConfidence = 0.8

// IngredientHandler 成分查詢與維護
type IngredientHandler struct {
	repo repository.IngredientRepo
}

// NewIngredientHandler 創建成分處理器
func NewIngredientHandler(repo repository.IngredientRepo) *IngredientHandler {
	return &IngredientHandler{repo: repo}
}

type listQuery struct {
	Page        int      `form:"page" binding:"omitempty,min=1"`
	PerPage     int      `form:"per_page" binding:"omitempty,min=1,max=100"`
	Category    string   `form:"category"`
	MinGutScore *float64 `form:"min_gut_score" binding:"omitempty,min=0,max=10"`
}

type limitQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

type confidenceQuery struct {
	MinConfidence *float64 `form:"min_confidence" binding:"omitempty,min=0,max=1"`
	Limit         int      `form:"limit" binding:"omitempty,min=1,max=100"`
}

// IngredientDetail 完整成分資料與摘要
type IngredientDetail struct {
	*ingredient.Complete
	Summary ingredient.Summary `json:"summary"`
}

// List 分頁列出成分，可依類別與最低腸道分數篩選
func (h *IngredientHandler) List(c *gin.Context) {
	var q listQuery
	if !bindQuery(c, &q) {
		return
	}

	filter := repository.SearchFilter{
		Category:    ingredient.Category(strings.ToLower(strings.TrimSpace(q.Category))),
		MinGutScore: q.MinGutScore,
		Page:        q.Page,
		PerPage:     q.PerPage,
	}
	filter.Normalize()

	items, total, err := h.repo.Search(c.Request.Context(), filter)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.RespondPaginated(c, items, common.NewPagination(total, filter.Page, filter.PerPage))
}

// Get 依名稱取得完整成分資料
func (h *IngredientHandler) Get(c *gin.Context) {
	name := c.Param("name")
	complete, err := h.repo.GetComplete(c.Request.Context(), name)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.RespondOK(c, IngredientDetail{Complete: complete, Summary: complete.Summary()})
}

// GetByID 依 ID 取得成分主檔
func (h *IngredientHandler) GetByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ing, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.RespondOK(c, ing)
}

// Update 部分更新成分欄位
func (h *IngredientHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var fields map[string]interface{}
	if err := common.DecodeJSON(c.Request.Body, &fields); err != nil {
		common.RespondError(c, common.ErrInvalidRequest.Wrap(err))
		return
	}

	updated, err := h.repo.Update(c.Request.Context(), id, fields)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	if !updated {
		common.RespondError(c, common.ErrIngredientNotFound)
		return
	}

	ing, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.LogInfo("成分已更新",
		zap.String("id", id.String()),
		zap.Int("fields", len(fields)),
		zap.String("request_id", common.RequestID(c)),
	)
	common.RespondOK(c, ing)
}

// Delete 刪除成分與其所有子記錄
func (h *IngredientHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	deleted, err := h.repo.Delete(c.Request.Context(), id)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	if !deleted {
		common.RespondError(c, common.ErrIngredientNotFound)
		return
	}
	common.RespondOK(c, gin.H{"id": id, "deleted": true})
}

// SearchByBacteria 找出影響指定菌種的成分（名稱部分比對）
func (h *IngredientHandler) SearchByBacteria(c *gin.Context) {
	var q limitQuery
	if !bindQuery(c, &q) {
		return
	}
	items, err := h.repo.SearchByBacteria(c.Request.Context(), c.Param("name"), q.Limit)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.RespondOK(c, items)
}

// HighConfidence 列出信心值不低於門檻的成分，預設門檻 0.8
func (h *IngredientHandler) HighConfidence(c *gin.Context) {
	var q confidenceQuery
	if !bindQuery(c, &q) {
		return
	}
	min := defaultMinConfidence
	if q.MinConfidence != nil {
		min = *q.MinConfidence
	}
	items, err := h.repo.HighConfidence(c.Request.Context(), min, q.Limit)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.RespondOK(c, items)
}
