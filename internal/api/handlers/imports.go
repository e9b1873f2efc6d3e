package handlers

import (
	"io"
	"net/http"

	"gut-health-kb/internal/core/importer"
	"gut-health-kb/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	importSource        = "request"
	errCodeImportFailed = "IMPORT_FAILED"
)

// ValidationReport 驗證通過的文件摘要
type ValidationReport struct {
	Valid             bool   `json:"valid"`
	Name              string `json:"name"`
	Slug              string `json:"slug"`
	Category          string `json:"category"`
	MicrobiomeEffects int    `json:"microbiome_effects"`
	MetabolicEffects  int    `json:"metabolic_effects"`
	SymptomEffects    int    `json:"symptom_effects"`
	Citations         int    `json:"citations"`
	Interactions      int    `json:"interactions"`
}

// ImportResponse 匯入結果與摘要
type ImportResponse struct {
	Result  *importer.Result       `json:"result"`
	Summary importer.ResultSummary `json:"summary"`
}

// ImportHandler 透過 API 匯入單一成分文件
type ImportHandler struct {
	runner *importer.Runner
}

// NewImportHandler 創建匯入處理器
func NewImportHandler(runner *importer.Runner) *ImportHandler {
	return &ImportHandler{runner: runner}
}

func readBody(c *gin.Context) ([]byte, bool) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		common.RespondError(c, common.ErrRequestTooLarge.Wrap(err))
		return nil, false
	}
	return raw, true
}

// Validate 只驗證文件，不寫入資料庫
func (h *ImportHandler) Validate(c *gin.Context) {
	raw, ok := readBody(c)
	if !ok {
		return
	}

	complete, fieldErrs, err := h.runner.Validator().Validate(raw)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	if len(fieldErrs) > 0 {
		details := make([]common.ErrorDetail, len(fieldErrs))
		for i, fe := range fieldErrs {
			details[i] = common.ErrorDetail{Code: common.ErrCodeValidation, Field: fe.Field, Message: fe.Message}
		}
		common.LogInfo("匯入文件驗證失敗",
			zap.Int("errors", len(fieldErrs)),
			zap.String("request_id", common.RequestID(c)),
		)
		common.RespondFieldErrors(c, http.StatusUnprocessableEntity, details)
		return
	}

	common.RespondOK(c, ValidationReport{
		Valid:             true,
		Name:              complete.Ingredient.Name,
		Slug:              complete.Ingredient.Slug,
		Category:          string(complete.Ingredient.Category),
		MicrobiomeEffects: len(complete.MicrobiomeEffects),
		MetabolicEffects:  len(complete.MetabolicEffects),
		SymptomEffects:    len(complete.SymptomEffects),
		Citations:         len(complete.Citations),
		Interactions:      len(complete.Interactions),
	})
}

// Import 驗證並寫入文件，模式由查詢參數決定
func (h *ImportHandler) Import(c *gin.Context) {
	var opts importer.Options
	if !bindQuery(c, &opts) {
		return
	}
	if err := opts.Validate(); err != nil {
		common.RespondError(c, err)
		return
	}
	raw, ok := readBody(c)
	if !ok {
		return
	}

	res, err := h.runner.ImportDocument(c.Request.Context(), importSource, raw, opts)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	resp := ImportResponse{Result: res, Summary: res.Summary()}
	if res.Err() != nil {
		details := make([]common.ErrorDetail, len(res.Errors))
		for i, issue := range res.Errors {
			details[i] = common.ErrorDetail{Code: errCodeImportFailed, Field: issue.Field, Message: issue.Message}
		}
		body := common.NewErrorResponse(common.RequestID(c), details...)
		body.Data = resp
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, body)
		return
	}

	status := http.StatusOK
	if len(res.Outcomes) > 0 && res.Outcomes[0].Outcome == importer.OutcomeCreated {
		status = http.StatusCreated
	}
	c.JSON(status, common.NewSuccessResponse(common.RequestID(c), resp))
}
