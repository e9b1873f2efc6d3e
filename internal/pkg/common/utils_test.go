package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 7.33, Round(7.3333, 2))
	assert.Equal(t, 0.7, Round(0.66, 1))
	assert.Equal(t, 3.0, Round(2.5, 0))
}

func TestGenerateUUID(t *testing.T) {
	_, err := uuid.Parse(GenerateUUID())
	assert.NoError(t, err)
}

func serve(h gin.HandlerFunc, header string) (*httptest.ResponseRecorder, BaseResponse) {
	r := gin.New()
	r.Use(requestid.New())
	r.GET("/", h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("X-Request-ID", header)
	}
	r.ServeHTTP(w, req)

	var body BaseResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestRespondOKUsesRequestID(t *testing.T) {
	w, body := serve(func(c *gin.Context) { RespondOK(c, "ok") }, "req-123")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.Success)
	assert.Equal(t, "req-123", body.Metadata.RequestID)
}

func TestRespondErrorHidesInternalDetails(t *testing.T) {
	w, body := serve(func(c *gin.Context) { RespondError(c, errors.New("dsn=secret")) }, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, ErrCodeInternalError, body.Errors[0].Code)
	assert.NotContains(t, body.Errors[0].Message, "secret")
	assert.NotEmpty(t, body.Metadata.RequestID)
}

func TestRespondErrorShowsClientCause(t *testing.T) {
	w, body := serve(func(c *gin.Context) {
		RespondError(c, ErrInvalidRequest.Wrap(errors.New("page must be positive")))
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.Len(t, body.Errors, 1)
	assert.Contains(t, body.Errors[0].Message, "page must be positive")
}

func TestRespondPaginated(t *testing.T) {
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		RespondPaginated(c, []int{1, 2}, NewPagination(12, 2, 5))
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body PaginatedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 3, body.Pagination.TotalPages)
	assert.True(t, body.Pagination.HasNext)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRespondFieldErrors(t *testing.T) {
	w, body := serve(func(c *gin.Context) {
		RespondFieldErrors(c, http.StatusUnprocessableEntity, []ErrorDetail{
			{Code: ErrCodeValidation, Message: "required", Field: "ingredient.name"},
			{Code: ErrCodeValidation, Message: "out of range", Field: "gut_score"},
		})
	}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Len(t, body.Errors, 2)
	assert.Equal(t, "gut_score", body.Errors[1].Field)
}
