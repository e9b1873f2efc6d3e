package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gut-health-kb/internal/core/ai/service"
	"gut-health-kb/internal/core/analysis"
	"gut-health-kb/internal/core/importer"
	"gut-health-kb/internal/core/repository"
	"gut-health-kb/internal/infrastructure/config"
	"gut-health-kb/internal/infrastructure/database"
	"gut-health-kb/internal/infrastructure/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		App:         config.AppConfig{Env: "test", Version: "test"},
		Server:      config.ServerConfig{RequestTimeout: 5 * time.Second, MaxBodyBytes: 1 << 20},
		RateLimit:   config.RateLimitConfig{Enabled: true, Requests: 100, Window: time.Minute, Burst: 100},
		Metrics:     config.MetricsConfig{Enabled: true, Path: "/metrics"},
		DedupWindow: time.Minute,
	}
}

func setupRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         ":memory:",
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	repo := repository.NewIngredientRepo(db, repository.Options{Observer: m})
	runner := importer.NewRunner(repo, nil)
	runner.Recorder = m

	router, err := SetupRouter(Dependencies{
		Config:  cfg,
		Repo:    repo,
		Engine:  analysis.NewEngine(analysis.DefaultKnowledgeBase()),
		Runner:  runner,
		AI:      service.NewService(nil, service.WithRecorder(m)),
		Metrics: m,
		Ping: func(ctx context.Context) error {
			return database.Ping(ctx, db)
		},
	})
	require.NoError(t, err)
	return router
}

func request(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestSetupRouterRequiresDependencies(t *testing.T) {
	_, err := SetupRouter(Dependencies{})
	assert.Error(t, err)

	_, err = SetupRouter(Dependencies{Config: testConfig()})
	assert.Error(t, err)
}

func TestHealthRoutes(t *testing.T) {
	r := setupRouter(t, testConfig())

	for _, path := range []string{"/health", "/ready", "/live"} {
		w := request(r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRequestIDHeader(t *testing.T) {
	r := setupRouter(t, testConfig())

	w := request(r, http.MethodGet, "/api/v1/ai/capabilities", "")
	require.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get("X-Request-ID")
	assert.NotEmpty(t, id)
	assert.Contains(t, w.Body.String(), id)
}

func TestMetricsEndpoint(t *testing.T) {
	r := setupRouter(t, testConfig())

	request(r, http.MethodPost, "/api/v1/analysis/meal", `{"ingredients": ["inulin", "lactobacillus"]}`)
	request(r, http.MethodGet, "/api/v1/ingredients", "")

	w := request(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `gutkb_http_requests_total{method="POST",path="/api/v1/analysis/meal",status_code="200"} 1`)
	assert.Contains(t, body, `gutkb_analysis_operations_total{operation="meal"} 1`)
	assert.Contains(t, body, `gutkb_db_operations_total`)
}

func TestImportDeduplication(t *testing.T) {
	r := setupRouter(t, testConfig())

	body := `{"ingredient": {"name": "Inulin"}}`
	first := request(r, http.MethodPost, "/api/v1/import/validate", body)
	assert.Equal(t, http.StatusUnprocessableEntity, first.Code)

	second := request(r, http.MethodPost, "/api/v1/import/validate", body)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// 分析端點不做重複請求檢查
	for i := 0; i < 2; i++ {
		w := request(r, http.MethodPost, "/api/v1/analysis/score", `{"ingredients": ["inulin"]}`)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitOnlyAppliesToAPI(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, Requests: 1, Window: time.Minute, Burst: 1}
	r := setupRouter(t, cfg)

	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/api/v1/ai/capabilities", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, request(r, http.MethodGet, "/api/v1/ai/capabilities", "").Code)
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/health", "").Code)
}

func TestBodySizeLimitApplied(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxBodyBytes = 16
	r := setupRouter(t, cfg)

	w := request(r, http.MethodPost, "/api/v1/analysis/meal", `{"ingredients": ["inulin", "lactobacillus"]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	r := setupRouter(t, testConfig())
	assert.Equal(t, http.StatusNotFound, request(r, http.MethodGet, "/api/v1/unknown", "").Code)
}
