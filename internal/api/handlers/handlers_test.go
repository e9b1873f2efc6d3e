package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gut-health-kb/internal/core/ai/provider"
	"gut-health-kb/internal/core/ai/service"
	"gut-health-kb/internal/core/analysis"
	"gut-health-kb/internal/core/importer"
	"gut-health-kb/internal/core/repository"
	"gut-health-kb/internal/infrastructure/config"
	"gut-health-kb/internal/infrastructure/database"
	"gut-health-kb/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ingredientID = "5f0c6a0e-3b1f-4f7a-9d42-8b1e2c3d4e5f"

const document = `{
  "ingredient": {
    "id": "5f0c6a0e-3b1f-4f7a-9d42-8b1e2c3d4e5f",
    "name": "Beta-Glucan",
    "category": "fiber",
    "description": "Soluble fiber from oats and barley",
    "gut_score": 7.5,
    "dosage_info": {"min_dose": 3, "max_dose": 6, "unit": "g"}
  },
  "microbiome_effects": [
    {"bacteria_name": "Bifidobacterium", "bacteria_level": "increase", "effect_strength": "moderate", "confidence": 0.8}
  ],
  "metabolic_effects": [
    {"effect_name": "Cholesterol reduction", "impact_direction": "positive", "effect_strength": "strong", "confidence": 0.7}
  ],
  "symptom_effects": [
    {"symptom_name": "Bloating", "effect_direction": "negative", "effect_strength": "weak", "confidence": 0.65}
  ],
  "citations": [
    {"title": "Oat beta-glucan and the gut microbiota", "authors": "Smith J, Doe A", "publication_year": 2019, "study_type": "rct"}
  ],
  "interactions": []
}`

type fakeProvider struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []*provider.Request
}

func (f *fakeProvider) Generate(_ context.Context, req *provider.Request) (*provider.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Response{Content: f.reply, Model: "fake-model"}, nil
}

func (f *fakeProvider) GetModel() string           { return "fake-model" }
func (f *fakeProvider) GetTimeout() time.Duration { return time.Second }
func (f *fakeProvider) Close() error               { return nil }

type analysisCounter struct {
	mu  sync.Mutex
	ops []string
}

func (a *analysisCounter) RecordAnalysis(op string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ops = append(a.ops, op)
}

type envelope struct {
	Success    bool                 `json:"success"`
	Data       json.RawMessage      `json:"data"`
	Errors     []common.ErrorDetail `json:"errors"`
	Pagination *common.Pagination   `json:"pagination"`
}

type testServer struct {
	router   *gin.Engine
	repo     repository.IngredientRepo
	counter  *analysisCounter
	provider *fakeProvider
}

func newTestServer(t *testing.T, aiProvider provider.Provider) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         ":memory:",
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	repo := repository.NewIngredientRepo(db, repository.Options{
		MaxRetries:    1,
		RetryInterval: time.Millisecond,
		Cache:         repository.NewMemoryCache(time.Minute, time.Minute),
	})
	runner := importer.NewRunner(repo, nil)
	engine := analysis.NewEngine(analysis.DefaultKnowledgeBase())
	counter := &analysisCounter{}

	var svc *service.Service
	if aiProvider != nil {
		svc = service.NewService(aiProvider)
	} else {
		svc = service.NewService(nil)
	}

	r := gin.New()
	r.Use(requestid.New())
	api := r.Group("/api/v1")

	ing := NewIngredientHandler(repo)
	api.GET("/ingredients", ing.List)
	api.GET("/ingredients/high-confidence", ing.HighConfidence)
	api.GET("/ingredients/search/bacteria/:name", ing.SearchByBacteria)
	api.GET("/ingredients/id/:id", ing.GetByID)
	api.GET("/ingredients/:name", ing.Get)
	api.PATCH("/ingredients/:id", ing.Update)
	api.DELETE("/ingredients/:id", ing.Delete)

	an := NewAnalysisHandler(engine, counter)
	api.POST("/analysis/classify", an.Classify())
	api.POST("/analysis/interactions", an.Interactions())
	api.POST("/analysis/score", an.Score())
	api.POST("/analysis/diversity", an.Diversity())
	api.POST("/analysis/timing", an.Timing())
	api.POST("/analysis/meal", an.Meal())

	imp := NewImportHandler(runner)
	api.POST("/import", imp.Import)
	api.POST("/import/validate", imp.Validate)

	aiH := NewAIHandler(svc, repo, engine)
	api.POST("/ai/explain", aiH.Explain)
	api.POST("/ai/recommendations", aiH.Recommendations)
	api.POST("/ai/analyze-meal", aiH.AnalyzeMeal)
	api.POST("/ai/chat", aiH.Chat)
	api.GET("/ai/capabilities", aiH.Capabilities)

	ts := &testServer{router: r, repo: repo, counter: counter}
	if fp, ok := aiProvider.(*fakeProvider); ok {
		ts.provider = fp
	}
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	ts.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (ts *testServer) seed(t *testing.T) {
	t.Helper()
	code, env := ts.do(t, http.MethodPost, "/api/v1/import", document)
	require.Equal(t, http.StatusCreated, code, env.Errors)
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func TestImportValidate(t *testing.T) {
	ts := newTestServer(t, nil)

	code, env := ts.do(t, http.MethodPost, "/api/v1/import/validate", document)
	require.Equal(t, http.StatusOK, code)
	var report ValidationReport
	decodeData(t, env, &report)
	assert.True(t, report.Valid)
	assert.Equal(t, "beta-glucan", report.Slug)
	assert.Equal(t, 1, report.MicrobiomeEffects)

	code, env = ts.do(t, http.MethodPost, "/api/v1/import/validate", `{"ingredient": {"name": ""}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.False(t, env.Success)
	fields := map[string]bool{}
	for _, e := range env.Errors {
		fields[e.Field] = true
	}
	assert.True(t, fields["microbiome_effects"])
	assert.True(t, fields["ingredient.name"])

	code, env = ts.do(t, http.MethodPost, "/api/v1/import/validate", `{"ingredient": `)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_DOCUMENT", env.Errors[0].Code)

	// 驗證不寫入資料庫
	_, err := ts.repo.GetByName(context.Background(), "Beta-Glucan")
	assert.True(t, errors.Is(err, common.ErrIngredientNotFound))
}

func TestImportModes(t *testing.T) {
	ts := newTestServer(t, nil)

	code, env := ts.do(t, http.MethodPost, "/api/v1/import?dry_run=true", document)
	require.Equal(t, http.StatusOK, code)
	var resp ImportResponse
	decodeData(t, env, &resp)
	assert.True(t, resp.Result.DryRun)
	assert.Equal(t, importer.OutcomeValidated, resp.Result.Outcomes[0].Outcome)

	ts.seed(t)

	code, env = ts.do(t, http.MethodPost, "/api/v1/import", document)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.False(t, env.Success)
	assert.Equal(t, errCodeImportFailed, env.Errors[0].Code)
	assert.Contains(t, env.Errors[0].Message, "already exists")

	code, env = ts.do(t, http.MethodPost, "/api/v1/import?skip_duplicates=true", document)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &resp)
	assert.Equal(t, 1, resp.Summary.Skipped)

	code, env = ts.do(t, http.MethodPost, "/api/v1/import?force_import=true", document)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &resp)
	assert.Equal(t, importer.OutcomeReplaced, resp.Result.Outcomes[0].Outcome)

	code, _ = ts.do(t, http.MethodPost, "/api/v1/import?skip_duplicates=true&force_import=true", document)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestIngredientList(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seed(t)

	code, env := ts.do(t, http.MethodGet, "/api/v1/ingredients?category=fiber&min_gut_score=7", "")
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, int64(1), env.Pagination.Total)
	assert.Equal(t, 20, env.Pagination.PerPage)

	var items []map[string]interface{}
	decodeData(t, env, &items)
	require.Len(t, items, 1)
	assert.Equal(t, "Beta-Glucan", items[0]["name"])

	code, env = ts.do(t, http.MethodGet, "/api/v1/ingredients?min_gut_score=8", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(0), env.Pagination.Total)

	code, _ = ts.do(t, http.MethodGet, "/api/v1/ingredients?per_page=101", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = ts.do(t, http.MethodGet, "/api/v1/ingredients?category=bogus", "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, common.ErrCodeValidation, env.Errors[0].Code)
}

func TestIngredientGet(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seed(t)

	code, env := ts.do(t, http.MethodGet, "/api/v1/ingredients/beta-glucan", "")
	require.Equal(t, http.StatusOK, code)
	var detail struct {
		Ingredient struct {
			Name string `json:"name"`
		} `json:"ingredient"`
		Citations []interface{} `json:"citations"`
		Summary   struct {
			TotalEffects      int      `json:"total_effects"`
			AverageConfidence *float64 `json:"average_confidence"`
			CitationsCount    int      `json:"citations_count"`
		} `json:"summary"`
	}
	decodeData(t, env, &detail)
	assert.Equal(t, "Beta-Glucan", detail.Ingredient.Name)
	assert.Len(t, detail.Citations, 1)
	assert.Equal(t, 3, detail.Summary.TotalEffects)
	assert.Equal(t, 1, detail.Summary.CitationsCount)
	require.NotNil(t, detail.Summary.AverageConfidence)
	assert.Equal(t, 0.72, *detail.Summary.AverageConfidence)

	code, env = ts.do(t, http.MethodGet, "/api/v1/ingredients/unknown", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "INGREDIENT_NOT_FOUND", env.Errors[0].Code)

	code, _ = ts.do(t, http.MethodGet, "/api/v1/ingredients/id/"+ingredientID, "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = ts.do(t, http.MethodGet, "/api/v1/ingredients/id/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestIngredientUpdate(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seed(t)

	code, env := ts.do(t, http.MethodPatch, "/api/v1/ingredients/"+ingredientID, `{"gut_score": 8.25, "safety_notes": "Start low"}`)
	require.Equal(t, http.StatusOK, code, env.Errors)
	var updated map[string]interface{}
	decodeData(t, env, &updated)
	assert.Equal(t, 8.25, updated["gut_score"])
	assert.Equal(t, "Start low", updated["safety_notes"])

	code, env = ts.do(t, http.MethodPatch, "/api/v1/ingredients/"+ingredientID, `{"created_at": "2020-01-01"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, env.Errors[0].Message, "invalid update fields")

	code, _ = ts.do(t, http.MethodPatch, "/api/v1/ingredients/"+ingredientID, `not json`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodPatch, "/api/v1/ingredients/9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d", `{"gut_score": 5}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestIngredientDelete(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seed(t)

	code, _ := ts.do(t, http.MethodDelete, "/api/v1/ingredients/"+ingredientID, "")
	require.Equal(t, http.StatusOK, code)

	code, _ = ts.do(t, http.MethodGet, "/api/v1/ingredients/Beta-Glucan", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = ts.do(t, http.MethodDelete, "/api/v1/ingredients/"+ingredientID, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestIngredientSearches(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seed(t)

	code, env := ts.do(t, http.MethodGet, "/api/v1/ingredients/search/bacteria/bifido", "")
	require.Equal(t, http.StatusOK, code)
	var items []map[string]interface{}
	decodeData(t, env, &items)
	assert.Len(t, items, 1)

	code, env = ts.do(t, http.MethodGet, "/api/v1/ingredients/search/bacteria/akkermansia", "")
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &items)
	assert.Empty(t, items)

	// 預設門檻 0.8 高於平均信心值 0.72
	code, env = ts.do(t, http.MethodGet, "/api/v1/ingredients/high-confidence", "")
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &items)
	assert.Empty(t, items)

	code, env = ts.do(t, http.MethodGet, "/api/v1/ingredients/high-confidence?min_confidence=0.7", "")
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &items)
	assert.Len(t, items, 1)

	code, _ = ts.do(t, http.MethodGet, "/api/v1/ingredients/high-confidence?min_confidence=1.5", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAnalysisEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	body := `{"ingredients": ["Lactobacillus rhamnosus", " Inulin ", "mystery"]}`

	code, env := ts.do(t, http.MethodPost, "/api/v1/analysis/classify", body)
	require.Equal(t, http.StatusOK, code)
	var classes []ClassificationResult
	decodeData(t, env, &classes)
	require.Len(t, classes, 3)
	assert.Equal(t, analysis.CategoryProbiotic, classes[0].Category)
	assert.Equal(t, "Inulin", classes[1].Ingredient)
	assert.Equal(t, analysis.CategoryPrebiotic, classes[1].Category)
	assert.Equal(t, analysis.CategoryUnknown, classes[2].Category)

	code, env = ts.do(t, http.MethodPost, "/api/v1/analysis/interactions", body)
	require.Equal(t, http.StatusOK, code)
	var interactions []analysis.Interaction
	decodeData(t, env, &interactions)
	require.Len(t, interactions, 1)
	assert.Equal(t, analysis.InteractionSynergistic, interactions[0].Type)

	for _, path := range []string{"score", "diversity", "timing", "meal"} {
		code, _ = ts.do(t, http.MethodPost, "/api/v1/analysis/"+path, body)
		assert.Equal(t, http.StatusOK, code, path)
	}

	code, env = ts.do(t, http.MethodPost, "/api/v1/analysis/meal", body)
	require.Equal(t, http.StatusOK, code)
	var meal analysis.MealAnalysis
	decodeData(t, env, &meal)
	assert.Greater(t, meal.GutScore, 0.0)
	assert.Len(t, meal.Interactions.Synergistic, 1)

	assert.Equal(t, []string{"classify", "interactions", "score", "diversity", "timing", "meal", "meal"}, ts.counter.ops)

	code, _ = ts.do(t, http.MethodPost, "/api/v1/analysis/meal", `{"ingredients": []}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = ts.do(t, http.MethodPost, "/api/v1/analysis/meal", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAIDisabled(t *testing.T) {
	ts := newTestServer(t, nil)

	code, env := ts.do(t, http.MethodGet, "/api/v1/ai/capabilities", "")
	require.Equal(t, http.StatusOK, code)
	var caps map[string]interface{}
	decodeData(t, env, &caps)
	assert.Equal(t, false, caps["enabled"])

	code, env = ts.do(t, http.MethodPost, "/api/v1/ai/chat", `{"messages": [{"role": "user", "content": "hi"}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "AI_SERVICE_ERROR", env.Errors[0].Code)
}

func TestAIExplain(t *testing.T) {
	fp := &fakeProvider{reply: "Beta-glucan feeds your gut bacteria."}
	ts := newTestServer(t, fp)
	ts.seed(t)

	code, env := ts.do(t, http.MethodPost, "/api/v1/ai/explain", `{"ingredient_name": "beta-glucan"}`)
	require.Equal(t, http.StatusOK, code, env.Errors)
	var explanation map[string]interface{}
	decodeData(t, env, &explanation)
	assert.Equal(t, "Beta-Glucan", explanation["ingredient_name"])
	assert.Equal(t, "Beta-glucan feeds your gut bacteria.", explanation["explanation"])

	code, _ = ts.do(t, http.MethodPost, "/api/v1/ai/explain", `{"ingredient_name": "unknown"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = ts.do(t, http.MethodPost, "/api/v1/ai/explain", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAIRecommendations(t *testing.T) {
	fp := &fakeProvider{reply: "1. Beta-Glucan"}
	ts := newTestServer(t, fp)
	ts.seed(t)

	code, env := ts.do(t, http.MethodPost, "/api/v1/ai/recommendations",
		`{"user_profile": {"symptoms": ["bloating"], "goals": ["improve_digestion"]}, "max_recommendations": 3}`)
	require.Equal(t, http.StatusOK, code, env.Errors)
	var recs struct {
		Recommendations string   `json:"recommendations"`
		Candidates      []string `json:"candidates"`
	}
	decodeData(t, env, &recs)
	assert.Equal(t, "1. Beta-Glucan", recs.Recommendations)
	assert.Equal(t, []string{"Beta-Glucan"}, recs.Candidates)

	code, _ = ts.do(t, http.MethodPost, "/api/v1/ai/recommendations", `{"user_profile": {}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestAIAnalyzeMealAndChat(t *testing.T) {
	fp := &fakeProvider{reply: "Solid combination."}
	ts := newTestServer(t, fp)

	code, env := ts.do(t, http.MethodPost, "/api/v1/ai/analyze-meal", `{"ingredients": ["lactobacillus", "inulin"]}`)
	require.Equal(t, http.StatusOK, code, env.Errors)
	var insight map[string]interface{}
	decodeData(t, env, &insight)
	assert.Equal(t, "Solid combination.", insight["analysis"])
	assert.NotEmpty(t, insight["synergistic_effects"])

	code, env = ts.do(t, http.MethodPost, "/api/v1/ai/chat", `{"messages": [{"role": "user", "content": "Is kefir good for me?"}]}`)
	require.Equal(t, http.StatusOK, code, env.Errors)
	var reply map[string]interface{}
	decodeData(t, env, &reply)
	assert.Equal(t, "Solid combination.", reply["response"])

	code, _ = ts.do(t, http.MethodPost, "/api/v1/ai/chat", `{"messages": [{"role": "assistant", "content": "hello"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestAIProviderFailure(t *testing.T) {
	fp := &fakeProvider{err: common.ErrTooManyRequests}
	ts := newTestServer(t, fp)

	code, env := ts.do(t, http.MethodPost, "/api/v1/ai/chat", `{"messages": [{"role": "user", "content": "hi"}]}`)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, common.ErrCodeTooManyRequests, env.Errors[0].Code)
}
