package api

import (
	"errors"
	"time"

	"gut-health-kb/internal/api/handlers"
	"gut-health-kb/internal/api/handlers/health"
	"gut-health-kb/internal/api/middleware"
	"gut-health-kb/internal/core/ai/service"
	"gut-health-kb/internal/core/analysis"
	"gut-health-kb/internal/core/importer"
	"gut-health-kb/internal/core/repository"
	"gut-health-kb/internal/infrastructure/config"
	"gut-health-kb/internal/infrastructure/metrics"
	"gut-health-kb/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// 請求體大小限制 (10MB)
	defaultMaxBodySize = 10 << 20
	defaultMetricsPath = "/metrics"
)

// Dependencies 路由所需的服務
type Dependencies struct {
	Config  *config.Config
	Repo    repository.IngredientRepo
	Engine  *analysis.Engine
	Runner  *importer.Runner
	AI      *service.Service
	Metrics *metrics.Metrics

	Ping        health.Pinger
	QueueStatus health.QueueStatus
}

func (d Dependencies) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("config is required")
	case d.Repo == nil:
		return errors.New("ingredient repository is required")
	case d.Engine == nil:
		return errors.New("analysis engine is required")
	case d.Runner == nil:
		return errors.New("import runner is required")
	}
	return nil
}

// SetupRouter 設置路由
func SetupRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	// 設置 gin 模式
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 創建路由引擎
	router := gin.New()

	// 註冊基礎中間件
	router.Use(middleware.Recovery())
	router.Use(requestid.New()) // 自動生成請求 ID
	router.Use(middleware.Logger())

	// CORS 設置
	origins := cfg.Server.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           12 * time.Hour,
	}))

	if deps.Metrics != nil {
		router.Use(middleware.Metrics(deps.Metrics))
	}

	// 請求體大小限制
	maxBody := cfg.Server.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}
	router.Use(middleware.BodySizeLimit(maxBody))

	// 健康檢查路由
	healthHandler := health.NewHandler(cfg.App.Version, deps.Ping, deps.QueueStatus)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/live", healthHandler.Live)

	if deps.Metrics != nil && cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = defaultMetricsPath
		}
		router.GET(path, gin.WrapH(deps.Metrics.Handler()))
	}

	// API 路由組
	api := router.Group("/api/v1")
	if cfg.RateLimit.Enabled {
		api.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst))
	}
	api.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	var analysisRecorder handlers.AnalysisRecorder
	if deps.Metrics != nil {
		analysisRecorder = deps.Metrics
	}

	ingredients := handlers.NewIngredientHandler(deps.Repo)
	ingredientGroup := api.Group("/ingredients")
	{
		ingredientGroup.GET("", ingredients.List)
		ingredientGroup.GET("/high-confidence", ingredients.HighConfidence)
		ingredientGroup.GET("/search/bacteria/:name", ingredients.SearchByBacteria)
		ingredientGroup.GET("/id/:id", ingredients.GetByID)
		ingredientGroup.GET("/:name", ingredients.Get)
		ingredientGroup.PATCH("/:id", ingredients.Update)
		ingredientGroup.DELETE("/:id", ingredients.Delete)
	}

	analyses := handlers.NewAnalysisHandler(deps.Engine, analysisRecorder)
	analysisGroup := api.Group("/analysis")
	{
		analysisGroup.POST("/classify", analyses.Classify())
		analysisGroup.POST("/interactions", analyses.Interactions())
		analysisGroup.POST("/score", analyses.Score())
		analysisGroup.POST("/diversity", analyses.Diversity())
		analysisGroup.POST("/timing", analyses.Timing())
		analysisGroup.POST("/meal", analyses.Meal())
	}

	imports := handlers.NewImportHandler(deps.Runner)
	importGroup := api.Group("/import", middleware.Deduplication(cfg.DedupWindow))
	{
		importGroup.POST("", imports.Import)
		importGroup.POST("/validate", imports.Validate)
	}

	aiHandler := handlers.NewAIHandler(deps.AI, deps.Repo, deps.Engine)
	aiGroup := api.Group("/ai")
	{
		aiGroup.POST("/explain", aiHandler.Explain)
		aiGroup.POST("/recommendations", aiHandler.Recommendations)
		aiGroup.POST("/analyze-meal", aiHandler.AnalyzeMeal)
		aiGroup.POST("/chat", aiHandler.Chat)
		aiGroup.GET("/capabilities", aiHandler.Capabilities)
	}

	common.LogInfo("Router setup completed successfully",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("environment", cfg.App.Env),
		zap.Bool("ai_service_enabled", deps.AI.Enabled()),
		zap.Bool("metrics_enabled", deps.Metrics != nil),
		zap.Bool("rate_limit_enabled", cfg.RateLimit.Enabled),
		zap.Duration("timeout", cfg.Server.RequestTimeout),
		zap.Int64("max_body_size", maxBody),
	)

	return router, nil
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
