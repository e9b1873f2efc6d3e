// Package app 依設定組裝資料庫、快取、分析引擎、匯入器與 AI 服務
package app

import (
	"context"
	"fmt"

	"gut-health-kb/internal/core/ai/cache"
	"gut-health-kb/internal/core/ai/openrouter"
	"gut-health-kb/internal/core/ai/provider"
	"gut-health-kb/internal/core/ai/queue"
	"gut-health-kb/internal/core/ai/service"
	"gut-health-kb/internal/core/analysis"
	"gut-health-kb/internal/core/importer"
	"gut-health-kb/internal/core/repository"
	"gut-health-kb/internal/infrastructure/config"
	"gut-health-kb/internal/infrastructure/database"
	"gut-health-kb/internal/infrastructure/metrics"
	"gut-health-kb/internal/pkg/common"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App 已組裝的服務
type App struct {
	Config  *config.Config
	DB      *gorm.DB
	Metrics *metrics.Metrics
	Repo    repository.IngredientRepo
	Runner  *importer.Runner
	Engine  *analysis.Engine
	AI      *service.Service
	Queue   *queue.Manager

	redis *repository.RedisCache
}

// New 依設定建立所有服務；registry 為 nil 時使用新的 prometheus registry
func New(ctx context.Context, cfg *config.Config, registry *prometheus.Registry) (*App, error) {
	a := &App{Config: cfg}

	m, err := metrics.New(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	a.Metrics = m

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.DB = db

	kb := analysis.DefaultKnowledgeBase()
	if cfg.Knowledge.Path != "" {
		kb, err = analysis.LoadKnowledgeBase(cfg.Knowledge.Path)
		if err != nil {
			_ = database.Close(db)
			return nil, fmt.Errorf("failed to load knowledge base: %w", err)
		}
		common.LogInfo("已載入分析知識表", zap.String("path", cfg.Knowledge.Path))
	}
	a.Engine = analysis.NewEngine(kb)

	a.Repo = repository.NewIngredientRepo(db, repository.Options{
		MaxRetries:    cfg.Database.MaxRetries,
		RetryInterval: cfg.Database.RetryInterval,
		Cache:         a.readCache(ctx),
		Observer:      m,
	})

	a.Runner = importer.NewRunner(a.Repo, nil)
	a.Runner.MaxFileSize = cfg.Import.MaxFileSize
	a.Runner.Recorder = m

	a.AI = a.aiService()
	return a, nil
}

// readCache Redis 可用時優先使用，否則退回記憶體快取
func (a *App) readCache(ctx context.Context) repository.Cache {
	cfg := a.Config
	if cfg.Redis.Enabled {
		rc, err := repository.NewRedisCache(ctx, cfg.Redis)
		if err == nil {
			a.redis = rc
			common.LogInfo("成分快取使用 Redis", zap.String("addr", cfg.Redis.Addr))
			return rc
		}
		common.LogWarn("Redis 無法連線，改用記憶體快取", zap.Error(err))
	}
	if !cfg.Cache.Enabled {
		return nil
	}
	return repository.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.CleanupInterval)
}

// aiService 未啟用 OpenRouter 時回傳停用狀態的服務
func (a *App) aiService() *service.Service {
	cfg := a.Config
	if !cfg.OpenRouter.Enabled {
		common.LogInfo("AI 服務未啟用")
		return service.NewService(nil)
	}

	client := openrouter.NewClient(provider.Config{
		APIKey:      cfg.OpenRouter.APIKey,
		Model:       cfg.OpenRouter.Model,
		BaseURL:     cfg.OpenRouter.BaseURL,
		MaxTokens:   cfg.OpenRouter.MaxTokens,
		Temperature: cfg.OpenRouter.Temperature,
		Timeout:     cfg.OpenRouter.Timeout,
		MaxRetries:  cfg.OpenRouter.MaxRetries,
	})

	opts := []service.Option{service.WithRecorder(a.Metrics)}
	if cfg.AI.Workers > 0 {
		a.Queue = queue.NewManager(client, cfg.AI.MaxQueueSize, cfg.AI.Workers)
		opts = append(opts, service.WithQueue(a.Queue))
	}
	if cfg.AI.EnableCache {
		if cm := cache.NewManager(cfg.Cache); cm != nil {
			opts = append(opts, service.WithCache(cm))
		}
	}

	common.LogInfo("AI 服務已啟用",
		zap.String("model", cfg.OpenRouter.Model),
		zap.String("api_key", config.MaskAPIKey(cfg.OpenRouter.APIKey)),
		zap.Int("workers", cfg.AI.Workers),
		zap.Bool("cache", cfg.AI.EnableCache),
	)
	return service.NewService(client, opts...)
}

// QueueStatus AI 隊列狀態，未使用隊列時回傳 nil
func (a *App) QueueStatus() func() queue.Status {
	if a.Queue == nil {
		return nil
	}
	return a.Queue.GetQueueStatus
}

// Ping 檢查資料庫連線
func (a *App) Ping(ctx context.Context) error {
	return database.Ping(ctx, a.DB)
}

// Close 依建立的反向順序釋放資源
func (a *App) Close() error {
	if a.AI != nil {
		if err := a.AI.Close(); err != nil {
			common.LogWarn("關閉 AI 服務失敗", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			common.LogWarn("關閉 Redis 失敗", zap.Error(err))
		}
	}
	if a.DB != nil {
		return database.Close(a.DB)
	}
	return nil
}
