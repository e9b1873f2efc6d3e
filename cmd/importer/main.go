package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gut-health-kb/internal/app"
	"gut-health-kb/internal/core/importer"
	"gut-health-kb/internal/infrastructure/config"
	"gut-health-kb/internal/pkg/common"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand(openRunner).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openRunner 依環境設定連線資料庫並建立匯入執行器
func openRunner(ctx context.Context) (*importer.Runner, func() error, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := common.InitLogger(cfg.LogLevel, "gut-health-importer"); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// 匯入不需要 AI 服務
	cfg.OpenRouter.Enabled = false
	services, err := app.New(ctx, cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	return services.Runner, func() error {
		common.Sync()
		return services.Close()
	}, nil
}
