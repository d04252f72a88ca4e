package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"leoactivation/pkg/agent"
	"leoactivation/pkg/api"
	"leoactivation/pkg/channels"
	"leoactivation/pkg/config"
	"leoactivation/pkg/gateway"
	"leoactivation/pkg/llm"
	_ "leoactivation/pkg/llm/autoload" // 自動註冊 LLM Providers
	"leoactivation/pkg/monitor"
	"leoactivation/pkg/store"
	"leoactivation/pkg/tools"
)

func main() {
	// --- 0. 讀取設定檔 ---
	cfg, sysCfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v\n", err)
	}

	monitor.SetupSlog(sysCfg.LogLevel)
	monitor.PrintBanner()

	// 開啟 raw response dump 時順手清掉過期的舊目錄
	if sysCfg.DebugResponses {
		llm.PruneDebugDumps(filepath.Join("debug", "responses"), 72*time.Hour)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	server, mon, err := buildServer(rootCtx, cfg, sysCfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize services: %v\n", err)
	}
	if err := server.Start(); err != nil {
		log.Fatalf("❌ Failed to start gateway: %v\n", err)
	}

	// --- 設定檔熱重載 ---
	reloadCh := config.WatchConfig(rootCtx, "config.json", "system.json")

	// 監聽系統信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigChan:
			slog.Info("Received shutdown signal. Stopping services...")
			shutdown(server, mon)
			slog.Info("Bye!")
			return

		case _, ok := <-reloadCh:
			if !ok {
				continue
			}
			slog.Info("🔄 Reloading configuration")

			newCfg, newSysCfg, err := config.Load()
			if err != nil {
				slog.Error("❌ Reload aborted, config invalid", "error", err)
				continue
			}
			newServer, newMon, err := buildServer(rootCtx, newCfg, newSysCfg)
			if err != nil {
				slog.Error("❌ Reload aborted, initialization failed", "error", err)
				continue
			}

			// 先排空舊服務釋放監聽埠，再啟動新服務
			shutdown(server, mon)
			monitor.SetupSlog(newSysCfg.LogLevel)
			if err := newServer.Start(); err != nil {
				slog.Error("❌ Failed to restart gateway", "error", err)
				continue
			}
			server, mon = newServer, newMon
			slog.Info("✅ Configuration reloaded")
		}
	}
}

// buildServer assembles the whole pipeline from configuration:
// engines, store, tools, activation channels, router, and gateway.
func buildServer(ctx context.Context, cfg *config.Config, sysCfg *config.SystemConfig) (*gateway.Server, monitor.Monitor, error) {
	// --- 1. LLM 引擎 ---
	engines, err := llm.NewFromConfig(cfg.LLM, sysCfg)
	if err != nil {
		return nil, nil, err
	}

	// --- 2. Store（DSN 存在時用 Postgres，否則 in-memory）---
	dataStore, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	// --- 3. 行銷通道 ---
	httpTimeout := time.Duration(sysCfg.HTTPTimeoutMs) * time.Millisecond
	activation := channels.NewManager()
	channels.LoadFromConfig(activation, cfg.Channels, channels.Deps{
		Store:       dataStore,
		HTTPTimeout: httpTimeout,
	})

	// --- 4. 工具 ---
	registry := tools.NewRegistry()
	registry.Register(tools.NewDateTool())
	registry.Register(tools.NewWeatherTool(httpTimeout))
	registry.Register(tools.NewSegmentTool(dataStore))
	registry.Register(tools.NewEnrichmentTool(dataStore))
	registry.Register(tools.NewActivationTool(activation))

	// --- 5. Router 與 Gateway ---
	router := agent.NewAgentRouter(engines, registry, cfg.Router.Mode, sysCfg)

	mon := monitor.NewCLIMonitor()
	if err := mon.Start(); err != nil {
		return nil, nil, err
	}

	server := gateway.NewServer(gateway.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		SystemPrompt: cfg.SystemPrompt,
	}, router, activation, mon)

	return server, mon, nil
}

func buildStore(ctx context.Context, cfg *config.Config) (api.Store, error) {
	if cfg.Database.DSN == "" {
		slog.Info("Using in-memory store (no database.dsn configured)")
		return store.NewMemoryStore(), nil
	}

	pg, err := store.NewPostgresStore(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return pg, nil
}

func shutdown(server *gateway.Server, mon monitor.Monitor) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Gateway shutdown error", "error", err)
	}
	if mon != nil {
		mon.Stop()
	}
}
