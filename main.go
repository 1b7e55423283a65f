package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/anthropics/feishu-digest-bot/feishu"
	"github.com/anthropics/feishu-digest-bot/internal/biz/domain"
	"github.com/anthropics/feishu-digest-bot/internal/biz/usecase"
	"github.com/anthropics/feishu-digest-bot/internal/conf"
	"github.com/anthropics/feishu-digest-bot/internal/data"
	"github.com/anthropics/feishu-digest-bot/internal/server"
	"github.com/anthropics/feishu-digest-bot/internal/service"
	"github.com/anthropics/feishu-digest-bot/mcpserver"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := domain.ValidateSchedule(append(append([]domain.ScheduleEntry{}, domain.DailySchedule...), domain.WeeklySchedule)); err != nil {
		log.Fatalf("Invalid schedule: %v", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid schedule timezone: %v", err)
	}

	// Repositories
	bufferRepo := data.NewBufferRepo()
	tenantRepo, err := data.NewTenantRepo(cfg.RegistryDBPath)
	if err != nil {
		log.Fatalf("Failed to open tenant registry: %v", err)
	}
	defer tenantRepo.Close()

	feishuClient := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret)
	delivery := data.NewDeliveryRepo(feishuClient)
	summarizer := data.NewSummarizerRepo(cfg.OpenAI)

	// Usecases
	usage := usecase.NewUsageCounter(loc)
	bufferUC := usecase.NewBufferUsecase(bufferRepo)
	digestUC := usecase.NewDigestUsecase(summarizer, usage, cfg.Digest.MaxMessagesPerChannel, cfg.Digest.RetryCount)
	tenantUC := usecase.NewTenantUsecase(tenantRepo, bufferUC, delivery, cfg.Digest.ChannelName)

	// Scheduled pipeline
	fanout := service.NewFanout(tenantUC, bufferUC, digestUC, delivery, cfg.Digest.Parallel)
	scheduler := service.NewScheduler(loc, domain.DailySchedule, domain.WeeklySchedule, fanout, bufferUC, tenantUC)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler.Start(ctx)

	// Optional MCP operator surface
	if cfg.MCPListenAddr != "" {
		mcpSrv := mcpserver.NewServer(bufferUC, digestUC, tenantUC, usage, cfg.OpenAI.Model)
		go func() {
			if err := mcpSrv.Serve(ctx, cfg.MCPListenAddr); err != nil {
				log.Printf("MCP server error: %v", err)
			}
		}()
	}

	srv := server.NewFeishuServer(feishuClient, bufferUC, tenantUC, digestUC, delivery, usage, loc, cfg.OpenAI.Model)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
		scheduler.Stop()
		srv.Stop()
		tenantRepo.Close()
		os.Exit(0)
	}()

	fmt.Printf("Starting Feishu Digest Bot (model: %s, schedule tz: %s)...\n", cfg.OpenAI.Model, loc)
	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
