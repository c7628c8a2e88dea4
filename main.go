package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anonchat/internal/api"
	"anonchat/internal/audit"
	"anonchat/internal/config"
	"anonchat/internal/dialog"
	"anonchat/internal/llm"
	"anonchat/internal/ratelimit"
	"anonchat/internal/storage"
	"anonchat/internal/store"
	"anonchat/internal/transport"
	"anonchat/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfgPath := os.Getenv("ANONCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	backend, err := storage.Open(cfg)
	if err != nil {
		log.Fatalf("open snapshot backend: %v", err)
	}
	defer backend.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st := store.New(backend, logger)
	go st.Run(ctx)

	var sender dialog.Transport
	if cfg.Admin.OutboundURL != "" {
		sender = transport.NewWebhook(cfg.Admin.OutboundURL, 10*time.Second)
	} else {
		logger.Warn("no outbound_url configured, logging outbound traffic instead")
		sender = transport.NewLog(logger)
	}

	auditLog := audit.New(logger)
	engine := dialog.NewEngine(dialog.Config{
		RateLimitMessages: cfg.Chat.RateLimitMessages,
		RateLimitPeriod:   time.Duration(cfg.Chat.RateLimitPeriodSeconds) * time.Second,
		HistoryCap:        cfg.Chat.HistoryCap,
		SearchDelayMin:    time.Duration(cfg.Chat.SearchDelayMinMS) * time.Millisecond,
		SearchDelayMax:    time.Duration(cfg.Chat.SearchDelayMaxMS) * time.Millisecond,
	}, st, ratelimit.New(), llm.NewClient(cfg.LLM), sender, auditLog, logger)

	dispatcher := worker.NewDispatcher(ctx, cfg.Worker.Workers, cfg.Worker.QueueSize)
	handlers := api.NewHandler(engine, st, dispatcher, sender, auditLog, cfg.Admin.AdminIDs)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	if err := router.Run(cfg.Server.Address); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
