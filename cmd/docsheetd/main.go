package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/docsheet/internal/api"
	"github.com/gmsas95/docsheet/internal/auth"
	"github.com/gmsas95/docsheet/internal/config"
	"github.com/gmsas95/docsheet/internal/extract"
	"github.com/gmsas95/docsheet/internal/intake"
	"github.com/gmsas95/docsheet/internal/metrics"
	"github.com/gmsas95/docsheet/internal/pipeline"
	"github.com/gmsas95/docsheet/internal/sheets"
	"github.com/gmsas95/docsheet/internal/store"
	"github.com/gmsas95/docsheet/internal/uploads"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	addr       = flag.String("addr", "", "Listen address override (host:port)")
	version    = "dev"
)

func main() {
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting docsheet", zap.String("version", version))

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	if *addr != "" {
		host, port, err := splitAddr(*addr)
		if err != nil {
			logger.Fatal("Invalid -addr", zap.String("addr", *addr), zap.Error(err))
		}
		cfg.Server.Address = host
		cfg.Server.Port = port
	}

	st, err := store.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}
	defer st.Close()

	m := metrics.Default()
	authSvc := auth.NewService(st, logger)
	tokens := auth.NewTokenIssuer(cfg.Security.JWTSecret, time.Duration(cfg.Security.TokenTTLHours)*time.Hour)

	if cfg.Security.SeedDefaults {
		if err := authSvc.SeedDefaults(cfg.Security.AdminEmail, cfg.Security.AdminPassword, cfg.Security.DefaultPassword); err != nil {
			logger.Error("Failed to seed default accounts", zap.Error(err))
		}
	}

	uploadSvc, err := uploads.NewService(st, cfg.Uploads, m, logger)
	if err != nil {
		logger.Fatal("Failed to initialize uploads", zap.Error(err))
	}

	provider, err := cfg.ActiveProvider()
	if err != nil {
		logger.Fatal("Failed to resolve vision provider", zap.Error(err))
	}
	extractor := extract.NewExtractor(cfg.Vision.Provider, provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := pipeline.NewPool(st, extractor, cfg.Vision, m, logger)
	if err := pool.Start(ctx); err != nil {
		logger.Fatal("Failed to start extraction pool", zap.Error(err))
	}

	var appender sheets.Appender = sheets.Disabled{}
	if cfg.Sheets.Enabled {
		client, err := sheets.NewClient(ctx, cfg.Sheets, logger)
		if err != nil {
			logger.Fatal("Failed to initialize sheets client", zap.Error(err))
		}
		appender = client
	} else {
		logger.Warn("Sheets integration disabled; rows are kept locally only")
	}

	var cleaner *uploads.Cleaner
	if cfg.Cleanup.Enabled {
		cleaner = uploads.NewCleaner(st, cfg.Cleanup, cfg.Uploads.Dir, logger)
		if err := cleaner.Start(); err != nil {
			logger.Error("Failed to start cleanup scheduler", zap.Error(err))
			cleaner = nil
		}
	}

	var watcher *intake.Watcher
	if cfg.Intake.Enabled {
		watcher = intake.NewWatcher(cfg.Intake, uploadSvc, pool, cfg.Uploads.AllowedExts, logger)
		if err := watcher.Start(ctx); err != nil {
			logger.Error("Failed to start intake watcher", zap.Error(err))
			watcher = nil
		}
	}

	server := api.New(api.Deps{
		Config:   cfg,
		Store:    st,
		Auth:     authSvc,
		Tokens:   tokens,
		Uploads:  uploadSvc,
		Pipeline: pool,
		Sheets:   appender,
		Metrics:  m,
		Logger:   logger,
	})

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("address", cfg.Server.Address),
		zap.Int("port", cfg.Server.Port),
		zap.String("url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	if err := server.Shutdown(); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	if watcher != nil {
		watcher.Stop()
	}
	if cleaner != nil {
		cleaner.Stop()
	}
	pool.Stop()
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
