package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/conduitci/conduit/internal/application/executor"
	"github.com/conduitci/conduit/internal/application/graph"
	"github.com/conduitci/conduit/internal/application/orchestrator"
	"github.com/conduitci/conduit/internal/config"
	"github.com/conduitci/conduit/internal/definition"
	eventsmemory "github.com/conduitci/conduit/pkg/adapters/events/memory"
	eventsredis "github.com/conduitci/conduit/pkg/adapters/events/redis"
	"github.com/conduitci/conduit/pkg/adapters/llm"
	"github.com/conduitci/conduit/pkg/adapters/metrics/noop"
	"github.com/conduitci/conduit/pkg/adapters/metrics/prometheus"
	"github.com/conduitci/conduit/pkg/adapters/notify"
	notifyslack "github.com/conduitci/conduit/pkg/adapters/notify/slack"
	storagememory "github.com/conduitci/conduit/pkg/adapters/storage/memory"
	storageredis "github.com/conduitci/conduit/pkg/adapters/storage/redis"
	"github.com/conduitci/conduit/pkg/adapters/toolexec"
	"github.com/conduitci/conduit/pkg/adapters/tools"
	"github.com/conduitci/conduit/pkg/adapters/tools/docker"
	"github.com/conduitci/conduit/pkg/adapters/tools/kubectl"
	"github.com/conduitci/conduit/pkg/adapters/tools/sonarqube"
	"github.com/conduitci/conduit/pkg/adapters/tools/terraform"
	"github.com/conduitci/conduit/pkg/adapters/tools/trivy"
	"github.com/conduitci/conduit/pkg/api/grpc"
	"github.com/conduitci/conduit/pkg/api/http"
	"github.com/conduitci/conduit/pkg/api/websocket"
	"github.com/conduitci/conduit/pkg/domain"
	"github.com/conduitci/conduit/pkg/ports"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "run" {
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: conduit run <pipeline.hcl>")
			os.Exit(2)
		}
		os.Exit(runOnce(os.Args[2]))
	}

	serve()
}

// serve runs the long-lived orchestration server.
func serve() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting conduit",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	eventBus, err := eventsredis.NewStreamsEventBus(
		redisClient,
		"conduit-servers",
		fmt.Sprintf("conduit-%d", os.Getpid()),
		logger,
	)
	if err != nil {
		logger.Fatal("failed to create event bus", zap.Error(err))
	}

	runStorage := storageredis.NewRunStorage(redisClient, cfg.Redis.RunTTL, logger)

	metricsCollector := prometheus.NewCollector()

	registry := buildRegistry(cfg, logger)

	exec := executor.New(executor.Config{
		Storage:             runStorage,
		Events:              eventBus,
		Metrics:             metricsCollector,
		Notifier:            buildNotifier(cfg, logger),
		Logger:              logger,
		MaxConcurrentStages: cfg.Executor.MaxConcurrentStages,
		StageTimeout:        cfg.Executor.StageTimeout,
	})

	monitor := executor.NewPoolMonitor(exec, cfg.Executor.MonitorInterval, logger)
	monitor.Start()

	manager := orchestrator.NewManager(
		exec,
		registry,
		runStorage,
		eventBus,
		metricsCollector,
		logger,
		cfg.Executor.RunTimeout,
	)

	httpServer := http.NewServer(&http.Config{
		Port:         cfg.HTTPPort,
		Orchestrator: manager,
		Logger:       logger,
	})

	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("conduit started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("max_concurrent_stages", cfg.Executor.MaxConcurrentStages),
		zap.Strings("adapters", registry.Names()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Executor.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown error", zap.Error(err))
	}

	monitor.Stop()

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if err := redisClient.Close(); err != nil {
		logger.Error("Redis close error", zap.Error(err))
	}

	logger.Info("conduit shut down complete")
}

// runOnce executes a single pipeline definition file to completion with
// in-process adapters and no server surface. The exit code mirrors the
// run status: 0 succeeded, 1 failed, 130 cancelled.
func runOnce(path string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	spec, err := definition.Load(path, definition.EnvFromOS())
	if err != nil {
		logger.Error("failed to load pipeline definition", zap.Error(err))
		return 1
	}

	g, err := graph.FromSpec(spec)
	if err != nil {
		logger.Error("invalid pipeline", zap.Error(err))
		return 1
	}

	registry := buildRegistry(cfg, logger)
	adapters := make(map[string]ports.StageAdapter, len(spec.Stages))
	for _, stage := range spec.Stages {
		adapter, ok := registry.Get(stage.Adapter)
		if !ok {
			logger.Error("unknown adapter",
				zap.String("stage_id", stage.ID),
				zap.String("adapter", stage.Adapter))
			return 1
		}
		adapters[stage.Adapter] = adapter
	}

	exec := executor.New(executor.Config{
		Storage:             storagememory.NewRunStorage(),
		Events:              eventsmemory.NewInMemoryEventBus(),
		Metrics:             noop.NewCollector(),
		Notifier:            buildNotifier(cfg, logger),
		Logger:              logger,
		MaxConcurrentStages: cfg.Executor.MaxConcurrentStages,
		StageTimeout:        cfg.Executor.StageTimeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Executor.RunTimeout)
	defer cancel()

	run := domain.NewPipelineRun(fmt.Sprintf("local-%d", time.Now().Unix()), spec)
	if err := exec.Run(ctx, run, g, adapters); err != nil {
		logger.Error("run aborted", zap.Error(err))
		return 1
	}

	switch run.Status {
	case domain.RunStatusSucceeded:
		return 0
	case domain.RunStatusCancelled:
		return 130
	default:
		return 1
	}
}

// buildRegistry wires every configured stage adapter. The sonarqube
// adapter is only registered when a host is configured.
func buildRegistry(cfg *config.Config, logger *zap.Logger) *tools.Registry {
	runner := toolexec.NewCommandRunner(logger)
	registry := tools.NewRegistry()

	register := func(adapter ports.StageAdapter) {
		if err := registry.Register(adapter); err != nil {
			logger.Fatal("failed to register adapter", zap.Error(err))
		}
	}

	register(terraform.New(terraform.Config{Binary: cfg.Tools.TerraformBinary}, runner, logger))
	register(trivy.New(trivy.ModeFilesystem, trivy.Config{Binary: cfg.Tools.TrivyBinary}, runner, logger))
	register(trivy.New(trivy.ModeImage, trivy.Config{Binary: cfg.Tools.TrivyBinary}, runner, logger))
	register(docker.New(docker.Config{Binary: cfg.Tools.DockerBinary}, runner, logger))
	register(kubectl.New(kubectl.Config{Binary: cfg.Tools.KubectlBinary}, runner, logger))

	if cfg.Tools.SonarHostURL != "" {
		register(sonarqube.New(sonarqube.Config{
			Binary:  cfg.Tools.SonarBinary,
			HostURL: cfg.Tools.SonarHostURL,
			Token:   cfg.Tools.SonarToken,
		}, runner, logger))
	}

	return registry
}

// buildNotifier selects the notification channel. Slack when a webhook
// is configured, the structured log otherwise. With an LLM API key set,
// Slack messages for failed runs carry a generated summary.
func buildNotifier(cfg *config.Config, logger *zap.Logger) ports.Notifier {
	if cfg.Notify.SlackWebhookURL == "" {
		return notify.NewLogNotifier(logger)
	}

	var summarizer ports.RunSummarizer
	if cfg.LLM.APIKey != "" {
		s, err := llm.NewSummarizer(&llm.Config{
			Provider: cfg.LLM.Provider,
			APIKey:   cfg.LLM.APIKey,
			Model:    cfg.LLM.Model,
			Logger:   logger,
		})
		if err != nil {
			logger.Warn("failure summaries disabled", zap.Error(err))
		} else {
			summarizer = s
		}
	}

	return notifyslack.New(cfg.Notify.SlackWebhookURL, summarizer, logger)
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
