package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"promptjudge/internal/common/cache"
	"promptjudge/internal/common/db"
	commonmw "promptjudge/internal/common/http/middleware"
	"promptjudge/internal/common/mq"
	"promptjudge/internal/common/storage"
	"promptjudge/internal/evaluation/agent"
	"promptjudge/internal/evaluation/controller"
	"promptjudge/internal/evaluation/progress"
	"promptjudge/internal/evaluation/repository"
	"promptjudge/internal/evaluation/service"
	appErr "promptjudge/pkg/errors"
	"promptjudge/pkg/utils/logger"
	"promptjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConfigPath = "configs/evaluator_service.yaml"
	defaultEnvPath    = ".env"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envPath := flag.String("env", defaultEnvPath, "Path to .env overrides")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "evaluator service stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database failed: %w", err)
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	// Redis is optional with the memory progress backend; repositories then run uncached.
	var redisCache cache.Cache
	if appCfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis failed: %w", err)
		}
		defer func() {
			_ = rc.Close()
		}()
		redisCache = rc
	}

	progressStore, err := progress.New(appCfg.Progress, redisCache)
	if err != nil {
		return fmt.Errorf("init progress store failed: %w", err)
	}

	var objStorage storage.ObjectStorage
	if appCfg.MinIO.Endpoint != "" {
		minioStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			return fmt.Errorf("init minio failed: %w", err)
		}
		bucketCtx, cancel := context.WithTimeout(ctx, appCfg.Evaluation.Timeouts.Storage)
		err = minioStorage.EnsureBucket(bucketCtx, appCfg.Evaluation.ArtifactBucket)
		cancel()
		if err != nil {
			return fmt.Errorf("init artifact bucket failed: %w", err)
		}
		objStorage = minioStorage
	} else {
		logger.Info(ctx, "minio not configured, artifact archival disabled")
	}

	var producer mq.Producer
	if len(appCfg.Kafka.Brokers) > 0 {
		kp, err := mq.NewKafkaProducer(appCfg.Kafka)
		if err != nil {
			return fmt.Errorf("init kafka failed: %w", err)
		}
		defer func() {
			_ = kp.Close()
		}()
		producer = kp
	} else {
		logger.Info(ctx, "kafka not configured, evaluation events disabled")
	}

	agents, err := agent.NewClient(appCfg.Agent, &http.Client{})
	if err != nil {
		return fmt.Errorf("init agent client failed: %w", err)
	}

	evalCfg := appCfg.Evaluation
	problemRepo := repository.NewProblemRepository(mysqlDB, redisCache, evalCfg.ProblemCacheTTL, evalCfg.EmptyCacheTTL)
	submissionRepo := repository.NewSubmissionRepository(mysqlDB, redisCache, evalCfg.SubmissionCacheTTL, evalCfg.EmptyCacheTTL)

	evaluationService, err := service.NewEvaluationService(service.Config{
		ProblemRepo:    problemRepo,
		SubmissionRepo: submissionRepo,
		Progress:       progressStore,
		Agents:         agents,
		Storage:        objStorage,
		Producer:       producer,
		BuildLogLimit:  evalCfg.BuildLogLimit,
		MaxFilesBytes:  evalCfg.MaxFilesBytes,
		ArtifactBucket: evalCfg.ArtifactBucket,
		ArtifactPrefix: evalCfg.ArtifactPrefix,
		EventsTopic:    evalCfg.EventsTopic,
		Timeouts: service.TimeoutConfig{
			DB:      evalCfg.Timeouts.DB,
			Storage: evalCfg.Timeouts.Storage,
			MQ:      evalCfg.Timeouts.MQ,
		},
	})
	if err != nil {
		return fmt.Errorf("init evaluation service failed: %w", err)
	}

	checks := map[string]func(context.Context) error{"mysql": mysqlDB.Ping}
	if redisCache != nil {
		checks["redis"] = redisCache.Ping
	}
	httpServer := buildHTTPServer(appCfg.Server, controller.NewEvaluationController(evaluationService, evalCfg.Stream), checks)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(shutdownCtx)
	g.Go(func() error {
		logger.Info(ctx, "evaluator http server started", zap.String("addr", appCfg.Server.Addr))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "shutting down evaluator http server")
		timeoutCtx, cancel := context.WithTimeout(context.Background(), appCfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(timeoutCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func buildHTTPServer(cfg ServerConfig, h *controller.EvaluationController, checks map[string]func(context.Context) error) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.CORSMiddleware(cfg.CORS))
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	router.GET("/healthz", healthHandler(checks))

	api := router.Group("/api/v1")
	api.POST("/submissions", h.Submit)
	api.GET("/submissions/:id", h.GetSubmission)
	api.GET("/progress/:submissionId", h.GetProgress)
	api.GET("/progress/:submissionId/stream", h.StreamProgress)
	api.GET("/problems/:problemId/submissions", h.ListProblemSubmissions)
	api.GET("/accounts/me/submissions", h.ListAccountSubmissions)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func healthHandler(checks map[string]func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				response.ErrorWithCode(c, appErr.ServiceUnavailable, fmt.Sprintf("%s unavailable", name))
				return
			}
			status[name] = "ok"
		}
		response.Success(c, status)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
