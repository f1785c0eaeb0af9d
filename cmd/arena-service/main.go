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

	"codearena/internal/common/auth"
	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	commonmw "codearena/internal/common/http/middleware"
	"codearena/internal/common/metrics"
	"codearena/internal/common/mq"
	"codearena/internal/common/ratelimit"
	"codearena/internal/common/storage"
	contestcontroller "codearena/internal/contest/controller"
	contestrepo "codearena/internal/contest/repository"
	contestservice "codearena/internal/contest/service"
	judgeclient "codearena/internal/judge/client"
	"codearena/internal/judge/runner"
	problemcontroller "codearena/internal/problem/controller"
	problemrepo "codearena/internal/problem/repository"
	problemservice "codearena/internal/problem/service"
	submitcontroller "codearena/internal/submit/controller"
	submitrepo "codearena/internal/submit/repository"
	submitservice "codearena/internal/submit/service"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/arena.yaml"

type services struct {
	problems *problemservice.ProblemService
	submits  *submitservice.SubmitService
	contests *contestservice.ContestService
	hub      *contestcontroller.LeaderboardHub
	verifier *auth.Verifier
	limiter  *ratelimit.Limiter
	database db.Database
	cache    cache.Cache
}

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
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
		logger.Error(context.Background(), "arena service stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	database, err := openDatabase(appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database failed: %w", err)
	}
	defer func() {
		_ = database.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis failed: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	var mqClient mq.MessageQueue
	var producer mq.Producer
	if appCfg.Kafka.Enabled {
		kafkaQueue, err := mq.NewKafkaQueue(appCfg.Kafka.KafkaConfig)
		if err != nil {
			return fmt.Errorf("init kafka failed: %w", err)
		}
		mqClient, producer = kafkaQueue, kafkaQueue
		defer func() {
			_ = mqClient.Close()
		}()
	}

	var archive *submitservice.SourceArchive
	if appCfg.MinIO.Enabled {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO.MinIOConfig)
		if err != nil {
			return fmt.Errorf("init minio failed: %w", err)
		}
		if err := objStorage.EnsureBucket(ctx, appCfg.MinIO.Bucket); err != nil {
			return fmt.Errorf("ensure archive bucket failed: %w", err)
		}
		archive, err = submitservice.NewSourceArchive(objStorage, appCfg.MinIO.Bucket, appCfg.MinIO.ArchivePrefix)
		if err != nil {
			return fmt.Errorf("init source archive failed: %w", err)
		}
	}

	judge, err := judgeclient.New(appCfg.Judge, nil)
	if err != nil {
		return fmt.Errorf("init judge client failed: %w", err)
	}
	evaluator := runner.New(judge, appCfg.Runner)

	problemRepo := problemrepo.NewProblemRepositoryWithTTL(database, redisCache, appCfg.Cache.ProblemTTL, appCfg.Cache.ProblemEmptyTTL)
	contestRepo := contestrepo.NewContestRepositoryWithTTL(database, redisCache, appCfg.Cache.ContestTTL, appCfg.Cache.ContestEmptyTTL)
	limiter := ratelimit.NewLimiter(redisCache, appCfg.RateLimit.Window, appCfg.RateLimit.CacheTimeout)

	submitService, err := submitservice.NewSubmitService(submitservice.Config{
		ProblemRepo:  problemRepo,
		SolvedRepo:   submitrepo.NewSolvedRepository(database),
		Evaluator:    evaluator,
		Cache:        redisCache,
		Limiter:      limiter,
		Producer:     producer,
		Archive:      archive,
		JudgedTopic:  appCfg.Topics.SubmissionJudged,
		MaxCodeBytes: appCfg.Submit.MaxCodeBytes,
		InflightTTL:  appCfg.Submit.InflightTTL,
		RateLimit:    appCfg.Submit.RateLimit,
		Timeouts:     appCfg.Submit.Timeouts,
	})
	if err != nil {
		return fmt.Errorf("init submit service failed: %w", err)
	}

	contestService, err := contestservice.NewContestService(contestservice.Config{
		Repo:             contestRepo,
		Problems:         problemRepo,
		Submitter:        submitService,
		Producer:         producer,
		LeaderboardTopic: appCfg.Topics.ContestLeaderboard,
		PrizeTopic:       appCfg.Topics.PrizeAwarded,
		MaxRetries:       appCfg.Contest.MaxRetries,
		Timeouts:         appCfg.Contest.Timeouts,
	})
	if err != nil {
		return fmt.Errorf("init contest service failed: %w", err)
	}

	hub := contestcontroller.NewLeaderboardHub()
	if mqClient != nil {
		// Every instance needs every update, so each one consumes with its own group.
		host, _ := os.Hostname()
		opts := &mq.SubscribeOptions{ConsumerGroup: appCfg.Kafka.ConsumerGroup + "-" + host}
		if err := mqClient.Subscribe(ctx, appCfg.Topics.ContestLeaderboard, hub.HandleEvent, opts); err != nil {
			return fmt.Errorf("subscribe leaderboard topic failed: %w", err)
		}
		if err := mqClient.Start(); err != nil {
			return fmt.Errorf("start kafka consumer failed: %w", err)
		}
	}

	sweeper := contestservice.NewStatusSweeper(contestService, appCfg.Contest.Sweep)
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer sweeper.Stop()

	httpServer := buildHTTPServer(appCfg, &services{
		problems: problemservice.NewProblemService(problemRepo),
		submits:  submitService,
		contests: contestService,
		hub:      hub,
		verifier: auth.NewVerifier(appCfg.Auth, redisCache),
		limiter:  limiter,
		database: database,
		cache:    redisCache,
	})
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "arena http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped: %w", err)
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	ctxShutdown, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	if mqClient != nil {
		_ = mqClient.Stop()
	}
	return nil
}

func openDatabase(cfg DatabaseConfig) (db.Database, error) {
	switch cfg.Driver {
	case "postgres":
		return db.NewPostgreSQLWithConfig(db.PostgreSQLConfig{DSN: cfg.DSN, Pool: cfg.Pool})
	default:
		return db.NewMySQLWithConfig(db.MySQLConfig{DSN: cfg.DSN, Pool: cfg.Pool})
	}
}

func buildHTTPServer(appCfg *AppConfig, svc *services) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger())

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/healthz", healthHandler(svc.database, svc.cache))

	optional := commonmw.AuthMiddleware(svc.verifier, commonmw.AuthPolicy{Mode: commonmw.AuthOptional})
	required := commonmw.AuthMiddleware(svc.verifier, commonmw.AuthPolicy{Mode: commonmw.AuthRequired})
	admin := commonmw.AuthMiddleware(svc.verifier, commonmw.AuthPolicy{
		Mode:  commonmw.AuthRequired,
		Roles: []string{auth.RoleAdmin},
	})
	judgeLimit := func(route string) gin.HandlerFunc {
		return commonmw.RateLimitMiddleware(svc.limiter, route, commonmw.RateLimitPolicy{
			Window:  appCfg.RateLimit.Window,
			UserMax: appCfg.RateLimit.UserMax,
			IPMax:   appCfg.RateLimit.IPMax,
		})
	}

	api := router.Group("/api/v1")

	problemController := problemcontroller.NewProblemController(svc.problems)
	submitController := submitcontroller.NewSubmitController(svc.submits)
	problems := api.Group("/problems")
	problems.GET("", problemController.List)
	problems.GET("/:id", problemController.Get)
	problems.POST("", admin, problemController.Create)
	problems.POST("/:id/run", optional, judgeLimit("problem.run"), submitController.Run)
	problems.POST("/:id/submit", required, judgeLimit("problem.submit"), submitController.Submit)

	me := api.Group("/me", required)
	me.GET("/solved", submitController.Solved)
	me.GET("/solved/:problemId/source", submitController.SolvedSource)
	me.GET("/activity", submitController.Activity)
	api.GET("/leaderboard", submitController.GlobalLeaderboard)

	contestController := contestcontroller.NewContestController(svc.contests, svc.hub)
	contests := api.Group("/contests")
	contests.GET("", contestController.List)
	contests.GET("/:id", contestController.Get)
	contests.POST("", admin, contestController.Create)
	contests.POST("/:id/join", required, contestController.Join)
	contests.POST("/:id/start", required, contestController.Start)
	contests.POST("/:id/solves", admin, contestController.RecordSolve)
	contests.POST("/:id/problems/:problemId/submit", required, judgeLimit("contest.submit"), contestController.Submit)
	contests.GET("/:id/leaderboard", contestController.Leaderboard)
	contests.GET("/:id/leaderboard/ws", contestController.LeaderboardStream)
	contests.PATCH("/:id/status", admin, contestController.UpdateStatus)
	contests.POST("/:id/prizes", admin, contestController.DistributePrizes)

	return &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
}

func healthHandler(database db.Database, cacheClient cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := gin.H{"database": "ok", "redis": "ok"}
		healthy := true
		if err := database.Ping(ctx); err != nil {
			status["database"] = err.Error()
			healthy = false
		}
		if err := cacheClient.Ping(ctx); err != nil {
			status["redis"] = err.Error()
			healthy = false
		}
		if !healthy {
			c.JSON(http.StatusServiceUnavailable, response.Response{Code: pkgerrors.ServiceUnavailable, Message: "unhealthy", Data: status})
			return
		}
		response.Success(c, status)
	}
}
