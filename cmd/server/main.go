package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gamify-journal/internal/config"
	"gamify-journal/internal/exporter"
	apphttp "gamify-journal/internal/http"
	"gamify-journal/internal/lock"
	"gamify-journal/internal/metrics"
	"gamify-journal/internal/progression"
	"gamify-journal/internal/repository/sqlite"
	"gamify-journal/internal/scheduler"
	"gamify-journal/internal/service"
	"gamify-journal/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		logrus.Fatalf("setup logger: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	repos := sqlite.NewRepositories(db)
	if err := repos.Init(ctx); err != nil {
		logger.Fatalf("init repositories: %v", err)
	}

	rules, err := cfg.Rules()
	if err != nil {
		logger.Fatalf("progression rules: %v", err)
	}
	engine, err := progression.New(rules)
	if err != nil {
		logger.Fatalf("progression engine: %v", err)
	}

	locker, closeLocker, err := buildLocker(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup lock: %v", err)
	}
	defer closeLocker()

	m := metrics.New()

	userService := service.NewUserService(repos.Users, cfg.Auth.RegisterPassword, logger)
	characterService := service.NewCharacterService(repos.Characters, repos.Entries, repos.Quests, engine, locker, logger)
	journalService := service.NewJournalService(service.JournalDeps{
		Characters: repos.Characters,
		Entries:    repos.Entries,
		Quests:     repos.Quests,
		Tx:         repos.Tx,
		Engine:     engine,
		Locker:     locker,
		Metrics:    m,
		Logger:     logger,
		MaxRetries: cfg.Progression.MaxRetries,
	})
	questService, err := service.NewQuestService(service.QuestDeps{
		Quests:  repos.Quests,
		Tx:      repos.Tx,
		Engine:  engine,
		Locker:  locker,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatalf("quest service: %v", err)
	}
	if _, err := questService.SeedTemplates(ctx); err != nil {
		logger.Fatalf("seed quest templates: %v", err)
	}

	storageSvc, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}

	var (
		manager exporter.Manager
		queue   service.ExportQueue
	)
	if storageSvc != nil {
		manager = exporter.NewManager(exporter.Config{
			Bucket:        cfg.Storage.Bucket,
			KeyPrefix:     cfg.Storage.KeyPrefix,
			MaxConcurrent: cfg.Export.MaxConcurrent,
			Logger:        logger,
			Metrics:       m,
		}, repos.Exports, repos.Entries, storageSvc)
		if err := manager.Start(ctx); err != nil {
			logger.Fatalf("start export manager: %v", err)
		}
		if err := manager.Resume(ctx); err != nil {
			logger.Warnf("resume exports: %v", err)
		}
		queue = manager
	}
	exportService := service.NewExportService(repos.Exports, queue, storageSvc, service.ExportConfig{
		Bucket:    cfg.Storage.Bucket,
		KeyPrefix: cfg.Storage.KeyPrefix,
	}, logger)

	sched, err := scheduler.New(cfg.Scheduler.QuestExpiry, questService, logger)
	if err != nil {
		logger.Fatalf("setup scheduler: %v", err)
	}
	sched.Start(ctx)

	tokens, err := apphttp.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.TokenTTL())
	if err != nil {
		logger.Fatalf("setup tokens: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(apphttp.Services{
		Users:      userService,
		Characters: characterService,
		Journal:    journalService,
		Quests:     questService,
		Exports:    exportService,
		Documents:  service.NewDocumentService(repos.Documents, repos.Tx, logger),
	}, apphttp.Options{
		Tokens:    tokens,
		Metrics:   m,
		Logger:    logger,
		AuthRate:  cfg.AuthRate(),
		AuthBurst: cfg.Auth.RateBurst,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	sched.Stop()
	if manager != nil {
		manager.Shutdown()
	}

	logger.Info("bye")
}

// buildLocker picks the redis lock when a URL is configured and the
// in-process lock otherwise.
func buildLocker(ctx context.Context, cfg config.Config, logger *logrus.Logger) (lock.Locker, func(), error) {
	if cfg.Lock.RedisURL == "" {
		logger.Info("using in-process user lock")
		return lock.NewMemoryLocker(), func() {}, nil
	}
	client, err := lock.NewRedisClient(ctx, cfg.Lock.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("using redis user lock (ttl %s)", cfg.Lock.TTL)
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warnf("close redis: %v", err)
		}
	}
	return lock.NewRedisLocker(client, cfg.Lock.TTL, logger), closeFn, nil
}

// buildStorage returns nil when no bucket is configured; exports are then disabled.
func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	if cfg.Storage.Bucket == "" {
		logger.Warn("no storage bucket configured, exports disabled")
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}
	if cfg.Storage.AccessKey != "" && cfg.Storage.SecretKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client), nil
}
