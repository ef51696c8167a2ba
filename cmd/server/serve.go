package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/video-share-api/internal/config"
	"github.com/iliyamo/video-share-api/internal/database"
	"github.com/iliyamo/video-share-api/internal/handler"
	"github.com/iliyamo/video-share-api/internal/logging"
	"github.com/iliyamo/video-share-api/internal/middleware"
	"github.com/iliyamo/video-share-api/internal/queue"
	"github.com/iliyamo/video-share-api/internal/repository"
	"github.com/iliyamo/video-share-api/internal/router"
	"github.com/iliyamo/video-share-api/internal/service"
	"github.com/iliyamo/video-share-api/internal/storage"
	"github.com/iliyamo/video-share-api/internal/utils"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default).",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply pending migrations before serving")
	rootCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply pending migrations before serving")
}

// bootstrap loads the configuration and builds the logger every command
// needs.
func bootstrap() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logging.New(cfg.Env)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if migrateOnStart {
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	objects, err := storage.NewS3Store(ctx, config.LoadStorageConfig())
	if err != nil {
		return fmt.Errorf("object storage: %w", err)
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.Warn("redis unavailable: response cache disabled, rate limiting is per instance")
	} else {
		defer rdb.Close()
	}

	qc := config.LoadQueueConfig()
	publisher := queue.NewPublisher(qc, log.Named("events"))
	if qc.Enabled {
		consumer := queue.NewAuditConsumer(qc, log.Named("audit"))
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit consumer stopped", zap.Error(err))
			}
		}()
	}

	tokens := utils.NewTokenService(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL, cfg.TokenIssuer)
	accounts := service.NewAccounts(service.Deps{
		Users:     repository.NewUserRepo(db),
		Assets:    objects,
		Events:    publisher,
		Hasher:    utils.NewHasher(cfg.BcryptCost),
		Tokens:    tokens,
		Log:       log.Named("accounts"),
		DBTimeout: cfg.DBTimeout,
	})

	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, log)
	cookies := handler.CookiePolicy{ForceSecure: cfg.CookieSecure, RefreshPath: router.BasePath + "/users"}

	e := router.New(router.Deps{
		Users:      handler.NewUserHandler(accounts, cookies, cache, cfg.UploadDir, router.BasePath, log),
		Admin:      handler.NewAdminHandler(accounts),
		Upload:     handler.NewUploadHandler(objects, cfg.UploadDir, log),
		Tokens:     tokens,
		Loader:     accounts,
		Cache:      cache,
		APILimit:   middleware.NewRateLimiter(config.LoadRateLimitConfig(), rdb, log),
		AuthLimit:  middleware.NewRateLimiter(config.LoadAuthRateLimitConfig(), rdb, log),
		DB:         db,
		Log:        log,
		Production: cfg.IsProduction(),
		CORSOrigin: cfg.CORSOrigin,
		MaxUpload:  cfg.UploadMaxBytes,
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = e.Shutdown(shutdownCtx)
	accounts.Wait()
	return err
}
