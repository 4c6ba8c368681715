package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clipcast/api/internal/cleanup"
	"github.com/clipcast/api/internal/client"
	"github.com/clipcast/api/internal/config"
	"github.com/clipcast/api/internal/handler"
	"github.com/clipcast/api/internal/logging"
	"github.com/clipcast/api/internal/queue"
	"github.com/clipcast/api/internal/service"
	"github.com/clipcast/api/internal/store"
	"github.com/clipcast/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logging.New(cfg.Server.LogLevel, cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zlog); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
	zlog.Info("server stopped")
}

// backend is the storage side of the process: Redis-backed or in-process
type backend struct {
	store     store.StatusStore
	enqueuer  queue.Enqueuer
	tracker   queue.Tracker
	scheduler cleanup.Scheduler
	local     *queue.LocalQueue
	servers   *worker.Servers
	closers   []func() error
}

func (b *backend) close(zlog *zap.Logger) {
	for _, c := range b.closers {
		if err := c(); err != nil {
			zlog.Warn("close failed", zap.Error(err))
		}
	}
}

func run(ctx context.Context, cfg *config.Config, zlog *zap.Logger) error {
	be, err := newBackend(ctx, cfg, zlog)
	if err != nil {
		return err
	}
	defer be.close(zlog)

	// Leftovers from a crashed run
	sweeper := &cleanup.Sweeper{
		WorkDir:          cfg.Storage.WorkDir,
		DownloadDir:      cfg.Storage.DownloadDir,
		ArchiveRetention: cfg.Storage.ArchiveRetention,
		Logger:           zlog,
	}
	if _, err := sweeper.Sweep(time.Now()); err != nil {
		zlog.Warn("startup sweep incomplete", zap.Error(err))
	}
	if err := os.MkdirAll(cfg.Storage.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	// Initialize external clients
	extractor, err := client.NewYtDlp(cfg.Extractor.Binary, cfg.Extractor.Timeout, cfg.Extractor.MaxPlaylistItems, zlog.Named("yt-dlp"))
	if err != nil {
		return err
	}

	// R2 is optional; clips are served from the download dir without it
	var publisher client.Publisher
	r2Enabled := false
	if cfg.R2.Configured() {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			zlog.Warn("R2 client not initialized, serving clips locally", zap.Error(err))
		} else {
			publisher = r2Client
			r2Enabled = true
		}
	} else {
		zlog.Info("R2 storage not configured, serving clips locally")
	}
	if publisher == nil {
		publisher = client.NewLocalPublisher(cfg.Storage.DownloadDir, cfg.Server.PublicURL, cfg.Storage.ArchiveRetention, be.scheduler)
	}

	// Workers
	clipPipeline := worker.NewPipeline(be.store, cfg.Storage.WorkDir, cfg.Status.Retention, zlog.Named("clip"))
	playlistPipeline := worker.NewPipeline(be.store, cfg.Storage.WorkDir, cfg.Status.Retention, zlog.Named("playlist"))
	handlers := worker.Handlers{
		Clip: worker.NewClipWorker(clipPipeline, extractor, publisher, zlog),
		Playlist: worker.NewPlaylistWorker(playlistPipeline, extractor, be.scheduler, worker.PlaylistOptions{
			DownloadDir:      cfg.Storage.DownloadDir,
			PublicURL:        cfg.Server.PublicURL,
			ArchiveRetention: cfg.Storage.ArchiveRetention,
		}, zlog),
		Cleanup: cleanup.NewHandler(zlog),
	}

	// Intake API
	jobService := service.NewJobService(be.enqueuer, be.tracker, be.store, cfg.Status.ReadGrace, zlog)
	jobHandler := handler.NewJobHandler(jobService, validator.New(), zlog)
	app := newApp(cfg)
	handler.RegisterRoutes(app, jobHandler, cfg.Storage.DownloadDir, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis": be.local == nil,
				"r2":    r2Enabled,
			},
			"workers": fiber.Map{
				"clip":     clipPipeline.Active(),
				"playlist": playlistPipeline.Active(),
			},
		})
	})

	g, gctx := errgroup.WithContext(ctx)

	if be.servers != nil {
		if err := be.servers.Start(handlers); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			be.servers.Shutdown()
			return nil
		})
	} else {
		g.Go(func() error {
			return worker.ServeLocal(gctx, be.local, cfg.Worker, handlers)
		})
	}

	g.Go(func() error {
		addr := ":" + cfg.Server.Port
		zlog.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Server.Env))
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		zlog.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newBackend(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (*backend, error) {
	if cfg.Server.IsLocal() {
		zlog.Info("local mode: in-process queue and status store, jobs do not survive a restart")
		local := queue.NewLocalQueue(100, zlog.Named("queue"))
		timers := cleanup.NewTimerScheduler(zlog.Named("cleanup"))
		return &backend{
			store:     store.NewMemoryStatusStore(),
			enqueuer:  local,
			tracker:   local,
			scheduler: timers,
			local:     local,
			closers: []func() error{
				func() error { local.Close(); return nil },
				func() error { timers.Stop(); return nil },
			},
		}, nil
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		zlog.Warn("redis not available", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	inspector := asynq.NewInspector(redisOpt)

	q := queue.NewAsynqQueue(asynqClient, inspector, queue.Options{
		MaxRedeliveries: cfg.Worker.MaxRedeliveries,
		Timeout:         cfg.Worker.TaskTimeout,
	})

	return &backend{
		store:     store.NewRedisStatusStore(redisClient),
		enqueuer:  q,
		tracker:   q,
		scheduler: cleanup.NewAsynqScheduler(asynqClient),
		servers:   worker.NewServers(redisOpt, cfg.Worker, cfg.Server.LogLevel, zlog.Named("asynq")),
		closers:   []func() error{asynqClient.Close, inspector.Close, redisClient.Close},
	}, nil
}

func newApp(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: true,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))
	return app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
