//	@title			Media Proxy API
//	@version		1.0
//	@description	Media upload with WebP transcoding and a range-aware streaming proxy over S3-compatible storage.
//
//	@host		localhost:3000
//	@BasePath	/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/illtip/mediaproxy/internal/config"
	"github.com/illtip/mediaproxy/internal/media"
	"github.com/illtip/mediaproxy/internal/metrics"
	appMiddleware "github.com/illtip/mediaproxy/internal/middleware"
	"github.com/illtip/mediaproxy/internal/storage"
	"github.com/illtip/mediaproxy/internal/transcode"

	_ "github.com/illtip/mediaproxy/docs/swagger"
)

// bucket is what every storage driver provides.
type bucket interface {
	storage.Storage
	storage.Bucket
}

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	store, err := openStorage(context.Background(), cfg)
	if err != nil {
		logger.Error("object storage init failed", "driver", cfg.StorageDriver, "err", err)
		os.Exit(1)
	}

	// Bucket setup runs in the background; the server starts regardless.
	go storage.Bootstrap(context.Background(), store, storage.BootstrapOptions{
		CreateBucket: cfg.StorageAutoCreateBucket,
		PublicPolicy: cfg.StoragePublicPolicy,
		Timeout:      30 * time.Second,
	}, logger)

	// HEAD and upload go through the metadata cache; Bootstrap uses the raw store.
	var objects storage.Storage = store
	if cfg.StatCacheSize > 0 {
		cached, err := storage.NewStatCache(store, cfg.StatCacheSize, cfg.StatCacheTTL)
		if err != nil {
			logger.Error("stat cache init failed", "err", err)
			os.Exit(1)
		}
		objects = cached
	}

	// Wire dependencies: transcoders → service → handler
	limiter := transcode.NewLimiter(cfg.TranscodeConcurrency)
	images := transcode.NewImageTranscoder(cfg.ImageQuality, cfg.ImageMaxDimension, limiter)
	var videos media.Transcoder
	if cfg.VideoUploadsEnabled {
		videos = transcode.NewFFmpegTranscoder(cfg.FFmpegPath, limiter)
	}
	mediaSvc := media.NewService(objects, images, videos, media.Options{
		ServerURL:           cfg.ServerURL,
		VideoUploadsEnabled: cfg.VideoUploadsEnabled,
	}, logger)
	mediaHandler := media.NewHandler(mediaSvc, objects, cfg.MaxUploadBytes, logger)

	r := newRouter(cfg, logger, mediaHandler)

	// No WriteTimeout: media responses stream for as long as the client reads.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server listening", "port", cfg.Port, "env", cfg.AppEnv, "storage", cfg.StorageDriver, "video_uploads", cfg.VideoUploadsEnabled)
		logger.Info("swagger UI", "url", cfg.ServerURL+"/swagger/")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "err", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// newRouter builds the HTTP surface. Media is public and upload auth rides
// on the Authorization header, so CORS never allows credentialed requests.
func newRouter(cfg *config.Config, logger *slog.Logger, mediaHandler *media.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(logger))
	r.Use(metrics.Middleware)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORS,
		AllowedMethods: []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Range", "X-Request-ID"},
		ExposedHeaders: []string{"Accept-Ranges", "Content-Length", "Content-Range"},
		MaxAge:         300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	// Swagger UI: available at http://localhost:3000/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	mediaHandler.Mount(r, appMiddleware.RequireAuth(cfg.UploadJWTSecret))

	return r
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogJSON || cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func openStorage(ctx context.Context, cfg *config.Config) (bucket, error) {
	switch cfg.StorageDriver {
	case config.DriverMinio:
		return storage.NewMinioStorage(
			cfg.StorageEndpoint,
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			cfg.StorageBucket,
			cfg.StorageRegion,
			cfg.StorageUseSSL,
		)
	case config.DriverS3:
		return storage.NewS3Storage(ctx, storage.S3Config{
			Endpoint:  cfg.StorageEndpoint,
			Region:    cfg.StorageRegion,
			Bucket:    cfg.StorageBucket,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			UseSSL:    cfg.StorageUseSSL,
		})
	case config.DriverMemory:
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
