package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"

	"github.com/ytwatchtime/ytwatchtime/internal/catalog"
	"github.com/ytwatchtime/ytwatchtime/internal/database"
	"github.com/ytwatchtime/ytwatchtime/internal/resolve"
	"github.com/ytwatchtime/ytwatchtime/internal/server"
	"github.com/ytwatchtime/ytwatchtime/internal/store"
	"github.com/ytwatchtime/ytwatchtime/internal/watchtime"
)

func main() {
	envErr := loadEnvFiles()

	logger, closeLog, err := newLogger(os.Getenv("LOG_FILE"))
	if err != nil {
		log.Fatalf("log file: %v", err)
	}
	defer closeLog()
	slog.SetDefault(logger)

	if envErr != nil {
		logger.Warn("env files not loaded", "error", envErr)
	}

	port := getEnv("PORT", "8080")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	apiKey := os.Getenv("YOUTUBE_API_KEY")
	if apiKey == "" {
		log.Fatal("YOUTUBE_API_KEY is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, databaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(databaseURL); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}
	logger.Info("database migrations applied")

	catalogClient, err := catalog.New(context.Background(), catalog.Config{
		APIKey:    apiKey,
		Timeout:   time.Duration(getEnvInt64("CATALOG_TIMEOUT_SECONDS", 15)) * time.Second,
		CacheSize: int(getEnvInt64("CATALOG_CACHE_SIZE", 256)),
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("catalog client initialization failed: %v", err)
	}

	st := store.New(db.Pool)
	resolver := resolve.New(st, catalogClient, logger)

	tracker, err := watchtime.Start(watchtime.Config{
		Addr:           getEnv("WATCHTIME_ADDR", "127.0.0.1:0"),
		AllowedOrigins: getEnvList("WATCHTIME_ALLOWED_ORIGINS", []string{"*"}),
		Store:          st,
		Pinger:         db,
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("watch-time listener failed: %v", err)
	}
	logger.Info("watch-time listener ready", "port", tracker.Port())

	srv := server.New(server.Config{
		Resolver:      resolver,
		WatchTime:     st,
		Counter:       st,
		Pinger:        db,
		BaseURL:       getEnv("BASE_URL", "http://localhost:"+port),
		EnableDocs:    getEnv("API_DOCS_ENABLED", "false") == "true",
		ReportBaseURL: getEnv("WATCHTIME_PUBLIC_URL", fmt.Sprintf("http://127.0.0.1:%d", tracker.Port())),
		ResolveRate:   1,
		ResolveBurst:  5,
		Logger:        logger,
	})
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("watchtime api listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-shutdownCh
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", "error", err)
	}
	if err := tracker.Shutdown(shutdownCtx); err != nil {
		logger.Error("watch-time shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}

// loadEnvFiles reads .env.local then .env when present. Variables already
// set in the environment win.
func loadEnvFiles() error {
	var files []string
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err == nil {
			files = append(files, name)
		}
	}
	if len(files) == 0 {
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files %v: %w", files, err)
	}
	return nil
}

// newLogger writes text logs to stderr and, when path is set, appends them to
// that file as well.
func newLogger(path string) (*slog.Logger, func(), error) {
	var out io.Writer = os.Stderr
	closeFn := func() {}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(os.Stderr, f)
		closeFn = func() { _ = f.Close() }
	}
	return slog.New(slog.NewTextHandler(out, nil)), closeFn, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
