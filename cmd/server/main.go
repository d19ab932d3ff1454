package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/brunobiangulo/vidhi"
)

func main() {
	configPath := flag.String("config", os.Getenv("VIDHI_CONFIG"), "Path to config file (YAML or JSON)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	// Structured JSON logging.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("loading .env", "error", err)
		os.Exit(1)
	}

	cfg, err := vidhi.LoadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	apiKey := os.Getenv("VIDHI_API_KEY")
	corsOrigins := os.Getenv("VIDHI_CORS_ORIGINS")

	engine, err := vidhi.New(cfg, vidhi.WithLogger(logger))
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:         *addr,
		Handler:      routes(newHandler(engine, logger), apiKey, corsOrigins),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // OCR of a long Act can take minutes
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr, "ocr_backend", cfg.OCR.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

// routes registers the endpoints behind the middleware chain:
// recovery -> cors -> auth -> logging -> mux.
func routes(h *handler, apiKey, corsOrigins string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /structure", h.handleStructure)
	mux.HandleFunc("POST /ingest", h.handleIngest)
	mux.HandleFunc("GET /acts", h.handleListActs)
	mux.HandleFunc("GET /acts/{id}", h.handleGetAct)
	mux.HandleFunc("DELETE /acts/{id}", h.handleDeleteAct)
	mux.HandleFunc("GET /acts/{id}/chunks", h.handleChunks)
	mux.HandleFunc("GET /acts/{id}/refs", h.handleRefs)
	mux.HandleFunc("GET /reports", h.handleReports)
	mux.HandleFunc("GET /search", h.handleSearch)
	mux.HandleFunc("GET /health", h.handleHealth)

	var handler http.Handler = mux
	handler = logMiddleware(h.logger, handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(h.logger, handler)
	return handler
}
