package main

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	gemchat "github.com/strayblues/gemchat"
	"github.com/strayblues/gemchat/internal/chat"
	"github.com/strayblues/gemchat/internal/handlers"
	"github.com/strayblues/gemchat/internal/services"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment as-is")
	}

	cfgDir, err := os.UserConfigDir()
	if err != nil {
		logger.Error("Failed to resolve user config dir", slog.String("err", err.Error()))
		os.Exit(1)
	}
	cfgPath := filepath.Join(cfgDir, "gemchat")
	if err := os.MkdirAll(cfgPath, 0755); err != nil {
		logger.Error("Failed to create config directory", slog.String("err", err.Error()))
		os.Exit(1)
	}

	cfg, err := loadConfig(filepath.Join(cfgPath, "config.yaml"))
	if err != nil {
		logger.Error("Failed to load config", slog.String("err", err.Error()))
		os.Exit(1)
	}

	provider, err := cfg.LLM.provider(cfg.SystemPrompt)
	if err != nil {
		logger.Error("Failed to create provider", slog.String("err", err.Error()))
		os.Exit(1)
	}

	boltDB, err := services.NewBoltDB(filepath.Join(cfgPath, "store.db"))
	if err != nil {
		logger.Error("Failed to open store", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer boltDB.Close()

	conversation := chat.NewConversation(provider, boltDB, cfg.Greeting, logger)
	conversation.Restore(context.Background())

	m, err := handlers.NewMain(conversation, boltDB, logger)
	if err != nil {
		logger.Error("Failed to create handlers", slog.String("err", err.Error()))
		os.Exit(1)
	}

	// Serve static files
	staticFS, err := fs.Sub(gemchat.StaticFS, "static")
	if err != nil {
		logger.Error("Failed to mount static assets", slog.String("err", err.Error()))
		os.Exit(1)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/", m.HandleHome)
	mux.HandleFunc("/chats", m.HandleChats)
	mux.HandleFunc("/reset", m.HandleReset)
	mux.HandleFunc("/theme", m.HandleTheme)
	mux.HandleFunc("/sse", m.HandleSSE)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String("err", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting", slog.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Blocking select waiting for either interrupt or server error
	select {
	case err := <-serverErrors:
		logger.Error("Server error", slog.String("err", err.Error()))

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}
}
