package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	assistant "github.com/MegaGrindStone/ollama-assistant"
	"github.com/MegaGrindStone/ollama-assistant/internal/handlers"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assistant web interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port != "" {
				a.cfg.Port = port
			}
			return serve(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "port to listen on, overrides the config file")

	return cmd
}

func serve(ctx context.Context, a *app) error {
	logger := a.logger

	m, err := handlers.NewMain(a.ollama, handlers.Config{
		Model:          a.cfg.Model,
		SystemPrompt:   a.cfg.SystemPrompt,
		HighlightStyle: a.cfg.HighlightStyle,
	}, logger)
	if err != nil {
		return err
	}

	// Serve static files
	staticFS, err := fs.Sub(assistant.StaticFS, "static")
	if err != nil {
		return err
	}
	fileServer := http.FileServer(http.FS(staticFS))

	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/{$}", m.HandleHome)
	mux.HandleFunc("/sse", m.HandleSSE)
	mux.HandleFunc("/status", m.HandleStatus)
	mux.HandleFunc("/models", m.HandleModels)
	mux.HandleFunc("/explain", m.HandleExplain)
	mux.HandleFunc("/improve", m.HandleImprove)
	mux.HandleFunc("/analyze", m.HandleAnalyze)
	mux.HandleFunc("/chat", m.HandleChat)
	mux.HandleFunc("/chat/clear", m.HandleClearChat)
	mux.HandleFunc("GET /surfaces/{title}", m.HandleSurface)
	mux.HandleFunc("POST /surfaces/{title}", m.HandleShowSurface)
	mux.HandleFunc("POST /surfaces/{title}/close", m.HandleCloseSurface)

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String("err", err.Error()))
		}
	})

	go checkConnection(ctx, a)

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting",
			slog.String("addr", srv.Addr),
			slog.String("ollama", a.ollama.Host()),
			slog.String("model", a.cfg.Model))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				return fmt.Errorf("forcing server close: %w", err)
			}
		}
	}

	return nil
}

// checkConnection warns once at startup if Ollama cannot be reached. The server keeps running either way.
func checkConnection(ctx context.Context, a *app) {
	if a.ollama.CheckConnection(ctx) {
		return
	}
	a.logger.Warn(handlers.ConnectionHint,
		slog.String("ollama", a.ollama.Host()),
		slog.String("download", "https://ollama.ai"))
}
