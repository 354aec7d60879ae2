package main

import (
	"fmt"
	"log/slog"

	"github.com/MegaGrindStone/ollama-assistant/internal/services"
	"github.com/spf13/cobra"
)

// app holds what every command needs once the configuration is loaded.
type app struct {
	cfg    config
	logger *slog.Logger
	ollama services.Ollama
}

type rootFlags struct {
	configPath string
	baseURL    string
	model      string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var (
		flags rootFlags
		a     app
	)

	cmd := &cobra.Command{
		Use:          "assist",
		Short:        "A coding assistant backed by a local Ollama server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := setupApp(cmd, flags)
			if err != nil {
				return err
			}
			a = loaded
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default <user config dir>/ollama-assistant/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.baseURL, "base-url", "", "Ollama base URL, overrides the config file")
	cmd.PersistentFlags().StringVarP(&flags.model, "model", "m", "", "model name, overrides the config file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(&a),
		newAskCmd(&a),
		newExplainCmd(&a),
		newChatCmd(&a),
		newModelsCmd(&a),
		newPingCmd(&a),
	)

	return cmd
}

func setupApp(cmd *cobra.Command, flags rootFlags) (app, error) {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return app{}, err
	}

	if flags.baseURL != "" {
		cfg.BaseURL = flags.baseURL
	}
	if flags.model != "" {
		cfg.Model = flags.model
	}
	if flags.logLevel != "" {
		if _, err := parseLogLevel(flags.logLevel); err != nil {
			return app{}, err
		}
		cfg.LogLevel = flags.logLevel
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	ollama, err := services.NewOllama(cfg.BaseURL, cfg.RequestTimeout, logger)
	if err != nil {
		return app{}, fmt.Errorf("error creating ollama client: %w", err)
	}

	return app{
		cfg:    cfg,
		logger: logger,
		ollama: ollama,
	}, nil
}
