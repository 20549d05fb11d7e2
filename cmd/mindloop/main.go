package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/user/mindloop/internal/chatapi"
	"github.com/user/mindloop/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "mindloop",
	Short: "Streaming chat client for the mindloop assistant backend",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath,
		"config", filepath.Join(os.Getenv("HOME"), ".mindloop", "config.json"), "config file path")
}

// loadConfig loads the config file or exits. Command RunE funcs call this
// first so flag parsing has already resolved --config.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func newClient(cfg *config.Config) *chatapi.Client {
	return chatapi.New(
		&chatapi.Config{BaseURL: cfg.BaseURL, Model: cfg.Model},
		chatapi.StaticToken(cfg.Token),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
