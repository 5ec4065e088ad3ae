// Command blossom runs the AI builder server and its offline tools.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"blossom/config"
	"blossom/internal/logging"
)

var (
	configDir string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "blossom",
	Short: "Blossom - prompt to multi-file web app builder",
	Long: `Blossom turns a natural-language prompt into a set of web source files,
shows them as a navigable tree with a typing replay, and renders them into a
sandboxed live preview.

Run "blossom serve" to start the HTTP API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "Directory holding config.yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(extractCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadEnvironment reads .env (when present) and the config, then builds the logger.
// Values from .env must be in the environment before viper reads it.
func loadEnvironment() (config.Config, error) {
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return config.Config{}, fmt.Errorf("cannot load config: %w", err)
	}
	logger, err = logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		return config.Config{}, err
	}

	switch {
	case envErr == nil:
		logger.Info("loaded environment variables from .env file")
	case os.IsNotExist(envErr):
		logger.Debug(".env file not found, relying on system environment variables")
	default:
		logger.Warn("error loading .env file", zap.Error(envErr))
	}
	return cfg, nil
}
