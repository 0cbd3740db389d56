package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"axle-monitor/core/internal/config"
	"axle-monitor/core/internal/logging"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "axle-monitor",
		Short: "Axle temperature monitoring - ingestion, warnings and maintenance scheduling",
		Long: `Ingests axle-temperature telemetry from trackside devices, classifies
per-sensor warnings, summarizes passing trains and runs the per-device
maintenance schedule.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tickCmd())
	rootCmd.AddCommand(trainsCmd())
	rootCmd.AddCommand(warningsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads .env, the config and the logger shared by every command.
func setup() (*config.Config, *zap.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format, "axle-monitor")
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}
