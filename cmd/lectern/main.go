package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/app"
	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/server"
)

var (
	configFile   = flag.String("config", "", "Configuration file path")
	configFileC  = flag.String("c", "", "Configuration file path (shorthand)")
	serverPort   = flag.Int("port", 0, "Server port (overrides config)")
	serverPortP  = flag.Int("p", 0, "Server port (shorthand, overrides config)")
	serverHost   = flag.String("host", "", "Server host (overrides config)")
	remoteURL    = flag.String("remote", "", "Remote daemon URL (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Lectern version %s\n", common.GetVersion())
		os.Exit(0)
	}

	configPath := *configFile
	if *configFileC != "" {
		configPath = *configFileC
	}
	if configPath == "" {
		if _, err := os.Stat("lectern.toml"); err == nil {
			configPath = "lectern.toml"
		}
	}

	config, err := common.LoadFromFile(configPath)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
	}

	// CLI overrides take precedence over file and defaults
	if *serverPortP != 0 {
		config.Server.Port = *serverPortP
	}
	if *serverPort != 0 {
		config.Server.Port = *serverPort
	}
	if *serverHost != "" {
		config.Server.Host = *serverHost
	}
	if *remoteURL != "" {
		config.Server.RemoteURL = *remoteURL
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}

	if err := application.Start(ctx); err != nil {
		application.Close()
		logger.Fatal().Err(err).Msg("Failed to start application")
	}

	srv := server.New(application)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("Server error")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Server shutdown failed")
	}
	if err := application.Close(); err != nil {
		logger.Warn().Err(err).Msg("Application close failed")
	}
}
