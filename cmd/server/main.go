package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/parlorchat/parlor/internal/server"
)

var (
	flagAddr    string
	flagEnvFile string
)

var rootCmd = &cobra.Command{
	Use:   "parlor-server",
	Short: "Real-time group chat server",
	RunE:  runServer,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagAddr, "addr", "", "listen address (overrides ADDR)")
	flags.StringVar(&flagEnvFile, "env-file", ".env", "optional .env file to load before reading the environment")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(flagEnvFile); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("file", flagEnvFile).Msg("could not load env file")
	}

	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}
	if flagAddr != "" {
		cfg.Addr = flagAddr
	}

	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := server.NewHub(cfg)
	go hub.Run()

	httpServer := server.CreateServer(cfg.Addr, server.NewRouter(hub))

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down gracefully")
	case err := <-errCh:
		// Still unwind the hub so typing timers and pumps stop cleanly.
		_ = hub.Shutdown(cfg.ShutdownTimeout)
		return err
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Warn().Err(err).Msg("hub shutdown incomplete")
	}

	log.Info().Msg("server stopped cleanly")
	return nil
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}
