package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lukasbauer/aria/internal/app"
)

const (
	drainTimeout = 30 * time.Second
	cancelGrace  = 5 * time.Second
)

func main() {
	root := &cobra.Command{
		Use:          "aria",
		Short:        "Voice assistant server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			// The default .env is optional; an explicit one must exist.
			return app.LoadEnvFile(envFile, cmd.Flags().Changed("env-file"))
		},
		RunE: runServer,
	}
	root.PersistentFlags().String("env-file", ".env", "File with KEY=VALUE pairs loaded before reading the environment")
	root.Flags().String("addr", "", "Listen address (overrides HTTP_ADDR)")
	root.Flags().String("config", "", "YAML file with persona settings, sites and spoken texts")
	root.Flags().String("log-level", "", "Log level (overrides LOG_LEVEL)")
	root.AddCommand(newTokenCommand())

	cobra.CheckErr(root.Execute())
}

func newLogger(level string) zerolog.Logger {
	var logger zerolog.Logger
	if isatty.IsTerminal(os.Stdout.Fd()) {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = zerolog.New(os.Stdout)
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg := app.LoadConfigFromEnv()
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	logger := newLogger(cfg.LogLevel)

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return err
		}
		logger.Info().Str("path", path).Msg("config file applied")
	}

	// Initialize Sentry for error monitoring
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("sentry init failed")
		} else {
			logger.Info().Msg("sentry initialized")
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		if cfg.SentryDSN != "" {
			sentry.CaptureException(err)
			sentry.Flush(2 * time.Second)
		}
		return errors.Wrap(err, "init app")
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return errors.Wrap(err, "listen")
		}
		return nil
	case <-ctx.Done():
	}

	// Refuse new sessions, then give the live ones time to finish their turn.
	sessions := a.Sessions()
	sessions.StartDraining()
	logger.Info().Int("active_sessions", sessions.ActiveCount()).Msg("draining")

	drained := make(chan struct{})
	go func() {
		sessions.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		logger.Info().Msg("all sessions finished")
	case <-time.After(drainTimeout):
		logger.Warn().Int("active_sessions", sessions.ActiveCount()).Msg("drain timeout, closing remaining sessions")
		sessions.CancelAll()
		select {
		case <-drained:
			logger.Info().Msg("remaining sessions closed")
		case <-time.After(cancelGrace):
			logger.Warn().Int("active_sessions", sessions.ActiveCount()).Msg("sessions still open after cancel")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
