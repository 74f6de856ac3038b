// Command camstream runs the video ingestion and fan-out engine: it loads a
// static app-spec list, starts the coordinator and its HTTP surface, and
// waits for a shutdown signal. Grounded on cmd/hydra/main.go's
// cobra-root-command-plus-signal-handling bootstrap.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/evision-ai/evision-lib/internal/clock"
	"github.com/evision-ai/evision-lib/internal/config"
	"github.com/evision-ai/evision-lib/internal/coordinator"
	"github.com/evision-ai/evision-lib/internal/framebuffer"
	"github.com/evision-ai/evision-lib/internal/httpapi"
	"github.com/evision-ai/evision-lib/internal/model"
	"github.com/evision-ai/evision-lib/internal/registry"
)

var (
	logLevel    string
	appSpecPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "camstream",
		Short: "Multi-source video ingestion and fan-out engine",
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator and its HTTP API until signalled to stop",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&appSpecPath, "apps", "", "Path to a YAML app-spec list to load at startup")

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Parse and print an app-spec file without starting any workers",
		RunE:  runInspect,
	}
	inspectCmd.Flags().StringVar(&appSpecPath, "apps", "", "Path to a YAML app-spec list")
	_ = inspectCmd.MarkFlagRequired("apps")

	rootCmd.AddCommand(serveCmd, inspectCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func configureLogging() {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func runInspect(cmd *cobra.Command, args []string) error {
	configureLogging()

	file, err := config.LoadAppSpecFile(appSpecPath)
	if err != nil {
		return err
	}
	for _, entry := range file.Apps {
		log.Info().
			Str("name", entry.Name).
			Str("source_type", entry.SourceType).
			Str("handler", entry.HandlerName).
			Msg("app spec")
	}
	return nil
}

// noopCallback is installed for apps loaded from a static YAML file that
// don't specify a real processing callback; real deployments register their
// own callbacks before calling Coordinator.Add directly instead of going
// through the YAML loader.
func noopCallback(batch []model.ImageFrame) error {
	log.Debug().Int("batch_size", len(batch)).Msg("frames delivered")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	configureLogging()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	var bufferFactory registry.BufferFactory
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		bufferFactory = framebuffer.NewRedisBufferFactory(rdb)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis-backed frame buffers")
	}

	coord := coordinator.New(clock.Real, prometheus.DefaultRegisterer, bufferFactory)
	coord.Start(ctx)

	if appSpecPath != "" {
		file, err := config.LoadAppSpecFile(appSpecPath)
		if err != nil {
			return err
		}
		for _, entry := range file.Apps {
			spec, err := entry.ToModel()
			if err != nil {
				return err
			}
			spec.Callback = noopCallback
			if _, err := coord.Add(ctx, spec); err != nil {
				log.Error().Err(err).Str("name", entry.Name).Msg("failed to add app from spec file")
			}
		}
	}

	callbacks := func(name string) (func(batch []model.ImageFrame) error, bool) {
		if name == "" || name == "noop" {
			return noopCallback, true
		}
		return nil, false
	}

	server := httpapi.New(coord, callbacks)
	httpServer := &http.Server{Addr: cfg.HTTP.ListenAddr, Handler: server}

	go func() {
		log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("http api listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()
	_ = httpServer.Shutdown(context.Background())
	coord.Stop(context.Background())

	log.Info().Msg("camstream stopped")
	return nil
}
