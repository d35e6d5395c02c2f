package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/callwatch/internal/api"
	"github.com/good-yellow-bee/callwatch/internal/metrics"
	"github.com/good-yellow-bee/callwatch/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, HTTP API and metrics server",
	Long: `Run a processing pass immediately and then every scheduler.poll_interval,
serve the HTTP API and expose Prometheus metrics until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting callwatch", zap.String("version", config.Version))

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})

	if cfg.API.Enabled {
		srv, err := api.New(&api.Config{
			Address:            cfg.API.Address,
			APIKey:             cfg.API.APIKey,
			RateLimitPerMinute: cfg.API.RateLimitPerMinute,
			RateLimitBurst:     cfg.API.RateLimitBurst,
			Verbose:            verbose,
		}, api.Deps{
			Storage:   a.store,
			Validator: a.registry,
			Ingester:  a.ingestor,
			Processor: a.scheduler,
			Checkers:  a.checkers,
		}, logger.Named("api"))
		if err != nil {
			return err
		}
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.Address, logger.Named("metrics"))
		g.Go(func() error {
			return ms.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("callwatch stopped with error", zap.Error(err))
		return err
	}
	logger.Info("callwatch stopped")
	return nil
}
