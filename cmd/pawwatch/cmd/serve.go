package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/logger"
	"github.com/good-yellow-bee/pawwatch/internal/metrics"
	buildinfo "github.com/good-yellow-bee/pawwatch/pkg/config"
)

const pruneInterval = time.Hour

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hook API and alert pipeline",
	Long: `Run the HTTP API that receives evaluation and weight hooks, runs the
alert pipeline and serves notification inboxes. Also serves Prometheus
metrics, hot-reloads the thresholds file and prunes old notifications when
configured to.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveAddr, "address", "a", "", "HTTP listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.HTTPAddress = serveAddr
	}

	log, closer, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer closer.Close()

	metrics.SetBuildInfo(buildinfo.Version, buildinfo.Commit, buildinfo.BuildTime)
	log.Info().Str("version", buildinfo.Version).Msg("starting pawwatch")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.api.Run(gctx)
	})

	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.Address, logger.WithComponent(log, "metrics"))
		g.Go(ms.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return ms.Shutdown(shutdownCtx)
		})
	}

	if cfg.Thresholds.Watch {
		g.Go(func() error {
			return alerting.WatchThresholds(gctx, cfg.Thresholds.File, a.thresholds, logger.WithComponent(log, "thresholds"))
		})
	}

	if cfg.Storage.Retention > 0 {
		g.Go(func() error {
			a.runPruner(gctx, pruneInterval, logger.WithComponent(log, "retention"))
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve: %w", err)
	}
	log.Info().Msg("pawwatch stopped")
	return nil
}
