package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/api"
	"github.com/good-yellow-bee/pawwatch/internal/api/health"
	"github.com/good-yellow-bee/pawwatch/internal/config"
	"github.com/good-yellow-bee/pawwatch/internal/engine"
	"github.com/good-yellow-bee/pawwatch/internal/logger"
	"github.com/good-yellow-bee/pawwatch/internal/notifier"
	"github.com/good-yellow-bee/pawwatch/internal/recipients"
	"github.com/good-yellow-bee/pawwatch/internal/storage"
)

// app holds everything serve runs.
type app struct {
	cfg        *config.Config
	store      storage.Storage
	dedup      alerting.DedupStore
	redis      *storage.RedisDedupStore
	thresholds *alerting.ThresholdSet
	dispatcher *notifier.Dispatcher
	engine     *engine.Engine
	api        *api.Server
}

type dbBacked interface {
	DB() *sql.DB
}

// openStorage opens and migrates the configured store.
func openStorage(cfg config.StorageConfig) (storage.Storage, error) {
	var store storage.Storage
	switch cfg.Driver {
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		store = storage.NewSQLiteStorage(cfg.Path)
	case config.DriverPostgres:
		store = storage.NewPostgresStorage(cfg.DSN, cfg.MaxConns)
	case config.DriverMemory:
		store = storage.NewMemoryStorage()
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}

	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Driver, err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate %s storage: %w", cfg.Driver, err)
	}
	return store, nil
}

// loadThresholds reads the thresholds file, or the built-in defaults when
// none is configured.
func loadThresholds(cfg config.ThresholdsConfig) (*alerting.ThresholdSet, error) {
	if cfg.File == "" {
		return alerting.NewThresholdSet(nil), nil
	}
	t, err := alerting.LoadThresholdsFromFile(cfg.File)
	if err != nil {
		return nil, err
	}
	set := alerting.NewThresholdSet(nil)
	if err := set.Replace(t); err != nil {
		return nil, fmt.Errorf("thresholds %s: %w", cfg.File, err)
	}
	return set, nil
}

// buildDispatcher creates the sinks. The store sink always runs, as a
// mirror when another sink is primary, so the dashboard inbox is complete.
func buildDispatcher(cfg *config.Config, store storage.Storage, log zerolog.Logger) (*notifier.Dispatcher, error) {
	sinks := map[string]notifier.Sink{
		config.SinkStore: notifier.NewStoreSink(store.Notifications()),
	}
	if cfg.Sinks.Webhook != nil {
		s, err := notifier.NewWebhookSink(*cfg.Sinks.Webhook)
		if err != nil {
			return nil, fmt.Errorf("webhook sink: %w", err)
		}
		sinks[config.SinkWebhook] = s
	}
	if cfg.Sinks.Kafka != nil {
		s, err := notifier.NewKafkaSink(*cfg.Sinks.Kafka)
		if err != nil {
			return nil, fmt.Errorf("kafka sink: %w", err)
		}
		sinks[config.SinkKafka] = s
	}

	primary, ok := sinks[cfg.Sinks.Primary]
	if !ok {
		return nil, fmt.Errorf("primary sink %q is not configured", cfg.Sinks.Primary)
	}
	d := notifier.NewDispatcher(primary, logger.WithComponent(log, "dispatcher"), notifier.WithRateLimit(cfg.Dispatch))
	for name, s := range sinks {
		if name != cfg.Sinks.Primary {
			d.Register(s)
		}
	}
	return d, nil
}

// newApp wires storage, rules, the engine and the API from cfg.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.store, err = openStorage(cfg.Storage); err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.Storage.Driver).Msg("storage ready")

	a.dedup = a.store.Dedup()
	if cfg.Dedup.Driver == config.DedupRedis {
		r := cfg.Dedup.Redis
		if a.redis, err = storage.NewRedisDedupStore(ctx, r.Addr, r.Password, r.DB, r.TTL); err != nil {
			return nil, err
		}
		a.dedup = a.redis
		log.Info().Str("addr", r.Addr).Msg("using redis cooldown store")
	}

	if a.thresholds, err = loadThresholds(cfg.Thresholds); err != nil {
		return nil, err
	}
	if a.dispatcher, err = buildDispatcher(cfg, a.store, log); err != nil {
		return nil, err
	}

	a.engine, err = engine.New(engine.Deps{
		Samples:      a.store.Samples(),
		Dedup:        a.dedup,
		Evaluator:    alerting.NewEvaluator(a.thresholds, cfg.Rules, logger.WithComponent(log, "rules")),
		Deduplicator: alerting.NewDeduplicator(cfg.Dedup.Cooldown, logger.WithComponent(log, "dedup")),
		Resolver:     recipients.NewTableResolver(a.store.Users()),
		Dispatcher:   a.dispatcher,
	}, logger.WithComponent(log, "engine"))
	if err != nil {
		return nil, err
	}

	a.api, err = api.New(&api.Config{
		Address:           cfg.Server.HTTPAddress,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		HookTimeout:       cfg.Server.HookTimeout,
		HookRatePerMinute: cfg.Server.HookRatePerMinute,
	}, a.store, a.engine, logger.WithComponent(log, "api"))
	if err != nil {
		return nil, err
	}
	if db, ok := a.store.(dbBacked); ok {
		a.api.RegisterHealthChecker(health.NewDBChecker(cfg.Storage.Driver, db.DB()))
	}
	if a.redis != nil {
		a.api.RegisterHealthChecker(health.NewPingChecker("redis", a.redis))
	}
	return a, nil
}

// prune deletes notifications older than the retention and cooldown markers
// that can no longer suppress anything.
func (a *app) prune(ctx context.Context, now time.Time) (notifications, markers int64, err error) {
	retention := a.cfg.Storage.Retention
	notifications, err = a.store.Notifications().DeleteBefore(ctx, now.Add(-retention))
	if err != nil {
		return 0, 0, fmt.Errorf("prune notifications: %w", err)
	}
	markerAge := max(retention, a.cfg.Dedup.Cooldown)
	markers, err = a.store.Dedup().DeleteBefore(ctx, now.Add(-markerAge))
	if err != nil {
		return notifications, 0, fmt.Errorf("prune cooldown markers: %w", err)
	}
	return notifications, markers, nil
}

// runPruner prunes once per interval until ctx is done. Failures are logged.
func (a *app) runPruner(ctx context.Context, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, m, err := a.prune(ctx, now)
			if err != nil {
				log.Warn().Err(err).Msg("retention prune failed")
				continue
			}
			log.Debug().Int64("notifications", n).Int64("cooldown_markers", m).Msg("retention prune")
		}
	}
}

// Close releases sinks, the redis client and storage.
func (a *app) Close() error {
	var errs []error
	if a.dispatcher != nil {
		errs = append(errs, a.dispatcher.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
