// Command live_broker runs the broker core against a venue adapter, with a
// heartbeat loop driving time injection and self-healing, Prometheus
// metrics, a health endpoint, and alert channels.
//
// Until a real venue driver is configured it runs against the in-memory
// mock venue, which is enough to exercise the full intent surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"live_broker/internal/alert"
	"live_broker/internal/broker"
	"live_broker/internal/config"
	"live_broker/internal/core"
	"live_broker/internal/infrastructure/health"
	"live_broker/internal/infrastructure/metrics"
	"live_broker/internal/logging"
	"live_broker/internal/mock"
	"live_broker/pkg/concurrency"
	"live_broker/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "live_broker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	tel, err := telemetry.Setup("live_broker")
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Warn("Telemetry shutdown", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	alertPool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "alerts",
		MaxWorkers:  2,
		MaxCapacity: 32,
		NonBlocking: true,
	}, logger)
	defer alertPool.Stop()

	hookPool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "broker_hooks",
		MaxWorkers:  2,
		MaxCapacity: 16,
	}, logger)
	defer hookPool.Stop()

	alerts := alert.NewManager(alertPool, logger)
	if cfg.Alerts.TelegramBotToken != "" && cfg.Alerts.TelegramChatID != "" {
		alerts.AddChannel(alert.NewTelegramChannel(cfg.Alerts.TelegramBotToken, cfg.Alerts.TelegramChatID))
	}
	if cfg.Alerts.SlackWebhookURL != "" {
		alerts.AddChannel(alert.NewSlackChannel(cfg.Alerts.SlackWebhookURL))
	}

	adapter := buildAdapter(cfg, logger)

	brokerMetrics := telemetry.GetBrokerMetrics()
	if err := brokerMetrics.InitMetrics(telemetry.GetMeter("live_broker")); err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	b := broker.New(adapter, cfg.Broker,
		decimal.NewFromFloat(cfg.App.CommissionRate),
		decimal.NewFromFloat(cfg.App.SlippageRate),
		logger)
	b.SetAlarm(alerts)
	b.SetHookPool(hookPool)
	b.SetMetrics(brokerMetrics)

	healthz := health.NewManager(logger)
	healthz.Register("cash_feed", func() error {
		if !b.PreStrategyCheck() {
			return errors.New("cash input degraded")
		}
		return nil
	})
	healthz.Register("order_state", func() error {
		if b.InUncertainMode() {
			return errors.New("uncertain mode active")
		}
		return nil
	})

	var metricsSrv *metrics.Server
	if cfg.Telemetry.EnableMetrics {
		metricsSrv = metrics.NewServer(cfg.Telemetry.MetricsPort, logger, healthz)
		metricsSrv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsSrv.Stop(shutdownCtx); err != nil {
				logger.Warn("Metrics server shutdown", "error", err)
			}
		}()
	}

	logger.Info("Live broker started",
		"venue", cfg.App.Venue, "symbol", cfg.App.Symbol,
		"lot_size", cfg.Broker.LotSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return heartbeat(gctx, b, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Live broker stopped")
	return nil
}

// heartbeat drives time injection on a fixed cadence. SetDatetime performs
// day-rollover detection and runs a self-heal pass internally, so this loop
// is the only scheduler the core needs.
func heartbeat(ctx context.Context, b *broker.Broker, logger core.ILogger) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			b.SetDatetime(ctx, now)
			if b.HasRuntimeBacklog() {
				logger.Debug("Heartbeat", "backlog", true, "virtual_spent", b.VirtualSpent())
			}
		}
	}
}

// buildAdapter selects the venue driver. Only the mock venue ships in-tree;
// real drivers register here as they are written.
func buildAdapter(cfg *config.Config, logger core.ILogger) core.IAdapter {
	switch cfg.App.Venue {
	case "", "mock":
		m := mock.NewAdapter()
		m.SetCash(decimal.NewFromInt(1_000_000))
		if cfg.App.Symbol != "" {
			m.SetPrice(cfg.App.Symbol, decimal.NewFromInt(10))
		}
		return m
	default:
		logger.Warn("Unknown venue, falling back to mock", "venue", cfg.App.Venue)
		return mock.NewAdapter()
	}
}
