package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"spreadup-monitor/internal/cache"
	"spreadup-monitor/internal/config"
	"spreadup-monitor/internal/connector"
	"spreadup-monitor/internal/connector/bingx"
	"spreadup-monitor/internal/connector/gateio"
	"spreadup-monitor/internal/connector/htx"
	"spreadup-monitor/internal/connector/mexc"
	"spreadup-monitor/internal/engine"
	"spreadup-monitor/internal/filter"
	"spreadup-monitor/internal/metrics"
	"spreadup-monitor/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	setupLogging(cfg)

	log.Info().
		Float64("threshold", cfg.SpreadThreshold).
		Dur("scan_interval", cfg.ScanInterval).
		Dur("cooldown", cfg.NotificationCooldown).
		Interface("exchanges", cfg.EnabledExchanges).
		Msg("Starting spread monitor")

	metricsServer := metrics.NewServer(cfg.MetricsAddr)
	go func() {
		if err := metricsServer.Start(); err != nil {
			log.Warn().Err(err).Msg("Metrics server stopped")
		}
	}()

	cacheOpts := []cache.Option{}
	if cfg.RedisURL != "" {
		mirror, err := cache.NewRedisMirror(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("Redis mirror setup failed")
		}
		cacheOpts = append(cacheOpts, cache.WithMirror(mirror))
		log.Info().Msg("Redis mirror enabled")
	}
	priceCache := cache.New(cfg.CacheTTL, cacheOpts...)

	filters := filter.NewStore()
	registry := notify.NewMemoryRegistry(filters)
	dispatcher := notify.NewDispatcher(registry, notify.LogCourier{})

	e := engine.New(priceCache, dispatcher, engine.Config{
		SpreadThreshold: cfg.SpreadThreshold,
		ScanInterval:    cfg.ScanInterval,
		Cooldown:        cfg.NotificationCooldown,
	})
	for _, id := range cfg.EnabledExchanges {
		e.Register(buildConnector(id, cfg))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := e.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Engine start failed")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info().Str("signal", s.String()).Msg("Shutting down")

	cancel()
	e.Stop()
	if err := metricsServer.Stop(); err != nil {
		log.Warn().Err(err).Msg("Metrics server close failed")
	}
	log.Info().Msg("Shutdown complete")
}

func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func buildConnector(id connector.ExchangeID, cfg config.Config) connector.Connector {
	ccfg := connector.Config{
		APIKey:    cfg.Credentials[id].APIKey,
		APISecret: cfg.Credentials[id].APISecret,
	}
	switch id {
	case connector.MEXC:
		return mexc.New(ccfg)
	case connector.GateIO:
		return gateio.New(ccfg)
	case connector.BingX:
		return bingx.New(ccfg)
	case connector.HTX:
		ccfg.PollInterval = cfg.HTXPollInterval
		return htx.New(ccfg)
	default:
		log.Fatal().Str("exchange", string(id)).Msg("No connector for exchange")
		return nil
	}
}
