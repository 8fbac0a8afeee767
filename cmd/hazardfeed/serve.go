package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/cuemby/hazardfeed/pkg/api"
	"github.com/cuemby/hazardfeed/pkg/auth"
	"github.com/cuemby/hazardfeed/pkg/config"
	"github.com/cuemby/hazardfeed/pkg/content"
	"github.com/cuemby/hazardfeed/pkg/events"
	"github.com/cuemby/hazardfeed/pkg/ingest"
	"github.com/cuemby/hazardfeed/pkg/log"
	"github.com/cuemby/hazardfeed/pkg/metrics"
	"github.com/cuemby/hazardfeed/pkg/mirror"
	"github.com/cuemby/hazardfeed/pkg/scraper"
	"github.com/cuemby/hazardfeed/pkg/storage"
	"github.com/cuemby/hazardfeed/pkg/zones"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hazardfeed server",
	Long: `Run the HTTP API, the live event stream and the hazard zone refresher.

Settings come from built-in defaults, then the optional --config YAML file,
then environment variables (JWT_SECRET, HTTP_ADDR, DATA_DIR, ZONE_SOURCE,
KAFKA_BROKERS, ...). JWT_SECRET is required.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "YAML configuration file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.LogLevel),
		JSONOutput: cfg.LogFormat == "json",
		Output:     os.Stderr,
	})
	metrics.SetVersion(Version)
	logger := log.WithComponent("serve")

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()
	metrics.RegisterComponent(metrics.ComponentStorage, true, "")

	broker := events.NewBroker(events.Config{
		BufferSize: cfg.Events.BufferSize,
		Overflow:   events.OverflowPolicy(cfg.Events.Overflow),
	})
	metrics.RegisterComponent(metrics.ComponentEvents, true, "")

	media, err := content.NewLocalStore(cfg.MediaDir, cfg.PublicURL)
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, clock)

	source, err := zoneSource(cfg)
	if err != nil {
		return err
	}
	refresher := zones.NewRefresher(source, store, broker,
		zones.WithClock(clock),
		zones.WithFetchTimeout(cfg.Zones.FetchTimeout),
		zones.WithClassifier(zones.NewClassifier(zones.DefaultRegions, cfg.Zones.DefaultRadiusM)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector(store, 30*time.Second)
	collector.Start()
	defer collector.Stop()

	go refresher.Run(ctx, cfg.Zones.RefreshInterval)

	if len(cfg.Kafka.Brokers) > 0 {
		m := mirror.NewKafkaMirror(broker, mirror.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		defer m.Close()
		go func() {
			if err := m.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("event mirror stopped")
			}
		}()
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("mirroring events to Kafka")
	}

	srv := api.NewServer(api.Deps{
		Store:     store,
		Content:   media,
		Ingest:    ingest.NewService(store, media, tokens, broker, ingest.WithClock(clock)),
		Refresher: refresher,
		Accounts:  auth.NewService(store, tokens, clock),
		Verifier:  tokens,
		Broker:    broker,
		Bulletins: bulletinSource(cfg, source),
	}, api.Options{
		CORSOrigin:     cfg.CORSOrigin,
		MediaDir:       media.Dir(),
		MaxUploadBytes: cfg.MaxUploadBytes,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		TrustedProxies: cfg.TrustedProxies,
		BulletinTTL:    cfg.Zones.BulletinTTL,
	})
	go srv.RunLimiterCleanup(ctx, 10*time.Minute)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.HTTPAddr)
	}()

	logger.Info().
		Str("addr", cfg.HTTPAddr).
		Str("data_dir", cfg.DataDir).
		Str("zone_source", cfg.Zones.Source).
		Msg("hazardfeed started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case runErr = <-errCh:
		if runErr != nil {
			runErr = fmt.Errorf("API server error: %w", runErr)
		}
	}
	stop()

	// Live streams only end once the broker closes their subscriptions.
	broker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}

	logger.Info().Msg("shutdown complete")
	return runErr
}

// zoneSource selects the hazard source named in the configuration
func zoneSource(cfg *config.Config) (zones.Source, error) {
	switch cfg.Zones.Source {
	case config.SourceStatic:
		return zones.StaticSource{}, nil
	case config.SourceFeed:
		return zones.NewFeedSource(cfg.Zones.FeedURL, cfg.Zones.FetchTimeout), nil
	case config.SourceHWA:
		return scraper.NewHWASource(cfg.Zones.HWAURL, cfg.Zones.FetchTimeout), nil
	default:
		return nil, fmt.Errorf("unknown zone source %q", cfg.Zones.Source)
	}
}

// bulletinSource returns the scraper behind GET /api/hwa. It shares the zone
// source when that already scrapes the bulletin.
func bulletinSource(cfg *config.Config, zoneSrc zones.Source) zones.Source {
	if cfg.Zones.Source == config.SourceHWA {
		return zoneSrc
	}
	return scraper.NewHWASource(cfg.Zones.HWAURL, cfg.Zones.FetchTimeout)
}
