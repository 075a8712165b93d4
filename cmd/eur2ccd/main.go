// Command eur2ccd runs the EUR/CCD rate oracle daemon: it polls
// several external price sources, derives a single authoritative rate
// via a double-median policy, and submits signed chain-update
// transactions to a Concordium node at a configured cadence.
//
// Wiring, metrics/health HTTP servers, signal handling, and graceful
// shutdown are grounded on the teacher's cmd/indexer/main.go near
// directly.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/concordium/eur2ccd-service/internal/audit"
	"github.com/concordium/eur2ccd-service/internal/concordium"
	"github.com/concordium/eur2ccd-service/internal/config"
	"github.com/concordium/eur2ccd-service/internal/events"
	"github.com/concordium/eur2ccd-service/internal/governor"
	"github.com/concordium/eur2ccd-service/internal/history"
	"github.com/concordium/eur2ccd-service/internal/keysource"
	"github.com/concordium/eur2ccd-service/internal/signing"
	"github.com/concordium/eur2ccd-service/internal/source"
	"github.com/concordium/eur2ccd-service/internal/submitter"
	"github.com/concordium/eur2ccd-service/internal/util"
)

const serviceName = "eur2ccd-service"

func main() {
	logger := util.InitLogger(serviceName)
	logger.Info().Msg("starting eur2ccd-service")

	ko := util.InitConfig(logger, "config.toml")
	util.UpdateLogLevel(ko, logger)

	cfg, err := config.Load(ko)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	keyProvider, err := resolveKeyProvider(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve governance key source")
	}
	keyStore, err := signing.NewKeyStore(keyProvider)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load governance keys")
	}
	logger.Info().Int("keys_loaded", keyStore.Len()).Msg("governance keys loaded")

	sources := buildSources(cfg)
	if len(sources) == 0 {
		logger.Fatal().Msg("no sources constructed from configuration")
	}

	histories := make(map[string]*history.SourceHistory, len(sources))
	for _, src := range sources {
		histories[src.Name()] = history.New(src.Name(), cfg.MaxRatesSaved)
	}

	chainClient := concordium.New(cfg.Nodes, cfg.RPCToken, *logger)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	_, _, bootNode, err := chainClient.FetchTickState(bootCtx)
	bootCancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("no reachable node at startup")
	}
	logger.Info().Str("node", bootNode).Msg("initial node reachability check passed")

	g := governor.New(governor.ThresholdsFromConfig(cfg), config.LockFilePath, cfg.DryRun)
	if g.DryRun() {
		logger.Warn().Msg("starting in dry-run mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var auditHook *audit.Hook
	if cfg.DatabaseURL != "" {
		auditHook, err = audit.NewMySQLHook(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize audit database")
		}
		defer auditHook.Close()
		logger.Info().Msg("audit database connected")
	}

	var eventsPublisher *events.Publisher
	if cfg.EventsURL != "" {
		eventsPublisher, err = events.NewPublisher(ctx, cfg.EventsURL, 30*24*time.Hour, *logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize events publisher")
		}
		defer eventsPublisher.Close()
		logger.Info().Msg("events publisher connected")
	}

	sub := submitter.New(submitter.Config{
		Histories:      histories,
		Chain:          chainClient,
		Governor:       g,
		Keys:           keyStore,
		Audit:          auditHook,
		Events:         eventsPublisher,
		UpdateInterval: cfg.UpdateInterval,
		Logger:         *logger,
	})

	for _, src := range sources {
		poller := source.NewPoller(src, histories[src.Name()], cfg.PullInterval, pollTimeout(cfg.PullInterval), *logger)
		go poller.Run(ctx)
	}
	go sub.Run(ctx)

	metricsAddr := fmt.Sprintf(":%d", cfg.PrometheusPort)
	metricsServer := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler()}
	go func() {
		logger.Info().Str("address", metricsAddr).Msg("starting metrics server")
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	healthServer := &http.Server{Addr: ":8113", Handler: http.HandlerFunc(healthCheckHandler(g, eventsPublisher))}
	go func() {
		logger.Info().Str("address", healthServer.Addr).Msg("starting health check server")
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("health check server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("health server shutdown error")
	}

	logger.Info().Msg("shutdown complete")
}

// pollTimeout bounds each individual source fetch. Per spec.md §4.1
// this should be at most pullInterval/2.
func pollTimeout(pullInterval time.Duration) time.Duration {
	return pullInterval / 2
}

// resolveKeyProvider picks the governance key source. Cloud
// secret-manager retrieval is an external collaborator per spec.md
// §1's Out-of-scope list, so only local-keys is implemented here;
// configuring secret-names alone without local-keys is a startup
// error describing that limitation, not a silent fallback.
func resolveKeyProvider(cfg *config.Config) (keysource.GovernanceKeyProvider, error) {
	if len(cfg.LocalKeys) > 0 {
		return keysource.NewLocalFile(cfg.LocalKeys), nil
	}
	return nil, fmt.Errorf("cloud secret-manager retrieval (secret-names=%v) is not built into this binary; configure local-keys instead", cfg.SecretNames)
}

// buildSources constructs the enabled price sources from configuration.
func buildSources(cfg *config.Config) []source.Source {
	var out []source.Source
	if cfg.EnableCoinGecko {
		out = append(out, source.NewCoinGecko())
	}
	if cfg.EnableBitfinex {
		out = append(out, source.NewBitfinex())
	}
	if cfg.EnableLiveCoinWatch {
		out = append(out, source.NewLiveCoinWatch(cfg.LiveCoinWatchAPIKey))
	}
	if cfg.EnableCoinMarketCap {
		out = append(out, source.NewCoinMarketCap(cfg.CoinMarketCapAPIKey))
	}
	for _, url := range cfg.TestSource {
		out = append(out, source.NewTestSource(url))
	}
	return out
}

// healthCheckHandler reports whether the service is in forced dry-run
// (a Halt has fired) — still "running", but operators should know —
// and, if an events publisher is configured, whether its NATS
// connection is currently up.
func healthCheckHandler(g *governor.Governor, eventsPublisher *events.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "healthy\ndry_run: %v\n", g.DryRun())
		if eventsPublisher != nil {
			fmt.Fprintf(w, "events_connected: %v\n", eventsPublisher.Healthy())
		}
	}
}
