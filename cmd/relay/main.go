// relay subscribes to one LS Securities real-time feed and republishes every
// decoded record to local subscribers.
//
// Usage: go run ./cmd/relay -config configs/relay.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/ls-relay/internal/api"
	"github.com/rickgao/ls-relay/internal/auth"
	"github.com/rickgao/ls-relay/internal/bridge"
	"github.com/rickgao/ls-relay/internal/config"
	"github.com/rickgao/ls-relay/internal/lsfeed"
	"github.com/rickgao/ls-relay/internal/metrics"
	"github.com/rickgao/ls-relay/internal/publish"
	"github.com/rickgao/ls-relay/internal/stream"
	"github.com/rickgao/ls-relay/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/relay.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	if err := config.LoadEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "load env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	logger.Info("starting relay", append(version.LogAttrs(), "config", *configPath)...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("relay stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("relay stopped")
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

func run(ctx context.Context, cfg *config.RelayConfig, logger *slog.Logger) error {
	logger = logger.With("instance_id", cfg.Instance.ID)

	client := newAPIClient(cfg, logger)
	tokens := tokenProvider(cfg, client, logger)

	if cfg.Stream.VerifyInstrument {
		if err := verifyInstrument(ctx, cfg, client, tokens, logger); err != nil {
			return err
		}
	}

	bridgeCfg, err := cfg.BridgeSettings()
	if err != nil {
		return err
	}

	pub, err := publish.Open(ctx, publish.Mode(cfg.Publisher.Mode), cfg.Publisher.Endpoint, cfg.Publisher.Subject)
	if err != nil {
		return fmt.Errorf("open publisher: %w", err)
	}
	defer pub.Close()

	logger.Info("publisher ready",
		"mode", cfg.Publisher.Mode,
		"endpoint", cfg.Publisher.Endpoint,
		"subject", cfg.Publisher.Subject,
	)

	reg := metrics.New(cfg.Stream.TrCd)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.MetricsAddr(), cfg.Metrics.Path, reg, logger)
		})
	}

	feed := lsfeed.Feed{TrCd: cfg.Stream.TrCd, TrKey: cfg.Stream.TrKey}
	streamCfg := cfg.StreamSettings()

	logger.Info("relaying feed",
		"kind", cfg.Stream.Kind,
		"tr_cd", feed.TrCd,
		"tr_key", feed.TrKey,
		"ws_url", streamCfg.URL,
	)

	g.Go(func() error {
		switch lsfeed.StreamKind(cfg.Stream.Kind) {
		case lsfeed.KindExecution:
			dec := lsfeed.NewExecutionDecoder(feed, tokens, logger)
			return runBridge(gctx, streamCfg, bridgeCfg, dec, pub, reg, logger)
		default:
			dec := lsfeed.NewOrderbookDecoder(feed, tokens, logger)
			return runBridge(gctx, streamCfg, bridgeCfg, dec, pub, reg, logger)
		}
	})

	return g.Wait()
}

func runBridge[T any](
	ctx context.Context,
	streamCfg stream.Config,
	bridgeCfg bridge.Config,
	dec stream.Decoder[T],
	pub publish.Publisher,
	reg *metrics.Registry,
	logger *slog.Logger,
) error {
	sup := stream.NewSupervisor(streamCfg, dec,
		stream.WithLogger(logger),
		stream.WithObserver(reg.Stream),
	)
	b := bridge.New(bridgeCfg, sup, pub,
		bridge.WithLogger(logger),
		bridge.WithObserver(reg.Bridge),
	)
	return b.Run(ctx)
}

func newAPIClient(cfg *config.RelayConfig, logger *slog.Logger) *api.Client {
	opts := []api.ClientOption{
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.Retries(), config.DefaultRetryBackoff),
		api.WithRateLimit(cfg.API.RateLimit),
	}
	if creds, err := auth.LoadCredentials(cfg.API.AppKey, cfg.API.AppSecret); err == nil {
		opts = append(opts, api.WithCredentials(creds))
	}
	return api.NewClient(cfg.API.RestURL, opts...)
}

func tokenProvider(cfg *config.RelayConfig, client *api.Client, logger *slog.Logger) auth.TokenProvider {
	if cfg.API.Token != "" {
		logger.Info("using static access token")
		return auth.Static(cfg.API.Token)
	}
	return auth.NewCachedProvider(cfg.API.TokenCacheFile, client, logger)
}

// verifyInstrument checks the short code against both market master lists
// before subscribing.
func verifyInstrument(ctx context.Context, cfg *config.RelayConfig, client *api.Client, tokens auth.TokenProvider, logger *slog.Logger) error {
	shcode := cfg.Stream.ShortCode
	if shcode == "" && len(cfg.Stream.TrKey) > 1 {
		shcode = strings.TrimSpace(cfg.Stream.TrKey[1:])
	}
	if shcode == "" {
		logger.Warn("instrument verification skipped, no short code")
		return nil
	}

	token, err := tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("verify instrument: %w", err)
	}

	for _, market := range []api.Market{api.MarketKOSPI, api.MarketKOSDAQ} {
		items, err := client.StockList(ctx, token, api.StockListQuery{Market: market})
		if err != nil {
			return fmt.Errorf("verify instrument: %w", err)
		}
		if item, ok := items[shcode]; ok {
			logger.Info("instrument verified",
				"shcode", shcode,
				"name", item.Name,
				"market", market,
			)
			return nil
		}
	}
	return fmt.Errorf("verify instrument: %s is not listed", shcode)
}
