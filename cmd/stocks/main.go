// stocks prints the LS stock master list (t9945) for one market.
// Usage: go run ./cmd/stocks -config configs/relay.yaml -market 1 -etf 0
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rickgao/ls-relay/internal/api"
	"github.com/rickgao/ls-relay/internal/auth"
	"github.com/rickgao/ls-relay/internal/config"
)

func main() {
	configPath := flag.String("config", "configs/relay.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	market := flag.String("market", string(api.MarketKOSPI), "1 for KOSPI, 2 for KOSDAQ")
	etf := flag.String("etf", "", "etfchk filter: 1 for ETFs only, 0 to exclude them")
	etn := flag.String("etn", "all", "all, only or exclude")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if err := config.LoadEnv(*envPath); err != nil {
		logger.Error("failed to load env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var etnFilter api.ETNFilter
	switch *etn {
	case "all":
		etnFilter = api.ETNAll
	case "only":
		etnFilter = api.ETNOnly
	case "exclude":
		etnFilter = api.ETNExclude
	default:
		logger.Error("unknown -etn value", "etn", *etn)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []api.ClientOption{
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRateLimit(cfg.API.RateLimit),
	}
	if creds, err := auth.LoadCredentials(cfg.API.AppKey, cfg.API.AppSecret); err == nil {
		opts = append(opts, api.WithCredentials(creds))
	}
	client := api.NewClient(cfg.API.RestURL, opts...)

	var tokens auth.TokenProvider = auth.Static(cfg.API.Token)
	if cfg.API.Token == "" {
		tokens = auth.NewCachedProvider(cfg.API.TokenCacheFile, client, logger)
	}
	token, err := tokens.Token(ctx)
	if err != nil {
		logger.Error("failed to get access token", "error", err)
		os.Exit(1)
	}

	items, err := client.StockList(ctx, token, api.StockListQuery{
		Market: api.Market(*market),
		ETF:    *etf,
		ETN:    etnFilter,
	})
	if err != nil {
		logger.Error("failed to fetch stock list", "error", err)
		os.Exit(1)
	}

	codes := make([]string, 0, len(items))
	for code := range items {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		item := items[code]
		fmt.Printf("%s\t%s\tetf=%s\tnxt=%s\n", item.ShortCode, item.Name, item.ETF, item.NXT)
	}
	logger.Info("stock list", "market", *market, "count", len(codes))
}
