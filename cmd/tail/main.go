// tail subscribes to a relay's ZeroMQ publisher and prints every payload.
// Usage: go run ./cmd/tail -endpoint tcp://127.0.0.1:5557
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rickgao/ls-relay/internal/lsfeed"
	"github.com/rickgao/ls-relay/internal/publish"
)

func main() {
	endpoint := flag.String("endpoint", "tcp://127.0.0.1:5557", "publisher endpoint")
	mode := flag.String("mode", string(publish.ModeConnect), "connect to a bound publisher, or bind for a connecting one")
	topic := flag.String("topic", "", "subscription prefix; empty receives everything")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub, err := publish.Subscribe(ctx, publish.Mode(*mode), *endpoint, *topic)
	if err != nil {
		logger.Error("failed to subscribe", "error", err)
		os.Exit(1)
	}
	defer sub.Close()

	logger.Info("subscribed", "endpoint", *endpoint, "mode", *mode, "topic", *topic)

	var count int
	for {
		msg, err := sub.Recv(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("stopped", "received", count)
				return
			}
			logger.Error("receive failed", "error", err, "received", count)
			os.Exit(1)
		}
		count++

		if s, ok := lsfeed.Render(msg); ok {
			fmt.Println(s)
		} else {
			fmt.Printf("[binary %d bytes] %s\n", len(msg), hex.EncodeToString(msg))
		}
	}
}
