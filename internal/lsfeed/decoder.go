package lsfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"

	"github.com/rickgao/ls-relay/internal/auth"
	"github.com/rickgao/ls-relay/internal/stream"
)

// ErrNoTrKey is returned when a subscription has no TR key.
var ErrNoTrKey = errors.New("tr_key is required")

// Subscription is the request that registers or unregisters a real-time feed.
type Subscription struct {
	Header SubscriptionHeader `json:"header"`
	Body   SubscriptionBody   `json:"body"`
}

type SubscriptionHeader struct {
	Token  string `json:"token"`
	TrType string `json:"tr_type"`
}

type SubscriptionBody struct {
	TrCd  string `json:"tr_cd"`
	TrKey string `json:"tr_key"`
}

// NewSubscription builds a registration request.
func NewSubscription(token, trCd, trKey string) Subscription {
	return Subscription{
		Header: SubscriptionHeader{Token: token, TrType: TrTypeRegister},
		Body:   SubscriptionBody{TrCd: trCd, TrKey: trKey},
	}
}

// Feed identifies one real-time stream.
type Feed struct {
	TrCd  string
	TrKey string
}

// subscriber is shared by the concrete decoders.
type subscriber struct {
	feed   Feed
	tokens auth.TokenProvider
	logger *slog.Logger
}

func newSubscriber(feed Feed, tokens auth.TokenProvider, logger *slog.Logger) subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return subscriber{
		feed:   feed,
		tokens: tokens,
		logger: logger.With("tr_cd", feed.TrCd, "tr_key", feed.TrKey),
	}
}

// SubscriptionRequest fetches a token and encodes the registration request.
func (s subscriber) SubscriptionRequest(ctx context.Context) (stream.ControlMessage, error) {
	if s.feed.TrKey == "" {
		return nil, ErrNoTrKey
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	msg, err := json.Marshal(NewSubscription(token, s.feed.TrCd, s.feed.TrKey))
	if err != nil {
		return nil, fmt.Errorf("encode subscription: %w", err)
	}
	return msg, nil
}

// OrderbookDecoder decodes orderbook frames.
type OrderbookDecoder struct {
	subscriber
}

// NewOrderbookDecoder creates a decoder for an orderbook feed. An empty TrCd
// selects the unified orderbook.
func NewOrderbookDecoder(feed Feed, tokens auth.TokenProvider, logger *slog.Logger) *OrderbookDecoder {
	if feed.TrCd == "" {
		feed.TrCd = TrUnifiedOrderbook
	}
	return &OrderbookDecoder{subscriber: newSubscriber(feed, tokens, logger)}
}

// Decode classifies a frame.
func (d *OrderbookDecoder) Decode(frame stream.Frame) stream.Parsed[Orderbook] {
	return stream.DecodeFrame(frame, stream.DecodeOptions[Orderbook]{
		Logger: d.logger,
		Unmarshal: func(p []byte) (Orderbook, error) {
			return parseOrderbook(p, d.feed.TrCd)
		},
		Render: Render,
	})
}

// ExecutionDecoder decodes trade prints.
type ExecutionDecoder struct {
	subscriber
}

// NewExecutionDecoder creates a decoder for an execution feed. An empty TrCd
// selects the unified execution feed.
func NewExecutionDecoder(feed Feed, tokens auth.TokenProvider, logger *slog.Logger) *ExecutionDecoder {
	if feed.TrCd == "" {
		feed.TrCd = TrUnifiedExecution
	}
	return &ExecutionDecoder{subscriber: newSubscriber(feed, tokens, logger)}
}

// Decode classifies a frame.
func (d *ExecutionDecoder) Decode(frame stream.Frame) stream.Parsed[Execution] {
	return stream.DecodeFrame(frame, stream.DecodeOptions[Execution]{
		Logger: d.logger,
		Unmarshal: func(p []byte) (Execution, error) {
			return parseExecution(p, d.feed.TrCd)
		},
		Render: Render,
	})
}

// Render returns a printable form of a payload for diagnostics. Payloads
// that are neither UTF-8 nor EUC-KR are reported as unprintable.
func Render(payload []byte) (string, bool) {
	if utf8.Valid(payload) {
		return string(payload), true
	}

	out, err := korean.EUCKR.NewDecoder().Bytes(payload)
	if err != nil || bytes.ContainsRune(out, utf8.RuneError) {
		return "", false
	}
	return string(out), true
}
