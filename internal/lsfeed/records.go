package lsfeed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxDepth is the number of price levels per side in an orderbook frame.
const MaxDepth = 10

var (
	errNoBody     = errors.New("frame has no body")
	errTrMismatch = errors.New("frame tr_cd does not match subscription")
)

// Level is one price level of an orderbook side.
type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"qty"`
}

// Orderbook is a 10-level quote snapshot (UH1, H1_, HA_, NH1).
type Orderbook struct {
	TrCd        string          `json:"tr_cd"`
	TrKey       string          `json:"tr_key"`
	ShortCode   string          `json:"shcode"`
	Time        string          `json:"hotime"`
	Asks        []Level         `json:"asks"`
	Bids        []Level         `json:"bids"`
	TotalAskQty decimal.Decimal `json:"tot_ask_qty"`
	TotalBidQty decimal.Decimal `json:"tot_bid_qty"`
}

// BestAsk returns the lowest ask level.
func (o Orderbook) BestAsk() (Level, bool) {
	if len(o.Asks) == 0 {
		return Level{}, false
	}
	return o.Asks[0], true
}

// BestBid returns the highest bid level.
func (o Orderbook) BestBid() (Level, bool) {
	if len(o.Bids) == 0 {
		return Level{}, false
	}
	return o.Bids[0], true
}

// Execution is a single trade print (US3, S3_, K3_, NS3).
type Execution struct {
	TrCd       string          `json:"tr_cd"`
	TrKey      string          `json:"tr_key"`
	ShortCode  string          `json:"shcode"`
	Time       string          `json:"chetime"`
	Side       string          `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Change     decimal.Decimal `json:"change"`
	ChangeRate decimal.Decimal `json:"drate"`
	Quantity   decimal.Decimal `json:"cvolume"`
	Volume     decimal.Decimal `json:"volume"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
}

// envelope is the wire shape of every real-time frame.
type envelope struct {
	Header struct {
		TrCd  string `json:"tr_cd"`
		TrKey string `json:"tr_key"`
	} `json:"header"`
	Body map[string]json.RawMessage `json:"body"`
}

func parseEnvelope(payload []byte, trCd string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, err
	}
	if env.Header.TrCd != trCd {
		return env, fmt.Errorf("%w: got %q, want %q", errTrMismatch, env.Header.TrCd, trCd)
	}
	if len(env.Body) == 0 {
		return env, errNoBody
	}
	return env, nil
}

// fields reads body values. The feed sends numbers as strings, sometimes
// blank-padded or empty; blank values read as zero.
type fields struct {
	body map[string]json.RawMessage
	err  error
}

func (f *fields) str(key string) string {
	raw, ok := f.body[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return strings.TrimSpace(s)
}

func (f *fields) has(key string) bool {
	_, ok := f.body[key]
	return ok
}

func (f *fields) dec(key string) decimal.Decimal {
	s := f.str(key)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil && f.err == nil {
		f.err = fmt.Errorf("field %s: %w", key, err)
	}
	return d
}

func parseOrderbook(payload []byte, trCd string) (Orderbook, error) {
	env, err := parseEnvelope(payload, trCd)
	if err != nil {
		return Orderbook{}, err
	}

	f := &fields{body: env.Body}
	ob := Orderbook{
		TrCd:        env.Header.TrCd,
		TrKey:       env.Header.TrKey,
		ShortCode:   f.str("shcode"),
		Time:        f.str("hotime"),
		TotalAskQty: f.dec("totofferrem"),
		TotalBidQty: f.dec("totbidrem"),
	}

	for i := 1; i <= MaxDepth; i++ {
		n := strconv.Itoa(i)
		if f.has("offerho" + n) {
			ob.Asks = append(ob.Asks, Level{Price: f.dec("offerho" + n), Quantity: f.dec("offerrem" + n)})
		}
		if f.has("bidho" + n) {
			ob.Bids = append(ob.Bids, Level{Price: f.dec("bidho" + n), Quantity: f.dec("bidrem" + n)})
		}
	}

	if f.err != nil {
		return Orderbook{}, f.err
	}
	return ob, nil
}

func parseExecution(payload []byte, trCd string) (Execution, error) {
	env, err := parseEnvelope(payload, trCd)
	if err != nil {
		return Execution{}, err
	}

	f := &fields{body: env.Body}
	ex := Execution{
		TrCd:       env.Header.TrCd,
		TrKey:      env.Header.TrKey,
		ShortCode:  f.str("shcode"),
		Time:       f.str("chetime"),
		Side:       side(f.str("cgubun")),
		Price:      f.dec("price"),
		Change:     f.dec("change"),
		ChangeRate: f.dec("drate"),
		Quantity:   f.dec("cvolume"),
		Volume:     f.dec("volume"),
		Open:       f.dec("open"),
		High:       f.dec("high"),
		Low:        f.dec("low"),
	}

	if f.err != nil {
		return Execution{}, f.err
	}
	return ex, nil
}

// side maps cgubun ("+" buy-initiated, "-" sell-initiated).
func side(cgubun string) string {
	switch cgubun {
	case "+":
		return "buy"
	case "-":
		return "sell"
	default:
		return ""
	}
}
