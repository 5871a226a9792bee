// Package lsfeed decodes LS Securities real-time websocket feeds.
//
// Each stream type (orderbook, execution) has its own record type and
// decoder. Decoders implement stream.Decoder and build the subscription
// request from a token provider, a TR code and a TR key.
package lsfeed

import "strings"

// Websocket endpoints.
const (
	ProdURL = "wss://openapi.ls-sec.co.kr:9443/websocket"
	DemoURL = "wss://openapi.ls-sec.co.kr:29443/websocket"
)

// TR types carried in the subscription header.
const (
	TrTypeAccountRegister   = "1"
	TrTypeAccountUnregister = "2"
	TrTypeRegister          = "3"
	TrTypeUnregister        = "4"
)

// StreamKind is the record family a TR code produces.
type StreamKind string

const (
	KindOrderbook StreamKind = "orderbook"
	KindExecution StreamKind = "execution"
)

// Real-time TR codes.
const (
	// Orderbook (호가잔량)
	TrUnifiedOrderbook = "UH1"
	TrKospiOrderbook   = "H1_"
	TrKosdaqOrderbook  = "HA_"
	TrNxtOrderbook     = "NH1"

	// Execution (체결)
	TrUnifiedExecution = "US3"
	TrKospiExecution   = "S3_"
	TrKosdaqExecution  = "K3_"
	TrNxtExecution     = "NS3"
)

var trKinds = map[string]StreamKind{
	TrUnifiedOrderbook: KindOrderbook,
	TrKospiOrderbook:   KindOrderbook,
	TrKosdaqOrderbook:  KindOrderbook,
	TrNxtOrderbook:     KindOrderbook,
	TrUnifiedExecution: KindExecution,
	TrKospiExecution:   KindExecution,
	TrKosdaqExecution:  KindExecution,
	TrNxtExecution:     KindExecution,
}

// KindOf returns the record family for a TR code.
func KindOf(trCd string) (StreamKind, bool) {
	k, ok := trKinds[trCd]
	return k, ok
}

// TrKey pads a short code to the 10-byte key the feed expects. Unified and
// NXT codes take a market prefix ("U" or "N") before the short code.
func TrKey(trCd, shcode string) string {
	key := shcode
	switch trCd {
	case TrUnifiedOrderbook, TrUnifiedExecution:
		key = "U" + shcode
	case TrNxtOrderbook, TrNxtExecution:
		key = "N" + shcode
	}
	if len(key) < 10 {
		key += strings.Repeat(" ", 10-len(key))
	}
	return key
}
