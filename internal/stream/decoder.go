package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"unicode/utf8"
)

// FrameKind is the websocket message type of a raw frame.
type FrameKind int

const (
	FrameBinary FrameKind = iota
	FrameText
	FramePing
	FramePong
	FrameClose
)

func (k FrameKind) String() string {
	switch k {
	case FrameBinary:
		return "binary"
	case FrameText:
		return "text"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameClose:
		return "close"
	default:
		return "unknown"
	}
}

// Frame is one inbound websocket message.
type Frame struct {
	Kind    FrameKind
	Payload []byte
}

// Kind classifies a decoded frame.
type Kind int

const (
	KindData Kind = iota
	KindKeepaliveProbe
	KindKeepaliveAck
	KindStreamClosed
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindKeepaliveProbe:
		return "keepalive_probe"
	case KindKeepaliveAck:
		return "keepalive_ack"
	case KindStreamClosed:
		return "stream_closed"
	case KindOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// Parsed is the result of decoding a frame. Record is only meaningful when
// Kind is KindData.
type Parsed[T any] struct {
	Kind   Kind
	Record T
}

// Data wraps a decoded record.
func Data[T any](rec T) Parsed[T] {
	return Parsed[T]{Kind: KindData, Record: rec}
}

// Signal returns a non-data classification.
func Signal[T any](kind Kind) Parsed[T] {
	return Parsed[T]{Kind: kind}
}

// ControlMessage is an outbound text message, typically the subscription
// request.
type ControlMessage []byte

// Decoder turns raw frames of one stream type into records and builds the
// request that subscribes to that stream.
type Decoder[T any] interface {
	// SubscriptionRequest is called once per established connection, before
	// any frame is read.
	SubscriptionRequest(ctx context.Context) (ControlMessage, error)

	// Decode classifies a frame. It never fails; undecodable input is
	// reported as KindOpaque.
	Decode(frame Frame) Parsed[T]
}

// DecodeOptions customises DecodeFrame.
type DecodeOptions[T any] struct {
	Logger *slog.Logger

	// Unmarshal parses a binary payload. Defaults to json.Unmarshal into T.
	Unmarshal func(payload []byte) (T, error)

	// Render produces a printable form of a payload that failed to parse.
	// Defaults to accepting valid UTF-8 only.
	Render func(payload []byte) (string, bool)
}

// DecodeFrame implements the classification shared by all decoders: binary
// payloads are parsed into T, text frames are logged and ignored, and control
// frames map onto their keepalive and close kinds.
func DecodeFrame[T any](frame Frame, opts DecodeOptions[T]) Parsed[T] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch frame.Kind {
	case FrameBinary:
		unmarshal := opts.Unmarshal
		if unmarshal == nil {
			unmarshal = unmarshalJSON[T]
		}
		rec, err := unmarshal(frame.Payload)
		if err == nil {
			return Data(rec)
		}

		render := opts.Render
		if render == nil {
			render = renderUTF8
		}
		if text, ok := render(frame.Payload); ok {
			logger.Warn("undecodable binary frame",
				"error", err,
				"text", text,
			)
		}
		return Signal[T](KindOpaque)

	case FrameText:
		logger.Debug("ignoring text frame", "text", string(frame.Payload))
		return Signal[T](KindOpaque)

	case FramePing:
		return Signal[T](KindKeepaliveProbe)

	case FramePong:
		return Signal[T](KindKeepaliveAck)

	case FrameClose:
		return Signal[T](KindStreamClosed)

	default:
		return Signal[T](KindOpaque)
	}
}

func unmarshalJSON[T any](payload []byte) (T, error) {
	var rec T
	err := json.Unmarshal(payload, &rec)
	return rec, err
}

func renderUTF8(payload []byte) (string, bool) {
	if !utf8.Valid(payload) {
		return "", false
	}
	return string(payload), true
}
