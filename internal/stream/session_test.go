package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type quote struct {
	Symbol string `json:"symbol"`
	Price  int    `json:"price"`
}

const subscribeMsg = `{"subscribe":"quotes"}`

// quoteDecoder is a minimal decoder built on DecodeFrame.
type quoteDecoder struct {
	subscribeErr error
}

func (d *quoteDecoder) SubscriptionRequest(ctx context.Context) (ControlMessage, error) {
	if d.subscribeErr != nil {
		return nil, d.subscribeErr
	}
	return ControlMessage(subscribeMsg), nil
}

func (d *quoteDecoder) Decode(frame Frame) Parsed[quote] {
	return DecodeFrame(frame, DecodeOptions[quote]{})
}

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// readSubscription consumes the subscription request the client sends first.
func readSubscription(t *testing.T, conn *websocket.Conn) bool {
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return false
	}
	if msgType != websocket.TextMessage || string(data) != subscribeMsg {
		t.Errorf("subscription = %d %q, want text %q", msgType, data, subscribeMsg)
	}
	return true
}

// closeNormally sends a close frame and drains until the client answers.
func closeNormally(conn *websocket.Conn) {
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func testConfig(url string) Config {
	return Config{
		URL:                  url,
		MaxReconnectAttempts: 1,
		WriteTimeout:         time.Second,
		HandshakeTimeout:     time.Second,
	}
}

func TestSession_DataMalformedPingClose(t *testing.T) {
	var pongs atomic.Int32
	serverDone := make(chan struct{})

	server := mockWSServer(t, func(conn *websocket.Conn) {
		defer close(serverDone)
		conn.SetPongHandler(func(string) error {
			pongs.Add(1)
			return nil
		})

		if !readSubscription(t, conn) {
			return
		}
		conn.WriteMessage(websocket.BinaryMessage, []byte(`{"symbol":"005930","price":71000}`))
		conn.WriteMessage(websocket.BinaryMessage, []byte{0xff, 0xfe, 0x00, 0x01})
		conn.WriteControl(websocket.PingMessage, []byte("hb"), time.Now().Add(time.Second))
		closeNormally(conn)
	})
	defer server.Close()

	var got []quote
	session := NewSession[quote](testConfig(wsURL(server)), &quoteDecoder{})

	outcome, err := session.Run(context.Background(), func(q quote) {
		got = append(got, q)
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if outcome != OutcomeClean {
		t.Errorf("outcome = %v, want clean", outcome)
	}

	select {
	case <-serverDone:
	case <-time.After(3 * time.Second):
		t.Fatal("server handler did not finish")
	}

	if len(got) != 1 {
		t.Fatalf("sink called %d times, want 1", len(got))
	}
	if got[0].Symbol != "005930" || got[0].Price != 71000 {
		t.Errorf("record = %+v", got[0])
	}
	if n := pongs.Load(); n != 1 {
		t.Errorf("pongs = %d, want 1", n)
	}
	if session.State() != StateTerminated {
		t.Errorf("state = %v, want terminated", session.State())
	}
}

func TestSession_DeliversInOrder(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		if !readSubscription(t, conn) {
			return
		}
		for i := 1; i <= 5; i++ {
			payload := []byte(`{"symbol":"A","price":` + string(rune('0'+i)) + `}`)
			if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				return
			}
		}
		closeNormally(conn)
	})
	defer server.Close()

	var prices []int
	session := NewSession[quote](testConfig(wsURL(server)), &quoteDecoder{})
	outcome, err := session.Run(context.Background(), func(q quote) {
		prices = append(prices, q.Price)
	})
	if err != nil || outcome != OutcomeClean {
		t.Fatalf("Run = %v, %v; want clean", outcome, err)
	}

	want := []int{1, 2, 3, 4, 5}
	if len(prices) != len(want) {
		t.Fatalf("got %v, want %v", prices, want)
	}
	for i := range want {
		if prices[i] != want[i] {
			t.Errorf("prices[%d] = %d, want %d", i, prices[i], want[i])
		}
	}
}

func TestSession_TextFramesIgnored(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		if !readSubscription(t, conn) {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"symbol":"A","price":1}`))
		closeNormally(conn)
	})
	defer server.Close()

	calls := 0
	session := NewSession[quote](testConfig(wsURL(server)), &quoteDecoder{})
	outcome, err := session.Run(context.Background(), func(quote) { calls++ })
	if err != nil || outcome != OutcomeClean {
		t.Fatalf("Run = %v, %v; want clean", outcome, err)
	}
	if calls != 0 {
		t.Errorf("sink called %d times for a text frame", calls)
	}
}

func TestSession_ConnectFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	session := NewSession[quote](testConfig(wsURL(server)), &quoteDecoder{})
	outcome, err := session.Run(context.Background(), func(quote) {})
	if outcome != OutcomeError {
		t.Errorf("outcome = %v, want error", outcome)
	}
	if err == nil {
		t.Fatal("expected dial error")
	}
}

func TestSession_IDsAreUnique(t *testing.T) {
	a := NewSession[quote](Config{}, &quoteDecoder{})
	b := NewSession[quote](Config{}, &quoteDecoder{})
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("IDs = %q, %q; want distinct non-empty", a.ID(), b.ID())
	}
}

func TestSession_NoURL(t *testing.T) {
	session := NewSession[quote](Config{}, &quoteDecoder{})
	outcome, err := session.Run(context.Background(), func(quote) {})
	if outcome != OutcomeError || !errors.Is(err, ErrNoURL) {
		t.Errorf("Run = %v, %v; want error, ErrNoURL", outcome, err)
	}
}

func TestSession_SubscriptionFailure(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		conn.ReadMessage()
	})
	defer server.Close()

	errToken := errors.New("token unavailable")
	session := NewSession[quote](testConfig(wsURL(server)), &quoteDecoder{subscribeErr: errToken})

	outcome, err := session.Run(context.Background(), func(quote) {})
	if outcome != OutcomeError {
		t.Errorf("outcome = %v, want error", outcome)
	}
	if !errors.Is(err, errToken) {
		t.Errorf("err = %v, want wrapping %v", err, errToken)
	}
}

func TestSession_DroppedConnectionIsError(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		readSubscription(t, conn)
		// Returning closes the TCP connection without a close frame.
	})
	defer server.Close()

	session := NewSession[quote](testConfig(wsURL(server)), &quoteDecoder{})
	outcome, err := session.Run(context.Background(), func(quote) {})
	if outcome != OutcomeError || err == nil {
		t.Errorf("Run = %v, %v; want error outcome", outcome, err)
	}
}

func TestSession_Keepalive(t *testing.T) {
	const (
		interval = 50 * time.Millisecond
		duration = 320 * time.Millisecond
	)

	var pings atomic.Int32
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.SetPingHandler(func(string) error {
			pings.Add(1)
			return nil
		})
		if !readSubscription(t, conn) {
			return
		}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		time.Sleep(duration)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		wg.Wait()
	})
	defer server.Close()

	cfg := testConfig(wsURL(server))
	cfg.PingInterval = interval

	session := NewSession[quote](cfg, &quoteDecoder{})
	outcome, err := session.Run(context.Background(), func(quote) {})
	if err != nil || outcome != OutcomeClean {
		t.Fatalf("Run = %v, %v; want clean", outcome, err)
	}

	want := int32(duration / interval)
	if got := pings.Load(); got < want-2 || got > want+1 {
		t.Errorf("pings = %d, want about %d", got, want)
	}
}

func TestSession_ContextCancel(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	session := NewSession[quote](testConfig(wsURL(server)), &quoteDecoder{})
	outcome, err := session.Run(ctx, func(quote) {})
	if outcome != OutcomeError || !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, %v; want error, context.Canceled", outcome, err)
	}
}
