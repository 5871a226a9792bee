package publish

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freeEndpoint reserves a loopback port and returns it as a tcp endpoint.
func freeEndpoint(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "tcp://" + addr
}

// awaitDelivery publishes payload until sub receives something, which
// covers the time a SUB socket needs to finish its handshake.
func awaitDelivery(t *testing.T, pub *Handle, sub *Subscriber, payload string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, pub.Publish([]byte(payload)))
		msg, ok, err := sub.RecvTimeout(100 * time.Millisecond)
		require.NoError(t, err)
		if ok {
			return string(msg)
		}
	}
	t.Fatal("subscriber never received a message")
	return ""
}

func TestBind_SubscriberReceives(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ep := freeEndpoint(t)
	pub, err := Bind(ctx, ep)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := Subscribe(ctx, ModeConnect, ep, "")
	require.NoError(t, err)
	defer sub.Close()

	got := awaitDelivery(t, pub, sub, `{"shcode":"005930"}`)
	assert.Equal(t, `{"shcode":"005930"}`, got)
}

func TestConnect_ToBoundSubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ep := freeEndpoint(t)
	sub, err := Subscribe(ctx, ModeBind, ep, "")
	require.NoError(t, err)
	defer sub.Close()

	pub, err := Connect(ctx, ep)
	require.NoError(t, err)
	defer pub.Close()

	assert.Equal(t, "hello", awaitDelivery(t, pub, sub, "hello"))
}

func TestSubscribe_TopicFilter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ep := freeEndpoint(t)
	pub, err := Bind(ctx, ep)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := Subscribe(ctx, ModeConnect, ep, "UH1")
	require.NoError(t, err)
	defer sub.Close()

	awaitDelivery(t, pub, sub, "UH1 warmup")

	require.NoError(t, pub.Publish([]byte("US3 trade")))
	require.NoError(t, pub.Publish([]byte("UH1 book")))

	// Drain leftover warmup copies; the filtered message must never appear.
	for {
		msg, ok, err := sub.RecvTimeout(500 * time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok, "expected UH1 book")
		require.True(t, strings.HasPrefix(string(msg), "UH1"), "got %q", msg)
		if string(msg) == "UH1 book" {
			return
		}
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	pub, err := Bind(context.Background(), freeEndpoint(t))
	require.NoError(t, err)
	defer pub.Close()

	for i := 0; i < 10; i++ {
		assert.NoError(t, pub.Publish([]byte("nobody listening")))
	}
	assert.NotNil(t, pub.Addr())
}

func TestClone_SharesSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ep := freeEndpoint(t)
	pub, err := Bind(ctx, ep)
	require.NoError(t, err)

	clone := pub.Clone()

	sub, err := Subscribe(ctx, ModeConnect, ep, "")
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, "from clone", awaitDelivery(t, clone, sub, "from clone"))

	require.NoError(t, pub.Close())
	assert.ErrorIs(t, clone.Publish([]byte("late")), ErrClosed)
	assert.NoError(t, clone.Close(), "second close is a no-op")
}

func TestPublish_ConcurrentMessagesStayWhole(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ep := freeEndpoint(t)
	pub, err := Bind(ctx, ep)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := Subscribe(ctx, ModeConnect, ep, "msg-")
	require.NoError(t, err)
	defer sub.Close()

	awaitDelivery(t, pub, sub, "msg-warmup")

	const workers, perWorker = 4, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		h := pub.Clone()
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				assert.NoError(t, h.Publish([]byte(fmt.Sprintf("msg-%d-%d", w, i))))
			}
		}(w)
	}
	wg.Wait()

	received := 0
	for {
		msg, ok, err := sub.RecvTimeout(500 * time.Millisecond)
		require.NoError(t, err)
		if !ok {
			break
		}
		s := string(msg)
		if s == "msg-warmup" {
			continue
		}
		var w, i int
		_, scanErr := fmt.Sscanf(s, "msg-%d-%d", &w, &i)
		assert.NoError(t, scanErr, "malformed message %q", s)
		received++
	}
	assert.Greater(t, received, 0)
}

func TestRecvString_RejectsBinary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ep := freeEndpoint(t)
	pub, err := Bind(ctx, ep)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := Subscribe(ctx, ModeConnect, ep, "")
	require.NoError(t, err)
	defer sub.Close()

	awaitDelivery(t, pub, sub, "warmup")

	require.NoError(t, pub.Publish([]byte{0xff, 0xfe}))
	for {
		s, err := sub.RecvString(ctx)
		if s == "warmup" {
			continue
		}
		assert.ErrorIs(t, err, ErrNotUTF8)
		return
	}
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Bind(ctx, "")
	assert.ErrorIs(t, err, ErrNoEndpoint)

	_, err = Connect(ctx, "")
	assert.ErrorIs(t, err, ErrNoEndpoint)

	_, err = Open(ctx, Mode("carrier-pigeon"), "tcp://127.0.0.1:1", "")
	assert.Error(t, err)

	_, err = ConnectNATS("nats://127.0.0.1:1", "")
	assert.Error(t, err)

	_, err = ConnectNATS("nats://127.0.0.1:1", "ls.orderbook")
	assert.Error(t, err, "no nats server is listening")
}

func TestRecv_ErrorIsSticky(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ep := freeEndpoint(t)
	pub, err := Bind(ctx, ep)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := Subscribe(ctx, ModeConnect, ep, "")
	require.NoError(t, err)

	awaitDelivery(t, pub, sub, "warmup")
	sub.Close()

	// Drain whatever was queued before the socket went away.
	var firstErr error
	for i := 0; i < 100 && firstErr == nil; i++ {
		_, _, firstErr = sub.RecvTimeout(time.Second)
	}
	require.Error(t, firstErr)

	for i := 0; i < 3; i++ {
		msg, ok, err := sub.RecvTimeout(50 * time.Millisecond)
		assert.Nil(t, msg)
		assert.False(t, ok)
		assert.Error(t, err, "receive %d after failure", i)
	}

	_, err = sub.Recv(context.Background())
	assert.Error(t, err)
}
