package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luxfi/log"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/MikeLuu99/auction-arena/internal/protocol"
)

func testLogger() log.Logger {
	level, _ := log.ToLevel("debug")
	return log.NewTestLogger(level)
}

// newPair returns a server side Session and the raw client connection
func newPair(t *testing.T, codec protocol.Codec) (*Session, *websocket.Conn) {
	t.Helper()

	sessions := make(chan *Session, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sessions <- New(1, "alice", conn, codec, testLogger())
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	assert.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	s := <-sessions
	t.Cleanup(func() { s.Close() })
	return s, client
}

// answer reads one bid request on the client side and replies with frame
func answer(t *testing.T, client *websocket.Conn, codec protocol.Codec, reply func(round int) []byte) {
	_, frame, err := client.ReadMessage()
	if err != nil {
		return
	}
	env, err := codec.Decode(frame)
	if err != nil || env.Kind != protocol.KindBidRequest || env.Round == nil {
		t.Errorf("unexpected frame %q: %v", frame, err)
		return
	}
	if out := reply(*env.Round); out != nil {
		client.WriteMessage(codec.FrameType(), out)
	}
}

func encodeBid(t *testing.T, codec protocol.Codec, round *int, amount float64) []byte {
	frame, err := codec.Encode(protocol.KindBid, round, protocol.BidResponse{Bid: amount})
	if err != nil {
		t.Errorf("encode: %v", err)
	}
	return frame
}

func TestRequestBid(t *testing.T) {
	for _, codec := range []protocol.Codec{protocol.JSON, protocol.CBOR} {
		t.Run(codec.Name(), func(t *testing.T) {
			s, client := newPair(t, codec)
			go answer(t, client, codec, func(round int) []byte {
				return encodeBid(t, codec, protocol.Round(round), 42)
			})

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			amount, err := s.RequestBid(ctx, protocol.BidRequest{RoundIndex: 3})
			assert.NoError(t, err)
			check.Equal(t, 42.0, amount)
			check.False(t, s.Disconnected())
		})
	}
}

func TestRequestBid_Timeout(t *testing.T) {
	s, client := newPair(t, protocol.JSON)
	silent := make(chan struct{})
	go func() {
		defer close(silent)
		answer(t, client, protocol.JSON, func(int) []byte { return nil })
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := s.RequestBid(ctx, protocol.BidRequest{RoundIndex: 0})
	check.True(t, errors.Is(err, ErrTimeout))
	check.False(t, s.Disconnected())

	// The next round still works; only one reader uses the connection at a time
	<-silent
	go answer(t, client, protocol.JSON, func(round int) []byte {
		return encodeBid(t, protocol.JSON, protocol.Round(round), 5)
	})
	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	amount, err := s.RequestBid(ctx2, protocol.BidRequest{RoundIndex: 1})
	assert.NoError(t, err)
	check.Equal(t, 5.0, amount)
}

func TestRequestBid_StaleReplyIgnored(t *testing.T) {
	s, client := newPair(t, protocol.JSON)
	go answer(t, client, protocol.JSON, func(round int) []byte {
		// A late answer to the previous round arrives first
		client.WriteMessage(websocket.TextMessage, encodeBid(t, protocol.JSON, protocol.Round(round-1), 99))
		return encodeBid(t, protocol.JSON, protocol.Round(round), 7)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	amount, err := s.RequestBid(ctx, protocol.BidRequest{RoundIndex: 4})
	assert.NoError(t, err)
	check.Equal(t, 7.0, amount)
}

func TestRequestBid_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		err   error
	}{
		{name: "negative", frame: `{"kind":"bid","data":{"bid":-5}}`, err: protocol.ErrMalformedBid},
		{name: "missing", frame: `{"kind":"bid","data":{"amount":5}}`, err: protocol.ErrMalformedBid},
		{name: "garbage", frame: `not json`, err: protocol.ErrSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, client := newPair(t, protocol.JSON)
			go answer(t, client, protocol.JSON, func(int) []byte { return []byte(tt.frame) })

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			_, err := s.RequestBid(ctx, protocol.BidRequest{})
			check.True(t, errors.Is(err, tt.err))
			check.False(t, s.Disconnected())
		})
	}
}

func TestRequestBid_Disconnect(t *testing.T) {
	s, client := newPair(t, protocol.JSON)
	go answer(t, client, protocol.JSON, func(int) []byte {
		client.Close()
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := s.RequestBid(ctx, protocol.BidRequest{})
	check.True(t, errors.Is(err, ErrDisconnected))

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session not closed after disconnect")
	}
	check.True(t, s.Disconnected())
	check.True(t, errors.Is(s.Send(protocol.KindInfo, nil, protocol.Notice{Message: "hi"}), ErrDisconnected))
}

func TestSend(t *testing.T) {
	s, client := newPair(t, protocol.CBOR)
	assert.NoError(t, s.Send(protocol.KindWarning, protocol.Round(2), protocol.Notice{Message: "bid exceeds budget available"}))

	messageType, frame, err := client.ReadMessage()
	assert.NoError(t, err)
	check.Equal(t, websocket.BinaryMessage, messageType)

	env, err := protocol.CBOR.Decode(frame)
	assert.NoError(t, err)
	check.Equal(t, protocol.KindWarning, env.Kind)

	var notice protocol.Notice
	assert.NoError(t, env.Data(&notice))
	check.Equal(t, "bid exceeds budget available", notice.Message)
}
