package wsmessenger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/webrtc-peercall/peercall/call/wire"
)

func TestRoundTripOverWebsocket(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m, err := Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept failed: %v", err)
			return
		}
		defer m.Close()
		b, err := m.Read(r.Context())
		if err != nil {
			t.Errorf("server read failed: %v", err)
			return
		}
		received <- b
	}))
	defer srv.Close()

	url := "ws" + srv.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	msg := wire.Message{
		Kind:    wire.KindHangup,
		CallID:  "call1",
		PartyID: "party1",
		Hangup:  &wire.HangupContent{Reason: "user_hangup"},
	}
	if err := wire.Send(ctx, client, msg); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case b := <-received:
		decoded, err := wire.Decode(b)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if decoded.Kind != wire.KindHangup || decoded.Hangup.Reason != "user_hangup" {
			t.Fatalf("unexpected decoded message: %+v", decoded)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for server to receive message")
	}
}
