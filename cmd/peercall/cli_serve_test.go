package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/webrtc-peercall/peercall/call/wire"
	"github.com/webrtc-peercall/peercall/call/wsmessenger"
)

func TestRelayServerPairsAndForwards(t *testing.T) {
	s := newRelayServer()
	srv := httptest.NewServer(http.HandlerFunc(s.handle))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/test-room"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := wsmessenger.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial first party: %v", err)
	}
	defer a.Close()

	b, err := wsmessenger.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial second party: %v", err)
	}
	defer b.Close()

	msg := wire.Message{Kind: wire.KindHangup, CallID: "test-room", PartyID: "a", Hangup: &wire.HangupContent{Reason: "user_hangup"}}
	if err := wire.Send(ctx, a, msg); err != nil {
		t.Fatalf("send from a: %v", err)
	}

	got, err := wire.Receive(ctx, b)
	if err != nil {
		t.Fatalf("receive on b: %v", err)
	}
	if got.Kind != wire.KindHangup || got.Hangup == nil || got.Hangup.Reason != "user_hangup" {
		t.Fatalf("unexpected relayed message: %+v", got)
	}
}
