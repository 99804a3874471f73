package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/webrtc-peercall/peercall/call/wire"
	"github.com/webrtc-peercall/peercall/call/wsmessenger"
)

// CliServe runs a minimal signalling relay: every websocket that dials
// /rooms/{roomID} is paired with the next one that dials the same room,
// and each side's messages are forwarded to the other. Grounded on the
// teacher's ingress/relay pattern in signal-server-aetherlight.go, with
// the smux multiplexed tunnel and nacl-box authentication dropped — this
// relay moves one whole wire.Message per websocket frame rather
// than proxying an arbitrary byte stream, so there is nothing left to
// multiplex, and authenticating room access is out of scope for a
// two-party signalling demo.
type CliServe struct {
	Addr string `name:"addr" short:"a" default:":8089" help:"address to listen on"`
}

// room pairs the first two websockets that dial the same room id and
// relays wire.Message frames between them.
type room struct {
	mu      sync.Mutex
	first   *wsmessenger.WebsocketMessenger
	firstCh chan *wsmessenger.WebsocketMessenger
}

type relayServer struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func newRelayServer() *relayServer {
	return &relayServer{rooms: map[string]*room{}}
}

func (s *relayServer) roomFor(id string) *room {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		r = &room{firstCh: make(chan *wsmessenger.WebsocketMessenger, 1)}
		s.rooms[id] = r
	}
	return r
}

func (s *relayServer) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
}

func (s *relayServer) handle(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimPrefix(r.URL.Path, "/rooms/")
	if roomID == "" || strings.Contains(roomID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	m, err := wsmessenger.Accept(w, r, nil)
	if err != nil {
		log.Println("accept signalling websocket failed:", err)
		return
	}
	defer m.Close()

	rm := s.roomFor(roomID)

	rm.mu.Lock()
	isFirst := rm.first == nil
	if isFirst {
		rm.first = m
	}
	rm.mu.Unlock()

	ctx := r.Context()
	if isFirst {
		rm.firstCh <- m
		// Hold this handler (and its websocket) open until the request
		// context ends. Once a peer joins, relayPair runs on the peer's
		// handler and uses this connection, so returning here earlier
		// would close it under the relay.
		<-ctx.Done()
		s.forget(roomID)
		return
	}

	select {
	case peer := <-rm.firstCh:
		s.relayPair(ctx, m, peer, roomID)
	case <-ctx.Done():
	}
}

func (s *relayServer) relayPair(ctx context.Context, a, b *wsmessenger.WebsocketMessenger, roomID string) {
	defer s.forget(roomID)

	done := make(chan struct{}, 2)
	go pump(ctx, a, b, done)
	go pump(ctx, b, a, done)

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func pump(ctx context.Context, from, to *wsmessenger.WebsocketMessenger, done chan struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		msg, err := wire.Receive(ctx, from)
		if err != nil {
			return
		}
		if err := wire.Send(ctx, to, msg); err != nil {
			return
		}
	}
}

func (c *CliServe) Run(ctx context.Context) error {
	s := newRelayServer()

	mux := http.NewServeMux()
	mux.HandleFunc("/rooms/", s.handle)

	srv := &http.Server{Addr: c.Addr, Handler: mux}
	log.Printf("signalling relay listening on %s\n", c.Addr)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return fmt.Errorf("signalling relay failed: %w", err)
	}
}
