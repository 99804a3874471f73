package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/webrtc-peercall/peercall/call"
	"github.com/webrtc-peercall/peercall/call/transport"
	"github.com/webrtc-peercall/peercall/call/wire"
)

func newPeerConnection(iceServers []string) (transport.PeerConnection, error) {
	config := transport.NewConfiguration(iceServers)
	settings := transport.DefaultSettingEngine()
	pc, err := transport.NewPionPeerConnection(config, settings)
	if err != nil {
		return nil, fmt.Errorf("create peer connection failed: %w", err)
	}
	return pc, nil
}

// runSignallingLoop reads messages off m until ctx is canceled or the
// connection closes, handing each to pc in arrival order — the host's
// responsibility per the spec's ordering guarantee that inbound
// messages for the same call are processed in arrival order.
func runSignallingLoop(ctx context.Context, m wire.Messenger, pc *call.PeerCall) {
	for {
		msg, err := wire.Receive(ctx, m)
		if err != nil {
			if ctx.Err() == nil {
				log.Println("signalling read failed:", err)
			}
			return
		}
		pc.HandleIncomingSignallingMessage(ctx, msg, msg.PartyID)
	}
}

// waitForDataChannel polls pc.DataChannel until it's set (the callee
// only learns of it through OnDataChannelChanged, some time after the
// SCTP association comes up) or ctx ends.
func waitForDataChannel(ctx context.Context, pc *call.PeerCall) (transport.DataChannel, error) {
	for {
		if dc := pc.DataChannel(); dc != nil {
			return dc, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// runDataChannelGreeting waits for the call's data channel, exchanges
// one greeting over it, and logs what the peer sent back. It runs in
// its own goroutine and never blocks the call's own lifecycle.
func runDataChannelGreeting(ctx context.Context, pc *call.PeerCall, greeting string) {
	dc, err := waitForDataChannel(ctx, pc)
	if err != nil {
		return
	}
	conn, err := dc.OpenConn(ctx)
	if err != nil {
		log.Println("data channel open failed:", err)
		return
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(greeting + "\n")); err != nil {
		log.Println("data channel write failed:", err)
		return
	}

	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		if !isTimeout(err) {
			log.Println("data channel read failed:", err)
		}
		return
	}
	log.Printf("data channel %s: received %q\n", pc.ID(), string(buf[:n]))
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func logUpdate(callID string) func(call.UpdateParams) {
	return func(p call.UpdateParams) {
		if p.State == call.Ended {
			log.Printf("call %s: state=%s hangup_party=%s reason=%s\n", callID, p.State, p.HangupParty, p.HangupReason)
			return
		}
		log.Printf("call %s: state=%s\n", callID, p.State)
	}
}
