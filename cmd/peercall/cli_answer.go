package main

import (
	"context"
	"fmt"

	"github.com/webrtc-peercall/peercall/call"
	"github.com/webrtc-peercall/peercall/call/transport"
	"github.com/webrtc-peercall/peercall/call/wsmessenger"
)

// CliAnswer dials the same signalling relay a caller dialed, waits for
// its Invite to arrive, and answers it.
type CliAnswer struct {
	SignalURL string   `name:"signal-url" short:"s" required:"" help:"Websocket URL of the signalling relay."`
	CallID    string   `name:"call-id" default:"call1" help:""`
	PartyID   string   `name:"party-id" default:"callee" help:"This device's party id."`
	ICEServer []string `name:"ice-server" placeholder:"[stun|stuns|turn|turns]://<host>:<port>" help:""`
}

func (c *CliAnswer) Run(ctx context.Context) (err error) {
	messenger, err := wsmessenger.Dial(ctx, c.SignalURL, nil)
	if err != nil {
		return fmt.Errorf("dial signalling server failed: %w", err)
	}
	defer messenger.Close()

	pc, err := newPeerConnection(c.ICEServer)
	if err != nil {
		return err
	}

	host := call.NewMessengerHost(messenger, logUpdate(c.CallID))
	peerCall := call.New(c.CallID, c.PartyID, pc, transport.NewRealTimeoutCreator(), host)

	go runSignallingLoop(ctx, messenger, peerCall)

	if err := peerCall.WaitState(ctx, call.Ringing); err != nil {
		return fmt.Errorf("waiting for invite failed: %w", err)
	}

	if err := peerCall.Answer(ctx, func(ctx context.Context) (transport.LocalMedia, error) {
		return transport.NoMedia{}, nil
	}); err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}

	go runDataChannelGreeting(ctx, peerCall, "hello from "+c.PartyID)

	return peerCall.WaitEnded(ctx)
}
