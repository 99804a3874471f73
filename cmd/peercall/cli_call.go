package main

import (
	"context"
	"fmt"

	"github.com/webrtc-peercall/peercall/call"
	"github.com/webrtc-peercall/peercall/call/transport"
	"github.com/webrtc-peercall/peercall/call/wsmessenger"
)

// CliCall places an outbound call: dial the signalling websocket, wire
// up a pion peer connection, and drive call.PeerCall.Call.
type CliCall struct {
	SignalURL string   `name:"signal-url" short:"s" required:"" help:"Websocket URL of the signalling relay."`
	CallID    string   `name:"call-id" default:"call1" help:""`
	PartyID   string   `name:"party-id" default:"caller" help:"This device's party id."`
	ICEServer []string `name:"ice-server" placeholder:"[stun|stuns|turn|turns]://<host>:<port>" help:"ICE servers to use; defaults to the fallback STUN server."`
}

func (c *CliCall) Run(ctx context.Context) (err error) {
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

	if err := peerCall.Call(ctx, func(ctx context.Context) (transport.LocalMedia, error) {
		return transport.NoMedia{}, nil
	}); err != nil {
		return fmt.Errorf("call failed: %w", err)
	}

	go runDataChannelGreeting(ctx, peerCall, "hello from "+c.PartyID)

	return peerCall.WaitEnded(ctx)
}
