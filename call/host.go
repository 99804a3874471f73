package call

import (
	"context"

	"github.com/webrtc-peercall/peercall/call/wire"
)

// Host is the outbound hook a PeerCall calls into: it never reaches
// back into PeerCall state, only receives updates and is asked to
// move bytes. Grounded on the teacher's split between the proxy layer
// and its Messenger: the engine doesn't know or care how an update is
// displayed or how a message actually reaches the opponent.
type Host interface {
	// EmitUpdate is called on every state transition, including the
	// final one into Ended, except when the call is ended by an inbound
	// Hangup or by Dispose: those enter Ended without an update.
	EmitUpdate(params UpdateParams)

	// SendSignallingMessage hands a message to the outer transport.
	// It blocks until the hand-off succeeds or fails; failure is
	// always treated as a send failure by the caller.
	SendSignallingMessage(ctx context.Context, msg wire.Message) error
}

// MessengerHost is a Host that speaks wire.Messenger directly, useful
// for a PeerCall that owns its signalling connection outright (the
// CLI's one-call-per-process model) rather than going through an
// outer multiplexing layer. EmitUpdate is left to the caller to wire
// up (e.g. logging, or forwarding to a UI channel).
type MessengerHost struct {
	Messenger wire.Messenger
	OnUpdate  func(UpdateParams)
}

func NewMessengerHost(m wire.Messenger, onUpdate func(UpdateParams)) *MessengerHost {
	return &MessengerHost{Messenger: m, OnUpdate: onUpdate}
}

func (h *MessengerHost) EmitUpdate(params UpdateParams) {
	if h.OnUpdate != nil {
		h.OnUpdate(params)
	}
}

func (h *MessengerHost) SendSignallingMessage(ctx context.Context, msg wire.Message) error {
	return wire.Send(ctx, h.Messenger, msg)
}
