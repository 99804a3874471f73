package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/webrtc-peercall/peercall/call/transport"
	"github.com/webrtc-peercall/peercall/call/wire"
)

// testHost records every update and every sent message so assertions
// can inspect both without reaching into PeerCall internals.
type testHost struct {
	mu      sync.Mutex
	updates []UpdateParams
	sent    []wire.Message
	sendErr error
}

func (h *testHost) EmitUpdate(params UpdateParams) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, params)
}

func (h *testHost) SendSignallingMessage(ctx context.Context, msg wire.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sendErr != nil {
		return h.sendErr
	}
	h.sent = append(h.sent, msg)
	return nil
}

func (h *testHost) sentOfKind(kind wire.Kind) []wire.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []wire.Message
	for _, m := range h.sent {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func (h *testHost) lastState() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.updates) == 0 {
		return Fledgling
	}
	return h.updates[len(h.updates)-1].State
}

func newTestCall(host Host, clock transport.TimeoutCreator) (*PeerCall, *transport.FakePeerConnection) {
	pc := transport.NewFakePeerConnection()
	p := New("call1", "local-party", pc, clock, host)
	return p, pc
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

func TestHappyOutboundCall(t *testing.T) {
	host := &testHost{}
	clock := transport.NewFakeClock()
	p, pc := newTestCall(host, clock)

	mic := transport.NewFakeTrack("mic", transport.TrackMicrophone, "stream1")
	cam := transport.NewFakeTrack("cam", transport.TrackCamera, "stream1")
	media := transport.NewFakeLocalMedia(mic, cam, nil)

	done := make(chan error, 1)
	go func() {
		done <- p.Call(context.Background(), func(ctx context.Context) (transport.LocalMedia, error) {
			return media, nil
		})
	}()

	waitUntil(t, time.Second, func() bool { return p.State() == CreateOffer })
	pc.FireNegotiationNeeded()

	if err := <-done; err != nil {
		t.Fatalf("Call() returned error: %v", err)
	}
	if p.State() != InviteSent {
		t.Fatalf("expected InviteSent, got %s", p.State())
	}

	invites := host.sentOfKind(wire.KindInvite)
	if len(invites) != 1 {
		t.Fatalf("expected exactly one Invite, got %d", len(invites))
	}
	if len(invites[0].Invite.StreamMetadata) != 1 {
		t.Fatalf("expected one stream's metadata, got %d", len(invites[0].Invite.StreamMetadata))
	}

	p.HandleIncomingSignallingMessage(context.Background(), wire.Message{
		Kind: wire.KindAnswer,
		Answer: &wire.AnswerContent{
			Answer: wire.SessionDescription{Type: "answer", SDP: "remote-answer"},
		},
	}, "party-b")

	if p.State() != Connecting {
		t.Fatalf("expected Connecting after answer, got %s", p.State())
	}

	pc.FireICEConnectionStateChange(transport.ICEConnectionStateConnected)
	if p.State() != Connected {
		t.Fatalf("expected Connected, got %s", p.State())
	}
}

func TestInviteTimeout(t *testing.T) {
	host := &testHost{}
	clock := transport.NewFakeClock()
	p, pc := newTestCall(host, clock)

	media := transport.NewFakeLocalMedia(transport.NewFakeTrack("mic", transport.TrackMicrophone, "s1"), nil, nil)

	done := make(chan error, 1)
	go func() {
		done <- p.Call(context.Background(), func(ctx context.Context) (transport.LocalMedia, error) {
			return media, nil
		})
	}()

	waitUntil(t, time.Second, func() bool { return p.State() == CreateOffer })
	pc.FireNegotiationNeeded()
	<-done

	if p.State() != InviteSent {
		t.Fatalf("expected InviteSent, got %s", p.State())
	}

	clock.Advance(CallTimeout)
	waitUntil(t, time.Second, func() bool { return p.State() == Ended })

	if host.lastState() != Ended {
		t.Fatalf("expected final update to be Ended")
	}
	hangups := host.sentOfKind(wire.KindHangup)
	if len(hangups) != 1 {
		t.Fatalf("expected exactly one Hangup message, got %d", len(hangups))
	}
	if hangups[0].Hangup.Reason != string(ErrInviteTimeout) {
		t.Fatalf("expected reason %s, got %s", ErrInviteTimeout, hangups[0].Hangup.Reason)
	}
}

func TestAnsweredElsewhereIgnoresSecondAnswer(t *testing.T) {
	host := &testHost{}
	clock := transport.NewFakeClock()
	p, pc := newTestCall(host, clock)

	media := transport.NewFakeLocalMedia(transport.NewFakeTrack("mic", transport.TrackMicrophone, "s1"), nil, nil)

	done := make(chan error, 1)
	go func() {
		done <- p.Call(context.Background(), func(ctx context.Context) (transport.LocalMedia, error) {
			return media, nil
		})
	}()
	waitUntil(t, time.Second, func() bool { return p.State() == CreateOffer })
	pc.FireNegotiationNeeded()
	<-done

	p.HandleIncomingSignallingMessage(context.Background(), wire.Message{
		Kind:   wire.KindAnswer,
		Answer: &wire.AnswerContent{Answer: wire.SessionDescription{Type: "answer", SDP: "sdp-b"}},
	}, "party-b")

	if p.State() != Connecting {
		t.Fatalf("expected Connecting, got %s", p.State())
	}
	opponent, set := p.OpponentPartyID()
	if !set || opponent != "party-b" {
		t.Fatalf("expected opponent party-b committed, got %q set=%v", opponent, set)
	}

	p.HandleIncomingSignallingMessage(context.Background(), wire.Message{
		Kind:   wire.KindAnswer,
		Answer: &wire.AnswerContent{Answer: wire.SessionDescription{Type: "answer", SDP: "sdp-c"}},
	}, "party-c")

	if p.State() != Connecting {
		t.Fatalf("second answer must not change state, got %s", p.State())
	}
	opponent, _ = p.OpponentPartyID()
	if opponent != "party-b" {
		t.Fatalf("opponent must remain party-b, got %q", opponent)
	}
}

func TestCandidateBufferingDrainsOnlyCommittedParty(t *testing.T) {
	host := &testHost{}
	clock := transport.NewFakeClock()
	p, pc := newTestCall(host, clock)

	candidatesFor := func(n int) []wire.Candidate {
		mid := "0"
		var idx uint16
		out := make([]wire.Candidate, n)
		for i := range out {
			out[i] = wire.Candidate{Candidate: "candidate", SDPMid: &mid, SDPMLineIndex: &idx}
		}
		return out
	}

	p.HandleIncomingSignallingMessage(context.Background(), wire.Message{
		Kind:       wire.KindCandidates,
		Candidates: &wire.CandidatesContent{Candidates: candidatesFor(3)},
	}, "party-x")
	p.HandleIncomingSignallingMessage(context.Background(), wire.Message{
		Kind:       wire.KindCandidates,
		Candidates: &wire.CandidatesContent{Candidates: candidatesFor(2)},
	}, "party-y")

	if got := len(pc.AddedCandidates); got != 0 {
		t.Fatalf("no candidates should reach the peer connection before an opponent is committed, got %d", got)
	}

	pc.SetRemoteTracks([]transport.Track{transport.NewFakeTrack("rmic", transport.TrackMicrophone, "rstream")})
	p.HandleIncomingSignallingMessage(context.Background(), wire.Message{
		Kind: wire.KindInvite,
		Invite: &wire.InviteContent{
			Offer: wire.SessionDescription{Type: "offer", SDP: "offer-sdp"},
		},
	}, "party-y")

	if p.State() != Ringing {
		t.Fatalf("expected Ringing, got %s", p.State())
	}
	if got := len(pc.AddedCandidates); got != 2 {
		t.Fatalf("expected exactly the 2 party-y candidates drained, got %d", got)
	}
}

func TestTrickleBatching(t *testing.T) {
	host := &testHost{}
	clock := transport.NewFakeClock()
	p, pc := newTestCall(host, clock)
	p.mu.Lock()
	p.direction = Outbound
	p.state = Connecting
	p.mu.Unlock()

	mid := "0"
	var idx uint16
	for i := 0; i < 5; i++ {
		pc.FireICECandidate(&transport.ICECandidateInit{Candidate: "c", SDPMid: &mid, SDPMLineIndex: &idx})
	}

	clock.Advance(1999 * time.Millisecond)
	if len(host.sentOfKind(wire.KindCandidates)) != 0 {
		t.Fatalf("no Candidates message should have been sent yet")
	}

	clock.Advance(1 * time.Millisecond)
	waitUntil(t, time.Second, func() bool { return len(host.sentOfKind(wire.KindCandidates)) == 1 })

	msgs := host.sentOfKind(wire.KindCandidates)
	if len(msgs[0].Candidates.Candidates) != 5 {
		t.Fatalf("expected all 5 candidates in one message, got %d", len(msgs[0].Candidates.Candidates))
	}
}

func TestRenegotiationFIFO(t *testing.T) {
	host := &testHost{}
	clock := transport.NewFakeClock()
	p, pc := newTestCall(host, clock)
	p.mu.Lock()
	p.state = Connected
	p.mu.Unlock()
	pc.SetICEGatheringState(transport.ICEGatheringStateGathering)

	go pc.FireNegotiationNeeded()
	waitUntil(t, time.Second, func() bool { return pc.OfferCounter == 1 })

	// Second callback arrives while the first task is still parked in
	// its candidate-gathering grace wait; it must queue behind the
	// first rather than starting immediately.
	pc.FireNegotiationNeeded()
	time.Sleep(10 * time.Millisecond)
	if pc.OfferCounter != 1 {
		t.Fatalf("second negotiation task must not start before the first completes, got offer count %d", pc.OfferCounter)
	}

	clock.Advance(candidateGatheringGrace)
	waitUntil(t, time.Second, func() bool { return pc.OfferCounter == 2 })

	clock.Advance(candidateGatheringGrace)
	waitUntil(t, time.Second, func() bool {
		desc := pc.LocalDescription()
		return desc != nil && desc.SDP == "fake-offer-2"
	})
	if p.State() == Ended {
		t.Fatalf("renegotiation must not terminate the call")
	}
}

func TestSetMediaReconcilesTracks(t *testing.T) {
	host := &testHost{}
	clock := transport.NewFakeClock()
	p, pc := newTestCall(host, clock)

	mic1 := transport.NewFakeTrack("mic1", transport.TrackMicrophone, "s1")
	initial := transport.NewFakeLocalMedia(mic1, nil, nil)
	p.mu.Lock()
	p.localMedia = initial
	p.state = Connected
	p.mu.Unlock()

	mic2 := transport.NewFakeTrack("mic2", transport.TrackMicrophone, "s1")
	cam := transport.NewFakeTrack("cam1", transport.TrackCamera, "s1")
	next := transport.NewFakeLocalMedia(mic2, cam, nil)

	err := p.SetMedia(context.Background(), func(ctx context.Context) (transport.LocalMedia, error) {
		return next, nil
	})
	if err != nil {
		t.Fatalf("SetMedia failed: %v", err)
	}

	if len(pc.ReplacedTracks) != 1 || pc.ReplacedTracks[0][0] != mic1 || pc.ReplacedTracks[0][1] != mic2 {
		t.Fatalf("expected microphone replace(mic1, mic2), got %+v", pc.ReplacedTracks)
	}
	if len(pc.AddedTracks) != 1 || pc.AddedTracks[0] != cam {
		t.Fatalf("expected camera add(cam1), got %+v", pc.AddedTracks)
	}
	if !mic1.Stopped() {
		t.Fatalf("old local media's tracks should be stopped after SetMedia")
	}
}

func TestTerminateIsAbsorbing(t *testing.T) {
	host := &testHost{}
	clock := transport.NewFakeClock()
	p, _ := newTestCall(host, clock)

	p.mu.Lock()
	p.state = Connected
	p.mu.Unlock()

	if err := p.Hangup(context.Background(), ErrUserHangup); err != nil {
		t.Fatalf("Hangup failed: %v", err)
	}
	if p.State() != Ended {
		t.Fatalf("expected Ended, got %s", p.State())
	}

	p.HandleIncomingSignallingMessage(context.Background(), wire.Message{
		Kind:   wire.KindHangup,
		Hangup: &wire.HangupContent{Reason: string(ErrUserBusy)},
	}, "party-b")

	p.mu.Lock()
	reason := p.hangupReason
	party := p.hangupParty
	p.mu.Unlock()
	if reason != ErrUserHangup || party != Local {
		t.Fatalf("Ended state must be absorbing: got reason=%s party=%s", reason, party)
	}
}
