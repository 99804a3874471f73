// Package call implements the 1:1 peer call signalling engine: the
// state machine that drives a single peer-to-peer media session
// through offer/answer exchange, ICE trickling, renegotiation and
// hangup over an abstract wire.Messenger, while delegating the actual
// media transport to a transport.PeerConnection.
package call

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/webrtc-peercall/peercall/call/transport"
	"github.com/webrtc-peercall/peercall/call/wire"
)

// CallTimeout is CALL_TIMEOUT_MS: the default invite-sent and ringing
// expiry, and the lifetime advertised on an outbound Invite.
const CallTimeout = 60 * time.Second

// candidateGatheringGrace is the 200ms grace period the negotiation
// serializer and answer() wait for before sending a description,
// giving the peer connection a head start gathering local candidates
// so the initial SDP already carries some of them.
const candidateGatheringGrace = 200 * time.Millisecond

// LocalMediaFunc resolves a LocalMedia handle, standing in for the
// spec's localMediaPromise: call() and answer() block on it and
// re-check state on return since it is a suspension point.
type LocalMediaFunc func(ctx context.Context) (transport.LocalMedia, error)

// PeerCall is the unit of state described by the spec's data model.
// Every field access goes through mu; callbacks from the peer
// connection and calls from the host all serialize on the same lock,
// matching the "pin to one executor, or guard with a mutex" model.
type PeerCall struct {
	mu sync.Mutex

	id      string
	partyID string

	pc       transport.PeerConnection
	timeouts transport.TimeoutCreator
	host     Host

	state           State
	direction       Direction
	localMedia      transport.LocalMedia
	opponentPartyID string
	opponentSet     bool
	hangupParty     Party
	hangupReason    ErrorCode
	ignoreOffer     bool

	candidateQueue *candidateQueue
	remoteBuffer   *remoteCandidateBuffer
	streamMeta     *streamMetadataRegistry
	negotiation    *negotiationChain

	waiters map[State][]chan struct{}

	activeTimeouts []transport.TimeoutHandle

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a PeerCall in the Fledgling state, wires itself as
// the peer connection's handler and purpose resolver, and is ready to
// drive either call() or an inbound Invite.
func New(id, partyID string, pc transport.PeerConnection, timeouts transport.TimeoutCreator, host Host) *PeerCall {
	ctx, cancel := context.WithCancel(context.Background())
	p := &PeerCall{
		id:           id,
		partyID:      partyID,
		pc:           pc,
		timeouts:     timeouts,
		host:         host,
		state:        Fledgling,
		remoteBuffer: newRemoteCandidateBuffer(),
		streamMeta:   newStreamMetadataRegistry(),
		negotiation:  newNegotiationChain(),
		waiters:      make(map[State][]chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
	p.candidateQueue = newCandidateQueue(
		timeouts,
		func() Direction { p.mu.Lock(); defer p.mu.Unlock(); return p.direction },
		func() bool { p.mu.Lock(); defer p.mu.Unlock(); return p.state == Ringing },
		p.sendCandidates,
		func(err error) {
			p.mu.Lock()
			p.terminateLocked(Local, ErrSignallingFailed, true)
			p.mu.Unlock()
		},
	)
	pc.SetHandler(p)
	pc.SetPurposeResolver(p.streamMeta.PurposeForStreamID)
	return p
}

func (p *PeerCall) ID() string      { return p.id }
func (p *PeerCall) PartyID() string { return p.partyID }

func (p *PeerCall) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *PeerCall) OpponentPartyID() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opponentPartyID, p.opponentSet
}

func (p *PeerCall) SetIgnoreOffer(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ignoreOffer = v
}

// DataChannel returns the call's data channel once it exists: set by
// Call()'s own CreateDataChannel on the caller's side, or recorded by
// the peer connection when the remote channel arrives on the side that
// answers. Nil before either has happened.
func (p *PeerCall) DataChannel() transport.DataChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pc.DataChannel()
}

// setState mutates state, wakes any waitForState callers blocked on
// it, and emits the transition to the host. Callers must hold mu.
// Host.EmitUpdate must not call back into this PeerCall synchronously.
func (p *PeerCall) setState(s State) {
	p.state = s
	p.fireWaitersLocked(s)
	p.host.EmitUpdate(UpdateParams{State: s, HangupParty: p.hangupParty, HangupReason: p.hangupReason})
}

func (p *PeerCall) fireWaitersLocked(s State) {
	for _, ch := range p.waiters[s] {
		close(ch)
	}
	delete(p.waiters, s)
	if s == Ended {
		for other, chans := range p.waiters {
			for _, ch := range chans {
				close(ch)
			}
			delete(p.waiters, other)
		}
	}
}

// waitForState blocks until the call reaches want or ends first.
func (p *PeerCall) waitForState(ctx context.Context, want State) error {
	p.mu.Lock()
	if p.state == want {
		p.mu.Unlock()
		return nil
	}
	if p.state == Ended {
		p.mu.Unlock()
		return fmt.Errorf("call ended before reaching %s", want)
	}
	ch := make(chan struct{})
	p.waiters[want] = append(p.waiters[want], ch)
	p.mu.Unlock()

	select {
	case <-ch:
		p.mu.Lock()
		s := p.state
		p.mu.Unlock()
		if s == want {
			return nil
		}
		return fmt.Errorf("call ended before reaching %s (now %s)", want, s)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// terminateLocked is the spec's single Ended-entry point. Callers must
// hold mu; it is idempotent past the first call (invariant 1).
func (p *PeerCall) terminateLocked(party Party, reason ErrorCode, emit bool) {
	if p.state == Ended {
		return
	}
	p.hangupParty = party
	p.hangupReason = reason
	p.state = Ended

	p.candidateQueue.Discard()
	p.negotiation.Close()

	var teardown *multierror.Error
	if p.localMedia != nil {
		p.localMedia.Stop()
	}
	if dc := p.pc.DataChannel(); dc != nil {
		if err := dc.Close(); err != nil {
			teardown = multierror.Append(teardown, fmt.Errorf("close data channel: %w", err))
		}
	}
	if err := p.pc.Dispose(); err != nil {
		teardown = multierror.Append(teardown, fmt.Errorf("dispose peer connection: %w", err))
	}
	if teardown != nil {
		log.Println("call teardown encountered errors:", teardown)
	}

	p.cancelAllTimeoutsLocked()
	p.cancel()

	if emit {
		p.host.EmitUpdate(UpdateParams{State: Ended, HangupParty: party, HangupReason: reason})
	}
	p.fireWaitersLocked(Ended)
}

func (p *PeerCall) cancelAllTimeoutsLocked() {
	for _, h := range p.activeTimeouts {
		h.Abort()
	}
	p.activeTimeouts = nil
}

// WaitEnded blocks until the call reaches Ended.
func (p *PeerCall) WaitEnded(ctx context.Context) error {
	return p.waitForState(ctx, Ended)
}

// WaitState blocks until the call reaches want or ends first, for
// hosts that need to synchronize with a transition Call/Answer don't
// already block on (e.g. waiting for an inbound Invite to arrive and
// bring the call to Ringing before calling Answer).
func (p *PeerCall) WaitState(ctx context.Context, want State) error {
	return p.waitForState(ctx, want)
}

// Dispose releases every resource owned by the call without sending a
// Hangup, for a host tearing the call down directly (e.g. shutdown).
func (p *PeerCall) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminateLocked(Local, ErrUserHangup, false)
}

// Call places an outbound call: valid only in Fledgling.
func (p *PeerCall) Call(ctx context.Context, localMedia LocalMediaFunc) error {
	p.mu.Lock()
	if p.state != Fledgling {
		p.mu.Unlock()
		return fmt.Errorf("call: invalid state %s", p.state)
	}
	p.direction = Outbound
	p.setState(WaitLocalMedia)
	p.mu.Unlock()

	media, err := localMedia(ctx)

	p.mu.Lock()
	if p.state != WaitLocalMedia {
		p.mu.Unlock()
		return nil
	}
	if err != nil {
		p.terminateLocked(Local, ErrNoUserMedia, true)
		p.mu.Unlock()
		return newCallError(ErrNoUserMedia, err)
	}
	p.localMedia = media
	p.setState(CreateOffer)
	p.mu.Unlock()

	for _, t := range media.Tracks() {
		if err := p.pc.AddTrack(t); err != nil {
			p.mu.Lock()
			p.terminateLocked(Local, ErrLocalOfferFailed, true)
			p.mu.Unlock()
			return newCallError(ErrLocalOfferFailed, err)
		}
	}

	// The caller opens the call's one data channel (spec.md's
	// createDataChannel) so its SCTP m-line rides in the same initial
	// offer as any tracks; on the answering side the peer connection
	// records the remote channel once the association is up.
	if _, err := p.pc.CreateDataChannel(p.id); err != nil {
		p.mu.Lock()
		p.terminateLocked(Local, ErrLocalOfferFailed, true)
		p.mu.Unlock()
		return newCallError(ErrLocalOfferFailed, err)
	}

	// AddTrack/CreateDataChannel fire OnNegotiationNeeded asynchronously;
	// the negotiation chain drives CreateOffer/SetLocalDescription/Invite
	// from there.
	return p.waitForState(ctx, InviteSent)
}

// Answer accepts an inbound call: valid only in Ringing.
func (p *PeerCall) Answer(ctx context.Context, localMedia LocalMediaFunc) error {
	p.mu.Lock()
	if p.state != Ringing {
		p.mu.Unlock()
		return fmt.Errorf("answer: invalid state %s", p.state)
	}
	p.setState(WaitLocalMedia)
	p.mu.Unlock()

	media, err := localMedia(ctx)

	p.mu.Lock()
	if p.state != WaitLocalMedia {
		p.mu.Unlock()
		return nil
	}
	if err != nil {
		p.terminateLocked(Local, ErrNoUserMedia, true)
		p.mu.Unlock()
		return newCallError(ErrNoUserMedia, err)
	}
	p.localMedia = media
	p.setState(CreateAnswer)
	p.mu.Unlock()

	for _, t := range media.Tracks() {
		if err := p.pc.AddTrack(t); err != nil {
			p.mu.Lock()
			p.terminateLocked(Local, ErrCreateAnswer, true)
			p.mu.Unlock()
			return newCallError(ErrCreateAnswer, err)
		}
	}

	answer, err := p.pc.CreateAnswer(ctx)
	if err != nil {
		p.mu.Lock()
		p.terminateLocked(Local, ErrCreateAnswer, true)
		p.mu.Unlock()
		return newCallError(ErrCreateAnswer, err)
	}
	if err := p.pc.SetLocalDescription(ctx, &answer); err != nil {
		p.mu.Lock()
		p.terminateLocked(Local, ErrSetLocalDescription, true)
		p.mu.Unlock()
		return newCallError(ErrSetLocalDescription, err)
	}

	p.mu.Lock()
	if p.state == Ended {
		p.mu.Unlock()
		return nil
	}
	p.candidateQueue.Discard()
	p.setState(Connecting)
	p.mu.Unlock()
	p.candidateQueue.Resume(ctx)

	if err := p.sleep(ctx, candidateGatheringGrace); err != nil {
		return err
	}

	p.mu.Lock()
	if p.state == Ended {
		p.mu.Unlock()
		return nil
	}
	var metadata map[string]wire.StreamMetadata
	if p.localMedia != nil {
		metadata = toWireMetadata(p.localMedia.SDPMetadata())
	}
	callID, partyID := p.id, p.partyID
	if ld := p.pc.LocalDescription(); ld != nil {
		answer = *ld
	}
	p.mu.Unlock()

	sendErr := p.host.SendSignallingMessage(ctx, wire.Message{
		Kind:    wire.KindAnswer,
		CallID:  callID,
		PartyID: partyID,
		Answer: &wire.AnswerContent{
			Answer:         wire.SessionDescription{SDP: answer.SDP, Type: answer.Type},
			StreamMetadata: metadata,
			Version:        wire.Version,
		},
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Ended {
		return nil
	}
	if sendErr != nil {
		p.terminateLocked(Local, ErrSendAnswer, true)
		return newCallError(ErrSendAnswer, sendErr)
	}
	return nil
}

// sleep blocks for d on the call's own timer factory, tracked for
// cancellation, returning early with ctx's error if ctx is canceled.
func (p *PeerCall) sleep(ctx context.Context, d time.Duration) error {
	handle := p.timeouts.CreateTimeout(d)
	p.mu.Lock()
	p.activeTimeouts = append(p.activeTimeouts, handle)
	p.mu.Unlock()

	select {
	case <-handle.Elapsed():
		return nil
	case <-ctx.Done():
		handle.Abort()
		return ctx.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Hangup ends the call locally: sends Hangup (best-effort) then
// terminates Local with reason.
func (p *PeerCall) Hangup(ctx context.Context, reason ErrorCode) error {
	p.hangupInternal(ctx, reason)
	return nil
}

func (p *PeerCall) hangupInternal(ctx context.Context, reason ErrorCode) {
	p.mu.Lock()
	if p.state == Ended {
		p.mu.Unlock()
		return
	}
	callID, partyID := p.id, p.partyID
	p.mu.Unlock()

	if err := p.host.SendSignallingMessage(ctx, wire.Message{
		Kind:    wire.KindHangup,
		CallID:  callID,
		PartyID: partyID,
		Hangup:  &wire.HangupContent{Reason: string(reason)},
	}); err != nil {
		log.Println("send hangup failed:", err)
	}

	p.mu.Lock()
	p.terminateLocked(Local, reason, true)
	p.mu.Unlock()
}

// SetMedia atomically swaps local media and reconciles the three track
// roles against the new handle.
func (p *PeerCall) SetMedia(ctx context.Context, newLocalMedia LocalMediaFunc) error {
	media, err := newLocalMedia(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.state == Ended {
		p.mu.Unlock()
		media.Stop()
		return nil
	}
	old := p.localMedia
	p.localMedia = media
	pc := p.pc
	p.mu.Unlock()

	if err := reconcileTracks(pc, old, media); err != nil {
		return err
	}
	if old != nil {
		old.Stop()
	}
	return nil
}

// HandleIncomingSignallingMessage dispatches an inbound message by
// kind. Unknown kinds are ignored.
func (p *PeerCall) HandleIncomingSignallingMessage(ctx context.Context, msg wire.Message, partyID string) {
	switch msg.Kind {
	case wire.KindInvite:
		if msg.Invite != nil {
			p.handleInvite(ctx, msg.Invite, partyID)
		}
	case wire.KindAnswer:
		if msg.Answer != nil {
			p.handleAnswer(ctx, msg.Answer, partyID)
		}
	case wire.KindCandidates:
		if msg.Candidates != nil {
			p.handleRemoteIceCandidates(ctx, msg.Candidates, partyID)
		}
	case wire.KindHangup:
		reason := ErrUserHangup
		if msg.Hangup != nil {
			reason = hangupReasonFromRemote(msg.Hangup.Reason)
		}
		p.mu.Lock()
		p.terminateLocked(Remote, reason, false)
		p.mu.Unlock()
	}
}

func (p *PeerCall) handleInvite(ctx context.Context, content *wire.InviteContent, partyID string) {
	p.mu.Lock()
	if p.state != Fledgling || p.opponentSet {
		p.mu.Unlock()
		return
	}
	p.direction = Inbound
	p.opponentPartyID = partyID
	p.opponentSet = true
	p.applyStreamMetadataLocked(content.StreamMetadata)
	lifetime := CallTimeout
	if content.LifetimeMs > 0 {
		lifetime = time.Duration(content.LifetimeMs) * time.Millisecond
	}
	p.mu.Unlock()

	if err := p.pc.SetRemoteDescription(ctx, transport.SessionDescription{Type: content.Offer.Type, SDP: content.Offer.SDP}); err != nil {
		p.mu.Lock()
		if p.state != Ended {
			p.terminateLocked(Local, ErrSetRemoteDescription, true)
		}
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	if p.state == Ended {
		p.mu.Unlock()
		return
	}
	buffered := p.remoteBuffer.Drain(partyID)
	p.remoteBuffer = nil
	p.mu.Unlock()

	for _, c := range buffered {
		p.addRemoteCandidate(ctx, c)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Ended {
		return
	}
	if len(p.pc.RemoteTracks()) == 0 {
		p.terminateLocked(Local, ErrSetRemoteDescription, true)
		return
	}
	p.setState(Ringing)
	p.armRingingExpiry(lifetime)
}

func (p *PeerCall) armRingingExpiry(d time.Duration) {
	handle := p.timeouts.CreateTimeout(d)
	p.activeTimeouts = append(p.activeTimeouts, handle)
	go func() {
		select {
		case <-handle.Elapsed():
			p.mu.Lock()
			if p.state == Ringing {
				// The remote party never committed to an answer in
				// time; treat it as if they had rescinded the call.
				p.terminateLocked(Remote, ErrInviteTimeout, true)
			}
			p.mu.Unlock()
		case <-p.ctx.Done():
		}
	}()
}

func (p *PeerCall) handleAnswer(ctx context.Context, content *wire.AnswerContent, partyID string) {
	p.mu.Lock()
	if p.state == Ended {
		p.mu.Unlock()
		return
	}
	if p.opponentSet && p.opponentPartyID != partyID {
		// A different remote device already answered; this one is
		// ignored (glare), leaving state unchanged.
		p.mu.Unlock()
		return
	}
	if !p.opponentSet {
		p.opponentPartyID = partyID
		p.opponentSet = true
	}
	if p.state == InviteSent {
		p.setState(Connecting)
	}
	p.applyStreamMetadataLocked(content.StreamMetadata)
	p.mu.Unlock()

	err := p.pc.SetRemoteDescription(ctx, transport.SessionDescription{Type: content.Answer.Type, SDP: content.Answer.SDP})

	p.mu.Lock()
	if p.state == Ended {
		p.mu.Unlock()
		return
	}
	if err != nil {
		p.terminateLocked(Local, ErrSetRemoteDescription, true)
		p.mu.Unlock()
		return
	}
	var buffered []wire.Candidate
	if p.remoteBuffer != nil {
		buffered = p.remoteBuffer.Drain(partyID)
		p.remoteBuffer = nil
	}
	p.mu.Unlock()

	// Only now that the remote description is set can AddICECandidate
	// succeed, matching handleInvite's ordering for the same reason.
	for _, c := range buffered {
		p.addRemoteCandidate(ctx, c)
	}
}

func (p *PeerCall) handleRemoteIceCandidates(ctx context.Context, content *wire.CandidatesContent, partyID string) {
	p.mu.Lock()
	if p.state == Ended {
		p.mu.Unlock()
		return
	}
	if !p.opponentSet {
		if p.remoteBuffer != nil {
			p.remoteBuffer.Add(partyID, content.Candidates)
		}
		p.mu.Unlock()
		return
	}
	if partyID != p.opponentPartyID {
		p.mu.Unlock()
		return
	}
	candidates := content.Candidates
	p.mu.Unlock()

	for _, c := range candidates {
		p.addRemoteCandidate(ctx, c)
	}
}

func (p *PeerCall) addRemoteCandidate(ctx context.Context, c wire.Candidate) {
	if c.SDPMid == nil && c.SDPMLineIndex == nil {
		return
	}
	if err := p.pc.AddICECandidate(ctx, transport.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}); err != nil {
		log.Println("add remote ice candidate failed:", err)
	}
}

// applyStreamMetadataLocked merges update into the registry and
// notifies the peer connection so remote tracks re-evaluate their
// type and mute state. Callers must hold mu.
func (p *PeerCall) applyStreamMetadataLocked(update map[string]wire.StreamMetadata) {
	if len(update) == 0 {
		return
	}
	p.streamMeta.Merge(update)
	p.pc.NotifyStreamPurposeChanged()
	p.streamMeta.ReapplyMuteState(p.pc.RemoteTracks())
}

func (p *PeerCall) sendCandidates(ctx context.Context, candidates []wire.Candidate) error {
	p.mu.Lock()
	callID, partyID := p.id, p.partyID
	p.mu.Unlock()

	return p.host.SendSignallingMessage(ctx, wire.Message{
		Kind:       wire.KindCandidates,
		CallID:     callID,
		PartyID:    partyID,
		Candidates: &wire.CandidatesContent{Candidates: candidates},
	})
}

func toWireMetadata(m map[string]transport.StreamMetadata) map[string]wire.StreamMetadata {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]wire.StreamMetadata, len(m))
	for id, meta := range m {
		purpose := wire.PurposeUsermedia
		if meta.Purpose == transport.PurposeScreenshare {
			purpose = wire.PurposeScreenshare
		}
		out[id] = wire.StreamMetadata{Purpose: purpose, AudioMuted: meta.AudioMuted, VideoMuted: meta.VideoMuted}
	}
	return out
}

// --- transport.Handler ---

func (p *PeerCall) OnICEConnectionStateChange(state transport.ICEConnectionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch state {
	case transport.ICEConnectionStateConnected, transport.ICEConnectionStateCompleted:
		if p.state == Connecting {
			p.setState(Connected)
		}
	case transport.ICEConnectionStateFailed:
		p.terminateLocked(Local, ErrIceFailed, true)
	}
}

func (p *PeerCall) OnICECandidate(c *transport.ICECandidateInit) {
	if c == nil {
		return
	}
	p.candidateQueue.Enqueue(p.ctx, wire.Candidate{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	})
}

func (p *PeerCall) OnICEGatheringStateChange(state transport.ICEGatheringState) {}

func (p *PeerCall) OnRemoteTracksChanged(tracks []transport.Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamMeta.ReapplyMuteState(tracks)
}

func (p *PeerCall) OnDataChannelChanged(dc transport.DataChannel) {}

func (p *PeerCall) OnNegotiationNeeded() {
	p.negotiation.Enqueue(p.ctx, p.onNegotiationNeededTask)
}

// onNegotiationNeededTask is the negotiation serializer's task body:
// create and set a fresh local offer, give ICE gathering a head
// start, discard the candidate queue (it's captured in the new SDP),
// and, only when this is the initial outbound offer, send the Invite
// and arm its timeout.
func (p *PeerCall) onNegotiationNeededTask(ctx context.Context) {
	p.mu.Lock()
	if p.state == Ended {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	offer, err := p.pc.CreateOffer(ctx)
	if err != nil {
		p.mu.Lock()
		p.terminateLocked(Local, ErrLocalOfferFailed, true)
		p.mu.Unlock()
		return
	}
	if err := p.pc.SetLocalDescription(ctx, &offer); err != nil {
		p.mu.Lock()
		p.terminateLocked(Local, ErrSetLocalDescription, true)
		p.mu.Unlock()
		return
	}

	if p.pc.ICEGatheringState() == transport.ICEGatheringStateGathering {
		if err := p.sleep(ctx, candidateGatheringGrace); err != nil {
			return
		}
	}

	p.mu.Lock()
	if p.state == Ended {
		p.mu.Unlock()
		return
	}
	p.candidateQueue.Discard()
	isInitialOffer := p.state == CreateOffer
	var metadata map[string]wire.StreamMetadata
	if p.localMedia != nil {
		metadata = toWireMetadata(p.localMedia.SDPMetadata())
	}
	callID, partyID := p.id, p.partyID
	// Send the local description as it stands now, so the Invite carries
	// the candidates gathered during the grace wait that were just
	// discarded from the queue.
	if ld := p.pc.LocalDescription(); ld != nil {
		offer = *ld
	}
	p.mu.Unlock()

	p.candidateQueue.Resume(ctx)

	if !isInitialOffer {
		return
	}

	sendErr := p.host.SendSignallingMessage(ctx, wire.Message{
		Kind:    wire.KindInvite,
		CallID:  callID,
		PartyID: partyID,
		Invite: &wire.InviteContent{
			Offer:          wire.SessionDescription{SDP: offer.SDP, Type: offer.Type},
			StreamMetadata: metadata,
			Version:        wire.Version,
			LifetimeMs:     CallTimeout.Milliseconds(),
		},
	})

	p.mu.Lock()
	if p.state == Ended {
		p.mu.Unlock()
		return
	}
	if sendErr != nil {
		p.terminateLocked(Local, ErrSendInvite, true)
		p.mu.Unlock()
		return
	}
	p.setState(InviteSent)
	p.mu.Unlock()

	p.armInviteSentTimeout(ctx)
}

func (p *PeerCall) armInviteSentTimeout(ctx context.Context) {
	handle := p.timeouts.CreateTimeout(CallTimeout)
	p.mu.Lock()
	p.activeTimeouts = append(p.activeTimeouts, handle)
	p.mu.Unlock()

	go func() {
		select {
		case <-handle.Elapsed():
			p.mu.Lock()
			stillWaiting := p.state == InviteSent
			p.mu.Unlock()
			if stillWaiting {
				p.hangupInternal(ctx, ErrInviteTimeout)
			}
		case <-p.ctx.Done():
		}
	}()
}
