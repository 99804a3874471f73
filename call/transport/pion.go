package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/pion/webrtc/v3"
)

// PionTrack adapts a pion local or remote track to the engine's Track
// interface. For local tracks, Stop delegates to stopFn, supplied by
// whatever owns device capture (out of scope for this module per the
// spec's LocalMedia boundary); for remote tracks, Stop is a no-op —
// remote tracks are owned by the peer connection, not by us.
type PionTrack struct {
	local    webrtc.TrackLocal
	remote   *webrtc.TrackRemote
	kind     webrtc.RTPCodecType
	id       string
	streamID string
	stopFn   func()

	mu    sync.Mutex
	typ   TrackType
	muted bool
}

func NewPionLocalTrack(local webrtc.TrackLocal, typ TrackType, streamID string, stopFn func()) *PionTrack {
	return &PionTrack{local: local, typ: typ, streamID: streamID, id: local.ID(), stopFn: stopFn}
}

func NewPionRemoteTrack(remote *webrtc.TrackRemote, typ TrackType) *PionTrack {
	return &PionTrack{
		remote:   remote,
		typ:      typ,
		streamID: remote.StreamID(),
		id:       remote.ID(),
		kind:     remote.Kind(),
	}
}

func (t *PionTrack) ID() string       { return t.id }
func (t *PionTrack) StreamID() string { return t.streamID }
func (t *PionTrack) Type() TrackType  { t.mu.Lock(); defer t.mu.Unlock(); return t.typ }
func (t *PionTrack) Muted() bool      { t.mu.Lock(); defer t.mu.Unlock(); return t.muted }
func (t *PionTrack) SetMuted(muted bool) {
	t.mu.Lock()
	t.muted = muted
	t.mu.Unlock()
}
func (t *PionTrack) Stop() {
	if t.stopFn != nil {
		t.stopFn()
	}
}

// Local exposes the underlying webrtc.TrackLocal so PionPeerConnection
// can hand it to pion's AddTrack/ReplaceTrack.
func (t *PionTrack) Local() webrtc.TrackLocal { return t.local }

type PionDataChannel struct{ dc *webrtc.DataChannel }

func (d *PionDataChannel) Label() string { return d.dc.Label() }
func (d *PionDataChannel) Close() error  { return d.dc.Close() }

func (d *PionDataChannel) OpenConn(ctx context.Context) (net.Conn, error) {
	return OpenDataChannelConn(ctx, d.dc)
}

// PionPeerConnection adapts a *webrtc.PeerConnection to
// transport.PeerConnection. Grounded on the teacher's ice.go
// (trickleICE/gatherICE candidate plumbing) and cli-proxy.go
// (newWebRTCPeerConnection's SettingEngine/API construction).
type PionPeerConnection struct {
	pc *webrtc.PeerConnection

	mu              sync.Mutex
	handler         Handler
	resolve         func(streamID string) StreamPurpose
	senders         map[string]*webrtc.RTPSender // keyed by local PionTrack.id
	remoteByTrackID map[string]*PionTrack
	dataChan        DataChannel
}

// NewConfiguration builds a webrtc.Configuration from a list of ICE
// server URLs, falling back to FallbackICEServer when none are given —
// mirroring cli-proxy.go's defaultSTUNs fallback.
func NewConfiguration(iceServers []string) webrtc.Configuration {
	urls := iceServers
	if len(urls) == 0 {
		urls = []string{FallbackICEServer}
	}
	return webrtc.Configuration{ICEServers: []webrtc.ICEServer{{URLs: urls}}}
}

// DefaultSettingEngine enables data channel detach the same way
// cli-proxy.go's newWebRTCPeerConnection does, so data channels can be
// wrapped as a net.Conn-like ReadWriteCloser once open.
func DefaultSettingEngine() webrtc.SettingEngine {
	var s webrtc.SettingEngine
	s.DetachDataChannels()
	return s
}

func NewPionPeerConnection(config webrtc.Configuration, settingEngine webrtc.SettingEngine) (*PionPeerConnection, error) {
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	pc, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection failed: %w", err)
	}

	p := &PionPeerConnection{
		pc:              pc,
		senders:         make(map[string]*webrtc.RTPSender),
		remoteByTrackID: make(map[string]*PionTrack),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		h := p.currentHandler()
		if h == nil {
			return
		}
		if c == nil {
			h.OnICECandidate(nil)
			return
		}
		init := c.ToJSON()
		h.OnICECandidate(&ICECandidateInit{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		if h := p.currentHandler(); h != nil {
			h.OnICEConnectionStateChange(mapICEConnectionState(s))
		}
	})

	pc.OnICEGatheringStateChange(func(s webrtc.ICEGathererState) {
		if h := p.currentHandler(); h != nil {
			h.OnICEGatheringStateChange(mapICEGatheringState(s))
		}
	})

	pc.OnNegotiationNeeded(func() {
		if h := p.currentHandler(); h != nil {
			h.OnNegotiationNeeded()
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		wrapped := &PionDataChannel{dc: dc}
		p.mu.Lock()
		p.dataChan = wrapped
		p.mu.Unlock()
		if h := p.currentHandler(); h != nil {
			h.OnDataChannelChanged(wrapped)
		}
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		p.mu.Lock()
		resolve := p.resolve
		p.mu.Unlock()

		purpose := PurposeUsermedia
		if resolve != nil {
			purpose = resolve(remote.StreamID())
		}
		typ := TrackCamera
		switch {
		case remote.Kind() == webrtc.RTPCodecTypeAudio:
			typ = TrackMicrophone
		case purpose == PurposeScreenshare:
			typ = TrackScreenShare
		}

		pt := NewPionRemoteTrack(remote, typ)

		p.mu.Lock()
		p.remoteByTrackID[remote.ID()] = pt
		tracks := p.snapshotRemoteTracksLocked()
		p.mu.Unlock()

		if h := p.currentHandler(); h != nil {
			h.OnRemoteTracksChanged(tracks)
		}
	})

	return p, nil
}

func (p *PionPeerConnection) currentHandler() Handler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handler
}

func (p *PionPeerConnection) snapshotRemoteTracksLocked() []Track {
	out := make([]Track, 0, len(p.remoteByTrackID))
	for _, t := range p.remoteByTrackID {
		out = append(out, t)
	}
	return out
}

func mapICEConnectionState(s webrtc.ICEConnectionState) ICEConnectionState {
	switch s {
	case webrtc.ICEConnectionStateChecking:
		return ICEConnectionStateChecking
	case webrtc.ICEConnectionStateConnected:
		return ICEConnectionStateConnected
	case webrtc.ICEConnectionStateCompleted:
		return ICEConnectionStateCompleted
	case webrtc.ICEConnectionStateFailed:
		return ICEConnectionStateFailed
	case webrtc.ICEConnectionStateDisconnected:
		return ICEConnectionStateDisconnected
	case webrtc.ICEConnectionStateClosed:
		return ICEConnectionStateClosed
	default:
		return ICEConnectionStateNew
	}
}

func mapICEGatheringState(s webrtc.ICEGathererState) ICEGatheringState {
	switch s {
	case webrtc.ICEGathererStateGathering:
		return ICEGatheringStateGathering
	case webrtc.ICEGathererStateComplete:
		return ICEGatheringStateComplete
	default:
		return ICEGatheringStateNew
	}
}

func mapPCICEGatheringState(s webrtc.ICEGatheringState) ICEGatheringState {
	switch s {
	case webrtc.ICEGatheringStateGathering:
		return ICEGatheringStateGathering
	case webrtc.ICEGatheringStateComplete:
		return ICEGatheringStateComplete
	default:
		return ICEGatheringStateNew
	}
}

func sdpTypeFromString(t string) webrtc.SDPType {
	switch t {
	case "answer":
		return webrtc.SDPTypeAnswer
	case "pranswer":
		return webrtc.SDPTypePranswer
	case "rollback":
		return webrtc.SDPTypeRollback
	default:
		return webrtc.SDPTypeOffer
	}
}

func (p *PionPeerConnection) SetHandler(h Handler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

func (p *PionPeerConnection) CreateOffer(ctx context.Context) (SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return SessionDescription{}, fmt.Errorf("create offer failed: %w", err)
	}
	return SessionDescription{Type: "offer", SDP: offer.SDP}, nil
}

func (p *PionPeerConnection) CreateAnswer(ctx context.Context) (SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return SessionDescription{}, fmt.Errorf("create answer failed: %w", err)
	}
	return SessionDescription{Type: "answer", SDP: answer.SDP}, nil
}

func (p *PionPeerConnection) SetLocalDescription(ctx context.Context, desc *SessionDescription) error {
	if desc == nil {
		return fmt.Errorf("set local description failed: nil description")
	}
	sd := webrtc.SessionDescription{SDP: desc.SDP, Type: sdpTypeFromString(desc.Type)}
	if err := p.pc.SetLocalDescription(sd); err != nil {
		return fmt.Errorf("set local description failed: %w", err)
	}
	return nil
}

func (p *PionPeerConnection) SetRemoteDescription(ctx context.Context, desc SessionDescription) error {
	sd := webrtc.SessionDescription{SDP: desc.SDP, Type: sdpTypeFromString(desc.Type)}
	if err := p.pc.SetRemoteDescription(sd); err != nil {
		return fmt.Errorf("set remote description failed: %w", err)
	}
	return nil
}

func (p *PionPeerConnection) AddICECandidate(ctx context.Context, c ICECandidateInit) error {
	init := webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
	if err := p.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ice candidate failed: %w", err)
	}
	return nil
}

func (p *PionPeerConnection) AddTrack(t Track) error {
	pt, ok := t.(*PionTrack)
	if !ok || pt.local == nil {
		return fmt.Errorf("add track failed: not a local pion track")
	}
	sender, err := p.pc.AddTrack(pt.local)
	if err != nil {
		return fmt.Errorf("add track failed: %w", err)
	}
	p.mu.Lock()
	p.senders[pt.id] = sender
	p.mu.Unlock()
	return nil
}

func (p *PionPeerConnection) RemoveTrack(t Track) (bool, error) {
	pt, ok := t.(*PionTrack)
	if !ok {
		return false, fmt.Errorf("remove track failed: not a pion track")
	}
	p.mu.Lock()
	sender, found := p.senders[pt.id]
	delete(p.senders, pt.id)
	p.mu.Unlock()
	if !found {
		return false, nil
	}
	if err := p.pc.RemoveTrack(sender); err != nil {
		return false, fmt.Errorf("remove track failed: %w", err)
	}
	return true, nil
}

func (p *PionPeerConnection) ReplaceTrack(old, new Track) (bool, error) {
	oldPt, ok := old.(*PionTrack)
	if !ok {
		return false, fmt.Errorf("replace track failed: old track is not a pion track")
	}
	newPt, ok := new.(*PionTrack)
	if !ok || newPt.local == nil {
		return false, fmt.Errorf("replace track failed: new track is not a local pion track")
	}

	p.mu.Lock()
	sender, found := p.senders[oldPt.id]
	p.mu.Unlock()
	if !found {
		return false, nil
	}

	if err := sender.ReplaceTrack(newPt.local); err != nil {
		return false, fmt.Errorf("replace track failed: %w", err)
	}

	p.mu.Lock()
	delete(p.senders, oldPt.id)
	p.senders[newPt.id] = sender
	p.mu.Unlock()
	return true, nil
}

func (p *PionPeerConnection) CreateDataChannel(label string) (DataChannel, error) {
	dc, err := p.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, fmt.Errorf("create data channel failed: %w", err)
	}
	wrapped := &PionDataChannel{dc: dc}
	p.mu.Lock()
	p.dataChan = wrapped
	p.mu.Unlock()
	return wrapped, nil
}

func (p *PionPeerConnection) GetPurposeForStreamID(streamID string) StreamPurpose {
	p.mu.Lock()
	resolve := p.resolve
	p.mu.Unlock()
	if resolve == nil {
		return PurposeUsermedia
	}
	return resolve(streamID)
}

func (p *PionPeerConnection) SetPurposeResolver(resolve func(streamID string) StreamPurpose) {
	p.mu.Lock()
	p.resolve = resolve
	p.mu.Unlock()
}

// NotifyStreamPurposeChanged re-derives the TrackType of every remote
// track from the current purpose resolver, per the stream metadata
// registry's "every remote track re-evaluates its type" rule.
func (p *PionPeerConnection) NotifyStreamPurposeChanged() {
	p.mu.Lock()
	resolve := p.resolve
	tracks := p.snapshotRemoteTracksLocked()
	p.mu.Unlock()
	if resolve == nil {
		return
	}

	for _, t := range tracks {
		pt, ok := t.(*PionTrack)
		if !ok || pt.remote == nil {
			continue
		}
		purpose := resolve(pt.streamID)

		pt.mu.Lock()
		switch {
		case pt.kind == webrtc.RTPCodecTypeAudio:
			pt.typ = TrackMicrophone
		case purpose == PurposeScreenshare:
			pt.typ = TrackScreenShare
		default:
			pt.typ = TrackCamera
		}
		pt.mu.Unlock()
	}
}

func (p *PionPeerConnection) RemoteTracks() []Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotRemoteTracksLocked()
}

func (p *PionPeerConnection) DataChannel() DataChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dataChan
}

func (p *PionPeerConnection) ICEGatheringState() ICEGatheringState {
	return mapPCICEGatheringState(p.pc.ICEGatheringState())
}

func (p *PionPeerConnection) LocalDescription() *SessionDescription {
	ld := p.pc.LocalDescription()
	if ld == nil {
		return nil
	}
	return &SessionDescription{Type: ld.Type.String(), SDP: ld.SDP}
}

func (p *PionPeerConnection) Dispose() error {
	if err := p.pc.Close(); err != nil {
		return fmt.Errorf("close peer connection failed: %w", err)
	}
	return nil
}
