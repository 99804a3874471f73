package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// FakeClock is a manually-advanced virtual clock used by call's test
// suite in place of RealTimeoutCreator, so trickle-batching, invite
// timeout and ringing-expiry delays can be driven deterministically.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Duration
	waiters []*fakeTimeoutHandle
}

func NewFakeClock() *FakeClock { return &FakeClock{} }

func (c *FakeClock) CreateTimeout(d time.Duration) TimeoutHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := &fakeTimeoutHandle{clock: c, deadline: c.now + d, elapsed: make(chan struct{})}
	c.waiters = append(c.waiters, h)
	return h
}

// Advance moves the virtual clock forward by d and fires every pending
// timeout whose deadline has been reached.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	due := c.now

	var fire []*fakeTimeoutHandle
	remaining := c.waiters[:0]
	for _, h := range c.waiters {
		if h.aborted {
			continue
		}
		if h.deadline <= due {
			fire = append(fire, h)
		} else {
			remaining = append(remaining, h)
		}
	}
	c.waiters = remaining
	c.mu.Unlock()

	for _, h := range fire {
		h.fire()
	}
}

type fakeTimeoutHandle struct {
	clock    *FakeClock
	deadline time.Duration
	elapsed  chan struct{}
	once     sync.Once
	aborted  bool
}

func (h *fakeTimeoutHandle) Elapsed() <-chan struct{} { return h.elapsed }

func (h *fakeTimeoutHandle) Abort() {
	h.clock.mu.Lock()
	h.aborted = true
	h.clock.mu.Unlock()
}

func (h *fakeTimeoutHandle) fire() {
	h.once.Do(func() { close(h.elapsed) })
}

// FakeTrack is an in-memory Track used by tests; it carries no real
// media, only the metadata the engine reasons about.
type FakeTrack struct {
	mu       sync.Mutex
	id       string
	typ      TrackType
	streamID string
	muted    bool
	purpose  StreamPurpose
	stopped  bool
}

func NewFakeTrack(id string, typ TrackType, streamID string) *FakeTrack {
	return &FakeTrack{id: id, typ: typ, streamID: streamID}
}

func (t *FakeTrack) ID() string          { return t.id }
func (t *FakeTrack) Type() TrackType     { return t.typ }
func (t *FakeTrack) StreamID() string    { return t.streamID }
func (t *FakeTrack) Muted() bool         { t.mu.Lock(); defer t.mu.Unlock(); return t.muted }
func (t *FakeTrack) SetMuted(muted bool) { t.mu.Lock(); t.muted = muted; t.mu.Unlock() }
func (t *FakeTrack) Stop()               { t.mu.Lock(); t.stopped = true; t.mu.Unlock() }
func (t *FakeTrack) Stopped() bool       { t.mu.Lock(); defer t.mu.Unlock(); return t.stopped }

// FakeLocalMedia is a LocalMedia backed by up to three FakeTracks.
type FakeLocalMedia struct {
	mic, cam, screen Track
	stopped          bool
}

func NewFakeLocalMedia(mic, cam, screen Track) *FakeLocalMedia {
	return &FakeLocalMedia{mic: mic, cam: cam, screen: screen}
}

func (m *FakeLocalMedia) Tracks() []Track {
	var out []Track
	for _, t := range []Track{m.mic, m.cam, m.screen} {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (m *FakeLocalMedia) MicrophoneTrack() Track  { return m.mic }
func (m *FakeLocalMedia) CameraTrack() Track      { return m.cam }
func (m *FakeLocalMedia) ScreenShareTrack() Track { return m.screen }

func (m *FakeLocalMedia) SDPMetadata() map[string]StreamMetadata {
	meta := map[string]StreamMetadata{}
	for _, t := range m.Tracks() {
		sm := meta[t.StreamID()]
		if t.Type() == TrackScreenShare {
			sm.Purpose = PurposeScreenshare
		} else {
			sm.Purpose = PurposeUsermedia
		}
		if t.Type() == TrackMicrophone {
			sm.AudioMuted = t.Muted()
		} else {
			sm.VideoMuted = sm.VideoMuted || t.Muted()
		}
		meta[t.StreamID()] = sm
	}
	return meta
}

func (m *FakeLocalMedia) Stop() {
	m.stopped = true
	for _, t := range m.Tracks() {
		t.Stop()
	}
}

type fakeDataChannel struct {
	label  string
	closed bool
}

func (d *fakeDataChannel) Label() string { return d.label }
func (d *fakeDataChannel) Close() error  { d.closed = true; return nil }

// OpenConn hands back one end of an in-memory pipe; the other end is
// drained and discarded so a caller that only writes won't block.
func (d *fakeDataChannel) OpenConn(ctx context.Context) (net.Conn, error) {
	local, remote := net.Pipe()
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := remote.Read(buf); err != nil {
				return
			}
		}
	}()
	return local, nil
}

// FakePeerConnection is a PeerConnection double: every SDP operation
// succeeds unless the corresponding Err field is set, and callbacks are
// fired by explicit test helpers (FireICECandidate, FireNegotiationNeeded,
// etc.) rather than by any real ICE/DTLS activity.
type FakePeerConnection struct {
	mu sync.Mutex

	handler      Handler
	localDesc    *SessionDescription
	remoteDesc   *SessionDescription
	iceGathering ICEGatheringState
	remoteTracks []Track
	dataChan     DataChannel
	resolve      func(string) StreamPurpose

	CreateOfferErr          error
	CreateAnswerErr         error
	SetLocalDescriptionErr  error
	SetRemoteDescriptionErr error
	AddICECandidateErr      error

	OfferCounter   int
	AnswerCounter  int
	AddedTracks    []Track
	RemovedTracks  []Track
	ReplacedTracks [][2]Track
	AddedCandidates []ICECandidateInit
	Closed         bool
}

func NewFakePeerConnection() *FakePeerConnection { return &FakePeerConnection{} }

func (f *FakePeerConnection) SetHandler(h Handler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *FakePeerConnection) CreateOffer(ctx context.Context) (SessionDescription, error) {
	if f.CreateOfferErr != nil {
		return SessionDescription{}, f.CreateOfferErr
	}
	f.mu.Lock()
	f.OfferCounter++
	n := f.OfferCounter
	f.mu.Unlock()
	return SessionDescription{Type: "offer", SDP: fmt.Sprintf("fake-offer-%d", n)}, nil
}

func (f *FakePeerConnection) CreateAnswer(ctx context.Context) (SessionDescription, error) {
	if f.CreateAnswerErr != nil {
		return SessionDescription{}, f.CreateAnswerErr
	}
	f.mu.Lock()
	f.AnswerCounter++
	n := f.AnswerCounter
	f.mu.Unlock()
	return SessionDescription{Type: "answer", SDP: fmt.Sprintf("fake-answer-%d", n)}, nil
}

func (f *FakePeerConnection) SetLocalDescription(ctx context.Context, desc *SessionDescription) error {
	if f.SetLocalDescriptionErr != nil {
		return f.SetLocalDescriptionErr
	}
	f.mu.Lock()
	f.localDesc = desc
	f.mu.Unlock()
	return nil
}

func (f *FakePeerConnection) SetRemoteDescription(ctx context.Context, desc SessionDescription) error {
	if f.SetRemoteDescriptionErr != nil {
		return f.SetRemoteDescriptionErr
	}
	f.mu.Lock()
	f.remoteDesc = &desc
	f.mu.Unlock()
	return nil
}

func (f *FakePeerConnection) AddICECandidate(ctx context.Context, c ICECandidateInit) error {
	if f.AddICECandidateErr != nil {
		return f.AddICECandidateErr
	}
	f.mu.Lock()
	f.AddedCandidates = append(f.AddedCandidates, c)
	f.mu.Unlock()
	return nil
}

func (f *FakePeerConnection) AddTrack(t Track) error {
	f.mu.Lock()
	f.AddedTracks = append(f.AddedTracks, t)
	f.mu.Unlock()
	return nil
}

func (f *FakePeerConnection) RemoveTrack(t Track) (bool, error) {
	f.mu.Lock()
	f.RemovedTracks = append(f.RemovedTracks, t)
	f.mu.Unlock()
	return true, nil
}

func (f *FakePeerConnection) ReplaceTrack(old, new Track) (bool, error) {
	f.mu.Lock()
	f.ReplacedTracks = append(f.ReplacedTracks, [2]Track{old, new})
	f.mu.Unlock()
	return true, nil
}

func (f *FakePeerConnection) CreateDataChannel(label string) (DataChannel, error) {
	dc := &fakeDataChannel{label: label}
	f.mu.Lock()
	f.dataChan = dc
	f.mu.Unlock()
	return dc, nil
}

func (f *FakePeerConnection) GetPurposeForStreamID(streamID string) StreamPurpose {
	f.mu.Lock()
	resolve := f.resolve
	f.mu.Unlock()
	if resolve == nil {
		return PurposeUsermedia
	}
	return resolve(streamID)
}

func (f *FakePeerConnection) SetPurposeResolver(resolve func(streamID string) StreamPurpose) {
	f.mu.Lock()
	f.resolve = resolve
	f.mu.Unlock()
}

func (f *FakePeerConnection) NotifyStreamPurposeChanged() {
	f.mu.Lock()
	tracks := append([]Track{}, f.remoteTracks...)
	resolve := f.resolve
	f.mu.Unlock()
	if resolve == nil {
		return
	}
	for _, t := range tracks {
		if ft, ok := t.(*FakeTrack); ok {
			ft.mu.Lock()
			ft.purpose = resolve(ft.streamID)
			ft.mu.Unlock()
		}
	}
}

func (f *FakePeerConnection) RemoteTracks() []Track {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Track{}, f.remoteTracks...)
}

func (f *FakePeerConnection) DataChannel() DataChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dataChan
}

func (f *FakePeerConnection) ICEGatheringState() ICEGatheringState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.iceGathering
}

func (f *FakePeerConnection) LocalDescription() *SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.localDesc
}

func (f *FakePeerConnection) Dispose() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Test helpers below simulate events a real PeerConnection would
// deliver asynchronously.

func (f *FakePeerConnection) SetRemoteTracks(tracks []Track) {
	f.mu.Lock()
	f.remoteTracks = tracks
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h.OnRemoteTracksChanged(tracks)
	}
}

func (f *FakePeerConnection) SetICEGatheringState(s ICEGatheringState) {
	f.mu.Lock()
	f.iceGathering = s
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h.OnICEGatheringStateChange(s)
	}
}

func (f *FakePeerConnection) FireICECandidate(c *ICECandidateInit) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h.OnICECandidate(c)
	}
}

func (f *FakePeerConnection) FireICEConnectionStateChange(s ICEConnectionState) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h.OnICEConnectionStateChange(s)
	}
}

func (f *FakePeerConnection) FireNegotiationNeeded() {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h.OnNegotiationNeeded()
	}
}
