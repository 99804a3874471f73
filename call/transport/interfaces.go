// Package transport declares the capabilities a call.PeerCall consumes
// from the outside world: the media peer connection, local media
// handles, tracks and cancellable timeouts. None of these describe how
// ICE/DTLS/SRTP work internally — that is the concern of whatever
// implementation is wired in (see pion.go for the production adapter
// and fake.go for the one used by call's tests).
package transport

import (
	"context"
	"net"
	"time"
)

// FallbackICEServer is the default STUN server used when the host does
// not supply any ICE servers of its own.
const FallbackICEServer = "stun:turn.matrix.org"

// StreamPurpose classifies a remote media stream for track-type
// resolution, per the stream metadata registry.
type StreamPurpose int

const (
	PurposeUsermedia StreamPurpose = iota
	PurposeScreenshare
)

func (p StreamPurpose) String() string {
	if p == PurposeScreenshare {
		return "screenshare"
	}
	return "usermedia"
}

// TrackType is the role a track plays within a LocalMedia handle or a
// remote stream.
type TrackType int

const (
	TrackMicrophone TrackType = iota
	TrackCamera
	TrackScreenShare
)

// SessionDescription mirrors an SDP offer/answer without pulling pion
// types into the signalling engine's public surface.
type SessionDescription struct {
	Type string // "offer" or "answer"
	SDP  string
}

// ICECandidateInit mirrors a single trickled ICE candidate. A candidate
// with both SDPMid and SDPMLineIndex unset is an end-of-candidates
// marker and is legal — callers must not reject it.
type ICECandidateInit struct {
	Candidate     string
	SDPMid        *string
	SDPMLineIndex *uint16
}

// ICEGatheringState mirrors the peer connection's ICE gathering state
// machine, relevant to the negotiation serializer's 200ms wait rule.
type ICEGatheringState int

const (
	ICEGatheringStateNew ICEGatheringState = iota
	ICEGatheringStateGathering
	ICEGatheringStateComplete
)

// ICEConnectionState mirrors the peer connection's ICE connection state
// machine; Connected/Completed drive Connecting -> Connected, Failed
// drives termination with ErrIceFailed.
type ICEConnectionState int

const (
	ICEConnectionStateNew ICEConnectionState = iota
	ICEConnectionStateChecking
	ICEConnectionStateConnected
	ICEConnectionStateCompleted
	ICEConnectionStateFailed
	ICEConnectionStateDisconnected
	ICEConnectionStateClosed
)

// Track is a single local or remote media track.
type Track interface {
	ID() string
	Type() TrackType
	StreamID() string
	Muted() bool
	SetMuted(muted bool)
	Stop()
}

// DataChannel is the surface the engine and its callers need from a
// peer connection's data channel: enough for the engine to know it
// exists and close it on teardown, and enough for whatever application
// sits on top of a connected call to open it as a plain net.Conn.
type DataChannel interface {
	Label() string
	Close() error

	// OpenConn waits for the channel to finish opening (or to fail or
	// close first) and returns it detached and wrapped as a net.Conn.
	OpenConn(ctx context.Context) (net.Conn, error)
}

// StreamMetadata is the purpose/mute state exchanged in-band for a
// remote stream id, mirroring the wire-level sdp_stream_metadata map.
type StreamMetadata struct {
	Purpose    StreamPurpose
	AudioMuted bool
	VideoMuted bool
}

// LocalMedia owns a set of local tracks (any subset of microphone,
// camera, screen-share) and knows how to describe them for an outbound
// Invite/Answer's stream metadata.
type LocalMedia interface {
	Tracks() []Track
	MicrophoneTrack() Track
	CameraTrack() Track
	ScreenShareTrack() Track
	// SDPMetadata returns the outbound stream-metadata map this media
	// handle should advertise, keyed by the stream id of its tracks.
	SDPMetadata() map[string]StreamMetadata
	// Stop releases every track owned by this handle. Called once a
	// PeerCall no longer needs this handle (superseded by setMedia, or
	// the call ended).
	Stop()
}

// Handler receives the asynchronous callbacks a PeerConnection delivers.
// A PeerCall implements Handler and registers itself with its
// PeerConnection at construction time.
type Handler interface {
	OnICEConnectionStateChange(state ICEConnectionState)
	OnICECandidate(c *ICECandidateInit)
	OnICEGatheringStateChange(state ICEGatheringState)
	OnRemoteTracksChanged(tracks []Track)
	OnDataChannelChanged(dc DataChannel)
	OnNegotiationNeeded()
}

// PeerConnection is the abstract media transport: ICE/DTLS/SRTP are
// entirely its concern. The engine only ever calls these methods and
// reacts to the callbacks delivered through Handler.
type PeerConnection interface {
	SetHandler(h Handler)

	CreateOffer(ctx context.Context) (SessionDescription, error)
	CreateAnswer(ctx context.Context) (SessionDescription, error)
	SetLocalDescription(ctx context.Context, desc *SessionDescription) error
	SetRemoteDescription(ctx context.Context, desc SessionDescription) error

	AddICECandidate(ctx context.Context, c ICECandidateInit) error

	AddTrack(t Track) error
	RemoveTrack(t Track) (bool, error)
	ReplaceTrack(old, new Track) (bool, error)

	CreateDataChannel(label string) (DataChannel, error)

	// GetPurposeForStreamID resolves the purpose of a remote stream id
	// using whatever stream-metadata map is currently in effect; the
	// engine calls NotifyStreamPurposeChanged after updating that map
	// so the PeerConnection can re-derive every remote track's type.
	GetPurposeForStreamID(streamID string) StreamPurpose
	SetPurposeResolver(resolve func(streamID string) StreamPurpose)
	NotifyStreamPurposeChanged()

	RemoteTracks() []Track
	DataChannel() DataChannel
	ICEGatheringState() ICEGatheringState
	LocalDescription() *SessionDescription

	Dispose() error
}

// TimeoutHandle is a single cancellable delay.
type TimeoutHandle interface {
	// Elapsed returns a channel closed when the delay has elapsed. It
	// is never closed if Abort is called first.
	Elapsed() <-chan struct{}
	Abort()
}

// TimeoutCreator is the seam that lets tests replace every delay in the
// engine (trickle batching, invite/ringing expiry, candidate gathering
// grace) with a virtual, manually-advanced clock.
type TimeoutCreator interface {
	CreateTimeout(d time.Duration) TimeoutHandle
}
