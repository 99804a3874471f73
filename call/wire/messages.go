// Package wire defines the signalling message codec: the tagged union
// of wire messages a PeerCall exchanges with its opponent, and the
// byte-level Messenger abstraction those messages travel over. Envelope
// delivery, end-to-end encryption and routing are external concerns
// (the spec's out-of-scope room/event-bus layer); this package only
// knows how to turn a Message into bytes and back.
package wire

import "context"

// Kind tags which of the four message shapes an envelope carries.
type Kind string

const (
	KindInvite     Kind = "m.call.invite"
	KindAnswer     Kind = "m.call.answer"
	KindCandidates Kind = "m.call.candidates"
	KindHangup     Kind = "m.call.hangup"
)

// Version is the only signalling protocol version this engine speaks.
const Version = 1

// SessionDescription mirrors an SDP offer/answer on the wire.
type SessionDescription struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// Candidate mirrors a single trickled ICE candidate on the wire. A
// candidate with both SDPMid and SDPMLineIndex nil is a legal
// end-of-candidates marker.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// StreamPurpose classifies a remote stream for track-type resolution.
type StreamPurpose string

const (
	PurposeUsermedia   StreamPurpose = "m.usermedia"
	PurposeScreenshare StreamPurpose = "m.screenshare"
)

// StreamMetadata is the purpose/mute state advertised for one stream id.
type StreamMetadata struct {
	Purpose    StreamPurpose `json:"purpose"`
	AudioMuted bool          `json:"audio_muted"`
	VideoMuted bool          `json:"video_muted"`
}

// InviteContent is the payload of an m.call.invite message.
type InviteContent struct {
	Offer          SessionDescription        `json:"offer"`
	StreamMetadata map[string]StreamMetadata `json:"sdp_stream_metadata,omitempty"`
	Version        int                       `json:"version"`
	LifetimeMs     int64                     `json:"lifetime,omitempty"`
}

// AnswerContent is the payload of an m.call.answer message.
type AnswerContent struct {
	Answer         SessionDescription        `json:"answer"`
	StreamMetadata map[string]StreamMetadata `json:"sdp_stream_metadata,omitempty"`
	Version        int                       `json:"version"`
}

// CandidatesContent is the payload of an m.call.candidates message.
type CandidatesContent struct {
	Candidates []Candidate `json:"candidates"`
}

// HangupContent is the payload of an m.call.hangup message.
type HangupContent struct {
	Reason string `json:"reason,omitempty"`
}

// Message is the tagged union of everything a PeerCall can send or
// receive. Exactly one of the content fields is set, chosen by Kind.
type Message struct {
	Kind       Kind
	CallID     string
	PartyID    string
	Invite     *InviteContent
	Answer     *AnswerContent
	Candidates *CandidatesContent
	Hangup     *HangupContent
}

// Messenger is the byte-level transport a Message is encoded onto,
// mirroring the teacher's Messenger interface in messenger.go: a small
// context-first Read/Write/Close capability the codec layers on top of.
type Messenger interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, b []byte) error
	Close() error
}
