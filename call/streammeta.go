package call

import (
	"github.com/webrtc-peercall/peercall/call/transport"
	"github.com/webrtc-peercall/peercall/call/wire"
)

// streamMetadataRegistry maps a remote stream id to the purpose/mute
// state exchanged in-band for it. The merge is one level deep (stream
// id -> fields), later values overwriting earlier ones; deeper nesting
// is unnecessary per the metadata's own shape.
type streamMetadataRegistry struct {
	byStreamID map[string]transport.StreamMetadata
}

func newStreamMetadataRegistry() *streamMetadataRegistry {
	return &streamMetadataRegistry{byStreamID: make(map[string]transport.StreamMetadata)}
}

// Merge folds incoming wire-level metadata into the registry. A
// missing update (nil map) is a no-op.
func (r *streamMetadataRegistry) Merge(update map[string]wire.StreamMetadata) {
	for streamID, m := range update {
		r.byStreamID[streamID] = transport.StreamMetadata{
			Purpose:    purposeFromWire(m.Purpose),
			AudioMuted: m.AudioMuted,
			VideoMuted: m.VideoMuted,
		}
	}
}

func purposeFromWire(p wire.StreamPurpose) transport.StreamPurpose {
	if p == wire.PurposeScreenshare {
		return transport.PurposeScreenshare
	}
	return transport.PurposeUsermedia
}

// PurposeForStreamID resolves the purpose of a stream id, defaulting
// to Usermedia when nothing has been recorded for it (invariant 7).
func (r *streamMetadataRegistry) PurposeForStreamID(streamID string) transport.StreamPurpose {
	if m, ok := r.byStreamID[streamID]; ok {
		return m.Purpose
	}
	return transport.PurposeUsermedia
}

// ReapplyMuteState walks every remote track and reapplies its mute
// flag from the registry: Microphone tracks take audio_muted, every
// other track type takes video_muted. Called after every merge, once
// the peer connection has re-derived each track's type.
func (r *streamMetadataRegistry) ReapplyMuteState(tracks []transport.Track) {
	for _, t := range tracks {
		meta, ok := r.byStreamID[t.StreamID()]
		if !ok {
			continue
		}
		if t.Type() == transport.TrackMicrophone {
			t.SetMuted(meta.AudioMuted)
		} else {
			t.SetMuted(meta.VideoMuted)
		}
	}
}
