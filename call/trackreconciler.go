package call

import (
	"fmt"

	"github.com/webrtc-peercall/peercall/call/transport"
)

// reconcileTracks diffs the three track roles between an old and a new
// LocalMedia handle and applies exactly one of add/remove/replace per
// role, per the track reconciler's table. old or new (or both) may be
// nil, in which case every track they would have contributed counts
// as absent.
func reconcileTracks(pc transport.PeerConnection, old, new transport.LocalMedia) error {
	roles := []struct {
		name string
		old  func(transport.LocalMedia) transport.Track
	}{
		{"microphone", func(m transport.LocalMedia) transport.Track { return m.MicrophoneTrack() }},
		{"camera", func(m transport.LocalMedia) transport.Track { return m.CameraTrack() }},
		{"screen_share", func(m transport.LocalMedia) transport.Track { return m.ScreenShareTrack() }},
	}

	for _, role := range roles {
		var oldTrack, newTrack transport.Track
		if old != nil {
			oldTrack = role.old(old)
		}
		if new != nil {
			newTrack = role.old(new)
		}

		switch {
		case oldTrack != nil && newTrack != nil:
			if _, err := pc.ReplaceTrack(oldTrack, newTrack); err != nil {
				return fmt.Errorf("replace %s track failed: %w", role.name, err)
			}
		case oldTrack != nil && newTrack == nil:
			if _, err := pc.RemoveTrack(oldTrack); err != nil {
				return fmt.Errorf("remove %s track failed: %w", role.name, err)
			}
		case oldTrack == nil && newTrack != nil:
			if err := pc.AddTrack(newTrack); err != nil {
				return fmt.Errorf("add %s track failed: %w", role.name, err)
			}
		}
	}
	return nil
}
