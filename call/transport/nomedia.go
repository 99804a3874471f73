package transport

// NoMedia is a LocalMedia handle carrying no tracks at all, for a call
// that only needs the data channel (or a peer that simply wants to
// listen/observe signalling without publishing any media). Local media
// capture is explicitly out of scope for this engine (§1 Non-goals);
// callers that do have real capture devices supply their own
// LocalMedia implementation instead.
type NoMedia struct{}

func (NoMedia) Tracks() []Track                        { return nil }
func (NoMedia) MicrophoneTrack() Track                  { return nil }
func (NoMedia) CameraTrack() Track                      { return nil }
func (NoMedia) ScreenShareTrack() Track                 { return nil }
func (NoMedia) SDPMetadata() map[string]StreamMetadata { return nil }
func (NoMedia) Stop()                                   {}
