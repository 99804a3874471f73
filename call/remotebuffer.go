package call

import "github.com/webrtc-peercall/peercall/call/wire"

// remoteCandidateBuffer holds inbound candidates received before an
// opponent party id has been committed. It exists only while
// opponentPartyId is unset (invariant 3); once a party commits, its
// buffered candidates are drained in arrival order and everything else
// is discarded.
type remoteCandidateBuffer struct {
	byParty map[string][]wire.Candidate
}

func newRemoteCandidateBuffer() *remoteCandidateBuffer {
	return &remoteCandidateBuffer{byParty: make(map[string][]wire.Candidate)}
}

// Add files a batch of candidates under partyID, preserving arrival
// order relative to any already buffered for that party.
func (b *remoteCandidateBuffer) Add(partyID string, candidates []wire.Candidate) {
	b.byParty[partyID] = append(b.byParty[partyID], candidates...)
}

// Drain returns the candidates buffered for partyID, in arrival order.
// Candidates filed under any other party id are discarded. The buffer
// itself is left empty afterward; callers destroy it by dropping their
// reference.
func (b *remoteCandidateBuffer) Drain(partyID string) []wire.Candidate {
	drained := b.byParty[partyID]
	b.byParty = nil
	return drained
}
