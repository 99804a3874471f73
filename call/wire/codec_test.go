package wire

import "testing"

func TestEncodeDecodeInvite(t *testing.T) {
	msg := Message{
		Kind:    KindInvite,
		CallID:  "call1",
		PartyID: "party1",
		Invite: &InviteContent{
			Offer:   SessionDescription{SDP: "sdp-data", Type: "offer"},
			Version: Version,
			StreamMetadata: map[string]StreamMetadata{
				"stream1": {Purpose: PurposeUsermedia, AudioMuted: true},
			},
		},
	}

	b, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := Decode(b)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Kind != KindInvite || decoded.CallID != "call1" || decoded.PartyID != "party1" {
		t.Fatalf("envelope fields did not round-trip: %+v", decoded)
	}
	if decoded.Invite == nil || decoded.Invite.Offer.SDP != "sdp-data" {
		t.Fatalf("invite content did not round-trip: %+v", decoded.Invite)
	}
	if decoded.Invite.StreamMetadata["stream1"].AudioMuted != true {
		t.Fatalf("stream metadata did not round-trip")
	}
}

func TestDecodeUnknownKindLeavesContentNil(t *testing.T) {
	decoded, err := Decode([]byte(`{"type":"m.call.unknown","content":{}}`))
	if err != nil {
		t.Fatalf("decode of unknown kind should not error: %v", err)
	}
	if decoded.Invite != nil || decoded.Answer != nil || decoded.Candidates != nil || decoded.Hangup != nil {
		t.Fatalf("unknown kind should leave every content field nil: %+v", decoded)
	}
}

func TestEncodeCandidatesPreservesOrder(t *testing.T) {
	msg := Message{
		Kind: KindCandidates,
		Candidates: &CandidatesContent{
			Candidates: []Candidate{
				{Candidate: "first"},
				{Candidate: "second"},
				{Candidate: "third"},
			},
		},
	}
	b, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := Decode(b)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded.Candidates.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(decoded.Candidates.Candidates))
	}
	for i, want := range []string{"first", "second", "third"} {
		if decoded.Candidates.Candidates[i].Candidate != want {
			t.Fatalf("candidate order not preserved: got %q at index %d, want %q", decoded.Candidates.Candidates[i].Candidate, i, want)
		}
	}
}
