package wire

import (
	"context"
	"encoding/json"
	"fmt"
)

// envelope is the on-the-wire shape: a {type, call_id, party_id, content}
// tuple, the same {Type, Data} split the teacher uses in
// signal-messenger.go's SignalMessengerMessage, generalized from a
// single string payload to a typed content map keyed by Kind.
type envelope struct {
	Type    Kind            `json:"type"`
	CallID  string          `json:"call_id,omitempty"`
	PartyID string          `json:"party_id,omitempty"`
	Content json.RawMessage `json:"content"`
}

// Encode serializes a Message into its wire bytes.
func Encode(msg Message) ([]byte, error) {
	var content any
	switch msg.Kind {
	case KindInvite:
		content = msg.Invite
	case KindAnswer:
		content = msg.Answer
	case KindCandidates:
		content = msg.Candidates
	case KindHangup:
		content = msg.Hangup
	default:
		return nil, fmt.Errorf("encode signalling message failed: unknown kind %q", msg.Kind)
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("encode signalling message content failed: %w", err)
	}

	b, err := json.Marshal(envelope{
		Type:    msg.Kind,
		CallID:  msg.CallID,
		PartyID: msg.PartyID,
		Content: raw,
	})
	if err != nil {
		return nil, fmt.Errorf("encode signalling envelope failed: %w", err)
	}
	return b, nil
}

// Decode parses wire bytes into a Message. Unknown kinds are returned
// with Kind set and every content field nil; callers that only dispatch
// on known kinds (per the spec's "unknown kinds are ignored" rule) can
// treat that as a no-op.
func Decode(b []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Message{}, fmt.Errorf("decode signalling envelope failed: %w", err)
	}

	msg := Message{Kind: env.Type, CallID: env.CallID, PartyID: env.PartyID}
	switch env.Type {
	case KindInvite:
		msg.Invite = &InviteContent{}
		if err := json.Unmarshal(env.Content, msg.Invite); err != nil {
			return Message{}, fmt.Errorf("decode invite content failed: %w", err)
		}
	case KindAnswer:
		msg.Answer = &AnswerContent{}
		if err := json.Unmarshal(env.Content, msg.Answer); err != nil {
			return Message{}, fmt.Errorf("decode answer content failed: %w", err)
		}
	case KindCandidates:
		msg.Candidates = &CandidatesContent{}
		if err := json.Unmarshal(env.Content, msg.Candidates); err != nil {
			return Message{}, fmt.Errorf("decode candidates content failed: %w", err)
		}
	case KindHangup:
		msg.Hangup = &HangupContent{}
		if err := json.Unmarshal(env.Content, msg.Hangup); err != nil {
			return Message{}, fmt.Errorf("decode hangup content failed: %w", err)
		}
	}
	return msg, nil
}

// Send encodes msg and writes it to m.
func Send(ctx context.Context, m Messenger, msg Message) error {
	b, err := Encode(msg)
	if err != nil {
		return err
	}
	if err := m.Write(ctx, b); err != nil {
		return fmt.Errorf("write signalling message failed: %w", err)
	}
	return nil
}

// Receive reads one frame from m and decodes it.
func Receive(ctx context.Context, m Messenger) (Message, error) {
	b, err := m.Read(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("read signalling message failed: %w", err)
	}
	return Decode(b)
}
