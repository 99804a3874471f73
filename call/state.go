package call

// State is a PeerCall's position in its lifecycle. Ended is absorbing:
// no transition ever leaves it.
type State int

const (
	Fledgling State = iota
	WaitLocalMedia
	CreateOffer
	CreateAnswer
	InviteSent
	Ringing
	Connecting
	Connected
	Ended
)

func (s State) String() string {
	switch s {
	case Fledgling:
		return "fledgling"
	case WaitLocalMedia:
		return "wait_local_media"
	case CreateOffer:
		return "create_offer"
	case CreateAnswer:
		return "create_answer"
	case InviteSent:
		return "invite_sent"
	case Ringing:
		return "ringing"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Direction records whether a PeerCall was placed locally or received
// from the remote party. It is set exactly once, on the first inbound
// Invite or on a local call().
type Direction int

const (
	DirectionUnset Direction = iota
	Inbound
	Outbound
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return "unset"
	}
}

// Party identifies who caused a call to end or who raised a Hangup.
type Party int

const (
	PartyUnset Party = iota
	Local
	Remote
)

func (p Party) String() string {
	switch p {
	case Local:
		return "local"
	case Remote:
		return "remote"
	default:
		return "unset"
	}
}

// UpdateParams accompanies every Host.EmitUpdate call, carrying enough
// of the transition to let the host update its view model without
// reaching back into PeerCall internals.
type UpdateParams struct {
	State        State
	HangupParty  Party
	HangupReason ErrorCode
}
