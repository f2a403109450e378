package provisioning

// State is a handshake state. Provisioner and device share the terminal
// states; the intermediate ones are role specific.
type State int

const (
	StateIdle             State = iota
	StateInviteSent             // Provisioner: sent Invite
	StateStartAndKeySent        // Provisioner: sent Start and PublicKey
	StateConfirmationSent       // Both: sent Confirmation
	StateRandomSent             // Both: sent Random
	StateVerified               // Provisioner: peer confirmation checked
	StateDataSent               // Provisioner: sent Data
	StateCapabilitiesSent       // Device: sent Capabilities
	StateWaitingPublicKey       // Device: received Start
	StatePublicKeySent          // Device: sent PublicKey
	StateComplete               // Credential delivered
	StateFailed                 // Peer sent Failed
	StateAborted                // Local abort
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateInviteSent:
		return "InviteSent"
	case StateStartAndKeySent:
		return "StartAndKeySent"
	case StateConfirmationSent:
		return "ConfirmationSent"
	case StateRandomSent:
		return "RandomSent"
	case StateVerified:
		return "Verified"
	case StateDataSent:
		return "DataSent"
	case StateCapabilitiesSent:
		return "CapabilitiesSent"
	case StateWaitingPublicKey:
		return "WaitingPublicKey"
	case StatePublicKeySent:
		return "PublicKeySent"
	case StateComplete:
		return "Complete"
	case StateFailed:
		return "Failed"
	case StateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateAborted
}
