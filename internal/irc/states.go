package irc

import (
	"fmt"
	"time"
)

// State is the session's position in the connect/register/join lifecycle.
// Transitions happen only inside the session loop.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateRegistering
	StateJoining
	StateJoined
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRegistering:
		return "registering"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name into JSON snapshots.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText accepts the names MarshalText produces.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateDisconnected; st <= StateBackoff; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("irc: unknown state %q", b)
}

// ErrorKind classifies why a connection attempt or an established session
// failed. Registration rejections get their own kind because they usually
// need operator action (e.g. picking a different nickname) rather than
// waiting out a network problem.
type ErrorKind string

const (
	KindTransport    ErrorKind = "transport"
	KindProtocol     ErrorKind = "protocol"
	KindRegistration ErrorKind = "registration"
)

// SessionError wraps a connection failure with its classification.
type SessionError struct {
	Kind ErrorKind
	Err  error
}

func (e *SessionError) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *SessionError) Unwrap() error { return e.Err }

// Snapshot is a read-only view of the session for probes and the status
// endpoint. The session loop replaces it atomically on every change, so
// readers never contend with socket I/O.
type Snapshot struct {
	State         State     `json:"state"`
	Since         time.Time `json:"since"`
	Topic         string    `json:"topic,omitempty"`
	TopicSetAt    time.Time `json:"topic_set_at,omitempty"`
	Connects      uint64    `json:"connects"`
	LastErrorKind ErrorKind `json:"last_error_kind,omitempty"`
	LastError     string    `json:"last_error,omitempty"`

	// Cooldown view, mirrored from the gate so probes never touch it.
	LastNotifyAt  time.Time `json:"last_notify_at,omitempty"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
}

// Joined reports whether the session currently sits in the monitored channel.
func (s Snapshot) Joined() bool { return s.State == StateJoined }

// StateChange is the payload of "session.state" bus events.
type StateChange struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	Kind ErrorKind `json:"kind,omitempty"`
	At   time.Time `json:"at"`
}

// TopicChange is the payload of "session.topic" bus events.
type TopicChange struct {
	Channel string    `json:"channel"`
	Topic   string    `json:"topic"`
	Matched bool      `json:"matched"`
	At      time.Time `json:"at"`
}
