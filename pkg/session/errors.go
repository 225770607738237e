package session

import "errors"

var (
	// ErrSessionNotActive is returned for any transition on a session in a terminal status.
	ErrSessionNotActive = errors.New("session is not active")
	// ErrAlreadyStarted is returned when Start is applied to a started session.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrNotStarted is returned when a turn event is applied before Start.
	ErrNotStarted = errors.New("session not started")
	// ErrNoEntryNode is returned when Start has no entry node to move to.
	ErrNoEntryNode = errors.New("no entry node")
	// ErrUnknownEvent is returned for event values Reduce does not handle.
	ErrUnknownEvent = errors.New("unknown session event")
)

// TransitionError reports a rejected event.
type TransitionError struct {
	SessionID string
	Event     string
	Err       error
}

func (e *TransitionError) Error() string {
	return "session " + e.SessionID + ": cannot apply " + e.Event + ": " + e.Err.Error()
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// IsNotActive reports whether err was caused by a terminal session.
func IsNotActive(err error) bool {
	return errors.Is(err, ErrSessionNotActive)
}
