package session

import "errors"

var (
	// ErrSessionNotFound indicates the session is not in the open-session view.
	ErrSessionNotFound = errors.New("session not found")
)
