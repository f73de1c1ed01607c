package domain

import "errors"

var (
	// ErrNoConfiguration is returned when the configuration slot is empty.
	ErrNoConfiguration = errors.New("no configuration found")
	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrArtifactNotFound is returned when an export handle is unknown.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrVersionConflict is returned when a session was saved by someone else
	// since it was loaded.
	ErrVersionConflict = errors.New("session version conflict")
)
