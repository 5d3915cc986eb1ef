package bridge

import "errors"

var (
	// ErrNotAProject is returned when a command targets a directory that is not a godspeed project
	ErrNotAProject = errors.New("not a godspeed project")

	// ErrInvalidProjectName is returned when a navigation target would leave the session directory
	ErrInvalidProjectName = errors.New("invalid project name")

	// ErrUnknownCommand is returned for commands the dispatcher does not know
	ErrUnknownCommand = errors.New("unknown command")

	// ErrCommandRunning is returned when a foreground command is already running in the session
	ErrCommandRunning = errors.New("a command is already running")

	// ErrMalformedPayload is returned when an inbound event's data cannot be decoded
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrDirChanged is returned when a command moved the session while a navigation was in flight
	ErrDirChanged = errors.New("session directory changed")

	// ErrSessionClosed is returned for operations on a disconnected session
	ErrSessionClosed = errors.New("session closed")
)
