package domain

import "github.com/pkg/errors"

// Configuration errors. These indicate a programming mistake and are fatal.
var (
	ErrMissingFirstPhase = errors.New("first phase is required")
	ErrHandlerNotFound   = errors.New("no handler registered for phase")
	ErrUnreachablePhase  = errors.New("phase is not reachable from the initial phase")
	ErrAlreadyStarted    = errors.New("phase machine already started")
)

// Relay errors
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomFull            = errors.New("room is full")
	ErrRoomClosed          = errors.New("room is closed")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrEmptyDelta          = errors.New("delta has no changes")
	ErrSessionClosed       = errors.New("session closed")
)
