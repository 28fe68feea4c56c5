package domain

import "errors"

var (
	ErrDestinationNotFound   = errors.New("destination not found")
	ErrDestinationExists     = errors.New("destination already exists")
	ErrNoDestinationsAllowed = errors.New("no destinations allowed for this plan")
	ErrNoEnabledDestinations = errors.New("at least one enabled destination is required")
	ErrMissingStreamKey      = errors.New("destination has no stream key")
	ErrMissingServerURL      = errors.New("custom destination has no server URL")
	ErrConnectionFailed      = errors.New("connection failed")
	ErrNotInitialized        = errors.New("pipeline not initialized")
	ErrAlreadyLive           = errors.New("a session is already active")
	ErrNoActiveSession       = errors.New("no active session")
	ErrDestinationLocked     = errors.New("destination cannot be edited while a session is active")
	ErrUserNotFound          = errors.New("user not found")
)
