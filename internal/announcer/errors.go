package announcer

import "errors"

var (
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidInterval  = errors.New("invalid interval")
	ErrInvalidPort      = errors.New("invalid port")
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrAlreadyRunning   = errors.New("Announce loop already started")
	ErrNotRunning       = errors.New("Announce loop not started")
	ErrMalformedBeacon  = errors.New("malformed beacon")
)
