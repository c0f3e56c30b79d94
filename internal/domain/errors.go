package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrLockHeld          = errors.New("lock already held")
	ErrInvalidSignal     = errors.New("invalid signal")
	ErrDuplicateSignal   = errors.New("duplicate signal")
	ErrCooldownActive    = errors.New("ticker in cooldown")
	ErrEntryDisabled     = errors.New("automated entry disabled")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNoRiskConfig      = errors.New("no risk configuration")
	ErrPriceUnavailable  = errors.New("price unavailable")
	ErrExposureLimit     = errors.New("exposure limit reached")
)
