package ports

import "errors"

var (
	ErrBusy      = errors.New("a simulation is already running")
	ErrNoHistory = errors.New("report history is not configured")
)
