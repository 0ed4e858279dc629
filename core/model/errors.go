package model

import "errors"

// Error taxonomy shared by the planning core. Components wrap these sentinels
// with context so callers can branch on errors.Is.
var (
	// ErrConfig marks invalid physical or tuning parameters. Fatal, never
	// retried.
	ErrConfig = errors.New("invalid configuration")

	// ErrMissingInput marks an incomplete forecast: a series shorter than
	// the horizon or an absent price curve. The cycle fails and the previous
	// schedule stays in effect.
	ErrMissingInput = errors.New("missing input")

	// ErrInvariant marks an internal impossibility, such as a reachable
	// state with no feasible action. It signals a bug, not bad input.
	ErrInvariant = errors.New("invariant violation")

	// ErrSensorUnavailable marks absent live telemetry with no last-known
	// value to fall back on.
	ErrSensorUnavailable = errors.New("sensor unavailable")
)
