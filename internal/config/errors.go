package config

import "errors"

var (
	// ErrParse is returned when a configuration document cannot be decoded.
	ErrParse = errors.New("config: parse error")

	// ErrValidation wraps every schema violation reported by Validate.
	ErrValidation = errors.New("config: validation failed")

	// ErrInvalidPatch is returned when an update patch holds unsupported values.
	ErrInvalidPatch = errors.New("config: invalid patch")
)
