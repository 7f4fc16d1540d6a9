package config

import "errors"

// ErrInvalidValue indicates a configuration field failed validation.
var ErrInvalidValue = errors.New("invalid configuration value")
