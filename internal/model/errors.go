package model

import "errors"

// Domain errors. Every service operation returns one of these wrapped with
// context; callers branch with errors.Is and translate at the HTTP boundary.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidTransition      = errors.New("invalid state transition")
	ErrDependencyNotSatisfied = errors.New("dependency not satisfied")
	ErrInvalidRange           = errors.New("value out of range")
	ErrIntegrity              = errors.New("data integrity violation")
)
