package domain

import "errors"

var (
	// ErrInvalidInput marks malformed input such as unparsable dates or missing config keys.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInsufficientData marks expected steady-state gaps, e.g. nothing to train on.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrContractViolation marks a feature name or order mismatch between model and input.
	ErrContractViolation = errors.New("feature contract violation")
	// ErrArtifactMissing marks an absent model or feature-list blob.
	ErrArtifactMissing = errors.New("model artifact missing")
)
