package entity

import "errors"

var (
	// ErrContractViolation marks a broken core invariant, such as an unknown
	// severity tag. It stops evaluation of the affected invoice.
	ErrContractViolation = errors.New("contract violation")
)
