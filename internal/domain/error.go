package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Payment flow
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrNonPositiveAmount   = errors.New("amount must be greater than zero")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrAlreadySettled      = errors.New("payment check already settled")
	ErrQRGeneration        = errors.New("qr generation failed")

	// Infrastructure
	ErrLockHeld       = errors.New("lock is held by another worker")
	ErrProviderStatus = errors.New("payment provider returned an error")
	ErrConflict       = errors.New("another bot instance is polling updates")
)
