package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Configuration errors: surfaced to users as "service unavailable".
	ErrConfiguration    = errors.New("payment configuration error")
	ErrPaymentsDisabled = errors.New("payments are currently disabled")
	ErrPriceUnavailable = errors.New("service price is not available")

	// Gateway failures, already stripped of provider detail.
	ErrPaymentInitFailed  = errors.New("payment initialization failed")
	ErrVerificationFailed = errors.New("payment verification failed")

	// Business rules.
	ErrInvalidServiceType  = errors.New("invalid service type")
	ErrAlreadyHasAccess    = errors.New("user already has access to this service")
	ErrTransactionNotOwned = errors.New("transaction does not belong to user")
	ErrPaymentNotCompleted = errors.New("payment has not been completed")
	ErrNoAccess            = errors.New("no usable access grant for this service")
	ErrWeakPassword        = errors.New("password must be at least 8 characters")
)
