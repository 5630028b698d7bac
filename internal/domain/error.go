package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Code redemption errors
	ErrCodeNotFound        = errors.New("premium code not found")
	ErrCodeInactive        = errors.New("premium code is deactivated")
	ErrCodeExpired         = errors.New("premium code has expired")
	ErrCodeAlreadyRedeemed = errors.New("premium code already redeemed by this user")
	ErrCodeClaimed         = errors.New("premium code already claimed by another user")
	ErrDuplicateCode       = errors.New("generated code token collides with an existing one")

	// Admission errors
	ErrDeviceLimitReached = errors.New("device limit reached for user")
	ErrNotPremium         = errors.New("user has no premium entitlement")

	// Infrastructure errors
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context for database operation")
	ErrLockNotAcquired    = errors.New("could not acquire lock")
)
