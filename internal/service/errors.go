package service

import (
	"errors"

	"github.com/Skotchmaster/account_service/pkg/tokens"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAlreadyLoggedIn     = errors.New("user is already logged in")
	ErrRateLimitExceeded   = errors.New("too many token requests")
	ErrValidation          = errors.New("validation failed")
	ErrEmailDelivery       = errors.New("email delivery is not available")
	ErrPersistenceConflict = errors.New("persistence conflict")
	ErrCodeExpired         = errors.New("verification code expired")
	ErrCodeInvalid         = errors.New("invalid verification code")

	ErrTokenExpired = tokens.ErrTokenExpired
	ErrTokenInvalid = tokens.ErrTokenInvalid
)
