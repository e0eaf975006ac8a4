package model

import (
	"errors"
	"fmt"
)

// =====================================================
// SENTINEL ERRORS
// =====================================================
var (
	ErrUnknownDuration    = errors.New("unknown license duration")
	ErrNoAvailableKey     = errors.New("no available license key")
	ErrKeyNotFound        = errors.New("license key not found")
	ErrDuplicateOrderCode = errors.New("order code already exists")
	ErrUpstreamFailure    = errors.New("license inventory API failure")
)

// =====================================================
// DOMAIN ERROR TYPE
// =====================================================
type LicenseError struct {
	Code    string
	Message string
	Err     error
}

func (e *LicenseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LicenseError) Unwrap() error {
	return e.Err
}

// NewLicenseError creates a new license error
func NewLicenseError(code, message string, err error) *LicenseError {
	return &LicenseError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// =====================================================
// ERROR CONSTRUCTORS
// =====================================================
func NewUnknownDurationError(duration string) *LicenseError {
	return NewLicenseError(
		ErrCodeUnknownDuration,
		fmt.Sprintf("Unknown license duration: %s", duration),
		ErrUnknownDuration,
	)
}

func NewNoAvailableKeyError(duration string) *LicenseError {
	return NewLicenseError(
		ErrCodeNoAvailableKey,
		fmt.Sprintf("No available license key for duration: %s", duration),
		ErrNoAvailableKey,
	)
}

// NewUpstreamError wraps an inventory API failure. Chi tiết request/token
// không đưa vào user-facing message.
func NewUpstreamError(err error) *LicenseError {
	return NewLicenseError(
		ErrCodeUpstreamUnavailable,
		"License inventory service is temporarily unavailable",
		err,
	)
}
