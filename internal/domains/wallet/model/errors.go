package model

import (
	"errors"
	"fmt"
)

// =====================================================
// PREDEFINED ERRORS
// =====================================================

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletInactive      = errors.New("wallet is inactive")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrInvalidTopupAmount  = errors.New("invalid topup amount")
	ErrTopupNotFound       = errors.New("topup entry not found")
	ErrTopupAlreadyFinal   = errors.New("topup entry already in terminal status")
	ErrAmountMismatch      = errors.New("notified amount does not match topup amount")
	ErrInvalidSignature    = errors.New("invalid gateway signature")
	ErrTopupNotCancellable = errors.New("topup entry cannot be cancelled")
	ErrUnauthorized        = errors.New("unauthorized access")
	ErrDuplicateTopupCode  = errors.New("topup code already exists")
)

// =====================================================
// CUSTOM WALLET ERROR
// =====================================================

type WalletError struct {
	Code    string
	Message string
	Err     error
}

func (e *WalletError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *WalletError) Unwrap() error {
	return e.Err
}

// NewWalletError creates a new wallet error
func NewWalletError(code, message string, err error) *WalletError {
	return &WalletError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// =====================================================
// ERROR CONSTRUCTORS
// =====================================================

func NewWalletNotFoundError(userID string) *WalletError {
	return NewWalletError(
		ErrCodeWalletNotFound,
		fmt.Sprintf("Wallet not found for user %s", userID),
		ErrWalletNotFound,
	)
}

func NewInsufficientBalanceError(balance, required int64) *WalletError {
	return NewWalletError(
		ErrCodeInsufficientBalance,
		fmt.Sprintf("Insufficient balance: have %d, need %d", balance, required),
		ErrInsufficientBalance,
	)
}

func NewInvalidTopupAmountError(amount, min, max int64) *WalletError {
	return NewWalletError(
		ErrCodeInvalidTopupAmount,
		fmt.Sprintf("Topup amount %d out of bounds [%d, %d]", amount, min, max),
		ErrInvalidTopupAmount,
	)
}

func NewTopupNotFoundError(topupCode string) *WalletError {
	return NewWalletError(
		ErrCodeTopupNotFound,
		fmt.Sprintf("Topup entry not found: %s", topupCode),
		ErrTopupNotFound,
	)
}

func NewTopupAlreadyFinalError(topupCode, status string) *WalletError {
	return NewWalletError(
		ErrCodeTopupAlreadyFinal,
		fmt.Sprintf("Topup %s already %s (idempotent)", topupCode, status),
		ErrTopupAlreadyFinal,
	)
}

func NewAmountMismatchError(topupCode string, expected, got int64) *WalletError {
	return NewWalletError(
		ErrCodeAmountMismatch,
		fmt.Sprintf("Amount mismatch for %s: expected %d, notified %d", topupCode, expected, got),
		ErrAmountMismatch,
	)
}

func NewInvalidSignatureError() *WalletError {
	return NewWalletError(
		ErrCodeInvalidSignature,
		"Invalid gateway signature - possible fraud attempt",
		ErrInvalidSignature,
	)
}

func NewTopupNotCancellableError(topupCode, status string) *WalletError {
	return NewWalletError(
		ErrCodeTopupNotCancellable,
		fmt.Sprintf("Topup %s in status %s cannot be cancelled", topupCode, status),
		ErrTopupNotCancellable,
	)
}

func NewWalletInactiveError(userID string) *WalletError {
	return NewWalletError(
		ErrCodeWalletInactive,
		fmt.Sprintf("Wallet for user %s is inactive", userID),
		ErrWalletInactive,
	)
}

// NewGatewayUnavailableError wraps a gateway client failure. Chi tiết lỗi
// gateway không đưa ra user-facing message.
func NewGatewayUnavailableError(err error) *WalletError {
	return NewWalletError(
		ErrCodeGatewayUnavailable,
		"Payment gateway is temporarily unavailable",
		err,
	)
}
