package apierror

import (
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound              ErrorCode = "NOT_FOUND"
	ErrWalletInactive        ErrorCode = "WALLET_INACTIVE"
	ErrInsufficientFunds     ErrorCode = "INSUFFICIENT_FUNDS"
	ErrDuplicateWallet       ErrorCode = "DUPLICATE_WALLET"
	ErrUnauthorized          ErrorCode = "UNAUTHORIZED"
	ErrAlreadyProcessed      ErrorCode = "ALREADY_PROCESSED"
	ErrEscrowNotFound        ErrorCode = "ESCROW_NOT_FOUND"
	ErrEscrowAlreadyResolved ErrorCode = "ESCROW_ALREADY_RESOLVED"
	ErrConflict              ErrorCode = "CONFLICT"
	ErrBadRequest            ErrorCode = "BAD_REQUEST"
	ErrInvalidInput          ErrorCode = "INVALID_INPUT"
	ErrInternalServer        ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.Error(details)
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// InsufficientFundsDetails is attached to INSUFFICIENT_FUNDS errors so the
// calling surface can show the required and available amounts.
type InsufficientFundsDetails struct {
	Required  decimal.Decimal `json:"required"`
	Available decimal.Decimal `json:"available"`
}

// NewInsufficientFundsError builds the user-visible shortfall error. The
// message format is relied on by API consumers; keep it stable.
func NewInsufficientFundsError(required, available decimal.Decimal) APIError {
	return APIError{
		Code:    ErrInsufficientFunds,
		Message: fmt.Sprintf("Insufficient balance. Required: %s, Available: %s", required, available),
		Details: InsufficientFundsDetails{Required: required, Available: available},
	}
}

func MapErrorToHTTPStatus(err error) int {
	if apiErr, ok := err.(APIError); ok {
		switch apiErr.Code {
		case ErrNotFound, ErrEscrowNotFound:
			return http.StatusNotFound
		case ErrConflict, ErrDuplicateWallet, ErrAlreadyProcessed, ErrEscrowAlreadyResolved:
			return http.StatusConflict
		case ErrUnauthorized:
			return http.StatusForbidden
		case ErrInvalidInput, ErrBadRequest, ErrInsufficientFunds, ErrWalletInactive:
			return http.StatusBadRequest
		case ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
