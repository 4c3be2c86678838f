package domain

import (
	"errors"
	"strconv"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkTimeoutError is a transient network failure. The caller should skip
// the current cycle and try again on the next one.
type NetworkTimeoutError struct {
	Op         string // Operation that failed (e.g., "GET https://...")
	StatusCode int    // Non-zero when classified from an HTTP status
	Err        error  // Underlying error
}

func (e *NetworkTimeoutError) Error() string {
	msg := "network timeout: " + e.Op
	if e.StatusCode != 0 {
		msg += " (status " + strconv.Itoa(e.StatusCode) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NetworkTimeoutError) IsRetriable() bool {
	return true
}

func (e *NetworkTimeoutError) Unwrap() error {
	return e.Err
}

// NewNetworkTimeoutError creates a retriable network error
func NewNetworkTimeoutError(op string, err error) *NetworkTimeoutError {
	return &NetworkTimeoutError{Op: op, Err: err}
}

// UnexpectedNetworkError is a transport failure that retrying will not fix.
type UnexpectedNetworkError struct {
	Op  string
	Err error
}

func (e *UnexpectedNetworkError) Error() string {
	return "unexpected network error: " + e.Op + ": " + e.Err.Error()
}

func (e *UnexpectedNetworkError) IsRetriable() bool {
	return false
}

func (e *UnexpectedNetworkError) Unwrap() error {
	return e.Err
}

// NewUnexpectedNetworkError creates a non-retriable network error
func NewUnexpectedNetworkError(op string, err error) *UnexpectedNetworkError {
	return &UnexpectedNetworkError{Op: op, Err: err}
}

// TradingAPIError means the operation failed. Message carries the exchange's
// own error text for business rejections, or the "unexpected error in X
// adapter" prefix for internal failures.
type TradingAPIError struct {
	Exchange string
	Op       string
	Message  string
	Err      error
}

func (e *TradingAPIError) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TradingAPIError) IsRetriable() bool {
	return false
}

func (e *TradingAPIError) Unwrap() error {
	return e.Err
}

// UnexpectedErrorMessage is the message every adapter uses for internal failures.
func UnexpectedErrorMessage(exchange string) string {
	return "unexpected error in " + exchange + " adapter"
}

// CallCancelledMessage is the message for calls abandoned because the caller's
// context was cancelled.
const CallCancelledMessage = "call cancelled"

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrNotSupported is returned for operations outside an exchange's capability set.
	ErrNotSupported = errors.New("operation not supported by exchange")

	// ErrKeysNotLoaded is returned when a signer is used before its keys were loaded.
	ErrKeysNotLoaded = errors.New("signing keys not loaded")

	// ErrInvalidMarket is returned when a market id is empty or malformed. Not retriable.
	ErrInvalidMarket = errors.New("invalid market")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
