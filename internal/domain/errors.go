package domain

import "errors"

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

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "connect", "read", "write")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

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
	// ErrConnectionFailed is returned when websocket connection fails. It's usually retriable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrUnknownAsset is returned when a symbol is not in the ledger's catalog.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrInsufficientBalance is returned when a reservation or debit exceeds
	// the available balance. Callers translate it into a validation result
	// before it reaches a user.
	ErrInsufficientBalance = errors.New("insufficient available balance")

	// ErrInvalidAmount is returned for non-positive or non-numeric amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrOrderNotFound is returned when an order ID is unknown.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderNotModifiable is returned when modifying an order past
	// pending/open state.
	ErrOrderNotModifiable = errors.New("order can no longer be modified")

	// ErrOrderRejected is returned when order validation fails at placement.
	ErrOrderRejected = errors.New("order rejected")

	// ErrStakeOutOfRange is returned when a stake is outside [min, max].
	ErrStakeOutOfRange = errors.New("stake amount out of range")

	// ErrNoPrice is returned when no market price is known for a symbol.
	ErrNoPrice = errors.New("no price available")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)

