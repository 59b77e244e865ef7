package economy

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the economy service.
var (
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrWalletCapExceeded         = errors.New("wallet cap exceeded")
	ErrTreasuryExhausted         = errors.New("treasury daily limit exhausted")
	ErrInsufficientTreasuryFunds = errors.New("insufficient treasury funds")
	ErrDuplicateIdempotencyKey   = errors.New("duplicate idempotency key")
	ErrDuplicateInFlight         = errors.New("duplicate request in flight")
	ErrUnknownTransaction        = errors.New("unknown transaction")
	ErrUnknownWallet             = errors.New("unknown wallet")
	ErrInvalidTransactionShape   = errors.New("invalid transaction shape")
	ErrInvalidWalletRef          = errors.New("invalid wallet ref")
	ErrInvalidCoinAmount         = errors.New("invalid coin amount")
	ErrInvalidTriggerTag         = errors.New("invalid trigger tag")
	ErrInvalidIdempotencyKey     = errors.New("invalid idempotency key")
	ErrInvalidMetadataJSON       = errors.New("invalid metadata json")
	ErrInvalidDrainPercentage    = errors.New("invalid drain percentage")
	ErrInvalidServiceConfig      = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
