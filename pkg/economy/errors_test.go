package economy

import (
	"errors"
	"testing"
)

func TestOperationErrorFormatting(test *testing.T) {
	test.Parallel()
	baseError := errors.New("base error")
	wrappedError := WrapError("store", "wallet", "locked", baseError)
	if wrappedError == nil {
		test.Fatalf("expected wrapped error")
	}
	if wrappedError.Error() != "store.wallet.locked: base error" {
		test.Fatalf("unexpected message %q", wrappedError.Error())
	}
	if !errors.Is(wrappedError, baseError) {
		test.Fatalf("expected wrapped error to unwrap to the base error")
	}
	var operationError OperationError
	if !errors.As(wrappedError, &operationError) {
		test.Fatalf("expected OperationError")
	}
	if operationError.Operation() != "store" || operationError.Subject() != "wallet" || operationError.Code() != "locked" {
		test.Fatalf("unexpected segments %+v", operationError)
	}
}

func TestWrapErrorNil(test *testing.T) {
	test.Parallel()
	if WrapError("store", "wallet", "locked", nil) != nil {
		test.Fatalf("expected nil wrapped error")
	}
}
