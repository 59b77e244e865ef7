package economy

import (
	"errors"
	"testing"
)

func TestNewWalletRefRejectsEmpty(test *testing.T) {
	test.Parallel()
	if _, err := NewWalletRef("   "); !errors.Is(err, ErrInvalidWalletRef) {
		test.Fatalf("expected ErrInvalidWalletRef, got %v", err)
	}
	ref, err := NewWalletRef("  user-1  ")
	if err != nil {
		test.Fatalf("wallet ref: %v", err)
	}
	if ref.String() != "user-1" {
		test.Fatalf("expected trimmed value, got %q", ref.String())
	}
}

func TestTreasuryWalletIsRecognized(test *testing.T) {
	test.Parallel()
	if !TreasuryWallet().IsTreasury() {
		test.Fatalf("treasury ref must report IsTreasury")
	}
	ref := mustWalletRef(test, "user-1")
	if ref.IsTreasury() {
		test.Fatalf("user ref must not report IsTreasury")
	}
}

func TestNewCoinAmountRejectsNonPositive(test *testing.T) {
	test.Parallel()
	for _, raw := range []int64{0, -7} {
		if _, err := NewCoinAmount(raw); !errors.Is(err, ErrInvalidCoinAmount) {
			test.Fatalf("amount %d: expected ErrInvalidCoinAmount, got %v", raw, err)
		}
	}
}

func TestNewMetadataDefaultsAndValidates(test *testing.T) {
	test.Parallel()
	metadata, err := NewMetadata("")
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	if metadata.String() != "{}" {
		test.Fatalf("expected empty object default, got %q", metadata.String())
	}
	if _, err := NewMetadata("{not json"); !errors.Is(err, ErrInvalidMetadataJSON) {
		test.Fatalf("expected ErrInvalidMetadataJSON, got %v", err)
	}
}

func TestIdempotencyKeyZeroValue(test *testing.T) {
	test.Parallel()
	var key IdempotencyKey
	if !key.IsZero() {
		test.Fatalf("zero key must report IsZero")
	}
	key = mustKey(test, "k-1")
	if key.IsZero() {
		test.Fatalf("populated key must not report IsZero")
	}
}

func TestParseTransactionType(test *testing.T) {
	test.Parallel()
	for _, raw := range []string{"earn", "spend", "adjustment"} {
		parsed, err := ParseTransactionType(raw)
		if err != nil {
			test.Fatalf("parse %q: %v", raw, err)
		}
		if parsed.String() != raw {
			test.Fatalf("expected %q, got %q", raw, parsed.String())
		}
	}
	if _, err := ParseTransactionType("refund"); !errors.Is(err, ErrInvalidTransactionShape) {
		test.Fatalf("expected ErrInvalidTransactionShape, got %v", err)
	}
}
