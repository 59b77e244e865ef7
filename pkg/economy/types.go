package economy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// WalletRef identifies a wallet owner. The treasury is a wallet like any
// other as far as ledger entries are concerned.
type WalletRef struct {
	value string
}

// NewWalletRef validates and normalizes a wallet owner id.
func NewWalletRef(raw string) (WalletRef, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return WalletRef{}, fmt.Errorf("%w: empty value", ErrInvalidWalletRef)
	}
	return WalletRef{value: trimmed}, nil
}

// TreasuryWallet returns the ref of the global funding wallet.
func TreasuryWallet() WalletRef {
	return WalletRef{value: treasuryOwner}
}

// String returns the normalized owner id.
func (ref WalletRef) String() string {
	return ref.value
}

// IsTreasury reports whether the ref points at the treasury wallet.
func (ref WalletRef) IsTreasury() bool {
	return ref.value == treasuryOwner
}

// IsZero reports whether the ref is unset.
func (ref WalletRef) IsZero() bool {
	return ref.value == ""
}

// CoinAmount is a strictly positive whole-coin quantity.
type CoinAmount int64

// NewCoinAmount validates an amount and ensures it is strictly positive.
func NewCoinAmount(raw int64) (CoinAmount, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidCoinAmount)
	}
	return CoinAmount(raw), nil
}

// Int64 returns the raw coin count.
func (amount CoinAmount) Int64() int64 {
	return int64(amount)
}

// TriggerTag names the semantic origin of a transaction, e.g.
// "forum.reply.posted" or "bot.engagement.like".
type TriggerTag struct {
	value string
}

// NewTriggerTag validates and normalizes a trigger tag.
func NewTriggerTag(raw string) (TriggerTag, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TriggerTag{}, fmt.Errorf("%w: empty value", ErrInvalidTriggerTag)
	}
	return TriggerTag{value: trimmed}, nil
}

// String returns the normalized tag.
func (tag TriggerTag) String() string {
	return tag.value
}

// IdempotencyKey scopes duplicate detection. The zero value means the
// request carries no key and is never deduplicated.
type IdempotencyKey struct {
	value string
}

// NewIdempotencyKey validates and normalizes an idempotency key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdempotencyKey{}, fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	return IdempotencyKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key IdempotencyKey) String() string {
	return key.value
}

// IsZero reports whether a key was supplied.
func (key IdempotencyKey) IsZero() bool {
	return key.value == ""
}

// Metadata stores arbitrary request metadata as a JSON object.
type Metadata struct {
	value string
}

// NewMetadata validates a metadata string (defaulting to "{}" for empty inputs).
func NewMetadata(raw string) (Metadata, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return Metadata{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return Metadata{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata Metadata) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// TransactionType enumerates initiating transaction kinds.
type TransactionType string

const (
	TransactionEarn       TransactionType = "earn"
	TransactionSpend      TransactionType = "spend"
	TransactionAdjustment TransactionType = "adjustment"
)

// ParseTransactionType validates a raw transaction type.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch TransactionType(raw) {
	case TransactionEarn, TransactionSpend, TransactionAdjustment:
		return TransactionType(raw), nil
	}
	return "", fmt.Errorf("%w: unknown transaction type %q", ErrInvalidTransactionShape, raw)
}

// String returns the raw type.
func (transactionType TransactionType) String() string {
	return string(transactionType)
}

// EntryDirection marks a ledger entry as a credit or a debit.
type EntryDirection string

const (
	DirectionCredit EntryDirection = "credit"
	DirectionDebit  EntryDirection = "debit"
)

// String returns the raw direction.
func (direction EntryDirection) String() string {
	return string(direction)
}

// TransactionStatus marks the outcome persisted with a transaction.
type TransactionStatus string

const (
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// Entry is a single immutable line within a transaction.
type Entry struct {
	EntryID     string
	WalletOwner string
	Direction   EntryDirection
	Amount      int64
	Memo        string
}

// Transaction is an atomic, balanced set of entries representing one
// economic event. Immutable once completed, never deleted.
type Transaction struct {
	TransactionID  string
	Type           TransactionType
	Trigger        string
	Channel        string
	MetadataJSON   string
	IdempotencyKey string
	Status         TransactionStatus
	Entries        []Entry
	CreatedUnixUTC int64
}

// Wallet is a balance holder. CapOverride, when set, replaces the treasury's
// global default ceiling for this wallet.
type Wallet struct {
	Owner       string
	Balance     int64
	CapOverride *int64
}

// Treasury is the singleton funding wallet backing all system-awarded
// credits. TodaySpent counts bot-attributed funding only.
type Treasury struct {
	Balance         int64
	DailySpendLimit int64
	TodaySpent      int64
	DayStartUnixUTC int64
	WalletCapAmount int64
}

// IdempotencyRecord caches the outcome of a keyed request so a replay
// returns the original result without re-applying side effects.
type IdempotencyRecord struct {
	Key              string
	TransactionID    string
	AwardedAmount    int64
	ExpiresAtUnixUTC int64
}

// TransactionRequest describes one requested coin movement.
//
// Earn credits Wallet from the treasury. Spend debits Wallet; the coins
// return to the treasury unless Counterparty names a receiving user wallet
// (a user-to-user transfer). Adjustment moves coins between Wallet and the
// treasury in the direction given by Direction, bypassing the treasury's
// daily bot-spend cap.
type TransactionRequest struct {
	Type           TransactionType
	Wallet         WalletRef
	Counterparty   *WalletRef
	Amount         CoinAmount
	Trigger        TriggerTag
	Channel        string
	Metadata       Metadata
	IdempotencyKey IdempotencyKey
	AllowOverdraft bool
	BotAttributed  bool
	Direction      EntryDirection
}

// TransactionResult carries the committed transaction plus the amount the
// target wallet actually received after cap clipping. Replayed marks a
// result served from the idempotency store.
type TransactionResult struct {
	Transaction   Transaction
	AwardedAmount int64
	Replayed      bool
}

// Store is the persistence contract used by Service. Implementations must
// make WithTx atomic and make the ForUpdate getters take exclusive row
// locks for the duration of the transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetWallet(ctx context.Context, owner WalletRef) (Wallet, error)
	GetWalletForUpdate(ctx context.Context, owner WalletRef) (Wallet, error)
	SetWalletBalance(ctx context.Context, owner WalletRef, balance int64) error
	SetWalletCap(ctx context.Context, owner WalletRef, cap *int64) error
	GetTreasury(ctx context.Context) (Treasury, error)
	GetTreasuryForUpdate(ctx context.Context) (Treasury, error)
	SaveTreasury(ctx context.Context, treasury Treasury) error
	InsertTransaction(ctx context.Context, transaction Transaction) error
	GetTransaction(ctx context.Context, transactionID string) (Transaction, error)
	ListTransactions(ctx context.Context, owner WalletRef, limit int) ([]Transaction, error)
	GetIdempotencyRecord(ctx context.Context, key IdempotencyKey) (IdempotencyRecord, bool, error)
	InsertIdempotencyRecord(ctx context.Context, record IdempotencyRecord) error
	DeleteIdempotencyRecordsBefore(ctx context.Context, cutoffUnixUTC int64) (int64, error)
}
