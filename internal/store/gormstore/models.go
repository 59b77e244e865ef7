package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Wallet represents the wallets table. The treasury holds its own row in
// the treasury table; user wallets live here.
type Wallet struct {
	Owner       string `gorm:"primaryKey"`
	Balance     int64  `gorm:"not null"`
	CapOverride *int64
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (Wallet) TableName() string { return "wallets" }

// LedgerTransaction mirrors the ledger_transactions table. Rows are
// immutable once written and never deleted.
type LedgerTransaction struct {
	TransactionID  string         `gorm:"type:uuid;primaryKey"`
	Type           string         `gorm:"not null"`
	Trigger        string         `gorm:"not null;index"`
	Channel        string         `gorm:""`
	Metadata       datatypes.JSON `gorm:"not null"`
	IdempotencyKey *string        `gorm:"uniqueIndex:uniq_transactions_idem"`
	Status         string         `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null;index"`
	Entries        []LedgerEntry  `gorm:"foreignKey:TransactionID;references:TransactionID"`
}

func (LedgerTransaction) TableName() string { return "ledger_transactions" }

// LedgerEntry mirrors the ledger_entries table.
type LedgerEntry struct {
	EntryID       string `gorm:"type:uuid;primaryKey"`
	TransactionID string `gorm:"type:uuid;not null;index"`
	WalletOwner   string `gorm:"not null;index:idx_entries_wallet_owner"`
	Direction     string `gorm:"not null"`
	Amount        int64  `gorm:"not null"`
	Memo          string `gorm:""`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// IdempotencyRecord mirrors the idempotency_records table.
type IdempotencyRecord struct {
	Key           string    `gorm:"primaryKey"`
	TransactionID string    `gorm:"type:uuid;not null"`
	AwardedAmount int64     `gorm:"not null"`
	ExpiresAt     time.Time `gorm:"not null;index"`
}

func (IdempotencyRecord) TableName() string { return "idempotency_records" }

// TreasuryRow is the singleton funding wallet.
type TreasuryRow struct {
	ID              string    `gorm:"primaryKey"`
	Balance         int64     `gorm:"not null"`
	DailySpendLimit int64     `gorm:"not null"`
	TodaySpent      int64     `gorm:"not null"`
	DayStartedAt    time.Time `gorm:"not null"`
	WalletCapAmount int64     `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (TreasuryRow) TableName() string { return "treasury" }

// BotRow mirrors the bots table. ActivityCaps is a JSON object of
// action -> daily maximum.
type BotRow struct {
	BotID        string         `gorm:"type:uuid;primaryKey"`
	Name         string         `gorm:"not null;uniqueIndex"`
	Purpose      string         `gorm:"not null"`
	TrustLevel   int            `gorm:"not null"`
	ActivityCaps datatypes.JSON `gorm:"not null"`
	IsActive     bool           `gorm:"not null;index"`
	CreatedAt    time.Time      `gorm:"not null"`
	UpdatedAt    time.Time      `gorm:"not null"`
}

func (BotRow) TableName() string { return "bots" }

// BotActionRow is the append-only bot action audit trail.
type BotActionRow struct {
	ActionID      string    `gorm:"type:uuid;primaryKey"`
	BotID         string    `gorm:"type:uuid;not null;index:idx_bot_actions_bot_target,priority:1;index:idx_bot_actions_bot_created,priority:1"`
	Action        string    `gorm:"not null"`
	TargetKind    string    `gorm:"not null"`
	TargetID      string    `gorm:"not null;index:idx_bot_actions_bot_target,priority:2"`
	CoinAmount    int64     `gorm:"not null"`
	TransactionID *string   `gorm:"type:uuid"`
	Failure       *string   `gorm:""`
	CreatedAt     time.Time `gorm:"not null;index:idx_bot_actions_bot_created,priority:2"`
}

func (BotActionRow) TableName() string { return "bot_actions" }

// ContentItem is the read-only view of recently created forum/marketplace
// content the selector scans. The surrounding system populates it.
type ContentItem struct {
	ContentID string    `gorm:"primaryKey"`
	Kind      string    `gorm:"not null;index:idx_content_kind_created,priority:1"`
	AuthorID  string    `gorm:"not null"`
	Price     int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_content_kind_created,priority:2"`
}

func (ContentItem) TableName() string { return "content_items" }

// RankProgressRow mirrors the user_rank_progress table.
type RankProgressRow struct {
	UserID        string    `gorm:"primaryKey"`
	CurrentXP     int64     `gorm:"not null"`
	WeeklyXP      int64     `gorm:"not null"`
	CurrentRankID string    `gorm:""`
	WeekStartedAt time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (RankProgressRow) TableName() string { return "user_rank_progress" }

// RankTierRow is admin-managed reference data.
type RankTierRow struct {
	TierID   string `gorm:"primaryKey"`
	Name     string `gorm:"not null"`
	MinXP    int64  `gorm:"not null;index"`
	Position int    `gorm:"not null;uniqueIndex"`
}

func (RankTierRow) TableName() string { return "rank_tiers" }

// FeatureUnlockRow links features to the tier that grants them.
type FeatureUnlockRow struct {
	UnlockID    string `gorm:"type:uuid;primaryKey"`
	RankTierID  string `gorm:"not null;index"`
	FeatureKey  string `gorm:"not null"`
	Description string `gorm:""`
}

func (FeatureUnlockRow) TableName() string { return "feature_unlocks" }

// AuditRecord captures admin-initiated overrides.
type AuditRecord struct {
	AuditID   string         `gorm:"type:uuid;primaryKey"`
	ActorID   string         `gorm:"not null;index"`
	Action    string         `gorm:"not null"`
	Detail    datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (AuditRecord) TableName() string { return "audit_records" }

func (record *AuditRecord) BeforeCreate(tx *gorm.DB) error {
	if record.AuditID == "" {
		record.AuditID = uuid.NewString()
	}
	return nil
}

// AllModels lists every table for schema migration.
func AllModels() []interface{} {
	return []interface{}{
		&Wallet{},
		&LedgerTransaction{},
		&LedgerEntry{},
		&IdempotencyRecord{},
		&TreasuryRow{},
		&BotRow{},
		&BotActionRow{},
		&ContentItem{},
		&RankProgressRow{},
		&RankTierRow{},
		&FeatureUnlockRow{},
		&AuditRecord{},
	}
}
