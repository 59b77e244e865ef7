package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/amberforum/economy/pkg/economy"
)

const (
	treasuryRowID       = "treasury"
	defaultMetadataJSON = "{}"

	pgUniqueViolationCode       = "23505"
	sqliteConstraintCode        = 19
	constraintTransactionsIdem  = "uniq_transactions_idem"
	constraintIdempotencyRecord = "idempotency_records_pkey"

	errorOperationStore  = "store"
	errorSubjectWallet   = "wallet"
	errorSubjectTreasury = "treasury"
	errorSubjectTx       = "transaction"
	errorSubjectIdem     = "idempotency"
	errorCodeGet         = "get"
	errorCodeCreate      = "create"
	errorCodeUpdate      = "update"
	errorCodeInsert      = "insert"
	errorCodeList        = "list"
	errorCodeDuplicate   = "duplicate"
	errorCodeDelete      = "delete"
)

// Store implements economy.Store using GORM. Row locks on wallet and
// treasury rows are what serialize concurrent transactions per wallet.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a database transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore economy.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// GetWallet returns the wallet for an owner, creating an empty one on first
// touch.
func (store *Store) GetWallet(ctx context.Context, owner economy.WalletRef) (economy.Wallet, error) {
	var row Wallet
	err := store.db.WithContext(ctx).
		FirstOrCreate(&row, Wallet{Owner: owner.String()}).Error
	if err != nil {
		return economy.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, err)
	}
	return mapWallet(row), nil
}

// GetWalletForUpdate locks the wallet row for the rest of the transaction,
// creating it first when missing.
func (store *Store) GetWalletForUpdate(ctx context.Context, owner economy.WalletRef) (economy.Wallet, error) {
	var row Wallet
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner = ?", owner.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created := Wallet{Owner: owner.String()}
		if createErr := store.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&created).Error; createErr != nil {
			return economy.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeCreate, createErr)
		}
		err = store.db.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("owner = ?", owner.String()).
			Take(&row).Error
	}
	if err != nil {
		return economy.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, err)
	}
	return mapWallet(row), nil
}

// SetWalletBalance writes a wallet's new balance. Callers hold the row lock.
func (store *Store) SetWalletBalance(ctx context.Context, owner economy.WalletRef, balance int64) error {
	result := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where("owner = ?", owner.String()).
		Update("balance", balance)
	if result.Error != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, economy.ErrUnknownWallet)
	}
	return nil
}

// SetWalletCap sets or clears a wallet's cap override.
func (store *Store) SetWalletCap(ctx context.Context, owner economy.WalletRef, cap *int64) error {
	if _, err := store.GetWallet(ctx, owner); err != nil {
		return err
	}
	err := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where("owner = ?", owner.String()).
		Update("cap_override", cap).Error
	if err != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, err)
	}
	return nil
}

// GetTreasury returns the treasury view without locking.
func (store *Store) GetTreasury(ctx context.Context) (economy.Treasury, error) {
	var row TreasuryRow
	err := store.db.WithContext(ctx).
		Where("id = ?", treasuryRowID).
		Take(&row).Error
	if err != nil {
		return economy.Treasury{}, wrapStoreError(errorSubjectTreasury, errorCodeGet, err)
	}
	return mapTreasury(row), nil
}

// GetTreasuryForUpdate locks the treasury row for the rest of the
// transaction.
func (store *Store) GetTreasuryForUpdate(ctx context.Context) (economy.Treasury, error) {
	var row TreasuryRow
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", treasuryRowID).
		Take(&row).Error
	if err != nil {
		return economy.Treasury{}, wrapStoreError(errorSubjectTreasury, errorCodeGet, err)
	}
	return mapTreasury(row), nil
}

// SaveTreasury persists the treasury state. Callers hold the row lock.
func (store *Store) SaveTreasury(ctx context.Context, treasury economy.Treasury) error {
	err := store.db.WithContext(ctx).
		Model(&TreasuryRow{}).
		Where("id = ?", treasuryRowID).
		Updates(map[string]interface{}{
			"balance":           treasury.Balance,
			"daily_spend_limit": treasury.DailySpendLimit,
			"today_spent":       treasury.TodaySpent,
			"day_started_at":    time.Unix(treasury.DayStartUnixUTC, 0).UTC(),
			"wallet_cap_amount": treasury.WalletCapAmount,
		}).Error
	if err != nil {
		return wrapStoreError(errorSubjectTreasury, errorCodeUpdate, err)
	}
	return nil
}

// EnsureTreasury inserts the singleton treasury row if it does not exist.
func (store *Store) EnsureTreasury(ctx context.Context, treasury economy.Treasury) error {
	row := TreasuryRow{
		ID:              treasuryRowID,
		Balance:         treasury.Balance,
		DailySpendLimit: treasury.DailySpendLimit,
		TodaySpent:      treasury.TodaySpent,
		DayStartedAt:    time.Unix(treasury.DayStartUnixUTC, 0).UTC(),
		WalletCapAmount: treasury.WalletCapAmount,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectTreasury, errorCodeCreate, err)
	}
	return nil
}

// InsertTransaction persists a transaction and its entries in one shot.
func (store *Store) InsertTransaction(ctx context.Context, transaction economy.Transaction) error {
	row := LedgerTransaction{
		TransactionID: transaction.TransactionID,
		Type:          transaction.Type.String(),
		Trigger:       transaction.Trigger,
		Channel:       transaction.Channel,
		Metadata:      datatypesJSON(transaction.MetadataJSON),
		Status:        string(transaction.Status),
		CreatedAt:     time.Unix(transaction.CreatedUnixUTC, 0).UTC(),
	}
	if transaction.IdempotencyKey != "" {
		key := transaction.IdempotencyKey
		row.IdempotencyKey = &key
	}
	for _, entry := range transaction.Entries {
		row.Entries = append(row.Entries, LedgerEntry{
			EntryID:       entry.EntryID,
			TransactionID: transaction.TransactionID,
			WalletOwner:   entry.WalletOwner,
			Direction:     entry.Direction.String(),
			Amount:        entry.Amount,
			Memo:          entry.Memo,
		})
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectTx, errorCodeDuplicate, economy.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return wrapStoreError(errorSubjectTx, errorCodeInsert, err)
	}
	return nil
}

// GetTransaction loads one transaction with its entries.
func (store *Store) GetTransaction(ctx context.Context, transactionID string) (economy.Transaction, error) {
	var row LedgerTransaction
	err := store.db.WithContext(ctx).
		Preload("Entries").
		Where("transaction_id = ?", transactionID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return economy.Transaction{}, wrapStoreError(errorSubjectTx, errorCodeGet, economy.ErrUnknownTransaction)
	}
	if err != nil {
		return economy.Transaction{}, wrapStoreError(errorSubjectTx, errorCodeGet, err)
	}
	return mapTransaction(row), nil
}

// ListTransactions returns an owner's most recent transactions, newest
// first.
func (store *Store) ListTransactions(ctx context.Context, owner economy.WalletRef, limit int) ([]economy.Transaction, error) {
	var transactionIDs []string
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Distinct("transaction_id").
		Where("wallet_owner = ?", owner.String()).
		Pluck("transaction_id", &transactionIDs).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTx, errorCodeList, err)
	}
	if len(transactionIDs) == 0 {
		return []economy.Transaction{}, nil
	}
	var rows []LedgerTransaction
	err = store.db.WithContext(ctx).
		Preload("Entries").
		Where("transaction_id IN ?", transactionIDs).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTx, errorCodeList, err)
	}
	transactions := make([]economy.Transaction, 0, len(rows))
	for _, row := range rows {
		transactions = append(transactions, mapTransaction(row))
	}
	return transactions, nil
}

// GetIdempotencyRecord looks up a cached result by key.
func (store *Store) GetIdempotencyRecord(ctx context.Context, key economy.IdempotencyKey) (economy.IdempotencyRecord, bool, error) {
	var row IdempotencyRecord
	err := store.db.WithContext(ctx).
		Where("key = ?", key.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return economy.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return economy.IdempotencyRecord{}, false, wrapStoreError(errorSubjectIdem, errorCodeGet, err)
	}
	return economy.IdempotencyRecord{
		Key:              row.Key,
		TransactionID:    row.TransactionID,
		AwardedAmount:    row.AwardedAmount,
		ExpiresAtUnixUTC: row.ExpiresAt.Unix(),
	}, true, nil
}

// InsertIdempotencyRecord writes a cache record; a concurrent duplicate
// surfaces as economy.ErrDuplicateIdempotencyKey.
func (store *Store) InsertIdempotencyRecord(ctx context.Context, record economy.IdempotencyRecord) error {
	row := IdempotencyRecord{
		Key:           record.Key,
		TransactionID: record.TransactionID,
		AwardedAmount: record.AwardedAmount,
		ExpiresAt:     time.Unix(record.ExpiresAtUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectIdem, errorCodeDuplicate, economy.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return wrapStoreError(errorSubjectIdem, errorCodeInsert, err)
	}
	return nil
}

// DeleteIdempotencyRecordsBefore garbage-collects expired records.
func (store *Store) DeleteIdempotencyRecordsBefore(ctx context.Context, cutoffUnixUTC int64) (int64, error) {
	result := store.db.WithContext(ctx).
		Where("expires_at < ?", time.Unix(cutoffUnixUTC, 0).UTC()).
		Delete(&IdempotencyRecord{})
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectIdem, errorCodeDelete, result.Error)
	}
	return result.RowsAffected, nil
}

// InsertAuditRecord writes one admin-override audit row.
func (store *Store) InsertAuditRecord(ctx context.Context, actorID string, action string, detailJSON string) error {
	record := AuditRecord{
		ActorID:   actorID,
		Action:    action,
		Detail:    datatypesJSON(detailJSON),
		CreatedAt: time.Now().UTC(),
	}
	return store.db.WithContext(ctx).Create(&record).Error
}

func wrapStoreError(subject string, code string, err error) error {
	return economy.WrapError(errorOperationStore, subject, code, err)
}

func mapWallet(row Wallet) economy.Wallet {
	return economy.Wallet{
		Owner:       row.Owner,
		Balance:     row.Balance,
		CapOverride: row.CapOverride,
	}
}

func mapTreasury(row TreasuryRow) economy.Treasury {
	return economy.Treasury{
		Balance:         row.Balance,
		DailySpendLimit: row.DailySpendLimit,
		TodaySpent:      row.TodaySpent,
		DayStartUnixUTC: row.DayStartedAt.Unix(),
		WalletCapAmount: row.WalletCapAmount,
	}
}

func mapTransaction(row LedgerTransaction) economy.Transaction {
	transaction := economy.Transaction{
		TransactionID:  row.TransactionID,
		Type:           economy.TransactionType(row.Type),
		Trigger:        row.Trigger,
		Channel:        row.Channel,
		MetadataJSON:   string(row.Metadata),
		Status:         economy.TransactionStatus(row.Status),
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}
	if row.IdempotencyKey != nil {
		transaction.IdempotencyKey = *row.IdempotencyKey
	}
	for _, entry := range row.Entries {
		transaction.Entries = append(transaction.Entries, economy.Entry{
			EntryID:     entry.EntryID,
			WalletOwner: entry.WalletOwner,
			Direction:   economy.EntryDirection(entry.Direction),
			Amount:      entry.Amount,
			Memo:        entry.Memo,
		})
	}
	return transaction
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolationCode {
			return false
		}
		return pgErr.ConstraintName == constraintTransactionsIdem ||
			pgErr.ConstraintName == constraintIdempotencyRecord
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
