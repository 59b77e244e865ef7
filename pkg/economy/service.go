package economy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Service contains the ledger domain logic over a Store.
//
// Lock discipline: every commit that touches the treasury locks it before
// any user wallet; user wallets are locked in sorted owner order. This keeps
// concurrent transactions against the same wallets deadlock-free while
// serializing each wallet's read-modify-write.
type Service struct {
	store  Store
	nowFn  func() int64
	newID  func() string
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now, newID: uuid.NewString}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Execute applies one coin movement atomically. A request carrying an
// already-recorded idempotency key returns the cached result with no side
// effects re-applied.
func (service *Service) Execute(requestContext context.Context, request TransactionRequest) (TransactionResult, error) {
	var result TransactionResult
	operationError := service.executeOnce(requestContext, request, &result)
	if errors.Is(operationError, ErrDuplicateIdempotencyKey) && !request.IdempotencyKey.IsZero() {
		// Lost a same-key race at the unique constraint; the winner's
		// result is authoritative.
		operationError = service.replayResult(requestContext, request.IdempotencyKey, &result)
	}
	status := ""
	if result.Replayed {
		status = operationStatusReplay
	}
	service.logOperation(requestContext, OperationLog{
		Operation:      operationExecute,
		Wallet:         request.Wallet,
		Amount:         result.AwardedAmount,
		Trigger:        request.Trigger.String(),
		IdempotencyKey: request.IdempotencyKey,
		Metadata:       request.Metadata,
		Status:         status,
		Error:          operationError,
	})
	return result, operationError
}

// GetWalletBalance returns the wallet view for an owner, creating an empty
// wallet on first touch.
func (service *Service) GetWalletBalance(requestContext context.Context, owner WalletRef) (Wallet, error) {
	return service.store.GetWallet(requestContext, owner)
}

// GetTransactionHistory lists an owner's most recent transactions.
func (service *Service) GetTransactionHistory(requestContext context.Context, owner WalletRef, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return service.store.ListTransactions(requestContext, owner, limit)
}

func (service *Service) executeOnce(requestContext context.Context, request TransactionRequest, result *TransactionResult) error {
	if err := request.validate(); err != nil {
		return err
	}
	return service.store.WithTx(requestContext, func(ctx context.Context, txStore Store) error {
		if !request.IdempotencyKey.IsZero() {
			record, found, err := txStore.GetIdempotencyRecord(ctx, request.IdempotencyKey)
			if err != nil {
				return err
			}
			if found {
				transaction, err := txStore.GetTransaction(ctx, record.TransactionID)
				if err != nil {
					return err
				}
				*result = TransactionResult{
					Transaction:   transaction,
					AwardedAmount: record.AwardedAmount,
					Replayed:      true,
				}
				return nil
			}
		}
		switch request.Type {
		case TransactionEarn:
			return service.applyEarn(ctx, txStore, request, result)
		case TransactionSpend:
			return service.applySpend(ctx, txStore, request, result)
		case TransactionAdjustment:
			return service.applyAdjustment(ctx, txStore, request, result)
		}
		return fmt.Errorf("%w: unsupported transaction type %q", ErrInvalidTransactionShape, request.Type)
	})
}

// applyEarn credits the target wallet, funded by the treasury. Bot-attributed
// earns additionally count against the treasury's daily spend limit.
func (service *Service) applyEarn(ctx context.Context, txStore Store, request TransactionRequest, result *TransactionResult) error {
	nowUnixUTC := service.nowFn()
	treasury, err := txStore.GetTreasuryForUpdate(ctx)
	if err != nil {
		return err
	}
	rolloverTreasuryDay(&treasury, nowUnixUTC)
	wallet, err := txStore.GetWalletForUpdate(ctx, request.Wallet)
	if err != nil {
		return err
	}
	credited := clipCredit(wallet.Balance, request.Amount.Int64(), effectiveCap(wallet, treasury))
	if credited == 0 {
		return ErrWalletCapExceeded
	}
	if request.BotAttributed && treasury.TodaySpent+credited > treasury.DailySpendLimit {
		return ErrTreasuryExhausted
	}
	if treasury.Balance < credited {
		return ErrInsufficientTreasuryFunds
	}
	if request.BotAttributed {
		treasury.TodaySpent += credited
	}
	treasury.Balance -= credited
	if err := txStore.SaveTreasury(ctx, treasury); err != nil {
		return err
	}
	if err := txStore.SetWalletBalance(ctx, request.Wallet, wallet.Balance+credited); err != nil {
		return err
	}
	transaction := service.buildTransaction(request, nowUnixUTC, []Entry{
		service.newEntry(request.Wallet.String(), DirectionCredit, credited, memoFundedByTreasury),
		service.newEntry(treasuryOwner, DirectionDebit, credited, memoFundedByTreasury),
	})
	return service.commit(ctx, txStore, request, transaction, credited, result)
}

// applySpend debits the target wallet. Without a counterparty the coins
// return to the treasury; with one this is a user-to-user transfer, where a
// partial cap clip on the receiving side leaves the remainder with the
// treasury and a receiver already at cap rejects the whole transfer.
func (service *Service) applySpend(ctx context.Context, txStore Store, request TransactionRequest, result *TransactionResult) error {
	nowUnixUTC := service.nowFn()
	treasury, err := txStore.GetTreasuryForUpdate(ctx)
	if err != nil {
		return err
	}
	rolloverTreasuryDay(&treasury, nowUnixUTC)

	owners := []WalletRef{request.Wallet}
	if request.Counterparty != nil {
		owners = append(owners, *request.Counterparty)
	}
	wallets, err := lockWallets(ctx, txStore, owners)
	if err != nil {
		return err
	}
	source := wallets[request.Wallet.String()]
	amount := request.Amount.Int64()
	if !request.AllowOverdraft && source.Balance < amount {
		return ErrInsufficientBalance
	}

	entries := []Entry{
		service.newEntry(request.Wallet.String(), DirectionDebit, amount, memoTransferOut),
	}
	awarded := amount
	if request.Counterparty == nil {
		entries[0].Memo = memoReturnToTreasury
		treasury.Balance += amount
		entries = append(entries, service.newEntry(treasuryOwner, DirectionCredit, amount, memoReturnToTreasury))
	} else {
		target := wallets[request.Counterparty.String()]
		credited := clipCredit(target.Balance, amount, effectiveCap(target, treasury))
		if credited == 0 {
			return ErrWalletCapExceeded
		}
		remainder := amount - credited
		if err := txStore.SetWalletBalance(ctx, *request.Counterparty, target.Balance+credited); err != nil {
			return err
		}
		entries = append(entries, service.newEntry(request.Counterparty.String(), DirectionCredit, credited, memoTransferIn))
		if remainder > 0 {
			treasury.Balance += remainder
			entries = append(entries, service.newEntry(treasuryOwner, DirectionCredit, remainder, memoCapRemainder))
		}
		awarded = credited
	}
	if err := txStore.SetWalletBalance(ctx, request.Wallet, source.Balance-amount); err != nil {
		return err
	}
	if err := txStore.SaveTreasury(ctx, treasury); err != nil {
		return err
	}
	transaction := service.buildTransaction(request, nowUnixUTC, entries)
	return service.commit(ctx, txStore, request, transaction, awarded, result)
}

// applyAdjustment moves coins between a wallet and the treasury under admin
// control. Credits still respect wallet caps but skip the daily bot limit;
// debits clip to the wallet's balance so the wallet never goes negative.
func (service *Service) applyAdjustment(ctx context.Context, txStore Store, request TransactionRequest, result *TransactionResult) error {
	nowUnixUTC := service.nowFn()
	treasury, err := txStore.GetTreasuryForUpdate(ctx)
	if err != nil {
		return err
	}
	rolloverTreasuryDay(&treasury, nowUnixUTC)
	wallet, err := txStore.GetWalletForUpdate(ctx, request.Wallet)
	if err != nil {
		return err
	}
	var moved int64
	var entries []Entry
	switch request.Direction {
	case DirectionCredit:
		moved = clipCredit(wallet.Balance, request.Amount.Int64(), effectiveCap(wallet, treasury))
		if moved == 0 {
			return ErrWalletCapExceeded
		}
		if treasury.Balance < moved {
			return ErrInsufficientTreasuryFunds
		}
		treasury.Balance -= moved
		if err := txStore.SetWalletBalance(ctx, request.Wallet, wallet.Balance+moved); err != nil {
			return err
		}
		entries = []Entry{
			service.newEntry(request.Wallet.String(), DirectionCredit, moved, memoFundedByTreasury),
			service.newEntry(treasuryOwner, DirectionDebit, moved, memoFundedByTreasury),
		}
	case DirectionDebit:
		moved = request.Amount.Int64()
		if moved > wallet.Balance {
			moved = wallet.Balance
		}
		if moved <= 0 {
			return ErrInsufficientBalance
		}
		treasury.Balance += moved
		if err := txStore.SetWalletBalance(ctx, request.Wallet, wallet.Balance-moved); err != nil {
			return err
		}
		entries = []Entry{
			service.newEntry(request.Wallet.String(), DirectionDebit, moved, memoReturnToTreasury),
			service.newEntry(treasuryOwner, DirectionCredit, moved, memoReturnToTreasury),
		}
	default:
		return fmt.Errorf("%w: adjustment requires a direction", ErrInvalidTransactionShape)
	}
	if err := txStore.SaveTreasury(ctx, treasury); err != nil {
		return err
	}
	transaction := service.buildTransaction(request, nowUnixUTC, entries)
	return service.commit(ctx, txStore, request, transaction, moved, result)
}

func (service *Service) commit(ctx context.Context, txStore Store, request TransactionRequest, transaction Transaction, awarded int64, result *TransactionResult) error {
	if err := validateEntries(transaction.Entries); err != nil {
		return err
	}
	if err := txStore.InsertTransaction(ctx, transaction); err != nil {
		return err
	}
	if !request.IdempotencyKey.IsZero() {
		record := IdempotencyRecord{
			Key:              request.IdempotencyKey.String(),
			TransactionID:    transaction.TransactionID,
			AwardedAmount:    awarded,
			ExpiresAtUnixUTC: transaction.CreatedUnixUTC + idempotencyRetentionSeconds,
		}
		if err := txStore.InsertIdempotencyRecord(ctx, record); err != nil {
			return err
		}
	}
	*result = TransactionResult{Transaction: transaction, AwardedAmount: awarded}
	return nil
}

func (service *Service) replayResult(requestContext context.Context, key IdempotencyKey, result *TransactionResult) error {
	record, found, err := service.store.GetIdempotencyRecord(requestContext, key)
	if err != nil {
		return err
	}
	if !found {
		// The winner has not committed yet; the caller must retry rather
		// than risk a double apply.
		return ErrDuplicateInFlight
	}
	transaction, err := service.store.GetTransaction(requestContext, record.TransactionID)
	if err != nil {
		return err
	}
	*result = TransactionResult{
		Transaction:   transaction,
		AwardedAmount: record.AwardedAmount,
		Replayed:      true,
	}
	return nil
}

func (service *Service) buildTransaction(request TransactionRequest, nowUnixUTC int64, entries []Entry) Transaction {
	return Transaction{
		TransactionID:  service.newID(),
		Type:           request.Type,
		Trigger:        request.Trigger.String(),
		Channel:        request.Channel,
		MetadataJSON:   request.Metadata.String(),
		IdempotencyKey: request.IdempotencyKey.String(),
		Status:         StatusCompleted,
		Entries:        entries,
		CreatedUnixUTC: nowUnixUTC,
	}
}

func (service *Service) newEntry(owner string, direction EntryDirection, amount int64, memo string) Entry {
	return Entry{
		EntryID:     service.newID(),
		WalletOwner: owner,
		Direction:   direction,
		Amount:      amount,
		Memo:        memo,
	}
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

// lockWallets acquires wallet row locks in sorted owner order and returns
// the locked wallets keyed by owner.
func lockWallets(ctx context.Context, txStore Store, owners []WalletRef) (map[string]Wallet, error) {
	sorted := make([]WalletRef, len(owners))
	copy(sorted, owners)
	sort.Slice(sorted, func(left, right int) bool {
		return sorted[left].String() < sorted[right].String()
	})
	wallets := make(map[string]Wallet, len(sorted))
	for _, owner := range sorted {
		if _, seen := wallets[owner.String()]; seen {
			continue
		}
		wallet, err := txStore.GetWalletForUpdate(ctx, owner)
		if err != nil {
			return nil, err
		}
		wallets[owner.String()] = wallet
	}
	return wallets, nil
}

// validateEntries enforces the closed-ledger invariant: credits and debits
// must balance exactly. A violation is a programming error, not caller input.
func validateEntries(entries []Entry) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: no entries", ErrInvalidTransactionShape)
	}
	var credits, debits int64
	for _, entry := range entries {
		if entry.Amount <= 0 {
			return fmt.Errorf("%w: non-positive entry amount", ErrInvalidTransactionShape)
		}
		switch entry.Direction {
		case DirectionCredit:
			credits += entry.Amount
		case DirectionDebit:
			debits += entry.Amount
		default:
			return fmt.Errorf("%w: unknown entry direction %q", ErrInvalidTransactionShape, entry.Direction)
		}
	}
	if credits != debits {
		return fmt.Errorf("%w: credits %d != debits %d", ErrInvalidTransactionShape, credits, debits)
	}
	return nil
}

func (request TransactionRequest) validate() error {
	if request.Wallet.IsZero() {
		return fmt.Errorf("%w: missing wallet", ErrInvalidTransactionShape)
	}
	if request.Amount <= 0 {
		return fmt.Errorf("%w: missing amount", ErrInvalidTransactionShape)
	}
	if request.Trigger.String() == "" {
		return fmt.Errorf("%w: missing trigger", ErrInvalidTransactionShape)
	}
	if request.Wallet.IsTreasury() {
		return fmt.Errorf("%w: treasury is not a valid target wallet", ErrInvalidTransactionShape)
	}
	if request.Counterparty != nil {
		if request.Type != TransactionSpend {
			return fmt.Errorf("%w: counterparty is only valid on spend", ErrInvalidTransactionShape)
		}
		if request.Counterparty.IsZero() || request.Counterparty.IsTreasury() {
			return fmt.Errorf("%w: invalid counterparty", ErrInvalidTransactionShape)
		}
		if request.Counterparty.String() == request.Wallet.String() {
			return fmt.Errorf("%w: self transfer", ErrInvalidTransactionShape)
		}
	}
	return nil
}
