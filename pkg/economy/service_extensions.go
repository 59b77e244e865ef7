package economy

import (
	"context"
	"fmt"
)

// DrainWallet removes a percentage of a wallet's balance back to the
// treasury as an admin adjustment.
func (service *Service) DrainWallet(requestContext context.Context, owner WalletRef, percentage int, adminID string) (TransactionResult, error) {
	if percentage <= 0 || percentage > 100 {
		return TransactionResult{}, fmt.Errorf("%w: %d", ErrInvalidDrainPercentage, percentage)
	}
	wallet, err := service.store.GetWallet(requestContext, owner)
	if err != nil {
		return TransactionResult{}, err
	}
	drainAmount := wallet.Balance * int64(percentage) / 100
	if drainAmount <= 0 {
		return TransactionResult{}, ErrInsufficientBalance
	}
	amount, err := NewCoinAmount(drainAmount)
	if err != nil {
		return TransactionResult{}, err
	}
	trigger, err := NewTriggerTag("admin.wallet.drain")
	if err != nil {
		return TransactionResult{}, err
	}
	metadata, err := NewMetadata(fmt.Sprintf(`{"admin_id":%q,"percentage":%d}`, adminID, percentage))
	if err != nil {
		return TransactionResult{}, err
	}
	result, err := service.Execute(requestContext, TransactionRequest{
		Type:      TransactionAdjustment,
		Wallet:    owner,
		Amount:    amount,
		Trigger:   trigger,
		Metadata:  metadata,
		Direction: DirectionDebit,
	})
	service.logOperation(requestContext, OperationLog{
		Operation: operationDrain,
		Wallet:    owner,
		ActorID:   adminID,
		Amount:    result.AwardedAmount,
		Error:     err,
	})
	return result, err
}

// PurgeIdempotencyRecords garbage-collects records past their retention
// expiry and returns the number removed.
func (service *Service) PurgeIdempotencyRecords(requestContext context.Context) (int64, error) {
	purged, err := service.store.DeleteIdempotencyRecordsBefore(requestContext, service.nowFn())
	if err != nil {
		service.logOperation(requestContext, OperationLog{
			Operation: operationPurge,
			Error:     err,
		})
	}
	return purged, err
}
