package economy

import (
	"context"
	"fmt"
)

// GetTreasury returns the current treasury view.
func (service *Service) GetTreasury(requestContext context.Context) (Treasury, error) {
	return service.store.GetTreasury(requestContext)
}

// RefillTreasury applies an admin-initiated credit to the treasury balance.
// The coins enter the system from outside, so no ledger transaction is
// written; the operation log carries the audit trail.
func (service *Service) RefillTreasury(requestContext context.Context, amount CoinAmount, adminID string) (Treasury, error) {
	var refilled Treasury
	operationError := service.store.WithTx(requestContext, func(ctx context.Context, txStore Store) error {
		treasury, err := txStore.GetTreasuryForUpdate(ctx)
		if err != nil {
			return err
		}
		rolloverTreasuryDay(&treasury, service.nowFn())
		treasury.Balance += amount.Int64()
		if err := txStore.SaveTreasury(ctx, treasury); err != nil {
			return err
		}
		refilled = treasury
		return nil
	})
	service.logOperation(requestContext, OperationLog{
		Operation: operationRefill,
		Wallet:    TreasuryWallet(),
		ActorID:   adminID,
		Amount:    amount.Int64(),
		Error:     operationError,
	})
	return refilled, operationError
}

// SetWalletCap sets or clears a per-wallet ceiling override.
func (service *Service) SetWalletCap(requestContext context.Context, owner WalletRef, cap *int64) error {
	if owner.IsZero() || owner.IsTreasury() {
		return fmt.Errorf("%w: cap override requires a user wallet", ErrInvalidWalletRef)
	}
	if cap != nil && *cap < 0 {
		return fmt.Errorf("%w: cap must not be negative", ErrInvalidCoinAmount)
	}
	return service.store.SetWalletCap(requestContext, owner, cap)
}

// ResetTreasuryDay forces the daily spend counter rollover. Safe to run more
// than once per day; a repeat within the same window is a no-op.
func (service *Service) ResetTreasuryDay(requestContext context.Context) (bool, error) {
	var reset bool
	operationError := service.store.WithTx(requestContext, func(ctx context.Context, txStore Store) error {
		treasury, err := txStore.GetTreasuryForUpdate(ctx)
		if err != nil {
			return err
		}
		reset = rolloverTreasuryDay(&treasury, service.nowFn())
		if !reset {
			return nil
		}
		return txStore.SaveTreasury(ctx, treasury)
	})
	if operationError != nil {
		service.logOperation(requestContext, OperationLog{
			Operation: operationResetDay,
			Wallet:    TreasuryWallet(),
			Error:     operationError,
		})
	}
	return reset, operationError
}

// rolloverTreasuryDay resets TodaySpent when the stored day window has
// passed. Callers hold the treasury row lock, so the first writer of the
// day performs the reset exactly once.
func rolloverTreasuryDay(treasury *Treasury, nowUnixUTC int64) bool {
	dayStart := startOfDayUnixUTC(nowUnixUTC)
	if treasury.DayStartUnixUTC >= dayStart {
		return false
	}
	treasury.TodaySpent = 0
	treasury.DayStartUnixUTC = dayStart
	return true
}

func startOfDayUnixUTC(nowUnixUTC int64) int64 {
	return nowUnixUTC - (nowUnixUTC % secondsPerDay)
}
