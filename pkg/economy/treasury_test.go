package economy

import (
	"context"
	"errors"
	"testing"
)

func TestRefillTreasuryIncreasesBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 100)
	service := mustNewService(test, store)

	treasury, err := service.RefillTreasury(context.Background(), mustAmount(test, 500), "admin-1")
	if err != nil {
		test.Fatalf("refill: %v", err)
	}
	if treasury.Balance != 600 {
		test.Fatalf("expected balance 600, got %d", treasury.Balance)
	}
	if got := len(store.transactions); got != 0 {
		test.Fatalf("refill must not write ledger transactions, got %d", got)
	}
}

func TestResetTreasuryDayRollsSpendCounter(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 100)
	store.treasury.TodaySpent = 480
	store.treasury.DayStartUnixUTC = 0
	service := mustNewService(test, store)

	reset, err := service.ResetTreasuryDay(context.Background())
	if err != nil {
		test.Fatalf("reset: %v", err)
	}
	if !reset {
		test.Fatalf("expected a rollover")
	}
	if store.treasury.TodaySpent != 0 {
		test.Fatalf("expected spend counter reset, got %d", store.treasury.TodaySpent)
	}
	if store.treasury.DayStartUnixUTC != startOfDayUnixUTC(1_700_000_000) {
		test.Fatalf("unexpected day start %d", store.treasury.DayStartUnixUTC)
	}
}

func TestResetTreasuryDayIdempotentWithinWindow(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 100)
	service := mustNewService(test, store)

	first, err := service.ResetTreasuryDay(context.Background())
	if err != nil || !first {
		test.Fatalf("first reset: reset=%v err=%v", first, err)
	}
	second, err := service.ResetTreasuryDay(context.Background())
	if err != nil {
		test.Fatalf("second reset: %v", err)
	}
	if second {
		test.Fatalf("repeat within the same day must be a no-op")
	}
}

func TestEarnRollsOverStaleDayWindow(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 10000)
	store.treasury.DailySpendLimit = 100
	store.treasury.TodaySpent = 100
	store.treasury.DayStartUnixUTC = startOfDayUnixUTC(1_700_000_000) - secondsPerDay
	service := mustNewService(test, store)
	request := mustEarnRequest(test, "user-roll", 10, "bot.engagement.like", "idem-roll-1")
	request.BotAttributed = true

	result, err := service.Execute(context.Background(), request)
	if err != nil {
		test.Fatalf("execute: %v", err)
	}
	if result.AwardedAmount != 10 {
		test.Fatalf("expected award after rollover, got %d", result.AwardedAmount)
	}
	if store.treasury.TodaySpent != 10 {
		test.Fatalf("expected fresh counter at 10, got %d", store.treasury.TodaySpent)
	}
}

func TestSetWalletCapValidation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 100)
	service := mustNewService(test, store)

	if err := service.SetWalletCap(context.Background(), TreasuryWallet(), nil); !errors.Is(err, ErrInvalidWalletRef) {
		test.Fatalf("expected ErrInvalidWalletRef for treasury, got %v", err)
	}
	negative := int64(-1)
	owner := mustWalletRef(test, "capped-user")
	if err := service.SetWalletCap(context.Background(), owner, &negative); !errors.Is(err, ErrInvalidCoinAmount) {
		test.Fatalf("expected ErrInvalidCoinAmount, got %v", err)
	}
	override := int64(250)
	if err := service.SetWalletCap(context.Background(), owner, &override); err != nil {
		test.Fatalf("set cap: %v", err)
	}
	wallet := store.wallets["capped-user"]
	if wallet.CapOverride == nil || *wallet.CapOverride != 250 {
		test.Fatalf("expected override 250, got %+v", wallet.CapOverride)
	}
}

func TestPurgeIdempotencyRecordsRemovesExpired(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 100)
	store.idempotency["old"] = IdempotencyRecord{Key: "old", ExpiresAtUnixUTC: 1}
	store.idempotency["live"] = IdempotencyRecord{Key: "live", ExpiresAtUnixUTC: 2_000_000_000}
	service := mustNewService(test, store)

	purged, err := service.PurgeIdempotencyRecords(context.Background())
	if err != nil {
		test.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		test.Fatalf("expected 1 purged, got %d", purged)
	}
	if _, ok := store.idempotency["live"]; !ok {
		test.Fatalf("live record must survive the purge")
	}
}

func TestClipCredit(test *testing.T) {
	test.Parallel()
	cases := []struct {
		name     string
		balance  int64
		proposed int64
		cap      int64
		want     int64
	}{
		{name: "uncapped", balance: 50, proposed: 100, cap: 0, want: 100},
		{name: "full headroom", balance: 10, proposed: 40, cap: 100, want: 40},
		{name: "partial clip", balance: 980, proposed: 50, cap: 1000, want: 20},
		{name: "at cap", balance: 1000, proposed: 5, cap: 1000, want: 0},
		{name: "over cap", balance: 1200, proposed: 5, cap: 1000, want: 0},
	}
	for _, testCase := range cases {
		if got := clipCredit(testCase.balance, testCase.proposed, testCase.cap); got != testCase.want {
			test.Fatalf("%s: expected %d, got %d", testCase.name, testCase.want, got)
		}
	}
}
