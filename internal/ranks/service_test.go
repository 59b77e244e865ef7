package ranks

import (
	"context"
	"errors"
	"testing"
)

const testNowUnixUTC int64 = 1_700_000_000

func TestAwardXpAccumulates(test *testing.T) {
	test.Parallel()
	store := newStubRankStore(test)
	service := mustNewRankService(test, store, 1000)

	result, err := service.AwardXp(context.Background(), "user-1", "forum.reply", 30, nil)
	if err != nil {
		test.Fatalf("award: %v", err)
	}
	if result.AwardedXP != 30 || result.TotalXP != 30 {
		test.Fatalf("unexpected result %+v", result)
	}
	if got := store.progress["user-1"].CurrentXP; got != 30 {
		test.Fatalf("expected persisted XP 30, got %d", got)
	}
}

func TestAwardXpClipsToWeeklyCap(test *testing.T) {
	test.Parallel()
	store := newStubRankStore(test)
	store.progress["user-2"] = Progress{
		UserID:           "user-2",
		CurrentXP:        400,
		WeeklyXP:         90,
		CurrentRankID:    "newcomer",
		WeekStartUnixUTC: startOfWeekUnixUTC(testNowUnixUTC),
	}
	service := mustNewRankService(test, store, 100)

	result, err := service.AwardXp(context.Background(), "user-2", "forum.thread", 50, nil)
	if err != nil {
		test.Fatalf("award: %v", err)
	}
	if result.AwardedXP != 10 {
		test.Fatalf("expected award clipped to 10, got %d", result.AwardedXP)
	}
	if !result.WeeklyCapReached {
		test.Fatalf("expected WeeklyCapReached")
	}
	if result.TotalXP != 410 {
		test.Fatalf("expected total 410, got %d", result.TotalXP)
	}
}

func TestAwardXpAtCapAwardsZero(test *testing.T) {
	test.Parallel()
	store := newStubRankStore(test)
	store.progress["user-3"] = Progress{
		UserID:           "user-3",
		CurrentXP:        700,
		WeeklyXP:         100,
		CurrentRankID:    "regular",
		WeekStartUnixUTC: startOfWeekUnixUTC(testNowUnixUTC),
	}
	service := mustNewRankService(test, store, 100)

	result, err := service.AwardXp(context.Background(), "user-3", "forum.reply", 20, nil)
	if err != nil {
		test.Fatalf("award: %v", err)
	}
	if result.AwardedXP != 0 {
		test.Fatalf("expected zero award at cap, got %d", result.AwardedXP)
	}
	if result.TotalXP != 700 {
		test.Fatalf("total must not move at cap, got %d", result.TotalXP)
	}
}

func TestAwardXpResetsStaleWeek(test *testing.T) {
	test.Parallel()
	store := newStubRankStore(test)
	store.progress["user-4"] = Progress{
		UserID:           "user-4",
		CurrentXP:        250,
		WeeklyXP:         100,
		CurrentRankID:    "newcomer",
		WeekStartUnixUTC: startOfWeekUnixUTC(testNowUnixUTC) - secondsPerWeek,
	}
	service := mustNewRankService(test, store, 100)

	result, err := service.AwardXp(context.Background(), "user-4", "forum.reply", 40, nil)
	if err != nil {
		test.Fatalf("award: %v", err)
	}
	if result.AwardedXP != 40 {
		test.Fatalf("expected full award after weekly reset, got %d", result.AwardedXP)
	}
	if result.WeeklyXP != 40 {
		test.Fatalf("expected weekly counter restarted at 40, got %d", result.WeeklyXP)
	}
	if got := store.progress["user-4"].WeekStartUnixUTC; got != startOfWeekUnixUTC(testNowUnixUTC) {
		test.Fatalf("expected week window advanced, got %d", got)
	}
}

func TestAwardXpCrossesRankAndReportsUnlocks(test *testing.T) {
	test.Parallel()
	store := newStubRankStore(test)
	store.progress["user-5"] = Progress{
		UserID:           "user-5",
		CurrentXP:        490,
		WeeklyXP:         0,
		CurrentRankID:    "newcomer",
		WeekStartUnixUTC: startOfWeekUnixUTC(testNowUnixUTC),
	}
	service := mustNewRankService(test, store, 1000)

	result, err := service.AwardXp(context.Background(), "user-5", "forum.thread", 20, nil)
	if err != nil {
		test.Fatalf("award: %v", err)
	}
	if !result.RankChanged {
		test.Fatalf("expected a rank change at 510 XP")
	}
	if result.RankID != "regular" {
		test.Fatalf("expected rank regular, got %s", result.RankID)
	}
	if len(result.UnlockedFeatures) != 1 || result.UnlockedFeatures[0].FeatureKey != "marketplace.sell" {
		test.Fatalf("unexpected unlocks %+v", result.UnlockedFeatures)
	}
}

func TestAwardXpSkippingTiersCollectsAllUnlocks(test *testing.T) {
	test.Parallel()
	store := newStubRankStore(test)
	store.progress["user-6"] = Progress{
		UserID:           "user-6",
		CurrentXP:        1990,
		WeeklyXP:         0,
		CurrentRankID:    "newcomer",
		WeekStartUnixUTC: startOfWeekUnixUTC(testNowUnixUTC),
	}
	service := mustNewRankService(test, store, 5000)

	result, err := service.AwardXp(context.Background(), "user-6", "forum.thread", 20, nil)
	if err != nil {
		test.Fatalf("award: %v", err)
	}
	if result.RankID != "contributor" {
		test.Fatalf("expected contributor, got %s", result.RankID)
	}
	if len(result.UnlockedFeatures) != 2 {
		test.Fatalf("expected unlocks for both skipped tiers, got %+v", result.UnlockedFeatures)
	}
}

func TestAwardXpValidation(test *testing.T) {
	test.Parallel()
	store := newStubRankStore(test)
	service := mustNewRankService(test, store, 100)

	if _, err := service.AwardXp(context.Background(), " ", "forum.reply", 10, nil); !errors.Is(err, ErrInvalidUserID) {
		test.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	if _, err := service.AwardXp(context.Background(), "user", " ", 10, nil); !errors.Is(err, ErrInvalidActivity) {
		test.Fatalf("expected ErrInvalidActivity, got %v", err)
	}
	if _, err := service.AwardXp(context.Background(), "user", "forum.reply", 0, nil); !errors.Is(err, ErrInvalidXPAmount) {
		test.Fatalf("expected ErrInvalidXPAmount, got %v", err)
	}
}

func TestNewServiceRequiresDependencies(test *testing.T) {
	test.Parallel()
	store := newStubRankStore(test)
	now := func() int64 { return testNowUnixUTC }
	if _, err := NewService(nil, now, 100); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected config error for nil store, got %v", err)
	}
	if _, err := NewService(store, nil, 100); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected config error for nil clock, got %v", err)
	}
	if _, err := NewService(store, now, 0); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected config error for zero cap, got %v", err)
	}
}

func TestStartOfWeekIsMondayUTC(test *testing.T) {
	test.Parallel()
	// 1_700_000_000 falls on Tuesday 2023-11-14; its week began Monday
	// 2023-11-13 00:00 UTC.
	tuesday := int64(1_700_000_000)
	monday := int64(1_699_833_600)
	if got := startOfWeekUnixUTC(tuesday); got != monday {
		test.Fatalf("expected week start %d, got %d", monday, got)
	}
	if got := startOfWeekUnixUTC(monday); got != monday {
		test.Fatalf("monday must be its own week start, got %d", got)
	}
}

type stubRankStore struct {
	progress map[string]Progress
	tiers    []RankTier
	unlocks  []FeatureUnlock
}

func newStubRankStore(test *testing.T) *stubRankStore {
	test.Helper()
	return &stubRankStore{
		progress: make(map[string]Progress),
		tiers: []RankTier{
			{TierID: "newcomer", Name: "Newcomer", MinXP: 0, Position: 1},
			{TierID: "regular", Name: "Regular", MinXP: 500, Position: 2},
			{TierID: "contributor", Name: "Contributor", MinXP: 2000, Position: 3},
		},
		unlocks: []FeatureUnlock{
			{UnlockID: "u-1", RankTierID: "regular", FeatureKey: "marketplace.sell"},
			{UnlockID: "u-2", RankTierID: "contributor", FeatureKey: "forum.signature"},
		},
	}
}

func (store *stubRankStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubRankStore) GetProgressForUpdate(ctx context.Context, userID string) (Progress, error) {
	if progress, ok := store.progress[userID]; ok {
		return progress, nil
	}
	progress := Progress{UserID: userID, CurrentRankID: "newcomer"}
	store.progress[userID] = progress
	return progress, nil
}

func (store *stubRankStore) SaveProgress(ctx context.Context, progress Progress) error {
	store.progress[progress.UserID] = progress
	return nil
}

func (store *stubRankStore) ListTiers(ctx context.Context) ([]RankTier, error) {
	return append([]RankTier(nil), store.tiers...), nil
}

func (store *stubRankStore) ListUnlocksForTiers(ctx context.Context, tierIDs []string) ([]FeatureUnlock, error) {
	wanted := make(map[string]struct{}, len(tierIDs))
	for _, tierID := range tierIDs {
		wanted[tierID] = struct{}{}
	}
	var out []FeatureUnlock
	for _, unlock := range store.unlocks {
		if _, ok := wanted[unlock.RankTierID]; ok {
			out = append(out, unlock)
		}
	}
	return out, nil
}

func (store *stubRankStore) GetProgress(ctx context.Context, userID string) (Progress, error) {
	if progress, ok := store.progress[userID]; ok {
		return progress, nil
	}
	return Progress{UserID: userID, CurrentRankID: "newcomer"}, nil
}

func mustNewRankService(test *testing.T, store Store, weeklyCap int64) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return testNowUnixUTC }, weeklyCap)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}
