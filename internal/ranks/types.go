package ranks

import "context"

// Progress tracks one user's lifetime and weekly XP. CurrentXP never
// decreases; WeeklyXP resets when the week window advances.
type Progress struct {
	UserID           string
	CurrentXP        int64
	WeeklyXP         int64
	CurrentRankID    string
	WeekStartUnixUTC int64
}

// RankTier is an ordered progression level. Position increases with MinXP.
type RankTier struct {
	TierID   string
	Name     string
	MinXP    int64
	Position int
}

// FeatureUnlock names a capability granted by reaching a tier.
type FeatureUnlock struct {
	UnlockID    string
	RankTierID  string
	FeatureKey  string
	Description string
}

// XpResult reports the outcome of one award: how much survived the weekly
// cap, the updated totals, and any features newly in range.
type XpResult struct {
	RequestedXP      int64
	AwardedXP        int64
	TotalXP          int64
	WeeklyXP         int64
	WeeklyCapReached bool
	RankChanged      bool
	RankID           string
	UnlockedFeatures []FeatureUnlock
}

// Store is the persistence contract used by Service. GetProgressForUpdate
// must take an exclusive row lock so concurrent awards for the same user
// serialize, which also guards the lazy weekly reset.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetProgressForUpdate(ctx context.Context, userID string) (Progress, error)
	SaveProgress(ctx context.Context, progress Progress) error
	ListTiers(ctx context.Context) ([]RankTier, error)
	ListUnlocksForTiers(ctx context.Context, tierIDs []string) ([]FeatureUnlock, error)
	GetProgress(ctx context.Context, userID string) (Progress, error)
}
