package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/amberforum/economy/internal/ranks"
)

// RankStore implements ranks.Store over the same database.
type RankStore struct {
	db *gorm.DB
}

// NewRankStore returns a RankStore backed by gorm.DB.
func NewRankStore(db *gorm.DB) *RankStore {
	return &RankStore{db: db}
}

// WithTx executes fn within a database transaction.
func (store *RankStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ranks.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &RankStore{db: transaction})
	})
}

// GetProgress returns a user's progress, creating an empty row on first
// touch.
func (store *RankStore) GetProgress(ctx context.Context, userID string) (ranks.Progress, error) {
	var row RankProgressRow
	err := store.db.WithContext(ctx).
		FirstOrCreate(&row, RankProgressRow{UserID: userID}).Error
	if err != nil {
		return ranks.Progress{}, err
	}
	return mapProgress(row), nil
}

// GetProgressForUpdate locks the progress row for the rest of the
// transaction, creating it first when missing.
func (store *RankStore) GetProgressForUpdate(ctx context.Context, userID string) (ranks.Progress, error) {
	var row RankProgressRow
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created := RankProgressRow{UserID: userID}
		if createErr := store.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&created).Error; createErr != nil {
			return ranks.Progress{}, createErr
		}
		err = store.db.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			Take(&row).Error
	}
	if err != nil {
		return ranks.Progress{}, err
	}
	return mapProgress(row), nil
}

// SaveProgress persists a user's progress. Callers hold the row lock.
func (store *RankStore) SaveProgress(ctx context.Context, progress ranks.Progress) error {
	return store.db.WithContext(ctx).
		Model(&RankProgressRow{}).
		Where("user_id = ?", progress.UserID).
		Updates(map[string]interface{}{
			"current_xp":      progress.CurrentXP,
			"weekly_xp":       progress.WeeklyXP,
			"current_rank_id": progress.CurrentRankID,
			"week_started_at": time.Unix(progress.WeekStartUnixUTC, 0).UTC(),
		}).Error
}

// ListTiers returns all tiers ordered by ascending threshold.
func (store *RankStore) ListTiers(ctx context.Context) ([]ranks.RankTier, error) {
	var rows []RankTierRow
	err := store.db.WithContext(ctx).
		Order("min_xp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	tiers := make([]ranks.RankTier, 0, len(rows))
	for _, row := range rows {
		tiers = append(tiers, ranks.RankTier{
			TierID:   row.TierID,
			Name:     row.Name,
			MinXP:    row.MinXP,
			Position: row.Position,
		})
	}
	return tiers, nil
}

// ListUnlocksForTiers returns the unlocks granted by the given tiers.
func (store *RankStore) ListUnlocksForTiers(ctx context.Context, tierIDs []string) ([]ranks.FeatureUnlock, error) {
	if len(tierIDs) == 0 {
		return nil, nil
	}
	var rows []FeatureUnlockRow
	err := store.db.WithContext(ctx).
		Where("rank_tier_id IN ?", tierIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	unlocks := make([]ranks.FeatureUnlock, 0, len(rows))
	for _, row := range rows {
		unlocks = append(unlocks, ranks.FeatureUnlock{
			UnlockID:    row.UnlockID,
			RankTierID:  row.RankTierID,
			FeatureKey:  row.FeatureKey,
			Description: row.Description,
		})
	}
	return unlocks, nil
}

// SeedTiers inserts tier and unlock reference data when absent.
func (store *RankStore) SeedTiers(ctx context.Context, tiers []ranks.RankTier, unlocks []ranks.FeatureUnlock) error {
	for _, tier := range tiers {
		row := RankTierRow{
			TierID:   tier.TierID,
			Name:     tier.Name,
			MinXP:    tier.MinXP,
			Position: tier.Position,
		}
		if err := store.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&row).Error; err != nil {
			return err
		}
	}
	for _, unlock := range unlocks {
		row := FeatureUnlockRow{
			UnlockID:    unlock.UnlockID,
			RankTierID:  unlock.RankTierID,
			FeatureKey:  unlock.FeatureKey,
			Description: unlock.Description,
		}
		if err := store.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func mapProgress(row RankProgressRow) ranks.Progress {
	return ranks.Progress{
		UserID:           row.UserID,
		CurrentXP:        row.CurrentXP,
		WeeklyXP:         row.WeeklyXP,
		CurrentRankID:    row.CurrentRankID,
		WeekStartUnixUTC: row.WeekStartedAt.Unix(),
	}
}
