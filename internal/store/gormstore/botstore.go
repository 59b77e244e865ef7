package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/amberforum/economy/internal/bots"
)

// BotStore implements bots.Store over the same database.
type BotStore struct {
	db *gorm.DB
}

// NewBotStore returns a BotStore backed by gorm.DB.
func NewBotStore(db *gorm.DB) *BotStore {
	return &BotStore{db: db}
}

func (store *BotStore) CreateBot(ctx context.Context, bot bots.Bot) error {
	row, err := botToRow(bot)
	if err != nil {
		return err
	}
	return store.db.WithContext(ctx).Create(&row).Error
}

func (store *BotStore) GetBot(ctx context.Context, botID string) (bots.Bot, error) {
	var row BotRow
	err := store.db.WithContext(ctx).
		Where("bot_id = ?", botID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return bots.Bot{}, bots.ErrUnknownBot
	}
	if err != nil {
		return bots.Bot{}, err
	}
	return rowToBot(row)
}

func (store *BotStore) SaveBot(ctx context.Context, bot bots.Bot) error {
	row, err := botToRow(bot)
	if err != nil {
		return err
	}
	result := store.db.WithContext(ctx).
		Model(&BotRow{}).
		Where("bot_id = ?", bot.BotID).
		Updates(map[string]interface{}{
			"name":          row.Name,
			"purpose":       row.Purpose,
			"trust_level":   row.TrustLevel,
			"activity_caps": row.ActivityCaps,
			"is_active":     row.IsActive,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return bots.ErrUnknownBot
	}
	return nil
}

func (store *BotStore) ListActiveBots(ctx context.Context) ([]bots.Bot, error) {
	var rows []BotRow
	err := store.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	activeBots := make([]bots.Bot, 0, len(rows))
	for _, row := range rows {
		bot, err := rowToBot(row)
		if err != nil {
			return nil, err
		}
		activeBots = append(activeBots, bot)
	}
	return activeBots, nil
}

func (store *BotStore) CountActionsSince(ctx context.Context, botID string, action bots.ActionType, sinceUnixUTC int64) (int, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&BotActionRow{}).
		Where("bot_id = ? AND action = ? AND failure IS NULL AND created_at >= ?",
			botID, string(action), time.Unix(sinceUnixUTC, 0).UTC()).
		Count(&count).Error
	return int(count), err
}

func (store *BotStore) RecordAction(ctx context.Context, action bots.BotAction) error {
	row := BotActionRow{
		ActionID:   action.ActionID,
		BotID:      action.BotID,
		Action:     string(action.Action),
		TargetKind: string(action.TargetKind),
		TargetID:   action.TargetID,
		CoinAmount: action.CoinAmount,
		CreatedAt:  time.Unix(action.CreatedUnixUTC, 0).UTC(),
	}
	if action.TransactionID != "" {
		transactionID := action.TransactionID
		row.TransactionID = &transactionID
	}
	if action.Failure != "" {
		failure := action.Failure
		row.Failure = &failure
	}
	return store.db.WithContext(ctx).Create(&row).Error
}

func (store *BotStore) ListRecentTargets(ctx context.Context, kinds []bots.TargetKind, sinceUnixUTC int64, limit int) ([]bots.Target, error) {
	kindValues := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		kindValues = append(kindValues, string(kind))
	}
	var rows []ContentItem
	err := store.db.WithContext(ctx).
		Where("kind IN ? AND created_at >= ?", kindValues, time.Unix(sinceUnixUTC, 0).UTC()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	targets := make([]bots.Target, 0, len(rows))
	for _, row := range rows {
		targets = append(targets, bots.Target{
			TargetID:       row.ContentID,
			Kind:           bots.TargetKind(row.Kind),
			AuthorID:       row.AuthorID,
			Price:          row.Price,
			CreatedUnixUTC: row.CreatedAt.Unix(),
		})
	}
	return targets, nil
}

func (store *BotStore) ActedTargetIDs(ctx context.Context, botID string, targetIDs []string) (map[string]bool, error) {
	var acted []string
	err := store.db.WithContext(ctx).
		Model(&BotActionRow{}).
		Distinct("target_id").
		Where("bot_id = ? AND target_id IN ? AND failure IS NULL", botID, targetIDs).
		Pluck("target_id", &acted).Error
	if err != nil {
		return nil, err
	}
	actedSet := make(map[string]bool, len(acted))
	for _, targetID := range acted {
		actedSet[targetID] = true
	}
	return actedSet, nil
}

func botToRow(bot bots.Bot) (BotRow, error) {
	caps, err := json.Marshal(bot.ActivityCaps)
	if err != nil {
		return BotRow{}, err
	}
	return BotRow{
		BotID:        bot.BotID,
		Name:         bot.Name,
		Purpose:      string(bot.Purpose),
		TrustLevel:   bot.TrustLevel,
		ActivityCaps: caps,
		IsActive:     bot.IsActive,
		CreatedAt:    time.Unix(bot.CreatedUnixUTC, 0).UTC(),
	}, nil
}

func rowToBot(row BotRow) (bots.Bot, error) {
	caps := map[bots.ActionType]int{}
	if len(row.ActivityCaps) > 0 {
		if err := json.Unmarshal(row.ActivityCaps, &caps); err != nil {
			return bots.Bot{}, err
		}
	}
	purpose, err := bots.ParsePurpose(row.Purpose)
	if err != nil {
		return bots.Bot{}, err
	}
	return bots.Bot{
		BotID:          row.BotID,
		Name:           row.Name,
		Purpose:        purpose,
		TrustLevel:     row.TrustLevel,
		ActivityCaps:   caps,
		IsActive:       row.IsActive,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}
