package bots

import (
	"context"
	"time"
)

// Purpose selects the behavior family of a bot.
type Purpose string

const (
	PurposeEngagement  Purpose = "engagement"
	PurposeMarketplace Purpose = "marketplace"
	PurposeReferral    Purpose = "referral"
)

// ParsePurpose validates a raw purpose value.
func ParsePurpose(raw string) (Purpose, error) {
	switch Purpose(raw) {
	case PurposeEngagement, PurposeMarketplace, PurposeReferral:
		return Purpose(raw), nil
	}
	return "", ErrInvalidPurpose
}

// ActionType names one thing a bot can do in a tick.
type ActionType string

const (
	ActionLike          ActionType = "like"
	ActionFollow        ActionType = "follow"
	ActionReply         ActionType = "reply"
	ActionPurchase      ActionType = "purchase"
	ActionReferralBonus ActionType = "referral_bonus"
)

// TargetKind classifies selector candidates.
type TargetKind string

const (
	TargetThread  TargetKind = "thread"
	TargetContent TargetKind = "content"
	TargetListing TargetKind = "listing"
	TargetUser    TargetKind = "user"
)

// Bot is a registered synthetic actor. Deactivated bots keep their action
// history; nothing is ever purged.
type Bot struct {
	BotID          string
	Name           string
	Purpose        Purpose
	TrustLevel     int
	ActivityCaps   map[ActionType]int
	IsActive       bool
	CreatedUnixUTC int64
}

// Target is one candidate piece of recent content a bot may act on.
type Target struct {
	TargetID       string
	Kind           TargetKind
	AuthorID       string
	Price          int64
	CreatedUnixUTC int64
}

// BotAction is the append-only audit record of one attempted action. A
// failed attempt has no TransactionID and carries the failure text instead.
type BotAction struct {
	ActionID       string
	BotID          string
	Action         ActionType
	TargetKind     TargetKind
	TargetID       string
	CoinAmount     int64
	TransactionID  string
	Failure        string
	CreatedUnixUTC int64
}

// TickReport summarizes one scheduler pass.
type TickReport struct {
	StartedUnixUTC int64
	BotsConsidered int
	ActionsTaken   int
	BotsIdle       int
	BotsSkipped    int
	Failures       int
	Duration       time.Duration
}

// Store is the persistence contract used by the registry and scheduler.
type Store interface {
	CreateBot(ctx context.Context, bot Bot) error
	GetBot(ctx context.Context, botID string) (Bot, error)
	SaveBot(ctx context.Context, bot Bot) error
	ListActiveBots(ctx context.Context) ([]Bot, error)
	CountActionsSince(ctx context.Context, botID string, action ActionType, sinceUnixUTC int64) (int, error)
	RecordAction(ctx context.Context, action BotAction) error
	ListRecentTargets(ctx context.Context, kinds []TargetKind, sinceUnixUTC int64, limit int) ([]Target, error)
	ActedTargetIDs(ctx context.Context, botID string, targetIDs []string) (map[string]bool, error)
}
