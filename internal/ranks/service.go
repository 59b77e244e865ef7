package ranks

import (
	"context"
	"fmt"
	"strings"
)

const secondsPerWeek int64 = 7 * 24 * 60 * 60

// unixWeekOffset aligns week windows to Monday 00:00 UTC; the Unix epoch
// fell on a Thursday, three days after a Monday.
const unixWeekOffset int64 = 3 * 24 * 60 * 60

// Service accumulates XP and resolves rank transitions over a Store.
type Service struct {
	store     Store
	nowFn     func() int64
	weeklyCap int64
	logger    OperationLogger
}

// NewService wires a Service. weeklyCap bounds XP earned per user per week.
func NewService(store Store, now func() int64, weeklyCap int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if weeklyCap <= 0 {
		return nil, fmt.Errorf("%w: weekly cap must be positive", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now, weeklyCap: weeklyCap}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// AwardXp adds XP for one activity, clipping to the weekly headroom rather
// than rejecting. The weekly window resets lazily on the first award after a
// week boundary; the progress row lock makes that reset happen exactly once.
func (service *Service) AwardXp(requestContext context.Context, userID string, activity string, amount int64, metadata map[string]string) (XpResult, error) {
	if strings.TrimSpace(userID) == "" {
		return XpResult{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if strings.TrimSpace(activity) == "" {
		return XpResult{}, fmt.Errorf("%w: empty value", ErrInvalidActivity)
	}
	if amount <= 0 {
		return XpResult{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidXPAmount)
	}
	var result XpResult
	err := service.store.WithTx(requestContext, func(ctx context.Context, txStore Store) error {
		progress, err := txStore.GetProgressForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		weekStart := startOfWeekUnixUTC(service.nowFn())
		if progress.WeekStartUnixUTC < weekStart {
			progress.WeeklyXP = 0
			progress.WeekStartUnixUTC = weekStart
		}
		headroom := service.weeklyCap - progress.WeeklyXP
		if headroom < 0 {
			headroom = 0
		}
		awarded := amount
		if awarded > headroom {
			awarded = headroom
		}
		progress.CurrentXP += awarded
		progress.WeeklyXP += awarded

		tiers, err := txStore.ListTiers(ctx)
		if err != nil {
			return err
		}
		previousRankID := progress.CurrentRankID
		newRank := resolveRank(tiers, progress.CurrentXP)
		if newRank != nil {
			progress.CurrentRankID = newRank.TierID
		}
		result = XpResult{
			RequestedXP:      amount,
			AwardedXP:        awarded,
			TotalXP:          progress.CurrentXP,
			WeeklyXP:         progress.WeeklyXP,
			WeeklyCapReached: progress.WeeklyXP >= service.weeklyCap,
			RankID:           progress.CurrentRankID,
		}
		if progress.CurrentRankID != previousRankID {
			result.RankChanged = true
			newTierIDs := tierIDsBetween(tiers, previousRankID, progress.CurrentRankID)
			unlocks, err := txStore.ListUnlocksForTiers(ctx, newTierIDs)
			if err != nil {
				return err
			}
			result.UnlockedFeatures = unlocks
		}
		return txStore.SaveProgress(ctx, progress)
	})
	if service.logger != nil {
		service.logger.LogXpAward(requestContext, AwardLog{
			UserID:      userID,
			Activity:    activity,
			RequestedXP: amount,
			AwardedXP:   result.AwardedXP,
			RankChanged: result.RankChanged,
			RankID:      result.RankID,
			Metadata:    metadata,
			Error:       err,
		})
	}
	if err != nil {
		return XpResult{}, err
	}
	return result, nil
}

// GetProgress returns a user's progress view without mutating it.
func (service *Service) GetProgress(requestContext context.Context, userID string) (Progress, error) {
	if strings.TrimSpace(userID) == "" {
		return Progress{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return service.store.GetProgress(requestContext, userID)
}

// resolveRank returns the highest tier whose threshold the XP meets. Tiers
// are expected ordered by ascending MinXP.
func resolveRank(tiers []RankTier, currentXP int64) *RankTier {
	var best *RankTier
	for index := range tiers {
		if tiers[index].MinXP <= currentXP {
			best = &tiers[index]
		}
	}
	return best
}

// tierIDsBetween collects the tiers newly in range after a rank change:
// everything above the previous rank up to and including the new one.
func tierIDsBetween(tiers []RankTier, previousRankID string, newRankID string) []string {
	previousPosition := -1
	newPosition := -1
	for _, tier := range tiers {
		if tier.TierID == previousRankID {
			previousPosition = tier.Position
		}
		if tier.TierID == newRankID {
			newPosition = tier.Position
		}
	}
	var ids []string
	for _, tier := range tiers {
		if tier.Position > previousPosition && tier.Position <= newPosition {
			ids = append(ids, tier.TierID)
		}
	}
	return ids
}

func startOfWeekUnixUTC(nowUnixUTC int64) int64 {
	shifted := nowUnixUTC + unixWeekOffset
	return shifted - (shifted % secondsPerWeek) - unixWeekOffset
}
