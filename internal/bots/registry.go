package bots

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CreateBot validates and registers a new bot, inactive by default until
// explicitly enabled.
func (service *Service) CreateBot(requestContext context.Context, name string, purpose Purpose, trustLevel int, caps map[ActionType]int) (Bot, error) {
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return Bot{}, fmt.Errorf("%w: empty value", ErrInvalidBotName)
	}
	if _, err := ParsePurpose(string(purpose)); err != nil {
		return Bot{}, err
	}
	if trustLevel < 0 || trustLevel > 100 {
		return Bot{}, fmt.Errorf("%w: %d outside 0..100", ErrInvalidTrustLevel, trustLevel)
	}
	if len(caps) == 0 {
		return Bot{}, fmt.Errorf("%w: at least one action cap required", ErrInvalidActivityCaps)
	}
	for action, dailyCap := range caps {
		if dailyCap < 0 {
			return Bot{}, fmt.Errorf("%w: negative cap for %s", ErrInvalidActivityCaps, action)
		}
	}
	bot := Bot{
		BotID:          uuid.NewString(),
		Name:           trimmedName,
		Purpose:        purpose,
		TrustLevel:     trustLevel,
		ActivityCaps:   caps,
		IsActive:       false,
		CreatedUnixUTC: service.nowFn(),
	}
	if err := service.store.CreateBot(requestContext, bot); err != nil {
		return Bot{}, err
	}
	return bot, nil
}

// ToggleBot activates or deactivates a bot. Deactivation is the soft delete:
// the bot and its action history stay queryable.
func (service *Service) ToggleBot(requestContext context.Context, botID string, active bool) (Bot, error) {
	bot, err := service.store.GetBot(requestContext, botID)
	if err != nil {
		return Bot{}, err
	}
	if bot.IsActive == active {
		return bot, nil
	}
	bot.IsActive = active
	if err := service.store.SaveBot(requestContext, bot); err != nil {
		return Bot{}, err
	}
	return bot, nil
}

// UpdateBotCaps replaces a bot's per-action daily maximums.
func (service *Service) UpdateBotCaps(requestContext context.Context, botID string, caps map[ActionType]int) (Bot, error) {
	if len(caps) == 0 {
		return Bot{}, fmt.Errorf("%w: at least one action cap required", ErrInvalidActivityCaps)
	}
	for action, dailyCap := range caps {
		if dailyCap < 0 {
			return Bot{}, fmt.Errorf("%w: negative cap for %s", ErrInvalidActivityCaps, action)
		}
	}
	bot, err := service.store.GetBot(requestContext, botID)
	if err != nil {
		return Bot{}, err
	}
	bot.ActivityCaps = caps
	if err := service.store.SaveBot(requestContext, bot); err != nil {
		return Bot{}, err
	}
	return bot, nil
}

// GetBot returns one bot by id.
func (service *Service) GetBot(requestContext context.Context, botID string) (Bot, error) {
	return service.store.GetBot(requestContext, botID)
}
