package bots

import (
	"math/rand"
)

// Per-action coin awards for synthetic engagement. Marketplace purchases
// pay the listing price instead.
const (
	likeAwardCoins     int64 = 2
	followAwardCoins   int64 = 3
	replyAwardCoins    int64 = 1
	referralAwardCoins int64 = 25
)

// strategy captures the per-purpose branching: which targets a bot scans
// and which action it takes against a picked target.
type strategy interface {
	targetKinds() []TargetKind
	chooseAction(rng *rand.Rand, target Target, remaining map[ActionType]int) (ActionType, int64, bool)
}

func strategyFor(purpose Purpose) strategy {
	switch purpose {
	case PurposeMarketplace:
		return marketplaceStrategy{}
	case PurposeReferral:
		return referralStrategy{}
	default:
		return engagementStrategy{}
	}
}

// engagementStrategy acts on fresh threads and content with small likes,
// follows, and reply boosts.
type engagementStrategy struct{}

func (engagementStrategy) targetKinds() []TargetKind {
	return []TargetKind{TargetThread, TargetContent}
}

func (engagementStrategy) chooseAction(rng *rand.Rand, target Target, remaining map[ActionType]int) (ActionType, int64, bool) {
	type option struct {
		action ActionType
		coins  int64
	}
	options := make([]option, 0, 3)
	if remaining[ActionLike] > 0 {
		options = append(options, option{ActionLike, likeAwardCoins})
	}
	if remaining[ActionFollow] > 0 {
		options = append(options, option{ActionFollow, followAwardCoins})
	}
	if remaining[ActionReply] > 0 {
		options = append(options, option{ActionReply, replyAwardCoins})
	}
	if len(options) == 0 {
		return "", 0, false
	}
	picked := options[rng.Intn(len(options))]
	return picked.action, picked.coins, true
}

// marketplaceStrategy buys purchasable content at its listed price.
type marketplaceStrategy struct{}

func (marketplaceStrategy) targetKinds() []TargetKind {
	return []TargetKind{TargetListing}
}

func (marketplaceStrategy) chooseAction(_ *rand.Rand, target Target, remaining map[ActionType]int) (ActionType, int64, bool) {
	if remaining[ActionPurchase] <= 0 || target.Price <= 0 {
		return "", 0, false
	}
	return ActionPurchase, target.Price, true
}

// referralStrategy welcomes recently registered users with a referral bonus.
type referralStrategy struct{}

func (referralStrategy) targetKinds() []TargetKind {
	return []TargetKind{TargetUser}
}

func (referralStrategy) chooseAction(_ *rand.Rand, target Target, remaining map[ActionType]int) (ActionType, int64, bool) {
	if remaining[ActionReferralBonus] <= 0 {
		return "", 0, false
	}
	return ActionReferralBonus, referralAwardCoins, true
}

// pickTarget selects one candidate with probability weighted toward recency,
// so repeated ticks don't walk the list in a detectable order.
func pickTarget(rng *rand.Rand, candidates []Target, nowUnixUTC int64) Target {
	if len(candidates) == 1 {
		return candidates[0]
	}
	weights := make([]float64, len(candidates))
	var totalWeight float64
	for index, candidate := range candidates {
		ageMinutes := float64(nowUnixUTC-candidate.CreatedUnixUTC) / 60.0
		if ageMinutes < 0 {
			ageMinutes = 0
		}
		weights[index] = 1.0 / (1.0 + ageMinutes)
		totalWeight += weights[index]
	}
	roll := rng.Float64() * totalWeight
	for index, weight := range weights {
		roll -= weight
		if roll <= 0 {
			return candidates[index]
		}
	}
	return candidates[len(candidates)-1]
}

// actProbability maps trust level (0..100) to the chance a bot acts at all
// in a given tick.
func actProbability(trustLevel int) float64 {
	if trustLevel <= 0 {
		return 0
	}
	if trustLevel >= 100 {
		return 1
	}
	return float64(trustLevel) / 100.0
}
