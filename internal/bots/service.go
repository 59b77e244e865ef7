package bots

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amberforum/economy/internal/metrics"
	"github.com/amberforum/economy/pkg/economy"
)

const (
	defaultLookback       = 30 * time.Minute
	defaultTickBudget     = 2 * time.Minute
	defaultConcurrency    = 4
	defaultCandidateLimit = 50

	secondsPerDay int64 = 24 * 60 * 60
)

// Ledger is the slice of the economy service the scheduler needs. Every
// bot-attributed credit flows through it, which is what ties bot activity
// to treasury funding and the daily spend cap.
type Ledger interface {
	Execute(ctx context.Context, request economy.TransactionRequest) (economy.TransactionResult, error)
}

// Service drives bot ticks: a single logical driver fires RunTick on a
// timer; within a tick independent bots run concurrently.
type Service struct {
	store          Store
	ledger         Ledger
	nowFn          func() int64
	seedFn         func() int64
	logger         *zap.Logger
	lookback       time.Duration
	tickBudget     time.Duration
	concurrency    int
	candidateLimit int
}

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithLookback overrides the candidate scan window.
func WithLookback(window time.Duration) ServiceOption {
	return func(service *Service) {
		if window > 0 {
			service.lookback = window
		}
	}
}

// WithTickBudget bounds how long one tick may keep starting new bot runs.
func WithTickBudget(budget time.Duration) ServiceOption {
	return func(service *Service) {
		if budget > 0 {
			service.tickBudget = budget
		}
	}
}

// WithConcurrency bounds how many bots run at once within a tick.
func WithConcurrency(workers int) ServiceOption {
	return func(service *Service) {
		if workers > 0 {
			service.concurrency = workers
		}
	}
}

// WithRandSeed overrides per-bot RNG seeding (tests).
func WithRandSeed(seed func() int64) ServiceOption {
	return func(service *Service) {
		if seed != nil {
			service.seedFn = seed
		}
	}
}

// NewService wires the scheduler.
func NewService(store Store, ledger Ledger, now func() int64, logger *zap.Logger, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &Service{
		store:          store,
		ledger:         ledger,
		nowFn:          now,
		seedFn:         func() int64 { return time.Now().UnixNano() },
		logger:         logger,
		lookback:       defaultLookback,
		tickBudget:     defaultTickBudget,
		concurrency:    defaultConcurrency,
		candidateLimit: defaultCandidateLimit,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

type botOutcome int

const (
	outcomeActed botOutcome = iota
	outcomeIdle
	outcomeSkipped
	outcomeFailed
)

// RunTick executes one scheduling pass over all active bots. A bot's
// failure is recorded and isolated; it never aborts the tick for the rest.
// Once the tick budget elapses, in-flight bots finish but no new bot starts.
func (service *Service) RunTick(requestContext context.Context) (TickReport, error) {
	startedUnixUTC := service.nowFn()
	startedAt := time.Now()
	report := TickReport{StartedUnixUTC: startedUnixUTC}

	activeBots, err := service.store.ListActiveBots(requestContext)
	if err != nil {
		return report, err
	}
	report.BotsConsidered = len(activeBots)

	tickContext, cancel := context.WithTimeout(requestContext, service.tickBudget)
	defer cancel()

	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		slots     = make(chan struct{}, service.concurrency)
	)
	for _, bot := range activeBots {
		if tickContext.Err() != nil {
			mutex.Lock()
			report.BotsSkipped++
			mutex.Unlock()
			continue
		}
		slots <- struct{}{}
		waitGroup.Add(1)
		go func(bot Bot) {
			defer waitGroup.Done()
			defer func() { <-slots }()
			rng := rand.New(rand.NewSource(service.seedFn()))
			outcome := service.runBot(requestContext, bot, rng)
			mutex.Lock()
			switch outcome {
			case outcomeActed:
				report.ActionsTaken++
			case outcomeIdle:
				report.BotsIdle++
			case outcomeSkipped:
				report.BotsSkipped++
			case outcomeFailed:
				report.Failures++
			}
			mutex.Unlock()
		}(bot)
	}
	waitGroup.Wait()
	report.Duration = time.Since(startedAt)
	service.logger.Info("bot tick completed",
		zap.Int("considered", report.BotsConsidered),
		zap.Int("acted", report.ActionsTaken),
		zap.Int("idle", report.BotsIdle),
		zap.Int("skipped", report.BotsSkipped),
		zap.Int("failed", report.Failures),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (service *Service) runBot(ctx context.Context, bot Bot, rng *rand.Rand) botOutcome {
	nowUnixUTC := service.nowFn()
	dayStart := nowUnixUTC - (nowUnixUTC % secondsPerDay)

	remaining := make(map[ActionType]int, len(bot.ActivityCaps))
	exhausted := true
	for action, dailyCap := range bot.ActivityCaps {
		taken, err := service.store.CountActionsSince(ctx, bot.BotID, action, dayStart)
		if err != nil {
			service.logger.Warn("bot allowance lookup failed", zap.String("bot_id", bot.BotID), zap.Error(err))
			return outcomeFailed
		}
		remaining[action] = dailyCap - taken
		if remaining[action] > 0 {
			exhausted = false
		}
	}
	if exhausted {
		return outcomeSkipped
	}
	if rng.Float64() >= actProbability(bot.TrustLevel) {
		return outcomeIdle
	}

	strategyImpl := strategyFor(bot.Purpose)
	sinceUnixUTC := nowUnixUTC - int64(service.lookback/time.Second)
	candidates, err := service.store.ListRecentTargets(ctx, strategyImpl.targetKinds(), sinceUnixUTC, service.candidateLimit)
	if err != nil {
		service.logger.Warn("target scan failed", zap.String("bot_id", bot.BotID), zap.Error(err))
		return outcomeFailed
	}
	candidates, err = service.filterActed(ctx, bot.BotID, candidates)
	if err != nil {
		service.logger.Warn("acted-target lookup failed", zap.String("bot_id", bot.BotID), zap.Error(err))
		return outcomeFailed
	}
	if len(candidates) == 0 {
		return outcomeIdle
	}

	target := pickTarget(rng, candidates, nowUnixUTC)
	action, coins, ok := strategyImpl.chooseAction(rng, target, remaining)
	if !ok {
		return outcomeSkipped
	}
	return service.executeAction(ctx, bot, target, action, coins)
}

// executeAction funds the action through the ledger and records the
// append-only audit row. The idempotency key makes a retried tick unable to
// double-act on the same target.
func (service *Service) executeAction(ctx context.Context, bot Bot, target Target, action ActionType, coins int64) botOutcome {
	request, err := service.buildRequest(bot, target, action, coins)
	if err != nil {
		service.logger.Warn("bot request build failed", zap.String("bot_id", bot.BotID), zap.Error(err))
		return outcomeFailed
	}
	botAction := BotAction{
		ActionID:       uuid.NewString(),
		BotID:          bot.BotID,
		Action:         action,
		TargetKind:     target.Kind,
		TargetID:       target.TargetID,
		CoinAmount:     coins,
		CreatedUnixUTC: service.nowFn(),
	}
	result, executeErr := service.ledger.Execute(ctx, request)
	if executeErr != nil {
		metrics.BotActionsTotal.WithLabelValues(string(bot.Purpose), string(action), "failed").Inc()
		botAction.Failure = executeErr.Error()
		botAction.CoinAmount = 0
		if recordErr := service.store.RecordAction(ctx, botAction); recordErr != nil {
			service.logger.Warn("failed action record dropped", zap.String("bot_id", bot.BotID), zap.Error(recordErr))
		}
		service.logger.Info("bot action failed",
			zap.String("bot_id", bot.BotID),
			zap.String("action", string(action)),
			zap.String("target_id", target.TargetID),
			zap.Error(executeErr),
		)
		return outcomeFailed
	}
	metrics.BotActionsTotal.WithLabelValues(string(bot.Purpose), string(action), "ok").Inc()
	botAction.TransactionID = result.Transaction.TransactionID
	botAction.CoinAmount = result.AwardedAmount
	if err := service.store.RecordAction(ctx, botAction); err != nil {
		service.logger.Warn("action record failed", zap.String("bot_id", bot.BotID), zap.Error(err))
		return outcomeFailed
	}
	return outcomeActed
}

func (service *Service) buildRequest(bot Bot, target Target, action ActionType, coins int64) (economy.TransactionRequest, error) {
	wallet, err := economy.NewWalletRef(target.AuthorID)
	if err != nil {
		return economy.TransactionRequest{}, err
	}
	amount, err := economy.NewCoinAmount(coins)
	if err != nil {
		return economy.TransactionRequest{}, err
	}
	trigger, err := economy.NewTriggerTag(fmt.Sprintf("bot.%s.%s", bot.Purpose, action))
	if err != nil {
		return economy.TransactionRequest{}, err
	}
	idempotencyKey, err := economy.NewIdempotencyKey(fmt.Sprintf("bot:%s:%s:%s", bot.BotID, action, target.TargetID))
	if err != nil {
		return economy.TransactionRequest{}, err
	}
	metadata, err := economy.NewMetadata(fmt.Sprintf(
		`{"bot_id":%q,"target_kind":%q,"target_id":%q}`,
		bot.BotID, target.Kind, target.TargetID,
	))
	if err != nil {
		return economy.TransactionRequest{}, err
	}
	return economy.TransactionRequest{
		Type:           economy.TransactionEarn,
		Wallet:         wallet,
		Amount:         amount,
		Trigger:        trigger,
		Channel:        "bot",
		Metadata:       metadata,
		IdempotencyKey: idempotencyKey,
		BotAttributed:  true,
	}, nil
}

func (service *Service) filterActed(ctx context.Context, botID string, candidates []Target) ([]Target, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	ids := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		ids = append(ids, candidate.TargetID)
	}
	acted, err := service.store.ActedTargetIDs(ctx, botID, ids)
	if err != nil {
		return nil, err
	}
	fresh := candidates[:0]
	for _, candidate := range candidates {
		if !acted[candidate.TargetID] {
			fresh = append(fresh, candidate)
		}
	}
	return fresh, nil
}
