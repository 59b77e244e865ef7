package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/amberforum/economy/internal/bots"
	"github.com/amberforum/economy/internal/metrics"
	"github.com/amberforum/economy/pkg/economy"
)

type executeRequest struct {
	Type           string `json:"type" binding:"required"`
	Wallet         string `json:"wallet" binding:"required"`
	Counterparty   string `json:"counterparty"`
	Amount         int64  `json:"amount" binding:"required"`
	Trigger        string `json:"trigger" binding:"required"`
	Channel        string `json:"channel"`
	Metadata       string `json:"metadata"`
	IdempotencyKey string `json:"idempotency_key"`
	AllowOverdraft bool   `json:"allow_overdraft"`
	Direction      string `json:"direction"`
}

type transactionResponse struct {
	TransactionID string `json:"transaction_id"`
	Type          string `json:"type"`
	AwardedAmount int64  `json:"awarded_amount"`
	Replayed      bool   `json:"replayed"`
}

func (server *Server) handleExecute(ctx *gin.Context) {
	var payload executeRequest
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Adjustments and overdrafts are admin overrides and never accepted
	// from unauthenticated callers.
	if payload.Type == string(economy.TransactionAdjustment) || payload.AllowOverdraft {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
		return
	}
	server.executeTransaction(ctx, payload)
}

// handleAdminAdjustment executes a raw adjustment on behalf of an
// authenticated admin and records the override in the audit trail.
func (server *Server) handleAdminAdjustment(ctx *gin.Context) {
	var payload executeRequest
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload.Type = string(economy.TransactionAdjustment)
	if server.executeTransaction(ctx, payload) {
		server.writeAudit(ctx, adminID(ctx), "wallet.adjust",
			fmt.Sprintf(`{"wallet":%q,"amount":%d,"direction":%q}`, payload.Wallet, payload.Amount, payload.Direction))
	}
}

func (server *Server) executeTransaction(ctx *gin.Context, payload executeRequest) bool {
	request, err := buildTransactionRequest(payload)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	result, err := server.ledger.Execute(ctx.Request.Context(), request)
	if err != nil {
		metrics.TransactionsTotal.WithLabelValues(payload.Type, "failed").Inc()
		server.respondLedgerError(ctx, err)
		return false
	}
	metrics.TransactionsTotal.WithLabelValues(payload.Type, "ok").Inc()
	if request.Type == economy.TransactionEarn && result.AwardedAmount < payload.Amount {
		metrics.ClippedCoinsTotal.Add(float64(payload.Amount - result.AwardedAmount))
	}
	ctx.JSON(http.StatusOK, transactionResponse{
		TransactionID: result.Transaction.TransactionID,
		Type:          string(result.Transaction.Type),
		AwardedAmount: result.AwardedAmount,
		Replayed:      result.Replayed,
	})
	return true
}

func buildTransactionRequest(payload executeRequest) (economy.TransactionRequest, error) {
	transactionType, err := economy.ParseTransactionType(payload.Type)
	if err != nil {
		return economy.TransactionRequest{}, err
	}
	wallet, err := economy.NewWalletRef(payload.Wallet)
	if err != nil {
		return economy.TransactionRequest{}, err
	}
	amount, err := economy.NewCoinAmount(payload.Amount)
	if err != nil {
		return economy.TransactionRequest{}, err
	}
	trigger, err := economy.NewTriggerTag(payload.Trigger)
	if err != nil {
		return economy.TransactionRequest{}, err
	}
	metadata, err := economy.NewMetadata(payload.Metadata)
	if err != nil {
		return economy.TransactionRequest{}, err
	}
	request := economy.TransactionRequest{
		Type:           transactionType,
		Wallet:         wallet,
		Amount:         amount,
		Trigger:        trigger,
		Channel:        payload.Channel,
		Metadata:       metadata,
		AllowOverdraft: payload.AllowOverdraft,
		Direction:      economy.EntryDirection(payload.Direction),
	}
	if payload.Counterparty != "" {
		counterparty, err := economy.NewWalletRef(payload.Counterparty)
		if err != nil {
			return economy.TransactionRequest{}, err
		}
		request.Counterparty = &counterparty
	}
	if payload.IdempotencyKey != "" {
		key, err := economy.NewIdempotencyKey(payload.IdempotencyKey)
		if err != nil {
			return economy.TransactionRequest{}, err
		}
		request.IdempotencyKey = key
	}
	return request, nil
}

func (server *Server) handleWallet(ctx *gin.Context) {
	owner, err := economy.NewWalletRef(ctx.Param("user"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	wallet, err := server.ledger.GetWalletBalance(ctx.Request.Context(), owner)
	if err != nil {
		server.respondLedgerError(ctx, err)
		return
	}
	response := gin.H{"owner": wallet.Owner, "balance": wallet.Balance}
	if wallet.CapOverride != nil {
		response["cap_override"] = *wallet.CapOverride
	}
	ctx.JSON(http.StatusOK, response)
}

func (server *Server) handleHistory(ctx *gin.Context) {
	owner, err := economy.NewWalletRef(ctx.Param("user"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit := defaultHistoryLimit
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxHistoryLimit {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	transactions, err := server.ledger.GetTransactionHistory(ctx.Request.Context(), owner, limit)
	if err != nil {
		server.respondLedgerError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

type awardXpRequest struct {
	UserID   string            `json:"user_id" binding:"required"`
	Activity string            `json:"activity" binding:"required"`
	Amount   int64             `json:"amount" binding:"required"`
	Metadata map[string]string `json:"metadata"`
}

func (server *Server) handleAwardXp(ctx *gin.Context) {
	var payload awardXpRequest
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := server.rankService.AwardXp(ctx.Request.Context(), payload.UserID, payload.Activity, payload.Amount, payload.Metadata)
	if err != nil {
		metrics.XpAwardsTotal.WithLabelValues("failed").Inc()
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	metrics.XpAwardsTotal.WithLabelValues("ok").Inc()
	ctx.JSON(http.StatusOK, result)
}

func (server *Server) handleProgress(ctx *gin.Context) {
	progress, err := server.rankService.GetProgress(ctx.Request.Context(), ctx.Param("user"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, progress)
}

func (server *Server) handleGetTreasury(ctx *gin.Context) {
	treasury, err := server.ledger.GetTreasury(ctx.Request.Context())
	if err != nil {
		server.respondLedgerError(ctx, err)
		return
	}
	metrics.TreasuryBalance.Set(float64(treasury.Balance))
	metrics.TreasuryTodaySpent.Set(float64(treasury.TodaySpent))
	ctx.JSON(http.StatusOK, treasury)
}

type refillRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

func (server *Server) handleRefillTreasury(ctx *gin.Context) {
	var payload refillRequest
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := economy.NewCoinAmount(payload.Amount)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor := adminID(ctx)
	treasury, err := server.ledger.RefillTreasury(ctx.Request.Context(), amount, actor)
	if err != nil {
		server.respondLedgerError(ctx, err)
		return
	}
	server.writeAudit(ctx, actor, "treasury.refill", fmt.Sprintf(`{"amount":%d}`, payload.Amount))
	metrics.TreasuryBalance.Set(float64(treasury.Balance))
	ctx.JSON(http.StatusOK, treasury)
}

type drainRequest struct {
	Percentage int `json:"percentage" binding:"required"`
}

func (server *Server) handleDrainWallet(ctx *gin.Context) {
	var payload drainRequest
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	owner, err := economy.NewWalletRef(ctx.Param("user"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor := adminID(ctx)
	result, err := server.ledger.DrainWallet(ctx.Request.Context(), owner, payload.Percentage, actor)
	if err != nil {
		server.respondLedgerError(ctx, err)
		return
	}
	server.writeAudit(ctx, actor, "wallet.drain",
		fmt.Sprintf(`{"wallet":%q,"percentage":%d,"drained":%d}`, owner.String(), payload.Percentage, result.AwardedAmount))
	ctx.JSON(http.StatusOK, transactionResponse{
		TransactionID: result.Transaction.TransactionID,
		Type:          string(result.Transaction.Type),
		AwardedAmount: result.AwardedAmount,
	})
}

type walletCapRequest struct {
	Cap *int64 `json:"cap"`
}

func (server *Server) handleSetWalletCap(ctx *gin.Context) {
	var payload walletCapRequest
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	owner, err := economy.NewWalletRef(ctx.Param("user"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor := adminID(ctx)
	if err := server.ledger.SetWalletCap(ctx.Request.Context(), owner, payload.Cap); err != nil {
		server.respondLedgerError(ctx, err)
		return
	}
	detail := `{"cap":null}`
	if payload.Cap != nil {
		detail = fmt.Sprintf(`{"cap":%d}`, *payload.Cap)
	}
	server.writeAudit(ctx, actor, "wallet.cap", detail)
	ctx.JSON(http.StatusOK, gin.H{"owner": owner.String()})
}

type createBotRequest struct {
	Name         string         `json:"name" binding:"required"`
	Purpose      string         `json:"purpose" binding:"required"`
	TrustLevel   int            `json:"trust_level"`
	ActivityCaps map[string]int `json:"activity_caps" binding:"required"`
}

func (server *Server) handleCreateBot(ctx *gin.Context) {
	var payload createBotRequest
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	caps := make(map[bots.ActionType]int, len(payload.ActivityCaps))
	for action, dailyCap := range payload.ActivityCaps {
		caps[bots.ActionType(action)] = dailyCap
	}
	actor := adminID(ctx)
	bot, err := server.botService.CreateBot(ctx.Request.Context(), payload.Name, bots.Purpose(payload.Purpose), payload.TrustLevel, caps)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	server.writeAudit(ctx, actor, "bot.create", fmt.Sprintf(`{"bot_id":%q,"name":%q}`, bot.BotID, bot.Name))
	ctx.JSON(http.StatusOK, bot)
}

type toggleBotRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (server *Server) handleToggleBot(ctx *gin.Context) {
	var payload toggleBotRequest
	if err := ctx.ShouldBindJSON(&payload); err != nil || payload.Active == nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "active flag required"})
		return
	}
	actor := adminID(ctx)
	bot, err := server.botService.ToggleBot(ctx.Request.Context(), ctx.Param("id"), *payload.Active)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, bots.ErrUnknownBot) {
			status = http.StatusNotFound
		}
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}
	server.writeAudit(ctx, actor, "bot.toggle", fmt.Sprintf(`{"bot_id":%q,"active":%t}`, bot.BotID, bot.IsActive))
	ctx.JSON(http.StatusOK, bot)
}

func (server *Server) handleRunTick(ctx *gin.Context) {
	actor := adminID(ctx)
	report, err := server.botService.RunTick(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	metrics.TickDuration.Observe(report.Duration.Seconds())
	server.writeAudit(ctx, actor, "bots.tick", fmt.Sprintf(`{"actions_taken":%d,"failures":%d}`, report.ActionsTaken, report.Failures))
	ctx.JSON(http.StatusOK, report)
}

func (server *Server) writeAudit(ctx *gin.Context, actorID string, action string, detailJSON string) {
	if server.audit == nil {
		return
	}
	if err := server.audit.InsertAuditRecord(ctx.Request.Context(), actorID, action, detailJSON); err != nil {
		server.logger.Warn("audit record failed", zap.String("action", action), zap.Error(err))
	}
}

// respondLedgerError maps domain errors onto HTTP statuses without leaking
// internals. Treasury exhaustion is an operational condition, not a caller
// mistake.
func (server *Server) respondLedgerError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, economy.ErrInsufficientBalance):
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient balance"})
	case errors.Is(err, economy.ErrWalletCapExceeded):
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": "wallet is at its cap"})
	case errors.Is(err, economy.ErrTreasuryExhausted), errors.Is(err, economy.ErrInsufficientTreasuryFunds):
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "rewards temporarily unavailable"})
	case errors.Is(err, economy.ErrDuplicateInFlight):
		ctx.JSON(http.StatusConflict, gin.H{"error": "request already in flight"})
	case errors.Is(err, economy.ErrInvalidTransactionShape),
		errors.Is(err, economy.ErrInvalidWalletRef),
		errors.Is(err, economy.ErrInvalidCoinAmount),
		errors.Is(err, economy.ErrInvalidTriggerTag),
		errors.Is(err, economy.ErrInvalidIdempotencyKey),
		errors.Is(err, economy.ErrInvalidMetadataJSON),
		errors.Is(err, economy.ErrInvalidDrainPercentage):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		server.logger.Error("ledger call failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
