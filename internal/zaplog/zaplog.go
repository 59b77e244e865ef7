// Package zaplog adapts zap to the domain operation-logger hooks.
package zaplog

import (
	"context"

	"go.uber.org/zap"

	"github.com/amberforum/economy/internal/ranks"
	"github.com/amberforum/economy/pkg/economy"
)

// OperationLogger emits one structured log line per ledger operation.
type OperationLogger struct {
	logger *zap.Logger
}

// NewOperationLogger wires an OperationLogger.
func NewOperationLogger(logger *zap.Logger) *OperationLogger {
	return &OperationLogger{logger: logger}
}

// LogOperation implements economy.OperationLogger.
func (operationLogger *OperationLogger) LogOperation(_ context.Context, entry economy.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("wallet", entry.Wallet.String()),
		zap.Int64("amount", entry.Amount),
		zap.String("status", entry.Status),
	}
	if entry.ActorID != "" {
		fields = append(fields, zap.String("actor_id", entry.ActorID))
	}
	if entry.Trigger != "" {
		fields = append(fields, zap.String("trigger", entry.Trigger))
	}
	if !entry.IdempotencyKey.IsZero() {
		fields = append(fields, zap.String("idempotency_key", entry.IdempotencyKey.String()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Warn("ledger operation failed", fields...)
		return
	}
	operationLogger.logger.Info("ledger operation", fields...)
}

// XpLogger emits one structured log line per XP award.
type XpLogger struct {
	logger *zap.Logger
}

// NewXpLogger wires an XpLogger.
func NewXpLogger(logger *zap.Logger) *XpLogger {
	return &XpLogger{logger: logger}
}

// LogXpAward implements ranks.OperationLogger.
func (xpLogger *XpLogger) LogXpAward(_ context.Context, entry ranks.AwardLog) {
	fields := []zap.Field{
		zap.String("user_id", entry.UserID),
		zap.String("activity", entry.Activity),
		zap.Int64("requested_xp", entry.RequestedXP),
		zap.Int64("awarded_xp", entry.AwardedXP),
	}
	if entry.RankChanged {
		fields = append(fields, zap.String("new_rank_id", entry.RankID))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		xpLogger.logger.Warn("xp award failed", fields...)
		return
	}
	xpLogger.logger.Info("xp awarded", fields...)
}
