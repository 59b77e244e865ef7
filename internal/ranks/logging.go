package ranks

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger receives a callback for every award.
type OperationLogger interface {
	LogXpAward(ctx context.Context, entry AwardLog)
}

// AwardLog describes one processed XP award.
type AwardLog struct {
	UserID      string
	Activity    string
	RequestedXP int64
	AwardedXP   int64
	RankChanged bool
	RankID      string
	Metadata    map[string]string
	Error       error
}

// WithOperationLogger wires an award logger.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}
