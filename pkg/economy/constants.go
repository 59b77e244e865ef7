package economy

const (
	operationExecute      = "execute"
	operationRefill       = "refill"
	operationDrain        = "drain"
	operationResetDay     = "reset_day"
	operationPurge        = "purge_idempotency"
	operationStatusOK     = "ok"
	operationStatusError  = "error"
	operationStatusReplay = "replay"

	treasuryOwner = "treasury"

	memoFundedByTreasury = "funded by treasury"
	memoReturnToTreasury = "returned to treasury"
	memoCapRemainder     = "cap remainder retained by treasury"
	memoTransferOut      = "transfer out"
	memoTransferIn       = "transfer in"

	idempotencyRetentionSeconds int64 = 30 * 24 * 60 * 60

	defaultHistoryLimit = 50

	secondsPerDay int64 = 24 * 60 * 60
)
