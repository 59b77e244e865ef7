package economy

import (
	"context"
	"testing"
)

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

func TestServiceLogsExecuteOperation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 1000)
	logger := &recorderLogger{}
	service, err := NewService(store, func() int64 { return 42 }, WithOperationLogger(logger))
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	request := mustEarnRequest(test, "user-log", 30, "forum.reply.posted", "idem-log-1")

	if _, err := service.Execute(context.Background(), request); err != nil {
		test.Fatalf("execute: %v", err)
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	entry := logger.entries[0]
	if entry.Operation != operationExecute || entry.Wallet.String() != "user-log" || entry.Amount != 30 {
		test.Fatalf("unexpected log entry: %+v", entry)
	}
	if entry.Error != nil || entry.Status != operationStatusOK {
		test.Fatalf("expected ok entry, got %+v", entry)
	}
}

func TestServiceLogsErrorStatus(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 0)
	logger := &recorderLogger{}
	service, err := NewService(store, func() int64 { return 42 }, WithOperationLogger(logger))
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	request := mustEarnRequest(test, "user-log", 30, "forum.reply.posted", "idem-log-2")

	if _, err := service.Execute(context.Background(), request); err == nil {
		test.Fatalf("expected error")
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	if logger.entries[0].Status != operationStatusError || logger.entries[0].Error == nil {
		test.Fatalf("expected error entry, got %+v", logger.entries[0])
	}
}

func TestServiceLogsReplayStatus(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, 1000)
	logger := &recorderLogger{}
	service, err := NewService(store, func() int64 { return 42 }, WithOperationLogger(logger))
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	request := mustEarnRequest(test, "user-log", 30, "forum.reply.posted", "idem-log-3")

	if _, err := service.Execute(context.Background(), request); err != nil {
		test.Fatalf("first execute: %v", err)
	}
	if _, err := service.Execute(context.Background(), request); err != nil {
		test.Fatalf("second execute: %v", err)
	}
	if len(logger.entries) != 2 {
		test.Fatalf("expected two log entries, got %d", len(logger.entries))
	}
	if logger.entries[1].Status != operationStatusReplay {
		test.Fatalf("expected replay status, got %+v", logger.entries[1])
	}
}
