package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"distrack/internal/storage"

	"go.uber.org/zap"
)

type failingStore struct {
	storage.AuditStore
}

func (failingStore) CreateAuditLog(ctx context.Context, entry *storage.AuditLog) error {
	return errors.New("write failed")
}

func TestRecordPersistsAndNotifies(t *testing.T) {
	store := storage.NewMemory()
	logger := NewLogger(store, zap.NewNop())
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	logger.WithClock(func() time.Time { return fixed })

	var notified []storage.AuditLog
	logger.SetNotifier(func(ctx context.Context, entry storage.AuditLog) {
		notified = append(notified, entry)
	})

	ok := logger.Record(context.Background(), storage.AuditLog{GuildID: "g1", Action: storage.ActionKick, ModeratorID: "m1", TargetID: "u1"})
	if !ok {
		t.Fatalf("expected record to succeed")
	}
	logs, _ := store.FindAuditLogs(context.Background(), storage.AuditQuery{GuildID: "g1"})
	if len(logs) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(logs))
	}
	if !logs[0].CreatedAt.Equal(fixed) || logs[0].TargetType != storage.TargetUser {
		t.Fatalf("unexpected entry %+v", logs[0])
	}
	if len(notified) != 1 || notified[0].ID.IsZero() {
		t.Fatalf("expected notifier to receive the stored entry")
	}
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	logger := NewLogger(failingStore{}, zap.NewNop())
	if logger.Record(context.Background(), storage.AuditLog{GuildID: "g1", Action: storage.ActionBan}) {
		t.Fatalf("expected failed write to be reported")
	}
}
