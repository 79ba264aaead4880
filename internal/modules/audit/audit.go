package audit

import (
	"context"
	"time"

	"distrack/internal/storage"

	"go.uber.org/zap"
)

// Logger appends audit entries, mirrors them to the process log and hands
// them to an optional notifier (the guild mod-log channel).
type Logger struct {
	store  storage.AuditStore
	logger *zap.Logger
	notify func(context.Context, storage.AuditLog)
	now    func() time.Time
}

func NewLogger(store storage.AuditStore, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger, now: time.Now}
}

func (l *Logger) SetNotifier(notify func(context.Context, storage.AuditLog)) {
	l.notify = notify
}

func (l *Logger) WithClock(now func() time.Time) {
	l.now = now
}

// Record persists the entry. A failed write is logged and reported as
// false; callers have already applied the action and do not roll back.
func (l *Logger) Record(ctx context.Context, entry storage.AuditLog) bool {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now().UTC()
	}
	if entry.TargetType == "" {
		entry.TargetType = storage.TargetUser
	}

	fields := []zap.Field{
		zap.String("guild_id", entry.GuildID),
		zap.String("action", string(entry.Action)),
		zap.String("moderator_id", entry.ModeratorID),
		zap.String("target_id", entry.TargetID),
		zap.String("reason", entry.Reason),
	}

	stored := true
	if l.store != nil {
		if err := l.store.CreateAuditLog(ctx, &entry); err != nil {
			stored = false
			l.logger.Warn("audit write failed", append(fields, zap.Error(err))...)
		}
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit", fields...)
	return stored
}
