package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("storage: not found")
	ErrDuplicate = errors.New("storage: duplicate key")
)

// TimeRange is a half-open [Since, Until) window. Zero bounds are open.
type TimeRange struct {
	Since time.Time
	Until time.Time
}

func (r TimeRange) Contains(t time.Time) bool {
	if !r.Since.IsZero() && t.Before(r.Since) {
		return false
	}
	if !r.Until.IsZero() && !t.Before(r.Until) {
		return false
	}
	return true
}

func (r TimeRange) IsZero() bool {
	return r.Since.IsZero() && r.Until.IsZero()
}

// TicketQuery matches on every non-empty field. Results are newest first;
// with Closed set, only tickets carrying a close stamp are returned, most
// recently closed first.
type TicketQuery struct {
	GuildID   string
	UserID    string
	ChannelID string
	TicketID  string
	Statuses  []TicketStatus
	Created   TimeRange
	Closed    bool
	Limit     int
}

type WarningQuery struct {
	GuildID   string
	UserID    string
	WarningID string
	Active    *bool
	Created   TimeRange
	Limit     int
}

type AuditQuery struct {
	GuildID     string
	Action      Action
	ModeratorID string
	TargetID    string
	Created     TimeRange
	Limit       int
}

// Field names a document attribute usable for group counts.
type Field string

const (
	FieldAction    Field = "action"
	FieldModerator Field = "moderator_id"
	FieldTarget    Field = "target_id"
	FieldUser      Field = "user_id"
	FieldSeverity  Field = "severity"
	FieldStatus    Field = "status"
	FieldCategory  Field = "category"
	FieldPriority  Field = "priority"
)

type GroupCount struct {
	Key   string `bson:"_id"`
	Count int64  `bson:"count"`
}

type TicketStore interface {
	CreateTicket(ctx context.Context, ticket *Ticket) error
	FindTicket(ctx context.Context, q TicketQuery) (Ticket, error)
	FindTickets(ctx context.Context, q TicketQuery) ([]Ticket, error)
	CountTickets(ctx context.Context, q TicketQuery) (int64, error)
	// UpdateTicket writes everything but the transcript, which only grows
	// through AppendTranscript.
	UpdateTicket(ctx context.Context, ticket Ticket) error
	// AppendTranscript adds msg to the open or closed ticket bound to the
	// channel. It returns ErrNotFound when the channel has no live ticket.
	AppendTranscript(ctx context.Context, guildID, channelID string, msg TranscriptMessage) error
	GroupTickets(ctx context.Context, q TicketQuery, field Field, limit int) ([]GroupCount, error)
}

type WarningStore interface {
	CreateWarning(ctx context.Context, warning *Warning) error
	FindWarning(ctx context.Context, q WarningQuery) (Warning, error)
	FindWarnings(ctx context.Context, q WarningQuery) ([]Warning, error)
	CountWarnings(ctx context.Context, q WarningQuery) (int64, error)
	UpdateWarning(ctx context.Context, warning Warning) error
	// DeactivateWarnings removes every active warning of a user in a guild
	// and returns how many were affected.
	DeactivateWarnings(ctx context.Context, guildID, userID, by, reason string, at time.Time) (int64, error)
	GroupWarnings(ctx context.Context, q WarningQuery, field Field, limit int) ([]GroupCount, error)
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry *AuditLog) error
	FindAuditLogs(ctx context.Context, q AuditQuery) ([]AuditLog, error)
	CountAuditLogs(ctx context.Context, q AuditQuery) (int64, error)
	GroupAuditLogs(ctx context.Context, q AuditQuery, field Field, limit int) ([]GroupCount, error)
	DeleteAuditLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type GuildConfigStore interface {
	// GetGuildConfig returns defaults, unsaved, for unknown guilds.
	GetGuildConfig(ctx context.Context, guildID string) (GuildConfig, error)
	SaveGuildConfig(ctx context.Context, cfg GuildConfig) error
	// NextSequence atomically increments a guild counter and returns the
	// new value, creating the guild config when missing.
	NextSequence(ctx context.Context, guildID string, counter Counter) (int64, error)
}

type Store interface {
	TicketStore
	WarningStore
	AuditStore
	GuildConfigStore
	Close(ctx context.Context) error
}

func applyLimit[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
