package storage

import (
	"fmt"
	"strings"
	"time"

	"distrack/internal/errs"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TicketStatus string

const (
	TicketOpen     TicketStatus = "open"
	TicketClosed   TicketStatus = "closed"
	TicketArchived TicketStatus = "archived"
)

// liveStatuses are the states in which a ticket still records its channel.
var liveStatuses = []TicketStatus{TicketOpen, TicketClosed}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func ParsePriority(value string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(value))); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	case "":
		return PriorityMedium, nil
	default:
		return "", errs.Newf(errs.InvalidInput, "Unknown priority %q.", value)
	}
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func ParseSeverity(value string) (Severity, error) {
	switch s := Severity(strings.ToLower(strings.TrimSpace(value))); s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return s, nil
	case "":
		return SeverityMedium, nil
	default:
		return "", errs.Newf(errs.InvalidInput, "Unknown severity %q.", value)
	}
}

// TranscriptMessage is one entry of a ticket conversation.
type TranscriptMessage struct {
	UserID      string    `bson:"user_id"`
	Username    string    `bson:"username"`
	Content     string    `bson:"content"`
	Timestamp   time.Time `bson:"timestamp"`
	Attachments []string  `bson:"attachments,omitempty"`
}

// StaffNote is an internal remark left by staff on a ticket.
type StaffNote struct {
	StaffID       string    `bson:"staff_id"`
	StaffUsername string    `bson:"staff_username"`
	Note          string    `bson:"note"`
	Timestamp     time.Time `bson:"timestamp"`
}

type Ticket struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty"`
	TicketID   string              `bson:"ticket_id"`
	GuildID    string              `bson:"guild_id"`
	ChannelID  string              `bson:"channel_id"`
	UserID     string              `bson:"user_id"`
	Category   string              `bson:"category"`
	Subject    string              `bson:"subject"`
	Status     TicketStatus        `bson:"status"`
	Priority   Priority            `bson:"priority"`
	AssignedTo string              `bson:"assigned_to,omitempty"`
	Messages   []TranscriptMessage `bson:"messages"`
	Notes      []StaffNote         `bson:"notes"`
	CreatedAt  time.Time           `bson:"created_at"`
	UpdatedAt  time.Time           `bson:"updated_at"`
	ClosedAt   *time.Time          `bson:"closed_at"`
	ClosedBy   string              `bson:"closed_by"`
}

// Close moves an open ticket to closed and stamps who closed it.
func (t *Ticket) Close(by string, at time.Time) error {
	if t.Status != TicketOpen {
		return errs.ErrInvalidState
	}
	t.Status = TicketClosed
	t.ClosedAt = &at
	t.ClosedBy = by
	t.UpdatedAt = at
	return nil
}

// Reopen moves a closed ticket back to open and clears the close stamps.
func (t *Ticket) Reopen(at time.Time) error {
	if t.Status != TicketClosed {
		return errs.ErrInvalidState
	}
	t.Status = TicketOpen
	t.ClosedAt = nil
	t.ClosedBy = ""
	t.UpdatedAt = at
	return nil
}

// Archive is allowed from open or closed. Close stamps are kept when
// already present.
func (t *Ticket) Archive(by string, at time.Time) error {
	if t.Status == TicketArchived {
		return errs.ErrInvalidState
	}
	t.Status = TicketArchived
	if t.ClosedAt == nil {
		t.ClosedAt = &at
		t.ClosedBy = by
	}
	t.UpdatedAt = at
	return nil
}

// ResolutionTime is the time from creation to close, if the ticket was closed.
func (t Ticket) ResolutionTime() (time.Duration, bool) {
	if t.ClosedAt == nil {
		return 0, false
	}
	return t.ClosedAt.Sub(t.CreatedAt), true
}

type Warning struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	WarningID     string             `bson:"warning_id"`
	GuildID       string             `bson:"guild_id"`
	UserID        string             `bson:"user_id"`
	ModeratorID   string             `bson:"moderator_id"`
	Reason        string             `bson:"reason"`
	Severity      Severity           `bson:"severity"`
	Active        bool               `bson:"active"`
	ExpiresAt     *time.Time         `bson:"expires_at,omitempty"`
	ActionTaken   string             `bson:"action_taken,omitempty"`
	Evidence      []string           `bson:"evidence,omitempty"`
	CreatedAt     time.Time          `bson:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at"`
	RemovedBy     string             `bson:"removed_by,omitempty"`
	RemovedAt     *time.Time         `bson:"removed_at,omitempty"`
	RemovedReason string             `bson:"removed_reason,omitempty"`
}

// IsExpired does not look at Active; an expired warning stays active
// until someone removes it.
func (w Warning) IsExpired(now time.Time) bool {
	return w.ExpiresAt != nil && w.ExpiresAt.Before(now)
}

// Remove deactivates the warning. Active never goes back to true.
func (w *Warning) Remove(by, reason string, at time.Time) error {
	if !w.Active {
		return errs.ErrWarningInactive
	}
	w.Active = false
	w.RemovedBy = by
	w.RemovedAt = &at
	w.RemovedReason = reason
	w.UpdatedAt = at
	return nil
}

type Action string

const (
	ActionBan               Action = "ban"
	ActionUnban             Action = "unban"
	ActionKick              Action = "kick"
	ActionTimeout           Action = "timeout"
	ActionRemoveTimeout     Action = "remove_timeout"
	ActionWarnAdd           Action = "warn_add"
	ActionWarnRemove        Action = "warn_remove"
	ActionWarnClear         Action = "warn_clear"
	ActionPurge             Action = "purge"
	ActionRoleAdd           Action = "role_add"
	ActionRoleRemove        Action = "role_remove"
	ActionAutoroleSet       Action = "autorole_set"
	ActionTicketCreate      Action = "ticket_create"
	ActionTicketClose       Action = "ticket_close"
	ActionTicketReopen      Action = "ticket_reopen"
	ActionTicketDelete      Action = "ticket_delete"
	ActionMessageDelete     Action = "message_delete"
	ActionMessageBulkDelete Action = "message_bulk_delete"
	ActionChannelCreate     Action = "channel_create"
	ActionChannelDelete     Action = "channel_delete"
	ActionChannelUpdate     Action = "channel_update"
	ActionMemberJoin        Action = "member_join"
	ActionMemberLeave       Action = "member_leave"
	ActionConfigUpdate      Action = "config_update"
	ActionBotCommand        Action = "bot_command"
)

type TargetType string

const (
	TargetUser    TargetType = "user"
	TargetChannel TargetType = "channel"
	TargetRole    TargetType = "role"
	TargetMessage TargetType = "message"
	TargetGuild   TargetType = "guild"
	TargetOther   TargetType = "other"
)

type AuditMetadata struct {
	ChannelID string `bson:"channel_id,omitempty"`
	MessageID string `bson:"message_id,omitempty"`
	OldValue  string `bson:"old_value,omitempty"`
	NewValue  string `bson:"new_value,omitempty"`
	Duration  string `bson:"duration,omitempty"`
	Count     int    `bson:"count,omitempty"`
}

// AuditLog entries are append-only; no store exposes an update for them.
type AuditLog struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	GuildID     string             `bson:"guild_id"`
	Action      Action             `bson:"action"`
	ModeratorID string             `bson:"moderator_id"`
	TargetID    string             `bson:"target_id,omitempty"`
	TargetType  TargetType         `bson:"target_type"`
	Reason      string             `bson:"reason,omitempty"`
	Details     map[string]string  `bson:"details,omitempty"`
	Metadata    *AuditMetadata     `bson:"metadata,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
}

type TicketConfig struct {
	CategoryID          string `bson:"category_id,omitempty"`
	PanelChannelID      string `bson:"panel_channel_id,omitempty"`
	StaffRoleID         string `bson:"staff_role_id,omitempty"`
	TranscriptChannelID string `bson:"transcript_channel_id,omitempty"`
}

type ModerationConfig struct {
	LogChannelID string `bson:"log_channel_id,omitempty"`
	MuteRoleID   string `bson:"mute_role_id,omitempty"`
}

type WelcomeConfig struct {
	Enabled   bool   `bson:"enabled"`
	ChannelID string `bson:"channel_id,omitempty"`
	Message   string `bson:"message,omitempty"`
}

type AutoRoleConfig struct {
	Enabled   bool   `bson:"enabled"`
	RoleID    string `bson:"role_id,omitempty"`
	BotRoleID string `bson:"bot_role_id,omitempty"`
}

// Counters only move through NextSequence; SaveGuildConfig leaves them alone.
type Counters struct {
	Tickets  int64 `bson:"tickets"`
	Warnings int64 `bson:"warnings"`
}

type GuildConfig struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	GuildID    string             `bson:"guild_id"`
	Tickets    TicketConfig       `bson:"ticket_config"`
	Moderation ModerationConfig   `bson:"moderation_config"`
	Welcome    WelcomeConfig      `bson:"welcome_config"`
	AutoRole   AutoRoleConfig     `bson:"autorole_config"`
	Counters   Counters           `bson:"counters"`
	CreatedAt  time.Time          `bson:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at"`
}

const DefaultWelcomeMessage = "Welcome {user} to {guild}!"

func DefaultGuildConfig(guildID string) GuildConfig {
	return GuildConfig{
		GuildID: guildID,
		Welcome: WelcomeConfig{Message: DefaultWelcomeMessage},
	}
}

type Counter string

const (
	CounterTickets  Counter = "tickets"
	CounterWarnings Counter = "warnings"
)

func FormatTicketID(seq int64) string {
	return fmt.Sprintf("ticket-%04d", seq)
}

func FormatWarningID(seq int64) string {
	return fmt.Sprintf("warn-%04d", seq)
}
