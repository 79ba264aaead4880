package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"distrack/internal/errs"
	"distrack/internal/modules/audit"
	"distrack/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	MaxSubjectLen     = 100
	MaxDescriptionLen = 1000
	MaxNoteLen        = 1000
)

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

// ChannelSpec describes a private ticket channel: hidden from everyone
// except the creator, the staff role, administrators and the bot.
type ChannelSpec struct {
	GuildID     string
	Name        string
	ParentID    string
	Topic       string
	CreatorID   string
	StaffRoleID string
}

type Platform interface {
	// EnsureCategory returns currentID when that category still exists,
	// otherwise creates a new one named name.
	EnsureCategory(ctx context.Context, guildID, currentID, name string) (string, error)
	CreateTicketChannel(ctx context.Context, spec ChannelSpec) (string, error)
	SetMemberSend(ctx context.Context, channelID, userID string, allow bool) error
	RenameChannel(ctx context.Context, channelID, name string) error
	DeleteChannel(ctx context.Context, channelID string) error
	DirectMessage(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error
}

type Config struct {
	MaxOpenPerUser int
	DeleteDelay    time.Duration
	CategoryName   string
	NoticeColor    int
}

type User struct {
	ID  string
	Tag string
}

type Manager struct {
	cfg       Config
	catalogue *Catalogue
	tickets   storage.TicketStore
	guilds    storage.GuildConfigStore
	platform  Platform
	audit     *audit.Logger
	logger    *zap.Logger
	clock     Clock
}

func NewManager(cfg Config, catalogue *Catalogue, tickets storage.TicketStore, guilds storage.GuildConfigStore, platform Platform, auditLogger *audit.Logger, logger *zap.Logger) *Manager {
	if cfg.MaxOpenPerUser <= 0 {
		cfg.MaxOpenPerUser = 3
	}
	if cfg.DeleteDelay <= 0 {
		cfg.DeleteDelay = 10 * time.Second
	}
	if cfg.CategoryName == "" {
		cfg.CategoryName = "Tickets"
	}
	if catalogue == nil {
		catalogue = NewCatalogue(nil)
	}
	return &Manager{
		cfg:       cfg,
		catalogue: catalogue,
		tickets:   tickets,
		guilds:    guilds,
		platform:  platform,
		audit:     auditLogger,
		logger:    logger,
		clock:     realClock{},
	}
}

func (m *Manager) WithClock(clock Clock) {
	m.clock = clock
}

func (m *Manager) Catalogue() *Catalogue {
	return m.catalogue
}

func (m *Manager) MaxOpenPerUser() int {
	return m.cfg.MaxOpenPerUser
}

func (m *Manager) DeleteDelay() time.Duration {
	return m.cfg.DeleteDelay
}

// CheckEligibility is the first step of the creation flow. It returns the
// number of open tickets the user holds.
func (m *Manager) CheckEligibility(ctx context.Context, guildID, userID string) (int64, error) {
	open, err := m.tickets.CountTickets(ctx, storage.TicketQuery{
		GuildID:  guildID,
		UserID:   userID,
		Statuses: []storage.TicketStatus{storage.TicketOpen},
	})
	if err != nil {
		return 0, errs.Wrap(errs.External, "count open tickets", err)
	}
	if open >= int64(m.cfg.MaxOpenPerUser) {
		msg := fmt.Sprintf("You can only have %d open tickets at a time.", m.cfg.MaxOpenPerUser)
		return open, errs.Wrap(errs.LimitExceeded, msg, errs.ErrLimitExceeded)
	}
	return open, nil
}

type CreateRequest struct {
	GuildID     string
	User        User
	Category    string
	Subject     string
	Description string
}

func (m *Manager) Create(ctx context.Context, req CreateRequest) (storage.Ticket, error) {
	category, ok := m.catalogue.Lookup(req.Category)
	if !ok {
		return storage.Ticket{}, errs.ErrUnknownCategory
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" || utf8.RuneCountInString(subject) > MaxSubjectLen {
		return storage.Ticket{}, errs.Newf(errs.InvalidInput, "Subject must be between 1 and %d characters.", MaxSubjectLen)
	}
	description := strings.TrimSpace(req.Description)
	if description == "" || utf8.RuneCountInString(description) > MaxDescriptionLen {
		return storage.Ticket{}, errs.Newf(errs.InvalidInput, "Description must be between 1 and %d characters.", MaxDescriptionLen)
	}
	if _, err := m.CheckEligibility(ctx, req.GuildID, req.User.ID); err != nil {
		return storage.Ticket{}, err
	}

	guildCfg, err := m.guilds.GetGuildConfig(ctx, req.GuildID)
	if err != nil {
		return storage.Ticket{}, errs.Wrap(errs.External, "load guild config", err)
	}
	seq, err := m.guilds.NextSequence(ctx, req.GuildID, storage.CounterTickets)
	if err != nil {
		return storage.Ticket{}, errs.Wrap(errs.External, "allocate ticket id", err)
	}
	ticketID := storage.FormatTicketID(seq)

	parentID := m.ensureCategory(ctx, guildCfg)
	channelID, err := m.platform.CreateTicketChannel(ctx, ChannelSpec{
		GuildID:     req.GuildID,
		Name:        ticketID,
		ParentID:    parentID,
		Topic:       fmt.Sprintf("%s | %s | %s", category.Name, subject, req.User.Tag),
		CreatorID:   req.User.ID,
		StaffRoleID: guildCfg.Tickets.StaffRoleID,
	})
	if err != nil {
		return storage.Ticket{}, err
	}

	now := m.clock.Now().UTC()
	ticket := storage.Ticket{
		TicketID:  ticketID,
		GuildID:   req.GuildID,
		ChannelID: channelID,
		UserID:    req.User.ID,
		Category:  category.Name,
		Subject:   subject,
		Status:    storage.TicketOpen,
		Priority:  storage.PriorityMedium,
		Messages: []storage.TranscriptMessage{{
			UserID:    req.User.ID,
			Username:  req.User.Tag,
			Content:   description,
			Timestamp: now,
		}},
		Notes:     []storage.StaffNote{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.tickets.CreateTicket(ctx, &ticket); err != nil {
		if delErr := m.platform.DeleteChannel(ctx, channelID); delErr != nil {
			m.logger.Warn("orphan ticket channel cleanup failed", zap.String("channel_id", channelID), zap.Error(delErr))
		}
		return storage.Ticket{}, errs.Wrap(errs.External, "store ticket", err)
	}

	m.audit.Record(ctx, storage.AuditLog{
		GuildID:     req.GuildID,
		Action:      storage.ActionTicketCreate,
		ModeratorID: req.User.ID,
		TargetID:    channelID,
		TargetType:  storage.TargetChannel,
		Details:     map[string]string{"ticket_id": ticketID, "category": category.Name, "subject": subject},
		Metadata:    &storage.AuditMetadata{ChannelID: channelID},
	})
	return ticket, nil
}

// ensureCategory is best effort; tickets are created without a parent
// when the category cannot be made.
func (m *Manager) ensureCategory(ctx context.Context, guildCfg storage.GuildConfig) string {
	current := guildCfg.Tickets.CategoryID
	id, err := m.platform.EnsureCategory(ctx, guildCfg.GuildID, current, m.cfg.CategoryName)
	if err != nil {
		m.logger.Warn("ticket category unavailable", zap.String("guild_id", guildCfg.GuildID), zap.Error(err))
		return ""
	}
	if id != current {
		guildCfg.Tickets.CategoryID = id
		if err := m.guilds.SaveGuildConfig(ctx, guildCfg); err != nil {
			m.logger.Warn("save ticket category failed", zap.String("guild_id", guildCfg.GuildID), zap.Error(err))
		}
	}
	return id
}

// Get returns the ticket bound to a channel.
func (m *Manager) Get(ctx context.Context, guildID, channelID string) (storage.Ticket, error) {
	ticket, err := m.tickets.FindTicket(ctx, storage.TicketQuery{GuildID: guildID, ChannelID: channelID})
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Ticket{}, errs.ErrTicketNotFound
	}
	if err != nil {
		return storage.Ticket{}, errs.Wrap(errs.External, "find ticket", err)
	}
	return ticket, nil
}

func (m *Manager) Close(ctx context.Context, guildID, channelID string, actor User, reason string) (storage.Ticket, error) {
	ticket, err := m.Get(ctx, guildID, channelID)
	if err != nil {
		return storage.Ticket{}, err
	}
	if err := ticket.Close(actor.ID, m.clock.Now().UTC()); err != nil {
		return storage.Ticket{}, err
	}
	if err := m.save(ctx, ticket); err != nil {
		return storage.Ticket{}, err
	}

	m.bestEffort("revoke creator send", channelID, m.platform.SetMemberSend(ctx, channelID, ticket.UserID, false))
	m.bestEffort("rename closed ticket", channelID, m.platform.RenameChannel(ctx, channelID, "closed-"+ticket.TicketID))

	reason = strings.TrimSpace(reason)
	m.audit.Record(ctx, storage.AuditLog{
		GuildID:     guildID,
		Action:      storage.ActionTicketClose,
		ModeratorID: actor.ID,
		TargetID:    channelID,
		TargetType:  storage.TargetChannel,
		Reason:      reason,
		Details:     map[string]string{"ticket_id": ticket.TicketID, "creator_id": ticket.UserID},
		Metadata:    &storage.AuditMetadata{ChannelID: channelID, OldValue: string(storage.TicketOpen), NewValue: string(storage.TicketClosed)},
	})

	if ticket.UserID != actor.ID {
		m.bestEffort("notify ticket creator", channelID, m.platform.DirectMessage(ctx, ticket.UserID, m.closedNotice(ticket, actor, reason)))
	}
	return ticket, nil
}

func (m *Manager) Reopen(ctx context.Context, guildID, channelID string, actor User) (storage.Ticket, error) {
	ticket, err := m.Get(ctx, guildID, channelID)
	if err != nil {
		return storage.Ticket{}, err
	}
	if err := ticket.Reopen(m.clock.Now().UTC()); err != nil {
		return storage.Ticket{}, err
	}
	if err := m.save(ctx, ticket); err != nil {
		return storage.Ticket{}, err
	}

	m.bestEffort("restore creator send", channelID, m.platform.SetMemberSend(ctx, channelID, ticket.UserID, true))
	m.bestEffort("rename reopened ticket", channelID, m.platform.RenameChannel(ctx, channelID, ticket.TicketID))

	m.audit.Record(ctx, storage.AuditLog{
		GuildID:     guildID,
		Action:      storage.ActionTicketReopen,
		ModeratorID: actor.ID,
		TargetID:    channelID,
		TargetType:  storage.TargetChannel,
		Details:     map[string]string{"ticket_id": ticket.TicketID},
		Metadata:    &storage.AuditMetadata{ChannelID: channelID, OldValue: string(storage.TicketClosed), NewValue: string(storage.TicketOpen)},
	})
	return ticket, nil
}

// Archive marks the ticket archived and removes its channel after the
// configured delay. The scheduled removal is not cancelled by later calls.
func (m *Manager) Archive(ctx context.Context, guildID, channelID string, actor User, reason string) (storage.Ticket, error) {
	ticket, err := m.Get(ctx, guildID, channelID)
	if err != nil {
		return storage.Ticket{}, err
	}
	previous := ticket.Status
	if err := ticket.Archive(actor.ID, m.clock.Now().UTC()); err != nil {
		return storage.Ticket{}, err
	}
	if err := m.save(ctx, ticket); err != nil {
		return storage.Ticket{}, err
	}

	m.audit.Record(ctx, storage.AuditLog{
		GuildID:     guildID,
		Action:      storage.ActionTicketDelete,
		ModeratorID: actor.ID,
		TargetID:    channelID,
		TargetType:  storage.TargetChannel,
		Reason:      strings.TrimSpace(reason),
		Details:     map[string]string{"ticket_id": ticket.TicketID, "creator_id": ticket.UserID},
		Metadata:    &storage.AuditMetadata{ChannelID: channelID, OldValue: string(previous), NewValue: string(storage.TicketArchived)},
	})

	m.clock.AfterFunc(m.cfg.DeleteDelay, func() {
		if err := m.platform.DeleteChannel(context.Background(), channelID); err != nil {
			m.logger.Warn("delete ticket channel failed", zap.String("guild_id", guildID), zap.String("channel_id", channelID), zap.Error(err))
		}
	})
	return ticket, nil
}

func (m *Manager) AddNote(ctx context.Context, guildID, channelID string, actor User, note string) (storage.Ticket, error) {
	note = strings.TrimSpace(note)
	if note == "" || utf8.RuneCountInString(note) > MaxNoteLen {
		return storage.Ticket{}, errs.Newf(errs.InvalidInput, "Note must be between 1 and %d characters.", MaxNoteLen)
	}
	ticket, err := m.mutable(ctx, guildID, channelID)
	if err != nil {
		return storage.Ticket{}, err
	}
	now := m.clock.Now().UTC()
	ticket.Notes = append(ticket.Notes, storage.StaffNote{StaffID: actor.ID, StaffUsername: actor.Tag, Note: note, Timestamp: now})
	ticket.UpdatedAt = now
	return ticket, m.save(ctx, ticket)
}

func (m *Manager) Assign(ctx context.Context, guildID, channelID string, actor User, staffID string) (storage.Ticket, error) {
	ticket, err := m.mutable(ctx, guildID, channelID)
	if err != nil {
		return storage.Ticket{}, err
	}
	previous := ticket.AssignedTo
	ticket.AssignedTo = staffID
	ticket.UpdatedAt = m.clock.Now().UTC()
	if err := m.save(ctx, ticket); err != nil {
		return storage.Ticket{}, err
	}
	m.audit.Record(ctx, storage.AuditLog{
		GuildID:     guildID,
		Action:      storage.ActionConfigUpdate,
		ModeratorID: actor.ID,
		TargetID:    channelID,
		TargetType:  storage.TargetChannel,
		Details:     map[string]string{"ticket_id": ticket.TicketID, "field": "assigned_to"},
		Metadata:    &storage.AuditMetadata{ChannelID: channelID, OldValue: previous, NewValue: staffID},
	})
	return ticket, nil
}

func (m *Manager) SetPriority(ctx context.Context, guildID, channelID string, actor User, value string) (storage.Ticket, error) {
	priority, err := storage.ParsePriority(value)
	if err != nil {
		return storage.Ticket{}, err
	}
	ticket, err := m.mutable(ctx, guildID, channelID)
	if err != nil {
		return storage.Ticket{}, err
	}
	previous := ticket.Priority
	ticket.Priority = priority
	ticket.UpdatedAt = m.clock.Now().UTC()
	if err := m.save(ctx, ticket); err != nil {
		return storage.Ticket{}, err
	}
	m.audit.Record(ctx, storage.AuditLog{
		GuildID:     guildID,
		Action:      storage.ActionConfigUpdate,
		ModeratorID: actor.ID,
		TargetID:    channelID,
		TargetType:  storage.TargetChannel,
		Details:     map[string]string{"ticket_id": ticket.TicketID, "field": "priority"},
		Metadata:    &storage.AuditMetadata{ChannelID: channelID, OldValue: string(previous), NewValue: string(priority)},
	})
	return ticket, nil
}

// AppendMessage adds a chat message to the transcript of a live ticket.
// Channels that are not tickets are ignored.
func (m *Manager) AppendMessage(ctx context.Context, guildID, channelID string, msg storage.TranscriptMessage) error {
	err := m.tickets.AppendTranscript(ctx, guildID, channelID, msg)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

func (m *Manager) List(ctx context.Context, q storage.TicketQuery) ([]storage.Ticket, error) {
	tickets, err := m.tickets.FindTickets(ctx, q)
	if err != nil {
		return nil, errs.Wrap(errs.External, "list tickets", err)
	}
	return tickets, nil
}

func (m *Manager) mutable(ctx context.Context, guildID, channelID string) (storage.Ticket, error) {
	ticket, err := m.Get(ctx, guildID, channelID)
	if err != nil {
		return storage.Ticket{}, err
	}
	if ticket.Status == storage.TicketArchived {
		return storage.Ticket{}, errs.ErrInvalidState
	}
	return ticket, nil
}

func (m *Manager) save(ctx context.Context, ticket storage.Ticket) error {
	if err := m.tickets.UpdateTicket(ctx, ticket); err != nil {
		return errs.Wrap(errs.External, "update ticket", err)
	}
	return nil
}

func (m *Manager) bestEffort(step, channelID string, err error) {
	if err != nil {
		m.logger.Warn("ticket side effect failed", zap.String("step", step), zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (m *Manager) closedNotice(ticket storage.Ticket, actor User, reason string) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Subject", Value: ticket.Subject},
		{Name: "Closed by", Value: actor.Tag, Inline: true},
	}
	if reason != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Reason", Value: reason})
	}
	return &discordgo.MessageEmbed{
		Title:       "Ticket closed",
		Description: fmt.Sprintf("Your ticket **%s** has been closed.", ticket.TicketID),
		Color:       m.cfg.NoticeColor,
		Fields:      fields,
		Timestamp:   m.clock.Now().Format(time.RFC3339),
	}
}
