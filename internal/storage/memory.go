package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is an in-process Store. It keeps the same uniqueness rules as the
// Mongo backend and is used for local runs and tests.
type Memory struct {
	mu       sync.RWMutex
	tickets  []Ticket
	warnings []Warning
	audit    []AuditLog
	guilds   map[string]GuildConfig
}

func NewMemory() *Memory {
	return &Memory{guilds: make(map[string]GuildConfig)}
}

func (m *Memory) Close(ctx context.Context) error { return nil }

func (m *Memory) CreateTicket(ctx context.Context, ticket *Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tickets {
		if existing.ChannelID == ticket.ChannelID {
			return ErrDuplicate
		}
		if existing.GuildID == ticket.GuildID && existing.TicketID == ticket.TicketID {
			return ErrDuplicate
		}
	}
	if ticket.ID.IsZero() {
		ticket.ID = primitive.NewObjectID()
	}
	m.tickets = append(m.tickets, cloneTicket(*ticket))
	return nil
}

func (m *Memory) FindTicket(ctx context.Context, q TicketQuery) (Ticket, error) {
	q.Limit = 1
	tickets, err := m.FindTickets(ctx, q)
	if err != nil {
		return Ticket{}, err
	}
	if len(tickets) == 0 {
		return Ticket{}, ErrNotFound
	}
	return tickets[0], nil
}

func (m *Memory) FindTickets(ctx context.Context, q TicketQuery) ([]Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Ticket, 0)
	for _, t := range m.tickets {
		if matchTicket(t, q) {
			out = append(out, cloneTicket(t))
		}
	}
	if q.Closed {
		sort.SliceStable(out, func(i, j int) bool { return out[i].ClosedAt.After(*out[j].ClosedAt) })
	} else {
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	return applyLimit(out, q.Limit), nil
}

func (m *Memory) CountTickets(ctx context.Context, q TicketQuery) (int64, error) {
	q.Limit = 0
	tickets, err := m.FindTickets(ctx, q)
	return int64(len(tickets)), err
}

func (m *Memory) UpdateTicket(ctx context.Context, ticket Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tickets {
		if m.tickets[i].ID == ticket.ID {
			messages := m.tickets[i].Messages
			m.tickets[i] = cloneTicket(ticket)
			m.tickets[i].Messages = messages
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) AppendTranscript(ctx context.Context, guildID, channelID string, msg TranscriptMessage) error {
	q := TicketQuery{GuildID: guildID, ChannelID: channelID, Statuses: liveStatuses}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tickets {
		if matchTicket(m.tickets[i], q) {
			m.tickets[i].Messages = append(m.tickets[i].Messages, msg)
			m.tickets[i].UpdatedAt = msg.Timestamp
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) GroupTickets(ctx context.Context, q TicketQuery, field Field, limit int) ([]GroupCount, error) {
	q.Limit = 0
	tickets, err := m.FindTickets(ctx, q)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, t := range tickets {
		counts[ticketField(t, field)]++
	}
	return sortGroups(counts, limit), nil
}

func (m *Memory) CreateWarning(ctx context.Context, warning *Warning) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.warnings {
		if existing.GuildID == warning.GuildID && existing.WarningID == warning.WarningID {
			return ErrDuplicate
		}
	}
	if warning.ID.IsZero() {
		warning.ID = primitive.NewObjectID()
	}
	m.warnings = append(m.warnings, *warning)
	return nil
}

func (m *Memory) FindWarning(ctx context.Context, q WarningQuery) (Warning, error) {
	q.Limit = 1
	warnings, err := m.FindWarnings(ctx, q)
	if err != nil {
		return Warning{}, err
	}
	if len(warnings) == 0 {
		return Warning{}, ErrNotFound
	}
	return warnings[0], nil
}

func (m *Memory) FindWarnings(ctx context.Context, q WarningQuery) ([]Warning, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Warning, 0)
	for _, w := range m.warnings {
		if matchWarning(w, q) {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return applyLimit(out, q.Limit), nil
}

func (m *Memory) CountWarnings(ctx context.Context, q WarningQuery) (int64, error) {
	q.Limit = 0
	warnings, err := m.FindWarnings(ctx, q)
	return int64(len(warnings)), err
}

func (m *Memory) UpdateWarning(ctx context.Context, warning Warning) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.warnings {
		if m.warnings[i].ID == warning.ID {
			m.warnings[i] = warning
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) DeactivateWarnings(ctx context.Context, guildID, userID, by, reason string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var affected int64
	for i := range m.warnings {
		w := &m.warnings[i]
		if w.GuildID != guildID || w.UserID != userID || !w.Active {
			continue
		}
		if err := w.Remove(by, reason, at); err == nil {
			affected++
		}
	}
	return affected, nil
}

func (m *Memory) GroupWarnings(ctx context.Context, q WarningQuery, field Field, limit int) ([]GroupCount, error) {
	q.Limit = 0
	warnings, err := m.FindWarnings(ctx, q)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, w := range warnings {
		counts[warningField(w, field)]++
	}
	return sortGroups(counts, limit), nil
}

func (m *Memory) CreateAuditLog(ctx context.Context, entry *AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	stored := *entry
	if entry.Details != nil {
		stored.Details = make(map[string]string, len(entry.Details))
		for k, v := range entry.Details {
			stored.Details[k] = v
		}
	}
	if entry.Metadata != nil {
		meta := *entry.Metadata
		stored.Metadata = &meta
	}
	m.audit = append(m.audit, stored)
	return nil
}

func (m *Memory) FindAuditLogs(ctx context.Context, q AuditQuery) ([]AuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AuditLog, 0)
	for _, entry := range m.audit {
		if matchAudit(entry, q) {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return applyLimit(out, q.Limit), nil
}

func (m *Memory) CountAuditLogs(ctx context.Context, q AuditQuery) (int64, error) {
	q.Limit = 0
	entries, err := m.FindAuditLogs(ctx, q)
	return int64(len(entries)), err
}

func (m *Memory) GroupAuditLogs(ctx context.Context, q AuditQuery, field Field, limit int) ([]GroupCount, error) {
	q.Limit = 0
	entries, err := m.FindAuditLogs(ctx, q)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, entry := range entries {
		counts[auditField(entry, field)]++
	}
	return sortGroups(counts, limit), nil
}

func (m *Memory) DeleteAuditLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.audit[:0]
	var removed int64
	for _, entry := range m.audit {
		if entry.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	m.audit = kept
	return removed, nil
}

func (m *Memory) GetGuildConfig(ctx context.Context, guildID string) (GuildConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if cfg, ok := m.guilds[guildID]; ok {
		return cfg, nil
	}
	return DefaultGuildConfig(guildID), nil
}

func (m *Memory) SaveGuildConfig(ctx context.Context, cfg GuildConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	existing, ok := m.guilds[cfg.GuildID]
	if !ok {
		existing = DefaultGuildConfig(cfg.GuildID)
		existing.ID = primitive.NewObjectID()
		existing.CreatedAt = now
	}
	existing.Tickets = cfg.Tickets
	existing.Moderation = cfg.Moderation
	existing.Welcome = cfg.Welcome
	existing.AutoRole = cfg.AutoRole
	existing.UpdatedAt = now
	m.guilds[cfg.GuildID] = existing
	return nil
}

func (m *Memory) NextSequence(ctx context.Context, guildID string, counter Counter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.guilds[guildID]
	if !ok {
		cfg = DefaultGuildConfig(guildID)
		cfg.ID = primitive.NewObjectID()
		cfg.CreatedAt = time.Now().UTC()
	}
	var next int64
	switch counter {
	case CounterTickets:
		cfg.Counters.Tickets++
		next = cfg.Counters.Tickets
	case CounterWarnings:
		cfg.Counters.Warnings++
		next = cfg.Counters.Warnings
	default:
		return 0, ErrNotFound
	}
	m.guilds[guildID] = cfg
	return next, nil
}

func matchTicket(t Ticket, q TicketQuery) bool {
	if q.GuildID != "" && t.GuildID != q.GuildID {
		return false
	}
	if q.UserID != "" && t.UserID != q.UserID {
		return false
	}
	if q.ChannelID != "" && t.ChannelID != q.ChannelID {
		return false
	}
	if q.TicketID != "" && t.TicketID != q.TicketID {
		return false
	}
	if len(q.Statuses) > 0 {
		found := false
		for _, status := range q.Statuses {
			if t.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Closed && t.ClosedAt == nil {
		return false
	}
	return q.Created.Contains(t.CreatedAt)
}

func matchWarning(w Warning, q WarningQuery) bool {
	if q.GuildID != "" && w.GuildID != q.GuildID {
		return false
	}
	if q.UserID != "" && w.UserID != q.UserID {
		return false
	}
	if q.WarningID != "" && w.WarningID != q.WarningID {
		return false
	}
	if q.Active != nil && w.Active != *q.Active {
		return false
	}
	return q.Created.Contains(w.CreatedAt)
}

func matchAudit(entry AuditLog, q AuditQuery) bool {
	if q.GuildID != "" && entry.GuildID != q.GuildID {
		return false
	}
	if q.Action != "" && entry.Action != q.Action {
		return false
	}
	if q.ModeratorID != "" && entry.ModeratorID != q.ModeratorID {
		return false
	}
	if q.TargetID != "" && entry.TargetID != q.TargetID {
		return false
	}
	return q.Created.Contains(entry.CreatedAt)
}

func ticketField(t Ticket, field Field) string {
	switch field {
	case FieldUser:
		return t.UserID
	case FieldStatus:
		return string(t.Status)
	case FieldCategory:
		return t.Category
	case FieldPriority:
		return string(t.Priority)
	default:
		return ""
	}
}

func warningField(w Warning, field Field) string {
	switch field {
	case FieldUser:
		return w.UserID
	case FieldModerator:
		return w.ModeratorID
	case FieldSeverity:
		return string(w.Severity)
	default:
		return ""
	}
}

func auditField(entry AuditLog, field Field) string {
	switch field {
	case FieldAction:
		return string(entry.Action)
	case FieldModerator:
		return entry.ModeratorID
	case FieldTarget:
		return entry.TargetID
	default:
		return ""
	}
}

func sortGroups(counts map[string]int64, limit int) []GroupCount {
	groups := make([]GroupCount, 0, len(counts))
	for key, count := range counts {
		groups = append(groups, GroupCount{Key: key, Count: count})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Key < groups[j].Key
	})
	return applyLimit(groups, limit)
}

func cloneTicket(t Ticket) Ticket {
	t.Messages = append([]TranscriptMessage(nil), t.Messages...)
	t.Notes = append([]StaffNote(nil), t.Notes...)
	if t.ClosedAt != nil {
		closed := *t.ClosedAt
		t.ClosedAt = &closed
	}
	return t
}
