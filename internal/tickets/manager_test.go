package tickets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"distrack/internal/errs"
	"distrack/internal/modules/audit"
	"distrack/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type fakeTimer struct {
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	timer := &fakeTimer{at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
	sort.Slice(c.timers, func(i, j int) bool { return c.timers[i].at.Before(c.timers[j].at) })
	for _, timer := range c.timers {
		if timer.stopped || timer.fired {
			continue
		}
		if !timer.at.After(c.now) {
			timer.fired = true
			timer.fn()
		}
	}
}

type fakePlatform struct {
	nextChannel int
	categoryErr error
	channels    map[string]string
	canSend     map[string]bool
	deleted     []string
	dms         []string
	dmErr       error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{channels: make(map[string]string), canSend: make(map[string]bool)}
}

func (f *fakePlatform) EnsureCategory(ctx context.Context, guildID, currentID, name string) (string, error) {
	if f.categoryErr != nil {
		return "", f.categoryErr
	}
	if currentID != "" {
		return currentID, nil
	}
	return "category-1", nil
}

func (f *fakePlatform) CreateTicketChannel(ctx context.Context, spec ChannelSpec) (string, error) {
	f.nextChannel++
	id := fmt.Sprintf("channel-%d", f.nextChannel)
	f.channels[id] = spec.Name
	f.canSend[id+"/"+spec.CreatorID] = true
	return id, nil
}

func (f *fakePlatform) SetMemberSend(ctx context.Context, channelID, userID string, allow bool) error {
	f.canSend[channelID+"/"+userID] = allow
	return nil
}

func (f *fakePlatform) RenameChannel(ctx context.Context, channelID, name string) error {
	f.channels[channelID] = name
	return nil
}

func (f *fakePlatform) DeleteChannel(ctx context.Context, channelID string) error {
	f.deleted = append(f.deleted, channelID)
	delete(f.channels, channelID)
	return nil
}

func (f *fakePlatform) DirectMessage(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error {
	if f.dmErr != nil {
		return f.dmErr
	}
	f.dms = append(f.dms, userID)
	return nil
}

type harness struct {
	manager  *Manager
	store    *storage.Memory
	platform *fakePlatform
	clock    *fakeClock
}

func newHarness() harness {
	store := storage.NewMemory()
	platform := newFakePlatform()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	auditLogger := audit.NewLogger(store, zap.NewNop())
	auditLogger.WithClock(clock.Now)
	manager := NewManager(Config{MaxOpenPerUser: 3}, NewCatalogue(nil), store, store, platform, auditLogger, zap.NewNop())
	manager.WithClock(clock)
	return harness{manager: manager, store: store, platform: platform, clock: clock}
}

var (
	creator = User{ID: "u1", Tag: "creator#0001"}
	staff   = User{ID: "s1", Tag: "staff#0001"}
)

func (h harness) create(t *testing.T, user User) storage.Ticket {
	t.Helper()
	ticket, err := h.manager.Create(context.Background(), CreateRequest{
		GuildID:     "g1",
		User:        user,
		Category:    "bug_report",
		Subject:     "Crash on start",
		Description: "The app crashes when I open it.",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return ticket
}

func TestCreateIssuesIncreasingIDs(t *testing.T) {
	h := newHarness()
	first := h.create(t, creator)
	second := h.create(t, User{ID: "u2", Tag: "other#0002"})

	if first.TicketID != "ticket-0001" || second.TicketID != "ticket-0002" {
		t.Fatalf("unexpected ids %s, %s", first.TicketID, second.TicketID)
	}
	if first.Category != "Bug Report" || first.Status != storage.TicketOpen || first.Priority != storage.PriorityMedium {
		t.Fatalf("unexpected ticket %+v", first)
	}
	if len(first.Messages) != 1 || first.Messages[0].Content != "The app crashes when I open it." {
		t.Fatalf("expected description as first transcript entry")
	}
	if h.platform.channels[first.ChannelID] != "ticket-0001" {
		t.Fatalf("expected channel named after ticket id")
	}
	cfg, _ := h.store.GetGuildConfig(context.Background(), "g1")
	if cfg.Tickets.CategoryID != "category-1" {
		t.Fatalf("expected ticket category to be remembered, got %q", cfg.Tickets.CategoryID)
	}
	count, _ := h.store.CountAuditLogs(context.Background(), storage.AuditQuery{GuildID: "g1", Action: storage.ActionTicketCreate})
	if count != 2 {
		t.Fatalf("expected 2 ticket_create entries, got %d", count)
	}
}

func TestCreateLimitDoesNotConsumeCounter(t *testing.T) {
	h := newHarness()
	for i := 0; i < 3; i++ {
		h.create(t, creator)
	}
	_, err := h.manager.Create(context.Background(), CreateRequest{GuildID: "g1", User: creator, Category: "bug_report", Subject: "s", Description: "d"})
	if !errors.Is(err, errs.ErrLimitExceeded) || errs.KindOf(err) != errs.LimitExceeded {
		t.Fatalf("expected limit exceeded, got %v", err)
	}
	cfg, _ := h.store.GetGuildConfig(context.Background(), "g1")
	if cfg.Counters.Tickets != 3 {
		t.Fatalf("expected counter to stay at 3, got %d", cfg.Counters.Tickets)
	}
	total, _ := h.store.CountTickets(context.Background(), storage.TicketQuery{GuildID: "g1"})
	if total != 3 {
		t.Fatalf("expected 3 tickets, got %d", total)
	}
}

func TestClosedTicketsDoNotCountTowardsLimit(t *testing.T) {
	h := newHarness()
	first := h.create(t, creator)
	h.create(t, creator)
	h.create(t, creator)
	if _, err := h.manager.Close(context.Background(), "g1", first.ChannelID, staff, "done"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if open, err := h.manager.CheckEligibility(context.Background(), "g1", creator.ID); err != nil || open != 2 {
		t.Fatalf("expected eligibility with 2 open, got %d (%v)", open, err)
	}
}

func TestCreateValidation(t *testing.T) {
	h := newHarness()
	long := make([]byte, MaxSubjectLen+1)
	for i := range long {
		long[i] = 'a'
	}
	cases := []CreateRequest{
		{GuildID: "g1", User: creator, Category: "unknown", Subject: "s", Description: "d"},
		{GuildID: "g1", User: creator, Category: "general_support", Subject: "", Description: "d"},
		{GuildID: "g1", User: creator, Category: "general_support", Subject: string(long), Description: "d"},
		{GuildID: "g1", User: creator, Category: "general_support", Subject: "s", Description: "  "},
	}
	for i, req := range cases {
		if _, err := h.manager.Create(context.Background(), req); errs.KindOf(err) != errs.InvalidInput {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}
}

func TestCreateWithoutCategoryChannel(t *testing.T) {
	h := newHarness()
	h.platform.categoryErr = errors.New("missing permissions")
	ticket := h.create(t, creator)
	if ticket.ChannelID == "" {
		t.Fatalf("expected ticket channel even without a category")
	}
}

func TestCloseReopenRoundTrip(t *testing.T) {
	h := newHarness()
	ticket := h.create(t, creator)
	ctx := context.Background()

	if _, err := h.manager.Reopen(ctx, "g1", ticket.ChannelID, staff); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("expected invalid state reopening open ticket, got %v", err)
	}
	closed, err := h.manager.Close(ctx, "g1", ticket.ChannelID, staff, "resolved")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.ClosedAt == nil || closed.ClosedBy != staff.ID {
		t.Fatalf("expected close stamps, got %+v", closed)
	}
	if h.platform.canSend[ticket.ChannelID+"/"+creator.ID] {
		t.Fatalf("expected creator send permission revoked")
	}
	if h.platform.channels[ticket.ChannelID] != "closed-ticket-0001" {
		t.Fatalf("unexpected channel name %q", h.platform.channels[ticket.ChannelID])
	}
	if len(h.platform.dms) != 1 {
		t.Fatalf("expected creator to be notified")
	}
	if _, err := h.manager.Close(ctx, "g1", ticket.ChannelID, staff, ""); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("expected invalid state closing twice, got %v", err)
	}

	reopened, err := h.manager.Reopen(ctx, "g1", ticket.ChannelID, staff)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Status != storage.TicketOpen || reopened.ClosedAt != nil || reopened.ClosedBy != "" {
		t.Fatalf("expected stamps cleared, got %+v", reopened)
	}
	stored, _ := h.manager.Get(ctx, "g1", ticket.ChannelID)
	if stored.ClosedAt != nil || stored.ClosedBy != "" {
		t.Fatalf("expected stored stamps cleared")
	}
	if !h.platform.canSend[ticket.ChannelID+"/"+creator.ID] {
		t.Fatalf("expected creator send permission restored")
	}
}

func TestCloseSurvivesNotificationFailure(t *testing.T) {
	h := newHarness()
	ticket := h.create(t, creator)
	h.platform.dmErr = errors.New("dms closed")
	if _, err := h.manager.Close(context.Background(), "g1", ticket.ChannelID, staff, ""); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}
}

func TestArchiveDeletesChannelAfterDelay(t *testing.T) {
	h := newHarness()
	ticket := h.create(t, creator)
	ctx := context.Background()

	archived, err := h.manager.Archive(ctx, "g1", ticket.ChannelID, staff, "spam")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived.Status != storage.TicketArchived || archived.ClosedAt == nil {
		t.Fatalf("expected archived ticket with close stamp, got %+v", archived)
	}
	h.clock.Advance(9 * time.Second)
	if len(h.platform.deleted) != 0 {
		t.Fatalf("expected channel kept during grace delay")
	}
	h.clock.Advance(time.Second)
	if len(h.platform.deleted) != 1 || h.platform.deleted[0] != ticket.ChannelID {
		t.Fatalf("expected channel deleted after delay, got %v", h.platform.deleted)
	}
	if _, err := h.manager.Archive(ctx, "g1", ticket.ChannelID, staff, ""); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("expected archive to be terminal, got %v", err)
	}
	if _, err := h.manager.AddNote(ctx, "g1", ticket.ChannelID, staff, "late"); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("expected archived ticket to reject notes, got %v", err)
	}
}

func TestUnknownChannelIsNotATicket(t *testing.T) {
	h := newHarness()
	if _, err := h.manager.Close(context.Background(), "g1", "random", staff, ""); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Fatalf("expected ticket not found, got %v", err)
	}
}

func TestNotesAssignmentAndPriority(t *testing.T) {
	h := newHarness()
	ticket := h.create(t, creator)
	ctx := context.Background()

	if _, err := h.manager.AddNote(ctx, "g1", ticket.ChannelID, staff, "checking logs"); err != nil {
		t.Fatalf("note: %v", err)
	}
	if _, err := h.manager.Assign(ctx, "g1", ticket.ChannelID, staff, staff.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := h.manager.SetPriority(ctx, "g1", ticket.ChannelID, staff, "urgent"); err != nil {
		t.Fatalf("priority: %v", err)
	}
	if _, err := h.manager.SetPriority(ctx, "g1", ticket.ChannelID, staff, "someday"); errs.KindOf(err) != errs.InvalidInput {
		t.Fatalf("expected invalid priority, got %v", err)
	}
	if err := h.manager.AppendMessage(ctx, "g1", ticket.ChannelID, storage.TranscriptMessage{UserID: staff.ID, Content: "hi", Timestamp: h.clock.now}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := h.manager.AppendMessage(ctx, "g1", "not-a-ticket", storage.TranscriptMessage{Content: "ignored"}); err != nil {
		t.Fatalf("expected non-ticket channel to be ignored, got %v", err)
	}

	stored, _ := h.manager.Get(ctx, "g1", ticket.ChannelID)
	if len(stored.Notes) != 1 || stored.AssignedTo != staff.ID || stored.Priority != storage.PriorityUrgent || len(stored.Messages) != 2 {
		t.Fatalf("unexpected ticket %+v", stored)
	}
}

// interleavingStore runs hook once at the named store call, or at the first
// call of any kind when on is empty, to simulate a concurrent handler
// landing mid-operation.
type interleavingStore struct {
	*storage.Memory
	on   string
	hook func()
}

func (s *interleavingStore) fire(op string) {
	if s.hook != nil && (s.on == "" || s.on == op) {
		hook := s.hook
		s.hook = nil
		hook()
	}
}

func (s *interleavingStore) FindTicket(ctx context.Context, q storage.TicketQuery) (storage.Ticket, error) {
	ticket, err := s.Memory.FindTicket(ctx, q)
	s.fire("find")
	return ticket, err
}

func (s *interleavingStore) UpdateTicket(ctx context.Context, ticket storage.Ticket) error {
	s.fire("update")
	return s.Memory.UpdateTicket(ctx, ticket)
}

func (s *interleavingStore) AppendTranscript(ctx context.Context, guildID, channelID string, msg storage.TranscriptMessage) error {
	s.fire("append")
	return s.Memory.AppendTranscript(ctx, guildID, channelID, msg)
}

func newInterleavingHarness() (harness, *interleavingStore) {
	h := newHarness()
	store := &interleavingStore{Memory: h.store}
	auditLogger := audit.NewLogger(h.store, zap.NewNop())
	auditLogger.WithClock(h.clock.Now)
	h.manager = NewManager(Config{MaxOpenPerUser: 3}, NewCatalogue(nil), store, h.store, h.platform, auditLogger, zap.NewNop())
	h.manager.WithClock(h.clock)
	return h, store
}

func TestAppendMessageDoesNotUndoConcurrentClose(t *testing.T) {
	h, store := newInterleavingHarness()
	ticket := h.create(t, creator)
	ctx := context.Background()

	store.hook = func() {
		if _, err := h.manager.Close(ctx, "g1", ticket.ChannelID, staff, "done"); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	if err := h.manager.AppendMessage(ctx, "g1", ticket.ChannelID, storage.TranscriptMessage{UserID: creator.ID, Content: "one more thing", Timestamp: h.clock.now}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if store.hook != nil {
		t.Fatalf("expected close to run during append")
	}

	stored, _ := h.store.FindTicket(ctx, storage.TicketQuery{ChannelID: ticket.ChannelID})
	if stored.Status != storage.TicketClosed || stored.ClosedBy != staff.ID || stored.ClosedAt == nil {
		t.Fatalf("expected close to survive the append, got status %s closed by %q", stored.Status, stored.ClosedBy)
	}
	if len(stored.Messages) != 2 || stored.Messages[1].Content != "one more thing" {
		t.Fatalf("expected appended message, got %+v", stored.Messages)
	}
}

func TestCloseDoesNotDropConcurrentMessage(t *testing.T) {
	h, store := newInterleavingHarness()
	ticket := h.create(t, creator)
	ctx := context.Background()

	store.on = "update"
	store.hook = func() {
		if err := h.manager.AppendMessage(ctx, "g1", ticket.ChannelID, storage.TranscriptMessage{UserID: creator.ID, Content: "wait", Timestamp: h.clock.now}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if _, err := h.manager.Close(ctx, "g1", ticket.ChannelID, staff, "done"); err != nil {
		t.Fatalf("close: %v", err)
	}

	stored, _ := h.store.FindTicket(ctx, storage.TicketQuery{ChannelID: ticket.ChannelID})
	if stored.Status != storage.TicketClosed {
		t.Fatalf("expected closed, got %s", stored.Status)
	}
	if len(stored.Messages) != 2 || stored.Messages[1].Content != "wait" {
		t.Fatalf("expected message written during close to be kept, got %+v", stored.Messages)
	}
}

func TestAppendMessageIgnoresArchivedTicket(t *testing.T) {
	h := newHarness()
	ticket := h.create(t, creator)
	ctx := context.Background()

	if _, err := h.manager.Close(ctx, "g1", ticket.ChannelID, staff, ""); err != nil {
		t.Fatalf("close: %v", err)
	}
	stored, _ := h.store.FindTicket(ctx, storage.TicketQuery{ChannelID: ticket.ChannelID})
	if err := stored.Archive(staff.ID, h.clock.now); err != nil {
		t.Fatalf("archive: %v", err)
	}
	_ = h.store.UpdateTicket(ctx, stored)

	if err := h.manager.AppendMessage(ctx, "g1", ticket.ChannelID, storage.TranscriptMessage{Content: "late"}); err != nil {
		t.Fatalf("expected archived ticket to be ignored, got %v", err)
	}
	after, _ := h.store.FindTicket(ctx, storage.TicketQuery{ChannelID: ticket.ChannelID})
	if after.Status != storage.TicketArchived || len(after.Messages) != 1 {
		t.Fatalf("expected archived ticket untouched, got %+v", after)
	}
}

func TestCatalogue(t *testing.T) {
	catalogue := NewCatalogue(nil)
	if len(catalogue.All()) != 4 {
		t.Fatalf("expected default categories")
	}
	cat, ok := catalogue.Lookup("moderation_appeal")
	if !ok || cat.Name != "Moderation Appeal" {
		t.Fatalf("expected multi-word slug lookup, got %+v", cat)
	}
	if Slugify("  Feature   Request ") != "feature_request" {
		t.Fatalf("unexpected slug %q", Slugify("  Feature   Request "))
	}
	if Slugify("Billing: Refunds/Returns") != "billing_refunds_returns" {
		t.Fatalf("unexpected slug %q", Slugify("Billing: Refunds/Returns"))
	}
}
