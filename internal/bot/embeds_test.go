package bot

import (
	"strings"
	"testing"
	"time"

	"distrack/internal/config"
	"distrack/internal/storage"

	"github.com/bwmarrin/discordgo"
)

func buttonIDs(t *testing.T, components []discordgo.MessageComponent) []string {
	t.Helper()
	if len(components) != 1 {
		t.Fatalf("expected one action row, got %d", len(components))
	}
	row, ok := components[0].(discordgo.ActionsRow)
	if !ok {
		t.Fatalf("expected an action row, got %T", components[0])
	}
	ids := make([]string, 0, len(row.Components))
	for _, c := range row.Components {
		ids = append(ids, c.(discordgo.Button).CustomID)
	}
	return ids
}

func TestTicketControls(t *testing.T) {
	tests := []struct {
		status storage.TicketStatus
		want   []string
	}{
		{status: storage.TicketOpen, want: []string{"ticket:close", "ticket:delete"}},
		{status: storage.TicketClosed, want: []string{"ticket:reopen", "ticket:delete"}},
		{status: storage.TicketArchived, want: []string{"ticket:delete"}},
	}
	for _, tt := range tests {
		got := buttonIDs(t, ticketControls(tt.status))
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Fatalf("%s: expected %v, got %v", tt.status, tt.want, got)
		}
		for _, id := range got {
			if _, err := ParseCustomID(id, kindComponent); err != nil {
				t.Fatalf("%s: expected routable id %q, got %v", tt.status, id, err)
			}
		}
	}
}

func TestAuditEmbed(t *testing.T) {
	b := &Bot{cfg: config.DefaultConfig()}
	created := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	embed := b.auditEmbed(storage.AuditLog{
		Action:      storage.ActionTimeout,
		ModeratorID: "mod",
		TargetID:    "user",
		TargetType:  storage.TargetUser,
		Reason:      "spam",
		Details:     map[string]string{"until": "later", "target_tag": "user#1"},
		Metadata:    &storage.AuditMetadata{Duration: "1h 0m"},
		CreatedAt:   created,
	})
	if embed.Title != actionLabel(storage.ActionTimeout) {
		t.Fatalf("expected timeout title, got %q", embed.Title)
	}
	if embed.Timestamp != created.Format(time.RFC3339) {
		t.Fatalf("expected entry timestamp, got %q", embed.Timestamp)
	}
	names := make([]string, 0, len(embed.Fields))
	for _, f := range embed.Fields {
		names = append(names, f.Name)
	}
	if strings.Join(names, ",") != "Moderator,Target,Reason,Duration,Details" {
		t.Fatalf("unexpected fields %v", names)
	}
	details := embed.Fields[len(embed.Fields)-1].Value
	if strings.Index(details, "target_tag") > strings.Index(details, "until") {
		t.Fatalf("expected sorted details, got %q", details)
	}
}

func TestTargetLabel(t *testing.T) {
	tests := []struct {
		entry storage.AuditLog
		want  string
	}{
		{entry: storage.AuditLog{TargetID: "1", TargetType: storage.TargetUser}, want: "<@1>"},
		{entry: storage.AuditLog{TargetID: "2", TargetType: storage.TargetChannel}, want: "<#2>"},
		{entry: storage.AuditLog{TargetID: "3", TargetType: storage.TargetRole}, want: "<@&3>"},
		{entry: storage.AuditLog{TargetID: "4", TargetType: storage.TargetGuild}, want: "4"},
	}
	for _, tt := range tests {
		if got := targetLabel(tt.entry); got != tt.want {
			t.Fatalf("expected %q, got %q", tt.want, got)
		}
	}
	if mention("system") != "System" {
		t.Fatalf("expected system moderator label")
	}
}

func TestFieldTruncation(t *testing.T) {
	long := strings.Repeat("a", maxFieldLen+50)
	f := field("Reason", long, false)
	if len(f.Value) != maxFieldLen || !strings.HasSuffix(f.Value, "...") {
		t.Fatalf("expected truncated field of %d, got %d", maxFieldLen, len(f.Value))
	}
	if field("Empty", "", true).Value != "-" {
		t.Fatalf("expected placeholder for empty value")
	}
	if truncate("héllo wörld", 8) != "héllo..." {
		t.Fatalf("expected rune-aware truncation, got %q", truncate("héllo wörld", 8))
	}
}

func TestLogsEmbedEmpty(t *testing.T) {
	b := &Bot{cfg: config.DefaultConfig()}
	embed := b.logsEmbed("Logs", nil)
	if embed.Description != "No audit log entries found." {
		t.Fatalf("unexpected description %q", embed.Description)
	}
}
