package bot

import (
	"strings"
	"testing"

	"distrack/internal/config"
	"distrack/internal/moderation"

	"github.com/bwmarrin/discordgo"
)

func commandOption(name string, kind discordgo.ApplicationCommandOptionType, value any) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: kind, Value: value}
}

func TestOptions(t *testing.T) {
	opts := newOptions([]*discordgo.ApplicationCommandInteractionDataOption{
		commandOption("user", discordgo.ApplicationCommandOptionUser, "123"),
		commandOption("reason", discordgo.ApplicationCommandOptionString, "  spam  "),
		commandOption("amount", discordgo.ApplicationCommandOptionInteger, float64(25)),
		commandOption("bots", discordgo.ApplicationCommandOptionBoolean, true),
	})
	if opts.id("user") != "123" {
		t.Fatalf("expected user 123, got %q", opts.id("user"))
	}
	if opts.string("reason") != "spam" {
		t.Fatalf("expected trimmed reason, got %q", opts.string("reason"))
	}
	if opts.int("amount", 0) != 25 {
		t.Fatalf("expected amount 25, got %d", opts.int("amount", 0))
	}
	if opts.int("limit", 15) != 15 {
		t.Fatalf("expected fallback for missing option")
	}
	if !opts.bool("bots") || opts.bool("embeds") {
		t.Fatalf("expected bots true and embeds false")
	}
	if opts.string("missing") != "" {
		t.Fatalf("expected empty string for missing option")
	}
}

func TestOptionsSubcommand(t *testing.T) {
	opts := newOptions([]*discordgo.ApplicationCommandInteractionDataOption{{
		Name: "clear",
		Type: discordgo.ApplicationCommandOptionSubCommand,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			commandOption("user", discordgo.ApplicationCommandOptionUser, "42"),
		},
	}})
	name, sub := opts.sub()
	if name != "clear" {
		t.Fatalf("expected clear, got %q", name)
	}
	if sub.id("user") != "42" {
		t.Fatalf("expected user 42, got %q", sub.id("user"))
	}

	name, _ = newOptions(nil).sub()
	if name != "" {
		t.Fatalf("expected no subcommand, got %q", name)
	}
}

func TestModalValues(t *testing.T) {
	components := []discordgo.MessageComponent{
		&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			&discordgo.TextInput{CustomID: inputSubject, Value: "Login broken"},
		}},
		&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			&discordgo.TextInput{CustomID: inputDescription, Value: "Cannot log in since Monday"},
		}},
	}
	values := modalValues(components)
	if values[inputSubject] != "Login broken" || values[inputDescription] != "Cannot log in since Monday" {
		t.Fatalf("unexpected modal values %+v", values)
	}
}

func TestIsAuthorized(t *testing.T) {
	session, err := discordgo.New("Bot test")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	b := &Bot{cfg: config.Config{OwnerID: "owner"}, session: session}

	interaction := func(userID string, perms int64) *discordgo.InteractionCreate {
		return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
			GuildID: "g1",
			Member:  &discordgo.Member{User: &discordgo.User{ID: userID}, Permissions: perms},
		}}
	}

	if !b.isAuthorized(interaction("owner", 0)) {
		t.Fatalf("expected owner to bypass permission checks")
	}
	if !b.isAuthorized(interaction("admin", discordgo.PermissionAdministrator)) {
		t.Fatalf("expected administrator to be authorized")
	}
	if b.isAuthorized(interaction("member", discordgo.PermissionSendMessages)) {
		t.Fatalf("expected regular member to be rejected")
	}
	if b.isAuthorized(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{GuildID: "g1"}}) {
		t.Fatalf("expected interaction without a user to be rejected")
	}
}

func TestTimeoutDurationDefault(t *testing.T) {
	cfg := config.DefaultConfig()
	b := &Bot{cfg: cfg}
	if got := b.timeoutDuration(""); got != "10m" {
		t.Fatalf("expected default 10m, got %q", got)
	}
	if got := b.timeoutDuration("2h"); got != "2h" {
		t.Fatalf("expected explicit duration to win, got %q", got)
	}
	cfg.Moderation.DefaultTimeoutMinutes = 90
	b.cfg = cfg
	if got := b.timeoutDuration(""); got != "90m" {
		t.Fatalf("expected 90m, got %q", got)
	}
}

func TestPurgeSummary(t *testing.T) {
	if got := purgeSummary(moderation.PurgeResult{}); got != "No messages matched the given filters." {
		t.Fatalf("unexpected empty summary %q", got)
	}
	got := purgeSummary(moderation.PurgeResult{Matched: 4, Undeletable: 4, Fetched: 50})
	if !strings.HasPrefix(got, "No messages could be deleted.") || !strings.Contains(got, "4 matching messages were older than 14 days") {
		t.Fatalf("expected undeletable count in summary, got %q", got)
	}
	got = purgeSummary(moderation.PurgeResult{Deleted: 3, Matched: 5, Undeletable: 2})
	if !strings.HasPrefix(got, "Deleted **3** messages.") || !strings.Contains(got, "2 matching messages") {
		t.Fatalf("unexpected summary %q", got)
	}
	if got := purgeSummary(moderation.PurgeResult{Deleted: 1, Matched: 1}); strings.Contains(got, "14 days") {
		t.Fatalf("expected no age note, got %q", got)
	}
}
