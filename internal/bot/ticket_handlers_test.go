package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"distrack/internal/errs"
	"distrack/internal/storage"
	"distrack/internal/tickets"
	"distrack/internal/utils"

	"go.uber.org/zap"
)

type unreachableGuilds struct {
	*storage.Memory
}

func (unreachableGuilds) GetGuildConfig(ctx context.Context, guildID string) (storage.GuildConfig, error) {
	return storage.GuildConfig{}, errors.New("server selection timeout")
}

func newSubmitBot(guilds storage.GuildConfigStore, store *storage.Memory) *Bot {
	return &Bot{
		submits: utils.NewDebouncer(time.Minute),
		tickets: tickets.NewManager(tickets.Config{}, tickets.NewCatalogue(nil), store, guilds, nil, nil, zap.NewNop()),
	}
}

func TestSubmitTicketInvalidInputDoesNotHoldCooldown(t *testing.T) {
	store := storage.NewMemory()
	b := newSubmitBot(store, store)
	ctx := context.Background()
	req := tickets.CreateRequest{GuildID: "g1", User: tickets.User{ID: "u1"}, Category: "bug_report", Subject: "   ", Description: "crash"}

	for attempt := 0; attempt < 2; attempt++ {
		if _, err := b.submitTicket(ctx, req); errs.KindOf(err) != errs.InvalidInput {
			t.Fatalf("attempt %d: expected invalid input, got %v", attempt, err)
		}
	}
	req.Category = "nope"
	if _, err := b.submitTicket(ctx, req); !errors.Is(err, errs.ErrUnknownCategory) {
		t.Fatalf("expected unknown category, got %v", err)
	}
}

func TestSubmitTicketExternalFailureHoldsCooldown(t *testing.T) {
	store := storage.NewMemory()
	b := newSubmitBot(unreachableGuilds{store}, store)
	ctx := context.Background()
	req := tickets.CreateRequest{GuildID: "g1", User: tickets.User{ID: "u1"}, Category: "bug_report", Subject: "Crash", Description: "crash on start"}

	if _, err := b.submitTicket(ctx, req); err == nil || errs.KindOf(err) != errs.External {
		t.Fatalf("expected external failure, got %v", err)
	}
	if _, err := b.submitTicket(ctx, req); !errors.Is(err, errs.ErrTooFast) {
		t.Fatalf("expected double submit to be rejected, got %v", err)
	}
	other := req
	other.User = tickets.User{ID: "u2"}
	if _, err := b.submitTicket(ctx, other); errors.Is(err, errs.ErrTooFast) {
		t.Fatalf("expected other member to pass the cooldown")
	}
}
