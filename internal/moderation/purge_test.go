package moderation

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func message(id string, bot bool, age time.Duration, now time.Time) *discordgo.Message {
	return &discordgo.Message{
		ID:        id,
		Author:    &discordgo.User{ID: "author-" + id, Bot: bot},
		Timestamp: now.Add(-age),
	}
}

func TestPlanPurgeBotsOnly(t *testing.T) {
	now := time.Now()
	var candidates []*discordgo.Message
	for i := 0; i < 30; i++ {
		age := time.Hour
		if i < 4 {
			age = 20 * 24 * time.Hour
		}
		candidates = append(candidates, message("b"+string(rune('a'+i)), true, age, now))
	}
	for i := 0; i < 20; i++ {
		age := time.Hour
		if i < 6 {
			age = 20 * 24 * time.Hour
		}
		candidates = append(candidates, message("h"+string(rune('a'+i)), false, age, now))
	}

	plan := PlanPurge(candidates, PurgeFilter{BotsOnly: true}, 50, now)
	if len(plan.Delete) > 30 {
		t.Fatalf("expected at most 30 deletions, got %d", len(plan.Delete))
	}
	if len(plan.Delete) != 26 {
		t.Fatalf("expected 26 deletable bot messages, got %d", len(plan.Delete))
	}
	if plan.Undeletable != 4 {
		t.Fatalf("expected 4 undeletable bot messages, got %d", plan.Undeletable)
	}
	for _, msg := range plan.Delete {
		if !msg.Author.Bot {
			t.Fatalf("expected only bot messages, got %s", msg.ID)
		}
	}
}

func TestPlanPurgeConjunction(t *testing.T) {
	now := time.Now()
	match := &discordgo.Message{ID: "1", Author: &discordgo.User{ID: "u1"}, Content: "Buy NOW at https://spam.example.com",
		Timestamp: now.Add(-2 * time.Hour), Pinned: true}
	wrongAuthor := &discordgo.Message{ID: "2", Author: &discordgo.User{ID: "u2"}, Content: "buy now https://spam.example.com",
		Timestamp: now.Add(-2 * time.Hour), Pinned: true}
	notPinned := &discordgo.Message{ID: "3", Author: &discordgo.User{ID: "u1"}, Content: "buy now https://spam.example.com",
		Timestamp: now.Add(-2 * time.Hour)}
	tooNew := &discordgo.Message{ID: "4", Author: &discordgo.User{ID: "u1"}, Content: "buy now https://spam.example.com",
		Timestamp: now.Add(-10 * time.Minute), Pinned: true}

	filter := PurgeFilter{AuthorID: "u1", Contains: "buy now", Domain: "example.com", PinnedOnly: true,
		OlderThan: time.Hour, NewerThan: 24 * time.Hour}
	plan := PlanPurge([]*discordgo.Message{match, wrongAuthor, notPinned, tooNew}, filter, 10, now)
	if len(plan.Delete) != 1 || plan.Delete[0].ID != "1" {
		t.Fatalf("expected only message 1, got %+v", plan.Delete)
	}
}

func TestPlanPurgeRespectsAmount(t *testing.T) {
	now := time.Now()
	var candidates []*discordgo.Message
	for i := 0; i < 10; i++ {
		candidates = append(candidates, message(string(rune('a'+i)), false, time.Minute, now))
	}
	plan := PlanPurge(candidates, PurgeFilter{}, 3, now)
	if len(plan.Delete) != 3 || plan.Matched != 10 {
		t.Fatalf("expected 3 of 10, got %d of %d", len(plan.Delete), plan.Matched)
	}
}

func TestPurgeWindowValidation(t *testing.T) {
	if err := (PurgeFilter{OlderThan: 2 * time.Hour, NewerThan: time.Hour}).validate(); err == nil {
		t.Fatalf("expected inverted window to be rejected")
	}
	if err := (PurgeFilter{OlderThan: time.Hour, NewerThan: 2 * time.Hour}).validate(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if purgeFetchLimit(50) != 100 || purgeFetchLimit(10) != 30 {
		t.Fatalf("unexpected fetch limits")
	}
}
