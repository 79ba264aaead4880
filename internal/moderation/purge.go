package moderation

import (
	"strings"
	"time"

	"distrack/internal/errs"
	"distrack/internal/utils"

	"github.com/bwmarrin/discordgo"
)

const (
	MaxPurgeAmount = 100
	purgeFetchMax  = 100
)

// PurgeFilter fields are AND-ed. Zero values disable a filter.
type PurgeFilter struct {
	AuthorID        string
	Contains        string
	Domain          string
	BotsOnly        bool
	EmbedsOnly      bool
	AttachmentsOnly bool
	PinnedOnly      bool
	OlderThan       time.Duration
	NewerThan       time.Duration
}

func (f PurgeFilter) validate() error {
	// older-than names a cutoff nearer to now than newer-than does.
	if f.OlderThan > 0 && f.NewerThan > 0 && f.OlderThan >= f.NewerThan {
		return errs.ErrInvalidWindow
	}
	return nil
}

func (f PurgeFilter) matches(msg *discordgo.Message, now time.Time) bool {
	if f.AuthorID != "" && (msg.Author == nil || msg.Author.ID != f.AuthorID) {
		return false
	}
	if f.Contains != "" && !strings.Contains(strings.ToLower(msg.Content), strings.ToLower(f.Contains)) {
		return false
	}
	if f.BotsOnly && (msg.Author == nil || !msg.Author.Bot) {
		return false
	}
	if f.EmbedsOnly && len(msg.Embeds) == 0 {
		return false
	}
	if f.AttachmentsOnly && len(msg.Attachments) == 0 {
		return false
	}
	if f.PinnedOnly && !msg.Pinned {
		return false
	}
	if f.OlderThan > 0 && !msg.Timestamp.Before(now.Add(-f.OlderThan)) {
		return false
	}
	if f.NewerThan > 0 && !msg.Timestamp.After(now.Add(-f.NewerThan)) {
		return false
	}
	if f.Domain != "" && !utils.LinksTo(msg.Content, f.Domain) {
		return false
	}
	return true
}

// Active lists the enabled filters for audit details.
func (f PurgeFilter) Active() map[string]string {
	out := make(map[string]string)
	if f.AuthorID != "" {
		out["user"] = f.AuthorID
	}
	if f.Contains != "" {
		out["content"] = f.Contains
	}
	if f.Domain != "" {
		out["domain"] = utils.NormalizeDomain(f.Domain)
	}
	if f.BotsOnly {
		out["bots"] = "true"
	}
	if f.EmbedsOnly {
		out["embeds"] = "true"
	}
	if f.AttachmentsOnly {
		out["attachments"] = "true"
	}
	if f.PinnedOnly {
		out["pins"] = "true"
	}
	if f.OlderThan > 0 {
		out["older_than"] = FormatDuration(f.OlderThan)
	}
	if f.NewerThan > 0 {
		out["newer_than"] = FormatDuration(f.NewerThan)
	}
	return out
}

type PurgePlan struct {
	Delete      []*discordgo.Message
	Matched     int
	Undeletable int
}

func purgeFetchLimit(amount int) int {
	if amount*3 > purgeFetchMax {
		return purgeFetchMax
	}
	return amount * 3
}

// PlanPurge selects up to amount messages from candidates. Matches older
// than the bulk-delete age limit are counted as undeletable.
func PlanPurge(candidates []*discordgo.Message, filter PurgeFilter, amount int, now time.Time) PurgePlan {
	var plan PurgePlan
	cutoff := now.Add(-purgeMaxAge)
	for _, msg := range candidates {
		if msg == nil || !filter.matches(msg, now) {
			continue
		}
		plan.Matched++
		if !msg.Timestamp.After(cutoff) {
			plan.Undeletable++
			continue
		}
		if len(plan.Delete) < amount {
			plan.Delete = append(plan.Delete, msg)
		}
	}
	return plan
}
