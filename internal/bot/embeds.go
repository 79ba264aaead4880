package bot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"distrack/internal/analytics"
	"distrack/internal/moderation"
	"distrack/internal/storage"
	"distrack/internal/tickets"

	"github.com/bwmarrin/discordgo"
)

const maxFieldLen = 1024

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

func (b *Bot) successEmbed(title, description string, fields ...*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return b.commandEmbed("✅ "+title, description, b.cfg.Colors.Success, fields)
}

func (b *Bot) errorEmbed(description string) *discordgo.MessageEmbed {
	return b.commandEmbed("❌ Error", description, b.cfg.Colors.Error, nil)
}

func (b *Bot) infoEmbed(title, description string, fields ...*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return b.commandEmbed(title, description, b.cfg.Colors.Info, fields)
}

func field(name, value string, inline bool) *discordgo.MessageEmbedField {
	if value == "" {
		value = "-"
	}
	if len(value) > maxFieldLen {
		value = value[:maxFieldLen-3] + "..."
	}
	return &discordgo.MessageEmbedField{Name: name, Value: value, Inline: inline}
}

func mention(userID string) string {
	if userID == "" || userID == "system" {
		return "System"
	}
	return "<@" + userID + ">"
}

func formatUser(user *discordgo.User, fallbackID string) string {
	if user == nil {
		return mention(fallbackID)
	}
	return fmt.Sprintf("%s (%s)", user.String(), user.ID)
}

func timestamp(t time.Time) string {
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}

var actionLabels = map[storage.Action]string{
	storage.ActionBan:           "🔨 Ban",
	storage.ActionUnban:         "🔓 Unban",
	storage.ActionKick:          "👢 Kick",
	storage.ActionTimeout:       "🔇 Timeout",
	storage.ActionRemoveTimeout: "🔊 Timeout Removed",
	storage.ActionWarnAdd:       "⚠️ Warning Added",
	storage.ActionWarnRemove:    "🗑️ Warning Removed",
	storage.ActionWarnClear:     "🧹 Warnings Cleared",
	storage.ActionPurge:         "🧽 Messages Purged",
	storage.ActionRoleAdd:       "🎭 Role Added",
	storage.ActionAutoroleSet:   "🎭 Auto-Role Set",
	storage.ActionTicketCreate:  "🎫 Ticket Created",
	storage.ActionTicketClose:   "🔒 Ticket Closed",
	storage.ActionTicketReopen:  "🔓 Ticket Reopened",
	storage.ActionTicketDelete:  "🗑️ Ticket Deleted",
	storage.ActionConfigUpdate:  "⚙️ Configuration Updated",
}

func actionLabel(action storage.Action) string {
	if label, ok := actionLabels[action]; ok {
		return label
	}
	return string(action)
}

func targetLabel(entry storage.AuditLog) string {
	switch entry.TargetType {
	case storage.TargetChannel:
		return "<#" + entry.TargetID + ">"
	case storage.TargetRole:
		return "<@&" + entry.TargetID + ">"
	case storage.TargetUser:
		return mention(entry.TargetID)
	default:
		return entry.TargetID
	}
}

func (b *Bot) auditEmbed(entry storage.AuditLog) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		field("Moderator", mention(entry.ModeratorID), true),
		field("Target", targetLabel(entry), true),
	}
	if entry.Reason != "" {
		fields = append(fields, field("Reason", entry.Reason, false))
	}
	if entry.Metadata != nil && entry.Metadata.Duration != "" {
		fields = append(fields, field("Duration", entry.Metadata.Duration, true))
	}
	if len(entry.Details) > 0 {
		keys := make([]string, 0, len(entry.Details))
		for key := range entry.Details {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, key := range keys {
			lines = append(lines, fmt.Sprintf("**%s:** %s", key, entry.Details[key]))
		}
		fields = append(fields, field("Details", strings.Join(lines, "\n"), false))
	}
	embed := b.commandEmbed(actionLabel(entry.Action), "", b.cfg.Colors.Warning, fields)
	embed.Timestamp = entry.CreatedAt.Format(time.RFC3339)
	return embed
}

func (b *Bot) logsEmbed(title string, entries []storage.AuditLog) *discordgo.MessageEmbed {
	if len(entries) == 0 {
		return b.infoEmbed(title, "No audit log entries found.")
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		line := fmt.Sprintf("%s %s → %s by %s", timestamp(entry.CreatedAt), actionLabel(entry.Action), targetLabel(entry), mention(entry.ModeratorID))
		if entry.Reason != "" {
			line += "\n> " + truncate(entry.Reason, 100)
		}
		lines = append(lines, line)
	}
	return b.infoEmbed(title, truncate(strings.Join(lines, "\n"), 4000))
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-3]) + "..."
}

func severityEmoji(severity storage.Severity) string {
	switch severity {
	case storage.SeverityLow:
		return "🟢"
	case storage.SeverityHigh:
		return "🟠"
	case storage.SeverityCritical:
		return "🔴"
	default:
		return "🟡"
	}
}

func (b *Bot) warningListEmbed(userID string, list moderation.WarnList) *discordgo.MessageEmbed {
	if len(list.Warnings) == 0 {
		return b.infoEmbed("Warnings", fmt.Sprintf("%s has no warnings.", mention(userID)))
	}
	now := time.Now()
	fields := make([]*discordgo.MessageEmbedField, 0, len(list.Warnings))
	for _, w := range list.Warnings {
		state := "Active"
		switch {
		case !w.Active:
			state = "Removed"
		case w.IsExpired(now):
			state = "Expired"
		}
		fields = append(fields, field(
			fmt.Sprintf("%s %s (%s)", severityEmoji(w.Severity), w.WarningID, state),
			fmt.Sprintf("%s\nBy %s %s", truncate(w.Reason, 200), mention(w.ModeratorID), timestamp(w.CreatedAt)),
			false,
		))
	}
	description := fmt.Sprintf("%s has **%d** active of **%d** total warnings.", mention(userID), list.Active, list.Total)
	return b.commandEmbed("⚠️ Warnings", description, b.cfg.Colors.Warning, fields)
}

func (b *Bot) warningInfoEmbed(w storage.Warning) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		field("User", mention(w.UserID), true),
		field("Moderator", mention(w.ModeratorID), true),
		field("Severity", severityEmoji(w.Severity)+" "+string(w.Severity), true),
		field("Reason", w.Reason, false),
		field("Created", timestamp(w.CreatedAt), true),
	}
	if w.ExpiresAt != nil {
		fields = append(fields, field("Expires", timestamp(*w.ExpiresAt), true))
	}
	if !w.Active {
		fields = append(fields, field("Removed by", mention(w.RemovedBy), true))
		if w.RemovedReason != "" {
			fields = append(fields, field("Removal reason", w.RemovedReason, false))
		}
	}
	return b.commandEmbed("⚠️ "+w.WarningID, "", b.cfg.Colors.Warning, fields)
}

func countLines(counts []analytics.Count, format func(string) string, limit int) string {
	if len(counts) == 0 {
		return "None"
	}
	lines := make([]string, 0, len(counts))
	for i, c := range counts {
		if limit > 0 && i >= limit {
			break
		}
		lines = append(lines, fmt.Sprintf("%s: **%d**", format(c.Key), c.Count))
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) moderationStatsEmbed(report analytics.ModerationReport) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		field("📊 Overview", fmt.Sprintf("Total actions: **%d**\nWarnings: **%d** (%d active)", report.TotalActions, report.TotalWarnings, report.ActiveWarnings), false),
		field("📈 Actions by Type", countLines(report.ByAction, func(key string) string { return actionLabel(storage.Action(key)) }, 10), true),
		field("⚠️ Warning Severity", countLines(report.BySeverity, func(key string) string { return severityEmoji(storage.Severity(key)) + " " + key }, 0), true),
		field("👮 Most Active Moderators", countLines(report.ByModerator, mention, 5), false),
	}
	return b.infoEmbed("Moderation Statistics", report.Label, fields...)
}

func (b *Bot) ticketStatsEmbed(report analytics.TicketReport) *discordgo.MessageEmbed {
	resolution := "No closed tickets yet"
	if report.ResolutionSamples > 0 {
		resolution = fmt.Sprintf("%s (last %d)", moderation.FormatDuration(report.AverageResolution), report.ResolutionSamples)
	}
	trend := make([]string, 0, len(report.Daily))
	for _, bucket := range report.Daily {
		trend = append(trend, fmt.Sprintf("%s: **%d**", bucket.Day.Format("Mon 02 Jan"), bucket.Count))
	}
	fields := []*discordgo.MessageEmbedField{
		field("📊 Overview", fmt.Sprintf("Total: **%d**\nOpen: **%d**\nClosed: **%d**\nArchived: **%d**\nOpen rate: **%.1f%%**", report.Total, report.Open, report.Closed, report.Archived, report.OpenRate*100), true),
		field("📈 Recent Activity", fmt.Sprintf("Last 24h: **%d**\nLast 7 days: **%d**\nLast 30 days: **%d**", report.Last24h, report.Last7d, report.Last30d), true),
		field("⏱️ Average Resolution", resolution, false),
		field("👥 Most Active Users", countLines(report.TopCreators, mention, 0), false),
		field("📅 7-Day Trend", strings.Join(trend, "\n")+fmt.Sprintf("\nDaily average: **%.1f**", report.DailyAverage), false),
	}
	return b.infoEmbed("Ticket Statistics", "", fields...)
}

func (b *Bot) ticketPanelEmbed(categories []tickets.Category) *discordgo.MessageEmbed {
	lines := make([]string, 0, len(categories))
	for _, cat := range categories {
		lines = append(lines, fmt.Sprintf("%s **%s** - %s", cat.Emoji, cat.Name, cat.Description))
	}
	description := "**Need help or have a question?**\n\n" +
		"Click the button below to create a support ticket. Our staff team will assist you as soon as possible.\n\n" +
		"**Available Categories:**\n" + strings.Join(lines, "\n")
	embed := b.commandEmbed("🎫 Support Tickets", description, b.cfg.Colors.Primary, nil)
	embed.Footer = &discordgo.MessageEmbedFooter{Text: `Click "Create Ticket" to get started`}
	return embed
}

func (b *Bot) ticketOpenedEmbed(ticket storage.Ticket, category tickets.Category, subject, description string) *discordgo.MessageEmbed {
	body := fmt.Sprintf("**Subject:** %s\n**Category:** %s %s\n**Created by:** %s\n\n**Description:**\n%s",
		subject, category.Emoji, category.Name, mention(ticket.UserID), description)
	embed := b.commandEmbed("🎫 "+ticket.TicketID, body, b.cfg.Colors.Primary, nil)
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Ticket created"}
	return embed
}

func (b *Bot) ticketListEmbed(list []storage.Ticket) *discordgo.MessageEmbed {
	if len(list) == 0 {
		return b.infoEmbed("Tickets", "No tickets found.")
	}
	fields := make([]*discordgo.MessageEmbedField, 0, len(list))
	for _, t := range list {
		emoji := "🟢"
		switch t.Status {
		case storage.TicketClosed:
			emoji = "🔒"
		case storage.TicketArchived:
			emoji = "📦"
		}
		value := fmt.Sprintf("**Subject:** %s\n**User:** %s\n**Priority:** %s\n**Created:** %s",
			truncate(t.Subject, 100), mention(t.UserID), t.Priority, timestamp(t.CreatedAt))
		if t.Status == storage.TicketOpen {
			value += "\n**Channel:** <#" + t.ChannelID + ">"
		}
		if t.AssignedTo != "" {
			value += "\n**Assigned:** " + mention(t.AssignedTo)
		}
		fields = append(fields, field(emoji+" "+t.TicketID, value, false))
	}
	return b.infoEmbed("🎫 Tickets", fmt.Sprintf("Showing %d ticket(s)", len(list)), fields...)
}

func ticketControls(status storage.TicketStatus) []discordgo.MessageComponent {
	buttons := []discordgo.MessageComponent{}
	switch status {
	case storage.TicketOpen:
		buttons = append(buttons, discordgo.Button{Label: "🔒 Close Ticket", Style: discordgo.SecondaryButton, CustomID: newCustomID(domainTicket, actionClose)})
	case storage.TicketClosed:
		buttons = append(buttons, discordgo.Button{Label: "🔓 Reopen Ticket", Style: discordgo.SuccessButton, CustomID: newCustomID(domainTicket, actionReopen)})
	}
	buttons = append(buttons, discordgo.Button{Label: "🗑️ Delete Ticket", Style: discordgo.DangerButton, CustomID: newCustomID(domainTicket, actionDelete)})
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}
