package moderation

import (
	"fmt"
	"time"

	"distrack/internal/storage"

	"github.com/bwmarrin/discordgo"
)

func (p *Processor) actionNotice(verb, guildName string, actor Actor, reason, duration string) *discordgo.MessageEmbed {
	if guildName == "" {
		guildName = "the server"
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Reason", Value: reason},
		{Name: "Moderator", Value: actor.Tag, Inline: true},
	}
	if duration != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Duration", Value: duration, Inline: true})
	}
	return &discordgo.MessageEmbed{
		Title:       "Moderation notice",
		Description: fmt.Sprintf("You have been %s **%s**.", verb, guildName),
		Color:       p.colors.Error,
		Fields:      fields,
		Timestamp:   p.clock.Now().Format(time.RFC3339),
	}
}

func (p *Processor) liftNotice(guildName string, actor Actor, reason string) *discordgo.MessageEmbed {
	if guildName == "" {
		guildName = "the server"
	}
	return &discordgo.MessageEmbed{
		Title:       "Timeout removed",
		Description: fmt.Sprintf("Your timeout in **%s** has been removed.", guildName),
		Color:       p.colors.Success,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Reason", Value: reason},
			{Name: "Moderator", Value: actor.Tag, Inline: true},
		},
		Timestamp: p.clock.Now().Format(time.RFC3339),
	}
}

func (p *Processor) warningNotice(guildName string, actor Actor, warning storage.Warning, active int64) *discordgo.MessageEmbed {
	if guildName == "" {
		guildName = "the server"
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Reason", Value: warning.Reason},
		{Name: "Severity", Value: string(warning.Severity), Inline: true},
		{Name: "Warning ID", Value: warning.WarningID, Inline: true},
		{Name: "Active warnings", Value: fmt.Sprint(active), Inline: true},
		{Name: "Moderator", Value: actor.Tag, Inline: true},
	}
	if warning.ExpiresAt != nil {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Expires", Value: fmt.Sprintf("<t:%d:R>", warning.ExpiresAt.Unix()), Inline: true,
		})
	}
	return &discordgo.MessageEmbed{
		Title:       "Warning received",
		Description: fmt.Sprintf("You have received a warning in **%s**.", guildName),
		Color:       p.colors.Warning,
		Fields:      fields,
		Timestamp:   p.clock.Now().Format(time.RFC3339),
	}
}
