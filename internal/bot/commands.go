package bot

import (
	"distrack/internal/moderation"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	cmdBan           = "ban"
	cmdUnban         = "unban"
	cmdKick          = "kick"
	cmdTimeout       = "timeout"
	cmdRemoveTimeout = "remove-timeout"
	cmdWarn          = "warn"
	cmdPurge         = "purge"
	cmdLogs          = "logs"
	cmdStats         = "stats"
	cmdTicketPanel   = "ticket-panel"
	cmdTicketClose   = "ticket-close"
	cmdTicketDelete  = "ticket-delete"
	cmdTicketList    = "ticket-list"
	cmdTicketNote    = "ticket-note"
	cmdTicketAssign  = "ticket-assign"
	cmdTicketPrio    = "ticket-priority"
	cmdAutorole      = "autorole"
	cmdWelcome       = "welcome"
)

var adminPermission int64 = discordgo.PermissionAdministrator

func userOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionUser, Name: name, Description: description, Required: required}
}

func stringOption(name, description string, required bool, maxLength int) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: name, Description: description, Required: required, MaxLength: maxLength}
}

func boolOption(name, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionBoolean, Name: name, Description: description}
}

func intOption(name, description string, required bool, lo, hi float64) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionInteger, Name: name, Description: description, Required: required, MinValue: &lo, MaxValue: hi}
}

func textChannelOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         name,
		Description:  description,
		Required:     required,
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
	}
}

func roleOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionRole, Name: name, Description: description, Required: required}
}

func choices(values ...string) []*discordgo.ApplicationCommandOptionChoice {
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(values))
	for _, v := range values {
		out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: v, Value: v})
	}
	return out
}

func subcommand(name, description string, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionSubCommand, Name: name, Description: description, Options: options}
}

func reasonOption() *discordgo.ApplicationCommandOption {
	return stringOption("reason", "Reason for this action", false, 512)
}

func withChoices(option *discordgo.ApplicationCommandOption, values ...string) *discordgo.ApplicationCommandOption {
	option.Choices = choices(values...)
	return option
}

// commandDefinitions lists every slash command. All of them default to
// administrators only and are unavailable in DMs.
func commandDefinitions() []*discordgo.ApplicationCommand {
	dm := false
	commands := []*discordgo.ApplicationCommand{
		{
			Name:        cmdBan,
			Description: "Ban a user from the server",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("user", "User to ban", true),
				reasonOption(),
				intOption("delete_days", "Days of messages to delete (0-7)", false, 0, 7),
			},
		},
		{
			Name:        cmdUnban,
			Description: "Unban a user",
			Options: []*discordgo.ApplicationCommandOption{
				stringOption("user_id", "ID of the user to unban", true, 20),
				reasonOption(),
			},
		},
		{
			Name:        cmdKick,
			Description: "Kick a member from the server",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("user", "Member to kick", true),
				reasonOption(),
			},
		},
		{
			Name:        cmdTimeout,
			Description: "Timeout a member",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("user", "Member to timeout", true),
				stringOption("duration", "Duration such as 10m, 2h or 7d, defaults to the configured timeout", false, 10),
				reasonOption(),
			},
		},
		{
			Name:        cmdRemoveTimeout,
			Description: "Remove a member's timeout",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("user", "Member to release", true),
				reasonOption(),
			},
		},
		{
			Name:        cmdWarn,
			Description: "Manage member warnings",
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("add", "Warn a member",
					userOption("user", "Member to warn", true),
					stringOption("reason", "Reason for the warning", true, 512),
					withChoices(stringOption("severity", "Warning severity", false, 0), "low", "medium", "high", "critical"),
					stringOption("expires", "Expiry such as 7d, 1M or 1y", false, 10),
				),
				subcommand("list", "List warnings of a member",
					userOption("user", "Member to inspect", true),
					boolOption("active_only", "Only show active warnings"),
				),
				subcommand("remove", "Remove a warning",
					stringOption("warning_id", "Warning ID, e.g. warn-0001", true, 32),
					reasonOption(),
				),
				subcommand("clear", "Remove every active warning of a member",
					userOption("user", "Member to clear", true),
					reasonOption(),
				),
				subcommand("info", "Show a warning",
					stringOption("warning_id", "Warning ID, e.g. warn-0001", true, 32),
				),
			},
		},
		{
			Name:        cmdPurge,
			Description: "Bulk delete recent messages in this channel",
			Options: []*discordgo.ApplicationCommandOption{
				intOption("amount", "Number of messages to delete (1-100)", true, 1, moderation.MaxPurgeAmount),
				userOption("user", "Only messages from this user", false),
				stringOption("contains", "Only messages containing this text", false, 200),
				stringOption("domain", "Only messages linking this domain", false, 253),
				boolOption("bots", "Only messages from bots"),
				boolOption("embeds", "Only messages with embeds"),
				boolOption("attachments", "Only messages with attachments"),
				boolOption("pinned", "Only pinned messages"),
				stringOption("older_than", "Only messages older than this, e.g. 1h", false, 10),
				stringOption("newer_than", "Only messages newer than this, e.g. 7d", false, 10),
			},
		},
		{
			Name:        cmdLogs,
			Description: "Browse the moderation audit log",
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("recent", "Show recent audit log entries",
					stringOption("action", "Only entries with this action, e.g. ban", false, 32),
					intOption("limit", "Number of entries (1-50)", false, 1, 50),
				),
				subcommand("user", "Show entries targeting a user",
					userOption("user", "Target user", true),
					intOption("limit", "Number of entries (1-50)", false, 1, 50),
				),
				subcommand("moderator", "Show entries performed by a moderator",
					userOption("user", "Moderator", true),
					intOption("limit", "Number of entries (1-50)", false, 1, 50),
				),
				subcommand("channel", "Set the channel that mirrors audit entries",
					textChannelOption("channel", "Log channel, omit to disable", false),
				),
			},
		},
		{
			Name:        cmdStats,
			Description: "Show server statistics",
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("moderation", "Moderation statistics",
					withChoices(stringOption("period", "Reporting period", false, 0), "24h", "7d", "30d", "all"),
				),
				subcommand("tickets", "Ticket statistics"),
			},
		},
		{
			Name:        cmdTicketPanel,
			Description: "Post the ticket creation panel",
			Options: []*discordgo.ApplicationCommandOption{
				textChannelOption("channel", "Channel for the panel, defaults to this one", false),
				roleOption("staff_role", "Role given access to new tickets", false),
			},
		},
		{
			Name:        cmdTicketClose,
			Description: "Close the ticket in this channel",
			Options:     []*discordgo.ApplicationCommandOption{reasonOption()},
		},
		{
			Name:        cmdTicketDelete,
			Description: "Archive the ticket in this channel and delete the channel",
			Options:     []*discordgo.ApplicationCommandOption{reasonOption()},
		},
		{
			Name:        cmdTicketList,
			Description: "List tickets",
			Options: []*discordgo.ApplicationCommandOption{
				withChoices(stringOption("status", "Ticket status", false, 0), "open", "closed", "archived", "all"),
				userOption("user", "Only tickets opened by this user", false),
			},
		},
		{
			Name:        cmdTicketNote,
			Description: "Add a staff note to this ticket",
			Options: []*discordgo.ApplicationCommandOption{
				stringOption("note", "Note text", true, 1000),
			},
		},
		{
			Name:        cmdTicketAssign,
			Description: "Assign this ticket to a staff member",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("staff", "Staff member", true),
			},
		},
		{
			Name:        cmdTicketPrio,
			Description: "Set the priority of this ticket",
			Options: []*discordgo.ApplicationCommandOption{
				withChoices(stringOption("priority", "Ticket priority", true, 0), "low", "medium", "high", "urgent"),
			},
		},
		{
			Name:        cmdAutorole,
			Description: "Configure the role given to new members",
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("set", "Set the auto roles",
					roleOption("role", "Role for new members", true),
					roleOption("bot_role", "Role for new bots", false),
				),
				subcommand("enable", "Enable auto role"),
				subcommand("disable", "Disable auto role"),
				subcommand("status", "Show the auto role configuration"),
			},
		},
		{
			Name:        cmdWelcome,
			Description: "Configure welcome messages",
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("set", "Set the welcome channel and message",
					textChannelOption("channel", "Welcome channel", true),
					stringOption("message", "Message, supports {user} and {guild}", false, 1500),
				),
				subcommand("disable", "Disable welcome messages"),
			},
		},
	}
	for _, cmd := range commands {
		cmd.DefaultMemberPermissions = &adminPermission
		cmd.DMPermission = &dm
	}
	return commands
}

func (b *Bot) registerCommands() error {
	commands := commandDefinitions()

	appID := b.session.State.User.ID
	existing, err := b.session.ApplicationCommands(appID, "")
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, "", current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		if err := b.session.ApplicationCommandDelete(appID, "", cmd.ID); err != nil {
			b.logger.Warn("stale command delete failed", zap.String("command", cmd.Name), zap.Error(err))
		}
	}

	for _, guild := range b.session.State.Guilds {
		if guild == nil {
			continue
		}
		guildID := guild.ID
		guildCmds, err := b.session.ApplicationCommands(appID, guildID)
		if err != nil {
			continue
		}
		for _, cmd := range guildCmds {
			if _, ok := desired[cmd.Name]; ok {
				continue
			}
			_ = b.session.ApplicationCommandDelete(appID, guildID, cmd.ID)
		}
	}
	return nil
}
