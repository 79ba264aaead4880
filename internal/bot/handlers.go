package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"distrack/internal/analytics"
	"distrack/internal/errs"
	"distrack/internal/moderation"
	"distrack/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultLogLimit     = 15
	warningDisplayLimit = 25
	ticketDisplayLimit  = 10
)

var errGuildOnly = errs.New(errs.InvalidInput, "This command can only be used inside a server.")

type commandHandler func(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error

func (b *Bot) commandHandlers() map[string]commandHandler {
	return map[string]commandHandler{
		cmdBan:           b.handleBan,
		cmdUnban:         b.handleUnban,
		cmdKick:          b.handleKick,
		cmdTimeout:       b.handleTimeout,
		cmdRemoveTimeout: b.handleRemoveTimeout,
		cmdWarn:          b.handleWarn,
		cmdPurge:         b.handlePurge,
		cmdLogs:          b.handleLogs,
		cmdStats:         b.handleStats,
		cmdTicketPanel:   b.handleTicketPanel,
		cmdTicketClose:   b.handleTicketClose,
		cmdTicketDelete:  b.handleTicketDelete,
		cmdTicketList:    b.handleTicketList,
		cmdTicketNote:    b.handleTicketNote,
		cmdTicketAssign:  b.handleTicketAssign,
		cmdTicketPrio:    b.handleTicketPriority,
		cmdAutorole:      b.handleAutorole,
		cmdWelcome:       b.handleWelcome,
	}
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	requestID := uuid.NewString()
	logger := b.logger.With(
		zap.String("request_id", requestID),
		zap.String("guild_id", interaction.GuildID),
		zap.String("channel_id", interaction.ChannelID),
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("interaction handler panic", zap.Any("panic", r))
			b.replyError(session, interaction, requestID, errs.Wrap(errs.External, "", fmt.Errorf("panic: %v", r)))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if interaction.GuildID == "" {
		b.replyError(session, interaction, requestID, errGuildOnly)
		return
	}

	var err error
	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		err = b.handleCommand(ctx, session, interaction)
	case discordgo.InteractionMessageComponent:
		err = b.handleComponent(ctx, session, interaction)
	case discordgo.InteractionModalSubmit:
		err = b.handleModal(ctx, session, interaction)
	default:
		return
	}
	if err != nil {
		if errs.KindOf(err) == errs.External {
			logger.Error("interaction failed", zap.Error(err))
		} else {
			logger.Debug("interaction rejected", zap.String("kind", errs.KindOf(err).String()), zap.Error(err))
		}
		b.replyError(session, interaction, requestID, err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	data := interaction.ApplicationCommandData()
	handler, ok := b.commandHandlers()[data.Name]
	if !ok {
		return errs.ErrUnknownComponent
	}
	if !b.isAuthorized(interaction) {
		return errs.ErrPermissionDenied
	}
	b.logger.Info("command",
		zap.String("command", data.Name),
		zap.String("guild_id", interaction.GuildID),
		zap.String("user_id", interactionUser(interaction).ID),
	)
	return handler(ctx, session, interaction, newOptions(data.Options))
}

// replyError answers with the user-safe message. Unexpected failures carry
// the request id so they can be found in the logs.
func (b *Bot) replyError(session *discordgo.Session, interaction *discordgo.InteractionCreate, requestID string, err error) {
	embed := b.errorEmbed(errs.UserMessage(err))
	if errs.KindOf(err) == errs.External {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Reference: " + requestID}
	}
	b.respondEmbed(session, interaction, embed, true)
}

func interactionUser(interaction *discordgo.InteractionCreate) *discordgo.User {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User
	}
	if interaction.User != nil {
		return interaction.User
	}
	return &discordgo.User{}
}

func (b *Bot) isAuthorized(interaction *discordgo.InteractionCreate) bool {
	user := interactionUser(interaction)
	if user.ID == "" {
		return false
	}
	if b.cfg.OwnerID != "" && user.ID == b.cfg.OwnerID {
		return true
	}
	member := interaction.Member
	if member == nil {
		member = b.memberForUser(interaction.GuildID, user.ID)
	}
	if member == nil {
		return false
	}
	if member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	guild, err := b.session.State.Guild(interaction.GuildID)
	if err != nil {
		return false
	}
	return guild.OwnerID == user.ID || memberHasAdmin(guild, member)
}

func actorOf(interaction *discordgo.InteractionCreate) moderation.Actor {
	user := interactionUser(interaction)
	return moderation.Actor{ID: user.ID, Tag: user.String()}
}

// options indexes command options by name. A subcommand's own options
// replace the top level through sub.
type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func newOptions(list []*discordgo.ApplicationCommandInteractionDataOption) options {
	out := make(options, len(list))
	for _, opt := range list {
		out[opt.Name] = opt
	}
	return out
}

// sub returns the chosen subcommand and its options.
func (o options) sub() (string, options) {
	for name, opt := range o {
		if opt.Type == discordgo.ApplicationCommandOptionSubCommand {
			return name, newOptions(opt.Options)
		}
	}
	return "", o
}

func (o options) string(name string) string {
	opt, ok := o[name]
	if !ok {
		return ""
	}
	value, _ := opt.Value.(string)
	return strings.TrimSpace(value)
}

// id reads user, role and channel options, which carry snowflakes.
func (o options) id(name string) string {
	return o.string(name)
}

func (o options) int(name string, fallback int) int {
	opt, ok := o[name]
	if !ok {
		return fallback
	}
	switch value := opt.Value.(type) {
	case float64:
		return int(value)
	case int64:
		return int(value)
	case int:
		return value
	}
	return fallback
}

func (o options) bool(name string) bool {
	opt, ok := o[name]
	if !ok {
		return false
	}
	value, _ := opt.Value.(bool)
	return value
}

func (b *Bot) actionRequest(interaction *discordgo.InteractionCreate, targetID, reason string) moderation.ActionRequest {
	return moderation.ActionRequest{
		GuildID:   interaction.GuildID,
		GuildName: b.guildName(interaction.GuildID),
		Actor:     actorOf(interaction),
		TargetID:  targetID,
		Reason:    reason,
	}
}

func (b *Bot) actionEmbed(title string, result moderation.ActionResult, interaction *discordgo.InteractionCreate, targetID, reason string, extra ...*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	if reason == "" {
		reason = "No reason provided"
	}
	fields := []*discordgo.MessageEmbedField{
		field("User", formatUser(result.Target, targetID), true),
		field("Moderator", mention(interactionUser(interaction).ID), true),
	}
	fields = append(fields, extra...)
	fields = append(fields, field("Reason", reason, false))
	notified := "No"
	if result.Notified {
		notified = "Yes"
	}
	fields = append(fields, field("User notified", notified, true))
	return b.successEmbed(title, "", fields...)
}

func (b *Bot) handleBan(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error {
	targetID, reason := opts.id("user"), opts.string("reason")
	result, err := b.moderation.Ban(ctx, moderation.BanRequest{
		ActionRequest: b.actionRequest(interaction, targetID, reason),
		DeleteDays:    opts.int("delete_days", 0),
	})
	if err != nil {
		return err
	}
	b.respondEmbed(session, interaction, b.actionEmbed("User Banned", result, interaction, targetID, reason), false)
	return nil
}

func (b *Bot) handleUnban(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error {
	targetID, reason := opts.string("user_id"), opts.string("reason")
	result, err := b.moderation.Unban(ctx, b.actionRequest(interaction, targetID, reason))
	if err != nil {
		return err
	}
	b.respondEmbed(session, interaction, b.actionEmbed("User Unbanned", result, interaction, targetID, reason), false)
	return nil
}

func (b *Bot) handleKick(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error {
	targetID, reason := opts.id("user"), opts.string("reason")
	result, err := b.moderation.Kick(ctx, b.actionRequest(interaction, targetID, reason))
	if err != nil {
		return err
	}
	b.respondEmbed(session, interaction, b.actionEmbed("User Kicked", result, interaction, targetID, reason), false)
	return nil
}

func (b *Bot) handleTimeout(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error {
	targetID, reason := opts.id("user"), opts.string("reason")
	result, err := b.moderation.Timeout(ctx, moderation.TimeoutRequest{
		ActionRequest: b.actionRequest(interaction, targetID, reason),
		Duration:      b.timeoutDuration(opts.string("duration")),
	})
	if err != nil {
		return err
	}
	embed := b.actionEmbed("User Timed Out", result.ActionResult, interaction, targetID, reason,
		field("Duration", moderation.FormatDuration(result.Duration), true),
		field("Until", timestamp(result.Until), true),
	)
	b.respondEmbed(session, interaction, embed, false)
	return nil
}

// timeoutDuration falls back to the configured default when no duration
// was given.
func (b *Bot) timeoutDuration(value string) string {
	if value != "" {
		return value
	}
	return fmt.Sprintf("%dm", int(b.cfg.DefaultTimeout()/time.Minute))
}

func (b *Bot) handleRemoveTimeout(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error {
	targetID, reason := opts.id("user"), opts.string("reason")
	result, err := b.moderation.RemoveTimeout(ctx, b.actionRequest(interaction, targetID, reason))
	if err != nil {
		return err
	}
	b.respondEmbed(session, interaction, b.actionEmbed("Timeout Removed", result, interaction, targetID, reason), false)
	return nil
}

func (b *Bot) handleWarn(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error {
	name, sub := opts.sub()
	guildID := interaction.GuildID
	switch name {
	case "add":
		targetID := sub.id("user")
		result, err := b.moderation.WarnAdd(ctx, moderation.WarnAddRequest{
			GuildID:   guildID,
			GuildName: b.guildName(guildID),
			Actor:     actorOf(interaction),
			TargetID:  targetID,
			Reason:    sub.string("reason"),
			Severity:  sub.string("severity"),
			Expires:   sub.string("expires"),
		})
		if err != nil {
			return err
		}
		w := result.Warning
		fields := []*discordgo.MessageEmbedField{
			field("User", mention(targetID), true),
			field("Severity", severityEmoji(w.Severity)+" "+string(w.Severity), true),
			field("Active warnings", fmt.Sprint(result.ActiveCount), true),
			field("Reason", w.Reason, false),
		}
		if w.ExpiresAt != nil {
			fields = append(fields, field("Expires", timestamp(*w.ExpiresAt), true))
		}
		b.respondEmbed(session, interaction, b.commandEmbed("⚠️ Warning "+w.WarningID, "", b.cfg.Colors.Warning, fields), false)
	case "list":
		targetID := sub.id("user")
		list, err := b.moderation.ListWarnings(ctx, guildID, targetID, sub.bool("active_only"), warningDisplayLimit)
		if err != nil {
			return err
		}
		b.respondEmbed(session, interaction, b.warningListEmbed(targetID, list), true)
	case "remove":
		w, err := b.moderation.WarnRemove(ctx, moderation.WarnRemoveRequest{
			GuildID:   guildID,
			Actor:     actorOf(interaction),
			WarningID: sub.string("warning_id"),
			Reason:    sub.string("reason"),
		})
		if err != nil {
			return err
		}
		b.respondEmbed(session, interaction, b.successEmbed("Warning Removed", fmt.Sprintf("Warning **%s** for %s has been removed.", w.WarningID, mention(w.UserID))), false)
	case "clear":
		targetID := sub.id("user")
		result, err := b.moderation.WarnClear(ctx, moderation.WarnClearRequest{
			GuildID:  guildID,
			Actor:    actorOf(interaction),
			TargetID: targetID,
			Reason:   sub.string("reason"),
		})
		if err != nil {
			return err
		}
		if result.Cleared == 0 {
			b.respondEmbed(session, interaction, b.infoEmbed("Warnings", fmt.Sprintf("%s has no active warnings.", mention(targetID))), true)
			return nil
		}
		b.respondEmbed(session, interaction, b.successEmbed("Warnings Cleared", fmt.Sprintf("Removed **%d** active warnings from %s.", result.Cleared, mention(targetID))), false)
	case "info":
		w, err := b.moderation.WarningInfo(ctx, guildID, sub.string("warning_id"))
		if err != nil {
			return err
		}
		b.respondEmbed(session, interaction, b.warningInfoEmbed(w), true)
	default:
		return errs.ErrUnknownComponent
	}
	return nil
}

func purgeWindow(opts options, name string) (time.Duration, error) {
	raw := opts.string(name)
	if raw == "" {
		return 0, nil
	}
	d, err := moderation.ParseDuration(raw)
	if err != nil {
		return 0, errs.Newf(errs.InvalidInput, "Invalid %s value. Use a number followed by s, m, h or d.", strings.ReplaceAll(name, "_", "-"))
	}
	return d, nil
}

func (b *Bot) handlePurge(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error {
	olderThan, err := purgeWindow(opts, "older_than")
	if err != nil {
		return err
	}
	newerThan, err := purgeWindow(opts, "newer_than")
	if err != nil {
		return err
	}
	result, err := b.moderation.Purge(ctx, moderation.PurgeRequest{
		GuildID:   interaction.GuildID,
		ChannelID: interaction.ChannelID,
		Actor:     actorOf(interaction),
		Amount:    opts.int("amount", 0),
		Filter: moderation.PurgeFilter{
			AuthorID:        opts.id("user"),
			Contains:        opts.string("contains"),
			Domain:          opts.string("domain"),
			BotsOnly:        opts.bool("bots"),
			EmbedsOnly:      opts.bool("embeds"),
			AttachmentsOnly: opts.bool("attachments"),
			PinnedOnly:      opts.bool("pinned"),
			OlderThan:       olderThan,
			NewerThan:       newerThan,
		},
	})
	if err != nil {
		return err
	}
	description := purgeSummary(result)
	if result.Deleted == 0 {
		b.respondEmbed(session, interaction, b.infoEmbed("Purge", description), true)
		return nil
	}
	b.respondEmbed(session, interaction, b.successEmbed("Messages Purged", description), false)
	// The confirmation stays visible briefly, then removes itself.
	if notice := b.cfg.PurgeNotice(); notice > 0 {
		time.AfterFunc(notice, func() {
			if err := session.InteractionResponseDelete(interaction.Interaction); err != nil {
				b.logger.Debug("purge notice delete failed", zap.Error(err))
			}
		})
	}
	return nil
}

func (b *Bot) handleLogs(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error {
	name, sub := opts.sub()
	guildID := interaction.GuildID
	limit := sub.int("limit", defaultLogLimit)
	var (
		entries []storage.AuditLog
		title   string
		err     error
	)
	switch name {
	case "recent":
		title = "📋 Recent Audit Log"
		entries, err = b.analytics.RecentLogs(ctx, storage.AuditQuery{
			GuildID: guildID,
			Action:  storage.Action(strings.ToLower(sub.string("action"))),
			Limit:   limit,
		})
	case "user":
		userID := sub.id("user")
		title = "📋 Audit Log for User"
		entries, err = b.analytics.UserLogs(ctx, guildID, userID, limit)
	case "moderator":
		title = "📋 Audit Log for Moderator"
		entries, err = b.analytics.RecentLogs(ctx, storage.AuditQuery{GuildID: guildID, ModeratorID: sub.id("user"), Limit: limit})
	case "channel":
		return b.setLogChannel(ctx, session, interaction, sub.id("channel"))
	default:
		return errs.ErrUnknownComponent
	}
	if err != nil {
		return errs.Wrap(errs.External, "load audit logs", err)
	}
	b.respondEmbed(session, interaction, b.logsEmbed(title, entries), true)
	return nil
}

func (b *Bot) setLogChannel(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, channelID string) error {
	guildCfg, err := b.store.GetGuildConfig(ctx, interaction.GuildID)
	if err != nil {
		return errs.Wrap(errs.External, "load guild config", err)
	}
	previous := guildCfg.Moderation.LogChannelID
	guildCfg.Moderation.LogChannelID = channelID
	if err := b.store.SaveGuildConfig(ctx, guildCfg); err != nil {
		return errs.Wrap(errs.External, "save guild config", err)
	}
	b.audit.Record(ctx, storage.AuditLog{
		GuildID:     interaction.GuildID,
		Action:      storage.ActionConfigUpdate,
		ModeratorID: interactionUser(interaction).ID,
		TargetID:    interaction.GuildID,
		TargetType:  storage.TargetGuild,
		Details:     map[string]string{"field": "log_channel"},
		Metadata:    &storage.AuditMetadata{ChannelID: channelID, OldValue: previous, NewValue: channelID},
	})
	if channelID == "" {
		b.respondEmbed(session, interaction, b.successEmbed("Mod Log Disabled", "Audit entries will no longer be mirrored to a channel."), true)
		return nil
	}
	b.respondEmbed(session, interaction, b.successEmbed("Mod Log Channel Set", fmt.Sprintf("Audit entries will be mirrored to <#%s>.", channelID)), true)
	return nil
}

func (b *Bot) handleStats(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error {
	name, sub := opts.sub()
	switch name {
	case "moderation":
		period := analytics.ParsePeriod(sub.string("period"))
		report, err := b.analytics.Moderation(ctx, interaction.GuildID, period.Since(time.Now()))
		if err != nil {
			return errs.Wrap(errs.External, "moderation stats", err)
		}
		report.Label = period.Label()
		b.respondEmbed(session, interaction, b.moderationStatsEmbed(report), true)
	case "tickets":
		report, err := b.analytics.Tickets(ctx, interaction.GuildID)
		if err != nil {
			return errs.Wrap(errs.External, "ticket stats", err)
		}
		b.respondEmbed(session, interaction, b.ticketStatsEmbed(report), true)
	default:
		return errs.ErrUnknownComponent
	}
	return nil
}

func (b *Bot) handleAutorole(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error {
	name, sub := opts.sub()
	guildID, actorID := interaction.GuildID, interactionUser(interaction).ID
	switch name {
	case "set":
		cfg, err := b.autorole.Set(ctx, guildID, actorID, sub.id("role"), sub.id("bot_role"))
		if err != nil {
			return err
		}
		b.respondEmbed(session, interaction, b.successEmbed("Auto-Role Configured", "New members will receive their role automatically.", autoroleFields(cfg)...), true)
	case "enable":
		if err := b.autorole.SetEnabled(ctx, guildID, actorID, true); err != nil {
			return err
		}
		b.respondEmbed(session, interaction, b.successEmbed("Auto-Role Enabled", ""), true)
	case "disable":
		if err := b.autorole.SetEnabled(ctx, guildID, actorID, false); err != nil {
			return err
		}
		b.respondEmbed(session, interaction, b.successEmbed("Auto-Role Disabled", ""), true)
	case "status":
		cfg, err := b.autorole.Status(ctx, guildID)
		if err != nil {
			return err
		}
		b.respondEmbed(session, interaction, b.infoEmbed("🎭 Auto-Role", "", autoroleFields(cfg)...), true)
	default:
		return errs.ErrUnknownComponent
	}
	return nil
}

func autoroleFields(cfg storage.AutoRoleConfig) []*discordgo.MessageEmbedField {
	role, botRole := "Not set", "Same as members"
	if cfg.RoleID != "" {
		role = "<@&" + cfg.RoleID + ">"
	}
	if cfg.BotRoleID != "" {
		botRole = "<@&" + cfg.BotRoleID + ">"
	}
	state := "Disabled"
	if cfg.Enabled {
		state = "Enabled"
	}
	return []*discordgo.MessageEmbedField{
		field("Status", state, true),
		field("Member role", role, true),
		field("Bot role", botRole, true),
	}
}

func (b *Bot) handleWelcome(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) error {
	name, sub := opts.sub()
	guildID, actorID := interaction.GuildID, interactionUser(interaction).ID
	switch name {
	case "set":
		cfg, err := b.welcome.Set(ctx, guildID, actorID, sub.id("channel"), sub.string("message"))
		if err != nil {
			return err
		}
		preview := strings.ReplaceAll(cfg.Message, "{guild}", b.guildName(guildID))
		b.respondEmbed(session, interaction, b.successEmbed("Welcome Messages Enabled", "",
			field("Channel", "<#"+cfg.ChannelID+">", true),
			field("Message", preview, false),
		), true)
	case "disable":
		if err := b.welcome.Disable(ctx, guildID, actorID); err != nil {
			return err
		}
		b.respondEmbed(session, interaction, b.successEmbed("Welcome Messages Disabled", ""), true)
	default:
		return errs.ErrUnknownComponent
	}
	return nil
}

func purgeSummary(result moderation.PurgeResult) string {
	if result.Deleted == 0 && result.Undeletable == 0 {
		return "No messages matched the given filters."
	}
	var description string
	if result.Deleted == 0 {
		description = "No messages could be deleted."
	} else {
		description = fmt.Sprintf("Deleted **%d** messages.", result.Deleted)
	}
	if result.Undeletable > 0 {
		description += fmt.Sprintf("\n%d matching messages were older than 14 days and could not be bulk deleted.", result.Undeletable)
	}
	return description
}
