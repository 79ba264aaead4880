package welcome

import (
	"context"
	"strings"
	"unicode/utf8"

	"distrack/internal/errs"
	"distrack/internal/modules/audit"
	"distrack/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const maxMessageLen = 1500

var ErrAlreadyDisabled = errs.New(errs.AlreadyInState, "Welcome messages are already disabled.")

type Sender interface {
	SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error
}

type Module struct {
	guilds storage.GuildConfigStore
	sender Sender
	audit  *audit.Logger
	logger *zap.Logger
	color  int
}

func New(guilds storage.GuildConfigStore, sender Sender, auditLogger *audit.Logger, logger *zap.Logger, color int) *Module {
	return &Module{guilds: guilds, sender: sender, audit: auditLogger, logger: logger, color: color}
}

// Render fills the {user} and {guild} placeholders.
func Render(template, userID, guildName string) string {
	if template == "" {
		template = storage.DefaultWelcomeMessage
	}
	return strings.NewReplacer("{user}", "<@"+userID+">", "{guild}", guildName).Replace(template)
}

func (m *Module) HandleJoin(ctx context.Context, event *discordgo.GuildMemberAdd, guildName string) bool {
	if event == nil || event.Member == nil || event.Member.User == nil || event.Member.GuildID == "" {
		return false
	}
	guildID := event.Member.GuildID
	user := event.Member.User
	if user.Bot {
		return false
	}

	cfg, err := m.guilds.GetGuildConfig(ctx, guildID)
	if err != nil {
		m.logger.Warn("welcome config lookup failed", zap.String("guild_id", guildID), zap.Error(err))
		return false
	}
	if !cfg.Welcome.Enabled || cfg.Welcome.ChannelID == "" {
		return false
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Welcome!",
		Description: Render(cfg.Welcome.Message, user.ID, guildName),
		Color:       m.color,
	}
	if avatar := user.AvatarURL("128"); avatar != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: avatar}
	}
	if err := m.sender.SendEmbed(ctx, cfg.Welcome.ChannelID, embed); err != nil {
		m.logger.Warn("welcome message failed",
			zap.String("guild_id", guildID),
			zap.String("channel_id", cfg.Welcome.ChannelID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (m *Module) Set(ctx context.Context, guildID, actorID, channelID, message string) (storage.WelcomeConfig, error) {
	if channelID == "" {
		return storage.WelcomeConfig{}, errs.New(errs.InvalidInput, "A welcome channel is required.")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = storage.DefaultWelcomeMessage
	}
	if utf8.RuneCountInString(message) > maxMessageLen {
		return storage.WelcomeConfig{}, errs.Newf(errs.InvalidInput, "The welcome message must be at most %d characters.", maxMessageLen)
	}

	cfg, err := m.guilds.GetGuildConfig(ctx, guildID)
	if err != nil {
		return storage.WelcomeConfig{}, err
	}
	old := cfg.Welcome.ChannelID
	cfg.Welcome = storage.WelcomeConfig{Enabled: true, ChannelID: channelID, Message: message}
	if err := m.guilds.SaveGuildConfig(ctx, cfg); err != nil {
		return storage.WelcomeConfig{}, err
	}
	m.audit.Record(ctx, storage.AuditLog{
		GuildID:     guildID,
		Action:      storage.ActionConfigUpdate,
		ModeratorID: actorID,
		TargetID:    channelID,
		TargetType:  storage.TargetChannel,
		Details:     map[string]string{"welcome": "enabled"},
		Metadata:    &storage.AuditMetadata{ChannelID: channelID, OldValue: old, NewValue: channelID},
	})
	return cfg.Welcome, nil
}

func (m *Module) Disable(ctx context.Context, guildID, actorID string) error {
	cfg, err := m.guilds.GetGuildConfig(ctx, guildID)
	if err != nil {
		return err
	}
	if !cfg.Welcome.Enabled {
		return ErrAlreadyDisabled
	}
	cfg.Welcome.Enabled = false
	if err := m.guilds.SaveGuildConfig(ctx, cfg); err != nil {
		return err
	}
	m.audit.Record(ctx, storage.AuditLog{
		GuildID:     guildID,
		Action:      storage.ActionConfigUpdate,
		ModeratorID: actorID,
		TargetID:    guildID,
		TargetType:  storage.TargetGuild,
		Details:     map[string]string{"welcome": "disabled"},
	})
	return nil
}
