package bot

import (
	"context"
	"sync"
	"time"

	"distrack/internal/analytics"
	"distrack/internal/config"
	"distrack/internal/moderation"
	"distrack/internal/modules/audit"
	"distrack/internal/modules/autorole"
	"distrack/internal/modules/welcome"
	"distrack/internal/storage"
	"distrack/internal/tickets"
	"distrack/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	retentionInterval = 24 * time.Hour
	sweepInterval     = time.Minute
	handlerTimeout    = 15 * time.Second
)

type Bot struct {
	cfg        config.Config
	logger     *zap.Logger
	store      storage.Store
	audit      *audit.Logger
	analytics  *analytics.Service
	session    *discordgo.Session
	platform   *platform
	moderation *moderation.Processor
	tickets    *tickets.Manager
	autorole   *autorole.Module
	welcome    *welcome.Module
	submits    *utils.Debouncer
	stop       chan struct{}
	stopOnce   sync.Once
}

func New(cfg config.Config, logger *zap.Logger, store storage.Store, auditLogger *audit.Logger, analyticsEngine *analytics.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans |
		discordgo.IntentsMessageContent

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		audit:     auditLogger,
		analytics: analyticsEngine,
		session:   session,
		platform:  newPlatform(session),
		submits:   utils.NewDebouncer(cfg.SubmitCooldown()),
		stop:      make(chan struct{}),
	}

	b.moderation = moderation.NewProcessor(b.platform, store, store, auditLogger, logger, moderation.NoticeColors{
		Error:   cfg.Colors.Error,
		Warning: cfg.Colors.Warning,
		Success: cfg.Colors.Success,
	})
	b.moderation.WithMaxTimeout(time.Duration(cfg.Moderation.MaxTimeoutDays) * 24 * time.Hour)
	b.tickets = tickets.NewManager(tickets.Config{
		MaxOpenPerUser: cfg.Tickets.MaxOpenPerUser,
		DeleteDelay:    cfg.TicketDeleteDelay(),
		CategoryName:   cfg.Tickets.CategoryName,
		NoticeColor:    cfg.Colors.Warning,
	}, tickets.NewCatalogue(ticketCategories(cfg.Tickets.Categories)), store, store, b.platform, auditLogger, logger)
	b.autorole = autorole.New(store, b.platform, auditLogger, logger)
	b.welcome = welcome.New(store, b.platform, auditLogger, logger, cfg.Colors.Primary)

	if b.audit != nil {
		b.audit.SetNotifier(b.notifyAudit)
	}

	return b, nil
}

func ticketCategories(cfg []config.TicketCategory) []tickets.Category {
	out := make([]tickets.Category, 0, len(cfg))
	for _, cat := range cfg {
		out = append(out, tickets.Category{Name: cat.Name, Emoji: cat.Emoji, Description: cat.Description})
	}
	return out
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(); err != nil {
		return err
	}

	b.startRetention()
	b.startSweeper()

	return nil
}

func (b *Bot) Close(ctx context.Context) {
	_ = ctx
	b.stopOnce.Do(func() { close(b.stop) })
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", session.State.User.Username), zap.Int("guilds", len(event.Guilds)))
}

// onMessageCreate records human messages in ticket transcripts; the manager
// ignores channels that are not tickets.
func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	attachments := make([]string, 0, len(msg.Attachments))
	for _, attachment := range msg.Attachments {
		attachments = append(attachments, attachment.URL)
	}
	entry := storage.TranscriptMessage{
		UserID:      msg.Author.ID,
		Username:    msg.Author.String(),
		Content:     msg.Content,
		Timestamp:   msg.Timestamp,
		Attachments: attachments,
	}
	if err := b.tickets.AppendMessage(ctx, msg.GuildID, msg.ChannelID, entry); err != nil {
		b.logger.Debug("transcript append failed", zap.String("channel_id", msg.ChannelID), zap.Error(err))
	}
}

func (b *Bot) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.GuildID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	b.autorole.HandleJoin(ctx, event)
	b.welcome.HandleJoin(ctx, event, b.guildName(event.GuildID))
}

func (b *Bot) guildName(guildID string) string {
	if guild, err := b.session.State.Guild(guildID); err == nil && guild != nil {
		return guild.Name
	}
	return "the server"
}

// notifyAudit mirrors an audit entry into the guild's mod-log channel when
// one is configured.
func (b *Bot) notifyAudit(ctx context.Context, entry storage.AuditLog) {
	cfg, err := b.store.GetGuildConfig(ctx, entry.GuildID)
	if err != nil {
		b.logger.Debug("mod log config lookup failed", zap.String("guild_id", entry.GuildID), zap.Error(err))
		return
	}
	channelID := cfg.Moderation.LogChannelID
	if channelID == "" {
		return
	}
	if err := b.platform.SendEmbed(ctx, channelID, b.auditEmbed(entry)); err != nil {
		b.logger.Warn("mod log delivery failed",
			zap.String("guild_id", entry.GuildID),
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
	}
}

func (b *Bot) startRetention() {
	retention := b.cfg.Retention()
	if retention == 0 {
		return
	}
	go func() {
		b.pruneAudit(retention)
		ticker := time.NewTicker(retentionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-b.stop:
				return
			case <-ticker.C:
				b.pruneAudit(retention)
			}
		}
	}()
}

func (b *Bot) pruneAudit(retention time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	cutoff := time.Now().Add(-retention)
	deleted, err := b.store.DeleteAuditLogsBefore(ctx, cutoff)
	if err != nil {
		b.logger.Warn("audit retention failed", zap.Error(err))
		return
	}
	b.logger.Info("audit retention", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
}

func (b *Bot) startSweeper() {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-b.stop:
				return
			case now := <-ticker.C:
				b.submits.Sweep(now)
			}
		}
	}()
}

func (b *Bot) memberForUser(guildID, userID string) *discordgo.Member {
	member, err := b.session.State.Member(guildID, userID)
	if err == nil && member != nil {
		return member
	}
	member, _ = b.session.GuildMember(guildID, userID)
	return member
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if embed == nil {
		b.respond(session, interaction, "No response available.", ephemeral)
		return
	}
	b.respondComplex(session, interaction, &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}}, ephemeral)
}

func (b *Bot) respondComplex(session *discordgo.Session, interaction *discordgo.InteractionCreate, data *discordgo.InteractionResponseData, ephemeral bool) {
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}); err != nil {
		b.logger.Warn("interaction response failed", zap.String("interaction_id", interaction.ID), zap.Error(err))
	}
}
