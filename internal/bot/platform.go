package bot

import (
	"context"
	"errors"
	"net/http"
	"time"

	"distrack/internal/errs"
	"distrack/internal/moderation"
	"distrack/internal/tickets"

	"github.com/bwmarrin/discordgo"
)

// ticketMemberAllow is what the creator and staff get on a ticket channel.
const ticketMemberAllow = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionReadMessageHistory |
	discordgo.PermissionAttachFiles |
	discordgo.PermissionEmbedLinks

const ticketBotAllow = ticketMemberAllow | discordgo.PermissionManageChannels | discordgo.PermissionManageRoles

var (
	errRoleTooHigh = errs.New(errs.ForbiddenTarget, "I cannot assign this role because it is higher than or equal to my highest role.")
	errRoleManaged = errs.New(errs.ForbiddenTarget, "This role is managed by an integration and cannot be assigned automatically.")
	errRoleMissing = errs.New(errs.NotFound, "That role no longer exists.")
)

// platform adapts a discordgo session to the moderation, ticket, autorole
// and welcome ports. Every REST failure leaves through classifyError.
type platform struct {
	session *discordgo.Session
}

var (
	_ moderation.Platform = (*platform)(nil)
	_ tickets.Platform    = (*platform)(nil)
)

func newPlatform(session *discordgo.Session) *platform {
	return &platform{session: session}
}

func (p *platform) SelfID() string {
	if p.session.State == nil || p.session.State.User == nil {
		return ""
	}
	return p.session.State.User.ID
}

func (p *platform) guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if guild, err := p.session.State.Guild(guildID); err == nil && guild != nil {
		return guild, nil
	}
	guild, err := p.session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classifyError(err)
	}
	return guild, nil
}

func (p *platform) member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if member, err := p.session.State.Member(guildID, userID); err == nil && member != nil {
		return member, nil
	}
	member, err := p.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classifyError(err)
	}
	return member, nil
}

func (p *platform) ResolveTarget(ctx context.Context, guildID, userID string) (moderation.Target, error) {
	member, err := p.member(ctx, guildID, userID)
	switch {
	case err == nil:
	case errs.KindOf(err) == errs.NotFound:
		user, err := p.session.User(userID, discordgo.WithContext(ctx))
		if err != nil {
			if errs.KindOf(classifyError(err)) == errs.NotFound {
				return moderation.Target{}, errs.ErrUserNotFound
			}
			return moderation.Target{}, classifyError(err)
		}
		return moderation.Target{User: user}, nil
	default:
		return moderation.Target{}, err
	}

	guild, err := p.guild(ctx, guildID)
	if err != nil {
		return moderation.Target{}, err
	}
	target := moderation.Target{
		User:    member.User,
		InGuild: true,
		Admin:   guild.OwnerID == userID || memberHasAdmin(guild, member),
	}
	if until := member.CommunicationDisabledUntil; until != nil && until.After(time.Now()) {
		target.TimedOutUntil = until
	}
	if self, err := p.member(ctx, guildID, p.SelfID()); err == nil && guild.OwnerID != userID {
		target.Moderatable = highestRolePosition(guild, self) > highestRolePosition(guild, member)
	}
	return target, nil
}

func (p *platform) IsBanned(ctx context.Context, guildID, userID string) (bool, error) {
	_, err := p.session.GuildBan(guildID, userID, discordgo.WithContext(ctx))
	if err == nil {
		return true, nil
	}
	err = classifyError(err)
	if errs.KindOf(err) == errs.NotFound {
		return false, nil
	}
	return false, err
}

func (p *platform) Ban(ctx context.Context, guildID, userID, reason string, deleteDays int) error {
	return classifyError(p.session.GuildBanCreateWithReason(guildID, userID, reason, deleteDays, discordgo.WithContext(ctx)))
}

func (p *platform) Unban(ctx context.Context, guildID, userID, reason string) error {
	return classifyError(p.session.GuildBanDelete(guildID, userID, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason)))
}

func (p *platform) Kick(ctx context.Context, guildID, userID, reason string) error {
	return classifyError(p.session.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx)))
}

func (p *platform) Timeout(ctx context.Context, guildID, userID string, until *time.Time, reason string) error {
	return classifyError(p.session.GuildMemberTimeout(guildID, userID, until, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason)))
}

func (p *platform) ChannelMessages(ctx context.Context, channelID string, limit int) ([]*discordgo.Message, error) {
	messages, err := p.session.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, classifyError(err)
	}
	return messages, nil
}

func (p *platform) DeleteMessages(ctx context.Context, channelID string, messageIDs []string) error {
	return classifyError(p.session.ChannelMessagesBulkDelete(channelID, messageIDs, discordgo.WithContext(ctx)))
}

func (p *platform) DirectMessage(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error {
	channel, err := p.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return classifyError(err)
	}
	_, err = p.session.ChannelMessageSendEmbed(channel.ID, embed, discordgo.WithContext(ctx))
	return classifyError(err)
}

func (p *platform) SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error {
	_, err := p.session.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx))
	return classifyError(err)
}

func (p *platform) sendComplex(ctx context.Context, channelID string, msg *discordgo.MessageSend) error {
	_, err := p.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
	return classifyError(err)
}

func (p *platform) EnsureCategory(ctx context.Context, guildID, currentID, name string) (string, error) {
	if currentID != "" {
		channel, err := p.session.Channel(currentID, discordgo.WithContext(ctx))
		if err == nil && channel.Type == discordgo.ChannelTypeGuildCategory {
			return channel.ID, nil
		}
		if err != nil && errs.KindOf(classifyError(err)) != errs.NotFound {
			return "", classifyError(err)
		}
	}
	channel, err := p.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name: name,
		Type: discordgo.ChannelTypeGuildCategory,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", classifyError(err)
	}
	return channel.ID, nil
}

// CreateTicketChannel opens a text channel hidden from @everyone and visible
// to the creator, the staff role, the bot and every administrator role.
func (p *platform) CreateTicketChannel(ctx context.Context, spec tickets.ChannelSpec) (string, error) {
	overwrites := []*discordgo.PermissionOverwrite{
		{ID: spec.GuildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: spec.CreatorID, Type: discordgo.PermissionOverwriteTypeMember, Allow: ticketMemberAllow},
	}
	if self := p.SelfID(); self != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{ID: self, Type: discordgo.PermissionOverwriteTypeMember, Allow: ticketBotAllow})
	}
	if spec.StaffRoleID != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{ID: spec.StaffRoleID, Type: discordgo.PermissionOverwriteTypeRole, Allow: ticketMemberAllow})
	}
	if guild, err := p.guild(ctx, spec.GuildID); err == nil {
		for _, role := range guild.Roles {
			if role.ID == guild.ID || role.ID == spec.StaffRoleID {
				continue
			}
			if role.Permissions&discordgo.PermissionAdministrator != 0 {
				overwrites = append(overwrites, &discordgo.PermissionOverwrite{ID: role.ID, Type: discordgo.PermissionOverwriteTypeRole, Allow: ticketMemberAllow})
			}
		}
	}

	channel, err := p.session.GuildChannelCreateComplex(spec.GuildID, discordgo.GuildChannelCreateData{
		Name:                 spec.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                spec.Topic,
		ParentID:             spec.ParentID,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", classifyError(err)
	}
	return channel.ID, nil
}

func (p *platform) SetMemberSend(ctx context.Context, channelID, userID string, allow bool) error {
	allowBits := int64(ticketMemberAllow)
	denyBits := int64(0)
	if !allow {
		allowBits = discordgo.PermissionViewChannel | discordgo.PermissionReadMessageHistory
		denyBits = discordgo.PermissionSendMessages
	}
	return classifyError(p.session.ChannelPermissionSet(channelID, userID, discordgo.PermissionOverwriteTypeMember, allowBits, denyBits, discordgo.WithContext(ctx)))
}

func (p *platform) RenameChannel(ctx context.Context, channelID, name string) error {
	_, err := p.session.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx))
	return classifyError(err)
}

func (p *platform) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := p.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return classifyError(err)
}

func (p *platform) CheckAssignable(ctx context.Context, guildID, roleID string) error {
	guild, err := p.guild(ctx, guildID)
	if err != nil {
		return err
	}
	var role *discordgo.Role
	for _, candidate := range guild.Roles {
		if candidate.ID == roleID {
			role = candidate
			break
		}
	}
	if role == nil {
		return errRoleMissing
	}
	if role.Managed {
		return errRoleManaged
	}
	self, err := p.member(ctx, guildID, p.SelfID())
	if err != nil {
		return err
	}
	if role.Position >= highestRolePosition(guild, self) {
		return errRoleTooHigh
	}
	return nil
}

func (p *platform) AddMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	return classifyError(p.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason)))
}

func highestRolePosition(guild *discordgo.Guild, member *discordgo.Member) int {
	if guild == nil || member == nil {
		return 0
	}
	positions := make(map[string]int, len(guild.Roles))
	for _, role := range guild.Roles {
		positions[role.ID] = role.Position
	}
	highest := 0
	for _, roleID := range member.Roles {
		if pos := positions[roleID]; pos > highest {
			highest = pos
		}
	}
	return highest
}

func memberHasAdmin(guild *discordgo.Guild, member *discordgo.Member) bool {
	if guild == nil || member == nil {
		return false
	}
	perms := int64(0)
	for _, role := range guild.Roles {
		if role.ID == guild.ID {
			perms |= role.Permissions
			break
		}
	}
	roleMap := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, role := range guild.Roles {
		roleMap[role.ID] = role
	}
	for _, roleID := range member.Roles {
		if role := roleMap[roleID]; role != nil {
			perms |= role.Permissions
		}
	}
	return perms&discordgo.PermissionAdministrator != 0
}

var (
	errPlatformNotFound  = errs.New(errs.NotFound, "The requested user, channel or message could not be found.")
	errPlatformForbidden = errs.New(errs.PermissionDenied, "I don't have permission to do that. Check my role position and permissions.")
)

// classifyError maps Discord REST failures onto the error taxonomy. Nil
// stays nil and already classified errors pass through.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var classified *errs.Error
	if errors.As(err, &classified) {
		return err
	}

	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return errs.Wrap(errs.External, "", err)
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownMember,
			discordgo.ErrCodeUnknownUser,
			discordgo.ErrCodeUnknownBan,
			discordgo.ErrCodeUnknownChannel,
			discordgo.ErrCodeUnknownMessage:
			return errs.Wrap(errs.NotFound, errPlatformNotFound.Message, err)
		case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
			return errs.Wrap(errs.PermissionDenied, errPlatformForbidden.Message, err)
		}
	}
	if rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusNotFound:
			return errs.Wrap(errs.NotFound, errPlatformNotFound.Message, err)
		case http.StatusForbidden:
			return errs.Wrap(errs.PermissionDenied, errPlatformForbidden.Message, err)
		}
	}
	return errs.Wrap(errs.External, "", err)
}
