package autorole

import (
	"context"

	"distrack/internal/errs"
	"distrack/internal/modules/audit"
	"distrack/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

var (
	ErrNotConfigured   = errs.New(errs.InvalidState, "No auto-role has been configured. Use `/autorole set` first.")
	ErrAlreadyEnabled  = errs.New(errs.AlreadyInState, "Auto-role is already enabled.")
	ErrAlreadyDisabled = errs.New(errs.AlreadyInState, "Auto-role is already disabled.")
)

type Roles interface {
	// CheckAssignable fails when the bot cannot grant the role: it sits at or
	// above the bot's highest role, or an integration manages it.
	CheckAssignable(ctx context.Context, guildID, roleID string) error
	AddMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error
}

type Module struct {
	guilds storage.GuildConfigStore
	roles  Roles
	audit  *audit.Logger
	logger *zap.Logger
}

func New(guilds storage.GuildConfigStore, roles Roles, auditLogger *audit.Logger, logger *zap.Logger) *Module {
	return &Module{guilds: guilds, roles: roles, audit: auditLogger, logger: logger}
}

// HandleJoin grants the configured role to a new member and reports the
// role id it assigned.
func (m *Module) HandleJoin(ctx context.Context, event *discordgo.GuildMemberAdd) (string, bool) {
	if event == nil || event.Member == nil || event.Member.User == nil || event.Member.GuildID == "" {
		return "", false
	}
	guildID := event.Member.GuildID
	user := event.Member.User

	cfg, err := m.guilds.GetGuildConfig(ctx, guildID)
	if err != nil {
		m.logger.Warn("autorole config lookup failed", zap.String("guild_id", guildID), zap.Error(err))
		return "", false
	}
	if !cfg.AutoRole.Enabled {
		return "", false
	}

	roleID := cfg.AutoRole.RoleID
	if user.Bot && cfg.AutoRole.BotRoleID != "" {
		roleID = cfg.AutoRole.BotRoleID
	}
	if roleID == "" {
		return "", false
	}

	if err := m.roles.AddMemberRole(ctx, guildID, user.ID, roleID, "Auto-role assignment"); err != nil {
		m.logger.Warn("autorole assignment failed",
			zap.String("guild_id", guildID),
			zap.String("user_id", user.ID),
			zap.String("role_id", roleID),
			zap.Error(err),
		)
		return "", false
	}
	m.audit.Record(ctx, storage.AuditLog{
		GuildID:     guildID,
		Action:      storage.ActionRoleAdd,
		ModeratorID: "system",
		TargetID:    user.ID,
		Reason:      "Auto-role assignment",
		Details:     map[string]string{"role_id": roleID},
	})
	return roleID, true
}

// Set stores the member role (and optional bot role) and enables assignment.
func (m *Module) Set(ctx context.Context, guildID, actorID, roleID, botRoleID string) (storage.AutoRoleConfig, error) {
	if roleID == "" {
		return storage.AutoRoleConfig{}, errs.New(errs.InvalidInput, "A member role is required.")
	}
	if err := m.roles.CheckAssignable(ctx, guildID, roleID); err != nil {
		return storage.AutoRoleConfig{}, err
	}
	if botRoleID != "" {
		if err := m.roles.CheckAssignable(ctx, guildID, botRoleID); err != nil {
			return storage.AutoRoleConfig{}, err
		}
	}

	cfg, err := m.guilds.GetGuildConfig(ctx, guildID)
	if err != nil {
		return storage.AutoRoleConfig{}, err
	}
	old := cfg.AutoRole.RoleID
	cfg.AutoRole = storage.AutoRoleConfig{Enabled: true, RoleID: roleID, BotRoleID: botRoleID}
	if err := m.guilds.SaveGuildConfig(ctx, cfg); err != nil {
		return storage.AutoRoleConfig{}, err
	}

	m.audit.Record(ctx, storage.AuditLog{
		GuildID:     guildID,
		Action:      storage.ActionAutoroleSet,
		ModeratorID: actorID,
		TargetID:    roleID,
		TargetType:  storage.TargetRole,
		Metadata:    &storage.AuditMetadata{OldValue: old, NewValue: roleID},
	})
	return cfg.AutoRole, nil
}

func (m *Module) SetEnabled(ctx context.Context, guildID, actorID string, enabled bool) error {
	cfg, err := m.guilds.GetGuildConfig(ctx, guildID)
	if err != nil {
		return err
	}
	switch {
	case enabled && cfg.AutoRole.RoleID == "":
		return ErrNotConfigured
	case enabled && cfg.AutoRole.Enabled:
		return ErrAlreadyEnabled
	case !enabled && !cfg.AutoRole.Enabled:
		return ErrAlreadyDisabled
	}

	cfg.AutoRole.Enabled = enabled
	if err := m.guilds.SaveGuildConfig(ctx, cfg); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	m.audit.Record(ctx, storage.AuditLog{
		GuildID:     guildID,
		Action:      storage.ActionConfigUpdate,
		ModeratorID: actorID,
		TargetID:    guildID,
		TargetType:  storage.TargetGuild,
		Details:     map[string]string{"autorole": state},
	})
	return nil
}

func (m *Module) Status(ctx context.Context, guildID string) (storage.AutoRoleConfig, error) {
	cfg, err := m.guilds.GetGuildConfig(ctx, guildID)
	if err != nil {
		return storage.AutoRoleConfig{}, err
	}
	return cfg.AutoRole, nil
}
