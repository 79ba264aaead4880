package autorole

import (
	"context"
	"errors"
	"testing"

	"distrack/internal/errs"
	"distrack/internal/modules/audit"
	"distrack/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type grant struct {
	guildID string
	userID  string
	roleID  string
}

type fakeRoles struct {
	grants  []grant
	blocked map[string]bool
	addErr  error
}

func (f *fakeRoles) CheckAssignable(ctx context.Context, guildID, roleID string) error {
	if f.blocked[roleID] {
		return errs.New(errs.ForbiddenTarget, "I cannot assign this role.")
	}
	return nil
}

func (f *fakeRoles) AddMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.grants = append(f.grants, grant{guildID: guildID, userID: userID, roleID: roleID})
	return nil
}

func newModule() (*Module, *fakeRoles, *storage.Memory) {
	store := storage.NewMemory()
	roles := &fakeRoles{blocked: map[string]bool{}}
	logger := zap.NewNop()
	return New(store, roles, audit.NewLogger(store, logger), logger), roles, store
}

func join(guildID, userID string, bot bool) *discordgo.GuildMemberAdd {
	return &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: guildID, User: &discordgo.User{ID: userID, Bot: bot}}}
}

func TestJoinIgnoredWhenDisabled(t *testing.T) {
	module, roles, _ := newModule()
	if _, ok := module.HandleJoin(context.Background(), join("g1", "u1", false)); ok {
		t.Fatalf("expected no assignment without configuration")
	}
	if len(roles.grants) != 0 {
		t.Fatalf("expected no grants, got %d", len(roles.grants))
	}
}

func TestJoinAssignsMemberAndBotRoles(t *testing.T) {
	ctx := context.Background()
	module, roles, store := newModule()
	if _, err := module.Set(ctx, "g1", "admin", "member-role", "bot-role"); err != nil {
		t.Fatalf("set: %v", err)
	}

	if role, ok := module.HandleJoin(ctx, join("g1", "u1", false)); !ok || role != "member-role" {
		t.Fatalf("expected member role, got %q %v", role, ok)
	}
	if role, ok := module.HandleJoin(ctx, join("g1", "b1", true)); !ok || role != "bot-role" {
		t.Fatalf("expected bot role, got %q %v", role, ok)
	}
	if len(roles.grants) != 2 {
		t.Fatalf("expected 2 grants, got %d", len(roles.grants))
	}

	count, _ := store.CountAuditLogs(ctx, storage.AuditQuery{GuildID: "g1", Action: storage.ActionRoleAdd})
	if count != 2 {
		t.Fatalf("expected 2 role_add entries, got %d", count)
	}
}

func TestJoinBotFallsBackToMemberRole(t *testing.T) {
	ctx := context.Background()
	module, _, _ := newModule()
	if _, err := module.Set(ctx, "g1", "admin", "member-role", ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	if role, _ := module.HandleJoin(ctx, join("g1", "b1", true)); role != "member-role" {
		t.Fatalf("expected member role for bot, got %q", role)
	}
}

func TestJoinAssignmentFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	module, roles, _ := newModule()
	if _, err := module.Set(ctx, "g1", "admin", "member-role", ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	roles.addErr = errors.New("missing permissions")
	if _, ok := module.HandleJoin(ctx, join("g1", "u1", false)); ok {
		t.Fatalf("expected failed assignment")
	}
}

func TestSetRejectsUnassignableRole(t *testing.T) {
	ctx := context.Background()
	module, roles, store := newModule()
	roles.blocked["high-role"] = true

	_, err := module.Set(ctx, "g1", "admin", "member-role", "high-role")
	if errs.KindOf(err) != errs.ForbiddenTarget {
		t.Fatalf("expected forbidden target, got %v", err)
	}
	cfg, _ := store.GetGuildConfig(ctx, "g1")
	if cfg.AutoRole.Enabled || cfg.AutoRole.RoleID != "" {
		t.Fatalf("expected configuration untouched, got %+v", cfg.AutoRole)
	}
}

func TestEnableDisableTransitions(t *testing.T) {
	ctx := context.Background()
	module, _, _ := newModule()

	if err := module.SetEnabled(ctx, "g1", "admin", true); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
	if err := module.SetEnabled(ctx, "g1", "admin", false); !errors.Is(err, ErrAlreadyDisabled) {
		t.Fatalf("expected already disabled, got %v", err)
	}
	if _, err := module.Set(ctx, "g1", "admin", "member-role", ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := module.SetEnabled(ctx, "g1", "admin", true); !errors.Is(err, ErrAlreadyEnabled) {
		t.Fatalf("expected already enabled, got %v", err)
	}
	if err := module.SetEnabled(ctx, "g1", "admin", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	status, err := module.Status(ctx, "g1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Enabled || status.RoleID != "member-role" {
		t.Fatalf("expected disabled with role kept, got %+v", status)
	}
}
