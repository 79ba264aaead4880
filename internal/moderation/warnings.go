package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"distrack/internal/errs"
	"distrack/internal/storage"

	"go.uber.org/zap"
)

type WarnAddRequest struct {
	GuildID   string
	GuildName string
	Actor     Actor
	TargetID  string
	Reason    string
	Severity  string
	Expires   string
}

type WarnAddResult struct {
	Warning     storage.Warning
	ActiveCount int64
	Notified    bool
}

type WarnRemoveRequest struct {
	GuildID   string
	Actor     Actor
	WarningID string
	Reason    string
}

type WarnClearRequest struct {
	GuildID  string
	Actor    Actor
	TargetID string
	Reason   string
}

type WarnClearResult struct {
	Cleared int64
}

type WarnList struct {
	Warnings []storage.Warning
	Active   int64
	Total    int64
}

const DefaultWarnListLimit = 10

func (p *Processor) WarnAdd(ctx context.Context, req WarnAddRequest) (WarnAddResult, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" || len(reason) > maxReasonLen {
		return WarnAddResult{}, errs.Newf(errs.InvalidInput, "Reason must be between 1 and %d characters.", maxReasonLen)
	}
	severity, err := storage.ParseSeverity(req.Severity)
	if err != nil {
		return WarnAddResult{}, err
	}
	now := p.clock.Now()
	var expiresAt *time.Time
	if strings.TrimSpace(req.Expires) != "" {
		d, err := ParseExtendedDuration(req.Expires)
		if err != nil || d <= 0 {
			return WarnAddResult{}, errs.ErrInvalidExpiry
		}
		at := now.Add(d)
		expiresAt = &at
	}

	if err := p.checkIdentity(req.Actor, req.TargetID); err != nil {
		return WarnAddResult{}, err
	}
	target, err := p.platform.ResolveTarget(ctx, req.GuildID, req.TargetID)
	if err != nil {
		return WarnAddResult{}, err
	}
	if target.User != nil && target.User.Bot {
		return WarnAddResult{}, errs.ErrBotTarget
	}
	if target.InGuild && target.Admin {
		return WarnAddResult{}, errs.ErrProtectedTarget
	}

	seq, err := p.counters.NextSequence(ctx, req.GuildID, storage.CounterWarnings)
	if err != nil {
		return WarnAddResult{}, errs.Wrap(errs.External, "allocate warning id", err)
	}
	warning := storage.Warning{
		WarningID:   storage.FormatWarningID(seq),
		GuildID:     req.GuildID,
		UserID:      req.TargetID,
		ModeratorID: req.Actor.ID,
		Reason:      reason,
		Severity:    severity,
		Active:      true,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.warnings.CreateWarning(ctx, &warning); err != nil {
		return WarnAddResult{}, errs.Wrap(errs.External, "store warning", err)
	}

	meta := &storage.AuditMetadata{}
	if expiresAt != nil {
		meta.Duration = strings.TrimSpace(req.Expires)
	}
	p.audit.Record(ctx, storage.AuditLog{
		GuildID:     req.GuildID,
		Action:      storage.ActionWarnAdd,
		ModeratorID: req.Actor.ID,
		TargetID:    req.TargetID,
		TargetType:  storage.TargetUser,
		Reason:      reason,
		Details:     map[string]string{"warning_id": warning.WarningID, "severity": string(severity)},
		Metadata:    meta,
	})

	active := true
	count, err := p.warnings.CountWarnings(ctx, storage.WarningQuery{GuildID: req.GuildID, UserID: req.TargetID, Active: &active})
	if err != nil {
		p.logger.Warn("count active warnings failed", zap.String("guild_id", req.GuildID), zap.Error(err))
	}
	notified := p.notify(ctx, req.TargetID, p.warningNotice(req.GuildName, req.Actor, warning, count))
	return WarnAddResult{Warning: warning, ActiveCount: count, Notified: notified}, nil
}

func (p *Processor) WarnRemove(ctx context.Context, req WarnRemoveRequest) (storage.Warning, error) {
	warning, err := p.findWarning(ctx, req.GuildID, req.WarningID)
	if err != nil {
		return storage.Warning{}, err
	}
	reason := reasonOrDefault(req.Reason)
	if err := warning.Remove(req.Actor.ID, reason, p.clock.Now()); err != nil {
		return storage.Warning{}, err
	}
	if err := p.warnings.UpdateWarning(ctx, warning); err != nil {
		return storage.Warning{}, errs.Wrap(errs.External, "update warning", err)
	}
	p.audit.Record(ctx, storage.AuditLog{
		GuildID:     req.GuildID,
		Action:      storage.ActionWarnRemove,
		ModeratorID: req.Actor.ID,
		TargetID:    warning.UserID,
		TargetType:  storage.TargetUser,
		Reason:      reason,
		Details:     map[string]string{"warning_id": warning.WarningID},
	})
	return warning, nil
}

// WarnClear deactivates every active warning of the target. Clearing a
// user with none is a no-op and writes no audit entry.
func (p *Processor) WarnClear(ctx context.Context, req WarnClearRequest) (WarnClearResult, error) {
	reason := reasonOrDefault(req.Reason)
	cleared, err := p.warnings.DeactivateWarnings(ctx, req.GuildID, req.TargetID, req.Actor.ID, reason, p.clock.Now())
	if err != nil {
		return WarnClearResult{}, errs.Wrap(errs.External, "clear warnings", err)
	}
	if cleared == 0 {
		return WarnClearResult{}, nil
	}
	p.audit.Record(ctx, storage.AuditLog{
		GuildID:     req.GuildID,
		Action:      storage.ActionWarnClear,
		ModeratorID: req.Actor.ID,
		TargetID:    req.TargetID,
		TargetType:  storage.TargetUser,
		Reason:      reason,
		Metadata:    &storage.AuditMetadata{Count: int(cleared)},
	})
	return WarnClearResult{Cleared: cleared}, nil
}

func (p *Processor) ListWarnings(ctx context.Context, guildID, userID string, activeOnly bool, limit int) (WarnList, error) {
	if limit <= 0 {
		limit = DefaultWarnListLimit
	}
	q := storage.WarningQuery{GuildID: guildID, UserID: userID, Limit: limit}
	if activeOnly {
		active := true
		q.Active = &active
	}
	warnings, err := p.warnings.FindWarnings(ctx, q)
	if err != nil {
		return WarnList{}, errs.Wrap(errs.External, "list warnings", err)
	}
	total, err := p.warnings.CountWarnings(ctx, storage.WarningQuery{GuildID: guildID, UserID: userID})
	if err != nil {
		return WarnList{}, errs.Wrap(errs.External, "count warnings", err)
	}
	active := true
	activeCount, err := p.warnings.CountWarnings(ctx, storage.WarningQuery{GuildID: guildID, UserID: userID, Active: &active})
	if err != nil {
		return WarnList{}, errs.Wrap(errs.External, "count warnings", err)
	}
	return WarnList{Warnings: warnings, Active: activeCount, Total: total}, nil
}

func (p *Processor) WarningInfo(ctx context.Context, guildID, warningID string) (storage.Warning, error) {
	return p.findWarning(ctx, guildID, warningID)
}

func (p *Processor) findWarning(ctx context.Context, guildID, warningID string) (storage.Warning, error) {
	id := strings.ToLower(strings.TrimSpace(warningID))
	if id == "" {
		return storage.Warning{}, errs.ErrWarningNotFound
	}
	warning, err := p.warnings.FindWarning(ctx, storage.WarningQuery{GuildID: guildID, WarningID: id})
	if isNotFound(err) {
		return storage.Warning{}, errs.ErrWarningNotFound
	}
	if err != nil {
		return storage.Warning{}, errs.Wrap(errs.External, fmt.Sprintf("find warning %s", id), err)
	}
	return warning, nil
}
