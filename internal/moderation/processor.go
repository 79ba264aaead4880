package moderation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"distrack/internal/errs"
	"distrack/internal/modules/audit"
	"distrack/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

var snowflakePattern = regexp.MustCompile(`^\d{17,19}$`)

// Target is what the platform knows about a user relative to a guild.
type Target struct {
	User          *discordgo.User
	InGuild       bool
	Admin         bool
	Moderatable   bool
	TimedOutUntil *time.Time
}

// Platform is the chat-platform surface the processor acts through.
// Implementations classify their failures with errs kinds.
type Platform interface {
	SelfID() string
	ResolveTarget(ctx context.Context, guildID, userID string) (Target, error)
	IsBanned(ctx context.Context, guildID, userID string) (bool, error)
	Ban(ctx context.Context, guildID, userID, reason string, deleteDays int) error
	Unban(ctx context.Context, guildID, userID, reason string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	Timeout(ctx context.Context, guildID, userID string, until *time.Time, reason string) error
	ChannelMessages(ctx context.Context, channelID string, limit int) ([]*discordgo.Message, error)
	DeleteMessages(ctx context.Context, channelID string, messageIDs []string) error
	DirectMessage(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Actor struct {
	ID  string
	Tag string
}

type NoticeColors struct {
	Error   int
	Warning int
	Success int
}

type Processor struct {
	platform Platform
	warnings storage.WarningStore
	counters storage.GuildConfigStore
	audit    *audit.Logger
	logger   *zap.Logger
	clock    Clock
	colors   NoticeColors

	// maxTimeout never exceeds the platform limit of MaxTimeout.
	maxTimeout time.Duration
}

func NewProcessor(platform Platform, warnings storage.WarningStore, counters storage.GuildConfigStore, auditLogger *audit.Logger, logger *zap.Logger, colors NoticeColors) *Processor {
	return &Processor{
		platform: platform,
		warnings: warnings,
		counters: counters,
		audit:    auditLogger,
		logger:   logger,
		clock:    realClock{},
		colors:   colors,

		maxTimeout: MaxTimeout,
	}
}

// WithMaxTimeout lowers the longest accepted timeout. Values outside
// (0, MaxTimeout] are ignored.
func (p *Processor) WithMaxTimeout(d time.Duration) {
	if d > 0 && d <= MaxTimeout {
		p.maxTimeout = d
	}
}

func (p *Processor) WithClock(clock Clock) {
	p.clock = clock
}

type ActionRequest struct {
	GuildID   string
	GuildName string
	Actor     Actor
	TargetID  string
	Reason    string
}

type ActionResult struct {
	Target   *discordgo.User
	Notified bool
}

type BanRequest struct {
	ActionRequest
	DeleteDays int
}

type TimeoutRequest struct {
	ActionRequest
	Duration string
}

type TimeoutResult struct {
	ActionResult
	Duration time.Duration
	Until    time.Time
}

func reasonOrDefault(reason string) string {
	if strings.TrimSpace(reason) == "" {
		return "No reason provided"
	}
	return strings.TrimSpace(reason)
}

// checkIdentity rejects actions on the acting user and on the bot.
func (p *Processor) checkIdentity(actor Actor, targetID string) error {
	if targetID == actor.ID {
		return errs.ErrSelfTarget
	}
	if targetID == p.platform.SelfID() {
		return errs.ErrBotTarget
	}
	return nil
}

// checkMember applies the protected-target rules to a guild member.
func checkMember(target Target) error {
	if target.Admin {
		return errs.ErrProtectedTarget
	}
	if !target.Moderatable {
		return errs.ErrNotModeratable
	}
	return nil
}

func (p *Processor) Kick(ctx context.Context, req ActionRequest) (ActionResult, error) {
	if err := p.checkIdentity(req.Actor, req.TargetID); err != nil {
		return ActionResult{}, err
	}
	target, err := p.platform.ResolveTarget(ctx, req.GuildID, req.TargetID)
	if err != nil {
		return ActionResult{}, err
	}
	if !target.InGuild {
		return ActionResult{}, errs.ErrNotInGuild
	}
	if err := checkMember(target); err != nil {
		return ActionResult{}, err
	}

	reason := reasonOrDefault(req.Reason)
	notified := p.notify(ctx, req.TargetID, p.actionNotice("kicked from", req.GuildName, req.Actor, reason, ""))
	if err := p.platform.Kick(ctx, req.GuildID, req.TargetID, reason); err != nil {
		return ActionResult{}, err
	}

	p.audit.Record(ctx, storage.AuditLog{
		GuildID:     req.GuildID,
		Action:      storage.ActionKick,
		ModeratorID: req.Actor.ID,
		TargetID:    req.TargetID,
		TargetType:  storage.TargetUser,
		Reason:      reason,
		Details:     map[string]string{"target_tag": userTag(target.User), "dm_sent": fmt.Sprint(notified)},
	})
	return ActionResult{Target: target.User, Notified: notified}, nil
}

func (p *Processor) Ban(ctx context.Context, req BanRequest) (ActionResult, error) {
	if req.DeleteDays < 0 || req.DeleteDays > 7 {
		return ActionResult{}, errs.New(errs.InvalidInput, "Delete days must be between 0 and 7.")
	}
	if err := p.checkIdentity(req.Actor, req.TargetID); err != nil {
		return ActionResult{}, err
	}
	banned, err := p.platform.IsBanned(ctx, req.GuildID, req.TargetID)
	if err != nil {
		return ActionResult{}, err
	}
	if banned {
		return ActionResult{}, errs.ErrAlreadyBanned
	}
	target, err := p.platform.ResolveTarget(ctx, req.GuildID, req.TargetID)
	if err != nil {
		return ActionResult{}, err
	}
	if target.InGuild {
		if err := checkMember(target); err != nil {
			return ActionResult{}, err
		}
	}

	reason := reasonOrDefault(req.Reason)
	notified := false
	if target.InGuild {
		notified = p.notify(ctx, req.TargetID, p.actionNotice("banned from", req.GuildName, req.Actor, reason, ""))
	}
	if err := p.platform.Ban(ctx, req.GuildID, req.TargetID, reason, req.DeleteDays); err != nil {
		return ActionResult{}, err
	}

	p.audit.Record(ctx, storage.AuditLog{
		GuildID:     req.GuildID,
		Action:      storage.ActionBan,
		ModeratorID: req.Actor.ID,
		TargetID:    req.TargetID,
		TargetType:  storage.TargetUser,
		Reason:      reason,
		Details: map[string]string{
			"target_tag":  userTag(target.User),
			"delete_days": fmt.Sprint(req.DeleteDays),
			"dm_sent":     fmt.Sprint(notified),
		},
	})
	return ActionResult{Target: target.User, Notified: notified}, nil
}

func (p *Processor) Unban(ctx context.Context, req ActionRequest) (ActionResult, error) {
	userID := strings.TrimSpace(req.TargetID)
	if !snowflakePattern.MatchString(userID) {
		return ActionResult{}, errs.ErrInvalidUserID
	}
	banned, err := p.platform.IsBanned(ctx, req.GuildID, userID)
	if err != nil {
		return ActionResult{}, err
	}
	if !banned {
		return ActionResult{}, errs.ErrNotBanned
	}

	reason := reasonOrDefault(req.Reason)
	if err := p.platform.Unban(ctx, req.GuildID, userID, reason); err != nil {
		if errs.KindOf(err) == errs.NotFound {
			return ActionResult{}, errs.ErrNotBanned
		}
		return ActionResult{}, err
	}

	var user *discordgo.User
	if target, err := p.platform.ResolveTarget(ctx, req.GuildID, userID); err == nil {
		user = target.User
	}
	p.audit.Record(ctx, storage.AuditLog{
		GuildID:     req.GuildID,
		Action:      storage.ActionUnban,
		ModeratorID: req.Actor.ID,
		TargetID:    userID,
		TargetType:  storage.TargetUser,
		Reason:      reason,
	})
	return ActionResult{Target: user}, nil
}

func (p *Processor) Timeout(ctx context.Context, req TimeoutRequest) (TimeoutResult, error) {
	duration, err := ParseDuration(req.Duration)
	if err != nil || !IsValidTimeoutDuration(duration) || duration > p.maxTimeout {
		return TimeoutResult{}, errs.ErrInvalidDuration
	}
	if err := p.checkIdentity(req.Actor, req.TargetID); err != nil {
		return TimeoutResult{}, err
	}
	target, err := p.platform.ResolveTarget(ctx, req.GuildID, req.TargetID)
	if err != nil {
		return TimeoutResult{}, err
	}
	if !target.InGuild {
		return TimeoutResult{}, errs.ErrNotInGuild
	}
	if err := checkMember(target); err != nil {
		return TimeoutResult{}, err
	}

	reason := reasonOrDefault(req.Reason)
	until := p.clock.Now().Add(duration)
	if err := p.platform.Timeout(ctx, req.GuildID, req.TargetID, &until, reason); err != nil {
		return TimeoutResult{}, err
	}

	notified := p.notify(ctx, req.TargetID, p.actionNotice("timed out in", req.GuildName, req.Actor, reason, FormatDuration(duration)))
	p.audit.Record(ctx, storage.AuditLog{
		GuildID:     req.GuildID,
		Action:      storage.ActionTimeout,
		ModeratorID: req.Actor.ID,
		TargetID:    req.TargetID,
		TargetType:  storage.TargetUser,
		Reason:      reason,
		Details:     map[string]string{"target_tag": userTag(target.User), "until": until.UTC().Format(time.RFC3339)},
		Metadata:    &storage.AuditMetadata{Duration: FormatDuration(duration)},
	})
	return TimeoutResult{ActionResult: ActionResult{Target: target.User, Notified: notified}, Duration: duration, Until: until}, nil
}

func (p *Processor) RemoveTimeout(ctx context.Context, req ActionRequest) (ActionResult, error) {
	if err := p.checkIdentity(req.Actor, req.TargetID); err != nil {
		return ActionResult{}, err
	}
	target, err := p.platform.ResolveTarget(ctx, req.GuildID, req.TargetID)
	if err != nil {
		return ActionResult{}, err
	}
	if !target.InGuild {
		return ActionResult{}, errs.ErrNotInGuild
	}
	if target.TimedOutUntil == nil || !target.TimedOutUntil.After(p.clock.Now()) {
		return ActionResult{}, errs.ErrNotTimedOut
	}
	if !target.Moderatable {
		return ActionResult{}, errs.ErrNotModeratable
	}

	reason := reasonOrDefault(req.Reason)
	if err := p.platform.Timeout(ctx, req.GuildID, req.TargetID, nil, reason); err != nil {
		return ActionResult{}, err
	}
	notified := p.notify(ctx, req.TargetID, p.liftNotice(req.GuildName, req.Actor, reason))
	p.audit.Record(ctx, storage.AuditLog{
		GuildID:     req.GuildID,
		Action:      storage.ActionRemoveTimeout,
		ModeratorID: req.Actor.ID,
		TargetID:    req.TargetID,
		TargetType:  storage.TargetUser,
		Reason:      reason,
	})
	return ActionResult{Target: target.User, Notified: notified}, nil
}

// notify sends a DM and never fails the caller.
func (p *Processor) notify(ctx context.Context, userID string, embed *discordgo.MessageEmbed) bool {
	if err := p.platform.DirectMessage(ctx, userID, embed); err != nil {
		p.logger.Warn("direct message failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return true
}

func userTag(user *discordgo.User) string {
	if user == nil {
		return ""
	}
	return user.String()
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

type PurgeRequest struct {
	GuildID   string
	ChannelID string
	Actor     Actor
	Amount    int
	Filter    PurgeFilter
}

type PurgeResult struct {
	Deleted     int
	Matched     int
	Undeletable int
	Fetched     int
}

// Purge deletes up to Amount matching messages from the recent history of
// a channel. Nothing to delete is a zero result, not an error.
func (p *Processor) Purge(ctx context.Context, req PurgeRequest) (PurgeResult, error) {
	if req.Amount < 1 || req.Amount > MaxPurgeAmount {
		return PurgeResult{}, errs.ErrInvalidAmount
	}
	if err := req.Filter.validate(); err != nil {
		return PurgeResult{}, err
	}

	candidates, err := p.platform.ChannelMessages(ctx, req.ChannelID, purgeFetchLimit(req.Amount))
	if err != nil {
		return PurgeResult{}, err
	}
	plan := PlanPurge(candidates, req.Filter, req.Amount, p.clock.Now())
	result := PurgeResult{Matched: plan.Matched, Undeletable: plan.Undeletable, Fetched: len(candidates)}
	if len(plan.Delete) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(plan.Delete))
	for _, msg := range plan.Delete {
		ids = append(ids, msg.ID)
	}
	if err := p.platform.DeleteMessages(ctx, req.ChannelID, ids); err != nil {
		return PurgeResult{}, err
	}
	result.Deleted = len(ids)

	details := req.Filter.Active()
	details["requested"] = fmt.Sprint(req.Amount)
	details["undeletable"] = fmt.Sprint(plan.Undeletable)
	p.audit.Record(ctx, storage.AuditLog{
		GuildID:     req.GuildID,
		Action:      storage.ActionPurge,
		ModeratorID: req.Actor.ID,
		TargetID:    req.ChannelID,
		TargetType:  storage.TargetChannel,
		Reason:      fmt.Sprintf("Purged %d messages", result.Deleted),
		Details:     details,
		Metadata:    &storage.AuditMetadata{ChannelID: req.ChannelID, Count: result.Deleted},
	})
	return result, nil
}
