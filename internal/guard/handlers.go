package guard

import (
	"context"
	"errors"
	"fmt"
)

// enforce carries out the ENFORCED branch for one event: punish the actor,
// then undo the structural effect where the platform allows it. Deletions
// of roles, channels, emojis, and stickers cannot be undone and are only
// reported; creations are deleted, edits are written back, bans are lifted.
func (e *Engine) enforce(ctx context.Context, ev Event, entry *AuditEntry) {
	switch ev.Category {
	case CategoryBan:
		e.enforceBan(ctx, ev, entry)
		return
	case CategoryBotAdd:
		e.enforceBotAdd(ctx, ev, entry)
		return
	}

	e.punish(ctx, entry.ActorID, PunishKick)

	switch ev.Category {
	case CategoryRoleCreate:
		data, ok := ev.Data.(RoleEventData)
		if !ok || data.New == nil {
			return
		}
		e.revert(ctx, ev.Category, "deleting unauthorized role",
			e.gw.DeleteRole(ctx, data.New.ID, punishReason))

	case CategoryRoleUpdate:
		data, ok := ev.Data.(RoleEventData)
		if !ok || data.Old == nil {
			return
		}
		e.revert(ctx, ev.Category, "restoring role fields",
			e.gw.EditRole(ctx, data.Old.ID, *data.Old))

	case CategoryMemberRoles:
		data, ok := ev.Data.(MemberRolesData)
		if !ok {
			return
		}
		e.revert(ctx, ev.Category, "resetting member roles",
			e.gw.SetMemberRoles(ctx, data.MemberID, data.OldRoleIDs))

	case CategoryChannelCreate:
		data, ok := ev.Data.(ChannelEventData)
		if !ok || data.New == nil {
			return
		}
		e.revert(ctx, ev.Category, "deleting unauthorized channel",
			e.gw.DeleteChannel(ctx, data.New.ID, punishReason))

	case CategoryChannelUpdate:
		data, ok := ev.Data.(ChannelEventData)
		if !ok || data.Old == nil {
			return
		}
		e.revert(ctx, ev.Category, "restoring channel fields",
			e.gw.EditChannel(ctx, data.Old.ID, *data.Old))

	case CategoryEmojiCreate:
		data, ok := ev.Data.(EntityData)
		if !ok {
			return
		}
		e.revert(ctx, ev.Category, "deleting unauthorized emoji",
			e.gw.DeleteEmoji(ctx, data.ID, punishReason))

	case CategoryStickerCreate:
		data, ok := ev.Data.(EntityData)
		if !ok {
			return
		}
		e.revert(ctx, ev.Category, "deleting unauthorized sticker",
			e.gw.DeleteSticker(ctx, data.ID, punishReason))

	case CategoryWidget, CategorySplash, CategoryVerification, CategoryDescription:
		data, ok := ev.Data.(SettingsEventData)
		if !ok || data.Old == nil {
			return
		}
		e.revert(ctx, ev.Category, "restoring guild settings",
			e.gw.EditGuildSettings(ctx, settingsPatch(ev.Category, data.Old)))

	case CategoryRoleDelete, CategoryChannelDelete, CategoryEmojiDelete,
		CategoryStickerDelete, CategoryKick, CategoryWebhookUpdate,
		CategoryIntegrations:
		// Nothing to undo: the platform cannot resurrect these, and kicked
		// members must rejoin on their own.
	}
}

// enforceBan handles the ban category: within a burst window the actor is
// kicked per ban, and once the strict tier escalates, banned instead. In
// both cases only the current event's target is unbanned; earlier targets
// of a burst were each unbanned by their own event.
func (e *Engine) enforceBan(ctx context.Context, ev Event, entry *AuditEntry) {
	kind := PunishKick
	if e.limiter.Strike(entry.ActorID, ActionBan, e.banLimit, e.banWindow) == Escalated {
		kind = PunishBan
	}
	e.punish(ctx, entry.ActorID, kind)

	data, ok := ev.Data.(TargetData)
	if !ok || data.TargetID == "" {
		return
	}
	e.revert(ctx, ev.Category, "lifting unauthorized ban",
		e.gw.Unban(ctx, data.TargetID, punishReason))
}

// enforceBotAdd kicks both the inviter and the bot that was added.
func (e *Engine) enforceBotAdd(ctx context.Context, ev Event, entry *AuditEntry) {
	e.punish(ctx, entry.ActorID, PunishKick)

	data, ok := ev.Data.(TargetData)
	if !ok || data.TargetID == "" {
		return
	}
	e.revert(ctx, ev.Category, "removing unauthorized bot",
		e.gw.Kick(ctx, data.TargetID, punishReason))
}

func (e *Engine) punish(ctx context.Context, actorID string, kind PunishKind) {
	if err := e.punisher.Punish(ctx, actorID, kind); err != nil {
		e.metrics.Punishment(kind.String(), "failed")
		return
	}
	e.metrics.Punishment(kind.String(), "ok")
}

// revert reports the outcome of one reversal step. NotFound means the
// target vanished before we got to it and is not worth an alert;
// permission and other failures are alerted, throttled per category.
func (e *Engine) revert(ctx context.Context, cat Category, step string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, ErrTargetNotFound) {
		e.log.Debug("reversal target gone", "category", string(cat), "step", step)
		return
	}
	level := AlertError
	if errors.Is(err, ErrPermissionDenied) {
		level = AlertWarning
	}
	e.alerts.EmitThrottled(ctx, "revert/"+string(cat), level, "reversal failed",
		fmt.Sprintf("%s: %v", step, err))
}

// settingsPatch builds the single-field write-back for a guild-setting
// category from the pre-change settings.
func settingsPatch(cat Category, old *GuildSettings) GuildSettingsPatch {
	var patch GuildSettingsPatch
	switch cat {
	case CategoryWidget:
		enabled, channel := old.WidgetEnabled, old.WidgetChannelID
		patch.WidgetEnabled = &enabled
		patch.WidgetChannelID = &channel
	case CategorySplash:
		splash := old.DiscoverySplash
		patch.DiscoverySplash = &splash
	case CategoryVerification:
		level := old.VerificationLevel
		patch.VerificationLevel = &level
	case CategoryDescription:
		desc := old.Description
		patch.Description = &desc
	}
	return patch
}
