// Package discord adapts the Discord REST and gateway APIs to the guard
// package's boundary interfaces. All knowledge of discordgo types stays here.
package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"guard-go/internal/guard"
)

// Gateway implements guard.Gateway on top of a discordgo session.
type Gateway struct {
	session *discordgo.Session
	guildID string
	log     guard.Logger
}

// NewGateway wraps an open session for the given guild.
func NewGateway(session *discordgo.Session, guildID string, log guard.Logger) *Gateway {
	if log == nil {
		log = &guard.NopLogger{}
	}
	return &Gateway{session: session, guildID: guildID, log: log}
}

// GuildID returns the ID of the managed guild.
func (g *Gateway) GuildID() string {
	return g.guildID
}

// auditActions maps guarded audit kinds to Discord audit log action types.
var auditActions = map[guard.AuditKind]discordgo.AuditLogAction{
	guard.AuditGuildUpdate:       discordgo.AuditLogActionGuildUpdate,
	guard.AuditChannelCreate:     discordgo.AuditLogActionChannelCreate,
	guard.AuditChannelUpdate:     discordgo.AuditLogActionChannelUpdate,
	guard.AuditChannelDelete:     discordgo.AuditLogActionChannelDelete,
	guard.AuditMemberKick:        discordgo.AuditLogActionMemberKick,
	guard.AuditMemberBanAdd:      discordgo.AuditLogActionMemberBanAdd,
	guard.AuditMemberRoleUpdate:  discordgo.AuditLogActionMemberRoleUpdate,
	guard.AuditBotAdd:            discordgo.AuditLogActionBotAdd,
	guard.AuditRoleCreate:        discordgo.AuditLogActionRoleCreate,
	guard.AuditRoleUpdate:        discordgo.AuditLogActionRoleUpdate,
	guard.AuditRoleDelete:        discordgo.AuditLogActionRoleDelete,
	guard.AuditWebhookUpdate:     discordgo.AuditLogActionWebhookUpdate,
	guard.AuditEmojiCreate:       discordgo.AuditLogActionEmojiCreate,
	guard.AuditEmojiDelete:       discordgo.AuditLogActionEmojiDelete,
	guard.AuditIntegrationUpdate: discordgo.AuditLogActionIntegrationUpdate,
	guard.AuditStickerCreate:     discordgo.AuditLogActionStickerCreate,
	guard.AuditStickerDelete:     discordgo.AuditLogActionStickerDelete,
}

// AuditEntry fetches the single most recent audit entry of the given kind.
func (g *Gateway) AuditEntry(ctx context.Context, kind guard.AuditKind) (*guard.AuditEntry, error) {
	action, ok := auditActions[kind]
	if !ok {
		return nil, fmt.Errorf("unknown audit kind %d", kind)
	}

	log, err := g.session.GuildAuditLog(g.guildID, "", "", int(action), 1,
		discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapErr(fmt.Errorf("fetching audit log: %w", err))
	}
	if len(log.AuditLogEntries) == 0 {
		return nil, nil
	}

	entry := log.AuditLogEntries[0]
	return &guard.AuditEntry{ActorID: entry.UserID, TargetID: entry.TargetID}, nil
}

// Punishable reports whether the user is a guild member sitting below the
// bot in the role hierarchy. The guild owner is never punishable.
func (g *Gateway) Punishable(ctx context.Context, userID string) (bool, error) {
	member, err := g.session.GuildMember(g.guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		if errors.Is(wrapErr(err), guard.ErrTargetNotFound) {
			return false, nil
		}
		return false, wrapErr(err)
	}

	dg, err := g.session.Guild(g.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false, wrapErr(err)
	}
	if dg.OwnerID == userID {
		return false, nil
	}

	roles, err := g.session.GuildRoles(g.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false, wrapErr(err)
	}
	positions := make(map[string]int, len(roles))
	for _, r := range roles {
		positions[r.ID] = r.Position
	}

	self, err := g.session.GuildMember(g.guildID, g.session.State.User.ID,
		discordgo.WithContext(ctx))
	if err != nil {
		return false, wrapErr(err)
	}

	return highestPosition(member.Roles, positions) < highestPosition(self.Roles, positions), nil
}

func highestPosition(roleIDs []string, positions map[string]int) int {
	highest := -1
	for _, id := range roleIDs {
		if pos, ok := positions[id]; ok && pos > highest {
			highest = pos
		}
	}
	return highest
}

func (g *Gateway) Kick(ctx context.Context, userID, reason string) error {
	err := g.session.GuildMemberDeleteWithReason(g.guildID, userID, reason,
		discordgo.WithContext(ctx))
	if err != nil {
		return wrapErr(fmt.Errorf("kicking member %s: %w", userID, err))
	}
	return nil
}

func (g *Gateway) Ban(ctx context.Context, userID, reason string) error {
	err := g.session.GuildBanCreateWithReason(g.guildID, userID, reason, 0,
		discordgo.WithContext(ctx))
	if err != nil {
		return wrapErr(fmt.Errorf("banning member %s: %w", userID, err))
	}
	return nil
}

func (g *Gateway) Unban(ctx context.Context, userID, reason string) error {
	err := g.session.GuildBanDelete(g.guildID, userID,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil {
		return wrapErr(fmt.Errorf("unbanning member %s: %w", userID, err))
	}
	return nil
}

// memberPageSize is the maximum page size the member list endpoint allows.
const memberPageSize = 1000

// GuildRoles lists all roles with their current membership. Membership is
// assembled by paging through the full member list, so this is an expensive
// call meant for the capture path, not per-event handling.
func (g *Gateway) GuildRoles(ctx context.Context) ([]guard.GuildRole, error) {
	roles, err := g.session.GuildRoles(g.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapErr(fmt.Errorf("listing roles: %w", err))
	}

	membership := make(map[string][]string)
	after := ""
	for {
		members, err := g.session.GuildMembers(g.guildID, after, memberPageSize,
			discordgo.WithContext(ctx))
		if err != nil {
			return nil, wrapErr(fmt.Errorf("listing members: %w", err))
		}
		if len(members) == 0 {
			break
		}
		for _, m := range members {
			for _, roleID := range m.Roles {
				membership[roleID] = append(membership[roleID], m.User.ID)
			}
		}
		after = members[len(members)-1].User.ID
		if len(members) < memberPageSize {
			break
		}
	}

	out := make([]guard.GuildRole, 0, len(roles))
	for _, r := range roles {
		out = append(out, guard.GuildRole{
			Role:    toRole(r),
			Managed: r.Managed,
			Members: membership[r.ID],
		})
	}
	return out, nil
}

func toRole(r *discordgo.Role) guard.Role {
	return guard.Role{
		ID:          r.ID,
		Name:        r.Name,
		Color:       r.Color,
		Position:    r.Position,
		Permissions: r.Permissions,
		Hoist:       r.Hoist,
		Mentionable: r.Mentionable,
	}
}

func roleParams(r guard.Role) *discordgo.RoleParams {
	return &discordgo.RoleParams{
		Name:        r.Name,
		Color:       &r.Color,
		Hoist:       &r.Hoist,
		Permissions: &r.Permissions,
		Mentionable: &r.Mentionable,
	}
}

func (g *Gateway) CreateRole(ctx context.Context, r guard.Role) (string, error) {
	created, err := g.session.GuildRoleCreate(g.guildID, roleParams(r),
		discordgo.WithContext(ctx))
	if err != nil {
		return "", wrapErr(fmt.Errorf("creating role %q: %w", r.Name, err))
	}
	return created.ID, nil
}

func (g *Gateway) EditRole(ctx context.Context, roleID string, r guard.Role) error {
	_, err := g.session.GuildRoleEdit(g.guildID, roleID, roleParams(r),
		discordgo.WithContext(ctx))
	if err != nil {
		return wrapErr(fmt.Errorf("editing role %s: %w", roleID, err))
	}
	return nil
}

func (g *Gateway) DeleteRole(ctx context.Context, roleID, reason string) error {
	err := g.session.GuildRoleDelete(g.guildID, roleID,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil {
		return wrapErr(fmt.Errorf("deleting role %s: %w", roleID, err))
	}
	return nil
}

// SetMemberRoles replaces a member's role set wholesale.
func (g *Gateway) SetMemberRoles(ctx context.Context, userID string, roleIDs []string) error {
	if roleIDs == nil {
		roleIDs = []string{}
	}
	_, err := g.session.GuildMemberEdit(g.guildID, userID,
		&discordgo.GuildMemberParams{Roles: &roleIDs}, discordgo.WithContext(ctx))
	if err != nil {
		return wrapErr(fmt.Errorf("setting roles for member %s: %w", userID, err))
	}
	return nil
}

// GuildChannels lists all channels, including threads.
func (g *Gateway) GuildChannels(ctx context.Context) ([]guard.Channel, error) {
	channels, err := g.session.GuildChannels(g.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapErr(fmt.Errorf("listing channels: %w", err))
	}

	out := make([]guard.Channel, 0, len(channels))
	for _, ch := range channels {
		out = append(out, toChannel(ch))
	}
	return out, nil
}

func toChannel(ch *discordgo.Channel) guard.Channel {
	c := guard.Channel{
		ID:        ch.ID,
		Name:      ch.Name,
		Type:      int(ch.Type),
		ParentID:  ch.ParentID,
		Topic:     ch.Topic,
		Position:  ch.Position,
		NSFW:      ch.NSFW,
		UserLimit: ch.UserLimit,
		IsThread:  ch.IsThread(),
	}
	for _, ow := range ch.PermissionOverwrites {
		c.Overwrites = append(c.Overwrites, guard.Overwrite{
			TargetID:   ow.ID,
			TargetType: toOverwriteTarget(ow.Type),
			Allow:      ow.Allow,
			Deny:       ow.Deny,
		})
	}
	return c
}

func toOverwriteTarget(t discordgo.PermissionOverwriteType) guard.OverwriteTarget {
	if t == discordgo.PermissionOverwriteTypeMember {
		return guard.OverwriteMember
	}
	return guard.OverwriteRole
}

func fromOverwriteTarget(t guard.OverwriteTarget) discordgo.PermissionOverwriteType {
	if t == guard.OverwriteMember {
		return discordgo.PermissionOverwriteTypeMember
	}
	return discordgo.PermissionOverwriteTypeRole
}

func (g *Gateway) CreateChannel(ctx context.Context, c guard.Channel) (string, error) {
	overwrites := make([]*discordgo.PermissionOverwrite, 0, len(c.Overwrites))
	for _, ow := range c.Overwrites {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    ow.TargetID,
			Type:  fromOverwriteTarget(ow.TargetType),
			Allow: ow.Allow,
			Deny:  ow.Deny,
		})
	}

	created, err := g.session.GuildChannelCreateComplex(g.guildID, discordgo.GuildChannelCreateData{
		Name:                 c.Name,
		Type:                 discordgo.ChannelType(c.Type),
		Topic:                c.Topic,
		Position:             c.Position,
		PermissionOverwrites: overwrites,
		ParentID:             c.ParentID,
		NSFW:                 c.NSFW,
		UserLimit:            c.UserLimit,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", wrapErr(fmt.Errorf("creating channel %q: %w", c.Name, err))
	}
	return created.ID, nil
}

func (g *Gateway) EditChannel(ctx context.Context, channelID string, c guard.Channel) error {
	position := c.Position
	edit := &discordgo.ChannelEdit{
		Name:     c.Name,
		Topic:    c.Topic,
		NSFW:     &c.NSFW,
		Position: &position,
		ParentID: c.ParentID,
	}
	if c.UserLimit > 0 {
		edit.UserLimit = c.UserLimit
	}

	_, err := g.session.ChannelEditComplex(channelID, edit, discordgo.WithContext(ctx))
	if err != nil {
		return wrapErr(fmt.Errorf("editing channel %s: %w", channelID, err))
	}
	return nil
}

func (g *Gateway) DeleteChannel(ctx context.Context, channelID, reason string) error {
	_, err := g.session.ChannelDelete(channelID,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil {
		return wrapErr(fmt.Errorf("deleting channel %s: %w", channelID, err))
	}
	return nil
}

func (g *Gateway) SetChannelOverwrite(ctx context.Context, channelID string, ow guard.Overwrite) error {
	err := g.session.ChannelPermissionSet(channelID, ow.TargetID,
		fromOverwriteTarget(ow.TargetType), ow.Allow, ow.Deny,
		discordgo.WithContext(ctx))
	if err != nil {
		return wrapErr(fmt.Errorf("setting overwrite on channel %s: %w", channelID, err))
	}
	return nil
}

// EditGuildSettings writes back only the fields set in the patch. Widget
// fields go through the embed endpoint; the rest through the guild endpoint.
func (g *Gateway) EditGuildSettings(ctx context.Context, patch guard.GuildSettingsPatch) error {
	if patch.WidgetEnabled != nil || patch.WidgetChannelID != nil {
		embed := &discordgo.GuildEmbed{}
		if patch.WidgetEnabled != nil {
			embed.Enabled = patch.WidgetEnabled
		}
		if patch.WidgetChannelID != nil {
			embed.ChannelID = *patch.WidgetChannelID
		}
		if err := g.session.GuildEmbedEdit(g.guildID, embed, discordgo.WithContext(ctx)); err != nil {
			return wrapErr(fmt.Errorf("editing guild widget: %w", err))
		}
	}

	params := discordgo.GuildParams{}
	dirty := false
	if patch.DiscoverySplash != nil {
		params.DiscoverySplash = *patch.DiscoverySplash
		dirty = true
	}
	if patch.Description != nil {
		params.Description = *patch.Description
		dirty = true
	}
	if patch.VerificationLevel != nil {
		level := discordgo.VerificationLevel(*patch.VerificationLevel)
		params.VerificationLevel = &level
		dirty = true
	}
	if dirty {
		if _, err := g.session.GuildEdit(g.guildID, &params, discordgo.WithContext(ctx)); err != nil {
			return wrapErr(fmt.Errorf("editing guild settings: %w", err))
		}
	}
	return nil
}

func (g *Gateway) DeleteEmoji(ctx context.Context, emojiID, reason string) error {
	err := g.session.GuildEmojiDelete(g.guildID, emojiID,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil {
		return wrapErr(fmt.Errorf("deleting emoji %s: %w", emojiID, err))
	}
	return nil
}

// DeleteSticker goes through the raw request path; discordgo has no typed
// endpoint for guild sticker deletion.
func (g *Gateway) DeleteSticker(ctx context.Context, stickerID, reason string) error {
	url := discordgo.EndpointGuild(g.guildID) + "/stickers/" + stickerID
	_, err := g.session.RequestWithBucketID("DELETE", url, nil,
		discordgo.EndpointGuild(g.guildID),
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil {
		return wrapErr(fmt.Errorf("deleting sticker %s: %w", stickerID, err))
	}
	return nil
}

// Discord JSON error codes the engine's revert path distinguishes.
const (
	jsonCodeUnknownChannel    = 10003
	jsonCodeUnknownRole       = 10011
	jsonCodeUnknownUser       = 10013
	jsonCodeUnknownBan        = 10026
	jsonCodeMissingPermission = 50013
)

// wrapErr classifies REST failures into the sentinel errors the guard
// package acts on. Other errors pass through unchanged.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}

	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return err
	}

	if rest.Message != nil {
		switch rest.Message.Code {
		case jsonCodeMissingPermission:
			return fmt.Errorf("%w: %s", guard.ErrPermissionDenied, err)
		case jsonCodeUnknownChannel, jsonCodeUnknownRole, jsonCodeUnknownUser, jsonCodeUnknownBan:
			return fmt.Errorf("%w: %s", guard.ErrTargetNotFound, err)
		}
	}
	if rest.Response != nil {
		switch rest.Response.StatusCode {
		case 403:
			return fmt.Errorf("%w: %s", guard.ErrPermissionDenied, err)
		case 404:
			return fmt.Errorf("%w: %s", guard.ErrTargetNotFound, err)
		}
	}
	return err
}

var _ guard.Gateway = (*Gateway)(nil)
