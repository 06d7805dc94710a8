package guard

import (
	"sort"
	"time"

	"guard-go/internal/model"
)

// buildRoleSnapshots converts live guild roles into snapshot records,
// position order, excluding managed roles and the guild's implicit
// @everyone role (whose ID equals the guild ID). Channel overlays for each
// role are collected from the non-thread channels.
func buildRoleSnapshots(guildID string, roles []GuildRole, channels []Channel, now time.Time) []model.RoleSnapshot {
	sorted := make([]GuildRole, len(roles))
	copy(sorted, roles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	snaps := make([]model.RoleSnapshot, 0, len(sorted))
	for _, role := range sorted {
		if role.Managed || role.ID == guildID {
			continue
		}

		var overwrites []model.RoleOverwrite
		for _, ch := range channels {
			if ch.IsThread {
				continue
			}
			for _, ow := range ch.Overwrites {
				if ow.TargetType == OverwriteRole && ow.TargetID == role.ID {
					overwrites = append(overwrites, model.RoleOverwrite{
						ChannelID: ch.ID,
						Allow:     ow.Allow,
						Deny:      ow.Deny,
					})
				}
			}
		}

		snaps = append(snaps, model.RoleSnapshot{
			ID:                role.ID,
			Name:              role.Name,
			Color:             role.Color,
			Position:          role.Position,
			Permissions:       role.Permissions,
			Hoist:             role.Hoist,
			Mentionable:       role.Mentionable,
			Members:           role.Members,
			ChannelOverwrites: overwrites,
			CapturedAt:        now,
		})
	}
	return snaps
}

// buildChannelSnapshots converts live channels into snapshot records,
// excluding threads. Capture order is preserved so restore recreates
// channels in the same order.
func buildChannelSnapshots(channels []Channel, now time.Time) []model.ChannelSnapshot {
	snaps := make([]model.ChannelSnapshot, 0, len(channels))
	for _, ch := range channels {
		if ch.IsThread {
			continue
		}

		overwrites := make([]model.ChannelOverwrite, 0, len(ch.Overwrites))
		for _, ow := range ch.Overwrites {
			targetType := "member"
			if ow.TargetType == OverwriteRole {
				targetType = "role"
			}
			overwrites = append(overwrites, model.ChannelOverwrite{
				TargetID:   ow.TargetID,
				TargetType: targetType,
				Allow:      ow.Allow,
				Deny:       ow.Deny,
			})
		}

		snaps = append(snaps, model.ChannelSnapshot{
			ID:                   ch.ID,
			Name:                 ch.Name,
			Type:                 ch.Type,
			ParentID:             ch.ParentID,
			Topic:                ch.Topic,
			Position:             ch.Position,
			NSFW:                 ch.NSFW,
			UserLimit:            ch.UserLimit,
			PermissionOverwrites: overwrites,
			CapturedAt:           now,
		})
	}
	return snaps
}
