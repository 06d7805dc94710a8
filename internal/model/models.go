package model

import "time"

// TrustRecord holds the allowlist for a guild: five scope sets of principal
// IDs (members or roles). Membership in Full grants immunity to every guarded
// action; the other sets grant immunity only to actions in their category.
// One record exists per guild and is rewritten whole on every mutation.
type TrustRecord struct {
	GuildID    string
	Full       []string
	Owner      []string
	Role       []string
	Channel    []string
	BanAndKick []string
}

// RoleOverwrite is a channel permission overlay captured for a role.
type RoleOverwrite struct {
	ChannelID string `json:"channel_id"`
	Allow     int64  `json:"allow"`
	Deny      int64  `json:"deny"`
}

// RoleSnapshot is the persisted state of one guild role at capture time.
// The member list preserves capture order so restore chunks are stable.
type RoleSnapshot struct {
	ID                string
	Name              string
	Color             int
	Position          int
	Permissions       int64
	Hoist             bool
	Mentionable       bool
	Members           []string
	ChannelOverwrites []RoleOverwrite
	CapturedAt        time.Time
}

// ChannelOverwrite is a permission overlay captured on a channel.
// TargetType is "role" or "member".
type ChannelOverwrite struct {
	TargetID   string `json:"target_id"`
	TargetType string `json:"target_type"`
	Allow      int64  `json:"allow"`
	Deny       int64  `json:"deny"`
}

// ChannelSnapshot is the persisted state of one non-thread guild channel at
// capture time.
type ChannelSnapshot struct {
	ID                   string
	Name                 string
	Type                 int
	ParentID             string
	Topic                string
	Position             int
	NSFW                 bool
	UserLimit            int
	PermissionOverwrites []ChannelOverwrite
	CapturedAt           time.Time
}
