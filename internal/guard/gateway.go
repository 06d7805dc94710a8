package guard

import "context"

// AuditKind identifies the audit-trail entry kind matching a guarded event.
type AuditKind int

const (
	AuditGuildUpdate AuditKind = iota
	AuditChannelCreate
	AuditChannelUpdate
	AuditChannelDelete
	AuditMemberKick
	AuditMemberBanAdd
	AuditMemberRoleUpdate
	AuditBotAdd
	AuditRoleCreate
	AuditRoleUpdate
	AuditRoleDelete
	AuditWebhookUpdate
	AuditEmojiCreate
	AuditEmojiDelete
	AuditIntegrationUpdate
	AuditStickerCreate
	AuditStickerDelete
)

// AuditEntry is a single attribution result from the platform audit trail.
type AuditEntry struct {
	ActorID  string
	TargetID string
}

// Permission bits mirroring the platform's permission flags. Only the
// flags the engine inspects are named here.
const (
	PermKickMembers     int64 = 1 << 1
	PermBanMembers      int64 = 1 << 2
	PermAdministrator   int64 = 1 << 3
	PermManageChannels  int64 = 1 << 4
	PermManageGuild     int64 = 1 << 5
	PermManageNicknames int64 = 1 << 27
	PermManageRoles     int64 = 1 << 28
	PermManageWebhooks  int64 = 1 << 29
)

// DangerousPermissions is the mask of permissions whose grant to a member
// triggers the member-role-grant guard.
const DangerousPermissions = PermKickMembers | PermBanMembers |
	PermAdministrator | PermManageChannels | PermManageGuild |
	PermManageNicknames | PermManageRoles | PermManageWebhooks

// Role is the live state of a guild role as seen through the gateway.
type Role struct {
	ID          string
	Name        string
	Color       int
	Position    int
	Permissions int64
	Hoist       bool
	Mentionable bool
}

// GuildRole extends Role with the capture-time data the snapshot pipeline
// needs: whether the platform owns the role and which members hold it.
type GuildRole struct {
	Role
	Managed bool
	Members []string
}

// OverwriteTarget distinguishes role and member permission overlays.
type OverwriteTarget int

const (
	OverwriteRole OverwriteTarget = iota
	OverwriteMember
)

// Overwrite is a single channel permission overlay.
type Overwrite struct {
	TargetID   string
	TargetType OverwriteTarget
	Allow      int64
	Deny       int64
}

// Channel is the live state of a guild channel as seen through the gateway.
type Channel struct {
	ID         string
	Name       string
	Type       int
	ParentID   string
	Topic      string
	Position   int
	NSFW       bool
	UserLimit  int
	Overwrites []Overwrite
	IsThread   bool
}

// GuildSettings are the guarded guild-setting fields.
type GuildSettings struct {
	WidgetEnabled     bool
	WidgetChannelID   string
	DiscoverySplash   string
	VerificationLevel int
	Description       string
}

// GuildSettingsPatch is a partial guild-settings write. Nil fields are left
// untouched. Reverts write back only the field that changed.
type GuildSettingsPatch struct {
	WidgetEnabled     *bool
	WidgetChannelID   *string
	DiscoverySplash   *string
	VerificationLevel *int
	Description       *string
}

// Gateway is the boundary to the chat platform for the managed guild. All
// calls are network round trips; every mutation may fail with a permission
// or hierarchy error, which callers must treat as non-fatal. Implementations
// wrap such failures with ErrPermissionDenied / ErrTargetNotFound.
type Gateway interface {
	// GuildID returns the ID of the managed guild.
	GuildID() string

	// AuditEntry fetches the single most recent audit entry of the given
	// kind, or nil if the trail has none.
	AuditEntry(ctx context.Context, kind AuditKind) (*AuditEntry, error)

	// Punishable reports whether the user is currently a member the
	// guardian can kick or ban (exists and sits below the guardian in the
	// role hierarchy).
	Punishable(ctx context.Context, userID string) (bool, error)

	Kick(ctx context.Context, userID, reason string) error
	Ban(ctx context.Context, userID, reason string) error
	Unban(ctx context.Context, userID, reason string) error

	// GuildRoles lists all roles with membership, capture-ready.
	GuildRoles(ctx context.Context) ([]GuildRole, error)
	CreateRole(ctx context.Context, r Role) (string, error)
	EditRole(ctx context.Context, roleID string, r Role) error
	DeleteRole(ctx context.Context, roleID, reason string) error

	// SetMemberRoles replaces a member's role set wholesale.
	SetMemberRoles(ctx context.Context, userID string, roleIDs []string) error

	// GuildChannels lists all channels, including threads (callers filter).
	GuildChannels(ctx context.Context) ([]Channel, error)
	CreateChannel(ctx context.Context, c Channel) (string, error)
	EditChannel(ctx context.Context, channelID string, c Channel) error
	DeleteChannel(ctx context.Context, channelID, reason string) error
	SetChannelOverwrite(ctx context.Context, channelID string, ow Overwrite) error

	EditGuildSettings(ctx context.Context, patch GuildSettingsPatch) error

	DeleteEmoji(ctx context.Context, emojiID, reason string) error
	DeleteSticker(ctx context.Context, stickerID, reason string) error
}

// Agent is one auxiliary authenticated session used to parallelize bulk
// role-membership restoration. Each agent owns its member chunk exclusively.
type Agent interface {
	// Name identifies the agent in logs and summaries.
	Name() string

	// AssignRole fetches the member and grants the role through this
	// agent's own session.
	AssignRole(ctx context.Context, memberID, roleID string) error

	// Close tears down the agent's session.
	Close() error
}

// AgentPool establishes the full set of auxiliary agents for one restore
// run. The pool's lifetime is scoped to a single call: acquire all, work,
// release all.
type AgentPool interface {
	// Acquire establishes every configured agent session. Implementations
	// return ErrNoAgents when none can be established.
	Acquire(ctx context.Context) ([]Agent, error)
}
