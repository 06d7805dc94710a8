package guard

// Category is a guarded class of structural or administrative change.
type Category string

const (
	CategoryRoleDelete    Category = "role_delete"
	CategoryRoleCreate    Category = "role_create"
	CategoryRoleUpdate    Category = "role_update"
	CategoryMemberRoles   Category = "member_roles"
	CategoryChannelDelete Category = "channel_delete"
	CategoryChannelCreate Category = "channel_create"
	CategoryChannelUpdate Category = "channel_update"
	CategoryBan           Category = "ban"
	CategoryKick          Category = "kick"
	CategoryBotAdd        Category = "bot_add"
	CategoryWebhookUpdate Category = "webhook_update"
	CategoryEmojiCreate   Category = "emoji_create"
	CategoryEmojiDelete   Category = "emoji_delete"
	CategoryStickerCreate Category = "sticker_create"
	CategoryStickerDelete Category = "sticker_delete"
	CategoryIntegrations  Category = "integrations"
	CategoryWidget        Category = "widget"
	CategorySplash        Category = "discovery_splash"
	CategoryVerification  Category = "verification_level"
	CategoryDescription   Category = "description"
)

// Event is one observed guild change, delivered by the gateway adapter.
// Data carries a category-specific payload type.
type Event struct {
	Category Category
	Data     any
}

// RoleEventData accompanies role lifecycle events. New is nil for deletes,
// Old is nil for creates.
type RoleEventData struct {
	Old *Role
	New *Role
}

// MemberRolesData accompanies member-role grant events. Added holds the
// roles present on the member after the change but not before.
type MemberRolesData struct {
	MemberID   string
	OldRoleIDs []string
	Added      []Role
}

// ChannelEventData accompanies channel lifecycle events.
type ChannelEventData struct {
	Old *Channel
	New *Channel
}

// TargetData accompanies ban, kick, and bot-add events: the banned member,
// the removed member, or the added bot.
type TargetData struct {
	TargetID string
}

// EntityData accompanies emoji and sticker lifecycle events.
type EntityData struct {
	ID   string
	Name string
}

// SettingsEventData accompanies guild-setting events. Both point at full
// settings snapshots; the category names the field that changed.
type SettingsEventData struct {
	Old *GuildSettings
	New *GuildSettings
}
