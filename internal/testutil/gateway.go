package testutil

import (
	"context"
	"fmt"
	"sync"

	"guard-go/internal/guard"
)

// FakeGateway is an in-memory guard.Gateway. Audit entries, punishability
// and listings are scripted by the test; every mutation is recorded.
// Errors are injected per operation name via Fail.
type FakeGateway struct {
	mu sync.Mutex

	Guild string

	// Audit maps an audit kind to the entry the next lookup returns.
	// Missing kinds return nil, matching an empty audit trail.
	Audit map[guard.AuditKind]*guard.AuditEntry

	// NotPunishable lists user IDs for which Punishable returns false.
	NotPunishable map[string]bool

	Roles    []guard.GuildRole
	Channels []guard.Channel
	Settings guard.GuildSettings

	// Fail maps an operation name ("Kick", "CreateRole", ...) to the error
	// that operation returns.
	Fail map[string]error

	Kicked   []string
	Banned   []string
	Unbanned []string

	CreatedRoles []guard.Role
	EditedRoles  map[string]guard.Role
	DeletedRoles []string

	MemberRoles map[string][]string

	CreatedChannels []guard.Channel
	EditedChannels  map[string]guard.Channel
	DeletedChannels []string
	OverwriteSets   map[string][]guard.Overwrite

	SettingsPatches []guard.GuildSettingsPatch

	DeletedEmojis   []string
	DeletedStickers []string

	createCounter int
}

var _ guard.Gateway = (*FakeGateway)(nil)

func NewFakeGateway(guildID string) *FakeGateway {
	return &FakeGateway{
		Guild:          guildID,
		Audit:          make(map[guard.AuditKind]*guard.AuditEntry),
		NotPunishable:  make(map[string]bool),
		Fail:           make(map[string]error),
		EditedRoles:    make(map[string]guard.Role),
		MemberRoles:    make(map[string][]string),
		EditedChannels: make(map[string]guard.Channel),
		OverwriteSets:  make(map[string][]guard.Overwrite),
	}
}

func (g *FakeGateway) failure(op string) error {
	return g.Fail[op]
}

func (g *FakeGateway) GuildID() string { return g.Guild }

func (g *FakeGateway) AuditEntry(_ context.Context, kind guard.AuditKind) (*guard.AuditEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("AuditEntry"); err != nil {
		return nil, err
	}
	return g.Audit[kind], nil
}

func (g *FakeGateway) Punishable(_ context.Context, userID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("Punishable"); err != nil {
		return false, err
	}
	return !g.NotPunishable[userID], nil
}

func (g *FakeGateway) Kick(_ context.Context, userID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("Kick"); err != nil {
		return err
	}
	g.Kicked = append(g.Kicked, userID)
	return nil
}

func (g *FakeGateway) Ban(_ context.Context, userID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("Ban"); err != nil {
		return err
	}
	g.Banned = append(g.Banned, userID)
	return nil
}

func (g *FakeGateway) Unban(_ context.Context, userID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("Unban"); err != nil {
		return err
	}
	g.Unbanned = append(g.Unbanned, userID)
	return nil
}

func (g *FakeGateway) GuildRoles(_ context.Context) ([]guard.GuildRole, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("GuildRoles"); err != nil {
		return nil, err
	}
	return append([]guard.GuildRole(nil), g.Roles...), nil
}

func (g *FakeGateway) CreateRole(_ context.Context, r guard.Role) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("CreateRole"); err != nil {
		return "", err
	}
	g.createCounter++
	id := fmt.Sprintf("created-%d", g.createCounter)
	r.ID = id
	g.CreatedRoles = append(g.CreatedRoles, r)
	return id, nil
}

func (g *FakeGateway) EditRole(_ context.Context, roleID string, r guard.Role) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("EditRole"); err != nil {
		return err
	}
	g.EditedRoles[roleID] = r
	return nil
}

func (g *FakeGateway) DeleteRole(_ context.Context, roleID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("DeleteRole"); err != nil {
		return err
	}
	g.DeletedRoles = append(g.DeletedRoles, roleID)
	return nil
}

func (g *FakeGateway) SetMemberRoles(_ context.Context, userID string, roleIDs []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("SetMemberRoles"); err != nil {
		return err
	}
	g.MemberRoles[userID] = append([]string(nil), roleIDs...)
	return nil
}

func (g *FakeGateway) GuildChannels(_ context.Context) ([]guard.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("GuildChannels"); err != nil {
		return nil, err
	}
	return append([]guard.Channel(nil), g.Channels...), nil
}

func (g *FakeGateway) CreateChannel(_ context.Context, c guard.Channel) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("CreateChannel"); err != nil {
		return "", err
	}
	g.createCounter++
	id := fmt.Sprintf("created-%d", g.createCounter)
	c.ID = id
	g.CreatedChannels = append(g.CreatedChannels, c)
	return id, nil
}

func (g *FakeGateway) EditChannel(_ context.Context, channelID string, c guard.Channel) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("EditChannel"); err != nil {
		return err
	}
	g.EditedChannels[channelID] = c
	return nil
}

func (g *FakeGateway) DeleteChannel(_ context.Context, channelID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("DeleteChannel"); err != nil {
		return err
	}
	g.DeletedChannels = append(g.DeletedChannels, channelID)
	return nil
}

func (g *FakeGateway) SetChannelOverwrite(_ context.Context, channelID string, ow guard.Overwrite) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("SetChannelOverwrite"); err != nil {
		return err
	}
	g.OverwriteSets[channelID] = append(g.OverwriteSets[channelID], ow)
	return nil
}

func (g *FakeGateway) EditGuildSettings(_ context.Context, patch guard.GuildSettingsPatch) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("EditGuildSettings"); err != nil {
		return err
	}
	g.SettingsPatches = append(g.SettingsPatches, patch)
	return nil
}

func (g *FakeGateway) DeleteEmoji(_ context.Context, emojiID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("DeleteEmoji"); err != nil {
		return err
	}
	g.DeletedEmojis = append(g.DeletedEmojis, emojiID)
	return nil
}

func (g *FakeGateway) DeleteSticker(_ context.Context, stickerID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("DeleteSticker"); err != nil {
		return err
	}
	g.DeletedStickers = append(g.DeletedStickers, stickerID)
	return nil
}

// MutationCount returns the total number of recorded mutations. Useful for
// asserting that nothing was touched.
func (g *FakeGateway) MutationCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.Kicked) + len(g.Banned) + len(g.Unbanned) +
		len(g.CreatedRoles) + len(g.EditedRoles) + len(g.DeletedRoles) +
		len(g.MemberRoles) +
		len(g.CreatedChannels) + len(g.EditedChannels) + len(g.DeletedChannels) +
		len(g.SettingsPatches) + len(g.DeletedEmojis) + len(g.DeletedStickers)
	for _, ows := range g.OverwriteSets {
		n += len(ows)
	}
	return n
}
