package discord

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/bwmarrin/discordgo"

	"guard-go/internal/guard"
)

// Intents covers every gateway event the dispatcher consumes.
const Intents = discordgo.IntentGuilds |
	discordgo.IntentGuildMembers |
	discordgo.IntentGuildBans |
	discordgo.IntentGuildEmojis |
	discordgo.IntentGuildWebhooks |
	discordgo.IntentGuildIntegrations

// Submitter accepts guarded events for handling. Satisfied by guard.Engine.
type Submitter interface {
	Submit(ev guard.Event)
}

// Dispatcher translates raw gateway events into guarded events. It keeps its
// own pre-event caches for roles, emojis, stickers, and guild settings:
// discordgo updates its state cache before user handlers run, so the state
// cannot supply the "before" side of a change.
type Dispatcher struct {
	guildID string
	engine  Submitter
	log     guard.Logger

	mu       sync.Mutex
	roles    map[string]guard.Role
	emojis   map[string]string // id -> name
	stickers map[string]string // id -> name
	settings *guard.GuildSettings
}

// NewDispatcher creates a dispatcher for the given guild.
func NewDispatcher(guildID string, engine Submitter, log guard.Logger) *Dispatcher {
	if log == nil {
		log = &guard.NopLogger{}
	}
	return &Dispatcher{
		guildID:  guildID,
		engine:   engine,
		log:      log,
		roles:    make(map[string]guard.Role),
		emojis:   make(map[string]string),
		stickers: make(map[string]string),
	}
}

// Register attaches all event handlers to the session. Call before opening
// the session.
func (d *Dispatcher) Register(s *discordgo.Session) {
	s.AddHandler(d.onGuildRoleCreate)
	s.AddHandler(d.onGuildRoleUpdate)
	s.AddHandler(d.onGuildRoleDelete)
	s.AddHandler(d.onChannelCreate)
	s.AddHandler(d.onChannelUpdate)
	s.AddHandler(d.onChannelDelete)
	s.AddHandler(d.onGuildBanAdd)
	s.AddHandler(d.onGuildMemberAdd)
	s.AddHandler(d.onGuildMemberRemove)
	s.AddHandler(d.onGuildMemberUpdate)
	s.AddHandler(d.onGuildUpdate)
	s.AddHandler(d.onWebhooksUpdate)
	s.AddHandler(d.onGuildEmojisUpdate)
	s.AddHandler(d.onGuildIntegrationsUpdate)
	s.AddHandler(d.onRawEvent)
}

// Prime seeds the caches from the live guild. Call once after the session
// opens; change detection is unreliable until it completes.
func (d *Dispatcher) Prime(ctx context.Context, s *discordgo.Session) error {
	roles, err := s.GuildRoles(d.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return wrapErr(err)
	}

	g, err := s.Guild(d.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return wrapErr(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range roles {
		d.roles[r.ID] = toRole(r)
	}
	for _, e := range g.Emojis {
		d.emojis[e.ID] = e.Name
	}
	for _, st := range g.Stickers {
		d.stickers[st.ID] = st.Name
	}
	d.settings = settingsFromGuild(g)

	d.log.Info("event caches primed",
		"roles", len(d.roles), "emojis", len(d.emojis), "stickers", len(d.stickers))
	return nil
}

func settingsFromGuild(g *discordgo.Guild) *guard.GuildSettings {
	return &guard.GuildSettings{
		WidgetEnabled:     g.WidgetEnabled,
		WidgetChannelID:   g.WidgetChannelID,
		DiscoverySplash:   g.DiscoverySplash,
		VerificationLevel: int(g.VerificationLevel),
		Description:       g.Description,
	}
}

func (d *Dispatcher) submit(cat guard.Category, data any) {
	d.engine.Submit(guard.Event{Category: cat, Data: data})
}

// Role lifecycle

func (d *Dispatcher) onGuildRoleCreate(_ *discordgo.Session, e *discordgo.GuildRoleCreate) {
	if e.GuildID != d.guildID {
		return
	}

	role := toRole(e.Role)
	d.mu.Lock()
	d.roles[role.ID] = role
	d.mu.Unlock()

	d.submit(guard.CategoryRoleCreate, guard.RoleEventData{New: &role})
}

func (d *Dispatcher) onGuildRoleUpdate(_ *discordgo.Session, e *discordgo.GuildRoleUpdate) {
	if e.GuildID != d.guildID {
		return
	}

	role := toRole(e.Role)
	d.mu.Lock()
	old, known := d.roles[role.ID]
	d.roles[role.ID] = role
	d.mu.Unlock()

	if !known {
		d.log.Debug("role update for uncached role, skipping", "role", role.ID)
		return
	}
	if old == role {
		return // position shuffles produce no-op updates
	}
	d.submit(guard.CategoryRoleUpdate, guard.RoleEventData{Old: &old, New: &role})
}

func (d *Dispatcher) onGuildRoleDelete(_ *discordgo.Session, e *discordgo.GuildRoleDelete) {
	if e.GuildID != d.guildID {
		return
	}

	d.mu.Lock()
	old, known := d.roles[e.RoleID]
	delete(d.roles, e.RoleID)
	d.mu.Unlock()

	data := guard.RoleEventData{}
	if known {
		data.Old = &old
	} else {
		data.Old = &guard.Role{ID: e.RoleID}
	}
	d.submit(guard.CategoryRoleDelete, data)
}

// Channel lifecycle

func (d *Dispatcher) onChannelCreate(_ *discordgo.Session, e *discordgo.ChannelCreate) {
	if e.GuildID != d.guildID || e.IsThread() {
		return
	}
	ch := toChannel(e.Channel)
	d.submit(guard.CategoryChannelCreate, guard.ChannelEventData{New: &ch})
}

func (d *Dispatcher) onChannelUpdate(_ *discordgo.Session, e *discordgo.ChannelUpdate) {
	if e.GuildID != d.guildID || e.IsThread() {
		return
	}

	ch := toChannel(e.Channel)
	data := guard.ChannelEventData{New: &ch}
	if e.BeforeUpdate != nil {
		old := toChannel(e.BeforeUpdate)
		data.Old = &old
	}
	d.submit(guard.CategoryChannelUpdate, data)
}

func (d *Dispatcher) onChannelDelete(_ *discordgo.Session, e *discordgo.ChannelDelete) {
	if e.GuildID != d.guildID || e.IsThread() {
		return
	}
	ch := toChannel(e.Channel)
	d.submit(guard.CategoryChannelDelete, guard.ChannelEventData{Old: &ch})
}

// Members

func (d *Dispatcher) onGuildBanAdd(_ *discordgo.Session, e *discordgo.GuildBanAdd) {
	if e.GuildID != d.guildID {
		return
	}
	d.submit(guard.CategoryBan, guard.TargetData{TargetID: e.User.ID})
}

func (d *Dispatcher) onGuildMemberAdd(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
	if e.GuildID != d.guildID || !e.User.Bot {
		return
	}
	d.submit(guard.CategoryBotAdd, guard.TargetData{TargetID: e.User.ID})
}

func (d *Dispatcher) onGuildMemberRemove(_ *discordgo.Session, e *discordgo.GuildMemberRemove) {
	if e.GuildID != d.guildID {
		return
	}
	d.submit(guard.CategoryKick, guard.TargetData{TargetID: e.User.ID})
}

// onGuildMemberUpdate guards dangerous role grants. Only grants whose role
// carries at least one dangerous permission bit produce an event.
func (d *Dispatcher) onGuildMemberUpdate(_ *discordgo.Session, e *discordgo.GuildMemberUpdate) {
	if e.GuildID != d.guildID || e.BeforeUpdate == nil {
		return
	}

	oldIDs := e.BeforeUpdate.Roles
	oldSet := make(map[string]bool, len(oldIDs))
	for _, id := range oldIDs {
		oldSet[id] = true
	}

	d.mu.Lock()
	var added []guard.Role
	for _, id := range e.Roles {
		if oldSet[id] {
			continue
		}
		role, known := d.roles[id]
		if known && role.Permissions&guard.DangerousPermissions != 0 {
			added = append(added, role)
		}
	}
	d.mu.Unlock()

	if len(added) == 0 {
		return
	}
	d.submit(guard.CategoryMemberRoles, guard.MemberRolesData{
		MemberID:   e.User.ID,
		OldRoleIDs: oldIDs,
		Added:      added,
	})
}

// Guild settings

func (d *Dispatcher) onGuildUpdate(_ *discordgo.Session, e *discordgo.GuildUpdate) {
	if e.ID != d.guildID {
		return
	}

	next := settingsFromGuild(e.Guild)

	d.mu.Lock()
	prev := d.settings
	d.settings = next
	d.mu.Unlock()

	if prev == nil {
		return
	}

	data := guard.SettingsEventData{Old: prev, New: next}
	if prev.WidgetEnabled != next.WidgetEnabled || prev.WidgetChannelID != next.WidgetChannelID {
		d.submit(guard.CategoryWidget, data)
	}
	if prev.DiscoverySplash != next.DiscoverySplash {
		d.submit(guard.CategorySplash, data)
	}
	if prev.VerificationLevel != next.VerificationLevel {
		d.submit(guard.CategoryVerification, data)
	}
	if prev.Description != next.Description {
		d.submit(guard.CategoryDescription, data)
	}
}

// Surfaces without structural revert

func (d *Dispatcher) onWebhooksUpdate(_ *discordgo.Session, e *discordgo.WebhooksUpdate) {
	if e.GuildID != d.guildID {
		return
	}
	d.submit(guard.CategoryWebhookUpdate, guard.TargetData{TargetID: e.ChannelID})
}

func (d *Dispatcher) onGuildIntegrationsUpdate(_ *discordgo.Session, e *discordgo.GuildIntegrationsUpdate) {
	if e.GuildID != d.guildID {
		return
	}
	d.submit(guard.CategoryIntegrations, guard.TargetData{TargetID: e.GuildID})
}

// Emojis and stickers

func (d *Dispatcher) onGuildEmojisUpdate(_ *discordgo.Session, e *discordgo.GuildEmojisUpdate) {
	if e.GuildID != d.guildID {
		return
	}

	next := make(map[string]string, len(e.Emojis))
	for _, em := range e.Emojis {
		next[em.ID] = em.Name
	}

	d.mu.Lock()
	prev := d.emojis
	d.emojis = next
	d.mu.Unlock()

	d.diffEntities(prev, next, guard.CategoryEmojiCreate, guard.CategoryEmojiDelete)
}

// stickersUpdatePayload is the GUILD_STICKERS_UPDATE dispatch body. discordgo
// has no typed event for it, so the raw handler decodes it directly.
type stickersUpdatePayload struct {
	GuildID  string `json:"guild_id"`
	Stickers []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"stickers"`
}

func (d *Dispatcher) onRawEvent(_ *discordgo.Session, e *discordgo.Event) {
	if e.Type != "GUILD_STICKERS_UPDATE" {
		return
	}

	var payload stickersUpdatePayload
	if err := json.Unmarshal(e.RawData, &payload); err != nil {
		d.log.Warn("failed to decode stickers update", "error", err)
		return
	}
	if payload.GuildID != d.guildID {
		return
	}

	next := make(map[string]string, len(payload.Stickers))
	for _, st := range payload.Stickers {
		next[st.ID] = st.Name
	}

	d.mu.Lock()
	prev := d.stickers
	d.stickers = next
	d.mu.Unlock()

	d.diffEntities(prev, next, guard.CategoryStickerCreate, guard.CategoryStickerDelete)
}

// diffEntities emits create events for keys only in next and delete events
// for keys only in prev.
func (d *Dispatcher) diffEntities(prev, next map[string]string, createCat, deleteCat guard.Category) {
	for id, name := range next {
		if _, ok := prev[id]; !ok {
			d.submit(createCat, guard.EntityData{ID: id, Name: name})
		}
	}
	for id, name := range prev {
		if _, ok := next[id]; !ok {
			d.submit(deleteCat, guard.EntityData{ID: id, Name: name})
		}
	}
}
