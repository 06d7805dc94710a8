package discord

import (
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"

	"guard-go/internal/guard"
)

type recordingSubmitter struct {
	events []guard.Event
}

func (r *recordingSubmitter) Submit(ev guard.Event) {
	r.events = append(r.events, ev)
}

func newTestDispatcher() (*Dispatcher, *recordingSubmitter) {
	sub := &recordingSubmitter{}
	return NewDispatcher("guild-1", sub, nil), sub
}

func TestWrapErr(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		if wrapErr(nil) != nil {
			t.Error("wrapErr(nil) != nil")
		}
	})

	t.Run("missing permission code maps to ErrPermissionDenied", func(t *testing.T) {
		err := &discordgo.RESTError{
			Message: &discordgo.APIErrorMessage{Code: jsonCodeMissingPermission},
		}
		if !errors.Is(wrapErr(err), guard.ErrPermissionDenied) {
			t.Errorf("wrapErr() = %v, want ErrPermissionDenied", wrapErr(err))
		}
	})

	t.Run("unknown role code maps to ErrTargetNotFound", func(t *testing.T) {
		err := &discordgo.RESTError{
			Message: &discordgo.APIErrorMessage{Code: jsonCodeUnknownRole},
		}
		if !errors.Is(wrapErr(err), guard.ErrTargetNotFound) {
			t.Errorf("wrapErr() = %v, want ErrTargetNotFound", wrapErr(err))
		}
	})

	t.Run("404 without code maps to ErrTargetNotFound", func(t *testing.T) {
		err := &discordgo.RESTError{
			Response: &http.Response{StatusCode: 404},
		}
		if !errors.Is(wrapErr(err), guard.ErrTargetNotFound) {
			t.Errorf("wrapErr() = %v, want ErrTargetNotFound", wrapErr(err))
		}
	})

	t.Run("unrelated error passes through", func(t *testing.T) {
		plain := errors.New("connection reset")
		got := wrapErr(plain)
		if errors.Is(got, guard.ErrPermissionDenied) || errors.Is(got, guard.ErrTargetNotFound) {
			t.Errorf("wrapErr() = %v, want unchanged", got)
		}
	})
}

func TestHighestPosition(t *testing.T) {
	positions := map[string]int{"r1": 1, "r2": 5, "r3": 3}

	if got := highestPosition([]string{"r1", "r3"}, positions); got != 3 {
		t.Errorf("highestPosition = %d, want 3", got)
	}
	if got := highestPosition(nil, positions); got != -1 {
		t.Errorf("highestPosition(nil) = %d, want -1", got)
	}
	if got := highestPosition([]string{"unknown"}, positions); got != -1 {
		t.Errorf("highestPosition(unknown) = %d, want -1", got)
	}
}

func TestDispatcher_RoleEvents(t *testing.T) {
	t.Run("create caches and submits", func(t *testing.T) {
		d, sub := newTestDispatcher()

		d.onGuildRoleCreate(nil, &discordgo.GuildRoleCreate{
			GuildRole: &discordgo.GuildRole{
				GuildID: "guild-1",
				Role:    &discordgo.Role{ID: "r1", Name: "mod", Position: 2},
			},
		})

		if len(sub.events) != 1 || sub.events[0].Category != guard.CategoryRoleCreate {
			t.Fatalf("events = %v, want one role_create", sub.events)
		}
		data := sub.events[0].Data.(guard.RoleEventData)
		if data.New == nil || data.New.ID != "r1" {
			t.Errorf("New = %v, want r1", data.New)
		}
	})

	t.Run("update supplies cached old state", func(t *testing.T) {
		d, sub := newTestDispatcher()

		d.onGuildRoleCreate(nil, &discordgo.GuildRoleCreate{
			GuildRole: &discordgo.GuildRole{
				GuildID: "guild-1",
				Role:    &discordgo.Role{ID: "r1", Name: "mod"},
			},
		})
		d.onGuildRoleUpdate(nil, &discordgo.GuildRoleUpdate{
			GuildRole: &discordgo.GuildRole{
				GuildID: "guild-1",
				Role:    &discordgo.Role{ID: "r1", Name: "renamed"},
			},
		})

		if len(sub.events) != 2 {
			t.Fatalf("len(events) = %d, want 2", len(sub.events))
		}
		data := sub.events[1].Data.(guard.RoleEventData)
		if data.Old == nil || data.Old.Name != "mod" {
			t.Errorf("Old = %v, want cached mod role", data.Old)
		}
		if data.New.Name != "renamed" {
			t.Errorf("New.Name = %q, want renamed", data.New.Name)
		}
	})

	t.Run("no-op update is suppressed", func(t *testing.T) {
		d, sub := newTestDispatcher()

		role := &discordgo.Role{ID: "r1", Name: "mod"}
		d.onGuildRoleCreate(nil, &discordgo.GuildRoleCreate{
			GuildRole: &discordgo.GuildRole{GuildID: "guild-1", Role: role},
		})
		d.onGuildRoleUpdate(nil, &discordgo.GuildRoleUpdate{
			GuildRole: &discordgo.GuildRole{GuildID: "guild-1", Role: role},
		})

		if len(sub.events) != 1 {
			t.Errorf("len(events) = %d, want 1 (no-op update dropped)", len(sub.events))
		}
	})

	t.Run("delete evicts cache", func(t *testing.T) {
		d, sub := newTestDispatcher()

		d.onGuildRoleCreate(nil, &discordgo.GuildRoleCreate{
			GuildRole: &discordgo.GuildRole{
				GuildID: "guild-1",
				Role:    &discordgo.Role{ID: "r1", Name: "mod"},
			},
		})
		d.onGuildRoleDelete(nil, &discordgo.GuildRoleDelete{GuildID: "guild-1", RoleID: "r1"})

		if len(sub.events) != 2 || sub.events[1].Category != guard.CategoryRoleDelete {
			t.Fatalf("events = %v, want role_delete second", sub.events)
		}
		data := sub.events[1].Data.(guard.RoleEventData)
		if data.Old == nil || data.Old.Name != "mod" {
			t.Errorf("Old = %v, want cached role", data.Old)
		}

		if _, ok := d.roles["r1"]; ok {
			t.Error("role still cached after delete")
		}
	})

	t.Run("other guilds are ignored", func(t *testing.T) {
		d, sub := newTestDispatcher()

		d.onGuildRoleCreate(nil, &discordgo.GuildRoleCreate{
			GuildRole: &discordgo.GuildRole{
				GuildID: "other",
				Role:    &discordgo.Role{ID: "r1"},
			},
		})

		if len(sub.events) != 0 {
			t.Errorf("events = %v, want none", sub.events)
		}
	})
}

func TestDispatcher_MemberUpdate(t *testing.T) {
	dangerous := guard.Role{ID: "r-admin", Name: "admin", Permissions: guard.PermAdministrator}
	harmless := guard.Role{ID: "r-color", Name: "color", Permissions: 0}

	newMember := func(userID string, roles ...string) *discordgo.Member {
		return &discordgo.Member{
			GuildID: "guild-1",
			User:    &discordgo.User{ID: userID},
			Roles:   roles,
		}
	}

	t.Run("dangerous grant submits member_roles", func(t *testing.T) {
		d, sub := newTestDispatcher()
		d.roles[dangerous.ID] = dangerous

		d.onGuildMemberUpdate(nil, &discordgo.GuildMemberUpdate{
			Member:       newMember("u1", "r-admin"),
			BeforeUpdate: newMember("u1"),
		})

		if len(sub.events) != 1 || sub.events[0].Category != guard.CategoryMemberRoles {
			t.Fatalf("events = %v, want one member_roles", sub.events)
		}
		data := sub.events[0].Data.(guard.MemberRolesData)
		if data.MemberID != "u1" {
			t.Errorf("MemberID = %q, want u1", data.MemberID)
		}
		if len(data.Added) != 1 || data.Added[0].ID != "r-admin" {
			t.Errorf("Added = %v, want [r-admin]", data.Added)
		}
	})

	t.Run("harmless grant is ignored", func(t *testing.T) {
		d, sub := newTestDispatcher()
		d.roles[harmless.ID] = harmless

		d.onGuildMemberUpdate(nil, &discordgo.GuildMemberUpdate{
			Member:       newMember("u1", "r-color"),
			BeforeUpdate: newMember("u1"),
		})

		if len(sub.events) != 0 {
			t.Errorf("events = %v, want none", sub.events)
		}
	})

	t.Run("missing before state is ignored", func(t *testing.T) {
		d, sub := newTestDispatcher()
		d.roles[dangerous.ID] = dangerous

		d.onGuildMemberUpdate(nil, &discordgo.GuildMemberUpdate{
			Member: newMember("u1", "r-admin"),
		})

		if len(sub.events) != 0 {
			t.Errorf("events = %v, want none", sub.events)
		}
	})
}

func TestDispatcher_GuildUpdate(t *testing.T) {
	base := func() *discordgo.Guild {
		return &discordgo.Guild{
			ID:                "guild-1",
			WidgetEnabled:     false,
			VerificationLevel: discordgo.VerificationLevelHigh,
			Description:       "a fine guild",
		}
	}

	t.Run("single changed field submits one event", func(t *testing.T) {
		d, sub := newTestDispatcher()
		d.settings = settingsFromGuild(base())

		changed := base()
		changed.Description = "defaced"
		d.onGuildUpdate(nil, &discordgo.GuildUpdate{Guild: changed})

		if len(sub.events) != 1 || sub.events[0].Category != guard.CategoryDescription {
			t.Fatalf("events = %v, want one description event", sub.events)
		}
		data := sub.events[0].Data.(guard.SettingsEventData)
		if data.Old.Description != "a fine guild" {
			t.Errorf("Old.Description = %q", data.Old.Description)
		}
	})

	t.Run("multiple changed fields submit one event each", func(t *testing.T) {
		d, sub := newTestDispatcher()
		d.settings = settingsFromGuild(base())

		changed := base()
		changed.WidgetEnabled = true
		changed.VerificationLevel = discordgo.VerificationLevelNone
		d.onGuildUpdate(nil, &discordgo.GuildUpdate{Guild: changed})

		if len(sub.events) != 2 {
			t.Fatalf("len(events) = %d, want 2", len(sub.events))
		}
	})

	t.Run("unprimed cache produces no events", func(t *testing.T) {
		d, sub := newTestDispatcher()

		d.onGuildUpdate(nil, &discordgo.GuildUpdate{Guild: base()})

		if len(sub.events) != 0 {
			t.Errorf("events = %v, want none", sub.events)
		}
	})
}

func TestDispatcher_EmojiDiff(t *testing.T) {
	d, sub := newTestDispatcher()
	d.emojis = map[string]string{"e1": "wave", "e2": "clap"}

	d.onGuildEmojisUpdate(nil, &discordgo.GuildEmojisUpdate{
		GuildID: "guild-1",
		Emojis: []*discordgo.Emoji{
			{ID: "e1", Name: "wave"},
			{ID: "e3", Name: "fire"},
		},
	})

	var created, deleted int
	for _, ev := range sub.events {
		switch ev.Category {
		case guard.CategoryEmojiCreate:
			created++
			if ev.Data.(guard.EntityData).ID != "e3" {
				t.Errorf("created = %v, want e3", ev.Data)
			}
		case guard.CategoryEmojiDelete:
			deleted++
			if ev.Data.(guard.EntityData).ID != "e2" {
				t.Errorf("deleted = %v, want e2", ev.Data)
			}
		}
	}
	if created != 1 || deleted != 1 {
		t.Errorf("created=%d deleted=%d, want 1/1", created, deleted)
	}
}

func TestDispatcher_StickerRawEvent(t *testing.T) {
	d, sub := newTestDispatcher()
	d.stickers = map[string]string{"s1": "old"}

	d.onRawEvent(nil, &discordgo.Event{
		Type:    "GUILD_STICKERS_UPDATE",
		RawData: []byte(`{"guild_id":"guild-1","stickers":[{"id":"s2","name":"new"}]}`),
	})

	if len(sub.events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(sub.events))
	}

	// Unrelated raw events are ignored
	before := len(sub.events)
	d.onRawEvent(nil, &discordgo.Event{Type: "TYPING_START", RawData: []byte(`{}`)})
	if len(sub.events) != before {
		t.Error("unrelated raw event produced events")
	}
}

func TestDispatcher_BotAdd(t *testing.T) {
	d, sub := newTestDispatcher()

	d.onGuildMemberAdd(nil, &discordgo.GuildMemberAdd{
		Member: &discordgo.Member{
			GuildID: "guild-1",
			User:    &discordgo.User{ID: "u-human", Bot: false},
		},
	})
	d.onGuildMemberAdd(nil, &discordgo.GuildMemberAdd{
		Member: &discordgo.Member{
			GuildID: "guild-1",
			User:    &discordgo.User{ID: "u-bot", Bot: true},
		},
	})

	if len(sub.events) != 1 || sub.events[0].Category != guard.CategoryBotAdd {
		t.Fatalf("events = %v, want one bot_add", sub.events)
	}
	if sub.events[0].Data.(guard.TargetData).TargetID != "u-bot" {
		t.Errorf("TargetID = %v, want u-bot", sub.events[0].Data)
	}
}

func TestLevelColor(t *testing.T) {
	if levelColor(guard.AlertError) != colorError {
		t.Error("error color mismatch")
	}
	if levelColor(guard.AlertInfo) != colorInfo {
		t.Error("info color mismatch")
	}
	if levelColor(guard.AlertLevel("bogus")) != colorInfo {
		t.Error("unknown level should default to info color")
	}
}
