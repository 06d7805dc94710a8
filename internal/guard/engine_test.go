package guard_test

import (
	"context"
	"testing"

	"guard-go/internal/guard"
	"guard-go/internal/testutil"
)

type engineFixture struct {
	gw       *testutil.FakeGateway
	policy   *guard.Policy
	clock    *testutil.StubClock
	notifier *recordingNotifier
	engine   *guard.Engine
}

func newEngineFixture(t *testing.T, opts ...guard.EngineOption) *engineFixture {
	t.Helper()

	clock := testutil.FixedClock()
	gw := testutil.NewFakeGateway("guild-1")
	log := guard.NewNopLogger()
	policy := guard.NewPolicy(testutil.NewTestStore(t), "guild-1", nil, log)
	limiter := guard.NewLimiter(clock)
	notifier := &recordingNotifier{}
	alerts := guard.NewAlerter(notifier, limiter, clock, testutil.NewStubIDGenerator(), log)
	punisher := guard.NewPunisher(gw, alerts, log)
	attributor := guard.NewAttributor(gw, log)
	engine := guard.NewEngine(gw, policy, limiter, punisher, attributor, alerts, log, opts...)

	return &engineFixture{gw: gw, policy: policy, clock: clock, notifier: notifier, engine: engine}
}

func TestEngine_IgnoresUnattributedEvents(t *testing.T) {
	f := newEngineFixture(t)
	// Empty audit trail: the change has no resolvable actor.
	f.engine.Handle(context.Background(), guard.Event{
		Category: guard.CategoryRoleDelete,
		Data:     guard.RoleEventData{Old: &guard.Role{ID: "r1"}},
	})

	if n := f.gw.MutationCount(); n != 0 {
		t.Errorf("unattributed event caused %d mutations, want 0", n)
	}
	if len(f.notifier.delivered()) != 0 {
		t.Error("unattributed event produced alerts")
	}
}

func TestEngine_IgnoresTrustedActors(t *testing.T) {
	ctx := context.Background()

	t.Run("scope trust", func(t *testing.T) {
		f := newEngineFixture(t)
		f.gw.Audit[guard.AuditChannelDelete] = &guard.AuditEntry{ActorID: "mod-1"}
		ref := guard.PrincipalRef{Kind: guard.PrincipalMember, ID: "mod-1"}
		if _, err := f.policy.Add(ctx, guard.ScopeChannel, ref); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		f.engine.Handle(ctx, guard.Event{Category: guard.CategoryChannelDelete})

		if n := f.gw.MutationCount(); n != 0 {
			t.Errorf("trusted actor caused %d mutations, want 0", n)
		}
	})

	t.Run("full trust spans every category", func(t *testing.T) {
		f := newEngineFixture(t)
		ref := guard.PrincipalRef{Kind: guard.PrincipalMember, ID: "mod-1"}
		if _, err := f.policy.Add(ctx, guard.ScopeFull, ref); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		for _, kind := range []guard.AuditKind{
			guard.AuditRoleDelete, guard.AuditMemberBanAdd, guard.AuditBotAdd,
		} {
			f.gw.Audit[kind] = &guard.AuditEntry{ActorID: "mod-1"}
		}

		f.engine.Handle(ctx, guard.Event{Category: guard.CategoryRoleDelete, Data: guard.RoleEventData{Old: &guard.Role{ID: "r1"}}})
		f.engine.Handle(ctx, guard.Event{Category: guard.CategoryBan, Data: guard.TargetData{TargetID: "victim"}})
		f.engine.Handle(ctx, guard.Event{Category: guard.CategoryBotAdd, Data: guard.TargetData{TargetID: "bot-1"}})

		if n := f.gw.MutationCount(); n != 0 {
			t.Errorf("fully trusted actor caused %d mutations, want 0", n)
		}
	})
}

func TestEngine_IgnoresUnpunishableActors(t *testing.T) {
	f := newEngineFixture(t)
	f.gw.Audit[guard.AuditRoleDelete] = &guard.AuditEntry{ActorID: "departed"}
	f.gw.NotPunishable["departed"] = true

	f.engine.Handle(context.Background(), guard.Event{
		Category: guard.CategoryRoleDelete,
		Data:     guard.RoleEventData{Old: &guard.Role{ID: "r1"}},
	})

	if n := f.gw.MutationCount(); n != 0 {
		t.Errorf("unpunishable actor caused %d mutations, want 0", n)
	}
}

func TestEngine_RoleDelete(t *testing.T) {
	f := newEngineFixture(t)
	f.gw.Audit[guard.AuditRoleDelete] = &guard.AuditEntry{ActorID: "evil"}

	f.engine.Handle(context.Background(), guard.Event{
		Category: guard.CategoryRoleDelete,
		Data:     guard.RoleEventData{Old: &guard.Role{ID: "r1", Name: "mods"}},
	})

	if len(f.gw.Kicked) != 1 || f.gw.Kicked[0] != "evil" {
		t.Errorf("kicked = %v, want [evil]", f.gw.Kicked)
	}
	// Deletions are not undone inline; recovery goes through restore.
	if len(f.gw.CreatedRoles) != 0 {
		t.Errorf("role delete triggered %d role creations", len(f.gw.CreatedRoles))
	}
}

func TestEngine_RoleCreateReverted(t *testing.T) {
	f := newEngineFixture(t)
	f.gw.Audit[guard.AuditRoleCreate] = &guard.AuditEntry{ActorID: "evil"}

	f.engine.Handle(context.Background(), guard.Event{
		Category: guard.CategoryRoleCreate,
		Data:     guard.RoleEventData{New: &guard.Role{ID: "r-new"}},
	})

	if len(f.gw.Kicked) != 1 || f.gw.Kicked[0] != "evil" {
		t.Errorf("kicked = %v, want [evil]", f.gw.Kicked)
	}
	if len(f.gw.DeletedRoles) != 1 || f.gw.DeletedRoles[0] != "r-new" {
		t.Errorf("deleted roles = %v, want [r-new]", f.gw.DeletedRoles)
	}
}

func TestEngine_RoleUpdateReverted(t *testing.T) {
	f := newEngineFixture(t)
	f.gw.Audit[guard.AuditRoleUpdate] = &guard.AuditEntry{ActorID: "evil"}
	old := guard.Role{ID: "r1", Name: "mods", Permissions: 0x42, Color: 0xFF0000}

	f.engine.Handle(context.Background(), guard.Event{
		Category: guard.CategoryRoleUpdate,
		Data:     guard.RoleEventData{Old: &old, New: &guard.Role{ID: "r1", Name: "pwned"}},
	})

	got, ok := f.gw.EditedRoles["r1"]
	if !ok {
		t.Fatal("role was not written back")
	}
	if got != old {
		t.Errorf("written-back role = %+v, want %+v", got, old)
	}
}

func TestEngine_MemberRolesReset(t *testing.T) {
	f := newEngineFixture(t)
	f.gw.Audit[guard.AuditMemberRoleUpdate] = &guard.AuditEntry{ActorID: "evil"}

	f.engine.Handle(context.Background(), guard.Event{
		Category: guard.CategoryMemberRoles,
		Data: guard.MemberRolesData{
			MemberID:   "member-1",
			OldRoleIDs: []string{"r1", "r2"},
			Added:      []guard.Role{{ID: "r-admin", Permissions: guard.PermAdministrator}},
		},
	})

	got := f.gw.MemberRoles["member-1"]
	if len(got) != 2 || got[0] != "r1" || got[1] != "r2" {
		t.Errorf("member roles reset to %v, want [r1 r2]", got)
	}
}

func TestEngine_ChannelCreateReverted(t *testing.T) {
	f := newEngineFixture(t)
	f.gw.Audit[guard.AuditChannelCreate] = &guard.AuditEntry{ActorID: "evil"}

	f.engine.Handle(context.Background(), guard.Event{
		Category: guard.CategoryChannelCreate,
		Data:     guard.ChannelEventData{New: &guard.Channel{ID: "c-new"}},
	})

	if len(f.gw.DeletedChannels) != 1 || f.gw.DeletedChannels[0] != "c-new" {
		t.Errorf("deleted channels = %v, want [c-new]", f.gw.DeletedChannels)
	}
}

func TestEngine_BanBurst(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	targets := []string{"t1", "t2", "t3", "t4"}
	for _, target := range targets {
		f.gw.Audit[guard.AuditMemberBanAdd] = &guard.AuditEntry{ActorID: "evil", TargetID: target}
		f.engine.Handle(ctx, guard.Event{
			Category: guard.CategoryBan,
			Data:     guard.TargetData{TargetID: target},
		})
	}

	// Three bans inside the window are each answered with a kick; the
	// fourth escalates to a ban of the actor.
	if len(f.gw.Kicked) != 3 {
		t.Errorf("kicked %d times, want 3", len(f.gw.Kicked))
	}
	if len(f.gw.Banned) != 1 || f.gw.Banned[0] != "evil" {
		t.Errorf("banned = %v, want [evil]", f.gw.Banned)
	}
	// Every victim is unbanned by their own event.
	if len(f.gw.Unbanned) != 4 {
		t.Fatalf("unbanned %d members, want 4", len(f.gw.Unbanned))
	}
	for i, target := range targets {
		if f.gw.Unbanned[i] != target {
			t.Errorf("unbanned[%d] = %q, want %q", i, f.gw.Unbanned[i], target)
		}
	}
}

func TestEngine_BotAdd(t *testing.T) {
	f := newEngineFixture(t)
	f.gw.Audit[guard.AuditBotAdd] = &guard.AuditEntry{ActorID: "inviter", TargetID: "bot-1"}

	f.engine.Handle(context.Background(), guard.Event{
		Category: guard.CategoryBotAdd,
		Data:     guard.TargetData{TargetID: "bot-1"},
	})

	if len(f.gw.Kicked) != 2 || f.gw.Kicked[0] != "inviter" || f.gw.Kicked[1] != "bot-1" {
		t.Errorf("kicked = %v, want [inviter bot-1]", f.gw.Kicked)
	}
}

func TestEngine_SettingsRevert(t *testing.T) {
	f := newEngineFixture(t)
	f.gw.Audit[guard.AuditGuildUpdate] = &guard.AuditEntry{ActorID: "evil"}
	old := &guard.GuildSettings{VerificationLevel: 3, Description: "kept"}

	f.engine.Handle(context.Background(), guard.Event{
		Category: guard.CategoryVerification,
		Data:     guard.SettingsEventData{Old: old, New: &guard.GuildSettings{VerificationLevel: 0}},
	})

	if len(f.gw.SettingsPatches) != 1 {
		t.Fatalf("got %d settings patches, want 1", len(f.gw.SettingsPatches))
	}
	patch := f.gw.SettingsPatches[0]
	if patch.VerificationLevel == nil || *patch.VerificationLevel != 3 {
		t.Errorf("verification level not restored: %+v", patch)
	}
	// Only the changed field is written back.
	if patch.Description != nil || patch.WidgetEnabled != nil || patch.DiscoverySplash != nil {
		t.Errorf("patch touches unrelated fields: %+v", patch)
	}
}

func TestEngine_RevertProceedsWhenPunishFails(t *testing.T) {
	f := newEngineFixture(t)
	f.gw.Audit[guard.AuditRoleCreate] = &guard.AuditEntry{ActorID: "evil"}
	f.gw.Fail["Kick"] = guard.ErrPermissionDenied

	f.engine.Handle(context.Background(), guard.Event{
		Category: guard.CategoryRoleCreate,
		Data:     guard.RoleEventData{New: &guard.Role{ID: "r-new"}},
	})

	if len(f.gw.DeletedRoles) != 1 || f.gw.DeletedRoles[0] != "r-new" {
		t.Errorf("reversal skipped after punish failure: deleted = %v", f.gw.DeletedRoles)
	}
}

func TestEngine_SubmitNeverBlocks(t *testing.T) {
	f := newEngineFixture(t, guard.WithQueueSize(1))

	// Workers are not started: the second submit must drop, not block.
	f.engine.Submit(guard.Event{Category: guard.CategoryKick})
	f.engine.Submit(guard.Event{Category: guard.CategoryKick})
}
