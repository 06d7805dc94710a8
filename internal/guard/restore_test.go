package guard_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"guard-go/internal/guard"
	"guard-go/internal/model"
	"guard-go/internal/testutil"
)

func seedRoleSnapshots(t *testing.T, f *serviceFixture, snaps []model.RoleSnapshot) {
	t.Helper()
	if _, err := f.st.ReplaceRoleSnapshots(context.Background(), snaps); err != nil {
		t.Fatalf("seeding role snapshots: %v", err)
	}
}

func seedChannelSnapshots(t *testing.T, f *serviceFixture, snaps []model.ChannelSnapshot) {
	t.Helper()
	if _, err := f.st.ReplaceChannelSnapshots(context.Background(), snaps); err != nil {
		t.Fatalf("seeding channel snapshots: %v", err)
	}
}

func TestService_RestoreRoles(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	seedRoleSnapshots(t, f, []model.RoleSnapshot{
		{
			ID: "r1", Name: "mods", Color: 0xFF0000, Position: 2,
			Permissions: 0x42, Hoist: true,
			Members: []string{"m1", "m2", "m3", "m4", "m5"},
			ChannelOverwrites: []model.RoleOverwrite{
				{ChannelID: "c1", Allow: 1024, Deny: 2048},
			},
			CapturedAt: now,
		},
		{ID: "r2", Name: "vip", Position: 3, CapturedAt: now},
	})
	// r2 survived the attack; only r1 must be recreated.
	f.gw.Roles = []guard.GuildRole{{Role: guard.Role{ID: "r2", Name: "vip"}}}

	summary, err := f.svc.RestoreRoles(ctx)
	if err != nil {
		t.Fatalf("RestoreRoles failed: %v", err)
	}
	if summary.Created != 1 || summary.Failed != 0 {
		t.Errorf("created=%d failed=%d, want 1/0", summary.Created, summary.Failed)
	}
	if summary.Assigned != 5 || summary.Unassigned != 0 {
		t.Errorf("assigned=%d unassigned=%d, want 5/0", summary.Assigned, summary.Unassigned)
	}
	if summary.AgentsUsed != 2 {
		t.Errorf("agents used = %d, want 2", summary.AgentsUsed)
	}

	if len(f.gw.CreatedRoles) != 1 {
		t.Fatalf("created %d roles, want 1", len(f.gw.CreatedRoles))
	}
	created := f.gw.CreatedRoles[0]
	if created.Name != "mods" || created.Color != 0xFF0000 || created.Permissions != 0x42 || !created.Hoist {
		t.Errorf("created role fields wrong: %+v", created)
	}

	// The overlay targets the fresh role ID, not the snapshotted one.
	ows := f.gw.OverwriteSets["c1"]
	if len(ows) != 1 {
		t.Fatalf("c1 got %d overwrites, want 1", len(ows))
	}
	if ows[0].TargetID != created.ID || ows[0].Allow != 1024 || ows[0].Deny != 2048 {
		t.Errorf("overwrite = %+v, want target %s allow 1024 deny 2048", ows[0], created.ID)
	}

	// Membership fans out in contiguous chunks, one per agent.
	first := f.pool.Agents[0].Assignments
	second := f.pool.Agents[1].Assignments
	if len(first) != 3 || len(second) != 2 {
		t.Fatalf("chunk sizes = %d/%d, want 3/2", len(first), len(second))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if first[i].MemberID != want {
			t.Errorf("agent-1 assignment %d = %s, want %s", i, first[i].MemberID, want)
		}
	}
	for i, want := range []string{"m4", "m5"} {
		if second[i].MemberID != want {
			t.Errorf("agent-2 assignment %d = %s, want %s", i, second[i].MemberID, want)
		}
	}
	for _, agent := range f.pool.Agents {
		if !agent.Closed {
			t.Errorf("agent %s not closed after restore", agent.AgentName)
		}
	}
}

func TestService_RestoreRolesCountsMemberFailures(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.pool = testutil.NewFakeAgentPool(1)
	f.pool.Agents[0].Err = errors.New("member gone")
	f.svc = guard.NewService(f.gw, f.st, f.pool, newTestAlerter(nil, f.clock), guard.NewNopLogger(), f.clock, nil)

	seedRoleSnapshots(t, f, []model.RoleSnapshot{
		{ID: "r1", Name: "mods", Members: []string{"m1", "m2"}},
	})

	summary, err := f.svc.RestoreRoles(ctx)
	if err != nil {
		t.Fatalf("RestoreRoles failed: %v", err)
	}
	if summary.Created != 1 {
		t.Errorf("created = %d, want 1", summary.Created)
	}
	if summary.Assigned != 0 || summary.Unassigned != 2 {
		t.Errorf("assigned=%d unassigned=%d, want 0/2", summary.Assigned, summary.Unassigned)
	}
}

func TestService_RestoreRolesAbortsWithoutAgents(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.pool.AcquireErr = guard.ErrNoAgents

	seedRoleSnapshots(t, f, []model.RoleSnapshot{{ID: "r1", Name: "mods"}})

	_, err := f.svc.RestoreRoles(ctx)
	if !errors.Is(err, guard.ErrNoAgents) {
		t.Fatalf("got %v, want ErrNoAgents", err)
	}
	if n := f.gw.MutationCount(); n != 0 {
		t.Errorf("aborted restore still caused %d mutations", n)
	}
}

func TestService_RestoreRolesRequiresSnapshots(t *testing.T) {
	f := newServiceFixture(t)
	if _, err := f.svc.RestoreRoles(context.Background()); err == nil {
		t.Error("RestoreRoles succeeded with no snapshots recorded")
	}
}

func TestService_RestoreChannels(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	seedChannelSnapshots(t, f, []model.ChannelSnapshot{
		{
			ID: "c1", Name: "general", Type: 0, Topic: "talk", Position: 1, NSFW: true,
			PermissionOverwrites: []model.ChannelOverwrite{
				{TargetID: "r1", TargetType: "role", Allow: 1024},
				{TargetID: "m1", TargetType: "member", Deny: 2048},
			},
		},
		{ID: "c2", Name: "voice", Type: 2, UserLimit: 10},
	})
	// c2 still exists; only c1 must be recreated.
	f.gw.Channels = []guard.Channel{{ID: "c2", Name: "voice"}}

	summary, err := f.svc.RestoreChannels(ctx)
	if err != nil {
		t.Fatalf("RestoreChannels failed: %v", err)
	}
	if summary.Created != 1 || summary.Failed != 0 {
		t.Errorf("created=%d failed=%d, want 1/0", summary.Created, summary.Failed)
	}

	if len(f.gw.CreatedChannels) != 1 {
		t.Fatalf("created %d channels, want 1", len(f.gw.CreatedChannels))
	}
	ch := f.gw.CreatedChannels[0]
	if ch.Name != "general" || ch.Topic != "talk" || !ch.NSFW {
		t.Errorf("created channel fields wrong: %+v", ch)
	}
	if len(ch.Overwrites) != 2 {
		t.Fatalf("created channel has %d overwrites, want 2", len(ch.Overwrites))
	}
	if ch.Overwrites[0].TargetType != guard.OverwriteRole || ch.Overwrites[1].TargetType != guard.OverwriteMember {
		t.Errorf("overwrite target types wrong: %+v", ch.Overwrites)
	}
}

func TestService_RestoreChannelsCountsFailures(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.gw.Fail["CreateChannel"] = guard.ErrPermissionDenied

	seedChannelSnapshots(t, f, []model.ChannelSnapshot{
		{ID: "c1", Name: "general"},
		{ID: "c2", Name: "random"},
	})

	summary, err := f.svc.RestoreChannels(ctx)
	if err != nil {
		t.Fatalf("RestoreChannels failed: %v", err)
	}
	if summary.Created != 0 || summary.Failed != 2 {
		t.Errorf("created=%d failed=%d, want 0/2", summary.Created, summary.Failed)
	}
}
