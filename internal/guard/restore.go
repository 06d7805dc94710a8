package guard

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"guard-go/internal/model"
)

const restoreReason = "guardd: disaster restore"

// RestoreChannels recreates every snapshotted channel that is absent from
// the live guild, in snapshot order. Per-channel failures are counted and
// skipped; the run never aborts partway.
func (s *Service) RestoreChannels(ctx context.Context) (*RestoreSummary, error) {
	snaps, err := s.snapshots.ChannelSnapshots(ctx)
	if err != nil {
		s.metrics.Restore("channels", "failed")
		return nil, fmt.Errorf("loading channel snapshots: %w", err)
	}
	if len(snaps) == 0 {
		s.metrics.Restore("channels", "failed")
		return nil, fmt.Errorf("no channel snapshots recorded")
	}

	live, err := s.gw.GuildChannels(ctx)
	if err != nil {
		s.metrics.Restore("channels", "failed")
		return nil, fmt.Errorf("%w: %v", ErrGuildUnavailable, err)
	}
	existing := make(map[string]bool, len(live))
	for _, ch := range live {
		existing[ch.ID] = true
	}

	summary := &RestoreSummary{}
	for _, snap := range snaps {
		if existing[snap.ID] {
			continue
		}
		if err := s.restoreOneChannel(ctx, snap); err != nil {
			s.log.Warn("channel restore failed", "channel", snap.Name, "error", err)
			summary.Failed++
			continue
		}
		summary.Created++
	}

	s.metrics.Restore("channels", "ok")
	s.log.Info("channel restore finished", "created", summary.Created, "failed", summary.Failed)
	s.alerts.Emit(ctx, AlertSuccess, "channel restore finished",
		fmt.Sprintf("%d channels recreated, %d failed", summary.Created, summary.Failed))
	return summary, nil
}

func (s *Service) restoreOneChannel(ctx context.Context, snap model.ChannelSnapshot) error {
	overwrites := make([]Overwrite, 0, len(snap.PermissionOverwrites))
	for _, ow := range snap.PermissionOverwrites {
		targetType := OverwriteMember
		if ow.TargetType == "role" {
			targetType = OverwriteRole
		}
		overwrites = append(overwrites, Overwrite{
			TargetID:   ow.TargetID,
			TargetType: targetType,
			Allow:      ow.Allow,
			Deny:       ow.Deny,
		})
	}

	_, err := s.gw.CreateChannel(ctx, Channel{
		Name:       snap.Name,
		Type:       snap.Type,
		ParentID:   snap.ParentID,
		Topic:      snap.Topic,
		Position:   snap.Position,
		NSFW:       snap.NSFW,
		UserLimit:  snap.UserLimit,
		Overwrites: overwrites,
	})
	if err != nil {
		return fmt.Errorf("creating channel: %w", err)
	}
	return nil
}

// RestoreRoles recreates every snapshotted role absent from the live guild,
// reapplies its channel permission overlays, and reassigns membership. The
// member list of each role is partitioned into contiguous chunks, one per
// auxiliary agent, and the agents grant in parallel through their own
// sessions. Per-member failures are counted, never retried. If no agents
// can be established the whole operation aborts before any role is created.
// All agents are torn down when the run ends, on every path.
func (s *Service) RestoreRoles(ctx context.Context) (*RestoreSummary, error) {
	snaps, err := s.snapshots.RoleSnapshots(ctx)
	if err != nil {
		s.metrics.Restore("roles", "failed")
		return nil, fmt.Errorf("loading role snapshots: %w", err)
	}
	if len(snaps) == 0 {
		s.metrics.Restore("roles", "failed")
		return nil, fmt.Errorf("no role snapshots recorded")
	}

	if s.agents == nil {
		s.metrics.Restore("roles", "failed")
		return nil, ErrNoAgents
	}
	agents, err := s.agents.Acquire(ctx)
	if err != nil {
		s.metrics.Restore("roles", "failed")
		return nil, fmt.Errorf("establishing restore agents: %w", err)
	}
	if len(agents) == 0 {
		s.metrics.Restore("roles", "failed")
		return nil, ErrNoAgents
	}
	defer func() {
		for _, agent := range agents {
			if err := agent.Close(); err != nil {
				s.log.Warn("agent teardown failed", "agent", agent.Name(), "error", err)
			}
		}
	}()

	live, err := s.gw.GuildRoles(ctx)
	if err != nil {
		s.metrics.Restore("roles", "failed")
		return nil, fmt.Errorf("%w: %v", ErrGuildUnavailable, err)
	}
	existing := make(map[string]bool, len(live))
	for _, role := range live {
		existing[role.ID] = true
	}

	summary := &RestoreSummary{AgentsUsed: len(agents)}
	for _, snap := range snaps {
		if existing[snap.ID] {
			continue
		}
		assigned, unassigned, err := s.restoreOneRole(ctx, snap, agents)
		summary.Assigned += assigned
		summary.Unassigned += unassigned
		if err != nil {
			s.log.Warn("role restore failed", "role", snap.Name, "error", err)
			summary.Failed++
			continue
		}
		summary.Created++
	}

	s.metrics.Restore("roles", "ok")
	s.log.Info("role restore finished",
		"created", summary.Created, "failed", summary.Failed,
		"assigned", summary.Assigned, "unassigned", summary.Unassigned)
	s.alerts.Emit(ctx, AlertSuccess, "role restore finished",
		fmt.Sprintf("%d roles recreated (%d failed), %d members reassigned (%d failed)",
			summary.Created, summary.Failed, summary.Assigned, summary.Unassigned))
	return summary, nil
}

func (s *Service) restoreOneRole(ctx context.Context, snap model.RoleSnapshot, agents []Agent) (assigned, unassigned int, err error) {
	newID, err := s.gw.CreateRole(ctx, Role{
		Name:        snap.Name,
		Color:       snap.Color,
		Position:    snap.Position,
		Permissions: snap.Permissions,
		Hoist:       snap.Hoist,
		Mentionable: snap.Mentionable,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("creating role: %w", err)
	}

	for _, ow := range snap.ChannelOverwrites {
		err := s.gw.SetChannelOverwrite(ctx, ow.ChannelID, Overwrite{
			TargetID:   newID,
			TargetType: OverwriteRole,
			Allow:      ow.Allow,
			Deny:       ow.Deny,
		})
		if err != nil {
			s.log.Warn("overwrite restore failed",
				"role", snap.Name, "channel", ow.ChannelID, "error", err)
		}
	}

	a, u := s.assignMembers(ctx, snap.Members, newID, agents)
	return a, u, nil
}

// assignMembers fans membership out across the agents: contiguous chunks,
// one per agent, no shared mutable state between them beyond the counters.
func (s *Service) assignMembers(ctx context.Context, members []string, roleID string, agents []Agent) (int, int) {
	if len(members) == 0 {
		return 0, 0
	}

	chunks := chunkMembers(members, len(agents))

	var assigned, unassigned atomic.Int64
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		agent := agents[i]
		wg.Add(1)
		go func(agent Agent, chunk []string) {
			defer wg.Done()
			for _, memberID := range chunk {
				if err := agent.AssignRole(ctx, memberID, roleID); err != nil {
					s.log.Debug("role assignment failed",
						"agent", agent.Name(), "member", memberID, "error", err)
					unassigned.Add(1)
					continue
				}
				assigned.Add(1)
			}
		}(agent, chunk)
	}
	wg.Wait()

	return int(assigned.Load()), int(unassigned.Load())
}

// chunkMembers splits members into at most n contiguous chunks.
func chunkMembers(members []string, n int) [][]string {
	if n <= 0 {
		return nil
	}
	size := (len(members) + n - 1) / n
	var chunks [][]string
	for start := 0; start < len(members); start += size {
		end := start + size
		if end > len(members) {
			end = len(members)
		}
		chunks = append(chunks, members[start:end])
	}
	return chunks
}
