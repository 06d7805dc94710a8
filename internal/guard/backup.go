package guard

import (
	"context"
	"fmt"
	"time"
)

// DefaultCaptureInterval is how often the recurring capture runs.
const DefaultCaptureInterval = 2 * time.Hour

// Capture takes a point-in-time snapshot of the guild's roles and channels
// and replaces the stored collections wholesale. It refuses to run when the
// gateway reports no roles or no channels: that signals a not-yet-ready or
// lost connection, not a genuinely empty guild. Managed roles, the implicit
// @everyone role, and thread channels are excluded.
func (s *Service) Capture(ctx context.Context) (*CaptureSummary, error) {
	roles, err := s.gw.GuildRoles(ctx)
	if err != nil {
		s.metrics.Capture("failed")
		s.alerts.Emit(ctx, AlertError, "snapshot capture failed",
			fmt.Sprintf("guild not resolvable: %v", err))
		return nil, fmt.Errorf("%w: %v", ErrGuildUnavailable, err)
	}
	channels, err := s.gw.GuildChannels(ctx)
	if err != nil {
		s.metrics.Capture("failed")
		s.alerts.Emit(ctx, AlertError, "snapshot capture failed",
			fmt.Sprintf("guild not resolvable: %v", err))
		return nil, fmt.Errorf("%w: %v", ErrGuildUnavailable, err)
	}
	if len(roles) == 0 || len(channels) == 0 {
		s.metrics.Capture("failed")
		s.alerts.Emit(ctx, AlertError, "snapshot capture failed",
			"role or channel caches are empty; refusing to record an empty guild")
		return nil, ErrEmptyCaches
	}

	now := s.clock.Now()
	guildID := s.gw.GuildID()

	roleSnaps := buildRoleSnapshots(guildID, roles, channels, now)
	channelSnaps := buildChannelSnapshots(channels, now)

	summary := &CaptureSummary{}

	storedRoles, err := s.snapshots.ReplaceRoleSnapshots(ctx, roleSnaps)
	if err != nil {
		s.metrics.Capture("failed")
		s.alerts.Emit(ctx, AlertError, "snapshot capture failed",
			fmt.Sprintf("persisting role snapshots: %v", err))
		return nil, fmt.Errorf("persisting role snapshots: %w", err)
	}
	summary.Roles = storedRoles
	summary.Failed += len(roleSnaps) - storedRoles

	storedChannels, err := s.snapshots.ReplaceChannelSnapshots(ctx, channelSnaps)
	if err != nil {
		s.metrics.Capture("failed")
		s.alerts.Emit(ctx, AlertError, "snapshot capture failed",
			fmt.Sprintf("persisting channel snapshots: %v", err))
		return nil, fmt.Errorf("persisting channel snapshots: %w", err)
	}
	summary.Channels = storedChannels
	summary.Failed += len(channelSnaps) - storedChannels

	s.metrics.Capture("ok")
	s.log.Info("snapshot captured",
		"roles", summary.Roles, "channels", summary.Channels, "failed", summary.Failed)
	s.alerts.Emit(ctx, AlertSuccess, "snapshot captured",
		fmt.Sprintf("%d roles and %d channels recorded", summary.Roles, summary.Channels))
	return summary, nil
}

// RunCaptureLoop captures once immediately, then on every interval tick
// until ctx is cancelled. Failures are already alerted by Capture and do
// not stop the loop.
func (s *Service) RunCaptureLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCaptureInterval
	}
	if _, err := s.Capture(ctx); err != nil {
		s.log.Warn("startup capture failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Capture(ctx); err != nil {
				s.log.Warn("recurring capture failed", "error", err)
			}
		}
	}
}
