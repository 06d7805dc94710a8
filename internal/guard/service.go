package guard

import (
	"context"

	"guard-go/internal/metrics"
	"guard-go/internal/model"
)

// SnapshotStore is the persistence surface for the snapshot pipeline. The
// Replace methods implement wholesale replacement: the prior collection is
// dropped and the new one written in its place. Per-entity persistence is
// best-effort; Replace returns how many entities were stored.
type SnapshotStore interface {
	ReplaceRoleSnapshots(ctx context.Context, snaps []model.RoleSnapshot) (int, error)
	ReplaceChannelSnapshots(ctx context.Context, snaps []model.ChannelSnapshot) (int, error)
	RoleSnapshots(ctx context.Context) ([]model.RoleSnapshot, error)
	ChannelSnapshots(ctx context.Context) ([]model.ChannelSnapshot, error)
}

// Service coordinates the snapshot and restore pipeline for one guild.
type Service struct {
	gw        Gateway
	snapshots SnapshotStore
	agents    AgentPool
	alerts    *Alerter
	log       Logger
	clock     Clock
	metrics   *metrics.Set
}

// NewService creates a Service. agents may be nil if role restore is never
// used (RestoreRoles then aborts with ErrNoAgents).
func NewService(gw Gateway, snapshots SnapshotStore, agents AgentPool,
	alerts *Alerter, log Logger, clock Clock, m *metrics.Set) *Service {
	return &Service{
		gw:        gw,
		snapshots: snapshots,
		agents:    agents,
		alerts:    alerts,
		log:       log,
		clock:     clock,
		metrics:   m,
	}
}

// CaptureSummary reports one capture run for operator display.
type CaptureSummary struct {
	Roles    int
	Channels int
	Failed   int
}

// RestoreSummary reports one restore run for operator display.
type RestoreSummary struct {
	Created    int
	Failed     int
	Assigned   int
	Unassigned int
	AgentsUsed int
}
