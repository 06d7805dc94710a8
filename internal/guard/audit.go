package guard

import "context"

// Attributor resolves the actor responsible for a guarded change via the
// platform audit trail.
type Attributor struct {
	gw  Gateway
	log Logger
}

// NewAttributor creates an Attributor over the gateway.
func NewAttributor(gw Gateway, log Logger) *Attributor {
	return &Attributor{gw: gw, log: log}
}

// Attribute fetches the single most recent audit entry of the given kind.
// It returns (nil, false) when no entry exists or the fetch fails; absence
// of an actor means the guarded event is ignored, never an error. No
// correlation beyond "newest of this kind" is attempted, so two identical
// actions inside the trail's latency window can misattribute.
func (a *Attributor) Attribute(ctx context.Context, kind AuditKind) (*AuditEntry, bool) {
	entry, err := a.gw.AuditEntry(ctx, kind)
	if err != nil {
		a.log.Debug("audit fetch failed, ignoring event", "kind", kind, "error", err)
		return nil, false
	}
	if entry == nil || entry.ActorID == "" {
		return nil, false
	}
	return entry, true
}
