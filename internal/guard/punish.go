package guard

import (
	"context"
	"fmt"
)

// PunishKind selects the penalty issued against an actor.
type PunishKind int

const (
	PunishKick PunishKind = iota
	PunishBan
)

func (k PunishKind) String() string {
	if k == PunishBan {
		return "ban"
	}
	return "kick"
}

// punishReason is the fixed audit reason tag attached to every penalty.
const punishReason = "guardd: security violation"

// Punisher issues kicks and bans against offending actors. It never retries:
// a failure (actor already left, insufficient hierarchy) is reported upward
// and the caller decides whether the rest of its enforcement proceeds.
type Punisher struct {
	gw     Gateway
	alerts *Alerter
	log    Logger
}

// NewPunisher creates a Punisher over the gateway.
func NewPunisher(gw Gateway, alerts *Alerter, log Logger) *Punisher {
	return &Punisher{gw: gw, alerts: alerts, log: log}
}

// Punish applies the penalty and emits exactly one alert for the outcome.
// The caller must have verified the actor is currently punishable.
func (p *Punisher) Punish(ctx context.Context, actorID string, kind PunishKind) error {
	var err error
	switch kind {
	case PunishBan:
		err = p.gw.Ban(ctx, actorID, punishReason)
	default:
		err = p.gw.Kick(ctx, actorID, punishReason)
	}

	if err != nil {
		p.alerts.Emit(ctx, AlertError, "punishment failed",
			fmt.Sprintf("could not %s actor %s: %v", kind, actorID, err))
		return fmt.Errorf("punishing actor %s with %s: %w", actorID, kind, err)
	}

	p.alerts.Emit(ctx, AlertError, "actor punished",
		fmt.Sprintf("actor %s removed with %s for a security violation", actorID, kind))
	return nil
}
