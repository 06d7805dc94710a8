package guard

import (
	"context"
	"fmt"

	"guard-go/internal/model"
)

// Scope names one of the five trust categories.
type Scope string

const (
	ScopeFull       Scope = "full"
	ScopeOwner      Scope = "owner"
	ScopeRole       Scope = "role"
	ScopeChannel    Scope = "channel"
	ScopeBanAndKick Scope = "banandkick"
)

// Scopes lists every valid scope, for CLI validation and display.
func Scopes() []Scope {
	return []Scope{ScopeFull, ScopeOwner, ScopeRole, ScopeChannel, ScopeBanAndKick}
}

// ParseScope converts operator input into a Scope.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeFull, ScopeOwner, ScopeRole, ScopeChannel, ScopeBanAndKick:
		return Scope(s), nil
	}
	return "", fmt.Errorf("unknown scope %q (want one of full, owner, role, channel, banandkick)", s)
}

// PrincipalKind tags a PrincipalRef as a member or a role.
type PrincipalKind int

const (
	PrincipalMember PrincipalKind = iota
	PrincipalRole
)

// PrincipalRef is a typed reference to an allowlist principal, resolved
// once at the command boundary and carried through the policy layer.
type PrincipalRef struct {
	Kind PrincipalKind
	ID   string
}

func (p PrincipalRef) String() string {
	if p.Kind == PrincipalRole {
		return "role:" + p.ID
	}
	return "member:" + p.ID
}

// Outcome reports the effect of an allowlist mutation. No-ops are distinct
// from successful mutations but are not errors.
type Outcome int

const (
	OutcomeAdded Outcome = iota
	OutcomeAlreadyPresent
	OutcomeRemoved
	OutcomeNotPresent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeAlreadyPresent:
		return "already present"
	case OutcomeRemoved:
		return "removed"
	case OutcomeNotPresent:
		return "not present"
	}
	return "unknown"
}

// TrustStore is the persistence surface the policy needs. Absent records
// are reported as (nil, nil), matching the keyed document contract.
type TrustStore interface {
	TrustRecord(ctx context.Context, guildID string) (*model.TrustRecord, error)
	CreateTrustRecord(ctx context.Context, rec *model.TrustRecord) error
	SaveTrustRecord(ctx context.Context, rec *model.TrustRecord) error
}

// Policy classifies actors against the guild's trust record. Statically
// configured super-owners are trusted for everything, as is anyone in the
// Full set. Mutations are whole-record read-modify-write; concurrent edits
// race under last-writer-wins, which is acceptable for advisory data.
type Policy struct {
	store       TrustStore
	guildID     string
	superOwners map[string]bool
	log         Logger
}

// NewPolicy creates a Policy for one guild. superOwners are principal IDs
// from static configuration that bypass every check.
func NewPolicy(store TrustStore, guildID string, superOwners []string, log Logger) *Policy {
	owners := make(map[string]bool, len(superOwners))
	for _, id := range superOwners {
		owners[id] = true
	}
	return &Policy{store: store, guildID: guildID, superOwners: owners, log: log}
}

// record loads the guild's trust record, creating an empty one on first use.
func (p *Policy) record(ctx context.Context) (*model.TrustRecord, error) {
	rec, err := p.store.TrustRecord(ctx, p.guildID)
	if err != nil {
		return nil, fmt.Errorf("loading trust record: %w", err)
	}
	if rec != nil {
		return rec, nil
	}

	rec = &model.TrustRecord{GuildID: p.guildID}
	if err := p.store.CreateTrustRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating trust record: %w", err)
	}
	p.log.Debug("trust record created", "guild", p.guildID)
	return rec, nil
}

// IsTrusted reports whether the actor is immune to actions in the given
// scope. A persistence failure is reported as untrusted: failing open would
// let an attacker ride out a database outage.
func (p *Policy) IsTrusted(ctx context.Context, actorID string, scope Scope) bool {
	return p.IsTrustedAny(ctx, actorID, scope)
}

// IsTrustedAny reports whether the actor is immune under any of the given
// scopes. Super-owners and Full members are always trusted.
func (p *Policy) IsTrustedAny(ctx context.Context, actorID string, scopes ...Scope) bool {
	if p.superOwners[actorID] {
		return true
	}

	rec, err := p.record(ctx)
	if err != nil {
		p.log.Error("trust check failed, treating actor as untrusted", "actor", actorID, "error", err)
		return false
	}

	if contains(rec.Full, actorID) {
		return true
	}
	for _, scope := range scopes {
		if contains(*scopeSet(rec, scope), actorID) {
			return true
		}
	}
	return false
}

// Add inserts the principal into the scope set. Adding an already-present
// principal is a no-op reported as OutcomeAlreadyPresent.
func (p *Policy) Add(ctx context.Context, scope Scope, ref PrincipalRef) (Outcome, error) {
	rec, err := p.record(ctx)
	if err != nil {
		return 0, err
	}

	set := scopeSet(rec, scope)
	if contains(*set, ref.ID) {
		return OutcomeAlreadyPresent, nil
	}

	*set = append(*set, ref.ID)
	if err := p.store.SaveTrustRecord(ctx, rec); err != nil {
		return 0, fmt.Errorf("saving trust record: %w", err)
	}
	p.log.Info("principal added to trust scope", "principal", ref.String(), "scope", string(scope))
	return OutcomeAdded, nil
}

// Remove deletes the principal from the scope set. Removing an absent
// principal is a no-op reported as OutcomeNotPresent.
func (p *Policy) Remove(ctx context.Context, scope Scope, ref PrincipalRef) (Outcome, error) {
	rec, err := p.record(ctx)
	if err != nil {
		return 0, err
	}

	set := scopeSet(rec, scope)
	if !contains(*set, ref.ID) {
		return OutcomeNotPresent, nil
	}

	kept := (*set)[:0]
	for _, id := range *set {
		if id != ref.ID {
			kept = append(kept, id)
		}
	}
	*set = kept
	if err := p.store.SaveTrustRecord(ctx, rec); err != nil {
		return 0, fmt.Errorf("saving trust record: %w", err)
	}
	p.log.Info("principal removed from trust scope", "principal", ref.String(), "scope", string(scope))
	return OutcomeRemoved, nil
}

// List returns all five scope sets for display.
func (p *Policy) List(ctx context.Context) (*model.TrustRecord, error) {
	return p.record(ctx)
}

func scopeSet(rec *model.TrustRecord, scope Scope) *[]string {
	switch scope {
	case ScopeFull:
		return &rec.Full
	case ScopeOwner:
		return &rec.Owner
	case ScopeRole:
		return &rec.Role
	case ScopeChannel:
		return &rec.Channel
	case ScopeBanAndKick:
		return &rec.BanAndKick
	}
	// ParseScope guards every external entry point; an unknown scope here
	// is a programming error.
	panic("unknown trust scope: " + string(scope))
}

func contains(set []string, id string) bool {
	for _, s := range set {
		if s == id {
			return true
		}
	}
	return false
}
