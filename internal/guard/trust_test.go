package guard_test

import (
	"context"
	"errors"
	"testing"

	"guard-go/internal/guard"
	"guard-go/internal/model"
	"guard-go/internal/testutil"
)

func newTestPolicy(t *testing.T, superOwners ...string) *guard.Policy {
	t.Helper()
	st := testutil.NewTestStore(t)
	return guard.NewPolicy(st, "guild-1", superOwners, guard.NewNopLogger())
}

func TestPolicy_AddRemove(t *testing.T) {
	ctx := context.Background()
	policy := newTestPolicy(t)
	ref := guard.PrincipalRef{Kind: guard.PrincipalMember, ID: "user-1"}

	t.Run("add", func(t *testing.T) {
		outcome, err := policy.Add(ctx, guard.ScopeRole, ref)
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if outcome != guard.OutcomeAdded {
			t.Errorf("got outcome %v, want OutcomeAdded", outcome)
		}
	})

	t.Run("add again is a no-op", func(t *testing.T) {
		outcome, err := policy.Add(ctx, guard.ScopeRole, ref)
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if outcome != guard.OutcomeAlreadyPresent {
			t.Errorf("got outcome %v, want OutcomeAlreadyPresent", outcome)
		}
	})

	t.Run("remove", func(t *testing.T) {
		outcome, err := policy.Remove(ctx, guard.ScopeRole, ref)
		if err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if outcome != guard.OutcomeRemoved {
			t.Errorf("got outcome %v, want OutcomeRemoved", outcome)
		}
	})

	t.Run("remove again is a no-op", func(t *testing.T) {
		outcome, err := policy.Remove(ctx, guard.ScopeRole, ref)
		if err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if outcome != guard.OutcomeNotPresent {
			t.Errorf("got outcome %v, want OutcomeNotPresent", outcome)
		}
	})
}

func TestPolicy_IsTrusted(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown actor is untrusted", func(t *testing.T) {
		policy := newTestPolicy(t)
		if policy.IsTrusted(ctx, "stranger", guard.ScopeRole) {
			t.Error("unknown actor reported trusted")
		}
	})

	t.Run("scope membership trusts only that scope", func(t *testing.T) {
		policy := newTestPolicy(t)
		ref := guard.PrincipalRef{Kind: guard.PrincipalMember, ID: "user-1"}
		if _, err := policy.Add(ctx, guard.ScopeChannel, ref); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		if !policy.IsTrusted(ctx, "user-1", guard.ScopeChannel) {
			t.Error("actor not trusted in their scope")
		}
		if policy.IsTrusted(ctx, "user-1", guard.ScopeBanAndKick) {
			t.Error("actor trusted outside their scope")
		}
	})

	t.Run("full scope grants immunity everywhere", func(t *testing.T) {
		policy := newTestPolicy(t)
		ref := guard.PrincipalRef{Kind: guard.PrincipalMember, ID: "user-1"}
		if _, err := policy.Add(ctx, guard.ScopeFull, ref); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		for _, scope := range guard.Scopes() {
			if !policy.IsTrusted(ctx, "user-1", scope) {
				t.Errorf("full-scope actor not trusted in scope %s", scope)
			}
		}
	})

	t.Run("super owner bypasses the store", func(t *testing.T) {
		policy := newTestPolicy(t, "owner-1")
		if !policy.IsTrusted(ctx, "owner-1", guard.ScopeBanAndKick) {
			t.Error("super owner reported untrusted")
		}
	})

	t.Run("any-of matches across scopes", func(t *testing.T) {
		policy := newTestPolicy(t)
		ref := guard.PrincipalRef{Kind: guard.PrincipalMember, ID: "user-1"}
		if _, err := policy.Add(ctx, guard.ScopeOwner, ref); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		if !policy.IsTrustedAny(ctx, "user-1", guard.ScopeRole, guard.ScopeOwner) {
			t.Error("actor not trusted under any-of check including their scope")
		}
	})
}

func TestPolicy_LazyRecordCreation(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestStore(t)
	policy := guard.NewPolicy(st, "guild-1", nil, guard.NewNopLogger())

	rec, err := st.TrustRecord(ctx, "guild-1")
	if err != nil {
		t.Fatalf("TrustRecord failed: %v", err)
	}
	if rec != nil {
		t.Fatal("record exists before first policy use")
	}

	if _, err := policy.List(ctx); err != nil {
		t.Fatalf("List failed: %v", err)
	}

	rec, err = st.TrustRecord(ctx, "guild-1")
	if err != nil {
		t.Fatalf("TrustRecord failed: %v", err)
	}
	if rec == nil {
		t.Fatal("record not created on first policy use")
	}
}

// failingTrustStore errors on every call.
type failingTrustStore struct{}

func (failingTrustStore) TrustRecord(context.Context, string) (*model.TrustRecord, error) {
	return nil, errors.New("database gone")
}
func (failingTrustStore) CreateTrustRecord(context.Context, *model.TrustRecord) error {
	return errors.New("database gone")
}
func (failingTrustStore) SaveTrustRecord(context.Context, *model.TrustRecord) error {
	return errors.New("database gone")
}

func TestPolicy_FailsClosed(t *testing.T) {
	policy := guard.NewPolicy(failingTrustStore{}, "guild-1", nil, guard.NewNopLogger())

	if policy.IsTrusted(context.Background(), "user-1", guard.ScopeFull) {
		t.Error("store failure reported actor as trusted")
	}
}

func TestParseScope(t *testing.T) {
	for _, scope := range guard.Scopes() {
		got, err := guard.ParseScope(string(scope))
		if err != nil {
			t.Errorf("ParseScope(%q) failed: %v", scope, err)
		}
		if got != scope {
			t.Errorf("ParseScope(%q) = %q", scope, got)
		}
	}

	if _, err := guard.ParseScope("everything"); err == nil {
		t.Error("ParseScope accepted an unknown scope")
	}
}
