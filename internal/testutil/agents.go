package testutil

import (
	"context"
	"fmt"
	"sync"

	"guard-go/internal/guard"
)

// FakeAgent records role assignments made through one auxiliary session.
type FakeAgent struct {
	AgentName string
	Err       error

	mu          sync.Mutex
	Assignments []Assignment
	Closed      bool
}

// Assignment is one recorded AssignRole call.
type Assignment struct {
	MemberID string
	RoleID   string
}

var _ guard.Agent = (*FakeAgent)(nil)

func (a *FakeAgent) Name() string { return a.AgentName }

func (a *FakeAgent) AssignRole(_ context.Context, memberID, roleID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.Assignments = append(a.Assignments, Assignment{MemberID: memberID, RoleID: roleID})
	return nil
}

func (a *FakeAgent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Closed = true
	return nil
}

// FakeAgentPool hands out a fixed set of fake agents, or fails acquisition.
type FakeAgentPool struct {
	Agents     []*FakeAgent
	AcquireErr error
}

var _ guard.AgentPool = (*FakeAgentPool)(nil)

func (p *FakeAgentPool) Acquire(_ context.Context) ([]guard.Agent, error) {
	if p.AcquireErr != nil {
		return nil, p.AcquireErr
	}
	agents := make([]guard.Agent, len(p.Agents))
	for i, a := range p.Agents {
		agents[i] = a
	}
	return agents, nil
}

// NewFakeAgentPool creates a pool of n agents named "agent-1" through
// "agent-n".
func NewFakeAgentPool(n int) *FakeAgentPool {
	p := &FakeAgentPool{}
	for i := 0; i < n; i++ {
		p.Agents = append(p.Agents, &FakeAgent{AgentName: fmt.Sprintf("agent-%d", i+1)})
	}
	return p
}
