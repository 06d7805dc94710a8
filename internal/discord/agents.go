package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"guard-go/internal/guard"
)

// HelperPool establishes auxiliary bot sessions from a set of helper tokens.
// Sessions are opened per Acquire call and torn down by the caller closing
// each agent; restoration is rare enough that persistent sessions are not
// worth their gateway heartbeat cost.
type HelperPool struct {
	tokens  []string
	guildID string
	log     guard.Logger
}

// NewHelperPool creates a pool over the configured helper tokens.
func NewHelperPool(tokens []string, guildID string, log guard.Logger) *HelperPool {
	if log == nil {
		log = &guard.NopLogger{}
	}
	return &HelperPool{tokens: tokens, guildID: guildID, log: log}
}

// Acquire opens a session per token. Tokens that fail to connect are skipped
// with a warning; if none connect the pool returns ErrNoAgents.
func (p *HelperPool) Acquire(ctx context.Context) ([]guard.Agent, error) {
	if len(p.tokens) == 0 {
		return nil, guard.ErrNoAgents
	}

	var agents []guard.Agent
	for i, token := range p.tokens {
		name := fmt.Sprintf("agent-%d", i+1)

		session, err := discordgo.New("Bot " + token)
		if err != nil {
			p.log.Warn("helper session setup failed", "agent", name, "error", err)
			continue
		}
		session.Identify.Intents = discordgo.IntentGuilds

		if err := session.Open(); err != nil {
			p.log.Warn("helper session connect failed", "agent", name, "error", err)
			continue
		}

		agents = append(agents, &helperAgent{
			name:    name,
			session: session,
			guildID: p.guildID,
		})
	}

	if len(agents) == 0 {
		return nil, fmt.Errorf("%w: all %d helper sessions failed", guard.ErrNoAgents, len(p.tokens))
	}
	return agents, nil
}

// helperAgent is one connected auxiliary session.
type helperAgent struct {
	name    string
	session *discordgo.Session
	guildID string
}

func (a *helperAgent) Name() string {
	return a.name
}

// AssignRole grants the role to the member through this agent's session.
func (a *helperAgent) AssignRole(ctx context.Context, memberID, roleID string) error {
	err := a.session.GuildMemberRoleAdd(a.guildID, memberID, roleID,
		discordgo.WithContext(ctx))
	if err != nil {
		return wrapErr(fmt.Errorf("assigning role %s to member %s: %w", roleID, memberID, err))
	}
	return nil
}

func (a *helperAgent) Close() error {
	return a.session.Close()
}

var _ guard.AgentPool = (*HelperPool)(nil)
