package automation

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// MaxExecutionsPerEvent caps how many rules one event may fire.
const MaxExecutionsPerEvent = 3

const defaultGuardTTL = 10 * time.Minute

type GuardReason string

const (
	ReasonRecursive  GuardReason = "recursive"
	ReasonEventLimit GuardReason = "event_limit"
	ReasonReentry    GuardReason = "reentry"
)

// Execution identifies one rule firing for one event against one entity.
type Execution struct {
	EventID    string
	RuleID     int64
	EntityType string
	EntityID   string
}

func (e Execution) ruleKey() string {
	return e.EventID + ":" + strconv.FormatInt(e.RuleID, 10)
}

func (e Execution) activeKey() string {
	entityID := e.EntityID
	if entityID == "" {
		entityID = "none"
	}
	return fmt.Sprintf("%d:%s:%s", e.RuleID, e.EntityType, entityID)
}

// Decision is the outcome of ExecutionGuard.Begin.
type Decision struct {
	Allowed bool
	Reason  GuardReason
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason GuardReason) Decision { return Decision{Reason: reason} }

// ExecutionGuard bounds rule firings: no rule runs while it is already running for the
// same entity, an event fires at most MaxExecutionsPerEvent rules, and a rule fires at
// most once per event. Events without an id are only subject to the recursion check.
// Every allowed Begin must be paired with End.
type ExecutionGuard interface {
	Begin(ctx context.Context, exec Execution) (Decision, error)
	End(ctx context.Context, exec Execution)
}

type counter struct {
	n       int
	expires time.Time
}

// MemoryGuard is the single-process ExecutionGuard. Per-event history expires after ttl.
type MemoryGuard struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	events map[string]counter
	rules  map[string]time.Time
	active map[string]struct{}
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	return &MemoryGuard{
		ttl:    ttl,
		now:    time.Now,
		events: map[string]counter{},
		rules:  map[string]time.Time{},
		active: map[string]struct{}{},
	}
}

func (g *MemoryGuard) Begin(ctx context.Context, exec Execution) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)

	active := exec.activeKey()
	if _, running := g.active[active]; running {
		return deny(ReasonRecursive), nil
	}

	if exec.EventID != "" {
		if _, fired := g.rules[exec.ruleKey()]; fired {
			return deny(ReasonReentry), nil
		}
		if g.events[exec.EventID].n >= MaxExecutionsPerEvent {
			return deny(ReasonEventLimit), nil
		}

		expires := now.Add(g.ttl)
		c := g.events[exec.EventID]
		g.events[exec.EventID] = counter{n: c.n + 1, expires: expires}
		g.rules[exec.ruleKey()] = expires
	}

	g.active[active] = struct{}{}
	return allow(), nil
}

func (g *MemoryGuard) End(ctx context.Context, exec Execution) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, exec.activeKey())
}

func (g *MemoryGuard) prune(now time.Time) {
	for id, c := range g.events {
		if now.After(c.expires) {
			delete(g.events, id)
		}
	}
	for key, expires := range g.rules {
		if now.After(expires) {
			delete(g.rules, key)
		}
	}
}
