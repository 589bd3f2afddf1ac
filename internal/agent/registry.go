package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/knowyourdev/knowyourdev/internal/model"
	"github.com/knowyourdev/knowyourdev/internal/storage"
)

// ErrUnknownAgent is returned by Snapshot when an id has neither a live actor
// nor a persisted state.
var ErrUnknownAgent = errors.New("agent: unknown research id")

// Registry maps research ids to their actors. Each id has at most one live
// actor; concurrent first lookups share a single creation.
type Registry struct {
	deps    *Deps
	idleTTL time.Duration

	mu     sync.Mutex
	agents map[string]*Agent
	closed bool

	group singleflight.Group

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewRegistry returns a registry sharing deps across its actors. When idleTTL
// is positive a background sweep evicts actors idle for longer than that.
func NewRegistry(deps *Deps, idleTTL time.Duration) *Registry {
	if deps == nil {
		deps = &Deps{}
	}
	r := &Registry{
		deps:    deps.withDefaults(),
		idleTTL: idleTTL,
		agents:  make(map[string]*Agent),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if idleTTL > 0 {
		go r.sweep()
	} else {
		close(r.done)
	}
	return r
}

// Get returns the actor for id, creating it on first use. A new actor starts
// from the persisted snapshot when one exists, otherwise inactive.
func (r *Registry) Get(ctx context.Context, id string) (*Agent, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty research id", ErrInvalidInput)
	}
	if a, ok := r.acquire(id); ok {
		return a, nil
	}

	ch := r.group.DoChan(id, func() (any, error) {
		if a, ok := r.acquire(id); ok {
			return a, nil
		}
		loadCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		initial, err := r.loadSnapshot(loadCtx, id)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return nil, ErrClosed
		}
		a := New(id, initial, r.deps)
		r.agents[id] = a
		if initial.Status != model.StatusInactive {
			r.deps.Logger.Info("agent: revived from snapshot", "research_id", id, "status", string(initial.Status))
		}
		return a, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Agent), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) loadSnapshot(ctx context.Context, id string) (model.AgentState, error) {
	if r.deps.Store == nil {
		return model.Inactive(), nil
	}
	s, err := r.deps.Store.GetAgentState(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Inactive(), nil
	}
	if err != nil {
		return model.AgentState{}, fmt.Errorf("agent: load snapshot: %w", err)
	}
	return s, nil
}

// acquire returns the live actor for id with its activity refreshed. The touch
// happens under r.mu so EvictIdle cannot close an actor between lookup and
// return.
func (r *Registry) acquire(id string) (*Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if ok {
		a.touch()
	}
	return a, ok
}

// Lookup returns the live actor for id without creating one.
func (r *Registry) Lookup(id string) (*Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	return a, ok
}

// Len returns the number of live actors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}

// Snapshot returns the current state for id from the live actor, or from the
// store when no actor is loaded. It never creates an actor.
func (r *Registry) Snapshot(ctx context.Context, id string) (model.AgentState, error) {
	if a, ok := r.Lookup(id); ok {
		return a.State(), nil
	}
	if r.deps.Store == nil {
		return model.AgentState{}, ErrUnknownAgent
	}
	s, err := r.deps.Store.GetAgentState(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.AgentState{}, ErrUnknownAgent
	}
	if err != nil {
		return model.AgentState{}, fmt.Errorf("agent: snapshot: %w", err)
	}
	return s, nil
}

// Initialize resolves the actor for id and starts a research run on it.
func (r *Registry) Initialize(ctx context.Context, id, prompt, githubUsername string) (model.AgentState, error) {
	a, err := r.Get(ctx, id)
	if err != nil {
		return model.AgentState{}, err
	}
	return a.Initialize(ctx, prompt, githubUsername)
}

func (r *Registry) sweep() {
	defer close(r.done)
	interval := r.idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			r.EvictIdle(r.deps.now())
		case <-r.quit:
			return
		}
	}
}

// EvictIdle closes and forgets actors that are not running, have no
// subscribers and have been idle for longer than the registry TTL. It
// returns the number of evicted actors.
func (r *Registry) EvictIdle(now time.Time) int {
	if r.idleTTL <= 0 {
		return 0
	}
	var victims []*Agent
	r.mu.Lock()
	for id, a := range r.agents {
		if a.State().IsRunning() || a.SubscriberCount() > 0 {
			continue
		}
		if now.Sub(a.LastActive()) < r.idleTTL {
			continue
		}
		delete(r.agents, id)
		victims = append(victims, a)
	}
	r.mu.Unlock()

	for _, a := range victims {
		a.Close()
		r.deps.Logger.Debug("agent: evicted idle actor", "research_id", a.ID())
	}
	return len(victims)
}

// Close stops the sweep and every live actor.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.quit)
		<-r.done

		r.mu.Lock()
		r.closed = true
		agents := r.agents
		r.agents = make(map[string]*Agent)
		r.mu.Unlock()

		var wg sync.WaitGroup
		for _, a := range agents {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a.Close()
			}()
		}
		wg.Wait()
	})
}
