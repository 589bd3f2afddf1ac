// Package agent implements the research agent: one in-process actor per
// research id that owns a single AgentState, runs the research workflow in a
// supervised goroutine, and publishes every state it adopts to subscribers.
//
// All state transitions execute on the actor's mailbox goroutine. Slow work
// (GitHub and LLM calls) happens outside the mailbox and re-enters it to apply
// results, so a transition is never blocked behind a network call.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/knowyourdev/knowyourdev/internal/model"
	"github.com/knowyourdev/knowyourdev/internal/telemetry"
)

var (
	// ErrClosed is returned by operations on an agent that has been shut down.
	ErrClosed = errors.New("agent: closed")
	// ErrInvalidInput is returned when an operation's arguments are unusable.
	ErrInvalidInput = errors.New("agent: invalid input")
	// ErrNotRunning is returned by report generation outside the running state.
	ErrNotRunning = errors.New("agent: research is not running")
	// ErrBusy is returned when a report is requested while the workflow or a
	// previous report is still in flight.
	ErrBusy = errors.New("agent: research is busy")
)

// subscriberBuffer is the number of states a subscriber may fall behind
// before it is disconnected.
const subscriberBuffer = 64

// persistTimeout bounds each snapshot write.
const persistTimeout = 5 * time.Second

// Agent is the actor for one research id.
type Agent struct {
	id   string
	deps *Deps

	ops       chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	snapshot   atomic.Pointer[model.AgentState]
	lastActive atomic.Int64

	subsMu  sync.Mutex
	subs    map[uint64]chan model.AgentState
	nextSub uint64

	// Owned by the mailbox goroutine.
	cur            model.AgentState
	gen            uint64
	runCtx         context.Context
	cancelRun      context.CancelFunc
	workflowActive bool
	reporting      bool
}

// New starts an actor for id whose state begins at initial.
func New(id string, initial model.AgentState, deps *Deps) *Agent {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Agent{
		id:         id,
		deps:       deps.withDefaults(),
		ops:        make(chan func()),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		baseCtx:    ctx,
		baseCancel: cancel,
		subs:       make(map[uint64]chan model.AgentState),
		cur:        initial,
	}
	a.snapshot.Store(&initial)
	a.touch()
	go a.loop()
	return a
}

// ID returns the research id this agent serves.
func (a *Agent) ID() string { return a.id }

func (a *Agent) loop() {
	defer close(a.done)
	for {
		select {
		case op := <-a.ops:
			op()
		case <-a.quit:
			return
		}
	}
}

// do runs fn on the mailbox goroutine and waits for it to finish.
// fn must not call do.
func (a *Agent) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}
	select {
	case a.ops <- op:
	case <-a.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// State returns the most recently published state.
func (a *Agent) State() model.AgentState {
	return *a.snapshot.Load()
}

// LastActive reports when the agent last changed state or gained a subscriber.
func (a *Agent) LastActive() time.Time {
	return time.Unix(0, a.lastActive.Load())
}

func (a *Agent) touch() {
	a.lastActive.Store(a.deps.now().UnixNano())
}

func (a *Agent) logger() *slog.Logger {
	return a.deps.Logger.With("research_id", a.id)
}

// setState adopts next as the current state, publishes it and persists it.
// Runs on the mailbox goroutine.
func (a *Agent) setState(next model.AgentState) {
	if err := next.Validate(); err != nil {
		a.logger().Error("agent: rejected invalid state", "error", err)
		return
	}
	prev := a.cur.Status
	a.cur = next
	a.snapshot.Store(&next)
	a.touch()
	a.publish(next)
	a.persist(next)

	if prev != next.Status {
		a.logger().Info("agent: state transition",
			"from", string(prev),
			"to", string(next.Status),
			"github_username", next.GitHubUsername,
		)
	}
}

func (a *Agent) persist(s model.AgentState) {
	if a.deps.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := a.deps.Store.SaveAgentState(ctx, a.id, s); err != nil {
		a.logger().Warn("agent: persist state", "error", err)
	}
}

// logLine prefixes msg with the wall clock time.
func (a *Agent) logLine(msg string) string {
	return fmt.Sprintf("[%s] %s", a.deps.now().UTC().Format("15:04:05"), msg)
}

// Initialize arms the agent for a new research run and starts the workflow
// in the background. It returns once the running state has been published.
// Calling it on any state resets the run; an in-flight previous run is
// cancelled and its late mutations are dropped.
func (a *Agent) Initialize(ctx context.Context, prompt, githubUsername string) (model.AgentState, error) {
	username, err := model.NormalizeUsername(githubUsername)
	if err != nil {
		return model.AgentState{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	// Title generation calls a model, so it runs before entering the mailbox.
	title := a.generateTitle(ctx, prompt)

	var state model.AgentState
	err = a.do(ctx, func() {
		if a.cancelRun != nil {
			a.cancelRun()
		}
		a.gen++
		a.runCtx, a.cancelRun = context.WithCancel(a.baseCtx)
		a.reporting = false
		a.workflowActive = true

		state = model.NewRunning(
			username,
			prompt,
			title,
			a.deps.now(),
			a.logLine(fmt.Sprintf("Research initialized for %s", username)),
			fmt.Sprintf("# Research findings for %s", username),
		)
		a.setState(state)
		a.deps.count(a.baseCtx, func(m *telemetry.ResearchMetrics) counter { return m.Started })

		run := &Run{agent: a, gen: a.gen, ctx: a.runCtx, Username: username, Prompt: prompt}
		a.wg.Add(1)
		go a.research(run)
	})
	if err != nil {
		return model.AgentState{}, err
	}
	return state, nil
}

// Cancel aborts a running research. A cancellation note is appended and
// published before the agent returns to inactive. Cancel is a no-op in any
// other state.
func (a *Agent) Cancel(ctx context.Context) (model.AgentState, error) {
	var state model.AgentState
	err := a.do(ctx, func() {
		if !a.cur.IsRunning() {
			state = a.cur
			return
		}
		a.setState(a.cur.WithLog(a.logLine("Research cancelled by user")))
		if a.cancelRun != nil {
			a.cancelRun()
			a.cancelRun = nil
		}
		a.runCtx = nil
		a.workflowActive = false
		a.reporting = false
		a.setState(model.Inactive())
		a.deps.count(a.baseCtx, func(m *telemetry.ResearchMetrics) counter { return m.Cancelled })
		state = a.cur
	})
	return state, err
}

// AppendLog appends a line to the log of the current run. No-op unless running.
func (a *Agent) AppendLog(ctx context.Context, line string) error {
	return a.do(ctx, func() {
		if !a.cur.IsRunning() {
			a.logger().Debug("agent: dropped log append", "status", string(a.cur.Status))
			return
		}
		a.setState(a.cur.WithLog(a.logLine(line)))
	})
}

// AppendFindings appends a markdown block to the findings of the current run.
// No-op unless running.
func (a *Agent) AppendFindings(ctx context.Context, block string) error {
	return a.do(ctx, func() {
		if !a.cur.IsRunning() {
			a.logger().Debug("agent: dropped findings append", "status", string(a.cur.Status))
			return
		}
		a.setState(a.cur.WithFindings(block))
	})
}

// AddResearchStep records a named step and its details in the log.
// No-op unless running.
func (a *Agent) AddResearchStep(ctx context.Context, title, details string) error {
	return a.AppendLog(ctx, formatStep(title, details))
}

func formatStep(title, details string) string {
	if details == "" {
		return "Step: " + title
	}
	return fmt.Sprintf("Step: %s (%s)", title, details)
}

// mutate applies fn to the current state when gen is still the current run
// and the agent is running. Mutations from superseded or cancelled runs are
// dropped.
func (a *Agent) mutate(ctx context.Context, gen uint64, fn func(model.AgentState) model.AgentState) error {
	return a.do(ctx, func() {
		if gen != a.gen || !a.cur.IsRunning() {
			a.logger().Debug("agent: dropped late mutation", "run", gen, "current_run", a.gen, "status", string(a.cur.Status))
			return
		}
		a.setState(fn(a.cur))
	})
}

// Subscribe returns a channel that receives the current state followed by
// every state published afterwards, in order. A subscriber that falls more
// than subscriberBuffer states behind is disconnected: its channel is closed.
// The returned func unsubscribes and is safe to call more than once.
func (a *Agent) Subscribe() (<-chan model.AgentState, func()) {
	ch := make(chan model.AgentState, subscriberBuffer)
	var id uint64
	err := a.do(context.Background(), func() {
		a.subsMu.Lock()
		defer a.subsMu.Unlock()
		a.nextSub++
		id = a.nextSub
		a.subs[id] = ch
		ch <- a.cur
	})
	if err != nil {
		close(ch)
		return ch, func() {}
	}
	a.touch()
	return ch, func() { a.unsubscribe(id) }
}

func (a *Agent) unsubscribe(id uint64) {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	if ch, ok := a.subs[id]; ok {
		delete(a.subs, id)
		close(ch)
	}
}

// SubscriberCount returns the number of connected subscribers.
func (a *Agent) SubscriberCount() int {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	return len(a.subs)
}

func (a *Agent) publish(s model.AgentState) {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	for id, ch := range a.subs {
		select {
		case ch <- s:
		default:
			delete(a.subs, id)
			close(ch)
			a.logger().Warn("agent: disconnected slow subscriber", "subscriber", id)
		}
	}
}

// Close stops the mailbox, cancels any in-flight run, waits for background
// work to exit and disconnects all subscribers.
func (a *Agent) Close() {
	a.closeOnce.Do(func() {
		close(a.quit)
		<-a.done
		a.baseCancel()
		a.wg.Wait()

		a.subsMu.Lock()
		for id, ch := range a.subs {
			delete(a.subs, id)
			close(ch)
		}
		a.subsMu.Unlock()
	})
}
