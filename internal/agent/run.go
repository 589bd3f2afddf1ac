package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/knowyourdev/knowyourdev/internal/llm"
	"github.com/knowyourdev/knowyourdev/internal/model"
	"github.com/knowyourdev/knowyourdev/internal/telemetry"
)

// Step is one stage of the research workflow. Steps run sequentially and each
// one's output is published before the next begins.
type Step struct {
	Name string
	Run  func(ctx context.Context, r *Run) error
}

// Run is the handle a workflow step uses to read inputs and record results.
// It is bound to one initialization; once that run is cancelled or
// superseded every mutation through it is dropped.
type Run struct {
	agent *Agent
	gen   uint64
	ctx   context.Context

	Username string
	Prompt   string

	// Collected by earlier steps for later ones.
	Pinned  []model.PinnedRepo
	Starred []model.Repo
}

// GitHub returns the data source.
func (r *Run) GitHub() GitHub { return r.agent.deps.GitHub }

// LLM returns the model client.
func (r *Run) LLM() llm.Client { return r.agent.deps.LLM }

// Active reports whether this run is still the agent's current running run.
func (r *Run) Active() bool {
	return r.ctx.Err() == nil && r.agent.State().IsRunning()
}

// AppendLog appends a timestamped progress line.
func (r *Run) AppendLog(line string) error {
	stamped := r.agent.logLine(line)
	return r.agent.mutate(r.ctx, r.gen, func(s model.AgentState) model.AgentState {
		return s.WithLog(stamped)
	})
}

// AppendFindings appends a markdown block to the findings narrative.
func (r *Run) AppendFindings(block string) error {
	return r.agent.mutate(r.ctx, r.gen, func(s model.AgentState) model.AgentState {
		return s.WithFindings(block)
	})
}

// AddStep records a named step in the log.
func (r *Run) AddStep(title, details string) error {
	return r.AppendLog(formatStep(title, details))
}

// research executes the workflow for run and, when every step succeeds,
// generates the report. A failing step is recorded in the log and stops the
// workflow with the agent left running.
func (a *Agent) research(run *Run) {
	defer a.wg.Done()
	defer a.endWorkflow(run.gen)

	ctx, span := a.deps.Tracer.Start(run.ctx, "agent.research")
	defer span.End()
	span.SetAttributes(
		attribute.String("research_id", a.id),
		attribute.String("github_username", run.Username),
	)

	for _, step := range a.deps.Steps {
		if !run.Active() {
			return
		}
		if err := a.runStep(ctx, run, step); err != nil {
			if !run.Active() {
				return
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "research step failed")
			a.logger().Warn("agent: research step failed", "step", step.Name, "error", err)
			a.deps.count(a.baseCtx, func(m *telemetry.ResearchMetrics) counter { return m.FailedSteps },
				attribute.String("step", step.Name))
			_ = run.AppendLog(fmt.Sprintf("Error during research: %v", err))
			return
		}
	}
	if !run.Active() {
		return
	}

	a.endWorkflow(run.gen)
	if err := a.completeResearch(ctx, run.gen); err != nil && !errors.Is(err, ErrClosed) {
		a.logger().Debug("agent: report not generated", "error", err)
	}
}

func (a *Agent) runStep(ctx context.Context, run *Run, step Step) (err error) {
	ctx, span := a.deps.Tracer.Start(ctx, "agent.step")
	defer span.End()
	span.SetAttributes(attribute.String("step", step.Name))

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("step %s panicked: %v", step.Name, p)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	return step.Run(ctx, run)
}

// endWorkflow marks the workflow of gen as finished so a report can be
// requested explicitly.
func (a *Agent) endWorkflow(gen uint64) {
	_ = a.do(context.Background(), func() {
		if gen == a.gen {
			a.workflowActive = false
		}
	})
}

// CompleteResearch synthesizes the report for the current run and blocks
// until the outcome is published. On failure the error is appended to the
// log and the agent stays running so the report can be retried.
func (a *Agent) CompleteResearch(ctx context.Context) error {
	var gen uint64
	if err := a.do(ctx, func() { gen = a.gen }); err != nil {
		return err
	}
	return a.completeResearch(ctx, gen)
}

// RetryReport starts report generation for a parked running agent in the
// background and returns the state published when it began.
func (a *Agent) RetryReport(ctx context.Context) (model.AgentState, error) {
	var (
		state model.AgentState
		gen   uint64
		err   error
	)
	if doErr := a.do(ctx, func() {
		if err = a.reportable(); err != nil {
			return
		}
		gen = a.gen
		_ = a.ensureRunCtx()
		state = a.cur
	}); doErr != nil {
		return model.AgentState{}, doErr
	}
	if err != nil {
		return state, err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.completeResearch(a.baseCtx, gen); err != nil && !errors.Is(err, ErrClosed) {
			a.logger().Debug("agent: report retry not generated", "error", err)
		}
	}()
	return state, nil
}

// reportable reports whether the current state accepts a report request.
// Runs on the mailbox goroutine.
func (a *Agent) reportable() error {
	switch {
	case !a.cur.IsRunning():
		return fmt.Errorf("%w: status is %s", ErrNotRunning, a.cur.Status)
	case a.workflowActive || a.reporting:
		return ErrBusy
	default:
		return nil
	}
}

// ensureRunCtx returns the current run context, creating one for an agent
// revived from a persisted running state. Runs on the mailbox goroutine.
func (a *Agent) ensureRunCtx() context.Context {
	if a.runCtx == nil {
		a.runCtx, a.cancelRun = context.WithCancel(a.baseCtx)
	}
	return a.runCtx
}

func (a *Agent) completeResearch(ctx context.Context, gen uint64) error {
	var (
		prompt, findings string
		runCtx           context.Context
		err              error
	)
	if doErr := a.do(ctx, func() {
		if gen != a.gen {
			err = fmt.Errorf("%w: run superseded", ErrNotRunning)
			return
		}
		if err = a.reportable(); err != nil {
			return
		}
		a.reporting = true
		runCtx = a.ensureRunCtx()
		prompt, findings = a.cur.Prompt, a.cur.Findings
		a.setState(a.cur.WithLog(a.logLine("Generating final report")))
	}); doErr != nil {
		return doErr
	}
	if err != nil {
		return err
	}

	// The report call follows the run, so a cancel aborts it.
	callCtx, stop := context.WithCancel(runCtx)
	defer stop()
	stopAfter := context.AfterFunc(ctx, stop)
	defer stopAfter()

	callCtx, span := a.deps.Tracer.Start(callCtx, "agent.report")
	report, genErr := a.deps.LLM.Generate(callCtx, reportRequest(prompt, findings))
	report = strings.TrimSpace(report)
	if genErr == nil && report == "" {
		genErr = llm.ErrEmptyResponse
	}
	if genErr != nil {
		span.RecordError(genErr)
		span.SetStatus(codes.Error, "report generation failed")
	}
	span.End()

	var outcome error
	if doErr := a.do(context.Background(), func() {
		if gen != a.gen {
			outcome = fmt.Errorf("%w: run superseded during report generation", ErrNotRunning)
			return
		}
		a.reporting = false
		if !a.cur.IsRunning() {
			outcome = fmt.Errorf("%w: run ended during report generation", ErrNotRunning)
			return
		}
		if genErr != nil {
			a.logger().Error("agent: report generation failed", "error", genErr)
			a.setState(a.cur.WithLog(a.logLine(fmt.Sprintf("Error generating report: %v", genErr))))
			outcome = genErr
			return
		}
		a.setState(a.cur.Completed(report))
		a.deps.count(a.baseCtx, func(m *telemetry.ResearchMetrics) counter { return m.Completed })
	}); doErr != nil {
		return doErr
	}
	return outcome
}

// generateTitle asks the small model for a short label. Any failure falls
// back to a title derived from the research id.
func (a *Agent) generateTitle(ctx context.Context, prompt string) string {
	fallback := "Research Agent #" + a.id
	title, err := a.deps.LLM.Generate(ctx, titleRequest(prompt))
	if err != nil {
		a.logger().Warn("agent: title generation failed", "error", err)
		return fallback
	}
	if title = cleanTitle(title); title == "" {
		return fallback
	}
	return title
}

// cleanTitle trims whitespace and one layer of surrounding quotes.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimPrefix(s, `'`)
	s = strings.TrimSuffix(s, `"`)
	s = strings.TrimSuffix(s, `'`)
	return strings.TrimSpace(s)
}
