// Package orchestrator exposes the core's single external entry point:
// RunSession(query, config) -> Session, wiring the Lead controller, the
// subagent pool, the shared tool registry, the event bus, and the citation
// processor together per spec §2's data-flow description.
package orchestrator

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/brightfield-labs/deepresearch/citation"
	"github.com/brightfield-labs/deepresearch/config"
	"github.com/brightfield-labs/deepresearch/events"
	"github.com/brightfield-labs/deepresearch/lead"
	"github.com/brightfield-labs/deepresearch/model"
	"github.com/brightfield-labs/deepresearch/provider/ratelimit"
	"github.com/brightfield-labs/deepresearch/session"
	"github.com/brightfield-labs/deepresearch/tools"
	"github.com/brightfield-labs/deepresearch/toolregistry"
)

// Orchestrator holds the long-lived collaborators shared across sessions:
// model clients, tool providers, the event bus, and config. Each call to
// RunSession allocates a fresh Session, Registry, and Lead Controller.
type Orchestrator struct {
	LeadModel     model.Client
	SubagentModel model.Client
	Search        toolregistry.SearchProvider
	Fetch         toolregistry.FetchProvider
	Bus           *events.Bus
	Config        config.Config
	Store         session.Store

	// Limiter rate-limits every Lead and Subagent model call. Left nil, a
	// default AIMD limiter is constructed lazily and shared across every
	// RunSession call on this Orchestrator, the way one provider API key's
	// budget is shared across concurrent sessions.
	Limiter     *ratelimit.Limiter
	limiterOnce sync.Once
}

// rateLimiter returns o.Limiter, constructing a default one on first use.
func (o *Orchestrator) rateLimiter() *ratelimit.Limiter {
	o.limiterOnce.Do(func() {
		if o.Limiter == nil {
			o.Limiter = ratelimit.New(ratelimit.Options{})
		}
	})
	return o.Limiter
}

// Outcome is what RunSession returns: the finished Session plus the
// top-level status the caller should present.
type Outcome struct {
	Session       *session.Session
	CitedOutput   session.CitedOutput
	FailedTasks   []string
	Err           error
}

// RunSession executes one full research session end to end: classify, plan,
// dispatch, reflect, synthesize, then cite. Cancelling ctx propagates down
// through the Lead into in-flight subagents and their tool calls.
func (o *Orchestrator) RunSession(ctx context.Context, query string) Outcome {
	sessID := uuid.NewString()
	sess := session.New(sessID, query)
	o.Bus.Publish(events.NewSessionStarted(sessID, query))

	ctx, cancel := context.WithTimeout(ctx, o.Config.SessionDeadline())
	defer cancel()

	reg := o.buildRegistry()
	limiter := o.rateLimiter()
	leadModel := limiter.Wrap(o.LeadModel)
	subagentModel := limiter.Wrap(o.SubagentModel)

	ctrl := &lead.Controller{
		Model:            leadModel,
		ModelID:          o.Config.LeadModel,
		Registry:         reg,
		Bus:              o.Bus,
		Config:           o.Config,
		SubagentModel:    subagentModel,
		SubagentModelID:  o.Config.SubagentModel,
	}

	draft, err := ctrl.Run(ctx, sess, o.Config.BudgetDefaults())
	if err != nil {
		sess.SetStatus(session.StatusFailed)
		o.Bus.Publish(events.NewError(sessID, "", tools.KindInvariantViolation, err.Error()))
		o.Bus.Publish(events.NewSessionFinished(sessID, string(session.StatusFailed)))
		return Outcome{Session: sess, Err: err}
	}
	sess.SetDraft(draft)

	o.Bus.Publish(events.NewSynthesisStarted(sessID))
	processor := &citation.Processor{Model: leadModel, ModelID: o.Config.LeadModel, Bus: o.Bus, Style: citation.Style(o.Config.CitationStyle)}
	cited := processor.Process(ctx, sess, draft, sess.Sources)
	sess.SetCitedOutput(cited)

	failed := sess.FailedTasks()
	status := session.StatusSucceeded
	if len(failed) > 0 {
		status = session.StatusPartial
	}
	sess.SetStatus(status)
	o.Bus.Publish(events.NewSessionFinished(sessID, string(status)))

	if o.Store != nil {
		_ = o.Store.Save(ctx, sess)
	}

	return Outcome{Session: sess, CitedOutput: cited, FailedTasks: failed}
}

// buildRegistry constructs a fresh Registry for one session, binding
// web_search/web_fetch to the orchestrator's providers and registering the
// control-flow tool specs (run_subagents, complete_task) so they appear in
// model-facing tool schemas; their actual dispatch is intercepted inline by
// the lead and subagent loops rather than routed through a Handler.
func (o *Orchestrator) buildRegistry() *toolregistry.Registry {
	reg := toolregistry.New()
	toolregistry.RegisterCoreTools(reg, o.Search, o.Fetch)

	reg.Register(toolregistry.RunSubagentsSpec(), func(_ context.Context, payload json.RawMessage) (any, error) {
		return string(payload), nil
	})
	reg.Register(toolregistry.CompleteTaskSpec(), func(_ context.Context, payload json.RawMessage) (any, error) {
		return string(payload), nil
	})
	return reg
}
