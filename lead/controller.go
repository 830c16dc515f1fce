// Package lead implements the outer research loop from spec §4.4: classify
// the query, plan a round, dispatch subagents via run_subagents, reflect on
// their results, and either plan another round or synthesize a Draft.
package lead

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brightfield-labs/deepresearch/budget"
	"github.com/brightfield-labs/deepresearch/config"
	"github.com/brightfield-labs/deepresearch/events"
	"github.com/brightfield-labs/deepresearch/model"
	"github.com/brightfield-labs/deepresearch/session"
	"github.com/brightfield-labs/deepresearch/subagent"
	"github.com/brightfield-labs/deepresearch/tools"
	"github.com/brightfield-labs/deepresearch/toolregistry"
)

// SystemPrompt is prefixed to every Lead turn.
const SystemPrompt = `You are the lead researcher coordinating a team of research subagents.
Classify the query as straightforward, depth_first, or breadth_first, then plan tasks for run_subagents.
Each round's plan replaces the prior one; previously gathered sources and findings persist across rounds.
After subagent results return, reflect: either call run_subagents again with a refined plan, or call complete_task with a synthesized, thorough report that weaves together all findings.
Call complete_task only once you are confident the report answers the query completely.`

// Controller drives one session's Lead loop.
type Controller struct {
	Model    model.Client
	ModelID  string
	Registry *toolregistry.Registry
	Bus      *events.Bus
	Config   config.Config

	SubagentModel model.Client
	SubagentModelID string
}

// classification is the JSON reply of the Lead's classify call, declaring
// the query_type. A failed call or an unparseable reply is treated as
// breadth_first, the most conservative default.
type classification struct {
	QueryType string `json:"query_type"`
	Rationale string `json:"rationale"`
}

// Run drives the Lead loop for one Session to completion, returning the
// Draft it synthesized. subagentCaps seeds each dispatched Runner's budget.
func (c *Controller) Run(ctx context.Context, sess *session.Session, subagentCaps budget.Defaults) (session.Draft, error) {
	tracker := budget.NewTracker(budget.Defaults{
		Light: c.Config.MaxLeadToolCallsPerRound, Medium: c.Config.MaxLeadToolCallsPerRound, Heavy: c.Config.MaxLeadToolCallsPerRound,
		Deadline: c.Config.SessionDeadline(),
	}, budget.HintHeavy)
	invoker := toolregistry.NewInvoker(c.Registry, tracker, tools.AvailableToLead)

	rounds := budget.NewRoundLimiter(c.Config.MaxRounds)
	sem := budget.NewSemaphore(c.Config.MaxConcurrent)

	qType, rationale := c.classify(ctx, sess.Query)
	c.Bus.Publish(events.NewQueryClassified(sess.ID, qType, false))

	messages := []model.Message{
		{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: SystemPrompt}}},
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: fmt.Sprintf(
			"Query: %s\nClassification: %s (%s)\nPlan your first round of subagent tasks.", sess.Query, qType, rationale,
		)}}},
	}

	toolDefs := toolDefinitions(c.Registry, tools.AvailableToLead)

	for {
		roundIdx, allowed := rounds.Advance()
		if !allowed {
			return c.forceSynthesis(ctx, messages)
		}

		leadToolCalls := 0
		var plan session.Plan
		var dispatched bool

		for !dispatched {
			if leadToolCalls >= c.Config.MaxLeadToolCallsPerRound {
				return c.forceSynthesis(ctx, messages)
			}

			resp, err := c.Model.Complete(ctx, model.Request{
				RunID: sess.ID, Model: c.ModelID, Messages: messages, Tools: toolDefs,
			})
			if err != nil {
				return session.Draft{}, tools.WrapError(tools.KindTransientExternal, err)
			}

			if len(resp.ToolCalls) == 0 {
				messages = append(messages, model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: resp.Text}}})
				messages = append(messages, model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{
					Text: "Call run_subagents with your task list to proceed.",
				}}})
				leadToolCalls++
				continue
			}

			assistantParts := make([]model.Part, 0, len(resp.ToolCalls)+1)
			if resp.Text != "" {
				assistantParts = append(assistantParts, model.TextPart{Text: resp.Text})
			}
			for _, call := range resp.ToolCalls {
				assistantParts = append(assistantParts, model.ToolUsePart{ID: call.ID, Name: call.Name, Input: call.Payload})
			}
			messages = append(messages, model.Message{Role: model.RoleAssistant, Parts: assistantParts})

			resultParts := make([]model.Part, 0, len(resp.ToolCalls))
			for _, call := range resp.ToolCalls {
				leadToolCalls++
				if call.Name == tools.RunSubagents {
					tasks, perr := parseTasks(call.Payload)
					if perr != nil {
						resultParts = append(resultParts, model.ToolResultPart{ToolUseID: call.ID, Content: perr.Error(), IsError: true})
						continue
					}
					if c.Config.MaxSubagents > 0 && len(tasks) > c.Config.MaxSubagents {
						tasks = tasks[:c.Config.MaxSubagents]
					}
					plan = session.Plan{QueryType: qType, Rationale: rationale, Tasks: tasks}
					c.Bus.Publish(events.NewPlanCreated(sess.ID, roundIdx, promptsOf(tasks)))

					results := c.dispatchSubagents(ctx, sess, plan, subagentCaps, sem)
					sess.AppendRound(session.Round{Index: roundIdx, Plan: plan, Results: results, Reflection: session.ReflectionContinue})
					c.Bus.Publish(events.NewRoundComplete(sess.ID, roundIdx))

					resultParts = append(resultParts, model.ToolResultPart{ToolUseID: call.ID, Content: summarizeResults(results)})
					dispatched = true
					continue
				}

				// Lead issued a direct tool call (e.g. web_search) instead of
				// planning. Execute and let it re-ask next turn.
				result := c.dispatchDirect(ctx, invoker, call)
				c.mergeSource(sess, result)
				if result.Err != nil {
					resultParts = append(resultParts, model.ToolResultPart{ToolUseID: call.ID, Content: result.Err.Error(), IsError: true})
				} else {
					resultParts = append(resultParts, model.ToolResultPart{ToolUseID: call.ID, Content: result.Value})
				}
			}
			messages = append(messages, model.Message{Role: model.RoleUser, Parts: resultParts})
		}

		// Reflect: ask whether to continue or synthesize.
		messages = append(messages, model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{
			Text: "Reflect on these results. Call run_subagents again for a follow-up round, or call complete_task with your final synthesized report.",
		}}})

		resp, err := c.Model.Complete(ctx, model.Request{RunID: sess.ID, Model: c.ModelID, Messages: messages, Tools: toolDefs})
		if err != nil {
			return session.Draft{}, tools.WrapError(tools.KindTransientExternal, err)
		}

		for _, call := range resp.ToolCalls {
			if call.Name == tools.CompleteTask {
				if report, ok := extractReport(call.Payload); ok {
					c.Bus.Publish(events.NewSynthesisComplete(sess.ID, len(report)))
					return session.Draft{Text: report}, nil
				}
			}
		}

		// Model wants another round; fold its text back in and loop.
		messages = append(messages, model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: resp.Text}}})
		if len(resp.ToolCalls) > 0 {
			parts := make([]model.Part, 0, len(resp.ToolCalls))
			for _, call := range resp.ToolCalls {
				parts = append(parts, model.ToolUsePart{ID: call.ID, Name: call.Name, Input: call.Payload})
			}
			messages[len(messages)-1].Parts = append(messages[len(messages)-1].Parts, parts...)
		}
	}
}

func (c *Controller) classify(ctx context.Context, query string) (queryType, rationale string) {
	resp, err := c.Model.Complete(ctx, model.Request{
		Model: c.ModelID,
		Messages: []model.Message{
			{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: "Classify the research query as exactly one of: straightforward, depth_first, breadth_first. Respond with JSON: {\"query_type\":...,\"rationale\":...}"}}},
			{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: query}}},
		},
	})
	if err != nil {
		return "breadth_first", "classification unavailable, defaulting conservatively"
	}
	var cl classification
	if jerr := json.Unmarshal([]byte(resp.Text), &cl); jerr == nil && cl.QueryType != "" {
		return cl.QueryType, cl.Rationale
	}
	return "breadth_first", resp.Text
}

func (c *Controller) forceSynthesis(ctx context.Context, messages []model.Message) (session.Draft, error) {
	messages = append(messages, model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{
		Text: "Round limit reached. Synthesize your final report now from everything gathered so far. Do not request more research.",
	}}})
	resp, err := c.Model.Complete(ctx, model.Request{
		Model: c.ModelID, Messages: messages, ToolChoice: model.ToolChoiceNone,
	})
	if err != nil {
		return session.Draft{}, tools.WrapError(tools.KindTransientExternal, err)
	}
	return session.Draft{Text: resp.Text}, nil
}

func (c *Controller) dispatchSubagents(ctx context.Context, sess *session.Session, plan session.Plan, caps budget.Defaults, sem *budget.Semaphore) []session.SubagentResult {
	results := make([]session.SubagentResult, len(plan.Tasks))
	done := make(chan struct{}, len(plan.Tasks))

	for i, task := range plan.Tasks {
		go func(i int, task session.TaskSpec) {
			defer func() { done <- struct{}{} }()
			if err := sem.Acquire(ctx); err != nil {
				results[i] = session.SubagentResult{ID: subagentID(sess.ID, i), Task: task.Prompt, Status: "cancelled"}
				return
			}
			defer sem.Release()

			id := subagentID(sess.ID, i)
			runner := &subagent.Runner{
				ID: id, Task: task,
				Model: c.SubagentModel, ModelID: c.SubagentModelID,
				Registry: c.Registry, Bus: c.Bus, Sources: sess.Sources,
				Caps:         caps,
				ToolDeadline: c.Config.ToolDeadline(),
				SourceCap:    c.Config.SourceCapPerSubagent,
			}
			r := runner.Run(ctx)
			results[i] = session.SubagentResult{
				ID: r.ID, Task: task.Prompt, Status: string(r.Status),
				FindingsText: r.FindingsText, Sources: r.Sources,
				ToolCallsMade: r.ToolCallsMade, TokensUsed: r.TokensUsed,
				DurationMS: r.Duration.Milliseconds(),
			}
		}(i, task)
	}
	for range plan.Tasks {
		<-done
	}
	return results
}

func (c *Controller) dispatchDirect(ctx context.Context, invoker *toolregistry.Invoker, call tools.Call) tools.Result {
	if d := c.Config.ToolDeadline(); d > 0 {
		callCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return invoker.Dispatch(callCtx, call)
	}
	return invoker.Dispatch(ctx, call)
}

func (c *Controller) mergeSource(sess *session.Session, result tools.Result) {
	if result.Err != nil {
		return
	}
	switch v := result.Value.(type) {
	case toolregistry.WebSearchResult:
		for _, hit := range v.Hits {
			sess.Sources.AddSearchHit("lead", hit.URL, hit.Title, hit.Snippet)
		}
	case toolregistry.WebFetchResult:
		sess.Sources.AddFetch("lead", v.URL, v.Title)
	}
}

func subagentID(sessionID string, i int) string {
	return fmt.Sprintf("%s-sub-%d", sessionID, i)
}

func parseTasks(payload json.RawMessage) ([]session.TaskSpec, error) {
	var v struct {
		Tasks []struct {
			Prompt     string `json:"prompt"`
			BudgetHint string `json:"budget_hint"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	if len(v.Tasks) == 0 {
		return nil, fmt.Errorf("run_subagents: at least one task required")
	}
	out := make([]session.TaskSpec, len(v.Tasks))
	for i, t := range v.Tasks {
		out[i] = session.TaskSpec{Prompt: t.Prompt, BudgetHint: budget.Hint(t.BudgetHint)}
	}
	return out, nil
}

func promptsOf(tasks []session.TaskSpec) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Prompt
	}
	return out
}

func extractReport(payload json.RawMessage) (string, bool) {
	var v struct {
		Report string `json:"report"`
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return "", false
	}
	return v.Report, true
}

func summarizeResults(results []session.SubagentResult) string {
	out := ""
	for _, r := range results {
		out += fmt.Sprintf("[%s] status=%s sources=%d\n%s\n\n", r.ID, r.Status, len(r.Sources), r.FindingsText)
	}
	return out
}

func toolDefinitions(reg *toolregistry.Registry, role tools.Availability) []model.ToolDefinition {
	specs := reg.Definitions(role)
	defs := make([]model.ToolDefinition, 0, len(specs))
	for _, s := range specs {
		defs = append(defs, model.ToolDefinition{Name: s.Name, Description: s.Description, InputSchema: s.InputSchema})
	}
	return defs
}
