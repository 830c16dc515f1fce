// Package subagent implements the OODA loop described in spec §4.3: given
// one TaskSpec, a Runner drives observe->orient->decide->act->record turns
// against a ChatModel until the model emits complete_task, the budget is
// exhausted, the deadline passes, or the Lead cancels it.
package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brightfield-labs/deepresearch/budget"
	"github.com/brightfield-labs/deepresearch/events"
	"github.com/brightfield-labs/deepresearch/model"
	"github.com/brightfield-labs/deepresearch/session"
	"github.com/brightfield-labs/deepresearch/sourcetable"
	"github.com/brightfield-labs/deepresearch/tools"
	"github.com/brightfield-labs/deepresearch/toolregistry"
)

// Status mirrors the terminal states in spec §4.3.
type Status string

const (
	StatusPending         Status = "pending"
	StatusRunning         Status = "running"
	StatusFinalizing      Status = "finalizing"
	StatusOK              Status = "ok"
	StatusBudgetExhausted Status = "budget_exhausted"
	StatusTimeout         Status = "timeout"
	StatusError           Status = "error"
	StatusCancelled       Status = "cancelled"
)

// SystemPrompt is the instruction template prefixed to every subagent run.
// It names the minimum-effort floor explicitly so the model can set
// NoSearchNeeded deliberately rather than by omission.
const SystemPrompt = `You are a research subagent. Investigate your assigned task using web_search and web_fetch, then call complete_task with your findings.
You must make at least one web_search call before calling complete_task, unless the task is trivially answerable without searching, in which case begin your first message with "NO_SEARCH_NEEDED:" followed by your reasoning.
Never repeat an identical web_search query; rephrase instead.
When you have enough evidence, call complete_task with a thorough report of your findings, citing source URLs inline as plain text.`

// Runner executes one Subagent's OODA loop to completion.
type Runner struct {
	ID   string
	Task session.TaskSpec

	Model    model.Client
	ModelID  string
	Registry *toolregistry.Registry
	Bus      *events.Bus
	Sources  *sourcetable.Table

	Caps budget.Defaults

	// ToolDeadline bounds each individual tool call's wall-clock time. Zero
	// means no per-call deadline beyond the run's own context.
	ToolDeadline time.Duration

	// SourceCap bounds how many distinct URLs this subagent will accumulate
	// into its own result, independent of the run's tool-call budget.
	SourceCap int

	// MaxTurns bounds the number of LLM turns even if the model never emits
	// complete_task, as a final backstop beyond budget/deadline checks.
	MaxTurns int
}

// Result is the outcome of Run, convertible to a session.SubagentResult.
type Result struct {
	ID            string
	Status        Status
	FindingsText  string
	Sources       []string
	ToolCallsMade int
	TokensUsed    int
	Duration      time.Duration
	Err           error
}

// Run drives the OODA loop until termination. ctx cancellation (from the
// Lead, or a session-wide deadline) maps to StatusCancelled.
func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()
	if r.MaxTurns <= 0 {
		r.MaxTurns = 40
	}

	tracker := budget.NewTracker(r.Caps, r.Task.BudgetHint)
	invoker := toolregistry.NewInvoker(r.Registry, tracker, tools.AvailableToSubagent)
	transcript := session.NewTranscript()
	defer transcript.Close()

	r.Bus.Publish(events.NewSubagentSpawned("", r.ID, 0, r.Task.Prompt))

	messages := []model.Message{
		{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: SystemPrompt}}},
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: r.Task.Prompt}}},
	}
	transcript.Append(session.TranscriptEntry{Role: "system", Content: SystemPrompt, At: start})
	transcript.Append(session.TranscriptEntry{Role: "user", Content: r.Task.Prompt, At: start})

	var (
		noSearchNeeded bool
		findings       string
		gatheredURLs   []string
		seenURLs       = map[string]struct{}{}
		status         = StatusRunning
		turnErr        error
	)

	toolDefs := toolDefinitions(r.Registry, tools.AvailableToSubagent)

turnLoop:
	for turn := 0; turn < r.MaxTurns; turn++ {
		if bs := tracker.Check(ctx); bs == budget.Cancelled {
			status = StatusCancelled
			break
		}

		resp, err := r.Model.Complete(ctx, model.Request{
			RunID:    r.ID,
			Model:    r.ModelID,
			Messages: messages,
			Tools:    toolDefs,
		})
		if err != nil {
			status = StatusError
			if ctx.Err() != nil {
				status = StatusCancelled
			}
			turnErr = err
			break
		}
		tracker.RecordTokens(resp.Usage.TotalTokens)

		if turn == 0 && strings.HasPrefix(strings.TrimSpace(resp.Text), "NO_SEARCH_NEEDED:") {
			noSearchNeeded = true
		}

		if len(resp.ToolCalls) == 0 {
			// Model produced plain text with no tool call; fold it into the
			// transcript and nudge it to act or complete explicitly.
			messages = append(messages, model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: resp.Text}}})
			transcript.Append(session.TranscriptEntry{Role: "assistant", Content: resp.Text, At: time.Now()})
			messages = append(messages, model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{
				Text: "Continue investigating with a tool call, or call complete_task to finish.",
			}}})
			continue
		}

		assistantParts := make([]model.Part, 0, len(resp.ToolCalls)+1)
		if resp.Text != "" {
			assistantParts = append(assistantParts, model.TextPart{Text: resp.Text})
		}
		for _, c := range resp.ToolCalls {
			assistantParts = append(assistantParts, model.ToolUsePart{ID: c.ID, Name: c.Name, Input: c.Payload})
		}
		messages = append(messages, model.Message{Role: model.RoleAssistant, Parts: assistantParts})

		var done bool
		var grp errgroup.Group
		resultParts := make([]model.Part, len(resp.ToolCalls))

		for i, call := range resp.ToolCalls {
			if call.Name == tools.CompleteTask {
				report, ok := extractReport(call.Payload)
				if ok && !noSearchNeeded && !tracker.HasSearched() {
					resultParts[i] = model.ToolResultPart{
						ToolUseID: call.ID,
						Content:   "complete_task rejected: call web_search at least once first, or declare NO_SEARCH_NEEDED.",
						IsError:   true,
					}
					transcript.Append(session.TranscriptEntry{Role: "tool", ToolCallName: string(call.Name), ToolResult: "rejected: no search performed", IsError: true, At: time.Now()})
					continue
				}
				findings = report
				done = true
				resultParts[i] = model.ToolResultPart{ToolUseID: call.ID, Content: "task complete"}
				continue
			}

			if call.Name == tools.WebSearch {
				if q, ok := searchQuery(call.Payload); ok && !tracker.AdmitQuery(q) {
					resultParts[i] = model.ToolResultPart{ToolUseID: call.ID, Content: "duplicate query — rephrase", IsError: true}
					r.Bus.Publish(events.NewToolCallFinished("", r.ID, call.ID, string(call.Name), false, "duplicate_query"))
					continue
				}
			}

			i, call := i, call
			grp.Go(func() error {
				resultParts[i] = r.dispatch(ctx, invoker, transcript, call)
				return nil
			})
		}
		_ = grp.Wait()

		messages = append(messages, model.Message{Role: model.RoleUser, Parts: resultParts})

		for _, p := range resultParts {
			if trp, ok := p.(model.ToolResultPart); ok {
				if url, srcs, ok := urlsFromResult(trp); ok {
					for _, u := range srcs {
						if r.SourceCap > 0 && len(gatheredURLs) >= r.SourceCap {
							break
						}
						if _, dup := seenURLs[u]; !dup {
							seenURLs[u] = struct{}{}
							gatheredURLs = append(gatheredURLs, u)
						}
					}
					_ = url
				}
			}
		}

		if done {
			status = StatusOK
			break turnLoop
		}

		switch tracker.Check(ctx) {
		case budget.ToolCallsExhausted, budget.TokensExhausted:
			status = StatusBudgetExhausted
			findings = finalizeNow(ctx, r.Model, r.ModelID, messages, &status)
			break turnLoop
		case budget.DeadlineExceeded:
			status = StatusTimeout
			findings = finalizeNow(ctx, r.Model, r.ModelID, messages, &status)
			break turnLoop
		case budget.Cancelled:
			status = StatusCancelled
			break turnLoop
		}
	}

	if status == StatusRunning {
		// Exhausted MaxTurns without an explicit terminal condition.
		status = StatusBudgetExhausted
	}

	r.Bus.Publish(events.NewSubagentFinished("", r.ID, 0, string(status), len(gatheredURLs)))

	return Result{
		ID:            r.ID,
		Status:        status,
		FindingsText:  findings,
		Sources:       gatheredURLs,
		ToolCallsMade: tracker.ToolCallsMade(),
		TokensUsed:    tracker.TokensUsed(),
		Duration:      time.Since(start),
		Err:           turnErr,
	}
}

func (r *Runner) dispatch(ctx context.Context, invoker *toolregistry.Invoker, transcript *session.Transcript, call tools.Call) model.Part {
	r.Bus.Publish(events.NewToolCallStarted("", r.ID, call.ID, string(call.Name)))

	callCtx := ctx
	if r.ToolDeadline > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.ToolDeadline)
		defer cancel()
	}
	result := invoker.Dispatch(callCtx, call)
	ok := result.Err == nil
	errKind := ""
	if !ok {
		errKind = result.Err.Kind
	}
	r.Bus.Publish(events.NewToolCallFinished("", r.ID, call.ID, string(call.Name), ok, errKind))

	r.mergeSources(call, result)

	if !ok {
		transcript.Append(session.TranscriptEntry{Role: "tool", ToolCallName: string(call.Name), ToolCallArgs: string(call.Payload), ToolResult: result.Err.Error(), IsError: true, At: time.Now()})
		return model.ToolResultPart{ToolUseID: call.ID, Content: structuredToolError(result), IsError: true}
	}
	b, _ := json.Marshal(result.Value)
	transcript.Append(session.TranscriptEntry{Role: "tool", ToolCallName: string(call.Name), ToolCallArgs: string(call.Payload), ToolResult: string(b), At: time.Now()})
	return model.ToolResultPart{ToolUseID: call.ID, Content: result.Value}
}

func (r *Runner) mergeSources(call tools.Call, result tools.Result) {
	if result.Err != nil {
		return
	}
	switch v := result.Value.(type) {
	case toolregistry.WebSearchResult:
		for _, hit := range v.Hits {
			r.Sources.AddSearchHit(r.ID, hit.URL, hit.Title, hit.Snippet)
		}
	case toolregistry.WebFetchResult:
		r.Sources.AddFetch(r.ID, v.URL, v.Title)
	}
}

func structuredToolError(result tools.Result) map[string]any {
	return map[string]any{"error_kind": result.Err.Kind, "message": result.Err.Message}
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

func searchQuery(payload json.RawMessage) (string, bool) {
	var v struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return "", false
	}
	return v.Query, true
}

func urlsFromResult(p model.ToolResultPart) (string, []string, bool) {
	switch v := p.Content.(type) {
	case toolregistry.WebSearchResult:
		urls := make([]string, 0, len(v.Hits))
		for _, h := range v.Hits {
			urls = append(urls, sourcetable.Normalize(h.URL))
		}
		return "", urls, true
	case toolregistry.WebFetchResult:
		return "", []string{sourcetable.Normalize(v.URL)}, true
	default:
		return "", nil, false
	}
}

// finalizeNow implements the budget-exhausted finalize-now protocol from
// spec §4.2: inject a synthetic directive, force a complete_task-only turn,
// and fall back to accumulated assistant text if the model still ignores it.
func finalizeNow(ctx context.Context, client model.Client, modelID string, messages []model.Message, status *Status) string {
	messages = append(messages, model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{
		Text: "Budget exhausted — finalize now. Call complete_task with your best findings so far.",
	}}})

	for attempt := 0; attempt < 2; attempt++ {
		resp, err := client.Complete(ctx, model.Request{
			Model:      modelID,
			Messages:   messages,
			ToolChoice: model.ToolChoiceAny,
			Tools: []model.ToolDefinition{{
				Name:        tools.CompleteTask,
				Description: "Terminate with your best findings.",
				InputSchema: tools.Schema(map[string]any{"report": map[string]any{"type": "string"}}, "report"),
			}},
		})
		if err != nil {
			break
		}
		for _, c := range resp.ToolCalls {
			if c.Name == tools.CompleteTask {
				if report, ok := extractReport(c.Payload); ok {
					return report
				}
			}
		}
		if resp.Text != "" {
			messages = append(messages, model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: resp.Text}}})
			return resp.Text
		}
	}
	var accumulated []string
	for _, m := range messages {
		if m.Role != model.RoleAssistant {
			continue
		}
		for _, p := range m.Parts {
			if tp, ok := p.(model.TextPart); ok && strings.TrimSpace(tp.Text) != "" {
				accumulated = append(accumulated, tp.Text)
			}
		}
	}
	if len(accumulated) > 0 {
		return strings.Join(accumulated, "\n\n")
	}
	return fmt.Sprintf("no findings recorded before %s", *status)
}

func toolDefinitions(reg *toolregistry.Registry, role tools.Availability) []model.ToolDefinition {
	specs := reg.Definitions(role)
	defs := make([]model.ToolDefinition, 0, len(specs))
	for _, s := range specs {
		defs = append(defs, model.ToolDefinition{Name: s.Name, Description: s.Description, InputSchema: s.InputSchema})
	}
	return defs
}
