package subagent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightfield-labs/deepresearch/budget"
	"github.com/brightfield-labs/deepresearch/events"
	"github.com/brightfield-labs/deepresearch/model"
	"github.com/brightfield-labs/deepresearch/session"
	"github.com/brightfield-labs/deepresearch/sourcetable"
	"github.com/brightfield-labs/deepresearch/tools"
	"github.com/brightfield-labs/deepresearch/toolregistry"
)

// scriptedModel replays a fixed sequence of responses, one per Complete
// call, so a turn loop's exact decision sequence is deterministic in tests.
type scriptedModel struct {
	responses []*model.Response
	calls     int
}

func (m *scriptedModel) Complete(_ context.Context, _ model.Request) (*model.Response, error) {
	if m.calls >= len(m.responses) {
		return &model.Response{Text: "no findings"}, nil
	}
	r := m.responses[m.calls]
	m.calls++
	return r, nil
}

func (m *scriptedModel) Stream(context.Context, model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

type fakeSearch struct{ hits []toolregistry.SearchHit }

func (f *fakeSearch) Search(_ context.Context, _ string, _ int) ([]toolregistry.SearchHit, error) {
	return f.hits, nil
}

type fakeFetch struct{ res toolregistry.FetchResult }

func (f *fakeFetch) Fetch(_ context.Context, _ string) (toolregistry.FetchResult, error) {
	return f.res, nil
}

func newTestRegistry(search toolregistry.SearchProvider, fetch toolregistry.FetchProvider) *toolregistry.Registry {
	reg := toolregistry.New()
	toolregistry.RegisterCoreTools(reg, search, fetch)
	reg.Register(tools.Spec{
		Name: tools.CompleteTask, Availability: tools.AvailableToSubagent | tools.AvailableToLead,
		InputSchema: tools.Schema(map[string]any{"report": map[string]any{"type": "string"}}, "report"),
	}, func(_ context.Context, payload json.RawMessage) (any, error) { return string(payload), nil })
	return reg
}

func toolCallResponse(text string, calls ...tools.Call) *model.Response {
	return &model.Response{Text: text, ToolCalls: calls}
}

func TestRunnerTrivialFactualFlow(t *testing.T) {
	reg := newTestRegistry(
		&fakeSearch{hits: []toolregistry.SearchHit{{URL: "https://example.com/paris", Title: "Paris"}}},
		&fakeFetch{},
	)
	m := &scriptedModel{responses: []*model.Response{
		toolCallResponse("", tools.Call{ID: "1", Name: tools.WebSearch, Payload: json.RawMessage(`{"query":"capital of France"}`)}),
		toolCallResponse("", tools.Call{ID: "2", Name: tools.CompleteTask, Payload: json.RawMessage(`{"report":"Paris is the capital of France."}`)}),
	}}

	runner := &Runner{
		ID:       "sub-1",
		Task:     session.TaskSpec{Prompt: "What is the capital of France?", BudgetHint: budget.HintLight},
		Model:    m,
		ModelID:  "test-model",
		Registry: reg,
		Bus:      events.New(),
		Sources:  sourcetable.New(),
		Caps:     budget.Defaults{Light: 5, Medium: 10, Heavy: 15, Deadline: time.Minute},
	}

	result := runner.Run(context.Background())
	assert.Equal(t, StatusOK, result.Status)
	assert.Contains(t, result.FindingsText, "Paris")
	assert.Equal(t, 1, result.ToolCallsMade)
	assert.Contains(t, result.Sources, "https://example.com/paris")
}

func TestRunnerRejectsCompleteTaskWithoutSearch(t *testing.T) {
	reg := newTestRegistry(&fakeSearch{}, &fakeFetch{})
	m := &scriptedModel{responses: []*model.Response{
		toolCallResponse("", tools.Call{ID: "1", Name: tools.CompleteTask, Payload: json.RawMessage(`{"report":"premature"}`)}),
		toolCallResponse("", tools.Call{ID: "2", Name: tools.WebSearch, Payload: json.RawMessage(`{"query":"x"}`)}),
		toolCallResponse("", tools.Call{ID: "3", Name: tools.CompleteTask, Payload: json.RawMessage(`{"report":"after search"}`)}),
	}}

	runner := &Runner{
		ID: "sub-1", Task: session.TaskSpec{Prompt: "research x"},
		Model: m, ModelID: "test-model", Registry: reg, Bus: events.New(), Sources: sourcetable.New(),
		Caps: budget.Defaults{Light: 5, Medium: 10, Heavy: 15, Deadline: time.Minute},
	}

	result := runner.Run(context.Background())
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, "after search", result.FindingsText)
}

func TestRunnerNoSearchNeededBypassesFloor(t *testing.T) {
	reg := newTestRegistry(&fakeSearch{}, &fakeFetch{})
	m := &scriptedModel{responses: []*model.Response{
		toolCallResponse("NO_SEARCH_NEEDED: trivial arithmetic", tools.Call{ID: "1", Name: tools.CompleteTask, Payload: json.RawMessage(`{"report":"4"}`)}),
	}}

	runner := &Runner{
		ID: "sub-1", Task: session.TaskSpec{Prompt: "what is 2+2"},
		Model: m, ModelID: "test-model", Registry: reg, Bus: events.New(), Sources: sourcetable.New(),
		Caps: budget.Defaults{Light: 5, Medium: 10, Heavy: 15, Deadline: time.Minute},
	}

	result := runner.Run(context.Background())
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, "4", result.FindingsText)
}

func TestRunnerBudgetExhaustionFinalizes(t *testing.T) {
	reg := newTestRegistry(&fakeSearch{hits: []toolregistry.SearchHit{{URL: "https://example.com/a"}}}, &fakeFetch{})
	m := &scriptedModel{responses: []*model.Response{
		toolCallResponse("", tools.Call{ID: "1", Name: tools.WebSearch, Payload: json.RawMessage(`{"query":"a"}`)}),
		toolCallResponse("", tools.Call{ID: "2", Name: tools.WebSearch, Payload: json.RawMessage(`{"query":"b"}`)}),
		// finalizeNow's forced turn:
		toolCallResponse("", tools.Call{ID: "3", Name: tools.CompleteTask, Payload: json.RawMessage(`{"report":"best effort findings"}`)}),
	}}

	runner := &Runner{
		ID: "sub-1", Task: session.TaskSpec{Prompt: "hard query", BudgetHint: budget.HintLight},
		Model: m, ModelID: "test-model", Registry: reg, Bus: events.New(), Sources: sourcetable.New(),
		Caps: budget.Defaults{Light: 2, Medium: 2, Heavy: 2, Deadline: time.Minute},
	}

	result := runner.Run(context.Background())
	assert.Equal(t, StatusBudgetExhausted, result.Status)
	assert.Equal(t, "best effort findings", result.FindingsText)
	assert.LessOrEqual(t, result.ToolCallsMade, runner.Caps.Light)
}

func TestRunnerDuplicateQueryRejectedWithoutBudget(t *testing.T) {
	reg := newTestRegistry(&fakeSearch{hits: []toolregistry.SearchHit{{URL: "https://example.com/a"}}}, &fakeFetch{})
	m := &scriptedModel{responses: []*model.Response{
		toolCallResponse("", tools.Call{ID: "1", Name: tools.WebSearch, Payload: json.RawMessage(`{"query":"same query"}`)}),
		toolCallResponse("", tools.Call{ID: "2", Name: tools.WebSearch, Payload: json.RawMessage(`{"query":"same query"}`)}),
		toolCallResponse("", tools.Call{ID: "3", Name: tools.CompleteTask, Payload: json.RawMessage(`{"report":"done"}`)}),
	}}

	runner := &Runner{
		ID: "sub-1", Task: session.TaskSpec{Prompt: "q"},
		Model: m, ModelID: "test-model", Registry: reg, Bus: events.New(), Sources: sourcetable.New(),
		Caps: budget.Defaults{Light: 10, Medium: 10, Heavy: 10, Deadline: time.Minute},
	}

	result := runner.Run(context.Background())
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, 1, result.ToolCallsMade, "the duplicate query must not consume tool-call budget")
}

func TestRunnerSourceCapLimitsAccumulation(t *testing.T) {
	reg := newTestRegistry(&fakeSearch{hits: []toolregistry.SearchHit{
		{URL: "https://example.com/a"}, {URL: "https://example.com/b"}, {URL: "https://example.com/c"},
	}}, &fakeFetch{})
	m := &scriptedModel{responses: []*model.Response{
		toolCallResponse("", tools.Call{ID: "1", Name: tools.WebSearch, Payload: json.RawMessage(`{"query":"q"}`)}),
		toolCallResponse("", tools.Call{ID: "2", Name: tools.CompleteTask, Payload: json.RawMessage(`{"report":"done"}`)}),
	}}

	runner := &Runner{
		ID: "sub-1", Task: session.TaskSpec{Prompt: "q"},
		Model: m, ModelID: "test-model", Registry: reg, Bus: events.New(), Sources: sourcetable.New(),
		Caps: budget.Defaults{Light: 10, Medium: 10, Heavy: 10, Deadline: time.Minute},
		SourceCap: 2,
	}

	result := runner.Run(context.Background())
	require.Equal(t, StatusOK, result.Status)
	assert.Len(t, result.Sources, 2)
}
