package lead

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightfield-labs/deepresearch/budget"
	"github.com/brightfield-labs/deepresearch/config"
	"github.com/brightfield-labs/deepresearch/events"
	"github.com/brightfield-labs/deepresearch/model"
	"github.com/brightfield-labs/deepresearch/session"
	"github.com/brightfield-labs/deepresearch/tools"
	"github.com/brightfield-labs/deepresearch/toolregistry"
)

type scriptedModel struct {
	mu        sync.Mutex
	responses []*model.Response
	calls     int
}

func (m *scriptedModel) Complete(_ context.Context, _ model.Request) (*model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls >= len(m.responses) {
		return &model.Response{Text: "{}"}, nil
	}
	r := m.responses[m.calls]
	m.calls++
	return r, nil
}

func (m *scriptedModel) Stream(context.Context, model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func toolCallResponse(text string, calls ...tools.Call) *model.Response {
	return &model.Response{Text: text, ToolCalls: calls}
}

type fakeSearch struct{ hits []toolregistry.SearchHit }

func (f *fakeSearch) Search(_ context.Context, _ string, _ int) ([]toolregistry.SearchHit, error) {
	return f.hits, nil
}

type fakeFetch struct{}

func (fakeFetch) Fetch(_ context.Context, _ string) (toolregistry.FetchResult, error) {
	return toolregistry.FetchResult{}, nil
}

func newTestRegistry() *toolregistry.Registry {
	reg := toolregistry.New()
	toolregistry.RegisterCoreTools(reg, &fakeSearch{hits: []toolregistry.SearchHit{{URL: "https://example.com/a", Title: "A"}}}, fakeFetch{})
	reg.Register(toolregistry.RunSubagentsSpec(), func(_ context.Context, payload json.RawMessage) (any, error) {
		return string(payload), nil
	})
	reg.Register(toolregistry.CompleteTaskSpec(), func(_ context.Context, payload json.RawMessage) (any, error) {
		return string(payload), nil
	})
	return reg
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.MaxRounds = 3
	cfg.MaxConcurrent = 2
	cfg.SessionDeadlineSec = 30
	cfg.SubagentDeadlineSec = 10
	cfg.MaxLeadToolCallsPerRound = 4
	return cfg
}

func TestSubagentIDIsDeterministic(t *testing.T) {
	assert.Equal(t, subagentID("sess-1", 0), subagentID("sess-1", 0))
	assert.NotEqual(t, subagentID("sess-1", 0), subagentID("sess-1", 1))
	assert.Equal(t, "sess-1-sub-2", subagentID("sess-1", 2))
}

func TestControllerStraightforwardQuerySynthesizes(t *testing.T) {
	classifyResp := &model.Response{Text: `{"query_type":"straightforward","rationale":"single fact"}`}
	runSubagents := tools.Call{ID: "1", Name: tools.RunSubagents, Payload: json.RawMessage(`{"tasks":[{"prompt":"what is the capital of France","budget_hint":"light"}]}`)}
	planResp := toolCallResponse("", runSubagents)
	completeResp := toolCallResponse("", tools.Call{ID: "2", Name: tools.CompleteTask, Payload: json.RawMessage(`{"report":"Paris is the capital of France."}`)})

	leadModel := &scriptedModel{responses: []*model.Response{classifyResp, planResp, completeResp}}
	subModel := &scriptedModel{responses: []*model.Response{
		toolCallResponse("", tools.Call{ID: "s1", Name: tools.WebSearch, Payload: json.RawMessage(`{"query":"capital of France"}`)}),
		toolCallResponse("", tools.Call{ID: "s2", Name: tools.CompleteTask, Payload: json.RawMessage(`{"report":"Paris."}`)}),
	}}

	ctrl := &Controller{
		Model: leadModel, ModelID: "lead-model",
		Registry: newTestRegistry(), Bus: events.New(), Config: testConfig(),
		SubagentModel: subModel, SubagentModelID: "sub-model",
	}

	sess := session.New("sess-1", "what is the capital of France?")
	draft, err := ctrl.Run(context.Background(), sess, budget.Defaults{Light: 5, Medium: 10, Heavy: 15, Deadline: time.Minute})
	require.NoError(t, err)
	assert.Contains(t, draft.Text, "Paris")
	assert.Len(t, sess.Rounds(), 1)
	assert.Equal(t, 1, sess.Rounds()[0].Index)
}

func TestControllerMaxSubagentsClampsPlan(t *testing.T) {
	classifyResp := &model.Response{Text: `{"query_type":"breadth_first","rationale":"many"}`}
	tasks := `{"tasks":[{"prompt":"a"},{"prompt":"b"},{"prompt":"c"}]}`
	planResp := toolCallResponse("", tools.Call{ID: "1", Name: tools.RunSubagents, Payload: json.RawMessage(tasks)})
	completeResp := toolCallResponse("", tools.Call{ID: "2", Name: tools.CompleteTask, Payload: json.RawMessage(`{"report":"done"}`)})

	leadModel := &scriptedModel{responses: []*model.Response{classifyResp, planResp, completeResp}}
	subModel := &scriptedModel{responses: []*model.Response{
		toolCallResponse("NO_SEARCH_NEEDED: trivial", tools.Call{ID: "s", Name: tools.CompleteTask, Payload: json.RawMessage(`{"report":"ok"}`)}),
	}}

	cfg := testConfig()
	cfg.MaxSubagents = 2

	ctrl := &Controller{
		Model: leadModel, ModelID: "lead-model",
		Registry: newTestRegistry(), Bus: events.New(), Config: cfg,
		SubagentModel: subModel, SubagentModelID: "sub-model",
	}

	sess := session.New("sess-1", "compare many things")
	_, err := ctrl.Run(context.Background(), sess, budget.Defaults{Light: 5, Medium: 10, Heavy: 15, Deadline: time.Minute})
	require.NoError(t, err)
	require.Len(t, sess.Rounds(), 1)
	assert.LessOrEqual(t, len(sess.Rounds()[0].Plan.Tasks), 2)
}

func TestControllerRoundLimitForcesSynthesis(t *testing.T) {
	classifyResp := &model.Response{Text: `{"query_type":"depth_first","rationale":"complex"}`}
	planResp := func() *model.Response {
		return toolCallResponse("", tools.Call{ID: "1", Name: tools.RunSubagents, Payload: json.RawMessage(`{"tasks":[{"prompt":"angle"}]}`)})
	}
	reflectContinue := &model.Response{Text: "let's keep going, another round needed"}

	responses := []*model.Response{classifyResp}
	cfg := testConfig()
	cfg.MaxRounds = 1
	for i := 0; i < cfg.MaxRounds; i++ {
		responses = append(responses, planResp(), reflectContinue)
	}
	responses = append(responses, &model.Response{Text: "Final synthesized answer."})
	leadModel := &scriptedModel{responses: responses}

	subModel := &scriptedModel{responses: []*model.Response{
		toolCallResponse("NO_SEARCH_NEEDED: trivial", tools.Call{ID: "s", Name: tools.CompleteTask, Payload: json.RawMessage(`{"report":"ok"}`)}),
	}}

	ctrl := &Controller{
		Model: leadModel, ModelID: "lead-model",
		Registry: newTestRegistry(), Bus: events.New(), Config: cfg,
		SubagentModel: subModel, SubagentModelID: "sub-model",
	}

	sess := session.New("sess-1", "deep question")
	draft, err := ctrl.Run(context.Background(), sess, budget.Defaults{Light: 5, Medium: 10, Heavy: 15, Deadline: time.Minute})
	require.NoError(t, err)
	assert.Contains(t, draft.Text, "Final synthesized answer")
}
