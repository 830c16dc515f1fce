// Package openai provides a model.Client implementation backed by the
// OpenAI Chat Completions API via github.com/openai/openai-go. It exists
// alongside provider/anthropic so the orchestrator can run against either
// provider through the same model.Client contract.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/brightfield-labs/deepresearch/model"
	"github.com/brightfield-labs/deepresearch/tools"
)

// ChatClient captures the subset of the OpenAI SDK used by the adapter.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures defaults applied when a Request omits them.
type Options struct {
	DefaultModel string
	MaxTokens    int64
	Temperature  float64
}

// Client adapts ChatClient to model.Client.
type Client struct {
	api  ChatClient
	opts Options
}

// New constructs a Client wrapping api.
func New(api ChatClient, opts Options) *Client {
	return &Client{api: api, opts: opts}
}

// Complete implements model.Client.
func (c *Client) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.api.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}
	return toResponse(resp), nil
}

// Stream is unsupported by this adapter; callers fall back to Complete.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func (c *Client) buildParams(req model.Request) (openai.ChatCompletionNewParams, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.opts.DefaultModel
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg, err := toMessageParam(m)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg...)
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelID),
		Messages: messages,
	}
	if c.opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.opts.MaxTokens)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	temp := c.opts.Temperature
	if req.Temperature != 0 {
		temp = float64(req.Temperature)
	}
	if temp != 0 {
		params.Temperature = openai.Float(temp)
	}

	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        string(t.Name),
				Description: openai.String(t.Description),
				Parameters:  shared.FunctionParameters(t.InputSchema),
			},
		})
	}
	return params, nil
}

func toMessageParam(m model.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	var text string
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	var toolResults []openai.ChatCompletionMessageParamUnion

	for _, p := range m.Parts {
		switch v := p.(type) {
		case model.TextPart:
			text += v.Text
		case model.ToolUsePart:
			toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
				ID: v.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      string(v.Name),
					Arguments: string(v.Input),
				},
			})
		case model.ToolResultPart:
			content, err := json.Marshal(v.Content)
			if err != nil {
				return nil, err
			}
			toolResults = append(toolResults, openai.ToolMessage(string(content), v.ToolUseID))
		}
	}

	switch m.Role {
	case model.RoleSystem:
		return []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(text)}, nil
	case model.RoleAssistant:
		msg := openai.ChatCompletionAssistantMessageParam{}
		if text != "" {
			msg.Content.OfString = openai.String(text)
		}
		msg.ToolCalls = toolCalls
		return []openai.ChatCompletionMessageParamUnion{{OfAssistant: &msg}}, nil
	default:
		out := make([]openai.ChatCompletionMessageParamUnion, 0, len(toolResults)+1)
		if text != "" {
			out = append(out, openai.UserMessage(text))
		}
		out = append(out, toolResults...)
		return out, nil
	}
}

func toResponse(resp *openai.ChatCompletion) *model.Response {
	choice := resp.Choices[0]
	out := &model.Response{
		Text:       choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, tools.Call{
			ID:      tc.ID,
			Name:    tools.Ident(tc.Function.Name),
			Payload: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out
}
