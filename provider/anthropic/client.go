// Package anthropic provides a model.Client implementation backed by the
// Anthropic Claude Messages API via github.com/anthropics/anthropic-sdk-go.
// It translates the core's provider-agnostic Request into sdk.MessageNewParams
// calls and maps tool-use blocks and usage back into model.Response.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/brightfield-labs/deepresearch/model"
	"github.com/brightfield-labs/deepresearch/tools"
)

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter, so callers can substitute a fake in tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures defaults applied when a Request omits them.
type Options struct {
	DefaultModel string
	MaxTokens    int64
	Temperature  float64
}

// Client adapts MessagesClient to model.Client.
type Client struct {
	api  MessagesClient
	opts Options
}

// New constructs a Client wrapping api.
func New(api MessagesClient, opts Options) *Client {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	return &Client{api: api, opts: opts}
}

// Complete implements model.Client.
func (c *Client) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	msg, err := c.api.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
			return nil, model.ErrRateLimited
		}
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	return toResponse(msg), nil
}

// Stream is unsupported by this adapter; callers fall back to Complete.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func (c *Client) buildParams(req model.Request) (sdk.MessageNewParams, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.opts.DefaultModel
	}
	maxTokens := c.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	var systemBlocks []sdk.TextBlockParam
	messages := make([]sdk.MessageParam, 0, len(req.Messages))

	for _, m := range req.Messages {
		if m.Role == model.RoleSystem {
			for _, p := range m.Parts {
				if tp, ok := p.(model.TextPart); ok {
					systemBlocks = append(systemBlocks, sdk.TextBlockParam{Text: tp.Text})
				}
			}
			continue
		}

		blocks, err := toContentBlocks(m.Parts)
		if err != nil {
			return sdk.MessageNewParams{}, err
		}
		role := sdk.MessageParamRoleUser
		if m.Role == model.RoleAssistant {
			role = sdk.MessageParamRoleAssistant
		}
		messages = append(messages, sdk.MessageParam{Role: role, Content: blocks})
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: maxTokens,
		Messages:  messages,
		System:    systemBlocks,
	}
	temp := c.opts.Temperature
	if req.Temperature != 0 {
		temp = float64(req.Temperature)
	}
	if temp != 0 {
		params.Temperature = sdk.Float(temp)
	}
	for _, t := range req.Tools {
		schema, err := toInputSchema(t.InputSchema)
		if err != nil {
			return sdk.MessageNewParams{}, err
		}
		params.Tools = append(params.Tools, sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        string(t.Name),
				Description: sdk.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return params, nil
}

func toContentBlocks(parts []model.Part) ([]sdk.ContentBlockParamUnion, error) {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case model.TextPart:
			blocks = append(blocks, sdk.NewTextBlock(v.Text))
		case model.ToolUsePart:
			var input any
			if len(v.Input) > 0 {
				if err := json.Unmarshal(v.Input, &input); err != nil {
					return nil, fmt.Errorf("anthropic: decoding tool use input: %w", err)
				}
			}
			blocks = append(blocks, sdk.NewToolUseBlock(v.ID, input, string(v.Name)))
		case model.ToolResultPart:
			content, err := json.Marshal(v.Content)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, sdk.NewToolResultBlock(v.ToolUseID, string(content), v.IsError))
		}
	}
	return blocks, nil
}

func toInputSchema(schema map[string]any) (sdk.ToolInputSchemaParam, error) {
	props, _ := schema["properties"].(map[string]any)
	var required []string
	if req, ok := schema["required"].([]string); ok {
		required = req
	}
	return sdk.ToolInputSchemaParam{Properties: props, Required: required}, nil
}

func toResponse(msg *sdk.Message) *model.Response {
	resp := &model.Response{
		StopReason: string(msg.StopReason),
		Usage: model.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case sdk.TextBlock:
			resp.Text += b.Text
		case sdk.ToolUseBlock:
			payload, _ := json.Marshal(b.Input)
			resp.ToolCalls = append(resp.ToolCalls, tools.Call{ID: b.ID, Name: tools.Ident(b.Name), Payload: payload})
		}
	}
	return resp
}
