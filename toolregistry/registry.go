// Package toolregistry implements spec §4.1: it registers the four core
// tools with JSON-schema argument contracts, validates arguments before
// dispatch, counts each call against the caller's budget, and turns dispatch
// failures into structured tool results rather than propagated errors.
package toolregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/brightfield-labs/deepresearch/budget"
	"github.com/brightfield-labs/deepresearch/provider/ratelimit"
	"github.com/brightfield-labs/deepresearch/tools"
)

// handlerRetryAttempts and handlerRetryBaseDelay implement spec §7's
// "TransientExternal … retried with exponential backoff up to 3 attempts
// per call" policy at the invoker choke point, covering every handler
// (web_search, web_fetch) dispatched through a Registry.
const (
	handlerRetryAttempts  = 3
	handlerRetryBaseDelay = 200 * time.Millisecond
)

func isRetryableHandlerError(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}

// Handler executes one tool call's validated arguments and returns a
// JSON-compatible value, or an error describing why dispatch failed.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Registry holds the compiled schema and handler for every known tool.
type Registry struct {
	mu       sync.RWMutex
	specs    map[tools.Ident]tools.Spec
	schemas  map[tools.Ident]*jsonschema.Schema
	handlers map[tools.Ident]Handler
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		specs:    make(map[tools.Ident]tools.Spec),
		schemas:  make(map[tools.Ident]*jsonschema.Schema),
		handlers: make(map[tools.Ident]Handler),
	}
}

// Register compiles spec's InputSchema and binds handler to it. It panics on
// a malformed schema, since tool schemas are static program data fixed at
// startup, not user input.
func (r *Registry) Register(spec tools.Spec, handler Handler) {
	compiled, err := compileSchema(spec.Name, spec.InputSchema)
	if err != nil {
		panic(fmt.Sprintf("toolregistry: invalid schema for %s: %v", spec.Name, err))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Name] = spec
	r.schemas[spec.Name] = compiled
	r.handlers[spec.Name] = handler
}

func compileSchema(name tools.Ident, schema map[string]any) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	res := "mem://tools/" + string(name)
	if err := c.AddResource(res, schema); err != nil {
		return nil, err
	}
	return c.Compile(res)
}

// Definitions returns the ToolDefinition-shaped specs visible to role, for
// building a model.Request's Tools list. Returned as (name, description,
// schema) triples to avoid an import cycle with package model.
func (r *Registry) Definitions(role tools.Availability) []tools.Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]tools.Spec, 0, len(r.specs))
	for _, s := range r.specs {
		if s.AvailableTo(role) {
			out = append(out, s)
		}
	}
	return out
}

// Spec returns the registered Spec for a tool name.
func (r *Registry) Spec(name tools.Ident) (tools.Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]
	return s, ok
}

// Invoker dispatches validated tool calls against a Registry, enforcing the
// caller's budget. One Invoker is scoped to a single agent run (Lead or
// Subagent), matching one Tracker per run.
type Invoker struct {
	reg     *Registry
	tracker *budget.Tracker
	role    tools.Availability
}

// NewInvoker binds a Registry and budget Tracker for one agent run.
func NewInvoker(reg *Registry, tracker *budget.Tracker, role tools.Availability) *Invoker {
	return &Invoker{reg: reg, tracker: tracker, role: role}
}

// Dispatch validates call against its registered schema, checks budget,
// counts the call, and invokes the bound Handler. Every failure mode
// (unknown tool, schema violation, budget exhaustion, handler error)
// produces a tools.Result carrying a *tools.Error rather than a Go error
// return, so the calling agent's loop always receives an observable result.
func (inv *Invoker) Dispatch(ctx context.Context, call tools.Call) tools.Result {
	spec, ok := inv.reg.Spec(call.Name)
	if !ok {
		return errResult(call, tools.NewError(tools.KindInvariantViolation, fmt.Sprintf("unknown tool %q", call.Name)), &tools.RetryHint{
			Reason: tools.RetryReasonInvalidArguments, Tool: call.Name, Message: "unknown tool",
		})
	}
	if !spec.AvailableTo(inv.role) {
		return errResult(call, tools.NewError(tools.KindInvariantViolation, fmt.Sprintf("tool %q not available to this role", call.Name)), &tools.RetryHint{
			Reason: tools.RetryReasonInvalidArguments, Tool: call.Name, Message: "tool not available",
		})
	}

	if status := inv.tracker.Check(ctx); status != budget.OK {
		return errResult(call, budgetError(status), budgetRetryHint(call.Name, status))
	}

	if err := validate(inv.reg, call.Name, call.Payload); err != nil {
		return errResult(call, tools.WrapError(tools.KindPermanentExternal, err), &tools.RetryHint{
			Reason: tools.RetryReasonInvalidArguments, Tool: call.Name, Message: err.Error(),
		})
	}

	inv.tracker.RecordToolCall()

	inv.reg.mu.RLock()
	handler := inv.reg.handlers[call.Name]
	inv.reg.mu.RUnlock()

	var value any
	err := ratelimit.RetryWithBackoff(ctx, handlerRetryAttempts, handlerRetryBaseDelay, isRetryableHandlerError, func() error {
		v, herr := handler(ctx, call.Payload)
		if herr != nil {
			return herr
		}
		value = v
		return nil
	})
	if err != nil {
		return errResult(call, toToolError(err), nil)
	}
	return tools.Result{ToolCallID: call.ID, Name: call.Name, Value: value}
}

func validate(reg *Registry, name tools.Ident, payload json.RawMessage) error {
	reg.mu.RLock()
	schema := reg.schemas[name]
	reg.mu.RUnlock()
	if schema == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("malformed arguments: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

func errResult(call tools.Call, err *tools.Error, hint *tools.RetryHint) tools.Result {
	return tools.Result{ToolCallID: call.ID, Name: call.Name, Err: err, RetryHint: hint}
}

func toToolError(err error) *tools.Error {
	var te *tools.Error
	if asError(err, &te) {
		return te
	}
	switch {
	case errors.Is(err, ErrPermanent):
		return tools.WrapError(tools.KindPermanentExternal, err)
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrTransient):
		return tools.WrapError(tools.KindTransientExternal, err)
	default:
		return tools.WrapError(tools.KindTransientExternal, err)
	}
}

func asError(err error, target **tools.Error) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if te, ok := err.(*tools.Error); ok {
			*target = te
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func budgetError(status budget.Status) *tools.Error {
	switch status {
	case budget.ToolCallsExhausted, budget.TokensExhausted:
		return tools.NewError(tools.KindBudgetExceeded, "tool-call budget exhausted")
	case budget.DeadlineExceeded:
		return tools.NewError(tools.KindBudgetExceeded, "deadline exceeded")
	case budget.Cancelled:
		return tools.NewError(tools.KindCancellationRequested, "cancelled")
	default:
		return tools.NewError(tools.KindBudgetExceeded, "budget check failed")
	}
}

func budgetRetryHint(name tools.Ident, status budget.Status) *tools.RetryHint {
	switch status {
	case budget.Cancelled:
		return nil
	default:
		return &tools.RetryHint{Reason: tools.RetryReasonBudgetExhausted, Tool: name, Message: "no remaining budget"}
	}
}
