// Package budget enforces the per-subagent and per-session resource limits
// described in spec §4.2: tool-call caps, a soft token budget, wall-clock
// deadlines, and a global concurrency semaphore bounding how many subagents
// may run at once. Enforcement is cooperative — callers check before acting
// and record after.
package budget

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Hint is the coarse budget_hint carried on a TaskSpec, mapped to a
// tool-call cap by Defaults.
type Hint string

const (
	HintLight  Hint = "light"
	HintMedium Hint = "medium"
	HintHeavy  Hint = "heavy"
)

// AbsoluteMaxToolCalls is the hard ceiling on any single subagent's
// tool_call_budget regardless of hint, per spec §4.2.
const AbsoluteMaxToolCalls = 20

// Defaults holds the tool-call caps for each Hint plus shared soft limits,
// configured once per session from Config.
type Defaults struct {
	Light  int
	Medium int
	Heavy  int

	// TokenBudgetPerSubagent is the soft cumulative token estimate at which
	// a subagent switches to summarize-then-continue mode (80% of this).
	TokenBudgetPerSubagent int
	// Deadline bounds one subagent's wall-clock execution.
	Deadline time.Duration
}

// DefaultDefaults returns the spec's documented defaults: 5/10/15 tool
// calls, applied when Config does not override them.
func DefaultDefaults() Defaults {
	return Defaults{
		Light:                  5,
		Medium:                 10,
		Heavy:                  15,
		TokenBudgetPerSubagent: 50_000,
		Deadline:               5 * time.Minute,
	}
}

// ToolCallCap resolves a Hint to a tool-call budget, clamped to
// AbsoluteMaxToolCalls. An unrecognized or empty hint falls back to Medium.
func (d Defaults) ToolCallCap(h Hint) int {
	n := d.Medium
	switch h {
	case HintLight:
		n = d.Light
	case HintHeavy:
		n = d.Heavy
	case HintMedium, "":
		n = d.Medium
	}
	if n > AbsoluteMaxToolCalls {
		n = AbsoluteMaxToolCalls
	}
	return n
}

// Status summarizes what tripped a budget check, if anything.
type Status int

const (
	// OK means the caller may proceed.
	OK Status = iota
	// ToolCallsExhausted means the subagent has used its full tool-call cap.
	ToolCallsExhausted
	// TokensNearLimit means 80% of the token budget is consumed; callers
	// should switch to summarize-then-continue rather than stop outright.
	TokensNearLimit
	// TokensExhausted means the token budget itself has been exceeded.
	TokensExhausted
	// DeadlineExceeded means the subagent's wall-clock deadline has passed.
	DeadlineExceeded
	// Cancelled means the governing context was cancelled.
	Cancelled
)

// Tracker is the per-subagent budget ledger. It is not safe for concurrent
// use from multiple goroutines on the same subagent, matching the spec's
// single-outstanding-action-at-a-time OODA loop.
type Tracker struct {
	caps     Defaults
	toolCap  int
	deadline time.Time

	toolCallsMade int
	tokensUsed    int
	searched      bool

	seenQueries map[string]struct{}
}

// NewTracker constructs a Tracker for one subagent run with the given hint.
func NewTracker(caps Defaults, hint Hint) *Tracker {
	return &Tracker{
		caps:        caps,
		toolCap:     caps.ToolCallCap(hint),
		deadline:    time.Now().Add(caps.Deadline),
		seenQueries: make(map[string]struct{}),
	}
}

// Check reports whether the subagent may make another tool call right now,
// given ctx's cancellation state and the accumulated counters.
func (t *Tracker) Check(ctx context.Context) Status {
	select {
	case <-ctx.Done():
		return Cancelled
	default:
	}
	if time.Now().After(t.deadline) {
		return DeadlineExceeded
	}
	if t.toolCallsMade >= t.toolCap {
		return ToolCallsExhausted
	}
	if t.caps.TokenBudgetPerSubagent > 0 && t.tokensUsed >= t.caps.TokenBudgetPerSubagent {
		return TokensExhausted
	}
	if t.caps.TokenBudgetPerSubagent > 0 && t.tokensUsed >= (t.caps.TokenBudgetPerSubagent*8)/10 {
		return TokensNearLimit
	}
	return OK
}

// RecordToolCall counts one dispatched tool call against the budget.
func (t *Tracker) RecordToolCall() { t.toolCallsMade++ }

// RecordTokens adds to the cumulative token estimate.
func (t *Tracker) RecordTokens(n int) { t.tokensUsed += n }

// ToolCallsMade reports the number of tool calls counted so far.
func (t *Tracker) ToolCallsMade() int { return t.toolCallsMade }

// ToolCallBudget reports this subagent's resolved tool-call cap.
func (t *Tracker) ToolCallBudget() int { return t.toolCap }

// TokensUsed reports the cumulative token estimate.
func (t *Tracker) TokensUsed() int { return t.tokensUsed }

// normalizeQuery canonicalizes a web_search query string for the diversity check.
func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// AdmitQuery reports whether query is novel (and records it), or false if
// it duplicates a query this subagent already issued. Rejected duplicates
// consume no tool-call budget, per spec §4.2's query diversity rule.
func (t *Tracker) AdmitQuery(query string) bool {
	key := normalizeQuery(query)
	if _, seen := t.seenQueries[key]; seen {
		return false
	}
	t.seenQueries[key] = struct{}{}
	t.searched = true
	return true
}

// HasSearched reports whether at least one web_search call has been
// recorded, backing the minimum-effort floor in spec's Open Questions
// resolution (one web_search minimum rather than a fixed five-call floor).
func (t *Tracker) HasSearched() bool {
	return t.searched
}

// Semaphore bounds the number of subagents running concurrently across a
// session, implementing the global concurrency limit from spec §5.
type Semaphore struct {
	ch chan struct{}
}

// NewSemaphore constructs a Semaphore with the given capacity (max_concurrent).
func NewSemaphore(capacity int) *Semaphore {
	if capacity < 1 {
		capacity = 1
	}
	return &Semaphore{ch: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot.
func (s *Semaphore) Release() {
	select {
	case <-s.ch:
	default:
	}
}

// RoundLimiter caps the number of Lead rounds in a session, per
// max_rounds (default 5, an Open Question this codebase resolves fixed
// rather than adaptive).
type RoundLimiter struct {
	mu      sync.Mutex
	max     int
	current int
}

// NewRoundLimiter constructs a RoundLimiter with the given max rounds.
func NewRoundLimiter(max int) *RoundLimiter {
	if max < 1 {
		max = 1
	}
	return &RoundLimiter{max: max}
}

// Advance increments the round counter and reports whether another round is
// still permitted (false means the Lead must synthesize now with tools
// disabled, per spec §4.4's max-rounds-without-complete fallback).
func (r *RoundLimiter) Advance() (round int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current++
	return r.current, r.current <= r.max
}

// Current reports the most recently started round number.
func (r *RoundLimiter) Current() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}
