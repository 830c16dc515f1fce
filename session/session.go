// Package session owns the mutable per-run state described in spec §4.7:
// the plan history, per-subagent transcripts, the shared source table, the
// synthesized Draft, and the final CitedOutput. A Session is created once
// per RunSession call and discarded (or persisted externally) when the run
// ends; no entity is shared across runs.
package session

import (
	"sync"
	"time"

	"github.com/brightfield-labs/deepresearch/budget"
	"github.com/brightfield-labs/deepresearch/sourcetable"
)

// Status is the Session's own lifecycle state, distinct from any single
// Subagent's status.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// TaskSpec is one self-contained unit of work assigned to a Subagent by a Plan.
type TaskSpec struct {
	Prompt     string
	BudgetHint budget.Hint
}

// Plan is produced by the Lead at the start of a round and replaces (never
// mutates) the prior round's plan.
type Plan struct {
	QueryType string
	Rationale string
	Tasks     []TaskSpec
}

// SubagentResult is emitted once per Subagent run.
type SubagentResult struct {
	ID            string
	Task          string
	Status        string // ok | budget_exhausted | timeout | error | cancelled
	FindingsText  string
	Sources       []string // normalized URLs, references into the session SourceTable
	ToolCallsMade int
	TokensUsed    int
	DurationMS    int64
}

// Reflection is the Lead's decision after a round's results are in.
type Reflection string

const (
	ReflectionContinue   Reflection = "continue"
	ReflectionSynthesize Reflection = "synthesize"
)

// Round is one Lead iteration: the plan it issued, the results it gathered,
// and the reflection that followed. Rounds are append-only.
type Round struct {
	Index      int
	Plan       Plan
	Results    []SubagentResult
	Reflection Reflection
}

// TranscriptEntry is one append-only entry in a Subagent's transcript.
type TranscriptEntry struct {
	Role         string
	Content      string
	ToolCallName string
	ToolCallArgs string
	ToolResult   string
	IsError      bool
	At           time.Time
}

// Transcript is the append-only ordered log for one Subagent run.
type Transcript struct {
	mu      sync.Mutex
	entries []TranscriptEntry
	closed  bool
}

// NewTranscript constructs an empty, open Transcript.
func NewTranscript() *Transcript { return &Transcript{} }

// Append records one entry. It is a no-op once the transcript is closed, so
// late-arriving writes after cancellation do not corrupt the audit log.
func (t *Transcript) Append(e TranscriptEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.entries = append(t.entries, e)
}

// Close marks the transcript finished. Idempotent.
func (t *Transcript) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// Entries returns a snapshot copy of the recorded entries.
func (t *Transcript) Entries() []TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TranscriptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Draft is the Lead's synthesized prose, prior to citation anchor insertion.
type Draft struct {
	Text string
}

// CitedOutput is the Draft with citation anchors inserted by the citation
// processor. Outside the inserted anchor spans it must be character-
// identical to the Draft it was built from.
type CitedOutput struct {
	Text          string
	CitationCount int
	Degraded      bool
}

// Session is the single owner of all per-run state. Reads via the
// accessors below are safe for concurrent use by observers; writes are
// performed only by the Lead and Subagent Runners under the documented
// component-local discipline (the mutex here only protects the bookkeeping
// slices/maps themselves, not cross-field consistency).
type Session struct {
	ID    string
	Query string

	mu     sync.Mutex
	status Status
	rounds []Round

	transcripts map[string]*Transcript

	Sources *sourcetable.Table

	draft       *Draft
	citedOutput *CitedOutput

	failedTasks []string

	startedAt time.Time
	endedAt   time.Time
}

// New constructs a running Session for the given id/query.
func New(id, query string) *Session {
	return &Session{
		ID:          id,
		Query:       query,
		status:      StatusRunning,
		transcripts: make(map[string]*Transcript),
		Sources:     sourcetable.New(),
		startedAt:   time.Now(),
	}
}

// NewTranscriptFor allocates and registers a Transcript for a subagent ID.
func (s *Session) NewTranscriptFor(subagentID string) *Transcript {
	t := NewTranscript()
	s.mu.Lock()
	s.transcripts[subagentID] = t
	s.mu.Unlock()
	return t
}

// TranscriptFor returns the Transcript registered for a subagent ID, if any.
func (s *Session) TranscriptFor(subagentID string) (*Transcript, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transcripts[subagentID]
	return t, ok
}

// AppendRound records a completed Round. Rounds are append-only.
func (s *Session) AppendRound(r Round) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds = append(s.rounds, r)
	for _, res := range r.Results {
		if res.Status != "ok" {
			s.failedTasks = append(s.failedTasks, res.Task)
		}
	}
}

// Rounds returns a snapshot copy of the round history.
func (s *Session) Rounds() []Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Round, len(s.rounds))
	copy(out, s.rounds)
	return out
}

// SetDraft records the Lead's synthesized prose for this session.
func (s *Session) SetDraft(d Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = &d
}

// Draft returns the recorded Draft, if synthesis has completed.
func (s *Session) Draft() (Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return Draft{}, false
	}
	return *s.draft, true
}

// SetCitedOutput records the final CitedOutput for this session.
func (s *Session) SetCitedOutput(c CitedOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.citedOutput = &c
}

// CitedOutput returns the recorded CitedOutput, if the citation processor
// has run.
func (s *Session) CitedOutput() (CitedOutput, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.citedOutput == nil {
		return CitedOutput{}, false
	}
	return *s.citedOutput, true
}

// SetStatus transitions the session's own status and, for any terminal
// status, stamps endedAt.
func (s *Session) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	if status != StatusRunning {
		s.endedAt = time.Now()
	}
}

// Status returns the session's current lifecycle status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// FailedTasks lists the task prompts of every SubagentResult whose status
// was not ok, across all rounds, for partial-success metadata.
func (s *Session) FailedTasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.failedTasks))
	copy(out, s.failedTasks)
	return out
}

// Duration reports the elapsed wall-clock time for the session. If the
// session has not ended, it reports time elapsed so far.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := s.endedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.startedAt)
}
