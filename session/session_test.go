package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionStartsRunning(t *testing.T) {
	s := New("sess-1", "what is go")
	assert.Equal(t, StatusRunning, s.Status())
	assert.NotNil(t, s.Sources)
}

func TestAppendRoundTracksFailedTasks(t *testing.T) {
	s := New("sess-1", "q")
	s.AppendRound(Round{
		Index: 1,
		Results: []SubagentResult{
			{Task: "task-a", Status: "ok"},
			{Task: "task-b", Status: "budget_exhausted"},
		},
	})
	assert.Equal(t, []string{"task-b"}, s.FailedTasks())
	assert.Len(t, s.Rounds(), 1)
}

func TestRoundsReturnsSnapshot(t *testing.T) {
	s := New("sess-1", "q")
	s.AppendRound(Round{Index: 1})
	rounds := s.Rounds()
	rounds[0].Index = 99
	assert.Equal(t, 1, s.Rounds()[0].Index)
}

func TestDraftAndCitedOutputRoundTrip(t *testing.T) {
	s := New("sess-1", "q")
	_, ok := s.Draft()
	assert.False(t, ok)

	s.SetDraft(Draft{Text: "hello"})
	d, ok := s.Draft()
	require.True(t, ok)
	assert.Equal(t, "hello", d.Text)

	s.SetCitedOutput(CitedOutput{Text: "hello⟦1⟧", CitationCount: 1})
	c, ok := s.CitedOutput()
	require.True(t, ok)
	assert.Equal(t, 1, c.CitationCount)
}

func TestSetStatusStampsEndedAtOnTerminal(t *testing.T) {
	s := New("sess-1", "q")
	before := s.Duration()
	time.Sleep(2 * time.Millisecond)
	s.SetStatus(StatusSucceeded)
	afterEnd := s.Duration()
	time.Sleep(2 * time.Millisecond)
	stillAfterEnd := s.Duration()

	assert.Equal(t, StatusSucceeded, s.Status())
	assert.GreaterOrEqual(t, afterEnd, before)
	assert.Equal(t, afterEnd, stillAfterEnd, "duration must stop advancing once the session ends")
}

func TestTranscriptAppendOnlyAndClosed(t *testing.T) {
	tr := NewTranscript()
	tr.Append(TranscriptEntry{Role: "user", Content: "hi"})
	tr.Close()
	tr.Append(TranscriptEntry{Role: "user", Content: "ignored after close"})
	assert.Len(t, tr.Entries(), 1)
}

func TestNewTranscriptForIsolatesSubagents(t *testing.T) {
	s := New("sess-1", "q")
	ta := s.NewTranscriptFor("sub-a")
	tb := s.NewTranscriptFor("sub-b")
	ta.Append(TranscriptEntry{Role: "assistant", Content: "a says hi"})

	gotA, ok := s.TranscriptFor("sub-a")
	require.True(t, ok)
	assert.Len(t, gotA.Entries(), 1)

	gotB, ok := s.TranscriptFor("sub-b")
	require.True(t, ok)
	assert.Empty(t, gotB.Entries())
	assert.NotSame(t, ta, tb)
}
