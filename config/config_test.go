package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesDocumentedValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 20, cfg.MaxSubagents)
	assert.Equal(t, 5, cfg.MaxConcurrent)
	assert.Equal(t, "numeric", cfg.CitationStyle)
}

func TestLoadMissingPathFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.NoError(t, err)
	assert.Equal(t, Default().MaxRounds, cfg.MaxRounds)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_subagents: 7\ncitation_style: footnote\n"), 0o644))

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxSubagents)
	assert.Equal(t, "footnote", cfg.CitationStyle)
	assert.Equal(t, Default().MaxConcurrent, cfg.MaxConcurrent, "unset fields keep their default")
}

func TestLoadEnvOverridesTakePrecedenceOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_subagents: 7\n"), 0o644))

	t.Setenv("DEEPRESEARCH_MAX_SUBAGENTS", "3")
	t.Setenv("DEEPRESEARCH_LEAD_MODEL", "custom-model")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxSubagents)
	assert.Equal(t, "custom-model", cfg.LeadModel)
}

func TestLoadIgnoresMalformedEnvInt(t *testing.T) {
	t.Setenv("DEEPRESEARCH_MAX_ROUNDS", "not-a-number")
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, Default().MaxRounds, cfg.MaxRounds)
}

func TestBudgetDefaultsProjectsSubagentFields(t *testing.T) {
	cfg := Default()
	cfg.SubagentDeadlineSec = 120
	bd := cfg.BudgetDefaults()
	assert.Equal(t, cfg.DefaultBudgetLight, bd.Light)
	assert.Equal(t, 120*time.Second, bd.Deadline)
}

func TestSessionAndToolDeadlineConversions(t *testing.T) {
	cfg := Default()
	cfg.SessionDeadlineSec = 60
	cfg.ToolDeadlineSec = 15
	assert.Equal(t, 60*time.Second, cfg.SessionDeadline())
	assert.Equal(t, 15*time.Second, cfg.ToolDeadline())
}
