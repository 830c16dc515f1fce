// Package config loads the orchestrator's tunables from a YAML file with
// environment-variable overrides, following the layered approach common to
// the example corpus: defaults, then a config file, then process env.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/brightfield-labs/deepresearch/budget"
)

// Config holds every tunable named in spec §6.
type Config struct {
	LeadModel     string `yaml:"lead_model"`
	SubagentModel string `yaml:"subagent_model"`

	MaxSubagents  int `yaml:"max_subagents"`
	MaxConcurrent int `yaml:"max_concurrent"`
	MaxRounds     int `yaml:"max_rounds"`

	SessionDeadlineSec  int `yaml:"session_deadline_sec"`
	SubagentDeadlineSec int `yaml:"subagent_deadline_sec"`
	ToolDeadlineSec     int `yaml:"tool_deadline_sec"`

	DefaultBudgetLight  int `yaml:"default_budget_light"`
	DefaultBudgetMedium int `yaml:"default_budget_medium"`
	DefaultBudgetHeavy  int `yaml:"default_budget_heavy"`

	SourceCapPerSubagent  int `yaml:"source_cap_per_subagent"`
	TokenBudgetPerSubagent int `yaml:"token_budget_per_subagent"`

	CitationStyle string `yaml:"citation_style"` // numeric | footnote

	MaxLeadToolCallsPerRound int `yaml:"max_lead_tool_calls_per_round"`
}

// Default returns the spec's documented defaults.
func Default() Config {
	return Config{
		LeadModel:                "claude-sonnet-4-5",
		SubagentModel:            "claude-sonnet-4-5",
		MaxSubagents:             20,
		MaxConcurrent:            5,
		MaxRounds:                5,
		SessionDeadlineSec:       1800,
		SubagentDeadlineSec:      300,
		ToolDeadlineSec:          30,
		DefaultBudgetLight:       5,
		DefaultBudgetMedium:      10,
		DefaultBudgetHeavy:       15,
		SourceCapPerSubagent:     100,
		TokenBudgetPerSubagent:   50_000,
		CitationStyle:            "numeric",
		MaxLeadToolCallsPerRound: 6,
	}
}

// Load reads a YAML config file (optional — a missing path falls back to
// Default) and an optional .env file, then applies DEEPRESEARCH_*
// environment overrides on top.
func Load(path string, envFile string) (Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("config: loading env file: %w", err)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	strs := map[string]*string{
		"DEEPRESEARCH_LEAD_MODEL":     &cfg.LeadModel,
		"DEEPRESEARCH_SUBAGENT_MODEL": &cfg.SubagentModel,
		"DEEPRESEARCH_CITATION_STYLE": &cfg.CitationStyle,
	}
	for k, dst := range strs {
		if v, ok := os.LookupEnv(k); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"DEEPRESEARCH_MAX_SUBAGENTS":              &cfg.MaxSubagents,
		"DEEPRESEARCH_MAX_CONCURRENT":             &cfg.MaxConcurrent,
		"DEEPRESEARCH_MAX_ROUNDS":                 &cfg.MaxRounds,
		"DEEPRESEARCH_SESSION_DEADLINE_SEC":       &cfg.SessionDeadlineSec,
		"DEEPRESEARCH_SUBAGENT_DEADLINE_SEC":      &cfg.SubagentDeadlineSec,
		"DEEPRESEARCH_TOOL_DEADLINE_SEC":          &cfg.ToolDeadlineSec,
		"DEEPRESEARCH_DEFAULT_BUDGET_LIGHT":       &cfg.DefaultBudgetLight,
		"DEEPRESEARCH_DEFAULT_BUDGET_MEDIUM":      &cfg.DefaultBudgetMedium,
		"DEEPRESEARCH_DEFAULT_BUDGET_HEAVY":       &cfg.DefaultBudgetHeavy,
		"DEEPRESEARCH_SOURCE_CAP_PER_SUBAGENT":    &cfg.SourceCapPerSubagent,
		"DEEPRESEARCH_TOKEN_BUDGET_PER_SUBAGENT":  &cfg.TokenBudgetPerSubagent,
		"DEEPRESEARCH_MAX_LEAD_TOOL_CALLS_ROUND":  &cfg.MaxLeadToolCallsPerRound,
	}
	for k, dst := range ints {
		if v, ok := os.LookupEnv(k); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
}

// BudgetDefaults projects the subset of Config budget consumes.
func (c Config) BudgetDefaults() budget.Defaults {
	return budget.Defaults{
		Light:                  c.DefaultBudgetLight,
		Medium:                 c.DefaultBudgetMedium,
		Heavy:                  c.DefaultBudgetHeavy,
		TokenBudgetPerSubagent: c.TokenBudgetPerSubagent,
		Deadline:               time.Duration(c.SubagentDeadlineSec) * time.Second,
	}
}

// SessionDeadline returns the total session deadline as a Duration.
func (c Config) SessionDeadline() time.Duration {
	return time.Duration(c.SessionDeadlineSec) * time.Second
}

// ToolDeadline returns the per-tool-call deadline as a Duration.
func (c Config) ToolDeadline() time.Duration {
	return time.Duration(c.ToolDeadlineSec) * time.Second
}
