package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spf13/cobra"

	"github.com/brightfield-labs/deepresearch/config"
	"github.com/brightfield-labs/deepresearch/events"
	"github.com/brightfield-labs/deepresearch/internal/render"
	"github.com/brightfield-labs/deepresearch/orchestrator"
	"github.com/brightfield-labs/deepresearch/provider/anthropic"
	"github.com/brightfield-labs/deepresearch/provider/webfetch"
	"github.com/brightfield-labs/deepresearch/provider/websearch"
)

func runCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "run [query]",
		Short: "run a research session for the given query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runResearch(cmd, query, outputPath)
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the cited report to this file instead of stdout")
	return cmd
}

func runResearch(cmd *cobra.Command, query, outputPath string) error {
	cfg, err := config.Load(cfgFile, envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if maxRounds > 0 {
		cfg.MaxRounds = maxRounds
	}
	if maxConcurr > 0 {
		cfg.MaxConcurrent = maxConcurr
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}
	sdkClient := sdkanthropic.NewClient(option.WithAPIKey(apiKey))
	chatModel := anthropic.New(&sdkClient.Messages, anthropic.Options{DefaultModel: cfg.LeadModel})

	searchClient := websearch.New(envOr("DEEPRESEARCH_SEARCH_URL", "https://api.tavily.com"), os.Getenv("TAVILY_API_KEY"))
	fetchClient := webfetch.New()

	bus := events.New()
	sub := bus.Subscribe(cmd.Context(), events.SubscriberFunc(func(ctx context.Context, ev events.Event) {
		printEvent(cmd, ev)
	}), 512)
	defer sub.Close()

	orch := &orchestrator.Orchestrator{
		LeadModel:     chatModel,
		SubagentModel: chatModel,
		Search:        searchClient,
		Fetch:         fetchClient,
		Bus:           bus,
		Config:        cfg,
	}

	outcome := orch.RunSession(cmd.Context(), query)
	if outcome.Err != nil {
		return fmt.Errorf("session failed: %w", outcome.Err)
	}

	if _, err := render.ToHTML(outcome.CitedOutput); err != nil {
		cmd.PrintErrf("warning: markdown rendering failed: %v\n", err)
	}

	out := outcome.CitedOutput.Text
	if len(outcome.FailedTasks) > 0 {
		out += fmt.Sprintf("\n\n(%d subagent task(s) did not complete successfully)\n", len(outcome.FailedTasks))
	}

	if outputPath != "" {
		return os.WriteFile(outputPath, []byte(out), 0o644)
	}
	cmd.Println(out)
	return nil
}

func printEvent(cmd *cobra.Command, ev events.Event) {
	switch e := ev.(type) {
	case *events.SessionStarted:
		cmd.Printf("session started: %s\n", e.Query)
	case *events.QueryClassified:
		cmd.Printf("classified: %s\n", e.Classification)
	case *events.PlanCreated:
		cmd.Printf("round %d: planned %d task(s)\n", e.RoundIndex, len(e.Subtasks))
	case *events.SubagentSpawned:
		cmd.Printf("  subagent %s spawned: %s\n", e.SubagentID, e.Task)
	case *events.SubagentFinished:
		cmd.Printf("  subagent %s finished: %s (%d sources)\n", e.SubagentID, e.Status, e.SourcesFound)
	case *events.RoundComplete:
		cmd.Printf("round %d complete\n", e.RoundIndex)
	case *events.SynthesisStarted:
		cmd.Println("synthesizing report...")
	case *events.CitationDegraded:
		cmd.Printf("citation degraded: %s\n", e.Reason)
	case *events.Dropped:
		cmd.Printf("(dropped %d events)\n", e.Count)
	case *events.Error:
		cmd.Printf("error: %s\n", e.Message)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
