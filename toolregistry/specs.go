package toolregistry

import "github.com/brightfield-labs/deepresearch/tools"

// WebSearchSpec describes the web_search tool per spec §4.1.
func WebSearchSpec() tools.Spec {
	return tools.Spec{
		Name:        tools.WebSearch,
		Description: "Search the web and return ranked {url,title,snippet} hits. Rephrase rather than repeating an identical query.",
		InputSchema: tools.Schema(map[string]any{
			"query": map[string]any{"type": "string", "minLength": 1},
			"max_results": map[string]any{
				"type": "integer", "minimum": 1, "maximum": 10,
			},
		}, "query"),
		Availability: tools.AvailableToSubagent | tools.AvailableToLead,
	}
}

// WebFetchSpec describes the web_fetch tool per spec §4.1.
func WebFetchSpec() tools.Spec {
	return tools.Spec{
		Name:        tools.WebFetch,
		Description: "Fetch a URL and return its extracted text and title.",
		InputSchema: tools.Schema(map[string]any{
			"url": map[string]any{"type": "string", "minLength": 1},
		}, "url"),
		Availability: tools.AvailableToSubagent,
	}
}

// RunSubagentsSpec describes the run_subagents tool per spec §4.1. It is
// Lead-only and blocks until every spawned Subagent finishes.
func RunSubagentsSpec() tools.Spec {
	return tools.Spec{
		Name:        tools.RunSubagents,
		Description: "Spawn bounded-parallel subagent researchers, one per task, and block until all finish.",
		InputSchema: tools.Schema(map[string]any{
			"tasks": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"prompt":      map[string]any{"type": "string", "minLength": 1},
						"budget_hint": map[string]any{"type": "string", "enum": []any{"light", "medium", "heavy"}},
					},
					"required": []any{"prompt"},
				},
			},
		}, "tasks"),
		Availability: tools.AvailableToLead,
	}
}

// CompleteTaskSpec describes the complete_task tool per spec §4.1. It is
// available to both roles as the terminal action of their respective loops.
func CompleteTaskSpec() tools.Spec {
	return tools.Spec{
		Name:        tools.CompleteTask,
		Description: "Terminate this agent's loop; the report becomes its output.",
		InputSchema: tools.Schema(map[string]any{
			"report": map[string]any{"type": "string"},
		}, "report"),
		Availability: tools.AvailableToSubagent | tools.AvailableToLead,
	}
}
