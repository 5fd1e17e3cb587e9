package prompts

import (
	"context"
	_ "embed"
)

//go:embed template/summary.txt
var summarySystemPrompt string

// RenderSummarySystem renders the lifecycle summarizer prompt.
func RenderSummarySystem(ctx context.Context) (string, error) {
	return renderStatic(ctx, summarySystemPrompt, "summary")
}
