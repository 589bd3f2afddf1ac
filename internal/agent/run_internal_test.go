package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/knowyourdev/knowyourdev/internal/llm"
)

func TestCleanTitle(t *testing.T) {
	tests := map[string]string{
		`"Evaluating A Go Developer"`: "Evaluating A Go Developer",
		`  'Quoted'  `:                "Quoted",
		"plain":                       "plain",
		`""`:                          "",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanTitle(in), "cleanTitle(%q)", in)
	}
}

func TestRequests(t *testing.T) {
	title := titleRequest("hire?")
	assert.Equal(t, llm.TierSmall, title.Tier)
	assert.Equal(t, 50, title.MaxTokens)
	assert.Contains(t, title.Prompt, `"hire?"`)
	if assert.NotNil(t, title.Temperature) {
		assert.InDelta(t, 0.7, *title.Temperature, 1e-6)
	}

	report := reportRequest("", "## findings")
	assert.Equal(t, llm.TierReasoning, report.Tier)
	assert.Nil(t, report.Temperature)
	assert.Equal(t, DefaultReportInstructions, report.System)
	assert.Contains(t, report.Prompt, "## findings")

	custom := reportRequest("be brief", "f")
	assert.Equal(t, "be brief", custom.System)

	extract := extractRequest("a page", "a summary", "text")
	assert.Equal(t, llm.TierWorkhorse, extract.Tier)
	assert.Contains(t, extract.System, "You are given a page and your job is to extract a summary")
}

func TestFormatStep(t *testing.T) {
	assert.Equal(t, "Step: fetch", formatStep("fetch", ""))
	assert.Equal(t, "Step: fetch (page 2)", formatStep("fetch", "page 2"))
}
