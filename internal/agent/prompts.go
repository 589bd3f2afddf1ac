package agent

import (
	"fmt"

	"github.com/knowyourdev/knowyourdev/internal/llm"
)

const titleSystemPrompt = "You are a helpful assistant that creates concise, descriptive titles."

func titleRequest(prompt string) llm.Request {
	return llm.Request{
		Tier:        llm.TierSmall,
		System:      titleSystemPrompt,
		Prompt:      fmt.Sprintf("Create a short, descriptive title (5-7 words max) for a research task with this prompt: %q", prompt),
		Temperature: llm.Temperature(0.7),
		MaxTokens:   50,
	}
}

// extractRequest asks the workhorse model to pull specific information out
// of a large block of text.
func extractRequest(whatThisIs, whatToExtract, text string) llm.Request {
	return llm.Request{
		Tier: llm.TierWorkhorse,
		System: fmt.Sprintf("You are a helpful assistant that is an expert at processing large amounts of textual "+
			"information. You are given %s and your job is to extract %s", whatThisIs, whatToExtract),
		Prompt:      fmt.Sprintf("Please extract from the following text: %q", text),
		Temperature: llm.Temperature(0.3),
	}
}

// DefaultReportInstructions are used when a run carries no prompt.
const DefaultReportInstructions = `You are an expert technical evaluator. Using only the research findings provided, write a structured markdown report about the developer. Include an overview, their technical strengths, notable projects, language and ecosystem focus, community involvement, and a short conclusion. Do not invent facts that are not supported by the findings.`

// reportRequest asks the reasoning model for the final report. Reasoning
// models take no temperature.
func reportRequest(prompt, findings string) llm.Request {
	system := prompt
	if system == "" {
		system = DefaultReportInstructions
	}
	return llm.Request{
		Tier:   llm.TierReasoning,
		System: system,
		Prompt: "Here are the research findings gathered so far. Write the final report in markdown.\n\n" + findings,
	}
}
