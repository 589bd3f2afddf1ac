package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/knowyourdev/knowyourdev/internal/agent"
	"github.com/knowyourdev/knowyourdev/internal/config"
	"github.com/knowyourdev/knowyourdev/internal/github"
	"github.com/knowyourdev/knowyourdev/internal/llm"
	"github.com/knowyourdev/knowyourdev/internal/model"
	"github.com/knowyourdev/knowyourdev/internal/research"
	"github.com/knowyourdev/knowyourdev/internal/storage/lite"
)

var (
	researchPrompt  string
	researchDB      string
	researchTimeout time.Duration
)

// Log lines that mean the agent parked without a report.
var parkedMarkers = []string{"Error during research:", "Error generating report:"}

func init() {
	researchCmd.Flags().StringVarP(&researchPrompt, "prompt", "p", "", "extra instructions for the report")
	researchCmd.Flags().StringVar(&researchDB, "db", lite.Memory, "SQLite database path (in-memory by default)")
	researchCmd.Flags().DurationVar(&researchTimeout, "timeout", 10*time.Minute, "give up after this long")
}

var researchCmd = &cobra.Command{
	Use:   "research <username>",
	Short: "Research a GitHub user in-process and print the report",
	Long: `Run one research locally, without a server.

Every state the agent publishes is printed as it happens: status changes and
new log lines go to stderr, the final report goes to stdout.

Reads the same environment as the server (GITHUB_*, OPENAI_*, KYD_MODEL_*,
KYD_CALL_*), except that KYD_AGENT_SECRET is not needed.

Examples:
  # Research octocat with an in-memory store
  kyd research octocat

  # Keep the record in a local database
  kyd research octocat --db ./knowyourdev.db --prompt "focus on Go work"`,
	Args: cobra.ExactArgs(1),
	RunE: runResearch,
}

func runResearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), researchTimeout)
	defer cancel()
	logger := cliLogger()

	store, err := lite.Open(ctx, researchDB)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	gh, err := github.New(github.Config{
		Token:       cfg.GitHubToken,
		APIURL:      cfg.GitHubAPIURL,
		WebURL:      cfg.GitHubWebURL,
		RPS:         cfg.GitHubRPS,
		Burst:       cfg.GitHubBurst,
		CallTimeout: cfg.CallTimeout,
		Retries:     cfg.CallRetries,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	var client llm.Client = llm.Unavailable{}
	if cfg.OpenAIAPIKey != "" {
		client, err = llm.NewEinoClient(ctx, llm.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Models: map[llm.Tier]string{
				llm.TierSmall:     cfg.ModelSmall,
				llm.TierWorkhorse: cfg.ModelWorkhorse,
				llm.TierReasoning: cfg.ModelReasoning,
			},
			CallTimeout: cfg.CallTimeout,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: OPENAI_API_KEY is not set, the report cannot be generated")
	}

	registry := agent.NewRegistry(&agent.Deps{GitHub: gh, LLM: client, Store: store, Logger: logger}, 0)
	defer registry.Close()

	svc := research.NewService(gh, store, registry, logger)
	started, err := svc.Start(ctx, model.StartResearchRequest{Username: args[0], Prompt: researchPrompt})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "research %s started for %s\n", started.ResearchID, started.Username)

	a, err := registry.Get(ctx, started.ResearchID)
	if err != nil {
		return err
	}
	states, unsubscribe := a.Subscribe()
	defer unsubscribe()

	final, err := follow(ctx, states, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), *final.Report)
	return nil
}

// loadConfig parses the server's environment and checks only what an
// in-process research uses.
func loadConfig() (config.Config, error) {
	cfg, err := config.Parse()
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ValidateClients(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// follow prints every published state until the research completes, parks
// on an error, or ctx ends.
func follow(ctx context.Context, states <-chan model.AgentState, out io.Writer) (model.AgentState, error) {
	var (
		status  model.AgentStatus
		printed int
	)
	for {
		select {
		case <-ctx.Done():
			return model.AgentState{}, fmt.Errorf("research did not finish: %w", ctx.Err())
		case s, ok := <-states:
			if !ok {
				return model.AgentState{}, errors.New("agent stopped publishing")
			}
			if s.Status != status {
				fmt.Fprintf(out, "status: %s\n", s.Status)
				status = s.Status
				if s.Status == model.StatusInactive {
					printed = 0
				}
			}
			// The log only grows within a run.
			var fresh string
			if len(s.Log) > printed {
				fresh = strings.TrimPrefix(s.Log[printed:], "\n")
				printed = len(s.Log)
			}
			for _, line := range strings.Split(fresh, "\n") {
				if line == "" {
					continue
				}
				fmt.Fprintf(out, "  %s\n", line)
				for _, marker := range parkedMarkers {
					if strings.Contains(line, marker) {
						return s, fmt.Errorf("research stopped: %s", line)
					}
				}
			}
			if s.Status == model.StatusComplete {
				return s, nil
			}
		}
	}
}
