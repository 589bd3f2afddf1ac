package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/knowyourdev/knowyourdev/internal/github"
	"github.com/knowyourdev/knowyourdev/internal/model"
)

// Sample sizes for the research workflow.
const (
	TopStarredCount = 5
	WatchedSample   = 5
	GistSample      = 5
)

// DefaultSteps returns the research workflow in narrative order.
func DefaultSteps() []Step {
	return []Step{
		{Name: "profile", Run: profileStep},
		{Name: "pinned", Run: pinnedStep},
		{Name: "starred", Run: starredStep},
		{Name: "watched", Run: watchedStep},
		{Name: "gists", Run: gistsStep},
		{Name: "languages", Run: languagesStep},
	}
}

func profileStep(ctx context.Context, r *Run) error {
	if err := r.AppendLog(fmt.Sprintf("Fetching GitHub profile for %s", r.Username)); err != nil {
		return err
	}
	u, err := r.GitHub().FetchUser(ctx, r.Username)
	if err != nil {
		return fmt.Errorf("fetch profile: %w", err)
	}
	if err := r.AppendFindings(FormatProfile(u)); err != nil {
		return err
	}
	return r.AppendLog("Profile information collected")
}

func pinnedStep(ctx context.Context, r *Run) error {
	if err := r.AppendLog("Fetching pinned repositories"); err != nil {
		return err
	}
	repos, err := r.GitHub().FetchPinnedRepos(ctx, r.Username)
	if err != nil {
		return fmt.Errorf("fetch pinned repositories: %w", err)
	}
	r.Pinned = repos
	if len(repos) == 0 {
		return r.AppendFindings(fmt.Sprintf("## Pinned repositories\n\nNo pinned repositories were found for %s.", r.Username))
	}
	if err := r.AppendFindings(fmt.Sprintf("## Pinned repositories\n\n%s has %d pinned repositories.", r.Username, len(repos))); err != nil {
		return err
	}

	// One repository at a time to stay under GitHub and model rate limits.
	for _, repo := range repos {
		if !r.Active() {
			return ctx.Err()
		}
		if err := r.AppendLog(fmt.Sprintf("Analyzing pinned repository %s/%s", repo.Author, repo.Name)); err != nil {
			return err
		}
		summary, err := summarizeRepo(ctx, r, repo.URL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			_ = r.AppendLog(fmt.Sprintf("Could not summarize %s/%s: %v", repo.Author, repo.Name, err))
			summary = ""
		}
		if err := r.AppendFindings(FormatPinnedRepo(repo, summary)); err != nil {
			return err
		}
	}
	return nil
}

// summarizeRepo fetches a repository page and asks the workhorse model what
// the project is.
func summarizeRepo(ctx context.Context, r *Run, url string) (string, error) {
	page, err := r.GitHub().FetchRepoPage(ctx, url)
	if err != nil {
		return "", err
	}
	return r.LLM().Generate(ctx, extractRequest(
		"the text content of a GitHub repository page",
		"a concise summary (at most four sentences) of what the project does, the technologies it uses, and any signal of its maturity or adoption",
		github.PageText(page),
	))
}

func starredStep(ctx context.Context, r *Run) error {
	if err := r.AppendLog("Fetching starred repositories"); err != nil {
		return err
	}
	repos, err := r.GitHub().FetchStarredRepos(ctx, r.Username)
	if err != nil {
		return fmt.Errorf("fetch starred repositories: %w", err)
	}
	r.Starred = repos
	if len(repos) == 0 {
		return r.AppendFindings(fmt.Sprintf("## Top starred repositories\n\nNo starred repositories were found for %s.", r.Username))
	}
	top := github.TopStarred(repos, TopStarredCount)
	return r.AppendFindings(FormatRepoList("Top starred repositories", top))
}

func watchedStep(ctx context.Context, r *Run) error {
	if err := r.AppendLog("Fetching watched repositories"); err != nil {
		return err
	}
	repos, err := r.GitHub().FetchWatchedRepos(ctx, r.Username, WatchedSample)
	if err != nil {
		return fmt.Errorf("fetch watched repositories: %w", err)
	}
	if len(repos) == 0 {
		return r.AppendFindings(fmt.Sprintf("## Watched repositories\n\nNo watched repositories were found for %s.", r.Username))
	}
	if len(repos) > WatchedSample {
		repos = repos[:WatchedSample]
	}
	return r.AppendFindings(FormatRepoList("Watched repositories", repos))
}

func gistsStep(ctx context.Context, r *Run) error {
	if err := r.AppendLog("Fetching public gists"); err != nil {
		return err
	}
	gists, err := r.GitHub().FetchGists(ctx, r.Username, GistSample)
	if err != nil {
		return fmt.Errorf("fetch gists: %w", err)
	}
	if len(gists) == 0 {
		return r.AppendFindings(fmt.Sprintf("## Public gists\n\nNo public gists were found for %s.", r.Username))
	}
	if len(gists) > GistSample {
		gists = gists[:GistSample]
	}
	return r.AppendFindings(FormatGists(gists))
}

func languagesStep(_ context.Context, r *Run) error {
	if err := r.AppendLog("Computing language breakdown"); err != nil {
		return err
	}
	return r.AppendFindings(FormatLanguages(LanguageBreakdown(r.Pinned, r.Starred)))
}

// LanguageCount is the number of repositories using one language.
type LanguageCount struct {
	Language string
	Count    int
	Percent  float64
}

// LanguageBreakdown counts primary languages across pinned and starred
// repositories, most used first and ties by name.
func LanguageBreakdown(pinned []model.PinnedRepo, starred []model.Repo) []LanguageCount {
	counts := make(map[string]int)
	total := 0
	add := func(lang string) {
		if lang = strings.TrimSpace(lang); lang != "" {
			counts[lang]++
			total++
		}
	}
	for _, p := range pinned {
		add(p.Language)
	}
	for _, s := range starred {
		add(s.Language)
	}

	out := make([]LanguageCount, 0, len(counts))
	for lang, n := range counts {
		out = append(out, LanguageCount{Language: lang, Count: n, Percent: 100 * float64(n) / float64(total)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Language < out[j].Language
	})
	return out
}
