package agent

import (
	"fmt"
	"strings"

	"github.com/knowyourdev/knowyourdev/internal/model"
)

// FormatProfile renders the profile findings block.
func FormatProfile(u model.GitHubUser) string {
	var sb strings.Builder
	sb.WriteString("## GitHub profile\n\n")
	fmt.Fprintf(&sb, "- Username: %s\n", u.Login)
	optional := []struct {
		label string
		value *string
	}{
		{"Name", u.Name},
		{"Bio", u.Bio},
		{"Company", u.Company},
		{"Location", u.Location},
		{"Blog", u.Blog},
		{"Twitter", u.TwitterUsername},
	}
	for _, f := range optional {
		if f.value != nil && strings.TrimSpace(*f.value) != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", f.label, strings.TrimSpace(*f.value))
		}
	}
	if u.Hireable != nil {
		fmt.Fprintf(&sb, "- Available for hire: %t\n", *u.Hireable)
	}
	fmt.Fprintf(&sb, "- Number of public repositories: %d\n", u.PublicRepos)
	fmt.Fprintf(&sb, "- Number of public gists: %d\n", u.PublicGists)
	fmt.Fprintf(&sb, "- Number of followers: %d\n", u.Followers)
	fmt.Fprintf(&sb, "- Number of accounts followed: %d\n", u.Following)
	if !u.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "- Account created: %s\n", u.CreatedAt.UTC().Format("2006-01-02"))
	}
	if u.HTMLURL != "" {
		fmt.Fprintf(&sb, "- Profile: %s\n", u.HTMLURL)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatPinnedRepo renders one pinned repository with its summary.
func FormatPinnedRepo(p model.PinnedRepo, summary string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### [%s/%s](%s)\n\n", p.Author, p.Name, p.URL)
	if p.Description != "" {
		fmt.Fprintf(&sb, "- Description: %s\n", p.Description)
	}
	if p.Language != "" {
		fmt.Fprintf(&sb, "- Language: %s\n", p.Language)
	}
	fmt.Fprintf(&sb, "- Stars: %d\n- Forks: %d\n", p.Stars, p.Forks)
	if summary = strings.TrimSpace(summary); summary != "" {
		fmt.Fprintf(&sb, "\n%s\n", summary)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatRepoList renders a titled list of repositories.
func FormatRepoList(title string, repos []model.Repo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", title)
	for _, r := range repos {
		name := r.FullName
		if name == "" {
			name = r.Name
		}
		fmt.Fprintf(&sb, "- [%s](%s): %d stars", name, r.HTMLURL, r.Stars)
		if r.Language != "" {
			fmt.Fprintf(&sb, ", %s", r.Language)
		}
		if r.Description != nil && strings.TrimSpace(*r.Description) != "" {
			fmt.Fprintf(&sb, ". %s", strings.TrimSpace(*r.Description))
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatGists renders the gist sample.
func FormatGists(gists []model.Gist) string {
	var sb strings.Builder
	sb.WriteString("## Public gists\n\n")
	for _, g := range gists {
		desc := strings.TrimSpace(g.Description)
		if desc == "" {
			desc = "(no description)"
		}
		fmt.Fprintf(&sb, "- [%s](%s)", desc, g.HTMLURL)
		if len(g.Files) > 0 {
			fmt.Fprintf(&sb, ": %s", strings.Join(g.Files, ", "))
		}
		if len(g.Languages) > 0 {
			fmt.Fprintf(&sb, " (%s)", strings.Join(g.Languages, ", "))
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatLanguages renders the language breakdown.
func FormatLanguages(counts []LanguageCount) string {
	if len(counts) == 0 {
		return "## Language breakdown\n\nNo language data was available."
	}
	var sb strings.Builder
	sb.WriteString("## Language breakdown\n\n")
	for _, c := range counts {
		fmt.Fprintf(&sb, "- %s: %d (%.1f%%)\n", c.Language, c.Count, c.Percent)
	}
	return strings.TrimRight(sb.String(), "\n")
}
