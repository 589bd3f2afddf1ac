package github

import (
	"context"
	"fmt"
	"sort"

	gh "github.com/google/go-github/v57/github"

	"github.com/knowyourdev/knowyourdev/internal/model"
)

// starredPageSize is the number of starred repositories fetched for ranking.
const starredPageSize = 100

// FetchUser returns the public profile for username.
func (c *Client) FetchUser(ctx context.Context, username string) (model.GitHubUser, error) {
	u, err := call(ctx, c, "fetch user", func(ctx context.Context) (*gh.User, error) {
		u, _, err := c.api.Users.Get(ctx, username)
		return u, err
	})
	if err != nil {
		return model.GitHubUser{}, asUserError(err)
	}
	return userFromAPI(u), nil
}

// FetchStarredRepos returns up to the first page of repositories starred by username.
func (c *Client) FetchStarredRepos(ctx context.Context, username string) ([]model.Repo, error) {
	starred, err := call(ctx, c, "fetch starred", func(ctx context.Context) ([]*gh.StarredRepository, error) {
		s, _, err := c.api.Activity.ListStarred(ctx, username, &gh.ActivityListStarredOptions{
			ListOptions: gh.ListOptions{PerPage: starredPageSize},
		})
		return s, err
	})
	if err != nil {
		return nil, asUserError(err)
	}
	repos := make([]model.Repo, 0, len(starred))
	for _, s := range starred {
		if s.Repository != nil {
			repos = append(repos, repoFromAPI(s.Repository))
		}
	}
	return repos, nil
}

// FetchWatchedRepos returns up to limit repositories watched by username, in API order.
func (c *Client) FetchWatchedRepos(ctx context.Context, username string, limit int) ([]model.Repo, error) {
	watched, err := call(ctx, c, "fetch watched", func(ctx context.Context) ([]*gh.Repository, error) {
		r, _, err := c.api.Activity.ListWatched(ctx, username, &gh.ListOptions{PerPage: limit})
		return r, err
	})
	if err != nil {
		return nil, asUserError(err)
	}
	repos := make([]model.Repo, 0, len(watched))
	for _, r := range watched {
		repos = append(repos, repoFromAPI(r))
	}
	return firstN(repos, limit), nil
}

// FetchGists returns up to limit public gists of username, in API order.
func (c *Client) FetchGists(ctx context.Context, username string, limit int) ([]model.Gist, error) {
	list, err := call(ctx, c, "fetch gists", func(ctx context.Context) ([]*gh.Gist, error) {
		g, _, err := c.api.Gists.List(ctx, username, &gh.GistListOptions{
			ListOptions: gh.ListOptions{PerPage: limit},
		})
		return g, err
	})
	if err != nil {
		return nil, asUserError(err)
	}
	gists := make([]model.Gist, 0, len(list))
	for _, g := range list {
		gists = append(gists, gistFromAPI(g))
	}
	return firstN(gists, limit), nil
}

func firstN[T any](s []T, n int) []T {
	if n >= 0 && len(s) > n {
		return s[:n]
	}
	return s
}

func userFromAPI(u *gh.User) model.GitHubUser {
	return model.GitHubUser{
		Login:           u.GetLogin(),
		ID:              u.GetID(),
		NodeID:          u.GetNodeID(),
		Email:           u.Email,
		AvatarURL:       u.GetAvatarURL(),
		HTMLURL:         u.GetHTMLURL(),
		Name:            u.Name,
		Company:         u.Company,
		Blog:            u.Blog,
		Hireable:        u.Hireable,
		Location:        u.Location,
		Bio:             u.Bio,
		TwitterUsername: u.TwitterUsername,
		PublicRepos:     u.GetPublicRepos(),
		PublicGists:     u.GetPublicGists(),
		Followers:       u.GetFollowers(),
		Following:       u.GetFollowing(),
		CreatedAt:       u.GetCreatedAt().Time,
		UpdatedAt:       u.GetUpdatedAt().Time,
		Type:            u.GetType(),
	}
}

func repoFromAPI(r *gh.Repository) model.Repo {
	return model.Repo{
		Owner:       r.GetOwner().GetLogin(),
		Name:        r.GetName(),
		FullName:    r.GetFullName(),
		Description: r.Description,
		HTMLURL:     r.GetHTMLURL(),
		Language:    r.GetLanguage(),
		Stars:       r.GetStargazersCount(),
		Forks:       r.GetForksCount(),
	}
}

func gistFromAPI(g *gh.Gist) model.Gist {
	out := model.Gist{
		ID:          g.GetID(),
		Description: g.GetDescription(),
		HTMLURL:     g.GetHTMLURL(),
		CreatedAt:   g.GetCreatedAt().Time,
	}
	langs := make(map[string]bool)
	for name, f := range g.Files {
		out.Files = append(out.Files, string(name))
		if l := f.GetLanguage(); l != "" && !langs[l] {
			langs[l] = true
			out.Languages = append(out.Languages, l)
		}
	}
	sort.Strings(out.Files)
	sort.Strings(out.Languages)
	return out
}

// TopStarred returns the n repositories with the most stars. Ties keep their
// original order.
func TopStarred(repos []model.Repo, n int) []model.Repo {
	sorted := make([]model.Repo, len(repos))
	copy(sorted, repos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Stars > sorted[j].Stars
	})
	return firstN(sorted, n)
}

// profileURL returns the web profile address for username.
func (c *Client) profileURL(username string) string {
	return fmt.Sprintf("%s/%s", c.webURL, username)
}
