package github

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/knowyourdev/knowyourdev/internal/model"
)

// FetchPinnedRepos scrapes the pinned repositories from username's profile page.
func (c *Client) FetchPinnedRepos(ctx context.Context, username string) ([]model.PinnedRepo, error) {
	page, err := call(ctx, c, "fetch pinned", func(ctx context.Context) ([]byte, error) {
		return c.getPage(ctx, c.profileURL(username))
	})
	if err != nil {
		return nil, asUserError(err)
	}
	repos, err := ParsePinnedRepos(page, c.webURL)
	if err != nil {
		return nil, err
	}
	return repos, nil
}

// ParsePinnedRepos extracts the pinned items of a profile page. webURL is the
// origin used to build each repository URL.
func ParsePinnedRepos(page []byte, webURL string) ([]model.PinnedRepo, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("github: parse pinned repositories: %w", err)
	}
	webURL = strings.TrimSuffix(webURL, "/")

	items := findAll(doc, func(n *html.Node) bool { return hasClass(n, "js-pinned-item-list-item") })
	repos := make([]model.PinnedRepo, 0, len(items))
	for _, item := range items {
		repos = append(repos, parsePinnedItem(item, webURL))
	}
	return repos, nil
}

func parsePinnedItem(item *html.Node, webURL string) model.PinnedRepo {
	var author, name string
	if a := findFirst(item, func(n *html.Node) bool { return isElement(n, "a") }); a != nil {
		parts := strings.Split(attr(a, "href"), "/")
		if len(parts) > 1 {
			author = parts[1]
		}
		if len(parts) > 2 {
			name = parts[2]
		}
	}

	desc := findFirst(item, func(n *html.Node) bool { return isElement(n, "p") && hasClass(n, "pinned-item-desc") })
	lang := findFirst(item, func(n *html.Node) bool {
		return isElement(n, "span") && attr(n, "itemprop") == "programmingLanguage"
	})
	meta := findAll(item, func(n *html.Node) bool { return isElement(n, "a") && hasClass(n, "pinned-item-meta") })

	metric := func(i int) int {
		if i >= len(meta) {
			return 0
		}
		v, err := strconv.Atoi(strings.ReplaceAll(text(meta[i]), ",", ""))
		if err != nil {
			return 0
		}
		return v
	}

	return model.PinnedRepo{
		Author:      author,
		Name:        name,
		Description: text(desc),
		Language:    text(lang),
		Stars:       metric(0),
		Forks:       metric(1),
		URL:         fmt.Sprintf("%s/%s/%s", webURL, author, name),
	}
}
