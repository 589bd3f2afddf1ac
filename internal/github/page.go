package github

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/knowyourdev/knowyourdev/internal/model"
)

// maxReadmeChars bounds the readme text handed to the summarizer.
const maxReadmeChars = 12000

// FetchRepoPage fetches a repository page and extracts its readable text.
func (c *Client) FetchRepoPage(ctx context.Context, pageURL string) (model.RepoPage, error) {
	page, err := call(ctx, c, "fetch repo page", func(ctx context.Context) ([]byte, error) {
		return c.getPage(ctx, pageURL)
	})
	if err != nil {
		return model.RepoPage{}, err
	}
	return ParseRepoPage(page, pageURL)
}

// ParseRepoPage extracts the title, description, headings and readme of a
// repository page.
func ParseRepoPage(page []byte, pageURL string) (model.RepoPage, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return model.RepoPage{}, fmt.Errorf("github: parse repo page: %w", err)
	}

	out := model.RepoPage{URL: pageURL}
	out.Title = text(findFirst(doc, func(n *html.Node) bool { return isElement(n, "title") }))

	if meta := findFirst(doc, func(n *html.Node) bool {
		return isElement(n, "meta") && attr(n, "name") == "description"
	}); meta != nil {
		out.Description = strings.TrimSpace(attr(meta, "content"))
	}
	if out.Description == "" {
		out.Description = text(findFirst(doc, func(n *html.Node) bool { return hasClass(n, "repo-description") }))
	}

	readme := findFirst(doc, func(n *html.Node) bool { return attr(n, "id") == "readme" })
	for _, h := range findAll(doc, isHeading) {
		if t := text(h); t != "" {
			out.Headings = append(out.Headings, t)
		}
	}

	out.Readme = text(readme)
	if len(out.Readme) > maxReadmeChars {
		out.Readme = strings.ToValidUTF8(out.Readme[:maxReadmeChars], "")
	}
	return out, nil
}

func isHeading(n *html.Node) bool {
	if n.Type != html.ElementNode || len(n.Data) != 2 || n.Data[0] != 'h' {
		return false
	}
	return n.Data[1] >= '1' && n.Data[1] <= '6'
}

// PageText renders the extracted page as plain text for summarization.
func PageText(p model.RepoPage) string {
	var sb strings.Builder
	if p.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", p.Title)
	}
	if p.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", p.Description)
	}
	if len(p.Headings) > 0 {
		fmt.Fprintf(&sb, "Headings: %s\n", strings.Join(p.Headings, " | "))
	}
	if p.Readme != "" {
		fmt.Fprintf(&sb, "\nREADME:\n%s\n", p.Readme)
	}
	return sb.String()
}
