package model

import "time"

// UserTypeUser is the GitHub account type accepted for research.
const UserTypeUser = "User"

// GitHubUser is the subset of the GitHub REST user object the service uses.
type GitHubUser struct {
	Login           string    `json:"login"`
	ID              int64     `json:"id"`
	NodeID          string    `json:"node_id"`
	Email           *string   `json:"email"`
	AvatarURL       string    `json:"avatar_url"`
	HTMLURL         string    `json:"html_url"`
	Name            *string   `json:"name"`
	Company         *string   `json:"company"`
	Blog            *string   `json:"blog"`
	Hireable        *bool     `json:"hireable"`
	Location        *string   `json:"location"`
	Bio             *string   `json:"bio"`
	TwitterUsername *string   `json:"twitter_username"`
	PublicRepos     int       `json:"public_repos"`
	PublicGists     int       `json:"public_gists"`
	Followers       int       `json:"followers"`
	Following       int       `json:"following"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Type            string    `json:"type"`
}

// IsUser reports whether the account is a personal account, not an organization.
func (u GitHubUser) IsUser() bool {
	return u.Type == UserTypeUser
}

// Repo is a repository as returned by the starred and watched listings.
type Repo struct {
	Owner       string  `json:"owner"`
	Name        string  `json:"name"`
	FullName    string  `json:"full_name"`
	Description *string `json:"description"`
	HTMLURL     string  `json:"html_url"`
	Language    string  `json:"language"`
	Stars       int     `json:"stargazers_count"`
	Forks       int     `json:"forks_count"`
}

// PinnedRepo is a repository scraped from a profile's pinned list.
type PinnedRepo struct {
	Author      string `json:"author"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Language    string `json:"language"`
	Stars       int    `json:"stars"`
	Forks       int    `json:"forks"`
	URL         string `json:"url"`
}

// Gist is a public gist summary.
type Gist struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	HTMLURL     string    `json:"html_url"`
	Files       []string  `json:"files"`
	Languages   []string  `json:"languages"`
	CreatedAt   time.Time `json:"created_at"`
}

// RepoPage is the readable text extracted from a repository's HTML page.
type RepoPage struct {
	URL         string
	Title       string
	Description string
	Headings    []string
	Readme      string
}
