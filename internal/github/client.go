// Package github is a thin client over the GitHub REST and GraphQL APIs,
// covering the handful of read paths the dashboard proxies.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.github.com"

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// UpstreamError reports a non-2xx answer from GitHub, keeping the upstream
// status so handlers can map it to a 502.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("github: upstream status %d: %s", e.Status, e.Body)
}

type Repository struct {
	FullName        string `json:"full_name"`
	Description     string `json:"description"`
	Stars           int    `json:"stargazers_count"`
	Forks           int    `json:"forks_count"`
	OpenIssues      int    `json:"open_issues_count"`
	Language        string `json:"language"`
	DefaultBranch   string `json:"default_branch"`
	HTMLURL         string `json:"html_url"`
	PushedAt        string `json:"pushed_at"`
	SubscriberCount int    `json:"subscribers_count"`
}

type Issue struct {
	Number    int     `json:"number"`
	Title     string  `json:"title"`
	Body      string  `json:"body"`
	State     string  `json:"state"`
	HTMLURL   string  `json:"html_url"`
	Labels    []Label `json:"labels"`
	User      User    `json:"user"`
	Comments  int     `json:"comments"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

type Label struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type User struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

type Contributor struct {
	Login         string `json:"login"`
	AvatarURL     string `json:"avatar_url"`
	Contributions int    `json:"contributions"`
}

type SearchResult struct {
	TotalCount        int     `json:"total_count"`
	IncompleteResults bool    `json:"incomplete_results"`
	Items             []Issue `json:"items"`
}

func (c *Client) GetRepo(ctx context.Context, owner, repo string) (Repository, error) {
	var out Repository
	err := c.getJSON(ctx, fmt.Sprintf("/repos/%s/%s", owner, repo), &out)
	return out, err
}

func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (Issue, error) {
	var out Issue
	err := c.getJSON(ctx, fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number), &out)
	return out, err
}

func (c *Client) ListContributors(ctx context.Context, owner, repo string, limit int) ([]Contributor, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	var out []Contributor
	path := fmt.Sprintf("/repos/%s/%s/contributors?per_page=%d", owner, repo, limit)
	err := c.getJSON(ctx, path, &out)
	return out, err
}

// SearchIssues runs a GitHub issue search. The query is passed through
// verbatim; callers are responsible for qualifiers like is:issue.
func (c *Client) SearchIssues(ctx context.Context, query string, perPage int) (SearchResult, error) {
	if perPage <= 0 || perPage > 100 {
		perPage = 30
	}
	var out SearchResult
	path := "/search/issues?q=" + url.QueryEscape(query) + "&per_page=" + strconv.Itoa(perPage)
	err := c.getJSON(ctx, path, &out)
	return out, err
}

// GraphQL posts a query to the GraphQL endpoint and returns the raw
// response body. The dashboard forwards it to clients untouched.
func (c *Client) GraphQL(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/graphql", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: truncate(string(body))}
	}
	return json.RawMessage(body), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	c.authorize(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &UpstreamError{Status: resp.StatusCode, Body: truncate(string(body))}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

func truncate(s string) string {
	if len(s) > 512 {
		return s[:512]
	}
	return s
}
