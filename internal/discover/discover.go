// Package discover aggregates open bounty candidates from GitHub issue
// search and the external platform feed, scoring them for the dashboard's
// discovery view.
package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bountyboard/internal/csvimport"
	"bountyboard/internal/github"
)

// Candidate is a normalized prospect from any source.
type Candidate struct {
	Title     string   `json:"title"`
	Source    string   `json:"source"`
	SourceURL string   `json:"source_url"`
	Repo      string   `json:"repo,omitempty"`
	Value     *float64 `json:"value,omitempty"`
	Labels    []string `json:"labels,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
	Score     float64  `json:"score"`
}

// Result carries candidates from the sources that answered plus one error
// string per source that failed. A run with at least one live source
// succeeds partially instead of failing whole.
type Result struct {
	Candidates []Candidate `json:"candidates"`
	Errors     []string    `json:"errors"`
}

type Service struct {
	GitHub      *github.Client
	GitHubQuery string
	FeedURL     string
	HTTP        *http.Client
	Now         func() time.Time
}

func New(gh *github.Client, query, feedURL string) *Service {
	return &Service{
		GitHub:      gh,
		GitHubQuery: query,
		FeedURL:     feedURL,
		HTTP:        &http.Client{Timeout: 10 * time.Second},
		Now:         time.Now,
	}
}

// Labels that signal an approachable task. Matching any of them lifts the
// affinity component of the score.
var affinityLabels = []string{"bounty", "good first issue", "help wanted", "funded"}

// Run fans out to all configured sources concurrently and merges the
// answers. Duplicate source URLs keep the higher-value candidate.
func (s *Service) Run(ctx context.Context, limit int) (Result, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		mu         sync.Mutex
		candidates []Candidate
		srcErrors  []string
	)
	collect := func(cs []Candidate, err error, source string) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			srcErrors = append(srcErrors, fmt.Sprintf("%s: %v", source, err))
			return
		}
		candidates = append(candidates, cs...)
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.GitHub != nil && s.GitHubQuery != "" {
		g.Go(func() error {
			cs, err := s.fromGitHub(gctx, limit)
			collect(cs, err, "github")
			return nil
		})
	}
	if s.FeedURL != "" {
		g.Go(func() error {
			cs, err := s.fromFeed(gctx)
			collect(cs, err, "platform")
			return nil
		})
	}
	g.Wait()

	merged := dedupe(candidates)
	s.score(merged)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > limit {
		merged = merged[:limit]
	}
	res := Result{Candidates: merged, Errors: srcErrors}
	if res.Candidates == nil {
		res.Candidates = []Candidate{}
	}
	if res.Errors == nil {
		res.Errors = []string{}
	}
	return res, nil
}

func (s *Service) fromGitHub(ctx context.Context, limit int) ([]Candidate, error) {
	sr, err := s.GitHub.SearchIssues(ctx, s.GitHubQuery, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(sr.Items))
	for _, issue := range sr.Items {
		c := Candidate{
			Title:     issue.Title,
			Source:    "github",
			SourceURL: issue.HTMLURL,
			CreatedAt: issue.CreatedAt,
			Repo:      repoFromIssueURL(issue.HTMLURL),
		}
		for _, l := range issue.Labels {
			c.Labels = append(c.Labels, l.Name)
		}
		// Issue bodies often carry the reward inline ("$500 bounty").
		if v := csvimport.ParseMoney(issue.Title); v != nil {
			c.Value = v
		} else if v := csvimport.ParseMoney(issue.Body); v != nil {
			c.Value = v
		}
		out = append(out, c)
	}
	return out, nil
}

// feedItem is the platform feed's wire shape.
type feedItem struct {
	Title     string   `json:"title"`
	Amount    *float64 `json:"amount"`
	URL       string   `json:"url"`
	Repo      string   `json:"repo"`
	Tags      []string `json:"tags"`
	CreatedAt string   `json:"created_at"`
}

func (s *Service) fromFeed(ctx context.Context) ([]Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.FeedURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed status %d: %s", resp.StatusCode, string(body))
	}
	var items []feedItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	out := make([]Candidate, 0, len(items))
	for _, it := range items {
		if it.Title == "" || it.URL == "" {
			continue
		}
		out = append(out, Candidate{
			Title:     it.Title,
			Source:    "platform",
			SourceURL: it.URL,
			Repo:      it.Repo,
			Value:     it.Amount,
			Labels:    it.Tags,
			CreatedAt: it.CreatedAt,
		})
	}
	return out, nil
}

func dedupe(cs []Candidate) []Candidate {
	byURL := map[string]int{}
	var out []Candidate
	for _, c := range cs {
		key := strings.TrimRight(c.SourceURL, "/")
		if idx, ok := byURL[key]; ok {
			if higherValue(c, out[idx]) {
				out[idx] = c
			}
			continue
		}
		byURL[key] = len(out)
		out = append(out, c)
	}
	return out
}

// Filter narrows candidates by language label and minimum value. A zero
// minValue and empty language pass everything through.
func Filter(cs []Candidate, language string, minValue float64) []Candidate {
	if language == "" && minValue <= 0 {
		return cs
	}
	lang := strings.ToLower(strings.TrimSpace(language))
	out := make([]Candidate, 0, len(cs))
	for _, c := range cs {
		if minValue > 0 && (c.Value == nil || *c.Value < minValue) {
			continue
		}
		if lang != "" && !hasLabel(c.Labels, lang) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if strings.Contains(strings.ToLower(l), want) {
			return true
		}
	}
	return false
}

func higherValue(a, b Candidate) bool {
	if a.Value == nil {
		return false
	}
	if b.Value == nil {
		return true
	}
	return *a.Value > *b.Value
}

// score sets each candidate's score in place:
// 0.5 * normalized value + 0.3 * recency + 0.2 * label affinity.
func (s *Service) score(cs []Candidate) {
	maxValue := 0.0
	for _, c := range cs {
		if c.Value != nil && *c.Value > maxValue {
			maxValue = *c.Value
		}
	}
	now := s.Now()
	for i := range cs {
		var valueNorm float64
		if cs[i].Value != nil && maxValue > 0 {
			valueNorm = *cs[i].Value / maxValue
		}
		cs[i].Score = round3(0.5*valueNorm + 0.3*recency(now, cs[i].CreatedAt) + 0.2*affinity(cs[i].Labels))
	}
}

// recency decays linearly over 30 days: today is 1, anything 30+ days old
// (or unparsable) is 0.
func recency(now time.Time, createdAt string) float64 {
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return 0
	}
	days := now.Sub(t).Hours() / 24
	if days < 0 {
		days = 0
	}
	if days >= 30 {
		return 0
	}
	return 1 - days/30
}

func affinity(labels []string) float64 {
	for _, l := range labels {
		ll := strings.ToLower(l)
		for _, want := range affinityLabels {
			if strings.Contains(ll, want) {
				return 1
			}
		}
	}
	return 0
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func repoFromIssueURL(u string) string {
	// https://github.com/<owner>/<repo>/issues/<n>
	const host = "github.com/"
	idx := strings.Index(u, host)
	if idx < 0 {
		return ""
	}
	parts := strings.Split(u[idx+len(host):], "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[0] + "/" + parts[1]
}
