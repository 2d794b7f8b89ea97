// Package githubfix files GitHub issues for errors needing a human and
// opens pull requests for automated fixes.
package githubfix

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/errwatchd/internal/analysis"
)

// Issue is the created-issue result handed back to the orchestrator.
type Issue struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// PullRequest is the created-PR result.
type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	Branch string `json:"branch"`
}

// IssueCreator files a manual-intervention issue. The fix argument is nil
// when no fix was attempted, non-nil when a generated fix was rejected.
type IssueCreator interface {
	CreateIssue(ctx context.Context, a *analysis.Analysis, rejectedFix *analysis.Fix) (*Issue, error)
}

// PRCreator opens a branch with the fix's changes and a pull request.
type PRCreator interface {
	CreateFixPullRequest(ctx context.Context, fix *analysis.Fix, a *analysis.Analysis) (*PullRequest, error)
}

// Config identifies the target repository.
type Config struct {
	Token      string
	Owner      string
	Repo       string
	BaseBranch string
}

// Service implements IssueCreator and PRCreator on the GitHub API.
type Service struct {
	client *github.Client
	cfg    Config
	logger *zap.Logger
	nowFn  func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.nowFn = now }
}

// WithClient injects a prebuilt GitHub client, for tests pointing at a
// local HTTP stub.
func WithClient(c *github.Client) Option {
	return func(s *Service) { s.client = c }
}

// New creates a Service with token authentication.
func New(ctx context.Context, cfg Config, logger *zap.Logger, opts ...Option) (*Service, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, errors.New("github owner and repo are required")
	}
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{cfg: cfg, logger: logger, nowFn: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		if cfg.Token == "" {
			return nil, errors.New("github token not set")
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		s.client = github.NewClient(oauth2.NewClient(ctx, ts))
	}
	return s, nil
}

// CheckAccess probes the target repository. Used by the weekly health job.
func (s *Service) CheckAccess(ctx context.Context) error {
	_, _, err := s.client.Repositories.Get(ctx, s.cfg.Owner, s.cfg.Repo)
	if err != nil {
		return fmt.Errorf("repository %s/%s not reachable: %w", s.cfg.Owner, s.cfg.Repo, err)
	}
	return nil
}

// CreateIssue files a manual-intervention issue for the analysis. When
// rejectedFix is non-nil the issue records why automation stood down.
func (s *Service) CreateIssue(ctx context.Context, a *analysis.Analysis, rejectedFix *analysis.Fix) (*Issue, error) {
	if a == nil {
		return nil, errors.New("analysis is required")
	}

	title := fmt.Sprintf("[%s] %s", strings.ToUpper(string(a.Error.Severity)), truncate(a.Error.Message, 80))
	body := issueBody(a, rejectedFix)
	labels := issueLabels(a)

	issue, _, err := s.client.Issues.Create(ctx, s.cfg.Owner, s.cfg.Repo, &github.IssueRequest{
		Title:  github.String(title),
		Body:   github.String(body),
		Labels: &labels,
	})
	if err != nil {
		return nil, fmt.Errorf("creating issue: %w", err)
	}

	s.logger.Info("issue created",
		zap.Int("number", issue.GetNumber()),
		zap.String("error_id", a.Error.ID),
	)
	return &Issue{Number: issue.GetNumber(), URL: issue.GetHTMLURL()}, nil
}

// CreateFixPullRequest opens a branch off base, commits the fix's file
// changes, and raises a PR. The branch name embeds the error ID so repeat
// attempts for the same error collide visibly rather than piling up.
func (s *Service) CreateFixPullRequest(ctx context.Context, fix *analysis.Fix, a *analysis.Analysis) (*PullRequest, error) {
	if fix == nil || a == nil {
		return nil, errors.New("fix and analysis are required")
	}
	if len(fix.CodeChanges) == 0 {
		return nil, errors.New("fix has no code changes")
	}

	baseRef, _, err := s.client.Git.GetRef(ctx, s.cfg.Owner, s.cfg.Repo, "refs/heads/"+s.cfg.BaseBranch)
	if err != nil {
		return nil, fmt.Errorf("resolving base branch %s: %w", s.cfg.BaseBranch, err)
	}

	branch := "autofix/" + a.Error.ID
	newRef := &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: baseRef.Object.SHA},
	}
	if _, _, err := s.client.Git.CreateRef(ctx, s.cfg.Owner, s.cfg.Repo, newRef); err != nil {
		return nil, fmt.Errorf("creating branch %s: %w", branch, err)
	}

	for _, change := range fix.CodeChanges {
		msg := change.Description
		if msg == "" {
			msg = "autofix: update " + change.Path
		}
		opts := &github.RepositoryContentFileOptions{
			Message: github.String(msg),
			Content: []byte(change.Content),
			Branch:  github.String(branch),
		}
		if _, _, err := s.client.Repositories.CreateFile(ctx, s.cfg.Owner, s.cfg.Repo, change.Path, opts); err != nil {
			return nil, fmt.Errorf("committing %s: %w", change.Path, err)
		}
	}

	pr, _, err := s.client.PullRequests.Create(ctx, s.cfg.Owner, s.cfg.Repo, &github.NewPullRequest{
		Title: github.String("Autofix: " + truncate(fix.Description, 80)),
		Head:  github.String(branch),
		Base:  github.String(s.cfg.BaseBranch),
		Body:  github.String(prBody(fix, a)),
	})
	if err != nil {
		return nil, fmt.Errorf("creating pull request: %w", err)
	}

	s.logger.Info("fix pull request created",
		zap.Int("number", pr.GetNumber()),
		zap.String("branch", branch),
		zap.String("error_id", a.Error.ID),
	)
	return &PullRequest{Number: pr.GetNumber(), URL: pr.GetHTMLURL(), Branch: branch}, nil
}

func issueLabels(a *analysis.Analysis) []string {
	labels := []string{"auto-detected", "type:" + string(a.Error.Type)}
	if a.Error.Severity == "critical" || a.Error.Severity == "high" {
		labels = append(labels, "urgent")
	}
	return labels
}

func issueBody(a *analysis.Analysis, rejectedFix *analysis.Fix) string {
	var b strings.Builder
	b.WriteString("## Error\n\n")
	fmt.Fprintf(&b, "- **Type:** %s\n- **Severity:** %s\n- **Service:** %s\n- **Priority:** P%d\n\n",
		a.Error.Type, a.Error.Severity, a.Error.Context.Service, a.Priority)
	fmt.Fprintf(&b, "```\n%s\n```\n\n", a.Error.RawLine)

	b.WriteString("## Analysis\n\n")
	fmt.Fprintf(&b, "**Root cause:** %s\n\n", a.RootCause)
	if a.Impact != "" {
		fmt.Fprintf(&b, "**Impact:** %s\n\n", a.Impact)
	}
	if a.FixRecommendation != "" {
		fmt.Fprintf(&b, "**Recommended fix:** %s\n\n", a.FixRecommendation)
	}
	if len(a.RelatedFiles) > 0 {
		b.WriteString("**Related files:**\n")
		for _, f := range a.RelatedFiles {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "_Analysis confidence: %.2f (%s)_\n", a.Confidence, a.Provider)

	if rejectedFix != nil {
		b.WriteString("\n## Rejected automated fix\n\n")
		fmt.Fprintf(&b, "%s\n\n", rejectedFix.Description)
		fmt.Fprintf(&b, "_Not applied automatically: confidence %.2f, risk %s._\n",
			rejectedFix.Confidence, rejectedFix.RiskLevel)
	}
	return b.String()
}

func prBody(fix *analysis.Fix, a *analysis.Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Automated fix for error `%s`.\n\n", a.Error.ID)
	fmt.Fprintf(&b, "**Root cause:** %s\n\n", a.RootCause)
	fmt.Fprintf(&b, "**Fix:** %s\n\n", fix.Description)
	if len(fix.TestCases) > 0 {
		b.WriteString("**Suggested tests:**\n")
		for _, tc := range fix.TestCases {
			fmt.Fprintf(&b, "- %s\n", tc)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "_Fix confidence: %.2f, risk: %s. Review before merging._\n",
		fix.Confidence, fix.RiskLevel)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
