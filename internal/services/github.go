package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v73/github"

	"discord-issue-bot/internal/config"
	"discord-issue-bot/internal/log"
	"discord-issue-bot/internal/models"
)

var (
	// ErrGitHubAppNotConfigured is returned when the state document lacks the repository or App identity.
	ErrGitHubAppNotConfigured = errors.New("GitHub App is not configured (repo_owner, repo_name, app_id and install_id are required)")
	// ErrPrivateKeyRequired is returned when no App private key was loaded.
	ErrPrivateKeyRequired = errors.New("GitHub App private key is required")
)

// IssueConfig identifies the repository issues are filed in and the GitHub
// App installation used to file them.
type IssueConfig struct {
	Owner          string
	Repo           string
	AppID          int64
	InstallationID int64
	PrivateKey     []byte

	// BaseURL is the REST API root, e.g. https://ghe.example.com/api/v3.
	// Empty means api.github.com.
	BaseURL string

	RetryInitialInterval time.Duration
	RetryMaxElapsed      time.Duration
	RequestTimeout       time.Duration
}

// NewIssueConfig combines the App identity from the state document with the
// runtime settings and the App private key.
func NewIssueConfig(settings Settings, cfg *config.Config, privateKey []byte) (IssueConfig, error) {
	if settings.RepoOwner == "" || settings.RepoName == "" || settings.AppID == "" || settings.InstallID == "" {
		return IssueConfig{}, ErrGitHubAppNotConfigured
	}
	if len(privateKey) == 0 {
		return IssueConfig{}, ErrPrivateKeyRequired
	}
	appID, err := strconv.ParseInt(settings.AppID, 10, 64)
	if err != nil {
		return IssueConfig{}, fmt.Errorf("%w: %q", models.ErrInvalidAppID, settings.AppID)
	}
	installID, err := strconv.ParseInt(settings.InstallID, 10, 64)
	if err != nil {
		return IssueConfig{}, fmt.Errorf("%w: %q", models.ErrInvalidInstallID, settings.InstallID)
	}

	return IssueConfig{
		Owner:                settings.RepoOwner,
		Repo:                 settings.RepoName,
		AppID:                appID,
		InstallationID:       installID,
		PrivateKey:           privateKey,
		BaseURL:              cfg.GitHubAPIURL,
		RetryInitialInterval: cfg.GitHubRetryInitialInterval,
		RetryMaxElapsed:      cfg.GitHubRetryMaxElapsed,
		RequestTimeout:       cfg.GitHubRequestTimeout,
	}, nil
}

// GitHubService files issues as a GitHub App installation.
type GitHubService struct {
	client *github.Client
	cfg    IssueConfig
}

// NewGitHubService creates a GitHubService. The installation transport signs
// the App assertion with the private key and exchanges it for an installation
// token, refreshing it before expiry. tr carries every outbound request; nil
// means http.DefaultTransport.
func NewGitHubService(cfg IssueConfig, tr http.RoundTripper) (*GitHubService, error) {
	if tr == nil {
		tr = http.DefaultTransport
	}

	itr, err := ghinstallation.New(tr, cfg.AppID, cfg.InstallationID, cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub App installation transport: %w", err)
	}

	client := github.NewClient(&http.Client{Transport: itr, Timeout: cfg.RequestTimeout})
	if cfg.BaseURL != "" {
		root := strings.TrimRight(cfg.BaseURL, "/")
		baseURL, err := url.Parse(root + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", cfg.BaseURL, err)
		}
		client.BaseURL = baseURL
		itr.BaseURL = root
	}

	return &GitHubService{client: client, cfg: cfg}, nil
}

// CreateIssue opens an issue from the draft and returns its URL. Transient
// failures are retried with exponential backoff until RetryMaxElapsed.
func (s *GitHubService) CreateIssue(ctx context.Context, draft *models.IssueDraft) (string, error) {
	if err := draft.Validate(); err != nil {
		return "", err
	}

	req := &github.IssueRequest{
		Title: github.Ptr(draft.Title),
		Body:  github.Ptr(draft.Body),
	}
	if len(draft.Labels) > 0 {
		labels := slices.Clone(draft.Labels)
		req.Labels = &labels
	}

	var issue *github.Issue
	attempt := 0
	operation := func() error {
		attempt++
		created, _, err := s.client.Issues.Create(ctx, s.cfg.Owner, s.cfg.Repo, req)
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			log.Warn(ctx, "Transient failure creating GitHub issue",
				"error", err,
				"attempt", attempt,
				"repo", s.cfg.Owner+"/"+s.cfg.Repo,
			)
			return err
		}
		issue = created
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.RetryInitialInterval
	bo.MaxElapsedTime = s.cfg.RetryMaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		log.Error(ctx, "Failed to create GitHub issue",
			"error", err,
			"attempts", attempt,
			"repo", s.cfg.Owner+"/"+s.cfg.Repo,
			"title", draft.Title,
			"operation", "create_issue",
		)
		return "", fmt.Errorf("failed to create issue in %s/%s: %w", s.cfg.Owner, s.cfg.Repo, err)
	}

	log.Info(ctx, "GitHub issue created",
		"repo", s.cfg.Owner+"/"+s.cfg.Repo,
		"issue_number", issue.GetNumber(),
		"url", issue.GetHTMLURL(),
		"labels", draft.Labels,
	)
	return issue.GetHTMLURL(), nil
}

// isRetryable separates transient upstream failures (5xx, rate limits,
// network errors) from permanent rejections such as bad credentials.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return true
	}

	// Installation token exchange failures.
	var tokenErr *ghinstallation.HTTPError
	if errors.As(err, &tokenErr) {
		if tokenErr.Response == nil {
			return true
		}
		return retryableStatus(tokenErr.Response.StatusCode)
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		if respErr.Response == nil {
			return false
		}
		return retryableStatus(respErr.Response.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func retryableStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}
