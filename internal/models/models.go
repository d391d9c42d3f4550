package models

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
)

var (
	ErrInvalidSnowflake     = errors.New("invalid snowflake identifier")
	ErrPrefixRequired       = errors.New("server prefix is required")
	ErrIssueChannelRequired = errors.New("server issue channel is required")
	ErrChatChannelRequired  = errors.New("server chat channel is required")
	ErrOrphanThreadStep     = errors.New("thread step recorded for a thread that is not open")
	ErrStepRequired         = errors.New("thread step token is required")
	ErrReporterRequired     = errors.New("thread reporter is required")
	ErrInvalidAppID         = errors.New("app_id must be numeric")
	ErrInvalidInstallID     = errors.New("install_id must be numeric")
	ErrTitleRequired        = errors.New("issue title is required")
)

// BotConfig is the persisted state document. It is loaded once at startup and
// rewritten in full after every mutation.
type BotConfig struct {
	Root          Snowflake                 `firestore:"root"       json:"root"`
	ErrorChannel  Snowflake                 `firestore:"error_ch"   json:"error_ch"`
	UpdateChannel Snowflake                 `firestore:"update_ch"  json:"update_ch"`
	UpdateMessage Snowflake                 `firestore:"update_msg" json:"update_msg"`
	RepoOwner     string                    `firestore:"repo_owner" json:"repo_owner"`
	RepoName      string                    `firestore:"repo_name"  json:"repo_name"`
	AppID         string                    `firestore:"app_id"     json:"app_id"`
	InstallID     string                    `firestore:"install_id" json:"install_id"`
	Servers       map[string]*ServerProfile `firestore:"servers"    json:"servers"` // keyed by guild ID
}

// NewBotConfig returns an empty state document.
func NewBotConfig() *BotConfig {
	return &BotConfig{Servers: make(map[string]*ServerProfile)}
}

// ServerProfile is the per-guild configuration created by the init command.
type ServerProfile struct {
	Issue     Snowflake              `firestore:"issue"           json:"issue"`
	Chat      Snowflake              `firestore:"chat"            json:"chat"`
	AfterPost Snowflake              `firestore:"after_post"      json:"after_post"` // unresolved-scan watermark
	Threads   []Snowflake            `firestore:"threads"         json:"threads"`    // threads awaiting a reporter response
	Prefix    string                 `firestore:"prefix"          json:"prefix"`
	Steps     map[string]*ThreadStep `firestore:"steps,omitempty" json:"steps,omitempty"` // keyed by thread ID
}

// ThreadStep is the explicit questionnaire position of an open thread.
type ThreadStep struct {
	Reporter Snowflake `firestore:"reporter" json:"reporter"`
	Step     string    `firestore:"step"     json:"step"`
	Prompt   Snowflake `firestore:"prompt"   json:"prompt"` // bot message carrying the current prompt
}

// Validate validates required fields for ThreadStep.
func (ts *ThreadStep) Validate() error {
	if ts.Step == "" {
		return ErrStepRequired
	}
	if ts.Reporter.IsZero() {
		return ErrReporterRequired
	}
	return nil
}

// HasThread reports whether the thread is mid-questionnaire.
func (sp *ServerProfile) HasThread(threadID Snowflake) bool {
	return slices.Contains(sp.Threads, threadID)
}

// Validate validates required fields for ServerProfile.
func (sp *ServerProfile) Validate() error {
	if sp.Prefix == "" {
		return ErrPrefixRequired
	}
	if sp.Issue.IsZero() {
		return ErrIssueChannelRequired
	}
	if sp.Chat.IsZero() {
		return ErrChatChannelRequired
	}
	for threadID, step := range sp.Steps {
		id, err := ParseSnowflake(threadID)
		if err != nil {
			return err
		}
		if !sp.HasThread(id) {
			return fmt.Errorf("%w: %s", ErrOrphanThreadStep, threadID)
		}
		if err := step.Validate(); err != nil {
			return fmt.Errorf("thread %s: %w", threadID, err)
		}
	}
	return nil
}

// Clone returns a deep copy of the profile.
func (sp *ServerProfile) Clone() *ServerProfile {
	out := *sp
	out.Threads = slices.Clone(sp.Threads)
	if sp.Steps != nil {
		out.Steps = make(map[string]*ThreadStep, len(sp.Steps))
		for k, v := range sp.Steps {
			step := *v
			out.Steps[k] = &step
		}
	}
	return &out
}

// Validate checks the document after load. Unknown keys are ignored by decoding
// into typed fields; known keys must be well formed.
func (bc *BotConfig) Validate() error {
	if bc.AppID != "" {
		if _, err := strconv.ParseInt(bc.AppID, 10, 64); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidAppID, bc.AppID)
		}
	}
	if bc.InstallID != "" {
		if _, err := strconv.ParseInt(bc.InstallID, 10, 64); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidInstallID, bc.InstallID)
		}
	}
	for guildID, server := range bc.Servers {
		if _, err := ParseSnowflake(guildID); err != nil {
			return err
		}
		if server == nil {
			return fmt.Errorf("server %s: %w", guildID, ErrPrefixRequired)
		}
		if err := server.Validate(); err != nil {
			return fmt.Errorf("server %s: %w", guildID, err)
		}
	}
	return nil
}

// Clone returns a deep copy of the document.
func (bc *BotConfig) Clone() *BotConfig {
	out := *bc
	out.Servers = make(map[string]*ServerProfile, len(bc.Servers))
	for k, v := range bc.Servers {
		out.Servers[k] = v.Clone()
	}
	return &out
}

// GitHubAppConfigured reports whether the document carries a complete GitHub App identity.
func (bc *BotConfig) GitHubAppConfigured() bool {
	return bc.RepoOwner != "" && bc.RepoName != "" && bc.AppID != "" && bc.InstallID != ""
}

// IssueDraft is an issue composed from a Discord submission, ready to be filed.
type IssueDraft struct {
	Title  string
	Body   string
	Labels []string
}

// Validate validates required fields for IssueDraft.
func (d *IssueDraft) Validate() error {
	if d.Title == "" {
		return ErrTitleRequired
	}
	return nil
}
