package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"discord-issue-bot/internal/log"
	"discord-issue-bot/internal/models"
)

// ErrServerNotFound is returned for guilds that were never initialised.
var ErrServerNotFound = errors.New("server not registered")

// Settings are the process-wide fields of the state document with identifiers
// in their Discord string form. Unset identifiers are "".
type Settings struct {
	RootID          string
	ErrorChannelID  string
	UpdateChannelID string
	UpdateMessageID string
	RepoOwner       string
	RepoName        string
	AppID           string
	InstallID       string
}

// Stats summarises the registry for the status endpoint.
type Stats struct {
	Servers     int `json:"servers"`
	OpenThreads int `json:"open_threads"`
}

// Registry owns the in-memory state document. Every mutation is persisted
// before the mutating call returns.
type Registry struct {
	store StateStore

	mu  sync.RWMutex
	doc *models.BotConfig

	// saveMu orders writes so a later mutation is never overwritten by an
	// earlier snapshot.
	saveMu sync.Mutex

	locksMu    sync.Mutex
	guildLocks map[string]*sync.Mutex
}

// NewRegistry wraps a loaded state document.
func NewRegistry(store StateStore, doc *models.BotConfig) *Registry {
	if doc == nil {
		doc = models.NewBotConfig()
	}
	if doc.Servers == nil {
		doc.Servers = make(map[string]*models.ServerProfile)
	}
	return &Registry{
		store:      store,
		doc:        doc,
		guildLocks: make(map[string]*sync.Mutex),
	}
}

// LockGuild serialises multi-step work on one guild, such as reading a
// thread's step, sending the next prompt, and recording it. The returned
// function releases the lock.
func (r *Registry) LockGuild(guildID string) func() {
	r.locksMu.Lock()
	mu, ok := r.guildLocks[guildID]
	if !ok {
		mu = &sync.Mutex{}
		r.guildLocks[guildID] = mu
	}
	r.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Settings returns the process-wide settings.
func (r *Registry) Settings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Settings{
		RootID:          r.doc.Root.String(),
		ErrorChannelID:  r.doc.ErrorChannel.String(),
		UpdateChannelID: r.doc.UpdateChannel.String(),
		UpdateMessageID: r.doc.UpdateMessage.String(),
		RepoOwner:       r.doc.RepoOwner,
		RepoName:        r.doc.RepoName,
		AppID:           r.doc.AppID,
		InstallID:       r.doc.InstallID,
	}
}

// Document returns a copy of the whole state document.
func (r *Registry) Document() *models.BotConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc.Clone()
}

// IsAuthorized reports whether a user may approve issues and react in the
// issue channel. Only the root user is authorized, and never the bot itself.
func (r *Registry) IsAuthorized(userID, botID string) bool {
	if userID == "" || userID == botID {
		return false
	}
	return userID == r.Settings().RootID
}

// Server returns a copy of a guild's profile.
func (r *Registry) Server(guildID string) (*models.ServerProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	server, ok := r.doc.Servers[guildID]
	if !ok {
		return nil, false
	}
	return server.Clone(), true
}

// Stats counts registered guilds and open questionnaire threads.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{Servers: len(r.doc.Servers)}
	for _, server := range r.doc.Servers {
		stats.OpenThreads += len(server.Threads)
	}
	return stats
}

// InitServer registers a guild, replacing any previous profile along with its
// open threads.
func (r *Registry) InitServer(ctx context.Context, guildID, prefix, issueChannelID, chatChannelID string) error {
	if _, err := models.ParseSnowflake(guildID); err != nil {
		return err
	}
	issue, err := models.ParseSnowflake(issueChannelID)
	if err != nil {
		return err
	}
	chat, err := models.ParseSnowflake(chatChannelID)
	if err != nil {
		return err
	}

	profile := &models.ServerProfile{
		Issue:   issue,
		Chat:    chat,
		Threads: []models.Snowflake{},
		Prefix:  prefix,
	}
	if err := profile.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	r.doc.Servers[guildID] = profile
	r.mu.Unlock()

	log.Info(ctx, "Server initialised",
		"guild_id", guildID,
		"prefix", prefix,
		"issue_channel_id", issueChannelID,
		"chat_channel_id", chatChannelID,
	)
	return r.persist(ctx)
}

// ThreadStep returns the recorded step of a thread. open reports whether the
// thread is mid-questionnaire; step is nil for open threads recorded by a
// deployment that did not keep step records.
func (r *Registry) ThreadStep(guildID, threadID string) (step *models.ThreadStep, open bool) {
	id, err := models.ParseSnowflake(threadID)
	if err != nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	server, ok := r.doc.Servers[guildID]
	if !ok || !server.HasThread(id) {
		return nil, false
	}
	if recorded, ok := server.Steps[threadID]; ok {
		out := *recorded
		return &out, true
	}
	return nil, true
}

// SetThreadStep opens the thread if needed and records its current step.
func (r *Registry) SetThreadStep(ctx context.Context, guildID, threadID, reporterID, step, promptID string) error {
	thread, err := models.ParseSnowflake(threadID)
	if err != nil {
		return err
	}
	reporter, err := models.ParseSnowflake(reporterID)
	if err != nil {
		return err
	}
	prompt, err := models.ParseSnowflake(promptID)
	if err != nil {
		return err
	}
	record := &models.ThreadStep{Reporter: reporter, Step: step, Prompt: prompt}
	if err := record.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	server, ok := r.doc.Servers[guildID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrServerNotFound, guildID)
	}
	if !server.HasThread(thread) {
		server.Threads = append(server.Threads, thread)
	}
	if server.Steps == nil {
		server.Steps = make(map[string]*models.ThreadStep)
	}
	server.Steps[threadID] = record
	r.mu.Unlock()

	log.Debug(ctx, "Thread step recorded",
		"guild_id", guildID,
		"thread_id", threadID,
		"step", step,
	)
	return r.persist(ctx)
}

// CloseThread removes a thread from the open set once its questionnaire is complete.
func (r *Registry) CloseThread(ctx context.Context, guildID, threadID string) error {
	thread, err := models.ParseSnowflake(threadID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	server, ok := r.doc.Servers[guildID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrServerNotFound, guildID)
	}
	server.Threads = slices.DeleteFunc(server.Threads, func(id models.Snowflake) bool { return id == thread })
	delete(server.Steps, threadID)
	if len(server.Steps) == 0 {
		server.Steps = nil
	}
	r.mu.Unlock()

	log.Info(ctx, "Thread closed",
		"guild_id", guildID,
		"thread_id", threadID,
	)
	return r.persist(ctx)
}

// AdvanceWatermark moves the unresolved-scan watermark forward. It never moves
// backward; the effective watermark is returned.
func (r *Registry) AdvanceWatermark(ctx context.Context, guildID, messageID string) (string, error) {
	id, err := models.ParseSnowflake(messageID)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	server, ok := r.doc.Servers[guildID]
	if !ok {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrServerNotFound, guildID)
	}
	if id > server.AfterPost {
		server.AfterPost = id
	}
	current := server.AfterPost.String()
	r.mu.Unlock()

	return current, r.persist(ctx)
}

// SetPendingUpdate records the message to edit once the bot has restarted.
func (r *Registry) SetPendingUpdate(ctx context.Context, channelID, messageID string) error {
	channel, err := models.ParseSnowflake(channelID)
	if err != nil {
		return err
	}
	message, err := models.ParseSnowflake(messageID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.doc.UpdateChannel = channel
	r.doc.UpdateMessage = message
	r.mu.Unlock()

	return r.persist(ctx)
}

// ClearPendingUpdate forgets the pending update notice.
func (r *Registry) ClearPendingUpdate(ctx context.Context) error {
	r.mu.Lock()
	r.doc.UpdateChannel = 0
	r.doc.UpdateMessage = 0
	r.mu.Unlock()

	return r.persist(ctx)
}

// persist writes a snapshot of the document. The snapshot is taken while
// holding saveMu so writes land in mutation order.
func (r *Registry) persist(ctx context.Context) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.RLock()
	snapshot := r.doc.Clone()
	r.mu.RUnlock()

	if err := r.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to persist state: %w", err)
	}
	return nil
}
