package handlers

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"discord-issue-bot/internal/log"
	"discord-issue-bot/internal/models"
	"discord-issue-bot/internal/services"
)

const (
	// errorReportTimeout bounds delivery of an error report after the event
	// context may already have expired.
	errorReportTimeout = 10 * time.Second
	threadNameLimit    = 50
	threadNameFallback = "Issue report"
)

// ErrIssueFilingUnavailable is returned when an issue command arrives but the
// GitHub App is not configured.
var ErrIssueFilingUnavailable = errors.New("issue filing is not configured")

// IssueCreator files a composed issue and returns its URL.
type IssueCreator interface {
	CreateIssue(ctx context.Context, draft *models.IssueDraft) (string, error)
}

// BotHandler reacts to Discord gateway events.
type BotHandler struct {
	discord  *services.DiscordService
	registry *services.Registry
	issues   IssueCreator
	restart  *RestartSignal

	eventTimeout   time.Duration
	archiveMinutes int
}

// BotOptions carries the event-handling settings of a BotHandler.
type BotOptions struct {
	EventTimeout         time.Duration
	ThreadArchiveMinutes int
}

// NewBotHandler creates a BotHandler. issues may be nil when the GitHub App is
// not configured; issue commands then fail through the error sink.
func NewBotHandler(
	discord *services.DiscordService,
	registry *services.Registry,
	issues IssueCreator,
	restart *RestartSignal,
	opts BotOptions,
) *BotHandler {
	return &BotHandler{
		discord:        discord,
		registry:       registry,
		issues:         issues,
		restart:        restart,
		eventTimeout:   opts.EventTimeout,
		archiveMinutes: opts.ThreadArchiveMinutes,
	}
}

// HandleReady is registered with the gateway session for Ready events.
func (h *BotHandler) HandleReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		h.discord.SetBotUserID(r.User.ID)
	}
	h.dispatch("ready", log.LogFields{}, h.OnReady)
}

// HandleMessageCreate is registered with the gateway session for MessageCreate events.
func (h *BotHandler) HandleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil {
		return
	}
	fields := log.LogFields{
		"guild_id":   m.GuildID,
		"channel_id": m.ChannelID,
		"message_id": m.ID,
	}
	h.dispatch("message_create", fields, func(ctx context.Context) error {
		return h.OnMessage(ctx, m.Message)
	})
}

// HandleReactionAdd is registered with the gateway session for MessageReactionAdd events.
func (h *BotHandler) HandleReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.MessageReaction == nil {
		return
	}
	fields := log.LogFields{
		"guild_id":   r.GuildID,
		"channel_id": r.ChannelID,
		"message_id": r.MessageID,
		"user_id":    r.UserID,
	}
	h.dispatch("reaction_add", fields, func(ctx context.Context) error {
		return h.OnReaction(ctx, r.MessageReaction)
	})
}

// dispatch runs one event with its own trace ID and timeout. Errors and
// panics abort only this event and are forwarded to the error sink.
func (h *BotHandler) dispatch(event string, fields log.LogFields, fn func(ctx context.Context) error) {
	ctx := context.Background()
	if h.eventTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.eventTimeout)
		defer cancel()
	}
	ctx = log.WithTraceID(ctx, uuid.New().String())
	fields["event"] = event
	ctx = log.WithFields(ctx, fields)

	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			log.Error(ctx, "Panic in event handler",
				"panic", r,
				"stack", stack,
			)
			h.reportError(ctx, fmt.Sprintf("panic in %s: %v\n%s", event, r, stack))
		}
	}()

	start := time.Now()
	if err := fn(ctx); err != nil {
		log.Error(ctx, "Event handler failed",
			"error", err,
			"duration_seconds", time.Since(start).Seconds(),
		)
		h.reportError(ctx, fmt.Sprintf("%s: %v", event, err))
		return
	}
	log.Debug(ctx, "Event handled",
		"duration_seconds", time.Since(start).Seconds(),
	)
}
