package handlers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discord-issue-bot/internal/log"
	"discord-issue-bot/internal/models"
)

func withErrorChannel(doc *models.BotConfig) {
	doc.ErrorChannel = models.MustSnowflake(errorChannel)
}

func TestDispatch_ReportsErrors(t *testing.T) {
	tests := []struct {
		name        string
		mutate      []func(doc *models.BotConfig)
		fn          func(ctx context.Context) error
		wantChannel string
		wantPrefix  string
	}{
		{
			name:        "error to error channel",
			mutate:      []func(doc *models.BotConfig){withErrorChannel},
			fn:          func(ctx context.Context) error { return errors.New("boom") },
			wantChannel: errorChannel,
			wantPrefix:  "```test_event: boom```",
		},
		{
			name:        "error to root when no error channel",
			fn:          func(ctx context.Context) error { return errors.New("boom") },
			wantChannel: "dm-" + rootID,
			wantPrefix:  "```test_event: boom```",
		},
		{
			name:        "panic is recovered",
			mutate:      []func(doc *models.BotConfig){withErrorChannel},
			fn:          func(ctx context.Context) error { panic("kaboom") },
			wantChannel: errorChannel,
			wantPrefix:  "```panic in test_event: kaboom\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.mutate...)

			require.NotPanics(t, func() {
				h.bot.dispatch("test_event", log.LogFields{}, tt.fn)
			})

			report := h.session.lastSent(t, tt.wantChannel)
			assert.True(t, strings.HasPrefix(report.Content, tt.wantPrefix), "got %q", report.Content)
			assert.True(t, strings.HasSuffix(report.Content, "```"))
		})
	}
}

func TestDispatch_TruncatesReports(t *testing.T) {
	h := newHarness(t, withErrorChannel)

	h.bot.dispatch("test_event", log.LogFields{}, func(ctx context.Context) error {
		return errors.New(strings.Repeat("x", 5000))
	})

	report := h.session.lastSent(t, errorChannel)
	assert.LessOrEqual(t, len(report.Content), errorReportLimit+6)
}

func TestDispatch_SuccessSendsNothing(t *testing.T) {
	h := newHarness(t, withErrorChannel)

	h.bot.dispatch("test_event", log.LogFields{}, func(ctx context.Context) error {
		assert.NotEmpty(t, log.TraceID(ctx))
		assert.Equal(t, "test_event", log.GetLogFields(ctx)["event"])
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})

	assert.Zero(t, h.session.totalActions())
}

func TestReportError_DeliveryFailureIsDropped(t *testing.T) {
	h := newHarness(t, withErrorChannel)
	h.session.sendErr[errorChannel] = errors.New("missing access")

	require.NotPanics(t, func() {
		h.bot.reportError(context.Background(), "trace")
	})
	assert.Zero(t, h.session.totalActions())
}

func TestHandleReady_RecordsBotUser(t *testing.T) {
	h := newHarness(t)
	h.discord.SetBotUserID("")

	h.bot.HandleReady(nil, &discordgo.Ready{User: &discordgo.User{ID: "4321"}})

	assert.Equal(t, "4321", h.discord.BotUserID())
}

func TestRestartSignal(t *testing.T) {
	r := NewRestartSignal()
	assert.False(t, r.Requested())

	r.Request()
	r.Request()

	assert.True(t, r.Requested())
	select {
	case <-r.Done():
	default:
		t.Fatal("Done was not closed")
	}
}
