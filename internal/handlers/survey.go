package handlers

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"discord-issue-bot/internal/log"
	"discord-issue-bot/internal/survey"
	"discord-issue-bot/internal/utils"
)

// beginQuestionnaire opens a thread on a fresh submission and asks the first question.
func (h *BotHandler) beginQuestionnaire(ctx context.Context, m *discordgo.Message) error {
	unlock := h.registry.LockGuild(m.GuildID)
	defer unlock()

	name := utils.ThreadName(m.Content, threadNameLimit, threadNameFallback)
	thread, err := h.discord.StartThread(ctx, m.ChannelID, m.ID, name, h.archiveMinutes)
	if err != nil {
		return err
	}
	ctx = log.WithFields(ctx, log.LogFields{"thread_id": thread.ID})

	if _, err := h.discord.SendMessage(ctx, thread.ID, survey.InstructionsMessage); err != nil {
		return err
	}
	prompt, err := h.sendPrompt(ctx, thread.ID, survey.StepKind, m.Author.ID)
	if err != nil {
		return err
	}
	if err := h.registry.SetThreadStep(ctx, m.GuildID, thread.ID, m.Author.ID, string(survey.StepKind), prompt.ID); err != nil {
		return err
	}

	log.Info(ctx, "Questionnaire started",
		"reporter_id", m.Author.ID,
		"thread_name", name,
	)
	return nil
}

func (h *BotHandler) handleThreadMessage(ctx context.Context, m *discordgo.Message) error {
	unlock := h.registry.LockGuild(m.GuildID)
	defer unlock()

	state, ok, err := h.currentStep(ctx, m.GuildID, m.ChannelID)
	if err != nil || !ok {
		return err
	}

	result := survey.EvaluateMessage(state, survey.MessageFromDiscord(m))
	switch result.Outcome {
	case survey.Ignored:
		return nil
	case survey.Rejected:
		log.Debug(ctx, "Questionnaire response rejected", "step", string(state.Step))
		return h.discord.AddReactions(ctx, m.ChannelID, m.ID, utils.EmojiCross)
	default:
		return h.applyTransition(ctx, m.GuildID, m.ChannelID, state, result)
	}
}

// handleThreadReaction applies a reaction placed in a questionnaire thread.
// Only the reporter's reaction on the current prompt can advance the
// questionnaire; every other reaction is removed.
func (h *BotHandler) handleThreadReaction(ctx context.Context, r *discordgo.MessageReaction) error {
	unlock := h.registry.LockGuild(r.GuildID)
	defer unlock()

	state, ok, err := h.currentStep(ctx, r.GuildID, r.ChannelID)
	if err != nil {
		return err
	}
	if !ok || r.MessageID != state.Prompt {
		return h.stripReaction(ctx, r)
	}

	result := survey.EvaluateReaction(state, r.UserID, r.Emoji.Name)
	if result.Outcome == survey.Rejected {
		return h.stripReaction(ctx, r)
	}
	return h.applyTransition(ctx, r.GuildID, r.ChannelID, state, result)
}

func (h *BotHandler) stripReaction(ctx context.Context, r *discordgo.MessageReaction) error {
	log.Debug(ctx, "Removing reaction that does not answer the current question",
		"emoji", r.Emoji.Name,
	)
	return h.discord.RemoveReaction(ctx, r.ChannelID, r.MessageID, r.Emoji.APIName(), r.UserID)
}

// currentStep returns the questionnaire state of a thread. Threads opened by
// a deployment that kept no step records are recovered from the thread's
// history. ok is false when the thread has no pending question.
func (h *BotHandler) currentStep(ctx context.Context, guildID, threadID string) (survey.State, bool, error) {
	record, open := h.registry.ThreadStep(guildID, threadID)
	if !open {
		return survey.State{}, false, nil
	}
	if record != nil {
		return survey.State{
			Reporter: record.Reporter.String(),
			Step:     survey.Step(record.Step),
			Prompt:   record.Prompt.String(),
		}, true, nil
	}

	botID := h.discord.BotUserID()
	history, err := h.discord.HistoryUntilAuthor(ctx, threadID, botID)
	if err != nil {
		return survey.State{}, false, err
	}
	state, ok := survey.Recover(history, botID)
	if !ok {
		log.Warn(ctx, "Open thread has no recoverable questionnaire step", "thread_id", threadID)
		return survey.State{}, false, nil
	}
	log.Info(ctx, "Recovered questionnaire step from thread history",
		"thread_id", threadID,
		"step", string(state.Step),
	)
	return state, true, nil
}

// applyTransition sends the next prompt, or the completion notice, and
// records the new state. Callers hold the guild lock.
func (h *BotHandler) applyTransition(ctx context.Context, guildID, threadID string, state survey.State, result survey.Result) error {
	if result.Outcome == survey.Completed {
		if _, err := h.discord.SendMessage(ctx, threadID, survey.CompletionMessage); err != nil {
			return err
		}
		if err := h.registry.CloseThread(ctx, guildID, threadID); err != nil {
			return err
		}
		log.Info(ctx, "Questionnaire completed",
			"thread_id", threadID,
			"last_step", string(state.Step),
		)
		return nil
	}

	prompt, err := h.sendPrompt(ctx, threadID, result.Next, state.Reporter)
	if err != nil {
		return err
	}
	if err := h.registry.SetThreadStep(ctx, guildID, threadID, state.Reporter, string(result.Next), prompt.ID); err != nil {
		return err
	}
	log.Info(ctx, "Questionnaire advanced",
		"thread_id", threadID,
		"from_step", string(state.Step),
		"to_step", string(result.Next),
	)
	return nil
}

func (h *BotHandler) sendPrompt(ctx context.Context, threadID string, step survey.Step, reporterID string) (*discordgo.Message, error) {
	def, ok := survey.Lookup(step)
	if !ok {
		return nil, fmt.Errorf("unknown questionnaire step %q", step)
	}
	prompt, err := h.discord.SendMessage(ctx, threadID, def.Render(reporterID))
	if err != nil {
		return nil, err
	}
	if err := h.discord.AddReactions(ctx, threadID, prompt.ID, def.Reactions()...); err != nil {
		return nil, err
	}
	return prompt, nil
}
