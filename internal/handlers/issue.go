package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"discord-issue-bot/internal/log"
	"discord-issue-bot/internal/models"
	"discord-issue-bot/internal/utils"
)

// fileIssue files the submission the trigger replies to. The trigger is
// deleted only once the issue exists, so a failed attempt can be retried by
// the approver.
func (h *BotHandler) fileIssue(ctx context.Context, trigger *discordgo.Message, args []string, labels []string) error {
	title := strings.Join(args, " ")
	if title == "" {
		log.Info(ctx, "Issue command without a title")
		return h.discord.AddReactions(ctx, trigger.ChannelID, trigger.ID, utils.EmojiCross)
	}
	if h.issues == nil {
		return ErrIssueFilingUnavailable
	}

	ref := trigger.MessageReference
	channelID := ref.ChannelID
	if channelID == "" {
		channelID = trigger.ChannelID
	}
	submission, err := h.discord.GetMessage(ctx, channelID, ref.MessageID)
	if err != nil {
		return err
	}

	draft := ComposeIssue(submission, title, labels)
	issueURL, err := h.issues.CreateIssue(ctx, draft)
	if err != nil {
		return fmt.Errorf("failed to file submission %s: %w", submission.ID, err)
	}
	log.Info(ctx, "Issue filed",
		"issue_url", issueURL,
		"submission_id", submission.ID,
		"labels", labels,
	)

	deleteErr := h.discord.DeleteMessage(ctx, trigger.ChannelID, trigger.ID)
	markErr := h.discord.AddReactions(ctx, channelID, submission.ID, utils.EmojiFiled)
	return errors.Join(deleteErr, markErr)
}

// ComposeIssue builds the issue for a submission: an attribution line, the
// submission text, and one image line per attachment.
func ComposeIssue(submission *discordgo.Message, title string, labels []string) *models.IssueDraft {
	var body strings.Builder
	if submission.Author != nil {
		fmt.Fprintf(&body, "Discord: %s %s", submission.Author.DisplayName(), submission.Author.Mention())
	}
	body.WriteString("\n\n")
	body.WriteString(submission.Content)
	for _, a := range submission.Attachments {
		if a == nil {
			continue
		}
		fmt.Fprintf(&body, "\n![image](%s)", a.URL)
	}

	return &models.IssueDraft{
		Title:  title,
		Body:   body.String(),
		Labels: labels,
	}
}
