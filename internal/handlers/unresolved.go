package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"discord-issue-bot/internal/log"
	"discord-issue-bot/internal/models"
	"discord-issue-bot/internal/services"
	"discord-issue-bot/internal/utils"
)

// linkEarliestUnresolved replies with a link to the oldest submission since
// the watermark that neither the root user nor the bot has reacted to, then
// moves the watermark up to it.
func (h *BotHandler) linkEarliestUnresolved(ctx context.Context, m *discordgo.Message, server *models.ServerProfile) error {
	issueChannelID := server.Issue.String()
	watermark := server.AfterPost
	earliest := watermark

	settings := h.registry.Settings()
	botID := h.discord.BotUserID()

	scanned := 0
	before := ""
	for {
		page, err := h.discord.History(ctx, issueChannelID, before)
		if err != nil {
			return err
		}

		reachedWatermark := false
		for _, msg := range page {
			id, err := models.ParseSnowflake(msg.ID)
			if err != nil {
				h.reportScanFailure(ctx, msg.ID, err)
				continue
			}
			if id < watermark {
				reachedWatermark = true
				break
			}
			scanned++

			pending, err := h.needsAttention(ctx, issueChannelID, msg, settings.RootID, botID)
			if err != nil {
				h.reportScanFailure(ctx, msg.ID, err)
				continue
			}
			if pending {
				earliest = id
			}
		}

		if reachedWatermark || len(page) < services.HistoryPageSize {
			break
		}
		before = page[len(page)-1].ID
	}

	link := utils.MessageLink(m.GuildID, issueChannelID, strconv.FormatInt(int64(earliest), 10))
	if err := h.reply(ctx, m, "Earliest unresolved issue: "+link); err != nil {
		return err
	}

	current, err := h.registry.AdvanceWatermark(ctx, m.GuildID, earliest.String())
	if err != nil {
		return err
	}
	log.Info(ctx, "Unresolved scan finished",
		"messages_scanned", scanned,
		"earliest_unresolved", earliest.String(),
		"watermark", current,
	)
	return nil
}

// needsAttention reports whether a submission still awaits triage. Messages
// from any bot and thread notices never do.
func (h *BotHandler) needsAttention(ctx context.Context, channelID string, msg *discordgo.Message, rootID, botID string) (bool, error) {
	if msg.Type == discordgo.MessageTypeThreadCreated {
		return false, nil
	}
	if msg.Author != nil && (msg.Author.Bot || msg.Author.ID == botID) {
		return false, nil
	}

	for _, reaction := range msg.Reactions {
		if reaction == nil || reaction.Emoji == nil {
			continue
		}
		if reaction.Me {
			return false, nil
		}
		users, err := h.discord.ReactionUsers(ctx, channelID, msg.ID, reaction.Emoji.APIName())
		if err != nil {
			return false, err
		}
		for _, u := range users {
			if u.ID == rootID || u.ID == botID {
				return false, nil
			}
		}
	}
	return true, nil
}

func (h *BotHandler) reportScanFailure(ctx context.Context, messageID string, err error) {
	log.Error(ctx, "Failed to inspect message during unresolved scan",
		"error", err,
		"scanned_message_id", messageID,
		"operation", "unresolved_scan",
	)
	h.reportError(ctx, fmt.Sprintf("unresolved scan, message %s: %v", messageID, err))
}
