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

const (
	initArgCount = 3

	msgPreparingUpdate = "Preparing update..."
	msgUpdateComplete  = "Update complete! Bot will restart."
	msgRestarted       = "Bot updated and restarted."
)

// initServer handles "!init <prefix> <#issue> <#chat>" from the root user.
func (h *BotHandler) initServer(ctx context.Context, m *discordgo.Message) error {
	args := strings.Split(m.Content[len("!"):], " ")[1:]
	if len(args) != initArgCount {
		return h.reply(ctx, m, "Args not equal to 3!")
	}

	channels := utils.ExtractChannelMentions(m.Content)
	if len(channels) != 2 {
		return h.reply(ctx, m, "Bad channel args!")
	}
	prefix, issueChannelID, chatChannelID := args[0], channels[0], channels[1]

	if !h.canSendAndView(ctx, issueChannelID) {
		return h.reply(ctx, m, "Bad channel perms for info!")
	}
	if !h.canSendAndView(ctx, chatChannelID) {
		return h.reply(ctx, m, "Bad channel perms for chat!")
	}

	unlock := h.registry.LockGuild(m.GuildID)
	defer unlock()

	if err := h.registry.InitServer(ctx, m.GuildID, prefix, issueChannelID, chatChannelID); err != nil {
		return fmt.Errorf("failed to initialise server %s: %w", m.GuildID, err)
	}
	return h.reply(ctx, m, "Initialized bot to this server!")
}

// canSendAndView treats a channel whose permissions cannot be resolved as unusable.
func (h *BotHandler) canSendAndView(ctx context.Context, channelID string) bool {
	ok, err := h.discord.CanSendAndView(ctx, channelID)
	return err == nil && ok
}

func (h *BotHandler) help(ctx context.Context, m *discordgo.Message, prefix string, args []string) error {
	if len(args) == 0 {
		return h.reply(ctx, m, "**Commands**\n"+
			fmt.Sprintf("`%shelp` - Help\n", prefix)+
			fmt.Sprintf("`%sunresolved` - Link the earliest unresolved issue\n", prefix))
	}
	return h.reply(ctx, m, topicHelp(args[0]))
}

func (h *BotHandler) staffHelp(ctx context.Context, m *discordgo.Message, prefix string, args []string) error {
	if len(args) == 0 {
		return h.reply(ctx, m, "**Approver Commands**\n"+
			fmt.Sprintf("`%shelp` - Help\n", prefix)+
			fmt.Sprintf("`%sissue <title>` - Reply to a report to file it without labels\n", prefix)+
			fmt.Sprintf("`%sbug <title>` - Reply to a report to file it as a bug\n", prefix)+
			fmt.Sprintf("`%senhancement <title>` - Reply to a report to file it as an enhancement\n", prefix)+
			fmt.Sprintf("`%stext <title>` - Reply to a report to file it as a text mistake\n", prefix)+
			fmt.Sprintf("`%supdate` - Restart the bot with the latest release\n", prefix))
	}
	return h.reply(ctx, m, topicHelp(args[0]))
}

func topicHelp(topic string) string {
	if topic == "help" {
		return "**Command Help**\n"
	}
	return "Unknown Command."
}

// update announces the restart in the chat channel, remembers the notice so
// it can be edited after the restart, and raises the restart signal.
func (h *BotHandler) update(ctx context.Context, server *models.ServerProfile) error {
	chatID := server.Chat.String()
	notice, err := h.discord.SendMessage(ctx, chatID, msgPreparingUpdate)
	if err != nil {
		return err
	}
	if err := h.discord.EditMessage(ctx, chatID, notice.ID, msgUpdateComplete); err != nil {
		return err
	}
	if err := h.registry.SetPendingUpdate(ctx, chatID, notice.ID); err != nil {
		return err
	}

	log.Info(ctx, "Restart requested",
		"notice_channel_id", chatID,
		"notice_message_id", notice.ID,
	)
	if h.restart != nil {
		h.restart.Request()
	}
	return nil
}

// OnReady completes a pending update notice left by the previous process.
func (h *BotHandler) OnReady(ctx context.Context) error {
	log.Info(ctx, "Gateway ready", "bot_user_id", h.discord.BotUserID())

	settings := h.registry.Settings()
	if settings.UpdateChannelID == "" || settings.UpdateMessageID == "" {
		return nil
	}

	// The pending ids are cleared even when the notice is gone so the edit
	// is not retried on every start.
	editErr := h.discord.EditMessage(ctx, settings.UpdateChannelID, settings.UpdateMessageID, msgRestarted)
	clearErr := h.registry.ClearPendingUpdate(ctx)
	return errors.Join(editErr, clearErr)
}
