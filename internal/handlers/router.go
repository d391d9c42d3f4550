package handlers

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"

	"discord-issue-bot/internal/log"
	"discord-issue-bot/internal/models"
	"discord-issue-bot/internal/utils"
)

const initCommand = "!init"

// OnMessage routes a guild message by the role of the channel it was posted in.
func (h *BotHandler) OnMessage(ctx context.Context, m *discordgo.Message) error {
	if m.GuildID == "" || m.Author == nil {
		return nil
	}
	botID := h.discord.BotUserID()
	if m.Author.ID == botID {
		return nil
	}
	// Thread-created and other system notices are not submissions.
	if m.Type != discordgo.MessageTypeDefault && m.Type != discordgo.MessageTypeReply {
		return nil
	}

	if m.Author.ID == h.registry.Settings().RootID && strings.HasPrefix(m.Content, initCommand) {
		return h.initServer(ctx, m)
	}

	server, ok := h.registry.Server(m.GuildID)
	if !ok {
		return nil
	}

	switch m.ChannelID {
	case server.Chat.String():
		return h.handleChatCommand(ctx, m, server)
	case server.Issue.String():
		return h.handleIssueChannel(ctx, m, server)
	}

	isSurveyThread, err := h.discord.IsThreadOf(ctx, m.ChannelID, server.Issue.String())
	if err != nil {
		return err
	}
	if isSurveyThread {
		return h.handleThreadMessage(ctx, m)
	}
	return nil
}

// OnReaction routes a reaction added in a guild.
func (h *BotHandler) OnReaction(ctx context.Context, r *discordgo.MessageReaction) error {
	botID := h.discord.BotUserID()
	if r.GuildID == "" || r.UserID == botID {
		return nil
	}

	server, ok := h.registry.Server(r.GuildID)
	if !ok {
		return nil
	}

	if r.ChannelID == server.Issue.String() {
		if h.registry.IsAuthorized(r.UserID, botID) {
			return nil
		}
		log.Info(ctx, "Removing reaction from unauthorized user in issue channel",
			"emoji", r.Emoji.Name,
		)
		return h.discord.RemoveReaction(ctx, r.ChannelID, r.MessageID, r.Emoji.APIName(), r.UserID)
	}

	isSurveyThread, err := h.discord.IsThreadOf(ctx, r.ChannelID, server.Issue.String())
	if err != nil {
		return err
	}
	if isSurveyThread {
		return h.handleThreadReaction(ctx, r)
	}
	return nil
}

func (h *BotHandler) handleChatCommand(ctx context.Context, m *discordgo.Message, server *models.ServerProfile) error {
	command, args, ok := utils.ParseCommand(m.Content, server.Prefix)
	if !ok {
		return nil
	}

	ctx = log.WithFields(ctx, log.LogFields{"command": command})
	log.Debug(ctx, "Chat command received", "args", args)

	switch command {
	case "help":
		return h.help(ctx, m, server.Prefix, args)
	case "staffhelp":
		return h.staffHelp(ctx, m, server.Prefix, args)
	case "unresolved":
		return h.linkEarliestUnresolved(ctx, m, server)
	case "update":
		if m.Author.ID == h.registry.Settings().RootID {
			return h.update(ctx, server)
		}
	}
	return h.reply(ctx, m, "Unknown Command.")
}

// issueLabels maps issue-channel commands to the labels of the filed issue.
var issueLabels = map[string][]string{
	"issue":       nil,
	"text":        {"text"},
	"bug":         {"bug"},
	"enhancement": {"enhancement"},
}

func (h *BotHandler) handleIssueChannel(ctx context.Context, m *discordgo.Message, server *models.ServerProfile) error {
	command, args, ok := utils.ParseCommand(m.Content, server.Prefix)
	if !ok {
		return h.beginQuestionnaire(ctx, m)
	}
	// Approval commands must reply to the submission they file.
	if m.MessageReference == nil || m.MessageReference.MessageID == "" {
		return nil
	}

	labels, known := issueLabels[command]
	if !known || !h.registry.IsAuthorized(m.Author.ID, h.discord.BotUserID()) {
		log.Info(ctx, "Rejected issue command",
			"command", command,
			"author_id", m.Author.ID,
		)
		return h.discord.AddReactions(ctx, m.ChannelID, m.ID, utils.EmojiCross)
	}
	return h.fileIssue(ctx, m, args, labels)
}

func (h *BotHandler) reply(ctx context.Context, m *discordgo.Message, text string) error {
	_, err := h.discord.SendMessage(ctx, m.ChannelID, m.Author.Mention()+" "+text)
	return err
}
