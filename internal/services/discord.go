package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"discord-issue-bot/internal/log"
)

const (
	// HistoryPageSize is the largest page the channel history endpoint returns.
	HistoryPageSize = 100
	// reactionPageSize is the largest page the reaction users endpoint returns.
	reactionPageSize = 100
)

// Session is the subset of *discordgo.Session the bot uses.
type Session interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	MessageReactionRemove(channelID, messageID, emojiID, userID string, options ...discordgo.RequestOption) error
	MessageReactions(channelID, messageID, emojiID string, limit int, beforeID, afterID string, options ...discordgo.RequestOption) ([]*discordgo.User, error)
	MessageThreadStart(channelID, messageID string, name string, archiveDuration int, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	UserChannelPermissions(userID, channelID string, options ...discordgo.RequestOption) (int64, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

var _ Session = (*discordgo.Session)(nil)

// DiscordService performs the gateway operations used by the handlers.
type DiscordService struct {
	session Session

	mu        sync.RWMutex
	botUserID string

	// channels caches channel lookups; a channel's type and parent never change.
	channels sync.Map
}

// NewDiscordService creates a DiscordService over the given session.
func NewDiscordService(session Session) *DiscordService {
	return &DiscordService{session: session}
}

// SetBotUserID records the bot's own user ID once the gateway is ready.
func (s *DiscordService) SetBotUserID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.botUserID = id
}

// BotUserID returns the bot's own user ID, or "" before the gateway is ready.
func (s *DiscordService) BotUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.botUserID
}

// SendMessage posts a message to a channel or thread.
func (s *DiscordService) SendMessage(ctx context.Context, channelID, content string) (*discordgo.Message, error) {
	msg, err := s.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		log.Error(ctx, "Failed to send Discord message",
			"error", err,
			"channel_id", channelID,
			"operation", "send_message",
		)
		return nil, fmt.Errorf("failed to send message to channel %s: %w", channelID, err)
	}
	return msg, nil
}

// EditMessage replaces the content of a message the bot sent.
func (s *DiscordService) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	if _, err := s.session.ChannelMessageEdit(channelID, messageID, content, discordgo.WithContext(ctx)); err != nil {
		log.Error(ctx, "Failed to edit Discord message",
			"error", err,
			"channel_id", channelID,
			"message_id", messageID,
			"operation", "edit_message",
		)
		return fmt.Errorf("failed to edit message %s in channel %s: %w", messageID, channelID, err)
	}
	return nil
}

// DeleteMessage removes a message.
func (s *DiscordService) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := s.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		log.Error(ctx, "Failed to delete Discord message",
			"error", err,
			"channel_id", channelID,
			"message_id", messageID,
			"operation", "delete_message",
		)
		return fmt.Errorf("failed to delete message %s in channel %s: %w", messageID, channelID, err)
	}
	return nil
}

// GetMessage fetches a single message.
func (s *DiscordService) GetMessage(ctx context.Context, channelID, messageID string) (*discordgo.Message, error) {
	msg, err := s.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		log.Error(ctx, "Failed to fetch Discord message",
			"error", err,
			"channel_id", channelID,
			"message_id", messageID,
			"operation", "get_message",
		)
		return nil, fmt.Errorf("failed to fetch message %s in channel %s: %w", messageID, channelID, err)
	}
	return msg, nil
}

// AddReactions reacts to a message with each emoji in order.
func (s *DiscordService) AddReactions(ctx context.Context, channelID, messageID string, emojis ...string) error {
	for _, emoji := range emojis {
		if err := s.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)); err != nil {
			log.Error(ctx, "Failed to add reaction",
				"error", err,
				"channel_id", channelID,
				"message_id", messageID,
				"emoji", emoji,
				"operation", "add_reaction",
			)
			return fmt.Errorf("failed to add reaction %s to message %s: %w", emoji, messageID, err)
		}
	}
	return nil
}

// RemoveReaction removes one user's reaction from a message.
func (s *DiscordService) RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error {
	if err := s.session.MessageReactionRemove(channelID, messageID, emoji, userID, discordgo.WithContext(ctx)); err != nil {
		log.Error(ctx, "Failed to remove reaction",
			"error", err,
			"channel_id", channelID,
			"message_id", messageID,
			"emoji", emoji,
			"user_id", userID,
			"operation", "remove_reaction",
		)
		return fmt.Errorf("failed to remove reaction %s of user %s from message %s: %w", emoji, userID, messageID, err)
	}
	return nil
}

// ReactionUsers lists every user who reacted to a message with an emoji.
func (s *DiscordService) ReactionUsers(ctx context.Context, channelID, messageID, emoji string) ([]*discordgo.User, error) {
	var users []*discordgo.User
	after := ""
	for {
		page, err := s.session.MessageReactions(channelID, messageID, emoji, reactionPageSize, "", after, discordgo.WithContext(ctx))
		if err != nil {
			log.Error(ctx, "Failed to list reaction users",
				"error", err,
				"channel_id", channelID,
				"message_id", messageID,
				"emoji", emoji,
				"operation", "list_reaction_users",
			)
			return nil, fmt.Errorf("failed to list users for reaction %s on message %s: %w", emoji, messageID, err)
		}
		users = append(users, page...)
		if len(page) < reactionPageSize {
			return users, nil
		}
		after = page[len(page)-1].ID
	}
}

// History returns up to one page of messages older than beforeID, newest
// first. An empty beforeID starts from the newest message.
func (s *DiscordService) History(ctx context.Context, channelID, beforeID string) ([]*discordgo.Message, error) {
	msgs, err := s.session.ChannelMessages(channelID, HistoryPageSize, beforeID, "", "", discordgo.WithContext(ctx))
	if err != nil {
		log.Error(ctx, "Failed to read channel history",
			"error", err,
			"channel_id", channelID,
			"before_id", beforeID,
			"operation", "read_history",
		)
		return nil, fmt.Errorf("failed to read history of channel %s: %w", channelID, err)
	}
	return msgs, nil
}

// HistoryUntilAuthor pages backward through a channel and returns the
// messages up to and including the newest one written by authorID, newest
// first. The whole history is returned when the author never posted.
func (s *DiscordService) HistoryUntilAuthor(ctx context.Context, channelID, authorID string) ([]*discordgo.Message, error) {
	var out []*discordgo.Message
	before := ""
	for {
		page, err := s.History(ctx, channelID, before)
		if err != nil {
			return nil, err
		}
		for _, m := range page {
			out = append(out, m)
			if m.Author != nil && m.Author.ID == authorID {
				return out, nil
			}
		}
		if len(page) < HistoryPageSize {
			return out, nil
		}
		before = page[len(page)-1].ID
	}
}

// StartThread opens a public thread on a message.
func (s *DiscordService) StartThread(ctx context.Context, channelID, messageID, name string, archiveMinutes int) (*discordgo.Channel, error) {
	thread, err := s.session.MessageThreadStart(channelID, messageID, name, archiveMinutes, discordgo.WithContext(ctx))
	if err != nil {
		log.Error(ctx, "Failed to start thread",
			"error", err,
			"channel_id", channelID,
			"message_id", messageID,
			"operation", "start_thread",
		)
		return nil, fmt.Errorf("failed to start thread on message %s: %w", messageID, err)
	}
	s.channels.Store(thread.ID, thread)
	return thread, nil
}

// Channel looks up a channel, caching the result.
func (s *DiscordService) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if cached, ok := s.channels.Load(channelID); ok {
		return cached.(*discordgo.Channel), nil
	}
	ch, err := s.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		log.Error(ctx, "Failed to fetch channel",
			"error", err,
			"channel_id", channelID,
			"operation", "get_channel",
		)
		return nil, fmt.Errorf("failed to fetch channel %s: %w", channelID, err)
	}
	s.channels.Store(channelID, ch)
	return ch, nil
}

// IsThreadOf reports whether channelID is a public thread under parentID.
func (s *DiscordService) IsThreadOf(ctx context.Context, channelID, parentID string) (bool, error) {
	ch, err := s.Channel(ctx, channelID)
	if err != nil {
		return false, err
	}
	return ch.Type == discordgo.ChannelTypeGuildPublicThread && ch.ParentID == parentID, nil
}

// CanSendAndView reports whether the bot may read and post in a channel.
func (s *DiscordService) CanSendAndView(ctx context.Context, channelID string) (bool, error) {
	perms, err := s.session.UserChannelPermissions(s.BotUserID(), channelID, discordgo.WithContext(ctx))
	if err != nil {
		log.Warn(ctx, "Failed to resolve channel permissions",
			"error", err,
			"channel_id", channelID,
			"operation", "channel_permissions",
		)
		return false, fmt.Errorf("failed to resolve permissions in channel %s: %w", channelID, err)
	}
	const required = discordgo.PermissionSendMessages | discordgo.PermissionViewChannel
	return perms&required == required, nil
}

// SendDirectMessage posts a message to a user's DM channel.
func (s *DiscordService) SendDirectMessage(ctx context.Context, userID, content string) error {
	dm, err := s.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		log.Error(ctx, "Failed to open DM channel",
			"error", err,
			"user_id", userID,
			"operation", "open_dm_channel",
		)
		return fmt.Errorf("failed to open DM channel with user %s: %w", userID, err)
	}
	_, err = s.SendMessage(ctx, dm.ID, content)
	return err
}
