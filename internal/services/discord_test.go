package services

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSession struct {
	ChannelMessageSendFunc     func(channelID string, content string) (*discordgo.Message, error)
	ChannelMessageEditFunc     func(channelID, messageID, content string) (*discordgo.Message, error)
	ChannelMessageDeleteFunc   func(channelID, messageID string) error
	ChannelMessageFunc         func(channelID, messageID string) (*discordgo.Message, error)
	ChannelMessagesFunc        func(channelID string, limit int, beforeID, afterID, aroundID string) ([]*discordgo.Message, error)
	MessageReactionAddFunc     func(channelID, messageID, emojiID string) error
	MessageReactionRemoveFunc  func(channelID, messageID, emojiID, userID string) error
	MessageReactionsFunc       func(channelID, messageID, emojiID string, limit int, beforeID, afterID string) ([]*discordgo.User, error)
	MessageThreadStartFunc     func(channelID, messageID string, name string, archiveDuration int) (*discordgo.Channel, error)
	ChannelFunc                func(channelID string) (*discordgo.Channel, error)
	UserChannelPermissionsFunc func(userID, channelID string) (int64, error)
	UserChannelCreateFunc      func(recipientID string) (*discordgo.Channel, error)
}

var _ Session = (*mockSession)(nil)

func (m *mockSession) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.ChannelMessageSendFunc(channelID, content)
}

func (m *mockSession) ChannelMessageEdit(channelID, messageID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.ChannelMessageEditFunc(channelID, messageID, content)
}

func (m *mockSession) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	return m.ChannelMessageDeleteFunc(channelID, messageID)
}

func (m *mockSession) ChannelMessage(channelID, messageID string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.ChannelMessageFunc(channelID, messageID)
}

func (m *mockSession) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	return m.ChannelMessagesFunc(channelID, limit, beforeID, afterID, aroundID)
}

func (m *mockSession) MessageReactionAdd(channelID, messageID, emojiID string, _ ...discordgo.RequestOption) error {
	return m.MessageReactionAddFunc(channelID, messageID, emojiID)
}

func (m *mockSession) MessageReactionRemove(channelID, messageID, emojiID, userID string, _ ...discordgo.RequestOption) error {
	return m.MessageReactionRemoveFunc(channelID, messageID, emojiID, userID)
}

func (m *mockSession) MessageReactions(channelID, messageID, emojiID string, limit int, beforeID, afterID string, _ ...discordgo.RequestOption) ([]*discordgo.User, error) {
	return m.MessageReactionsFunc(channelID, messageID, emojiID, limit, beforeID, afterID)
}

func (m *mockSession) MessageThreadStart(channelID, messageID string, name string, archiveDuration int, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return m.MessageThreadStartFunc(channelID, messageID, name, archiveDuration)
}

func (m *mockSession) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return m.ChannelFunc(channelID)
}

func (m *mockSession) UserChannelPermissions(userID, channelID string, _ ...discordgo.RequestOption) (int64, error) {
	return m.UserChannelPermissionsFunc(userID, channelID)
}

func (m *mockSession) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return m.UserChannelCreateFunc(recipientID)
}

func TestDiscordService_SendMessage(t *testing.T) {
	ctx := context.Background()
	session := &mockSession{
		ChannelMessageSendFunc: func(channelID string, content string) (*discordgo.Message, error) {
			if channelID == "bad" {
				return nil, errors.New("unknown channel")
			}
			return &discordgo.Message{ID: "1", ChannelID: channelID, Content: content}, nil
		},
	}
	svc := NewDiscordService(session)

	msg, err := svc.SendMessage(ctx, "10", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)

	_, err = svc.SendMessage(ctx, "bad", "hello")
	assert.ErrorContains(t, err, "unknown channel")
}

func TestDiscordService_AddReactionsInOrder(t *testing.T) {
	var added []string
	session := &mockSession{
		MessageReactionAddFunc: func(_, _, emojiID string) error {
			added = append(added, emojiID)
			return nil
		},
	}
	svc := NewDiscordService(session)

	require.NoError(t, svc.AddReactions(context.Background(), "10", "20", "a", "b", "c"))
	assert.Equal(t, []string{"a", "b", "c"}, added)
}

func TestDiscordService_ReactionUsersPaginates(t *testing.T) {
	var afters []string
	session := &mockSession{
		MessageReactionsFunc: func(_, _, _ string, limit int, _, afterID string) ([]*discordgo.User, error) {
			afters = append(afters, afterID)
			if afterID == "" {
				page := make([]*discordgo.User, limit)
				for i := range page {
					page[i] = &discordgo.User{ID: strconv.Itoa(i + 1)}
				}
				return page, nil
			}
			return []*discordgo.User{{ID: "101"}}, nil
		},
	}
	svc := NewDiscordService(session)

	users, err := svc.ReactionUsers(context.Background(), "10", "20", "x")
	require.NoError(t, err)
	assert.Len(t, users, 101)
	assert.Equal(t, []string{"", "100"}, afters)
}

func TestDiscordService_HistoryUntilAuthor(t *testing.T) {
	pages := map[string][]*discordgo.Message{}
	first := make([]*discordgo.Message, HistoryPageSize)
	for i := range first {
		first[i] = &discordgo.Message{ID: strconv.Itoa(1000 - i), Author: &discordgo.User{ID: "user"}}
	}
	pages[""] = first
	pages["901"] = []*discordgo.Message{
		{ID: "900", Author: &discordgo.User{ID: "user"}},
		{ID: "899", Author: &discordgo.User{ID: "bot"}},
		{ID: "898", Author: &discordgo.User{ID: "bot"}},
	}

	session := &mockSession{
		ChannelMessagesFunc: func(_ string, _ int, beforeID, _, _ string) ([]*discordgo.Message, error) {
			return pages[beforeID], nil
		},
	}
	svc := NewDiscordService(session)

	history, err := svc.HistoryUntilAuthor(context.Background(), "10", "bot")
	require.NoError(t, err)
	require.Len(t, history, HistoryPageSize+2)
	assert.Equal(t, "899", history[len(history)-1].ID)

	history, err = svc.HistoryUntilAuthor(context.Background(), "10", "nobody")
	require.NoError(t, err)
	assert.Len(t, history, HistoryPageSize+3)
}

func TestDiscordService_ChannelIsCached(t *testing.T) {
	calls := 0
	session := &mockSession{
		ChannelFunc: func(channelID string) (*discordgo.Channel, error) {
			calls++
			return &discordgo.Channel{ID: channelID, Type: discordgo.ChannelTypeGuildPublicThread, ParentID: "10"}, nil
		},
	}
	svc := NewDiscordService(session)
	ctx := context.Background()

	ok, err := svc.IsThreadOf(ctx, "30", "10")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsThreadOf(ctx, "30", "11")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

func TestDiscordService_CanSendAndView(t *testing.T) {
	tests := []struct {
		name  string
		perms int64
		want  bool
	}{
		{"both", discordgo.PermissionSendMessages | discordgo.PermissionViewChannel, true},
		{"administrator style superset", discordgo.PermissionAllText, true},
		{"send only", discordgo.PermissionSendMessages, false},
		{"view only", discordgo.PermissionViewChannel, false},
		{"none", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var askedFor string
			session := &mockSession{
				UserChannelPermissionsFunc: func(userID, _ string) (int64, error) {
					askedFor = userID
					return tt.perms, nil
				},
			}
			svc := NewDiscordService(session)
			svc.SetBotUserID("999")

			got, err := svc.CanSendAndView(context.Background(), "10")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "999", askedFor)
		})
	}
}

func TestDiscordService_SendDirectMessage(t *testing.T) {
	var sentTo string
	session := &mockSession{
		UserChannelCreateFunc: func(recipientID string) (*discordgo.Channel, error) {
			return &discordgo.Channel{ID: "dm-" + recipientID}, nil
		},
		ChannelMessageSendFunc: func(channelID string, content string) (*discordgo.Message, error) {
			sentTo = channelID
			return &discordgo.Message{ID: "1"}, nil
		},
	}
	svc := NewDiscordService(session)

	require.NoError(t, svc.SendDirectMessage(context.Background(), "100", "boom"))
	assert.Equal(t, "dm-100", sentTo)
}
