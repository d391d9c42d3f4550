package handlers

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"

	"discord-issue-bot/internal/models"
	"discord-issue-bot/internal/services"
)

const (
	rootID       = "100"
	botID        = "999"
	reporterID   = "42"
	guildID      = "1"
	issueChannel = "10"
	chatChannel  = "20"
	errorChannel = "30"
)

var errNotFound = errors.New("404 Not Found")

type removedReaction struct {
	ChannelID, MessageID, Emoji, UserID string
}

// fakeSession is an in-memory Discord that remembers what the bot did.
type fakeSession struct {
	mu     sync.Mutex
	nextID int64

	messages  map[string][]*discordgo.Message // channel ID -> oldest first
	reactions map[string][]string             // message ID -> emoji the bot added
	reactors  map[string]map[string][]string  // message ID -> emoji -> user IDs
	channels  map[string]*discordgo.Channel
	perms     map[string]int64

	removed []removedReaction
	deleted []string
	edits   map[string]string

	sendErr   map[string]error
	deleteErr error

	sends          int
	archiveMinutes int
}

var _ services.Session = (*fakeSession)(nil)

func newFakeSession() *fakeSession {
	return &fakeSession{
		nextID:    1000,
		messages:  make(map[string][]*discordgo.Message),
		reactions: make(map[string][]string),
		reactors:  make(map[string]map[string][]string),
		channels:  make(map[string]*discordgo.Channel),
		perms:     make(map[string]int64),
		edits:     make(map[string]string),
		sendErr:   make(map[string]error),
	}
}

func (f *fakeSession) newID() string {
	f.nextID++
	return strconv.FormatInt(f.nextID, 10)
}

// post stores a message from a user and returns it for dispatch.
func (f *fakeSession) post(channelID, authorID, content string, attachments ...string) *discordgo.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := &discordgo.Message{
		ID:        f.newID(),
		ChannelID: channelID,
		GuildID:   guildID,
		Content:   content,
		Author:    &discordgo.User{ID: authorID, Username: "user" + authorID},
		Type:      discordgo.MessageTypeDefault,
	}
	for _, name := range attachments {
		m.Attachments = append(m.Attachments, &discordgo.MessageAttachment{
			Filename: name,
			URL:      "https://cdn.discordapp.com/attachments/" + m.ID + "/" + name,
		})
	}
	f.messages[channelID] = append(f.messages[channelID], m)
	return m
}

// reply stores a message replying to another message.
func (f *fakeSession) reply(channelID, authorID, content, targetID string) *discordgo.Message {
	m := f.post(channelID, authorID, content)
	m.Type = discordgo.MessageTypeReply
	m.MessageReference = &discordgo.MessageReference{MessageID: targetID, ChannelID: channelID}
	return m
}

// react records a user reaction so reaction listings can see it.
func (f *fakeSession) react(messageID, emoji, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.reactors[messageID] == nil {
		f.reactors[messageID] = make(map[string][]string)
	}
	f.reactors[messageID][emoji] = append(f.reactors[messageID][emoji], userID)
	for _, msgs := range f.messages {
		for _, m := range msgs {
			if m.ID == messageID {
				m.Reactions = append(m.Reactions, &discordgo.MessageReactions{
					Count: 1,
					Me:    userID == botID,
					Emoji: &discordgo.Emoji{Name: emoji},
				})
			}
		}
	}
}

func (f *fakeSession) sent(channelID string) []*discordgo.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*discordgo.Message
	for _, m := range f.messages[channelID] {
		if m.Author != nil && m.Author.ID == botID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSession) lastSent(t *testing.T, channelID string) *discordgo.Message {
	t.Helper()
	msgs := f.sent(channelID)
	require.NotEmpty(t, msgs, "no bot message in channel %s", channelID)
	return msgs[len(msgs)-1]
}

func (f *fakeSession) botReactions(messageID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.reactions[messageID])
}

func (f *fakeSession) addThread(threadID, parentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[threadID] = &discordgo.Channel{
		ID:       threadID,
		GuildID:  guildID,
		ParentID: parentID,
		Type:     discordgo.ChannelTypeGuildPublicThread,
	}
}

func (f *fakeSession) totalActions() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.removed) + len(f.deleted) + len(f.edits)
	for _, emoji := range f.reactions {
		n += len(emoji)
	}
	return n + f.sends
}

func (f *fakeSession) find(channelID, messageID string) *discordgo.Message {
	for _, m := range f.messages[channelID] {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

func (f *fakeSession) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.sendErr[channelID]; err != nil {
		return nil, err
	}
	f.sends++
	m := &discordgo.Message{
		ID:        f.newID(),
		ChannelID: channelID,
		GuildID:   guildID,
		Content:   content,
		Author:    &discordgo.User{ID: botID, Username: "bot", Bot: true},
		Type:      discordgo.MessageTypeDefault,
	}
	if id, ok := firstMention(content); ok {
		m.Mentions = []*discordgo.User{{ID: id}}
	}
	f.messages[channelID] = append(f.messages[channelID], m)
	return m, nil
}

func firstMention(content string) (string, bool) {
	for _, prefix := range []string{"<@!", "<@"} {
		if len(content) > len(prefix) && content[:len(prefix)] == prefix {
			rest := content[len(prefix):]
			for i, r := range rest {
				if r == '>' {
					return rest[:i], i > 0
				}
			}
		}
	}
	return "", false
}

func (f *fakeSession) ChannelMessageEdit(channelID, messageID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := f.find(channelID, messageID)
	if m == nil {
		return nil, errNotFound
	}
	m.Content = content
	f.edits[messageID] = content
	return m, nil
}

func (f *fakeSession) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, messageID)
	f.messages[channelID] = slices.DeleteFunc(f.messages[channelID], func(m *discordgo.Message) bool {
		return m.ID == messageID
	})
	return nil
}

func (f *fakeSession) ChannelMessage(channelID, messageID string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if m := f.find(channelID, messageID); m != nil {
		return m, nil
	}
	return nil, errNotFound
}

func (f *fakeSession) ChannelMessages(channelID string, limit int, beforeID, _, _ string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var before int64
	if beforeID != "" {
		before, _ = strconv.ParseInt(beforeID, 10, 64)
	}
	msgs := f.messages[channelID]
	var out []*discordgo.Message
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		id, _ := strconv.ParseInt(msgs[i].ID, 10, 64)
		if before != 0 && id >= before {
			continue
		}
		out = append(out, msgs[i])
	}
	return out, nil
}

func (f *fakeSession) MessageReactionAdd(_, messageID, emojiID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions[messageID] = append(f.reactions[messageID], emojiID)
	return nil
}

func (f *fakeSession) MessageReactionRemove(channelID, messageID, emojiID, userID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, removedReaction{channelID, messageID, emojiID, userID})
	return nil
}

func (f *fakeSession) MessageReactions(_, messageID, emojiID string, _ int, _, _ string, _ ...discordgo.RequestOption) ([]*discordgo.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var users []*discordgo.User
	for _, id := range f.reactors[messageID][emojiID] {
		users = append(users, &discordgo.User{ID: id})
	}
	return users, nil
}

func (f *fakeSession) MessageThreadStart(channelID, messageID string, name string, archiveDuration int, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	thread := &discordgo.Channel{
		ID:       f.newID(),
		GuildID:  guildID,
		ParentID: channelID,
		Name:     name,
		Type:     discordgo.ChannelTypeGuildPublicThread,
	}
	f.channels[thread.ID] = thread
	f.archiveMinutes = archiveDuration
	return thread, nil
}

func (f *fakeSession) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ch, ok := f.channels[channelID]; ok {
		return ch, nil
	}
	return nil, errNotFound
}

func (f *fakeSession) UserChannelPermissions(_, channelID string, _ ...discordgo.RequestOption) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	perms, ok := f.perms[channelID]
	if !ok {
		return 0, errNotFound
	}
	return perms, nil
}

func (f *fakeSession) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: "dm-" + recipientID, Type: discordgo.ChannelTypeDM}, nil
}

// fakeIssues records drafts and returns a canned result.
type fakeIssues struct {
	mu     sync.Mutex
	drafts []*models.IssueDraft
	url    string
	err    error
}

func (f *fakeIssues) CreateIssue(_ context.Context, draft *models.IssueDraft) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.drafts = append(f.drafts, draft)
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type harness struct {
	session  *fakeSession
	discord  *services.DiscordService
	store    *services.FileStore
	registry *services.Registry
	issues   *fakeIssues
	restart  *RestartSignal
	bot      *BotHandler
}

// newHarness builds a handler over a registered guild "1" with issue
// channel "10" and chat channel "20" using prefix "!".
func newHarness(t *testing.T, mutate ...func(doc *models.BotConfig)) *harness {
	t.Helper()

	doc := models.NewBotConfig()
	doc.Root = models.MustSnowflake(rootID)
	doc.Servers[guildID] = &models.ServerProfile{
		Issue:   models.MustSnowflake(issueChannel),
		Chat:    models.MustSnowflake(chatChannel),
		Prefix:  "!",
		Threads: []models.Snowflake{},
	}
	for _, fn := range mutate {
		fn(doc)
	}

	store := services.NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, store.Save(context.Background(), doc))

	session := newFakeSession()
	session.channels[issueChannel] = &discordgo.Channel{ID: issueChannel, GuildID: guildID, Type: discordgo.ChannelTypeGuildText}
	session.channels[chatChannel] = &discordgo.Channel{ID: chatChannel, GuildID: guildID, Type: discordgo.ChannelTypeGuildText}

	discord := services.NewDiscordService(session)
	discord.SetBotUserID(botID)

	h := &harness{
		session:  session,
		discord:  discord,
		store:    store,
		registry: services.NewRegistry(store, doc),
		issues:   &fakeIssues{url: "https://github.com/octo/game/issues/7"},
		restart:  NewRestartSignal(),
	}
	h.bot = NewBotHandler(h.discord, h.registry, h.issues, h.restart, BotOptions{
		EventTimeout:         5 * time.Second,
		ThreadArchiveMinutes: 1440,
	})
	return h
}

// persisted reloads the state document from disk.
func (h *harness) persisted(t *testing.T) *models.BotConfig {
	t.Helper()
	doc, err := h.store.Load(context.Background())
	require.NoError(t, err)
	return doc
}
