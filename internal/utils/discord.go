package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	channelMentionPattern = regexp.MustCompile(`<#(\d+)>`)
	userMentionPattern    = regexp.MustCompile(`<@!?(\d+)>`)
)

// ExtractChannelMentions returns the channel IDs mentioned as <#id> in order of appearance.
func ExtractChannelMentions(text string) []string {
	matches := channelMentionPattern.FindAllStringSubmatch(text, -1)
	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, match[1])
	}
	return ids
}

// FirstUserMention returns the first user ID mentioned as <@id> or <@!id>.
func FirstUserMention(text string) (string, bool) {
	match := userMentionPattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// ParseCommand splits a prefixed message into its lower-cased command word and
// the remaining space-separated arguments. ok is false when the message does
// not start with the prefix.
func ParseCommand(content, prefix string) (command string, args []string, ok bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	parts := strings.Split(content[len(prefix):], " ")
	return strings.ToLower(parts[0]), parts[1:], true
}

// FileExtension returns the extension of a file name including the dot, or "".
// Leading dots belong to the name, so ".txt" has no extension.
func FileExtension(filename string) string {
	base := filepath.Base(filename)
	if !strings.Contains(strings.TrimLeft(base, "."), ".") {
		return ""
	}
	return filepath.Ext(base)
}

// HasExtension reports whether the file name ends in exactly the given
// extension. The comparison is case-sensitive and fails closed.
func HasExtension(filename, extension string) bool {
	if extension == "" {
		return false
	}
	return FileExtension(filename) == extension
}

// MessageLink builds a deep link to a guild message.
func MessageLink(guildID, channelID, messageID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

// Truncate shortens s to at most maxBytes bytes without splitting a UTF-8 sequence.
func Truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ThreadName derives a thread name from the first line of a message, limited
// to maxRunes characters. Falls back when the line is blank.
func ThreadName(content string, maxRunes int, fallback string) string {
	line, _, _ := strings.Cut(content, "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return fallback
	}
	if utf8.RuneCountInString(line) <= maxRunes {
		return line
	}
	return string([]rune(line)[:maxRunes])
}
