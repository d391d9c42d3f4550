package utils

import "strings"

// Reaction emoji used by the bot. Unicode emoji are sent to Discord as-is.
const (
	EmojiBug        = "\U0001FAB2"       // 🪲 beetle
	EmojiIdea       = "\U0001F4A1"       // 💡 light bulb
	EmojiText       = "\U0001F524"       // 🔤 input latin letters
	EmojiCross      = "\u274C"           // ❌
	EmojiCheck      = "\u2705"           // ✅
	EmojiFinished   = "\U0001F3C1"       // 🏁 chequered flag
	EmojiInProgress = "\U0001F3F3\uFE0F" // 🏳️ white flag
	EmojiPlaying    = "\U0001F3AE"       // 🎮
	EmojiEditing    = "\U0001F4DD"       // 📝
	EmojiFiled      = "\u21A9"           // ↩
	EmojiSelector   = "\uFE0F"           // bare presentation selector sent by some clients
)

// NormalizeEmoji strips emoji presentation selectors so that "🏳️" and "🏳"
// compare equal. A bare selector is kept as-is.
func NormalizeEmoji(emoji string) string {
	if emoji == EmojiSelector {
		return emoji
	}
	return strings.ReplaceAll(emoji, EmojiSelector, "")
}

// SameEmoji reports whether two reaction names denote the same emoji.
func SameEmoji(a, b string) bool {
	return NormalizeEmoji(a) == NormalizeEmoji(b)
}
