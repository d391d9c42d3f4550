package survey

import (
	"strings"

	"github.com/bwmarrin/discordgo"

	"discord-issue-bot/internal/utils"
)

// State is the position of one thread in the questionnaire.
type State struct {
	Reporter string
	Step     Step
	// Prompt is the id of the bot message carrying the current step prompt.
	// Empty when the state was recovered without a prompt id.
	Prompt string
}

// Outcome classifies how a response was handled.
type Outcome int

const (
	// Ignored responses come from someone other than the reporter and need no feedback.
	Ignored Outcome = iota
	// Rejected responses do not satisfy the step; the step is unchanged.
	Rejected
	// Advanced responses move the thread to the next prompt.
	Advanced
	// Completed responses finish the questionnaire.
	Completed
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case Rejected:
		return "rejected"
	case Advanced:
		return "advanced"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Result is the outcome of evaluating a response. Next is set when Outcome is Advanced.
type Result struct {
	Outcome Outcome
	Next    Step
}

// Message is the part of a thread message the engine evaluates.
type Message struct {
	AuthorID    string
	Content     string
	Attachments []string // file names, in upload order
}

// MessageFromDiscord extracts the evaluated fields of a gateway message.
func MessageFromDiscord(m *discordgo.Message) Message {
	out := Message{Content: m.Content}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
	}
	for _, a := range m.Attachments {
		if a != nil {
			out.Attachments = append(out.Attachments, a.Filename)
		}
	}
	return out
}

// EvaluateMessage decides what a message posted in the thread means for the
// current step. Messages from anyone but the reporter are ignored.
func EvaluateMessage(state State, msg Message) Result {
	def, ok := Lookup(state.Step)
	if !ok {
		return Result{Outcome: Ignored}
	}
	if msg.AuthorID == "" || msg.AuthorID != state.Reporter {
		return Result{Outcome: Ignored}
	}

	if def.Attachment != "" && hasAttachment(msg, def.Attachment) {
		return transition(def.AfterAttachment)
	}
	if def.AcceptsText && msg.Content != "" {
		return transition(def.AfterText)
	}
	return Result{Outcome: Rejected}
}

// EvaluateReaction decides what a reaction on the current prompt means.
// Any reaction that does not advance the questionnaire is Rejected so the
// caller strips it.
func EvaluateReaction(state State, userID, emoji string) Result {
	def, ok := Lookup(state.Step)
	if !ok || userID == "" || userID != state.Reporter {
		return Result{Outcome: Rejected}
	}
	next, ok := def.choose(emoji)
	if !ok {
		return Result{Outcome: Rejected}
	}
	return transition(next)
}

// hasAttachment reports whether the first attachment carries the required
// extension. A missing extension is a mismatch.
func hasAttachment(msg Message, extension string) bool {
	if len(msg.Attachments) == 0 {
		return false
	}
	return utils.HasExtension(msg.Attachments[0], extension)
}

func transition(next Step) Result {
	if next == Done {
		return Result{Outcome: Completed}
	}
	return Result{Outcome: Advanced, Next: next}
}

// Recover rebuilds the questionnaire state of a thread from its history,
// given newest first. Only the most recent message authored by the bot is
// considered; when it is not a step prompt the thread has no current step.
func Recover(history []*discordgo.Message, botID string) (State, bool) {
	for _, m := range history {
		if m == nil || m.Author == nil || m.Author.ID != botID {
			continue
		}
		return ParsePrompt(m)
	}
	return State{}, false
}

// ParsePrompt reads the step token and reporter out of a rendered prompt.
func ParsePrompt(m *discordgo.Message) (State, bool) {
	lines := strings.Split(m.Content, "\n")
	if len(lines) < 2 {
		return State{}, false
	}
	token, _, found := strings.Cut(lines[1], ".")
	if !found {
		return State{}, false
	}
	step := Step(token)
	if _, ok := Lookup(step); !ok {
		return State{}, false
	}

	var reporter string
	if len(m.Mentions) > 0 && m.Mentions[0] != nil {
		reporter = m.Mentions[0].ID
	} else if id, ok := utils.FirstUserMention(lines[0]); ok {
		reporter = id
	}
	if reporter == "" {
		return State{}, false
	}

	return State{Reporter: reporter, Step: step, Prompt: m.ID}, true
}
