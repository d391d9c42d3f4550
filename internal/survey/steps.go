// Package survey implements the bug-report questionnaire: the step catalogue,
// prompt rendering, response evaluation, and recovery of the current step
// from a thread's message history.
package survey

import (
	"fmt"

	"discord-issue-bot/internal/utils"
)

// Step identifies a questionnaire state. The token is rendered as the leading
// token of the second line of every prompt.
type Step string

// Questionnaire steps.
const (
	StepKind           Step = "1"
	StepLogFile        Step = "2"
	StepDungeon        Step = "3"
	StepAdventureState Step = "3a"
	StepReplay         Step = "3b"
	StepQuicksave      Step = "3c"
	StepPlayOrEdit     Step = "4"
	StepEditRepro      Step = "4a"
	StepSaveFile       Step = "5"
	StepSaveRepro      Step = "5a"

	// Done is the terminal state. It is never rendered.
	Done Step = ""
)

// Messages sent outside the step prompts.
const (
	InstructionsMessage = "Thread created.  The bot will ask some questions.  Answering them will expedite the process."
	CompletionMessage   = "Questionnaire complete! You can continue to post information from here on if you have updates."
)

// Choice maps a reaction to the step it leads to.
type Choice struct {
	Emoji string
	Next  Step
}

// Definition describes one questionnaire step.
type Definition struct {
	Step     Step
	Question string

	// Choices are offered as reactions on the prompt, in order.
	Choices []Choice
	// Aliases are accepted reactions that are not offered on the prompt.
	Aliases []Choice

	// Attachment is the required file extension, or "" when the step takes no file.
	Attachment      string
	AfterAttachment Step
	AcceptsText     bool
	AfterText       Step
}

var catalogue = map[Step]*Definition{
	StepKind: {
		Step:     StepKind,
		Question: "Is this a :beetle: Bug, :bulb: Feature Request, or :abc: Text Mistake?",
		Choices: []Choice{
			{Emoji: utils.EmojiBug, Next: StepLogFile},
			{Emoji: utils.EmojiIdea, Next: Done},
			{Emoji: utils.EmojiText, Next: Done},
		},
	},
	StepLogFile: {
		Step: StepLogFile,
		Question: "Please attach the log file for this error.  Logs are found in the `LOG/` folder.  " +
			"Attach the `.txt` file with the date that matches when you encountered the bug.\n" +
			"If this bug occurred outside of the game (such as with the updater), click :x:",
		Choices: []Choice{
			{Emoji: utils.EmojiCross, Next: Done},
		},
		Attachment:      ".txt",
		AfterAttachment: StepDungeon,
	},
	StepDungeon: {
		Step:     StepDungeon,
		Question: "Was this bug encountered in a dungeon adventure?",
		Choices: []Choice{
			{Emoji: utils.EmojiCheck, Next: StepAdventureState},
			{Emoji: utils.EmojiCross, Next: StepPlayOrEdit},
		},
	},
	StepAdventureState: {
		Step:     StepAdventureState,
		Question: "Did you :checkered_flag: finish that adventure, or are you still :flag_white: in the middle of it?",
		Choices: []Choice{
			{Emoji: utils.EmojiFinished, Next: StepReplay},
			{Emoji: utils.EmojiInProgress, Next: StepQuicksave},
		},
		Aliases: []Choice{
			{Emoji: utils.EmojiSelector, Next: StepQuicksave},
		},
	},
	StepReplay: {
		Step: StepReplay,
		Question: "Please attach a replay (`.rsrec`) of the adventure.\n" +
			"Check replays ingame at the Title Menu under Records, and find the files themselves in the `REPLAY/` folder.\n" +
			"Make sure the error shows up in the replay.",
		Attachment:      ".rsrec",
		AfterAttachment: Done,
	},
	StepQuicksave: {
		Step:            StepQuicksave,
		Question:        "Please attach your quicksave file (`QUICKSAVE.rsqs`).  You can find it in the `SAVE/` folder.",
		Attachment:      ".rsqs",
		AfterAttachment: Done,
	},
	StepPlayOrEdit: {
		Step:     StepPlayOrEdit,
		Question: "Was this bug encountered while :video_game: Playing or :pencil: Editing the game?",
		Choices: []Choice{
			{Emoji: utils.EmojiPlaying, Next: StepSaveFile},
			{Emoji: utils.EmojiEditing, Next: StepEditRepro},
		},
	},
	StepEditRepro: {
		Step:        StepEditRepro,
		Question:    "Starting from when you open the game, can you list the exact steps to reproduce this issue?  :x: if this was already mentioned.",
		Choices:     []Choice{{Emoji: utils.EmojiCross, Next: Done}},
		AcceptsText: true,
		AfterText:   Done,
	},
	StepSaveFile: {
		Step:            StepSaveFile,
		Question:        "Please attach your save file.  You can find it in the `SAVE/` folder named `SAVE.rssv`",
		Attachment:      ".rssv",
		AfterAttachment: StepSaveRepro,
	},
	StepSaveRepro: {
		Step:        StepSaveRepro,
		Question:    "Starting from when you load your save file, can you list the exact steps to reproduce this issue?  :x: if this was already mentioned.",
		Choices:     []Choice{{Emoji: utils.EmojiCross, Next: Done}},
		AcceptsText: true,
		AfterText:   Done,
	},
}

// Lookup returns the definition of a step token.
func Lookup(step Step) (*Definition, bool) {
	def, ok := catalogue[step]
	return def, ok
}

// Steps returns every step token in questionnaire order.
func Steps() []Step {
	return []Step{
		StepKind, StepLogFile, StepDungeon, StepAdventureState, StepReplay,
		StepQuicksave, StepPlayOrEdit, StepEditRepro, StepSaveFile, StepSaveRepro,
	}
}

// Reactions returns the emoji the bot adds to the step's prompt.
func (d *Definition) Reactions() []string {
	out := make([]string, 0, len(d.Choices))
	for _, c := range d.Choices {
		out = append(out, c.Emoji)
	}
	return out
}

// Render produces the prompt text for the step addressed to the reporter.
func (d *Definition) Render(reporterID string) string {
	return fmt.Sprintf("<@!%s>\n%s. %s", reporterID, d.Step, d.Question)
}

func (d *Definition) choose(emoji string) (Step, bool) {
	for _, set := range [][]Choice{d.Choices, d.Aliases} {
		for _, c := range set {
			if utils.SameEmoji(c.Emoji, emoji) {
				return c.Next, true
			}
		}
	}
	return "", false
}
