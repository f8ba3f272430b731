package chunkproc

import (
	"fmt"
	"strings"
)

const audioScriptSystem = `You turn textbook sections into spoken narration scripts for an audio learning app.
Respond with JSON only, shaped as:
{"segments":[{"voice":"<speaker voice>","text":"<what to say>","keywords":["<terms to emphasize>"],"instructions":"<optional delivery note>"}]}
Write naturally for listening, not reading. Do not invent content that is not in the source text.`

const questionSetSystem = `You turn textbook sections into multiple-choice quiz questions.
Respond with JSON only, shaped as:
{"questions":[{"question":"...","options":["...","...","...","..."],"answer":"<exact text of the correct option>","explanation":"..."}]}
Every question must be answerable from the source text alone.`

func buildUserPrompt(mode Mode, previousContent, content, instructions string, isLastPart bool) string {
	var b strings.Builder

	if strings.TrimSpace(previousContent) != "" {
		b.WriteString("Previously processed content (for continuity, do not repeat its introductions or restate it):\n")
		b.WriteString(previousContent)
		b.WriteString("\n\n")
	}

	switch mode {
	case ModeAudioScript:
		b.WriteString("Write the narration script for this section:\n")
	case ModeQuestionSet:
		b.WriteString("Write quiz questions covering this section:\n")
	}
	b.WriteString(content)
	b.WriteString("\n")

	if strings.TrimSpace(instructions) != "" {
		fmt.Fprintf(&b, "\nAdditional instructions: %s\n", instructions)
	}
	if isLastPart {
		b.WriteString("\nThis is the final section; close out the narrative instead of leading into a next part.\n")
	}
	return b.String()
}
