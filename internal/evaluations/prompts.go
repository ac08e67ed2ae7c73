package evaluations

import (
	"fmt"
	"strings"

	"insight-backend/internal/questions"
)

// scaleInstructions is the single canonical scoring-scale calibration block.
// Every question prompt in every phase ends with it so extraction sees a
// consistent closing statement.
const scaleInstructions = `Rate on a 0-100 scale where 50 is the population median, ` +
	`95 means roughly 5 in 100 people perform at this level or above, and scores ` +
	`above 99 or below 10 are rare but entirely legitimate when the evidence is there. ` +
	`Do not hedge toward the middle. End your answer with a single line of the form "Score: N/100".`

const pushbackDemand = `Your previous score implies that %d out of 100 people are claimed to ` +
	`outperform the subject on this dimension. Either name the concrete evidence in the text ` +
	`that justifies ranking that many people above the subject, or revise the score.`

const enforcementDemand = `Your score is still below the confidence bar. Name 3 specific people, ` +
	`published works, or documented cases that demonstrably outperform the subject on this exact ` +
	`dimension, drawing on comparable written evidence. If you cannot substantiate the comparison, ` +
	`revise the score upward to match what the text actually supports. If the low score is genuinely ` +
	`warranted, state the disqualifying evidence from the text explicitly.`

var validationChecklist = strings.Join([]string{
	"1. Was the subject penalized for unconventional style rather than substance?",
	"2. Was the subject penalized for the topic of the text rather than the quality of thought in it?",
	"3. Would this score survive a comparison against a typical university graduate's writing?",
	"4. Does the score reflect the strongest passages of the text or only its weakest?",
	"5. If you had to defend this exact number to a panel of experts, would you keep it?",
}, "\n")

func buildQuestionPrompt(set questions.Set, q questions.Question, inputText, extraContext string) string {
	var b strings.Builder
	b.WriteString(q.Prompt)
	b.WriteString("\n\nTEXT SAMPLE:\n")
	b.WriteString(inputText)
	if strings.TrimSpace(extraContext) != "" {
		b.WriteString("\n\nADDITIONAL CONTEXT FROM THE CALLER:\n")
		b.WriteString(extraContext)
	}
	b.WriteString("\n\n")
	b.WriteString(scaleInstructions)
	return b.String()
}

func buildPushbackPrompt(set questions.Set, q questions.Question, inputText, extraContext string, prior int, belowBar bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You previously scored the following dimension %d/100.\n\n", prior)
	if belowBar {
		fmt.Fprintf(&b, pushbackDemand, 100-prior)
		b.WriteString("\n\n")
	} else {
		b.WriteString("Confirm or revise the score with the same rigor applied to the rest of the set.\n\n")
	}
	b.WriteString("Re-evaluate from scratch: ")
	b.WriteString(buildQuestionPrompt(set, q, inputText, extraContext))
	return b.String()
}

func buildEnforcementPrompt(set questions.Set, q questions.Question, inputText, extraContext string, prior int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "After pushback you scored the following dimension %d/100.\n\n", prior)
	b.WriteString(enforcementDemand)
	b.WriteString("\n\nThe dimension under review: ")
	b.WriteString(buildQuestionPrompt(set, q, inputText, extraContext))
	return b.String()
}

func buildValidationPrompt(set questions.Set, q questions.Question, inputText, extraContext string, prior int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Final validation pass. Your current score for the following dimension is %d/100.\n\n", prior)
	b.WriteString("Answer each audit question honestly, then state your final confirmed or revised score:\n")
	b.WriteString(validationChecklist)
	b.WriteString("\n\nThe dimension under review: ")
	b.WriteString(buildQuestionPrompt(set, q, inputText, extraContext))
	return b.String()
}

func buildSummaryPrompt(inputText string) string {
	return "Summarize the following text sample in one dense paragraph, preserving " +
		"whatever reveals most about how its author thinks. Do not evaluate, only summarize.\n\nTEXT SAMPLE:\n" + inputText
}
