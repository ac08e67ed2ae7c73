// Package score parses numeric confidence values out of unstructured
// generated text. Backends answer in natural language, so an ordered
// pattern list over the final answer is the terminal source of truth here;
// "no match" is reported explicitly and must never be collapsed into zero.
package score

import (
	"regexp"
	"strconv"
)

// NeutralFallback is the documented default applied by callers when no
// pattern matches. It is a policy value, not an extraction result.
const NeutralFallback = 50

// patterns are tried in priority order. Within the answer, the match that
// starts latest wins regardless of which pattern produced it: evaluators
// frequently restate a hedged early number with a revised final one.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{1,3})\s*/\s*100`),
	regexp.MustCompile(`(?i)score\s*(?:is|:|=|of)?\s*(\d{1,3})`),
	regexp.MustCompile(`(?i)(\d{1,3})\s+out\s+of\s+100`),
	regexp.MustCompile(`(?i)(\d{1,3})\s+points`),
}

// Extract returns the score stated last in answerText, in [0,100].
// The second return is false when no pattern matched anywhere.
func Extract(answerText string) (int, bool) {
	bestStart := -1
	bestPriority := len(patterns)
	bestValue := 0
	found := false

	for priority, re := range patterns {
		for _, m := range re.FindAllStringSubmatchIndex(answerText, -1) {
			// m[2]:m[3] is the first capture group.
			if len(m) < 4 || m[2] < 0 {
				continue
			}
			value, err := strconv.Atoi(answerText[m[2]:m[3]])
			if err != nil || value < 0 || value > 100 {
				continue
			}
			start := m[0]
			if start > bestStart || (start == bestStart && priority < bestPriority) {
				bestStart = start
				bestPriority = priority
				bestValue = value
				found = true
			}
		}
	}

	if !found {
		return 0, false
	}
	return bestValue, true
}
