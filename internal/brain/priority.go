package brain

import (
	"regexp"

	"companion.app/relay/internal/model"
)

var (
	urgentKeywords = regexp.MustCompile(`(?i)\b(urgent|urgently|asap|emergency)\b`)
	highKeywords   = regexp.MustCompile(`(?i)\b(deadlines?|meetings?|important)\b`)
	lowKeywords    = regexp.MustCompile(`(?i)\b(movies?|lunch|coffee|games?)\b`)
)

// ClassifyPriority is the content heuristic used to schedule memory jobs
// and to rank pattern-extracted tasks. The most urgent match wins.
func ClassifyPriority(text string) model.Priority {
	switch {
	case urgentKeywords.MatchString(text):
		return model.PriorityUrgent
	case highKeywords.MatchString(text):
		return model.PriorityHigh
	case lowKeywords.MatchString(text):
		return model.PriorityLow
	default:
		return model.PriorityNormal
	}
}
