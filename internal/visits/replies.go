package visits

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	confirmationKeywords = []string{
		"sim", "não", "nao", "confirmo", "cancela", "vou", "irei", "confirmar", "cancelar",
	}
	affirmativeKeywords = []string{"sim", "confirmo", "vou", "irei"}
	negativeKeywords    = []string{"não", "nao", "cancela"}

	scoreRe = regexp.MustCompile(`\b([1-5])\b`)
)

// IsConfirmationReply reports whether a message looks like an answer to a
// visit confirmation request: short, and carrying a yes/no keyword.
func IsConfirmationReply(message string) bool {
	text := strings.ToLower(strings.TrimSpace(message))
	if len(text) >= 50 {
		return false
	}
	for _, k := range confirmationKeywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// IsAffirmative reports whether a confirmation reply means yes. Negations
// win over affirmatives, so "nao vou poder" cancels even though it carries
// "vou".
func IsAffirmative(message string) bool {
	text := strings.ToLower(strings.TrimSpace(message))
	for _, k := range negativeKeywords {
		if strings.Contains(text, k) {
			return false
		}
	}
	for _, k := range affirmativeKeywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// ParseFeedbackScore pulls a standalone 1-5 rating out of a message,
// returning 0 when there is none.
func ParseFeedbackScore(message string) int {
	if m := scoreRe.FindStringSubmatch(message); m != nil {
		score, _ := strconv.Atoi(m[1])
		return score
	}
	return 0
}
