package conversation

import "strings"

// Selection kinds and intents returned by DetectPropertySelection.
const (
	SelectionNone    = "none"
	SelectionQuoted  = "quoted"
	SelectionKeyword = "keyword"

	IntentNone     = "none"
	IntentInterest = "interest"
	IntentSchedule = "schedule"
)

// PropertySelection describes whether a lead message picks out a specific
// listing and what they want to do with it.
type PropertySelection struct {
	HasSelection bool
	Type         string
	Intent       string
}

var (
	selectionWords   = []string{"esse", "este", "aquele", "esse ai", "esse aí", "ali", "aí"}
	interestWords    = []string{"quero", "gostei", "interessei", "gosto", "prefiro", "escolho"}
	scheduleWords    = []string{"agendar", "visita", "visitar", "ver", "conhecer", "marcar", "quando"}
	moreOptionsWords = []string{"outro", "mais", "diferente", "opcoes", "opções", "outras"}
)

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// DetectPropertySelection classifies a message as selecting a listing.
// Replying to (quoting) a listing message is the strongest signal; demo
// pronouns and interest verbs count only when the lead is not asking for
// more options.
func DetectPropertySelection(message string, hasQuoted bool) PropertySelection {
	text := strings.ToLower(strings.TrimSpace(message))
	sel := PropertySelection{Type: SelectionNone, Intent: IntentNone}

	if hasQuoted {
		sel.HasSelection = true
		sel.Type = SelectionQuoted
		if containsAny(text, scheduleWords) {
			sel.Intent = IntentSchedule
		} else {
			sel.Intent = IntentInterest
		}
		return sel
	}

	if (containsAny(text, selectionWords) || containsAny(text, interestWords)) &&
		!containsAny(text, moreOptionsWords) {
		sel.HasSelection = true
		sel.Type = SelectionKeyword
		if containsAny(text, scheduleWords) {
			sel.Intent = IntentSchedule
		} else {
			sel.Intent = IntentInterest
		}
	}
	return sel
}
