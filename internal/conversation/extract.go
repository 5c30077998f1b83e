package conversation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// NameNotProvided is the sentinel for a lead whose name was never captured.
const NameNotProvided = "Nao informado"

// knownNeighborhoods is the Fortaleza gazetteer matched against lead
// messages. Entries are lowercase; accent variants are listed explicitly.
var knownNeighborhoods = []string{
	"aldeota", "meireles", "cocó", "coco", "dionisio torres", "papicu",
	"benfica", "centro", "fatima", "joaquim tavora", "mucuripe",
	"praia de iracema", "varjota", "guararapes", "edson queiroz",
	"agua fria", "luciano cavalcante", "cambeba", "messejana",
	"parquelandia", "montese", "parangaba", "maraponga",
}

var (
	bedroomsRe = regexp.MustCompile(`(\d+)\s*(?:quartos?|qts|qto)`)
	rendaMilRe = regexp.MustCompile(`(\d+)\s*(?:mil|k)\b`)
	rendaNumRe = regexp.MustCompile(`\b(\d{1,2}[.\s]?\d{3})\b`)

	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:meu nome [eé]|me chamo)\s+([a-zà-ú]+(?:\s+[a-zà-ú]+)?)`),
		regexp.MustCompile(`(?i)sou\s+[oa]?\s*([a-zà-ú]+(?:\s+[a-zà-ú]+)?)`),
		// The greeting form insists on a capitalized name, otherwise
		// "oi, quero agendar" would read "Quero" as the lead's name.
		regexp.MustCompile(`(?i:oi|ola|olá),?\s+(?i:aqui [eé] [oa]?\s*)?([A-ZÀ-Ú][a-zà-ú]+)`),
	}
)

// SearchFilters holds the listing search criteria extracted from a
// conversation, plus the gross income that produced the price ceiling.
type SearchFilters struct {
	Neighborhood string
	Bedrooms     int
	Renda        int
	MaxPrice     float64
}

// ExtractFilters scans the lead's side of the history for neighborhood,
// bedroom count and monthly income. When several neighborhoods appear, the
// one mentioned last wins. A detected income sets MaxPrice using the
// financing rule of thumb: 30% of income across 360 installments.
func ExtractFilters(history []ChatMessage) SearchFilters {
	var parts []string
	for _, m := range history {
		if m.Role == RoleUser {
			parts = append(parts, strings.ToLower(m.Content))
		}
	}
	text := strings.Join(parts, " ")

	var f SearchFilters

	lastPos := -1
	for _, n := range knownNeighborhoods {
		if pos := strings.LastIndex(text, n); pos > lastPos {
			lastPos = pos
			f.Neighborhood = titleCase(n)
		}
	}

	if m := bedroomsRe.FindStringSubmatch(text); m != nil {
		f.Bedrooms, _ = strconv.Atoi(m[1])
	}

	renda := 0
	if m := rendaMilRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		renda = n * 1000
	} else if m := rendaNumRe.FindStringSubmatch(text); m != nil {
		digits := strings.NewReplacer(".", "", " ", "").Replace(m[1])
		renda, _ = strconv.Atoi(digits)
	}

	if renda >= 1000 {
		f.Renda = renda
		f.MaxPrice = float64(renda) * 0.30 * 360
	}
	return f
}

// ExtractName looks for a self-introduction in the lead's messages, trying
// the explicit forms first ("meu nome e X", "me chamo X"), then "sou o X",
// then a greeting followed by a name. Returns NameNotProvided when nothing
// matches.
func ExtractName(history []ChatMessage) string {
	for _, m := range history {
		if m.Role != RoleUser {
			continue
		}
		for _, re := range namePatterns {
			if match := re.FindStringSubmatch(m.Content); match != nil {
				return titleCase(match[1])
			}
		}
	}
	return NameNotProvided
}

// Validation reports whether a lead has given everything required to book a
// visit, and what is still missing.
type Validation struct {
	Valid   bool
	Missing []string
	Name    string
	Filters SearchFilters
}

// ValidateForScheduling checks that name, neighborhood and bedroom count are
// all present in the conversation so far.
func ValidateForScheduling(history []ChatMessage) Validation {
	filters := ExtractFilters(history)
	name := ExtractName(history)

	var missing []string
	if name == NameNotProvided {
		missing = append(missing, "nome")
	}
	if filters.Neighborhood == "" {
		missing = append(missing, "bairro")
	}
	if filters.Bedrooms == 0 {
		missing = append(missing, "quartos")
	}

	return Validation{
		Valid:   len(missing) == 0,
		Missing: missing,
		Name:    name,
		Filters: filters,
	}
}

// titleCase uppercases the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
