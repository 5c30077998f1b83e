package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const extractionPrompt = `Analise o historico de conversa abaixo e extraia os dados do cliente.
O lead pode ter respondido de forma curta (ex: so o nome, so um numero).
Retorne APENAS um JSON valido com os campos abaixo (use null se nao encontrar):

{
  "name": "nome do cliente",
  "neighborhood": "bairro de interesse",
  "bedrooms": "numero de quartos",
  "renda": numero da renda mensal ou null,
  "property_type": "apartamento/casa/terreno ou null"
}

HISTORICO:
`

var jsonObjectRe = regexp.MustCompile(`\{[^{}]*\}`)

// AILeadData is the structured profile extracted by the model. Fields are
// empty or zero when the model returned null.
type AILeadData struct {
	Name         string
	Neighborhood string
	Bedrooms     string
	Renda        int
	PropertyType string
}

// aiExtractor asks a small model to pull lead data out of free-form turns
// that the regex extractors miss.
type aiExtractor struct {
	llm   LLMClient
	model string
}

// Extract formats the last ten turns and asks the model for a JSON profile.
// A model failure or unparseable reply returns an empty profile and the
// error; callers fall back to regex extraction.
func (e *aiExtractor) Extract(ctx context.Context, history []ChatMessage) (AILeadData, error) {
	if len(history) == 0 {
		return AILeadData{}, nil
	}
	if len(history) > 10 {
		history = history[len(history)-10:]
	}

	var b strings.Builder
	for _, m := range history {
		speaker := "Assistente"
		if m.Role == RoleUser {
			speaker = "Lead"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Content)
	}

	reply, err := e.llm.Complete(ctx, LLMRequest{
		Model:       e.model,
		Messages:    []ChatMessage{{Role: RoleUser, Content: extractionPrompt + b.String()}},
		Temperature: 0.2,
		MaxTokens:   200,
	})
	if err != nil {
		return AILeadData{}, fmt.Errorf("conversation: ai extraction: %w", err)
	}

	return parseAILeadData(reply)
}

// parseAILeadData pulls the first JSON object out of the model reply. The
// model is inconsistent about types, so string fields accept numbers and
// renda accepts a numeric string.
func parseAILeadData(reply string) (AILeadData, error) {
	match := jsonObjectRe.FindString(reply)
	if match == "" {
		return AILeadData{}, fmt.Errorf("conversation: no JSON object in extraction reply")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return AILeadData{}, fmt.Errorf("conversation: decode extraction reply: %w", err)
	}

	return AILeadData{
		Name:         flexField(raw["name"]),
		Neighborhood: flexField(raw["neighborhood"]),
		Bedrooms:     flexField(raw["bedrooms"]),
		Renda:        flexInt(raw["renda"]),
		PropertyType: flexField(raw["property_type"]),
	}, nil
}

func flexField(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}

func flexInt(raw json.RawMessage) int {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		digits := strings.NewReplacer(".", "", ",", "", " ", "", "R$", "").Replace(s)
		if v, err := strconv.Atoi(strings.TrimSpace(digits)); err == nil {
			return v
		}
	}
	return 0
}
