package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/orquestrai/sells-broker/internal/listings"
)

const qualificationPrompt = `Voce e um assistente imobiliario do Ceara conversando pelo WhatsApp.

REGRAS:
- Respostas CURTAS (2-3 frases)
- UMA pergunta por vez
- SEM EMOJIS
- NUNCA peca numero de WhatsApp (voce JA esta no WhatsApp)

DADOS OBRIGATORIOS PARA AGENDAMENTO:
Antes de confirmar QUALQUER visita, voce DEVE ter coletado:
1. Nome do cliente
2. Bairro de interesse
3. Numero de quartos

IMPORTANTE: Se o lead tentar agendar visita SEM esses 3 dados, NAO confirme.
Pergunte os dados que faltam PRIMEIRO.

FLUXO DE QUALIFICACAO:
1. Cumprimentar e perguntar nome: "Como posso te chamar?"
2. Regiao de interesse (bairro)
3. Quantidade de quartos
4. Renda mensal: "Qual sua renda mensal aproximada?"
   - Usar para calcular limite de financiamento: Renda x 30% x 360
   - IMPORTANTE: Perguntar renda ANTES de enviar opcoes de imoveis

QUANDO LEAD PEDIR OPCOES/FOTOS:
- Se NAO tiver renda ainda, pergunte: "Para te enviar opcoes adequadas, qual sua renda mensal aproximada?"
- Se contexto indicar [DISPONIBILIDADE: X imoveis disponiveis], responda "Vou te enviar algumas opcoes agora"
- Se contexto indicar [DISPONIBILIDADE: NAO ha imoveis disponiveis], NUNCA diga que vai enviar. Sugira ajustar bairro ou criterios.
- Sistema envia fotos automaticamente SE houver imoveis

QUANDO LEAD ESCOLHER UM IMOVEL:
- Confirme interesse: "Gostou desse?"
- Se tiver os 3 dados (nome, bairro, quartos), ofereca agendar visita
- Se NAO tiver, pergunte os dados faltantes antes

FLUXO DE AGENDAMENTO (somente se tiver nome, bairro e quartos):
1. Pergunte data preferida
2. Pergunte horario (manha, tarde)
3. Confirme: "Visita agendada! Um corretor entrara em contato para confirmar."

CONFIRMACAO DE DATA:
Quando o lead mencionar datas relativas (sexta, proxima semana, mes que vem):
1. SEMPRE confirme a data especifica: "Seria dia DD/MM (dia da semana). Pode ser?"
2. Pergunte o horario se nao informado: "Prefere manha ou tarde?"
3. SO confirme o agendamento apos lead aprovar data E horario

NUNCA agende diretamente sem o lead confirmar a data exata.

Se receber contexto de imovel SELECIONADO, foque nele e ofereca visita.
Seja conversacional e direto.`

var weekdayNamesPT = []string{
	"segunda-feira", "terca-feira", "quarta-feira",
	"quinta-feira", "sexta-feira", "sabado", "domingo",
}

// buildSystemPrompt assembles the system prompt: a date anchor so the model
// resolves relative dates correctly, then either the landing-page script
// (when the lead arrived through one) or the general qualification script.
func buildSystemPrompt(now time.Time, landingProp *listings.Property) string {
	base := qualificationPrompt
	if landingProp != nil {
		base = landingPrompt(landingProp)
	}
	return dateContext(now) + base
}

func dateContext(now time.Time) string {
	weekday := (int(now.Weekday()) + 6) % 7

	return fmt.Sprintf(`DATA ATUAL: Hoje e %s, %s.
Proxima sexta-feira: %s
Proximo sabado: %s
Use essas datas como referencia ao confirmar agendamentos.

`,
		weekdayNamesPT[weekday],
		now.Format("02/01/2006"),
		nextWeekday(now, 4).Format("02/01/2006"),
		nextWeekday(now, 5).Format("02/01/2006"),
	)
}

// nextWeekday returns the next occurrence of the Monday-based weekday,
// always at least one day ahead.
func nextWeekday(now time.Time, target int) time.Time {
	current := (int(now.Weekday()) + 6) % 7
	ahead := (target - current + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return now.AddDate(0, 0, ahead)
}

func landingPrompt(prop *listings.Property) string {
	areaLine := ""
	if prop.Area != "" {
		areaLine = fmt.Sprintf("- Area: %sm2\n", prop.Area)
	}
	descriptionLine := ""
	if prop.Description != "" {
		descriptionLine = fmt.Sprintf("- Descricao: %s\n", prop.Description)
	}
	price := "Consultar"
	if prop.Price > 0 {
		price = prop.PriceFormatted()
	}
	neighborhood := prop.Neighborhood
	if neighborhood == "" {
		neighborhood = "Nao informado"
	}

	return fmt.Sprintf(`Voce e um assistente imobiliario conversando com lead que veio de landing page.

CONTEXTO DO IMOVEL:
- Titulo: %s
- Preco: %s
- Bairro: %s
- Quartos: %s
%s%s
REGRAS:
- Respostas CURTAS (2-3 frases)
- UMA pergunta por vez
- SEM EMOJIS
- NUNCA peca numero de WhatsApp

FLUXO PARA LEAD DE LANDING PAGE:
1. Confirmar interesse no imovel especifico
2. Coletar nome (se nao tiver)
3. Oferecer visita: "Quando voce gostaria de visitar?"
4. Coletar data e horario
5. Confirmar agendamento

IMPORTANTE:
- Lead JA demonstrou interesse neste imovel especifico
- NAO envie outras opcoes a menos que ele PECA
- Foco total em AGENDAR VISITA para este imovel

OBJETIVO: Agendar visita para o imovel da landing page.`,
		prop.Title, price, neighborhood, prop.Bedrooms, areaLine, descriptionLine)
}

// availabilityContext tells the model whether listings matched the lead's
// criteria, so it never promises photos that will not arrive.
func availabilityContext(count int) string {
	if count > 0 {
		return fmt.Sprintf("[DISPONIBILIDADE: %d imoveis disponiveis com os criterios do lead]", count)
	}
	return "[DISPONIBILIDADE: NAO ha imoveis disponiveis com os criterios atuais do lead - informe isso e sugira ajustar bairro ou outros criterios]"
}

// selectionContext marks the message with the listing the lead picked.
func selectionContext(sel *SelectedProperty, intent string) string {
	info := sel.Info
	if info == "" {
		info = sel.Title
	}
	if info == "" {
		info = "um imovel"
	}
	if intent == IntentSchedule {
		return fmt.Sprintf("[LEAD SELECIONOU IMOVEL E QUER AGENDAR VISITA: %s]", info)
	}
	return fmt.Sprintf("[LEAD SELECIONOU IMOVEL (marcou/citou mensagem): %s]", info)
}

// activeVisitContext stops the model from offering new listings to a lead
// who already has a visit on the books.
func activeVisitContext(id, date, timeOfDay string) string {
	return fmt.Sprintf("[VISITA JA AGENDADA: #%s para %s as %s. NAO ofereca mais opcoes de imoveis. Responda educadamente e confirme a visita ja marcada.]", id, date, timeOfDay)
}

// VisitSummary is the slice of a past visit the prompt needs.
type VisitSummary struct {
	ID            string
	PropertyTitle string
	Date          string
	Time          string
	Status        string
	FeedbackScore int
}

// visitHistoryContext summarizes up to five earlier visits for the model.
func visitHistoryContext(visits []VisitSummary) string {
	if len(visits) == 0 {
		return ""
	}
	if len(visits) > 5 {
		visits = visits[:5]
	}

	lines := []string{"[HISTORICO DE VISITAS DO LEAD:"}
	for _, v := range visits {
		title := v.PropertyTitle
		if title == "" {
			title = "Imovel"
		}
		line := fmt.Sprintf("- Visita #%s: %s em %s as %s - Status: %s", v.ID, title, v.Date, v.Time, v.Status)
		if v.FeedbackScore > 0 {
			line += fmt.Sprintf(", Nota: %d/5", v.FeedbackScore)
		}
		lines = append(lines, line)
	}
	lines = append(lines, "Use esse historico para ajudar o lead com duvidas sobre visitas anteriores ou reagendar.]")
	return strings.Join(lines, "\n")
}
