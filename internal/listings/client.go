package listings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	fetchPageSize = 100
	maxResults    = 5
)

var digitsRe = regexp.MustCompile(`\d+`)

// Filters narrows the portal's full listing set down to what the lead asked
// for. Zero values mean "no constraint".
type Filters struct {
	Neighborhood string
	Bedrooms     int
	MaxPrice     float64
}

// Property is one listing after filtering, with the price already converted
// from the portal's cents representation to reais.
type Property struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Price        float64 `json:"price"`
	City         string  `json:"city"`
	Neighborhood string  `json:"neighborhood"`
	Bedrooms     string  `json:"bedrooms"`
	Area         string  `json:"area"`
	ImageURL     string  `json:"image_url"`
	Link         string  `json:"link"`
	Description  string  `json:"description"`
}

// PriceFormatted renders the price in Brazilian currency format.
func (p Property) PriceFormatted() string {
	return formatBRL(p.Price)
}

// Caption builds the WhatsApp image caption for this listing.
func (p Property) Caption() string {
	var b strings.Builder
	title := p.Title
	if title == "" {
		title = "Imovel"
	}
	fmt.Fprintf(&b, "*%s*\n\n", title)
	if p.Price > 0 {
		fmt.Fprintf(&b, "Valor: %s\n", p.PriceFormatted())
	}
	if p.Bedrooms != "" {
		fmt.Fprintf(&b, "Quartos: %s\n", p.Bedrooms)
	}
	if p.Area != "" {
		fmt.Fprintf(&b, "Area: %sm2\n", p.Area)
	}
	if p.Neighborhood != "" {
		fmt.Fprintf(&b, "Bairro: %s\n", p.Neighborhood)
	}
	if p.City != "" {
		fmt.Fprintf(&b, "Cidade: %s\n", p.City)
	}
	if p.Link != "" {
		fmt.Fprintf(&b, "\nMais detalhes: %s", p.Link)
	}
	return b.String()
}

// Client searches the Memude listings portal. The portal's server-side
// filters are unreliable, so Search pulls a large page and filters locally.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a listings client for the given portal base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// rawListing mirrors the portal's JSON, where numeric fields arrive as
// either strings or numbers and location fields as either strings or arrays.
type rawListing struct {
	ID         int64           `json:"id"`
	Title      string          `json:"title"`
	Valor      json.RawMessage `json:"valor"`
	Categories []string        `json:"categories"`
	Quartos    json.RawMessage `json:"quartos"`
	Cidade     json.RawMessage `json:"cidade"`
	Area       json.RawMessage `json:"area"`
	Image      string          `json:"image"`
	Link       string          `json:"link"`
}

// Search fetches listings and applies the filters client-side: neighborhood
// is a case-insensitive substring match, bedrooms must match exactly, and
// price (in reais) must not exceed MaxPrice. At most five listings return.
func (c *Client) Search(ctx context.Context, f Filters) ([]Property, error) {
	url := fmt.Sprintf("%s/wp-json/custom/v1/posts?per_page=%d", c.baseURL, fetchPageSize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("listings: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.8")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listings: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("listings: portal returned %d: %s", resp.StatusCode, string(body))
	}

	var raw []rawListing
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("listings: decode response: %w", err)
	}

	filtered := make([]Property, 0, maxResults)
	for _, item := range raw {
		priceReais := flexFloat(item.Valor) / 100

		neighborhood := ""
		if len(item.Categories) > 0 {
			neighborhood = item.Categories[0]
		}

		bedroomsStr := flexString(item.Quartos)
		bedrooms := 0
		if m := digitsRe.FindString(bedroomsStr); m != "" {
			bedrooms, _ = strconv.Atoi(m)
		}

		if f.Neighborhood != "" &&
			!strings.Contains(strings.ToLower(neighborhood), strings.ToLower(f.Neighborhood)) {
			continue
		}
		if f.Bedrooms > 0 && bedrooms != f.Bedrooms {
			continue
		}
		if f.MaxPrice > 0 && priceReais > f.MaxPrice {
			continue
		}

		filtered = append(filtered, Property{
			ID:           item.ID,
			Title:        item.Title,
			Price:        priceReais,
			City:         flexString(item.Cidade),
			Neighborhood: neighborhood,
			Bedrooms:     bedroomsStr,
			Area:         flexString(item.Area),
			ImageURL:     item.Image,
			Link:         item.Link,
		})
		if len(filtered) >= maxResults {
			break
		}
	}
	return filtered, nil
}

// flexFloat parses a JSON value that may be a number, a numeric string, or
// absent. Anything unparseable counts as zero.
func flexFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v
		}
	}
	return 0
}

// flexString parses a JSON value that may be a string, a number, or an
// array of strings (first element wins).
func flexString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) > 0 {
			return arr[0]
		}
		return ""
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}

// formatBRL renders a value as "R$ 1.234,56".
func formatBRL(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	parts := strings.SplitN(s, ".", 2)
	intPart, decPart := parts[0], parts[1]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return "R$ " + b.String() + "," + decPart
}
