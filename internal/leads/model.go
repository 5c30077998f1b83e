package leads

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/orquestrai/sells-broker/internal/listings"
)

// Status tracks where a landing-page lead is in its lifecycle.
type Status string

const (
	// StatusPending means the lead registered but was never messaged.
	StatusPending Status = "pending"
	// StatusContacted means the proactive follow-up went out.
	StatusContacted Status = "contacted"
	// StatusInConversation means the lead replied on WhatsApp.
	StatusInConversation Status = "in_conversation"
)

// PropertyInfo is the listing the lead saw on the landing page, stored
// inline with the lead.
type PropertyInfo struct {
	Title          string  `json:"title"`
	Price          float64 `json:"price"`
	PriceFormatted string  `json:"price_formatted"`
	Neighborhood   string  `json:"neighborhood"`
	Bedrooms       int     `json:"bedrooms"`
	Area           float64 `json:"area"`
	ImageURL       string  `json:"image_url"`
	Link           string  `json:"link"`
	Description    string  `json:"description"`
}

// Lead is a landing-page registration, property data embedded.
type Lead struct {
	ID             int64        `json:"id"`
	Phone          string       `json:"phone"`
	Name           string       `json:"name"`
	SourceURL      string       `json:"source_url"`
	Property       PropertyInfo `json:"property"`
	Status         Status       `json:"status"`
	RegisteredAt   time.Time    `json:"registered_at"`
	ContactedAt    *time.Time   `json:"contacted_at,omitempty"`
	FirstMessageAt *time.Time   `json:"first_message_at,omitempty"`
}

// ListingProperty converts the inline snapshot to a listing for the
// conversation layer.
func (l *Lead) ListingProperty() *listings.Property {
	p := &listings.Property{
		Title:        l.Property.Title,
		Price:        l.Property.Price,
		Neighborhood: l.Property.Neighborhood,
		ImageURL:     l.Property.ImageURL,
		Link:         l.Property.Link,
		Description:  l.Property.Description,
	}
	if l.Property.Bedrooms > 0 {
		p.Bedrooms = strconv.Itoa(l.Property.Bedrooms)
	}
	if l.Property.Area > 0 {
		p.Area = strconv.FormatFloat(l.Property.Area, 'f', -1, 64)
	}
	return p
}

// RegisterRequest is the landing-page form submission.
type RegisterRequest struct {
	Phone     string       `json:"phone"`
	Name      string       `json:"name"`
	SourceURL string       `json:"source_url"`
	Property  PropertyInfo `json:"property"`
}

// Validate checks the required fields.
func (r *RegisterRequest) Validate() error {
	if strings.TrimSpace(r.Phone) == "" {
		return ErrMissingPhone
	}
	if strings.TrimSpace(r.Property.Title) == "" {
		return ErrMissingPropertyTitle
	}
	return nil
}

var nonDigitRe = regexp.MustCompile(`\D`)

// NormalizePhone strips formatting and ensures the Brazilian country code.
func NormalizePhone(phone string) string {
	phone = nonDigitRe.ReplaceAllString(phone, "")
	if phone == "" {
		return ""
	}
	if !strings.HasPrefix(phone, "55") {
		phone = "55" + phone
	}
	return phone
}
