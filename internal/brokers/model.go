package brokers

import (
	"strings"
	"time"
)

// Broker is a real-estate agent who receives visit notifications.
type Broker struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CRECI     string    `json:"creci"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats aggregates a broker's visit outcomes.
type Stats struct {
	TotalVisits      int     `json:"total_visits"`
	PendingVisits    int     `json:"pending_visits"`
	ConfirmedVisits  int     `json:"confirmed_visits"`
	CompletedVisits  int     `json:"completed_visits"`
	AvgFeedbackScore float64 `json:"avg_feedback_score"`
}

// RankingEntry is one row of the broker performance ranking.
type RankingEntry struct {
	ID               int64   `json:"id,string"`
	Name             string  `json:"name"`
	CompletedVisits  int     `json:"completed_visits"`
	AvgFeedbackScore float64 `json:"avg_feedback_score"`
	Rank             int     `json:"rank"`
}

// CreateRequest is the body for registering a broker.
type CreateRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	CRECI string `json:"creci"`
}

// Validate checks the required fields.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(r.Phone) == "" {
		return ErrMissingPhone
	}
	return nil
}

// UpdateRequest carries a partial broker update. Nil fields stay untouched.
type UpdateRequest struct {
	Name   *string `json:"name"`
	Email  *string `json:"email"`
	Phone  *string `json:"phone"`
	CRECI  *string `json:"creci"`
	Status *string `json:"status"`
}

// Empty reports whether the update changes nothing.
func (r *UpdateRequest) Empty() bool {
	return r.Name == nil && r.Email == nil && r.Phone == nil && r.CRECI == nil && r.Status == nil
}

// ListFilter narrows and pages the broker list.
type ListFilter struct {
	Page    int
	PerPage int
	Status  string
	Search  string
}

// Normalize applies the paging defaults and caps.
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 20
	}
	if f.PerPage > 100 {
		f.PerPage = 100
	}
}

// Offset returns the row offset for the current page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}
