package visits

import "time"

// Status of a visit through its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Unconfirmed is the placeholder shown when the lead never pinned down a
// date or time.
const Unconfirmed = "A confirmar"

// LeadSnapshot freezes the lead's qualification data at scheduling time, so
// the broker notification survives later conversation changes.
type LeadSnapshot struct {
	Name         string  `json:"name"`
	Phone        string  `json:"phone"`
	Neighborhood string  `json:"neighborhood"`
	Bedrooms     string  `json:"bedrooms"`
	Renda        int     `json:"renda"`
	MaxPrice     float64 `json:"max_price"`
}

// PropertySnapshot is the listing the visit is for, as much of it as the
// conversation captured.
type PropertySnapshot struct {
	Title string `json:"title"`
	Info  string `json:"info"`
}

// Visit is one scheduled property visit.
type Visit struct {
	ID            string           `json:"id"`
	LeadNumber    string           `json:"lead_number"`
	Lead          LeadSnapshot     `json:"lead"`
	Property      PropertySnapshot `json:"property"`
	ScheduledDate string           `json:"scheduled_date"`
	ScheduledTime string           `json:"scheduled_time"`
	ScheduledAt   time.Time        `json:"scheduled_at"`
	Status        Status           `json:"status"`
	Session       string           `json:"session"`
	CreatedAt     time.Time        `json:"created_at"`

	ConfirmationSent       bool      `json:"confirmation_sent"`
	LeadConfirmed          bool      `json:"lead_confirmed"`
	LeadConfirmedAt        time.Time `json:"lead_confirmed_at"`
	BrokerConfirmationSent bool      `json:"broker_confirmation_sent"`
	FeedbackRequested      bool      `json:"feedback_requested"`
	FeedbackScore          int       `json:"feedback_score"`
	FeedbackAt             time.Time `json:"feedback_at"`
	NeedsImprovement       bool      `json:"needs_improvement"`
}

// Active reports whether the visit still has a pending or confirmed slot.
func (v *Visit) Active() bool {
	return v.Status == StatusPending || v.Status == StatusConfirmed
}
