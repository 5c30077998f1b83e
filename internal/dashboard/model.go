package dashboard

import "time"

// Metrics are the dashboard's headline KPIs.
type Metrics struct {
	TotalLeads      int            `json:"total_leads"`
	LeadsToday      int            `json:"leads_today"`
	LeadsByStatus   map[string]int `json:"leads_by_status"`
	TotalVisits     int            `json:"total_visits"`
	PendingVisits   int            `json:"pending_visits"`
	ConfirmedVisits int            `json:"confirmed_visits"`
	CompletedVisits int            `json:"completed_visits"`
	VisitsByStatus  map[string]int `json:"visits_by_status"`
	ConversionRate  float64        `json:"conversion_rate"`
}

// TimeseriesPoint is one day of lead and visit counts.
type TimeseriesPoint struct {
	Date   string `json:"date"`
	Leads  int    `json:"leads"`
	Visits int    `json:"visits"`
}

// FunnelStage is one step of the conversion funnel.
type FunnelStage struct {
	Stage      string  `json:"stage"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// SourceStat aggregates leads by landing-page source.
type SourceStat struct {
	Source         string  `json:"source"`
	Count          int     `json:"count"`
	Visits         int     `json:"visits"`
	ConversionRate float64 `json:"conversion_rate"`
	Percentage     float64 `json:"percentage"`
}

// NeighborhoodStat aggregates leads by the neighborhood they came in for.
type NeighborhoodStat struct {
	Neighborhood string  `json:"neighborhood"`
	Count        int     `json:"count"`
	Visits       int     `json:"visits"`
	AvgPrice     float64 `json:"avg_price"`
}

// LeadPreferences mirrors what the lead asked for on the landing page.
type LeadPreferences struct {
	PropertyType    string   `json:"property_type"`
	Bedrooms        *int     `json:"bedrooms"`
	MinPrice        *float64 `json:"min_price"`
	MaxPrice        *float64 `json:"max_price"`
	Neighborhoods   []string `json:"neighborhoods"`
	AdditionalNotes string   `json:"additional_notes"`
}

// LeadSummary is a lead row shaped for the dashboard frontend.
type LeadSummary struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Phone       string          `json:"phone"`
	Email       *string         `json:"email"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Preferences LeadPreferences `json:"preferences"`
	Score       *int            `json:"score"`
}

// LeadDetail is a lead plus its visits.
type LeadDetail struct {
	LeadSummary
	Visits []VisitSummary `json:"visits"`
}

// LeadFilter narrows and pages the lead list.
type LeadFilter struct {
	Page     int
	PageSize int
	Status   string
	Search   string
	DateFrom *time.Time
	DateTo   *time.Time
}

// LeadPatch is a partial lead update. Nil fields stay untouched.
type LeadPatch struct {
	Status             *string `json:"status"`
	Name               *string `json:"name"`
	QualificationScore *int    `json:"qualification_score"`
}

// Empty reports whether the patch changes nothing.
func (p *LeadPatch) Empty() bool {
	return p.Status == nil && p.Name == nil && p.QualificationScore == nil
}

// ConversationMessage is one turn of a lead's WhatsApp history.
type ConversationMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is a lead's full transcript.
type Conversation struct {
	LeadID   string                `json:"lead_id"`
	Phone    string                `json:"phone"`
	Messages []ConversationMessage `json:"messages"`
}

// VisitSummary is a visit row shaped for the dashboard frontend.
type VisitSummary struct {
	ID            string    `json:"id"`
	LeadID        string    `json:"lead_id"`
	LeadName      string    `json:"lead_name"`
	PropertyTitle string    `json:"property_title"`
	ScheduledDate string    `json:"scheduled_date"`
	ScheduledTime string    `json:"scheduled_time"`
	Status        string    `json:"status"`
	FeedbackScore *int      `json:"feedback_score"`
	CreatedAt     time.Time `json:"created_at"`
}

// VisitDetail is the full visit record.
type VisitDetail struct {
	VisitSummary
	LeadPhone              string     `json:"lead_phone"`
	PropertyInfo           string     `json:"property_info"`
	Session                string     `json:"session"`
	ConfirmationSent       bool       `json:"confirmation_sent"`
	LeadConfirmed          bool       `json:"lead_confirmed"`
	LeadConfirmedAt        *time.Time `json:"lead_confirmed_at"`
	BrokerConfirmationSent bool       `json:"broker_confirmation_sent"`
	BrokerConfirmed        bool       `json:"broker_confirmed"`
	FeedbackRequested      bool       `json:"feedback_requested"`
	FeedbackAt             *time.Time `json:"feedback_at"`
	NeedsImprovement       bool       `json:"needs_improvement"`
	BrokerID               *int64     `json:"broker_id"`
}

// VisitFilter narrows and pages the visit list.
type VisitFilter struct {
	Page     int
	PageSize int
	Status   string
	DateFrom *time.Time
	DateTo   *time.Time
	BrokerID *int64
}

// VisitPatch is a partial visit update. Nil fields stay untouched.
// Confirmation and feedback changes stamp their timestamps.
type VisitPatch struct {
	Status            *string `json:"status"`
	BrokerID          *int64  `json:"broker_id"`
	FeedbackScore     *int    `json:"feedback_score"`
	LeadConfirmed     *bool   `json:"lead_confirmed"`
	BrokerConfirmed   *bool   `json:"broker_confirmed"`
	ConfirmationSent  *bool   `json:"confirmation_sent"`
	FeedbackRequested *bool   `json:"feedback_requested"`
}

// Empty reports whether the patch changes nothing.
func (p *VisitPatch) Empty() bool {
	return p.Status == nil && p.BrokerID == nil && p.FeedbackScore == nil &&
		p.LeadConfirmed == nil && p.BrokerConfirmed == nil &&
		p.ConfirmationSent == nil && p.FeedbackRequested == nil
}
