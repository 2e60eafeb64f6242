package availability

import (
	"time"

	"github.com/google/uuid"
)

type RuleKind string

const (
	RuleKindRecurring    RuleKind = "recurring"
	RuleKindDateSpecific RuleKind = "date_specific"
	RuleKindBlocked      RuleKind = "blocked"
)

// AvailabilityRule is an owner-defined interval of recurring, date-specific,
// or explicitly blocked time. StartTime and EndTime are wall-clock HH:MM
// values interpreted in Timezone.
type AvailabilityRule struct {
	ID           int64      `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Kind         RuleKind   `json:"kind"`
	DayOfWeek    *int       `json:"day_of_week,omitempty"`
	SpecificDate *time.Time `json:"specific_date,omitempty"`
	StartTime    string     `json:"start_time"`
	EndTime      string     `json:"end_time"`
	Timezone     string     `json:"timezone,omitempty"`
	Blocked      bool       `json:"blocked"`
	BlockReason  string     `json:"block_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at,omitempty"`
}

// IsBlocking reports whether the rule removes time instead of offering it.
func (r AvailabilityRule) IsBlocking() bool {
	return r.Kind == RuleKindBlocked || r.Blocked
}

// TimeSlot is a half-open [Start, End) interval of absolute instants.
type TimeSlot struct {
	Start time.Time `json:"start_utc"`
	End   time.Time `json:"end_utc"`
}

type BookingStatus string

const (
	BookingPending     BookingStatus = "PENDING"
	BookingConfirmed   BookingStatus = "CONFIRMED"
	BookingCancelled   BookingStatus = "CANCELLED"
	BookingRescheduled BookingStatus = "RESCHEDULED"
	BookingCompleted   BookingStatus = "COMPLETED"
	BookingNoShow      BookingStatus = "NO_SHOW"
)

// OccupyingStatuses are the booking statuses that hold time on a host's
// calendar. PENDING requests do not.
var OccupyingStatuses = []BookingStatus{BookingConfirmed, BookingRescheduled}

func (s BookingStatus) OccupiesTime() bool {
	return s == BookingConfirmed || s == BookingRescheduled
}

type Booking struct {
	ID     uuid.UUID     `json:"id"`
	HostID string        `json:"host_id"`
	Start  time.Time     `json:"start_at_utc"`
	End    time.Time     `json:"end_at_utc"`
	Status BookingStatus `json:"status"`
}

type Provider string

const (
	ProviderGoogle  Provider = "google"
	ProviderOutlook Provider = "outlook"
	ProviderICS     Provider = "ics"
)

type CalendarIntegration struct {
	ID                       uuid.UUID `json:"id"`
	OwnerID                  string    `json:"owner_id"`
	Name                     string    `json:"name"`
	Provider                 Provider  `json:"provider"`
	EncryptedCredential      string    `json:"-"`
	CalendarID               string    `json:"calendar_id,omitempty"`
	IsActive                 bool      `json:"is_active"`
	ConflictDetectionEnabled bool      `json:"conflict_detection_enabled"`
}

func (c CalendarIntegration) eligible() bool {
	return c.IsActive && c.ConflictDetectionEnabled
}

func (c CalendarIntegration) calendarName() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.CalendarID != "":
		return c.CalendarID
	default:
		return string(c.Provider)
	}
}

// NormalizedEvent is the provider-independent shape every calendar client
// translates its native events into.
type NormalizedEvent struct {
	ID          string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Status      string
	// Transparent marks events that do not block time (free / transparent).
	Transparent bool
	// BookingID is the internal booking id stored as event metadata, when the
	// event was written by this platform.
	BookingID string
}

type ConflictRecord struct {
	ExternalEventID string    `json:"external_event_id"`
	Title           string    `json:"title"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Provider        Provider  `json:"provider"`
	CalendarName    string    `json:"calendar_name"`
	Location        string    `json:"location,omitempty"`
	Status          string    `json:"status"`
}

type IntegrationCheckResult struct {
	IntegrationID uuid.UUID `json:"integration_id"`
	Name          string    `json:"name"`
	Provider      Provider  `json:"provider"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
}

type ConflictCheckResult struct {
	HasConflicts        bool                     `json:"has_conflicts"`
	Conflicts           []ConflictRecord         `json:"conflicts"`
	CheckedIntegrations []IntegrationCheckResult `json:"checked_integrations"`
}
