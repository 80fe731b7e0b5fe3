package domain

import (
	"strings"
	"time"
)

type Status string

const (
	StatusQueued           Status = "QUEUED"
	StatusWorkStarted      Status = "WORK_STARTED"
	StatusCompleted        Status = "COMPLETED"
	StatusEmergencyPending Status = "EMERGENCY_PENDING"
)

// Active reports whether a task in this status occupies designer time.
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusWorkStarted
}

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusWorkStarted, StatusCompleted, StatusEmergencyPending:
		return true
	}
	return false
}

type Priority string

const (
	PriorityVIP    Priority = "VIP"
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
)

// ParsePriority is case-insensitive and falls back to NORMAL.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToUpper(strings.TrimSpace(s))) {
	case PriorityVIP:
		return PriorityVIP
	case PriorityHigh:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// Urgency is the intake form's wording for priority.
type Urgency string

const (
	UrgencyUrgent       Urgency = "urgent"
	UrgencyIntermediate Urgency = "intermediate"
	UrgencyNormal       Urgency = "normal"
)

func PriorityFromUrgency(u Urgency) Priority {
	switch Urgency(strings.ToLower(strings.TrimSpace(string(u)))) {
	case UrgencyUrgent:
		return PriorityVIP
	case UrgencyIntermediate:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

const (
	DefaultEstimatedDays = 3
	DefaultDesignerID    = "designer-1"
)

// ScheduleTask is one unit of design work owned by a single designer.
// ActualStartDate and ActualEndDate are written only by the reschedule engine
// (and by completion, which freezes the end date).
type ScheduleTask struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	DesignerID        string    `json:"designer_id"`
	RequestedDeadline Day       `json:"requested_deadline"`
	EstimatedDays     int       `json:"estimated_days"`
	ActualStartDate   Day       `json:"actual_start_date"`
	ActualEndDate     Day       `json:"actual_end_date"`
	Priority          Priority  `json:"priority"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

// Scheduled reports whether both window dates are set.
func (t ScheduleTask) Scheduled() bool {
	return !t.ActualStartDate.IsZero() && !t.ActualEndDate.IsZero()
}

type ScheduleNotification struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type ScheduleRequester struct {
	TaskID        string `json:"task_id"`
	RequesterID   string `json:"requester_id"`
	RequesterName string `json:"requester_name"`
}

// CalendarEvent is a calendar-widget record. End is exclusive.
type CalendarEvent struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Start Day    `json:"start"`
	End   Day    `json:"end"`
	Color string `json:"color"`
}

// BusyRange is an inclusive window a date picker must treat as unavailable.
type BusyRange struct {
	Start Day    `json:"start"`
	End   Day    `json:"end"`
	Title string `json:"title"`
}
