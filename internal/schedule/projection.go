package schedule

import "designqueue/internal/domain"

const (
	ColorVIP    = "#ef4444"
	ColorHigh   = "#f59e0b"
	ColorNormal = "#3b82f6"
)

func PriorityColor(p domain.Priority) string {
	switch p {
	case domain.PriorityVIP:
		return ColorVIP
	case domain.PriorityHigh:
		return ColorHigh
	default:
		return ColorNormal
	}
}

// CalendarEvents maps every scheduled, non-emergency task to a calendar
// event with an exclusive end. Completed tasks keep their historical window.
// Recompute after every mutation; the output is never cached.
func CalendarEvents(tasks []domain.ScheduleTask) []domain.CalendarEvent {
	events := make([]domain.CalendarEvent, 0, len(tasks))
	for _, t := range tasks {
		if t.Status == domain.StatusEmergencyPending || !t.Scheduled() {
			continue
		}
		events = append(events, domain.CalendarEvent{
			ID:    t.ID,
			Title: t.Title,
			Start: t.ActualStartDate,
			End:   t.ActualEndDate.AddDays(1),
			Color: PriorityColor(t.Priority),
		})
	}
	return events
}

// BusyRanges returns designerID's active windows. The status filter must
// match the active set used by Reschedule.
func BusyRanges(tasks []domain.ScheduleTask, designerID string) []domain.BusyRange {
	ranges := make([]domain.BusyRange, 0)
	for _, t := range tasks {
		if t.DesignerID != designerID || !t.Status.Active() || !t.Scheduled() {
			continue
		}
		ranges = append(ranges, domain.BusyRange{
			Start: t.ActualStartDate,
			End:   t.ActualEndDate,
			Title: t.Title,
		})
	}
	return ranges
}
