// Package schedule assigns non-overlapping day windows to each designer's
// task queue. Everything here is a pure function over an in-memory snapshot:
// callers load the collection, apply an operation and persist the result.
package schedule

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"designqueue/internal/domain"
)

type Engine struct {
	now            func() time.Time
	newID          func() string
	defaultDays    int
	sameDayHandoff bool
}

type Option func(*Engine)

// WithClock replaces time.Now as the source of "today".
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

// WithDefaultEstimatedDays sets the duration used for tasks without an
// estimate and for emergency requests.
func WithDefaultEstimatedDays(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.defaultDays = n
		}
	}
}

// WithSameDayHandoff lets the next task start on the day another task of the
// same designer was completed. By default a day that saw a completion is
// considered spent and the queue resumes the following day.
func WithSameDayHandoff(enabled bool) Option {
	return func(e *Engine) { e.sameDayHandoff = enabled }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now:         time.Now,
		newID:       func() string { return "tsk_" + uuid.NewString() },
		defaultDays: domain.DefaultEstimatedDays,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Today is the engine clock truncated to a calendar day.
func (e *Engine) Today() domain.Day { return domain.DayOf(e.now()) }

// Duration is the effective length in days of t: a missing estimate takes
// the default, a negative one is clamped to a single day. The stored
// estimate is never modified.
func (e *Engine) Duration(t domain.ScheduleTask) int {
	d := t.EstimatedDays
	if d == 0 {
		d = e.defaultDays
	}
	if d < 1 {
		d = 1
	}
	return d
}

// Reschedule recomputes the windows of designerID's active tasks and returns
// a new collection. Tasks of other designers, completed tasks and pending
// emergencies are copied through untouched.
func (e *Engine) Reschedule(tasks []domain.ScheduleTask, designerID string) []domain.ScheduleTask {
	next := make([]domain.ScheduleTask, len(tasks))
	copy(next, tasks)

	today := e.Today()
	cursor := today
	var active []int
	for i, t := range next {
		if t.DesignerID != designerID {
			continue
		}
		if t.Status.Active() {
			active = append(active, i)
			continue
		}
		if !e.sameDayHandoff && occupiedToday(t, today) && !t.ActualEndDate.Before(cursor) {
			cursor = t.ActualEndDate.AddDays(1)
		}
	}

	sort.SliceStable(active, func(a, b int) bool {
		return next[active[a]].CreatedAt.Before(next[active[b]].CreatedAt)
	})

	for _, i := range active {
		t := &next[i]
		start := cursor
		end := start.AddDays(e.Duration(*t) - 1)
		t.ActualStartDate = start
		t.ActualEndDate = end
		if t.Status == domain.StatusQueued && !start.After(today) {
			t.Status = domain.StatusWorkStarted
		}
		cursor = end.AddDays(1)
	}
	return next
}

// occupiedToday reports whether t is a completed task whose window had begun
// by today, so its finish day is still taken. Completions of pending
// emergencies or of tasks that never started do not hold the day.
func occupiedToday(t domain.ScheduleTask, today domain.Day) bool {
	return t.Status == domain.StatusCompleted &&
		!t.ActualStartDate.IsZero() &&
		!t.ActualStartDate.After(today)
}

// RescheduleAll folds Reschedule over every designer present in tasks.
func (e *Engine) RescheduleAll(tasks []domain.ScheduleTask) []domain.ScheduleTask {
	out := append([]domain.ScheduleTask(nil), tasks...)
	for _, id := range DesignerIDs(tasks) {
		out = e.Reschedule(out, id)
	}
	return out
}

// DesignerIDs lists distinct designer ids in first-seen order.
func DesignerIDs(tasks []domain.ScheduleTask) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, t := range tasks {
		if _, ok := seen[t.DesignerID]; ok {
			continue
		}
		seen[t.DesignerID] = struct{}{}
		ids = append(ids, t.DesignerID)
	}
	return ids
}

// DefaultDesignerID returns the designer of the first task that has one,
// falling back to fallback.
func DefaultDesignerID(tasks []domain.ScheduleTask, fallback string) string {
	for _, t := range tasks {
		if t.DesignerID != "" {
			return t.DesignerID
		}
	}
	return fallback
}

// ForDesigner filters tasks to one designer, preserving order.
func ForDesigner(tasks []domain.ScheduleTask, designerID string) []domain.ScheduleTask {
	var out []domain.ScheduleTask
	for _, t := range tasks {
		if t.DesignerID == designerID {
			out = append(out, t)
		}
	}
	return out
}
