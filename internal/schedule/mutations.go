package schedule

import "designqueue/internal/domain"

// Outcome tells callers what an id-addressed mutation actually did.
type Outcome int

const (
	Applied Outcome = iota
	NotFound
	// Unchanged means the task exists but its status does not allow the transition.
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case NotFound:
		return "not_found"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Result carries the next collection and the task the operation addressed,
// as it appears in Tasks. Task is the zero value when Outcome is NotFound.
// For NotFound and Unchanged, Tasks is the input slice itself.
type Result struct {
	Tasks   []domain.ScheduleTask
	Task    domain.ScheduleTask
	Outcome Outcome
}

type AssignRequest struct {
	DesignerID string
	Title      string
	Deadline   domain.Day
	Priority   domain.Priority
	// EstimatedDays is stored as given; zero or negative values fall back
	// to the default duration only when scheduling.
	EstimatedDays int
}

// Assign appends a new QUEUED task and reschedules its designer.
func (e *Engine) Assign(tasks []domain.ScheduleTask, req AssignRequest) Result {
	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	t := domain.ScheduleTask{
		ID:                e.newID(),
		Title:             req.Title,
		DesignerID:        req.DesignerID,
		RequestedDeadline: req.Deadline,
		EstimatedDays:     req.EstimatedDays,
		Priority:          priority,
		Status:            domain.StatusQueued,
		CreatedAt:         e.now(),
	}
	next := append(append([]domain.ScheduleTask(nil), tasks...), t)
	next = e.Reschedule(next, req.DesignerID)
	return Result{Tasks: next, Task: next[len(next)-1], Outcome: Applied}
}

// AssignEmergency appends a VIP task awaiting approval. It has no window and
// the designer is not rescheduled.
func (e *Engine) AssignEmergency(tasks []domain.ScheduleTask, designerID, title string, deadline domain.Day) Result {
	t := domain.ScheduleTask{
		ID:                e.newID(),
		Title:             title,
		DesignerID:        designerID,
		RequestedDeadline: deadline,
		EstimatedDays:     e.defaultDays,
		Priority:          domain.PriorityVIP,
		Status:            domain.StatusEmergencyPending,
		CreatedAt:         e.now(),
	}
	next := append(append([]domain.ScheduleTask(nil), tasks...), t)
	return Result{Tasks: next, Task: t, Outcome: Applied}
}

// ApproveEmergency moves a pending emergency into the queue. Its position is
// decided by CreatedAt like any other task; priority does not jump the queue.
func (e *Engine) ApproveEmergency(tasks []domain.ScheduleTask, taskID string) Result {
	i := indexOf(tasks, taskID)
	if i < 0 {
		return Result{Tasks: tasks, Outcome: NotFound}
	}
	if tasks[i].Status != domain.StatusEmergencyPending {
		return Result{Tasks: tasks, Task: tasks[i], Outcome: Unchanged}
	}
	next := append([]domain.ScheduleTask(nil), tasks...)
	next[i].Status = domain.StatusQueued
	next = e.Reschedule(next, next[i].DesignerID)
	return Result{Tasks: next, Task: next[i], Outcome: Applied}
}

// Complete marks a task COMPLETED, freezes its end date to today and
// reschedules the designer so later tasks move up.
func (e *Engine) Complete(tasks []domain.ScheduleTask, taskID string) Result {
	i := indexOf(tasks, taskID)
	if i < 0 {
		return Result{Tasks: tasks, Outcome: NotFound}
	}
	if tasks[i].Status == domain.StatusCompleted {
		return Result{Tasks: tasks, Task: tasks[i], Outcome: Unchanged}
	}
	next := append([]domain.ScheduleTask(nil), tasks...)
	next[i].Status = domain.StatusCompleted
	next[i].ActualEndDate = e.Today()
	next = e.Reschedule(next, next[i].DesignerID)
	return Result{Tasks: next, Task: next[i], Outcome: Applied}
}

// Find returns the task with id, if present.
func Find(tasks []domain.ScheduleTask, id string) (domain.ScheduleTask, bool) {
	if i := indexOf(tasks, id); i >= 0 {
		return tasks[i], true
	}
	return domain.ScheduleTask{}, false
}

func indexOf(tasks []domain.ScheduleTask, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}
