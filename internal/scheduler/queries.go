package scheduler

import (
	"context"
	"errors"

	"designqueue/internal/domain"
	"designqueue/internal/queue"
	"designqueue/internal/schedule"
)

// Tasks lists stored tasks, limited to one designer unless designerID is empty.
func (s *Service) Tasks(ctx context.Context, designerID string) ([]domain.ScheduleTask, error) {
	tasks, err := s.repo.LoadTasks(ctx)
	if err != nil {
		return nil, err
	}
	if designerID == "" {
		return tasks, nil
	}
	return schedule.ForDesigner(tasks, designerID), nil
}

func (s *Service) Task(ctx context.Context, id string) (domain.ScheduleTask, error) {
	t, err := s.repo.GetTask(ctx, id)
	if errors.Is(err, queue.ErrNotFound) {
		return domain.ScheduleTask{}, ErrTaskNotFound
	}
	return t, err
}

// Calendar projects stored tasks into calendar events.
func (s *Service) Calendar(ctx context.Context, designerID string) ([]domain.CalendarEvent, error) {
	tasks, err := s.Tasks(ctx, designerID)
	if err != nil {
		return nil, err
	}
	return schedule.CalendarEvents(tasks), nil
}

func (s *Service) BusyRanges(ctx context.Context, designerID string) ([]domain.BusyRange, error) {
	tasks, err := s.repo.LoadTasks(ctx)
	if err != nil {
		return nil, err
	}
	return schedule.BusyRanges(tasks, designerID), nil
}

// Notifications returns userID's inbox, newest first. With drain set the
// inbox is emptied in the same step.
func (s *Service) Notifications(ctx context.Context, userID string, drain bool) ([]domain.ScheduleNotification, error) {
	if drain {
		return s.repo.DrainNotifications(ctx, userID)
	}
	return s.repo.LoadNotifications(ctx, userID)
}

func (s *Service) ClearNotifications(ctx context.Context, userID string) error {
	return s.repo.ClearNotifications(ctx, userID)
}

func (s *Service) Requester(ctx context.Context, taskID string) (domain.ScheduleRequester, bool, error) {
	return s.repo.GetRequester(ctx, taskID)
}

// DefaultDesigner picks the designer for requests that name none.
func (s *Service) DefaultDesigner(ctx context.Context) (string, error) {
	tasks, err := s.repo.LoadTasks(ctx)
	if err != nil {
		return "", err
	}
	return schedule.DefaultDesignerID(tasks, s.defaultDesigner), nil
}
