package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"designqueue/internal/domain"
)

const dateFormat = "Mon Jan 2"

// announce pushes a message to the requester of every task of designerID
// that is new or whose status or window changed between before and after.
// Failures are logged; scheduling has already been persisted.
func (s *Service) announce(ctx context.Context, before, after []domain.ScheduleTask, designerID string, shifts bool) {
	prev := make(map[string]domain.ScheduleTask, len(before))
	for _, t := range before {
		prev[t.ID] = t
	}
	for _, t := range after {
		if t.DesignerID != designerID {
			continue
		}
		old, existed := prev[t.ID]
		msg := changeMessage(old, t, existed, shifts)
		if msg == "" {
			continue
		}
		s.notifyRequester(ctx, t.ID, msg)
	}
}

func changeMessage(old, cur domain.ScheduleTask, existed, shifts bool) string {
	if !existed {
		if cur.Status == domain.StatusEmergencyPending {
			return fmt.Sprintf("Emergency request %q is awaiting designer approval.", cur.Title)
		}
		return fmt.Sprintf("%q is scheduled %s.", cur.Title, window(cur))
	}
	if old.Status != cur.Status {
		switch {
		case cur.Status == domain.StatusCompleted:
			return fmt.Sprintf("%q was completed on %s.", cur.Title, cur.ActualEndDate.Format(dateFormat))
		case old.Status == domain.StatusEmergencyPending:
			return fmt.Sprintf("Emergency request %q was approved and is scheduled %s.", cur.Title, window(cur))
		case cur.Status == domain.StatusWorkStarted:
			return fmt.Sprintf("Work has started on %q, expected %s.", cur.Title, window(cur))
		}
	}
	if shifts && cur.Status.Active() &&
		(!old.ActualStartDate.Equal(cur.ActualStartDate) || !old.ActualEndDate.Equal(cur.ActualEndDate)) {
		return fmt.Sprintf("%q was rescheduled to %s.", cur.Title, window(cur))
	}
	return ""
}

func window(t domain.ScheduleTask) string {
	if t.ActualStartDate.Equal(t.ActualEndDate) {
		return "for " + t.ActualStartDate.Format(dateFormat)
	}
	return fmt.Sprintf("from %s to %s", t.ActualStartDate.Format(dateFormat), t.ActualEndDate.Format(dateFormat))
}

func (s *Service) notifyRequester(ctx context.Context, taskID, message string) {
	req, ok, err := s.repo.GetRequester(ctx, taskID)
	if err != nil {
		log.Error().Err(err).Str("task_id", taskID).Msg("lookup requester")
		return
	}
	if !ok {
		return
	}
	n := domain.ScheduleNotification{
		ID:        "ntf_" + uuid.NewString(),
		TaskID:    taskID,
		Message:   message,
		CreatedAt: time.Now(),
	}
	if err := s.repo.PushNotification(ctx, req.RequesterID, n); err != nil {
		log.Error().Err(err).Str("task_id", taskID).Str("user_id", req.RequesterID).Msg("push notification")
		return
	}
	if s.notifier != nil {
		s.notifier.Notify(req.RequesterID, n)
	}
}
