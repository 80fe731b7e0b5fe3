package queue

import (
	"context"
	"errors"

	"designqueue/internal/domain"
)

var ErrNotFound = errors.New("not found")

// DefaultInboxSize caps each user's notification inbox; older entries are dropped.
const DefaultInboxSize = 20

// Repository persists designer queues, notification inboxes and the
// task→requester side table.
type Repository interface {
	// LoadTasks returns every task in insertion order.
	LoadTasks(ctx context.Context) ([]domain.ScheduleTask, error)
	GetTask(ctx context.Context, id string) (domain.ScheduleTask, error)
	// SaveTasks upserts the given tasks. Tasks not passed are left alone.
	SaveTasks(ctx context.Context, tasks []domain.ScheduleTask) error

	PushNotification(ctx context.Context, userID string, n domain.ScheduleNotification) error
	// LoadNotifications returns the inbox newest first.
	LoadNotifications(ctx context.Context, userID string) ([]domain.ScheduleNotification, error)
	ClearNotifications(ctx context.Context, userID string) error
	// DrainNotifications loads and clears the inbox in one step.
	DrainNotifications(ctx context.Context, userID string) ([]domain.ScheduleNotification, error)

	RecordRequester(ctx context.Context, r domain.ScheduleRequester) error
	GetRequester(ctx context.Context, taskID string) (domain.ScheduleRequester, bool, error)

	Close() error
}
