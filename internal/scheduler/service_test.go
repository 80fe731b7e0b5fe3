package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"designqueue/internal/domain"
	"designqueue/internal/queue"
	"designqueue/internal/schedule"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *testClock) advanceDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, n)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (r *recordingNotifier) Notify(userID string, n domain.ScheduleNotification) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = make(map[string][]string)
	}
	r.sent[userID] = append(r.sent[userID], n.Message)
	return true
}

var dayT = domain.NewDay(2026, 10, 16)

func newTestService(t *testing.T, repo queue.Repository, opts Options) (*Service, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	engine := schedule.NewEngine(schedule.WithClock(clock.Now))
	return NewService(repo, engine, opts), clock
}

func messages(t *testing.T, svc *Service, userID string) []string {
	t.Helper()
	notes, err := svc.Notifications(context.Background(), userID, false)
	require.NoError(t, err)
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.Message
	}
	return out
}

func TestServiceQueueLifecycle(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	svc, clock := newTestService(t, queue.NewMemoryRepo(0), Options{Notifier: notifier})

	poster, err := svc.Submit(ctx, Intake{DesignerID: "D1", Title: "Poster", EstimatedDays: 3, RequesterID: "u1", RequesterName: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, dayT, poster.ActualStartDate)
	assert.Equal(t, domain.StatusWorkStarted, poster.Status)

	brochure, err := svc.Submit(ctx, Intake{DesignerID: "D1", Title: "Brochure", EstimatedDays: 4, RequesterID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, dayT.AddDays(3), brochure.ActualStartDate)

	req, ok, err := svc.Requester(ctx, poster.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.ScheduleRequester{TaskID: poster.ID, RequesterID: "u1", RequesterName: "Ana"}, req)

	clock.advanceDays(1)
	poster, err = svc.Complete(ctx, poster.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, poster.Status)
	assert.Equal(t, dayT.AddDays(1), poster.ActualEndDate)

	brochure, err = svc.Task(ctx, brochure.ID)
	require.NoError(t, err)
	assert.Equal(t, dayT.AddDays(2), brochure.ActualStartDate)
	assert.Equal(t, dayT.AddDays(5), brochure.ActualEndDate)

	rebrand, err := svc.Submit(ctx, Intake{DesignerID: "D1", Title: "Rebrand Now", Emergency: true, RequesterID: "u3"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEmergencyPending, rebrand.Status)
	events, err := svc.Calendar(ctx, "D1")
	require.NoError(t, err)
	for _, ev := range events {
		assert.NotEqual(t, rebrand.ID, ev.ID)
	}

	rebrand, err = svc.Approve(ctx, rebrand.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, rebrand.Status)
	assert.Equal(t, dayT.AddDays(6), rebrand.ActualStartDate)

	_, err = svc.Approve(ctx, rebrand.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Complete(ctx, "tsk_missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	u1 := messages(t, svc, "u1")
	require.Len(t, u1, 2)
	assert.Contains(t, u1[0], `"Poster" was completed`)
	assert.Contains(t, u1[1], `"Poster" is scheduled`)

	u2 := messages(t, svc, "u2")
	require.Len(t, u2, 2)
	assert.Contains(t, u2[0], `"Brochure" was rescheduled`)

	u3 := messages(t, svc, "u3")
	require.Len(t, u3, 2)
	assert.Contains(t, u3[0], "was approved")
	assert.Contains(t, u3[1], "awaiting designer approval")

	notifier.mu.Lock()
	assert.Len(t, notifier.sent["u3"], 2)
	notifier.mu.Unlock()

	busy, err := svc.BusyRanges(ctx, "D1")
	require.NoError(t, err)
	require.Len(t, busy, 2)
	assert.Equal(t, "Brochure", busy[0].Title)
	assert.Equal(t, "Rebrand Now", busy[1].Title)
}

func TestSubmitUsesDefaultDesigner(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, queue.NewMemoryRepo(0), Options{DefaultDesigner: "studio"})

	first, err := svc.Submit(ctx, Intake{Title: "a"})
	require.NoError(t, err)
	assert.Equal(t, "studio", first.DesignerID)

	_, err = svc.Submit(ctx, Intake{DesignerID: "other", Title: "b"})
	require.NoError(t, err)
	next, err := svc.Submit(ctx, Intake{Title: "c"})
	require.NoError(t, err)
	assert.Equal(t, "studio", next.DesignerID)
}

func TestConcurrentSubmitsKeepQueueContiguous(t *testing.T) {
	ctx := context.Background()
	repo := queue.NewMemoryRepo(0)
	svc, _ := newTestService(t, repo, Options{})

	const n = 24
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			designer := "D1"
			if i%3 == 0 {
				designer = "D2"
			}
			_, err := svc.Submit(ctx, Intake{DesignerID: designer, Title: fmt.Sprintf("t%d", i), EstimatedDays: 1 + i%4})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	tasks, err := svc.Tasks(ctx, "")
	require.NoError(t, err)
	require.Len(t, tasks, n)

	for _, designer := range []string{"D1", "D2"} {
		ranges, err := svc.BusyRanges(ctx, designer)
		require.NoError(t, err)
		byStart := make(map[string]domain.BusyRange, len(ranges))
		for _, r := range ranges {
			_, dup := byStart[r.Start.String()]
			require.False(t, dup, "overlapping start %s", r.Start)
			byStart[r.Start.String()] = r
		}
		cursor := dayT
		for range ranges {
			r, ok := byStart[cursor.String()]
			require.True(t, ok, "gap at %s for %s", cursor, designer)
			cursor = r.End.AddDays(1)
		}
	}
}

func TestStartReanchorsStoredQueues(t *testing.T) {
	ctx := context.Background()
	repo := queue.NewMemoryRepo(0)
	stale := domain.NewDay(2026, 9, 1)
	require.NoError(t, repo.SaveTasks(ctx, []domain.ScheduleTask{
		{ID: "a", DesignerID: "D1", EstimatedDays: 2, Status: domain.StatusQueued, ActualStartDate: stale, ActualEndDate: stale.AddDays(1), CreatedAt: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "b", DesignerID: "D2", EstimatedDays: 1, Status: domain.StatusCompleted, ActualStartDate: stale, ActualEndDate: stale, CreatedAt: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
	}))

	svc, _ := newTestService(t, repo, Options{Rollover: "5 0 * * *"})
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop()

	a, err := svc.Task(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, dayT, a.ActualStartDate)
	assert.Equal(t, domain.StatusWorkStarted, a.Status)

	b, err := svc.Task(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, stale, b.ActualEndDate)
}

func TestStartRejectsBadRollover(t *testing.T) {
	svc, _ := newTestService(t, queue.NewMemoryRepo(0), Options{Rollover: "not cron"})
	assert.Error(t, svc.Start(context.Background()))
}

func TestRolloverDoesNotAnnounceShifts(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t, queue.NewMemoryRepo(0), Options{})
	_, err := svc.Submit(ctx, Intake{DesignerID: "D1", Title: "a", EstimatedDays: 5, RequesterID: "u1"})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, Intake{DesignerID: "D1", Title: "b", EstimatedDays: 1, RequesterID: "u2"})
	require.NoError(t, err)

	clock.advanceDays(1)
	require.NoError(t, svc.RescheduleAll(ctx))
	assert.Len(t, messages(t, svc, "u1"), 1)
	assert.Len(t, messages(t, svc, "u2"), 1)

	// unfinished work keeps sliding with today
	clock.advanceDays(10)
	svc.runRollover(ctx)
	tasks, err := svc.Tasks(ctx, "D1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, dayT.AddDays(11), tasks[0].ActualStartDate)
	assert.Equal(t, dayT.AddDays(16), tasks[1].ActualStartDate)
	assert.Equal(t, domain.StatusQueued, tasks[1].Status)
	assert.Len(t, messages(t, svc, "u2"), 1)
}

func TestNotificationsDrain(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, queue.NewMemoryRepo(0), Options{})
	_, err := svc.Submit(ctx, Intake{DesignerID: "D1", Title: "a", RequesterID: "u1"})
	require.NoError(t, err)

	notes, err := svc.Notifications(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Empty(t, messages(t, svc, "u1"))

	_, err = svc.Submit(ctx, Intake{DesignerID: "D1", Title: "b", RequesterID: "u1"})
	require.NoError(t, err)
	require.NoError(t, svc.ClearNotifications(ctx, "u1"))
	assert.Empty(t, messages(t, svc, "u1"))
}

func TestServiceOnSQLitePartitionsDesigners(t *testing.T) {
	ctx := context.Background()
	db, err := queue.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	repo := queue.NewSQLiteRepo(db, 0)
	defer repo.Close()
	svc, clock := newTestService(t, repo, Options{})

	a, err := svc.Submit(ctx, Intake{DesignerID: "D1", Title: "a", EstimatedDays: 2})
	require.NoError(t, err)
	other, err := svc.Submit(ctx, Intake{DesignerID: "D2", Title: "other", EstimatedDays: 2})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, Intake{DesignerID: "D1", Title: "b", EstimatedDays: 2})
	require.NoError(t, err)

	clock.advanceDays(1)
	_, err = svc.Complete(ctx, a.ID)
	require.NoError(t, err)

	d2, err := svc.Tasks(ctx, "D2")
	require.NoError(t, err)
	require.Len(t, d2, 1)
	assert.Equal(t, other.ActualStartDate, d2[0].ActualStartDate)
	assert.Equal(t, other.ActualEndDate, d2[0].ActualEndDate)

	d1, err := svc.Tasks(ctx, "D1")
	require.NoError(t, err)
	require.Len(t, d1, 2)
	assert.Equal(t, dayT.AddDays(2), d1[1].ActualStartDate)
}
