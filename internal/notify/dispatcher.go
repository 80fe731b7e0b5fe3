package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"designqueue/internal/domain"
)

// Deliverer hands a notification to an external channel (webhook, push, ...).
type Deliverer interface {
	Deliver(ctx context.Context, userID string, n domain.ScheduleNotification) error
}

type Config struct {
	Workers    int
	QueueSize  int
	RatePerSec int
	RetryMax   int
}

type envelope struct {
	userID   string
	note     domain.ScheduleNotification
	attempts int
}

// Dispatcher delivers notifications in the background with bounded
// concurrency, a global rate limit and exponential backoff between attempts.
type Dispatcher struct {
	deliverer Deliverer
	queue     chan envelope
	sem       chan struct{}
	limiter   *rate.Limiter
	retryMax  int
	wg        sync.WaitGroup

	// sleep is swapped in tests
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewDispatcher(d Deliverer, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
		burst = cfg.RatePerSec
	}
	return &Dispatcher{
		deliverer: d,
		queue:     make(chan envelope, cfg.QueueSize),
		sem:       make(chan struct{}, cfg.Workers),
		limiter:   rate.NewLimiter(limit, burst),
		retryMax:  cfg.RetryMax,
		sleep:     sleepCtx,
	}
}

// Notify enqueues n for delivery. It never blocks; when the queue is full the
// notification is dropped and false is returned.
func (d *Dispatcher) Notify(userID string, n domain.ScheduleNotification) bool {
	select {
	case d.queue <- envelope{userID: userID, note: n}:
		return true
	default:
		log.Warn().Str("user_id", userID).Str("task_id", n.TaskID).Msg("notification queue full, dropping")
		return false
	}
}

// Run delivers until ctx is cancelled, then waits for in-flight deliveries.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			select {
			case d.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			d.wg.Add(1)
			go func(env envelope) {
				defer d.wg.Done()
				defer func() { <-d.sem }()
				d.deliver(ctx, env)
			}(env)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, env envelope) {
	for {
		err := d.deliverer.Deliver(ctx, env.userID, env.note)
		if err == nil {
			return
		}
		env.attempts++
		if env.attempts > d.retryMax {
			log.Error().Err(err).Str("user_id", env.userID).Str("notification_id", env.note.ID).
				Int("attempts", env.attempts).Msg("notification delivery failed")
			return
		}
		next := backoffExp(env.attempts)
		log.Warn().Err(err).Str("notification_id", env.note.ID).Dur("retry_in", next).Msg("notification delivery retry")
		if !d.sleep(ctx, next) {
			return
		}
	}
}

func backoffExp(attempts int) time.Duration {
	if attempts <= 0 {
		return time.Second
	}
	if attempts > 7 {
		return 60 * time.Second
	}
	d := 1 << (attempts - 1) // 1,2,4,8...
	if d > 60 {
		d = 60
	}
	return time.Duration(d) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
