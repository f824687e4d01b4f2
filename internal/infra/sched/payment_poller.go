package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"khqr-payment-bot/internal/domain"
	"khqr-payment-bot/internal/domain/model"
	"khqr-payment-bot/internal/infra/logging"
	"khqr-payment-bot/internal/infra/metrics"
	"khqr-payment-bot/internal/infra/redis"
	"khqr-payment-bot/internal/infra/worker"
	"khqr-payment-bot/internal/usecase"
)

// Submitter is the part of worker.Pool the poller needs.
type Submitter interface {
	Submit(task worker.Task) error
}

var _ Submitter = (*worker.Pool)(nil)

type pollEntry struct {
	md5     string
	timer   *time.Timer
	gen     uint64
	running bool
}

// PaymentPoller owns the single pending re-check of every in-flight payment code.
// A fired timer hands one PaymentUseCase.Check to the worker pool and re-arms
// on a retry outcome.
type PaymentPoller struct {
	uc       usecase.PaymentUseCase
	pool     Submitter
	locker   redis.Locker // nil without redis
	interval time.Duration
	lockTTL  time.Duration
	log      *zerolog.Logger

	mu      sync.Mutex
	entries map[string]*pollEntry
	gen     uint64
	stopped bool
}

func NewPaymentPoller(uc usecase.PaymentUseCase, pool Submitter, locker redis.Locker, interval time.Duration, logger *zerolog.Logger) *PaymentPoller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	l := logger.With().Str("component", "PaymentPoller").Logger()
	return &PaymentPoller{
		uc:       uc,
		pool:     pool,
		locker:   locker,
		interval: interval,
		lockTTL:  interval,
		log:      &l,
		entries:  make(map[string]*pollEntry),
	}
}

// Schedule arms the next check one interval from now, replacing any armed timer.
func (p *PaymentPoller) Schedule(check *model.PaymentCheck) {
	if check == nil || check.Status.Terminal() {
		return
	}
	p.arm(check.ID, check.MD5, p.interval, false)
}

// Resume arms every pending check the poller is not already tracking and
// returns how many it armed.
func (p *PaymentPoller) Resume(ctx context.Context) (int, error) {
	pending, err := p.uc.Pending(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range pending {
		if p.arm(c.ID, c.MD5, p.interval, true) {
			n++
		}
	}
	if n > 0 {
		p.log.Info().Int("count", n).Msg("resumed pending payment checks")
	}
	return n, nil
}

// Stop disarms every timer. Checks already running finish but are not re-armed.
func (p *PaymentPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	for id, e := range p.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(p.entries, id)
	}
	metrics.SetChecksInFlight(0)
}

// Tracked reports how many checks are armed or running.
func (p *PaymentPoller) Tracked() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *PaymentPoller) arm(id, md5 string, d time.Duration, onlyNew bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	if e, ok := p.entries[id]; ok {
		if onlyNew {
			return false
		}
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	p.gen++
	gen := p.gen
	p.entries[id] = &pollEntry{
		md5:   md5,
		gen:   gen,
		timer: time.AfterFunc(d, func() { p.fire(id, gen) }),
	}
	metrics.SetChecksInFlight(len(p.entries))
	return true
}

func (p *PaymentPoller) fire(id string, gen uint64) {
	p.mu.Lock()
	e, ok := p.entries[id]
	if !ok || e.gen != gen || p.stopped {
		p.mu.Unlock()
		return
	}
	e.timer = nil
	e.running = true
	md5 := e.md5
	p.mu.Unlock()

	err := p.pool.Submit(func(ctx context.Context) error {
		return p.run(ctx, id, md5)
	})
	if err != nil {
		// saturated: try again next interval without spending an attempt
		p.log.Warn().Err(err).Str("check_id", id).Msg("check deferred")
		p.arm(id, md5, p.interval, false)
	}
}

func (p *PaymentPoller) run(ctx context.Context, id, md5 string) error {
	ctx = logging.WithCheckID(ctx, id)

	if p.locker != nil {
		key := redis.PaymentCheckLockKey(md5)
		token, err := p.locker.TryLock(ctx, key, p.lockTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			p.log.Debug().Str("check_id", id).Msg("check held by another instance")
			p.arm(id, md5, p.interval, false)
			return nil
		case err != nil:
			p.log.Warn().Err(err).Msg("lock unavailable; checking without it")
		default:
			defer func() {
				if err := p.locker.Unlock(context.Background(), key, token); err != nil {
					p.log.Warn().Err(err).Str("key", key).Msg("unlock failed")
				}
			}()
		}
	}

	outcome, err := p.uc.Check(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		p.forget(id)
		return err
	case err != nil:
		// storage hiccup: the attempt was not recorded, so retrying is safe
		p.arm(id, md5, p.interval, false)
		return err
	case outcome == model.OutcomeRetry:
		p.arm(id, md5, p.interval, false)
	default:
		p.forget(id)
	}
	return nil
}

func (p *PaymentPoller) forget(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, id)
	if !p.stopped {
		metrics.SetChecksInFlight(len(p.entries))
	}
}
