package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/wlrfb/wlrfb/pkg/smoother"
)

// Scheduler issues capture cycles against one active Backend at a target
// rate, biasing the inter-cycle deadline by the smoothed round-trip delay of
// recent cycles so the delivered frame rate tracks the target even when the
// compositor is slow to answer. If the active backend settles Fatal and a
// fallback was configured, the scheduler fails over to it exactly once.
type Scheduler struct {
	log *slog.Logger

	active     Backend
	fallback   Backend
	failedOver bool

	period time.Duration
	delay  *smoother.Delay

	onFrame func(*Frame)
	onFatal func(error)

	issuedAt time.Time
	doneCh   chan doneEvent
}

type doneEvent struct {
	frame  *Frame
	status Status
}

// NewScheduler builds a scheduler targeting rateHz capture cycles per
// second, smoothing round-trip delay with time constant tau. fallback may be
// nil if there is only one capture backend available.
func NewScheduler(log *slog.Logger, active, fallback Backend, rateHz float64, tau time.Duration) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if rateHz <= 0 {
		rateHz = 20
	}
	s := &Scheduler{
		log:      log,
		active:   active,
		fallback: fallback,
		period:   time.Duration(float64(time.Second) / rateHz),
		delay:    smoother.New(tau),
		doneCh:   make(chan doneEvent, 1),
	}
	active.SetOnDone(func(f *Frame, st Status) { s.doneCh <- doneEvent{f, st} })
	if fallback != nil {
		fallback.SetOnDone(func(f *Frame, st Status) { s.doneCh <- doneEvent{f, st} })
	}
	return s
}

// OnFrame registers the continuation invoked with every successfully
// captured frame.
func (s *Scheduler) OnFrame(fn func(*Frame)) { s.onFrame = fn }

// OnFatal registers the continuation invoked once every backend (active and,
// if present, fallback) has settled Fatal. After this fires the scheduler
// has stopped issuing captures.
func (s *Scheduler) OnFatal(fn func(error)) { s.onFatal = fn }

// Run drives the scheduler until ctx is cancelled or every backend goes
// fatal. It owns all backend state transitions on this one goroutine: the
// only cross-goroutine traffic is the buffered doneCh fed by SetOnDone
// callbacks, so there is never concurrent access to backend state.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.active.Stop()
			if s.fallback != nil {
				s.fallback.Stop()
			}
			return ctx.Err()

		case <-timer.C:
			s.issuedAt = time.Now()
			if err := s.active.Start(); err != nil {
				s.log.Debug("capture start failed, retrying next cycle", "error", err)
				timer.Reset(s.period)
			}

		case ev := <-s.doneCh:
			next, stop := s.handle(ev)
			if stop {
				return nil
			}
			timer.Reset(next)
		}
	}
}

func (s *Scheduler) handle(ev doneEvent) (next time.Duration, stop bool) {
	switch ev.status {
	case StatusDone:
		rtt := time.Since(s.issuedAt)
		smoothed := s.delay.Update(rtt)
		if s.onFrame != nil && ev.frame != nil {
			s.onFrame(ev.frame)
		}
		next = s.period - smoothed
		if next < 0 {
			next = 0
		}
		return next, false

	case StatusFailed:
		return s.period, false

	case StatusFatal:
		if !s.failedOver && s.fallback != nil {
			s.log.Warn("capture backend went fatal, failing over")
			s.active = s.fallback
			s.fallback = nil
			s.failedOver = true
			return 0, false
		}
		s.log.Error("all capture backends fatal")
		if s.onFatal != nil {
			s.onFatal(ErrCaptureFatal)
		}
		return 0, true

	default:
		return s.period, false
	}
}
