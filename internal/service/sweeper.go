package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iliyamo/seat-reservation/internal/clock"
	"github.com/iliyamo/seat-reservation/internal/model"
	"github.com/iliyamo/seat-reservation/internal/policy"
)

const (
	DefaultSweepInterval = 15 * time.Second
	defaultCycleTimeout  = time.Minute

	sweepLockKey = "sweeper:lock"

	missedCheckInContent  = "did not check in within the required window"
	missedCheckOutContent = "did not check out within the required window"
)

// Locker elects a single sweeping replica per cycle.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

// SweepReport counts the outcome of one cycle.
type SweepReport struct {
	MissedCheckIns  int `json:"missed_check_ins"`
	MissedCheckOuts int `json:"missed_check_outs"`
	Skipped         int `json:"skipped"`
	Failed          int `json:"failed"`
}

// SweepStatus is the sweeper's health as of the last cycle.
type SweepStatus struct {
	LastRun    time.Time   `json:"last_run"`
	LastError  string      `json:"last_error,omitempty"`
	Cycles     uint64      `json:"cycles"`
	Failures   uint64      `json:"failures"`
	LastReport SweepReport `json:"last_report"`
}

// Healthy reports whether the most recent cycle completed.
func (s SweepStatus) Healthy() bool { return s.LastError == "" }

// Sweeper cancels bookings whose check-in or check-out deadline passed
// and records a TIMEOUT violation for each.
type Sweeper struct {
	store        Store
	clock        clock.Clock
	interval     time.Duration
	cycleTimeout time.Duration
	locker       Locker
	pub          Publisher
	log          *slog.Logger

	mu     sync.Mutex
	status SweepStatus
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithInterval sets the period between sweeps. Non-positive values are ignored.
func WithInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLocker makes replicas skip cycles another replica holds the lock for.
func WithLocker(l Locker) SweeperOption {
	return func(s *Sweeper) { s.locker = l }
}

// WithSweepPublisher sends timeout events for swept bookings to p.
func WithSweepPublisher(p Publisher) SweeperOption {
	return func(s *Sweeper) {
		if p != nil {
			s.pub = p
		}
	}
}

// WithSweepLogger sets the sweeper logger.
func WithSweepLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSweeper returns a Sweeper over store. Run starts it.
func NewSweeper(store Store, clk clock.Clock, opts ...SweeperOption) *Sweeper {
	if clk == nil {
		clk = clock.NewSystem()
	}
	s := &Sweeper{
		store:        store,
		clock:        clk,
		interval:     DefaultSweepInterval,
		cycleTimeout: defaultCycleTimeout,
		pub:          nopPublisher{},
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps immediately and then every interval until ctx is canceled.
// A cycle in progress when ctx ends is allowed to finish.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

// Status returns a copy of the latest health snapshot.
func (s *Sweeper) Status() SweepStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Sweeper) cycle(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cycleTimeout)
	defer cancel()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.interval)
		switch {
		case err != nil:
			// guarded writes keep a concurrent sweep harmless
			s.log.Warn("sweeper lock unavailable, sweeping anyway", "err", err)
		case !ok:
			s.log.Debug("sweeper lock held by another replica")
			return
		default:
			defer func() {
				if err := s.locker.Unlock(ctx, sweepLockKey, token); err != nil {
					s.log.Warn("sweeper unlock failed", "err", err)
				}
			}()
		}
	}

	report, err := s.SweepOnce(ctx)

	s.mu.Lock()
	s.status.LastRun = s.clock.Now()
	s.status.Cycles++
	s.status.LastReport = report
	s.status.LastError = ""
	if err != nil {
		s.status.Failures++
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("sweep cycle failed", "err", err,
			"missed_check_ins", report.MissedCheckIns, "missed_check_outs", report.MissedCheckOuts)
		return
	}
	if report != (SweepReport{}) {
		s.log.Info("sweep cycle done",
			"missed_check_ins", report.MissedCheckIns,
			"missed_check_outs", report.MissedCheckOuts,
			"skipped", report.Skipped,
			"failed", report.Failed)
	}
}

// SweepOnce runs both passes once. Each overdue booking is reconciled in
// its own transaction; a failure to read candidates or to persist a state
// transition ends the cycle with an error.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	deadline := s.clock.Now().Add(-policy.CheckWindow)

	missedIn, err := s.store.ListMissedCheckIns(ctx, deadline)
	if err != nil {
		return report, fmt.Errorf("list missed check-ins: %w", err)
	}
	for _, b := range missedIn {
		done, err := s.reconcile(ctx, b, model.StateBooked, missedCheckInContent, &report)
		if err != nil {
			return report, err
		}
		if done {
			report.MissedCheckIns++
		}
	}

	missedOut, err := s.store.ListMissedCheckOuts(ctx, deadline)
	if err != nil {
		return report, fmt.Errorf("list missed check-outs: %w", err)
	}
	for _, b := range missedOut {
		done, err := s.reconcile(ctx, b, model.StateCheckedIn, missedCheckOutContent, &report)
		if err != nil {
			return report, err
		}
		if done {
			report.MissedCheckOuts++
		}
	}
	return report, nil
}

var errAlreadyReconciled = errors.New("booking left expected state")

type transitionError struct{ err error }

func (e *transitionError) Error() string { return "transition booking: " + e.err.Error() }
func (e *transitionError) Unwrap() error { return e.err }

// reconcile cancels one booking and penalizes its member atomically. It
// returns a non-nil error only when the cycle must stop.
func (s *Sweeper) reconcile(ctx context.Context, b model.Booking, from model.BookingState, content string, report *SweepReport) (bool, error) {
	now := s.clock.Now()
	penalty := policy.Penalty(model.ViolationTimeout)
	applied := false

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.store.TransitionBooking(ctx, Transition{BookingID: b.ID, From: from, To: model.StateCanceled})
		if err != nil {
			return &transitionError{err: err}
		}
		if !ok {
			return errAlreadyReconciled
		}
		v := model.Violation{
			MemberID:   b.MemberID,
			BookingID:  &b.ID,
			CreateTime: now,
			Type:       model.ViolationTimeout,
			Content:    content,
		}
		if err := s.store.InsertViolation(ctx, &v); err != nil {
			return fmt.Errorf("insert violation: %w", err)
		}
		if err := s.store.AddCredit(ctx, b.MemberID, -penalty); err != nil {
			return fmt.Errorf("deduct credit: %w", err)
		}
		applied = true
		return nil
	})

	var terr *transitionError
	switch {
	case err == nil:
		b.State = model.StateCanceled
		s.publish(ctx, b)
		return true, nil
	case errors.Is(err, errAlreadyReconciled):
		report.Skipped++
		return false, nil
	case errors.As(err, &terr):
		return false, fmt.Errorf("booking %d: %w", b.ID, err)
	case applied:
		// every write succeeded, so the commit itself failed
		return false, fmt.Errorf("commit booking %d: %w", b.ID, err)
	}
	report.Failed++
	s.log.Warn("sweeper rolled back booking", "booking_id", b.ID, "member_id", b.MemberID, "err", err)
	return false, nil
}

func (s *Sweeper) publish(ctx context.Context, b model.Booking) {
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := s.pub.Publish(pctx, model.NewBookingEvent(model.EventBookingTimedOut, b, s.clock.Now())); err != nil {
		s.log.Warn("publish booking event failed", "booking_id", b.ID, "err", err)
	}
}
