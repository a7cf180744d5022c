// Package notifier turns surviving alerts into per-recipient notifications
// and delivers them through sinks.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/metrics"
	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// Sink is a destination for notifications.
type Sink interface {
	// Name returns the sink name (e.g. "store", "webhook").
	Name() string
	// Send delivers one notification.
	Send(ctx context.Context, n *models.Notification) error
	// Close releases any resources.
	Close() error
}

var (
	// ErrRateLimited is returned when a notification could not get a dispatch slot.
	ErrRateLimited = errors.New("notification rate limited")
	// ErrNoSink is returned when no primary sink is configured.
	ErrNoSink = errors.New("no primary sink configured")
)

// Delivery pairs an alert with the recipients it goes to.
type Delivery struct {
	Event      alerting.AlertEvent
	Recipients []models.RecipientRef
}

// Failure is one (alert, recipient) pair that could not be delivered.
type Failure struct {
	RecipientID   string           `json:"recipient_id"`
	RecipientRole models.Role      `json:"recipient_role"`
	SubjectID     string           `json:"subject_id"`
	Kind          models.AlertKind `json:"kind"`
	Reason        string           `json:"reason"`
	Err           error            `json:"-"`
}

// DispatchReport is the outcome of a pipeline run. It is returned as a value;
// nothing in it is fatal to the caller.
type DispatchReport struct {
	Created    []*models.Notification `json:"created"`
	Failed     []Failure              `json:"failed"`
	Candidates int                    `json:"candidates"`
	Suppressed int                    `json:"suppressed"`
	RuleErrors []string               `json:"rule_errors,omitempty"`
	Errors     []string               `json:"errors,omitempty"`
}

// OK reports whether the run finished without any failure.
func (r *DispatchReport) OK() bool {
	return len(r.Failed) == 0 && len(r.Errors) == 0
}

// Merge appends the created notifications and failures of o to r.
func (r *DispatchReport) Merge(o DispatchReport) {
	r.Created = append(r.Created, o.Created...)
	r.Failed = append(r.Failed, o.Failed...)
	r.Candidates += o.Candidates
	r.Suppressed += o.Suppressed
	r.RuleErrors = append(r.RuleErrors, o.RuleErrors...)
	r.Errors = append(r.Errors, o.Errors...)
}

// Dispatcher writes each notification to the primary sink, which decides
// success, and mirrors it to the registered secondary sinks best effort.
type Dispatcher struct {
	mu          sync.RWMutex
	primary     Sink
	mirrors     map[string]Sink
	rateLimiter *RateLimiter
	logger      zerolog.Logger
	now         func() time.Time
	newID       func() string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRateLimit paces deliveries with the given limiter settings.
func WithRateLimit(config RateLimitConfig) Option {
	return func(d *Dispatcher) { d.rateLimiter = NewRateLimiter(config) }
}

// WithClock sets the clock used to stamp notifications.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithIDGenerator sets how notification ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) { d.newID = fn }
}

// NewDispatcher creates a dispatcher with default rate limiting.
func NewDispatcher(primary Sink, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		primary:     primary,
		mirrors:     make(map[string]Sink),
		rateLimiter: NewRateLimiter(DefaultRateLimitConfig()),
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a secondary sink.
func (d *Dispatcher) Register(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mirrors[s.Name()] = s
}

// Unregister removes a secondary sink.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.mirrors, name)
}

// Get returns a secondary sink by name.
func (d *Dispatcher) Get(name string) (Sink, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.mirrors[name]
	return s, ok
}

// Dispatch creates one notification per (alert, recipient) pair. A failing
// pair is recorded in the report and never stops the others.
func (d *Dispatcher) Dispatch(ctx context.Context, deliveries []Delivery) DispatchReport {
	var report DispatchReport

	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, del := range deliveries {
		if del.Event == nil {
			continue
		}
		h := del.Event.Header()
		msg, renderErr := alerting.Render(del.Event)

		for _, rcpt := range del.Recipients {
			fail := func(err error) {
				report.Failed = append(report.Failed, Failure{
					RecipientID:   rcpt.ID,
					RecipientRole: rcpt.Role,
					SubjectID:     h.SubjectID,
					Kind:          del.Event.Kind(),
					Reason:        err.Error(),
					Err:           err,
				})
			}
			if renderErr != nil {
				fail(renderErr)
				continue
			}
			if d.primary == nil {
				fail(ErrNoSink)
				continue
			}
			if err := d.rateLimiter.Wait(ctx); err != nil {
				metrics.NotificationsRateLimited.Inc()
				fail(err)
				continue
			}

			n := &models.Notification{
				ID:            d.newID(),
				RecipientID:   rcpt.ID,
				RecipientRole: rcpt.Role,
				SubjectID:     h.SubjectID,
				Kind:          del.Event.Kind(),
				Severity:      h.Severity,
				Title:         msg.Title,
				Message:       msg.Body,
				CreatedAt:     d.now(),
			}
			if err := send(ctx, d.primary, n); err != nil {
				fail(fmt.Errorf("%s: %w", d.primary.Name(), err))
				continue
			}
			report.Created = append(report.Created, n)
			d.mirror(ctx, n)
		}
	}
	return report
}

func (d *Dispatcher) mirror(ctx context.Context, n *models.Notification) {
	for name, s := range d.mirrors {
		if err := send(ctx, s, n); err != nil {
			d.logger.Warn().Err(err).
				Str("sink", name).
				Str("notification_id", n.ID).
				Msg("mirror delivery failed")
		}
	}
}

// send calls s.Send, turning a panic into an error.
func send(ctx context.Context, s Sink, n *models.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.NotificationsTotal.WithLabelValues(s.Name(), status).Inc()
	}()
	return s.Send(ctx, n)
}

// RateLimitStats returns the rate limiter statistics.
func (d *Dispatcher) RateLimitStats() RateLimitStats {
	return d.rateLimiter.Stats()
}

// Close closes the primary and all secondary sinks.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	if d.primary != nil {
		if err := d.primary.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.primary.Name(), err))
		}
	}
	for name, s := range d.mirrors {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	d.mirrors = make(map[string]Sink)
	return errors.Join(errs...)
}
