// Package lifecycle drives a ride from request through negotiation to
// completion or cancellation.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/events"
	"github.com/example/ride-negotiation/internal/logging"
	"github.com/example/ride-negotiation/internal/matcher"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/observability"
	"github.com/example/ride-negotiation/internal/pricing"
	"github.com/example/ride-negotiation/internal/storage"
)

const (
	DefaultOfferTTL = 5 * time.Minute
	// CancellationFeePercent applies once a driver is assigned.
	CancellationFeePercent = 10
)

type Estimator interface {
	Estimate(ctx context.Context, from, to models.Coord) pricing.Estimate
}

type Notifier interface {
	Notify(ctx context.Context, n models.Notification) (models.Notification, error)
}

type Wallet interface {
	Append(ctx context.Context, userID uuid.UUID, amount float64, txType models.TransactionType, description string, ref *uuid.UUID) (models.WalletTransaction, error)
}

type EventPublisher interface {
	PublishRideEvent(ctx context.Context, e events.RideEvent) error
}

type ReferralHook interface {
	OnRideCompleted(ctx context.Context, passengerID uuid.UUID) error
}

type CandidateFinder interface {
	Candidates(ctx context.Context, pickup models.Coord) ([]matcher.Candidate, error)
}

// Manager owns every ride state transition. Each transition is one
// storage.UpdateRide call, so concurrent requests on the same ride serialize
// on the ride row.
type Manager struct {
	Store    storage.RideStore
	Pricing  Estimator
	Notifier Notifier
	Wallet   Wallet
	Logger   *slog.Logger
	OfferTTL time.Duration

	// optional collaborators
	Events    EventPublisher
	Referrals ReferralHook
	Matcher   CandidateFinder

	now func() time.Time
}

func NewManager(store storage.RideStore, estimator Estimator, notifier Notifier, wallet Wallet, logger *slog.Logger) *Manager {
	return &Manager{
		Store:    store,
		Pricing:  estimator,
		Notifier: notifier,
		Wallet:   wallet,
		Logger:   logger,
		OfferTTL: DefaultOfferTTL,
		now:      time.Now,
	}
}

func (m *Manager) clock() time.Time { return m.now().UTC() }

func (m *Manager) log(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, m.Logger)
}

func (m *Manager) startSpan(ctx context.Context, op string, rideID uuid.UUID) (context.Context, trace.Span) {
	ctx, span := observability.StartSpan(ctx, "lifecycle."+op)
	if rideID != uuid.Nil {
		span.SetAttributes(rideAttr(rideID))
	}
	return ctx, span
}

func rideAttr(id uuid.UUID) attribute.KeyValue {
	return attribute.String("ride.id", id.String())
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.KindOf(err).String())
	}
	span.End()
}

// translate maps storage failures onto the error taxonomy. Errors that are
// already classified pass through.
func translate(op string, err error, notFound string) error {
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return apperr.New(apperr.NotFound, notFound)
	case errors.Is(err, storage.ErrConflict):
		return apperr.Wrap(apperr.Conflict, "conflicting update, retry", err)
	default:
		return apperr.Store(op, err)
	}
}

// notify is best effort; the transition has already committed.
func (m *Manager) notify(ctx context.Context, userID uuid.UUID, typ models.NotificationType, title, msg string, rideID uuid.UUID) {
	if m.Notifier == nil {
		return
	}
	_, err := m.Notifier.Notify(ctx, models.Notification{
		UserID:  userID,
		Type:    typ,
		Title:   title,
		Message: msg,
		RideID:  &rideID,
	})
	if err != nil {
		m.log(ctx).Warn("notification failed", "user_id", userID, "ride_id", rideID, "error", err)
	}
}

// transitioned records a committed status change.
func (m *Manager) transitioned(ctx context.Context, r models.Ride, actor uuid.UUID) {
	observability.RideTransitionsTotal.WithLabelValues(string(r.Status)).Inc()
	m.log(ctx).Info("ride transition", "ride_id", r.ID, "status", r.Status, "actor", actor)
	if m.Events == nil {
		return
	}
	if err := m.Events.PublishRideEvent(ctx, events.NewRideEvent(r, actor)); err != nil {
		m.log(ctx).Warn("ride event publish failed", "ride_id", r.ID, "status", r.Status, "error", err)
	}
}
