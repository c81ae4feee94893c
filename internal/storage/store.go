package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a uniqueness violation, such as a lost race on a
	// wallet sequence number or a duplicate rating.
	ErrConflict = errors.New("conflict")
)

// RideMutator mutates a ride aggregate in place. Returning an error discards
// every change.
type RideMutator func(agg *models.RideAggregate) error

type RideStore interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, id uuid.UUID) (models.RideAggregate, error)
	RideIDForOffer(ctx context.Context, offerID uuid.UUID) (uuid.UUID, error)
	// UpdateRide loads the ride and its offers under a lock, applies fn and
	// persists the ride and every offer atomically.
	UpdateRide(ctx context.Context, id uuid.UUID, fn RideMutator) (models.RideAggregate, error)
	CountCompletedRides(ctx context.Context, passengerID uuid.UUID) (int, error)
}

type UserStore interface {
	// EnsureUser inserts u unless a user with the same id exists, and returns
	// the stored row.
	EnsureUser(ctx context.Context, u models.User) (models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (models.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (models.User, error)
}

type WalletStore interface {
	// LatestTransaction returns ErrNotFound when the user has no rows.
	LatestTransaction(ctx context.Context, userID uuid.UUID) (models.WalletTransaction, error)
	// InsertTransaction returns ErrConflict when (user_id, seq) is taken.
	InsertTransaction(ctx context.Context, tx *models.WalletTransaction) error
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error)
}

type RatingStore interface {
	// CreateRating inserts the rating and recomputes the reviewed user's
	// aggregates in the same transaction.
	CreateRating(ctx context.Context, r *models.Rating) (models.UserStats, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id uuid.UUID) error
}

type ReferralStore interface {
	// CreateReferral returns ErrConflict when the referred user already has one.
	CreateReferral(ctx context.Context, ref *models.Referral) error
	PendingReferral(ctx context.Context, referredID uuid.UUID) (models.Referral, error)
	// CompleteReferral flips a pending referral to completed. It reports false
	// when another caller completed it first.
	CompleteReferral(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// ReopenReferral undoes a CompleteReferral made at at, so the bonus can be
	// paid by a later attempt.
	ReopenReferral(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ProcedureStore serves the read-only aggregate queries.
type ProcedureStore interface {
	HotZones(ctx context.Context, since time.Time, limit int) ([]models.HotZone, error)
	Leaderboard(ctx context.Context, category models.LeaderboardCategory, limit int) ([]models.LeaderboardEntry, error)
}

type Store interface {
	RideStore
	UserStore
	WalletStore
	RatingStore
	NotificationStore
	ReferralStore
	ProcedureStore
	Close() error
}

// HotZoneCell is the grid size, in degrees, hot zones are grouped by.
const HotZoneCell = 0.01
