// Package referral links new users to the user who invited them and pays the
// referrer once the new user finishes a first ride.
package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/logging"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/storage"
)

const DefaultBonus = 10.0

type Store interface {
	storage.ReferralStore
	GetUserByReferralCode(ctx context.Context, code string) (models.User, error)
	CountCompletedRides(ctx context.Context, passengerID uuid.UUID) (int, error)
}

type Wallet interface {
	Append(ctx context.Context, userID uuid.UUID, amount float64, txType models.TransactionType, description string, ref *uuid.UUID) (models.WalletTransaction, error)
}

type Notifier interface {
	Notify(ctx context.Context, n models.Notification) (models.Notification, error)
}

type Service struct {
	Store    Store
	Wallet   Wallet
	Notifier Notifier // optional
	Bonus    float64
	Logger   *slog.Logger
	now      func() time.Time
}

func NewService(store Store, wallet Wallet, logger *slog.Logger) *Service {
	return &Service{Store: store, Wallet: wallet, Bonus: DefaultBonus, Logger: logger, now: time.Now}
}

// Redeem records that actor signed up with code. A user can be referred once.
func (s *Service) Redeem(ctx context.Context, actor models.Identity, code string) (models.Referral, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return models.Referral{}, apperr.Invalid(apperr.Field("code", "is required"))
	}
	referrer, err := s.Store.GetUserByReferralCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Referral{}, apperr.New(apperr.NotFound, "referral code not found")
	}
	if err != nil {
		return models.Referral{}, apperr.Store("lookup referral code", err)
	}
	if referrer.ID == actor.UserID {
		return models.Referral{}, apperr.Invalid(apperr.Field("code", "cannot redeem your own code"))
	}
	rides, err := s.Store.CountCompletedRides(ctx, actor.UserID)
	if err != nil {
		return models.Referral{}, apperr.Store("count completed rides", err)
	}
	if rides > 0 {
		return models.Referral{}, apperr.New(apperr.InvalidState, "referral codes are for riders without a completed ride")
	}

	ref := models.Referral{
		ID:          uuid.New(),
		ReferrerID:  referrer.ID,
		ReferredID:  actor.UserID,
		Code:        code,
		BonusAmount: s.Bonus,
		CreatedAt:   s.now().UTC(),
	}
	err = s.Store.CreateReferral(ctx, &ref)
	switch {
	case errors.Is(err, storage.ErrConflict):
		return models.Referral{}, apperr.New(apperr.Conflict, "a referral code was already redeemed")
	case err != nil:
		return models.Referral{}, apperr.Store("create referral", err)
	}
	s.log(ctx).Info("referral redeemed", "referrer_id", referrer.ID, "referred_id", actor.UserID)
	return ref, nil
}

// OnRideCompleted pays the referral bonus earned by the passenger's first
// completed ride. The referral is completed before the credit and reopened
// if the credit fails, so a later completion pays it exactly once.
func (s *Service) OnRideCompleted(ctx context.Context, passengerID uuid.UUID) error {
	n, err := s.Store.CountCompletedRides(ctx, passengerID)
	if err != nil {
		return fmt.Errorf("count completed rides: %w", err)
	}
	if n < 1 {
		return nil
	}
	ref, err := s.Store.PendingReferral(ctx, passengerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pending referral: %w", err)
	}
	// microseconds survive a Postgres round trip, so the reopen can match
	completedAt := s.now().UTC().Truncate(time.Microsecond)
	won, err := s.Store.CompleteReferral(ctx, ref.ID, completedAt)
	if err != nil {
		return fmt.Errorf("complete referral: %w", err)
	}
	if !won {
		return nil
	}
	refID := ref.ID
	if _, err := s.Wallet.Append(ctx, ref.ReferrerID, ref.BonusAmount, models.TxReferral, "Referral bonus", &refID); err != nil {
		if rerr := s.Store.ReopenReferral(context.WithoutCancel(ctx), ref.ID, completedAt); rerr != nil {
			s.log(ctx).Error("reopen referral failed", "referral_id", ref.ID, "error", rerr)
		}
		return fmt.Errorf("credit referral bonus: %w", err)
	}
	s.log(ctx).Info("referral bonus paid", "referrer_id", ref.ReferrerID, "referred_id", passengerID, "amount", ref.BonusAmount)
	if s.Notifier != nil {
		_, err := s.Notifier.Notify(ctx, models.Notification{
			UserID:  ref.ReferrerID,
			Type:    models.NotifyPromotion,
			Title:   "Referral bonus",
			Message: fmt.Sprintf("You earned %.2f because a friend finished their first ride", ref.BonusAmount),
		})
		if err != nil {
			s.log(ctx).Warn("referral notification failed", "user_id", ref.ReferrerID, "referral_id", ref.ID, "error", err)
		}
	}
	return nil
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.Logger)
}
