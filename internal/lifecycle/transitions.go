package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/money"
)

// AdvanceStatus moves an accepted ride to started, or a started ride to
// completed. Either participant may drive the transition.
func (m *Manager) AdvanceStatus(ctx context.Context, actor models.Identity, rideID uuid.UUID, target string) (ride models.Ride, err error) {
	ctx, span := m.startSpan(ctx, "AdvanceStatus", rideID)
	defer func() { endSpan(span, err) }()

	to, ok := models.ParseRideStatus(target)
	if !ok || (to != models.StatusStarted && to != models.StatusCompleted) {
		return models.Ride{}, apperr.Invalid(apperr.Field("status", "must be one of started, on_way, in_progress, completed"))
	}

	agg, err := m.Store.UpdateRide(ctx, rideID, func(agg *models.RideAggregate) error {
		r := &agg.Ride
		if !r.IsParticipant(actor.UserID) {
			return apperr.New(apperr.Forbidden, "not a participant of this ride")
		}
		if !legalAdvance(r.Status, to) {
			return apperr.New(apperr.InvalidState, fmt.Sprintf("cannot move ride from %s to %s", r.Status, to))
		}
		now := m.clock()
		r.Status = to
		r.UpdatedAt = now
		if to == models.StatusStarted {
			r.StartedAt = &now
		} else {
			r.CompletedAt = &now
		}
		return nil
	})
	if err != nil {
		return models.Ride{}, translate("advance status", err, "ride not found")
	}
	ride = agg.Ride
	m.transitioned(ctx, ride, actor.UserID)
	if other, ok := ride.Counterparty(actor.UserID); ok {
		title := "Ride started"
		if to == models.StatusCompleted {
			title = "Ride completed"
		}
		m.notify(ctx, other, models.NotifyRide, title, fmt.Sprintf("Your ride is now %s", to), ride.ID)
	}
	if to == models.StatusCompleted {
		m.completed(ctx, ride)
	}
	return ride, nil
}

func legalAdvance(from, to models.RideStatus) bool {
	return (from == models.StatusAccepted && to == models.StatusStarted) ||
		(from == models.StatusStarted && to == models.StatusCompleted)
}

// completed runs the post-completion side effects. The ride is already
// committed, so failures are logged rather than returned.
func (m *Manager) completed(ctx context.Context, r models.Ride) {
	if r.PaymentMethod == models.PaymentWallet && m.Wallet != nil && r.FinalPrice != nil && r.DriverID != nil {
		ref := r.ID
		if _, err := m.Wallet.Append(ctx, r.PassengerID, -*r.FinalPrice, models.TxRide, "Ride payment", &ref); err != nil {
			m.log(ctx).Error("ride payment debit failed", "ride_id", r.ID, "user_id", r.PassengerID, "error", err)
		} else if _, err := m.Wallet.Append(ctx, *r.DriverID, *r.FinalPrice, models.TxRide, "Ride earnings", &ref); err != nil {
			m.log(ctx).Error("ride earnings credit failed", "ride_id", r.ID, "user_id", *r.DriverID, "error", err)
		}
	}
	if m.Referrals != nil {
		if err := m.Referrals.OnRideCompleted(ctx, r.PassengerID); err != nil {
			m.log(ctx).Warn("referral hook failed", "ride_id", r.ID, "user_id", r.PassengerID, "error", err)
		}
	}
}

// Cancel ends a ride that has not finished. Once a driver is assigned the
// canceller owes a fee of ten percent of the agreed price.
func (m *Manager) Cancel(ctx context.Context, actor models.Identity, rideID uuid.UUID, reason *string) (ride models.Ride, err error) {
	ctx, span := m.startSpan(ctx, "Cancel", rideID)
	defer func() { endSpan(span, err) }()

	if reason != nil && len(*reason) > maxReasonLen {
		return models.Ride{}, apperr.Invalid(apperr.Field("reason", fmt.Sprintf("must be at most %d characters", maxReasonLen)))
	}

	agg, err := m.Store.UpdateRide(ctx, rideID, func(agg *models.RideAggregate) error {
		r := &agg.Ride
		if !r.IsParticipant(actor.UserID) {
			return apperr.New(apperr.Forbidden, "not a participant of this ride")
		}
		if r.Status.Terminal() {
			return apperr.New(apperr.InvalidState, fmt.Sprintf("ride is already %s", r.Status))
		}
		var fee float64
		if !r.Status.OpenForOffers() && r.FinalPrice != nil {
			fee = money.Percent(*r.FinalPrice, CancellationFeePercent)
		}
		now := m.clock()
		by := actor.UserID
		r.Status = models.StatusCancelled
		r.CancelledBy = &by
		r.CancellationReason = reason
		r.CancelledAt = &now
		r.CancellationFee = fee
		r.FinalPrice = nil
		r.UpdatedAt = now
		for i := range agg.Offers {
			if agg.Offers[i].Status == models.OfferPending {
				agg.Offers[i].Status = models.OfferRejected
				agg.Offers[i].UpdatedAt = now
			}
		}
		return nil
	})
	if err != nil {
		return models.Ride{}, translate("cancel ride", err, "ride not found")
	}
	ride = agg.Ride
	m.transitioned(ctx, ride, actor.UserID)
	if other, ok := ride.Counterparty(actor.UserID); ok {
		m.notify(ctx, other, models.NotifyRide, "Ride cancelled", "The other party cancelled the ride", ride.ID)
	}
	return ride, nil
}

// SettleCancellationFee debits the canceller's wallet once. The ride row
// carries the claim so a second settlement is refused.
func (m *Manager) SettleCancellationFee(ctx context.Context, actor models.Identity, rideID uuid.UUID) (tx models.WalletTransaction, err error) {
	ctx, span := m.startSpan(ctx, "SettleCancellationFee", rideID)
	defer func() { endSpan(span, err) }()

	var claimedAt time.Time
	agg, err := m.Store.UpdateRide(ctx, rideID, func(agg *models.RideAggregate) error {
		r := &agg.Ride
		if !r.IsParticipant(actor.UserID) {
			return apperr.New(apperr.Forbidden, "not a participant of this ride")
		}
		if r.Status != models.StatusCancelled || r.CancellationFee <= 0 || r.CancelledBy == nil {
			return apperr.New(apperr.InvalidState, "ride has no cancellation fee to settle")
		}
		if r.FeeSettledAt != nil {
			return apperr.New(apperr.Conflict, "cancellation fee already settled")
		}
		claimedAt = m.clock().Truncate(time.Microsecond)
		r.FeeSettledAt = &claimedAt
		return nil
	})
	if err != nil {
		return models.WalletTransaction{}, translate("settle cancellation fee", err, "ride not found")
	}

	r := agg.Ride
	ref := r.ID
	tx, err = m.Wallet.Append(ctx, *r.CancelledBy, -r.CancellationFee, models.TxRide, "Cancellation fee", &ref)
	if err != nil {
		m.release(ctx, rideID, claimedAt)
		return models.WalletTransaction{}, err
	}
	m.log(ctx).Info("cancellation fee settled", "ride_id", r.ID, "user_id", *r.CancelledBy, "fee", r.CancellationFee)
	m.notify(ctx, *r.CancelledBy, models.NotifyPayment, "Cancellation fee charged",
		fmt.Sprintf("%.2f was debited from your wallet", r.CancellationFee), r.ID)
	return tx, nil
}

// release drops a settlement claim made at claimedAt so the fee can be retried.
func (m *Manager) release(ctx context.Context, rideID uuid.UUID, claimedAt time.Time) {
	_, err := m.Store.UpdateRide(context.WithoutCancel(ctx), rideID, func(agg *models.RideAggregate) error {
		if agg.Ride.FeeSettledAt != nil && agg.Ride.FeeSettledAt.Equal(claimedAt) {
			agg.Ride.FeeSettledAt = nil
		}
		return nil
	})
	if err != nil {
		m.log(ctx).Error("release fee claim failed", "ride_id", rideID, "error", err)
	}
}
