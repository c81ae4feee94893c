package lifecycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/money"
	"github.com/example/ride-negotiation/internal/observability"
)

// SubmitOffer records a driver's counter price on an open ride. The first
// offer moves the ride into negotiation.
func (m *Manager) SubmitOffer(ctx context.Context, actor models.Identity, rideID uuid.UUID, in SubmitOfferInput) (offer models.PriceOffer, err error) {
	ctx, span := m.startSpan(ctx, "SubmitOffer", rideID)
	defer func() { endSpan(span, err) }()

	if err := in.validate(); err != nil {
		return models.PriceOffer{}, err
	}
	if actor.Role != models.RoleDriver {
		return models.PriceOffer{}, apperr.New(apperr.Forbidden, "only drivers can submit offers")
	}

	var opened bool
	agg, err := m.Store.UpdateRide(ctx, rideID, func(agg *models.RideAggregate) error {
		ride := &agg.Ride
		if ride.PassengerID == actor.UserID {
			return apperr.New(apperr.Forbidden, "cannot bid on your own ride")
		}
		if !ride.Status.OpenForOffers() {
			return apperr.New(apperr.InvalidState, fmt.Sprintf("ride is %s and no longer accepts offers", ride.Status))
		}
		now := m.clock()
		for i := range agg.Offers {
			o := &agg.Offers[i]
			if o.Status != models.OfferPending {
				continue
			}
			if o.IsExpired(now) {
				o.Status = models.OfferExpired
				o.UpdatedAt = now
				continue
			}
			if o.DriverID == actor.UserID {
				return apperr.New(apperr.Conflict, "you already have a pending offer on this ride")
			}
		}
		offer = models.PriceOffer{
			ID:        uuid.New(),
			RideID:    ride.ID,
			DriverID:  actor.UserID,
			Price:     money.Round(in.Price),
			Message:   in.Message,
			Status:    models.OfferPending,
			ExpiresAt: now.Add(m.OfferTTL),
			CreatedAt: now,
			UpdatedAt: now,
		}
		agg.Offers = append(agg.Offers, offer)
		if ride.Status == models.StatusPending {
			ride.Status = models.StatusNegotiating
			opened = true
		}
		ride.UpdatedAt = now
		return nil
	})
	if err != nil {
		observability.OffersTotal.WithLabelValues("rejected").Inc()
		return models.PriceOffer{}, translate("submit offer", err, "ride not found")
	}
	observability.OffersTotal.WithLabelValues("submitted").Inc()
	if opened {
		m.transitioned(ctx, agg.Ride, actor.UserID)
	}
	m.notify(ctx, agg.Ride.PassengerID, models.NotifyOffer, "New offer",
		fmt.Sprintf("A driver offered %.2f for your ride", offer.Price), agg.Ride.ID)
	return offer, nil
}

// AcceptOffer commits the passenger's choice: the offer is accepted, every
// other live offer is rejected, and the ride gets its driver and final price.
// Accepting an offer twice fails with InvalidState.
func (m *Manager) AcceptOffer(ctx context.Context, actor models.Identity, offerID uuid.UUID) (agg models.RideAggregate, err error) {
	ctx, span := m.startSpan(ctx, "AcceptOffer", uuid.Nil)
	defer func() { endSpan(span, err) }()

	rideID, err := m.Store.RideIDForOffer(ctx, offerID)
	if err != nil {
		return models.RideAggregate{}, translate("accept offer", err, "offer not found")
	}
	span.SetAttributes(rideAttr(rideID))

	agg, err = m.Store.UpdateRide(ctx, rideID, func(agg *models.RideAggregate) error {
		ride := &agg.Ride
		offer, ok := agg.Offer(offerID)
		if !ok {
			return apperr.New(apperr.NotFound, "offer not found")
		}
		if ride.PassengerID != actor.UserID {
			return apperr.New(apperr.Forbidden, "only the passenger can accept offers")
		}
		if !ride.Status.OpenForOffers() {
			return apperr.New(apperr.InvalidState, fmt.Sprintf("ride is %s and no longer accepts offers", ride.Status))
		}
		if offer.Status != models.OfferPending {
			return apperr.New(apperr.InvalidState, fmt.Sprintf("offer is %s", offer.Status))
		}
		now := m.clock()
		if offer.IsExpired(now) {
			return apperr.New(apperr.InvalidState, "offer has expired")
		}

		offer.Status = models.OfferAccepted
		offer.UpdatedAt = now
		for i := range agg.Offers {
			o := &agg.Offers[i]
			if o.ID != offerID && o.Status == models.OfferPending {
				o.Status = models.OfferRejected
				o.UpdatedAt = now
			}
		}
		driverID, price := offer.DriverID, offer.Price
		ride.DriverID = &driverID
		ride.FinalPrice = &price
		ride.Status = models.StatusAccepted
		ride.UpdatedAt = now
		return nil
	})
	if err != nil {
		return models.RideAggregate{}, translate("accept offer", err, "ride not found")
	}
	observability.OffersTotal.WithLabelValues("accepted").Inc()
	m.transitioned(ctx, agg.Ride, actor.UserID)
	m.notify(ctx, *agg.Ride.DriverID, models.NotifyOffer, "Offer accepted",
		fmt.Sprintf("Your offer of %.2f was accepted", *agg.Ride.FinalPrice), agg.Ride.ID)
	return agg, nil
}
