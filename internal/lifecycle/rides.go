package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/money"
)

// CreateRide prices the trip and opens it for offers.
func (m *Manager) CreateRide(ctx context.Context, actor models.Identity, in CreateRideInput) (r models.Ride, err error) {
	ctx, span := m.startSpan(ctx, "CreateRide", uuid.Nil)
	defer func() { endSpan(span, err) }()

	if err := in.validate(); err != nil {
		return models.Ride{}, err
	}
	est := m.Pricing.Estimate(ctx, in.Pickup, in.Dropoff)
	offered := est.SuggestedPrice
	if in.OfferedPrice != nil {
		offered = money.Round(*in.OfferedPrice)
	}
	now := m.clock()
	r = models.Ride{
		ID:              uuid.New(),
		PassengerID:     actor.UserID,
		PickupLat:       in.Pickup.Lat,
		PickupLng:       in.Pickup.Lon,
		PickupAddress:   strings.TrimSpace(in.PickupAddress),
		DropoffLat:      in.Dropoff.Lat,
		DropoffLng:      in.Dropoff.Lon,
		DropoffAddress:  strings.TrimSpace(in.DropoffAddress),
		VehicleType:     in.VehicleType,
		DistanceKm:      est.DistanceKm,
		DurationMinutes: est.DurationMinutes,
		SuggestedPrice:  est.SuggestedPrice,
		OfferedPrice:    offered,
		PaymentMethod:   in.PaymentMethod,
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := m.Store.CreateRide(ctx, &r); err != nil {
		return models.Ride{}, translate("create ride", err, "ride not found")
	}
	span.SetAttributes(rideAttr(r.ID))
	m.transitioned(ctx, r, actor.UserID)
	m.announce(ctx, r)
	return r, nil
}

// announce tells the best ranked nearby drivers about a new request.
func (m *Manager) announce(ctx context.Context, r models.Ride) {
	if m.Matcher == nil {
		return
	}
	candidates, err := m.Matcher.Candidates(ctx, r.Pickup())
	if err != nil {
		m.log(ctx).Warn("matcher failed", "ride_id", r.ID, "error", err)
		return
	}
	for _, c := range candidates {
		driverID, err := uuid.Parse(c.DriverID)
		if err != nil || driverID == r.PassengerID {
			continue
		}
		m.notify(ctx, driverID, models.NotifyRide, "New ride request",
			fmt.Sprintf("Pickup about %.0f min away, offered %.2f", c.ETASeconds/60, r.OfferedPrice), r.ID)
	}
}

// GetRide returns the ride and its offers. Drivers browsing an open ride only
// see their own offers.
func (m *Manager) GetRide(ctx context.Context, actor models.Identity, rideID uuid.UUID) (models.RideAggregate, error) {
	agg, err := m.Store.GetRide(ctx, rideID)
	if err != nil {
		return models.RideAggregate{}, translate("get ride", err, "ride not found")
	}
	switch {
	case agg.Ride.IsParticipant(actor.UserID), actor.Role == models.RoleAdmin:
		return agg, nil
	case actor.Role == models.RoleDriver && agg.Ride.Status.OpenForOffers():
		own := agg.Offers[:0:0]
		for _, o := range agg.Offers {
			if o.DriverID == actor.UserID {
				own = append(own, o)
			}
		}
		agg.Offers = own
		return agg, nil
	}
	return models.RideAggregate{}, apperr.New(apperr.Forbidden, "not a participant of this ride")
}
