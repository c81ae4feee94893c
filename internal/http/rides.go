package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/lifecycle"
	"github.com/example/ride-negotiation/internal/models"
)

type coordRequest struct {
	Lat     *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng     *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
	Address string   `json:"address" validate:"max=500"`
}

func (c coordRequest) coord() models.Coord {
	var out models.Coord
	if c.Lat != nil {
		out.Lat = *c.Lat
	}
	if c.Lng != nil {
		out.Lon = *c.Lng
	}
	return out
}

type estimateRequest struct {
	Pickup  coordRequest `json:"pickup"`
	Dropoff coordRequest `json:"dropoff"`
}

type createRideRequest struct {
	Pickup        coordRequest `json:"pickup"`
	Dropoff       coordRequest `json:"dropoff"`
	VehicleType   string       `json:"vehicle_type" validate:"required,oneof=economy comfort premium moto"`
	OfferedPrice  *float64     `json:"offered_price" validate:"omitempty,gt=0"`
	PaymentMethod string       `json:"payment_method" validate:"omitempty,oneof=cash wallet card"`
}

type submitOfferRequest struct {
	OfferedPrice *float64 `json:"offered_price" validate:"required,gt=0"`
	Message      *string  `json:"message" validate:"omitempty,max=500"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type cancelRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=500"`
}

type locationResponse struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

type rideResponse struct {
	ID                 uuid.UUID            `json:"id"`
	PassengerID        uuid.UUID            `json:"passenger_id"`
	DriverID           *uuid.UUID           `json:"driver_id"`
	Pickup             locationResponse     `json:"pickup"`
	Dropoff            locationResponse     `json:"dropoff"`
	VehicleType        models.VehicleType   `json:"vehicle_type"`
	DistanceKm         float64              `json:"distance_km"`
	DurationMinutes    int                  `json:"duration_minutes"`
	SuggestedPrice     float64              `json:"suggested_price"`
	OfferedPrice       float64              `json:"offered_price"`
	FinalPrice         *float64             `json:"final_price"`
	PaymentMethod      models.PaymentMethod `json:"payment_method"`
	Status             models.RideStatus    `json:"status"`
	CancelledBy        *uuid.UUID           `json:"cancelled_by,omitempty"`
	CancellationReason *string              `json:"cancellation_reason,omitempty"`
	CancellationFee    float64              `json:"cancellation_fee"`
	FeeSettledAt       *time.Time           `json:"fee_settled_at,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
	StartedAt          *time.Time           `json:"started_at,omitempty"`
	CompletedAt        *time.Time           `json:"completed_at,omitempty"`
	CancelledAt        *time.Time           `json:"cancelled_at,omitempty"`
}

func newRideResponse(r models.Ride) rideResponse {
	return rideResponse{
		ID:                 r.ID,
		PassengerID:        r.PassengerID,
		DriverID:           r.DriverID,
		Pickup:             locationResponse{Lat: r.PickupLat, Lng: r.PickupLng, Address: r.PickupAddress},
		Dropoff:            locationResponse{Lat: r.DropoffLat, Lng: r.DropoffLng, Address: r.DropoffAddress},
		VehicleType:        r.VehicleType,
		DistanceKm:         r.DistanceKm,
		DurationMinutes:    r.DurationMinutes,
		SuggestedPrice:     r.SuggestedPrice,
		OfferedPrice:       r.OfferedPrice,
		FinalPrice:         r.FinalPrice,
		PaymentMethod:      r.PaymentMethod,
		Status:             r.Status,
		CancelledBy:        r.CancelledBy,
		CancellationReason: r.CancellationReason,
		CancellationFee:    r.CancellationFee,
		FeeSettledAt:       r.FeeSettledAt,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		StartedAt:          r.StartedAt,
		CompletedAt:        r.CompletedAt,
		CancelledAt:        r.CancelledAt,
	}
}

type offerResponse struct {
	ID           uuid.UUID          `json:"id"`
	RideID       uuid.UUID          `json:"ride_id"`
	DriverID     uuid.UUID          `json:"driver_id"`
	OfferedPrice float64            `json:"offered_price"`
	Message      *string            `json:"message,omitempty"`
	Status       models.OfferStatus `json:"status"`
	ExpiresAt    time.Time          `json:"expires_at"`
	CreatedAt    time.Time          `json:"created_at"`
}

func newOfferResponse(o models.PriceOffer) offerResponse {
	return offerResponse{
		ID:           o.ID,
		RideID:       o.RideID,
		DriverID:     o.DriverID,
		OfferedPrice: o.Price,
		Message:      o.Message,
		Status:       o.Status,
		ExpiresAt:    o.ExpiresAt,
		CreatedAt:    o.CreatedAt,
	}
}

type rideDetail struct {
	Ride   rideResponse    `json:"ride"`
	Offers []offerResponse `json:"offers"`
}

func newRideDetail(agg models.RideAggregate) rideDetail {
	offers := make([]offerResponse, 0, len(agg.Offers))
	for _, o := range agg.Offers {
		offers = append(offers, newOfferResponse(o))
	}
	return rideDetail{Ride: newRideResponse(agg.Ride), Offers: offers}
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Pricing.Estimate(r.Context(), req.Pickup.coord(), req.Dropoff.coord()))
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var req createRideRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ride, err := s.Rides.CreateRide(r.Context(), identity(r), lifecycle.CreateRideInput{
		Pickup:         req.Pickup.coord(),
		Dropoff:        req.Dropoff.coord(),
		PickupAddress:  req.Pickup.Address,
		DropoffAddress: req.Dropoff.Address,
		VehicleType:    models.VehicleType(req.VehicleType),
		OfferedPrice:   req.OfferedPrice,
		PaymentMethod:  models.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRideResponse(ride))
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.writeError(w, r, apperr.New(apperr.NotFound, "ride not found"))
		return
	}
	agg, err := s.Rides.GetRide(r.Context(), identity(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRideDetail(agg))
}

func (s *Server) handleSubmitOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.writeError(w, r, apperr.New(apperr.NotFound, "ride not found"))
		return
	}
	var req submitOfferRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	offer, err := s.Rides.SubmitOffer(r.Context(), identity(r), id, lifecycle.SubmitOfferInput{
		Price:   *req.OfferedPrice,
		Message: req.Message,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOfferResponse(offer))
}

func (s *Server) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.writeError(w, r, apperr.New(apperr.NotFound, "offer not found"))
		return
	}
	agg, err := s.Rides.AcceptOffer(r.Context(), identity(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRideDetail(agg))
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.writeError(w, r, apperr.New(apperr.NotFound, "ride not found"))
		return
	}
	var req statusRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ride, err := s.Rides.AdvanceStatus(r.Context(), identity(r), id, req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRideResponse(ride))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.writeError(w, r, apperr.New(apperr.NotFound, "ride not found"))
		return
	}
	var req cancelRequest
	if err := decodeOptional(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ride, err := s.Rides.Cancel(r.Context(), identity(r), id, req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ride":             newRideResponse(ride),
		"cancellation_fee": ride.CancellationFee,
	})
}

func (s *Server) handleSettleFee(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.writeError(w, r, apperr.New(apperr.NotFound, "ride not found"))
		return
	}
	tx, err := s.Rides.SettleCancellationFee(r.Context(), identity(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionResult{Transaction: tx, Balance: tx.BalanceAfter})
}
