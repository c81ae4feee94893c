package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type RideStatus string

const (
	StatusPending     RideStatus = "pending"
	StatusNegotiating RideStatus = "negotiating"
	StatusAccepted    RideStatus = "accepted"
	StatusStarted     RideStatus = "started"
	StatusCompleted   RideStatus = "completed"
	StatusCancelled   RideStatus = "cancelled"
)

// ParseRideStatus normalizes a client supplied status. The driver app reports
// "on_way" and "in_progress" for a started ride.
func ParseRideStatus(s string) (RideStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, true
	case "negotiating":
		return StatusNegotiating, true
	case "accepted":
		return StatusAccepted, true
	case "started", "on_way", "in_progress":
		return StatusStarted, true
	case "completed":
		return StatusCompleted, true
	case "cancelled", "canceled":
		return StatusCancelled, true
	}
	return "", false
}

func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// OpenForOffers reports whether drivers may still bid on the ride.
func (s RideStatus) OpenForOffers() bool {
	return s == StatusPending || s == StatusNegotiating
}

type VehicleType string

const (
	VehicleEconomy VehicleType = "economy"
	VehicleComfort VehicleType = "comfort"
	VehiclePremium VehicleType = "premium"
	VehicleMoto    VehicleType = "moto"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentWallet PaymentMethod = "wallet"
	PaymentCard   PaymentMethod = "card"
)

type Ride struct {
	ID              uuid.UUID     `db:"id"`
	PassengerID     uuid.UUID     `db:"passenger_id"`
	DriverID        *uuid.UUID    `db:"driver_id"`
	PickupLat       float64       `db:"pickup_lat"`
	PickupLng       float64       `db:"pickup_lng"`
	PickupAddress   string        `db:"pickup_address"`
	DropoffLat      float64       `db:"dropoff_lat"`
	DropoffLng      float64       `db:"dropoff_lng"`
	DropoffAddress  string        `db:"dropoff_address"`
	VehicleType     VehicleType   `db:"vehicle_type"`
	DistanceKm      float64       `db:"distance_km"`
	DurationMinutes int           `db:"duration_minutes"`
	SuggestedPrice  float64       `db:"suggested_price"`
	OfferedPrice    float64       `db:"offered_price"`
	FinalPrice      *float64      `db:"final_price"`
	PaymentMethod   PaymentMethod `db:"payment_method"`
	Status          RideStatus    `db:"status"`

	CancelledBy        *uuid.UUID `db:"cancelled_by"`
	CancellationReason *string    `db:"cancellation_reason"`
	CancellationFee    float64    `db:"cancellation_fee"`
	FeeSettledAt       *time.Time `db:"fee_settled_at"`

	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
	StartedAt   *time.Time `db:"started_at"`
	CompletedAt *time.Time `db:"completed_at"`
	CancelledAt *time.Time `db:"cancelled_at"`
}

func (r Ride) Pickup() Coord  { return Coord{Lat: r.PickupLat, Lon: r.PickupLng} }
func (r Ride) Dropoff() Coord { return Coord{Lat: r.DropoffLat, Lon: r.DropoffLng} }

// IsParticipant reports whether the user is the passenger or the assigned driver.
func (r Ride) IsParticipant(userID uuid.UUID) bool {
	return r.PassengerID == userID || r.IsDriver(userID)
}

func (r Ride) IsDriver(userID uuid.UUID) bool {
	return r.DriverID != nil && *r.DriverID == userID
}

// Counterparty returns the other participant of the ride, if any.
func (r Ride) Counterparty(userID uuid.UUID) (uuid.UUID, bool) {
	if userID == r.PassengerID {
		if r.DriverID == nil {
			return uuid.Nil, false
		}
		return *r.DriverID, true
	}
	if r.IsDriver(userID) {
		return r.PassengerID, true
	}
	return uuid.Nil, false
}

type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
	OfferExpired  OfferStatus = "expired"
)

type PriceOffer struct {
	ID        uuid.UUID   `db:"id"`
	RideID    uuid.UUID   `db:"ride_id"`
	DriverID  uuid.UUID   `db:"driver_id"`
	Price     float64     `db:"offered_price"`
	Message   *string     `db:"message"`
	Status    OfferStatus `db:"status"`
	ExpiresAt time.Time   `db:"expires_at"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (o PriceOffer) IsExpired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// RideAggregate is a ride together with every offer made on it. It is the unit
// the lifecycle manager mutates atomically.
type RideAggregate struct {
	Ride   Ride
	Offers []PriceOffer
}

func (a *RideAggregate) Offer(id uuid.UUID) (*PriceOffer, bool) {
	for i := range a.Offers {
		if a.Offers[i].ID == id {
			return &a.Offers[i], true
		}
	}
	return nil, false
}
