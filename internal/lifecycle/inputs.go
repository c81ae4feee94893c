package lifecycle

import (
	"fmt"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/money"
)

const (
	maxAddressLen = 500
	maxMessageLen = 500
	maxReasonLen  = 500
)

type CreateRideInput struct {
	Pickup         models.Coord
	Dropoff        models.Coord
	PickupAddress  string
	DropoffAddress string
	VehicleType    models.VehicleType
	OfferedPrice   *float64
	PaymentMethod  models.PaymentMethod
}

func (in *CreateRideInput) validate() error {
	var fields []apperr.FieldError
	if !in.Pickup.Valid() {
		fields = append(fields, apperr.Field("pickup", "coordinates out of range"))
	}
	if !in.Dropoff.Valid() {
		fields = append(fields, apperr.Field("dropoff", "coordinates out of range"))
	}
	if len(in.PickupAddress) > maxAddressLen {
		fields = append(fields, apperr.Field("pickup_address", fmt.Sprintf("must be at most %d characters", maxAddressLen)))
	}
	if len(in.DropoffAddress) > maxAddressLen {
		fields = append(fields, apperr.Field("dropoff_address", fmt.Sprintf("must be at most %d characters", maxAddressLen)))
	}
	switch in.VehicleType {
	case models.VehicleEconomy, models.VehicleComfort, models.VehiclePremium, models.VehicleMoto:
	default:
		fields = append(fields, apperr.Field("vehicle_type", "must be one of economy, comfort, premium, moto"))
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = models.PaymentCash
	}
	switch in.PaymentMethod {
	case models.PaymentCash, models.PaymentWallet, models.PaymentCard:
	default:
		fields = append(fields, apperr.Field("payment_method", "must be one of cash, wallet, card"))
	}
	if in.OfferedPrice != nil && !validPrice(*in.OfferedPrice) {
		fields = append(fields, apperr.Field("offered_price", "must be greater than 0"))
	}
	if len(fields) > 0 {
		return apperr.Invalid(fields...)
	}
	return nil
}

type SubmitOfferInput struct {
	Price   float64
	Message *string
}

func (in SubmitOfferInput) validate() error {
	var fields []apperr.FieldError
	if !validPrice(in.Price) {
		fields = append(fields, apperr.Field("price", "must be greater than 0"))
	}
	if in.Message != nil && len(*in.Message) > maxMessageLen {
		fields = append(fields, apperr.Field("message", fmt.Sprintf("must be at most %d characters", maxMessageLen)))
	}
	if len(fields) > 0 {
		return apperr.Invalid(fields...)
	}
	return nil
}

func validPrice(p float64) bool {
	return money.Finite(p) && money.Round(p) > 0
}
