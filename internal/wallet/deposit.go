package wallet

import (
	"context"

	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/money"
)

// Charge is the outcome of a card payment.
type Charge struct {
	ID     string
	Status string
}

const ChargeSucceeded = "succeeded"

// Charger takes card payments in minor units.
type Charger interface {
	Charge(ctx context.Context, amountCents int64, paymentMethod string, metadata map[string]string) (Charge, error)
}

// Deposit charges the payment method and credits the wallet once the payment
// has succeeded. Nothing is written for any other outcome.
func (l *Ledger) Deposit(ctx context.Context, charger Charger, userID uuid.UUID, amount float64, paymentMethod string) (models.WalletTransaction, error) {
	if charger == nil {
		return models.WalletTransaction{}, apperr.New(apperr.InvalidState, "card deposits are not enabled")
	}
	if !money.Finite(amount) || money.Round(amount) <= 0 {
		return models.WalletTransaction{}, apperr.Invalid(apperr.Field("amount", "must be greater than 0"))
	}
	ch, err := charger.Charge(ctx, money.Cents(amount), paymentMethod, map[string]string{"user_id": userID.String()})
	if err != nil {
		l.logger(ctx).Warn("deposit charge failed", "user_id", userID, "error", err)
		return models.WalletTransaction{}, apperr.Wrap(apperr.Transient, "payment provider failure", err)
	}
	if ch.Status != ChargeSucceeded {
		return models.WalletTransaction{}, apperr.New(apperr.InvalidState, "payment not completed: "+ch.Status)
	}
	return l.Append(ctx, userID, amount, models.TxDeposit, "Wallet top-up "+ch.ID, nil)
}
