package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"github.com/example/ride-negotiation/internal/wallet"
)

// StripeClient charges wallet top-ups with confirmed PaymentIntents.
type StripeClient struct {
	api      *client.API
	currency string
}

func NewStripeClient(apiKey, currency string) *StripeClient {
	return &StripeClient{api: client.New(apiKey, nil), currency: currency}
}

// Charge creates and confirms a PaymentIntent in one call. The returned
// status is Stripe's; only "succeeded" means the funds were captured.
func (s *StripeClient) Charge(ctx context.Context, amountCents int64, paymentMethod string, metadata map[string]string) (wallet.Charge, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amountCents),
		Currency:           stripe.String(s.currency),
		PaymentMethod:      stripe.String(paymentMethod),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return wallet.Charge{}, err
	}
	return wallet.Charge{ID: pi.ID, Status: string(pi.Status)}, nil
}

// NewStripeClientWithURL points the client at a different API base URL, such
// as stripe-mock.
func NewStripeClientWithURL(apiKey, currency, url string) *StripeClient {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{URL: stripe.String(url)})
	return &StripeClient{api: client.New(apiKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend}), currency: currency}
}
