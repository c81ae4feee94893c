package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestChargeConfirmsPaymentIntent(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pi_123","object":"payment_intent","status":"succeeded","amount":2550,"currency":"usd"}`))
	}))
	defer srv.Close()

	c := NewStripeClientWithURL("sk_test_123", "usd", srv.URL)
	ch, err := c.Charge(context.Background(), 2550, "pm_card_visa", map[string]string{"user_id": "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if ch.ID != "pi_123" || ch.Status != "succeeded" {
		t.Fatalf("charge %+v", ch)
	}
	if form.Get("amount") != "2550" || form.Get("confirm") != "true" || form.Get("metadata[user_id]") != "u1" {
		t.Fatalf("unexpected form %v", form)
	}
}
