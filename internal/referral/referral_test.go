package referral

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/logging"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/storage"
	"github.com/example/ride-negotiation/internal/wallet"
)

func setup(t *testing.T) (*Service, *storage.MemoryStore, *wallet.Ledger, models.User) {
	t.Helper()
	store := storage.NewMemoryStore()
	ledger := wallet.NewLedger(store, logging.Discard())
	referrer, err := store.EnsureUser(context.Background(), models.User{ID: uuid.New(), Role: models.RolePassenger, ReferralCode: "ABCD1234"})
	if err != nil {
		t.Fatal(err)
	}
	return NewService(store, ledger, logging.Discard()), store, ledger, referrer
}

func completeRide(t *testing.T, store *storage.MemoryStore, passenger uuid.UUID) {
	t.Helper()
	r := models.Ride{ID: uuid.New(), PassengerID: passenger, Status: models.StatusCompleted, CreatedAt: time.Now()}
	if err := store.CreateRide(context.Background(), &r); err != nil {
		t.Fatal(err)
	}
}

func TestRedeemRules(t *testing.T) {
	svc, _, _, referrer := setup(t)
	ctx := context.Background()
	newUser := models.Identity{UserID: uuid.New(), Role: models.RolePassenger}

	_, err := svc.Redeem(ctx, newUser, "NOPE0000")
	if !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("want NotFound, got %v", err)
	}
	_, err = svc.Redeem(ctx, models.Identity{UserID: referrer.ID, Role: referrer.Role}, "ABCD1234")
	if !apperr.Is(err, apperr.Validation) {
		t.Fatalf("own code must be rejected, got %v", err)
	}

	ref, err := svc.Redeem(ctx, newUser, " abcd1234 ")
	if err != nil {
		t.Fatal(err)
	}
	if ref.ReferrerID != referrer.ID || ref.BonusAmount != DefaultBonus || ref.Completed {
		t.Fatalf("unexpected referral: %+v", ref)
	}
	_, err = svc.Redeem(ctx, newUser, "ABCD1234")
	if !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("second redemption must conflict, got %v", err)
	}
}

func TestRedeemAfterFirstRideRejected(t *testing.T) {
	svc, store, _, _ := setup(t)
	rider := models.Identity{UserID: uuid.New(), Role: models.RolePassenger}
	completeRide(t, store, rider.UserID)
	if _, err := svc.Redeem(context.Background(), rider, "ABCD1234"); !apperr.Is(err, apperr.InvalidState) {
		t.Fatalf("want InvalidState, got %v", err)
	}
}

func TestBonusPaidOnFirstRideOnly(t *testing.T) {
	svc, store, ledger, referrer := setup(t)
	ctx := context.Background()
	newUser := models.Identity{UserID: uuid.New(), Role: models.RolePassenger}
	if _, err := svc.Redeem(ctx, newUser, "ABCD1234"); err != nil {
		t.Fatal(err)
	}

	completeRide(t, store, newUser.UserID)
	if err := svc.OnRideCompleted(ctx, newUser.UserID); err != nil {
		t.Fatal(err)
	}
	// a duplicate hook call for the same ride pays nothing
	if err := svc.OnRideCompleted(ctx, newUser.UserID); err != nil {
		t.Fatal(err)
	}
	completeRide(t, store, newUser.UserID)
	if err := svc.OnRideCompleted(ctx, newUser.UserID); err != nil {
		t.Fatal(err)
	}

	h, err := ledger.History(ctx, referrer.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if h.Balance != DefaultBonus || len(h.Transactions) != 1 || h.Transactions[0].Type != models.TxReferral {
		t.Fatalf("want exactly one referral credit, got %+v", h)
	}
}

func TestNoReferralIsNoop(t *testing.T) {
	svc, store, _, _ := setup(t)
	passenger := uuid.New()
	completeRide(t, store, passenger)
	if err := svc.OnRideCompleted(context.Background(), passenger); err != nil {
		t.Fatal(err)
	}
}

type flakyWallet struct {
	inner    *wallet.Ledger
	failures int
	calls    int
}

func (w *flakyWallet) Append(ctx context.Context, userID uuid.UUID, amount float64, txType models.TransactionType, description string, ref *uuid.UUID) (models.WalletTransaction, error) {
	w.calls++
	if w.calls <= w.failures {
		return models.WalletTransaction{}, apperr.Store("wallet insert", errors.New("store timeout"))
	}
	return w.inner.Append(ctx, userID, amount, txType, description, ref)
}

type failingNotifier struct{ calls int }

func (n *failingNotifier) Notify(context.Context, models.Notification) (models.Notification, error) {
	n.calls++
	return models.Notification{}, errors.New("notifications down")
}

func TestFailedBonusCreditIsRetried(t *testing.T) {
	svc, store, ledger, referrer := setup(t)
	flaky := &flakyWallet{inner: ledger, failures: 1}
	svc.Wallet = flaky
	ctx := context.Background()
	newUser := models.Identity{UserID: uuid.New(), Role: models.RolePassenger}
	if _, err := svc.Redeem(ctx, newUser, "ABCD1234"); err != nil {
		t.Fatal(err)
	}
	completeRide(t, store, newUser.UserID)

	if err := svc.OnRideCompleted(ctx, newUser.UserID); err == nil {
		t.Fatal("expected the credit failure to surface")
	}
	if _, err := store.PendingReferral(ctx, newUser.UserID); err != nil {
		t.Fatalf("referral should be pending again, got %v", err)
	}

	// the retry comes from the next completed ride
	completeRide(t, store, newUser.UserID)
	if err := svc.OnRideCompleted(ctx, newUser.UserID); err != nil {
		t.Fatal(err)
	}
	if err := svc.OnRideCompleted(ctx, newUser.UserID); err != nil {
		t.Fatal(err)
	}
	if flaky.calls != 2 {
		t.Fatalf("want 2 credit attempts, got %d", flaky.calls)
	}
	if bal, _ := ledger.Balance(ctx, referrer.ID); bal != DefaultBonus {
		t.Fatalf("referrer balance %v", bal)
	}
}

func TestNotificationFailureDoesNotFailBonus(t *testing.T) {
	svc, store, ledger, referrer := setup(t)
	notifier := &failingNotifier{}
	svc.Notifier = notifier
	ctx := context.Background()
	newUser := models.Identity{UserID: uuid.New(), Role: models.RolePassenger}
	if _, err := svc.Redeem(ctx, newUser, "ABCD1234"); err != nil {
		t.Fatal(err)
	}
	completeRide(t, store, newUser.UserID)
	if err := svc.OnRideCompleted(ctx, newUser.UserID); err != nil {
		t.Fatal(err)
	}
	if notifier.calls != 1 {
		t.Fatalf("want one notification attempt, got %d", notifier.calls)
	}
	if bal, _ := ledger.Balance(ctx, referrer.ID); bal != DefaultBonus {
		t.Fatalf("referrer balance %v", bal)
	}
}
