package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/logging"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/storage"
)

func TestAppendSequentialBalances(t *testing.T) {
	l := NewLedger(storage.NewMemoryStore(), logging.Discard())
	ctx := context.Background()
	user := uuid.New()

	amounts := []float64{50, -12.5, 0.1, 0.2}
	var want float64
	wants := []float64{50, 37.5, 37.6, 37.8}
	for i, a := range amounts {
		tx, err := l.Append(ctx, user, a, models.TxDeposit, "", nil)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		want = wants[i]
		if tx.BalanceAfter != want {
			t.Fatalf("append %d: balance %v want %v", i, tx.BalanceAfter, want)
		}
		if tx.Seq != int64(i+1) {
			t.Fatalf("append %d: seq %d", i, tx.Seq)
		}
	}
	bal, _ := l.Balance(ctx, user)
	if bal != want {
		t.Fatalf("balance %v want %v", bal, want)
	}
}

func TestBalanceWithoutRowsIsZero(t *testing.T) {
	l := NewLedger(storage.NewMemoryStore(), nil)
	bal, err := l.Balance(context.Background(), uuid.New())
	if err != nil || bal != 0 {
		t.Fatalf("got %v %v", bal, err)
	}
}

func TestAppendRejectsInvalidInput(t *testing.T) {
	l := NewLedger(storage.NewMemoryStore(), nil)
	ctx := context.Background()
	cases := []struct {
		name   string
		amount float64
		typ    models.TransactionType
	}{
		{"zero", 0, models.TxBonus},
		{"rounds to zero", 0.001, models.TxBonus},
		{"unknown type", 10, models.TransactionType("gift")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := l.Append(ctx, uuid.New(), c.amount, c.typ, "", nil)
			if apperr.KindOf(err) != apperr.Validation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestConcurrentAppendsNeverLoseUpdates(t *testing.T) {
	l := NewLedger(storage.NewMemoryStore(), nil)
	l.MaxAttempts = 1000
	ctx := context.Background()
	user := uuid.New()

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Append(ctx, user, 2, models.TxBonus, "", nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("append failed: %v", err)
	}
	bal, _ := l.Balance(ctx, user)
	if bal != 2*n {
		t.Fatalf("balance %v want %v", bal, 2*n)
	}
	h, _ := l.History(ctx, user, 100)
	if len(h.Transactions) != n || h.Transactions[0].Seq != n {
		t.Fatalf("history: %d rows, head seq %d", len(h.Transactions), h.Transactions[0].Seq)
	}
}

type alwaysConflict struct {
	storage.WalletStore
	inserts int
}

func (a *alwaysConflict) LatestTransaction(ctx context.Context, userID uuid.UUID) (models.WalletTransaction, error) {
	return models.WalletTransaction{}, storage.ErrNotFound
}

func (a *alwaysConflict) InsertTransaction(ctx context.Context, tx *models.WalletTransaction) error {
	a.inserts++
	return storage.ErrConflict
}

func TestAppendGivesUpAfterMaxAttempts(t *testing.T) {
	store := &alwaysConflict{}
	l := NewLedger(store, nil)
	_, err := l.Append(context.Background(), uuid.New(), 5, models.TxBonus, "", nil)
	if apperr.KindOf(err) != apperr.Conflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if store.inserts != DefaultMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", DefaultMaxAttempts, store.inserts)
	}
}

type fakeCharger struct {
	status string
	err    error
	cents  int64
}

func (f *fakeCharger) Charge(ctx context.Context, amountCents int64, paymentMethod string, metadata map[string]string) (Charge, error) {
	f.cents = amountCents
	return Charge{ID: "pi_123", Status: f.status}, f.err
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(storage.NewMemoryStore(), nil)
	user := uuid.New()

	ok := &fakeCharger{status: ChargeSucceeded}
	tx, err := l.Deposit(ctx, ok, user, 25.5, "pm_card_visa")
	if err != nil {
		t.Fatal(err)
	}
	if ok.cents != 2550 || tx.Type != models.TxDeposit || tx.BalanceAfter != 25.5 {
		t.Fatalf("unexpected deposit %+v cents=%d", tx, ok.cents)
	}

	pending := &fakeCharger{status: "requires_action"}
	if _, err := l.Deposit(ctx, pending, user, 10, "pm"); apperr.KindOf(err) != apperr.InvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
	failing := &fakeCharger{err: errors.New("card declined")}
	if _, err := l.Deposit(ctx, failing, user, 10, "pm"); apperr.KindOf(err) != apperr.Transient {
		t.Fatalf("expected transient, got %v", err)
	}
	bal, _ := l.Balance(ctx, user)
	if bal != 25.5 {
		t.Fatalf("only the succeeded charge may credit, balance %v", bal)
	}
}
