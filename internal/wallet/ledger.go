package wallet

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/logging"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/money"
	"github.com/example/ride-negotiation/internal/observability"
	"github.com/example/ride-negotiation/internal/storage"
)

const (
	DefaultMaxAttempts  = 5
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// Ledger is the append-only per-user wallet. Balances are never stored
// separately; the newest row's balance_after is the balance.
type Ledger struct {
	Store       storage.WalletStore
	MaxAttempts int
	Logger      *slog.Logger
	now         func() time.Time
}

func NewLedger(store storage.WalletStore, logger *slog.Logger) *Ledger {
	return &Ledger{Store: store, MaxAttempts: DefaultMaxAttempts, Logger: logger, now: time.Now}
}

type History struct {
	Balance      float64                    `json:"balance"`
	Transactions []models.WalletTransaction `json:"transactions"`
}

// Append records a signed movement for userID. Concurrent appends for the same
// user race on (user_id, seq); the loser re-reads the head and retries.
func (l *Ledger) Append(ctx context.Context, userID uuid.UUID, amount float64, txType models.TransactionType, description string, ref *uuid.UUID) (models.WalletTransaction, error) {
	if !money.Finite(amount) || money.Round(amount) == 0 {
		return models.WalletTransaction{}, apperr.Invalid(apperr.Field("amount", "must be a non-zero amount"))
	}
	if !txType.Valid() {
		return models.WalletTransaction{}, apperr.Invalid(apperr.Field("type", "unknown transaction type"))
	}
	amount = money.Round(amount)

	attempts := l.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	for i := 0; i < attempts; i++ {
		head, err := l.Store.LatestTransaction(ctx, userID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return models.WalletTransaction{}, apperr.Store("wallet head", err)
		}
		tx := models.WalletTransaction{
			ID:           uuid.New(),
			UserID:       userID,
			Seq:          head.Seq + 1,
			Amount:       amount,
			Type:         txType,
			BalanceAfter: money.Add(head.BalanceAfter, amount),
			Description:  description,
			ReferenceID:  ref,
			CreatedAt:    l.now().UTC(),
		}
		err = l.Store.InsertTransaction(ctx, &tx)
		if err == nil {
			observability.WalletAppendsTotal.WithLabelValues(string(txType)).Inc()
			return tx, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return models.WalletTransaction{}, apperr.Store("wallet insert", err)
		}
		observability.WalletConflictsTotal.Inc()
		l.logger(ctx).Debug("wallet sequence conflict, retrying", "user_id", userID, "seq", tx.Seq, "attempt", i+1)
	}
	return models.WalletTransaction{}, apperr.New(apperr.Conflict, "wallet is busy, retry later")
}

// Balance returns the newest balance_after, or 0 for a user without rows.
func (l *Ledger) Balance(ctx context.Context, userID uuid.UUID) (float64, error) {
	head, err := l.Store.LatestTransaction(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Store("wallet balance", err)
	}
	return head.BalanceAfter, nil
}

// History lists transactions newest first together with the balance.
func (l *Ledger) History(ctx context.Context, userID uuid.UUID, limit int) (History, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	rows, err := l.Store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return History{}, apperr.Store("wallet history", err)
	}
	h := History{Transactions: rows}
	if len(rows) > 0 {
		h.Balance = rows[0].BalanceAfter
	}
	return h, nil
}

func (l *Ledger) logger(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, l.Logger)
}
