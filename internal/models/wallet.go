package models

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TxRide         TransactionType = "ride"
	TxRefund       TransactionType = "refund"
	TxBonus        TransactionType = "bonus"
	TxCashback     TransactionType = "cashback"
	TxReferral     TransactionType = "referral"
	TxSubscription TransactionType = "subscription"
	TxWithdrawal   TransactionType = "withdrawal"
	TxDeposit      TransactionType = "deposit"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxRide, TxRefund, TxBonus, TxCashback, TxReferral, TxSubscription, TxWithdrawal, TxDeposit:
		return true
	}
	return false
}

// WalletTransaction is an immutable ledger row. Seq increases by one per user
// and (user_id, seq) is unique, which is what serializes concurrent appends.
type WalletTransaction struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	UserID       uuid.UUID       `db:"user_id" json:"user_id"`
	Seq          int64           `db:"seq" json:"seq"`
	Amount       float64         `db:"amount" json:"amount"`
	Type         TransactionType `db:"type" json:"type"`
	BalanceAfter float64         `db:"balance_after" json:"balance_after"`
	Description  string          `db:"description" json:"description"`
	ReferenceID  *uuid.UUID      `db:"reference_id" json:"reference_id,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}
