package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/wallet"
)

type walletAppendRequest struct {
	Amount      *float64   `json:"amount" validate:"required,ne=0"`
	Type        string     `json:"type" validate:"required,oneof=ride refund bonus cashback referral subscription withdrawal deposit"`
	Description string     `json:"description" validate:"max=500"`
	ReferenceID *uuid.UUID `json:"reference_id"`
}

type depositRequest struct {
	Amount        *float64 `json:"amount" validate:"required,gt=0"`
	PaymentMethod string   `json:"payment_method" validate:"required,max=255"`
}

type transactionResult struct {
	Transaction models.WalletTransaction `json:"transaction"`
	Balance     float64                  `json:"balance"`
}

// handleWalletAppend lets users record debits against their own wallet.
// Credits other than card deposits are reserved for admins.
func (s *Server) handleWalletAppend(w http.ResponseWriter, r *http.Request) {
	var req walletAppendRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := identity(r)
	if *req.Amount > 0 && id.Role != models.RoleAdmin {
		s.writeError(w, r, apperr.New(apperr.Forbidden, "only admins can credit wallets; use /wallet/deposits"))
		return
	}
	tx, err := s.Ledger.Append(r.Context(), id.UserID, *req.Amount, models.TransactionType(req.Type), req.Description, req.ReferenceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionResult{Transaction: tx, Balance: tx.BalanceAfter})
}

func (s *Server) handleWalletHistory(w http.ResponseWriter, r *http.Request) {
	limit, fe := queryInt(r, "limit", wallet.DefaultHistoryLimit, 1, wallet.MaxHistoryLimit)
	if fe != nil {
		s.writeError(w, r, apperr.Invalid(*fe))
		return
	}
	h, err := s.Ledger.History(r.Context(), identity(r).UserID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tx, err := s.Ledger.Deposit(r.Context(), s.Charger, identity(r).UserID, *req.Amount, req.PaymentMethod)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionResult{Transaction: tx, Balance: tx.BalanceAfter})
}
