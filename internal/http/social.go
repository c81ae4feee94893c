package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/rating"
)

type rateRequest struct {
	RideID     *uuid.UUID `json:"ride_id" validate:"required"`
	ReviewedID *uuid.UUID `json:"reviewed_id" validate:"required"`
	Rating     int        `json:"rating" validate:"required,min=1,max=5"`
	Comment    *string    `json:"comment" validate:"omitempty,max=1000"`
	Tags       []string   `json:"tags" validate:"max=10,dive,max=50"`
}

type redeemRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.Ratings.Rate(r.Context(), identity(r), rating.Input{
		RideID:     *req.RideID,
		ReviewedID: *req.ReviewedID,
		Score:      req.Rating,
		Comment:    req.Comment,
		Tags:       req.Tags,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRedeemReferral(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ref, err := s.Referrals.Redeem(r.Context(), identity(r), req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}
