// Package rating records post-ride reviews and keeps the reviewed user's
// aggregates current.
package rating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/logging"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/storage"
)

const (
	MinScore      = 1
	MaxScore      = 5
	maxCommentLen = 1000
	maxTags       = 10
	maxTagLen     = 50
)

type Store interface {
	storage.RatingStore
	GetRide(ctx context.Context, id uuid.UUID) (models.RideAggregate, error)
}

type Input struct {
	RideID     uuid.UUID
	ReviewedID uuid.UUID
	Score      int
	Comment    *string
	Tags       []string
}

func (in Input) validate() error {
	var fields []apperr.FieldError
	if in.RideID == uuid.Nil {
		fields = append(fields, apperr.Field("ride_id", "is required"))
	}
	if in.ReviewedID == uuid.Nil {
		fields = append(fields, apperr.Field("reviewed_id", "is required"))
	}
	if in.Score < MinScore || in.Score > MaxScore {
		fields = append(fields, apperr.Field("rating", fmt.Sprintf("must be between %d and %d", MinScore, MaxScore)))
	}
	if in.Comment != nil && len(*in.Comment) > maxCommentLen {
		fields = append(fields, apperr.Field("comment", fmt.Sprintf("must be at most %d characters", maxCommentLen)))
	}
	if len(in.Tags) > maxTags {
		fields = append(fields, apperr.Field("tags", fmt.Sprintf("at most %d tags", maxTags)))
	}
	for _, t := range in.Tags {
		if len(t) > maxTagLen {
			fields = append(fields, apperr.Field("tags", fmt.Sprintf("each tag must be at most %d characters", maxTagLen)))
			break
		}
	}
	if len(fields) > 0 {
		return apperr.Invalid(fields...)
	}
	return nil
}

type Result struct {
	Rating models.Rating    `json:"rating"`
	Stats  models.UserStats `json:"reviewed_stats"`
}

type Service struct {
	Store  Store
	Logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{Store: store, Logger: logger, now: time.Now}
}

// Rate lets a participant of a completed ride review the other participant
// once.
func (s *Service) Rate(ctx context.Context, actor models.Identity, in Input) (Result, error) {
	if err := in.validate(); err != nil {
		return Result{}, err
	}
	agg, err := s.Store.GetRide(ctx, in.RideID)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{}, apperr.New(apperr.NotFound, "ride not found")
	}
	if err != nil {
		return Result{}, apperr.Store("load ride", err)
	}
	ride := agg.Ride
	if !ride.IsParticipant(actor.UserID) {
		return Result{}, apperr.New(apperr.Forbidden, "not a participant of this ride")
	}
	if other, ok := ride.Counterparty(actor.UserID); !ok || other != in.ReviewedID {
		return Result{}, apperr.New(apperr.Forbidden, "you can only rate the other participant")
	}
	if ride.Status != models.StatusCompleted {
		return Result{}, apperr.New(apperr.InvalidState, "only completed rides can be rated")
	}

	tags := make([]string, 0, len(in.Tags))
	for _, t := range in.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	r := models.Rating{
		ID:         uuid.New(),
		RideID:     ride.ID,
		ReviewerID: actor.UserID,
		ReviewedID: in.ReviewedID,
		Score:      in.Score,
		Comment:    in.Comment,
		Tags:       tags,
		CreatedAt:  s.now().UTC(),
	}
	stats, err := s.Store.CreateRating(ctx, &r)
	switch {
	case errors.Is(err, storage.ErrConflict):
		return Result{}, apperr.New(apperr.Conflict, "you already rated this ride")
	case err != nil:
		return Result{}, apperr.Store("create rating", err)
	}
	logging.FromContext(ctx, s.Logger).Info("ride rated",
		"ride_id", ride.ID, "reviewed_id", in.ReviewedID, "rating", in.Score, "average", stats.Rating)
	return Result{Rating: r, Stats: stats}, nil
}
