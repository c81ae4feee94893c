package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Rating struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	RideID     uuid.UUID      `db:"ride_id" json:"ride_id"`
	ReviewerID uuid.UUID      `db:"reviewer_id" json:"reviewer_id"`
	ReviewedID uuid.UUID      `db:"reviewed_id" json:"reviewed_id"`
	Score      int            `db:"rating" json:"rating"`
	Comment    *string        `db:"comment" json:"comment,omitempty"`
	Tags       pq.StringArray `db:"tags" json:"tags"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// UserStats are the aggregates recomputed after every new rating.
type UserStats struct {
	UserID     uuid.UUID `db:"id" json:"user_id"`
	Rating     float64   `db:"rating" json:"rating"`
	TotalRides int       `db:"total_rides" json:"total_rides"`
}

type NotificationType string

const (
	NotifyOffer     NotificationType = "offer"
	NotifyRide      NotificationType = "ride"
	NotifyPayment   NotificationType = "payment"
	NotifyPromotion NotificationType = "promotion"
	NotifySystem    NotificationType = "system"
)

type Notification struct {
	ID        uuid.UUID        `db:"id" json:"id"`
	UserID    uuid.UUID        `db:"user_id" json:"user_id"`
	Type      NotificationType `db:"type" json:"type"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	RideID    *uuid.UUID       `db:"ride_id" json:"ride_id,omitempty"`
	Read      bool             `db:"is_read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

type Referral struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	ReferrerID  uuid.UUID  `db:"referrer_id" json:"referrer_id"`
	ReferredID  uuid.UUID  `db:"referred_id" json:"referred_id"`
	Code        string     `db:"referral_code" json:"referral_code"`
	BonusAmount float64    `db:"bonus_amount" json:"bonus_amount"`
	Completed   bool       `db:"completed" json:"completed"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
