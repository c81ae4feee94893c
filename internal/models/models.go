package models

import (
	"time"

	"github.com/google/uuid"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lng"`
}

// Valid reports whether the coordinate lies within WGS84 bounds.
func (c Coord) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

type Role string

const (
	RolePassenger Role = "passenger"
	RoleDriver    Role = "driver"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePassenger, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// Identity is the authenticated caller of an operation.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Role         Role      `db:"role" json:"role"`
	ReferralCode string    `db:"referral_code" json:"referral_code"`
	Rating       float64   `db:"rating" json:"rating"`
	TotalRides   int       `db:"total_rides" json:"total_rides"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// DriverLocation is a driver position as reported by the driver app.
type DriverLocation struct {
	DriverID string    `json:"id"`
	Loc      Coord     `json:"loc"`
	Rating   float64   `json:"rating"` // 0..5
	Online   bool      `json:"online"`
	Updated  time.Time `json:"updated"`
}

type NearbyDriver struct {
	DriverLocation
	DistanceKm float64 `json:"distance_km"`
}

type LeaderboardCategory string

const (
	LeaderboardRides    LeaderboardCategory = "rides"
	LeaderboardEarnings LeaderboardCategory = "earnings"
	LeaderboardRating   LeaderboardCategory = "rating"
)

func (c LeaderboardCategory) Valid() bool {
	switch c {
	case LeaderboardRides, LeaderboardEarnings, LeaderboardRating:
		return true
	}
	return false
}

type LeaderboardEntry struct {
	Rank   int       `db:"-" json:"rank"`
	UserID uuid.UUID `db:"user_id" json:"user_id"`
	Score  float64   `db:"score" json:"score"`
}

// HotZone is a grid cell of open ride demand.
type HotZone struct {
	Lat    float64 `db:"lat" json:"lat"`
	Lon    float64 `db:"lng" json:"lng"`
	Demand int     `db:"demand" json:"demand"`
}
