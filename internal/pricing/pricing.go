package pricing

import (
	"context"
	"log/slog"
	"math"

	"github.com/example/ride-negotiation/internal/geo"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/money"
)

const (
	DefaultBaseFare    = 5.00
	DefaultPerKmRate   = 2.50
	DefaultAvgSpeedKmh = 30.0

	SourceRouter    = "router"
	SourceHaversine = "haversine"
)

// Route is a provider answer for a single origin/destination pair.
type Route struct {
	DistanceKm      float64
	DurationSeconds float64
}

// Router resolves road distance and travel time between two points.
type Router interface {
	Route(ctx context.Context, from, to models.Coord) (Route, error)
}

type Estimate struct {
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes int     `json:"duration_minutes"`
	SuggestedPrice  float64 `json:"suggested_price"`
	Source          string  `json:"source"`
}

// Estimator computes distance, duration and a suggested price. Router and
// Cache are optional; any router failure falls back to the straight line.
type Estimator struct {
	Router      Router
	Cache       *Cache
	BaseFare    float64
	PerKmRate   float64
	AvgSpeedKmh float64
	Logger      *slog.Logger
}

func NewEstimator(router Router, cache *Cache, logger *slog.Logger) *Estimator {
	return &Estimator{
		Router:      router,
		Cache:       cache,
		BaseFare:    DefaultBaseFare,
		PerKmRate:   DefaultPerKmRate,
		AvgSpeedKmh: DefaultAvgSpeedKmh,
		Logger:      logger,
	}
}

// Estimate never fails.
func (e *Estimator) Estimate(ctx context.Context, from, to models.Coord) Estimate {
	if route, ok := e.route(ctx, from, to); ok {
		return Estimate{
			DistanceKm:      money.Round(route.DistanceKm),
			DurationMinutes: int(math.Round(route.DurationSeconds / 60)),
			SuggestedPrice:  e.price(route.DistanceKm),
			Source:          SourceRouter,
		}
	}
	km := HaversineKm(from, to)
	return Estimate{
		DistanceKm:      money.Round(km),
		DurationMinutes: int(math.Round(km / e.speed() * 60)),
		SuggestedPrice:  e.price(km),
		Source:          SourceHaversine,
	}
}

func (e *Estimator) route(ctx context.Context, from, to models.Coord) (Route, bool) {
	if e.Router == nil {
		return Route{}, false
	}
	if e.Cache != nil {
		if r, ok := e.Cache.Get(from, to); ok {
			return r, true
		}
	}
	r, err := e.Router.Route(ctx, from, to)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Warn("routing provider failed, using haversine", "error", err)
		}
		return Route{}, false
	}
	if e.Cache != nil {
		e.Cache.Set(from, to, r)
	}
	return r, true
}

func (e *Estimator) price(km float64) float64 {
	return money.Round(e.BaseFare + km*e.PerKmRate)
}

func (e *Estimator) speed() float64 {
	if e.AvgSpeedKmh <= 0 {
		return DefaultAvgSpeedKmh
	}
	return e.AvgSpeedKmh
}

// HaversineKm is the great-circle distance in kilometres.
func HaversineKm(a, b models.Coord) float64 {
	return geo.Haversine(a.Lat, a.Lon, b.Lat, b.Lon) / 1000
}
