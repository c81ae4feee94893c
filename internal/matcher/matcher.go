package matcher

import (
	"context"
	"sort"
	"time"

	"github.com/example/ride-negotiation/internal/geo"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/observability"
	"github.com/example/ride-negotiation/internal/pricing"
)

// Candidate is a driver worth notifying about a new ride request.
type Candidate struct {
	DriverID   string  `json:"driver_id"`
	ETASeconds float64 `json:"eta_seconds"`
	Cost       float64 `json:"cost"`
}

// Service ranks nearby online drivers for a pickup point.
type Service struct {
	Geo             geo.Index
	Router          pricing.Router // optional, for road ETAs
	Cache           *pricing.Cache // optional
	DefaultSpeedMps float64
	TopN            int
	RadiusKm        float64
}

func (s *Service) Candidates(ctx context.Context, pickup models.Coord) ([]Candidate, error) {
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()

	topN := s.TopN
	if topN <= 0 {
		topN = 10
	}
	drivers, err := s.Geo.Nearby(ctx, pickup.Lat, pickup.Lon, geo.ClampRadius(s.RadiusKm), topN)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(drivers))
	for _, d := range drivers {
		etaSec := s.etaSeconds(ctx, d.Loc, pickup)
		cost := etaSec + 30.0*(5.0-d.Rating) // cost = w1*eta + w2*(5 - rating)
		out = append(out, Candidate{DriverID: d.DriverID, ETASeconds: etaSec, Cost: cost})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Cost < out[j].Cost })
	return out, nil
}

func (s *Service) etaSeconds(ctx context.Context, from, to models.Coord) float64 {
	if s.Cache != nil {
		if r, ok := s.Cache.Get(from, to); ok {
			return r.DurationSeconds
		}
	}
	if s.Router != nil {
		if r, err := s.Router.Route(ctx, from, to); err == nil {
			if s.Cache != nil {
				s.Cache.Set(from, to, r)
			}
			return r.DurationSeconds
		}
	}
	speed := s.DefaultSpeedMps
	if speed <= 0 {
		speed = 8.0 // ~28.8 km/h city speed
	}
	return geo.Haversine(from.Lat, from.Lon, to.Lat, to.Lon) / speed
}
