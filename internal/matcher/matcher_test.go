package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/pricing"
)

type fakeGeo struct{ drivers []models.NearbyDriver }

func (f *fakeGeo) Upsert(ctx context.Context, d models.DriverLocation) error { return nil }
func (f *fakeGeo) Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]models.NearbyDriver, error) {
	return f.drivers, nil
}

func driver(id string, lat, lon, rating float64) models.NearbyDriver {
	return models.NearbyDriver{DriverLocation: models.DriverLocation{DriverID: id, Loc: models.Coord{Lat: lat, Lon: lon}, Rating: rating, Online: true}}
}

func TestChooseHigherRatingIfETAEqual(t *testing.T) {
	g := &fakeGeo{drivers: []models.NearbyDriver{driver("A", 0, 0, 4.0), driver("B", 0, 0, 5.0)}}
	s := &Service{Geo: g, DefaultSpeedMps: 10, TopN: 2}
	got, err := s.Candidates(context.Background(), models.Coord{Lat: 0, Lon: 0})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].DriverID != "B" {
		t.Fatalf("expected B first, got %+v", got)
	}
}

func TestCloserDriverWinsAtEqualRating(t *testing.T) {
	g := &fakeGeo{drivers: []models.NearbyDriver{driver("far", 0.05, 0, 5), driver("near", 0.001, 0, 5)}}
	s := &Service{Geo: g, DefaultSpeedMps: 10}
	got, _ := s.Candidates(context.Background(), models.Coord{})
	if got[0].DriverID != "near" {
		t.Fatalf("expected near first, got %+v", got)
	}
}

type fixedRouter struct {
	secs float64
	err  error
}

func (f fixedRouter) Route(ctx context.Context, from, to models.Coord) (pricing.Route, error) {
	return pricing.Route{DurationSeconds: f.secs}, f.err
}

func TestRouterETAUsedWhenAvailable(t *testing.T) {
	g := &fakeGeo{drivers: []models.NearbyDriver{driver("A", 0.01, 0, 5)}}
	s := &Service{Geo: g, Router: fixedRouter{secs: 90}}
	got, _ := s.Candidates(context.Background(), models.Coord{})
	if got[0].ETASeconds != 90 {
		t.Fatalf("expected router eta, got %v", got[0].ETASeconds)
	}
	s.Router = fixedRouter{err: errors.New("down")}
	got, _ = s.Candidates(context.Background(), models.Coord{})
	if got[0].ETASeconds == 90 || got[0].ETASeconds <= 0 {
		t.Fatalf("expected haversine eta, got %v", got[0].ETASeconds)
	}
}
