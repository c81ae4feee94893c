package geo

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-negotiation/internal/models"
)

const (
	DefaultRadiusKm = 5.0
	MaxRadiusKm     = 50.0
)

// Index tracks live driver positions for proximity queries.
type Index interface {
	Upsert(ctx context.Context, d models.DriverLocation) error
	Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]models.NearbyDriver, error)
}

// MemoryIndex is an Index for single-node deployments and tests.
type MemoryIndex struct {
	mu      sync.RWMutex
	drivers map[string]models.DriverLocation
	now     func() time.Time
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{drivers: make(map[string]models.DriverLocation), now: time.Now}
}

func (g *MemoryIndex) Upsert(_ context.Context, d models.DriverLocation) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	d.Updated = g.now()
	g.drivers[d.DriverID] = d
	return nil
}

// Nearby scans every driver; fine for the fleet sizes a single node serves.
func (g *MemoryIndex) Nearby(_ context.Context, lat, lon, radiusKm float64, limit int) ([]models.NearbyDriver, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.NearbyDriver, 0)
	for _, d := range g.drivers {
		if !d.Online {
			continue
		}
		km := Haversine(lat, lon, d.Loc.Lat, d.Loc.Lon) / 1000
		if km > radiusKm {
			continue
		}
		out = append(out, models.NearbyDriver{DriverLocation: d, DistanceKm: km})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// ClampRadius applies the default and the upper bound to a requested radius.
func ClampRadius(km float64) float64 {
	if km <= 0 {
		return DefaultRadiusKm
	}
	return math.Min(km, MaxRadiusKm)
}
