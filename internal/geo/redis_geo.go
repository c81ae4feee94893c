package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-negotiation/internal/models"
)

// RedisGeo implements Index using Redis GEO commands plus a metadata hash
// per driver.
type RedisGeo struct {
	client *redis.Client
	key    string
}

func NewRedisGeo(client *redis.Client, key string) *RedisGeo {
	return &RedisGeo{client: client, key: key}
}

// LocationWriter is the subset of Redis a location update touches.
type LocationWriter interface {
	GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error
	ZRem(ctx context.Context, key string, member string) error
	HSet(ctx context.Context, key string, values map[string]any) error
}

// WriteLocation stores d in the GEO set and its metadata hash. Offline
// drivers are removed from the set so they never take a slot in a Nearby
// result.
func WriteLocation(ctx context.Context, w LocationWriter, geoKey string, d models.DriverLocation) error {
	var err error
	if d.Online {
		err = w.GeoAdd(ctx, geoKey, &redis.GeoLocation{Longitude: d.Loc.Lon, Latitude: d.Loc.Lat, Name: d.DriverID})
	} else {
		err = w.ZRem(ctx, geoKey, d.DriverID)
	}
	if err != nil {
		return err
	}
	return w.HSet(ctx, MetaKey(d.DriverID), MetaFields(d))
}

// pipelineWriter queues the writes; errors surface from Exec.
type pipelineWriter struct{ p redis.Pipeliner }

func (w pipelineWriter) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	w.p.GeoAdd(ctx, key, loc)
	return nil
}

func (w pipelineWriter) ZRem(ctx context.Context, key string, member string) error {
	w.p.ZRem(ctx, key, member)
	return nil
}

func (w pipelineWriter) HSet(ctx context.Context, key string, values map[string]any) error {
	w.p.HSet(ctx, key, values)
	return nil
}

func (r *RedisGeo) Upsert(ctx context.Context, d models.DriverLocation) error {
	pipe := r.client.TxPipeline()
	if err := WriteLocation(ctx, pipelineWriter{pipe}, r.key, d); err != nil {
		return err
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisGeo) Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]models.NearbyDriver, error) {
	res, err := r.client.GeoSearchLocation(ctx, r.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lon,
			Latitude:   lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geosearch: %w", err)
	}
	pipe := r.client.Pipeline()
	metas := make([]*redis.MapStringStringCmd, len(res))
	for i, g := range res {
		metas[i] = pipe.HGetAll(ctx, MetaKey(g.Name))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("driver metadata: %w", err)
	}
	out := make([]models.NearbyDriver, 0, len(res))
	for i, g := range res {
		d := models.NearbyDriver{DistanceKm: g.Dist}
		d.DriverID = g.Name
		d.Loc = models.Coord{Lat: g.Latitude, Lon: g.Longitude}
		m := metas[i].Val()
		if v, ok := m["rating"]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				d.Rating = f
			}
		}
		d.Online = m["online"] == "true"
		if v, ok := m["updated"]; ok {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				d.Updated = ts
			}
		}
		// a member whose hash says offline is left over from before the
		// driver went offline; skip it
		if !d.Online {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func MetaKey(id string) string { return "driver:meta:" + id }

// MetaFields is the hash layout shared with the location consumer.
func MetaFields(d models.DriverLocation) map[string]any {
	return map[string]any{
		"rating":  strconv.FormatFloat(d.Rating, 'f', 2, 64),
		"online":  strconv.FormatBool(d.Online),
		"updated": time.Now().UTC().Format(time.RFC3339),
	}
}
