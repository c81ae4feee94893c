package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-negotiation/internal/logging"
	"github.com/example/ride-negotiation/internal/models"
)

// fakeUpdater implements RedisUpdater for tests
type fakeUpdater struct {
	failGeo  int // number of times to fail GeoAdd before succeeding
	failH    int // number of times to fail HSet before succeeding
	geoCalls int
	hCalls   int
	geoKeys  []string
	metaKeys []string
	removed  []string
}

func (f *fakeUpdater) ZRem(ctx context.Context, key string, member string) error {
	f.removed = append(f.removed, member)
	return nil
}

func (f *fakeUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	f.geoKeys = append(f.geoKeys, key)
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]any) error {
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	f.metaKeys = append(f.metaKeys, key)
	return nil
}

func testLocation() *models.DriverLocation {
	return &models.DriverLocation{DriverID: "d1", Loc: models.Coord{Lat: 1, Lon: 2}, Rating: 4.5, Online: true}
}

func TestUpdateRedisWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{failGeo: 1, failH: 1}
	ctx := context.Background()
	start := time.Now()
	if err := updateRedisWithRetry(ctx, f, testLocation(), "drivers_geo", 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.geoCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
	if f.metaKeys[len(f.metaKeys)-1] != "driver:meta:d1" || f.geoKeys[0] != "drivers_geo" {
		t.Fatalf("unexpected keys geo=%v meta=%v", f.geoKeys, f.metaKeys)
	}
}

func TestUpdateRedisWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{failGeo: 5, failH: 0}
	ctx := context.Background()
	if err := updateRedisWithRetry(ctx, f, testLocation(), "drivers_geo", 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.geoCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.geoCalls)
	}
}

type scriptedReader struct {
	msgs   [][]byte
	cancel context.CancelFunc
}

func (s *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(s.msgs) == 0 {
		s.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := s.msgs[0]
	s.msgs = s.msgs[1:]
	return kafka.Message{Value: m}, nil
}

func TestConsumeSkipsInvalidMessages(t *testing.T) {
	good, _ := json.Marshal(testLocation())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &scriptedReader{
		msgs: [][]byte{
			[]byte("not json"),
			[]byte(`{"id":"","loc":{"lat":1,"lng":2}}`),
			[]byte(`{"id":"d2","loc":{"lat":100,"lng":2}}`),
			good,
		},
		cancel: cancel,
	}
	f := &fakeUpdater{}
	consume(ctx, r, f, "drivers_geo", logging.Discard())
	if f.geoCalls != 1 || f.hCalls != 1 {
		t.Fatalf("only the valid message should reach redis, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
}

func TestOfflineDriverLeavesGeoSet(t *testing.T) {
	f := &fakeUpdater{}
	d := testLocation()
	d.Online = false
	if err := updateRedisWithRetry(context.Background(), f, d, "drivers_geo", 3, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if f.geoCalls != 0 || len(f.removed) != 1 || f.removed[0] != "d1" {
		t.Fatalf("offline driver must be removed, not added: geo=%d removed=%v", f.geoCalls, f.removed)
	}
	if len(f.metaKeys) != 1 {
		t.Fatalf("metadata should still be written: %v", f.metaKeys)
	}
}
