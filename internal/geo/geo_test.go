package geo

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-negotiation/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestMemoryIndexNearby(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	_ = idx.Upsert(ctx, models.DriverLocation{DriverID: "far", Loc: models.Coord{Lat: -23.60, Lon: -46.63}, Online: true})
	_ = idx.Upsert(ctx, models.DriverLocation{DriverID: "near", Loc: models.Coord{Lat: -23.551, Lon: -46.631}, Online: true})
	_ = idx.Upsert(ctx, models.DriverLocation{DriverID: "mid", Loc: models.Coord{Lat: -23.56, Lon: -46.63}, Online: true})
	_ = idx.Upsert(ctx, models.DriverLocation{DriverID: "offline", Loc: models.Coord{Lat: -23.55, Lon: -46.63}, Online: false})
	_ = idx.Upsert(ctx, models.DriverLocation{DriverID: "outside", Loc: models.Coord{Lat: -24.50, Lon: -46.63}, Online: true})

	got, err := idx.Nearby(ctx, -23.55, -46.63, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, 0, len(got))
	for _, d := range got {
		ids = append(ids, d.DriverID)
	}
	want := []string{"near", "mid", "far"}
	if len(ids) != len(want) {
		t.Fatalf("got %v want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v want %v", ids, want)
		}
	}

	limited, _ := idx.Nearby(ctx, -23.55, -46.63, 10, 1)
	if len(limited) != 1 || limited[0].DriverID != "near" {
		t.Fatalf("limit not applied: %+v", limited)
	}
}

func TestClampRadius(t *testing.T) {
	if ClampRadius(0) != DefaultRadiusKm || ClampRadius(500) != MaxRadiusKm || ClampRadius(3) != 3 {
		t.Fatal("unexpected clamp")
	}
}

type recordingWriter struct {
	ops []string
}

func (w *recordingWriter) GeoAdd(_ context.Context, key string, loc *redis.GeoLocation) error {
	w.ops = append(w.ops, "geoadd "+key+" "+loc.Name)
	return nil
}

func (w *recordingWriter) ZRem(_ context.Context, key string, member string) error {
	w.ops = append(w.ops, "zrem "+key+" "+member)
	return nil
}

func (w *recordingWriter) HSet(_ context.Context, key string, _ map[string]any) error {
	w.ops = append(w.ops, "hset "+key)
	return nil
}

func TestWriteLocation(t *testing.T) {
	tests := []struct {
		name   string
		online bool
		want   []string
	}{
		{"online driver is indexed", true, []string{"geoadd drivers_geo d1", "hset driver:meta:d1"}},
		{"offline driver leaves the index", false, []string{"zrem drivers_geo d1", "hset driver:meta:d1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &recordingWriter{}
			d := models.DriverLocation{DriverID: "d1", Loc: models.Coord{Lat: 1, Lon: 2}, Online: tt.online}
			if err := WriteLocation(context.Background(), w, "drivers_geo", d); err != nil {
				t.Fatal(err)
			}
			if len(w.ops) != len(tt.want) {
				t.Fatalf("ops %v, want %v", w.ops, tt.want)
			}
			for i := range tt.want {
				if w.ops[i] != tt.want[i] {
					t.Fatalf("ops %v, want %v", w.ops, tt.want)
				}
			}
		})
	}
}
