package rating

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/logging"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/storage"
)

func seedRide(t *testing.T, store *storage.MemoryStore, status models.RideStatus) (models.Ride, models.Identity, models.Identity) {
	t.Helper()
	passenger := models.Identity{UserID: uuid.New(), Role: models.RolePassenger}
	driver := models.Identity{UserID: uuid.New(), Role: models.RoleDriver}
	price := 20.0
	r := models.Ride{
		ID:          uuid.New(),
		PassengerID: passenger.UserID,
		DriverID:    &driver.UserID,
		FinalPrice:  &price,
		Status:      status,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := store.CreateRide(context.Background(), &r); err != nil {
		t.Fatal(err)
	}
	for _, id := range []models.Identity{passenger, driver} {
		if _, err := store.EnsureUser(context.Background(), models.User{ID: id.UserID, Role: id.Role, ReferralCode: id.UserID.String()[:8]}); err != nil {
			t.Fatal(err)
		}
	}
	return r, passenger, driver
}

func TestRateUpdatesAggregates(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewService(store, logging.Discard())
	ctx := context.Background()

	r1, p1, driver := seedRide(t, store, models.StatusCompleted)
	res, err := svc.Rate(ctx, p1, Input{RideID: r1.ID, ReviewedID: driver.UserID, Score: 5, Tags: []string{" polite ", ""}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.Rating != 5 || res.Stats.TotalRides != 1 {
		t.Fatalf("unexpected stats: %+v", res.Stats)
	}
	if len(res.Rating.Tags) != 1 || res.Rating.Tags[0] != "polite" {
		t.Fatalf("tags not normalized: %v", res.Rating.Tags)
	}

	// a second ride with the same driver
	p2 := models.Identity{UserID: uuid.New(), Role: models.RolePassenger}
	r2 := models.Ride{ID: uuid.New(), PassengerID: p2.UserID, DriverID: &driver.UserID, Status: models.StatusCompleted}
	if err := store.CreateRide(ctx, &r2); err != nil {
		t.Fatal(err)
	}
	res, err = svc.Rate(ctx, p2, Input{RideID: r2.ID, ReviewedID: driver.UserID, Score: 4})
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.Rating != 4.5 || res.Stats.TotalRides != 2 {
		t.Fatalf("unexpected stats: %+v", res.Stats)
	}
	u, _ := store.GetUser(ctx, driver.UserID)
	if u.Rating != 4.5 || u.TotalRides != 2 {
		t.Fatalf("user row not updated: %+v", u)
	}
}

func TestRateRules(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewService(store, logging.Discard())
	ctx := context.Background()
	done, passenger, driver := seedRide(t, store, models.StatusCompleted)
	open, p2, d2 := seedRide(t, store, models.StatusStarted)

	cases := []struct {
		name  string
		actor models.Identity
		in    Input
		want  apperr.Kind
	}{
		{"score too high", passenger, Input{RideID: done.ID, ReviewedID: driver.UserID, Score: 6}, apperr.Validation},
		{"missing ride", passenger, Input{RideID: uuid.New(), ReviewedID: driver.UserID, Score: 3}, apperr.NotFound},
		{"stranger", d2, Input{RideID: done.ID, ReviewedID: driver.UserID, Score: 3}, apperr.Forbidden},
		{"self review", passenger, Input{RideID: done.ID, ReviewedID: passenger.UserID, Score: 3}, apperr.Forbidden},
		{"ride not completed", p2, Input{RideID: open.ID, ReviewedID: d2.UserID, Score: 3}, apperr.InvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Rate(ctx, tc.actor, tc.in)
			if got := apperr.KindOf(err); got != tc.want {
				t.Fatalf("want %s, got %s (%v)", tc.want, got, err)
			}
		})
	}

	if _, err := svc.Rate(ctx, driver, Input{RideID: done.ID, ReviewedID: passenger.UserID, Score: 4}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Rate(ctx, driver, Input{RideID: done.ID, ReviewedID: passenger.UserID, Score: 2})
	if !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("duplicate rating should conflict, got %v", err)
	}
}
