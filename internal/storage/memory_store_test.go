package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/models"
)

func newRide(passenger uuid.UUID, status models.RideStatus) *models.Ride {
	now := time.Now()
	return &models.Ride{
		ID: uuid.New(), PassengerID: passenger, Status: status,
		PickupLat: -23.551, PickupLng: -46.632,
		VehicleType: models.VehicleEconomy, PaymentMethod: models.PaymentCash,
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestUpdateRideRollsBackOnError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	r := newRide(uuid.New(), models.StatusPending)
	if err := s.CreateRide(ctx, r); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	_, err := s.UpdateRide(ctx, r.ID, func(agg *models.RideAggregate) error {
		agg.Ride.Status = models.StatusNegotiating
		agg.Offers = append(agg.Offers, models.PriceOffer{ID: uuid.New(), RideID: r.ID})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, _ := s.GetRide(ctx, r.ID)
	if got.Ride.Status != models.StatusPending || len(got.Offers) != 0 {
		t.Fatalf("mutation leaked: %+v", got)
	}
}

func TestUpdateRideIndexesOffers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	r := newRide(uuid.New(), models.StatusPending)
	_ = s.CreateRide(ctx, r)
	offerID := uuid.New()
	_, err := s.UpdateRide(ctx, r.ID, func(agg *models.RideAggregate) error {
		agg.Offers = append(agg.Offers, models.PriceOffer{ID: offerID, RideID: r.ID, Status: models.OfferPending})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	rideID, err := s.RideIDForOffer(ctx, offerID)
	if err != nil || rideID != r.ID {
		t.Fatalf("offer lookup: %v %v", rideID, err)
	}
	if _, err := s.RideIDForOffer(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInsertTransactionSequenceConflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	user := uuid.New()
	if err := s.InsertTransaction(ctx, &models.WalletTransaction{ID: uuid.New(), UserID: user, Seq: 1, Amount: 5}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertTransaction(ctx, &models.WalletTransaction{ID: uuid.New(), UserID: user, Seq: 1, Amount: 7}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateRatingRecomputesStats(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	driver := uuid.New()
	_, _ = s.EnsureUser(ctx, models.User{ID: driver, Role: models.RoleDriver, ReferralCode: "DRV1", Rating: 5})
	for i, score := range []int{5, 4} {
		_, err := s.CreateRating(ctx, &models.Rating{ID: uuid.New(), RideID: uuid.New(), ReviewerID: uuid.New(), ReviewedID: driver, Score: score})
		if err != nil {
			t.Fatalf("rating %d: %v", i, err)
		}
	}
	u, _ := s.GetUser(ctx, driver)
	if u.Rating != 4.5 || u.TotalRides != 2 {
		t.Fatalf("unexpected stats %+v", u)
	}
}

func TestHotZonesGroupsOpenRides(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = s.CreateRide(ctx, newRide(uuid.New(), models.StatusPending))
	}
	other := newRide(uuid.New(), models.StatusNegotiating)
	other.PickupLat, other.PickupLng = -23.60, -46.70
	_ = s.CreateRide(ctx, other)
	_ = s.CreateRide(ctx, newRide(uuid.New(), models.StatusCompleted))

	zones, err := s.HotZones(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(zones) != 2 || zones[0].Demand != 3 || zones[1].Demand != 1 {
		t.Fatalf("unexpected zones %+v", zones)
	}
}

func TestLeaderboardRanksDrivers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	complete := func(driver uuid.UUID, price float64) {
		r := newRide(uuid.New(), models.StatusCompleted)
		r.DriverID = &driver
		r.FinalPrice = &price
		_ = s.CreateRide(ctx, r)
	}
	complete(a, 10)
	complete(b, 30)
	complete(b, 5)

	rides, _ := s.Leaderboard(ctx, models.LeaderboardRides, 10)
	if len(rides) != 2 || rides[0].UserID != b || rides[0].Score != 2 || rides[0].Rank != 1 {
		t.Fatalf("rides board: %+v", rides)
	}
	earnings, _ := s.Leaderboard(ctx, models.LeaderboardEarnings, 1)
	if len(earnings) != 1 || earnings[0].Score != 35 {
		t.Fatalf("earnings board: %+v", earnings)
	}
}

func TestCompleteReferralOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ref := &models.Referral{ID: uuid.New(), ReferrerID: uuid.New(), ReferredID: uuid.New(), Code: "ABC"}
	_ = s.CreateReferral(ctx, ref)
	if err := s.CreateReferral(ctx, &models.Referral{ID: uuid.New(), ReferredID: ref.ReferredID}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	first, _ := s.CompleteReferral(ctx, ref.ID, time.Now())
	second, _ := s.CompleteReferral(ctx, ref.ID, time.Now())
	if !first || second {
		t.Fatalf("expected exactly one completion, got %v %v", first, second)
	}
}
