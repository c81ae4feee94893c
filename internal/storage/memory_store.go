package storage

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/money"
)

// MemoryStore implements Store in process memory. A single mutex serializes
// every operation, which gives UpdateRide the same all-or-nothing behavior as
// the Postgres transaction.
type MemoryStore struct {
	mu            sync.Mutex
	users         map[uuid.UUID]models.User
	rides         map[uuid.UUID]models.Ride
	offers        map[uuid.UUID][]models.PriceOffer
	offerRide     map[uuid.UUID]uuid.UUID
	wallet        map[uuid.UUID][]models.WalletTransaction
	ratings       []models.Rating
	notifications []models.Notification
	referrals     []models.Referral
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[uuid.UUID]models.User),
		rides:     make(map[uuid.UUID]models.Ride),
		offers:    make(map[uuid.UUID][]models.PriceOffer),
		offerRide: make(map[uuid.UUID]uuid.UUID),
		wallet:    make(map[uuid.UUID][]models.WalletTransaction),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateRide(_ context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; ok {
		return ErrConflict
	}
	m.rides[r.ID] = *r
	return nil
}

func (m *MemoryStore) GetRide(_ context.Context, id uuid.UUID) (models.RideAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aggregate(id)
}

func (m *MemoryStore) aggregate(id uuid.UUID) (models.RideAggregate, error) {
	r, ok := m.rides[id]
	if !ok {
		return models.RideAggregate{}, ErrNotFound
	}
	offers := make([]models.PriceOffer, len(m.offers[id]))
	copy(offers, m.offers[id])
	return models.RideAggregate{Ride: r, Offers: offers}, nil
}

func (m *MemoryStore) RideIDForOffer(_ context.Context, offerID uuid.UUID) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.offerRide[offerID]
	if !ok {
		return uuid.Nil, ErrNotFound
	}
	return id, nil
}

func (m *MemoryStore) UpdateRide(_ context.Context, id uuid.UUID, fn RideMutator) (models.RideAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agg, err := m.aggregate(id)
	if err != nil {
		return models.RideAggregate{}, err
	}
	if err := fn(&agg); err != nil {
		return models.RideAggregate{}, err
	}
	m.rides[id] = agg.Ride
	offers := make([]models.PriceOffer, len(agg.Offers))
	copy(offers, agg.Offers)
	m.offers[id] = offers
	for _, o := range offers {
		m.offerRide[o.ID] = id
	}
	return agg, nil
}

func (m *MemoryStore) CountCompletedRides(_ context.Context, passengerID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rides {
		if r.PassengerID == passengerID && r.Status == models.StatusCompleted {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) EnsureUser(_ context.Context, u models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[u.ID]; ok {
		return existing, nil
	}
	for _, other := range m.users {
		if other.ReferralCode == u.ReferralCode {
			return models.User{}, ErrConflict
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *MemoryStore) GetUser(_ context.Context, id uuid.UUID) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) GetUserByReferralCode(_ context.Context, code string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ReferralCode == code {
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (m *MemoryStore) LatestTransaction(_ context.Context, userID uuid.UUID) (models.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.wallet[userID]
	if len(rows) == 0 {
		return models.WalletTransaction{}, ErrNotFound
	}
	return rows[len(rows)-1], nil
}

func (m *MemoryStore) InsertTransaction(_ context.Context, tx *models.WalletTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.wallet[tx.UserID]
	// rows hold seq 1..n in order
	if tx.Seq != int64(len(rows))+1 {
		return ErrConflict
	}
	m.wallet[tx.UserID] = append(rows, *tx)
	return nil
}

func (m *MemoryStore) ListTransactions(_ context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.wallet[userID]
	out := make([]models.WalletTransaction, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, rows[i])
	}
	return out, nil
}

func (m *MemoryStore) CreateRating(_ context.Context, r *models.Rating) (models.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.ratings {
		if existing.RideID == r.RideID && existing.ReviewerID == r.ReviewerID {
			return models.UserStats{}, ErrConflict
		}
	}
	m.ratings = append(m.ratings, *r)

	var sum, n int
	for _, existing := range m.ratings {
		if existing.ReviewedID == r.ReviewedID {
			sum += existing.Score
			n++
		}
	}
	stats := models.UserStats{UserID: r.ReviewedID, Rating: money.Round(float64(sum) / float64(n)), TotalRides: n}
	if u, ok := m.users[r.ReviewedID]; ok {
		u.Rating = stats.Rating
		u.TotalRides = stats.TotalRides
		m.users[r.ReviewedID] = u
	}
	return stats, nil
}

func (m *MemoryStore) CreateNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, *n)
	return nil
}

func (m *MemoryStore) ListNotifications(_ context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Notification, 0)
	for i := len(m.notifications) - 1; i >= 0; i-- {
		n := m.notifications[i]
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *MemoryStore) MarkNotificationRead(_ context.Context, userID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		if m.notifications[i].ID == id && m.notifications[i].UserID == userID {
			m.notifications[i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) CreateReferral(_ context.Context, ref *models.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.referrals {
		if existing.ReferredID == ref.ReferredID {
			return ErrConflict
		}
	}
	m.referrals = append(m.referrals, *ref)
	return nil
}

func (m *MemoryStore) PendingReferral(_ context.Context, referredID uuid.UUID) (models.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ref := range m.referrals {
		if ref.ReferredID == referredID && !ref.Completed {
			return ref, nil
		}
	}
	return models.Referral{}, ErrNotFound
}

func (m *MemoryStore) CompleteReferral(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.referrals {
		if m.referrals[i].ID != id {
			continue
		}
		if m.referrals[i].Completed {
			return false, nil
		}
		m.referrals[i].Completed = true
		m.referrals[i].CompletedAt = &at
		return true, nil
	}
	return false, ErrNotFound
}

func (m *MemoryStore) ReopenReferral(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.referrals {
		ref := &m.referrals[i]
		if ref.ID != id {
			continue
		}
		if ref.Completed && ref.CompletedAt != nil && ref.CompletedAt.Equal(at) {
			ref.Completed = false
			ref.CompletedAt = nil
		}
		return nil
	}
	return ErrNotFound
}

func (m *MemoryStore) HotZones(_ context.Context, since time.Time, limit int) ([]models.HotZone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type cell struct{ lat, lng float64 }
	counts := make(map[cell]int)
	for _, r := range m.rides {
		if !r.Status.OpenForOffers() || r.CreatedAt.Before(since) {
			continue
		}
		c := cell{snap(r.PickupLat), snap(r.PickupLng)}
		counts[c]++
	}
	out := make([]models.HotZone, 0, len(counts))
	for c, n := range counts {
		out = append(out, models.HotZone{Lat: c.lat, Lon: c.lng, Demand: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Demand != out[j].Demand {
			return out[i].Demand > out[j].Demand
		}
		if out[i].Lat != out[j].Lat {
			return out[i].Lat < out[j].Lat
		}
		return out[i].Lon < out[j].Lon
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// snap rounds v to its hot zone cell, matching ROUND(v, 2) in Postgres.
func snap(v float64) float64 {
	cells := 1 / HotZoneCell
	return math.Round(v*cells) / cells
}

func (m *MemoryStore) Leaderboard(_ context.Context, category models.LeaderboardCategory, limit int) ([]models.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	scores := make(map[uuid.UUID]float64)
	switch category {
	case models.LeaderboardRides, models.LeaderboardEarnings:
		for _, r := range m.rides {
			if r.Status != models.StatusCompleted || r.DriverID == nil {
				continue
			}
			if category == models.LeaderboardRides {
				scores[*r.DriverID]++
			} else if r.FinalPrice != nil {
				scores[*r.DriverID] = money.Add(scores[*r.DriverID], *r.FinalPrice)
			}
		}
	case models.LeaderboardRating:
		for _, u := range m.users {
			if u.Role == models.RoleDriver && u.TotalRides > 0 {
				scores[u.ID] = u.Rating
			}
		}
	}
	out := make([]models.LeaderboardEntry, 0, len(scores))
	for id, s := range scores {
		out = append(out, models.LeaderboardEntry{UserID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}
