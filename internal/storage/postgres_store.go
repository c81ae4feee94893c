package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/example/ride-negotiation/internal/models"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PostgresStore{db: db, logger: logger}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
	}
	return err
}

const rideColumns = `id, passenger_id, driver_id, pickup_lat, pickup_lng, pickup_address,
	dropoff_lat, dropoff_lng, dropoff_address, vehicle_type, distance_km, duration_minutes,
	suggested_price, offered_price, final_price, payment_method, status, cancelled_by,
	cancellation_reason, cancellation_fee, fee_settled_at, created_at, updated_at,
	started_at, completed_at, cancelled_at`

const offerColumns = `id, ride_id, driver_id, offered_price, message, status, expires_at, created_at, updated_at`

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	_, err := p.db.NamedExecContext(ctx, insertRideQuery, r)
	return translate(err)
}

const insertRideQuery = `
INSERT INTO rides (` + rideColumns + `) VALUES (
	:id, :passenger_id, :driver_id, :pickup_lat, :pickup_lng, :pickup_address,
	:dropoff_lat, :dropoff_lng, :dropoff_address, :vehicle_type, :distance_km, :duration_minutes,
	:suggested_price, :offered_price, :final_price, :payment_method, :status, :cancelled_by,
	:cancellation_reason, :cancellation_fee, :fee_settled_at, :created_at, :updated_at,
	:started_at, :completed_at, :cancelled_at)`

func (p *PostgresStore) GetRide(ctx context.Context, id uuid.UUID) (models.RideAggregate, error) {
	var agg models.RideAggregate
	if err := p.db.GetContext(ctx, &agg.Ride, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id); err != nil {
		return models.RideAggregate{}, translate(err)
	}
	if err := p.db.SelectContext(ctx, &agg.Offers, selectOffersQuery, id); err != nil {
		return models.RideAggregate{}, translate(err)
	}
	return agg, nil
}

const selectOffersQuery = `SELECT ` + offerColumns + ` FROM price_offers WHERE ride_id = $1 ORDER BY created_at, id`

func (p *PostgresStore) RideIDForOffer(ctx context.Context, offerID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := p.db.GetContext(ctx, &id, `SELECT ride_id FROM price_offers WHERE id = $1`, offerID)
	return id, translate(err)
}

func (p *PostgresStore) UpdateRide(ctx context.Context, id uuid.UUID, fn RideMutator) (models.RideAggregate, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.RideAggregate{}, err
	}
	defer tx.Rollback()

	var agg models.RideAggregate
	if err := tx.GetContext(ctx, &agg.Ride, `SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, id); err != nil {
		return models.RideAggregate{}, translate(err)
	}
	if err := tx.SelectContext(ctx, &agg.Offers, selectOffersQuery, id); err != nil {
		return models.RideAggregate{}, translate(err)
	}

	if err := fn(&agg); err != nil {
		return models.RideAggregate{}, err
	}

	if _, err := tx.NamedExecContext(ctx, updateRideQuery, agg.Ride); err != nil {
		return models.RideAggregate{}, translate(err)
	}
	// existing offers are written before new ones so an offer leaving the
	// pending state frees its slot in price_offers_live_idx first
	for _, o := range agg.Offers {
		if _, err := tx.NamedExecContext(ctx, upsertOfferQuery, o); err != nil {
			return models.RideAggregate{}, translate(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return models.RideAggregate{}, translate(err)
	}
	return agg, nil
}

const updateRideQuery = `
UPDATE rides SET
	driver_id = :driver_id,
	offered_price = :offered_price,
	final_price = :final_price,
	status = :status,
	cancelled_by = :cancelled_by,
	cancellation_reason = :cancellation_reason,
	cancellation_fee = :cancellation_fee,
	fee_settled_at = :fee_settled_at,
	updated_at = :updated_at,
	started_at = :started_at,
	completed_at = :completed_at,
	cancelled_at = :cancelled_at
WHERE id = :id`

const upsertOfferQuery = `
INSERT INTO price_offers (` + offerColumns + `)
VALUES (:id, :ride_id, :driver_id, :offered_price, :message, :status, :expires_at, :created_at, :updated_at)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
WHERE price_offers.status IS DISTINCT FROM EXCLUDED.status`

func (p *PostgresStore) CountCompletedRides(ctx context.Context, passengerID uuid.UUID) (int, error) {
	var n int
	err := p.db.GetContext(ctx, &n, `SELECT count(*) FROM rides WHERE passenger_id = $1 AND status = 'completed'`, passengerID)
	return n, translate(err)
}

func (p *PostgresStore) EnsureUser(ctx context.Context, u models.User) (models.User, error) {
	if _, err := p.db.NamedExecContext(ctx, insertUserQuery, u); err != nil {
		return models.User{}, translate(err)
	}
	return p.GetUser(ctx, u.ID)
}

const insertUserQuery = `
INSERT INTO users (id, role, referral_code, rating, total_rides, created_at)
VALUES (:id, :role, :referral_code, :rating, :total_rides, :created_at)
ON CONFLICT (id) DO NOTHING`

func (p *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	var u models.User
	err := p.db.GetContext(ctx, &u, `SELECT id, role, referral_code, rating, total_rides, created_at FROM users WHERE id = $1`, id)
	return u, translate(err)
}

func (p *PostgresStore) GetUserByReferralCode(ctx context.Context, code string) (models.User, error) {
	var u models.User
	err := p.db.GetContext(ctx, &u, `SELECT id, role, referral_code, rating, total_rides, created_at FROM users WHERE referral_code = $1`, code)
	return u, translate(err)
}

const walletColumns = `id, user_id, seq, amount, type, balance_after, description, reference_id, created_at`

func (p *PostgresStore) LatestTransaction(ctx context.Context, userID uuid.UUID) (models.WalletTransaction, error) {
	var tx models.WalletTransaction
	err := p.db.GetContext(ctx, &tx, `SELECT `+walletColumns+` FROM wallet_transactions WHERE user_id = $1 ORDER BY seq DESC LIMIT 1`, userID)
	return tx, translate(err)
}

func (p *PostgresStore) InsertTransaction(ctx context.Context, tx *models.WalletTransaction) error {
	_, err := p.db.NamedExecContext(ctx, `INSERT INTO wallet_transactions (`+walletColumns+`)
		VALUES (:id, :user_id, :seq, :amount, :type, :balance_after, :description, :reference_id, :created_at)`, tx)
	return translate(err)
}

func (p *PostgresStore) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	out := []models.WalletTransaction{}
	err := p.db.SelectContext(ctx, &out, `SELECT `+walletColumns+` FROM wallet_transactions WHERE user_id = $1 ORDER BY seq DESC LIMIT $2`, userID, limit)
	return out, translate(err)
}

func (p *PostgresStore) CreateRating(ctx context.Context, r *models.Rating) (models.UserStats, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.UserStats{}, err
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, `INSERT INTO ratings (id, ride_id, reviewer_id, reviewed_id, rating, comment, tags, created_at)
		VALUES (:id, :ride_id, :reviewer_id, :reviewed_id, :rating, :comment, :tags, :created_at)`, r); err != nil {
		return models.UserStats{}, translate(err)
	}
	stats := models.UserStats{UserID: r.ReviewedID}
	if err := tx.GetContext(ctx, &stats, recomputeStatsQuery, r.ReviewedID); err != nil {
		return models.UserStats{}, translate(err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET rating = $2, total_rides = $3 WHERE id = $1`,
		r.ReviewedID, stats.Rating, stats.TotalRides); err != nil {
		return models.UserStats{}, translate(err)
	}
	return stats, translate(tx.Commit())
}

const recomputeStatsQuery = `
SELECT $1::uuid AS id, ROUND(AVG(rating)::numeric, 2)::float8 AS rating, COUNT(*)::int AS total_rides
FROM ratings WHERE reviewed_id = $1`

func (p *PostgresStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	_, err := p.db.NamedExecContext(ctx, `INSERT INTO notifications (id, user_id, type, title, message, ride_id, is_read, created_at)
		VALUES (:id, :user_id, :type, :title, :message, :ride_id, :is_read, :created_at)`, n)
	return translate(err)
}

func (p *PostgresStore) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	out := []models.Notification{}
	err := p.db.SelectContext(ctx, &out, `SELECT id, user_id, type, title, message, ride_id, is_read, created_at
		FROM notifications WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC LIMIT $3`, userID, unreadOnly, limit)
	return out, translate(err)
}

func (p *PostgresStore) MarkNotificationRead(ctx context.Context, userID, id uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const referralColumns = `id, referrer_id, referred_id, referral_code, bonus_amount, completed, completed_at, created_at`

func (p *PostgresStore) CreateReferral(ctx context.Context, ref *models.Referral) error {
	_, err := p.db.NamedExecContext(ctx, `INSERT INTO referrals (`+referralColumns+`)
		VALUES (:id, :referrer_id, :referred_id, :referral_code, :bonus_amount, :completed, :completed_at, :created_at)`, ref)
	return translate(err)
}

func (p *PostgresStore) PendingReferral(ctx context.Context, referredID uuid.UUID) (models.Referral, error) {
	var ref models.Referral
	err := p.db.GetContext(ctx, &ref, `SELECT `+referralColumns+` FROM referrals WHERE referred_id = $1 AND NOT completed`, referredID)
	return ref, translate(err)
}

func (p *PostgresStore) CompleteReferral(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE referrals SET completed = true, completed_at = $2 WHERE id = $1 AND NOT completed`, id, at)
	if err != nil {
		return false, translate(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (p *PostgresStore) ReopenReferral(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := p.db.ExecContext(ctx, `UPDATE referrals SET completed = false, completed_at = NULL
		WHERE id = $1 AND completed AND completed_at = $2`, id, at)
	return translate(err)
}

func (p *PostgresStore) HotZones(ctx context.Context, since time.Time, limit int) ([]models.HotZone, error) {
	out := []models.HotZone{}
	err := p.db.SelectContext(ctx, &out, hotZonesQuery, since, limit)
	return out, translate(err)
}

const hotZonesQuery = `
SELECT ROUND(pickup_lat::numeric, 2)::float8 AS lat,
       ROUND(pickup_lng::numeric, 2)::float8 AS lng,
       COUNT(*)::int AS demand
FROM rides
WHERE status IN ('pending', 'negotiating') AND created_at >= $1
GROUP BY 1, 2
ORDER BY demand DESC, lat, lng
LIMIT $2`

func (p *PostgresStore) Leaderboard(ctx context.Context, category models.LeaderboardCategory, limit int) ([]models.LeaderboardEntry, error) {
	var q string
	switch category {
	case models.LeaderboardRides:
		q = `SELECT driver_id AS user_id, COUNT(*)::float8 AS score FROM rides
			WHERE status = 'completed' AND driver_id IS NOT NULL
			GROUP BY driver_id ORDER BY score DESC, user_id LIMIT $1`
	case models.LeaderboardEarnings:
		q = `SELECT driver_id AS user_id, COALESCE(SUM(final_price), 0)::float8 AS score FROM rides
			WHERE status = 'completed' AND driver_id IS NOT NULL
			GROUP BY driver_id ORDER BY score DESC, user_id LIMIT $1`
	case models.LeaderboardRating:
		q = `SELECT id AS user_id, rating AS score FROM users
			WHERE role = 'driver' AND total_rides > 0
			ORDER BY score DESC, user_id LIMIT $1`
	default:
		return nil, fmt.Errorf("unknown leaderboard category %q", category)
	}
	out := []models.LeaderboardEntry{}
	if err := p.db.SelectContext(ctx, &out, q, limit); err != nil {
		return nil, translate(err)
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}
