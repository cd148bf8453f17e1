// Package postgres implements the ride ledger and driver registry store
// contracts on PostgreSQL. Status transitions are single conditional
// UPDATE statements so that exactly one of any number of concurrent
// callers observes a successful write.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cityhop/ride-hailing/internal/domain/ride"
)

// RideRepository is a PostgreSQL-backed ride ledger
type RideRepository struct {
	db *sql.DB
}

// NewRideRepository creates a ride repository on the given pool
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{db: db}
}

const rideColumns = `
	id, rider_id, driver_id, status,
	pickup_latitude, pickup_longitude, pickup_address,
	dest_latitude, dest_longitude, dest_address,
	requested_at, accepted_at, picked_up_at, in_transit_at, completed_at, cancelled_at,
	cancelled_by, cancellation_reason,
	fare, distance, duration, rating, feedback,
	created_at, updated_at`

func (s *RideRepository) Create(ctx context.Context, r *ride.Ride) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rides (
			id, rider_id, status,
			pickup_latitude, pickup_longitude, pickup_address,
			dest_latitude, dest_longitude, dest_address,
			requested_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		r.ID, r.RiderID, r.Status,
		r.Pickup.Latitude, r.Pickup.Longitude, r.Pickup.Address,
		r.Destination.Latitude, r.Destination.Longitude, r.Destination.Address,
		r.RequestedAt, r.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ride.ErrRiderActive
	}
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ride_status_events (ride_id, status, actor_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		r.ID, r.Status, r.RiderID, r.RequestedAt,
	)
	if err != nil {
		return fmt.Errorf("insert status event: %w", err)
	}

	return tx.Commit()
}

func (s *RideRepository) GetByID(ctx context.Context, id uuid.UUID) (*ride.Ride, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
	return scanRide(row)
}

func (s *RideRepository) History(ctx context.Context, id uuid.UUID) ([]ride.StatusChange, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM rides WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ride.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, actor_id, created_at
		FROM ride_status_events
		WHERE ride_id = $1
		ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []ride.StatusChange
	for rows.Next() {
		var c ride.StatusChange
		if err := rows.Scan(&c.Status, &c.ActorID, &c.Timestamp); err != nil {
			return nil, err
		}
		history = append(history, c)
	}
	return history, rows.Err()
}

func (s *RideRepository) Accept(ctx context.Context, rideID, driverID uuid.UUID, at time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE rides
		SET driver_id = $2,
		    status = 'accepted',
		    accepted_at = $3,
		    updated_at = $3
		WHERE id = $1 AND status = 'requested' AND driver_id IS NULL`,
		rideID, driverID, at,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		// idx_rides_driver_active: the driver already holds an active ride
		return false, ride.ErrDriverActive
	}
	if err != nil {
		return false, fmt.Errorf("accept ride: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, s.notFoundOrLost(ctx, rideID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ride_status_events (ride_id, status, actor_id, created_at)
		VALUES ($1, 'accepted', $2, $3)`,
		rideID, driverID, at,
	)
	if err != nil {
		return false, fmt.Errorf("insert status event: %w", err)
	}

	return true, tx.Commit()
}

func (s *RideRepository) Transition(ctx context.Context, rideID uuid.UUID, from ride.Status, upd ride.TransitionUpdate) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE rides
		SET status = $3,
		    updated_at = $4,
		    picked_up_at  = CASE WHEN $3 = 'picked_up'  THEN $4 ELSE picked_up_at END,
		    in_transit_at = CASE WHEN $3 = 'in_transit' THEN $4 ELSE in_transit_at END,
		    completed_at  = CASE WHEN $3 = 'completed'  THEN $4 ELSE completed_at END,
		    cancelled_at  = CASE WHEN $3 = 'cancelled'  THEN $4 ELSE cancelled_at END,
		    fare     = CASE WHEN $3 = 'completed' THEN $5 ELSE fare END,
		    distance = CASE WHEN $3 = 'completed' THEN $6 ELSE distance END,
		    duration = CASE WHEN $3 = 'completed' THEN $7 ELSE duration END,
		    cancelled_by        = CASE WHEN $3 = 'cancelled' THEN $8 ELSE cancelled_by END,
		    cancellation_reason = CASE WHEN $3 = 'cancelled' THEN $9 ELSE cancellation_reason END
		WHERE id = $1 AND status = $2`,
		rideID, from, upd.To, upd.At,
		upd.Fare, upd.Distance, upd.Duration,
		upd.CancelledBy, upd.Reason,
	)
	if err != nil {
		return false, fmt.Errorf("transition ride: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, s.notFoundOrLost(ctx, rideID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ride_status_events (ride_id, status, actor_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		rideID, upd.To, upd.ActorID, upd.At,
	)
	if err != nil {
		return false, fmt.Errorf("insert status event: %w", err)
	}

	return true, tx.Commit()
}

func (s *RideRepository) SetRating(ctx context.Context, rideID uuid.UUID, rating int, feedback string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rides
		SET rating = $2, feedback = $3, updated_at = NOW()
		WHERE id = $1 AND rating IS NULL`,
		rideID, rating, feedback,
	)
	if err != nil {
		return false, fmt.Errorf("set rating: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, s.notFoundOrLost(ctx, rideID)
	}
	return true, nil
}

func (s *RideRepository) GetActiveByRider(ctx context.Context, riderID uuid.UUID) (*ride.Ride, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE rider_id = $1 AND status IN ('requested', 'accepted', 'picked_up', 'in_transit')
		LIMIT 1`, riderID)
	return scanRide(row)
}

func (s *RideRepository) GetActiveByDriver(ctx context.Context, driverID uuid.UUID) (*ride.Ride, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE driver_id = $1 AND status IN ('accepted', 'picked_up', 'in_transit')
		LIMIT 1`, driverID)
	return scanRide(row)
}

func (s *RideRepository) ListByRider(ctx context.Context, riderID uuid.UUID) ([]*ride.Ride, error) {
	return s.queryRides(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE rider_id = $1
		ORDER BY created_at DESC`, riderID)
}

func (s *RideRepository) ListByDriver(ctx context.Context, driverID uuid.UUID) ([]*ride.Ride, error) {
	return s.queryRides(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE driver_id = $1
		ORDER BY created_at DESC`, driverID)
}

func (s *RideRepository) ListAll(ctx context.Context) ([]*ride.Ride, error) {
	return s.queryRides(ctx, `SELECT `+rideColumns+` FROM rides ORDER BY created_at DESC`)
}

func (s *RideRepository) ListRequested(ctx context.Context, limit int) ([]*ride.Ride, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryRides(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE status = 'requested' AND driver_id IS NULL
		ORDER BY requested_at ASC
		LIMIT $1`, limit)
}

func (s *RideRepository) CompletedRatings(ctx context.Context, driverID uuid.UUID) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rating FROM rides
		WHERE driver_id = $1 AND status = 'completed' AND rating IS NOT NULL`, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ratings []int
	for rows.Next() {
		var r int
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		ratings = append(ratings, r)
	}
	return ratings, rows.Err()
}

func (s *RideRepository) CompletedByDriver(ctx context.Context, driverID uuid.UUID) ([]*ride.Ride, error) {
	return s.queryRides(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE driver_id = $1 AND status = 'completed'
		ORDER BY completed_at DESC`, driverID)
}

// notFoundOrLost distinguishes an absent ride from a lost conditional
// update: nil means the ride exists and the caller simply lost the race.
func (s *RideRepository) notFoundOrLost(ctx context.Context, rideID uuid.UUID) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM rides WHERE id = $1)`, rideID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ride.ErrNotFound
	}
	return nil
}

func (s *RideRepository) queryRides(ctx context.Context, query string, args ...interface{}) ([]*ride.Ride, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*ride.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, r)
	}
	return rides, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRide(row rowScanner) (*ride.Ride, error) {
	var (
		r           ride.Ride
		driverID    sql.NullString
		cancelledBy sql.NullString
		acceptedAt  sql.NullTime
		pickedUpAt  sql.NullTime
		inTransitAt sql.NullTime
		completedAt sql.NullTime
		cancelledAt sql.NullTime
		fare        sql.NullFloat64
		distance    sql.NullFloat64
		duration    sql.NullInt64
		rating      sql.NullInt64
	)

	err := row.Scan(
		&r.ID, &r.RiderID, &driverID, &r.Status,
		&r.Pickup.Latitude, &r.Pickup.Longitude, &r.Pickup.Address,
		&r.Destination.Latitude, &r.Destination.Longitude, &r.Destination.Address,
		&r.RequestedAt, &acceptedAt, &pickedUpAt, &inTransitAt, &completedAt, &cancelledAt,
		&cancelledBy, &r.CancellationReason,
		&fare, &distance, &duration, &rating, &r.Feedback,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ride.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if driverID.Valid {
		id, err := uuid.Parse(driverID.String)
		if err != nil {
			return nil, fmt.Errorf("parse driver id: %w", err)
		}
		r.DriverID = &id
	}
	if cancelledBy.Valid {
		id, err := uuid.Parse(cancelledBy.String)
		if err != nil {
			return nil, fmt.Errorf("parse cancelled_by: %w", err)
		}
		r.CancelledBy = &id
	}
	r.AcceptedAt = timePtr(acceptedAt)
	r.PickedUpAt = timePtr(pickedUpAt)
	r.InTransitAt = timePtr(inTransitAt)
	r.CompletedAt = timePtr(completedAt)
	r.CancelledAt = timePtr(cancelledAt)
	if fare.Valid {
		r.Fare = &fare.Float64
	}
	if distance.Valid {
		r.Distance = &distance.Float64
	}
	if duration.Valid {
		d := int(duration.Int64)
		r.Duration = &d
	}
	if rating.Valid {
		v := int(rating.Int64)
		r.Rating = &v
	}
	return &r, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
