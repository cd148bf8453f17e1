package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cityhop/ride-hailing/internal/domain/driver"
)

// DriverRepository is a PostgreSQL-backed driver registry
type DriverRepository struct {
	db *sql.DB
}

// NewDriverRepository creates a driver repository on the given pool
func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{db: db}
}

const driverColumns = `
	user_id, online_status,
	current_latitude, current_longitude, current_address, current_ride_id,
	total_rides, completed_rides, cancelled_rides, total_earnings, average_rating, online_hours,
	last_online_at, last_offline_at, created_at, updated_at`

func (s *DriverRepository) Create(ctx context.Context, p *driver.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drivers (user_id, online_status, created_at, updated_at)
		VALUES ($1, $2, $3, $3)`,
		p.UserID, p.OnlineStatus, p.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return driver.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert driver: %w", err)
	}
	return nil
}

func (s *DriverRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*driver.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE user_id = $1`, userID)
	p, err := scanDriver(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ride_id, type, amount, description, date
		FROM driver_earnings
		WHERE driver_id = $1
		ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e      driver.Earning
			rideID sql.NullString
		)
		if err := rows.Scan(&rideID, &e.Type, &e.Amount, &e.Description, &e.Date); err != nil {
			return nil, err
		}
		if rideID.Valid {
			id, err := uuid.Parse(rideID.String)
			if err != nil {
				return nil, fmt.Errorf("parse earning ride id: %w", err)
			}
			e.RideID = &id
		}
		p.Earnings = append(p.Earnings, e)
	}
	return p, rows.Err()
}

func (s *DriverRepository) SetOnline(ctx context.Context, userID uuid.UUID, loc driver.Location, at time.Time) error {
	return s.exec(ctx, `
		UPDATE drivers
		SET online_status = 'online',
		    current_latitude = $2,
		    current_longitude = $3,
		    current_address = $4,
		    last_online_at = $5,
		    updated_at = $5
		WHERE user_id = $1`,
		userID, loc.Latitude, loc.Longitude, loc.Address, at)
}

func (s *DriverRepository) SetOffline(ctx context.Context, userID uuid.UUID, at time.Time, hoursDelta float64) error {
	return s.exec(ctx, `
		UPDATE drivers
		SET online_status = 'offline',
		    last_offline_at = $2,
		    online_hours = online_hours + $3,
		    updated_at = $2
		WHERE user_id = $1`,
		userID, at, hoursDelta)
}

func (s *DriverRepository) UpdateLocation(ctx context.Context, userID uuid.UUID, loc driver.Location) error {
	return s.exec(ctx, `
		UPDATE drivers
		SET current_latitude = $2, current_longitude = $3, current_address = $4, updated_at = NOW()
		WHERE user_id = $1`,
		userID, loc.Latitude, loc.Longitude, loc.Address)
}

func (s *DriverRepository) SetCurrentRide(ctx context.Context, userID, rideID uuid.UUID) error {
	return s.exec(ctx, `
		UPDATE drivers SET current_ride_id = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, rideID)
}

func (s *DriverRepository) ClearCurrentRide(ctx context.Context, userID, rideID uuid.UUID) error {
	// conditional on the pointer still naming this ride; a retried clear
	// after a newer assignment is a no-op
	res, err := s.db.ExecContext(ctx, `
		UPDATE drivers SET current_ride_id = NULL, updated_at = NOW()
		WHERE user_id = $1 AND current_ride_id = $2`,
		userID, rideID)
	if err != nil {
		return fmt.Errorf("clear current ride: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.ensureExists(ctx, userID)
	}
	return nil
}

func (s *DriverRepository) AppendEarning(ctx context.Context, userID uuid.UUID, e driver.Earning) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var rideID interface{}
	if e.RideID != nil {
		rideID = *e.RideID
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO driver_earnings (driver_id, ride_id, type, amount, description, date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (driver_id, ride_id, type) WHERE ride_id IS NOT NULL DO NOTHING`,
		userID, rideID, e.Type, e.Amount, e.Description, e.Date,
	)
	if err != nil {
		return false, fmt.Errorf("insert earning: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// duplicate ride payout, already recorded
		return false, nil
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE drivers SET total_earnings = total_earnings + $2, updated_at = NOW()
		WHERE user_id = $1`,
		userID, e.Amount,
	)
	if err != nil {
		return false, fmt.Errorf("increment earnings: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return false, driver.ErrNotFound
	}

	return true, tx.Commit()
}

func (s *DriverRepository) IncrementStats(ctx context.Context, userID uuid.UUID, delta driver.StatsDelta) error {
	return s.exec(ctx, `
		UPDATE drivers
		SET total_rides     = total_rides + $2,
		    completed_rides = completed_rides + $3,
		    cancelled_rides = cancelled_rides + $4,
		    total_earnings  = total_earnings + $5,
		    online_hours    = online_hours + $6,
		    updated_at      = NOW()
		WHERE user_id = $1`,
		userID, delta.TotalRides, delta.CompletedRides, delta.CancelledRides,
		delta.TotalEarnings, delta.OnlineHours)
}

func (s *DriverRepository) SetStats(ctx context.Context, userID uuid.UUID, stats driver.Stats) error {
	return s.exec(ctx, `
		UPDATE drivers
		SET total_rides = $2, completed_rides = $3, cancelled_rides = $4,
		    total_earnings = $5, average_rating = $6, online_hours = $7,
		    updated_at = NOW()
		WHERE user_id = $1`,
		userID, stats.TotalRides, stats.CompletedRides, stats.CancelledRides,
		stats.TotalEarnings, stats.AverageRating, stats.OnlineHours)
}

func (s *DriverRepository) SetAverageRating(ctx context.Context, userID uuid.UUID, avg float64) error {
	return s.exec(ctx, `
		UPDATE drivers SET average_rating = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, avg)
}

func (s *DriverRepository) ListAll(ctx context.Context) ([]*driver.Profile, error) {
	return s.queryDrivers(ctx, `SELECT `+driverColumns+` FROM drivers ORDER BY created_at DESC`)
}

func (s *DriverRepository) ListOnline(ctx context.Context) ([]*driver.Profile, error) {
	return s.queryDrivers(ctx, `
		SELECT `+driverColumns+` FROM drivers
		WHERE online_status = 'online'
		ORDER BY created_at DESC`)
}

func (s *DriverRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drivers WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete driver: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return driver.ErrNotFound
	}
	return nil
}

func (s *DriverRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return driver.ErrNotFound
	}
	return nil
}

func (s *DriverRepository) ensureExists(ctx context.Context, userID uuid.UUID) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM drivers WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return driver.ErrNotFound
	}
	return nil
}

func (s *DriverRepository) queryDrivers(ctx context.Context, query string, args ...interface{}) ([]*driver.Profile, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*driver.Profile
	for rows.Next() {
		p, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func scanDriver(row rowScanner) (*driver.Profile, error) {
	var (
		p             driver.Profile
		lat, lng      sql.NullFloat64
		address       sql.NullString
		currentRide   sql.NullString
		lastOnlineAt  sql.NullTime
		lastOfflineAt sql.NullTime
	)

	err := row.Scan(
		&p.UserID, &p.OnlineStatus,
		&lat, &lng, &address, &currentRide,
		&p.Stats.TotalRides, &p.Stats.CompletedRides, &p.Stats.CancelledRides,
		&p.Stats.TotalEarnings, &p.Stats.AverageRating, &p.Stats.OnlineHours,
		&lastOnlineAt, &lastOfflineAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, driver.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if lat.Valid && lng.Valid {
		p.CurrentLocation = &driver.Location{
			Latitude:  lat.Float64,
			Longitude: lng.Float64,
			Address:   address.String,
		}
	}
	if currentRide.Valid {
		id, err := uuid.Parse(currentRide.String)
		if err != nil {
			return nil, fmt.Errorf("parse current ride id: %w", err)
		}
		p.CurrentRideID = &id
	}
	p.LastOnlineAt = timePtr(lastOnlineAt)
	p.LastOfflineAt = timePtr(lastOfflineAt)
	return &p, nil
}
