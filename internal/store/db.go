// Package store reads availability rules, bookings and calendar integrations
// from Postgres.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"availability-service/internal/availability"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return pool, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

const ruleColumns = `id, owner_id, kind, day_of_week, specific_date,
	start_time::text, end_time::text, COALESCE(timezone, ''), blocked, COALESCE(block_reason, ''),
	created_at, updated_at`

// ReadAvailabilityRules returns the owner's recurring rules plus any
// date-bound rules whose date falls in [from, to).
func (p *Postgres) ReadAvailabilityRules(ctx context.Context, ownerID string, from, to time.Time) ([]availability.AvailabilityRule, error) {
	q := `SELECT ` + ruleColumns + `
	      FROM availability_rules
	      WHERE owner_id=$1
	        AND (specific_date IS NULL OR (specific_date >= $2::date AND specific_date < $3::date))
	      ORDER BY id`
	return p.queryRules(ctx, q, ownerID, from.UTC(), to.UTC())
}

// HasAvailabilityRules reports whether the owner has configured any rule.
func (p *Postgres) HasAvailabilityRules(ctx context.Context, ownerID string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM availability_rules WHERE owner_id=$1)`, ownerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check availability rules: %w", err)
	}
	return exists, nil
}

// ListAvailabilityRules returns every rule of the owner.
func (p *Postgres) ListAvailabilityRules(ctx context.Context, ownerID string) ([]availability.AvailabilityRule, error) {
	q := `SELECT ` + ruleColumns + ` FROM availability_rules WHERE owner_id=$1 ORDER BY id`
	return p.queryRules(ctx, q, ownerID)
}

func (p *Postgres) queryRules(ctx context.Context, q string, args ...any) ([]availability.AvailabilityRule, error) {
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query availability rules: %w", err)
	}
	defer rows.Close()

	out := []availability.AvailabilityRule{}
	for rows.Next() {
		var (
			r    availability.AvailabilityRule
			kind string
		)
		if err := rows.Scan(&r.ID, &r.OwnerID, &kind, &r.DayOfWeek, &r.SpecificDate,
			&r.StartTime, &r.EndTime, &r.Timezone, &r.Blocked, &r.BlockReason,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan availability rule: %w", err)
		}
		r.Kind = availability.RuleKind(kind)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read availability rules: %w", err)
	}
	return out, nil
}

// ReadBookings returns the host's bookings in one of statuses that overlap
// [from, to).
func (p *Postgres) ReadBookings(ctx context.Context, hostID string, from, to time.Time, statuses []availability.BookingStatus) ([]availability.Booking, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}

	q := `SELECT id, host_id, start_at_utc, end_at_utc, status
	      FROM bookings
	      WHERE host_id=$1 AND start_at_utc < $3 AND end_at_utc > $2 AND status = ANY($4)
	      ORDER BY start_at_utc`
	rows, err := p.pool.Query(ctx, q, hostID, from.UTC(), to.UTC(), names)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var out []availability.Booking
	for rows.Next() {
		var (
			b      availability.Booking
			status string
		)
		if err := rows.Scan(&b.ID, &b.HostID, &b.Start, &b.End, &status); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		b.Status = availability.BookingStatus(status)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read bookings: %w", err)
	}
	return out, nil
}

// ReadActiveIntegrations returns the owner's active calendar integrations.
// Conflict detection eligibility is decided by the caller.
func (p *Postgres) ReadActiveIntegrations(ctx context.Context, ownerID string) ([]availability.CalendarIntegration, error) {
	q := `SELECT id, owner_id, name, provider, encrypted_credential, COALESCE(calendar_id, ''),
	             is_active, conflict_detection_enabled
	      FROM calendar_integrations
	      WHERE owner_id=$1 AND is_active
	      ORDER BY created_at, id`
	rows, err := p.pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query calendar integrations: %w", err)
	}
	defer rows.Close()

	var out []availability.CalendarIntegration
	for rows.Next() {
		var (
			in       availability.CalendarIntegration
			provider string
		)
		if err := rows.Scan(&in.ID, &in.OwnerID, &in.Name, &provider, &in.EncryptedCredential,
			&in.CalendarID, &in.IsActive, &in.ConflictDetectionEnabled); err != nil {
			return nil, fmt.Errorf("scan calendar integration: %w", err)
		}
		in.Provider = availability.Provider(provider)
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read calendar integrations: %w", err)
	}
	return out, nil
}
