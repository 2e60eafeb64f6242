package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"availability-service/internal/availability"
)

// Run with AVAILABILITY_TEST_DATABASE_URL pointing at a disposable database.
func openTestStore(t *testing.T) (*Postgres, string) {
	t.Helper()
	url := os.Getenv("AVAILABILITY_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("AVAILABILITY_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, url)
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := Migrate(pool, zap.NewNop()); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	// Re-running is a no-op.
	if err := Migrate(pool, zap.NewNop()); err != nil {
		t.Fatalf("second Migrate error: %v", err)
	}

	owner := "it-" + uuid.NewString()
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = pool.Exec(ctx, `DELETE FROM availability_rules WHERE owner_id=$1`, owner)
		_, _ = pool.Exec(ctx, `DELETE FROM bookings WHERE host_id=$1`, owner)
		_, _ = pool.Exec(ctx, `DELETE FROM calendar_integrations WHERE owner_id=$1`, owner)
	})
	return New(pool), owner
}

func TestPostgres_ReadAvailabilityRules(t *testing.T) {
	s, owner := openTestStore(t)
	ctx := context.Background()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO availability_rules (owner_id, kind, day_of_week, specific_date, start_time, end_time, timezone, blocked, block_reason)
		VALUES ($1, 'recurring', 1, NULL, '09:00', '17:00', 'Europe/Berlin', false, NULL),
		       ($1, 'blocked', NULL, '2025-01-06', '12:00', '13:00', NULL, true, 'lunch'),
		       ($1, 'date_specific', NULL, '2025-03-01', '10:00', '11:00', NULL, false, NULL)`, owner)
	if err != nil {
		t.Fatalf("insert rules: %v", err)
	}

	rules, err := s.ReadAvailabilityRules(ctx, owner, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadAvailabilityRules error: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("len(rules) = %d, want 2 (%+v)", len(rules), rules)
	}
	if rules[0].Kind != availability.RuleKindRecurring || rules[0].DayOfWeek == nil || *rules[0].DayOfWeek != 1 {
		t.Fatalf("rules[0] = %+v", rules[0])
	}
	if rules[0].StartTime != "09:00:00" || rules[0].Timezone != "Europe/Berlin" {
		t.Fatalf("rules[0] times = %s/%s", rules[0].StartTime, rules[0].Timezone)
	}
	if !rules[1].IsBlocking() || rules[1].SpecificDate == nil || rules[1].BlockReason != "lunch" {
		t.Fatalf("rules[1] = %+v", rules[1])
	}

	all, err := s.ListAvailabilityRules(ctx, owner)
	if err != nil {
		t.Fatalf("ListAvailabilityRules error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}

	// Date-bound rules outside the window are filtered out.
	outside, err := s.ReadAvailabilityRules(ctx, owner, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadAvailabilityRules error: %v", err)
	}
	if len(outside) != 1 || outside[0].Kind != availability.RuleKindRecurring {
		t.Fatalf("outside window = %+v, want only the recurring rule", outside)
	}

	has, err := s.HasAvailabilityRules(ctx, owner)
	if err != nil || !has {
		t.Fatalf("HasAvailabilityRules = %v, %v, want true", has, err)
	}
	has, err = s.HasAvailabilityRules(ctx, owner+"-none")
	if err != nil || has {
		t.Fatalf("HasAvailabilityRules(unknown) = %v, %v, want false", has, err)
	}
}

func TestPostgres_ReadBookings(t *testing.T) {
	s, owner := openTestStore(t)
	ctx := context.Background()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO bookings (host_id, start_at_utc, end_at_utc, status)
		VALUES ($1, '2025-01-06T10:00:00Z', '2025-01-06T11:00:00Z', 'CONFIRMED'),
		       ($1, '2025-01-06T11:00:00Z', '2025-01-06T12:00:00Z', 'PENDING'),
		       ($1, '2025-01-06T08:00:00Z', '2025-01-06T09:00:00Z', 'CONFIRMED')`, owner)
	if err != nil {
		t.Fatalf("insert bookings: %v", err)
	}

	got, err := s.ReadBookings(ctx, owner,
		time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 6, 17, 0, 0, 0, time.UTC),
		availability.OccupyingStatuses)
	if err != nil {
		t.Fatalf("ReadBookings error: %v", err)
	}
	if len(got) != 1 || got[0].Status != availability.BookingConfirmed {
		t.Fatalf("bookings = %+v, want the 10:00 CONFIRMED booking", got)
	}
	if got[0].ID == uuid.Nil {
		t.Fatalf("booking id not scanned")
	}
}

func TestPostgres_ReadActiveIntegrations(t *testing.T) {
	s, owner := openTestStore(t)
	ctx := context.Background()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO calendar_integrations (owner_id, name, provider, encrypted_credential, calendar_id, is_active, conflict_detection_enabled)
		VALUES ($1, 'Work', 'google', 'ct-1', 'primary', true, true),
		       ($1, 'Old', 'outlook', 'ct-2', NULL, false, true),
		       ($1, 'Feed', 'ics', 'ct-3', NULL, true, false)`, owner)
	if err != nil {
		t.Fatalf("insert integrations: %v", err)
	}

	got, err := s.ReadActiveIntegrations(ctx, owner)
	if err != nil {
		t.Fatalf("ReadActiveIntegrations error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 active", len(got))
	}
	for _, in := range got {
		if !in.IsActive {
			t.Fatalf("inactive integration returned: %+v", in)
		}
	}
}
