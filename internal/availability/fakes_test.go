package availability

import (
	"context"
	"errors"
	"strings"
	"time"
)

type fakeRules struct {
	readFn func(ctx context.Context, ownerID string, from, to time.Time) ([]AvailabilityRule, error)
	hasFn  func(ctx context.Context, ownerID string) (bool, error)
}

func (f *fakeRules) ReadAvailabilityRules(ctx context.Context, ownerID string, from, to time.Time) ([]AvailabilityRule, error) {
	if f.readFn == nil {
		panic("ReadAvailabilityRules not configured")
	}
	return f.readFn(ctx, ownerID, from, to)
}

func (f *fakeRules) HasAvailabilityRules(ctx context.Context, ownerID string) (bool, error) {
	if f.hasFn == nil {
		panic("HasAvailabilityRules not configured")
	}
	return f.hasFn(ctx, ownerID)
}

type fakeBookings struct {
	readFn func(ctx context.Context, hostID string, from, to time.Time, statuses []BookingStatus) ([]Booking, error)
}

func (f *fakeBookings) ReadBookings(ctx context.Context, hostID string, from, to time.Time, statuses []BookingStatus) ([]Booking, error) {
	if f.readFn == nil {
		panic("ReadBookings not configured")
	}
	return f.readFn(ctx, hostID, from, to, statuses)
}

type fakeIntegrations struct {
	readFn func(ctx context.Context, ownerID string) ([]CalendarIntegration, error)
}

func (f *fakeIntegrations) ReadActiveIntegrations(ctx context.Context, ownerID string) ([]CalendarIntegration, error) {
	if f.readFn == nil {
		panic("ReadActiveIntegrations not configured")
	}
	return f.readFn(ctx, ownerID)
}

// prefixDecrypter strips "enc:" and rejects anything else.
type prefixDecrypter struct{}

func (prefixDecrypter) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, "enc:") {
		return "", errors.New("cipher: message authentication failed")
	}
	return strings.TrimPrefix(ciphertext, "enc:"), nil
}

type listerFunc func(ctx context.Context, credential, calendarID string, start, end time.Time) ([]NormalizedEvent, error)

func (f listerFunc) ListEvents(ctx context.Context, credential, calendarID string, start, end time.Time) ([]NormalizedEvent, error) {
	return f(ctx, credential, calendarID, start, end)
}

func staticRules(rules ...AvailabilityRule) *fakeRules {
	return &fakeRules{
		readFn: func(ctx context.Context, ownerID string, from, to time.Time) ([]AvailabilityRule, error) {
			return rules, nil
		},
		hasFn: func(ctx context.Context, ownerID string) (bool, error) {
			return len(rules) > 0, nil
		},
	}
}

func staticBookings(bookings ...Booking) *fakeBookings {
	return &fakeBookings{
		readFn: func(ctx context.Context, hostID string, from, to time.Time, statuses []BookingStatus) ([]Booking, error) {
			return bookings, nil
		},
	}
}

func staticIntegrations(integrations ...CalendarIntegration) *fakeIntegrations {
	return &fakeIntegrations{
		readFn: func(ctx context.Context, ownerID string) ([]CalendarIntegration, error) {
			return integrations, nil
		},
	}
}

func intPtr(v int) *int { return &v }

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func weekly(day time.Weekday, start, end string) AvailabilityRule {
	return AvailabilityRule{
		ID:        int64(day) + 1,
		OwnerID:   "host-1",
		Kind:      RuleKindRecurring,
		DayOfWeek: intPtr(int(day)),
		StartTime: start,
		EndTime:   end,
		Timezone:  "UTC",
	}
}
