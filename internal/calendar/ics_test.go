package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"availability-service/internal/availability"
)

func icsFeed(lines ...string) string {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR")
	return strings.Join(all, "\r\n") + "\r\n"
}

var sampleFeed = icsFeed(
	"BEGIN:VEVENT",
	"UID:single",
	"SUMMARY:Dentist",
	"LOCATION:Main St",
	"DTSTART:20250106T100000Z",
	"DTEND:20250106T110000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:cancelled",
	"SUMMARY:Dropped",
	"STATUS:CANCELLED",
	"DTSTART:20250106T120000Z",
	"DTEND:20250106T130000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:free",
	"SUMMARY:Focus",
	"TRANSP:TRANSPARENT",
	"DTSTART:20250106T140000Z",
	"DTEND:20250106T150000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:booked",
	"SUMMARY:Client call",
	"X-BOOKING-ID:bk-42",
	"DTSTART;TZID=America/New_York:20250106T090000",
	"DURATION:PT30M",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:allday",
	"SUMMARY:Holiday",
	"DTSTART;VALUE=DATE:20250107",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:weekly",
	"SUMMARY:Standup",
	"DTSTART:20241230T090000Z",
	"DTEND:20241230T091500Z",
	"RRULE:FREQ=WEEKLY;COUNT=4",
	"EXDATE:20250113T090000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:old",
	"SUMMARY:Last year",
	"DTSTART:20240106T100000Z",
	"DTEND:20240106T110000Z",
	"END:VEVENT",
)

func eventsByID(t *testing.T, feed string, start, end time.Time) map[string]availability.NormalizedEvent {
	t.Helper()
	events, err := ParseICS(strings.NewReader(feed), start, end)
	if err != nil {
		t.Fatalf("ParseICS error: %v", err)
	}
	out := make(map[string]availability.NormalizedEvent, len(events))
	for _, ev := range events {
		out[ev.ID] = ev
	}
	return out
}

func TestParseICS(t *testing.T) {
	start := time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.January, 27, 0, 0, 0, 0, time.UTC)
	got := eventsByID(t, sampleFeed, start, end)

	if _, ok := got["old"]; ok {
		t.Fatalf("event outside window returned")
	}
	if ev := got["single"]; !ev.Start.Equal(time.Date(2025, time.January, 6, 10, 0, 0, 0, time.UTC)) || ev.Status != "confirmed" {
		t.Fatalf("single = %+v", ev)
	}
	if ev := got["cancelled"]; ev.Status != "cancelled" {
		t.Fatalf("cancelled status = %q, want cancelled", ev.Status)
	}
	if ev := got["free"]; !ev.Transparent {
		t.Fatalf("transparent event not marked")
	}

	booked := got["booked"]
	if booked.BookingID != "bk-42" {
		t.Fatalf("booking id = %q, want bk-42", booked.BookingID)
	}
	if want := time.Date(2025, time.January, 6, 14, 0, 0, 0, time.UTC); !booked.Start.Equal(want) || booked.End.Sub(booked.Start) != 30*time.Minute {
		t.Fatalf("booked = %v-%v, want 14:00Z for 30m", booked.Start, booked.End)
	}

	allDay := got["allday"]
	if allDay.End.Sub(allDay.Start) != 24*time.Hour {
		t.Fatalf("all day length = %v, want 24h", allDay.End.Sub(allDay.Start))
	}

	// The series starts before the window; 2025-01-13 is excluded.
	if _, ok := got["weekly"]; ok {
		t.Fatalf("first occurrence of series is outside window")
	}
	for _, id := range []string{"weekly_20250106T090000Z", "weekly_20250120T090000Z"} {
		if _, ok := got[id]; !ok {
			t.Fatalf("missing occurrence %s in %v", id, got)
		}
	}
	if _, ok := got["weekly_20250113T090000Z"]; ok {
		t.Fatalf("EXDATE occurrence returned")
	}
	if _, ok := got["weekly_20250127T090000Z"]; ok {
		t.Fatalf("occurrence beyond COUNT returned")
	}
}

func TestParseICSDuration(t *testing.T) {
	for in, want := range map[string]time.Duration{
		"PT30M":   30 * time.Minute,
		"PT1H30M": 90 * time.Minute,
		"P1D":     24 * time.Hour,
		"P1W":     7 * 24 * time.Hour,
		"P1DT2H":  26 * time.Hour,
	} {
		got, err := parseICSDuration(in)
		if err != nil {
			t.Fatalf("parseICSDuration(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("parseICSDuration(%q) = %v, want %v", in, got, want)
		}
	}
	for _, in := range []string{"", "P", "PT", "1H", "PT5X"} {
		if _, err := parseICSDuration(in); err == nil {
			t.Fatalf("parseICSDuration(%q) expected error", in)
		}
	}
}

func TestICSClient_FetchesWebcalFeed(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/team.ics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	client := NewICSClient(srv.Client(), 0)
	feedURL := "webcal://" + strings.TrimPrefix(srv.URL, "https://") + "/team.ics"

	events, err := client.ListEvents(context.Background(), feedURL, "",
		time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.January, 7, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ListEvents error: %v", err)
	}
	if len(events) == 0 {
		t.Fatalf("expected events")
	}
}

func TestICSClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/big.ics":
			_, _ = w.Write([]byte(sampleFeed))
		default:
			http.Error(w, "gone", http.StatusGone)
		}
	}))
	defer srv.Close()

	window := time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)

	_, err := NewICSClient(srv.Client(), 64).ListEvents(context.Background(), srv.URL+"/big.ics", "", window, window.Add(24*time.Hour))
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("error = %v, want size limit error", err)
	}

	_, err = NewICSClient(srv.Client(), 0).ListEvents(context.Background(), srv.URL+"/missing.ics", "", window, window.Add(24*time.Hour))
	if err == nil || !strings.Contains(err.Error(), "410") {
		t.Fatalf("error = %v, want HTTP 410", err)
	}
}

func TestParseICS_LongRunningDailySeries(t *testing.T) {
	feed := icsFeed(
		"BEGIN:VEVENT",
		"UID:lunch",
		"SUMMARY:Lunch",
		"DTSTART:20100104T120000Z",
		"DTEND:20100104T130000Z",
		"RRULE:FREQ=DAILY",
		"END:VEVENT",
	)
	start := time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC)
	got := eventsByID(t, feed, start, start.Add(24*time.Hour))

	if len(got) != 1 {
		t.Fatalf("len(events) = %d, want 1 (%v)", len(got), got)
	}
	ev, ok := got["lunch_20261019T120000Z"]
	if !ok {
		t.Fatalf("missing 2026-10-19 occurrence in %v", got)
	}
	if ev.End.Sub(ev.Start) != time.Hour {
		t.Fatalf("occurrence length = %v, want 1h", ev.End.Sub(ev.Start))
	}
}

func TestParseICS_WeeklyByDay(t *testing.T) {
	feed := icsFeed(
		"BEGIN:VEVENT",
		"UID:gym",
		"SUMMARY:Gym",
		"DTSTART:20250106T070000Z",
		"DTEND:20250106T080000Z",
		"RRULE:FREQ=WEEKLY;BYDAY=MO,WE,FR",
		"END:VEVENT",
	)
	start := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	got := eventsByID(t, feed, start, start.AddDate(0, 0, 7))

	want := []string{"gym_20250303T070000Z", "gym_20250305T070000Z", "gym_20250307T070000Z"}
	if len(got) != len(want) {
		t.Fatalf("len(events) = %d, want %d (%v)", len(got), len(want), got)
	}
	for _, id := range want {
		if _, ok := got[id]; !ok {
			t.Fatalf("missing occurrence %s in %v", id, got)
		}
	}
}

func TestParseICS_MonthlySeries(t *testing.T) {
	feed := icsFeed(
		"BEGIN:VEVENT",
		"UID:review",
		"SUMMARY:Review",
		"DTSTART:20250115T150000Z",
		"DTEND:20250115T160000Z",
		"RRULE:FREQ=MONTHLY;UNTIL=20250601T000000Z",
		"END:VEVENT",
	)
	got := eventsByID(t, feed,
		time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC))

	for _, id := range []string{"review_20250415T150000Z", "review_20250515T150000Z"} {
		if _, ok := got[id]; !ok {
			t.Fatalf("missing occurrence %s in %v", id, got)
		}
	}
	if _, ok := got["review_20250615T150000Z"]; ok {
		t.Fatalf("occurrence after UNTIL returned")
	}
}

func TestParseICS_SeriesKeepsLocalTimeAcrossDST(t *testing.T) {
	feed := icsFeed(
		"BEGIN:VEVENT",
		"UID:standup",
		"DTSTART;TZID=America/New_York:20250303T090000",
		"DTEND;TZID=America/New_York:20250303T093000",
		"RRULE:FREQ=WEEKLY",
		"END:VEVENT",
	)
	// 2025-03-09 is the US spring-forward day; 09:00 EDT is 13:00Z.
	start := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	got := eventsByID(t, feed, start, start.Add(24*time.Hour))

	if _, ok := got["standup_20250310T130000Z"]; !ok {
		t.Fatalf("want 13:00Z occurrence after DST, got %v", got)
	}
}

func TestParseICS_OccurrenceSpanningWindowStart(t *testing.T) {
	feed := icsFeed(
		"BEGIN:VEVENT",
		"UID:night",
		"DTSTART:20250101T230000Z",
		"DTEND:20250102T010000Z",
		"RRULE:FREQ=DAILY",
		"END:VEVENT",
	)
	start := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	got := eventsByID(t, feed, start, start.Add(time.Hour))

	if _, ok := got["night_20250131T230000Z"]; !ok || len(got) != 1 {
		t.Fatalf("want only the occurrence running into the window, got %v", got)
	}
}
