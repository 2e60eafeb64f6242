package calendar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	rrule "github.com/teambition/rrule-go"

	"availability-service/internal/availability"
)

const (
	DefaultICSMaxBytes  = 5 * 1024 * 1024 // 5MB
	icsBookingProperty  = ics.ComponentProperty("X-BOOKING-ID")
	icsDurationProperty = ics.ComponentProperty(ics.PropertyDuration)
)

// ICSClient reads a published iCalendar feed. The integration credential is
// the feed URL; webcal:// links are fetched over https.
type ICSClient struct {
	httpClient *http.Client
	maxBytes   int64
}

func NewICSClient(httpClient *http.Client, maxBytes int64) *ICSClient {
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultICSMaxBytes
	}
	return &ICSClient{httpClient: httpClient, maxBytes: maxBytes}
}

func (c *ICSClient) ListEvents(ctx context.Context, credential, _ string, start, end time.Time) ([]availability.NormalizedEvent, error) {
	body, err := c.fetch(ctx, credential)
	if err != nil {
		return nil, err
	}
	return ParseICS(bytes.NewReader(body), start, end)
}

func (c *ICSClient) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u := strings.TrimSpace(rawURL)
	if strings.HasPrefix(u, "webcal://") {
		u = "https://" + strings.TrimPrefix(u, "webcal://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid feed url: %w", err)
	}
	req.Header.Set("Accept", "text/calendar")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ics feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch ics feed: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read ics feed: %w", err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("ics feed exceeds %d bytes", c.maxBytes)
	}
	return body, nil
}

// ParseICS returns the events of an iCalendar stream that overlap
// [start, end), with RRULE series expanded inside the window.
func ParseICS(r io.Reader, start, end time.Time) ([]availability.NormalizedEvent, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parse ics: %w", err)
	}

	var out []availability.NormalizedEvent
	for _, vevent := range cal.Events() {
		base, ok := parseVEvent(vevent)
		if !ok {
			continue
		}
		for _, occ := range occurrences(vevent, base, start, end) {
			if availability.Overlaps(start, end, occ.Start, occ.End) {
				out = append(out, occ)
			}
		}
	}
	return out, nil
}

func parseVEvent(evt *ics.VEvent) (availability.NormalizedEvent, bool) {
	dtStart, allDay, err := parseICSTime(evt.GetProperty(ics.ComponentPropertyDtStart))
	if err != nil {
		return availability.NormalizedEvent{}, false
	}

	dtEnd, _, err := parseICSTime(evt.GetProperty(ics.ComponentPropertyDtEnd))
	if err != nil {
		switch d, derr := parseICSDuration(propValue(evt, icsDurationProperty)); {
		case derr == nil:
			dtEnd = dtStart.Add(d)
		case allDay:
			dtEnd = dtStart.AddDate(0, 0, 1)
		default:
			return availability.NormalizedEvent{}, false
		}
	}
	if !dtEnd.After(dtStart) {
		return availability.NormalizedEvent{}, false
	}

	status := strings.ToLower(propValue(evt, ics.ComponentPropertyStatus))
	if status == "" {
		status = "confirmed"
	}

	return availability.NormalizedEvent{
		ID:          propValue(evt, ics.ComponentPropertyUniqueId),
		Title:       propValue(evt, ics.ComponentPropertySummary),
		Description: propValue(evt, ics.ComponentPropertyDescription),
		Location:    propValue(evt, ics.ComponentPropertyLocation),
		Start:       dtStart,
		End:         dtEnd,
		Status:      status,
		Transparent: strings.EqualFold(propValue(evt, ics.ComponentPropertyTransp), "TRANSPARENT"),
		BookingID:   propValue(evt, icsBookingProperty),
	}, true
}

func propValue(evt *ics.VEvent, name ics.ComponentProperty) string {
	p := evt.GetProperty(name)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Value)
}

// parseICSTime reads a DATE or DATE-TIME property, honouring TZID. Floating
// times are taken as UTC.
func parseICSTime(prop *ics.IANAProperty) (time.Time, bool, error) {
	if prop == nil {
		return time.Time{}, false, fmt.Errorf("missing property")
	}
	loc := time.UTC
	for k, v := range prop.ICalParameters {
		if strings.EqualFold(k, "TZID") && len(v) > 0 {
			if l, err := time.LoadLocation(v[0]); err == nil {
				loc = l
			}
		}
	}
	return parseICSValue(prop.Value, loc)
}

func parseICSValue(val string, loc *time.Location) (time.Time, bool, error) {
	val = strings.TrimSpace(val)
	if t, err := time.Parse("20060102T150405Z", val); err == nil {
		return t, false, nil
	}
	if t, err := time.ParseInLocation("20060102T150405", val, loc); err == nil {
		return t, false, nil
	}
	if t, err := time.ParseInLocation("20060102", val, loc); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("invalid ics time %q", val)
}

// parseICSDuration handles the common dur-value forms (P1D, PT1H30M, P1W).
func parseICSDuration(s string) (time.Duration, error) {
	s = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "+")
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	var total time.Duration
	inTime := false
	num := ""
	for _, r := range s[1:] {
		switch {
		case r == 'T':
			inTime = true
		case r >= '0' && r <= '9':
			num += string(r)
		default:
			n, err := strconv.Atoi(num)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q", s)
			}
			num = ""
			switch {
			case r == 'W' && !inTime:
				total += time.Duration(n) * 7 * 24 * time.Hour
			case r == 'D' && !inTime:
				total += time.Duration(n) * 24 * time.Hour
			case r == 'H' && inTime:
				total += time.Duration(n) * time.Hour
			case r == 'M' && inTime:
				total += time.Duration(n) * time.Minute
			case r == 'S' && inTime:
				total += time.Duration(n) * time.Second
			default:
				return 0, fmt.Errorf("invalid duration %q", s)
			}
		}
	}
	if num != "" || total <= 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return total, nil
}

func exDates(evt *ics.VEvent) []time.Time {
	var out []time.Time
	for _, prop := range evt.Properties {
		if prop.IANAToken != string(ics.ComponentPropertyExdate) {
			continue
		}
		for _, v := range strings.Split(prop.Value, ",") {
			p := prop
			p.Value = v
			if t, _, err := parseICSTime(&p); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

// occurrences expands the event's RRULE, minus EXDATEs, to the instances that
// can overlap [windowStart, windowEnd). A missing or unparsable RRULE yields
// the base event only. Occurrences after the first get the start instant
// appended to their ID.
func occurrences(evt *ics.VEvent, base availability.NormalizedEvent, windowStart, windowEnd time.Time) []availability.NormalizedEvent {
	value := propValue(evt, ics.ComponentPropertyRrule)
	if value == "" {
		return []availability.NormalizedEvent{base}
	}
	opt, err := rrule.StrToROptionInLocation(value, base.Start.Location())
	if err != nil {
		return []availability.NormalizedEvent{base}
	}
	opt.Dtstart = base.Start
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return []availability.NormalizedEvent{base}
	}

	set := &rrule.Set{}
	set.RRule(rule)
	for _, ex := range exDates(evt) {
		set.ExDate(ex)
	}

	length := base.End.Sub(base.Start)
	starts := set.Between(windowStart.Add(-length), windowEnd, true)

	out := make([]availability.NormalizedEvent, 0, len(starts))
	for _, occStart := range starts {
		occ := base
		occ.Start = occStart
		occ.End = occStart.Add(length)
		if !occStart.Equal(base.Start) {
			occ.ID = base.ID + "_" + occStart.UTC().Format("20060102T150405Z")
		}
		out = append(out, occ)
	}
	return out
}
