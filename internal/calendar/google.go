package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"availability-service/internal/availability"
)

const (
	googlePrimaryCalendar = "primary"
	googleBookingProperty = "bookingId"
	googlePageSize        = 250
)

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	// Endpoint overrides the Calendar API base URL.
	Endpoint string
}

// GoogleClient lists events through the Google Calendar API using the host's
// stored OAuth2 token.
type GoogleClient struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	endpoint   string
}

func NewGoogleClient(cfg GoogleConfig, httpClient *http.Client) *GoogleClient {
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	return &GoogleClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{gcal.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		httpClient: httpClient,
		endpoint:   cfg.Endpoint,
	}
}

func (g *GoogleClient) ListEvents(ctx context.Context, credential, calendarID string, start, end time.Time) ([]availability.NormalizedEvent, error) {
	token, err := parseToken(credential)
	if err != nil {
		return nil, err
	}
	if calendarID == "" {
		calendarID = googlePrimaryCalendar
	}

	// The oauth2 transport refreshes through the traced client.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	opts := []option.ClientOption{option.WithHTTPClient(g.oauth.Client(ctx, token))}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	srv, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	call := srv.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(googlePageSize).
		TimeMin(start.UTC().Format(time.RFC3339)).
		TimeMax(end.UTC().Format(time.RFC3339))

	var out []availability.NormalizedEvent
	err = call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			ev, ok := normalizeGoogleEvent(item)
			if !ok {
				continue
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events: %w", err)
	}
	return out, nil
}

func normalizeGoogleEvent(item *gcal.Event) (availability.NormalizedEvent, bool) {
	if item == nil || item.Start == nil || item.End == nil {
		return availability.NormalizedEvent{}, false
	}
	start, err := parseGoogleTime(item.Start)
	if err != nil {
		return availability.NormalizedEvent{}, false
	}
	end, err := parseGoogleTime(item.End)
	if err != nil {
		return availability.NormalizedEvent{}, false
	}

	ev := availability.NormalizedEvent{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Start:       start,
		End:         end,
		Status:      item.Status,
		Transparent: item.Transparency == "transparent",
	}
	if item.ExtendedProperties != nil {
		ev.BookingID = item.ExtendedProperties.Private[googleBookingProperty]
	}
	return ev, true
}

// parseGoogleTime handles timed events (DateTime) and all-day events (Date).
// All-day dates are taken in the event's time zone when one is given.
func parseGoogleTime(dt *gcal.EventDateTime) (time.Time, error) {
	if dt.DateTime != "" {
		return time.Parse(time.RFC3339, dt.DateTime)
	}
	if dt.Date != "" {
		loc := time.UTC
		if dt.TimeZone != "" {
			if l, err := time.LoadLocation(dt.TimeZone); err == nil {
				loc = l
			}
		}
		return time.ParseInLocation("2006-01-02", dt.Date, loc)
	}
	return time.Time{}, fmt.Errorf("event has no start or end time")
}
