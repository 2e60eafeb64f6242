package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"availability-service/internal/availability"
)

const (
	defaultGraphBaseURL   = "https://graph.microsoft.com/v1.0"
	graphBookingProperty  = "String {66f5a359-4659-4830-9070-00047ec6ac6e} Name bookingId"
	graphPageSize         = 100
	graphErrorBodyMaxSize = 4 << 10
)

type OutlookConfig struct {
	ClientID     string
	ClientSecret string
	Tenant       string
	// BaseURL overrides the Microsoft Graph root.
	BaseURL string
}

// OutlookClient reads calendarView from Microsoft Graph.
type OutlookClient struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	baseURL    string
}

func NewOutlookClient(cfg OutlookConfig, httpClient *http.Client) *OutlookClient {
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "common"
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultGraphBaseURL
	}
	return &OutlookClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{"offline_access", "Calendars.Read"},
			Endpoint:     microsoft.AzureADEndpoint(tenant),
		},
		httpClient: httpClient,
		baseURL:    base,
	}
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphEvent struct {
	ID          string        `json:"id"`
	Subject     string        `json:"subject"`
	BodyPreview string        `json:"bodyPreview"`
	Start       graphDateTime `json:"start"`
	End         graphDateTime `json:"end"`
	IsCancelled bool          `json:"isCancelled"`
	IsAllDay    bool          `json:"isAllDay"`
	ShowAs      string        `json:"showAs"`
	Location    struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
	Body struct {
		Content string `json:"content"`
	} `json:"body"`
	SingleValueExtendedProperties []struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"singleValueExtendedProperties"`

	// OriginalStartTimeZone is an IANA or Windows zone name.
	OriginalStartTimeZone string `json:"originalStartTimeZone"`
}

type graphPage struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

func (o *OutlookClient) ListEvents(ctx context.Context, credential, calendarID string, start, end time.Time) ([]availability.NormalizedEvent, error) {
	token, err := parseToken(credential)
	if err != nil {
		return nil, err
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
	client := o.oauth.Client(ctx, token)

	next := o.calendarViewURL(calendarID, start, end)
	var out []availability.NormalizedEvent
	for next != "" {
		page, err := o.fetchPage(ctx, client, next)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Value {
			ev, err := normalizeGraphEvent(item)
			if err != nil {
				continue
			}
			out = append(out, ev)
		}
		next = page.NextLink
	}
	return out, nil
}

func (o *OutlookClient) calendarViewURL(calendarID string, start, end time.Time) string {
	path := "/me/calendarView"
	if calendarID != "" {
		path = "/me/calendars/" + url.PathEscape(calendarID) + "/calendarView"
	}
	q := url.Values{}
	q.Set("startDateTime", start.UTC().Format(time.RFC3339))
	q.Set("endDateTime", end.UTC().Format(time.RFC3339))
	q.Set("$top", fmt.Sprint(graphPageSize))
	q.Set("$expand", fmt.Sprintf("singleValueExtendedProperties($filter=id eq '%s')", graphBookingProperty))
	return o.baseURL + path + "?" + q.Encode()
}

func (o *OutlookClient) fetchPage(ctx context.Context, client *http.Client, pageURL string) (*graphPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, graphErrorBodyMaxSize))
		return nil, fmt.Errorf("graph: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page graphPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("graph: decode calendarView: %w", err)
	}
	return &page, nil
}

func normalizeGraphEvent(item graphEvent) (availability.NormalizedEvent, error) {
	start, err := parseGraphTime(item.Start)
	if err != nil {
		return availability.NormalizedEvent{}, err
	}
	end, err := parseGraphTime(item.End)
	if err != nil {
		return availability.NormalizedEvent{}, err
	}
	if item.IsAllDay {
		loc := graphLocation(item.OriginalStartTimeZone)
		start, end = allDayIn(start, loc), allDayIn(end, loc)
	}

	status := "confirmed"
	switch {
	case item.IsCancelled:
		status = "cancelled"
	case item.ShowAs == "tentative":
		status = "tentative"
	}

	description := item.BodyPreview
	if description == "" {
		description = item.Body.Content
	}

	ev := availability.NormalizedEvent{
		ID:          item.ID,
		Title:       item.Subject,
		Description: description,
		Location:    item.Location.DisplayName,
		Start:       start,
		End:         end,
		Status:      status,
		Transparent: strings.EqualFold(item.ShowAs, "free"),
	}
	for _, p := range item.SingleValueExtendedProperties {
		if strings.EqualFold(p.ID, graphBookingProperty) {
			ev.BookingID = p.Value
		}
	}
	return ev, nil
}

// allDayIn re-anchors a midnight boundary Graph rendered in UTC to the same
// calendar date's midnight in loc.
func allDayIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// windowsZones maps the Windows zone names Exchange commonly reports to IANA.
var windowsZones = map[string]string{
	"UTC":                            "UTC",
	"GMT Standard Time":              "Europe/London",
	"W. Europe Standard Time":        "Europe/Berlin",
	"Romance Standard Time":          "Europe/Paris",
	"Central Europe Standard Time":   "Europe/Budapest",
	"E. Europe Standard Time":        "Europe/Chisinau",
	"FLE Standard Time":              "Europe/Kiev",
	"Russian Standard Time":          "Europe/Moscow",
	"Eastern Standard Time":          "America/New_York",
	"Central Standard Time":          "America/Chicago",
	"Mountain Standard Time":         "America/Denver",
	"US Mountain Standard Time":      "America/Phoenix",
	"Pacific Standard Time":          "America/Los_Angeles",
	"Alaskan Standard Time":          "America/Anchorage",
	"Hawaiian Standard Time":         "Pacific/Honolulu",
	"E. South America Standard Time": "America/Sao_Paulo",
	"India Standard Time":            "Asia/Kolkata",
	"China Standard Time":            "Asia/Shanghai",
	"Tokyo Standard Time":            "Asia/Tokyo",
	"Singapore Standard Time":        "Asia/Singapore",
	"AUS Eastern Standard Time":      "Australia/Sydney",
	"New Zealand Standard Time":      "Pacific/Auckland",
}

// graphLocation resolves an IANA or known Windows zone name, else UTC.
func graphLocation(name string) *time.Location {
	name = strings.TrimSpace(name)
	if iana, ok := windowsZones[name]; ok {
		name = iana
	}
	if name == "" {
		return time.UTC
	}
	if l, err := time.LoadLocation(name); err == nil {
		return l
	}
	return time.UTC
}

// parseGraphTime reads Graph's zone-less dateTime. With the UTC Prefer header
// the zone is UTC, but an explicit timeZone is honoured when it loads.
func parseGraphTime(dt graphDateTime) (time.Time, error) {
	loc := time.UTC
	if dt.TimeZone != "" && !strings.EqualFold(dt.TimeZone, "UTC") {
		if l, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = l
		}
	}
	for _, layout := range []string{"2006-01-02T15:04:05.0000000", "2006-01-02T15:04:05", time.RFC3339Nano} {
		if t, err := time.ParseInLocation(layout, dt.DateTime, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid graph dateTime %q", dt.DateTime)
}
