package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const tracerName = "availability-service/internal/availability"

var errUnsupportedProvider = errors.New("unsupported calendar provider")

// EventLister is implemented by each calendar provider client. It receives a
// decrypted credential and returns the events in [start, end) already
// translated into NormalizedEvent.
type EventLister interface {
	ListEvents(ctx context.Context, credential, calendarID string, start, end time.Time) ([]NormalizedEvent, error)
}

type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

type IntegrationReader interface {
	ReadActiveIntegrations(ctx context.Context, ownerID string) ([]CalendarIntegration, error)
}

type AggregatorConfig struct {
	// ProviderTimeout bounds each provider call independently.
	ProviderTimeout time.Duration
	// MaxConcurrent caps in-flight provider calls; zero means unbounded.
	MaxConcurrent int
}

// Aggregator fans out to every eligible calendar integration of a host and
// merges their busy events. A failing integration is reported in the result
// and never fails the whole check.
type Aggregator struct {
	integrations IntegrationReader
	decrypter    Decrypter
	providers    map[Provider]EventLister
	cfg          AggregatorConfig
	logger       *zap.Logger
	tracer       trace.Tracer
}

func NewAggregator(integrations IntegrationReader, decrypter Decrypter, providers map[Provider]EventLister, cfg AggregatorConfig, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 10 * time.Second
	}
	return &Aggregator{
		integrations: integrations,
		decrypter:    decrypter,
		providers:    providers,
		cfg:          cfg,
		logger:       logger.Named("aggregator"),
		tracer:       otel.Tracer(tracerName),
	}
}

// BusyEvent is a normalized event that blocks time, tagged with its source.
type BusyEvent struct {
	Event        NormalizedEvent
	Provider     Provider
	CalendarName string
}

type BusySnapshot struct {
	Events              []BusyEvent
	CheckedIntegrations []IntegrationCheckResult
}

type branchResult struct {
	integration CalendarIntegration
	events      []NormalizedEvent
	err         error
}

// CollectBusy queries every eligible integration of hostID for [start, end)
// and returns the events that block time. Cancelled, transparent and
// excluded-booking events are dropped.
func (a *Aggregator) CollectBusy(ctx context.Context, hostID string, start, end time.Time, excludeBookingID string) (BusySnapshot, error) {
	all, err := a.integrations.ReadActiveIntegrations(ctx, hostID)
	if err != nil {
		return BusySnapshot{}, fmt.Errorf("read integrations: %w", err)
	}

	eligible := make([]CalendarIntegration, 0, len(all))
	for _, in := range all {
		if in.eligible() {
			eligible = append(eligible, in)
		}
	}

	snap := BusySnapshot{
		Events:              []BusyEvent{},
		CheckedIntegrations: make([]IntegrationCheckResult, 0, len(eligible)),
	}
	if len(eligible) == 0 {
		return snap, nil
	}

	results := make([]branchResult, len(eligible))
	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.MaxConcurrent > 0 {
		g.SetLimit(a.cfg.MaxConcurrent)
	}
	for i, in := range eligible {
		i, in := i, in
		g.Go(func() error {
			events, err := a.queryIntegration(gctx, in, start, end)
			results[i] = branchResult{integration: in, events: events, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		check := IntegrationCheckResult{
			IntegrationID: r.integration.ID,
			Name:          r.integration.Name,
			Provider:      r.integration.Provider,
			Success:       r.err == nil,
		}
		if r.err != nil {
			check.Error = r.err.Error()
			a.logger.Warn("calendar integration check failed",
				zap.String("host_id", hostID),
				zap.String("integration_id", r.integration.ID.String()),
				zap.String("provider", string(r.integration.Provider)),
				zap.Error(r.err),
			)
		}
		snap.CheckedIntegrations = append(snap.CheckedIntegrations, check)

		for _, ev := range r.events {
			if skipEvent(ev, excludeBookingID) {
				continue
			}
			snap.Events = append(snap.Events, BusyEvent{
				Event:        ev,
				Provider:     r.integration.Provider,
				CalendarName: r.integration.calendarName(),
			})
		}
	}
	return snap, nil
}

// CheckConflicts reports the external events of hostID that overlap
// [start, end).
func (a *Aggregator) CheckConflicts(ctx context.Context, hostID string, start, end time.Time, excludeBookingID string) (ConflictCheckResult, error) {
	snap, err := a.CollectBusy(ctx, hostID, start, end, excludeBookingID)
	if err != nil {
		return ConflictCheckResult{}, err
	}

	conflicts := make([]ConflictRecord, 0)
	for _, b := range snap.Events {
		if !Overlaps(start, end, b.Event.Start, b.Event.End) {
			continue
		}
		conflicts = append(conflicts, ConflictRecord{
			ExternalEventID: b.Event.ID,
			Title:           b.Event.Title,
			Start:           b.Event.Start,
			End:             b.Event.End,
			Provider:        b.Provider,
			CalendarName:    b.CalendarName,
			Location:        b.Event.Location,
			Status:          b.Event.Status,
		})
	}
	sort.SliceStable(conflicts, func(i, j int) bool {
		if !conflicts[i].Start.Equal(conflicts[j].Start) {
			return conflicts[i].Start.Before(conflicts[j].Start)
		}
		return conflicts[i].ExternalEventID < conflicts[j].ExternalEventID
	})

	return ConflictCheckResult{
		HasConflicts:        len(conflicts) > 0,
		Conflicts:           conflicts,
		CheckedIntegrations: snap.CheckedIntegrations,
	}, nil
}

func (a *Aggregator) queryIntegration(ctx context.Context, in CalendarIntegration, start, end time.Time) (events []NormalizedEvent, err error) {
	ctx, span := a.tracer.Start(ctx, "calendar.list_events", trace.WithAttributes(
		attribute.String("integration.id", in.ID.String()),
		attribute.String("calendar.provider", string(in.Provider)),
	))
	defer func() {
		if r := recover(); r != nil {
			events = nil
			err = &IntegrationError{Provider: in.Provider, Op: "list events", Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("calendar.events", len(events)))
		}
		span.End()
	}()

	lister, ok := a.providers[in.Provider]
	if !ok || lister == nil {
		return nil, &IntegrationError{Provider: in.Provider, Op: "lookup", Err: errUnsupportedProvider}
	}

	credential, err := a.decrypter.Decrypt(in.EncryptedCredential)
	if err != nil {
		return nil, &IntegrationError{Provider: in.Provider, Op: "decrypt credential", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.ProviderTimeout)
	defer cancel()

	events, err = lister.ListEvents(ctx, credential, in.CalendarID, start, end)
	if err != nil {
		return nil, &IntegrationError{Provider: in.Provider, Op: "list events", Err: err}
	}
	return events, nil
}

func skipEvent(ev NormalizedEvent, excludeBookingID string) bool {
	if strings.EqualFold(ev.Status, "cancelled") {
		return true
	}
	if ev.Transparent {
		return true
	}
	return excludeBookingID != "" && matchesBooking(ev, excludeBookingID)
}

// matchesBooking prefers the structured booking id. Events without one fall
// back to a substring search of the description, which is how events written
// before the metadata existed carry the id.
func matchesBooking(ev NormalizedEvent, bookingID string) bool {
	if ev.BookingID != "" {
		return ev.BookingID == bookingID
	}
	return strings.Contains(ev.Description, bookingID)
}
