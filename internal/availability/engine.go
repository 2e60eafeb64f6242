package availability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultSearchDays     = 7
	DefaultMaxSuggestions = 5
)

// RuleReader returns the owner's recurring rules plus the date-bound rules
// whose date falls in [from, to). HasAvailabilityRules reports whether the
// owner has any rule at all, regardless of date.
type RuleReader interface {
	ReadAvailabilityRules(ctx context.Context, ownerID string, from, to time.Time) ([]AvailabilityRule, error)
	HasAvailabilityRules(ctx context.Context, ownerID string) (bool, error)
}

type BookingReader interface {
	ReadBookings(ctx context.Context, hostID string, from, to time.Time, statuses []BookingStatus) ([]Booking, error)
}

// BusinessHours is a local time-of-day band, as offsets from midnight.
// A suggestion is inside the band when Start <= localStart < End.
type BusinessHours struct {
	Start time.Duration
	End   time.Duration
}

func (b BusinessHours) contains(local time.Time) bool {
	offset := time.Duration(local.Hour())*time.Hour + time.Duration(local.Minute())*time.Minute
	return offset >= b.Start && offset < b.End
}

type Config struct {
	// DefaultLocation applies to rules without a timezone.
	DefaultLocation *time.Location
	BusinessHours   BusinessHours
	SuggestionStep  time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultLocation: time.UTC,
		BusinessHours:   BusinessHours{Start: 9 * time.Hour, End: 18 * time.Hour},
		SuggestionStep:  30 * time.Minute,
	}
}

// Engine exposes slot computation, external conflict checks and alternative
// suggestions for a host.
type Engine struct {
	rules      RuleReader
	bookings   BookingReader
	aggregator *Aggregator
	cfg        Config
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewEngine panics if rules, bookings or aggregator is nil.
func NewEngine(rules RuleReader, bookings BookingReader, aggregator *Aggregator, cfg Config, logger *zap.Logger) *Engine {
	switch {
	case rules == nil:
		panic("availability: NewEngine requires a RuleReader")
	case bookings == nil:
		panic("availability: NewEngine requires a BookingReader")
	case aggregator == nil:
		panic("availability: NewEngine requires an Aggregator")
	}
	def := DefaultConfig()
	if cfg.DefaultLocation == nil {
		cfg.DefaultLocation = def.DefaultLocation
	}
	if cfg.BusinessHours.End <= cfg.BusinessHours.Start {
		cfg.BusinessHours = def.BusinessHours
	}
	if cfg.SuggestionStep <= 0 {
		cfg.SuggestionStep = def.SuggestionStep
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		rules:      rules,
		bookings:   bookings,
		aggregator: aggregator,
		cfg:        cfg,
		logger:     logger.Named("engine"),
		tracer:     otel.Tracer(tracerName),
	}
}

// ComputeAvailableSlots returns the bookable slots of hostID on the calendar
// date of date (its location is ignored). External calendars are not
// consulted; use CheckConflicts for that.
func (e *Engine) ComputeAvailableSlots(ctx context.Context, hostID string, date time.Time, durationMinutes, bufferMinutes int) ([]TimeSlot, error) {
	if strings.TrimSpace(hostID) == "" {
		return nil, validationError("host_id is required")
	}
	if durationMinutes <= 0 {
		return nil, validationError("duration must be positive")
	}
	if bufferMinutes < 0 {
		return nil, validationError("buffer must not be negative")
	}

	d := dateOf(date)
	ctx, span := e.tracer.Start(ctx, "availability.ComputeAvailableSlots", trace.WithAttributes(
		attribute.String("host.id", hostID),
		attribute.String("date", d.String()),
	))
	defer span.End()

	// Rules are read with a day of slack on both sides so date-specific rules
	// survive any timezone offset between the caller and the host.
	windowStart := time.Date(d.Year, d.Month, d.Day-1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(d.Year, d.Month, d.Day+2, 0, 0, 0, 0, time.UTC)
	rules, err := e.rules.ReadAvailabilityRules(ctx, hostID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("read availability rules: %w", err)
	}
	if len(rules) == 0 {
		configured, err := e.rules.HasAvailabilityRules(ctx, hostID)
		if err != nil {
			return nil, fmt.Errorf("check availability rules: %w", err)
		}
		if !configured {
			return nil, &ConfigurationError{HostID: hostID}
		}
		return []TimeSlot{}, nil
	}

	rs, err := newRuleSet(rules, e.cfg.DefaultLocation)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(durationMinutes) * time.Minute
	buffer := time.Duration(bufferMinutes) * time.Minute

	open, blocked := rs.resolve(d)
	var candidates []TimeSlot
	for _, iv := range open {
		slots, err := GenerateSlots(iv.Start, iv.End, duration, buffer)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, slots...)
	}
	candidates = dedupeAndSort(candidates)
	if len(candidates) == 0 {
		return []TimeSlot{}, nil
	}

	bookings, err := e.bookings.ReadBookings(ctx, hostID, candidates[0].Start, latestEnd(candidates), OccupyingStatuses)
	if err != nil {
		return nil, fmt.Errorf("read bookings: %w", err)
	}

	slots := FilterLocalConflicts(candidates, blocked, bookings)
	span.SetAttributes(
		attribute.Int("slots.candidates", len(candidates)),
		attribute.Int("slots.available", len(slots)),
	)
	return slots, nil
}

// CheckConflicts reports busy events from the host's external calendars that
// overlap [start, end). Local bookings and blocked time are not consulted.
func (e *Engine) CheckConflicts(ctx context.Context, hostID string, start, end time.Time, excludeBookingID string) (ConflictCheckResult, error) {
	if strings.TrimSpace(hostID) == "" {
		return ConflictCheckResult{}, validationError("host_id is required")
	}
	if !start.Before(end) {
		return ConflictCheckResult{}, validationError("start must be before end")
	}

	ctx, span := e.tracer.Start(ctx, "availability.CheckConflicts", trace.WithAttributes(
		attribute.String("host.id", hostID),
	))
	defer span.End()

	res, err := e.aggregator.CheckConflicts(ctx, hostID, start, end, strings.TrimSpace(excludeBookingID))
	if err != nil {
		return ConflictCheckResult{}, err
	}
	span.SetAttributes(
		attribute.Bool("conflicts.found", res.HasConflicts),
		attribute.Int("integrations.checked", len(res.CheckedIntegrations)),
	)
	return res, nil
}

// SuggestAlternatives walks forward from preferredStart in fixed steps and
// returns up to maxSuggestions start instants inside business hours that are
// free of blocked time, occupying bookings and external busy events.
// Zero searchDays or maxSuggestions select the defaults.
func (e *Engine) SuggestAlternatives(ctx context.Context, hostID string, preferredStart time.Time, durationMinutes, searchDays, maxSuggestions int) ([]time.Time, error) {
	if strings.TrimSpace(hostID) == "" {
		return nil, validationError("host_id is required")
	}
	if durationMinutes <= 0 {
		return nil, validationError("duration must be positive")
	}
	if searchDays < 0 {
		return nil, validationError("search_days must not be negative")
	}
	if maxSuggestions < 0 {
		return nil, validationError("max_suggestions must not be negative")
	}
	if searchDays == 0 {
		searchDays = DefaultSearchDays
	}
	if maxSuggestions == 0 {
		maxSuggestions = DefaultMaxSuggestions
	}

	ctx, span := e.tracer.Start(ctx, "availability.SuggestAlternatives", trace.WithAttributes(
		attribute.String("host.id", hostID),
		attribute.Int("search_days", searchDays),
	))
	defer span.End()

	duration := time.Duration(durationMinutes) * time.Minute
	horizon := preferredStart.AddDate(0, 0, searchDays)
	busyEnd := horizon.Add(duration)

	rules, err := e.rules.ReadAvailabilityRules(ctx, hostID, preferredStart.AddDate(0, 0, -1), busyEnd.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("read availability rules: %w", err)
	}
	rs, err := newRuleSet(rules, e.cfg.DefaultLocation)
	if err != nil {
		return nil, err
	}
	loc := rs.hostLocation()

	var busy []TimeSlot
	for d := dateOf(preferredStart.In(loc).AddDate(0, 0, -1)); d.at(0, 0, loc).Before(busyEnd.AddDate(0, 0, 1)); d = d.next() {
		_, blocked := rs.resolve(d)
		busy = append(busy, blocked...)
	}

	bookings, err := e.bookings.ReadBookings(ctx, hostID, preferredStart, busyEnd, OccupyingStatuses)
	if err != nil {
		return nil, fmt.Errorf("read bookings: %w", err)
	}
	busy = append(busy, bookingIntervals(bookings)...)

	snap, err := e.aggregator.CollectBusy(ctx, hostID, preferredStart, busyEnd, "")
	if err != nil {
		return nil, err
	}
	for _, b := range snap.Events {
		busy = append(busy, TimeSlot{Start: b.Event.Start, End: b.Event.End})
	}

	out := make([]time.Time, 0, maxSuggestions)
	for cursor := preferredStart; cursor.Before(horizon) && len(out) < maxSuggestions; cursor = cursor.Add(e.cfg.SuggestionStep) {
		if !e.cfg.BusinessHours.contains(cursor.In(loc)) {
			continue
		}
		if overlapsAny(cursor, cursor.Add(duration), busy) {
			continue
		}
		out = append(out, cursor)
	}

	e.logger.Debug("alternatives suggested",
		zap.String("host_id", hostID),
		zap.Time("preferred_start", preferredStart),
		zap.Int("suggestions", len(out)),
	)
	span.SetAttributes(attribute.Int("suggestions", len(out)))
	return out, nil
}

func latestEnd(slots []TimeSlot) time.Time {
	end := slots[0].End
	for _, s := range slots[1:] {
		if s.End.After(end) {
			end = s.End
		}
	}
	return end
}
