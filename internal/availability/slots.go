package availability

import (
	"sort"
	"time"
)

// GenerateSlots chunks one resolved availability interval into consecutive
// slots of duration, separated by buffer. The buffer only sits between two
// emitted slots. An interval shorter than duration yields no slots.
func GenerateSlots(start, end time.Time, duration, buffer time.Duration) ([]TimeSlot, error) {
	if duration <= 0 {
		return nil, validationError("duration must be positive")
	}
	if buffer < 0 {
		return nil, validationError("buffer must not be negative")
	}

	var slots []TimeSlot
	for cursor := start; !cursor.Add(duration).After(end); cursor = cursor.Add(duration + buffer) {
		slots = append(slots, TimeSlot{Start: cursor, End: cursor.Add(duration)})
	}
	return slots, nil
}

// dedupeAndSort orders slots by start and keeps the first slot for each
// distinct start instant.
func dedupeAndSort(slots []TimeSlot) []TimeSlot {
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})

	out := make([]TimeSlot, 0, len(slots))
	seen := make(map[int64]struct{}, len(slots))
	for _, s := range slots {
		key := s.Start.UnixNano()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// FilterLocalConflicts drops candidates that overlap a blocked interval or an
// existing booking that occupies time.
func FilterLocalConflicts(candidates, blocked []TimeSlot, bookings []Booking) []TimeSlot {
	busy := make([]TimeSlot, 0, len(blocked)+len(bookings))
	busy = append(busy, blocked...)
	busy = append(busy, bookingIntervals(bookings)...)

	out := make([]TimeSlot, 0, len(candidates))
	for _, c := range candidates {
		if !overlapsAny(c.Start, c.End, busy) {
			out = append(out, c)
		}
	}
	return out
}

func bookingIntervals(bookings []Booking) []TimeSlot {
	out := make([]TimeSlot, 0, len(bookings))
	for _, b := range bookings {
		if !b.Status.OccupiesTime() {
			continue
		}
		out = append(out, TimeSlot{Start: b.Start, End: b.End})
	}
	return out
}
