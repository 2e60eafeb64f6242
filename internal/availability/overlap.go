package availability

import "time"

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Intervals that only share an endpoint do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

func overlapsAny(start, end time.Time, busy []TimeSlot) bool {
	for _, b := range busy {
		if Overlaps(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}
