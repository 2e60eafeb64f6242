package availability

import (
	"fmt"
	"strings"
	"time"
)

// civilDate is a calendar date without a location.
type civilDate struct {
	Year  int
	Month time.Month
	Day   int
}

func dateOf(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate{Year: y, Month: m, Day: d}
}

func (d civilDate) weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

func (d civilDate) at(hour, minute int, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, hour, minute, 0, 0, loc)
}

func (d civilDate) next() civilDate {
	return dateOf(time.Date(d.Year, d.Month, d.Day+1, 0, 0, 0, 0, time.UTC))
}

func (d civilDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// dayWindow is the local-midnight to local-midnight window of d in loc.
func (d civilDate) dayWindow(loc *time.Location) (time.Time, time.Time) {
	n := d.next()
	return d.at(0, 0, loc), n.at(0, 0, loc)
}

func validateRule(r AvailabilityRule) error {
	start, err := parseHHMM(r.StartTime)
	if err != nil {
		return validationError("rule %d: invalid start_time %q", r.ID, r.StartTime)
	}
	end, err := parseHHMM(r.EndTime)
	if err != nil {
		return validationError("rule %d: invalid end_time %q", r.ID, r.EndTime)
	}
	if end <= start {
		return validationError("rule %d: end_time must be after start_time", r.ID)
	}
	if r.DayOfWeek != nil && (*r.DayOfWeek < 0 || *r.DayOfWeek > 6) {
		return validationError("rule %d: day_of_week must be between 0 and 6", r.ID)
	}

	switch r.Kind {
	case RuleKindRecurring:
		if r.DayOfWeek == nil {
			return validationError("rule %d: recurring rule requires day_of_week", r.ID)
		}
	case RuleKindDateSpecific:
		if r.SpecificDate == nil {
			return validationError("rule %d: date specific rule requires specific_date", r.ID)
		}
	case RuleKindBlocked:
		if r.DayOfWeek == nil && r.SpecificDate == nil {
			return validationError("rule %d: blocked rule requires day_of_week or specific_date", r.ID)
		}
	default:
		return validationError("rule %d: unknown kind %q", r.ID, r.Kind)
	}

	if r.IsBlocking() && strings.TrimSpace(r.BlockReason) == "" {
		return validationError("rule %d: blocked rule requires block_reason", r.ID)
	}
	return nil
}

// parseHHMM returns minutes since midnight. Database time columns such as
// "09:00:00.000000" are accepted; only the hour and minute are used.
func parseHHMM(s string) (int, error) {
	if len(s) < 5 {
		return 0, fmt.Errorf("invalid time string: %s", s)
	}
	tt, err := time.Parse("15:04", s[:5])
	if err != nil {
		return 0, err
	}
	return tt.Hour()*60 + tt.Minute(), nil
}

func (r AvailabilityRule) matches(d civilDate) bool {
	if r.SpecificDate != nil {
		if r.Kind == RuleKindDateSpecific || r.Kind == RuleKindBlocked {
			return dateOf(*r.SpecificDate) == d
		}
	}
	if r.DayOfWeek != nil {
		return time.Weekday(*r.DayOfWeek) == d.weekday()
	}
	return false
}

// interval resolves the rule's wall-clock times to instants on d.
func (r AvailabilityRule) interval(d civilDate, loc *time.Location) TimeSlot {
	start, _ := parseHHMM(r.StartTime)
	end, _ := parseHHMM(r.EndTime)
	return TimeSlot{
		Start: d.at(start/60, start%60, loc),
		End:   d.at(end/60, end%60, loc),
	}
}

type ruleSet struct {
	rules      []AvailabilityRule
	locations  []*time.Location
	defaultLoc *time.Location
}

// newRuleSet validates every rule and resolves its location up front so a
// single malformed rule rejects the whole call.
func newRuleSet(rules []AvailabilityRule, defaultLoc *time.Location) (*ruleSet, error) {
	rs := &ruleSet{
		rules:      rules,
		locations:  make([]*time.Location, len(rules)),
		defaultLoc: defaultLoc,
	}
	for i, r := range rules {
		if err := validateRule(r); err != nil {
			return nil, err
		}
		loc := defaultLoc
		if tz := strings.TrimSpace(r.Timezone); tz != "" {
			l, err := time.LoadLocation(tz)
			if err != nil {
				return nil, validationError("rule %d: invalid timezone %q", r.ID, r.Timezone)
			}
			loc = l
		}
		rs.locations[i] = loc
	}
	return rs, nil
}

// hostLocation is the location of the first rule with an explicit timezone.
func (rs *ruleSet) hostLocation() *time.Location {
	for i, r := range rs.rules {
		if strings.TrimSpace(r.Timezone) != "" {
			return rs.locations[i]
		}
	}
	return rs.defaultLoc
}

// resolve returns the open intervals and the blocked intervals on d.
func (rs *ruleSet) resolve(d civilDate) (open, blocked []TimeSlot) {
	for i, r := range rs.rules {
		if !r.matches(d) {
			continue
		}
		iv := r.interval(d, rs.locations[i])
		if r.IsBlocking() {
			blocked = append(blocked, iv)
			continue
		}
		open = append(open, iv)
	}
	return open, blocked
}
