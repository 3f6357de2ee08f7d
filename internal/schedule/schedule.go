// Package schedule computes the run times of cron schedule documents.
package schedule

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"go-workflow/internal/expr"
	"go-workflow/internal/model"
)

// parser accepts the classic five fields plus descriptors like @daily.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// starBit marks a field written as * or ?, which changes how day of month
// and day of week combine.
const starBit = 1 << 63

// searchYears bounds the search for a matching time.
const searchYears = 5

// Schedule is a parsed schedule document.
type Schedule struct {
	Name   string     `json:"name"`
	Cron   string     `json:"cron"`
	TZ     string     `json:"tz"`
	Extras *model.Map `json:"extras,omitempty"`

	spec *cron.SpecSchedule
	loc  *time.Location
}

// New parses expression in the named zone. An empty zone means UTC.
func New(name, expression, tz string, extras *model.Map) (*Schedule, error) {
	if tz == "" || strings.EqualFold(tz, "utc") {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	if strings.HasPrefix(expression, "TZ=") || strings.HasPrefix(expression, "CRON_TZ=") {
		return nil, fmt.Errorf("set the zone with tz, not inside the expression")
	}
	parsed, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}
	spec, ok := parsed.(*cron.SpecSchedule)
	if !ok {
		// @every yields a fixed interval with no calendar to walk back on
		return nil, fmt.Errorf("cron expression %q is not a calendar schedule", expression)
	}
	return &Schedule{Name: name, Cron: expression, TZ: tz, Extras: extras, spec: spec, loc: loc}, nil
}

// Location is the zone the expression is evaluated in.
func (s *Schedule) Location() *time.Location { return s.loc }

// Next returns the first matching time strictly after t, in the schedule's
// zone. The zero time means nothing matches within five years.
func (s *Schedule) Next(t time.Time) time.Time {
	next := s.spec.Next(t.In(s.loc))
	if next.IsZero() {
		return next
	}
	return next.In(s.loc)
}

// Prev returns the last matching time strictly before t.
func (s *Schedule) Prev(t time.Time) time.Time {
	t = t.In(s.loc)
	if rest := time.Duration(t.Second())*time.Second + time.Duration(t.Nanosecond()); rest > 0 {
		t = t.Add(-rest)
	} else {
		t = t.Add(-time.Minute)
	}
	limit := t.AddDate(-searchYears, 0, 0)
	for !t.Before(limit) {
		y, m, d := t.Date()
		var back time.Time
		switch {
		case s.spec.Month&(1<<uint(m)) == 0:
			back = time.Date(y, m, 1, 0, 0, 0, 0, s.loc).Add(-time.Minute)
		case !s.dayMatches(t):
			back = time.Date(y, m, d, 0, 0, 0, 0, s.loc).Add(-time.Minute)
		case s.spec.Hour&(1<<uint(t.Hour())) == 0:
			back = time.Date(y, m, d, t.Hour(), 0, 0, 0, s.loc).Add(-time.Minute)
		case s.spec.Minute&(1<<uint(t.Minute())) == 0:
			back = t.Add(-time.Minute)
		default:
			return t
		}
		// wall clock dates inside a DST gap may normalize forward
		if !back.Before(t) {
			back = t.Add(-time.Minute)
		}
		t = back
	}
	return time.Time{}
}

// dayMatches follows cron: when either day field is a wildcard both must
// match, otherwise either may.
func (s *Schedule) dayMatches(t time.Time) bool {
	dom := s.spec.Dom&(1<<uint(t.Day())) != 0
	dow := s.spec.Dow&(1<<uint(t.Weekday())) != 0
	if s.spec.Dom&starBit != 0 || s.spec.Dow&starBit != 0 {
		return dom && dow
	}
	return dom || dow
}

// Times walks n matching times from t, backwards when prev is set. It stops
// early when the search bound is reached.
func (s *Schedule) Times(t time.Time, n int, prev bool) []time.Time {
	step := s.Next
	if prev {
		step = s.Prev
	}
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		t = step(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out
}

// ParseTime reads a start time. Text with an offset keeps its instant;
// anything else is wall-clock time in the schedule's zone.
func (s *Schedule) ParseTime(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if t, err := time.Parse(time.RFC3339Nano, text); err == nil {
		return t.In(s.loc), nil
	}
	t, ok := expr.ParseTime(text)
	if !ok {
		return time.Time{}, fmt.Errorf("%q is not a date or datetime", text)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), s.loc), nil
}

// Interval builds an expression from a daily, weekly or monthly interval,
// a weekday name for weekly runs and an HH:MM clock time.
func Interval(interval, day, clock string) (string, error) {
	if clock == "" {
		clock = "00:00"
	}
	at, err := time.Parse("15:04", clock)
	if err != nil {
		return "", fmt.Errorf("invalid time %q, want HH:MM", clock)
	}
	switch strings.ToLower(interval) {
	case "daily":
		return fmt.Sprintf("%d %d * * *", at.Minute(), at.Hour()), nil
	case "monthly":
		return fmt.Sprintf("%d %d 1 * *", at.Minute(), at.Hour()), nil
	case "weekly":
		if day == "" {
			day = "monday"
		}
		wd, ok := weekdays[strings.ToLower(day)[:min(3, len(day))]]
		if !ok {
			return "", fmt.Errorf("unknown weekday %q", day)
		}
		return fmt.Sprintf("%d %d * * %d", at.Minute(), at.Hour(), wd), nil
	}
	return "", fmt.Errorf("unknown interval %q, want daily, weekly or monthly", interval)
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}
