package schedule

import (
	"testing"
	"time"
)

const layout = "2006-01-02 15:04:05"

func mustNew(t *testing.T, expression, tz string) *Schedule {
	t.Helper()
	s, err := New("s", expression, tz, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func format(times []time.Time) []string {
	out := make([]string, len(times))
	for i, ts := range times {
		out[i] = ts.Format(layout)
	}
	return out
}

func TestTimes_Quarterly(t *testing.T) {
	t.Parallel()
	s := mustNew(t, "*/30 */12 23 */3 *", "Asia/Bangkok")
	from, err := s.ParseTime("2024-01-01 12:00:00")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		prev bool
		want []string
	}{
		{"next", false, []string{
			"2024-01-23 00:00:00",
			"2024-01-23 00:30:00",
			"2024-01-23 12:00:00",
			"2024-01-23 12:30:00",
		}},
		{"prev", true, []string{
			"2023-10-23 12:30:00",
			"2023-10-23 12:00:00",
			"2023-10-23 00:30:00",
			"2023-10-23 00:00:00",
			"2023-07-23 12:30:00",
			"2023-07-23 12:00:00",
			"2023-07-23 00:30:00",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := format(s.Times(from, len(tt.want), tt.prev))
			if len(got) != len(tt.want) {
				t.Fatalf("times = %v", got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("times[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
	if name, _ := s.Times(from, 1, false)[0].Zone(); name != "+07" {
		t.Errorf("zone = %s", name)
	}
}

func TestPrev_DayFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cron string
		from string
		want string
	}{
		{"weekdays only", "0 9 * * 1-5", "2024-05-06 08:00:00", "2024-05-03 09:00:00"},
		{"day of month or weekday", "0 0 15 * 0", "2024-05-14 00:00:00", "2024-05-12 00:00:00"},
		{"sub-minute start", "30 10 * * *", "2024-05-06 10:30:45", "2024-05-06 10:30:00"},
		{"exact match excluded", "30 10 * * *", "2024-05-06 10:30:00", "2024-05-05 10:30:00"},
		{"leap day", "0 0 29 2 *", "2025-01-01 00:00:00", "2024-02-29 00:00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := mustNew(t, tt.cron, "")
			from, err := s.ParseTime(tt.from)
			if err != nil {
				t.Fatal(err)
			}
			if got := s.Prev(from).Format(layout); got != tt.want {
				t.Errorf("prev = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNext_AbsoluteStart(t *testing.T) {
	t.Parallel()
	s := mustNew(t, "0 9 * * *", "Asia/Bangkok")
	// 01:30 UTC is 08:30 in Bangkok
	from, err := s.ParseTime("2024-05-06T01:30:00Z")
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Next(from).Format(layout); got != "2024-05-06 09:00:00" {
		t.Errorf("next = %s", got)
	}
	if _, err := s.ParseTime("tomorrow"); err == nil {
		t.Error("bad start accepted")
	}
}

func TestTimes_NothingMatches(t *testing.T) {
	t.Parallel()
	s := mustNew(t, "0 0 30 2 *", "")
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := s.Times(from, 3, false); len(got) != 0 {
		t.Errorf("next = %v", got)
	}
	if got := s.Times(from, 3, true); len(got) != 0 {
		t.Errorf("prev = %v", got)
	}
}

func TestInterval(t *testing.T) {
	t.Parallel()
	tests := []struct {
		interval, day, clock string
		want                 string
		wantErr              bool
	}{
		{"daily", "", "01:30", "30 1 * * *", false},
		{"weekly", "friday", "18:30", "30 18 * * 5", false},
		{"weekly", "", "", "0 0 * * 1", false},
		{"monthly", "", "00:00", "0 0 1 * *", false},
		{"hourly", "", "", "", true},
		{"weekly", "someday", "", "", true},
		{"daily", "", "25:00", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.interval+"/"+tt.day+"/"+tt.clock, func(t *testing.T) {
			t.Parallel()
			got, err := Interval(tt.interval, tt.day, tt.clock)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Errorf("cron = %q, want %q", got, tt.want)
			}
		})
	}
}
