// README: Peak-hour windows parsed from "HH:MM-HH:MM" lists and evaluated in the configured timezone.
package eta

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PeakWindow is a half-open [Start, End) range in minutes since midnight.
// End < Start wraps past midnight.
type PeakWindow struct {
	Start int
	End   int
}

func (w PeakWindow) contains(minute int) bool {
	if w.Start <= w.End {
		return minute >= w.Start && minute < w.End
	}
	return minute >= w.Start || minute < w.End
}

type PeakSchedule struct {
	windows []PeakWindow
	loc     *time.Location
}

// ParsePeakSchedule parses e.g. "12:00-14:00,19:00-22:00". An empty schedule
// yields a schedule that is never peak. timezone "" or "Local" uses the
// process zone.
func ParsePeakSchedule(schedule, timezone string) (*PeakSchedule, error) {
	loc := time.Local
	if timezone != "" && timezone != "Local" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
		loc = l
	}

	s := &PeakSchedule{loc: loc}
	for _, part := range strings.Split(schedule, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.SplitN(part, "-", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("peak window %q: want HH:MM-HH:MM", part)
		}
		start, err := parseClock(bounds[0])
		if err != nil {
			return nil, fmt.Errorf("peak window %q: %w", part, err)
		}
		end, err := parseClock(bounds[1])
		if err != nil {
			return nil, fmt.Errorf("peak window %q: %w", part, err)
		}
		if start == end {
			return nil, fmt.Errorf("peak window %q is empty", part)
		}
		s.windows = append(s.windows, PeakWindow{Start: start, End: end})
	}
	return s, nil
}

func (s *PeakSchedule) IsPeak(t time.Time) bool {
	if s == nil {
		return false
	}
	local := t.In(s.loc)
	minute := local.Hour()*60 + local.Minute()
	for _, w := range s.windows {
		if w.contains(minute) {
			return true
		}
	}
	return false
}

func parseClock(v string) (int, error) {
	hm := strings.SplitN(strings.TrimSpace(v), ":", 2)
	if len(hm) != 2 {
		return 0, fmt.Errorf("bad time %q", v)
	}
	h, err := strconv.Atoi(hm[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("bad hour in %q", v)
	}
	m, err := strconv.Atoi(hm[1])
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("bad minute in %q", v)
	}
	return h*60 + m, nil
}
