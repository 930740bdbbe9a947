// Package slot picks publish instants from a fixed set of daily windows.
package slot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SearchHorizonDays bounds how far ahead Next looks for a window.
const SearchHorizonDays = 14

// Window is a time of day in the scheduler's location.
type Window struct {
	Hour   int
	Minute int
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d", w.Hour, w.Minute)
}

// ParseWindow parses an "HH:MM" clock time.
func ParseWindow(s string) (Window, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return Window{}, fmt.Errorf("window %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return Window{}, fmt.Errorf("window %q: invalid hour", s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return Window{}, fmt.Errorf("window %q: invalid minute", s)
	}
	return Window{Hour: hour, Minute: minute}, nil
}

// ParseWindows parses a comma separated list, skipping empty entries.
func ParseWindows(s string) ([]Window, error) {
	ret := make([]Window, 0)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		w, err := ParseWindow(part)
		if err != nil {
			return nil, err
		}
		ret = append(ret, w)
	}
	return ret, nil
}

// Scheduler computes publish slots. It holds no clock; callers pass now.
type Scheduler struct {
	windows  []Window
	location *time.Location
}

func New(windows []Window, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		windows:  append([]Window(nil), windows...),
		location: loc,
	}
}

func (s *Scheduler) Windows() []Window {
	return append([]Window(nil), s.windows...)
}

func (s *Scheduler) Location() *time.Location {
	return s.location
}

// Next returns the first window instant strictly after max(now, after).
// Windows are evaluated day by day in listed order. With no windows the
// reference is returned unchanged; if the horizon holds no match the
// reference plus one day is returned.
func (s *Scheduler) Next(now time.Time, after *time.Time) time.Time {
	ref := now
	if after != nil && after.After(now) {
		ref = *after
	}
	if len(s.windows) == 0 {
		return ref
	}

	local := ref.In(s.location)
	for day := 0; day < SearchHorizonDays; day++ {
		y, m, d := local.Date()
		for _, w := range s.windows {
			// time.Date normalises day overflow and DST gaps.
			candidate := time.Date(y, m, d+day, w.Hour, w.Minute, 0, 0, s.location)
			if candidate.After(ref) {
				return candidate
			}
		}
	}
	return ref.Add(24 * time.Hour)
}
