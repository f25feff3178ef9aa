package availability

import (
	"fmt"
	"time"

	"github.com/bookpage-app/bookpage/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Slot is a bookable interval on a concrete date. Start/End carry the
// business-local wall clock; Label is the display form shown on the
// booking page.
type Slot struct {
	Start time.Time
	End   time.Time
	Label string
}

// StartMinute is the slot's offset from midnight, used to match a
// customer's selection against the grid.
func (s Slot) StartMinute() int {
	return s.Start.Hour()*60 + s.Start.Minute()
}

// Grid emits slot start offsets (minutes from midnight) every stepMinutes
// from openMinute, while a slot of durationMinutes still fits before
// closeMinute. No partial slots: a window shorter than the duration
// produces an empty grid.
func Grid(openMinute, closeMinute, stepMinutes, durationMinutes int) []int {
	if stepMinutes <= 0 || durationMinutes <= 0 {
		return nil
	}
	var offsets []int
	for t := openMinute; t+durationMinutes <= closeMinute; t += stepMinutes {
		offsets = append(offsets, t)
	}
	return offsets
}

// Label formats a minutes-from-midnight offset on a 12-hour clock.
func Label(minute int) string {
	h := minute / 60
	m := minute % 60
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, m, suffix)
}

// AvailableSlots returns the offerable slots for one calendar day.
//
// day must be midnight of the date in the business's location. hours is the
// weekday schedule row for that date; a disabled day yields nothing.
// stepMinutes is the grid step (business default), durationMinutes the
// selected service's duration. The overlap test always uses the service
// duration, so a long service cannot be squeezed next to an existing
// booking even when the grid step is smaller.
//
// Overlap is half-open: [slotStart, slotEnd) conflicts with
// [busy.Start, busy.End) iff slotStart < busy.End && busy.Start < slotEnd.
// Touching endpoints do not conflict. Slots starting before now are never
// offered. Pure function; safe to re-run.
func AvailableSlots(day time.Time, hours model.DayHours, stepMinutes, durationMinutes int, busy []Interval, now time.Time) []Slot {
	if !hours.Enabled {
		return nil
	}
	loc := day.Location()
	duration := time.Duration(durationMinutes) * time.Minute

	var slots []Slot
	for _, offset := range Grid(hours.OpenMinute, hours.CloseMinute, stepMinutes, durationMinutes) {
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, offset, 0, 0, loc)
		end := start.Add(duration)
		if start.Before(now) {
			continue
		}
		if overlapsAny(start, end, busy) {
			continue
		}
		slots = append(slots, Slot{Start: start, End: end, Label: Label(offset)})
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
