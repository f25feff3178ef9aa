package availability

import (
	"testing"
	"time"

	"github.com/bookpage-app/bookpage/internal/model"
)

func workday(open, close int) model.DayHours {
	return model.DayHours{Weekday: 3, Enabled: true, OpenMinute: open, CloseMinute: close}
}

func TestGrid_FullWorkday(t *testing.T) {
	offsets := Grid(9*60, 17*60, 30, 30)
	if len(offsets) != 16 {
		t.Fatalf("expected 16 slots for 09:00-17:00 at 30m, got %d", len(offsets))
	}
	if Label(offsets[0]) != "9:00 AM" {
		t.Fatalf("expected first slot 9:00 AM, got %s", Label(offsets[0]))
	}
	if Label(offsets[len(offsets)-1]) != "4:30 PM" {
		t.Fatalf("expected last slot 4:30 PM, got %s", Label(offsets[len(offsets)-1]))
	}
}

func TestGrid_WindowShorterThanDuration(t *testing.T) {
	if offsets := Grid(9*60, 9*60+20, 30, 30); len(offsets) != 0 {
		t.Fatalf("expected no slots for a 20-minute window, got %v", offsets)
	}
}

func TestLabel(t *testing.T) {
	cases := map[int]string{
		0:    "12:00 AM",
		540:  "9:00 AM",
		720:  "12:00 PM",
		990:  "4:30 PM",
		1425: "11:45 PM",
	}
	for minute, want := range cases {
		if got := Label(minute); got != want {
			t.Errorf("Label(%d) = %q, want %q", minute, got, want)
		}
	}
}

func TestAvailableSlots_ExcludesOverlaps(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 2, 4, 0, 0, 0, 0, loc)

	// Existing 60-minute booking at 10:00.
	busy := []Interval{
		{Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour)},
	}

	slots := AvailableSlots(day, workday(9*60, 17*60), 30, 30, busy, day)

	offered := map[string]bool{}
	for _, s := range slots {
		offered[s.Label] = true
	}
	for _, label := range []string{"10:00 AM", "10:30 AM"} {
		if offered[label] {
			t.Errorf("slot %s overlaps the booking and must not be offered", label)
		}
	}
	for _, label := range []string{"9:30 AM", "11:00 AM"} {
		if !offered[label] {
			t.Errorf("slot %s does not overlap and must be offered", label)
		}
	}
}

func TestAvailableSlots_ServiceDurationWiderThanStep(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 2, 4, 0, 0, 0, 0, loc)

	// Booking at 11:00-12:00 on a 30-minute grid. A 90-minute service
	// starting 10:00 runs until 11:30 and conflicts; 09:30 ends exactly
	// at 11:00 and does not.
	busy := []Interval{
		{Start: day.Add(11 * time.Hour), End: day.Add(12 * time.Hour)},
	}

	slots := AvailableSlots(day, workday(9*60, 17*60), 30, 90, busy, day)
	offered := map[string]bool{}
	for _, s := range slots {
		offered[s.Label] = true
	}
	if !offered["9:30 AM"] {
		t.Error("9:30 AM ends exactly at 11:00 and must be offered (touching endpoints do not overlap)")
	}
	for _, label := range []string{"10:00 AM", "10:30 AM", "11:00 AM", "11:30 AM"} {
		if offered[label] {
			t.Errorf("slot %s would overlap the 11:00 booking for a 90-minute service", label)
		}
	}
}

func TestAvailableSlots_ExcludesPast(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 2, 4, 0, 0, 0, 0, loc)
	now := day.Add(10*time.Hour + 15*time.Minute)

	slots := AvailableSlots(day, workday(9*60, 17*60), 30, 30, nil, now)
	if len(slots) == 0 {
		t.Fatal("expected remaining slots for the day")
	}
	if slots[0].Label != "10:30 AM" {
		t.Fatalf("expected first offerable slot 10:30 AM at 10:15, got %s", slots[0].Label)
	}
}

func TestAvailableSlots_DisabledDay(t *testing.T) {
	day := time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)
	closed := model.DayHours{Weekday: 0, Enabled: false}
	if slots := AvailableSlots(day, closed, 30, 30, nil, day); len(slots) != 0 {
		t.Fatalf("expected no slots on a disabled day, got %d", len(slots))
	}
}

func TestAvailableSlots_Deterministic(t *testing.T) {
	day := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)
	a := AvailableSlots(day, workday(9*60, 12*60), 30, 30, nil, day)
	b := AvailableSlots(day, workday(9*60, 12*60), 30, 30, nil, day)
	if len(a) != len(b) {
		t.Fatalf("expected identical output, got %d vs %d slots", len(a), len(b))
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) || a[i].Label != b[i].Label {
			t.Fatalf("slot %d differs between runs", i)
		}
	}
}
