package history

import (
	"testing"
	"time"

	"github.com/fleetkeep/fleetkeep/internal/storage"
)

func d(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestMostRecentNoHistory(t *testing.T) {
	events := []storage.ServiceEvent{
		{ID: "1", Plate: "X-YZ 1", Date: d("2024-01-01"), Cost: 100},
	}

	if _, ok := MostRecent("B-AB 123", events); ok {
		t.Error("expected no history for unknown plate")
	}
	if _, ok := MostRecent("B-AB 123", nil); ok {
		t.Error("expected no history for empty collection")
	}
}

func TestMostRecentSkipsUndatedEvents(t *testing.T) {
	events := []storage.ServiceEvent{
		{ID: "1", Plate: "B-AB 123", Date: time.Time{}, Cost: 500, Odometer: 90000},
		{ID: "2", Plate: "B-AB 123", Date: d("2023-06-01"), Cost: 120, Odometer: 80000},
	}

	e, ok := MostRecent("B-AB 123", events)
	if !ok {
		t.Fatal("expected history")
	}
	if e.ID != "2" {
		t.Errorf("MostRecent picked %s, want 2 (undated event must be excluded)", e.ID)
	}

	// A vehicle with only undated events has no usable history.
	if _, ok := MostRecent("B-AB 123", events[:1]); ok {
		t.Error("expected no history when all events are undated")
	}
}

func TestMostRecentPicksMaxDate(t *testing.T) {
	events := []storage.ServiceEvent{
		{ID: "old", Plate: "B-AB 123", Date: d("2022-01-01")},
		{ID: "new", Plate: "B-AB 123", Date: d("2024-07-15")},
		{ID: "mid", Plate: "b-ab 123 ", Date: d("2023-03-03")}, // unnormalized plate still matches
	}

	e, ok := MostRecent("B-AB 123", events)
	if !ok || e.ID != "new" {
		t.Errorf("MostRecent = %v ok=%v, want new", e.ID, ok)
	}
}

func TestMostRecentTieBreak(t *testing.T) {
	date := d("2024-05-05")
	events := []storage.ServiceEvent{
		{ID: "low", Plate: "B-AB 123", Date: date, Odometer: 40000},
		{ID: "high", Plate: "B-AB 123", Date: date, Odometer: 45000},
		{ID: "also-low", Plate: "B-AB 123", Date: date, Odometer: 40000},
	}

	e, _ := MostRecent("B-AB 123", events)
	if e.ID != "high" {
		t.Errorf("tie-break picked %s, want high (greater odometer wins)", e.ID)
	}

	// Equal date and odometer: the later snapshot position wins.
	e, _ = MostRecent("B-AB 123", []storage.ServiceEvent{events[0], events[2]})
	if e.ID != "also-low" {
		t.Errorf("tie-break picked %s, want also-low (later position wins)", e.ID)
	}
}

func TestTotalCost(t *testing.T) {
	events := []storage.ServiceEvent{
		{Plate: "B-AB 123", Date: d("2024-01-01"), Cost: 350},
		{Plate: "B-AB 123", Date: time.Time{}, Cost: 120.5}, // bad date still counts
		{Plate: "X-YZ 1", Date: d("2024-01-01"), Cost: 9999},
	}

	if got := TotalCost("B-AB 123", events); got != 470.5 {
		t.Errorf("TotalCost = %v, want 470.5", got)
	}
	if got := TotalCost("UNKNOWN", events); got != 0 {
		t.Errorf("TotalCost for unknown plate = %v, want 0", got)
	}
}

func TestMileageSeries(t *testing.T) {
	events := []storage.ServiceEvent{
		{Plate: "B-AB 123", Date: d("2024-06-01"), Odometer: 52000},
		{Plate: "B-AB 123", Date: d("2023-01-15"), Odometer: 40000},
		{Plate: "B-AB 123", Date: time.Time{}, Odometer: 99999}, // undated, omitted
		{Plate: "X-YZ 1", Date: d("2023-06-01"), Odometer: 12000},
	}

	points := MileageSeries("B-AB 123", events)
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if points[0].Date != "2023-01-15" || points[0].Odometer != 40000 {
		t.Errorf("first point = %+v, want 2023-01-15/40000", points[0])
	}
	if points[1].Date != "2024-06-01" || points[1].Odometer != 52000 {
		t.Errorf("second point = %+v, want 2024-06-01/52000", points[1])
	}
}

func TestMostRecentIsPure(t *testing.T) {
	events := []storage.ServiceEvent{
		{ID: "a", Plate: "B-AB 123", Date: d("2024-01-02"), Odometer: 10},
		{ID: "b", Plate: "B-AB 123", Date: d("2024-01-01"), Odometer: 20},
	}

	first, _ := MostRecent("B-AB 123", events)
	second, _ := MostRecent("B-AB 123", events)
	if first.ID != second.ID {
		t.Errorf("repeated evaluation differed: %s then %s", first.ID, second.ID)
	}
	if events[0].ID != "a" || events[1].ID != "b" {
		t.Error("input snapshot was mutated")
	}
}
