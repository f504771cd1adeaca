// Package history projects the unordered service event collection into
// per-vehicle derived facts: the most recent event and the cumulative cost.
// Everything here is a pure function of an immutable snapshot; the store is
// never touched.
package history

import (
	"sort"

	"github.com/fleetkeep/fleetkeep/internal/fleet"
	"github.com/fleetkeep/fleetkeep/internal/storage"
)

// MostRecent returns the latest dated service event for a vehicle, matching
// plates after normalization and skipping events with a missing (zero) date.
// ok is false when the vehicle has no dated history; callers must keep that
// distinct from "serviced at zero cost".
//
// Equal dates are broken deterministically: the higher odometer reading
// wins, and if those are equal too the event appearing later in the
// snapshot does.
func MostRecent(plate string, events []storage.ServiceEvent) (storage.ServiceEvent, bool) {
	plate = fleet.NormalizePlate(plate)

	var best storage.ServiceEvent
	found := false
	for _, e := range events {
		if fleet.NormalizePlate(e.Plate) != plate || e.Date.IsZero() {
			continue
		}
		if !found {
			best, found = e, true
			continue
		}
		if e.Date.After(best.Date) {
			best = e
			continue
		}
		if e.Date.Equal(best.Date) && e.Odometer >= best.Odometer {
			best = e
		}
	}
	return best, found
}

// TotalCost sums the cost of all of a vehicle's service events. Events with
// missing dates still count: a cost-bearing row with a bad date is spend
// regardless. The result is a declared zero, not an "unknown", when the
// vehicle has no events.
func TotalCost(plate string, events []storage.ServiceEvent) float64 {
	plate = fleet.NormalizePlate(plate)

	var total float64
	for _, e := range events {
		if fleet.NormalizePlate(e.Plate) == plate {
			total += e.Cost
		}
	}
	return total
}

// MileagePoint is one sample in a vehicle's odometer history.
type MileagePoint struct {
	Date     string  `json:"date"` // "2006-01-02"
	Odometer float64 `json:"odometer"`
}

// MileageSeries returns a vehicle's dated odometer readings in ascending
// date order, ready for the km-over-time chart. Events without a parseable
// date are omitted.
func MileageSeries(plate string, events []storage.ServiceEvent) []MileagePoint {
	plate = fleet.NormalizePlate(plate)

	var points []MileagePoint
	for _, e := range events {
		if fleet.NormalizePlate(e.Plate) != plate || e.Date.IsZero() {
			continue
		}
		points = append(points, MileagePoint{
			Date:     e.Date.Format(fleet.DateLayout),
			Odometer: e.Odometer,
		})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}
