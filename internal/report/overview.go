// Package report assembles the per-vehicle dashboard structures out of the
// status engine's output. It works on an immutable snapshot of the two
// collections fetched once per render pass; nothing here writes back.
package report

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fleetkeep/fleetkeep/internal/fleet"
	"github.com/fleetkeep/fleetkeep/internal/history"
	"github.com/fleetkeep/fleetkeep/internal/status"
	"github.com/fleetkeep/fleetkeep/internal/storage"
)

// VehicleOverview is everything the dashboard shows for one vehicle.
type VehicleOverview struct {
	Vehicle     storage.Vehicle          `json:"vehicle"`
	Maintenance status.MaintenanceStatus `json:"maintenance"`
	Inspection  status.InspectionStatus  `json:"inspection"`
	TotalCost   float64                  `json:"total_cost"`
	LastService *storage.ServiceEvent    `json:"last_service,omitempty"`
	Mileage     []history.MileagePoint   `json:"mileage,omitempty"`
	Worst       status.State             `json:"worst"`
}

// ForVehicle evaluates one vehicle against the event snapshot.
func ForVehicle(v storage.Vehicle, events []storage.ServiceEvent, today time.Time) VehicleOverview {
	iv := fleet.ResolveIntervals(v.CurrentOdometer, v.MileageInterval, v.TimeIntervalMonths, v.InspectionDue)

	last, hasLast := history.MostRecent(v.Plate, events)
	ov := VehicleOverview{
		Vehicle:     v,
		Maintenance: status.EvaluateMaintenance(iv, last, hasLast, today),
		Inspection:  status.EvaluateInspection(iv.InspectionDue, today),
		TotalCost:   history.TotalCost(v.Plate, events),
		Mileage:     history.MileageSeries(v.Plate, events),
	}
	if hasLast {
		ov.LastService = &last
	}
	ov.Worst = status.Worst(ov.Maintenance.State, ov.Inspection.State)
	return ov
}

// Fleet evaluates every vehicle in the snapshot. Each vehicle is an
// independent pure computation, so they run concurrently; the result is
// ordered worst severity first, then by plate.
func Fleet(ctx context.Context, vehicles []storage.Vehicle, events []storage.ServiceEvent, today time.Time) ([]VehicleOverview, error) {
	overviews := make([]VehicleOverview, len(vehicles))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, v := range vehicles {
		g.Go(func() error {
			overviews[i] = ForVehicle(v, events, today)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(overviews, func(i, j int) bool {
		si, sj := overviews[i].Worst.Severity(), overviews[j].Worst.Severity()
		if si != sj {
			return si > sj
		}
		return overviews[i].Vehicle.Plate < overviews[j].Vehicle.Plate
	})
	return overviews, nil
}
