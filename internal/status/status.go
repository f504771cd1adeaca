// Package status classifies vehicles into maintenance and inspection
// urgency states — the traffic light behind the dashboard. Both evaluators
// are pure, total functions: absent or malformed input degrades to NoData
// or zero, never to an error. Callers pass "today" explicitly so results
// are reproducible.
package status

import (
	"time"

	"github.com/fleetkeep/fleetkeep/internal/fleet"
	"github.com/fleetkeep/fleetkeep/internal/storage"
)

// State is one urgency classification.
type State string

const (
	NoData  State = "NO_DATA"
	OK      State = "OK"
	DueSoon State = "DUE_SOON"
	Overdue State = "OVERDUE"
	Expired State = "EXPIRED"
)

// dueSoonRatio is the fraction of an interval at which a vehicle moves
// from OK to DueSoon, on either dimension.
const dueSoonRatio = 0.8

// InspectionWarnDays is how far ahead of the inspection due date the
// status turns DueSoon.
const InspectionWarnDays = 60

// Severity orders states for rollup displays: Overdue/Expired outrank
// DueSoon, which outranks OK. NoData sorts lowest on purpose — it is
// informational, not alarming.
func (s State) Severity() int {
	switch s {
	case Overdue, Expired:
		return 3
	case DueSoon:
		return 2
	case OK:
		return 1
	default:
		return 0
	}
}

// MaintenanceStatus is the distance/time service classification for one
// vehicle. DistanceSinceService may be negative when odometer data is
// inconsistent; it is reported raw, not clamped. OverDistance and OverTime
// tell the caller which limit was breached when State is Overdue — both
// can be set at once.
type MaintenanceStatus struct {
	State                State   `json:"state"`
	DistanceSinceService float64 `json:"distance_since_service"`
	MonthsSinceService   int     `json:"months_since_service"`
	RemainingDistance    float64 `json:"remaining_distance"`
	RemainingMonths      int     `json:"remaining_months"`
	OverDistance         bool    `json:"over_distance,omitempty"`
	OverTime             bool    `json:"over_time,omitempty"`
}

// InspectionStatus is the date-based inspection classification.
type InspectionStatus struct {
	State         State `json:"state"`
	DaysRemaining int   `json:"days_remaining"`
}

// EvaluateMaintenance classifies one vehicle given its resolved interval
// config and its most recent service event. hasLast=false means the vehicle
// has no dated history and yields NoData without any comparison.
func EvaluateMaintenance(iv fleet.Intervals, last storage.ServiceEvent, hasLast bool, today time.Time) MaintenanceStatus {
	if !hasLast {
		return MaintenanceStatus{State: NoData}
	}

	distance := iv.CurrentOdometer - last.Odometer
	months := fleet.MonthsBetween(last.Date, today)

	st := MaintenanceStatus{
		State:                OK,
		DistanceSinceService: distance,
		MonthsSinceService:   months,
		RemainingDistance:    iv.MileageInterval - distance,
		RemainingMonths:      iv.TimeIntervalMonths - months,
	}

	st.OverDistance = distance >= iv.MileageInterval
	st.OverTime = months >= iv.TimeIntervalMonths
	switch {
	case st.OverDistance || st.OverTime:
		st.State = Overdue
	case distance >= dueSoonRatio*iv.MileageInterval || float64(months) >= dueSoonRatio*float64(iv.TimeIntervalMonths):
		st.State = DueSoon
	}
	return st
}

// EvaluateInspection classifies an optional inspection due date. A nil due
// date means the vehicle has no inspection tracking and yields NoData.
func EvaluateInspection(due *time.Time, today time.Time) InspectionStatus {
	if due == nil {
		return InspectionStatus{State: NoData}
	}

	days := fleet.DaysUntil(today, *due)
	st := InspectionStatus{DaysRemaining: days}
	switch {
	case days < 0:
		st.State = Expired
	case days < InspectionWarnDays:
		st.State = DueSoon
	default:
		st.State = OK
	}
	return st
}

// Worst returns the higher-severity of two states, preferring the first on
// equal severity.
func Worst(a, b State) State {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}
