package fleet

import "time"

// Default maintenance intervals applied when a vehicle row carries no
// explicit configuration. These match the historical spreadsheet columns
// that were frequently left blank.
const (
	DefaultMileageInterval    = 20000.0
	DefaultTimeIntervalMonths = 24
)

// Intervals is a vehicle's maintenance configuration with all defaults
// resolved. It is built once per vehicle at load time so fallback logic
// lives here instead of being scattered across every use site.
type Intervals struct {
	CurrentOdometer    float64
	MileageInterval    float64
	TimeIntervalMonths int
	InspectionDue      *time.Time
}

// ResolveIntervals fills in defaults for absent or nonsensical config
// values: a non-positive mileage or time interval falls back to the
// defaults above, a negative odometer to 0.
func ResolveIntervals(odometer, mileageInterval float64, timeIntervalMonths int, inspectionDue *time.Time) Intervals {
	iv := Intervals{
		CurrentOdometer:    odometer,
		MileageInterval:    mileageInterval,
		TimeIntervalMonths: timeIntervalMonths,
		InspectionDue:      inspectionDue,
	}
	if iv.CurrentOdometer < 0 {
		iv.CurrentOdometer = 0
	}
	if iv.MileageInterval <= 0 {
		iv.MileageInterval = DefaultMileageInterval
	}
	if iv.TimeIntervalMonths <= 0 {
		iv.TimeIntervalMonths = DefaultTimeIntervalMonths
	}
	return iv
}
