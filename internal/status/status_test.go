package status

import (
	"testing"
	"time"

	"github.com/fleetkeep/fleetkeep/internal/fleet"
	"github.com/fleetkeep/fleetkeep/internal/storage"
)

func d(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestMaintenanceNoHistory(t *testing.T) {
	iv := fleet.ResolveIntervals(25000, 20000, 24, nil)

	st := EvaluateMaintenance(iv, storage.ServiceEvent{}, false, d("2025-01-10"))
	if st.State != NoData {
		t.Errorf("State = %s, want NO_DATA", st.State)
	}
	if st.DistanceSinceService != 0 || st.MonthsSinceService != 0 {
		t.Errorf("NO_DATA must not carry derived values: %+v", st)
	}
}

func TestMaintenanceOverdueByDistance(t *testing.T) {
	iv := fleet.ResolveIntervals(25000, 20000, 24, nil)
	last := storage.ServiceEvent{Date: d("2024-12-01"), Odometer: 4000}

	st := EvaluateMaintenance(iv, last, true, d("2025-01-10"))
	if st.State != Overdue {
		t.Fatalf("State = %s, want OVERDUE", st.State)
	}
	if st.DistanceSinceService != 21000 {
		t.Errorf("DistanceSinceService = %v, want 21000", st.DistanceSinceService)
	}
	if !st.OverDistance {
		t.Error("OverDistance not reported")
	}
	if st.OverTime {
		t.Error("OverTime wrongly reported")
	}
}

func TestMaintenanceDueSoonByDistance(t *testing.T) {
	iv := fleet.ResolveIntervals(20500, 20000, 24, nil)
	last := storage.ServiceEvent{Date: d("2024-12-01"), Odometer: 4000}

	st := EvaluateMaintenance(iv, last, true, d("2025-01-10"))
	if st.State != DueSoon {
		t.Fatalf("State = %s, want DUE_SOON (16500 >= 0.8*20000)", st.State)
	}
	if st.RemainingDistance != 3500 {
		t.Errorf("RemainingDistance = %v, want 3500", st.RemainingDistance)
	}
}

func TestMaintenanceOverdueByCalendarMonths(t *testing.T) {
	// Service on 2023-01-15, today 2025-01-10: exactly 24 calendar-month
	// boundaries even though the day of month has not been reached yet.
	iv := fleet.ResolveIntervals(5000, 20000, 24, nil)
	last := storage.ServiceEvent{Date: d("2023-01-15"), Odometer: 4000}

	st := EvaluateMaintenance(iv, last, true, d("2025-01-10"))
	if st.MonthsSinceService != 24 {
		t.Fatalf("MonthsSinceService = %d, want 24", st.MonthsSinceService)
	}
	if st.State != Overdue {
		t.Errorf("State = %s, want OVERDUE by time", st.State)
	}
	if !st.OverTime || st.OverDistance {
		t.Errorf("breach flags = distance:%v time:%v, want time only", st.OverDistance, st.OverTime)
	}
}

func TestMaintenanceDueSoonByTime(t *testing.T) {
	// 20 of 24 months elapsed: 20 >= 0.8*24.
	iv := fleet.ResolveIntervals(5000, 20000, 24, nil)
	last := storage.ServiceEvent{Date: d("2023-05-20"), Odometer: 4000}

	st := EvaluateMaintenance(iv, last, true, d("2025-01-10"))
	if st.State != DueSoon {
		t.Errorf("State = %s, want DUE_SOON (20 months of 24)", st.State)
	}
	if st.RemainingMonths != 4 {
		t.Errorf("RemainingMonths = %d, want 4", st.RemainingMonths)
	}
}

func TestMaintenanceOK(t *testing.T) {
	iv := fleet.ResolveIntervals(10000, 20000, 24, nil)
	last := storage.ServiceEvent{Date: d("2024-12-01"), Odometer: 5000}

	st := EvaluateMaintenance(iv, last, true, d("2025-01-10"))
	if st.State != OK {
		t.Errorf("State = %s, want OK", st.State)
	}
	if st.RemainingDistance != 15000 {
		t.Errorf("RemainingDistance = %v, want 15000", st.RemainingDistance)
	}
}

func TestMaintenanceNegativeDistanceNotClamped(t *testing.T) {
	// Odometer went backwards (data inconsistency): the raw negative value
	// propagates and the threshold comparison yields OK.
	iv := fleet.ResolveIntervals(3000, 20000, 24, nil)
	last := storage.ServiceEvent{Date: d("2024-12-01"), Odometer: 5000}

	st := EvaluateMaintenance(iv, last, true, d("2025-01-10"))
	if st.DistanceSinceService != -2000 {
		t.Errorf("DistanceSinceService = %v, want -2000 (unclamped)", st.DistanceSinceService)
	}
	if st.State != OK {
		t.Errorf("State = %s, want OK", st.State)
	}
}

func TestMaintenanceBothDimensionsBreach(t *testing.T) {
	iv := fleet.ResolveIntervals(30000, 20000, 12, nil)
	last := storage.ServiceEvent{Date: d("2022-01-01"), Odometer: 1000}

	st := EvaluateMaintenance(iv, last, true, d("2025-01-10"))
	if st.State != Overdue {
		t.Fatalf("State = %s, want OVERDUE", st.State)
	}
	if !st.OverDistance || !st.OverTime {
		t.Errorf("both breaches must be reported, got distance:%v time:%v", st.OverDistance, st.OverTime)
	}
}

func TestInspectionNoDate(t *testing.T) {
	st := EvaluateInspection(nil, d("2025-01-10"))
	if st.State != NoData {
		t.Errorf("State = %s, want NO_DATA", st.State)
	}
}

func TestInspectionDueSoon(t *testing.T) {
	today := d("2025-01-10")
	due := today.AddDate(0, 0, 10)

	st := EvaluateInspection(&due, today)
	if st.State != DueSoon {
		t.Errorf("State = %s, want DUE_SOON", st.State)
	}
	if st.DaysRemaining != 10 {
		t.Errorf("DaysRemaining = %d, want 10", st.DaysRemaining)
	}
}

func TestInspectionExpiredYesterday(t *testing.T) {
	today := d("2025-01-10")
	due := today.AddDate(0, 0, -1)

	st := EvaluateInspection(&due, today)
	if st.State != Expired {
		t.Errorf("State = %s, want EXPIRED", st.State)
	}
	if st.DaysRemaining != -1 {
		t.Errorf("DaysRemaining = %d, want -1", st.DaysRemaining)
	}
}

func TestInspectionBoundaries(t *testing.T) {
	today := d("2025-01-10")

	zero := today
	if st := EvaluateInspection(&zero, today); st.State != DueSoon || st.DaysRemaining != 0 {
		t.Errorf("due today: %+v, want DUE_SOON/0", st)
	}

	at59 := today.AddDate(0, 0, 59)
	if st := EvaluateInspection(&at59, today); st.State != DueSoon {
		t.Errorf("59 days out = %s, want DUE_SOON", st.State)
	}

	at60 := today.AddDate(0, 0, 60)
	if st := EvaluateInspection(&at60, today); st.State != OK {
		t.Errorf("60 days out = %s, want OK", st.State)
	}
}

func TestSeverityOrdering(t *testing.T) {
	order := []State{NoData, OK, DueSoon, Overdue}
	for i := 1; i < len(order); i++ {
		if order[i].Severity() <= order[i-1].Severity() {
			t.Errorf("severity(%s) should exceed severity(%s)", order[i], order[i-1])
		}
	}
	if Expired.Severity() != Overdue.Severity() {
		t.Error("EXPIRED and OVERDUE should share the top severity")
	}

	if Worst(OK, Expired) != Expired {
		t.Error("Worst(OK, EXPIRED) should be EXPIRED")
	}
	if Worst(Overdue, DueSoon) != Overdue {
		t.Error("Worst(OVERDUE, DUE_SOON) should be OVERDUE")
	}
}

func TestEvaluationIsIdempotent(t *testing.T) {
	iv := fleet.ResolveIntervals(25000, 20000, 24, nil)
	last := storage.ServiceEvent{Date: d("2024-01-15"), Odometer: 4000}
	today := d("2025-01-10")

	a := EvaluateMaintenance(iv, last, true, today)
	b := EvaluateMaintenance(iv, last, true, today)
	if a != b {
		t.Errorf("repeated evaluation differed: %+v vs %+v", a, b)
	}
}
