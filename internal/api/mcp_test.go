package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/fleetkeep/fleetkeep/internal/report"
	"github.com/fleetkeep/fleetkeep/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Store: store,
		Now:   func() time.Time { return testToday },
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_ListVehicles(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpListVehicles(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_vehicles", nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if toolText(t, result) != "[]" {
		t.Errorf("empty fleet: got %q, want []", toolText(t, result))
	}

	if err := store.AddVehicle(storage.Vehicle{Plate: "B-A 1", Make: "VW"}); err != nil {
		t.Fatal(err)
	}

	result, err = handler(context.Background(), makeCallToolRequest("list_vehicles", nil))
	if err != nil {
		t.Fatal(err)
	}
	var vehicles []storage.Vehicle
	if err := json.Unmarshal([]byte(toolText(t, result)), &vehicles); err != nil {
		t.Fatalf("unmarshaling result: %v", err)
	}
	if len(vehicles) != 1 || vehicles[0].Plate != "B-A 1" {
		t.Errorf("vehicles = %+v", vehicles)
	}
}

func TestMCPTool_FleetStatus_SinglePlate(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpFleetStatus(deps)

	if err := store.AddVehicle(storage.Vehicle{
		Plate: "B-A 1", CurrentOdometer: 70000, MileageInterval: 20000, TimeIntervalMonths: 24,
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.AddServiceEvent(storage.ServiceEvent{
		ID: "e1", Plate: "B-A 1", Date: testToday.AddDate(0, -3, 0), Odometer: 40000,
	}); err != nil {
		t.Fatal(err)
	}

	result, err := handler(context.Background(), makeCallToolRequest("fleet_status", map[string]interface{}{"plate": "b-a 1"}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var ov report.VehicleOverview
	if err := json.Unmarshal([]byte(toolText(t, result)), &ov); err != nil {
		t.Fatal(err)
	}
	if ov.Maintenance.State != "OVERDUE" {
		t.Errorf("state = %s, want OVERDUE", ov.Maintenance.State)
	}
}

func TestMCPTool_FleetStatus_UnknownPlate(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpFleetStatus(deps)

	result, err := handler(context.Background(), makeCallToolRequest("fleet_status", map[string]interface{}{"plate": "NOPE"}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected tool error for unknown plate")
	}
}

func TestMCPTool_LogService(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpLogService(deps)

	if err := store.AddVehicle(storage.Vehicle{Plate: "B-A 1", CurrentOdometer: 40000}); err != nil {
		t.Fatal(err)
	}

	result, err := handler(context.Background(), makeCallToolRequest("log_service", map[string]interface{}{
		"plate":       "b-a 1",
		"date":        "01.06.2025",
		"odometer":    "45.000,0",
		"cost":        "350,00 €",
		"description": "Inspektion",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	events, err := store.ListServiceEvents()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	e := events[0]
	if e.Plate != "B-A 1" || e.Cost != 350 || e.Odometer != 45000 {
		t.Errorf("event = %+v", e)
	}
	if e.Date.Format("2006-01-02") != "2025-06-01" {
		t.Errorf("Date = %v", e.Date)
	}

	v, _ := store.GetVehicle("B-A 1")
	if v.CurrentOdometer != 45000 {
		t.Errorf("odometer not bumped: %v", v.CurrentOdometer)
	}
}

func TestMCPTool_LogService_MissingPlate(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpLogService(deps)

	result, err := handler(context.Background(), makeCallToolRequest("log_service", map[string]interface{}{}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected tool error when plate is missing")
	}
}

func TestMCPTool_TotalCost(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpTotalCost(deps)

	for _, e := range []storage.ServiceEvent{
		{ID: "e1", Plate: "B-A 1", Cost: 350.5},
		{ID: "e2", Plate: "B-A 1", Cost: 120},
		{ID: "e3", Plate: "OTHER", Cost: 999},
	} {
		if err := store.AddServiceEvent(e); err != nil {
			t.Fatal(err)
		}
	}

	result, err := handler(context.Background(), makeCallToolRequest("total_cost", map[string]interface{}{"plate": "b-a 1"}))
	if err != nil {
		t.Fatal(err)
	}
	if got := toolText(t, result); got != "470.50" {
		t.Errorf("total = %q, want 470.50", got)
	}
}

func TestMCPResource_Overview(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpResourceOverview(deps)

	if err := store.AddVehicle(storage.Vehicle{Plate: "B-A 1"}); err != nil {
		t.Fatal(err)
	}

	contents, err := handler(context.Background(), makeReadResourceRequest("fleet://overview"))
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var overviews []report.VehicleOverview
	if err := json.Unmarshal([]byte(tc.Text), &overviews); err != nil {
		t.Fatal(err)
	}
	if len(overviews) != 1 {
		t.Fatalf("got %d overviews, want 1", len(overviews))
	}
	// Never serviced, no inspection date: informational, not alarming.
	if overviews[0].Maintenance.State != "NO_DATA" {
		t.Errorf("state = %s, want NO_DATA", overviews[0].Maintenance.State)
	}
}
