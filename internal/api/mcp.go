package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fleetkeep/fleetkeep/internal/fleet"
	"github.com/fleetkeep/fleetkeep/internal/history"
	"github.com/fleetkeep/fleetkeep/internal/report"
	"github.com/fleetkeep/fleetkeep/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store FleetStore
	Now   func() time.Time // defaults to time.Now
}

func (d MCPDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// NewMCPServer creates an MCP server with the fleet tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"fleetkeep",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("fleetkeep — fleet maintenance tracker: vehicles, service history, and due-status evaluation."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("list_vehicles",
			mcp.WithDescription("List all tracked vehicles with their configured maintenance intervals."),
		),
		mcpListVehicles(deps),
	)

	s.AddTool(
		mcp.NewTool("fleet_status",
			mcp.WithDescription("Evaluate maintenance and inspection status. Returns the whole fleet ordered worst-first, or a single vehicle when a plate is given."),
			mcp.WithString("plate", mcp.Description("License plate of a single vehicle (optional)")),
		),
		mcpFleetStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("log_service",
			mcp.WithDescription("Record a completed service for a vehicle. Amounts accept plain numbers or formatted strings like \"350,00 €\"."),
			mcp.WithString("plate", mcp.Description("License plate"), mcp.Required()),
			mcp.WithString("date", mcp.Description("Service date (YYYY-MM-DD or DD.MM.YYYY)")),
			mcp.WithString("odometer", mcp.Description("Odometer reading at service time")),
			mcp.WithString("cost", mcp.Description("Service cost")),
			mcp.WithString("description", mcp.Description("What was done")),
		),
		mcpLogService(deps),
	)

	s.AddTool(
		mcp.NewTool("total_cost",
			mcp.WithDescription("Sum all recorded service costs for a vehicle."),
			mcp.WithString("plate", mcp.Description("License plate"), mcp.Required()),
		),
		mcpTotalCost(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"fleet://overview",
			"Fleet Overview",
			mcp.WithResourceDescription("Per-vehicle maintenance, inspection, and cost rollup as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceOverview(deps),
	)

	return s
}

func mcpListVehicles(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		vehicles, err := deps.Store.ListVehicles()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list vehicles: %v", err)), nil
		}
		if vehicles == nil {
			vehicles = []storage.Vehicle{}
		}

		b, err := json.Marshal(vehicles)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal vehicles: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpFleetStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		events, err := deps.Store.ListServiceEvents()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list service events: %v", err)), nil
		}

		plate := fleet.NormalizePlate(req.GetString("plate", ""))
		if plate != "" {
			v, err := deps.Store.GetVehicle(plate)
			if err != nil {
				return mcpError(fmt.Sprintf("vehicle %s not found", plate)), nil
			}
			b, err := json.Marshal(report.ForVehicle(v, events, deps.now()))
			if err != nil {
				return mcpError(fmt.Sprintf("failed to marshal overview: %v", err)), nil
			}
			return mcpText(string(b)), nil
		}

		vehicles, err := deps.Store.ListVehicles()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list vehicles: %v", err)), nil
		}
		overviews, err := report.Fleet(ctx, vehicles, events, deps.now())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to build overview: %v", err)), nil
		}

		b, err := json.Marshal(overviews)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal overview: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpLogService(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rawPlate, err := req.RequireString("plate")
		if err != nil {
			return mcpError("plate is required"), nil
		}
		plate := fleet.NormalizePlate(rawPlate)
		if plate == "" {
			return mcpError("plate is required"), nil
		}

		e := storage.ServiceEvent{
			ID:          uuid.New().String(),
			Plate:       plate,
			Date:        fleet.ParseDate(req.GetString("date", "")),
			Odometer:    fleet.ParseCurrency(req.GetString("odometer", "")),
			Cost:        fleet.ParseCurrency(req.GetString("cost", "")),
			Description: req.GetString("description", ""),
		}
		if err := deps.Store.AddServiceEvent(e); err != nil {
			return mcpError(fmt.Sprintf("failed to add service event: %v", err)), nil
		}

		if v, err := deps.Store.GetVehicle(plate); err == nil && e.Odometer > v.CurrentOdometer {
			if err := deps.Store.UpdateVehicleOdometer(plate, e.Odometer); err != nil {
				return mcpError(fmt.Sprintf("event saved but odometer update failed: %v", err)), nil
			}
		}

		return mcpText(fmt.Sprintf("Logged service %s for %s", e.ID, plate)), nil
	}
}

func mcpTotalCost(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rawPlate, err := req.RequireString("plate")
		if err != nil {
			return mcpError("plate is required"), nil
		}
		plate := fleet.NormalizePlate(rawPlate)

		events, err := deps.Store.ListServiceEvents()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list service events: %v", err)), nil
		}

		total := history.TotalCost(plate, events)
		return mcpText(fmt.Sprintf("%.2f", total)), nil
	}
}

func mcpResourceOverview(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		vehicles, err := deps.Store.ListVehicles()
		if err != nil {
			return nil, fmt.Errorf("failed to list vehicles: %w", err)
		}
		events, err := deps.Store.ListServiceEvents()
		if err != nil {
			return nil, fmt.Errorf("failed to list service events: %w", err)
		}

		overviews, err := report.Fleet(ctx, vehicles, events, deps.now())
		if err != nil {
			return nil, fmt.Errorf("failed to build overview: %w", err)
		}

		b, err := json.Marshal(overviews)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal overview: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
