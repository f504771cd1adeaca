package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fleetkeep/fleetkeep/internal/config"
	"github.com/fleetkeep/fleetkeep/internal/fleet"
)

// --- vehicle ---

var vehicleCmd = &cobra.Command{
	Use:   "vehicle",
	Short: "Manage tracked vehicles",
}

var vehicleAddCmd = &cobra.Command{
	Use:   "add <plate>",
	Short: "Add a vehicle to the fleet",
	Long: `Add a vehicle to the fleet.

Numeric flags accept plain numbers or formatted amounts ("45.200,5").

Examples:
  fleetkeep vehicle add "B-XY 123" --make VW --model Transporter --odometer 84200
  fleetkeep vehicle add "HH-AB 42" --interval-km 30000 --interval-months 12 --inspection-due 2026-03-15`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		makeFlag, _ := cmd.Flags().GetString("make")
		model, _ := cmd.Flags().GetString("model")
		odometer, _ := cmd.Flags().GetString("odometer")
		intervalKM, _ := cmd.Flags().GetString("interval-km")
		intervalMonths, _ := cmd.Flags().GetInt("interval-months")
		inspectionDue, _ := cmd.Flags().GetString("inspection-due")

		req := map[string]any{
			"plate":                args[0],
			"make":                 makeFlag,
			"model":                model,
			"current_odometer":     odometer,
			"mileage_interval":     intervalKM,
			"time_interval_months": intervalMonths,
		}
		if inspectionDue != "" {
			req["inspection_due"] = inspectionDue
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/vehicles", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Added vehicle %s", result["plate"])
		return nil
	},
}

var vehicleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all vehicles",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/vehicles")
		if err != nil {
			return err
		}

		var vehicles []struct {
			Plate              string  `json:"plate"`
			Make               string  `json:"make"`
			Model              string  `json:"model"`
			CurrentOdometer    float64 `json:"current_odometer"`
			MileageInterval    float64 `json:"mileage_interval"`
			TimeIntervalMonths int     `json:"time_interval_months"`
		}
		if err := decodeJSON(resp, &vehicles); err != nil {
			return err
		}

		if len(vehicles) == 0 {
			fmt.Println("No vehicles tracked.")
			return nil
		}

		for _, v := range vehicles {
			fmt.Printf("%s  %s %s  %.0f km\n",
				colorize(colorBold, v.Plate), v.Make, v.Model, v.CurrentOdometer)
		}
		return nil
	},
}

var vehicleShowCmd = &cobra.Command{
	Use:   "show <plate>",
	Short: "Show one vehicle's maintenance overview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/vehicles/"+url.PathEscape(args[0])+"/overview")
		if err != nil {
			return err
		}

		var ov vehicleOverview
		if err := decodeJSON(resp, &ov); err != nil {
			return err
		}

		printOverview(ov, true)
		return nil
	},
}

var vehicleRmCmd = &cobra.Command{
	Use:   "rm <plate>",
	Short: "Remove a vehicle and its service history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/vehicles/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Removed vehicle %s", args[0])
		return nil
	},
}

func init() {
	vehicleAddCmd.Flags().String("make", "", "manufacturer")
	vehicleAddCmd.Flags().String("model", "", "model name")
	vehicleAddCmd.Flags().String("odometer", "0", "current odometer reading in km")
	vehicleAddCmd.Flags().String("interval-km", "0", "service interval in km (0 = default)")
	vehicleAddCmd.Flags().Int("interval-months", 0, "service interval in months (0 = default)")
	vehicleAddCmd.Flags().String("inspection-due", "", "inspection due date (YYYY-MM-DD)")

	vehicleCmd.AddCommand(vehicleAddCmd)
	vehicleCmd.AddCommand(vehicleListCmd)
	vehicleCmd.AddCommand(vehicleShowCmd)
	vehicleCmd.AddCommand(vehicleRmCmd)
}

// --- service ---

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage service history",
}

var serviceAddCmd = &cobra.Command{
	Use:   "add <plate>",
	Short: "Record a completed service",
	Long: `Record a completed service.

Examples:
  fleetkeep service add "B-XY 123" --date 2025-06-01 --odometer 85400 --cost "350,00 €" --description "Inspektion"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		odometer, _ := cmd.Flags().GetString("odometer")
		cost, _ := cmd.Flags().GetString("cost")
		description, _ := cmd.Flags().GetString("description")
		link, _ := cmd.Flags().GetString("link")

		req := map[string]any{
			"plate":       args[0],
			"odometer":    odometer,
			"cost":        cost,
			"description": description,
		}
		if date != "" {
			req["date"] = date
		}
		if link != "" {
			req["document_link"] = link
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/services", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Logged service %s", result["id"])
		return nil
	},
}

var serviceListCmd = &cobra.Command{
	Use:   "list [plate]",
	Short: "List service events, optionally for one vehicle",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/services"
		if len(args) == 1 {
			path = fmt.Sprintf("/vehicles/%s/services?limit=%d", url.PathEscape(args[0]), limit)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var events []struct {
			ID           string  `json:"id"`
			Plate        string  `json:"plate"`
			Date         string  `json:"date"`
			Odometer     float64 `json:"odometer"`
			Cost         float64 `json:"cost"`
			Description  string  `json:"description"`
			DocumentLink string  `json:"document_link"`
		}
		if err := decodeJSON(resp, &events); err != nil {
			return err
		}

		if len(events) == 0 {
			fmt.Println("No service events found.")
			return nil
		}

		for _, e := range events {
			date := e.Date
			if len(date) >= 10 {
				date = date[:10]
			}
			if strings.HasPrefix(date, "0001") {
				date = "----------"
			}
			line := fmt.Sprintf("%s  %s  %s  %.0f km  %.2f  %s",
				colorize(colorCyan, e.ID[:8]), date, e.Plate, e.Odometer, e.Cost, e.Description)
			if fleet.IsDocumentLink(e.DocumentLink) {
				line += "  " + colorize(colorCyan, e.DocumentLink)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var serviceRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a service event by ID, or by position with --index",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, _ := cmd.Flags().GetInt("index")
		if !cmd.Flags().Changed("index") && len(args) != 1 {
			return fmt.Errorf("an event ID or --index is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("index") {
			resp, err := client.delete(cmd.Context(), fmt.Sprintf("/services/index/%d", index))
			if err != nil {
				return err
			}
			var deleted struct {
				ID string `json:"id"`
			}
			if err := decodeJSON(resp, &deleted); err != nil {
				return err
			}
			printSuccess("Deleted service event %s (position %d)", deleted.ID, index)
			return nil
		}

		resp, err := client.delete(cmd.Context(), "/services/"+args[0])
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted service event %s", args[0])
		return nil
	},
}

var serviceAttachCmd = &cobra.Command{
	Use:   "attach <id> <file>",
	Short: "Attach an invoice or report to a service event",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/services/%s/documents?name=%s", args[0], url.QueryEscape(args[1]))
		resp, err := client.post(cmd.Context(), path, data)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued document %s for extraction", result["id"])
		return nil
	},
}

func init() {
	serviceAddCmd.Flags().String("date", "", "service date (YYYY-MM-DD or DD.MM.YYYY)")
	serviceAddCmd.Flags().String("odometer", "0", "odometer reading at service time")
	serviceAddCmd.Flags().String("cost", "0", "service cost")
	serviceAddCmd.Flags().String("description", "", "what was done")
	serviceAddCmd.Flags().String("link", "", "link to an external document")
	serviceListCmd.Flags().Int("limit", 50, "maximum number of events to list")
	serviceRmCmd.Flags().Int("index", 0, "delete by display position instead of ID")

	serviceCmd.AddCommand(serviceAddCmd)
	serviceCmd.AddCommand(serviceListCmd)
	serviceCmd.AddCommand(serviceRmCmd)
	serviceCmd.AddCommand(serviceAttachCmd)
}

// --- overview ---

type vehicleOverview struct {
	Vehicle struct {
		Plate           string  `json:"plate"`
		Make            string  `json:"make"`
		Model           string  `json:"model"`
		CurrentOdometer float64 `json:"current_odometer"`
	} `json:"vehicle"`
	Maintenance struct {
		State                string  `json:"state"`
		DistanceSinceService float64 `json:"distance_since_service"`
		MonthsSinceService   int     `json:"months_since_service"`
		RemainingDistance    float64 `json:"remaining_distance"`
		RemainingMonths      int     `json:"remaining_months"`
	} `json:"maintenance"`
	Inspection struct {
		State         string `json:"state"`
		DaysRemaining int    `json:"days_remaining"`
	} `json:"inspection"`
	TotalCost float64 `json:"total_cost"`
	Worst     string  `json:"worst"`
}

func printOverview(ov vehicleOverview, detailed bool) {
	name := strings.TrimSpace(ov.Vehicle.Make + " " + ov.Vehicle.Model)
	fmt.Printf("%s  %s  %s\n",
		colorize(stateColor(ov.Worst), "●"),
		colorize(colorBold, ov.Vehicle.Plate),
		name)
	if !detailed {
		return
	}

	printStatus("Maintenance", "%s", colorize(stateColor(ov.Maintenance.State), ov.Maintenance.State))
	if ov.Maintenance.State != "NO_DATA" {
		printStatus("Since service", "%.0f km / %d months", ov.Maintenance.DistanceSinceService, ov.Maintenance.MonthsSinceService)
		printStatus("Remaining", "%.0f km / %d months", ov.Maintenance.RemainingDistance, ov.Maintenance.RemainingMonths)
	}
	printStatus("Inspection", "%s", colorize(stateColor(ov.Inspection.State), ov.Inspection.State))
	if ov.Inspection.State != "NO_DATA" {
		printStatus("Days remaining", "%d", ov.Inspection.DaysRemaining)
	}
	printStatus("Total cost", "%.2f", ov.TotalCost)
}

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Show the fleet dashboard, worst first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/overview")
		if err != nil {
			return err
		}

		var overviews []vehicleOverview
		if err := decodeJSON(resp, &overviews); err != nil {
			return err
		}

		if len(overviews) == 0 {
			fmt.Println("No vehicles tracked.")
			return nil
		}

		for _, ov := range overviews {
			printOverview(ov, false)
		}
		return nil
	},
}

// --- data ---

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Export or import collection snapshots as CSV",
}

var dataExportCmd = &cobra.Command{
	Use:   "export <vehicles|services>",
	Short: "Export a collection as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/export/"+args[0])
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
		}

		writer := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		}
		if _, err := io.Copy(writer, resp.Body); err != nil {
			return err
		}

		if output != "" {
			printSuccess("Exported %s to %s", args[0], output)
		}
		return nil
	},
}

var dataImportCmd = &cobra.Command{
	Use:   "import <vehicles|services> <file>",
	Short: "Replace a collection from a CSV snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This replaces the whole %s collection. Use --confirm to proceed.", args[0])
			return nil
		}

		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/import/"+args[0], data)
		if err != nil {
			return err
		}

		var result struct {
			Status string `json:"status"`
			Count  int    `json:"count"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Imported %d %s", result.Count, args[0])
		return nil
	},
}

func init() {
	dataExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	dataImportCmd.Flags().Bool("confirm", false, "confirm replacing the collection")
	dataCmd.AddCommand(dataExportCmd)
	dataCmd.AddCommand(dataImportCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
