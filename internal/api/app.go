// Package api exposes the fleet over HTTP (chi router, bearer token) and
// over MCP for agent access. Handlers stay thin: parsing and status codes
// here, semantics in the report and status packages.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetkeep/fleetkeep/internal/fleet"
	"github.com/fleetkeep/fleetkeep/internal/report"
	"github.com/fleetkeep/fleetkeep/internal/storage"
)

const (
	maxRequestBodySize  = 1 << 20  // 1MB
	maxDocumentBodySize = 10 << 20 // 10MB
)

// FleetStore is the slice of the storage layer the HTTP and MCP surfaces
// need. Both the SQLite store and the CSV store satisfy it.
type FleetStore interface {
	AddVehicle(v storage.Vehicle) error
	GetVehicle(plate string) (storage.Vehicle, error)
	ListVehicles() ([]storage.Vehicle, error)
	UpdateVehicleOdometer(plate string, odometer float64) error
	DeleteVehicle(plate string) error
	ReplaceVehicles(vehicles []storage.Vehicle) error

	AddServiceEvent(e storage.ServiceEvent) error
	GetServiceEvent(id string) (storage.ServiceEvent, error)
	ListServiceEvents() ([]storage.ServiceEvent, error)
	ListVehicleEvents(plate string, limit, offset int) ([]storage.ServiceEvent, error)
	DeleteServiceEvent(id string) error
	DeleteServiceEventAt(index int) (storage.ServiceEvent, error)
	ReplaceServiceEvents(events []storage.ServiceEvent) error
}

// DocStore is the attachment and job-queue slice, served by the SQLite
// store only.
type DocStore interface {
	SaveDocument(d storage.Document) error
	GetDocument(id string) (storage.Document, error)
	ListEventDocuments(eventID string) ([]storage.Document, error)
	EnqueueJob(job storage.Job) error
}

type AppDeps struct {
	Store FleetStore
	Docs  DocStore // optional; nil with the csv backend, attachments return 501
	Token string
	Now   func() time.Time // defaults to time.Now
}

func (d AppDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/vehicles", handleAddVehicle(deps))
		r.Get("/vehicles", handleListVehicles(deps))
		r.Get("/vehicles/{plate}", handleGetVehicle(deps))
		r.Delete("/vehicles/{plate}", handleDeleteVehicle(deps))
		r.Patch("/vehicles/{plate}/odometer", handleUpdateOdometer(deps))
		r.Get("/vehicles/{plate}/overview", handleVehicleOverview(deps))
		r.Get("/vehicles/{plate}/services", handleVehicleServices(deps))
		r.Get("/overview", handleFleetOverview(deps))

		r.Post("/services", handleAddService(deps))
		r.Get("/services", handleListServices(deps))
		r.Get("/services/{id}", handleGetService(deps))
		r.Delete("/services/{id}", handleDeleteService(deps))
		r.Delete("/services/index/{index}", handleDeleteServiceAt(deps))

		r.Post("/services/{id}/documents", handleAttachDocument(deps))
		r.Get("/services/{id}/documents", handleListDocuments(deps))
		r.Get("/documents/{id}", handleGetDocument(deps))

		r.Get("/export/{collection}", handleExport(deps))
		r.Post("/import/{collection}", handleImport(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// flexNumber accepts a JSON number or a formatted amount string
// ("45.200,5", "350,00 €"). Malformed strings degrade to 0, matching the
// lenient spreadsheet-era parsing everywhere else.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = flexNumber(fleet.ParseCurrency(s))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = flexNumber(f)
	return nil
}

// flexDate accepts the supported date layouts; unparseable input degrades
// to the zero time ("no date").
type flexDate time.Time

func (d *flexDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*d = flexDate(fleet.ParseDate(s))
	return nil
}

func (d flexDate) time() time.Time { return time.Time(d) }

type vehicleRequest struct {
	Plate              string     `json:"plate"`
	Make               string     `json:"make"`
	Model              string     `json:"model"`
	CurrentOdometer    flexNumber `json:"current_odometer"`
	MileageInterval    flexNumber `json:"mileage_interval"`
	TimeIntervalMonths int        `json:"time_interval_months"`
	InspectionDue      *flexDate  `json:"inspection_due"`
}

func handleAddVehicle(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req vehicleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		plate := fleet.NormalizePlate(req.Plate)
		if plate == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "plate is required")
			return
		}

		v := storage.Vehicle{
			Plate:              plate,
			Make:               req.Make,
			Model:              req.Model,
			CurrentOdometer:    float64(req.CurrentOdometer),
			MileageInterval:    float64(req.MileageInterval),
			TimeIntervalMonths: req.TimeIntervalMonths,
		}
		if req.InspectionDue != nil && !req.InspectionDue.time().IsZero() {
			t := req.InspectionDue.time()
			v.InspectionDue = &t
		}

		err := deps.Store.AddVehicle(v)
		if errors.Is(err, storage.ErrDuplicate) {
			httpError(w, http.StatusConflict, "invalid_request_error", "vehicle %s already exists", plate)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to add vehicle: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"plate": plate, "status": "created"})
	}
}

func handleListVehicles(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vehicles, err := deps.Store.ListVehicles()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list vehicles: %v", err)
			return
		}
		if vehicles == nil {
			vehicles = []storage.Vehicle{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(vehicles)
	}
}

func handleGetVehicle(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plate := fleet.NormalizePlate(chi.URLParam(r, "plate"))

		v, err := deps.Store.GetVehicle(plate)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "vehicle not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get vehicle: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
}

func handleDeleteVehicle(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plate := fleet.NormalizePlate(chi.URLParam(r, "plate"))

		err := deps.Store.DeleteVehicle(plate)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "vehicle not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete vehicle: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleUpdateOdometer(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		plate := fleet.NormalizePlate(chi.URLParam(r, "plate"))

		var req struct {
			Odometer flexNumber `json:"odometer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		odometer := float64(req.Odometer)
		if odometer < 0 {
			odometer = 0
		}
		err := deps.Store.UpdateVehicleOdometer(plate, odometer)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "vehicle not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update odometer: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"plate": plate, "odometer": odometer})
	}
}

func handleVehicleOverview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plate := fleet.NormalizePlate(chi.URLParam(r, "plate"))

		v, err := deps.Store.GetVehicle(plate)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "vehicle not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get vehicle: %v", err)
			return
		}

		events, err := deps.Store.ListServiceEvents()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list service events: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report.ForVehicle(v, events, deps.now()))
	}
}

func handleFleetOverview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vehicles, err := deps.Store.ListVehicles()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list vehicles: %v", err)
			return
		}
		events, err := deps.Store.ListServiceEvents()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list service events: %v", err)
			return
		}

		overviews, err := report.Fleet(r.Context(), vehicles, events, deps.now())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to build overview: %v", err)
			return
		}
		if overviews == nil {
			overviews = []report.VehicleOverview{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(overviews)
	}
}

func handleVehicleServices(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plate := fleet.NormalizePlate(chi.URLParam(r, "plate"))
		limit := parseIntParam(r, "limit", 50, 500)
		offset := parseIntParam(r, "offset", 0, 0)

		events, err := deps.Store.ListVehicleEvents(plate, limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list service events: %v", err)
			return
		}
		if events == nil {
			events = []storage.ServiceEvent{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(events)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
