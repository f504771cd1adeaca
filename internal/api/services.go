package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fleetkeep/fleetkeep/internal/docs"
	"github.com/fleetkeep/fleetkeep/internal/fleet"
	"github.com/fleetkeep/fleetkeep/internal/storage"
)

type serviceRequest struct {
	Plate        string     `json:"plate"`
	Date         *flexDate  `json:"date"`
	Odometer     flexNumber `json:"odometer"`
	Cost         flexNumber `json:"cost"`
	Description  string     `json:"description"`
	DocumentLink string     `json:"document_link"`
}

func handleAddService(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req serviceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		plate := fleet.NormalizePlate(req.Plate)
		if plate == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "plate is required")
			return
		}

		e := storage.ServiceEvent{
			ID:           uuid.New().String(),
			Plate:        plate,
			Odometer:     float64(req.Odometer),
			Cost:         float64(req.Cost),
			Description:  req.Description,
			DocumentLink: req.DocumentLink,
		}
		if req.Date != nil {
			e.Date = req.Date.time()
		}

		if err := deps.Store.AddServiceEvent(e); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to add service event: %v", err)
			return
		}

		// A service entry with a fresher reading is the best odometer
		// source we have; keep the vehicle record in sync.
		if v, err := deps.Store.GetVehicle(plate); err == nil && e.Odometer > v.CurrentOdometer {
			if err := deps.Store.UpdateVehicleOdometer(plate, e.Odometer); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to update odometer: %v", err)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": e.ID, "status": "created"})
	}
}

func handleListServices(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := deps.Store.ListServiceEvents()
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

func handleGetService(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		e, err := deps.Store.GetServiceEvent(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "service event not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get service event: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(e)
	}
}

func handleDeleteService(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteServiceEvent(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "service event not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete service event: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleDeleteServiceAt(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid index: %v", err)
			return
		}

		e, err := deps.Store.DeleteServiceEventAt(index)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no service event at index %d", index)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete service event: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(e)
	}
}

// --- Documents ---

func handleAttachDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Docs == nil {
			httpError(w, http.StatusNotImplemented, "api_error", "document attachments require the sqlite backend")
			return
		}

		eventID := chi.URLParam(r, "id")
		if _, err := deps.Store.GetServiceEvent(eventID); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "service event not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get service event: %v", err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBodySize)
		defer r.Body.Close()

		content, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to read document body: %v", err)
			return
		}
		if len(content) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document body is empty")
			return
		}

		doc := storage.Document{
			ID:      uuid.New().String(),
			EventID: eventID,
			Name:    r.URL.Query().Get("name"),
			MIME:    r.Header.Get("Content-Type"),
			Content: content,
		}
		if err := deps.Docs.SaveDocument(doc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save document: %v", err)
			return
		}

		payload, err := json.Marshal(docs.JobPayload{DocumentID: doc.ID})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create job payload: %v", err)
			return
		}
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        docs.JobType,
			PayloadJSON: string(payload),
		}
		if err := deps.Docs.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue extraction: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": doc.ID, "status": "queued"})
	}
}

func handleListDocuments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Docs == nil {
			httpError(w, http.StatusNotImplemented, "api_error", "document attachments require the sqlite backend")
			return
		}

		eventID := chi.URLParam(r, "id")
		documents, err := deps.Docs.ListEventDocuments(eventID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}
		if documents == nil {
			documents = []storage.Document{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(documents)
	}
}

func handleGetDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Docs == nil {
			httpError(w, http.StatusNotImplemented, "api_error", "document attachments require the sqlite backend")
			return
		}

		id := chi.URLParam(r, "id")
		doc, err := deps.Docs.GetDocument(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get document: %v", err)
			return
		}

		if r.URL.Query().Get("raw") == "1" {
			mime := doc.MIME
			if mime == "" {
				mime = "application/octet-stream"
			}
			w.Header().Set("Content-Type", mime)
			w.Write(doc.Content)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	}
}

// --- Export / import ---

func handleExport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection := chi.URLParam(r, "collection")

		switch collection {
		case "vehicles":
			vehicles, err := deps.Store.ListVehicles()
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to list vehicles: %v", err)
				return
			}
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", `attachment; filename="autos.csv"`)
			if err := storage.ExportVehiclesCSV(w, vehicles); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to write csv: %v", err)
			}
		case "services":
			events, err := deps.Store.ListServiceEvents()
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to list service events: %v", err)
				return
			}
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", `attachment; filename="services.csv"`)
			if err := storage.ExportServiceEventsCSV(w, events); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to write csv: %v", err)
			}
		default:
			httpError(w, http.StatusNotFound, "not_found", "unknown collection %q", collection)
		}
	}
}

// handleImport replaces a whole collection from an uploaded CSV snapshot,
// the same way the spreadsheet predecessor reloaded a worksheet.
func handleImport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection := chi.URLParam(r, "collection")

		r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBodySize)
		defer r.Body.Close()

		var count int
		switch collection {
		case "vehicles":
			vehicles, err := storage.ImportVehiclesCSV(r.Body)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid csv: %v", err)
				return
			}
			if err := deps.Store.ReplaceVehicles(vehicles); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to replace vehicles: %v", err)
				return
			}
			count = len(vehicles)
		case "services":
			events, err := storage.ImportServiceEventsCSV(r.Body)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid csv: %v", err)
				return
			}
			for i := range events {
				if events[i].ID == "" {
					events[i].ID = uuid.New().String()
				}
			}
			if err := deps.Store.ReplaceServiceEvents(events); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to replace service events: %v", err)
				return
			}
			count = len(events)
		default:
			httpError(w, http.StatusNotFound, "not_found", "unknown collection %q", collection)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "replaced", "count": count})
	}
}
