package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetkeep/fleetkeep/internal/storage"
)

// JobType is the queue entry type claimed by this worker.
const JobType = "doc_extract"

// JobPayload is the JSON payload of a doc_extract job.
type JobPayload struct {
	DocumentID string `json:"document_id"`
}

// JobStore abstracts the queue and document operations the worker needs.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetDocument(id string) (storage.Document, error)
	SetDocumentText(id, text, status, lastError string) error
}

// Worker processes doc_extract jobs from the job queue.
type Worker struct {
	store  JobStore
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. A pollInterval <= 0 defaults to 500ms.
func NewWorker(store JobStore, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single doc_extract job. It returns true
// when a job was processed, regardless of success.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(job); err != nil {
		w.logger.Warn("document extraction failed", "job_id", job.ID, "error", err)
		if job.Attempts+1 >= job.MaxAttempts {
			// Final attempt: surface the failure on the document itself.
			var p JobPayload
			if jsonErr := json.Unmarshal([]byte(job.PayloadJSON), &p); jsonErr == nil && p.DocumentID != "" {
				if setErr := w.store.SetDocumentText(p.DocumentID, "", "failed", err.Error()); setErr != nil {
					w.logger.Error("failed to mark document as failed", "document_id", p.DocumentID, "error", setErr)
				}
			}
		}
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		w.logger.Error("failed to mark job as completed", "job_id", job.ID, "error", err)
	}
	return true, nil
}

func (w *Worker) processJob(job *storage.Job) error {
	var p JobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if p.DocumentID == "" {
		return fmt.Errorf("payload has no document_id")
	}

	doc, err := w.store.GetDocument(p.DocumentID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", p.DocumentID, err)
	}

	text, err := Extract(doc.Name, doc.MIME, doc.Content)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", doc.Name, err)
	}

	if err := w.store.SetDocumentText(doc.ID, text, "extracted", ""); err != nil {
		return fmt.Errorf("saving extracted text: %w", err)
	}

	w.logger.Debug("document extracted", "document_id", doc.ID, "chars", len(text))
	return nil
}
