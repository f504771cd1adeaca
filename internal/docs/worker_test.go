package docs

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fleetkeep/fleetkeep/internal/storage"
)

type fakeStore struct {
	jobs      []*storage.Job
	docs      map[string]storage.Document
	completed []string
	failed    map[string]string
	texts     map[string]string
	statuses  map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     make(map[string]storage.Document),
		failed:   make(map[string]string),
		texts:    make(map[string]string),
		statuses: make(map[string]string),
	}
}

func (f *fakeStore) ClaimNextJob(types []string) (*storage.Job, error) {
	if len(f.jobs) == 0 {
		return nil, nil
	}
	j := f.jobs[0]
	f.jobs = f.jobs[1:]
	return j, nil
}

func (f *fakeStore) CompleteJob(id string) error {
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeStore) FailJob(id string, errMsg string) error {
	f.failed[id] = errMsg
	return nil
}

func (f *fakeStore) GetDocument(id string) (storage.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return storage.Document{}, storage.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) SetDocumentText(id, text, status, lastError string) error {
	f.texts[id] = text
	f.statuses[id] = status
	return nil
}

func payload(t *testing.T, docID string) string {
	t.Helper()
	b, err := json.Marshal(JobPayload{DocumentID: docID})
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestRunOnceNoJob(t *testing.T) {
	w := NewWorker(newFakeStore(), 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done {
		t.Error("RunOnce reported work with an empty queue")
	}
}

func TestRunOnceExtractsPlainText(t *testing.T) {
	store := newFakeStore()
	store.docs["d1"] = storage.Document{ID: "d1", Name: "note.txt", MIME: "text/plain", Content: []byte("oil change receipt")}
	store.jobs = append(store.jobs, &storage.Job{ID: "j1", Type: JobType, PayloadJSON: payload(t, "d1"), MaxAttempts: 3})

	w := NewWorker(store, 0)
	done, err := w.RunOnce(context.Background())
	if err != nil || !done {
		t.Fatalf("RunOnce = %v, %v; want true, nil", done, err)
	}

	if store.texts["d1"] != "oil change receipt" {
		t.Errorf("extracted text = %q", store.texts["d1"])
	}
	if store.statuses["d1"] != "extracted" {
		t.Errorf("status = %q, want extracted", store.statuses["d1"])
	}
	if len(store.completed) != 1 || store.completed[0] != "j1" {
		t.Errorf("completed = %v, want [j1]", store.completed)
	}
}

func TestRunOnceExtractsHTML(t *testing.T) {
	store := newFakeStore()
	page := `<!DOCTYPE html><html><head><title>Invoice 42</title><style>p{}</style></head><body><p>Total: 350,00 €</p><script>x()</script></body></html>`
	store.docs["d2"] = storage.Document{ID: "d2", Name: "invoice.html", MIME: "text/html", Content: []byte(page)}
	store.jobs = append(store.jobs, &storage.Job{ID: "j2", Type: JobType, PayloadJSON: payload(t, "d2"), MaxAttempts: 3})

	w := NewWorker(store, 0)
	if done, err := w.RunOnce(context.Background()); err != nil || !done {
		t.Fatalf("RunOnce = %v, %v", done, err)
	}

	text := store.texts["d2"]
	if !strings.HasPrefix(text, "Invoice 42") {
		t.Errorf("text should start with the title, got %q", text)
	}
	if !strings.Contains(text, "Total: 350,00 €") {
		t.Errorf("text should contain body content, got %q", text)
	}
	if strings.Contains(text, "x()") {
		t.Errorf("script content leaked into text: %q", text)
	}
}

func TestRunOnceFinalFailureMarksDocument(t *testing.T) {
	store := newFakeStore()
	store.docs["d3"] = storage.Document{ID: "d3", Name: "blob.bin", MIME: "application/octet-stream", Content: []byte{0xff, 0xfe, 0x00}}
	store.jobs = append(store.jobs, &storage.Job{ID: "j3", Type: JobType, PayloadJSON: payload(t, "d3"), Attempts: 2, MaxAttempts: 3})

	w := NewWorker(store, 0)
	if done, _ := w.RunOnce(context.Background()); !done {
		t.Fatal("expected the job to be processed")
	}

	if _, ok := store.failed["j3"]; !ok {
		t.Error("job was not failed")
	}
	if store.statuses["d3"] != "failed" {
		t.Errorf("document status = %q, want failed on final attempt", store.statuses["d3"])
	}
}

func TestExtractRejectsUnknownBinary(t *testing.T) {
	if _, err := Extract("blob.bin", "application/octet-stream", []byte{0xff, 0xfe}); err == nil {
		t.Error("expected error for undecodable binary content")
	}
}
