package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when inserting a vehicle whose plate already exists.
var ErrDuplicate = errors.New("already exists")

// Vehicle is a tracked fleet asset, keyed by its normalized license plate.
// A zero MileageInterval or TimeIntervalMonths means "not configured"; the
// defaults are resolved by fleet.ResolveIntervals at evaluation time, never
// here. A nil InspectionDue means the vehicle has no inspection tracking.
type Vehicle struct {
	Plate              string     `json:"plate"`
	Make               string     `json:"make"`
	Model              string     `json:"model"`
	CurrentOdometer    float64    `json:"current_odometer"`
	MileageInterval    float64    `json:"mileage_interval"`
	TimeIntervalMonths int        `json:"time_interval_months"`
	InspectionDue      *time.Time `json:"inspection_due,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ServiceEvent is one maintenance record tied to a vehicle. A zero Date
// means the source date was missing or unparseable; such events are
// excluded from recency computations but still count toward cost totals.
// Odometer and Cost are stored normalized (see fleet.ParseCurrency).
type ServiceEvent struct {
	ID           string    `json:"id"`
	Plate        string    `json:"plate"`
	Date         time.Time `json:"date"`
	Odometer     float64   `json:"odometer"`
	Cost         float64   `json:"cost"`
	Description  string    `json:"description"`
	DocumentLink string    `json:"document_link,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Document is a file attached to a service event (typically an invoice).
// Text is filled in asynchronously by the extraction worker.
type Document struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	Name      string    `json:"name"`
	MIME      string    `json:"mime"`
	Content   []byte    `json:"-"`
	Text      string    `json:"text,omitempty"`
	Status    string    `json:"status"` // "pending", "extracted", "failed"
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Job is a queued background task processed by the docs worker.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
