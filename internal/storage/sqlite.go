package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const dateOnly = "2006-01-02"

// Store wraps a SQLite database holding the vehicle and service event
// collections plus document attachments and the background job queue.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "fleetkeep.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to a single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateOnly)
}

func parseStoredDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateOnly, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// --- Vehicles ---

// AddVehicle inserts a vehicle. ErrDuplicate when the plate is already taken.
func (s *Store) AddVehicle(v Vehicle) error {
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	var due any
	if v.InspectionDue != nil {
		due = v.InspectionDue.Format(dateOnly)
	}
	_, err := s.db.Exec(`
		INSERT INTO vehicles (plate, make, model, current_odometer, mileage_interval, time_interval_months, inspection_due, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.Plate, v.Make, v.Model, v.CurrentOdometer, v.MileageInterval, v.TimeIntervalMonths,
		due, v.CreatedAt.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicate
	}
	return err
}

// GetVehicle fetches a vehicle by its normalized plate.
func (s *Store) GetVehicle(plate string) (Vehicle, error) {
	row := s.db.QueryRow(`
		SELECT plate, make, model, current_odometer, mileage_interval, time_interval_months, inspection_due, created_at, updated_at
		FROM vehicles WHERE plate = ?`, plate)
	v, err := scanVehicle(row.Scan)
	if err == sql.ErrNoRows {
		return Vehicle{}, ErrNotFound
	}
	return v, err
}

func scanVehicle(scan func(dest ...any) error) (Vehicle, error) {
	var v Vehicle
	var due sql.NullString
	var createdAt, updatedAt string
	err := scan(&v.Plate, &v.Make, &v.Model, &v.CurrentOdometer, &v.MileageInterval,
		&v.TimeIntervalMonths, &due, &createdAt, &updatedAt)
	if err != nil {
		return Vehicle{}, err
	}
	if due.Valid && due.String != "" {
		if t := parseStoredDate(due.String); !t.IsZero() {
			v.InspectionDue = &t
		}
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		v.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		v.UpdatedAt = t
	}
	return v, nil
}

// ListVehicles returns all vehicles ordered by plate.
func (s *Store) ListVehicles() ([]Vehicle, error) {
	rows, err := s.db.Query(`
		SELECT plate, make, model, current_odometer, mileage_interval, time_interval_months, inspection_due, created_at, updated_at
		FROM vehicles ORDER BY plate ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	return results, rows.Err()
}

// UpdateVehicleOdometer bumps a vehicle's current odometer reading.
func (s *Store) UpdateVehicleOdometer(plate string, odometer float64) error {
	res, err := s.db.Exec(`UPDATE vehicles SET current_odometer = ?, updated_at = ? WHERE plate = ?`,
		odometer, time.Now().UTC().Format(time.RFC3339), plate)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteVehicle removes a vehicle and cascades to all of its service events.
func (s *Store) DeleteVehicle(plate string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM vehicles WHERE plate = ?`, plate)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(`DELETE FROM service_events WHERE plate = ?`, plate); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceVehicles swaps out the whole vehicle collection in one transaction.
// The store deliberately offers no partial update by key beyond the odometer
// bump; imports work on full snapshots (spreadsheet heritage).
func (s *Store) ReplaceVehicles(vehicles []Vehicle) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM vehicles`); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, v := range vehicles {
		createdAt := now
		if !v.CreatedAt.IsZero() {
			createdAt = v.CreatedAt.Format(time.RFC3339)
		}
		var due any
		if v.InspectionDue != nil {
			due = v.InspectionDue.Format(dateOnly)
		}
		if _, err := tx.Exec(`
			INSERT INTO vehicles (plate, make, model, current_odometer, mileage_interval, time_interval_months, inspection_due, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.Plate, v.Make, v.Model, v.CurrentOdometer, v.MileageInterval, v.TimeIntervalMonths,
			due, createdAt, now); err != nil {
			return fmt.Errorf("inserting vehicle %s: %w", v.Plate, err)
		}
	}
	return tx.Commit()
}

// --- Service events ---

// AddServiceEvent appends a service event to the collection.
func (s *Store) AddServiceEvent(e ServiceEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO service_events (id, plate, date, odometer, cost, description, document_link, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Plate, fmtDate(e.Date), e.Odometer, e.Cost, e.Description, e.DocumentLink,
		e.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func scanEvent(scan func(dest ...any) error) (ServiceEvent, error) {
	var e ServiceEvent
	var date, createdAt string
	if err := scan(&e.ID, &e.Plate, &date, &e.Odometer, &e.Cost, &e.Description, &e.DocumentLink, &createdAt); err != nil {
		return ServiceEvent{}, err
	}
	e.Date = parseStoredDate(date)
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		e.CreatedAt = t
	}
	return e, nil
}

// GetServiceEvent fetches one event by its durable ID.
func (s *Store) GetServiceEvent(id string) (ServiceEvent, error) {
	row := s.db.QueryRow(`
		SELECT id, plate, date, odometer, cost, description, document_link, created_at
		FROM service_events WHERE id = ?`, id)
	e, err := scanEvent(row.Scan)
	if err == sql.ErrNoRows {
		return ServiceEvent{}, ErrNotFound
	}
	return e, err
}

// ListServiceEvents returns the full event collection in stable insertion
// order. This is the snapshot the status engine and the positional delete
// shim operate on.
func (s *Store) ListServiceEvents() ([]ServiceEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, plate, date, odometer, cost, description, document_link, created_at
		FROM service_events ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ServiceEvent
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// ListVehicleEvents returns a vehicle's events, newest date first.
func (s *Store) ListVehicleEvents(plate string, limit, offset int) ([]ServiceEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, plate, date, odometer, cost, description, document_link, created_at
		FROM service_events WHERE plate = ? ORDER BY date DESC, rowid DESC LIMIT ? OFFSET ?`,
		plate, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ServiceEvent
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// DeleteServiceEvent removes one event by its durable ID.
func (s *Store) DeleteServiceEvent(id string) error {
	res, err := s.db.Exec(`DELETE FROM service_events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteServiceEventAt removes the event at the given position in the
// currently stored collection (insertion order) and returns it.
//
// Compatibility shim for the legacy spreadsheet UI, which deleted rows by
// their display position. The index is NOT durable: any insert or reload
// between display and deletion invalidates it. New callers delete by ID.
func (s *Store) DeleteServiceEventAt(index int) (ServiceEvent, error) {
	events, err := s.ListServiceEvents()
	if err != nil {
		return ServiceEvent{}, err
	}
	if index < 0 || index >= len(events) {
		return ServiceEvent{}, ErrNotFound
	}
	e := events[index]
	if err := s.DeleteServiceEvent(e.ID); err != nil {
		return ServiceEvent{}, err
	}
	return e, nil
}

// ReplaceServiceEvents swaps out the whole event collection in one transaction.
func (s *Store) ReplaceServiceEvents(events []ServiceEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM service_events`); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, e := range events {
		createdAt := now
		if !e.CreatedAt.IsZero() {
			createdAt = e.CreatedAt.Format(time.RFC3339)
		}
		if _, err := tx.Exec(`
			INSERT INTO service_events (id, plate, date, odometer, cost, description, document_link, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Plate, fmtDate(e.Date), e.Odometer, e.Cost, e.Description, e.DocumentLink, createdAt); err != nil {
			return fmt.Errorf("inserting event %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// --- Documents ---

// SaveDocument stores a document attachment with status "pending".
func (s *Store) SaveDocument(d Document) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	status := d.Status
	if status == "" {
		status = "pending"
	}
	_, err := s.db.Exec(`
		INSERT INTO documents (id, event_id, name, mime, content, text, status, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.EventID, d.Name, d.MIME, d.Content, d.Text, status, d.LastError,
		d.CreatedAt.Format(time.RFC3339),
	)
	return err
}

// GetDocument fetches a document by ID, including its raw content.
func (s *Store) GetDocument(id string) (Document, error) {
	var d Document
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, event_id, name, mime, content, text, status, last_error, created_at
		FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.EventID, &d.Name, &d.MIME, &d.Content, &d.Text, &d.Status, &d.LastError, &createdAt)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		d.CreatedAt = t
	}
	return d, nil
}

// SetDocumentText records the extraction result for a document.
func (s *Store) SetDocumentText(id, text, status, lastError string) error {
	res, err := s.db.Exec(`UPDATE documents SET text = ?, status = ?, last_error = ? WHERE id = ?`,
		text, status, lastError, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEventDocuments returns the documents attached to a service event,
// without their raw content.
func (s *Store) ListEventDocuments(eventID string) ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT id, event_id, name, mime, text, status, last_error, created_at
		FROM documents WHERE event_id = ? ORDER BY created_at ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		var d Document
		var createdAt string
		if err := rows.Scan(&d.ID, &d.EventID, &d.Name, &d.MIME, &d.Text, &d.Status, &d.LastError, &createdAt); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			d.CreatedAt = t
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// --- Jobs ---

// EnqueueJob adds a background job to the queue.
func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

// ClaimNextJob atomically claims the oldest runnable pending job of the
// given types, or returns nil when none is due.
func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]any, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

// CompleteJob marks a job as completed.
func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailJob records a failed attempt. The job is retried with exponential
// backoff until max_attempts is exhausted, then marked failed for good.
func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}
