package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/fleetkeep/fleetkeep/internal/fleet"
)

// CSVStore is the flat-file backend: two CSV files in a data directory,
// mirroring the worksheets of the original spreadsheet. Its only primitives
// are read-all and replace-all; every mutation rewrites the whole file.
// It covers the two fleet collections only — document attachments and the
// job queue need the SQLite backend.
type CSVStore struct {
	mu      sync.Mutex
	dir     string
	autos   string
	service string
}

var vehicleHeader = []string{"plate", "make", "model", "current_odometer", "mileage_interval", "time_interval_months", "inspection_due"}
var eventHeader = []string{"id", "plate", "date", "odometer", "cost", "description", "document_link"}

// OpenCSV opens (or creates) the CSV-backed store in dataDir.
func OpenCSV(dataDir string) (*CSVStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	s := &CSVStore{
		dir:     dataDir,
		autos:   filepath.Join(dataDir, "autos.csv"),
		service: filepath.Join(dataDir, "services.csv"),
	}
	if err := ensureCSV(s.autos, vehicleHeader); err != nil {
		return nil, err
	}
	if err := ensureCSV(s.service, eventHeader); err != nil {
		return nil, err
	}
	return s, nil
}

// Close is a no-op; files are closed after every operation.
func (s *CSVStore) Close() error { return nil }

func ensureCSV(path string, header []string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return writeCSV(path, header, nil)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(rows) > 0 {
		rows = rows[1:] // drop header
	}
	return rows, nil
}

// writeCSV replaces the file atomically via a temp file in the same dir.
func writeCSV(path string, header []string, rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".csv-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func vehicleToRow(v Vehicle) []string {
	due := ""
	if v.InspectionDue != nil {
		due = v.InspectionDue.Format(dateOnly)
	}
	return []string{
		v.Plate, v.Make, v.Model,
		strconv.FormatFloat(v.CurrentOdometer, 'f', -1, 64),
		strconv.FormatFloat(v.MileageInterval, 'f', -1, 64),
		strconv.Itoa(v.TimeIntervalMonths),
		due,
	}
}

// rowToVehicle parses a CSV row leniently: malformed numbers degrade to 0
// and an unparseable inspection date to "no inspection tracking".
func rowToVehicle(row []string) Vehicle {
	get := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	v := Vehicle{
		Plate:           fleet.NormalizePlate(get(0)),
		Make:            get(1),
		Model:           get(2),
		CurrentOdometer: fleet.ParseCurrency(get(3)),
		MileageInterval: fleet.ParseCurrency(get(4)),
	}
	if n, err := strconv.Atoi(get(5)); err == nil {
		v.TimeIntervalMonths = n
	}
	if t := fleet.ParseDate(get(6)); !t.IsZero() {
		v.InspectionDue = &t
	}
	return v
}

func eventToRow(e ServiceEvent) []string {
	return []string{
		e.ID, e.Plate, fmtDate(e.Date),
		strconv.FormatFloat(e.Odometer, 'f', -1, 64),
		strconv.FormatFloat(e.Cost, 'f', -1, 64),
		e.Description, e.DocumentLink,
	}
}

func rowToEvent(row []string) ServiceEvent {
	get := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	return ServiceEvent{
		ID:           get(0),
		Plate:        fleet.NormalizePlate(get(1)),
		Date:         fleet.ParseDate(get(2)),
		Odometer:     fleet.ParseCurrency(get(3)),
		Cost:         fleet.ParseCurrency(get(4)),
		Description:  get(5),
		DocumentLink: get(6),
	}
}

// --- Vehicles ---

func (s *CSVStore) loadVehicles() ([]Vehicle, error) {
	rows, err := readCSV(s.autos)
	if err != nil {
		return nil, err
	}
	vehicles := make([]Vehicle, 0, len(rows))
	for _, row := range rows {
		v := rowToVehicle(row)
		if v.Plate == "" {
			continue
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}

func (s *CSVStore) storeVehicles(vehicles []Vehicle) error {
	rows := make([][]string, len(vehicles))
	for i, v := range vehicles {
		rows[i] = vehicleToRow(v)
	}
	return writeCSV(s.autos, vehicleHeader, rows)
}

func (s *CSVStore) AddVehicle(v Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vehicles, err := s.loadVehicles()
	if err != nil {
		return err
	}
	for _, existing := range vehicles {
		if existing.Plate == v.Plate {
			return ErrDuplicate
		}
	}
	return s.storeVehicles(append(vehicles, v))
}

func (s *CSVStore) GetVehicle(plate string) (Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vehicles, err := s.loadVehicles()
	if err != nil {
		return Vehicle{}, err
	}
	for _, v := range vehicles {
		if v.Plate == plate {
			return v, nil
		}
	}
	return Vehicle{}, ErrNotFound
}

func (s *CSVStore) ListVehicles() ([]Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vehicles, err := s.loadVehicles()
	if err != nil {
		return nil, err
	}
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].Plate < vehicles[j].Plate })
	return vehicles, nil
}

func (s *CSVStore) UpdateVehicleOdometer(plate string, odometer float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vehicles, err := s.loadVehicles()
	if err != nil {
		return err
	}
	for i := range vehicles {
		if vehicles[i].Plate == plate {
			vehicles[i].CurrentOdometer = odometer
			return s.storeVehicles(vehicles)
		}
	}
	return ErrNotFound
}

func (s *CSVStore) DeleteVehicle(plate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vehicles, err := s.loadVehicles()
	if err != nil {
		return err
	}
	kept := vehicles[:0]
	found := false
	for _, v := range vehicles {
		if v.Plate == plate {
			found = true
			continue
		}
		kept = append(kept, v)
	}
	if !found {
		return ErrNotFound
	}
	if err := s.storeVehicles(kept); err != nil {
		return err
	}

	// Cascade to the service collection.
	events, err := s.loadEvents()
	if err != nil {
		return err
	}
	keptEvents := events[:0]
	for _, e := range events {
		if e.Plate != plate {
			keptEvents = append(keptEvents, e)
		}
	}
	return s.storeEvents(keptEvents)
}

func (s *CSVStore) ReplaceVehicles(vehicles []Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeVehicles(vehicles)
}

// --- Service events ---

func (s *CSVStore) loadEvents() ([]ServiceEvent, error) {
	rows, err := readCSV(s.service)
	if err != nil {
		return nil, err
	}
	events := make([]ServiceEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, rowToEvent(row))
	}
	return events, nil
}

func (s *CSVStore) storeEvents(events []ServiceEvent) error {
	rows := make([][]string, len(events))
	for i, e := range events {
		rows[i] = eventToRow(e)
	}
	return writeCSV(s.service, eventHeader, rows)
}

func (s *CSVStore) AddServiceEvent(e ServiceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.loadEvents()
	if err != nil {
		return err
	}
	return s.storeEvents(append(events, e))
}

func (s *CSVStore) GetServiceEvent(id string) (ServiceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.loadEvents()
	if err != nil {
		return ServiceEvent{}, err
	}
	for _, e := range events {
		if e.ID == id {
			return e, nil
		}
	}
	return ServiceEvent{}, ErrNotFound
}

func (s *CSVStore) ListServiceEvents() ([]ServiceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadEvents()
}

func (s *CSVStore) ListVehicleEvents(plate string, limit, offset int) ([]ServiceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.loadEvents()
	if err != nil {
		return nil, err
	}
	var matched []ServiceEvent
	for _, e := range events {
		if e.Plate == plate {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Date.After(matched[j].Date) })

	if limit <= 0 {
		limit = 50
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *CSVStore) DeleteServiceEvent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.loadEvents()
	if err != nil {
		return err
	}
	kept := events[:0]
	found := false
	for _, e := range events {
		if e.ID == id {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return ErrNotFound
	}
	return s.storeEvents(kept)
}

func (s *CSVStore) DeleteServiceEventAt(index int) (ServiceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.loadEvents()
	if err != nil {
		return ServiceEvent{}, err
	}
	if index < 0 || index >= len(events) {
		return ServiceEvent{}, ErrNotFound
	}
	e := events[index]
	if err := s.storeEvents(append(events[:index:index], events[index+1:]...)); err != nil {
		return ServiceEvent{}, err
	}
	return e, nil
}

func (s *CSVStore) ReplaceServiceEvents(events []ServiceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeEvents(events)
}

// --- CSV stream helpers (export/import endpoints) ---

// ExportVehiclesCSV writes the vehicle collection as CSV, same layout the
// flat-file backend uses on disk.
func ExportVehiclesCSV(w io.Writer, vehicles []Vehicle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(vehicleHeader); err != nil {
		return err
	}
	for _, v := range vehicles {
		if err := cw.Write(vehicleToRow(v)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportServiceEventsCSV writes the service event collection as CSV.
func ExportServiceEventsCSV(w io.Writer, events []ServiceEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(eventHeader); err != nil {
		return err
	}
	for _, e := range events {
		if err := cw.Write(eventToRow(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func readCSVRows(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		rows = rows[1:] // drop header
	}
	return rows, nil
}

// ImportVehiclesCSV parses a CSV snapshot into vehicles, leniently, skipping
// rows without a plate.
func ImportVehiclesCSV(r io.Reader) ([]Vehicle, error) {
	rows, err := readCSVRows(r)
	if err != nil {
		return nil, fmt.Errorf("parsing vehicle csv: %w", err)
	}
	vehicles := make([]Vehicle, 0, len(rows))
	for _, row := range rows {
		v := rowToVehicle(row)
		if v.Plate == "" {
			continue
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}

// ImportServiceEventsCSV parses a CSV snapshot into service events.
func ImportServiceEventsCSV(r io.Reader) ([]ServiceEvent, error) {
	rows, err := readCSVRows(r)
	if err != nil {
		return nil, fmt.Errorf("parsing service csv: %w", err)
	}
	events := make([]ServiceEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, rowToEvent(row))
	}
	return events, nil
}
