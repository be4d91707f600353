package telemetry

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// Header is the column layout of every telemetry file
var Header = []string{
	"auction_start",
	"current_round",
	"round_winner_is_you",
	"round_winner",
	"painting",
	"amount_paid",
}

// Record is one round as seen by the client
type Record struct {
	AuctionStart string
	Round        int
	WinnerIsYou  bool
	Winner       int
	Painting     string
	AmountPaid   float64
}

// CSVExporter streams the rounds of one auction to a CSV file
type CSVExporter struct {
	path   string
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewAuctionExporter creates <dir>/<uuid>.csv, creating dir if needed
func NewAuctionExporter(dir string) (*CSVExporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}
	return NewCSVExporter(filepath.Join(dir, uuid.NewString()+".csv"))
}

// NewCSVExporter creates filename and writes the header
func NewCSVExporter(filename string) (*CSVExporter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file: %w", err)
	}

	exporter := &CSVExporter{
		path:   filename,
		file:   file,
		writer: csv.NewWriter(file),
	}

	if err := exporter.writer.Write(Header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	exporter.writer.Flush()

	return exporter, nil
}

// Path returns the file being written
func (e *CSVExporter) Path() string {
	return e.path
}

// WriteRecord appends one round
func (e *CSVExporter) WriteRecord(r Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	record := []string{
		r.AuctionStart,
		strconv.Itoa(r.Round),
		strconv.FormatBool(r.WinnerIsYou),
		strconv.Itoa(r.Winner),
		r.Painting,
		strconv.FormatFloat(r.AmountPaid, 'f', -1, 64),
	}
	if err := e.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write CSV record: %w", err)
	}

	e.writer.Flush()
	return e.writer.Error()
}

// Close flushes any remaining data and closes the file
func (e *CSVExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.writer != nil {
		e.writer.Flush()
	}
	if e.file != nil {
		err := e.file.Close()
		e.file = nil
		return err
	}
	return nil
}
