// Package output writes resolved identity records to their export format.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/core"
	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/provider"
)

var csvHeader = []string{"title", "year", "type", "simkl_id", "tmdb_id", "tvdb_id", "mal_id", "watched_at"}

// CSVWriter streams identity records to CSV, one row per record. Rows are
// flushed as they are written so a partial export survives interruption.
type CSVWriter struct {
	w      *csv.Writer
	closer io.Closer
	rows   int
}

// NewCSVWriter writes to w. The header row is written immediately.
func NewCSVWriter(w io.Writer) (*CSVWriter, error) {
	cw := &CSVWriter{w: csv.NewWriter(w)}
	if err := cw.w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	cw.w.Flush()
	return cw, cw.w.Error()
}

// CreateCSVFile creates path (and any missing parent directories) and
// returns a writer that owns the file handle.
func CreateCSVFile(path string) (*CSVWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	cw, err := NewCSVWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	cw.closer = f
	return cw, nil
}

// Write appends one record and flushes it to the underlying writer.
func (c *CSVWriter) Write(rec core.IdentityRecord) error {
	row := []string{
		rec.Title,
		rec.Year,
		string(rec.MediaType),
		rec.IDs.Get(provider.ServiceSimkl),
		rec.IDs.Get(provider.ServiceTMDB),
		rec.IDs.Get(provider.ServiceTVDB),
		rec.IDs.Get(provider.ServiceMAL),
		rec.WatchedAt,
	}
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("flush csv row: %w", err)
	}
	c.rows++
	return nil
}

// Rows reports how many records have been written, excluding the header.
func (c *CSVWriter) Rows() int { return c.rows }

// Close flushes buffered rows and closes the file when this writer owns one.
func (c *CSVWriter) Close() error {
	c.w.Flush()
	err := c.w.Error()
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
