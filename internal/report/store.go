package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// ErrInvalidReport is returned when a persisted report cannot be used.
var ErrInvalidReport = errors.New("invalid report")

// Encode writes r as indented JSON.
func Encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Write persists a report. The file is written to a temporary sibling
// and renamed into place.
func Write(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".fraudscan-*.json")
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, v); err != nil {
		tmp.Close()
		return fmt.Errorf("encode report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close report file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Read loads a persisted report.
func Read(path string) (*domain.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses and validates a report.
func Decode(r io.Reader) (*domain.Report, error) {
	var rep domain.Report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	if rep.SchemaVersion != domain.SchemaVersion {
		return nil, fmt.Errorf("%w: schema version %q, expected %q", ErrInvalidReport, rep.SchemaVersion, domain.SchemaVersion)
	}
	return &rep, nil
}
