package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go-workflow/internal/model"
)

// ExportResult describes one written report file.
type ExportResult struct {
	Format      string    `json:"format"` // "csv" or "json"
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	ExportedAt  time.Time `json:"exported_at"`
}

var csvHeader = []string{
	"run_id", "pipeline", "job", "instance", "matrix", "instance_status",
	"stage_id", "stage_name", "task", "stage_status", "attempts",
	"error_kind", "error", "duration_ms",
}

// FormatFor picks the export format from a file extension.
func FormatFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json", nil
	case ".csv":
		return "csv", nil
	}
	return "", fmt.Errorf("unsupported report format %q (use .json or .csv)", filepath.Ext(path))
}

// ExportReport writes the report to path in the format its extension names.
func ExportReport(r *model.ExecutionReport, path string) (ExportResult, error) {
	format, err := FormatFor(path)
	if err != nil {
		return ExportResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return ExportResult{}, fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return ExportResult{}, fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	var n int
	if format == "csv" {
		n, err = WriteCSV(f, r)
	} else {
		n, err = WriteJSON(f, r)
	}
	if err != nil {
		return ExportResult{}, err
	}
	return ExportResult{Format: format, Path: path, RecordCount: n, ExportedAt: time.Now()}, f.Close()
}

// WriteJSON writes the whole report as indented JSON and returns the number
// of instantiations written.
func WriteJSON(w io.Writer, r *model.ExecutionReport) (int, error) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return 0, fmt.Errorf("failed to encode report: %w", err)
	}
	return len(r.Instances), nil
}

// WriteCSV writes one row per stage and returns the number of rows.
func WriteCSV(w io.Writer, r *model.ExecutionReport) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}
	rows := 0
	for _, inst := range r.Instances {
		matrix := ""
		if inst.Matrix != nil {
			matrix = model.MapValue(inst.Matrix).Text()
		}
		for _, st := range inst.Stages {
			record := []string{
				r.RunID,
				r.Pipeline,
				inst.Job,
				strconv.Itoa(inst.Index),
				matrix,
				string(inst.Status),
				st.ID,
				st.Name,
				st.Task,
				string(st.Status),
				strconv.Itoa(st.Attempts),
				st.ErrorKind,
				st.Error,
				strconv.FormatInt(st.Duration.Milliseconds(), 10),
			}
			if err := cw.Write(record); err != nil {
				return rows, err
			}
			rows++
		}
	}
	cw.Flush()
	return rows, cw.Error()
}
