// Package export writes audit snapshots and change reports to a storage
// backend as JSON, YAML or CSV documents.
package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/3mpowered/dataverse-convenience/internal/auditing"
	"github.com/3mpowered/dataverse-convenience/internal/storage"
)

// Format is the document format of an export.
type Format string

const (
	FormatNone Format = "none"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a configured format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatNone, FormatJSON, FormatYAML, FormatCSV:
		return f, nil
	case "":
		return FormatNone, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (must be none, json, yaml, or csv)", s)
	}
}

// ContentType returns the MIME type stored alongside the object.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	case FormatCSV:
		return "text/csv"
	default:
		return ""
	}
}

// FileName returns the object name for an operation, e.g. auditing-enable.csv.
func FileName(operation string, f Format) string {
	return fmt.Sprintf("auditing-%s.%s", operation, f)
}

// Result describes a written report.
type Result struct {
	*storage.UploadResult

	// Replaced is set when a report of the same name existed before the upload.
	Replaced bool
}

// Exporter encodes reports and hands them to a storage backend.
type Exporter struct {
	store  storage.Storage
	format Format
}

// New creates an Exporter. A FormatNone exporter never touches store.
func New(store storage.Storage, format Format) *Exporter {
	return &Exporter{store: store, format: format}
}

// Enabled reports whether exports are written at all.
func (e *Exporter) Enabled() bool {
	return e != nil && e.format != FormatNone
}

// Settings exports the snapshot returned by a list run. It returns nil when
// exporting is disabled.
func (e *Exporter) Settings(ctx context.Context, settings *auditing.AuditSettings) (*Result, error) {
	if !e.Enabled() {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := EncodeSettings(&buf, e.format, settings); err != nil {
		return nil, err
	}
	return e.upload(ctx, "list", &buf)
}

// Changes exports the report of an enable or disable run.
func (e *Exporter) Changes(ctx context.Context, operation string, report *auditing.ChangedAuditSettings) (*Result, error) {
	if !e.Enabled() {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := EncodeChanges(&buf, e.format, report); err != nil {
		return nil, err
	}
	return e.upload(ctx, operation, &buf)
}

// upload writes the report under its operation's file name. A failed
// existence check does not stop the upload.
func (e *Exporter) upload(ctx context.Context, operation string, buf *bytes.Buffer) (*Result, error) {
	name := FileName(operation, e.format)

	existed, err := e.store.Exists(ctx, name)
	if err != nil {
		slog.Warn("export: could not check for an earlier report", "name", name, "error", err)
		existed = false
	}

	uploaded, err := e.store.Upload(ctx, name, buf, e.format.ContentType())
	if err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", name, err)
	}
	if existed {
		slog.Info("export: replaced earlier report", "location", uploaded.Location)
	}
	slog.Debug("export: report written", "location", uploaded.Location, "size", uploaded.Size, "sha256", uploaded.Checksum)
	return &Result{UploadResult: uploaded, Replaced: existed}, nil
}
