package core

import (
	"errors"
	"strings"
	"time"
)

type (
	ExportFormat string
	ExportStatus string
)

const (
	ExportCSV    ExportFormat = "csv"
	ExportPDF    ExportFormat = "pdf"
	ExportSheets ExportFormat = "sheets"

	ExportPending ExportStatus = "pending"
	ExportRunning ExportStatus = "running"
	ExportDone    ExportStatus = "done"
	ExportFailed  ExportStatus = "failed"
)

var ErrInvalidExportFormat = errors.New("invalid export format")

// ExportJob is an asynchronous export of a user's invoices.
// Granularity, when set, limits the export to the period containing AsOf.
type ExportJob struct {
	ID          string
	UserID      string
	SessionID   string
	Format      ExportFormat
	Status      ExportStatus
	Granularity string
	AsOf        time.Time
	OutputPath  string
	ResultRef   string
	Error       string
	Attempts    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case ExportCSV:
		return ExportCSV, nil
	case ExportPDF:
		return ExportPDF, nil
	case ExportSheets:
		return ExportSheets, nil
	}
	return "", ErrInvalidExportFormat
}

// Finished reports whether the job reached a terminal state.
func (j ExportJob) Finished() bool {
	return j.Status == ExportDone || j.Status == ExportFailed
}

// Extension is the file extension of downloadable outputs, empty for sheets.
func (f ExportFormat) Extension() string {
	switch f {
	case ExportCSV:
		return ".csv"
	case ExportPDF:
		return ".pdf"
	}
	return ""
}

func (f ExportFormat) ContentType() string {
	switch f {
	case ExportCSV:
		return "text/csv; charset=utf-8"
	case ExportPDF:
		return "application/pdf"
	}
	return "application/octet-stream"
}
