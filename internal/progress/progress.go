// Package progress tracks in-flight extraction jobs in Redis.
//
// Records are ephemeral by design: every write refreshes a fixed TTL and
// expired records simply vanish. Callers are expected to poll a job before
// it expires; there is no garbage collection.
package progress

import (
	"time"
)

// Phase is the lifecycle phase of an extraction job.
// It only ever advances: reading -> writing -> extracting -> running ->
// done or error.
type Phase string

const (
	PhaseReading    Phase = "reading"    // upload is being read into memory
	PhaseWriting    Phase = "writing"    // archive is being written to disk
	PhaseExtracting Phase = "extracting" // archive opened, entries enumerated
	PhaseRunning    Phase = "running"    // entries are being extracted
	PhaseDone       Phase = "done"
	PhaseError      Phase = "error"
)

// Record is the shared progress record for one extraction job.
type Record struct {
	Phase          Phase          `json:"phase"`
	TotalFiles     int            `json:"total_files"`
	ExtractedFiles int            `json:"extracted_files"`
	ExtractSize    int64          `json:"extract_size"`
	RecordingID    string         `json:"recording_id,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	ErrorDetails   map[string]any `json:"error_details,omitempty"`
}

// Report is the poller-facing view of a Record.
type Report struct {
	Phase          Phase  `json:"phase"`
	Percent        int    `json:"percent"`
	TotalFiles     int    `json:"total_files"`
	ExtractedFiles int    `json:"extracted_files"`
	ExtractSize    int64  `json:"extract_size"`
	RecordingID    string `json:"recording_id,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	ErrorDetails   any    `json:"error_details,omitempty"`
}

// ReportFromRecord computes the fixed percent composition:
// 0-15% reading, 15-30% writing, 30-100% proportional to extracted files.
func ReportFromRecord(r *Record) *Report {
	report := &Report{
		Phase:          r.Phase,
		TotalFiles:     r.TotalFiles,
		ExtractedFiles: r.ExtractedFiles,
		ExtractSize:    r.ExtractSize,
		RecordingID:    r.RecordingID,
		ErrorMessage:   r.ErrorMessage,
	}
	if r.ErrorDetails != nil {
		report.ErrorDetails = r.ErrorDetails
	}

	switch r.Phase {
	case PhaseReading:
		report.Percent = 0
	case PhaseWriting:
		report.Percent = 15
	case PhaseExtracting:
		report.Percent = 30
	case PhaseRunning:
		report.Percent = 30
		if r.TotalFiles > 0 {
			report.Percent += 70 * r.ExtractedFiles / r.TotalFiles
		}
	case PhaseDone:
		report.Percent = 100
	case PhaseError:
		// Keep the last computed extraction percent out of the report;
		// pollers only care about the error fields at this point.
		report.Percent = 0
	}

	return report
}

// DefaultTTL bounds how long a record outlives its last write.
const DefaultTTL = time.Hour
