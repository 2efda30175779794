package upload

import (
	"fmt"
	"time"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/client"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/pkg/models"
)

// State is the lifecycle state of a Task.
type State string

const (
	StateQueued    State = "queued"
	StateSubmitted State = "submitted"
	StateSucceeded State = "succeeded"
	StateRejected  State = "rejected"
	StateFailed    State = "failed"
)

// Task is one selected file and where it is in its lifecycle.
type Task struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	State       State     `json:"state"`
	AddedAt     time.Time `json:"added_at"`
}

// Outcome is the resolved result of one file. It is one of Success,
// Rejected, Failed or TransportFailure.
type Outcome interface {
	State() State
	Describe() string
	isOutcome()
}

// Success means the backend processed the file.
type Success struct {
	Records int
}

// Rejected means the backend refused the file (e.g. unsupported type).
type Rejected struct {
	Reason string
}

// Failed means the backend accepted the file but processing failed, or the
// file never made it into the request. Kind is the backend's status value or
// a client-side kind such as KindMissing.
type Failed struct {
	Kind   string
	Reason string
}

// TransportFailure means the whole batch got no usable answer.
type TransportFailure struct {
	Err error
}

// Client-side failure kinds.
const (
	KindMissing    = "missing"
	KindUnreadable = "unreadable"
)

func (Success) State() State          { return StateSucceeded }
func (Rejected) State() State         { return StateRejected }
func (Failed) State() State           { return StateFailed }
func (TransportFailure) State() State { return StateFailed }

func (Success) isOutcome()          {}
func (Rejected) isOutcome()         {}
func (Failed) isOutcome()           {}
func (TransportFailure) isOutcome() {}

func (o Success) Describe() string {
	return fmt.Sprintf("✓ %d record(s) extracted", o.Records)
}

func (o Rejected) Describe() string {
	if o.Reason != "" {
		return o.Reason
	}
	return "rejected"
}

func (o Failed) Describe() string {
	if o.Reason != "" {
		return o.Reason
	}
	return o.Kind
}

func (o TransportFailure) Describe() string {
	return "upload failed, backend unreachable"
}

// outcomeFromResult turns the backend's status string into a typed outcome.
func outcomeFromResult(r client.FileResult) Outcome {
	switch models.NormalizeStatus(r.Status) {
	case "success":
		records := 0
		if r.RecordsExtracted != nil {
			records = *r.RecordsExtracted
		}
		return Success{Records: records}
	case "rejected":
		return Rejected{Reason: r.Reason}
	default:
		return Failed{Kind: r.Status, Reason: r.Reason}
	}
}

// FileOutcome ties an outcome back to the task it belongs to. TaskID is
// empty for results the backend returned for files it was not sent.
type FileOutcome struct {
	TaskID   string
	Filename string
	Outcome  Outcome
}

// BatchResult is the resolved state of one submitted batch.
type BatchResult struct {
	Files []FileOutcome

	// TransportErr is set when the batch got no usable answer.
	TransportErr error
}

// TransportFailed reports whether the whole batch failed in transport.
func (b *BatchResult) TransportFailed() bool {
	return b.TransportErr != nil
}

// Counts tallies outcomes by final state.
func (b *BatchResult) Counts() (succeeded, rejected, failed int) {
	for _, f := range b.Files {
		switch f.Outcome.State() {
		case StateSucceeded:
			succeeded++
		case StateRejected:
			rejected++
		default:
			failed++
		}
	}
	return succeeded, rejected, failed
}

// RecordsExtracted sums the records of all successful files.
func (b *BatchResult) RecordsExtracted() int {
	total := 0
	for _, f := range b.Files {
		if s, ok := f.Outcome.(Success); ok {
			total += s.Records
		}
	}
	return total
}
