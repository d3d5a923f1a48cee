package model

import (
	"time"

	"github.com/google/uuid"
)

// FetchMode selects which QuoteSource operation a task uses.
type FetchMode string

const (
	FetchDaily      FetchMode = "daily"
	FetchHistorical FetchMode = "historical"
)

// TickerTask is a unit of ingestion work for one run.
type TickerTask struct {
	Ticker string
	Range  DateRange
	Mode   FetchMode
}

// TaskState tracks a TickerTask through a run.
type TaskState string

const (
	StatePending           TaskState = "Pending"
	StateAttempting        TaskState = "Attempting"
	StateRetrying          TaskState = "Retrying"
	StateSucceeded         TaskState = "Succeeded"
	StatePermanentlyFailed TaskState = "PermanentlyFailed"
)

// Terminal reports whether no further transition is possible.
func (s TaskState) Terminal() bool {
	return s == StateSucceeded || s == StatePermanentlyFailed
}

// IngestionOutcome is the result of one TickerTask.
type IngestionOutcome struct {
	Ticker   string    `json:"ticker"`
	Success  bool      `json:"success"`
	Count    int       `json:"count"`
	Dropped  int       `json:"dropped,omitempty"`
	Attempts int       `json:"attempts"`
	State    TaskState `json:"state"`
	Kind     ErrorKind `json:"kind,omitempty"`
	Message  string    `json:"message,omitempty"`
	Range    DateRange `json:"range"`
	Elapsed  float64   `json:"elapsed_seconds"`
}

// Succeed marks the outcome successful with count observations written.
func (o *IngestionOutcome) Succeed(count int) {
	o.Success = true
	o.Count = count
	o.State = StateSucceeded
	o.Kind = ""
	o.Message = ""
}

// Fail marks the outcome permanently failed.
func (o *IngestionOutcome) Fail(kind ErrorKind, err error, count int) {
	o.Success = false
	o.Count = count
	o.State = StatePermanentlyFailed
	o.Kind = kind
	if err != nil {
		o.Message = err.Error()
	}
}

// ReportError is the compact failure entry of a RunReport.
type ReportError struct {
	Ticker  string    `json:"ticker"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// RunReport summarizes one ingestion run.
type RunReport struct {
	RunID      string             `json:"run_id"`
	Job        string             `json:"job"`
	Timestamp  time.Time          `json:"timestamp"`
	FinishedAt time.Time          `json:"finished_at"`
	Universe   int                `json:"universe"`
	Attempted  int                `json:"attempted"`
	Succeeded  int                `json:"succeeded"`
	Failed     int                `json:"failed"`
	Written    int                `json:"written"`
	Canceled   bool               `json:"canceled"`
	Errors     []ReportError      `json:"errors"`
	Outcomes   []IngestionOutcome `json:"outcomes"`
}

// NewRunReport starts a report for job at the given time.
func NewRunReport(job string, started time.Time) *RunReport {
	return &RunReport{
		RunID:     uuid.NewString(),
		Job:       job,
		Timestamp: started,
		Errors:    []ReportError{},
		Outcomes:  []IngestionOutcome{},
	}
}

// Add records one outcome and updates the totals.
func (r *RunReport) Add(o IngestionOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.Attempted++
	r.Written += o.Count
	if o.Success {
		r.Succeeded++
		return
	}
	r.Failed++
	r.Errors = append(r.Errors, ReportError{Ticker: o.Ticker, Kind: o.Kind, Message: o.Message})
}

// Duration is the wall-clock time the run took.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.Timestamp)
}

// Outcome returns the outcome recorded for ticker.
func (r *RunReport) Outcome(ticker string) (IngestionOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Ticker == ticker {
			return o, true
		}
	}
	return IngestionOutcome{}, false
}
