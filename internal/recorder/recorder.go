// Package recorder keeps a history of ingestion runs.
package recorder

import (
	"context"
	"errors"

	"PortfolioPulse/internal/model"
)

// ErrNoRuns is returned by Latest when no run of the job was recorded.
var ErrNoRuns = errors.New("no recorded runs")

// Recorder persists run reports for later inspection.
type Recorder interface {
	RecordRun(ctx context.Context, report *model.RunReport) error
	Close() error
}

// Reader returns the most recent report of a job. An empty job matches
// any job.
type Reader interface {
	Latest(ctx context.Context, job string) (*model.RunReport, error)
}

// FailureCounter counts failures per ticker over the last n runs of a job.
type FailureCounter interface {
	FailureCounts(ctx context.Context, job string, n int) (map[string]int, error)
}

// Multi fans a report out to several recorders. Every recorder is tried;
// failures are joined.
type Multi []Recorder

func (m Multi) RecordRun(ctx context.Context, report *model.RunReport) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordRun(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Latest reads from the first recorder that implements Reader.
func (m Multi) Latest(ctx context.Context, job string) (*model.RunReport, error) {
	for _, r := range m {
		if rd, ok := r.(Reader); ok {
			return rd.Latest(ctx, job)
		}
	}
	return nil, ErrNoRuns
}

// FailureCounts reads from the first recorder that implements FailureCounter.
func (m Multi) FailureCounts(ctx context.Context, job string, n int) (map[string]int, error) {
	for _, r := range m {
		if fc, ok := r.(FailureCounter); ok {
			return fc.FailureCounts(ctx, job, n)
		}
	}
	return map[string]int{}, nil
}

func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
