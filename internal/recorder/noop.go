package recorder

import (
	"context"

	"PortfolioPulse/internal/model"
)

// NoopRecorder discards reports; used when no history store is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(_ context.Context, _ *model.RunReport) error { return nil }
func (n *NoopRecorder) Latest(_ context.Context, _ string) (*model.RunReport, error) {
	return nil, ErrNoRuns
}
func (n *NoopRecorder) Close() error { return nil }
