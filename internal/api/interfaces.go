package api

import (
	"context"

	"github.com/persistorai/threadline/internal/service"
)

// HealthChecker is implemented by the corpus store.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CompletionHealth is implemented by the completion client.
type CompletionHealth interface {
	Health(ctx context.Context) error
}

// ProgressSource exposes the live counters of a run.
type ProgressSource interface {
	Snapshot() service.ProgressSnapshot
}
