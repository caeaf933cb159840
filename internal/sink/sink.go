package sink

import (
	"context"

	"github.com/shortontech/netlens/internal/report"
)

// Sink receives detection reports. Enqueue must be cheap; slow transports
// buffer internally and flush from their own goroutines.
type Sink interface {
	Start(ctx context.Context) error
	Enqueue(r report.Report) error
	Close() error
	Name() string // Returns the sink name for metrics and logging
}
