package ports

import (
	"context"

	"cppide/internal/domain/execution"
)

// ReportPublisher publishes build and run reports to an external system.
type ReportPublisher interface {
	PublishReport(ctx context.Context, report execution.Report) error
	Close() error
}
