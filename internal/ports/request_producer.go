package ports

import (
	"context"

	"cppide/internal/domain/execution"
)

// RequestProducer yields build requests for headless execution. It returns
// io.EOF once no further requests will arrive.
type RequestProducer interface {
	NextRequest(ctx context.Context) (execution.BuildRequest, error)
}
