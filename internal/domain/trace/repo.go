package trace

import "context"

// Repository is the local sink for sealed trace records.
type Repository interface {
	Store(ctx context.Context, rec *Record) error
	GetByTraceID(ctx context.Context, traceID string) (*Record, error)
}

// Shipper is the optional external observability collaborator. Failures are
// logged and swallowed; they never fail the turn.
type Shipper interface {
	Ship(ctx context.Context, rec *Record) error
}
