package reading

import (
	"context"
	"time"
)

// Repository defines the interface for hourly reading persistence.
// Writes are upserts keyed by (district_id, timestamp), last write wins.
type Repository interface {
	// Append stores one reading.
	Append(ctx context.Context, r Reading) error

	// AppendBatch stores readings atomically per call.
	AppendBatch(ctx context.Context, rs []Reading) error

	// QueryRange returns readings for a district within [from, to],
	// ascending by timestamp. No readings is an empty slice, not an error.
	QueryRange(ctx context.Context, districtID string, from, to time.Time) ([]Reading, error)

	// Timestamps returns the distinct reading timestamps within [from, to].
	Timestamps(ctx context.Context, from, to time.Time) ([]time.Time, error)
}
