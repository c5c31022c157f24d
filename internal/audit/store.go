package audit

import (
	"context"

	id "veristry/pkg/domain"
)

// Appender is the minimal sink-side persistence contract. The worker only
// ever appends; fan-out backends (kafka) implement just this.
type Appender interface {
	Append(ctx context.Context, rec Record) error
}

// Store adds the query side used by operators and tests. The memory and
// postgres backends implement it.
type Store interface {
	Appender
	ListByRequest(ctx context.Context, requestID id.RequestID) ([]Record, error)
}

// MultiAppender fans one record out to several backends. The first error is
// returned after all backends were attempted, so a kafka outage never stops
// the durable store from receiving the record.
type MultiAppender []Appender

func (m MultiAppender) Append(ctx context.Context, rec Record) error {
	var first error
	for _, a := range m {
		if err := a.Append(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}
