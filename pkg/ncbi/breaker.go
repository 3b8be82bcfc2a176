package ncbi

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/blast-search-server/internal/domain"
)

// ResilientClient wraps the NCBI client in a circuit breaker so a degraded
// QBlast endpoint fails fast instead of holding every search for the full
// poll budget. It satisfies domain.ExecutionBackend like the bare client.
type ResilientClient struct {
	client  *Client
	breaker *gobreaker.CircuitBreaker
}

// NewResilientClient wraps an existing client. The breaker opens after three
// requests with a sixty percent failure ratio and probes again after a
// minute, matching the service's own rate guidance.
func NewResilientClient(client *Client) *ResilientClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ncbi-blast",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	})
	return &ResilientClient{client: client, breaker: breaker}
}

// Execute runs the full remote cycle through the breaker. Typed errors from
// the inner client pass through unchanged so callers can still classify them.
func (r *ResilientClient) Execute(ctx context.Context, req *domain.SearchRequest, query domain.SequenceQuery, database string) (*domain.RawOutput, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.Execute(ctx, req, query, database)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("remote search unavailable (circuit breaker open): %w", err)
		}
		return nil, err
	}
	return result.(*domain.RawOutput), nil
}

// State exposes the breaker state for health reporting.
func (r *ResilientClient) State() gobreaker.State {
	return r.breaker.State()
}

// Counts exposes the breaker counters for health reporting.
func (r *ResilientClient) Counts() gobreaker.Counts {
	return r.breaker.Counts()
}

var _ domain.ExecutionBackend = (*ResilientClient)(nil)
