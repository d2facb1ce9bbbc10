package scraper

import (
	"context"
)

// Source defines the interface that all proxy sources must implement.
type Source interface {
	// Name returns the unique name of the source.
	Name() string

	// Fetch retrieves raw candidate tokens ("host:port" or "scheme://host:port").
	// It should use the context for timeout/cancellation.
	Fetch(ctx context.Context) ([]string, error)
}
