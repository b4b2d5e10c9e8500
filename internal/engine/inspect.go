package engine

import (
	"context"

	"github.com/leapstack-labs/remotesql/pkg/remotetable"
)

// Inspection is the outcome of running a remote query once without
// creating a table.
type Inspection struct {
	Binding    remotetable.Binding
	Schema     remotetable.Schema
	RowCount   int
	Duplicates []string
}

// Inspect fetches a result set and infers its schema. It does not need a
// database connection.
func (e *Engine) Inspect(ctx context.Context, rawURL, query string) (*Inspection, error) {
	if err := ValidateBinding("inspect", rawURL, query); err != nil {
		return nil, err
	}

	b := remotetable.Binding{URL: rawURL, Query: query}
	rows, err := e.newFetcher().Fetch(ctx, b)
	if err != nil {
		return nil, err
	}

	schema := remotetable.InferSchema(rows)
	return &Inspection{
		Binding:    b,
		Schema:     schema,
		RowCount:   len(rows),
		Duplicates: schema.Duplicates(),
	}, nil
}

func (e *Engine) newFetcher() *remotetable.Fetcher {
	opts := []remotetable.FetcherOption{remotetable.WithFetchLogger(e.logger)}
	if e.fetch.ConnectTimeout > 0 {
		opts = append(opts, remotetable.WithConnectTimeout(e.fetch.ConnectTimeout))
	}
	if e.fetch.Timeout > 0 {
		opts = append(opts, remotetable.WithTimeout(e.fetch.Timeout))
	}
	if e.fetch.UserAgent != "" {
		opts = append(opts, remotetable.WithUserAgent(e.fetch.UserAgent))
	}
	return remotetable.NewFetcher(opts...)
}
