package search

import (
	"context"
	"log"
	"strings"
)

// Result is a single ranked search hit.
type Result struct {
	URL     string
	Title   string
	Content string
}

// Provider is the interface for web search providers.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// ExecuteQueries runs each unique query against the provider sequentially
// and returns hits tagged with the query that produced them. A failing query
// is logged and skipped; an error is returned only when every query fails.
func ExecuteQueries(ctx context.Context, p Provider, queries []string) ([]QueryResult, error) {
	unique := dedupeQueries(queries)

	var all []QueryResult
	var lastErr error
	failures := 0

	for _, q := range unique {
		results, err := p.Search(ctx, q)
		if err != nil {
			log.Printf("Search failed for %q: %v", q, err)
			lastErr = err
			failures++
			continue
		}
		for _, r := range results {
			all = append(all, QueryResult{Query: q, Result: r})
		}
	}

	if failures == len(unique) && lastErr != nil {
		return nil, lastErr
	}
	return all, nil
}

// QueryResult pairs a hit with the query that produced it.
type QueryResult struct {
	Query  string
	Result Result
}

// dedupeQueries removes duplicate queries, preserving first-seen order.
func dedupeQueries(queries []string) []string {
	seen := make(map[string]struct{}, len(queries))
	var unique []string
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, q)
	}
	return unique
}
