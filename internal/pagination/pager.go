// Package pagination drains multi-page AWS listing APIs into a single sequence.
//
// Two termination signals occur in the AWS APIs and both are supported:
//   - a continuation token that is absent or empty (NextToken, NextMarker,
//     PaginationToken, ContinuationToken)
//   - an explicit truncation flag going false (IAM IsTruncated, KMS Truncated)
//
// No upper bound on the number of pages is imposed. Callers that need one
// should bound ctx with a deadline; every page checks ctx before it is fetched.
package pagination

import (
	"context"
	"iter"
)

// Page is one response of a listing call.
type Page[T any] struct {
	// Items holds the elements returned by this call.
	Items []T

	// Next is the continuation token to send with the following request.
	Next *string

	// Truncated is set only by APIs that report an explicit truncation flag.
	// When non-nil it must be true for another page to be requested.
	Truncated *bool
}

// hasMore reports whether another request should be issued after p.
func (p Page[T]) hasMore() bool {
	if p.Next == nil || *p.Next == "" {
		return false
	}
	if p.Truncated != nil {
		return *p.Truncated
	}
	return true
}

// FetchFunc issues one listing request. token is nil for the first page.
type FetchFunc[T any] func(ctx context.Context, token *string) (Page[T], error)

// All returns a lazy sequence over every item of every page.
//
// The sequence is finite and not restartable in the sense that each range
// over it issues fresh requests starting from the first page. A fetch error
// is yielded once as the final element.
func All[T any](ctx context.Context, fetch FetchFunc[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var (
			zero  T
			token *string
		)
		for {
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}
			page, err := fetch(ctx, token)
			if err != nil {
				yield(zero, err)
				return
			}
			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
			}
			if !page.hasMore() {
				return
			}
			token = page.Next
		}
	}
}

// Collect drains every page into one slice.
// On error the items gathered so far are discarded.
func Collect[T any](ctx context.Context, fetch FetchFunc[T]) ([]T, error) {
	var out []T
	for item, err := range All(ctx, fetch) {
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// Truncated is a small helper for APIs whose flag is a plain bool.
func Truncated(b bool) *bool {
	return &b
}
