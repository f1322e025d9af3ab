// Package store exposes the document-record capability surface consumed by
// the ingestion pipeline and the claim workflow. Records live in logical
// collections keyed by id and partition key, mirroring the upstream change
// feed layout; callers interpret outcomes through status codes the same way
// the feed producer does (200 found, 404 missing, other 2xx write success).
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// Logical collection names. These are a contract with the change-feed
// producer and must remain stable.
const (
	CollectionEmails      = "pecEmail"
	CollectionMemberships = "memberships"
	CollectionAttachments = "pecAllegato"
	CollectionDelegates   = "pecDelegato"
	CollectionContracts   = "contracts"
	CollectionAggregators = "pecAggregatore"
)

var (
	ErrNotFound = errors.New("item_not_found")
)

// Item is one stored document, payload left undecoded for the caller.
type Item struct {
	ID           string
	PartitionKey string
	Data         json.RawMessage
}

// Decode unmarshals the payload into out.
func (i Item) Decode(out any) error {
	return json.Unmarshal(i.Data, out)
}

// Query is an equality match on a single payload field.
type Query struct {
	Field    string
	Value    any
	PageSize int
}

// Page is one slice of a query result plus its continuation state.
type Page struct {
	Items             []Item
	ContinuationToken string
	HasMore           bool
}

// Outcome reports the status code of a write.
type Outcome struct {
	Status int
}

// OK reports whether the write succeeded.
func (o Outcome) OK() bool {
	return o.Status >= 200 && o.Status < 300
}

// Store is the typed read/query/upsert surface over the collections.
type Store interface {
	// ReadByID returns the item, ErrNotFound when the id is absent, or a
	// transport error.
	ReadByID(ctx context.Context, collection, id, partitionKey string) (Item, error)

	// QueryPage returns one page of matches; pass the previous page's
	// continuation token to resume.
	QueryPage(ctx context.Context, collection string, q Query, continuationToken string) (Page, error)

	// QueryAll drains every page of matches before returning.
	QueryAll(ctx context.Context, collection string, q Query) ([]Item, error)

	// Upsert inserts or replaces the document under (collection, id).
	Upsert(ctx context.Context, collection, id, partitionKey string, doc any) (Outcome, error)
}

const defaultPageSize = 100
