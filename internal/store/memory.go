package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/quadrel/pecbridge/pkg/db/pagination"
)

// MemoryStore is an in-memory Store used by tests and local runs.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Item

	// Intercept, when set, runs before every operation and may return an
	// error to simulate a transport failure. op is one of "read", "query",
	// "upsert".
	Intercept func(op, collection, id string) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]Item)}
}

// Seed stores doc without going through Upsert outcome handling.
func (s *MemoryStore) Seed(collection, id, partitionKey string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[collection] == nil {
		s.data[collection] = make(map[string]Item)
	}
	s.data[collection][id] = Item{ID: id, PartitionKey: partitionKey, Data: payload}
	return nil
}

func (s *MemoryStore) ReadByID(ctx context.Context, collection, id, partitionKey string) (Item, error) {
	_ = ctx
	if err := s.intercept("read", collection, id); err != nil {
		return Item{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.data[collection][id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return item, nil
}

func (s *MemoryStore) QueryPage(ctx context.Context, collection string, q Query, continuationToken string) (Page, error) {
	_ = ctx
	if err := s.intercept("query", collection, ""); err != nil {
		return Page{}, err
	}

	offset := 0
	if continuationToken != "" {
		cursor, err := pagination.DecodeCursor(continuationToken)
		if err != nil {
			return Page{}, err
		}
		offset = cursor.Offset
	}

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	matches := s.match(collection, q)
	if offset > len(matches) {
		offset = len(matches)
	}
	end := offset + pageSize
	page := Page{}
	if end < len(matches) {
		token, err := pagination.EncodeCursor(pagination.Cursor{Collection: collection, Offset: end})
		if err != nil {
			return Page{}, err
		}
		page.HasMore = true
		page.ContinuationToken = token
	} else {
		end = len(matches)
	}
	page.Items = matches[offset:end]
	return page, nil
}

func (s *MemoryStore) QueryAll(ctx context.Context, collection string, q Query) ([]Item, error) {
	var items []Item
	token := ""
	for {
		page, err := s.QueryPage(ctx, collection, q, token)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		if !page.HasMore {
			return items, nil
		}
		token = page.ContinuationToken
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, collection, id, partitionKey string, doc any) (Outcome, error) {
	_ = ctx
	if err := s.intercept("upsert", collection, id); err != nil {
		return Outcome{Status: http.StatusInternalServerError}, err
	}
	if err := s.Seed(collection, id, partitionKey, doc); err != nil {
		return Outcome{Status: http.StatusInternalServerError}, err
	}
	return Outcome{Status: http.StatusOK}, nil
}

func (s *MemoryStore) match(collection string, q Query) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data[collection]))
	for id := range s.data[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var matches []Item
	for _, id := range ids {
		item := s.data[collection][id]
		if q.Field != "" && !payloadFieldEquals(item.Data, q.Field, q.Value) {
			continue
		}
		matches = append(matches, item)
	}
	return matches
}

func payloadFieldEquals(data json.RawMessage, field string, value any) bool {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return false
	}
	got, ok := payload[field]
	if !ok {
		return false
	}
	// normalize through fmt so numeric JSON values compare with int/float inputs
	return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", value)
}

func (s *MemoryStore) intercept(op, collection, id string) error {
	if s.Intercept == nil {
		return nil
	}
	return s.Intercept(op, collection, id)
}
