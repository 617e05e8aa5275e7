package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// MemoryStore keeps JSON-encoded documents in memory. Documents are encoded
// on write and decoded on read, so callers never share state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	order []string
	docs  map[string][]byte
}

var _ DocumentStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func (m *MemoryStore) collection(name string) *memoryCollection {
	c, ok := m.collections[name]
	if !ok {
		c = &memoryCollection{docs: make(map[string][]byte)}
		m.collections[name] = c
	}
	return c
}

func (m *MemoryStore) Create(ctx context.Context, collection, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(collection)
	if _, exists := c.docs[id]; exists {
		return ErrDuplicateID
	}
	c.docs[id] = body
	c.order = append(c.order, id)
	return nil
}

func (m *MemoryStore) Replace(ctx context.Context, collection, id string, doc any, opts ...ReplaceOption) error {
	o := applyReplaceOptions(opts)
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(collection)
	existing, ok := c.docs[id]
	if !ok {
		return ErrNotFound
	}
	if o.ExpectedRevision != nil {
		var current struct {
			Revision int `json:"revision"`
		}
		if err := json.Unmarshal(existing, &current); err != nil {
			return fmt.Errorf("decode stored revision: %w", err)
		}
		if current.Revision != *o.ExpectedRevision {
			return ErrRevisionMismatch
		}
	}
	c.docs[id] = body
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string, out any) error {
	m.mu.RLock()
	var body []byte
	ok := false
	if c, exists := m.collections[collection]; exists {
		body, ok = c.docs[id]
	}
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(body, out)
}

func (m *MemoryStore) FindAll(ctx context.Context, collection string, filter Filter, out any) error {
	exact, fold := filter.split()
	want, err := normalizeFilter(exact)
	if err != nil {
		return err
	}

	m.mu.RLock()
	var order []string
	var docs map[string][]byte
	if c, exists := m.collections[collection]; exists {
		order, docs = c.order, c.docs
	}
	var matched [][]byte
	for _, id := range order {
		body := docs[id]
		ok, err := matches(body, want, fold)
		if err != nil {
			m.mu.RUnlock()
			return err
		}
		if ok {
			matched = append(matched, body)
		}
	}
	m.mu.RUnlock()

	return decodeArray(matched, out)
}

func (m *MemoryStore) Close(ctx context.Context) error {
	return nil
}

// Count returns the number of documents in a collection.
func (m *MemoryStore) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[collection]; ok {
		return len(c.docs)
	}
	return 0
}

// normalizeFilter round-trips the filter through JSON so its values compare
// equal to decoded document fields.
func normalizeFilter(filter Filter) (map[string]any, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode filter: %w", err)
	}
	return out, nil
}

func matches(body []byte, want map[string]any, fold map[string]string) (bool, error) {
	if len(want) == 0 && len(fold) == 0 {
		return true, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return false, fmt.Errorf("decode document: %w", err)
	}
	for k, v := range want {
		if !reflect.DeepEqual(doc[k], v) {
			return false, nil
		}
	}
	for k, v := range fold {
		s, ok := doc[k].(string)
		if !ok || !strings.EqualFold(s, v) {
			return false, nil
		}
	}
	return true, nil
}

// decodeArray decodes a list of JSON documents into out, a pointer to a slice.
// No documents yields an empty, non-nil slice.
func decodeArray(bodies [][]byte, out any) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.Write(bytes.Join(bodies, []byte(",")))
	buf.WriteByte(']')
	if err := json.Unmarshal(buf.Bytes(), out); err != nil {
		return fmt.Errorf("decode documents: %w", err)
	}
	return nil
}
