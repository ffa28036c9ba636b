// Package memstore is an in-process document store with optimistic read-write
// transactions and atomic batches. It backs the in-memory repositories and
// mirrors the guarantees the Spanner scope gives: reads inside a transaction
// are validated at commit and the transaction function is replayed on conflict.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/rai/order-reporting/modules/shared/transaction"
)

var (
	// ErrBatchTooLarge is returned when a batch exceeds the configured write limit.
	// Nothing from the batch is applied.
	ErrBatchTooLarge = errors.New("batch exceeds maximum number of writes")

	errConflict = errors.New("concurrent commit touched a document read by this transaction")
)

const (
	defaultMaxAttempts    = 50
	defaultMaxBatchWrites = 500
)

// Store holds collections of versioned documents.
// Documents are stored as given; callers must not mutate values after
// writing them or after reading them.
type Store struct {
	mu             sync.Mutex
	collections    map[string]map[string]record
	clock          uint64
	maxAttempts    int
	maxBatchWrites int
}

type record struct {
	version uint64
	data    any
}

type Option func(*Store)

// WithMaxAttempts sets how many times a conflicting transaction is replayed.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithMaxBatchWrites caps the number of writes in a single batch.
func WithMaxBatchWrites(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBatchWrites = n
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		collections:    make(map[string]map[string]record),
		maxAttempts:    defaultMaxAttempts,
		maxBatchWrites: defaultMaxBatchWrites,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get reads a committed document outside any transaction.
func (s *Store) Get(collection, id string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.collections[collection][id]
	return rec.data, ok
}

// Document is a committed document with its id.
type Document struct {
	ID   string
	Data any
}

// List returns every committed document in collection, ordered by id.
func (s *Store) List(collection string) []Document {
	s.mu.Lock()
	docs := make([]Document, 0, len(s.collections[collection]))
	for id, rec := range s.collections[collection] {
		docs = append(docs, Document{ID: id, Data: rec.data})
	}
	s.mu.Unlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

// Execute implements transaction.Scope.
// fn is replayed with a fresh transaction whenever a document it read was
// changed by another commit before this one; after the attempt budget the
// error wraps transaction.ErrConflictExhausted.
func (s *Store) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxnFromContext(ctx); ok {
		return transaction.ErrNestedTransaction
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		txn := &Txn{
			store:  s,
			reads:  make(map[docKey]uint64),
			writes: make(map[docKey]write),
		}
		if err := fn(withTxn(ctx, txn)); err != nil {
			return err
		}
		err := s.commit(txn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errConflict) {
			return err
		}
		runtime.Gosched()
	}
	return fmt.Errorf("%w after %d attempts", transaction.ErrConflictExhausted, s.maxAttempts)
}

func (s *Store) commit(txn *Txn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, seen := range txn.reads {
		if s.versionLocked(key) != seen {
			return errConflict
		}
	}
	for _, key := range txn.order {
		s.applyLocked(key, txn.writes[key])
	}
	return nil
}

func (s *Store) versionLocked(key docKey) uint64 {
	return s.collections[key.collection][key.id].version
}

func (s *Store) applyLocked(key docKey, w write) {
	coll, ok := s.collections[key.collection]
	if !ok {
		coll = make(map[string]record)
		s.collections[key.collection] = coll
	}
	if w.delete {
		delete(coll, key.id)
		return
	}
	s.clock++
	coll[key.id] = record{version: s.clock, data: w.data}
}

type docKey struct {
	collection string
	id         string
}

type write struct {
	data   any
	delete bool
}

// Batch collects blind writes that commit all together or not at all.
type Batch struct {
	store  *Store
	order  []docKey
	writes map[docKey]write
}

func (s *Store) Batch() *Batch {
	return &Batch{store: s, writes: make(map[docKey]write)}
}

func (b *Batch) Set(collection, id string, data any) *Batch {
	b.put(docKey{collection, id}, write{data: data})
	return b
}

func (b *Batch) Delete(collection, id string) *Batch {
	b.put(docKey{collection, id}, write{delete: true})
	return b
}

func (b *Batch) put(key docKey, w write) {
	if _, seen := b.writes[key]; !seen {
		b.order = append(b.order, key)
	}
	b.writes[key] = w
}

// Len returns the number of buffered writes.
func (b *Batch) Len() int { return len(b.order) }

// Commit applies every buffered write atomically.
func (b *Batch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := b.store
	if len(b.order) > s.maxBatchWrites {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(b.order), s.maxBatchWrites)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range b.order {
		s.applyLocked(key, b.writes[key])
	}
	return nil
}

// Compile-time interface check.
var _ transaction.Scope = (*Store)(nil)
