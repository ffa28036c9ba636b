package memstore

import "context"

type txnKey struct{}

func withTxn(ctx context.Context, txn *Txn) context.Context {
	return context.WithValue(ctx, txnKey{}, txn)
}

// TxnFromContext returns the transaction started by Store.Execute, if any.
func TxnFromContext(ctx context.Context) (*Txn, bool) {
	txn, ok := ctx.Value(txnKey{}).(*Txn)
	return txn, ok
}

// Txn is one attempt of a read-write transaction.
// Writes are buffered and become visible only when the attempt commits.
type Txn struct {
	store  *Store
	reads  map[docKey]uint64
	writes map[docKey]write
	order  []docKey
}

// Get reads a document, observing this transaction's own buffered writes.
// The version seen is validated at commit.
func (t *Txn) Get(collection, id string) (any, bool) {
	key := docKey{collection, id}
	if w, ok := t.writes[key]; ok {
		if w.delete {
			return nil, false
		}
		return w.data, true
	}

	t.store.mu.Lock()
	rec, ok := t.store.collections[collection][id]
	t.store.mu.Unlock()

	if _, seen := t.reads[key]; !seen {
		t.reads[key] = rec.version
	}
	return rec.data, ok
}

func (t *Txn) Set(collection, id string, data any) {
	t.put(docKey{collection, id}, write{data: data})
}

func (t *Txn) Delete(collection, id string) {
	t.put(docKey{collection, id}, write{delete: true})
}

func (t *Txn) put(key docKey, w write) {
	if _, seen := t.writes[key]; !seen {
		t.order = append(t.order, key)
	}
	t.writes[key] = w
}
