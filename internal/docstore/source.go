package docstore

import (
	"context"
	"encoding/json"
	"sync"
)

// Document is one raw entry of a collection: the store's id plus the JSON
// body exactly as the upstream writer left it.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Snapshot is the full result of a query at one revision. Consumers
// replace their local state with it wholesale; there is no incremental
// patching across snapshots.
type Snapshot struct {
	Docs []Document
}

// ByID builds the id->document mapping for the snapshot.
func (s Snapshot) ByID() map[string]Document {
	m := make(map[string]Document, len(s.Docs))
	for _, d := range s.Docs {
		m[d.ID] = d
	}
	return m
}

// Source is the read-only boundary to the remote document store: list a
// collection, and signal when its contents may have changed. Query
// evaluation happens in Subscribe, not in the source.
type Source interface {
	List(ctx context.Context, collection string) ([]Document, error)
	// Watch invokes notify on every change signal for the collection
	// until the returned cancel func runs. Cancel is idempotent.
	Watch(collection string, notify func()) (cancel func(), err error)
}

// Subscription is one live query. The initial load counts as the first
// push; every push re-reads the collection and delivers a full snapshot.
// The first error stops the subscription for good — retrying is the
// store client's business, not ours.
type Subscription struct {
	mu     sync.Mutex
	closed bool
	cancel func()
}

func Subscribe(ctx context.Context, src Source, q Query, onSnapshot func(Snapshot), onError func(error)) *Subscription {
	sub := &Subscription{}

	push := func() {
		docs, err := src.List(ctx, q.Collection)

		// Delivery happens under the subscription lock: Unsubscribe blocks
		// until an in-flight callback finishes, so no callback lands after
		// it returns. Callbacks must not call Unsubscribe themselves.
		sub.mu.Lock()
		defer sub.mu.Unlock()
		if sub.closed {
			return
		}
		if err != nil {
			sub.closed = true
			if sub.cancel != nil {
				sub.cancel()
			}
			if onError != nil {
				onError(err)
			}
			return
		}
		onSnapshot(Snapshot{Docs: q.Apply(docs)})
	}

	cancelWatch, err := src.Watch(q.Collection, push)
	if err != nil {
		sub.closed = true
		if onError != nil {
			onError(err)
		}
		return sub
	}

	sub.mu.Lock()
	if sub.closed {
		// A change signal raced subscription setup and hit the error path
		// before the cancel func was recorded; release the watch here.
		sub.mu.Unlock()
		cancelWatch()
		return sub
	}
	sub.cancel = cancelWatch
	sub.mu.Unlock()

	push()
	return sub
}

// Unsubscribe stops delivery synchronously. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// watcherSet fans one change signal out to registered collection
// watchers. Shared by every source implementation.
type watcherSet struct {
	mu     sync.Mutex
	nextID int
	byColl map[string]map[int]func()
}

func newWatcherSet() *watcherSet {
	return &watcherSet{byColl: make(map[string]map[int]func())}
}

func (w *watcherSet) add(collection string, notify func()) (cancel func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	if w.byColl[collection] == nil {
		w.byColl[collection] = make(map[int]func())
	}
	w.byColl[collection][id] = notify
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.byColl[collection], id)
	}
}

func (w *watcherSet) notify(collection string) {
	w.mu.Lock()
	fns := make([]func(), 0, len(w.byColl[collection]))
	for _, fn := range w.byColl[collection] {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
