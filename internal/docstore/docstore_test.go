package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
)

func doc(id, body string) Document {
	return Document{ID: id, Data: json.RawMessage(body)}
}

func ids(list []Document) []string {
	out := make([]string, 0, len(list))
	for _, d := range list {
		out = append(out, d.ID)
	}
	return out
}

func TestQueryFilters(t *testing.T) {
	in := []Document{
		doc("a", `{"status":"verified","online":true}`),
		doc("b", `{"status":"suspended","online":true}`),
		doc("c", `{"status":"active","online":false}`),
		doc("d", `{"online":true}`), // missing status
		doc("e", `not json`),
	}

	got := FleetDriversQuery().Apply(in)
	if want := []string{"a", "c", "d"}; !equal(ids(got), want) {
		t.Fatalf("fleet query: got %v want %v", ids(got), want)
	}

	got = OnlineDriversQuery().Apply(in)
	if want := []string{"a"}; !equal(ids(got), want) {
		t.Fatalf("online query: got %v want %v", ids(got), want)
	}
}

func TestQueryInOperator(t *testing.T) {
	in := []Document{
		doc("t1", `{"status":"accepted"}`),
		doc("t2", `{"status":"completed"}`),
		doc("t3", `{"status":"pending"}`),
	}
	got := ActiveTripsQuery().Apply(in)
	if want := []string{"t1", "t3"}; !equal(ids(got), want) {
		t.Fatalf("got %v want %v", ids(got), want)
	}
}

func TestQueryOrdersByCreatedAtDescending(t *testing.T) {
	in := []Document{
		doc("old", `{"createdAt":"2025-06-01T10:00:00Z"}`),
		doc("new", `{"createdAt":"2025-06-01T12:00:00Z"}`),
		doc("mid", `{"createdAt":1748776800}`), // epoch for 2025-06-01T11:20:00Z
	}
	got := PassengersQuery().Apply(in)
	if want := []string{"new", "mid", "old"}; !equal(ids(got), want) {
		t.Fatalf("got %v want %v", ids(got), want)
	}
}

func TestQueryOrderTiesBreakByID(t *testing.T) {
	in := []Document{
		doc("b", `{"createdAt":"2025-06-01T12:00:00Z"}`),
		doc("a", `{"createdAt":"2025-06-01T12:00:00Z"}`),
		doc("c", `{}`), // unparseable ordering field
	}
	got := PassengersQuery().Apply(in)
	if want := []string{"a", "b", "c"}; !equal(ids(got), want) {
		t.Fatalf("got %v want %v", ids(got), want)
	}
}

func TestQueryPartitionsDocsWithoutOrderField(t *testing.T) {
	in := []Document{
		doc("z", `{"createdAt":"2025-06-01T10:00:00Z"}`),
		doc("a", `{}`),
		doc("m", `{"createdAt":"2025-06-01T12:00:00Z"}`),
		doc("b", `{"createdAt":"nonsense"}`),
	}
	got := PassengersQuery().Apply(in)
	if want := []string{"m", "z", "a", "b"}; !equal(ids(got), want) {
		t.Fatalf("got %v want %v", ids(got), want)
	}
}

func TestSubscribeDeliversInitialAndReplacementSnapshots(t *testing.T) {
	src := NewMemorySource()
	src.Put(CollectionDrivers, "d1", json.RawMessage(`{"status":"verified","online":true}`))

	var snaps []Snapshot
	sub := Subscribe(context.Background(), src, FleetDriversQuery(),
		func(s Snapshot) { snaps = append(snaps, s) },
		func(err error) { t.Fatalf("unexpected error %v", err) })
	defer sub.Unsubscribe()

	if len(snaps) != 1 || len(snaps[0].Docs) != 1 {
		t.Fatalf("initial load must count as a push, got %v", snaps)
	}

	src.Put(CollectionDrivers, "d2", json.RawMessage(`{"status":"active"}`))
	if len(snaps) != 2 {
		t.Fatalf("expected a second push, got %d", len(snaps))
	}
	if want := []string{"d1", "d2"}; !equal(ids(snaps[1].Docs), want) {
		t.Fatalf("replacement snapshot got %v want %v", ids(snaps[1].Docs), want)
	}

	// Snapshot is a full replacement: deleting shrinks the mapping.
	src.Delete(CollectionDrivers, "d1")
	byID := snaps[len(snaps)-1].ByID()
	if _, ok := byID["d1"]; ok || len(byID) != 1 {
		t.Fatalf("expected d1 gone, got %v", byID)
	}
}

func TestSubscribeIgnoresOtherCollections(t *testing.T) {
	src := NewMemorySource()
	count := 0
	sub := Subscribe(context.Background(), src, FleetDriversQuery(),
		func(Snapshot) { count++ }, nil)
	defer sub.Unsubscribe()

	src.Put(CollectionTrips, "t1", json.RawMessage(`{"status":"pending"}`))
	if count != 1 {
		t.Fatalf("trip change must not push the drivers subscription, got %d pushes", count)
	}
}

func TestUnsubscribeStopsDeliveryAndIsIdempotent(t *testing.T) {
	src := NewMemorySource()
	count := 0
	sub := Subscribe(context.Background(), src, FleetDriversQuery(),
		func(Snapshot) { count++ }, nil)

	sub.Unsubscribe()
	sub.Unsubscribe()

	src.Put(CollectionDrivers, "d1", json.RawMessage(`{}`))
	if count != 1 {
		t.Fatalf("no callback may fire after unsubscribe, got %d", count)
	}
}

type failingSource struct {
	*MemorySource
	fail bool
}

func (f *failingSource) List(ctx context.Context, collection string) ([]Document, error) {
	if f.fail {
		return nil, errors.New("boom")
	}
	return f.MemorySource.List(ctx, collection)
}

func TestSubscriptionErrorStopsForGood(t *testing.T) {
	src := &failingSource{MemorySource: NewMemorySource()}
	src.Put(CollectionDrivers, "d1", json.RawMessage(`{}`))

	snaps, errs := 0, 0
	sub := Subscribe(context.Background(), src, FleetDriversQuery(),
		func(Snapshot) { snaps++ }, func(error) { errs++ })
	defer sub.Unsubscribe()

	if snaps != 1 {
		t.Fatalf("expected initial snapshot, got %d", snaps)
	}

	src.fail = true
	src.Put(CollectionDrivers, "d2", json.RawMessage(`{}`))
	if errs != 1 {
		t.Fatalf("expected one error, got %d", errs)
	}

	// No retrying: further changes are not observed.
	src.fail = false
	src.Put(CollectionDrivers, "d3", json.RawMessage(`{}`))
	if snaps != 1 || errs != 1 {
		t.Fatalf("subscription must stay stopped, snaps=%d errs=%d", snaps, errs)
	}
}

// eagerWatchSource fires a change signal during Watch itself and then
// fails every list, modelling a notification racing subscription setup.
type eagerWatchSource struct {
	*MemorySource
	cancelled bool
}

func (s *eagerWatchSource) List(ctx context.Context, collection string) ([]Document, error) {
	return nil, errors.New("listing denied")
}

func (s *eagerWatchSource) Watch(collection string, notify func()) (func(), error) {
	notify()
	return func() { s.cancelled = true }, nil
}

func TestWatchReleasedWhenErrorRacesSetup(t *testing.T) {
	src := &eagerWatchSource{MemorySource: NewMemorySource()}

	errs := 0
	sub := Subscribe(context.Background(), src, FleetDriversQuery(),
		func(Snapshot) { t.Error("no snapshot may be delivered") },
		func(error) { errs++ })
	defer sub.Unsubscribe()

	if errs != 1 {
		t.Fatalf("expected one error, got %d", errs)
	}
	if !src.cancelled {
		t.Fatal("watch must be released when the subscription dies during setup")
	}
}

func TestNoCallbackAfterUnsubscribeUnderConcurrentChanges(t *testing.T) {
	src := NewMemorySource()

	var stopped atomic.Bool
	sub := Subscribe(context.Background(), src, FleetDriversQuery(),
		func(Snapshot) {
			if stopped.Load() {
				t.Error("callback fired after unsubscribe returned")
			}
		}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			src.Put(CollectionDrivers, "d1", json.RawMessage(`{}`))
		}
	}()

	sub.Unsubscribe()
	stopped.Store(true)
	<-done
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
