// Package state owns the four live snapshot cells and the derived alert
// list. Each subscription callback replaces its cell atomically; dependents
// observe immutable per-revision views instead of mutating shared maps.
package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/taxi-ops/internal/alerts"
	"github.com/example/taxi-ops/internal/docs"
	"github.com/example/taxi-ops/internal/docstore"
	"github.com/example/taxi-ops/internal/observability"
)

// Cell names, used for degradation flags and metrics labels.
const (
	CellDrivers       = "drivers"
	CellOnlineDrivers = "drivers_online"
	CellTrips         = "trips"
	CellPassengers    = "passengers"
)

// View is one consistent revision of everything the dashboard shows.
// Slices are replaced wholesale per revision and must not be mutated.
type View struct {
	Revision      uint64           `json:"revision"`
	Drivers       []docs.Driver    `json:"drivers"`
	OnlineDrivers []docs.Driver    `json:"onlineDrivers"`
	Trips         []docs.Trip      `json:"trips"`
	Passengers    []docs.Passenger `json:"passengers"`
	Alerts        []alerts.Alert   `json:"alerts"`
	Degraded      map[string]bool  `json:"degraded,omitempty"`
}

// Manager wires the four canonical subscriptions to their cells and
// recomputes alerts whenever the driver or trip cell changes. All cell
// replacement is serialized; listener fan-out is synchronous and delivers
// revisions in strictly increasing order.
type Manager struct {
	logger  *slog.Logger
	deriver *alerts.Deriver
	now     func() time.Time

	mu        sync.Mutex
	view      View
	listeners map[int]func(View)
	nextID    int
	subs      []*docstore.Subscription
}

type Option func(*Manager)

// WithClock overrides wall-clock reads; tests pin "now".
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(logger *slog.Logger, deriver *alerts.Deriver, opts ...Option) *Manager {
	m := &Manager{
		logger:    logger,
		deriver:   deriver,
		now:       time.Now,
		listeners: make(map[int]func(View)),
		view: View{
			Drivers:       []docs.Driver{},
			OnlineDrivers: []docs.Driver{},
			Trips:         []docs.Trip{},
			Passengers:    []docs.Passenger{},
			Alerts:        []alerts.Alert{},
			Degraded:      map[string]bool{},
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start establishes the four live subscriptions. The initial snapshots
// are delivered synchronously before Start returns.
func (m *Manager) Start(ctx context.Context, src docstore.Source) {
	m.subs = []*docstore.Subscription{
		docstore.Subscribe(ctx, src, docstore.FleetDriversQuery(),
			m.applyDrivers, m.degrade(CellDrivers)),
		docstore.Subscribe(ctx, src, docstore.OnlineDriversQuery(),
			m.applyOnlineDrivers, m.degrade(CellOnlineDrivers)),
		docstore.Subscribe(ctx, src, docstore.ActiveTripsQuery(),
			m.applyTrips, m.degrade(CellTrips)),
		docstore.Subscribe(ctx, src, docstore.PassengersQuery(),
			m.applyPassengers, m.degrade(CellPassengers)),
	}
}

// Stop unsubscribes everything; safe to call repeatedly.
func (m *Manager) Stop() {
	for _, sub := range m.subs {
		sub.Unsubscribe()
	}
}

// View returns the current revision.
func (m *Manager) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

// Listen registers a synchronous view listener and returns its cancel.
func (m *Manager) Listen(fn func(View)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Manager) applyDrivers(snap docstore.Snapshot) {
	set := decodeDrivers(snap, m.logger)
	m.replace(CellDrivers, len(set), func(v *View) { v.Drivers = set }, true)
}

func (m *Manager) applyOnlineDrivers(snap docstore.Snapshot) {
	set := decodeDrivers(snap, m.logger)
	m.replace(CellOnlineDrivers, len(set), func(v *View) { v.OnlineDrivers = set }, false)
}

func (m *Manager) applyTrips(snap docstore.Snapshot) {
	set := make([]docs.Trip, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		trip, err := docs.DecodeTrip(doc.ID, doc.Data)
		if err != nil {
			m.logger.Warn("dropping malformed trip document", "id", doc.ID, "error", err)
			continue
		}
		set = append(set, trip)
	}
	m.replace(CellTrips, len(set), func(v *View) { v.Trips = set }, true)
}

func (m *Manager) applyPassengers(snap docstore.Snapshot) {
	set := make([]docs.Passenger, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		p, err := docs.DecodePassenger(doc.ID, doc.Data)
		if err != nil {
			m.logger.Warn("dropping malformed passenger document", "id", doc.ID, "error", err)
			continue
		}
		set = append(set, p)
	}
	m.replace(CellPassengers, len(set), func(v *View) { v.Passengers = set }, false)
}

// replace swaps one cell, bumps the revision, rederives alerts when the
// inputs of the deriver changed, and fans the new view out synchronously.
// Fan-out happens under the lock: sources notify from concurrent
// goroutines, and releasing the lock before delivery would let a stale
// revision reach listeners after a newer one. Listeners must not call
// back into the Manager.
func (m *Manager) replace(cell string, docCount int, mutate func(*View), affectsAlerts bool) {
	observability.SnapshotsApplied.WithLabelValues(cell).Inc()
	observability.SnapshotDocuments.WithLabelValues(cell).Set(float64(docCount))

	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.view
	mutate(&next)
	next.Revision++
	next.Degraded = copyFlags(m.view.Degraded, cell, false)
	if affectsAlerts {
		next.Alerts = m.deriver.Derive(next.Drivers, next.Trips, m.now())
		observability.AlertDerivations.Inc()
		publishAlertGauges(next.Alerts)
	}
	m.view = next
	for _, fn := range m.listenerList() {
		fn(next)
	}
}

// degrade builds the error handler for one cell: log it, count it, empty
// the cell and flag the view. The dashboard keeps running on the rest.
func (m *Manager) degrade(cell string) func(error) {
	return func(err error) {
		m.logger.Error("live subscription failed", "cell", cell, "error", err)
		observability.SubscriptionErrors.WithLabelValues(cell).Inc()

		m.mu.Lock()
		defer m.mu.Unlock()
		next := m.view
		switch cell {
		case CellDrivers:
			next.Drivers = []docs.Driver{}
		case CellOnlineDrivers:
			next.OnlineDrivers = []docs.Driver{}
		case CellTrips:
			next.Trips = []docs.Trip{}
		case CellPassengers:
			next.Passengers = []docs.Passenger{}
		}
		next.Revision++
		next.Degraded = copyFlags(m.view.Degraded, cell, true)
		next.Alerts = m.deriver.Derive(next.Drivers, next.Trips, m.now())
		m.view = next
		for _, fn := range m.listenerList() {
			fn(next)
		}
	}
}

func (m *Manager) listenerList() []func(View) {
	fns := make([]func(View), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func decodeDrivers(snap docstore.Snapshot, logger *slog.Logger) []docs.Driver {
	set := make([]docs.Driver, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		drv, err := docs.DecodeDriver(doc.ID, doc.Data)
		if err != nil {
			logger.Warn("dropping malformed driver document", "id", doc.ID, "error", err)
			continue
		}
		set = append(set, drv)
	}
	return set
}

func copyFlags(src map[string]bool, cell string, degraded bool) map[string]bool {
	out := make(map[string]bool, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	if degraded {
		out[cell] = true
	} else {
		delete(out, cell)
	}
	return out
}

func publishAlertGauges(list []alerts.Alert) {
	counts := map[alerts.Type]int{}
	for _, a := range list {
		counts[a.Type]++
	}
	for _, t := range []alerts.Type{alerts.TypeDanger, alerts.TypeWarning, alerts.TypeInfo} {
		observability.ActiveAlerts.WithLabelValues(string(t)).Set(float64(counts[t]))
	}
}
