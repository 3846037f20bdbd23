package alerts

import (
	"fmt"
	"sort"
	"time"

	"github.com/example/taxi-ops/internal/docs"
)

type Type string

const (
	TypeDanger  Type = "danger"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
)

func rank(t Type) int {
	switch t {
	case TypeDanger:
		return 0
	case TypeWarning:
		return 1
	default:
		return 2
	}
}

// Alert is derived state, never persisted. IDs are deterministic
// (rule name + subject id) so re-deriving from identical inputs yields
// an identical list.
type Alert struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	TripID    string    `json:"tripId,omitempty"`
	DriverID  string    `json:"driverId,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Rule inspects the current driver and trip sets and emits zero or more
// alerts. Rules are independent; one subject may trip several rules.
type Rule func(drivers []docs.Driver, trips []docs.Trip, now time.Time) []Alert

const DefaultStuckAfter = 5 * time.Minute

// Deriver turns raw entity sets into the dashboard's alert list. It is a
// pure projection: it never touches the store and runs only when a
// driver or trip snapshot changes, never on a timer.
type Deriver struct {
	stuckAfter time.Duration
	rules      []Rule
}

func NewDeriver(stuckAfter time.Duration) *Deriver {
	if stuckAfter <= 0 {
		stuckAfter = DefaultStuckAfter
	}
	d := &Deriver{stuckAfter: stuckAfter}
	d.rules = []Rule{
		d.stuckTrips,
		d.offlineMidTrip,
		d.stripeDisabled,
		d.expiredSubscriptions,
	}
	return d
}

// Derive evaluates every rule and returns the alerts ordered by severity
// (danger first), stable within equal severity. A panic anywhere inside
// yields an empty list instead of taking the dashboard down.
func (d *Deriver) Derive(drivers []docs.Driver, trips []docs.Trip, now time.Time) (out []Alert) {
	defer func() {
		if r := recover(); r != nil {
			out = []Alert{}
		}
	}()

	out = []Alert{}
	for _, rule := range d.rules {
		out = append(out, rule(drivers, trips, now)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i].Type) < rank(out[j].Type)
	})
	return out
}

// Rule 1: accepted trips that have not advanced past the stuck threshold.
// A malformed acceptedAt is treated as "accepted just now", which keeps
// the trip out of the alert rather than failing derivation.
func (d *Deriver) stuckTrips(_ []docs.Driver, trips []docs.Trip, now time.Time) []Alert {
	var out []Alert
	for _, trip := range trips {
		perEntity(func() {
			if trip.Status != docs.TripAccepted || trip.AcceptedAt == nil {
				return
			}
			accepted := trip.AcceptedAt.Time
			if accepted.IsZero() {
				accepted = now
			}
			elapsed := now.Sub(accepted)
			if elapsed <= d.stuckAfter {
				return
			}
			out = append(out, Alert{
				ID:        "trip-stuck-" + trip.ID,
				Type:      TypeWarning,
				TripID:    trip.ID,
				DriverID:  trip.DriverID,
				Message:   fmt.Sprintf("Trip %s accepted %d min ago but not moving", shortID(trip.ID), int(elapsed.Minutes())),
				Timestamp: now,
			})
		})
	}
	return out
}

// Rule 2: a trip is in progress but its driver shows as offline. A trip
// referencing a driver we have not seen yet (cross-subscription races)
// is silently skipped.
func (d *Deriver) offlineMidTrip(drivers []docs.Driver, trips []docs.Trip, now time.Time) []Alert {
	byID := make(map[string]docs.Driver, len(drivers))
	for _, drv := range drivers {
		byID[drv.ID] = drv
	}
	var out []Alert
	for _, trip := range trips {
		perEntity(func() {
			if !trip.InProgress() || trip.DriverID == "" {
				return
			}
			drv, known := byID[trip.DriverID]
			if !known || drv.Online {
				return
			}
			out = append(out, Alert{
				ID:        "driver-offline-" + trip.ID,
				Type:      TypeDanger,
				TripID:    trip.ID,
				DriverID:  trip.DriverID,
				Message:   fmt.Sprintf("Driver %s has an active trip but is OFFLINE", drv.DisplayName()),
				Timestamp: now,
			})
		})
	}
	return out
}

// Rule 3: driver is online and operational but cannot be charged for.
func (d *Deriver) stripeDisabled(drivers []docs.Driver, _ []docs.Trip, now time.Time) []Alert {
	var out []Alert
	for _, drv := range drivers {
		perEntity(func() {
			if !drv.Online || !drv.Operational() || drv.StripeChargesEnabled {
				return
			}
			out = append(out, Alert{
				ID:        "stripe-disabled-" + drv.ID,
				Type:      TypeDanger,
				DriverID:  drv.ID,
				Message:   fmt.Sprintf("%s is online but Stripe charges are disabled", drv.DisplayName()),
				Timestamp: now,
			})
		})
	}
	return out
}

// Rule 4: operational driver with a lapsed subscription.
func (d *Deriver) expiredSubscriptions(drivers []docs.Driver, _ []docs.Trip, now time.Time) []Alert {
	var out []Alert
	for _, drv := range drivers {
		perEntity(func() {
			if !drv.Operational() || drv.SubscriptionActive {
				return
			}
			out = append(out, Alert{
				ID:        "subscription-expired-" + drv.ID,
				Type:      TypeWarning,
				DriverID:  drv.ID,
				Message:   fmt.Sprintf("%s has an expired subscription", drv.DisplayName()),
				Timestamp: now,
			})
		})
	}
	return out
}

// perEntity isolates one entity's evaluation: input documents come from
// writers we do not control, so a bad document skips that entity only.
func perEntity(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
