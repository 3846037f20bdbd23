// Package view holds the ephemeral per-client UI state and the pure
// client-side projections over the already-subscribed snapshots: driver
// filters, fleet/trip stats and map distances. Nothing here issues a
// store query.
package view

import (
	"math"
	"time"

	"github.com/example/taxi-ops/internal/docs"
)

type Tab string

const (
	TabMonitor    Tab = "monitor"
	TabDrivers    Tab = "drivers"
	TabPassengers Tab = "passengers"
	TabTrips      Tab = "trips"
	TabSettings   Tab = "settings"
)

type DriverFilter string

const (
	FilterAll    DriverFilter = "all"
	FilterOnline DriverFilter = "online"
	FilterIssues DriverFilter = "issues"
)

// State is one dashboard client's ephemeral selections. The selected
// trip id is shared across the map, the trip list and the alerts panel,
// so choosing it anywhere cross-highlights it everywhere.
type State struct {
	ActiveTab        Tab          `json:"activeTab"`
	SidebarOpen      bool         `json:"sidebarOpen"`
	SelectedTripID   string       `json:"selectedTripId,omitempty"`
	SelectedDriverID string       `json:"selectedDriverId,omitempty"`
	DriverFilter     DriverFilter `json:"driverFilter"`
}

func NewState() State {
	return State{ActiveTab: TabMonitor, SidebarOpen: true, DriverFilter: FilterAll}
}

func (s *State) SelectTrip(id string)   { s.SelectedTripID = id }
func (s *State) ClearTrip()             { s.SelectedTripID = "" }
func (s *State) SelectDriver(id string) { s.SelectedDriverID = id }
func (s *State) CloseDriverDetail()     { s.SelectedDriverID = "" }
func (s *State) SetTab(t Tab)           { s.ActiveTab = t }
func (s *State) ToggleSidebar()         { s.SidebarOpen = !s.SidebarOpen }
func (s *State) SetFilter(f DriverFilter) {
	switch f {
	case FilterAll, FilterOnline, FilterIssues:
		s.DriverFilter = f
	default:
		s.DriverFilter = FilterAll
	}
}

// FilterDrivers applies the driver-list filter as a pure predicate over
// the subscribed set.
func FilterDrivers(drivers []docs.Driver, filter DriverFilter) []docs.Driver {
	switch filter {
	case FilterOnline:
		return keep(drivers, func(d docs.Driver) bool { return d.Online })
	case FilterIssues:
		return keep(drivers, HasIssues)
	default:
		return drivers
	}
}

// HasIssues marks operational drivers that cannot run paid trips.
func HasIssues(d docs.Driver) bool {
	if !d.Operational() {
		return false
	}
	return !d.StripeChargesEnabled || !d.SubscriptionActive
}

func keep(drivers []docs.Driver, pred func(docs.Driver) bool) []docs.Driver {
	out := make([]docs.Driver, 0, len(drivers))
	for _, d := range drivers {
		if pred(d) {
			out = append(out, d)
		}
	}
	return out
}

type FleetStats struct {
	TotalDrivers          int `json:"totalDrivers"`
	OnlineDrivers         int `json:"onlineDrivers"`
	ActiveDrivers         int `json:"activeDrivers"`
	WithValidSubscription int `json:"withValidSubscription"`
	WithStripeIssues      int `json:"withStripeIssues"`
}

type TripStats struct {
	Requested      int `json:"requested"`
	InProgress     int `json:"inProgress"`
	CompletedToday int `json:"completedToday"`
}

func ComputeFleetStats(drivers []docs.Driver) FleetStats {
	var s FleetStats
	s.TotalDrivers = len(drivers)
	for _, d := range drivers {
		if d.Online {
			s.OnlineDrivers++
		}
		if d.Status == docs.DriverActive {
			s.ActiveDrivers++
		}
		if d.SubscriptionActive {
			s.WithValidSubscription++
		}
		if !d.StripeChargesEnabled && d.Status == docs.DriverActive {
			s.WithStripeIssues++
		}
	}
	return s
}

// ComputeTripStats counts by lifecycle bucket. "Today" starts at local
// midnight of now.
func ComputeTripStats(trips []docs.Trip, now time.Time) TripStats {
	var s TripStats
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, t := range trips {
		switch {
		case t.Status == docs.TripRequested:
			s.Requested++
		case t.InProgress():
			s.InProgress++
		case t.Status == docs.TripCompleted:
			if t.CompletedAt != nil && !t.CompletedAt.IsZero() && !t.CompletedAt.Before(todayStart) {
				s.CompletedToday++
			}
		}
	}
	return s
}

// DriverDistanceMeters is the map overlay's distance readout from a
// focus point to a driver's last known location.
func DriverDistanceMeters(d docs.Driver, lat, lng float64) (float64, bool) {
	if d.Location == nil {
		return 0, false
	}
	return Haversine(lat, lng, d.Location.Lat, d.Location.Lng), true
}

// Haversine distance in meters.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
