package docstore

import "github.com/example/taxi-ops/internal/docs"

// Collection names as they exist in the remote store.
const (
	CollectionDrivers = "drivers"
	CollectionTrips   = "trips"
	CollectionUsers   = "users"
)

// The four canonical dashboard subscriptions.

// FleetDriversQuery covers every driver that has not been suspended.
func FleetDriversQuery() Query {
	return Query{
		Collection: CollectionDrivers,
		Filters: []Filter{
			Where("status", OpNeq, string(docs.DriverSuspended)),
		},
	}
}

// OnlineDriversQuery is the subset shown on the live map.
func OnlineDriversQuery() Query {
	return Query{
		Collection: CollectionDrivers,
		Filters: []Filter{
			Where("online", OpEq, true),
			Where("status", OpEq, string(docs.DriverVerified)),
		},
	}
}

// ActiveTripsQuery covers every non-terminal trip, newest first.
func ActiveTripsQuery() Query {
	statuses := make([]string, 0, len(docs.ActiveTripStatuses))
	for _, s := range docs.ActiveTripStatuses {
		statuses = append(statuses, string(s))
	}
	return Query{
		Collection: CollectionTrips,
		Filters:    []Filter{Where("status", OpIn, statuses)},
		OrderBy:    "createdAt",
		Descending: true,
	}
}

// PassengersQuery lists the whole users collection, newest first.
func PassengersQuery() Query {
	return Query{
		Collection: CollectionUsers,
		OrderBy:    "createdAt",
		Descending: true,
	}
}
