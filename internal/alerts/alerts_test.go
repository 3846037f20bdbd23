package alerts

import (
	"reflect"
	"testing"
	"time"

	"github.com/example/taxi-ops/internal/docs"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func tsPtr(t time.Time) *docs.Timestamp {
	ts := docs.At(t)
	return &ts
}

func acceptedTrip(id string, ago time.Duration) docs.Trip {
	return docs.Trip{
		ID:         id,
		Status:     docs.TripAccepted,
		AcceptedAt: tsPtr(now.Add(-ago)),
	}
}

func TestDeriveIsPure(t *testing.T) {
	d := NewDeriver(0)
	drivers := []docs.Driver{
		{ID: "d1", Name: "Ana", Status: docs.DriverActive, Online: true},
		{ID: "d2", Name: "Luis", Status: docs.DriverVerified, Online: false},
	}
	trips := []docs.Trip{
		acceptedTrip("t1", 10*time.Minute),
		{ID: "t2", Status: docs.TripOnTheWay, DriverID: "d2"},
	}

	first := d.Derive(drivers, trips, now)
	second := d.Derive(drivers, trips, now)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("derivation not idempotent:\n%v\n%v", first, second)
	}
}

func TestSeverityOrdering(t *testing.T) {
	d := NewDeriver(0)
	drivers := []docs.Driver{
		// expired subscription (warning) listed before the stripe case
		// (danger) so a missing sort would surface here
		{ID: "d1", Name: "Ana", Status: docs.DriverActive, StripeChargesEnabled: true, SubscriptionActive: false},
		{ID: "d2", Name: "Luis", Status: docs.DriverActive, Online: true, StripeChargesEnabled: false, SubscriptionActive: true},
	}
	trips := []docs.Trip{acceptedTrip("t1", 10*time.Minute)}

	got := d.Derive(drivers, trips, now)
	seen := 0
	for _, a := range got {
		r := rank(a.Type)
		if r < seen {
			t.Fatalf("alert %s out of severity order: %v", a.ID, got)
		}
		seen = r
	}
	if len(got) == 0 || got[0].Type != TypeDanger {
		t.Fatalf("expected danger first, got %v", got)
	}
}

func TestStuckTripRule(t *testing.T) {
	d := NewDeriver(5 * time.Minute)

	got := d.Derive(nil, []docs.Trip{acceptedTrip("trip-123456", 6*time.Minute)}, now)
	if len(got) != 1 {
		t.Fatalf("expected 1 alert, got %v", got)
	}
	if got[0].ID != "trip-stuck-trip-123456" || got[0].Type != TypeWarning {
		t.Fatalf("unexpected alert %+v", got[0])
	}

	got = d.Derive(nil, []docs.Trip{acceptedTrip("t1", 4*time.Minute)}, now)
	if len(got) != 0 {
		t.Fatalf("4 minutes should not alert, got %v", got)
	}
}

func TestStuckTripIgnoresOtherStatuses(t *testing.T) {
	d := NewDeriver(0)
	trip := acceptedTrip("t1", time.Hour)
	trip.Status = docs.TripStarted
	if got := d.Derive(nil, []docs.Trip{trip}, now); len(got) != 0 {
		t.Fatalf("started trip must not be stuck, got %v", got)
	}
}

func TestOfflineMidTripRule(t *testing.T) {
	d := NewDeriver(0)
	trips := []docs.Trip{{ID: "t1", Status: docs.TripOnTheWay, DriverID: "d1"}}

	offline := []docs.Driver{{ID: "d1", Name: "Ana", Online: false}}
	got := d.Derive(offline, trips, now)
	if len(got) != 1 || got[0].ID != "driver-offline-t1" || got[0].Type != TypeDanger {
		t.Fatalf("expected driver-offline-t1 danger, got %v", got)
	}

	// Driver not yet present in the driver set: subscriptions are not
	// ordered across collections, so this must be silent.
	got = d.Derive(nil, trips, now)
	if len(got) != 0 {
		t.Fatalf("unknown driver must not alert, got %v", got)
	}

	online := []docs.Driver{{ID: "d1", Online: true}}
	if got := d.Derive(online, trips, now); len(got) != 0 {
		t.Fatalf("online driver must not alert, got %v", got)
	}
}

func TestStripeDisabledRule(t *testing.T) {
	d := NewDeriver(0)
	drv := docs.Driver{ID: "d1", Name: "Ana", Status: docs.DriverActive, Online: true, StripeChargesEnabled: false, SubscriptionActive: true}

	got := d.Derive([]docs.Driver{drv}, nil, now)
	if len(got) != 1 || got[0].ID != "stripe-disabled-d1" || got[0].Type != TypeDanger {
		t.Fatalf("expected stripe-disabled-d1, got %v", got)
	}

	drv.StripeChargesEnabled = true
	if got := d.Derive([]docs.Driver{drv}, nil, now); len(got) != 0 {
		t.Fatalf("charges enabled must not alert, got %v", got)
	}

	drv.StripeChargesEnabled = false
	drv.Online = false
	if got := d.Derive([]docs.Driver{drv}, nil, now); len(got) != 0 {
		t.Fatalf("offline driver must not trip the stripe rule, got %v", got)
	}
}

func TestSubscriptionExpiredRule(t *testing.T) {
	d := NewDeriver(0)
	drv := docs.Driver{ID: "d1", Name: "Ana", Status: docs.DriverVerified, StripeChargesEnabled: true, SubscriptionActive: false}

	got := d.Derive([]docs.Driver{drv}, nil, now)
	if len(got) != 1 || got[0].ID != "subscription-expired-d1" || got[0].Type != TypeWarning {
		t.Fatalf("expected subscription-expired-d1, got %v", got)
	}

	drv.SubscriptionActive = true
	if got := d.Derive([]docs.Driver{drv}, nil, now); len(got) != 0 {
		t.Fatalf("active subscription must not alert, got %v", got)
	}

	drv.SubscriptionActive = false
	drv.Status = docs.DriverInactive
	if got := d.Derive([]docs.Driver{drv}, nil, now); len(got) != 0 {
		t.Fatalf("inactive driver must not trip the subscription rule, got %v", got)
	}
}

func TestMalformedAcceptedAtDoesNotAbortDerivation(t *testing.T) {
	d := NewDeriver(5 * time.Minute)

	bad, err := docs.DecodeTrip("t-bad", []byte(`{"status":"accepted","acceptedAt":"definitely not a time"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	trips := []docs.Trip{bad, acceptedTrip("t-good", 10*time.Minute)}

	got := d.Derive(nil, trips, now)
	if len(got) != 1 || got[0].ID != "trip-stuck-t-good" {
		t.Fatalf("unrelated alert must survive a malformed timestamp, got %v", got)
	}
}

func TestMultipleAlertsForOneDriver(t *testing.T) {
	d := NewDeriver(0)
	drv := docs.Driver{ID: "d1", Name: "Ana", Status: docs.DriverActive, Online: true, StripeChargesEnabled: false, SubscriptionActive: false}

	got := d.Derive([]docs.Driver{drv}, nil, now)
	if len(got) != 2 {
		t.Fatalf("expected both stripe and subscription alerts, got %v", got)
	}
	if got[0].ID != "stripe-disabled-d1" || got[1].ID != "subscription-expired-d1" {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestAlertMessageUsesShortTripID(t *testing.T) {
	d := NewDeriver(5 * time.Minute)
	got := d.Derive(nil, []docs.Trip{acceptedTrip("abcdefgh1234", 7*time.Minute)}, now)
	if len(got) != 1 {
		t.Fatalf("expected one alert, got %v", got)
	}
	if want := "Trip abcdefgh accepted 7 min ago but not moving"; got[0].Message != want {
		t.Fatalf("message %q, want %q", got[0].Message, want)
	}
}
