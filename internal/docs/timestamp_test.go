package docs

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseInstantProviderObject(t *testing.T) {
	want := time.Unix(1717243200, 0).UTC()

	got := ParseInstant(map[string]any{"seconds": float64(1717243200), "nanos": float64(0)})
	if !got.Equal(want) {
		t.Fatalf("seconds/nanos: got %v want %v", got, want)
	}

	got = ParseInstant(map[string]any{"_seconds": float64(1717243200), "_nanoseconds": float64(0)})
	if !got.Equal(want) {
		t.Fatalf("_seconds/_nanoseconds: got %v want %v", got, want)
	}
}

func TestParseInstantString(t *testing.T) {
	got := ParseInstant("2025-06-01T12:00:00Z")
	want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestParseInstantEpochNumbers(t *testing.T) {
	want := time.Unix(1717243200, 0).UTC()
	if got := ParseInstant(float64(1717243200)); !got.Equal(want) {
		t.Fatalf("epoch seconds: got %v want %v", got, want)
	}
	if got := ParseInstant(float64(1717243200000)); !got.Equal(want) {
		t.Fatalf("epoch millis: got %v want %v", got, want)
	}
}

func TestParseInstantUnrecognizedShapes(t *testing.T) {
	for _, v := range []any{nil, "not a time", true, []any{1, 2}, map[string]any{"foo": "bar"}} {
		if got := ParseInstant(v); !got.IsZero() {
			t.Fatalf("%v should yield zero time, got %v", v, got)
		}
	}
}

func TestTimestampUnmarshalNeverFailsDocument(t *testing.T) {
	type doc struct {
		At Timestamp `json:"at"`
	}
	cases := []string{
		`{"at":{"seconds":1717243200,"nanos":500000000}}`,
		`{"at":"2025-06-01T12:00:00Z"}`,
		`{"at":1717243200}`,
		`{"at":"garbage"}`,
		`{"at":null}`,
		`{"at":{"weird":true}}`,
	}
	for _, raw := range cases {
		var d doc
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			t.Fatalf("%s: unexpected error %v", raw, err)
		}
	}
}

func TestTimestampMarshal(t *testing.T) {
	b, err := json.Marshal(At(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"2025-06-01T12:00:00Z"` {
		t.Fatalf("got %s", b)
	}

	b, err = json.Marshal(Timestamp{})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "null" {
		t.Fatalf("zero timestamp should marshal as null, got %s", b)
	}
}

func TestDecodeDriverDefaults(t *testing.T) {
	d, err := DecodeDriver("d1", []byte(`{"name":"Ana","status":"verified"}`))
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != "d1" || !d.Operational() || d.Online || d.Location != nil {
		t.Fatalf("unexpected decode %+v", d)
	}
}

func TestDriverDisplayNameFallback(t *testing.T) {
	if got := (Driver{}).DisplayName(); got != "Unknown" {
		t.Fatalf("got %q", got)
	}
	if got := (Driver{Name: "Ana"}).DisplayName(); got != "Ana" {
		t.Fatalf("got %q", got)
	}
}

func TestTripInProgress(t *testing.T) {
	for _, st := range []TripStatus{TripAccepted, TripOnTheWay, TripArrived, TripStarted} {
		if !(Trip{Status: st}).InProgress() {
			t.Fatalf("%s should be in progress", st)
		}
	}
	for _, st := range []TripStatus{TripPending, TripRequested, TripCompleted, TripCancelled} {
		if (Trip{Status: st}).InProgress() {
			t.Fatalf("%s should not be in progress", st)
		}
	}
}
