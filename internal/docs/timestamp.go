package docs

import (
	"encoding/json"
	"time"

	"github.com/spf13/cast"
)

// Timestamp is the single internal instant type for document fields.
// Upstream writers are inconsistent: the same field may arrive as a
// provider timestamp object, an RFC3339 string, or an epoch number.
// Decoding never fails the document; unrecognized shapes become the
// zero instant.
type Timestamp struct {
	time.Time
}

func At(t time.Time) Timestamp { return Timestamp{Time: t} }

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Time = time.Time{}
		return nil
	}
	t.Time = ParseInstant(v)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// ParseInstant normalizes every wire representation of a point in time:
// provider objects {seconds,nanos} (with or without underscore prefixes),
// strings, and numeric epoch values (seconds, or milliseconds when the
// magnitude says so). Anything else yields the zero time.
func ParseInstant(v any) time.Time {
	switch val := v.(type) {
	case nil:
		return time.Time{}
	case map[string]any:
		if sec, ok := providerSeconds(val); ok {
			nanos := providerNanos(val)
			return time.Unix(sec, nanos).UTC()
		}
		return time.Time{}
	case string:
		if ts, err := cast.ToTimeE(val); err == nil {
			return ts.UTC()
		}
		return time.Time{}
	case float64:
		return epochToTime(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return epochToTime(f)
		}
		return time.Time{}
	case time.Time:
		return val.UTC()
	default:
		return time.Time{}
	}
}

func providerSeconds(m map[string]any) (int64, bool) {
	for _, key := range []string{"seconds", "_seconds"} {
		if raw, ok := m[key]; ok {
			if sec, err := cast.ToInt64E(raw); err == nil {
				return sec, true
			}
		}
	}
	return 0, false
}

func providerNanos(m map[string]any) int64 {
	for _, key := range []string{"nanos", "nanoseconds", "_nanoseconds"} {
		if raw, ok := m[key]; ok {
			if n, err := cast.ToInt64E(raw); err == nil {
				return n
			}
		}
	}
	return 0
}

// epochToTime treats values above ~Nov 2001 in milliseconds as epoch
// millis, everything else as epoch seconds.
func epochToTime(f float64) time.Time {
	if f == 0 {
		return time.Time{}
	}
	n := int64(f)
	if n > 1_000_000_000_000 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
