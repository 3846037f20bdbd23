package docstore

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/example/taxi-ops/internal/docs"
)

type Op string

const (
	OpEq  Op = "=="
	OpNeq Op = "!="
	OpIn  Op = "in"
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query describes one live collection subscription: a server-side filter
// plus ordering. All sources evaluate queries through the same in-process
// predicate so Redis, Postgres and the in-memory source agree on results.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
}

func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Apply filters and orders raw collection contents. Documents whose body
// is not a JSON object are dropped rather than failing the snapshot.
func (q Query) Apply(in []Document) []Document {
	out := make([]Document, 0, len(in))
	for _, doc := range in {
		fields, ok := decodeFields(doc.Data)
		if !ok {
			continue
		}
		if q.matches(fields) {
			out = append(out, doc)
		}
	}
	q.order(out)
	return out
}

func (q Query) matches(fields map[string]any) bool {
	for _, f := range q.Filters {
		got := lookupField(fields, f.Field)
		switch f.Op {
		case OpEq:
			if !valueEq(got, f.Value) {
				return false
			}
		case OpNeq:
			if valueEq(got, f.Value) {
				return false
			}
		case OpIn:
			if !valueIn(got, f.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (q Query) order(list []Document) {
	if q.OrderBy == "" {
		// Deterministic order even when the backing store returns rows in
		// hash order.
		sort.SliceStable(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		return
	}

	// Instants are resolved once per document, and documents missing a
	// parseable ordering field partition to the end; comparing instants
	// only against instants keeps the ordering transitive.
	instants := make(map[string]time.Time, len(list))
	for _, doc := range list {
		if t, ok := instantField(doc.Data, q.OrderBy); ok {
			instants[doc.ID] = t
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		ti, iok := instants[list[i].ID]
		tj, jok := instants[list[j].ID]
		switch {
		case iok && jok:
			if !ti.Equal(tj) {
				if q.Descending {
					return ti.After(tj)
				}
				return ti.Before(tj)
			}
			return list[i].ID < list[j].ID
		case iok:
			return true
		case jok:
			return false
		default:
			return list[i].ID < list[j].ID
		}
	})
}

func decodeFields(data []byte) (map[string]any, bool) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

// lookupField resolves a dotted path ("location.updatedAt") against the
// decoded document. Missing segments yield nil.
func lookupField(fields map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var cur any = fields
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func valueEq(got, want any) bool {
	if got == nil {
		return want == nil
	}
	return cast.ToString(got) == cast.ToString(want)
}

func valueIn(got, want any) bool {
	set := cast.ToStringSlice(want)
	g := cast.ToString(got)
	for _, s := range set {
		if g == s {
			return true
		}
	}
	return false
}

func instantField(data []byte, field string) (t time.Time, ok bool) {
	fields, decoded := decodeFields(data)
	if !decoded {
		return time.Time{}, false
	}
	ts := docs.ParseInstant(lookupField(fields, field))
	if ts.IsZero() {
		return time.Time{}, false
	}
	return ts, true
}
