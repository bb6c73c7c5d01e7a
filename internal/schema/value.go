// Package schema defines the SecureWatch event data model: the raw record
// that arrives at the ingestion boundary, the parser-produced intermediate
// event, and the flat normalized event handed to downstream sinks.
package schema

import "time"

// Kind identifies the concrete type stored in a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
	KindArray
	KindObject
)

// Value is a small tagged union used for parser-private fields and the open
// NormalizedEvent mapping. It exists so dynamic, parser-supplied data moves
// through the pipeline as a typed tree instead of bare `any`, with typed
// getters at every access point (see §9 design note in SPEC_FULL.md).
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
	arr  []Value
	obj  map[string]Value
}

func Null() Value                { return Value{kind: KindNull} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func Int(i int64) Value          { return Value{kind: KindInt, i: i} }
func Float(f float64) Value      { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Time(t time.Time) Value     { return Value{kind: KindTime, t: t} }
func Array(vs ...Value) Value    { return Value{kind: KindArray, arr: vs} }
func Object(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindObject, obj: m}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

func (v Value) Float() (float64, bool) {
	if v.kind == KindFloat {
		return v.f, true
	}
	if v.kind == KindInt {
		return float64(v.i), true
	}
	return 0, false
}

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) Time() (time.Time, bool) {
	if v.kind != KindTime {
		return time.Time{}, false
	}
	return v.t, true
}

func (v Value) Array() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

func (v Value) Object() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Bag is a string-keyed collection of Values with dotted-path helpers so
// both ParsedEvent.Custom and the open NormalizedEvent mapping share one
// representation and one set of typed getters.
type Bag struct {
	fields map[string]Value
}

func NewBag() *Bag {
	return &Bag{fields: make(map[string]Value)}
}

// Set stores v under key, creating no intermediate containers: the dotted
// name is the literal map key (NormalizedEvent fields are flat, per §3/§6).
func (b *Bag) Set(key string, v Value) {
	if b.fields == nil {
		b.fields = make(map[string]Value)
	}
	b.fields[key] = v
}

func (b *Bag) Get(key string) (Value, bool) {
	v, ok := b.fields[key]
	return v, ok
}

func (b *Bag) Has(key string) bool {
	_, ok := b.fields[key]
	return ok
}

func (b *Bag) Delete(key string) {
	delete(b.fields, key)
}

// Keys returns all stored keys, unordered.
func (b *Bag) Keys() []string {
	keys := make([]string, 0, len(b.fields))
	for k := range b.fields {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of stored fields.
func (b *Bag) Len() int { return len(b.fields) }

// Clone returns a shallow copy safe for independent mutation of top-level keys.
func (b *Bag) Clone() *Bag {
	out := NewBag()
	for k, v := range b.fields {
		out.fields[k] = v
	}
	return out
}

// AppendToArray appends v to the array stored at key, creating the array if
// key is absent or not already an array. Used for the related.* correlation
// arrays and event.category/event.type.
func (b *Bag) AppendToArray(key string, v Value) {
	existing, ok := b.Get(key)
	if !ok || existing.Kind() != KindArray {
		b.Set(key, Array(v))
		return
	}
	arr, _ := existing.Array()
	b.Set(key, Array(append(arr, v)...))
}
