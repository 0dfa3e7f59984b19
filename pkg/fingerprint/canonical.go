package fingerprint

import (
	"encoding"
	"encoding/json"
	"hash"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// maxDepth bounds recursion into nested structures so self-referential
// values cannot overflow the stack. Anything deeper encodes as a fixed
// truncation token.
const maxDepth = 64

// writer streams a canonical, JSON-shaped encoding of arbitrary values
// into a hash. The encoding is for hashing only and is never parsed back:
// strings are quoted, map entries are sorted by their encoded key, and
// non-finite floats use bare tokens that cannot collide with quoted
// strings. A type that provides its own json.Marshaler or
// encoding.TextMarshaler is encoded through it, so values like time.Time
// carry their state into the digest. Values of func, channel, or
// unsafe-pointer kind are skipped wherever they appear.
type writer struct {
	h hash.Hash
}

func (w writer) raw(s string) {
	// sha256's Write never returns an error.
	_, _ = w.h.Write([]byte(s))
}

func (w writer) string(s string) {
	w.raw(strconv.Quote(s))
}

func (w writer) any(v any) {
	w.value(reflect.ValueOf(v), 0)
}

// excluded reports whether a value falls under the fixed exclusion rule.
func excluded(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	}
	return false
}

func (w writer) value(v reflect.Value, depth int) {
	if depth > maxDepth {
		w.raw("!depth")
		return
	}
	if !v.IsValid() {
		w.raw("null")
		return
	}
	if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
		w.raw("null")
		return
	}
	if w.marshaled(v) {
		return
	}

	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			w.raw("true")
		} else {
			w.raw("false")
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		w.raw(strconv.FormatInt(v.Int(), 10))

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		w.raw(strconv.FormatUint(v.Uint(), 10))

	case reflect.Float32, reflect.Float64:
		w.float(v.Float())

	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		w.raw("(")
		w.float(real(c))
		w.raw(",")
		w.float(imag(c))
		w.raw(")")

	case reflect.String:
		w.string(v.String())

	case reflect.Pointer, reflect.Interface:
		w.value(v.Elem(), depth+1)

	case reflect.Slice, reflect.Array:
		w.list(v, depth)

	case reflect.Map:
		w.mapping(v, depth)

	case reflect.Struct:
		w.structure(v, depth)

	default:
		// Func, Chan, UnsafePointer reach here only when a value of that
		// kind is the top-level input; container positions skip them
		// before recursing. Encode as absent.
		w.raw("null")
	}
}

var (
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// marshaled encodes a value through its own json.Marshaler or
// encoding.TextMarshaler when it provides one, and reports whether it
// did. Types whose state lives in unexported fields, time.Time above
// all, would otherwise encode as an empty structure and collide. Func,
// channel, and unsafe-pointer kinds stay under the exclusion rule, and
// a marshaler that errors or panics falls back to the structural walk.
func (w writer) marshaled(v reflect.Value) bool {
	if excluded(v) {
		return false
	}
	mv := v
	if !mv.Type().Implements(jsonMarshalerType) && !mv.Type().Implements(textMarshalerType) {
		if !mv.CanAddr() {
			return false
		}
		mv = mv.Addr()
		if !mv.Type().Implements(jsonMarshalerType) && !mv.Type().Implements(textMarshalerType) {
			return false
		}
	}
	b, ok := safeMarshal(mv)
	if !ok {
		return false
	}
	w.raw(string(b))
	return true
}

// safeMarshal invokes the value's marshaler, preferring json.Marshaler
// the way encoding/json does. Text output is quoted so it occupies the
// same space as a canonical string.
func safeMarshal(v reflect.Value) (b []byte, ok bool) {
	defer func() {
		if recover() != nil {
			b, ok = nil, false
		}
	}()
	switch m := v.Interface().(type) {
	case json.Marshaler:
		out, err := m.MarshalJSON()
		if err != nil {
			return nil, false
		}
		return out, true
	case encoding.TextMarshaler:
		out, err := m.MarshalText()
		if err != nil {
			return nil, false
		}
		return strconv.AppendQuote(nil, string(out)), true
	default:
		return nil, false
	}
}

func (w writer) float(f float64) {
	switch {
	case math.IsNaN(f):
		w.raw("NaN")
	case math.IsInf(f, 1):
		w.raw("+Inf")
	case math.IsInf(f, -1):
		w.raw("-Inf")
	default:
		w.raw(strconv.FormatFloat(f, 'g', -1, 64))
	}
}

func (w writer) list(v reflect.Value, depth int) {
	w.raw("[")
	written := 0
	for i := 0; i < v.Len(); i++ {
		el := indirect(v.Index(i))
		if excluded(el) {
			continue
		}
		if written > 0 {
			w.raw(",")
		}
		w.value(v.Index(i), depth+1)
		written++
	}
	w.raw("]")
}

// mapping encodes a map with entries ordered by their canonically encoded
// key, so iteration order never influences the digest. Entries whose value
// is excluded are dropped as if absent.
func (w writer) mapping(v reflect.Value, depth int) {
	if v.IsNil() {
		w.raw("null")
		return
	}

	type entry struct {
		encodedKey string
		val        reflect.Value
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		val := indirect(iter.Value())
		if excluded(val) {
			continue
		}
		entries = append(entries, entry{encodedKey: encodeToString(iter.Key(), depth+1), val: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].encodedKey < entries[j].encodedKey
	})

	w.raw("{")
	for i, e := range entries {
		if i > 0 {
			w.raw(",")
		}
		w.raw(e.encodedKey)
		w.raw(":")
		w.value(e.val, depth+1)
	}
	w.raw("}")
}

// structure encodes exported struct fields sorted by their visible name.
// The json tag overrides the field name when present; fields tagged "-"
// and fields of excluded kinds are dropped.
func (w writer) structure(v reflect.Value, depth int) {
	t := v.Type()

	type field struct {
		name string
		val  reflect.Value
	}
	fields := make([]field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("json"); ok {
			tagName := tag
			for j := 0; j < len(tag); j++ {
				if tag[j] == ',' {
					tagName = tag[:j]
					break
				}
			}
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		fv := indirect(v.Field(i))
		if excluded(fv) {
			continue
		}
		fields = append(fields, field{name: name, val: v.Field(i)})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].name < fields[j].name })

	w.raw("{")
	for i, f := range fields {
		if i > 0 {
			w.raw(",")
		}
		w.string(f.name)
		w.raw(":")
		w.value(f.val, depth+1)
	}
	w.raw("}")
}

// encodeToString canonically encodes a single value into a string, used
// for sorting map entries by key.
func encodeToString(v reflect.Value, depth int) string {
	h := &stringHash{}
	writer{h: h}.value(v, depth)
	return h.String()
}

// indirect walks through interfaces and pointers to the underlying value,
// so the exclusion rule sees the real kind.
func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return v
		}
		v = v.Elem()
	}
	return v
}

// stringHash adapts a byte buffer to hash.Hash so the writer can encode
// into a plain string for map-key sorting.
type stringHash struct {
	buf []byte
}

func (s *stringHash) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}

func (s *stringHash) String() string      { return string(s.buf) }
func (s *stringHash) Sum(b []byte) []byte { return append(b, s.buf...) }
func (s *stringHash) Reset()              { s.buf = s.buf[:0] }
func (s *stringHash) Size() int           { return len(s.buf) }
func (s *stringHash) BlockSize() int      { return 1 }
