package atree

import (
	"math"
	"slices"
	"strconv"
	"unicode/utf8"

	"github.com/ohler55/ojg/oj"
	"golang.org/x/text/unicode/norm"
)

type attrState uint8

const (
	stateAbsent attrState = iota
	stateUndefined
	stateDefined
)

// Event is an immutable, sparse assignment of values to a schema's
// attributes.  Each attribute is either defined, explicitly undefined, or
// absent.  Undefined and absent attributes never satisfy a predicate.
type Event struct {
	schema *Schema
	states []attrState
	values []Value
}

func (e *Event) value(attr int) (Value, bool) {
	if e.states[attr] != stateDefined {
		return Value{}, false
	}
	return e.values[attr], true
}

// Schema returns the schema the event was built against.
func (e *Event) Schema() *Schema {
	return e.schema
}

// Value returns the named attribute's value, if defined.
func (e *Event) Value(name string) (Value, bool) {
	i, _, ok := e.schema.Lookup(name)
	if !ok {
		return Value{}, false
	}
	return e.value(i)
}

// IsUndefined returns whether the named attribute was explicitly marked as
// undefined.
func (e *Event) IsUndefined(name string) bool {
	i, _, ok := e.schema.Lookup(name)
	return ok && e.states[i] == stateUndefined
}

// defined returns the indexes of every defined attribute.
func (e *Event) defined() []int {
	attrs := make([]int, 0, len(e.states))
	for i, s := range e.states {
		if s == stateDefined {
			attrs = append(attrs, i)
		}
	}
	return attrs
}

// EventBuilder incrementally assigns attribute values, validating each
// against the schema.  A failed call leaves the builder unchanged.  Build
// consumes the builder.
type EventBuilder struct {
	ev       *Event
	consumed bool
}

func NewEventBuilder(schema *Schema) *EventBuilder {
	return &EventBuilder{
		ev: &Event{
			schema: schema,
			states: make([]attrState, schema.Len()),
			values: make([]Value, schema.Len()),
		},
	}
}

func (b *EventBuilder) WithBoolean(name string, v bool) error {
	return b.assign(name, TypeBoolean, func() (Value, error) {
		return BoolValue(v), nil
	})
}

func (b *EventBuilder) WithInteger(name string, v int64) error {
	return b.assign(name, TypeInteger, func() (Value, error) {
		return IntValue(v), nil
	})
}

// WithFloat assigns the decimal mantissa × 10^-scale.
func (b *EventBuilder) WithFloat(name string, mantissa int64, scale uint32) error {
	return b.assign(name, TypeFloat, func() (Value, error) {
		if scale > MaxScale {
			return Value{}, typeError(name, "scale %d exceeds the maximum of %d", scale, MaxScale)
		}
		return FloatValue(NewDecimal(mantissa, scale)), nil
	})
}

// WithFloat64 assigns the shortest decimal which round-trips to f.
func (b *EventBuilder) WithFloat64(name string, f float64) error {
	return b.assign(name, TypeFloat, func() (Value, error) {
		return float64Value(name, f)
	})
}

func (b *EventBuilder) WithString(name string, v string) error {
	return b.assign(name, TypeString, func() (Value, error) {
		s, err := normalizeString(name, v)
		return StringValue(s), err
	})
}

func (b *EventBuilder) WithStringList(name string, v []string) error {
	return b.assign(name, TypeStringList, func() (Value, error) {
		list := make([]string, len(v))
		for n, item := range v {
			s, err := normalizeString(name, item)
			if err != nil {
				return Value{}, err
			}
			list[n] = s
		}
		return StringsValue(list), nil
	})
}

func (b *EventBuilder) WithIntegerList(name string, v []int64) error {
	return b.assign(name, TypeIntegerList, func() (Value, error) {
		return IntegersValue(slices.Clone(v)), nil
	})
}

// WithUndefined marks an attribute as present but unknown.  Unlike an
// omitted attribute, this is recorded so that the attribute can't also be
// assigned a value.
func (b *EventBuilder) WithUndefined(name string) error {
	if b.consumed {
		return ErrBuilderConsumed
	}
	i, _, ok := b.ev.schema.Lookup(name)
	if !ok {
		return unknownAttribute(name)
	}
	if b.ev.states[i] != stateAbsent {
		return redefinition(name)
	}
	b.ev.states[i] = stateUndefined
	return nil
}

// WithDocument assigns every attribute found in a decoded JSON document,
// using each attribute's JSONPath.  JSON null marks an attribute undefined,
// and attributes missing from the document are left absent.  The document is
// applied atomically:  if any value is invalid, nothing is assigned.
func (b *EventBuilder) WithDocument(doc any) error {
	if b.consumed {
		return ErrBuilderConsumed
	}

	schema := b.ev.schema
	states := slices.Clone(b.ev.states)
	values := slices.Clone(b.ev.values)

	for i, path := range schema.paths {
		res := path.Get(doc)
		if len(res) == 0 {
			continue
		}

		def := schema.attrs[i]
		if states[i] != stateAbsent {
			return redefinition(def.Name)
		}
		if res[0] == nil {
			states[i] = stateUndefined
			continue
		}

		v, err := documentValue(def, res[0])
		if err != nil {
			return err
		}
		states[i] = stateDefined
		values[i] = v
	}

	b.ev.states = states
	b.ev.values = values
	return nil
}

// Build returns the event, consuming the builder.
func (b *EventBuilder) Build() (*Event, error) {
	if b.consumed {
		return nil, ErrBuilderConsumed
	}
	b.consumed = true
	ev := b.ev
	b.ev = nil
	return ev, nil
}

// EventFromJSON builds an event from a JSON document.
func EventFromJSON(schema *Schema, data []byte) (*Event, error) {
	doc, err := oj.Parse(data)
	if err != nil {
		return nil, newError(ErrType, "", "invalid JSON document: %s", err)
	}
	b := NewEventBuilder(schema)
	if err := b.WithDocument(doc); err != nil {
		return nil, err
	}
	return b.Build()
}

func (b *EventBuilder) assign(name string, t AttributeType, val func() (Value, error)) error {
	if b.consumed {
		return ErrBuilderConsumed
	}
	i, def, ok := b.ev.schema.Lookup(name)
	if !ok {
		return unknownAttribute(name)
	}
	if def.Type != t {
		return typeError(name, "attribute is %s, not %s", def.Type, t)
	}
	if b.ev.states[i] != stateAbsent {
		return redefinition(name)
	}
	v, err := val()
	if err != nil {
		return err
	}
	b.ev.states[i] = stateDefined
	b.ev.values[i] = v
	return nil
}

func normalizeString(name, s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", typeError(name, "string is not valid UTF-8")
	}
	return norm.NFC.String(s), nil
}

func float64Value(name string, f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, typeError(name, "%v is not a finite number", f)
	}
	d, err := ParseDecimal(strconv.FormatFloat(f, 'f', -1, 64))
	if err != nil {
		return Value{}, typeError(name, "%s", err)
	}
	return FloatValue(d), nil
}

// documentValue converts a decoded JSON value to an attribute value.
func documentValue(def AttributeDefinition, raw any) (Value, error) {
	mismatch := func() (Value, error) {
		return Value{}, typeError(def.Name, "document value %v is not a valid %s", raw, def.Type)
	}

	switch def.Type {
	case TypeBoolean:
		if b, ok := raw.(bool); ok {
			return BoolValue(b), nil
		}
	case TypeInteger:
		if i, ok := documentInt(raw); ok {
			return IntValue(i), nil
		}
	case TypeFloat:
		if f, ok := raw.(float64); ok {
			return float64Value(def.Name, f)
		}
		if i, ok := documentInt(raw); ok {
			return FloatValue(NewDecimal(i, 0)), nil
		}
	case TypeString:
		if s, ok := raw.(string); ok {
			n, err := normalizeString(def.Name, s)
			return StringValue(n), err
		}
	case TypeStringList:
		items, ok := raw.([]any)
		if !ok {
			return mismatch()
		}
		list := make([]string, len(items))
		for n, item := range items {
			s, ok := item.(string)
			if !ok {
				return mismatch()
			}
			ns, err := normalizeString(def.Name, s)
			if err != nil {
				return Value{}, err
			}
			list[n] = ns
		}
		return StringsValue(list), nil
	case TypeIntegerList:
		items, ok := raw.([]any)
		if !ok {
			return mismatch()
		}
		list := make([]int64, len(items))
		for n, item := range items {
			i, ok := documentInt(item)
			if !ok {
				return mismatch()
			}
			list[n] = i
		}
		return IntegersValue(list), nil
	}
	return mismatch()
}

// documentInt accepts the integer representations produced by JSON and YAML
// decoders, including integral floats.
func documentInt(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}
