package atree

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// MaxScale is the largest decimal scale accepted for Float values.
const MaxScale = 308

// Decimal is an exact decimal number, Mantissa × 10^-Scale.  Float attributes
// and literals are always decimals so that comparisons never suffer from
// binary floating point rounding.
type Decimal struct {
	Mantissa int64
	Scale    uint32
}

func NewDecimal(mantissa int64, scale uint32) Decimal {
	return Decimal{Mantissa: mantissa, Scale: scale}
}

// ParseDecimal parses decimal text such as "12.50", "-3" or "1.5e2".
func ParseDecimal(text string) (Decimal, error) {
	d, _, err := apd.NewFromString(text)
	if err != nil {
		return Decimal{}, err
	}
	if d.Form != apd.Finite {
		return Decimal{}, fmt.Errorf("decimal %q is not finite", text)
	}
	if !d.Coeff.IsInt64() {
		return Decimal{}, fmt.Errorf("decimal %q has too many significant digits", text)
	}

	m := d.Coeff.Int64()
	for e := d.Exponent; e > 0; e-- {
		if m > math.MaxInt64/10 {
			return Decimal{}, fmt.Errorf("decimal %q is out of range", text)
		}
		m *= 10
	}
	if d.Negative {
		m = -m
	}

	scale := int64(0)
	if d.Exponent < 0 {
		scale = -int64(d.Exponent)
	}
	if scale > MaxScale {
		return Decimal{}, fmt.Errorf("decimal %q exceeds the maximum scale of %d", text, MaxScale)
	}
	return Decimal{Mantissa: m, Scale: uint32(scale)}, nil
}

func (d Decimal) toAPD() *apd.Decimal {
	return apd.New(d.Mantissa, -int32(d.Scale))
}

// Cmp compares two decimals by value, returning -1, 0 or 1.
func (d Decimal) Cmp(o Decimal) int {
	if d.Scale == o.Scale {
		return cmp.Compare(d.Mantissa, o.Mantissa)
	}
	return d.toAPD().Cmp(o.toAPD())
}

// Reduce strips trailing zeros, so that 50.00 and 50 share one representation.
func (d Decimal) Reduce() Decimal {
	for d.Scale > 0 && d.Mantissa%10 == 0 {
		d.Mantissa /= 10
		d.Scale--
	}
	if d.Mantissa == 0 {
		d.Scale = 0
	}
	return d
}

func (d Decimal) String() string {
	return d.toAPD().Text('f')
}

// Value is a typed attribute value:  either an event's assignment or an
// expression literal.
type Value struct {
	typ AttributeType
	b   bool
	i   int64
	d   Decimal
	s   string
	ss  []string
	is  []int64
}

func BoolValue(b bool) Value        { return Value{typ: TypeBoolean, b: b} }
func IntValue(i int64) Value        { return Value{typ: TypeInteger, i: i} }
func FloatValue(d Decimal) Value    { return Value{typ: TypeFloat, d: d} }
func StringValue(s string) Value    { return Value{typ: TypeString, s: s} }
func StringsValue(s []string) Value { return Value{typ: TypeStringList, ss: s} }
func IntegersValue(i []int64) Value { return Value{typ: TypeIntegerList, is: i} }
func (v Value) Type() AttributeType { return v.typ }
func (v Value) Bool() bool          { return v.b }
func (v Value) Int() int64          { return v.i }
func (v Value) Float() Decimal      { return v.d }
func (v Value) Str() string         { return v.s }

// Strings returns a copy of a string list.
func (v Value) Strings() []string { return slices.Clone(v.ss) }

// Integers returns a copy of an integer list.
func (v Value) Integers() []int64 { return slices.Clone(v.is) }

// Equal compares two scalar values of the same type.
func (v Value) Equal(o Value) bool {
	return v.typ == o.typ && v.Compare(o) == 0
}

// Compare orders two scalar values of the same type.  Booleans order false
// before true.
func (v Value) Compare(o Value) int {
	switch v.typ {
	case TypeBoolean:
		return cmp.Compare(boolInt(v.b), boolInt(o.b))
	case TypeInteger:
		return cmp.Compare(v.i, o.i)
	case TypeFloat:
		return v.d.Cmp(o.d)
	case TypeString:
		return strings.Compare(v.s, o.s)
	default:
		return 0
	}
}

// key returns an unambiguous textual key for a scalar value, used when
// canonicalising predicates.
func (v Value) key() string {
	switch v.typ {
	case TypeBoolean:
		return "b:" + strconv.FormatBool(v.b)
	case TypeInteger:
		return "i:" + strconv.FormatInt(v.i, 10)
	case TypeFloat:
		return "d:" + v.d.Reduce().String()
	case TypeString:
		return "s:" + strconv.Quote(v.s)
	default:
		return "?"
	}
}

func (v Value) String() string {
	switch v.typ {
	case TypeBoolean:
		return strconv.FormatBool(v.b)
	case TypeInteger:
		return strconv.FormatInt(v.i, 10)
	case TypeFloat:
		return v.d.String()
	case TypeString:
		return strconv.Quote(v.s)
	case TypeStringList:
		items := make([]string, len(v.ss))
		for n, s := range v.ss {
			items[n] = strconv.Quote(s)
		}
		return "[" + strings.Join(items, ", ") + "]"
	case TypeIntegerList:
		items := make([]string, len(v.is))
		for n, i := range v.is {
			items[n] = strconv.FormatInt(i, 10)
		}
		return "[" + strings.Join(items, ", ") + "]"
	default:
		return "?"
	}
}

// normalizeSet sorts scalar values and removes duplicates, so that literal
// sets compare equal regardless of how they were written.
func normalizeSet(vals []Value) []Value {
	slices.SortFunc(vals, func(a, b Value) int { return a.Compare(b) })
	return slices.CompactFunc(vals, func(a, b Value) bool { return a.Compare(b) == 0 })
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
