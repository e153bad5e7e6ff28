package atree

import (
	"strconv"
	"strings"
)

// Operator is the comparison a predicate performs.  The set is closed:  each
// attribute type supports a fixed subset, see Operator.validFor.
type Operator uint8

const (
	// OpEq tests scalar equality.
	OpEq Operator = iota
	OpLt
	OpLe
	OpGt
	OpGe
	// OpIn tests that a scalar attribute is a member of a literal set.
	OpIn
	// OpContains tests that a list attribute contains a literal.
	OpContains
	// OpOneOf tests that a list attribute shares at least one element with a
	// literal set.
	OpOneOf
	// OpAllOf tests that a list attribute contains every element of a literal
	// set.
	OpAllOf
	// OpIsEmpty tests that a list attribute has no elements.
	OpIsEmpty
)

var opNames = [...]string{
	OpEq:       "==",
	OpLt:       "<",
	OpLe:       "<=",
	OpGt:       ">",
	OpGe:       ">=",
	OpIn:       "in",
	OpContains: "contains",
	OpOneOf:    "one_of",
	OpAllOf:    "all_of",
	OpIsEmpty:  "is_empty",
}

func (o Operator) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "unknown"
}

// validFor returns whether the operator can be applied to an attribute of the
// given type.
func (o Operator) validFor(t AttributeType) bool {
	switch o {
	case OpEq:
		return t == TypeBoolean || t == TypeInteger || t == TypeFloat || t == TypeString
	case OpLt, OpLe, OpGt, OpGe:
		return t == TypeInteger || t == TypeFloat
	case OpIn:
		return t == TypeInteger || t == TypeFloat || t == TypeString
	case OpContains, OpOneOf, OpAllOf, OpIsEmpty:
		return t.IsList()
	default:
		return false
	}
}

// mirror swaps the sides of an ordering operator, so that `5 < a` becomes
// `a > 5`.
func (o Operator) mirror() Operator {
	switch o {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	default:
		return o
	}
}

// Predicate is a leaf test comparing one attribute against a literal.
// Predicates with equal keys are the same node within an index.
type Predicate struct {
	// Attribute is the schema index of the attribute under test.
	Attribute int
	Name      string
	Type      AttributeType
	Operator  Operator
	// Literal is the operand for OpEq, the ordering operators and OpContains.
	Literal Value
	// Set is the sorted, deduplicated operand for OpIn, OpOneOf and OpAllOf.
	Set []Value
}

// key returns the canonical identity of the predicate.
func (p *Predicate) key() string {
	b := &strings.Builder{}
	b.WriteString(strconv.Itoa(p.Attribute))
	b.WriteByte('|')
	b.WriteString(p.Operator.String())
	b.WriteByte('|')
	switch p.Operator {
	case OpIn, OpOneOf, OpAllOf:
		for n, v := range p.Set {
			if n > 0 {
				b.WriteByte(',')
			}
			b.WriteString(v.key())
		}
	case OpIsEmpty:
	default:
		b.WriteString(p.Literal.key())
	}
	return b.String()
}

// String prints the predicate in expression syntax.
func (p *Predicate) String() string {
	switch p.Operator {
	case OpIn:
		return p.Name + " in " + setString(p.Set)
	case OpContains:
		return p.Literal.String() + " in " + p.Name
	case OpOneOf, OpAllOf:
		return p.Name + "." + p.Operator.String() + "(" + setString(p.Set) + ")"
	case OpIsEmpty:
		return p.Name + ".is_empty()"
	default:
		return p.Name + " " + p.Operator.String() + " " + p.Literal.String()
	}
}

// Eval evaluates the predicate against a defined attribute value.
func (p *Predicate) Eval(v Value) bool {
	switch p.Operator {
	case OpEq:
		return v.Compare(p.Literal) == 0
	case OpLt:
		return v.Compare(p.Literal) < 0
	case OpLe:
		return v.Compare(p.Literal) <= 0
	case OpGt:
		return v.Compare(p.Literal) > 0
	case OpGe:
		return v.Compare(p.Literal) >= 0
	case OpIn:
		for _, item := range p.Set {
			if v.Compare(item) == 0 {
				return true
			}
		}
		return false
	case OpContains:
		return listContains(v, p.Literal)
	case OpOneOf:
		for _, item := range p.Set {
			if listContains(v, item) {
				return true
			}
		}
		return false
	case OpAllOf:
		for _, item := range p.Set {
			if !listContains(v, item) {
				return false
			}
		}
		return true
	case OpIsEmpty:
		return listLen(v) == 0
	default:
		return false
	}
}

func listContains(list Value, item Value) bool {
	switch list.typ {
	case TypeStringList:
		for _, s := range list.ss {
			if s == item.s {
				return true
			}
		}
	case TypeIntegerList:
		for _, i := range list.is {
			if i == item.i {
				return true
			}
		}
	}
	return false
}

func listLen(list Value) int {
	switch list.typ {
	case TypeStringList:
		return len(list.ss)
	case TypeIntegerList:
		return len(list.is)
	default:
		return 0
	}
}

func setString(set []Value) string {
	items := make([]string, len(set))
	for n, v := range set {
		items[n] = v.String()
	}
	return "[" + strings.Join(items, ", ") + "]"
}
