package atree

import (
	"regexp"
	"strings"

	"github.com/ohler55/ojg/jp"
)

// AttributeType is the declared type of an attribute.
type AttributeType uint8

const (
	TypeBoolean AttributeType = iota
	TypeInteger
	TypeFloat
	TypeString
	TypeStringList
	TypeIntegerList
)

var typeNames = map[AttributeType]string{
	TypeBoolean:     "boolean",
	TypeInteger:     "integer",
	TypeFloat:       "float",
	TypeString:      "string",
	TypeStringList:  "string_list",
	TypeIntegerList: "integer_list",
}

func (t AttributeType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsList returns true for StringList and IntegerList.
func (t AttributeType) IsList() bool {
	return t == TypeStringList || t == TypeIntegerList
}

// elem returns the scalar type of a list's elements.
func (t AttributeType) elem() AttributeType {
	switch t {
	case TypeStringList:
		return TypeString
	case TypeIntegerList:
		return TypeInteger
	default:
		return t
	}
}

// ParseAttributeType parses a type name as printed by AttributeType.String.
func ParseAttributeType(name string) (AttributeType, error) {
	for t, n := range typeNames {
		if strings.EqualFold(n, name) {
			return t, nil
		}
	}
	return 0, schemaError("", "unknown attribute type %q", name)
}

// AttributeDefinition declares a single named, typed attribute.
type AttributeDefinition struct {
	Name string
	Type AttributeType
	// Path is the JSONPath used to read this attribute from a document with
	// EventBuilder.WithDocument.  Defaults to "$.<Name>".
	Path string
}

func Boolean(name string) AttributeDefinition {
	return AttributeDefinition{Name: name, Type: TypeBoolean}
}

func Integer(name string) AttributeDefinition {
	return AttributeDefinition{Name: name, Type: TypeInteger}
}

// Float declares an exact decimal attribute.
func Float(name string) AttributeDefinition {
	return AttributeDefinition{Name: name, Type: TypeFloat}
}

func String(name string) AttributeDefinition {
	return AttributeDefinition{Name: name, Type: TypeString}
}

func StringList(name string) AttributeDefinition {
	return AttributeDefinition{Name: name, Type: TypeStringList}
}

func IntegerList(name string) AttributeDefinition {
	return AttributeDefinition{Name: name, Type: TypeIntegerList}
}

// WithPath returns a copy of the definition that reads from the given
// JSONPath when building events from documents.
func (a AttributeDefinition) WithPath(path string) AttributeDefinition {
	a.Path = path
	return a
}

var identRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reserved holds words which can't be used as attribute names:  the
// expression grammar's keywords, plus the identifier that lifted literals are
// rewritten to.
var reserved = map[string]struct{}{
	"true": {}, "false": {}, "null": {}, "in": {},
	"as": {}, "break": {}, "const": {}, "continue": {}, "else": {},
	"for": {}, "function": {}, "if": {}, "import": {}, "let": {},
	"loop": {}, "package": {}, "namespace": {}, "return": {}, "var": {},
	"void": {}, "while": {},
	"and": {}, "or": {}, "not": {},
	liftedIdent: {},
}

// Schema is the ordered, immutable set of attributes an index is built over.
// Attribute indexes are assigned in declaration order.
type Schema struct {
	attrs  []AttributeDefinition
	byName map[string]int
	paths  []jp.Expr
}

// NewSchema validates the given definitions and returns a schema.  It fails
// with ErrSchema if no attributes are given, if a name is invalid, reserved
// or duplicated, or if a type or path is invalid.
func NewSchema(defs ...AttributeDefinition) (*Schema, error) {
	if len(defs) == 0 {
		return nil, schemaError("", "at least one attribute is required")
	}

	s := &Schema{
		attrs:  make([]AttributeDefinition, len(defs)),
		byName: make(map[string]int, len(defs)),
		paths:  make([]jp.Expr, len(defs)),
	}

	for i, def := range defs {
		if !identRegexp.MatchString(def.Name) {
			return nil, schemaError(def.Name, "invalid attribute name")
		}
		if _, ok := reserved[strings.ToLower(def.Name)]; ok {
			return nil, schemaError(def.Name, "attribute name is reserved")
		}
		if _, ok := typeNames[def.Type]; !ok {
			return nil, schemaError(def.Name, "unknown attribute type %d", def.Type)
		}
		if _, ok := s.byName[def.Name]; ok {
			return nil, schemaError(def.Name, "duplicate attribute")
		}

		if def.Path == "" {
			def.Path = "$." + def.Name
		}
		path, err := jp.ParseString(def.Path)
		if err != nil {
			return nil, schemaError(def.Name, "invalid path %q: %s", def.Path, err)
		}

		s.attrs[i] = def
		s.byName[def.Name] = i
		s.paths[i] = path
	}

	return s, nil
}

// Len returns the number of attributes in the schema.
func (s *Schema) Len() int {
	return len(s.attrs)
}

// Attributes returns a copy of the schema's attribute definitions, in index
// order.
func (s *Schema) Attributes() []AttributeDefinition {
	out := make([]AttributeDefinition, len(s.attrs))
	copy(out, s.attrs)
	return out
}

// Attribute returns the definition at index i.
func (s *Schema) Attribute(i int) AttributeDefinition {
	return s.attrs[i]
}

// Lookup returns the index and definition of the named attribute.
func (s *Schema) Lookup(name string) (int, AttributeDefinition, bool) {
	i, ok := s.byName[name]
	if !ok {
		return 0, AttributeDefinition{}, false
	}
	return i, s.attrs[i], true
}
