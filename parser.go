package atree

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"golang.org/x/text/unicode/norm"
)

// NodeKind is the kind of a node in a compiled expression or in the index's
// graph.
type NodeKind uint8

const (
	KindPredicate NodeKind = iota
	KindAnd
	KindOr
	KindNot
)

func (k NodeKind) String() string {
	switch k {
	case KindPredicate:
		return "PREDICATE"
	case KindAnd:
		return "AND"
	case KindOr:
		return "OR"
	case KindNot:
		return "NOT"
	default:
		return "UNKNOWN"
	}
}

// Node is a node of a compiled expression's abstract syntax tree.
type Node struct {
	Kind NodeKind
	// Predicate is set for KindPredicate nodes.
	Predicate *Predicate
	// Children holds the operands of AND and OR nodes, and the single operand
	// of NOT nodes.
	Children []*Node
}

func (n *Node) String() string {
	switch n.Kind {
	case KindPredicate:
		return n.Predicate.String()
	case KindNot:
		return "!(" + n.Children[0].String() + ")"
	case KindAnd, KindOr:
		sep := " && "
		if n.Kind == KindOr {
			sep = " || "
		}
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = c.String()
			if c.Kind == KindOr || (c.Kind == KindAnd && n.Kind == KindOr) {
				parts[i] = "(" + parts[i] + ")"
			}
		}
		return strings.Join(parts, sep)
	default:
		return ""
	}
}

// Expression is a compiled, schema-validated boolean expression.
type Expression struct {
	// Text is the expression as written.
	Text string
	Root *Node

	schema *Schema
}

// String returns the normalized form of the expression.
func (e *Expression) String() string {
	return e.Root.String()
}

// Match evaluates the whole expression against the event.  Absent and
// undefined attributes never satisfy a predicate, whether or not the
// predicate is negated.  Index.Search returns exactly the subscriptions whose
// expressions Match the event.
func (e *Expression) Match(ev *Event) bool {
	return evalNode(e.Root, ev, false)
}

func evalNode(n *Node, ev *Event, negated bool) bool {
	switch n.Kind {
	case KindPredicate:
		v, ok := ev.value(n.Predicate.Attribute)
		if !ok {
			return false
		}
		return n.Predicate.Eval(v) != negated
	case KindNot:
		return evalNode(n.Children[0], ev, !negated)
	case KindAnd, KindOr:
		// Under negation, AND becomes OR and vice versa.
		all := (n.Kind == KindAnd) != negated
		for _, c := range n.Children {
			ok := evalNode(c, ev, negated)
			if all && !ok {
				return false
			}
			if !all && ok {
				return true
			}
		}
		return all
	default:
		return false
	}
}

// Compile parses and validates an expression against the schema.  It fails
// with ErrParse, ErrUnknownAttribute or ErrType and never partially compiles.
func Compile(schema *Schema, expr string) (*Expression, error) {
	env, err := celEnv()
	if err != nil {
		return nil, err
	}
	return compile(newCachingCompiler(env, 0), schema, expr)
}

func compile(c *cachingCompiler, schema *Schema, expr string) (*Expression, error) {
	if !utf8.ValidString(expr) {
		return nil, parseError("expression is not valid UTF-8")
	}
	if strings.TrimSpace(expr) == "" {
		return nil, parseError("empty expression")
	}

	ast, vars, err := c.Compile(expr)
	if err != nil {
		return nil, err
	}

	conv := converter{schema: schema, vars: vars}
	root, err := conv.convert(nativeExpr(ast))
	if err != nil {
		return nil, err
	}

	return &Expression{
		Text:   expr,
		Root:   root,
		schema: schema,
	}, nil
}

func nativeExpr(ast *cel.Ast) celast.Expr {
	return ast.NativeRep().Expr()
}

// converter navigates a CEL AST, producing a tree of typed predicates and
// connectives.
type converter struct {
	schema *Schema
	vars   LiftedArgs
}

// operand is one side of a comparison:  either an attribute or a literal.
type operand struct {
	attr  int
	def   AttributeDefinition
	isLit bool
	lit   literal
}

// literal is an untyped literal from the expression.  Its type is only
// known once it's compared to an attribute.
type literal struct {
	raw    rawLiteral
	isBool bool
	b      bool
	isList bool
	items  []literal
}

func (c converter) convert(e celast.Expr) (*Node, error) {
	switch e.Kind() {
	case celast.CallKind:
		call := e.AsCall()
		args := call.Args()

		switch fn := call.FunctionName(); fn {
		case operators.LogicalAnd, operators.LogicalOr:
			kind := KindAnd
			if fn == operators.LogicalOr {
				kind = KindOr
			}
			n := &Node{Kind: kind}
			for _, arg := range args {
				child, err := c.convert(arg)
				if err != nil {
					return nil, err
				}
				n.Children = append(n.Children, child)
			}
			return n, nil

		case operators.LogicalNot:
			child, err := c.convert(args[0])
			if err != nil {
				return nil, err
			}
			return &Node{Kind: KindNot, Children: []*Node{child}}, nil

		case operators.Equals, operators.NotEquals,
			operators.Less, operators.LessEquals,
			operators.Greater, operators.GreaterEquals:
			if inner, ok := keywordNot(args[0]); ok {
				n, err := c.comparison(fn, inner, args[1])
				return notNode(n), err
			}
			return c.comparison(fn, args[0], args[1])

		case operators.In:
			if inner, ok := keywordNot(args[0]); ok {
				n, err := c.membership(inner, args[1])
				return notNode(n), err
			}
			return c.membership(args[0], args[1])

		case "one_of", "all_of", "none_of", "is_empty":
			if !call.IsMemberFunction() {
				return nil, parseError("%s must be called on an attribute, eg. tags.%s(...)", fn, fn)
			}
			return c.listCall(fn, call.Target(), args)

		default:
			return nil, parseError("unsupported operator or function %s", displayFn(fn))
		}

	case celast.IdentKind:
		// A bare boolean attribute, eg. `private`.
		op, err := c.operand(e)
		if err != nil {
			return nil, err
		}
		if op.def.Type != TypeBoolean {
			return nil, typeError(op.def.Name, "%s attribute can't be used as a condition", op.def.Type)
		}
		return predicateNode(&Predicate{
			Attribute: op.attr,
			Name:      op.def.Name,
			Type:      op.def.Type,
			Operator:  OpEq,
			Literal:   BoolValue(true),
		}), nil

	default:
		return nil, parseError("expression must be a condition on an attribute")
	}
}

func (c converter) comparison(fn string, lhs, rhs celast.Expr) (*Node, error) {
	var op Operator
	switch fn {
	case operators.Equals, operators.NotEquals:
		op = OpEq
	case operators.Less:
		op = OpLt
	case operators.LessEquals:
		op = OpLe
	case operators.Greater:
		op = OpGt
	case operators.GreaterEquals:
		op = OpGe
	}

	left, err := c.operand(lhs)
	if err != nil {
		return nil, err
	}
	right, err := c.operand(rhs)
	if err != nil {
		return nil, err
	}

	// We always want the attribute on the LHS.  When the literal is on the
	// LHS, swap the operands and mirror the operator, so that `18 <= age`
	// and `age >= 18` are the same predicate.
	if left.isLit && !right.isLit {
		left, right = right, left
		op = op.mirror()
	}
	if left.isLit || !right.isLit {
		return nil, parseError("%s must compare an attribute to a literal", displayFn(fn))
	}
	if right.lit.isList {
		return nil, typeError(left.def.Name, "%s can't be compared to a list", displayFn(fn))
	}
	if !op.validFor(left.def.Type) {
		return nil, typeError(left.def.Name, "operator %s is not supported for %s attributes", displayFn(fn), left.def.Type)
	}

	val, err := c.scalar(left.def, left.def.Type, right.lit)
	if err != nil {
		return nil, err
	}

	n := predicateNode(&Predicate{
		Attribute: left.attr,
		Name:      left.def.Name,
		Type:      left.def.Type,
		Operator:  op,
		Literal:   val,
	})

	if fn == operators.NotEquals {
		// a != b is stored as !(a == b), sharing the equality predicate.
		return &Node{Kind: KindNot, Children: []*Node{n}}, nil
	}
	return n, nil
}

// membership handles `attr in [..]` for scalars and `lit in attr` for lists.
func (c converter) membership(lhs, rhs celast.Expr) (*Node, error) {
	left, err := c.operand(lhs)
	if err != nil {
		return nil, err
	}
	right, err := c.operand(rhs)
	if err != nil {
		return nil, err
	}

	switch {
	case !left.isLit && right.isLit:
		if !right.lit.isList {
			return nil, parseError("the right hand side of `%s in` must be a list", left.def.Name)
		}
		if !OpIn.validFor(left.def.Type) {
			return nil, typeError(left.def.Name, "`in` is not supported for %s attributes; use one_of", left.def.Type)
		}
		set, err := c.set(left.def, left.def.Type, right.lit.items)
		if err != nil {
			return nil, err
		}
		return predicateNode(&Predicate{
			Attribute: left.attr,
			Name:      left.def.Name,
			Type:      left.def.Type,
			Operator:  OpIn,
			Set:       set,
		}), nil

	case left.isLit && !right.isLit:
		if !right.def.Type.IsList() {
			return nil, typeError(right.def.Name, "%s attribute is not a list", right.def.Type)
		}
		if left.lit.isList {
			return nil, typeError(right.def.Name, "use all_of to test for multiple elements")
		}
		val, err := c.scalar(right.def, right.def.Type.elem(), left.lit)
		if err != nil {
			return nil, err
		}
		return predicateNode(&Predicate{
			Attribute: right.attr,
			Name:      right.def.Name,
			Type:      right.def.Type,
			Operator:  OpContains,
			Literal:   val,
		}), nil

	default:
		return nil, parseError("`in` must test an attribute against a literal")
	}
}

func (c converter) listCall(fn string, target celast.Expr, args []celast.Expr) (*Node, error) {
	attr, err := c.operand(target)
	if err != nil {
		return nil, err
	}
	if attr.isLit {
		return nil, parseError("%s must be called on an attribute", fn)
	}
	if !attr.def.Type.IsList() {
		return nil, typeError(attr.def.Name, "%s is not supported for %s attributes", fn, attr.def.Type)
	}

	if fn == "is_empty" {
		if len(args) != 0 {
			return nil, parseError("is_empty takes no arguments")
		}
		return predicateNode(&Predicate{
			Attribute: attr.attr,
			Name:      attr.def.Name,
			Type:      attr.def.Type,
			Operator:  OpIsEmpty,
		}), nil
	}

	if len(args) != 1 {
		return nil, parseError("%s takes a single list argument", fn)
	}
	arg, err := c.operand(args[0])
	if err != nil {
		return nil, err
	}
	if !arg.isLit || !arg.lit.isList {
		return nil, parseError("%s takes a single list argument", fn)
	}
	set, err := c.set(attr.def, attr.def.Type.elem(), arg.lit.items)
	if err != nil {
		return nil, err
	}

	op := OpOneOf
	if fn == "all_of" {
		op = OpAllOf
	}
	n := predicateNode(&Predicate{
		Attribute: attr.attr,
		Name:      attr.def.Name,
		Type:      attr.def.Type,
		Operator:  op,
		Set:       set,
	})
	if fn == "none_of" {
		return &Node{Kind: KindNot, Children: []*Node{n}}, nil
	}
	return n, nil
}

// operand resolves an expression to either an attribute or a literal.
func (c converter) operand(e celast.Expr) (operand, error) {
	switch e.Kind() {
	case celast.IdentKind:
		name := e.AsIdent()
		if name == liftedIdent {
			return operand{}, parseError("unexpected identifier %s", name)
		}
		i, def, ok := c.schema.Lookup(name)
		if !ok {
			return operand{}, unknownAttribute(name)
		}
		return operand{attr: i, def: def}, nil

	case celast.SelectKind:
		sel := e.AsSelect()
		if sel.Operand().Kind() == celast.IdentKind && sel.Operand().AsIdent() == liftedIdent {
			raw, ok := c.vars.Get(sel.FieldName())
			if !ok {
				return operand{}, parseError("malformed literal")
			}
			return operand{isLit: true, lit: literal{raw: raw}}, nil
		}
		return operand{}, unknownAttribute(selectPath(e))

	case celast.LiteralKind:
		if b, ok := e.AsLiteral().Value().(bool); ok {
			return operand{isLit: true, lit: literal{isBool: true, b: b}}, nil
		}
		return operand{}, parseError("unsupported literal %v", e.AsLiteral().Value())

	case celast.ListKind:
		lit := literal{isList: true}
		for _, item := range e.AsList().Elements() {
			op, err := c.operand(item)
			if err != nil {
				return operand{}, err
			}
			if !op.isLit || op.lit.isList {
				return operand{}, parseError("lists may only contain scalar literals")
			}
			lit.items = append(lit.items, op.lit)
		}
		return operand{isLit: true, lit: lit}, nil

	case celast.CallKind:
		// Unary minus separated from its number by whitespace, eg. `- 5`.
		call := e.AsCall()
		if call.FunctionName() == operators.Negate {
			op, err := c.operand(call.Args()[0])
			if err != nil {
				return operand{}, err
			}
			if op.isLit && op.lit.raw.kind == literalNumber && op.lit.raw.text != "" {
				op.lit.raw.text = negate(op.lit.raw.text)
				return op, nil
			}
		}
		return operand{}, parseError("unsupported operand in comparison")

	default:
		return operand{}, parseError("unsupported operand in comparison")
	}
}

// scalar converts a literal into a value of type t, for the given attribute.
func (c converter) scalar(def AttributeDefinition, t AttributeType, lit literal) (Value, error) {
	mismatch := func() (Value, error) {
		return Value{}, typeError(def.Name, "literal %s is not a valid %s", lit.String(), t)
	}

	if lit.isList {
		return mismatch()
	}

	switch t {
	case TypeBoolean:
		if !lit.isBool {
			return mismatch()
		}
		return BoolValue(lit.b), nil

	case TypeInteger:
		if lit.isBool || lit.raw.kind != literalNumber {
			return mismatch()
		}
		i, err := strconv.ParseInt(lit.raw.text, 10, 64)
		if err != nil {
			return mismatch()
		}
		return IntValue(i), nil

	case TypeFloat:
		if lit.isBool || lit.raw.kind != literalNumber {
			return mismatch()
		}
		d, err := ParseDecimal(lit.raw.text)
		if err != nil {
			return Value{}, typeError(def.Name, "%s", err)
		}
		return FloatValue(d.Reduce()), nil

	case TypeString:
		if lit.isBool || lit.raw.kind != literalString {
			return mismatch()
		}
		s, err := unquote(lit.raw.text)
		if err != nil {
			return Value{}, typeError(def.Name, "%s", err)
		}
		if !utf8.ValidString(s) {
			return Value{}, typeError(def.Name, "string literal is not valid UTF-8")
		}
		return StringValue(norm.NFC.String(s)), nil
	}

	return mismatch()
}

func (c converter) set(def AttributeDefinition, t AttributeType, items []literal) ([]Value, error) {
	set := make([]Value, 0, len(items))
	for _, item := range items {
		v, err := c.scalar(def, t, item)
		if err != nil {
			return nil, err
		}
		set = append(set, v)
	}
	return normalizeSet(set), nil
}

func (l literal) String() string {
	switch {
	case l.isBool:
		return strconv.FormatBool(l.b)
	case l.isList:
		parts := make([]string, len(l.items))
		for i, item := range l.items {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return l.raw.text
	}
}

func predicateNode(p *Predicate) *Node {
	return &Node{Kind: KindPredicate, Predicate: p}
}

func notNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	return &Node{Kind: KindNot, Children: []*Node{n}}
}

// keywordNot unwraps `!operand` on the left of a comparison.  Unary operators
// bind tightly, so `NOT country = "US"` parses as `(!country) == "US"` and
// `NOT 18 <= age` as `(!18) <= age`; both are treated as a negated comparison.
func keywordNot(e celast.Expr) (celast.Expr, bool) {
	if e.Kind() != celast.CallKind {
		return nil, false
	}
	call := e.AsCall()
	if call.FunctionName() != operators.LogicalNot || len(call.Args()) != 1 {
		return nil, false
	}
	inner := call.Args()[0]
	switch inner.Kind() {
	case celast.IdentKind:
		return inner, true
	case celast.SelectKind:
		sel := inner.AsSelect()
		if sel.Operand().Kind() == celast.IdentKind && sel.Operand().AsIdent() == liftedIdent {
			return inner, true
		}
	case celast.LiteralKind:
		if _, ok := inner.AsLiteral().Value().(bool); ok {
			return inner, true
		}
	}
	return nil, false
}

func negate(number string) string {
	if strings.HasPrefix(number, "-") {
		return number[1:]
	}
	return "-" + number
}

// selectPath returns the dotted path of a select expression, eg. "a.b.c".
func selectPath(e celast.Expr) string {
	parts := []string{}
	for e.Kind() == celast.SelectKind {
		sel := e.AsSelect()
		parts = append([]string{sel.FieldName()}, parts...)
		e = sel.Operand()
	}
	if e.Kind() == celast.IdentKind {
		parts = append([]string{e.AsIdent()}, parts...)
	}
	return strings.Join(parts, ".")
}

// displayFn turns CEL's internal operator names into their syntax, eg.
// "_==_" into "==".
func displayFn(fn string) string {
	if op, ok := operators.FindReverse(fn); ok {
		return op
	}
	return fn
}
