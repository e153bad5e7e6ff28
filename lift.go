package atree

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// liftedIdent is the identifier that lifted literals are selected from, eg.
// `country == "US"` becomes `country == _lit.v0`.
const liftedIdent = "_lit"

type literalKind uint8

const (
	literalString literalKind = iota
	literalNumber
)

// LiftedArgs represents a set of literals that have been lifted from an
// expression and replaced with identifiers.
type LiftedArgs interface {
	// Get returns the raw source text of a lifted literal, keyed by its field
	// name (eg. "v0").
	Get(name string) (rawLiteral, bool)
	Len() int
}

type rawLiteral struct {
	kind literalKind
	// text is the literal exactly as written, including quotes.
	text string
}

// liftLiterals lifts quoted and numeric literals into variables, allowing us
// to normalize expressions to increase cache hit rates:  expressions which
// differ only in their literals parse to the same AST.  Keyword aliases are
// rewritten to their CEL operators at the same time, so that
// `a = 1 AND NOT b <> 'x'` becomes `a == _lit.v0 && ! b != _lit.v1`.
func liftLiterals(expr string) (string, LiftedArgs, error) {
	lp := liftParser{expr: expr}
	return lp.lift()
}

type liftParser struct {
	expr string
	idx  int

	rewritten *strings.Builder

	// operand is true when the last token emitted can end an operand, and
	// so a following '-' is binary rather than a sign.
	operand bool

	vars pointerArgMap
}

func (l *liftParser) lift() (string, LiftedArgs, error) {
	l.vars = pointerArgMap{
		expr: l.expr,
		vars: map[string]argMapValue{},
	}

	l.rewritten = &strings.Builder{}
	l.rewritten.Grow(len(l.expr))

	for l.idx < len(l.expr) {
		char := l.expr[l.idx]

		switch {
		case char == '"' || char == '\'':
			val, err := l.consumeString(char)
			if err != nil {
				return "", nil, err
			}
			l.addLiftedVar(val)

		case isDigit(char) || (char == '-' && !l.operand && isDigit(l.peek(1))):
			val, err := l.consumeNumber()
			if err != nil {
				return "", nil, err
			}
			l.addLiftedVar(val)

		case isIdentStart(char):
			start := l.idx
			for l.idx < len(l.expr) && isIdentChar(l.expr[l.idx]) {
				l.idx++
			}
			l.consumeWord(l.expr[start:l.idx])

		case char == '=':
			// Both `=` and `==` are equality.
			l.idx++
			if l.peek(0) == '=' {
				l.idx++
			}
			l.emit("==", false)

		case char == '<' && l.peek(1) == '>':
			l.idx += 2
			l.emit("!=", false)

		case char == '<' || char == '>' || char == '!':
			l.idx++
			if l.peek(0) == '=' {
				l.idx++
				l.emit(string(char)+"=", false)
				continue
			}
			l.emit(string(char), false)

		case char == ')' || char == ']':
			l.idx++
			l.emit(string(char), true)

		case char == ' ' || char == '\t' || char == '\n' || char == '\r':
			l.idx++
			l.rewritten.WriteByte(char)

		default:
			l.idx++
			l.emit(string(char), false)
		}
	}

	return l.rewritten.String(), l.vars, nil
}

// consumeWord writes an identifier, rewriting the AND, OR and NOT keywords
// (in any case) to their operators.
func (l *liftParser) consumeWord(word string) {
	switch strings.ToLower(word) {
	case "and":
		l.emit("&&", false)
	case "or":
		l.emit("||", false)
	case "not":
		l.emit("!", false)
	default:
		l.emit(word, true)
	}
}

func (l *liftParser) emit(s string, operand bool) {
	l.rewritten.WriteString(s)
	l.operand = operand
}

func (l *liftParser) addLiftedVar(val argMapValue) {
	name := "v" + strconv.Itoa(len(l.vars.vars))
	l.vars.vars[name] = val
	l.emit(liftedIdent+"."+name, true)
}

func (l *liftParser) consumeString(quoteChar byte) (argMapValue, error) {
	offset := l.idx
	// Skip the opening quote.
	l.idx++
	for l.idx < len(l.expr) {
		char := l.expr[l.idx]
		l.idx++

		if char == '\\' {
			// Skip whatever is escaped, including the quote character.
			l.idx++
			continue
		}

		if char == quoteChar {
			return argMapValue{kind: literalString, offset: offset, length: l.idx - offset}, nil
		}
	}
	return argMapValue{}, parseError("unterminated string literal at offset %d", offset)
}

func (l *liftParser) consumeNumber() (argMapValue, error) {
	offset := l.idx
	if l.expr[l.idx] == '-' {
		l.idx++
	}
	l.digits()

	if l.peek(0) == '.' && isDigit(l.peek(1)) {
		l.idx++
		l.digits()
	}

	if c := l.peek(0); c == 'e' || c == 'E' {
		next := l.peek(1)
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(l.peek(2))) {
			l.idx += 2
			l.digits()
		}
	}

	if isIdentChar(l.peek(0)) || l.peek(0) == '.' {
		return argMapValue{}, parseError("malformed number literal at offset %d", offset)
	}

	return argMapValue{kind: literalNumber, offset: offset, length: l.idx - offset}, nil
}

func (l *liftParser) digits() {
	for l.idx < len(l.expr) && isDigit(l.expr[l.idx]) {
		l.idx++
	}
}

// peek returns the byte n positions past the current index, or 0x0 at the
// end of the expression.
func (l *liftParser) peek(n int) byte {
	if (l.idx + n) >= len(l.expr) {
		return 0x0
	}
	return l.expr[l.idx+n]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

// pointerArgMap takes the original expression, and adds pointers to the
// original expression in order to grab variables.
//
// It does this by pointing to the offset and length of data within the
// expression, as opposed to extracting the value into a new string.
type pointerArgMap struct {
	expr string
	vars map[string]argMapValue
}

func (p pointerArgMap) Get(key string) (rawLiteral, bool) {
	val, ok := p.vars[key]
	if !ok {
		return rawLiteral{}, false
	}
	return rawLiteral{kind: val.kind, text: val.get(p.expr)}, true
}

func (p pointerArgMap) Len() int {
	return len(p.vars)
}

// argMapValue represents an offset and length for a literal in an expression
// string.
type argMapValue struct {
	kind   literalKind
	offset int
	length int
}

func (a argMapValue) get(expr string) string {
	return expr[a.offset : a.offset+a.length]
}

// unquote decodes a single or double quoted string literal.
func unquote(text string) (string, error) {
	if len(text) < 2 {
		return "", fmt.Errorf("invalid string literal %s", text)
	}
	quote := text[0]
	body := text[1 : len(text)-1]

	b := &strings.Builder{}
	b.Grow(len(body))
	for len(body) > 0 {
		r, multibyte, tail, err := strconv.UnquoteChar(body, quote)
		if err != nil {
			return "", fmt.Errorf("invalid string literal %s: %w", text, err)
		}
		if r < utf8.RuneSelf || !multibyte {
			b.WriteByte(byte(r))
		} else {
			b.WriteRune(r)
		}
		body = tail
	}
	return b.String(), nil
}
