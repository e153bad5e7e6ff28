package atree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSchema(t testing.TB) *Schema {
	t.Helper()
	s, err := NewSchema(
		Integer("exchange_id"),
		Boolean("private"),
		Boolean("deleted"),
		String("country"),
		Integer("age"),
		Float("price"),
		StringList("tags"),
		IntegerList("segments"),
	)
	require.NoError(t, err)
	return s
}

func TestCompile(t *testing.T) {
	schema := newTestSchema(t)

	assert := func(t *testing.T, tests map[string]string) {
		t.Helper()
		for input, output := range tests {
			expr, err := Compile(schema, input)
			require.NoError(t, err, input)
			require.Equal(t, output, expr.String(), input)
			require.Equal(t, input, expr.Text)
		}
	}

	t.Run("It handles comparisons", func(t *testing.T) {
		assert(t, map[string]string{
			`age >= 18`:        `age >= 18`,
			`age > -5`:         `age > -5`,
			`age > - 5`:        `age > -5`,
			`country == "US"`:  `country == "US"`,
			`country = 'US'`:   `country == "US"`,
			`price < 10.50`:    `price < 10.5`,
			`price <= 1.5e2`:   `price <= 150`,
			`private == false`: `private == false`,
			`exchange_id != 1`: `!(exchange_id == 1)`,
			`exchange_id <> 1`: `!(exchange_id == 1)`,
			`country != "US"`:  `!(country == "US")`,
			`price == 7`:       `price == 7`,
			`age == 01`:        `age == 1`,
		})
	})

	t.Run("It mirrors operators with the literal on the left", func(t *testing.T) {
		assert(t, map[string]string{
			`18 <= age`:       `age >= 18`,
			`18 < age`:        `age > 18`,
			`18 > age`:        `age < 18`,
			`18 >= age`:       `age <= 18`,
			`"US" == country`: `country == "US"`,
		})
	})

	t.Run("It handles bare booleans", func(t *testing.T) {
		assert(t, map[string]string{
			`private`:     `private == true`,
			`!private`:    `!(private == true)`,
			`not private`: `!(private == true)`,
			`NOT private`: `!(private == true)`,
		})
	})

	t.Run("It handles connectives", func(t *testing.T) {
		assert(t, map[string]string{
			`exchange_id = 1 and private`:            `exchange_id == 1 && private == true`,
			`exchange_id = 1 AND private OR deleted`: `(exchange_id == 1 && private == true) || deleted == true`,
			`(private || deleted) && age > 1`:        `(private == true || deleted == true) && age > 1`,
			`NOT country = "US"`:                     `!(country == "US")`,
			`NOT 18 <= age`:                          `!(age >= 18)`,
			`NOT "US" = country`:                     `!(country == "US")`,
			`NOT true = private`:                     `!(private == true)`,
			`!(age > 1 && private)`:                  `!(age > 1 && private == true)`,
		})
	})

	t.Run("It handles sets and lists", func(t *testing.T) {
		assert(t, map[string]string{
			`country in ["US", "CA", "US"]`: `country in ["CA", "US"]`,
			`age in [3, 1, 2]`:              `age in [1, 2, 3]`,
			`price in [1.50, 1.5, 2]`:       `price in [1.5, 2]`,
			`"vip" in tags`:                 `"vip" in tags`,
			`7 in segments`:                 `7 in segments`,
			`tags.one_of(["b", "a"])`:       `tags.one_of(["a", "b"])`,
			`tags.all_of(["b", "a", "b"])`:  `tags.all_of(["a", "b"])`,
			`tags.none_of(["x"])`:           `!(tags.one_of(["x"]))`,
			`segments.all_of([3, 1])`:       `segments.all_of([1, 3])`,
			`segments.all_of([])`:           `segments.all_of([])`,
			`tags.is_empty()`:               `tags.is_empty()`,
			`NOT country in ["US"]`:         `!(country in ["US"])`,
			`not "a" in tags`:               `!("a" in tags)`,
		})
	})

	t.Run("It normalizes strings", func(t *testing.T) {
		// "e" followed by a combining acute accent composes to U+00E9.
		expr, err := Compile(schema, "country == 'cafe\u0301'")
		require.NoError(t, err)
		require.Equal(t, "caf\u00e9", expr.Root.Predicate.Literal.Str())
	})

	t.Run("It builds typed predicates", func(t *testing.T) {
		expr, err := Compile(schema, `price >= 12.50`)
		require.NoError(t, err)

		p := expr.Root.Predicate
		require.NotNil(t, p)
		require.Equal(t, "price", p.Name)
		require.Equal(t, TypeFloat, p.Type)
		require.Equal(t, OpGe, p.Operator)
		require.Equal(t, NewDecimal(125, 1), p.Literal.Float())

		idx, _, _ := schema.Lookup("price")
		require.Equal(t, idx, p.Attribute)
	})
}

func TestCompile_Errors(t *testing.T) {
	schema := newTestSchema(t)

	tests := []struct {
		name string
		expr string
		err  error
	}{
		{"empty", ``, ErrParse},
		{"whitespace", `   `, ErrParse},
		{"invalid utf-8", "country == \"\xff\"", ErrParse},
		{"incomplete", `age ==`, ErrParse},
		{"unbalanced", `(age == 1`, ErrParse},
		{"arithmetic", `age + 1 == 2`, ErrParse},
		{"null", `age == null`, ErrParse},
		{"two literals", `1 == 1`, ErrParse},
		{"two attributes", `age == exchange_id`, ErrParse},
		{"unknown function", `size(tags) > 1`, ErrParse},
		{"in without a list", `age in 5`, ErrParse},
		{"one_of without a list", `tags.one_of("a")`, ErrParse},
		{"is_empty with args", `tags.is_empty(1)`, ErrParse},
		{"unknown attribute", `unknown == 1`, ErrUnknownAttribute},
		{"unknown nested attribute", `event.age == 1`, ErrUnknownAttribute},
		{"unknown list attribute", `"a" in unknown`, ErrUnknownAttribute},
		{"string literal for integer", `age == "18"`, ErrType},
		{"decimal literal for integer", `age == 1.5`, ErrType},
		{"integer overflow", `age == 99999999999999999999`, ErrType},
		{"number literal for string", `country == 1`, ErrType},
		{"ordering on strings", `country > "A"`, ErrType},
		{"ordering on booleans", `private > false`, ErrType},
		{"string attribute as condition", `country`, ErrType},
		{"equality on lists", `tags == "a"`, ErrType},
		{"in on booleans", `private in [true]`, ErrType},
		{"one_of on scalars", `country.one_of(["US"])`, ErrType},
		{"contains on scalars", `"US" in country`, ErrType},
		{"mixed set", `age in [1, "2"]`, ErrType},
		{"wrong element type", `segments.one_of(["a"])`, ErrType},
		{"list compared to scalar", `age == [1]`, ErrType},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			expr, err := Compile(schema, test.expr)
			require.ErrorIs(t, err, test.err)
			require.Nil(t, expr)
		})
	}

	t.Run("It reports the attribute", func(t *testing.T) {
		_, err := Compile(schema, `age == "18"`)
		var e *Error
		require.ErrorAs(t, err, &e)
		require.Equal(t, "age", e.Attribute)
	})
}

func TestExpressionMatch(t *testing.T) {
	schema := newTestSchema(t)

	build := func(t *testing.T, fn func(b *EventBuilder)) *Event {
		t.Helper()
		b := NewEventBuilder(schema)
		fn(b)
		ev, err := b.Build()
		require.NoError(t, err)
		return ev
	}

	ev := build(t, func(b *EventBuilder) {
		require.NoError(t, b.WithInteger("exchange_id", 1))
		require.NoError(t, b.WithBoolean("private", true))
		require.NoError(t, b.WithString("country", "US"))
		require.NoError(t, b.WithInteger("age", 30))
		require.NoError(t, b.WithFloat("price", 1050, 2))
		require.NoError(t, b.WithStringList("tags", []string{"a", "b", "a"}))
		require.NoError(t, b.WithUndefined("deleted"))
	})

	tests := map[string]bool{
		`exchange_id = 1 and private`:    true,
		`country == "US" && age >= 18`:   true,
		`country == "US" && age < 18`:    false,
		`country != "US"`:                false,
		`country in ["CA", "US"]`:        true,
		`price == 10.5`:                  true,
		`price > 10.49 && price < 10.51`: true,
		`"a" in tags`:                    true,
		`tags.all_of(["a", "b"])`:        true,
		`tags.all_of(["a", "c"])`:        false,
		`tags.one_of(["c", "b"])`:        true,
		`tags.none_of(["c"])`:            true,
		`tags.is_empty()`:                false,
		// Undefined and absent attributes satisfy nothing, negated or not.
		`deleted`:                        false,
		`!deleted`:                       false,
		`segments.is_empty()`:            false,
		`!segments.is_empty()`:           false,
		`!(deleted || private)`:          false,
		`deleted || private`:             true,
		`!(deleted && private)`:          false,
	}

	for input, expected := range tests {
		expr, err := Compile(schema, input)
		require.NoError(t, err, input)
		require.Equal(t, expected, expr.Match(ev), input)
	}
}
