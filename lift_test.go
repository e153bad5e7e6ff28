package atree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiftLiterals(t *testing.T) {
	tests := []struct {
		name         string
		expr         string
		expectedStr  string
		expectedArgs map[string]rawLiteral
	}{
		{
			name:         "basic case",
			expr:         `country == "US"`,
			expectedStr:  "country == _lit.v0",
			expectedArgs: map[string]rawLiteral{
				"v0": {kind: literalString, text: `"US"`},
			},
		},
		{
			name:         "basic case with single quotes",
			expr:         `country == 'US'`,
			expectedStr:  "country == _lit.v0",
			expectedArgs: map[string]rawLiteral{
				"v0": {kind: literalString, text: `'US'`},
			},
		},
		{
			name:         "escaped quotes",
			expr:         `name == 'it\'s' || name == "say \"hi\""`,
			expectedStr:  "name == _lit.v0 || name == _lit.v1",
			expectedArgs: map[string]rawLiteral{
				"v0": {kind: literalString, text: `'it\'s'`},
				"v1": {kind: literalString, text: `"say \"hi\""`},
			},
		},
		{
			name:         "keywords and aliases",
			expr:         `a = 1 AND NOT b <> 'x'`,
			expectedStr:  "a == _lit.v0 && ! b != _lit.v1",
			expectedArgs: map[string]rawLiteral{
				"v0": {kind: literalNumber, text: "1"},
				"v1": {kind: literalString, text: "'x'"},
			},
		},
		{
			name:         "lowercase keywords",
			expr:         `exchange_id = 1 and private or not deleted`,
			expectedStr:  "exchange_id == _lit.v0 && private || ! deleted",
			expectedArgs: map[string]rawLiteral{
				"v0": {kind: literalNumber, text: "1"},
			},
		},
		{
			name:         "negative and decimal numbers",
			expr:         `price > -5 && price <= 1.5e3`,
			expectedStr:  "price > _lit.v0 && price <= _lit.v1",
			expectedArgs: map[string]rawLiteral{
				"v0": {kind: literalNumber, text: "-5"},
				"v1": {kind: literalNumber, text: "1.5e3"},
			},
		},
		{
			name:         "binary minus",
			expr:         `price - 5`,
			expectedStr:  "price - _lit.v0",
			expectedArgs: map[string]rawLiteral{
				"v0": {kind: literalNumber, text: "5"},
			},
		},
		{
			name:         "lists",
			expr:         `tags.one_of(["a", "b"])`,
			expectedStr:  "tags.one_of([_lit.v0, _lit.v1])",
			expectedArgs: map[string]rawLiteral{
				"v0": {kind: literalString, text: `"a"`},
				"v1": {kind: literalString, text: `"b"`},
			},
		},
		{
			name:         "no literals",
			expr:         `private`,
			expectedStr:  "private",
			expectedArgs: map[string]rawLiteral{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			expr, vars, err := liftLiterals(test.expr)
			require.NoError(t, err)

			assert.Equal(t, test.expectedStr, expr)
			require.Equal(t, len(test.expectedArgs), vars.Len())
			for name, expected := range test.expectedArgs {
				actual, ok := vars.Get(name)
				require.True(t, ok, name)
				assert.Equal(t, expected, actual)
			}
		})
	}
}

func TestLiftLiterals_Errors(t *testing.T) {
	t.Run("It rejects unterminated strings", func(t *testing.T) {
		_, _, err := liftLiterals(`country == "US`)
		require.ErrorIs(t, err, ErrParse)
	})

	t.Run("It rejects malformed numbers", func(t *testing.T) {
		_, _, err := liftLiterals(`age > 1abc`)
		require.ErrorIs(t, err, ErrParse)

		_, _, err = liftLiterals(`age > 1.2.3`)
		require.ErrorIs(t, err, ErrParse)
	})
}

func TestUnquote(t *testing.T) {
	tests := map[string]string{
		`"US"`:         "US",
		`'US'`:         "US",
		`""`:           "",
		`'it\'s'`:      "it's",
		`"say \"hi\""`: `say "hi"`,
		`'a"b'`:        `a"b`,
		`"\u00e9"`:     "\u00e9",
		`"\x41"`:       "A",
		`"caf\u00e9"`:  "caf\u00e9",
		`"tab\there"`:  "tab\there",
	}

	for in, expected := range tests {
		actual, err := unquote(in)
		require.NoError(t, err, in)
		assert.Equal(t, expected, actual, in)
	}

	_, err := unquote(`"\q"`)
	require.Error(t, err)
}
