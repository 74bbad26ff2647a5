package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"sorted keys", IRObject{"b": IRInt(2), "a": IRInt(1)}, `{"a":1,"b":2}`},
		{"nested", IRObject{"z": IRObject{"y": IRBool(true), "x": IRNull{}}}, `{"z":{"x":null,"y":true}}`},
		{"ref", IRObject{"owner": IRRef(5)}, `{"owner":{"$ref":5}}`},
		{"no html escape", IRString("<a & b>"), `"<a & b>"`},
		{"go values", map[string]any{"n": int64(3), "s": "x"}, `{"n":3,"s":"x"}`},
		{"array", IRArray{IRInt(1), IRString("two")}, `[1,"two"]`},
		{"control chars", IRString("a\nb\"c\\"), `"a\nb\"c\\"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"x": 1.5})
	assert.Error(t, err)
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9.
	got, err := MarshalCanonical(IRString("e\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	got, err := MarshalCanonical(IRString("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(got))

	// A literal backslash followed by the text u2028 stays escaped.
	got, err = MarshalCanonical(IRString(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(got))
}

func TestMarshalCanonicalIdempotent(t *testing.T) {
	obj := IRObject{"k": IRArray{IRInt(1), IRObject{"b": IRString("x"), "a": IRRef(2)}}}
	first, err := MarshalCanonical(obj)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := MarshalCanonical(obj)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
