package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"string", "C0001", "C0001"},
		{"int", 7, "7"},
		{"int64", int64(7), "7"},
		{"float integral", 7.0, "7"},
		{"float fraction", 7.25, "7.25"},
		{"json number int", json.Number("7"), "7"},
		{"json number float", json.Number("7.0"), "7"},
		{"numeric string stays", "007", "007"},
		{"bool", true, "true"},
		{"json number beyond int64", json.Number("12345678901234567890"), "12345678901234567890"},
		{"json number beyond int64 negative", json.Number("-92233720368547758090"), "-92233720368547758090"},
		{"uint64 beyond int64", uint64(18446744073709551615), "18446744073709551615"},
		{"json number exponent", json.Number("1e3"), "1000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Canonical(tc.in)
			assert.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}

	_, ok := Canonical(nil)
	assert.False(t, ok)
}

func TestCanonicalLargeIntegersKeepIdentity(t *testing.T) {
	fromNumber, _ := Canonical(json.Number("12345678901234567890"))
	fromText, _ := Canonical("12345678901234567890")
	assert.Equal(t, fromText, fromNumber)

	neighbour, _ := Canonical(json.Number("12345678901234567891"))
	assert.NotEqual(t, fromNumber, neighbour)
}

func TestNormalizeScalarLargeIntegers(t *testing.T) {
	assert.Equal(t, "12345678901234567890", NormalizeScalar(json.Number("12345678901234567890")))
	assert.Equal(t, "18446744073709551615", NormalizeScalar(uint64(18446744073709551615)))
	assert.Equal(t, int64(42), NormalizeScalar(uint64(42)))
	assert.Equal(t, int64(42), NormalizeScalar(uint(42)))
	assert.Equal(t, 1.5e20, NormalizeScalar(json.Number("1.5e20")))

	out, keep := NormalizeProperty("policy_number", json.Number("12345678901234567890"))
	assert.True(t, keep)
	assert.Equal(t, "12345678901234567890", out)
}

func TestEncodeCompositeIsDeterministic(t *testing.T) {
	v := map[string]any{"b": 1, "a": []any{"x", "<y>"}, "c": map[string]any{"z": true, "m": nil}}

	first, err := EncodeComposite(v)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := EncodeComposite(v)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, `{"a":["x","<y>"],"b":1,"c":{"m":null,"z":true}}`, first)

	var back map[string]any
	require.NoError(t, json.Unmarshal([]byte(first), &back))
	assert.Equal(t, "<y>", back["a"].([]any)[1])
}

func TestNormalizeProperties(t *testing.T) {
	props := map[string]any{
		"claim_id":          "C1",
		"assigned_agent_id": json.Number("12"),
		"close_agent_id":    nil,
		"amount":            json.Number("1500.5"),
		"count":             3,
		"injuries":          []any{"arm", "leg"},
		"address":           map[string]any{"city": "Oslo"},
		"status":            "open",
	}

	out := NormalizeProperties(props, "claim_id")

	assert.NotContains(t, out, "claim_id")
	assert.NotContains(t, out, "close_agent_id")
	assert.Equal(t, "12", out["assigned_agent_id"])
	assert.Equal(t, 1500.5, out["amount"])
	assert.Equal(t, int64(3), out["count"])
	assert.Equal(t, `["arm","leg"]`, out["injuries"])
	assert.Equal(t, `{"city":"Oslo"}`, out["address"])
	assert.Equal(t, "open", out["status"])
}
