package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{name: "zero", in: "0", want: "0"},
		{name: "plain", in: "1000", want: "1000"},
		{name: "yocto scale", in: "1250000000000000000000000", want: "1250000000000000000000000"},
		{name: "max u128", in: "340282366920938463463374607431768211455", want: "340282366920938463463374607431768211455"},
		{name: "above u128", in: "340282366920938463463374607431768211456", wantErr: ErrArithmeticOverflow},
		{name: "negative", in: "-1", wantErr: ErrInvalidAmount},
		{name: "empty", in: "", wantErr: ErrInvalidAmount},
		{name: "garbage", in: "12abc", wantErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestAmount_CheckedArithmetic(t *testing.T) {
	a := NewAmount(700)
	b := NewAmount(300)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "1000", sum.String())

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, "400", diff.String())

	_, err = b.Sub(a)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	_, err = MaxAmount().Add(NewAmount(1))
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	assert.Equal(t, "340282366920938463463374607431768211455", MaxAmount().String())
}

func TestAmount_Compare(t *testing.T) {
	assert.True(t, NewAmount(1).LessThan(NewAmount(2)))
	assert.False(t, NewAmount(2).LessThan(NewAmount(2)))
	assert.Equal(t, 0, NewAmount(5).Cmp(MustAmount("5")))
	assert.True(t, Amount{}.IsZero())

	n, ok := NewAmount(42).Uint64()
	assert.True(t, ok)
	assert.Equal(t, uint64(42), n)

	_, ok = MaxAmount().Uint64()
	assert.False(t, ok)
}

func TestAmount_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Fee Amount `json:"fee"`
	}{Fee: MustAmount("100000000000000000000000")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"fee":"100000000000000000000000"}`, string(b))

	var got struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"12","b":34}`), &got))
	assert.Equal(t, NewAmount(12), got.A)
	assert.Equal(t, NewAmount(34), got.B)

	require.Error(t, json.Unmarshal([]byte(`{"a":"-3"}`), &got))
}
