package amount

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		decimals int32
		want     string
		wantErr  error
	}{
		{"integer", "1000", 0, "1000", nil},
		{"fraction", "12.5", 18, "12500000000000000000", nil},
		{"smallest unit", "0.000001", 6, "1", nil},
		{"too precise", "0.0000001", 6, "", ErrPrecision},
		{"negative", "-1", 18, "", ErrNegative},
		{"garbage", "abc", 18, "", ErrFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input, tt.decimals)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormat(t *testing.T) {
	a, err := FromBaseUnits("12500000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "12.5", a.Format(18))
	assert.Equal(t, "0", Zero().Format(18))
}

func TestMulBps(t *testing.T) {
	tests := []struct {
		gross uint64
		bps   uint64
		want  uint64
	}{
		{1000, 100, 10},
		{999, 100, 10}, // 9.99 -> 10
		{949, 100, 9},  // 9.49 -> 9
		{950, 100, 10}, // 9.5 rounds half up
		{1, 100, 0},
		{1000, 0, 0},
	}
	for _, tt := range tests {
		got := FromUint64(tt.gross).MulBps(tt.bps)
		assert.Equal(t, FromUint64(tt.want), got, "gross=%d bps=%d", tt.gross, tt.bps)
	}
}

func TestDivMod(t *testing.T) {
	q, r := FromUint64(999).DivMod(3)
	assert.Equal(t, "333", q.String())
	assert.True(t, r.IsZero())

	q, r = FromUint64(1000).DivMod(3)
	assert.Equal(t, "333", q.String())
	assert.Equal(t, "1", r.String())

	assert.Panics(t, func() { FromUint64(1).DivMod(0) })
}

func TestAddSub(t *testing.T) {
	sum, err := FromUint64(1000).Add(FromUint64(10))
	require.NoError(t, err)
	assert.Equal(t, "1010", sum.String())

	_, err = FromUint64(1).Sub(FromUint64(2))
	assert.ErrorIs(t, err, ErrUnderflow)

	max, err := FromBig(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)))
	require.NoError(t, err)
	_, err = max.Add(FromUint64(1))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestJSONAndSQL(t *testing.T) {
	a := FromUint64(123456789)
	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `"123456789"`, string(data))

	var back Amount
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, a, back)

	v, err := a.Value()
	require.NoError(t, err)
	var scanned Amount
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, a, scanned)

	require.NoError(t, scanned.Scan([]byte("42")))
	assert.Equal(t, "42", scanned.String())
}

func TestCheckBps(t *testing.T) {
	assert.NoError(t, CheckBps(0))
	assert.NoError(t, CheckBps(BpsDenominator))
	assert.ErrorIs(t, CheckBps(BpsDenominator+1), ErrBpsRange)
}
