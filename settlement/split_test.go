package settlement

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitWin_FeeAndReferrer(t *testing.T) {
	rates := Rates{ServiceFeeBP: 1000, ReferrerShareBP: 2000}

	s, err := SplitWin(100, rates, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), s.Fee)
	assert.Equal(t, uint64(90), s.WinnerShare)
	assert.Equal(t, uint64(0), s.ReferrerShare)
	assert.Equal(t, uint64(10), s.ProtocolShare)

	s, err = SplitWin(100, rates, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(90), s.WinnerShare)
	assert.Equal(t, uint64(2), s.ReferrerShare)
	assert.Equal(t, uint64(8), s.ProtocolShare)
}

func TestSplitWin_FloorsFees(t *testing.T) {
	s, err := SplitWin(199, Rates{ServiceFeeBP: 100, ReferrerShareBP: 3333}, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), s.Fee)
	assert.Equal(t, uint64(198), s.WinnerShare)
	assert.Equal(t, uint64(0), s.ReferrerShare)
	assert.Equal(t, uint64(1), s.ProtocolShare)
}

func TestSplitWin_ConservesPool(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		pool := rng.Uint64()
		rates := Rates{ServiceFeeBP: uint64(rng.Intn(1001)), ReferrerShareBP: uint64(rng.Intn(5001))}
		s, err := SplitWin(pool, rates, rng.Intn(2) == 0)
		require.NoError(t, err)
		assert.Equal(t, pool, s.WinnerShare+s.Fee)
		assert.Equal(t, s.Fee, s.ReferrerShare+s.ProtocolShare)
		assert.LessOrEqual(t, s.Fee, pool)
	}
}

func TestSplitWin_LargePoolDoesNotOverflow(t *testing.T) {
	s, err := SplitWin(math.MaxUint64, Rates{ServiceFeeBP: 1000, ReferrerShareBP: 5000}, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64/10), s.Fee)
	assert.Equal(t, uint64(math.MaxUint64), s.WinnerShare+s.Fee)
}

func TestSplitWin_RejectsInvalidRates(t *testing.T) {
	_, err := SplitWin(100, Rates{ServiceFeeBP: 10_001}, false)
	assert.ErrorIs(t, err, ErrInvalidRate)
	_, err = SplitWin(100, Rates{ServiceFeeBP: 100, ReferrerShareBP: 20_000}, true)
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestSplitTie(t *testing.T) {
	s := SplitTie(200)
	assert.Equal(t, uint64(100), s.PerPlayer)
	assert.Equal(t, uint64(0), s.Remainder)

	s = SplitTie(101)
	assert.Equal(t, uint64(50), s.PerPlayer)
	assert.Equal(t, uint64(1), s.Remainder)

	s = SplitTie(math.MaxUint64)
	assert.LessOrEqual(t, 2*s.PerPlayer, s.Pool)
}

func TestDoublePool(t *testing.T) {
	pool, err := DoublePool(100)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), pool)

	_, err = DoublePool(math.MaxUint64/2 + 1)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMulDivFloor(t *testing.T) {
	q, err := MulDivFloor(math.MaxUint64, 10_000, 10_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), q)

	_, err = MulDivFloor(math.MaxUint64, 3, 2)
	assert.ErrorIs(t, err, ErrOverflow)
	_, err = MulDivFloor(1, 1, 0)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = AddChecked(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrOverflow)
}
