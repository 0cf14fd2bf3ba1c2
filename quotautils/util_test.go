package quotautils_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/disjukr/memquota/quotautils"
)

func TestCheckNonNegative(t *testing.T) {
	require.NoError(t, quotautils.CheckNonNegative(0, "bytes"))
	require.NoError(t, quotautils.CheckNonNegative(17, "bytes"))

	err := quotautils.CheckNonNegative(-1, "bytes")
	require.ErrorIs(t, err, quotautils.NegativeValueError)
	require.ErrorContains(t, err, "bytes is -1")
}

func TestClamp(t *testing.T) {
	testCases := map[string]struct {
		value, lo, hi int
		expected      int
	}{
		"WithinRange": {value: 5, lo: 0, hi: 10, expected: 5},
		"BelowLow":    {value: -3, lo: 0, hi: 10, expected: 0},
		"AboveHigh":   {value: 42, lo: 0, hi: 10, expected: 10},
		"AtLow":       {value: 0, lo: 0, hi: 10, expected: 0},
		"AtHigh":      {value: 10, lo: 0, hi: 10, expected: 10},
		"EmptyRange":  {value: 7, lo: 3, hi: 3, expected: 3},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, testCase.expected,
				quotautils.Clamp(testCase.value, testCase.lo, testCase.hi))
		})
	}
}
