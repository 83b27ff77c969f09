package fixedpoint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	for raw, want := range map[string]string{
		"yes": "1", "t": "1", "other": "1",
		"no": "0", "f": "0",
		" 2.5 ": "2.5", "red": "red",
	} {
		require.Equal(t, want, Normalize(raw), raw)
	}
}

func TestEncode(t *testing.T) {
	cases := []struct {
		in        string
		precision int
		want      int64
	}{
		{"0.7", 2, 70},
		{"0.29", 2, 29},
		{"1.4", 2, 140},
		{"2.456", 2, 245},
		{"-2.456", 2, -245},
		{"3", 0, 3},
		{"3.99", 0, 3},
		{"yes", 3, 1000},
		{"no", 3, 0},
		{"other", 1, 10},
		{"1e-3", 4, 10},
		{"+12.5", 1, 125},
		{"0.000", 2, 0},
	}
	for _, c := range cases {
		got, err := Encode(c.in, c.precision)
		require.NoError(t, err, c.in)
		require.Equal(t, c.want, got, c.in)
	}
}

func TestEncodeErrors(t *testing.T) {
	for _, in := range []string{"", "abc", "NaN", "Inf", "1.2.3"} {
		_, err := Encode(in, 2)
		require.Error(t, err, in)
	}
	_, err := Encode("1", -1)
	require.Error(t, err)
	_, err = Encode("1", MaxPrecision+1)
	require.Error(t, err)
	_, err = Encode("99999999999999999999", 2)
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	for _, x := range []string{"0.7", "1.4", "0.2", "5.15", "-3.25"} {
		n, err := Encode(x, 2)
		require.NoError(t, err)
		f, err := EncodeFloat(Decode(n, 2), 2)
		require.NoError(t, err)
		require.Equal(t, n, f, x)
	}
	n, err := Encode("0.7", 2)
	require.NoError(t, err)
	require.Equal(t, int64(70), n)
	require.Equal(t, 0.7, Decode(n, 2))
}

func TestEncodeFloat(t *testing.T) {
	n, err := EncodeFloat(2.45, 2)
	require.NoError(t, err)
	require.Equal(t, int64(245), n)
	n, err = EncodeFloat(0.29, 2)
	require.NoError(t, err)
	require.Equal(t, int64(29), n)
}
