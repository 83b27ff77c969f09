package features

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/oracle"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	raw, err := Parse(strings.NewReader("petal_length\t1.4\n\npetal_width\t0.2\r\nsmoker\tyes\npetal_width\t0.3\n"))
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"petal_length": "1.4",
		"petal_width":  "0.3",
		"smoker":       "yes",
	}, raw)
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"no tab here\n", "\t1.0\n"} {
		_, err := Parse(strings.NewReader(in))
		require.Error(t, err)
		require.True(t, common.IsKind(err, common.KindEncoding))
	}
}

func TestEncrypt(t *testing.T) {
	kp, err := oracle.GenerateKeys(rand.Reader, 512)
	require.NoError(t, err)

	vec, err := Encrypt(map[string]string{"a": "0.7", "b": "no", "c": "-1.25"}, 2, kp.Public(), rand.Reader)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, vec.Names())

	want := map[string]int64{"a": 70, "b": 0, "c": -125}
	for name, x := range want {
		v, err := kp.Paillier.Decrypt(vec[name].Paillier)
		require.NoError(t, err)
		require.Equal(t, x, v.Int64(), name)
		require.Len(t, vec[name].Bits, oracle.BitWidth)
	}

	_, err = Encrypt(map[string]string{"a": "abc"}, 2, kp.Public(), rand.Reader)
	require.True(t, common.IsKind(err, common.KindEncoding))
	_, err = Encrypt(map[string]string{"a": "1e30"}, 2, kp.Public(), rand.Reader)
	require.True(t, common.IsKind(err, common.KindEncoding))
}

func TestEncodeFile(t *testing.T) {
	kp, err := oracle.GenerateKeys(rand.Reader, 512)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "features.txt")
	require.NoError(t, os.WriteFile(path, []byte("petal_length\t1.4\npetal_width\t0.2\n"), 0644))
	vec, err := EncodeFile(path, 2, kp.Public(), rand.Reader)
	require.NoError(t, err)
	require.Len(t, vec, 2)

	_, err = EncodeFile(filepath.Join(t.TempDir(), "missing"), 2, kp.Public(), rand.Reader)
	require.True(t, common.IsKind(err, common.KindEncoding))
}
