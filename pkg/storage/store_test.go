package storage

import (
	"crypto/rand"
	"path/filepath"
	"testing"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/oracle"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/protocol"
	"github.com/stretchr/testify/require"
)

func TestKeyStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.db")
	ks, err := OpenKeyStore(path)
	require.NoError(t, err)

	_, err = ks.LoadKeys()
	require.Equal(t, ErrNoKeys, err)
	classes, err := ks.LoadClasses()
	require.NoError(t, err)
	require.Empty(t, classes)

	kp, err := oracle.GenerateKeys(rand.Reader, 512)
	require.NoError(t, err)
	require.NoError(t, ks.SaveKeys(kp))
	require.NoError(t, ks.SaveClasses([]string{"setosa", "virginica", "versicolor"}))
	require.NoError(t, ks.SaveClasses([]string{"setosa", "versicolor"}))
	require.NoError(t, ks.Close())

	ks, err = OpenKeyStore(path)
	require.NoError(t, err)
	defer ks.Close()

	back, err := ks.LoadKeys()
	require.NoError(t, err)
	require.Equal(t, 0, back.Paillier.N.Cmp(kp.Paillier.N))
	require.True(t, back.ElGamal.Public.Equal(kp.ElGamal.Public))

	// keys from the store still decrypt what the originals encrypted
	ct, err := oracle.EncryptValue(rand.Reader, kp.Public(), 42)
	require.NoError(t, err)
	v, err := back.Paillier.Decrypt(ct.Paillier)
	require.NoError(t, err)
	require.EqualValues(t, 42, v.Int64())

	classes, err = ks.LoadClasses()
	require.NoError(t, err)
	require.Equal(t, []string{"setosa", "versicolor"}, classes)

	require.NoError(t, ks.Truncate())
	_, err = ks.LoadKeys()
	require.Equal(t, ErrNoKeys, err)
}

func TestLevelStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "levels.db")
	ls, err := OpenLevelStore(path)
	require.NoError(t, err)

	level, err := protocol.FromLevelSite(&common.LevelSite{
		Depth: 2,
		Nodes: []common.NodeInfo{common.Leaf{Label: "a"}},
		Spans: []int{1},
	})
	require.NoError(t, err)
	root, err := protocol.FromLevelSite(&common.LevelSite{Depth: 0})
	require.NoError(t, err)

	require.NoError(t, ls.Replace(&protocol.Train{Level: *level, InboundKey: []byte("in")},
		&protocol.Train{Level: *root}))
	require.NoError(t, ls.Close())

	ls, err = OpenLevelStore(path)
	require.NoError(t, err)
	defer ls.Close()

	records, err := ls.Load()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.EqualValues(t, 0, records[0].Level.Depth)
	require.EqualValues(t, 2, records[1].Level.Depth)
	require.Equal(t, []byte("in"), records[1].InboundKey)
	back, err := records[1].Level.LevelSite()
	require.NoError(t, err)
	require.Equal(t, []common.NodeInfo{common.Leaf{Label: "a"}}, back.Nodes)

	require.NoError(t, ls.Replace())
	records, err = ls.Load()
	require.NoError(t, err)
	require.Empty(t, records)
}
