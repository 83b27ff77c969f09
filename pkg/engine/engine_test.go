package engine

import (
	"context"
	"crypto/rand"
	"net"
	"testing"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/decompose"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/features"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/model"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/monitor"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/oracle"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/protocol"
	"github.com/stretchr/testify/require"
)

const precision = 2

var testKeys *oracle.KeyPair

func keys(t *testing.T) *oracle.KeyPair {
	t.Helper()
	if testKeys == nil {
		kp, err := oracle.GenerateKeys(rand.Reader, 512)
		require.NoError(t, err)
		testKeys = kp
	}
	return testKeys
}

func levels(t *testing.T, name string) (model.Node, []common.LevelSite) {
	t.Helper()
	root, err := model.Load("../model/testdata/" + name)
	require.NoError(t, err)
	ls, err := decompose.Decompose(root)
	require.NoError(t, err)
	return root, ls
}

// sites builds one responder configuration per level, chained by pointer keys.
func sites(t *testing.T, ls []common.LevelSite, policy Policy) []*ResponderConfig {
	t.Helper()
	master := make([]byte, 32)
	_, err := rand.Read(master)
	require.NoError(t, err)

	var out []*ResponderConfig
	for i := range ls {
		in, outKey, err := common.LevelKeys(master, i, len(ls))
		require.NoError(t, err)
		cfg, err := NewLevelSiteConfig(&ls[i], in, outKey, policy, monitor.NewSiteStats())
		require.NoError(t, err)
		out = append(out, cfg)
	}
	return out
}

type roundResult struct {
	out     *Outcome
	err     error
	respErr error
}

func round(t *testing.T, cfg *ResponderConfig, raw map[string]string, ptr *common.Pointer) roundResult {
	t.Helper()
	kp := keys(t)
	vec, err := features.Encrypt(raw, precision, kp.Public(), rand.Reader)
	require.NoError(t, err)
	msg, err := protocol.NewEvaluate("test", kp.Public(), precision, vec, ptr)
	require.NoError(t, err)

	a, b := net.Pipe()
	defer b.Close()
	done := make(chan error, 1)
	go func() {
		done <- NewResponder(protocol.NewConn(b), cfg, nil).Run(context.Background())
	}()
	out, err := NewInitiator(protocol.NewConn(a), kp, msg).Run(context.Background())
	a.Close()
	return roundResult{out: out, err: err, respErr: <-done}
}

func TestSetosaInOneRound(t *testing.T) {
	_, ls := levels(t, "iris.yaml")
	cfgs := sites(t, ls, PolicyAlternate)

	r := round(t, cfgs[0], map[string]string{"petal_length": "1.4", "petal_width": "0.2"}, nil)
	require.NoError(t, r.err)
	require.NoError(t, r.respErr)
	require.Equal(t, Terminal, r.out.State)
	require.Equal(t, common.HashLabel("setosa"), r.out.LabelHash)
	require.Equal(t, 4, r.out.Comparisons)

	snap := cfgs[0].Stats.Snapshot()
	require.EqualValues(t, 1, snap.Rounds)
	require.EqualValues(t, 1, snap.Terminal)
	require.EqualValues(t, 2, snap.PaillierComparisons)
	require.EqualValues(t, 2, snap.ElGamalComparisons)
}

func TestVersicolorAcrossSites(t *testing.T) {
	_, ls := levels(t, "iris.yaml")
	cfgs := sites(t, ls, PolicyElGamal)
	raw := map[string]string{"petal_length": "4.5", "petal_width": "1.3"}

	r := round(t, cfgs[0], raw, nil)
	require.NoError(t, r.err)
	require.Equal(t, Continue, r.out.State)
	require.NotNil(t, r.out.Pointer)

	r = round(t, cfgs[1], raw, r.out.Pointer)
	require.NoError(t, r.err)
	require.NoError(t, r.respErr)
	require.Equal(t, Terminal, r.out.State)
	require.Equal(t, common.HashLabel("versicolor"), r.out.LabelHash)
	require.EqualValues(t, 0, cfgs[1].Stats.Snapshot().PaillierComparisons)
}

func TestNoData(t *testing.T) {
	_, ls := levels(t, "iris.yaml")
	cfgs := sites(t, ls, PolicyPaillier)
	raw := map[string]string{"petal_length": "4.5", "petal_width": "1.3"}

	// a deeper level without a pointer
	r := round(t, cfgs[1], raw, nil)
	require.Equal(t, common.ErrNoData, r.err)
	require.Equal(t, NoData, r.out.State)
	require.NoError(t, r.respErr)
	require.EqualValues(t, 1, cfgs[1].Stats.Snapshot().NoData)

	// a pointer meant for another level
	first := round(t, cfgs[0], raw, nil)
	require.NoError(t, first.err)
	r = round(t, cfgs[2], raw, first.out.Pointer)
	require.Equal(t, common.ErrNoData, r.err)

	// an empty level
	empty, err := NewLevelSiteConfig(&common.LevelSite{Depth: 3}, nil, nil, PolicyPaillier, nil)
	require.NoError(t, err)
	r = round(t, empty, raw, first.out.Pointer)
	require.Equal(t, common.ErrNoData, r.err)
}

func TestCombinedMatchesPlaintext(t *testing.T) {
	root, ls := levels(t, "survey.yaml")
	cfg, err := NewCombinedConfig(ls, PolicyAlternate, monitor.NewSiteStats())
	require.NoError(t, err)

	inputs := []map[string]string{
		{"smoker": "yes", "region": "1", "age": "20"},
		{"smoker": "no", "region": "2", "age": "20"},
		{"smoker": "no", "region": "3", "age": "40"},
		{"smoker": "no", "region": "3", "age": "40.01"},
		{"smoker": "no", "region": "7", "age": "99"},
	}
	for _, raw := range inputs {
		want, err := model.Evaluate(root, raw, precision)
		require.NoError(t, err)

		r := round(t, cfg, raw, nil)
		require.NoError(t, r.err, "%v", raw)
		require.NoError(t, r.respErr)
		require.Equal(t, Terminal, r.out.State)
		require.Equal(t, common.HashLabel(want), r.out.LabelHash, "%v", raw)
	}
}

func TestRootLeaf(t *testing.T) {
	ls, err := decompose.Decompose(&model.Leaf{Label: "only"})
	require.NoError(t, err)
	cfg, err := NewLevelSiteConfig(&ls[0], nil, nil, PolicyAlternate, nil)
	require.NoError(t, err)

	r := round(t, cfg, map[string]string{"x": "1"}, nil)
	require.NoError(t, r.err)
	require.Equal(t, common.HashLabel("only"), r.out.LabelHash)
	require.Zero(t, r.out.Comparisons)
}

func TestMissingFeature(t *testing.T) {
	_, ls := levels(t, "iris.yaml")
	cfgs := sites(t, ls, PolicyAlternate)

	r := round(t, cfgs[0], map[string]string{"petal_width": "0.2"}, nil)
	require.True(t, common.IsKind(r.err, common.KindProtocol))
	require.True(t, common.IsKind(r.respErr, common.KindProtocol))
	require.EqualValues(t, 1, cfgs[0].Stats.Snapshot().Failures)
}

func TestPlan(t *testing.T) {
	entries := []common.NodeInfo{
		common.Comparison{Variable: "a", Op: common.Ne, Threshold: 2},
		common.Comparison{Variable: "a", Op: common.Eq, Threshold: 2},
		common.Comparison{Variable: "a", Op: common.Le, Threshold: 0.5},
		common.Comparison{Variable: "a", Op: common.Gt, Threshold: 0.5},
	}
	q, err := plan(entries, 1)
	require.NoError(t, err)
	require.Equal(t, []query{
		{0, "a", 20}, {0, "a", 21},
		{1, "a", 20}, {1, "a", 21},
		{2, "a", 5}, {2, "a", 6},
		{3, "a", 5}, {3, "a", 6},
	}, q)

	q, err = plan([]common.NodeInfo{common.Leaf{Label: "x"}}, 2)
	require.NoError(t, err)
	require.Empty(t, q)
}

func TestEntryHolds(t *testing.T) {
	// bits of x = 4, 5 and 6 against T = 5
	cases := map[common.Operator][3]bool{
		common.Ge: {false, true, true},
		common.Gt: {false, false, true},
		common.Lt: {true, false, false},
		common.Le: {true, true, false},
		common.Eq: {false, true, false},
		common.Ne: {true, false, true},
	}
	bits := [][]bool{{false, false}, {true, false}, {true, true}}
	for op, want := range cases {
		for i, b := range bits {
			require.Equal(t, want[i], entryHolds(op, b), "%s on x=%d", op, 4+i)
			require.Equal(t, op.Holds(int64(4+i), 5), entryHolds(op, b))
		}
	}
}

func TestOperatorsCostTheSame(t *testing.T) {
	split := func(cond string) *ResponderConfig {
		root := &model.Internal{Variable: "a", Branches: []model.Branch{
			{Child: &model.Leaf{Label: "no"}},
			{Condition: cond, Child: &model.Leaf{Label: "yes"}},
		}}
		ls, err := decompose.Decompose(root)
		require.NoError(t, err)
		cfg, err := NewLevelSiteConfig(&ls[0], nil, nil, PolicyElGamal, nil)
		require.NoError(t, err)
		return cfg
	}

	counts := map[string]int{}
	for _, cond := range []string{"== 2", "!= 2", ">= 2", "> 2", "<= 2", "< 2"} {
		for _, x := range []string{"1", "2", "3"} {
			r := round(t, split(cond), map[string]string{"a": x}, nil)
			require.NoError(t, r.err)
			require.NoError(t, r.respErr)
			counts[cond+" on "+x] = r.out.Comparisons
		}
	}
	for k, n := range counts {
		require.Equal(t, 4, n, k)
	}
}

func TestChoose(t *testing.T) {
	entries := []common.NodeInfo{
		common.Comparison{Variable: "a", Op: common.Ne, Threshold: 2},
		common.Comparison{Variable: "a", Op: common.Eq, Threshold: 2},
		common.Comparison{Variable: "a", Op: common.Ge, Threshold: 5},
		common.Comparison{Variable: "a", Op: common.Lt, Threshold: 5},
	}
	// x = 2: Eq holds, Lt holds; the first pair wins
	child, err := choose(entries, [][]bool{{true, false}, {true, false}, {false, false}, {false, false}})
	require.NoError(t, err)
	require.Equal(t, 1, child)

	// x = 7: neither primary holds
	child, err = choose(entries, [][]bool{{true, true}, {true, true}, {true, true}, {true, true}})
	require.NoError(t, err)
	require.Equal(t, 0, child)

	// mirror and primary agree
	_, err = choose(entries[2:], [][]bool{{true, true}, {false, false}})
	require.True(t, common.IsKind(err, common.KindProtocol))
}

func TestParsePolicy(t *testing.T) {
	for s, want := range map[string]Policy{"": PolicyAlternate, "Paillier": PolicyPaillier, "elgamal": PolicyElGamal} {
		p, err := ParsePolicy(s)
		require.NoError(t, err)
		require.Equal(t, want, p)
	}
	_, err := ParsePolicy("rsa")
	require.Error(t, err)

	require.Equal(t, oracle.BackendPaillier, PolicyAlternate.backend(0))
	require.Equal(t, oracle.BackendElGamal, PolicyAlternate.backend(1))
}
