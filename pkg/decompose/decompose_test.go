package decompose

import (
	"testing"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/model"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, name string) model.Node {
	t.Helper()
	root, err := model.Load("../model/testdata/" + name)
	require.NoError(t, err)
	return root
}

func TestDecomposeIris(t *testing.T) {
	levels, err := Decompose(load(t, "iris.yaml"))
	require.NoError(t, err)
	require.Len(t, levels, 3)

	require.Equal(t, 0, levels[0].Depth)
	require.Equal(t, []common.NodeInfo{
		common.Comparison{Variable: "petal_length", Op: common.Ge, Threshold: 2.5},
		common.Comparison{Variable: "petal_length", Op: common.Lt, Threshold: 2.5},
	}, levels[0].Nodes)
	require.Equal(t, []int{2}, levels[0].Spans)
	require.Equal(t, []string{"", common.HashLabel("setosa")}, levels[0].Successors)

	require.Equal(t, []common.NodeInfo{
		common.Comparison{Variable: "petal_width", Op: common.Ge, Threshold: 1.75},
		common.Comparison{Variable: "petal_width", Op: common.Lt, Threshold: 1.75},
		common.Leaf{Label: "setosa"},
	}, levels[1].Nodes)
	require.Equal(t, []int{2, 1}, levels[1].Spans)
	require.Equal(t, []string{common.HashLabel("virginica"), common.HashLabel("versicolor")}, levels[1].Successors)

	require.Equal(t, []common.NodeInfo{
		common.Leaf{Label: "virginica"},
		common.Leaf{Label: "versicolor"},
	}, levels[2].Nodes)
	require.Empty(t, levels[2].Successors)
}

func TestDecomposeDeterministic(t *testing.T) {
	root := load(t, "survey.yaml")
	a, err := Decompose(root)
	require.NoError(t, err)
	b, err := Decompose(root)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, Dump(a), Dump(b))
}

func TestMirrorPairs(t *testing.T) {
	levels, err := Decompose(load(t, "survey.yaml"))
	require.NoError(t, err)
	for _, level := range levels {
		pos := 0
		for _, span := range level.Spans {
			if _, ok := level.Nodes[pos].(common.Leaf); ok {
				require.Equal(t, 1, span)
				pos++
				continue
			}
			require.Zero(t, span%2)
			for i := pos; i < pos+span; i += 2 {
				mirror := level.Nodes[i].(common.Comparison)
				primary := level.Nodes[i+1].(common.Comparison)
				require.Equal(t, primary.Op.Mirror(), mirror.Op)
				require.Equal(t, primary.Op, mirror.Op.Mirror())
				require.Equal(t, primary.Variable, mirror.Variable)
				require.Equal(t, primary.Threshold, mirror.Threshold)
			}
			pos += span
		}
		require.Equal(t, len(level.Nodes), pos)
	}
}

func TestDecomposeMultiway(t *testing.T) {
	levels, err := Decompose(load(t, "survey.yaml"))
	require.NoError(t, err)
	require.Len(t, levels, 4)

	// smoker: "= yes" guards child 1
	require.Equal(t, []common.NodeInfo{
		common.Comparison{Variable: "smoker", Op: common.Ne, Threshold: 1},
		common.Comparison{Variable: "smoker", Op: common.Eq, Threshold: 1},
	}, levels[0].Nodes)

	// region has three children and so two pairs; the leaf follows it
	require.Equal(t, []int{4, 1}, levels[1].Spans)
	require.Equal(t, []common.NodeInfo{
		common.Comparison{Variable: "region", Op: common.Ne, Threshold: 2},
		common.Comparison{Variable: "region", Op: common.Eq, Threshold: 2},
		common.Comparison{Variable: "region", Op: common.Ne, Threshold: 3},
		common.Comparison{Variable: "region", Op: common.Eq, Threshold: 3},
		common.Leaf{Label: "high"},
	}, levels[1].Nodes)
	require.Equal(t, []string{common.HashLabel("low"), common.HashLabel("medium"), ""}, levels[1].Successors)

	require.Equal(t, []int{1, 1, 2}, levels[2].Spans)
	require.Equal(t, common.Comparison{Variable: "age", Op: common.Le, Threshold: 40}, levels[2].Nodes[2])
	require.Equal(t, common.Comparison{Variable: "age", Op: common.Gt, Threshold: 40}, levels[2].Nodes[3])
}

func TestDecomposeMembership(t *testing.T) {
	root, err := model.Parse([]byte(`
variable: colour
branches:
  - condition: "!= other"
    label: plain
  - condition: "= other"
    label: special
`))
	require.NoError(t, err)
	levels, err := Decompose(root)
	require.NoError(t, err)
	require.Equal(t, []common.NodeInfo{
		common.Comparison{Variable: "colour", Op: common.Lt, Threshold: 1},
		common.Comparison{Variable: "colour", Op: common.Ge, Threshold: 1},
	}, levels[0].Nodes)
}

func TestDecomposeRootLeaf(t *testing.T) {
	levels, err := Decompose(&model.Leaf{Label: "only"})
	require.NoError(t, err)
	require.Len(t, levels, 1)
	require.Equal(t, []common.NodeInfo{common.Leaf{Label: "only"}}, levels[0].Nodes)
	require.Equal(t, []int{1}, levels[0].Spans)
}

func TestDecomposeErrors(t *testing.T) {
	bad := []model.Node{
		nil,
		&model.Leaf{},
		&model.Internal{Variable: "x", Branches: []model.Branch{{Condition: "< 1", Child: &model.Leaf{Label: "a"}}}},
		&model.Internal{Branches: []model.Branch{
			{Child: &model.Leaf{Label: "a"}},
			{Condition: "< 1", Child: &model.Leaf{Label: "b"}},
		}},
		&model.Internal{Variable: "x", Branches: []model.Branch{
			{Child: &model.Leaf{Label: "a"}},
			{Condition: "~ 1", Child: &model.Leaf{Label: "b"}},
		}},
		&model.Internal{Variable: "x", Branches: []model.Branch{
			{Child: &model.Leaf{Label: "a"}},
			{Condition: "< 1"},
		}},
	}
	for i, root := range bad {
		_, err := Decompose(root)
		require.Error(t, err, "case %d", i)
		require.True(t, common.IsKind(err, common.KindConfig), "case %d", i)
	}
}
