package core

import (
	"testing"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/decompose"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/model"
	"github.com/stretchr/testify/require"
)

func TestLevelIndexSurvey(t *testing.T) {
	root, err := model.Load("../model/testdata/survey.yaml")
	require.NoError(t, err)
	levels, err := decompose.Decompose(root)
	require.NoError(t, err)

	ix, err := NewLevelIndex(&levels[2])
	require.NoError(t, err)
	require.Equal(t, 3, ix.Len())
	require.Equal(t, 2, ix.Depth())

	ref, ok := ix.Lookup(2)
	require.True(t, ok)
	require.Equal(t, NodeRef{Ordinal: 2, Offset: 2, Width: 2, ChildBase: 0, Children: 2}, ref)
	require.Equal(t, common.Comparison{Variable: "age", Op: common.Gt, Threshold: 40}, ix.Entries(ref)[1])
	require.Equal(t, common.HashLabel("high"), ix.Successor(ref, 1))

	ref, ok = ix.Lookup(0)
	require.True(t, ok)
	require.Zero(t, ref.Children)

	_, ok = ix.Lookup(3)
	require.False(t, ok)

	ix, err = NewLevelIndex(&levels[1])
	require.NoError(t, err)
	ref, ok = ix.Lookup(0)
	require.True(t, ok)
	require.Equal(t, 3, ref.Children)
	require.Equal(t, "", ix.Successor(ref, 2))
	require.Equal(t, common.HashLabel("medium"), ix.Successor(ref, 1))
}

func TestLevelIndexEmpty(t *testing.T) {
	ix, err := NewLevelIndex(&common.LevelSite{Depth: 4})
	require.NoError(t, err)
	require.True(t, ix.Empty())
	_, ok := ix.Lookup(0)
	require.False(t, ok)
}

func TestLevelIndexRejectsBadLayout(t *testing.T) {
	cmp := common.Comparison{Variable: "x", Op: common.Lt, Threshold: 1}
	mirror := common.Comparison{Variable: "x", Op: common.Ge, Threshold: 1}
	leaf := common.Leaf{Label: "a"}

	bad := []*common.LevelSite{
		{Nodes: []common.NodeInfo{mirror, cmp}, Spans: []int{3}},
		{Nodes: []common.NodeInfo{mirror, cmp}, Spans: []int{1, 1}, Successors: []string{"", "", "", ""}},
		{Nodes: []common.NodeInfo{cmp, cmp}, Spans: []int{2}, Successors: []string{"", ""}},
		{Nodes: []common.NodeInfo{leaf, leaf}, Spans: []int{2}},
		{Nodes: []common.NodeInfo{mirror, cmp}, Spans: []int{2}, Successors: []string{""}},
		{Nodes: []common.NodeInfo{mirror, cmp, leaf}, Spans: []int{2}, Successors: []string{"", ""}},
	}
	for i, ls := range bad {
		_, err := NewLevelIndex(ls)
		require.Error(t, err, "case %d", i)
		require.True(t, common.IsKind(err, common.KindConfig), "case %d", i)
	}
}
