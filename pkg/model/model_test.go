package model

import (
	"testing"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/stretchr/testify/require"
)

func TestLoadIris(t *testing.T) {
	root, err := Load("testdata/iris.yaml")
	require.NoError(t, err)
	require.Equal(t, 3, Depth(root))
	require.Equal(t, []string{"setosa", "virginica", "versicolor"}, Classes(root))

	in, ok := root.(*Internal)
	require.True(t, ok)
	require.Equal(t, "petal_length", in.Variable)
	require.Len(t, in.Branches, 2)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("branches:\n  - condition: '< 1'\n    label: a\n"))
	require.Error(t, err)
	_, err = Parse([]byte("variable: x\nbranches:\n  - condition: '< 1'\n"))
	require.Error(t, err)
	_, err = Parse([]byte("{"))
	require.Error(t, err)
	_, err = Load("testdata/missing.yaml")
	require.Error(t, err)
}

func TestParseCondition(t *testing.T) {
	cases := []struct {
		in   string
		op   common.Operator
		want float64
	}{
		{">= 3.5", common.Ge, 3.5},
		{"<2.45", common.Lt, 2.45},
		{"<= 1", common.Le, 1},
		{"> -2", common.Gt, -2},
		{"== 7", common.Eq, 7},
		{"= yes", common.Eq, 1},
		{"= t", common.Eq, 1},
		{"!= no", common.Ne, 0},
		{"= f", common.Eq, 0},
		{"= other", common.Ge, 1},
		{"!= other", common.Lt, 1},
	}
	for _, c := range cases {
		cond, err := ParseCondition(c.in)
		require.NoError(t, err, c.in)
		require.Equal(t, c.op, cond.Op, c.in)
		require.Equal(t, c.want, cond.Threshold, c.in)
	}

	for _, bad := range []string{"", "~ 3", ">=", "< abc"} {
		_, err := ParseCondition(bad)
		require.Error(t, err, bad)
	}
}

func TestConditionHolds(t *testing.T) {
	cond, err := ParseCondition("< 2.5")
	require.NoError(t, err)
	ok, err := cond.Holds(140, 2)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = cond.Holds(250, 2)
	require.NoError(t, err)
	require.False(t, ok)

	cond, err = ParseCondition("> 2.5")
	require.NoError(t, err)
	ok, err = cond.Holds(251, 2)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluate(t *testing.T) {
	root, err := Load("testdata/iris.yaml")
	require.NoError(t, err)

	cases := []struct {
		length, width, want string
	}{
		{"1.4", "0.2", "setosa"},
		{"4.5", "1.3", "versicolor"},
		{"5.8", "2.1", "virginica"},
		{"2.5", "1.75", "virginica"},
	}
	for _, c := range cases {
		label, err := Evaluate(root, map[string]string{"petal_length": c.length, "petal_width": c.width}, 2)
		require.NoError(t, err)
		require.Equal(t, c.want, label)
	}

	_, err = Evaluate(root, map[string]string{"petal_width": "1"}, 2)
	require.Error(t, err)
}

func TestEvaluateSurvey(t *testing.T) {
	root, err := Load("testdata/survey.yaml")
	require.NoError(t, err)
	require.Equal(t, 4, Depth(root))

	label, err := Evaluate(root, map[string]string{"smoker": "yes"}, 0)
	require.NoError(t, err)
	require.Equal(t, "high", label)

	label, err = Evaluate(root, map[string]string{"smoker": "no", "region": "3", "age": "52"}, 0)
	require.NoError(t, err)
	require.Equal(t, "high", label)

	label, err = Evaluate(root, map[string]string{"smoker": "no", "region": "2"}, 0)
	require.NoError(t, err)
	require.Equal(t, "medium", label)

	// region 5 matches neither "== 2" nor "== 3" and falls through to child 0
	label, err = Evaluate(root, map[string]string{"smoker": "no", "region": "5"}, 0)
	require.NoError(t, err)
	require.Equal(t, "low", label)
}
