package client

import (
	"testing"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/stretchr/testify/require"
)

func TestClassTable(t *testing.T) {
	ct := NewClassTable([]string{"setosa", "virginica", "setosa", "versicolor"})
	require.Equal(t, 3, ct.Len())

	label, ok := ct.Lookup(common.HashLabel("virginica"))
	require.True(t, ok)
	require.Equal(t, "virginica", label)

	_, ok = ct.Lookup(common.HashLabel("unknown"))
	require.False(t, ok)
	_, ok = ct.Lookup("virginica")
	require.False(t, ok)
}
