// Package decompose splits a trained tree into the per-depth node lists held
// by the level-sites.
//
// Every internal node with k children contributes k-1 adjacent pairs
// [mirror(c_i), c_i] for i = 1..k-1, where c_i is the comparison guarding
// child i. Child 0 is taken when no primary comparison holds. Leaves
// contribute a single Leaf entry. Nodes are listed breadth-first, left to
// right, and positions are the only way rounds address them.
package decompose

import (
	"fmt"
	"strings"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/model"
)

// Decompose returns one LevelSite per tree depth. It is a pure function of
// the tree.
func Decompose(root model.Node) ([]common.LevelSite, error) {
	if root == nil {
		return nil, common.ConfigError("empty tree", nil)
	}

	var levels []common.LevelSite
	queue := []model.Node{root}
	for depth := 0; len(queue) > 0; depth++ {
		level := common.LevelSite{Depth: depth}
		width := len(queue)
		for _, n := range queue[:width] {
			children, err := emit(&level, n)
			if err != nil {
				return nil, err
			}
			queue = append(queue, children...)
		}
		queue = queue[width:]
		for _, child := range queue {
			level.Successors = append(level.Successors, successor(child))
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// emit appends the entries of one node to level and returns its children.
func emit(level *common.LevelSite, n model.Node) ([]model.Node, error) {
	switch v := n.(type) {
	case *model.Leaf:
		if v.Label == "" {
			return nil, common.ConfigError(fmt.Sprintf("depth %d: leaf without label", level.Depth), nil)
		}
		level.Nodes = append(level.Nodes, common.Leaf{Label: v.Label})
		level.Spans = append(level.Spans, 1)
		return nil, nil

	case *model.Internal:
		if v.Variable == "" {
			return nil, common.ConfigError(fmt.Sprintf("depth %d: internal node without variable", level.Depth), nil)
		}
		if len(v.Branches) < 2 {
			return nil, common.ConfigError(fmt.Sprintf("depth %d: node %q has %d children, need at least 2",
				level.Depth, v.Variable, len(v.Branches)), nil)
		}
		// The fall-through condition is never evaluated but must still be valid.
		if c := v.Branches[0].Condition; c != "" {
			if _, err := model.ParseCondition(c); err != nil {
				return nil, common.ConfigError(fmt.Sprintf("depth %d: node %q", level.Depth, v.Variable), err)
			}
		}
		children := make([]model.Node, 0, len(v.Branches))
		for i, b := range v.Branches {
			if b.Child == nil {
				return nil, common.ConfigError(fmt.Sprintf("depth %d: node %q: child %d is empty",
					level.Depth, v.Variable, i), nil)
			}
			children = append(children, b.Child)
			if i == 0 {
				continue
			}
			cond, err := model.ParseCondition(b.Condition)
			if err != nil {
				return nil, common.ConfigError(fmt.Sprintf("depth %d: node %q", level.Depth, v.Variable), err)
			}
			primary := common.Comparison{Variable: v.Variable, Op: cond.Op, Threshold: cond.Threshold}
			mirror := primary
			mirror.Op = cond.Op.Mirror()
			level.Nodes = append(level.Nodes, mirror, primary)
		}
		level.Spans = append(level.Spans, 2*(len(v.Branches)-1))
		return children, nil
	}
	return nil, common.ConfigError(fmt.Sprintf("depth %d: unknown node type %T", level.Depth, n), nil)
}

func successor(n model.Node) string {
	if leaf, ok := n.(*model.Leaf); ok {
		return common.HashLabel(leaf.Label)
	}
	return ""
}

// Dump renders a decomposition for logging.
func Dump(levels []common.LevelSite) string {
	var b strings.Builder
	for i := range levels {
		b.WriteString(levels[i].String())
		b.WriteByte('\n')
	}
	return b.String()
}
