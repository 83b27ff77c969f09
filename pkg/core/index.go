// Package core indexes the level data a level-site serves.
package core

import (
	"fmt"

	"github.com/google/btree"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"golang.org/x/xerrors"
)

// NodeRef locates one tree node inside a level's flat node list.
type NodeRef struct {
	Ordinal int
	Offset  int
	Width   int
	// ChildBase is the ordinal of the node's first child in the next level.
	ChildBase int
	Children  int
}

func (r NodeRef) Less(than btree.Item) bool {
	return r.Ordinal < than.(NodeRef).Ordinal
}

// LevelIndex maps node ordinals to their position in a LevelSite.
type LevelIndex struct {
	level    *common.LevelSite
	tree     *btree.BTree
	children int
}

// NewLevelIndex validates the layout of ls and indexes its nodes.
func NewLevelIndex(ls *common.LevelSite) (*LevelIndex, error) {
	ix := &LevelIndex{level: ls, tree: btree.New(16)}
	offset := 0
	for ord, width := range ls.Spans {
		if width <= 0 || offset+width > len(ls.Nodes) {
			return nil, common.ConfigError(fmt.Sprintf("level %d: node %d span %d out of bounds", ls.Depth, ord, width), nil)
		}
		if err := checkNode(ls.Nodes[offset : offset+width]); err != nil {
			return nil, common.ConfigError(fmt.Sprintf("level %d: node %d", ls.Depth, ord), err)
		}
		n := common.ChildCount(ls.Nodes[offset], width)
		ix.tree.ReplaceOrInsert(NodeRef{
			Ordinal:   ord,
			Offset:    offset,
			Width:     width,
			ChildBase: ix.children,
			Children:  n,
		})
		offset += width
		ix.children += n
	}
	if offset != len(ls.Nodes) {
		return nil, common.ConfigError(fmt.Sprintf("level %d: spans cover %d of %d nodes", ls.Depth, offset, len(ls.Nodes)), nil)
	}
	if ix.children > 0 && len(ls.Successors) != ix.children {
		return nil, common.ConfigError(fmt.Sprintf("level %d: %d successors for %d children",
			ls.Depth, len(ls.Successors), ix.children), nil)
	}
	return ix, nil
}

func checkNode(entries []common.NodeInfo) error {
	switch first := entries[0].(type) {
	case common.Leaf:
		if len(entries) != 1 {
			return xerrors.Errorf("leaf spans %d entries", len(entries))
		}
	case common.Comparison:
		if len(entries)%2 != 0 {
			return xerrors.New("odd number of comparison entries")
		}
		for i := 0; i < len(entries); i += 2 {
			mirror, ok1 := entries[i].(common.Comparison)
			primary, ok2 := entries[i+1].(common.Comparison)
			if !ok1 || !ok2 {
				return xerrors.New("leaf inside an internal node")
			}
			if mirror.Variable != first.Variable || primary.Variable != first.Variable {
				return xerrors.New("mixed variables")
			}
			if mirror.Op != primary.Op.Mirror() || mirror.Threshold != primary.Threshold {
				return xerrors.Errorf("entry %d is not the mirror of entry %d", i, i+1)
			}
		}
	default:
		return xerrors.Errorf("unknown node type %T", first)
	}
	return nil
}

// Lookup returns the node with the given ordinal.
func (ix *LevelIndex) Lookup(ordinal int) (NodeRef, bool) {
	res := ix.tree.Get(NodeRef{Ordinal: ordinal})
	if res == nil {
		return NodeRef{}, false
	}
	return res.(NodeRef), true
}

// Entries returns the NodeInfo entries of ref.
func (ix *LevelIndex) Entries(ref NodeRef) []common.NodeInfo {
	return ix.level.Nodes[ref.Offset : ref.Offset+ref.Width]
}

// Successor returns the hashed label of the given child of ref, or "" when
// that child is an internal node.
func (ix *LevelIndex) Successor(ref NodeRef, child int) string {
	i := ref.ChildBase + child
	if i < 0 || i >= len(ix.level.Successors) {
		return ""
	}
	return ix.level.Successors[i]
}

func (ix *LevelIndex) Depth() int {
	return ix.level.Depth
}

// Len is the number of tree nodes in the level.
func (ix *LevelIndex) Len() int {
	return ix.tree.Len()
}

func (ix *LevelIndex) Empty() bool {
	return ix.tree.Len() == 0
}
