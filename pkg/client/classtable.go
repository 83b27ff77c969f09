package client

import (
	"github.com/google/btree"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
)

type classEntry struct {
	hash  string
	label string
}

func (e classEntry) Less(than btree.Item) bool {
	return e.hash < than.(classEntry).hash
}

// ClassTable resolves hashed labels received from responders. A label that
// was not in the setup class list cannot be resolved. It is read-only once
// built.
type ClassTable struct {
	tree *btree.BTree
}

func NewClassTable(labels []string) *ClassTable {
	ct := &ClassTable{tree: btree.New(8)}
	for _, l := range labels {
		ct.tree.ReplaceOrInsert(classEntry{hash: common.HashLabel(l), label: l})
	}
	return ct
}

func (ct *ClassTable) Lookup(hash string) (string, bool) {
	item := ct.tree.Get(classEntry{hash: hash})
	if item == nil {
		return "", false
	}
	return item.(classEntry).label, true
}

// Len counts distinct labels.
func (ct *ClassTable) Len() int {
	return ct.tree.Len()
}
