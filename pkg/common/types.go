package common

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Operator is the normalised relation of one comparison node.
type Operator int32

const (
	Eq Operator = 1
	Ge Operator = 2
	Gt Operator = 3
	Le Operator = 4
	Lt Operator = 5
	Ne Operator = 6
)

// Mirror returns the complementary operator. Mirror(Mirror(op)) == op.
func (o Operator) Mirror() Operator {
	switch o {
	case Eq:
		return Ne
	case Ne:
		return Eq
	case Ge:
		return Lt
	case Lt:
		return Ge
	case Gt:
		return Le
	case Le:
		return Gt
	}
	return o
}

// Holds evaluates the operator on fixed-point integers.
func (o Operator) Holds(x, t int64) bool {
	switch o {
	case Eq:
		return x == t
	case Ge:
		return x >= t
	case Gt:
		return x > t
	case Le:
		return x <= t
	case Lt:
		return x < t
	case Ne:
		return x != t
	}
	return false
}

func (o Operator) Valid() bool {
	return o >= Eq && o <= Ne
}

func (o Operator) String() string {
	switch o {
	case Eq:
		return "=="
	case Ge:
		return ">="
	case Gt:
		return ">"
	case Le:
		return "<="
	case Lt:
		return "<"
	case Ne:
		return "!="
	}
	return fmt.Sprintf("Operator(%d)", int32(o))
}

// NodeInfo is the privacy-scrubbed form of one tree node as held by a
// level-site. The only implementations are Leaf and Comparison.
type NodeInfo interface {
	isNodeInfo()
	String() string
}

// Leaf carries the class label of a terminal node.
type Leaf struct {
	Label string
}

// Comparison tests one feature against a threshold.
type Comparison struct {
	Variable  string
	Op        Operator
	Threshold float64
}

func (Leaf) isNodeInfo()       {}
func (Comparison) isNodeInfo() {}

func (l Leaf) String() string {
	return fmt.Sprintf("Leaf{%s}", l.Label)
}

func (c Comparison) String() string {
	return fmt.Sprintf("Cmp{%s %s %g}", c.Variable, c.Op, c.Threshold)
}

// LevelSite is everything one level-site knows about the tree: the nodes of
// a single depth in breadth-first, left-to-right order.
type LevelSite struct {
	Depth int
	Nodes []NodeInfo
	// Spans holds the number of Nodes entries of each tree node, in order.
	Spans []int
	// Successors has one entry per child of this level's internal nodes, in
	// next-level order: the hashed label of a leaf child, or "".
	Successors []string
}

// Empty reports whether the level holds no node at all.
func (ls *LevelSite) Empty() bool {
	return ls == nil || len(ls.Nodes) == 0
}

func (ls *LevelSite) String() string {
	parts := make([]string, len(ls.Nodes))
	for i, n := range ls.Nodes {
		parts[i] = n.String()
	}
	return fmt.Sprintf("Level %d [%s] spans=%v", ls.Depth, strings.Join(parts, ", "), ls.Spans)
}

// ChildCount returns the number of tree children of a node spanning width
// entries. Leaves have none; internal nodes hold one pair per non-first child.
func ChildCount(first NodeInfo, width int) int {
	switch first.(type) {
	case Leaf:
		return 0
	case Comparison:
		return width/2 + 1
	}
	return 0
}

// HashLabel is the one-way form in which class labels travel on the wire.
func HashLabel(label string) string {
	sum := sha256.Sum256([]byte(label))
	return hex.EncodeToString(sum[:])
}
