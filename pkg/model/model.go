// Package model holds the trained decision tree consumed by the authority.
// Training itself happens elsewhere; a tree reaches this package as a
// YAML or JSON model file.
package model

import (
	"os"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/fixedpoint"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// Node is either a *Leaf or an *Internal.
type Node interface {
	isNode()
}

type Leaf struct {
	Label string
}

type Internal struct {
	Variable string
	Branches []Branch
}

// Branch is one child of an internal node together with its textual split
// condition, e.g. "<= 2.45" or "!= yes".
type Branch struct {
	Condition string
	Child     Node
}

func (*Leaf) isNode()     {}
func (*Internal) isNode() {}

type rawNode struct {
	Label    string      `yaml:"label"`
	Variable string      `yaml:"variable"`
	Branches []rawBranch `yaml:"branches"`
}

type rawBranch struct {
	Condition string `yaml:"condition"`
	rawNode   `yaml:",inline"`
}

// Load reads a model file.
func Load(path string) (Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("reading model: %v", err)
	}
	return Parse(data)
}

// Parse decodes a model document.
func Parse(data []byte) (Node, error) {
	var raw rawNode
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, xerrors.Errorf("decoding model: %v", err)
	}
	return raw.build()
}

func (r *rawNode) build() (Node, error) {
	if len(r.Branches) == 0 {
		if r.Label == "" {
			return nil, xerrors.New("leaf without label")
		}
		return &Leaf{Label: r.Label}, nil
	}
	if r.Variable == "" {
		return nil, xerrors.New("internal node without variable")
	}
	in := &Internal{Variable: r.Variable}
	for i := range r.Branches {
		child, err := r.Branches[i].rawNode.build()
		if err != nil {
			return nil, err
		}
		in.Branches = append(in.Branches, Branch{Condition: r.Branches[i].Condition, Child: child})
	}
	return in, nil
}

// Classes lists the distinct leaf labels in breadth-first order.
func Classes(root Node) []string {
	var out []string
	seen := map[string]bool{}
	queue := []Node{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		switch v := n.(type) {
		case *Leaf:
			if !seen[v.Label] {
				seen[v.Label] = true
				out = append(out, v.Label)
			}
		case *Internal:
			for _, b := range v.Branches {
				queue = append(queue, b.Child)
			}
		}
	}
	return out
}

// Depth returns the number of levels of the tree.
func Depth(root Node) int {
	switch v := root.(type) {
	case *Leaf:
		return 1
	case *Internal:
		max := 0
		for _, b := range v.Branches {
			if d := Depth(b.Child); d > max {
				max = d
			}
		}
		return max + 1
	}
	return 0
}

// Evaluate classifies plaintext features the same way the distributed
// protocol does: child i (i >= 1) is taken when its condition holds,
// checked in order, and child 0 otherwise.
func Evaluate(root Node, features map[string]string, precision int) (string, error) {
	n := root
	for {
		switch v := n.(type) {
		case *Leaf:
			return v.Label, nil
		case *Internal:
			if len(v.Branches) == 0 {
				return "", xerrors.New("internal node without branches")
			}
			raw, ok := features[v.Variable]
			if !ok {
				return "", xerrors.Errorf("missing feature %q", v.Variable)
			}
			x, err := fixedpoint.Encode(raw, precision)
			if err != nil {
				return "", err
			}
			next := v.Branches[0].Child
			for _, b := range v.Branches[1:] {
				cond, err := ParseCondition(b.Condition)
				if err != nil {
					return "", err
				}
				ok, err := cond.Holds(x, precision)
				if err != nil {
					return "", err
				}
				if ok {
					next = b.Child
					break
				}
			}
			n = next
		default:
			return "", xerrors.Errorf("unknown node %T", n)
		}
	}
}
