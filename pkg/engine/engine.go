// Package engine runs one traversal round between a client (initiator) and
// a level-site (responder).
//
// A round opens with Evaluate. The responder then streams opcodes: a backend
// selector before each oblivious comparison, -2 when it holds no node for
// the pointer, and -1 once every comparison deciding the next hop is done.
// A Result follows -1 with either a hashed label or a pointer into the next
// level. Both sides are explicit state machines advanced by Step.
package engine

import (
	"strings"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/core"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/fixedpoint"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/monitor"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/oracle"
	"golang.org/x/xerrors"
)

// Policy chooses the backend of each comparison on the responder.
type Policy int

const (
	PolicyAlternate Policy = iota
	PolicyPaillier
	PolicyElGamal
)

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "alternate":
		return PolicyAlternate, nil
	case "paillier":
		return PolicyPaillier, nil
	case "elgamal":
		return PolicyElGamal, nil
	}
	return 0, xerrors.Errorf("unknown backend policy %q", s)
}

func (p Policy) String() string {
	switch p {
	case PolicyAlternate:
		return "alternate"
	case PolicyPaillier:
		return "paillier"
	case PolicyElGamal:
		return "elgamal"
	}
	return "unknown"
}

// backend returns the backend of the i-th comparison of a round.
func (p Policy) backend(i int) oracle.Backend {
	switch p {
	case PolicyPaillier:
		return oracle.BackendPaillier
	case PolicyElGamal:
		return oracle.BackendElGamal
	}
	if i%2 == 0 {
		return oracle.BackendPaillier
	}
	return oracle.BackendElGamal
}

// query is one oblivious comparison [x >= threshold] for an entry of the
// current node.
type query struct {
	entry     int
	variable  string
	threshold int64
}

// plan lists the comparisons needed to decide every entry of a node. Every
// comparison entry asks [x >= T] and [x >= T+1] whatever its operator, so
// the initiator cannot tell an equality test from a range test by counting
// opcodes.
func plan(entries []common.NodeInfo, precision int) ([]query, error) {
	var out []query
	for i, n := range entries {
		switch v := n.(type) {
		case common.Leaf:
			// leaves need no comparison
		case common.Comparison:
			if !v.Op.Valid() {
				return nil, common.ProtocolError("invalid operator "+v.Op.String(), nil)
			}
			t, err := fixedpoint.EncodeFloat(v.Threshold, precision)
			if err != nil {
				return nil, common.ConfigError("scaling threshold", err)
			}
			if !oracle.InRange(t) || !oracle.InRange(t+1) {
				return nil, common.ConfigError("threshold out of comparable range", nil)
			}
			out = append(out, query{i, v.Variable, t}, query{i, v.Variable, t + 1})
		default:
			return nil, common.ProtocolError("unknown node type", nil)
		}
	}
	return out, nil
}

// entryHolds decides an entry from its bits [x >= T] and [x >= T+1].
func entryHolds(op common.Operator, bits []bool) bool {
	if len(bits) != 2 {
		return false
	}
	ge, gt := bits[0], bits[1]
	switch op {
	case common.Ge:
		return ge
	case common.Gt:
		return gt
	case common.Lt:
		return !ge
	case common.Le:
		return !gt
	case common.Eq:
		return ge && !gt
	case common.Ne:
		return !ge || gt
	}
	return false
}

// choose returns the child taken at an internal node: the first pair whose
// primary holds, child 0 otherwise. Each pair's mirror must disagree with
// its primary.
func choose(entries []common.NodeInfo, outcomes [][]bool) (int, error) {
	child := 0
	for i := 0; i+1 < len(entries); i += 2 {
		mirror := entries[i].(common.Comparison)
		primary := entries[i+1].(common.Comparison)
		m := entryHolds(mirror.Op, outcomes[i])
		p := entryHolds(primary.Op, outcomes[i+1])
		if m == p {
			return 0, common.ProtocolError("mirror and primary comparisons agree", nil)
		}
		if p && child == 0 {
			child = i/2 + 1
		}
	}
	return child, nil
}

// NewLevelSiteConfig builds the configuration of a level-site serving ls.
func NewLevelSiteConfig(ls *common.LevelSite, inbound, outbound []byte, policy Policy, stats *monitor.SiteStats) (*ResponderConfig, error) {
	ix, err := core.NewLevelIndex(ls)
	if err != nil {
		return nil, err
	}
	return &ResponderConfig{
		Levels:      []*core.LevelIndex{ix},
		InboundKey:  inbound,
		OutboundKey: outbound,
		Policy:      policy,
		Stats:       stats,
	}, nil
}

// NewCombinedConfig builds a responder that walks every level itself.
func NewCombinedConfig(levels []common.LevelSite, policy Policy, stats *monitor.SiteStats) (*ResponderConfig, error) {
	cfg := &ResponderConfig{Combined: true, Policy: policy, Stats: stats}
	for i := range levels {
		ix, err := core.NewLevelIndex(&levels[i])
		if err != nil {
			return nil, err
		}
		cfg.Levels = append(cfg.Levels, ix)
	}
	return cfg, nil
}
