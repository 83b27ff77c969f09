package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/core"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/features"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/monitor"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/oracle"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/protocol"
	"go.dedis.ch/onet/v3/log"
)

type ResponderState int

const (
	RespondAwaitFeatures ResponderState = iota
	RespondCompareLoop
	RespondResolve
	RespondDone
)

func (s ResponderState) String() string {
	switch s {
	case RespondAwaitFeatures:
		return "await-features"
	case RespondCompareLoop:
		return "compare-loop"
	case RespondResolve:
		return "resolve"
	case RespondDone:
		return "done"
	}
	return "unknown"
}

// ResponderConfig is the level data and keys a responder serves with. It is
// read-only once built; retraining builds a new one.
type ResponderConfig struct {
	// Levels indexed by depth. A level-site holds a single level; a
	// combined responder holds all of them and Combined is set.
	Levels   []*core.LevelIndex
	Combined bool
	// InboundKey opens pointers issued by the previous level, OutboundKey
	// seals pointers for the next one.
	InboundKey  []byte
	OutboundKey []byte
	Policy      Policy
	Stats       *monitor.SiteStats
	Random      io.Reader
}

func (c *ResponderConfig) random() io.Reader {
	if c.Random == nil {
		return rand.Reader
	}
	return c.Random
}

func (c *ResponderConfig) level(depth int) *core.LevelIndex {
	for _, ix := range c.Levels {
		if ix != nil && ix.Depth() == depth {
			return ix
		}
	}
	return nil
}

// Responder is the level-site side of one round.
type Responder struct {
	cfg   *ResponderConfig
	conn  *protocol.Conn
	first *protocol.Evaluate
	state ResponderState

	session   string
	pub       oracle.PublicKeys
	precision int
	vec       features.Vector

	level    *core.LevelIndex
	node     core.NodeRef
	entries  []common.NodeInfo
	queries  []query
	outcomes [][]bool
	asked    int
	result   *protocol.Result
}

// NewResponder prepares a round on conn. first is the Evaluate message when
// the caller already read it, nil otherwise.
func NewResponder(conn *protocol.Conn, cfg *ResponderConfig, first *protocol.Evaluate) *Responder {
	return &Responder{cfg: cfg, conn: conn, first: first, state: RespondAwaitFeatures}
}

func (r *Responder) State() ResponderState {
	return r.state
}

// Run steps the round to completion. Failures are reported to the peer.
func (r *Responder) Run(ctx context.Context) error {
	for r.state != RespondDone {
		if err := ctx.Err(); err != nil {
			return common.TransportError("round cancelled", err)
		}
		if err := r.Step(); err != nil {
			if r.cfg.Stats != nil {
				r.cfg.Stats.RecordFailure()
			}
			if !common.IsKind(err, common.KindTransport) {
				r.conn.SendError(err)
			}
			r.state = RespondDone
			return err
		}
	}
	return nil
}

// Step performs one transition.
func (r *Responder) Step() error {
	switch r.state {
	case RespondAwaitFeatures:
		return r.awaitFeatures()
	case RespondCompareLoop:
		return r.compare()
	case RespondResolve:
		return r.resolve()
	}
	return common.ProtocolError("step on a finished round", nil)
}

func (r *Responder) awaitFeatures() error {
	msg := r.first
	if msg == nil {
		msg = &protocol.Evaluate{}
		if err := r.conn.Receive(protocol.OpEvaluate, msg); err != nil {
			return err
		}
	}
	if r.cfg.Stats != nil {
		r.cfg.Stats.RecordRound()
	}
	var err error
	if r.pub, err = msg.Keys(); err != nil {
		return err
	}
	if r.vec, err = msg.Vector(); err != nil {
		return err
	}
	r.session = msg.Session
	r.precision = int(msg.Precision)

	ix, ordinal, ok, err := r.locate(msg.Pointer.Common())
	if err != nil {
		return err
	}
	if !ok {
		return r.noData()
	}
	return r.enter(ix, ordinal)
}

// locate finds the node a round starts at. ok is false when this responder
// holds no such node.
func (r *Responder) locate(ptr *common.Pointer) (*core.LevelIndex, int, bool, error) {
	if r.cfg.Combined {
		if ptr != nil {
			return nil, 0, false, common.ProtocolError("pointer sent to a combined responder", nil)
		}
		ix := r.cfg.level(0)
		return ix, 0, ix != nil && !ix.Empty(), nil
	}
	if len(r.cfg.Levels) != 1 || r.cfg.Levels[0] == nil || r.cfg.Levels[0].Empty() {
		return nil, 0, false, nil
	}
	ix := r.cfg.Levels[0]
	if ptr == nil {
		return ix, 0, ix.Depth() == 0, nil
	}
	if ix.Depth() == 0 || r.cfg.InboundKey == nil {
		return nil, 0, false, nil
	}
	ordinal, err := common.OpenPointer(r.cfg.InboundKey, ix.Depth(), ptr)
	if err != nil {
		log.Lvl2(r.session, "rejecting pointer:", err)
		return nil, 0, false, nil
	}
	return ix, ordinal, true, nil
}

func (r *Responder) noData() error {
	log.Lvl2(r.session, "no data for the requested node")
	if r.cfg.Stats != nil {
		r.cfg.Stats.RecordNoData()
	}
	r.state = RespondDone
	return r.conn.Send(protocol.OpOpcode, &protocol.Opcode{Code: protocol.OpcodeNoData})
}

// enter makes the given node current and plans its comparisons.
func (r *Responder) enter(ix *core.LevelIndex, ordinal int) error {
	ref, ok := ix.Lookup(ordinal)
	if !ok {
		return r.noData()
	}
	r.level = ix
	r.node = ref
	r.entries = ix.Entries(ref)
	queries, err := plan(r.entries, r.precision)
	if err != nil {
		return err
	}
	for _, q := range queries {
		if _, ok := r.vec[q.variable]; !ok {
			return common.ProtocolError(fmt.Sprintf("feature %q not supplied", q.variable), nil)
		}
	}
	r.queries = queries
	r.outcomes = make([][]bool, len(r.entries))
	log.Lvl3(r.session, "depth", ix.Depth(), "node", ordinal, "needs", len(queries), "comparisons")
	r.state = RespondCompareLoop
	return nil
}

// compare runs the next comparison of the current node, or moves on to
// Resolve once none is left.
func (r *Responder) compare() error {
	if len(r.queries) == 0 {
		r.state = RespondResolve
		return nil
	}
	q := r.queries[0]
	backend := r.cfg.Policy.backend(r.asked)
	ch, secret, err := oracle.NewChallenge(r.cfg.random(), backend, r.pub, r.vec[q.variable], q.threshold)
	if err != nil {
		return common.ProtocolError("preparing comparison", err)
	}
	if err := r.conn.Send(protocol.OpOpcode, &protocol.Opcode{Code: int32(backend)}); err != nil {
		return err
	}
	if err := r.conn.Send(protocol.OpChallenge, &protocol.Challenge{Values: ch.Values}); err != nil {
		return err
	}
	if backend.Masked() {
		var reply protocol.Reply
		if err := r.conn.Receive(protocol.OpReply, &reply); err != nil {
			return err
		}
		second, err := secret.Continue(r.cfg.random(), r.pub, &oracle.Reply{Values: reply.Values})
		if err != nil {
			return common.ProtocolError("continuing comparison", err)
		}
		if err := r.conn.Send(protocol.OpChallenge, &protocol.Challenge{Values: second.Values}); err != nil {
			return err
		}
	}
	var bit protocol.Bit
	if err := r.conn.Receive(protocol.OpBit, &bit); err != nil {
		return err
	}
	r.outcomes[q.entry] = append(r.outcomes[q.entry], secret.Outcome(bit.Value))
	r.queries = r.queries[1:]
	r.asked++
	if r.cfg.Stats != nil {
		r.cfg.Stats.RecordComparison(backend)
	}
	return nil
}

func (r *Responder) resolve() error {
	if leaf, ok := r.entries[0].(common.Leaf); ok {
		return r.finish(&protocol.Result{Terminal: true, LabelHash: common.HashLabel(leaf.Label)})
	}
	child, err := choose(r.entries, r.outcomes)
	if err != nil {
		return err
	}
	if hash := r.level.Successor(r.node, child); hash != "" {
		return r.finish(&protocol.Result{Terminal: true, LabelHash: hash})
	}

	next := r.node.ChildBase + child
	depth := r.level.Depth() + 1
	if r.cfg.Combined {
		ix := r.cfg.level(depth)
		if ix == nil {
			return common.ProtocolError(fmt.Sprintf("no level at depth %d", depth), nil)
		}
		return r.enter(ix, next)
	}
	if r.cfg.OutboundKey == nil {
		return common.ConfigError("no key for the next level", nil)
	}
	ptr, err := common.SealPointer(r.cfg.OutboundKey, depth, next, r.cfg.random())
	if err != nil {
		return common.ProtocolError("sealing pointer", err)
	}
	return r.finish(&protocol.Result{Pointer: protocol.FromPointer(ptr)})
}

func (r *Responder) finish(res *protocol.Result) error {
	if err := r.conn.Send(protocol.OpOpcode, &protocol.Opcode{Code: protocol.OpcodeDone}); err != nil {
		return err
	}
	if err := r.conn.Send(protocol.OpResult, res); err != nil {
		return err
	}
	if r.cfg.Stats != nil {
		if res.Terminal {
			r.cfg.Stats.RecordTerminal()
		} else {
			r.cfg.Stats.RecordContinue()
		}
	}
	log.Lvl3(r.session, "round done after", r.asked, "comparisons, terminal:", res.Terminal)
	r.result = res
	r.state = RespondDone
	return nil
}

// Comparisons is the number of comparisons run so far.
func (r *Responder) Comparisons() int {
	return r.asked
}

// Result is the message that closed the round, nil before that.
func (r *Responder) Result() *protocol.Result {
	return r.result
}
