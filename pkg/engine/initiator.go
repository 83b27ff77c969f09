package engine

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/oracle"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/protocol"
	"go.dedis.ch/onet/v3/log"
)

type InitiatorState int

const (
	AwaitFeatures InitiatorState = iota
	CompareLoop
	Resolve
	Terminal
	Continue
	NoData
)

func (s InitiatorState) String() string {
	switch s {
	case AwaitFeatures:
		return "await-features"
	case CompareLoop:
		return "compare-loop"
	case Resolve:
		return "resolve"
	case Terminal:
		return "terminal"
	case Continue:
		return "continue"
	case NoData:
		return "no-data"
	}
	return "unknown"
}

// Final reports whether the round is over.
func (s InitiatorState) Final() bool {
	return s == Terminal || s == Continue || s == NoData
}

// Outcome is what a finished round hands back to the session.
type Outcome struct {
	State       InitiatorState
	LabelHash   string
	Pointer     *common.Pointer
	Comparisons int
}

// Initiator is the client side of one round. It answers comparison
// challenges with its private keys and never sees a plaintext outcome.
type Initiator struct {
	conn  *protocol.Conn
	keys  *oracle.KeyPair
	msg   *protocol.Evaluate
	state InitiatorState
	out   Outcome
}

// NewInitiator prepares a round that opens with msg.
func NewInitiator(conn *protocol.Conn, keys *oracle.KeyPair, msg *protocol.Evaluate) *Initiator {
	return &Initiator{conn: conn, keys: keys, msg: msg, state: AwaitFeatures}
}

func (in *Initiator) State() InitiatorState {
	return in.state
}

// Run steps the round until it is final. A no-data round returns
// common.ErrNoData along with its outcome.
func (in *Initiator) Run(ctx context.Context) (*Outcome, error) {
	for !in.state.Final() {
		if err := ctx.Err(); err != nil {
			return nil, common.TransportError("round cancelled", err)
		}
		if err := in.Step(); err != nil {
			return nil, err
		}
	}
	in.out.State = in.state
	if in.state == NoData {
		return &in.out, common.ErrNoData
	}
	return &in.out, nil
}

// Step performs one transition.
func (in *Initiator) Step() error {
	switch in.state {
	case AwaitFeatures:
		if err := in.conn.Send(protocol.OpEvaluate, in.msg); err != nil {
			return err
		}
		in.state = CompareLoop
		return nil

	case CompareLoop:
		var op protocol.Opcode
		if err := in.conn.Receive(protocol.OpOpcode, &op); err != nil {
			return err
		}
		switch op.Code {
		case protocol.OpcodeDone:
			in.state = Resolve
			return nil
		case protocol.OpcodeNoData:
			in.state = NoData
			return nil
		case int32(oracle.BackendPaillier), int32(oracle.BackendElGamal):
			return in.answer(oracle.Backend(op.Code))
		}
		return common.ProtocolError(fmt.Sprintf("unexpected opcode %d", op.Code), nil)

	case Resolve:
		var res protocol.Result
		if err := in.conn.Receive(protocol.OpResult, &res); err != nil {
			return err
		}
		if res.Terminal {
			if res.LabelHash == "" {
				return common.ProtocolError("terminal result without label", nil)
			}
			in.out.LabelHash = res.LabelHash
			in.state = Terminal
			return nil
		}
		if res.Pointer == nil {
			return common.ProtocolError("non-terminal result without pointer", nil)
		}
		in.out.Pointer = res.Pointer.Common()
		in.state = Continue
		return nil
	}
	return common.ProtocolError("step on a finished round", nil)
}

func (in *Initiator) answer(backend oracle.Backend) error {
	var ch protocol.Challenge
	if err := in.conn.Receive(protocol.OpChallenge, &ch); err != nil {
		return err
	}
	bit, err := in.solve(&oracle.Challenge{Backend: backend, Values: ch.Values})
	if err != nil {
		if common.IsKind(err, common.KindTransport) {
			return err
		}
		return common.ProtocolError("answering "+backend.String()+" challenge", err)
	}
	in.out.Comparisons++
	log.Lvl4("answered comparison", in.out.Comparisons, "with", backend)
	return in.conn.Send(protocol.OpBit, &protocol.Bit{Value: bit})
}

// solve computes the masked bit, taking the extra exchange of masked
// backends.
func (in *Initiator) solve(ch *oracle.Challenge) (bool, error) {
	if !ch.Backend.Masked() {
		return oracle.Answer(in.keys, ch)
	}
	reply, pending, err := oracle.Unmask(rand.Reader, in.keys, ch)
	if err != nil {
		return false, err
	}
	if err := in.conn.Send(protocol.OpReply, &protocol.Reply{Values: reply.Values}); err != nil {
		return false, err
	}
	var second protocol.Challenge
	if err := in.conn.Receive(protocol.OpChallenge, &second); err != nil {
		return false, err
	}
	return pending.Answer(in.keys, &oracle.Challenge{Backend: ch.Backend, Values: second.Values})
}
