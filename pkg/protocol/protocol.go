// Package protocol frames the messages exchanged between the client, the
// authority and the level-sites.
//
// Frame layout: magic(1) | op(1) | length(4, big endian) | payload. Payloads
// are protobuf-encoded message structs.
package protocol

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

const (
	MagicNumber = 0x50

	OpSetup     = 0x01
	OpClasses   = 0x02
	OpReady     = 0x03
	OpTrain     = 0x04
	OpAck       = 0x05
	OpEvaluate  = 0x06
	OpOpcode    = 0x07
	OpChallenge = 0x08
	OpBit       = 0x09
	OpResult    = 0x0A
	OpReply     = 0x0B
	OpError     = 0xFF

	// MaxPayload bounds a single frame. Evaluate frames carry every feature
	// encrypted bit by bit and are the largest.
	MaxPayload = 64 << 20

	headerSize = 6
)

var (
	ErrInvalidMagic = xerrors.New("invalid magic number")
	ErrTooLarge     = xerrors.New("frame exceeds maximum payload")
)

type Packet struct {
	Op      byte
	Payload []byte
}

// Encode writes one frame with a single Write call.
func Encode(w io.Writer, op byte, payload []byte) error {
	if len(payload) > MaxPayload {
		return ErrTooLarge
	}
	buf := make([]byte, headerSize+len(payload))
	buf[0] = MagicNumber
	buf[1] = op
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(payload)))
	copy(buf[headerSize:], payload)
	_, err := w.Write(buf)
	return err
}

func Decode(r io.Reader) (*Packet, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	if header[0] != MagicNumber {
		return nil, ErrInvalidMagic
	}

	op := header[1]
	n := binary.BigEndian.Uint32(header[2:6])
	if n > MaxPayload {
		return nil, ErrTooLarge
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return &Packet{Op: op, Payload: payload}, nil
}

// OpName returns a readable name for logs.
func OpName(op byte) string {
	switch op {
	case OpSetup:
		return "setup"
	case OpClasses:
		return "classes"
	case OpReady:
		return "ready"
	case OpTrain:
		return "train"
	case OpAck:
		return "ack"
	case OpEvaluate:
		return "evaluate"
	case OpOpcode:
		return "opcode"
	case OpChallenge:
		return "challenge"
	case OpBit:
		return "bit"
	case OpResult:
		return "result"
	case OpReply:
		return "reply"
	case OpError:
		return "error"
	}
	return "unknown"
}
