package protocol

import (
	"fmt"
	"io"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"go.dedis.ch/onet/v3/log"
	"go.dedis.ch/protobuf"
	"golang.org/x/xerrors"
)

// Conn exchanges protobuf messages over a framed stream.
type Conn struct {
	rw io.ReadWriter
}

func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{rw: rw}
}

// Send encodes msg and writes it as one frame.
func (c *Conn) Send(op byte, msg interface{}) error {
	buf, err := protobuf.Encode(msg)
	if err != nil {
		return common.EncodingError("encoding "+OpName(op), err)
	}
	log.Lvl4("sending", OpName(op), len(buf), "bytes")
	if err := Encode(c.rw, op, buf); err != nil {
		return common.TransportError("sending "+OpName(op), err)
	}
	return nil
}

// SendError reports a failure to the peer. Write errors are only logged
// since the connection is being abandoned anyway.
func (c *Conn) SendError(err error) {
	if sendErr := c.Send(OpError, &ErrorMsg{Message: err.Error()}); sendErr != nil {
		log.Lvl2("could not report error to peer:", sendErr)
	}
}

// Next reads the next frame whatever its op.
func (c *Conn) Next() (*Packet, error) {
	pkt, err := Decode(c.rw)
	switch {
	case err == nil:
		return pkt, nil
	case xerrors.Is(err, io.EOF), xerrors.Is(err, io.ErrUnexpectedEOF):
		return nil, common.ProtocolError("stream ended", err)
	case xerrors.Is(err, ErrInvalidMagic), xerrors.Is(err, ErrTooLarge):
		return nil, common.ProtocolError("bad frame", err)
	}
	return nil, common.TransportError("reading frame", err)
}

// Receive reads the next frame, checks its op and decodes it into msg. An
// Error frame from the peer is returned as a protocol error.
func (c *Conn) Receive(op byte, msg interface{}) error {
	pkt, err := c.Next()
	if err != nil {
		return err
	}
	return Unmarshal(pkt, op, msg)
}

// Unmarshal decodes an already read frame into msg.
func Unmarshal(pkt *Packet, op byte, msg interface{}) error {
	if pkt.Op == OpError && op != OpError {
		var remote ErrorMsg
		if err := protobuf.Decode(pkt.Payload, &remote); err != nil {
			return common.ProtocolError("peer sent an unreadable error", err)
		}
		return common.ProtocolError("peer failed", xerrors.New(remote.Message))
	}
	if pkt.Op != op {
		return common.ProtocolError(fmt.Sprintf("expected %s, got %s", OpName(op), OpName(pkt.Op)), nil)
	}
	if err := protobuf.Decode(pkt.Payload, msg); err != nil {
		return common.ProtocolError("decoding "+OpName(op), err)
	}
	return nil
}
