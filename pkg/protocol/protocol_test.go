package protocol

import (
	"bytes"
	"io"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	buf := new(bytes.Buffer)
	payload := []byte("hello")

	if err := Encode(buf, OpEvaluate, payload); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if buf.Len() != headerSize+len(payload) {
		t.Fatalf("frame length %d", buf.Len())
	}

	pkt, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if pkt.Op != OpEvaluate {
		t.Errorf("got op %v, want %v", pkt.Op, OpEvaluate)
	}
	if !bytes.Equal(pkt.Payload, payload) {
		t.Errorf("payload mismatch: got %q", string(pkt.Payload))
	}
}

func TestDecodeInvalidMagic(t *testing.T) {
	buf := bytes.NewReader([]byte{0x00, OpAck, 0, 0, 0, 5, 'h', 'e', 'l', 'l', 'o'})
	_, err := Decode(buf)
	if err != ErrInvalidMagic {
		t.Errorf("expected invalid magic error, got %v", err)
	}
}

func TestDecodeTooLarge(t *testing.T) {
	buf := bytes.NewReader([]byte{MagicNumber, OpAck, 0xFF, 0xFF, 0xFF, 0xFF})
	if _, err := Decode(buf); err != ErrTooLarge {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestEncodeDecodeEmptyPayload(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := Encode(buf, OpReady, nil); err != nil {
		t.Fatalf("Encode empty failed: %v", err)
	}
	pkt, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if pkt.Op != OpReady || len(pkt.Payload) != 0 {
		t.Errorf("unexpected result: %+v", pkt)
	}
}

func TestRoundtripAllOps(t *testing.T) {
	ops := []byte{OpSetup, OpClasses, OpReady, OpTrain, OpAck, OpEvaluate,
		OpOpcode, OpChallenge, OpBit, OpResult, OpReply, OpError}
	payload := []byte("test-value")

	for _, op := range ops {
		buf := new(bytes.Buffer)
		if err := Encode(buf, op, payload); err != nil {
			t.Errorf("Encode op %v failed: %v", op, err)
			continue
		}
		pkt, err := Decode(buf)
		if err != nil {
			t.Errorf("Decode op %v failed: %v", op, err)
			continue
		}
		if pkt.Op != op {
			t.Errorf("op %v: got %v", op, pkt.Op)
		}
		if OpName(op) == "unknown" {
			t.Errorf("op %v has no name", op)
		}
	}
}

func TestDecodeIncompleteHeader(t *testing.T) {
	r := bytes.NewReader([]byte{MagicNumber, OpAck})
	_, err := Decode(r)
	if err != io.ErrUnexpectedEOF {
		t.Errorf("expected unexpected EOF for incomplete header, got %v", err)
	}
}
