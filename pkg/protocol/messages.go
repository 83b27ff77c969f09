package protocol

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"math"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/features"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/oracle"
)

// Opcodes sent by a responder during the compare loop. Non-negative values
// are oracle.Backend selectors.
const (
	OpcodeDone   int32 = -1
	OpcodeNoData int32 = -2
)

// Setup carries the client's public keys to the authority.
type Setup struct {
	PaillierKey []byte
	ElGamalKey  []byte
}

// Classes lists every class label of the deployed tree.
type Classes struct {
	Labels []string
}

// Ready tells the client that every level-site has acknowledged its data.
type Ready struct {
	OK bool
}

// Train hands one level to a level-site together with the keys of the
// edges into and out of it.
// MAC authenticates the message under the secret shared by the authority
// and its level-sites; see Sign.
type Train struct {
	Level       Level
	InboundKey  []byte
	OutboundKey []byte
	MAC         []byte
}

type Ack struct {
	OK      bool
	Message string
}

// Evaluate opens a round.
type Evaluate struct {
	Session     string
	PaillierKey []byte
	ElGamalKey  []byte
	Precision   int32
	Features    []Feature
	Pointer     *Pointer
}

type Feature struct {
	Name     string
	Paillier []byte
	Bits     [][]byte
}

type Pointer struct {
	IV         []byte
	Ciphertext []byte
}

type Opcode struct {
	Code int32
}

// Challenge is one oracle challenge; the backend is the preceding opcode.
type Challenge struct {
	Values [][]byte
}

// Reply carries the initiator's encrypted low bits in a masked comparison.
type Reply struct {
	Values [][]byte
}

type Bit struct {
	Value bool
}

// Result closes a round: a hashed label when Terminal, a pointer otherwise.
type Result struct {
	Terminal  bool
	LabelHash string
	Pointer   *Pointer
}

type ErrorMsg struct {
	Message string
}

// Level is the wire form of common.LevelSite.
type Level struct {
	Depth      int32
	Nodes      []Node
	Spans      []int32
	Successors []string
}

// Node kinds on the wire.
const (
	NodeLeaf       int32 = 1
	NodeComparison int32 = 2
)

type Node struct {
	Kind      int32
	Label     string
	Variable  string
	Op        int32
	Threshold float64
}

// FromLevelSite converts a level for transmission.
func FromLevelSite(ls *common.LevelSite) (*Level, error) {
	out := &Level{
		Depth:      int32(ls.Depth),
		Nodes:      make([]Node, 0, len(ls.Nodes)),
		Successors: append([]string(nil), ls.Successors...),
	}
	for _, n := range ls.Nodes {
		switch v := n.(type) {
		case common.Leaf:
			out.Nodes = append(out.Nodes, Node{Kind: NodeLeaf, Label: v.Label})
		case common.Comparison:
			out.Nodes = append(out.Nodes, Node{Kind: NodeComparison, Variable: v.Variable,
				Op: int32(v.Op), Threshold: v.Threshold})
		default:
			return nil, common.EncodingError(fmt.Sprintf("unknown node type %T", n), nil)
		}
	}
	for _, s := range ls.Spans {
		out.Spans = append(out.Spans, int32(s))
	}
	return out, nil
}

// LevelSite converts a received level back, checking that spans cover the
// node list.
func (l *Level) LevelSite() (*common.LevelSite, error) {
	ls := &common.LevelSite{
		Depth:      int(l.Depth),
		Successors: append([]string(nil), l.Successors...),
	}
	for i, n := range l.Nodes {
		switch n.Kind {
		case NodeLeaf:
			ls.Nodes = append(ls.Nodes, common.Leaf{Label: n.Label})
		case NodeComparison:
			op := common.Operator(n.Op)
			if !op.Valid() {
				return nil, common.ProtocolError(fmt.Sprintf("node %d: invalid operator %d", i, n.Op), nil)
			}
			ls.Nodes = append(ls.Nodes, common.Comparison{Variable: n.Variable, Op: op, Threshold: n.Threshold})
		default:
			return nil, common.ProtocolError(fmt.Sprintf("node %d: unknown kind %d", i, n.Kind), nil)
		}
	}
	total := 0
	for _, s := range l.Spans {
		if s <= 0 {
			return nil, common.ProtocolError(fmt.Sprintf("invalid span %d", s), nil)
		}
		ls.Spans = append(ls.Spans, int(s))
		total += int(s)
	}
	if total != len(ls.Nodes) {
		return nil, common.ProtocolError(fmt.Sprintf("spans cover %d of %d nodes", total, len(ls.Nodes)), nil)
	}
	return ls, nil
}

func FromPointer(p *common.Pointer) *Pointer {
	if p == nil {
		return nil
	}
	return &Pointer{IV: p.IV, Ciphertext: p.Ciphertext}
}

func (p *Pointer) Common() *common.Pointer {
	if p == nil {
		return nil
	}
	return &common.Pointer{IV: p.IV, Ciphertext: p.Ciphertext}
}

// NewSetup wraps the client's public keys.
func NewSetup(pub oracle.PublicKeys) (*Setup, error) {
	pk, ek, err := pub.Marshal()
	if err != nil {
		return nil, common.EncodingError("encoding public keys", err)
	}
	return &Setup{PaillierKey: pk, ElGamalKey: ek}, nil
}

func (s *Setup) Keys() (oracle.PublicKeys, error) {
	pub, err := oracle.UnmarshalPublicKeys(s.PaillierKey, s.ElGamalKey)
	if err != nil {
		return oracle.PublicKeys{}, common.ProtocolError("decoding public keys", err)
	}
	return pub, nil
}

// NewEvaluate builds the opening message of a round.
func NewEvaluate(session string, pub oracle.PublicKeys, precision int, vec features.Vector, ptr *common.Pointer) (*Evaluate, error) {
	pk, ek, err := pub.Marshal()
	if err != nil {
		return nil, common.EncodingError("encoding public keys", err)
	}
	msg := &Evaluate{
		Session:     session,
		PaillierKey: pk,
		ElGamalKey:  ek,
		Precision:   int32(precision),
		Pointer:     FromPointer(ptr),
	}
	for _, name := range vec.Names() {
		p, bits, err := vec[name].Marshal()
		if err != nil {
			return nil, common.EncodingError(fmt.Sprintf("encoding feature %q", name), err)
		}
		msg.Features = append(msg.Features, Feature{Name: name, Paillier: p, Bits: bits})
	}
	return msg, nil
}

func (e *Evaluate) Keys() (oracle.PublicKeys, error) {
	pub, err := oracle.UnmarshalPublicKeys(e.PaillierKey, e.ElGamalKey)
	if err != nil {
		return oracle.PublicKeys{}, common.ProtocolError("decoding public keys", err)
	}
	return pub, nil
}

// Vector decodes the encrypted features.
func (e *Evaluate) Vector() (features.Vector, error) {
	vec := make(features.Vector, len(e.Features))
	for _, f := range e.Features {
		ct, err := oracle.UnmarshalCiphertexts(f.Paillier, f.Bits)
		if err != nil {
			return nil, common.ProtocolError(fmt.Sprintf("decoding feature %q", f.Name), err)
		}
		vec[f.Name] = ct
	}
	return vec, nil
}

// Sign sets t.MAC to an HMAC-SHA256 of the level and keys under secret.
func (t *Train) Sign(secret []byte) {
	t.MAC = t.digest(secret)
}

// Verify checks t.MAC against secret. An empty secret accepts any message.
func (t *Train) Verify(secret []byte) error {
	if len(secret) == 0 {
		return nil
	}
	if len(t.MAC) == 0 {
		return common.ProtocolError("unauthenticated training data", nil)
	}
	if !hmac.Equal(t.MAC, t.digest(secret)) {
		return common.ProtocolError("training data failed authentication", nil)
	}
	return nil
}

func (t *Train) digest(secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	putInt(mac, int64(t.Level.Depth))
	putInt(mac, int64(len(t.Level.Nodes)))
	for _, n := range t.Level.Nodes {
		putInt(mac, int64(n.Kind))
		putBytes(mac, []byte(n.Label))
		putBytes(mac, []byte(n.Variable))
		putInt(mac, int64(n.Op))
		putInt(mac, int64(math.Float64bits(n.Threshold)))
	}
	putInt(mac, int64(len(t.Level.Spans)))
	for _, s := range t.Level.Spans {
		putInt(mac, int64(s))
	}
	putInt(mac, int64(len(t.Level.Successors)))
	for _, s := range t.Level.Successors {
		putBytes(mac, []byte(s))
	}
	putBytes(mac, t.InboundKey)
	putBytes(mac, t.OutboundKey)
	return mac.Sum(nil)
}

func putInt(h hash.Hash, v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	h.Write(buf[:])
}

func putBytes(h hash.Hash, b []byte) {
	putInt(h, int64(len(b)))
	h.Write(b)
}
