// Package oracle provides the interactive oblivious comparison used by the
// traversal protocol. The responder (level-site) holds an encrypted feature
// and a plaintext threshold and learns the bit [x >= t]; the initiator
// (client) holds the keys and only ever sees a bit masked by a random
// polarity chosen by the responder.
//
// Two backends are available:
//   - Paillier: the responder sends Enc(x - t + 2^l + rho) with rho uniform
//     over l+Sigma bits. The client decrypts and returns the low l bits
//     encrypted bitwise; a DGK-style comparison of those bits against the
//     low bits of rho then yields the borrow, which the client combines
//     with the parity of the high part. This takes two exchanges.
//   - ElGamal: a DGK-style bitwise comparison over exponential ElGamal on
//     the encrypted bits of x; the client reports whether any of the
//     blinded, shuffled terms is zero.
package oracle

import (
	"io"
	"math/big"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/crypto/elgamal"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/crypto/paillier"
	"go.dedis.ch/kyber/v3"
	"golang.org/x/xerrors"
)

// Backend selects the cryptosystem of one comparison. The values double as
// the protocol opcodes.
type Backend int32

const (
	BackendPaillier Backend = 0
	BackendElGamal  Backend = 1
)

// Masked reports whether comparisons on b take an intermediate Reply from
// the initiator.
func (b Backend) Masked() bool {
	return b == BackendPaillier
}

func (b Backend) String() string {
	switch b {
	case BackendPaillier:
		return "paillier"
	case BackendElGamal:
		return "elgamal"
	}
	return "unknown"
}

// BitWidth is the width of the offset plaintext domain of the bitwise backend.
const BitWidth = 48

var offset = int64(1) << (BitWidth - 1)

// Sigma is the statistical security parameter of the Paillier masking: the
// masked difference is within 2^-Sigma of uniform, whatever x - t is.
const Sigma = 40

// maskBits is l: x - t + 2^l lies in (0, 2^(l+1)) for comparable values.
const maskBits = BitWidth

// minModulusBits keeps x - t + 2^l + rho below n/2.
const minModulusBits = maskBits + Sigma + 3

// InRange reports whether v can be compared by both backends.
func InRange(v int64) bool {
	return v > -offset && v < offset
}

type PublicKeys struct {
	Paillier *paillier.PublicKey
	ElGamal  kyber.Point
}

type KeyPair struct {
	Paillier *paillier.PrivateKey
	ElGamal  *elgamal.KeyPair
}

// GenerateKeys creates both key pairs; bits sizes the Paillier modulus.
func GenerateKeys(random io.Reader, bits int) (*KeyPair, error) {
	pk, err := paillier.GenerateKey(random, bits)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Paillier: pk, ElGamal: elgamal.GenerateKey(random)}, nil
}

func (kp *KeyPair) Public() PublicKeys {
	return PublicKeys{Paillier: kp.Paillier.Public(), ElGamal: kp.ElGamal.Public}
}

// Ciphertexts is one value encrypted under both backends. Bits holds the
// encrypted bits of x + 2^(BitWidth-1), least significant first.
type Ciphertexts struct {
	Paillier *big.Int
	Bits     []*elgamal.Ciphertext
}

// EncryptValue encrypts x independently under both backends.
func EncryptValue(random io.Reader, pub PublicKeys, x int64) (*Ciphertexts, error) {
	if !InRange(x) {
		return nil, xerrors.Errorf("value %d outside the comparable range", x)
	}
	c, err := pub.Paillier.EncryptInt64(random, x)
	if err != nil {
		return nil, err
	}
	shifted := uint64(x + offset)
	bits := make([]*elgamal.Ciphertext, BitWidth)
	for i := range bits {
		bits[i] = elgamal.Encrypt(random, pub.ElGamal, int64((shifted>>uint(i))&1))
	}
	return &Ciphertexts{Paillier: c, Bits: bits}, nil
}

// Challenge is the responder's message of one comparison.
type Challenge struct {
	Backend Backend
	Values  [][]byte
}

// Reply is the initiator's intermediate message of a masked comparison: the
// low bits of the masked difference, encrypted bitwise under its ElGamal
// key, least significant first.
type Reply struct {
	Values [][]byte
}

// Secret is the responder-side state needed to read the initiator's bit.
type Secret struct {
	backend Backend
	invert  bool
	flip    bool
	rhoLow  uint64
}

// Outcome returns [x >= t] from the initiator's reply.
func (s *Secret) Outcome(bit bool) bool {
	return bit != s.invert
}

// NewChallenge prepares one comparison of ct against threshold. For masked
// backends the challenge is only the first message; Continue builds the
// second one from the initiator's Reply.
func NewChallenge(random io.Reader, backend Backend, pub PublicKeys, ct *Ciphertexts, threshold int64) (*Challenge, *Secret, error) {
	if !InRange(threshold) {
		return nil, nil, xerrors.Errorf("threshold %d outside the comparable range", threshold)
	}
	flip, err := randomBit(random)
	if err != nil {
		return nil, nil, err
	}
	switch backend {
	case BackendPaillier:
		v, rho, err := maskedDifference(random, pub.Paillier, ct.Paillier, threshold)
		if err != nil {
			return nil, nil, err
		}
		low := new(big.Int).And(rho, lowMask).Uint64()
		highParity := rho.Bit(maskBits) == 1
		secret := &Secret{backend: backend, flip: flip, rhoLow: low, invert: flip != highParity}
		return &Challenge{Backend: backend, Values: [][]byte{v}}, secret, nil
	case BackendElGamal:
		if len(ct.Bits) != BitWidth {
			return nil, nil, xerrors.Errorf("expected %d encrypted bits, got %d", BitWidth, len(ct.Bits))
		}
		xbits := make([]*elgamal.Ciphertext, 0, BitWidth+1)
		xbits = append(xbits, elgamal.Trivial(0))
		xbits = append(xbits, ct.Bits...)
		// X = 2*(x+off) and Y = 2*(t+off)-1 are never equal, so X > Y
		// exactly when x >= t.
		y := uint64(2*(threshold+offset) - 1)
		values, err := dgkTerms(random, pub.ElGamal, xbits, y, polarity(flip))
		if err != nil {
			return nil, nil, err
		}
		return &Challenge{Backend: backend, Values: values}, &Secret{backend: backend, invert: !flip}, nil
	}
	return nil, nil, xerrors.Errorf("unknown backend %d", backend)
}

// Continue answers the initiator's Reply of a masked comparison with the
// bitwise challenge on the low bits.
func (s *Secret) Continue(random io.Reader, pub PublicKeys, r *Reply) (*Challenge, error) {
	if !s.backend.Masked() {
		return nil, xerrors.Errorf("%s comparisons take no reply", s.backend)
	}
	if len(r.Values) != maskBits {
		return nil, xerrors.Errorf("expected %d encrypted bits, got %d", maskBits, len(r.Values))
	}
	// X = 2*zLow+1 and Y = 2*rhoLow are never equal; X < Y exactly when
	// zLow < rhoLow, i.e. when the subtraction borrows.
	xbits := make([]*elgamal.Ciphertext, 0, maskBits+1)
	xbits = append(xbits, elgamal.Trivial(1))
	for i, buf := range r.Values {
		ct, err := elgamal.UnmarshalCiphertext(buf)
		if err != nil {
			return nil, xerrors.Errorf("bit %d: %v", i, err)
		}
		xbits = append(xbits, ct)
	}
	values, err := dgkTerms(random, pub.ElGamal, xbits, s.rhoLow<<1, polarity(s.flip))
	if err != nil {
		return nil, err
	}
	return &Challenge{Backend: s.backend, Values: values}, nil
}

// Pending is the initiator's state between the two exchanges of a masked
// comparison.
type Pending struct {
	highParity bool
}

// Unmask is the initiator's first step of a masked comparison. It decrypts
// the masked difference and encrypts its low bits for the responder.
func Unmask(random io.Reader, kp *KeyPair, ch *Challenge) (*Reply, *Pending, error) {
	if !ch.Backend.Masked() {
		return nil, nil, xerrors.Errorf("%s challenges are answered directly", ch.Backend)
	}
	if len(ch.Values) != 1 {
		return nil, nil, xerrors.Errorf("masked challenge with %d values", len(ch.Values))
	}
	z, err := kp.Paillier.Decrypt(new(big.Int).SetBytes(ch.Values[0]))
	if err != nil {
		return nil, nil, err
	}
	if z.Sign() < 0 || z.BitLen() > maskBits+Sigma+1 {
		return nil, nil, xerrors.New("masked difference out of range")
	}
	low := new(big.Int).And(z, lowMask).Uint64()
	out := make([][]byte, maskBits)
	for i := range out {
		ct := elgamal.Encrypt(random, kp.ElGamal.Public, int64((low>>uint(i))&1))
		buf, err := ct.MarshalBinary()
		if err != nil {
			return nil, nil, err
		}
		out[i] = buf
	}
	return &Reply{Values: out}, &Pending{highParity: z.Bit(maskBits) == 1}, nil
}

// Answer finishes a masked comparison on the responder's second challenge.
func (p *Pending) Answer(kp *KeyPair, ch *Challenge) (bool, error) {
	zero, err := anyZero(kp, ch)
	if err != nil {
		return false, err
	}
	return zero != p.highParity, nil
}

// Answer is the initiator's side of a direct comparison.
func Answer(kp *KeyPair, ch *Challenge) (bool, error) {
	switch ch.Backend {
	case BackendPaillier:
		return false, xerrors.New("masked challenge needs Unmask first")
	case BackendElGamal:
		return anyZero(kp, ch)
	}
	return false, xerrors.Errorf("unknown backend %d", ch.Backend)
}

func anyZero(kp *KeyPair, ch *Challenge) (bool, error) {
	if len(ch.Values) != BitWidth+1 {
		return false, xerrors.Errorf("bitwise challenge with %d values", len(ch.Values))
	}
	zero := false
	for _, buf := range ch.Values {
		ct, err := elgamal.UnmarshalCiphertext(buf)
		if err != nil {
			return false, err
		}
		if kp.ElGamal.IsZero(ct) {
			zero = true
		}
	}
	return zero, nil
}

var lowMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), maskBits), big.NewInt(1))

// maskedDifference returns Enc(x - t + 2^l + rho) and rho, with rho uniform
// in [0, 2^(l+Sigma)).
func maskedDifference(random io.Reader, pk *paillier.PublicKey, c *big.Int, t int64) ([]byte, *big.Int, error) {
	if !pk.Valid(c) {
		return nil, nil, xerrors.New("invalid paillier ciphertext")
	}
	if pk.N.BitLen() < minModulusBits {
		return nil, nil, xerrors.Errorf("paillier modulus below %d bits", minModulusBits)
	}
	rho, err := randomRange(random, big.NewInt(0), new(big.Int).Lsh(big.NewInt(1), maskBits+Sigma))
	if err != nil {
		return nil, nil, err
	}
	shift := new(big.Int).Lsh(big.NewInt(1), maskBits)
	shift.Sub(shift, big.NewInt(t)).Add(shift, rho)
	z, err := pk.AddPlain(random, c, shift)
	if err != nil {
		return nil, nil, err
	}
	return z.Bytes(), rho, nil
}

func polarity(flip bool) int64 {
	if flip {
		return -1
	}
	return 1
}

// dgkTerms compares the encrypted X (bits least significant first) with
// the plaintext Y, X != Y. Term i is
//
//	X_i - Y_i + d + 3 * sum_{j>i} (X_j xor Y_j)
//
// with d = +1 (a zero exists iff X < Y) or d = -1 (iff X > Y). Terms are
// blinded by random non-zero scalars, rerandomised and shuffled.
func dgkTerms(random io.Reader, pub kyber.Point, xbits []*elgamal.Ciphertext, y uint64, d int64) ([][]byte, error) {
	terms := make([]*elgamal.Ciphertext, 0, len(xbits))
	suffix := elgamal.Trivial(0)
	for i := len(xbits) - 1; i >= 0; i-- {
		yi := int64((y >> uint(i)) & 1)
		xi := xbits[i]
		term := elgamal.Add(elgamal.AddPlain(xi, d-yi), elgamal.MulInt64(suffix, 3))
		term = elgamal.Mul(term, elgamal.RandomNonZero(random))
		terms = append(terms, elgamal.Rerandomize(random, pub, term))

		xor := xi
		if yi == 1 {
			xor = elgamal.AddPlain(elgamal.Neg(xi), 1)
		}
		suffix = elgamal.Add(suffix, xor)
	}

	if err := shuffle(random, terms); err != nil {
		return nil, err
	}
	out := make([][]byte, len(terms))
	for i, term := range terms {
		buf, err := term.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out[i] = buf
	}
	return out, nil
}
