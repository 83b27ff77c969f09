// Package elgamal implements exponential (additively homomorphic) ElGamal
// over Ed25519. A message m is encrypted as (kB, mB + kP); decryption only
// supports testing whether the plaintext is zero.
package elgamal

import (
	"io"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/util/random"
	"golang.org/x/xerrors"
)

// Suite is the group every key and ciphertext lives in.
var Suite = edwards25519.NewBlakeSHA256Ed25519()

type Ciphertext struct {
	K kyber.Point
	C kyber.Point
}

type KeyPair struct {
	Private kyber.Scalar
	Public  kyber.Point
}

func GenerateKey(r io.Reader) *KeyPair {
	x := Suite.Scalar().Pick(random.New(r))
	return &KeyPair{Private: x, Public: Suite.Point().Mul(x, nil)}
}

// Encrypt encrypts the small integer m under public.
func Encrypt(r io.Reader, public kyber.Point, m int64) *Ciphertext {
	M := Suite.Point().Mul(Suite.Scalar().SetInt64(m), nil)
	k := Suite.Scalar().Pick(random.New(r))
	K := Suite.Point().Mul(k, nil)
	S := Suite.Point().Mul(k, public)
	return &Ciphertext{K: K, C: S.Add(S, M)}
}

// Trivial returns the deterministic encryption of m with zero randomness.
func Trivial(m int64) *Ciphertext {
	return &Ciphertext{
		K: Suite.Point().Null(),
		C: Suite.Point().Mul(Suite.Scalar().SetInt64(m), nil),
	}
}

// IsZero reports whether ct decrypts to zero.
func (kp *KeyPair) IsZero(ct *Ciphertext) bool {
	S := Suite.Point().Mul(kp.Private, ct.K)
	M := Suite.Point().Sub(ct.C, S)
	return M.Equal(Suite.Point().Null())
}

// Add returns an encryption of a+b.
func Add(a, b *Ciphertext) *Ciphertext {
	return &Ciphertext{
		K: Suite.Point().Add(a.K, b.K),
		C: Suite.Point().Add(a.C, b.C),
	}
}

// Neg returns an encryption of -a.
func Neg(a *Ciphertext) *Ciphertext {
	return &Ciphertext{K: Suite.Point().Neg(a.K), C: Suite.Point().Neg(a.C)}
}

// AddPlain returns an encryption of a+m.
func AddPlain(a *Ciphertext, m int64) *Ciphertext {
	M := Suite.Point().Mul(Suite.Scalar().SetInt64(m), nil)
	return &Ciphertext{K: a.K.Clone(), C: Suite.Point().Add(a.C, M)}
}

// Mul returns an encryption of s*a.
func Mul(a *Ciphertext, s kyber.Scalar) *Ciphertext {
	return &Ciphertext{K: Suite.Point().Mul(s, a.K), C: Suite.Point().Mul(s, a.C)}
}

// MulInt64 returns an encryption of s*a for a small constant.
func MulInt64(a *Ciphertext, s int64) *Ciphertext {
	return Mul(a, Suite.Scalar().SetInt64(s))
}

// Rerandomize adds a fresh encryption of zero.
func Rerandomize(r io.Reader, public kyber.Point, a *Ciphertext) *Ciphertext {
	return Add(a, Encrypt(r, public, 0))
}

// RandomNonZero picks a uniformly random non-zero scalar.
func RandomNonZero(r io.Reader) kyber.Scalar {
	zero := Suite.Scalar().Zero()
	for {
		s := Suite.Scalar().Pick(random.New(r))
		if !s.Equal(zero) {
			return s
		}
	}
}

// MarshalBinary encodes the ciphertext as K || C.
func (ct *Ciphertext) MarshalBinary() ([]byte, error) {
	k, err := ct.K.MarshalBinary()
	if err != nil {
		return nil, err
	}
	c, err := ct.C.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(k, c...), nil
}

func UnmarshalCiphertext(buf []byte) (*Ciphertext, error) {
	size := Suite.PointLen()
	if len(buf) != 2*size {
		return nil, xerrors.Errorf("elgamal ciphertext must be %d bytes, got %d", 2*size, len(buf))
	}
	K, C := Suite.Point(), Suite.Point()
	if err := K.UnmarshalBinary(buf[:size]); err != nil {
		return nil, xerrors.Errorf("decoding K: %v", err)
	}
	if err := C.UnmarshalBinary(buf[size:]); err != nil {
		return nil, xerrors.Errorf("decoding C: %v", err)
	}
	return &Ciphertext{K: K, C: C}, nil
}

func MarshalPublic(p kyber.Point) ([]byte, error) {
	return p.MarshalBinary()
}

func UnmarshalPublic(buf []byte) (kyber.Point, error) {
	p := Suite.Point()
	if err := p.UnmarshalBinary(buf); err != nil {
		return nil, xerrors.Errorf("decoding elgamal public key: %v", err)
	}
	return p, nil
}

func (kp *KeyPair) MarshalBinary() ([]byte, error) {
	return kp.Private.MarshalBinary()
}

func UnmarshalKeyPair(buf []byte) (*KeyPair, error) {
	x := Suite.Scalar()
	if err := x.UnmarshalBinary(buf); err != nil {
		return nil, xerrors.Errorf("decoding elgamal private key: %v", err)
	}
	return &KeyPair{Private: x, Public: Suite.Point().Mul(x, nil)}, nil
}
