// Package paillier implements the additively homomorphic Paillier
// cryptosystem with g = n+1. Plaintexts are signed: values above n/2
// decrypt as negative numbers.
package paillier

import (
	"crypto/rand"
	"io"
	"math/big"

	"go.dedis.ch/protobuf"
	"golang.org/x/xerrors"
)

var one = big.NewInt(1)

type PublicKey struct {
	N        *big.Int
	NSquared *big.Int
	half     *big.Int
}

type PrivateKey struct {
	PublicKey
	P, Q   *big.Int
	lambda *big.Int
	mu     *big.Int
}

// GenerateKey creates a key pair whose modulus has the given bit length.
func GenerateKey(random io.Reader, bits int) (*PrivateKey, error) {
	if bits < 128 {
		return nil, xerrors.Errorf("paillier key size %d too small", bits)
	}
	for {
		p, err := rand.Prime(random, bits/2)
		if err != nil {
			return nil, xerrors.Errorf("generating p: %v", err)
		}
		q, err := rand.Prime(random, bits-bits/2)
		if err != nil {
			return nil, xerrors.Errorf("generating q: %v", err)
		}
		if p.Cmp(q) == 0 {
			continue
		}
		sk, err := NewPrivateKey(p, q)
		if err != nil {
			continue
		}
		return sk, nil
	}
}

// NewPrivateKey rebuilds a key pair from its primes.
func NewPrivateKey(p, q *big.Int) (*PrivateKey, error) {
	if p.Cmp(one) <= 0 || q.Cmp(one) <= 0 || p.Cmp(q) == 0 {
		return nil, xerrors.New("invalid paillier primes")
	}
	n := new(big.Int).Mul(p, q)
	pm := new(big.Int).Sub(p, one)
	qm := new(big.Int).Sub(q, one)
	phi := new(big.Int).Mul(pm, qm)
	if new(big.Int).GCD(nil, nil, n, phi).Cmp(one) != 0 {
		return nil, xerrors.New("gcd(n, phi(n)) != 1")
	}
	gcd := new(big.Int).GCD(nil, nil, pm, qm)
	lambda := new(big.Int).Div(phi, gcd)
	mu := new(big.Int).ModInverse(lambda, n)
	if mu == nil {
		return nil, xerrors.New("lambda not invertible mod n")
	}
	return &PrivateKey{
		PublicKey: *NewPublicKey(n),
		P:         p,
		Q:         q,
		lambda:    lambda,
		mu:        mu,
	}, nil
}

func NewPublicKey(n *big.Int) *PublicKey {
	return &PublicKey{
		N:        n,
		NSquared: new(big.Int).Mul(n, n),
		half:     new(big.Int).Rsh(n, 1),
	}
}

// Encrypt returns (1 + m*n) * r^n mod n^2 for a fresh random r.
func (pk *PublicKey) Encrypt(random io.Reader, m *big.Int) (*big.Int, error) {
	r, err := pk.randomUnit(random)
	if err != nil {
		return nil, err
	}
	gm := new(big.Int).Mod(m, pk.N)
	gm.Mul(gm, pk.N).Add(gm, one).Mod(gm, pk.NSquared)
	rn := new(big.Int).Exp(r, pk.N, pk.NSquared)
	return gm.Mul(gm, rn).Mod(gm, pk.NSquared), nil
}

// EncryptInt64 is Encrypt for machine integers.
func (pk *PublicKey) EncryptInt64(random io.Reader, m int64) (*big.Int, error) {
	return pk.Encrypt(random, big.NewInt(m))
}

// Add returns an encryption of the sum of both plaintexts.
func (pk *PublicKey) Add(a, b *big.Int) *big.Int {
	c := new(big.Int).Mul(a, b)
	return c.Mod(c, pk.NSquared)
}

// AddPlain adds a known constant, re-randomising the result.
func (pk *PublicKey) AddPlain(random io.Reader, c *big.Int, k *big.Int) (*big.Int, error) {
	ck, err := pk.Encrypt(random, k)
	if err != nil {
		return nil, err
	}
	return pk.Add(c, ck), nil
}

// MulPlain multiplies the plaintext by a known, possibly negative, constant.
func (pk *PublicKey) MulPlain(c *big.Int, k *big.Int) *big.Int {
	e := new(big.Int).Mod(k, pk.N)
	return new(big.Int).Exp(c, e, pk.NSquared)
}

// Valid reports whether c is a well-formed ciphertext for this key.
func (pk *PublicKey) Valid(c *big.Int) bool {
	return c != nil && c.Sign() > 0 && c.Cmp(pk.NSquared) < 0
}

func (pk *PublicKey) randomUnit(random io.Reader) (*big.Int, error) {
	for {
		r, err := rand.Int(random, pk.N)
		if err != nil {
			return nil, xerrors.Errorf("paillier randomness: %v", err)
		}
		if r.Sign() > 0 && new(big.Int).GCD(nil, nil, r, pk.N).Cmp(one) == 0 {
			return r, nil
		}
	}
}

// Decrypt returns the signed plaintext in (-n/2, n/2].
func (sk *PrivateKey) Decrypt(c *big.Int) (*big.Int, error) {
	if !sk.Valid(c) {
		return nil, xerrors.New("ciphertext out of range")
	}
	u := new(big.Int).Exp(c, sk.lambda, sk.NSquared)
	u.Sub(u, one).Div(u, sk.N)
	m := u.Mul(u, sk.mu).Mod(u, sk.N)
	if m.Cmp(sk.half) > 0 {
		m.Sub(m, sk.N)
	}
	return m, nil
}

// Public returns the public half of the key pair.
func (sk *PrivateKey) Public() *PublicKey {
	return &sk.PublicKey
}

type publicWire struct {
	N []byte
}

type privateWire struct {
	P []byte
	Q []byte
}

func (pk *PublicKey) MarshalBinary() ([]byte, error) {
	return protobuf.Encode(&publicWire{N: pk.N.Bytes()})
}

func UnmarshalPublicKey(buf []byte) (*PublicKey, error) {
	var w publicWire
	if err := protobuf.Decode(buf, &w); err != nil {
		return nil, xerrors.Errorf("decoding paillier public key: %v", err)
	}
	n := new(big.Int).SetBytes(w.N)
	if n.BitLen() < 128 {
		return nil, xerrors.New("paillier modulus too small")
	}
	return NewPublicKey(n), nil
}

func (sk *PrivateKey) MarshalBinary() ([]byte, error) {
	return protobuf.Encode(&privateWire{P: sk.P.Bytes(), Q: sk.Q.Bytes()})
}

func UnmarshalPrivateKey(buf []byte) (*PrivateKey, error) {
	var w privateWire
	if err := protobuf.Decode(buf, &w); err != nil {
		return nil, xerrors.Errorf("decoding paillier private key: %v", err)
	}
	return NewPrivateKey(new(big.Int).SetBytes(w.P), new(big.Int).SetBytes(w.Q))
}
