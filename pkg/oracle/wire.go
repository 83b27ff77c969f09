package oracle

import (
	"crypto/rand"
	"io"
	"math/big"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/crypto/elgamal"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/crypto/paillier"
	"golang.org/x/xerrors"
)

// Marshal encodes both public keys for the wire.
func (pub PublicKeys) Marshal() (paillierKey, elgamalKey []byte, err error) {
	if pub.Paillier == nil || pub.ElGamal == nil {
		return nil, nil, xerrors.New("incomplete public keys")
	}
	if paillierKey, err = pub.Paillier.MarshalBinary(); err != nil {
		return nil, nil, err
	}
	if elgamalKey, err = elgamal.MarshalPublic(pub.ElGamal); err != nil {
		return nil, nil, err
	}
	return paillierKey, elgamalKey, nil
}

func UnmarshalPublicKeys(paillierKey, elgamalKey []byte) (PublicKeys, error) {
	pk, err := paillier.UnmarshalPublicKey(paillierKey)
	if err != nil {
		return PublicKeys{}, err
	}
	ek, err := elgamal.UnmarshalPublic(elgamalKey)
	if err != nil {
		return PublicKeys{}, err
	}
	return PublicKeys{Paillier: pk, ElGamal: ek}, nil
}

// Marshal encodes a value's ciphertexts for the wire.
func (c *Ciphertexts) Marshal() ([]byte, [][]byte, error) {
	bits := make([][]byte, len(c.Bits))
	for i, b := range c.Bits {
		buf, err := b.MarshalBinary()
		if err != nil {
			return nil, nil, err
		}
		bits[i] = buf
	}
	return c.Paillier.Bytes(), bits, nil
}

func UnmarshalCiphertexts(paillierCt []byte, bits [][]byte) (*Ciphertexts, error) {
	if len(bits) != BitWidth {
		return nil, xerrors.Errorf("expected %d bit ciphertexts, got %d", BitWidth, len(bits))
	}
	out := &Ciphertexts{
		Paillier: new(big.Int).SetBytes(paillierCt),
		Bits:     make([]*elgamal.Ciphertext, len(bits)),
	}
	for i, buf := range bits {
		ct, err := elgamal.UnmarshalCiphertext(buf)
		if err != nil {
			return nil, xerrors.Errorf("bit %d: %v", i, err)
		}
		out.Bits[i] = ct
	}
	return out, nil
}

func randomBit(random io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(random, b[:]); err != nil {
		return false, xerrors.Errorf("reading randomness: %v", err)
	}
	return b[0]&1 == 1, nil
}

// randomRange returns a uniform integer in [lo, hi).
func randomRange(random io.Reader, lo, hi *big.Int) (*big.Int, error) {
	span := new(big.Int).Sub(hi, lo)
	if span.Sign() <= 0 {
		return new(big.Int).Set(lo), nil
	}
	v, err := rand.Int(random, span)
	if err != nil {
		return nil, xerrors.Errorf("reading randomness: %v", err)
	}
	return v.Add(v, lo), nil
}

func shuffle(random io.Reader, terms []*elgamal.Ciphertext) error {
	for i := len(terms) - 1; i > 0; i-- {
		j, err := rand.Int(random, big.NewInt(int64(i+1)))
		if err != nil {
			return xerrors.Errorf("reading randomness: %v", err)
		}
		k := int(j.Int64())
		terms[i], terms[k] = terms[k], terms[i]
	}
	return nil
}
