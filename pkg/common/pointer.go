package common

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/xerrors"
)

const (
	PointerKeySize = 32
	pointerInfo    = "ppdt-level-pointer-v1"
)

// Pointer is the opaque "current node" reference handed to the client between
// rounds. Only the level-site that issued it and its successor hold the key.
type Pointer struct {
	IV         []byte
	Ciphertext []byte
}

// DerivePointerKey derives the key shared between the level-sites at depth
// and depth+1.
func DerivePointerKey(master []byte, depth int) ([]byte, error) {
	info := fmt.Sprintf("%s/%d", pointerInfo, depth)
	r := hkdf.New(sha256.New, master, nil, []byte(info))
	key := make([]byte, PointerKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, xerrors.Errorf("deriving pointer key: %v", err)
	}
	return key, nil
}

// LevelKeys returns the inbound and outbound pointer keys of the level at
// depth in a tree of the given number of levels. The root has no inbound key
// and the deepest level no outbound key.
func LevelKeys(master []byte, depth, levels int) (in, out []byte, err error) {
	if depth > 0 {
		if in, err = DerivePointerKey(master, depth-1); err != nil {
			return nil, nil, err
		}
	}
	if depth+1 < levels {
		if out, err = DerivePointerKey(master, depth); err != nil {
			return nil, nil, err
		}
	}
	return in, out, nil
}

func pointerAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != PointerKeySize {
		return nil, xerrors.Errorf("pointer key must be %d bytes, got %d", PointerKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func depthAD(depth int) []byte {
	ad := make([]byte, 4)
	binary.BigEndian.PutUint32(ad, uint32(depth))
	return ad
}

// SealPointer encrypts the node ordinal addressed at the given depth.
func SealPointer(key []byte, depth, ordinal int, rand io.Reader) (*Pointer, error) {
	gcm, err := pointerAEAD(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand, iv); err != nil {
		return nil, xerrors.Errorf("pointer nonce: %v", err)
	}
	plain := make([]byte, 4)
	binary.BigEndian.PutUint32(plain, uint32(ordinal))
	return &Pointer{
		IV:         iv,
		Ciphertext: gcm.Seal(nil, iv, plain, depthAD(depth)),
	}, nil
}

// OpenPointer returns the node ordinal sealed for depth. It fails if the
// pointer was issued for another depth or under another key.
func OpenPointer(key []byte, depth int, p *Pointer) (int, error) {
	gcm, err := pointerAEAD(key)
	if err != nil {
		return 0, err
	}
	if p == nil || len(p.IV) != gcm.NonceSize() {
		return 0, xerrors.New("malformed pointer")
	}
	plain, err := gcm.Open(nil, p.IV, p.Ciphertext, depthAD(depth))
	if err != nil {
		return 0, xerrors.Errorf("opening pointer: %v", err)
	}
	if len(plain) != 4 {
		return 0, xerrors.New("malformed pointer payload")
	}
	return int(binary.BigEndian.Uint32(plain)), nil
}
