// Package storage persists client key material (sqlite) and level-site
// data (bbolt).
package storage

import (
	"database/sql"
	"sync"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/crypto/elgamal"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/crypto/paillier"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/oracle"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"

	_ "modernc.org/sqlite"
)

// Fixed names of the persisted key entries.
const (
	KeyPaillier = "paillier"
	KeyElGamal  = "elgamal"
)

// ErrNoKeys is returned when the store holds no key pair yet.
var ErrNoKeys = xerrors.New("no key material stored")

// KeyStore keeps the client's key pairs and the class list across runs.
type KeyStore struct {
	db *sql.DB
	mu sync.Mutex
}

func OpenKeyStore(path string) (*KeyStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, xerrors.Errorf("opening key store: %v", err)
	}

	query := `
	CREATE TABLE IF NOT EXISTS keys (
		name TEXT PRIMARY KEY,
		value BLOB NOT NULL
	);
	CREATE TABLE IF NOT EXISTS classes (
		position INTEGER PRIMARY KEY,
		label TEXT NOT NULL
	);`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, xerrors.Errorf("initialising key store: %v", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		log.Warn("could not set journal mode:", err)
	}

	return &KeyStore{db: db}, nil
}

// SaveKeys replaces the stored key pairs.
func (s *KeyStore) SaveKeys(kp *oracle.KeyPair) error {
	pk, err := kp.Paillier.MarshalBinary()
	if err != nil {
		return err
	}
	ek, err := kp.ElGamal.MarshalBinary()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT OR REPLACE INTO keys (name, value) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for name, value := range map[string][]byte{KeyPaillier: pk, KeyElGamal: ek} {
		if _, err := stmt.Exec(name, value); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LoadKeys returns ErrNoKeys when either key is missing.
func (s *KeyStore) LoadKeys() (*oracle.KeyPair, error) {
	pk, err := s.read(KeyPaillier)
	if err != nil {
		return nil, err
	}
	ek, err := s.read(KeyElGamal)
	if err != nil {
		return nil, err
	}
	p, err := paillier.UnmarshalPrivateKey(pk)
	if err != nil {
		return nil, xerrors.Errorf("decoding paillier key: %v", err)
	}
	e, err := elgamal.UnmarshalKeyPair(ek)
	if err != nil {
		return nil, xerrors.Errorf("decoding elgamal key: %v", err)
	}
	return &oracle.KeyPair{Paillier: p, ElGamal: e}, nil
}

func (s *KeyStore) read(name string) ([]byte, error) {
	var val []byte
	err := s.db.QueryRow("SELECT value FROM keys WHERE name = ?", name).Scan(&val)
	if err == sql.ErrNoRows {
		return nil, ErrNoKeys
	}
	if err != nil {
		return nil, xerrors.Errorf("reading %s key: %v", name, err)
	}
	return val, nil
}

// SaveClasses replaces the stored class list.
func (s *KeyStore) SaveClasses(labels []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM classes"); err != nil {
		tx.Rollback()
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO classes (position, label) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i, label := range labels {
		if _, err := stmt.Exec(i, label); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *KeyStore) LoadClasses() ([]string, error) {
	rows, err := s.db.Query("SELECT label FROM classes ORDER BY position ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// Truncate forgets all keys and classes.
func (s *KeyStore) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM keys; DELETE FROM classes;")
	return err
}

func (s *KeyStore) Close() error {
	return s.db.Close()
}
