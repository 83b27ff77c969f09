package storage

import (
	"encoding/binary"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/protocol"
	"go.dedis.ch/protobuf"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/xerrors"
)

var levelsBucket = []byte("levels")

// LevelStore persists the training a server received so it survives a
// restart. Records are keyed by depth.
type LevelStore struct {
	db *bolt.DB
}

func OpenLevelStore(path string) (*LevelStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, xerrors.Errorf("opening level store: %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(levelsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, xerrors.Errorf("creating bucket: %v", err)
	}
	return &LevelStore{db: db}, nil
}

// Replace drops every stored level and writes records in one transaction.
func (s *LevelStore) Replace(records ...*protocol.Train) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(levelsBucket); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		b, err := tx.CreateBucket(levelsBucket)
		if err != nil {
			return err
		}
		for _, r := range records {
			buf, err := protobuf.Encode(r)
			if err != nil {
				return xerrors.Errorf("encoding level %d: %v", r.Level.Depth, err)
			}
			if err := b.Put(depthKey(r.Level.Depth), buf); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load returns all stored levels ordered by depth.
func (s *LevelStore) Load() ([]*protocol.Train, error) {
	var out []*protocol.Train
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(levelsBucket).ForEach(func(k, v []byte) error {
			r := &protocol.Train{}
			if err := protobuf.Decode(v, r); err != nil {
				return xerrors.Errorf("decoding level %x: %v", k, err)
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}

// depthKey sorts non-negative depths in numeric order.
func depthKey(depth int32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, uint32(depth))
	return k
}
