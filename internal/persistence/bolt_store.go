package persistence

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSnapshots = []byte("snapshots")

// BoltSnapshotStore keeps snapshots in a local bbolt file, keyed by
// big-endian sequence so the cursor's last key is the newest snapshot.
// It lets a node restart from local disk without a round trip to Postgres.
type BoltSnapshotStore struct {
	db   *bolt.DB
	keep int
}

type boltSnapshot struct {
	StateHash []byte    `json:"state_hash"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// OpenBoltSnapshotStore opens (creating if needed) the store at path and
// retains at most keep snapshots; keep <= 0 retains all of them.
func OpenBoltSnapshotStore(path string, keep int) (*BoltSnapshotStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltSnapshotStore{db: db, keep: keep}, nil
}

func (s *BoltSnapshotStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltSnapshotStore) Save(_ context.Context, snap StoredSnapshot) error {
	value, err := json.Marshal(boltSnapshot{StateHash: snap.StateHash, Data: snap.Data, CreatedAt: snap.CreatedAt})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		if err := b.Put(seqKey(snap.Sequence), value); err != nil {
			return err
		}
		if s.keep <= 0 {
			return nil
		}
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for len(keys) > s.keep {
			if err := b.Delete(keys[0]); err != nil {
				return err
			}
			keys = keys[1:]
		}
		return nil
	})
}

func (s *BoltSnapshotStore) LoadLatest(_ context.Context) (*StoredSnapshot, error) {
	var out *StoredSnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		k, v := tx.Bucket(bucketSnapshots).Cursor().Last()
		if k == nil {
			return nil
		}
		var rec boltSnapshot
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		out = &StoredSnapshot{
			Sequence:  int64(binary.BigEndian.Uint64(k)),
			StateHash: rec.StateHash,
			Data:      rec.Data,
			CreatedAt: rec.CreatedAt,
		}
		return nil
	})
	return out, err
}

// Sequences lists stored snapshot sequences, oldest first.
func (s *BoltSnapshotStore) Sequences() ([]int64, error) {
	var out []int64
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, _ []byte) error {
			out = append(out, int64(binary.BigEndian.Uint64(k)))
			return nil
		})
	})
	return out, err
}

func seqKey(seq int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(seq))
	return k
}
