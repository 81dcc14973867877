package idempotency

import (
	"context"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/wakala/payments/internal/domain"
)

const boltBucket = "outcomes"

// BoltStore keeps outcomes in an embedded BoltDB file.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (or creates) the database at path and ensures the
// outcomes bucket exists.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Lookup(_ context.Context, key domain.IdempotencyKey) (*domain.Outcome, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(boltBucket)).Get([]byte(key))
		if v != nil {
			// v is only valid inside the transaction.
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || data == nil {
		return nil, err
	}
	return Decode(data)
}

// Put checks for the key and writes it inside one update transaction, so
// the first writer wins.
func (s *BoltStore) Put(_ context.Context, key domain.IdempotencyKey, outcome *domain.Outcome) error {
	data, err := Encode(outcome)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b.Get([]byte(key)) != nil {
			return ErrExists
		}
		return b.Put([]byte(key), data)
	})
}

func (s *BoltStore) PendingReconciliation(_ context.Context) ([]Entry, error) {
	entries := []Entry{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(boltBucket)).ForEach(func(k, v []byte) error {
			o, err := Decode(v)
			if err != nil {
				return err
			}
			if o.NeedsReconciliation {
				entries = append(entries, Entry{Key: domain.IdempotencyKey(k), Outcome: o})
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortOldestFirst(entries)
	return entries, nil
}
