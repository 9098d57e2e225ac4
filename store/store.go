package store

import (
	"fmt"

	"go.etcd.io/bbolt"
)

var bucketName = []byte("merge-intents")

// Store is a durable map from commit id to Intent. It owns the only
// persisted entity in the system and is safe for concurrent use, though
// the controller additionally serializes all access under its own mutex.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) a bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening db at %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put replaces (never partially updates) the intent stored at commit.
func (s *Store) Put(commit string, in Intent) error {
	data := encode(in)
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(Key(commit), data)
	})
}

// Get returns the intent stored at commit, if any.
func (s *Store) Get(commit string) (Intent, bool, error) {
	var out Intent
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(Key(commit))
		if v == nil {
			return nil
		}
		found = true
		decoded, derr := decode(v)
		if derr != nil {
			return derr
		}
		out = decoded
		return nil
	})
	if err != nil {
		return Intent{}, false, fmt.Errorf("reading intent for %s: %w", commit, err)
	}
	return out, found, nil
}

// Delete removes the intent at commit, if present. Deleting an absent key
// is not an error: cancel/head-changed/checks-failed/merge-success paths
// all call this unconditionally.
func (s *Store) Delete(commit string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete(Key(commit))
	})
}
