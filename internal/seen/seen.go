// Package seen remembers which feed links were already processed so the
// fetcher can skip them without a database round trip.
package seen

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucket = []byte("seen")

// Store is a bbolt backed set of links with the time they were marked.
// A nil *Store reports nothing as seen and ignores marks.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open seen db %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create seen bucket: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Seen(link string) (bool, error) {
	if s == nil {
		return false, nil
	}

	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucket).Get([]byte(link)) != nil
		return nil
	})
	return found, err
}

func (s *Store) Mark(links ...string) error {
	if s == nil || len(links) == 0 {
		return nil
	}

	stamp := make([]byte, 8)
	binary.BigEndian.PutUint64(stamp, uint64(s.now().Unix()))

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		for _, link := range links {
			if err := b.Put([]byte(link), stamp); err != nil {
				return err
			}
		}
		return nil
	})
}

// Prune forgets links marked more than ttl ago and returns how many were removed.
func (s *Store) Prune(ttl time.Duration) (int, error) {
	if s == nil {
		return 0, nil
	}

	cutoff := s.now().Add(-ttl).Unix()
	removed := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)

		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if len(v) != 8 || int64(binary.BigEndian.Uint64(v)) < cutoff {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune seen links: %w", err)
	}

	return removed, nil
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
