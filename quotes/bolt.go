package quotes

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"math/rand/v2"

	bbolt "go.etcd.io/bbolt"
)

var bucketQuotes = []byte("quotes")

// BoltStore keeps quotes in a single bbolt file, keyed by an increasing id.
type BoltStore struct {
	bolt *bbolt.DB
}

// OpenBolt opens or creates the quote database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("quotes: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketQuotes)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("quotes: create bucket: %w", err)
	}
	return &BoltStore{bolt: db}, nil
}

// Close closes the underlying bbolt database.
func (s *BoltStore) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

func idToKey(id int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func encodeQuote(q *Quote) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(q); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeQuote(v []byte) (Quote, error) {
	var q Quote
	err := gob.NewDecoder(bytes.NewReader(v)).Decode(&q)
	return q, err
}

// Add assigns q the next id and stores it.
func (s *BoltStore) Add(_ context.Context, q *Quote) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQuotes)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		q.ID = int64(seq)
		data, err := encodeQuote(q)
		if err != nil {
			return fmt.Errorf("quotes: encode quote %d: %w", q.ID, err)
		}
		return b.Put(idToKey(q.ID), data)
	})
}

// Count returns the number of stored quotes.
func (s *BoltStore) Count(_ context.Context) (int, error) {
	var n int
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketQuotes).Stats().KeyN
		return nil
	})
	return n, err
}

// Random returns a uniformly chosen quote or ErrNoQuotes.
func (s *BoltStore) Random(_ context.Context) (Quote, error) {
	var q Quote
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQuotes)
		n := b.Stats().KeyN
		if n == 0 {
			return ErrNoQuotes
		}
		skip := rand.IntN(n)
		c := b.Cursor()
		k, v := c.First()
		for ; k != nil && skip > 0; skip-- {
			k, v = c.Next()
		}
		if k == nil {
			return ErrNoQuotes
		}
		var err error
		q, err = decodeQuote(v)
		if err != nil {
			return fmt.Errorf("quotes: decode quote: %w", err)
		}
		return nil
	})
	return q, err
}

// List returns every quote in id order.
func (s *BoltStore) List(_ context.Context) ([]Quote, error) {
	var out []Quote
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketQuotes).ForEach(func(k, v []byte) error {
			q, err := decodeQuote(v)
			if err != nil {
				return fmt.Errorf("quotes: decode quote %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, q)
			return nil
		})
	})
	return out, err
}
