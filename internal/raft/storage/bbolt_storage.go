package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"raft-election/internal/raft"
)

var (
	metadataBucket = []byte("metadata")

	currentTermKey = []byte("currentTerm")
	votedForKey    = []byte("votedFor")
)

// BboltStore is a StableStore backed by a single bbolt file
type BboltStore struct {
	conn *bbolt.DB
}

// NewBboltStore opens (creating if needed) the bbolt database at path
func NewBboltStore(path string) (*BboltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(metadataBucket); err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BboltStore{conn: db}, nil
}

func (b *BboltStore) GetCurrentTerm() (uint64, error) {
	var term uint64
	err := b.conn.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(metadataBucket).Get(currentTermKey)
		if data == nil {
			return nil
		}

		v, err := bytesToUint64(data)
		if err != nil {
			return fmt.Errorf("corrupt current term: %w", err)
		}
		term = v
		return nil
	})
	return term, b.wrap(err)
}

func (b *BboltStore) SetCurrentTerm(term uint64) error {
	return b.wrap(b.conn.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(metadataBucket).Put(currentTermKey, uint64ToBytes(term))
	}))
}

func (b *BboltStore) GetVotedFor() (*raft.NodeID, error) {
	var votedFor *raft.NodeID
	err := b.conn.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(metadataBucket).Get(votedForKey)
		if data == nil {
			return nil
		}

		v, err := bytesToUint64(data)
		if err != nil {
			return fmt.Errorf("corrupt votedFor: %w", err)
		}
		id := raft.NodeID(v)
		votedFor = &id
		return nil
	})
	return votedFor, b.wrap(err)
}

func (b *BboltStore) SetVotedFor(candidateID *raft.NodeID) error {
	return b.wrap(b.conn.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(metadataBucket)
		if candidateID == nil {
			// No vote in the new term
			return bucket.Delete(votedForKey)
		}
		return bucket.Put(votedForKey, uint64ToBytes(uint64(*candidateID)))
	}))
}

func (b *BboltStore) Close() error {
	return b.conn.Close()
}

func (b *BboltStore) wrap(err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}

func uint64ToBytes(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func bytesToUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("expected 8 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
