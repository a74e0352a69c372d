package statestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mcdev12/vanguard/go/internal/models"
)

const bucket = "auction"

// BoltRepository stores the record in a bbolt file. The file is locked
// by one process at a time; use SQLiteRepository to share a store
// between agents.
type BoltRepository struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("empty bolt path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}

	tx, err := db.Begin(true)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
		_ = tx.Rollback()
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	if err := tx.Commit(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &BoltRepository{db: db}, nil
}

func (r *BoltRepository) Load(ctx context.Context) (*models.AuctionState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	if err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(Key)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}
	return decodeState(data, "bolt")
}

func (r *BoltRepository) Save(ctx context.Context, st *models.AuctionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeState(st)
	if err != nil {
		return err
	}
	if err := r.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		if err := b.Put([]byte(Key), data); err != nil {
			return fmt.Errorf("put to bucket error: %w", err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}
	return nil
}

func (r *BoltRepository) Close() error {
	return r.db.Close()
}
