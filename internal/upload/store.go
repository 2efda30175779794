package upload

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const queueBucket = "upload_queue"

// QueueStore keeps the queue alive between process runs.
type QueueStore interface {
	// Load returns the saved tasks in queue order
	Load() ([]Task, error)

	// Save replaces the saved queue
	Save(tasks []Task) error

	// Close releases the store
	Close() error
}

// BoltStore implements QueueStore on a bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the queue file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating queue directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening queue db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(queueBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating queue bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Load returns the saved tasks in queue order
func (b *BoltStore) Load() ([]Task, error) {
	var tasks []Task
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(queueBucket))
		return bucket.ForEach(func(k, v []byte) error {
			var t Task
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("unmarshaling task %s: %w", k, err)
			}
			tasks = append(tasks, t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// Save replaces the saved queue. Keys are zero-padded positions so the
// bucket's byte order is queue order.
func (b *BoltStore) Save(tasks []Task) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(queueBucket)); err != nil && err != bbolt.ErrBucketNotFound {
			return fmt.Errorf("clearing queue: %w", err)
		}
		bucket, err := tx.CreateBucket([]byte(queueBucket))
		if err != nil {
			return fmt.Errorf("recreating queue: %w", err)
		}
		for i, t := range tasks {
			data, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("marshaling task: %w", err)
			}
			if err := bucket.Put([]byte(fmt.Sprintf("%08d", i)), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the queue file
func (b *BoltStore) Close() error {
	return b.db.Close()
}
