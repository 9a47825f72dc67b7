// Package storage implements the archive service: the
// only component allowed to touch the on-disk representation of a
// trajectory. It is the sole writer to a single bbolt file organized
// as a bucket-of-buckets archive with typed per-node metadata records.
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// boltDB wraps a bbolt database with JSON put/get helpers.
type boltDB struct {
	*bolt.DB
}

// openBolt opens or creates a bbolt database at path.
func openBolt(path string) (*boltDB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open archive %s: %w", path, err)
	}
	return &boltDB{db}, nil
}

func (db *boltDB) createBucket(name string) error {
	return db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return fmt.Errorf("storage: failed to create bucket %s: %w", name, err)
		}
		return nil
	})
}

func (db *boltDB) putJSON(bucket, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storage: failed to marshal %s/%s: %w", bucket, key, err)
	}
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("storage: bucket not found: %s", bucket)
		}
		return b.Put([]byte(key), data)
	})
}

func (db *boltDB) getJSON(bucket, key string, value any) error {
	return db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("storage: bucket not found: %s", bucket)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("storage: key not found: %s/%s", bucket, key)
		}
		return json.Unmarshal(data, value)
	})
}

func (db *boltDB) has(bucket, key string) bool {
	found := false
	_ = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		found = b.Get([]byte(key)) != nil
		return nil
	})
	return found
}

func (db *boltDB) delete(bucket, key string) error {
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (db *boltDB) forEachJSON(bucket string, valueType func() any, fn func(key string, value any) error) error {
	return db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			value := valueType()
			if err := json.Unmarshal(v, value); err != nil {
				return fmt.Errorf("storage: failed to unmarshal %s: %w", k, err)
			}
			return fn(string(k), value)
		})
	})
}

func (db *boltDB) list(bucket string) ([]string, error) {
	var keys []string
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}
