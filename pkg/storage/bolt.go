package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/burrowhq/burrow/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketCacheEntries   = []byte("cache_entries")
	bucketCacheByDataset = []byte("cache_by_dataset")
	bucketJobs           = []byte("jobs")
	bucketJobKeys        = []byte("job_keys")
)

// keySep separates key components in bucket keys. Dataset, config and
// split names never contain NUL.
const keySep = "\x00"

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "burrow.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketCacheEntries,
			bucketCacheByDataset,
			bucketJobs,
			bucketJobKeys,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// cacheKey builds the primary key of a cache entry
func cacheKey(key types.ArtifactKey) []byte {
	return []byte(key.Kind + keySep + key.Dataset + keySep + key.Config + keySep + key.Split)
}

// datasetIndexKey builds the secondary-index key for dataset scans
func datasetIndexKey(key types.ArtifactKey) []byte {
	return []byte(key.Dataset + keySep + key.Kind + keySep + key.Config + keySep + key.Split)
}

// datasetIndexPrefix is the index prefix covering one dataset
func datasetIndexPrefix(dataset string) []byte {
	return []byte(dataset + keySep)
}

// jobKey builds the unique in-flight index key of a job
func jobKey(key types.ArtifactKey) []byte {
	return cacheKey(key)
}

// keyDigest computes the sharding digest of (dataset, config, split)
func keyDigest(key types.ArtifactKey) string {
	sum := sha256.Sum256([]byte(key.Dataset + keySep + key.Config + keySep + key.Split))
	return hex.EncodeToString(sum[:8])
}

// datasetFromIndexKey recovers the dataset name from an index key
func datasetFromIndexKey(k []byte) string {
	if idx := bytes.IndexByte(k, 0); idx != -1 {
		return string(k[:idx])
	}
	return string(k)
}

// SampleDatasets returns up to limit distinct dataset names known to
// the cache
func (s *BoltStore) SampleDatasets(limit int) ([]string, error) {
	var datasets []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCacheByDataset).Cursor()
		last := ""
		// Index keys sort by dataset prefix, so duplicates are adjacent
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			dataset := datasetFromIndexKey(k)
			if dataset == last {
				continue
			}
			last = dataset
			datasets = append(datasets, dataset)
			if limit > 0 && len(datasets) >= limit {
				return nil
			}
		}
		return nil
	})
	return datasets, err
}
