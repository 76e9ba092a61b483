package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/burrowhq/burrow/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// UpsertCache writes a cache entry, enforcing version monotonicity
// within a revision: an entry is never overwritten by one with the same
// revision and an older job_runner_version. Error writes increment the
// attempts counter; successful writes reset it.
func (s *BoltStore) UpsertCache(u CacheUpsert) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCacheEntries)
		pk := cacheKey(u.Key)

		attempts := 0
		if data := b.Get(pk); data != nil {
			var existing types.CacheEntry
			if err := json.Unmarshal(data, &existing); err != nil {
				return fmt.Errorf("failed to decode cache entry: %w", err)
			}
			if existing.DatasetRevision == u.Revision && existing.JobRunnerVersion > u.JobRunnerVersion {
				// Conditional update: newer or equal versions win
				return nil
			}
			attempts = existing.Attempts
		}

		entry := types.CacheEntry{
			Kind:             u.Key.Kind,
			Dataset:          u.Key.Dataset,
			Config:           u.Key.Config,
			Split:            u.Key.Split,
			KeyDigest:        keyDigest(u.Key),
			Content:          u.Content,
			HTTPStatus:       u.HTTPStatus,
			ErrorCode:        string(u.ErrorCode),
			Details:          u.Details,
			Progress:         u.Progress,
			JobRunnerVersion: u.JobRunnerVersion,
			DatasetRevision:  u.Revision,
			UpdatedAt:        time.Now().UTC(),
		}
		if entry.IsSuccess() {
			entry.Attempts = 0
		} else {
			entry.Attempts = attempts + 1
		}

		data, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("failed to encode cache entry: %w", err)
		}
		if err := b.Put(pk, data); err != nil {
			return err
		}
		return tx.Bucket(bucketCacheByDataset).Put(datasetIndexKey(u.Key), pk)
	})
}

// GetCache returns the full entry for the key
func (s *BoltStore) GetCache(key types.ArtifactKey) (*types.CacheEntry, error) {
	var entry types.CacheEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCacheEntries).Get(cacheKey(key))
		if data == nil {
			return fmt.Errorf("cache entry %s: %w", key, types.ErrNotFound)
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetCacheHeader returns the entry without its content blob
func (s *BoltStore) GetCacheHeader(key types.ArtifactKey) (*types.CacheHeader, error) {
	entry, err := s.GetCache(key)
	if err != nil {
		return nil, err
	}
	return entry.Header(), nil
}

// BestCache implements the preferred-predecessor rule over the listed
// kinds, in caller order
func (s *BoltStore) BestCache(kinds []string, dataset, config, split string) (*types.CacheEntry, error) {
	var lastAny *types.CacheEntry
	for _, kind := range kinds {
		entry, err := s.GetCache(types.ArtifactKey{Kind: kind, Dataset: dataset, Config: config, Split: split})
		if err != nil {
			continue
		}
		if entry.IsSuccess() {
			return entry, nil
		}
		lastAny = entry
	}
	if lastAny != nil {
		return lastAny, nil
	}
	return nil, fmt.Errorf("no cache entry among %v for %s: %w", kinds, dataset, types.ErrNotFound)
}

// DeleteCacheByDataset removes every cache entry for a dataset
func (s *BoltStore) DeleteCacheByDataset(dataset string) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketCacheByDataset)
		entries := tx.Bucket(bucketCacheEntries)
		c := idx.Cursor()
		prefix := datasetIndexPrefix(dataset)
		for k, pk := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, pk = c.Next() {
			if err := entries.Delete(pk); err != nil {
				return err
			}
			if err := c.Delete(); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// ListCacheHeadersByDataset returns the headers of every entry for a
// dataset
func (s *BoltStore) ListCacheHeadersByDataset(dataset string) ([]*types.CacheHeader, error) {
	var headers []*types.CacheHeader
	err := s.db.View(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketCacheByDataset)
		entries := tx.Bucket(bucketCacheEntries)
		c := idx.Cursor()
		prefix := datasetIndexPrefix(dataset)
		for k, pk := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, pk = c.Next() {
			data := entries.Get(pk)
			if data == nil {
				continue
			}
			var entry types.CacheEntry
			if err := json.Unmarshal(data, &entry); err != nil {
				return err
			}
			headers = append(headers, entry.Header())
		}
		return nil
	})
	return headers, err
}

// CountCacheByKindStatus returns entry counts keyed by kind then status
func (s *BoltStore) CountCacheByKindStatus() (map[string]map[int]int, error) {
	counts := make(map[string]map[int]int)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCacheEntries).ForEach(func(k, v []byte) error {
			var entry types.CacheEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if counts[entry.Kind] == nil {
				counts[entry.Kind] = make(map[int]int)
			}
			counts[entry.Kind][entry.HTTPStatus]++
			return nil
		})
	})
	return counts, err
}
