package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/burrowhq/burrow/pkg/types"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// UpsertJob inserts a WAITING job unless one is already pending for the
// key. An existing pending job only has its priority raised, never
// lowered.
func (s *BoltStore) UpsertJob(u JobUpsert) (string, bool, error) {
	var jobID string
	created := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		jobs := tx.Bucket(bucketJobs)
		keys := tx.Bucket(bucketJobKeys)
		jk := jobKey(u.Key)

		if existingID := keys.Get(jk); existingID != nil {
			data := jobs.Get(existingID)
			if data != nil {
				var job types.Job
				if err := json.Unmarshal(data, &job); err != nil {
					return fmt.Errorf("failed to decode job: %w", err)
				}
				if job.Status.IsPending() {
					jobID = job.ID
					raised := job.Priority.Raise(u.Priority)
					if raised != job.Priority {
						job.Priority = raised
						updated, err := json.Marshal(&job)
						if err != nil {
							return err
						}
						return jobs.Put(existingID, updated)
					}
					return nil
				}
			}
			// Stale index entry: the job finished without clearing it
			if err := keys.Delete(jk); err != nil {
				return err
			}
		}

		job := types.Job{
			ID:         uuid.New().String(),
			Kind:       u.Key.Kind,
			Dataset:    u.Key.Dataset,
			Config:     u.Key.Config,
			Split:      u.Key.Split,
			Revision:   u.Revision,
			Priority:   u.Priority,
			Difficulty: u.Difficulty,
			Status:     types.JobStatusWaiting,
			CreatedAt:  time.Now().UTC(),
		}
		data, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("failed to encode job: %w", err)
		}
		if err := jobs.Put([]byte(job.ID), data); err != nil {
			return err
		}
		if err := keys.Put(jk, []byte(job.ID)); err != nil {
			return err
		}
		jobID = job.ID
		created = true
		return nil
	})
	return jobID, created, err
}

// StartOne atomically leases the best eligible WAITING job. The whole
// selection runs inside a single write transaction, so concurrent
// workers never lease the same job. Selection order: highest priority,
// oldest created_at, lowest difficulty, then the dataset namespace with
// the fewest STARTED jobs (anti-starvation).
func (s *BoltStore) StartOne(allowedKinds []string, workerID string, maxJobsPerNamespace int) (*types.Job, error) {
	allowed := make(map[string]bool, len(allowedKinds))
	for _, kind := range allowedKinds {
		allowed[kind] = true
	}

	var leased *types.Job
	err := s.db.Update(func(tx *bolt.Tx) error {
		jobs := tx.Bucket(bucketJobs)

		// One pass: count STARTED jobs per namespace and collect
		// WAITING candidates.
		startedPerNamespace := make(map[string]int)
		var candidates []*types.Job
		err := jobs.ForEach(func(k, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			switch job.Status {
			case types.JobStatusStarted:
				startedPerNamespace[job.Namespace()]++
			case types.JobStatusWaiting:
				if len(allowed) == 0 || allowed[job.Kind] {
					j := job
					candidates = append(candidates, &j)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		var best *types.Job
		for _, candidate := range candidates {
			if maxJobsPerNamespace > 0 && startedPerNamespace[candidate.Namespace()] >= maxJobsPerNamespace {
				continue
			}
			if best == nil || jobLess(candidate, best, startedPerNamespace) {
				best = candidate
			}
		}
		if best == nil {
			return types.ErrEmptyQueue
		}

		now := time.Now().UTC()
		best.Status = types.JobStatusStarted
		best.OwnerID = workerID
		best.StartedAt = &now
		best.LastHeartbeatAt = &now
		data, err := json.Marshal(best)
		if err != nil {
			return err
		}
		if err := jobs.Put([]byte(best.ID), data); err != nil {
			return err
		}
		leased = best
		return nil
	})
	if err != nil {
		return nil, err
	}
	return leased, nil
}

// jobLess orders lease candidates: priority desc, created_at asc,
// difficulty asc, then least-loaded namespace
func jobLess(a, b *types.Job, startedPerNamespace map[string]int) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() > b.Priority.Rank()
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.Difficulty != b.Difficulty {
		return a.Difficulty < b.Difficulty
	}
	return startedPerNamespace[a.Namespace()] < startedPerNamespace[b.Namespace()]
}

// Heartbeat refreshes last_heartbeat_at iff the worker still owns the
// STARTED job
func (s *BoltStore) Heartbeat(jobID, workerID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		jobs := tx.Bucket(bucketJobs)
		data := jobs.Get([]byte(jobID))
		if data == nil {
			return fmt.Errorf("job %s: %w", jobID, types.ErrNotFound)
		}
		var job types.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		if job.Status != types.JobStatusStarted || job.OwnerID != workerID {
			return fmt.Errorf("job %s: lease not held by %s", jobID, workerID)
		}
		now := time.Now().UTC()
		job.LastHeartbeatAt = &now
		updated, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		return jobs.Put([]byte(jobID), updated)
	})
}

// FinishJob transitions STARTED to a final status, releasing the key's
// in-flight slot. Owner mismatch leaves the record unchanged.
func (s *BoltStore) FinishJob(jobID, workerID string, status types.JobStatus) error {
	if !status.IsFinal() {
		return fmt.Errorf("job %s: %s is not a final status", jobID, status)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		jobs := tx.Bucket(bucketJobs)
		data := jobs.Get([]byte(jobID))
		if data == nil {
			return fmt.Errorf("job %s: %w", jobID, types.ErrNotFound)
		}
		var job types.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		if job.Status != types.JobStatusStarted || job.OwnerID != workerID {
			return fmt.Errorf("job %s: lease not held by %s", jobID, workerID)
		}
		now := time.Now().UTC()
		job.Status = status
		job.FinishedAt = &now
		updated, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		if err := jobs.Put([]byte(jobID), updated); err != nil {
			return err
		}
		return s.releaseKeySlot(tx, &job)
	})
}

// releaseKeySlot clears the in-flight index entry if it points at this
// job
func (s *BoltStore) releaseKeySlot(tx *bolt.Tx, job *types.Job) error {
	keys := tx.Bucket(bucketJobKeys)
	jk := jobKey(job.Key())
	if current := keys.Get(jk); current != nil && string(current) == job.ID {
		return keys.Delete(jk)
	}
	return nil
}

// GetJob returns a job by ID
func (s *BoltStore) GetJob(jobID string) (*types.Job, error) {
	var job types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketJobs).Get([]byte(jobID))
		if data == nil {
			return fmt.Errorf("job %s: %w", jobID, types.ErrNotFound)
		}
		return json.Unmarshal(data, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// IsJobInProcess reports whether a pending job exists for the key
func (s *BoltStore) IsJobInProcess(key types.ArtifactKey) (bool, error) {
	pending := false
	err := s.db.View(func(tx *bolt.Tx) error {
		jobID := tx.Bucket(bucketJobKeys).Get(jobKey(key))
		if jobID == nil {
			return nil
		}
		data := tx.Bucket(bucketJobs).Get(jobID)
		if data == nil {
			return nil
		}
		var job types.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		pending = job.Status.IsPending()
		return nil
	})
	return pending, err
}

// ReclaimZombies scans STARTED jobs: silent ones go back to WAITING
// (attempts incremented), or to ERROR after too many attempts; jobs
// running past maxDuration go to ERROR as well. The caller commits the
// matching cache entries for the errored ones.
func (s *BoltStore) ReclaimZombies(now time.Time, maxSilence, maxDuration time.Duration, maxAttempts int) (ReclaimStats, error) {
	var stats ReclaimStats
	err := s.db.Update(func(tx *bolt.Tx) error {
		jobs := tx.Bucket(bucketJobs)
		type pendingWrite struct {
			id   []byte
			data []byte
		}
		var writes []pendingWrite
		var released []*types.Job

		err := jobs.ForEach(func(k, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if job.Status != types.JobStatusStarted {
				return nil
			}

			exceeded := job.StartedAt != nil && maxDuration > 0 && now.Sub(*job.StartedAt) > maxDuration
			silent := job.LastHeartbeatAt != nil && now.Sub(*job.LastHeartbeatAt) > maxSilence

			if !exceeded && !silent {
				return nil
			}

			finished := now
			switch {
			case exceeded:
				job.Status = types.JobStatusError
				job.FinishedAt = &finished
				j := job
				released = append(released, &j)
				stats.ExceededMaxTime++
				stats.ExceededJobs = append(stats.ExceededJobs, &j)
			case job.Attempts+1 > maxAttempts:
				job.Status = types.JobStatusError
				job.Attempts++
				job.FinishedAt = &finished
				j := job
				released = append(released, &j)
				stats.Crashed++
				stats.CrashedJobs = append(stats.CrashedJobs, &j)
			default:
				job.Status = types.JobStatusWaiting
				job.Attempts++
				job.OwnerID = ""
				job.StartedAt = nil
				job.LastHeartbeatAt = nil
				stats.Requeued++
			}

			data, err := json.Marshal(&job)
			if err != nil {
				return err
			}
			writes = append(writes, pendingWrite{id: append([]byte(nil), k...), data: data})
			return nil
		})
		if err != nil {
			return err
		}

		for _, w := range writes {
			if err := jobs.Put(w.id, w.data); err != nil {
				return err
			}
		}
		for _, job := range released {
			if err := s.releaseKeySlot(tx, job); err != nil {
				return err
			}
		}
		return nil
	})
	return stats, err
}

// CancelJobsByKey cancels any pending job for the key
func (s *BoltStore) CancelJobsByKey(key types.ArtifactKey) (int, error) {
	cancelled := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		jobs := tx.Bucket(bucketJobs)
		jobID := tx.Bucket(bucketJobKeys).Get(jobKey(key))
		if jobID == nil {
			return nil
		}
		data := jobs.Get(jobID)
		if data == nil {
			return nil
		}
		var job types.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		if !job.Status.IsPending() {
			return nil
		}
		now := time.Now().UTC()
		job.Status = types.JobStatusCancelled
		job.FinishedAt = &now
		updated, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		if err := jobs.Put(jobID, updated); err != nil {
			return err
		}
		cancelled++
		return s.releaseKeySlot(tx, &job)
	})
	return cancelled, err
}

// CancelJobsByDataset cancels every pending job for the dataset
func (s *BoltStore) CancelJobsByDataset(dataset string) (int, error) {
	cancelled := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		jobs := tx.Bucket(bucketJobs)
		now := time.Now().UTC()
		type pendingWrite struct {
			id   []byte
			data []byte
			job  types.Job
		}
		var writes []pendingWrite

		err := jobs.ForEach(func(k, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if job.Dataset != dataset || !job.Status.IsPending() {
				return nil
			}
			job.Status = types.JobStatusCancelled
			job.FinishedAt = &now
			data, err := json.Marshal(&job)
			if err != nil {
				return err
			}
			writes = append(writes, pendingWrite{id: append([]byte(nil), k...), data: data, job: job})
			return nil
		})
		if err != nil {
			return err
		}

		for _, w := range writes {
			if err := jobs.Put(w.id, w.data); err != nil {
				return err
			}
			job := w.job
			if err := s.releaseKeySlot(tx, &job); err != nil {
				return err
			}
			cancelled++
		}
		return nil
	})
	return cancelled, err
}

// CountJobsByStatus returns job counts by status
func (s *BoltStore) CountJobsByStatus() (map[types.JobStatus]int, error) {
	counts := make(map[types.JobStatus]int)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(k, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			counts[job.Status]++
			return nil
		})
	})
	return counts, err
}

// PurgeFinishedJobs deletes finished jobs older than the cutoff
func (s *BoltStore) PurgeFinishedJobs(before time.Time) (int, error) {
	purged := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		jobs := tx.Bucket(bucketJobs)
		var toDelete [][]byte
		err := jobs.ForEach(func(k, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if job.Status.IsFinal() && job.FinishedAt != nil && job.FinishedAt.Before(before) {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range toDelete {
			if err := jobs.Delete(k); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	return purged, err
}
