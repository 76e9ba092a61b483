package storage

import (
	"time"

	"github.com/burrowhq/burrow/pkg/types"
)

// CacheUpsert holds the parameters of a cache write. The store fills in
// UpdatedAt and the attempts counter.
type CacheUpsert struct {
	Key              types.ArtifactKey
	Revision         string
	Content          []byte
	HTTPStatus       int
	ErrorCode        types.ErrorCode
	Details          []byte
	Progress         float64
	JobRunnerVersion int
}

// JobUpsert holds the parameters of a queue write
type JobUpsert struct {
	Key        types.ArtifactKey
	Revision   string
	Priority   types.Priority
	Difficulty int
}

// ReclaimStats summarizes one zombie-reclaim sweep. The errored job
// lists let the caller commit the matching cache entries.
type ReclaimStats struct {
	Requeued        int
	Crashed         int
	ExceededMaxTime int
	CrashedJobs     []*types.Job
	ExceededJobs    []*types.Job
}

// CacheStore is the durable key -> artifact mapping
type CacheStore interface {
	// UpsertCache replaces any existing entry for the key. Within the
	// same revision, an entry is never overwritten by an older
	// job_runner_version. Error upserts increment attempts; success
	// resets it.
	UpsertCache(u CacheUpsert) error

	// GetCache returns the full entry, or types.ErrNotFound
	GetCache(key types.ArtifactKey) (*types.CacheEntry, error)

	// GetCacheHeader is the cheap variant without the content blob
	GetCacheHeader(key types.ArtifactKey) (*types.CacheHeader, error)

	// BestCache applies the preferred-predecessor rule: among kinds (in
	// caller order), the first with a successful entry wins; if none
	// succeeded, the last listed kind with any entry; else
	// types.ErrNotFound.
	BestCache(kinds []string, dataset, config, split string) (*types.CacheEntry, error)

	// DeleteCacheByDataset removes every entry for the dataset and
	// returns the number deleted
	DeleteCacheByDataset(dataset string) (int, error)

	// ListCacheHeadersByDataset returns the headers of all entries for
	// a dataset, any kind
	ListCacheHeadersByDataset(dataset string) ([]*types.CacheHeader, error)

	// CountCacheByKindStatus returns entry counts keyed by kind then
	// http status class, for metrics and admin introspection
	CountCacheByKindStatus() (map[string]map[int]int, error)
}

// QueueStore is the durable prioritized job set with leases
type QueueStore interface {
	// UpsertJob inserts a WAITING job unless one is already pending for
	// the key (then it only raises priority if the new one is higher).
	// Returns the job ID and whether a new record was created.
	UpsertJob(u JobUpsert) (string, bool, error)

	// StartOne atomically leases the best eligible WAITING job for this
	// worker, honoring the per-namespace fairness cap. Returns
	// types.ErrEmptyQueue when nothing is eligible.
	StartOne(allowedKinds []string, workerID string, maxJobsPerNamespace int) (*types.Job, error)

	// Heartbeat refreshes last_heartbeat_at iff the worker still owns
	// the STARTED job
	Heartbeat(jobID, workerID string) error

	// FinishJob transitions STARTED to a final status; rejected on
	// owner mismatch
	FinishJob(jobID, workerID string, status types.JobStatus) error

	// GetJob returns a job by ID, or types.ErrNotFound
	GetJob(jobID string) (*types.Job, error)

	// IsJobInProcess reports whether a WAITING or STARTED job exists
	// for the key
	IsJobInProcess(key types.ArtifactKey) (bool, error)

	// ReclaimZombies requeues STARTED jobs whose heartbeat went silent,
	// erroring them out after too many attempts or past maxDuration
	ReclaimZombies(now time.Time, maxSilence, maxDuration time.Duration, maxAttempts int) (ReclaimStats, error)

	// CancelJobsByKey cancels any pending job for the key
	CancelJobsByKey(key types.ArtifactKey) (int, error)

	// CancelJobsByDataset cancels every pending job for the dataset
	CancelJobsByDataset(dataset string) (int, error)

	// CountJobsByStatus returns job counts by status
	CountJobsByStatus() (map[types.JobStatus]int, error)

	// PurgeFinishedJobs deletes finished jobs older than the cutoff and
	// returns the number deleted
	PurgeFinishedJobs(before time.Time) (int, error)
}

// Store combines the two logical collections behind one handle
type Store interface {
	CacheStore
	QueueStore

	// SampleDatasets returns up to limit distinct dataset names known
	// to the cache, for the periodic maintenance tick
	SampleDatasets(limit int) ([]string, error)

	// Utility
	Close() error
}
