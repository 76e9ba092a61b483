/*
Package storage provides the durable stores backing Burrow: the cache of
step outputs and the prioritized job queue, both persisted in a single
BoltDB file.

# Layout

Two logical collections in four buckets:

	cache_entries     (kind,dataset,config,split) -> CacheEntry JSON
	cache_by_dataset  (dataset,kind,config,split) -> primary key, for
	                  dataset-wide scans and deletion
	jobs              job_id -> Job JSON
	job_keys          (kind,dataset,config,split) -> job_id, the unique
	                  in-flight index (at most one WAITING/STARTED job
	                  per key)

# Invariants enforced here

  - Single in-flight job per key: UpsertJob is a no-op (priority raise
    aside) while job_keys holds a pending job for the key.
  - Cache monotonicity within a revision: UpsertCache refuses to
    overwrite an entry of the same revision with an older
    job_runner_version.
  - Lease safety: Heartbeat and FinishJob require the caller to hold the
    lease (owner_id match on a STARTED job); everything runs inside one
    bolt write transaction, which is the atomic find-and-modify the
    fairness-aware StartOne needs.
  - Fairness ceiling: StartOne never leases a job whose dataset
    namespace already has maxJobsPerNamespace STARTED jobs, and breaks
    ties toward the least-loaded namespace.

Finished jobs are retained until PurgeFinishedJobs removes them (the
reconciler runs it with the 7-day TTL); bolt has no TTL indexes, so the
sweep is the equivalent.
*/
package storage
