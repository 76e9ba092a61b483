/*
Package orchestrator coordinates dataset processing.

It owns the three entry points that mutate the system's plans:

  - OnHubEvent reacts to webhook notifications: deletions purge the
    dataset's cache and jobs, moves purge the old name and rebuild the
    new one, creations and updates trigger a smart update that skips
    the rebuild when the cached root entry already matches the hub
    revision.

  - BestResponse is the API read path: the best cached entry wins,
    cached errors included. A miss on a supported dataset plans a
    high-priority backfill and reports ResponseNotReady so the client
    can poll; a miss on an unknown dataset reports DatasetNotFound.

  - PlanBackfill turns the materialized dataset state into the minimal
    job set and enqueues it.

The blocklist is enforced at every entry point: blocked datasets are
never read for, never scheduled.
*/
package orchestrator
