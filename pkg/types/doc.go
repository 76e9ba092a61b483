/*
Package types defines the shared domain types for Burrow.

The types package holds the records persisted by pkg/storage (cache entries
and jobs), the artifact key that addresses them, the priority and status
enumerations, the webhook payload, and the coded error taxonomy shared by
the worker and the API.

# Core Types

Artifact key:
  - (kind, dataset, config, split) tuple
  - Config present iff the step scope is config or split; Split iff split
  - Structural equality, lexicographic Compare

Cache entry:
  - Content blob plus http_status / error_code / details
  - Progress in [0,1]; progress < 1.0 marks a fan-in entry still waiting
  - JobRunnerVersion and DatasetRevision drive staleness decisions
  - Attempts counts consecutive errored computes

Job:
  - Priority low/normal/high (higher wins; never lowered on upsert)
  - Status waiting/started/success/error/cancelled/skipped
  - OwnerID holds the worker lease; heartbeat timestamps drive zombie
    recovery

Errors:
  - CodedError carries an ErrorCode and HTTP status through worker commit
    and API response paths
  - AsCoded maps unknown errors to UnexpectedError, preserving the cause
*/
package types
