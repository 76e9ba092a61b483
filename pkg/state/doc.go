/*
Package state materializes the planning view of one dataset.

A DatasetState is a pure read-side aggregation, rebuilt per planning
pass: the known configs (from the dataset-config-names cache entry),
the known splits per config (from whichever split-names entry
succeeded), and for every applicable (step, key) pair its cache state
and queue slot.

ShouldRefresh encodes the staleness rules: a step needs recomputing
when its entry is absent, was produced against another revision, by an
older runner version, errored with a retryable code, or is a fan-in
entry with progress < 1.0. An entry written before any of its trigger
parents is also stale, whatever its own status; that rule is what heals
steps that ran before their inputs existed. BackfillTasks turns the
state into the minimal job set: one task per stale step with no pending
job.
*/
package state
