/*
Package steps implements the processing step runners and their
execution wrapper.

Every step kind of the processing graph has exactly one Runner. Runners
are pure compute: they read their inputs from the cache (predecessor
entries, via best-of-kinds) and from the hub, and produce a JSON content
blob plus a progress value. They never write to the cache or the queue;
committing an outcome is the worker's job.

The Runtime wraps runner execution with the cross-cutting rules that
apply to every kind: the skip decision (a fresh entry for the same
revision and runner version needs no recompute), the parallel-step
short-circuit (ResponseAlreadyComputedError when the sibling variant
already answered), the content size cap (TooBigContentError), and the
folding of every failure into the error taxonomy. A dataset that
disappeared from the hub is the one failure that must not be cached;
its outcome is marked DoNotCache.
*/
package steps
