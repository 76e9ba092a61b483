/*
Package reconciler runs the background maintenance loop.

One cycle does three things, in order: reclaim zombie jobs (requeue
silent ones, error out the hopeless ones and commit the matching cache
entries so readers see JobRunnerCrashedError instead of a hole),
re-plan a sample of the known datasets at low priority, and purge
finished job records past the retention window.

The loop is deliberately crash-only: every action is idempotent against
the store, so a cycle that dies mid-way is simply redone next tick.
*/
package reconciler
