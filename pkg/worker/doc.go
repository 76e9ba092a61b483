/*
Package worker runs the job processing loops.

Each loop leases the best eligible job from the queue, decides whether
the cached entry is already fresh (then the job finishes SKIPPED),
executes the step's runner under the job deadline, commits the outcome
to the cache and finishes the job. A sibling goroutine heartbeats the
lease for as long as the computation runs; a lost lease cancels the
computation, and version monotonicity in the cache makes the racing
commit harmless.

After every successful commit the worker asks the planner to re-plan
the dataset. That re-plan is the fan-out mechanism: a finished
split-names job puts the newly discovered splits into the cache, and
the next plan materializes jobs for every step of every new split.
*/
package worker
