/*
Package graph defines the processing graph: the declarative DAG of step
kinds and their trigger relations.

The graph is a constant value constructed at process start from the
Specification map and never mutated afterwards. Construction computes
adjacency lists in both directions, a topological order (used only for
diagnostics), and capability indices. Unknown trigger references,
self-loops and cycles are hard construction errors.

# Usage

	g := graph.MustNew(graph.Specification)

	step, err := g.Get("config-parquet")
	preds := g.Predecessors("config-parquet")  // stable trigger order
	succs := g.Successors("config-parquet")
	datasetSteps := g.StepsFor(types.ScopeDataset)
	previewSteps := g.StepsProviding(graph.EnablesPreview)

Trigger order is meaningful: readers that accept several kinds (for
example the two split-names variants) prefer the first listed kind.
*/
package graph
