/*
Package metrics exposes the service's Prometheus metrics and the
healthcheck aggregation.

Counters and histograms are package-level variables registered at init,
incremented inline by the packages that own the events (worker, api,
reconciler). Gauges that mirror store state (queue depth by status,
cache entries by kind) are refreshed by the Collector on a fixed
interval rather than on every write.
*/
package metrics
