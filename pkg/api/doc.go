/*
Package api serves the HTTP read surface over the cache.

Read endpoints never compute anything: they return the best cached
entry for the requested artifact, and a miss on a live dataset plans a
high-priority backfill and answers ResponseNotReady so the client can
retry. Cached error entries are replayed with their original status and
X-Error-Code header.

The rows, search and filter endpoints paginate over the cached
first-rows artifact. The webhook endpoint ingests hub change
notifications, and /admin exposes queue and cache introspection.
*/
package api
