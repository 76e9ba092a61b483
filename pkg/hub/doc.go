/*
Package hub provides the client for the external model/dataset hub.

The Client interface covers the three things the core needs from the
hub: the current commit hash of a dataset (Revision), whether a dataset
is processable at all (IsSupported), and the raw reads step computations
are built on (ConfigNames, SplitNames, FirstRows, Info).

HTTPClient is the production implementation. Revisions are memoized
with a short TTL (patrickmn/go-cache) so a planning pass that touches a
dataset many times makes a single hub call; the TTL is a few seconds so
a revision change is never masked longer than that.

Memory is an in-memory implementation used in tests and local
development.
*/
package hub
