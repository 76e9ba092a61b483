/*
Package config loads the service configuration.

Settings are resolved in three layers: compiled-in defaults, an optional
YAML file, and environment variables for the values that change per
deployment (addresses, secrets, the hub endpoint). Durations are written
as Go duration strings ("20m", "1h30m").
*/
package config
