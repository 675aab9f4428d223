// Package fetch downloads individual tile images over HTTP.
//
// The client retries transient failures (connection errors and 5xx
// responses) with exponential backoff and jitter, and translates permanent
// failures into sentinel errors. All retry policy for tile downloads lives
// here; the save pipeline treats a returned error as final.
package fetch
