// Package health aggregates the status of the process's backing services.
//
// Each storage collaborator registers a Check with the Monitor. CheckAll runs
// every check with a per-check timeout and records the outcome; Handler serves
// the aggregate as JSON on /healthz with 503 when anything is unhealthy.
// Failure messages are scrubbed of URLs, paths, addresses and credentials
// before they are stored.
package health
