// Package pagestore persists pages in a NATS JetStream KV bucket.
//
// Pages are stored as JSON under "<tenant>.<page id>". Save uses the page
// Version for optimistic concurrency and the KV revision to close the race
// between the version check and the write.
package pagestore
