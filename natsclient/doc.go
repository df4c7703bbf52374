// Package natsclient wraps a NATS connection and its JetStream key-value buckets.
//
// Client owns the connection lifecycle: Connect retries with backoff until the
// server answers, connection events feed the metric package, and Close drains.
// KVStore layers typed errors and compare-and-swap helpers over a
// jetstream.KeyValue bucket:
//
//	client, _ := natsclient.NewClient(url, natsclient.WithName("semblocks"))
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
//	    Bucket:  "semblocks_pages",
//	    History: 10,
//	})
//	kv := natsclient.NewKVStore(bucket)
//
// MemoryBucket is an in-process jetstream.KeyValue with the same revision and
// conflict semantics, used by unit tests of packages that persist through KVStore.
package natsclient
