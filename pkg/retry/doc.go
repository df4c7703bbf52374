// Package retry runs an operation with exponential backoff and jitter.
//
// Storage adapters use it for connection establishment and compare-and-swap loops:
//
//	err := retry.Do(ctx, retry.Startup(), func() error {
//	    return client.Ping(ctx).Err()
//	})
//
// Errors wrapped with NonRetryable stop the loop immediately.
package retry
