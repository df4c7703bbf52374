// Package worker provides a generic, bounded worker pool.
//
// A fixed number of goroutines drain a buffered channel of work items of type T.
// Submit never blocks: a full queue returns ErrQueueFull so the caller can choose
// its own fallback. The render package relies on this to run deferred block
// acquisition off the request path and to degrade to lazy acquisition when the
// pool is saturated.
//
//	pool := worker.NewPool(4, 256, func(ctx context.Context, job acquireJob) error {
//	    return job.run(ctx)
//	}, worker.WithMetricsRegistry[acquireJob](registry, "render_deferred"))
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
// Statistics are always tracked with atomics; Prometheus metrics are opt-in.
// A panicking processor is recovered and counted as a failed item.
package worker
