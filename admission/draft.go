package admission

import (
	"context"
	"sync"
	"time"
)

// DraftResult is a delivered admission for one draft. Seq increases with
// every submission to the same validator.
type DraftResult struct {
	Key    string `json:"key"`
	Seq    uint64 `json:"seq"`
	Result Result `json:"result"`
}

type pendingDraft struct {
	seq    uint64
	timer  *time.Timer
	cancel context.CancelFunc
}

// DraftValidator admits drafts after a quiet period. A new submission for
// the same key cancels the pending or running admission of the previous
// one, and a superseded result is never delivered.
type DraftValidator struct {
	pipeline *Pipeline
	delay    time.Duration
	deliver  func(DraftResult)

	mu      sync.Mutex
	seq     uint64
	pending map[string]*pendingDraft
	closed  bool
	wg      sync.WaitGroup

	deliverMu sync.Mutex
	delivered map[string]uint64
}

// NewDraftValidator creates a validator that calls deliver with the result
// of the latest draft per key, delay after its submission.
func NewDraftValidator(pipeline *Pipeline, delay time.Duration, deliver func(DraftResult)) *DraftValidator {
	if delay < 0 {
		delay = 0
	}
	return &DraftValidator{
		pipeline:  pipeline,
		delay:     delay,
		deliver:   deliver,
		pending:   make(map[string]*pendingDraft),
		delivered: make(map[string]uint64),
	}
}

// Submit schedules an admission of source under name for the draft key and
// returns its sequence number, or 0 after Close.
func (v *DraftValidator) Submit(key, name, source string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0
	}
	v.cancelLocked(key)

	v.seq++
	seq := v.seq
	ctx, cancel := context.WithCancel(context.Background())
	d := &pendingDraft{seq: seq, cancel: cancel}
	v.wg.Add(1)
	d.timer = time.AfterFunc(v.delay, func() {
		defer v.wg.Done()
		v.run(ctx, key, seq, name, source)
	})
	v.pending[key] = d
	return seq
}

// Cancel drops the pending or running admission for key.
func (v *DraftValidator) Cancel(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancelLocked(key)
}

func (v *DraftValidator) cancelLocked(key string) {
	d, ok := v.pending[key]
	if !ok {
		return
	}
	delete(v.pending, key)
	d.cancel()
	if d.timer.Stop() {
		v.wg.Done()
	}
}

// Close cancels everything outstanding and waits for running admissions.
func (v *DraftValidator) Close() {
	v.mu.Lock()
	v.closed = true
	for key := range v.pending {
		v.cancelLocked(key)
	}
	v.mu.Unlock()
	v.wg.Wait()
}

func (v *DraftValidator) run(ctx context.Context, key string, seq uint64, name, source string) {
	if ctx.Err() != nil {
		return
	}
	res := v.pipeline.Admit(ctx, name, source)

	v.mu.Lock()
	d, ok := v.pending[key]
	current := ok && d.seq == seq && ctx.Err() == nil
	if current {
		delete(v.pending, key)
		d.cancel()
	}
	v.mu.Unlock()
	if !current {
		return
	}

	v.deliverMu.Lock()
	defer v.deliverMu.Unlock()
	if v.delivered[key] >= seq {
		return
	}
	v.delivered[key] = seq
	if v.deliver != nil {
		v.deliver(DraftResult{Key: key, Seq: seq, Result: res})
	}
}
