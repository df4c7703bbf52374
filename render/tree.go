package render

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"sync/atomic"
)

// Tree is the ordered result of one render pass. Node order always matches
// page order, whatever the completion order of deferred nodes.
type Tree struct {
	PageID string
	Tenant string
	slots  []slot
}

type slot struct {
	node     Node
	deferred *deferred
}

// Len returns the number of nodes
func (t *Tree) Len() int {
	return len(t.slots)
}

// Nodes returns the current state of every node without waiting. Deferred
// nodes that have finished are reported resolved; others are StateDeferred.
func (t *Tree) Nodes() []Node {
	out := make([]Node, len(t.slots))
	for i, s := range t.slots {
		if s.deferred != nil && s.deferred.finished() {
			out[i] = s.deferred.resolved(s.node)
			continue
		}
		out[i] = s.node
	}
	return out
}

// Pending counts deferred nodes that have not finished.
func (t *Tree) Pending() int {
	n := 0
	for _, s := range t.slots {
		if s.deferred != nil && !s.deferred.finished() {
			n++
		}
	}
	return n
}

// Await returns node i once it is resolved. A deferred node that no worker
// has picked up yet is rendered on the calling goroutine. If ctx ends first
// the node is reported as a render_failed placeholder.
func (t *Tree) Await(ctx context.Context, i int) Node {
	s := t.slots[i]
	if s.deferred == nil {
		return s.node
	}
	s.deferred.run()
	select {
	case <-s.deferred.done:
		return s.deferred.resolved(s.node)
	case <-ctx.Done():
		return placeholderNode(s.node.Index, s.node.Kind, s.node.InstanceID, Placeholder{
			Reason: ReasonRenderFailed,
			Detail: fmt.Sprintf("deferred render not finished: %v", ctx.Err()),
		})
	}
}

// Resolve awaits every node and returns them in order.
func (t *Tree) Resolve(ctx context.Context) []Node {
	out := make([]Node, len(t.slots))
	for i := range t.slots {
		out[i] = t.Await(ctx, i)
	}
	return out
}

// Markup resolves the tree and concatenates the visitor-facing HTML.
func (t *Tree) Markup(ctx context.Context) template.HTML {
	var b strings.Builder
	for _, n := range t.Resolve(ctx) {
		b.WriteString(string(n.Markup()))
	}
	return template.HTML(b.String())
}

// deferred is a loading boundary: render runs at most once, either on a
// pool worker or on the first caller of run.
type deferred struct {
	render  func() (template.HTML, error)
	started atomic.Bool
	done    chan struct{}

	html template.HTML
	err  error

	onDone func(err error)
}

func newDeferred(render func() (template.HTML, error), onDone func(error)) *deferred {
	return &deferred{render: render, done: make(chan struct{}), onDone: onDone}
}

// run executes the renderer unless someone already has. It returns
// immediately when another goroutine owns the execution.
func (d *deferred) run() {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	d.html, d.err = d.render()
	close(d.done)
	if d.onDone != nil {
		d.onDone(d.err)
	}
}

func (d *deferred) finished() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// resolved must only be called after done is closed.
func (d *deferred) resolved(base Node) Node {
	if d.err != nil {
		n := placeholderNode(base.Index, base.Kind, base.InstanceID, Placeholder{
			Reason: ReasonRenderFailed,
			Detail: d.err.Error(),
		})
		n.Strategy = base.Strategy
		return n
	}
	base.State = StateRendered
	base.HTML = d.html
	base.Loading = nil
	return base
}

// DeferredJob is the unit of work the render pool executes.
type DeferredJob struct {
	d *deferred
}
