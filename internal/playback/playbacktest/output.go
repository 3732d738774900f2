// Package playbacktest provides a manually driven audio output for tests.
package playbacktest

import (
	"sync"

	"github.com/tphakala/wsynth-go/internal/audiofile"
	"github.com/tphakala/wsynth-go/internal/playback"
)

// Output implements playback.Output with a clock that only moves when
// Advance is called.
type Output struct {
	// StartErr, when set, is returned by Start.
	StartErr error

	mu    sync.Mutex
	now   float64
	nodes []*Node
}

var _ playback.Output = (*Output)(nil)

// New returns an output whose clock starts at 100 seconds.
func New() *Output {
	return &Output{now: 100}
}

// Now implements playback.Output.
func (o *Output) Now() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// Advance moves the clock forward.
func (o *Output) Advance(seconds float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now += seconds
}

// Start implements playback.Output.
func (o *Output) Start(buf *audiofile.Buffer, offsetSec float64, onEnded func()) (playback.Node, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.StartErr != nil {
		return nil, o.StartErr
	}
	n := &Node{Buffer: buf, OffsetSec: offsetSec, onEnded: onEnded}
	o.nodes = append(o.nodes, n)
	return n, nil
}

// Nodes returns every node started so far.
func (o *Output) Nodes() []*Node {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Node(nil), o.nodes...)
}

// Last returns the most recently started node, or nil.
func (o *Output) Last() *Node {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.nodes) == 0 {
		return nil
	}
	return o.nodes[len(o.nodes)-1]
}

// Node is a fake playing node.
type Node struct {
	Buffer    *audiofile.Buffer
	OffsetSec float64

	mu      sync.Mutex
	onEnded func()
	stops   int
}

// Stop implements playback.Node.
func (n *Node) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stops++
}

// Stopped reports whether Stop was called.
func (n *Node) Stopped() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stops > 0
}

// StopCalls returns how many times Stop was called.
func (n *Node) StopCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stops
}

// End delivers the node's end-of-buffer event on the calling goroutine.
func (n *Node) End() {
	n.mu.Lock()
	fn := n.onEnded
	n.mu.Unlock()
	if fn != nil {
		fn()
	}
}
