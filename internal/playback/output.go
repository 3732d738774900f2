package playback

import "github.com/tphakala/wsynth-go/internal/audiofile"

// Output is the audio subsystem the clock plays through.
type Output interface {
	// Now returns the audio subsystem's monotonic clock in seconds.
	Now() float64
	// Start plays buf from offsetSec. onEnded is called at most once, when
	// the node reaches the end of the buffer on its own. It is never called
	// from inside Start but may race with the node's Stop.
	Start(buf *audiofile.Buffer, offsetSec float64, onEnded func()) (Node, error)
}

// Node is one playing instance of a buffer.
type Node interface {
	// Stop halts and releases the node. Calling it again is a no-op.
	Stop()
}
