// Package enginetest provides an in-memory engine for tests. It records
// every call, checks memory pairing and flags overlapping handle-bound calls.
package enginetest

import (
	"bytes"
	"encoding/json"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/wsynth-go/internal/audiofile"
	"github.com/tphakala/wsynth-go/internal/engine"
)

// SampleRate of fake synthesis output.
const SampleRate = 44100

// Call is the span of one handle-bound engine call.
type Call struct {
	Op    string
	Name  string
	Start time.Time
	End   time.Time
}

// Fake implements engine.Capabilities.
type Fake struct {
	// Behaviour knobs; set before use.
	FailCreate          bool
	RejectReferenceData bool
	RejectPrefixMap     bool
	RejectCache         map[string]bool // filenames whose features are rejected
	FailSynthesis       bool
	CallDelay           time.Duration // added to every handle-bound call
	AnalyzeDelay        time.Duration
	// AnalyzeFunc overrides feature extraction; ok=false simulates a null result.
	AnalyzeFunc func(wav []byte) (features []byte, ok bool)

	mu         sync.Mutex
	next       engine.Ptr
	mem        map[engine.Ptr][]byte
	results    map[engine.Ptr][]byte
	instances  map[engine.Ptr]bool
	destroyed  int
	calls      []Call
	cached     []string
	references [][]byte
	prefixMaps [][]byte
	requests   []engine.Request
	doubleFree int

	inflight        atomic.Int32
	overlaps        atomic.Int32
	analyzeInflight atomic.Int32
	maxAnalyze      atomic.Int32
	analyzeCalls    atomic.Int32
}

var _ engine.Capabilities = (*Fake)(nil)

// New returns a fake engine with default behaviour.
func New() *Fake {
	return &Fake{
		RejectCache: make(map[string]bool),
		mem:         make(map[engine.Ptr][]byte),
		results:     make(map[engine.Ptr][]byte),
		instances:   make(map[engine.Ptr]bool),
	}
}

func (f *Fake) alloc(store map[engine.Ptr][]byte, data []byte) engine.Ptr {
	f.next++
	store[f.next] = data
	return f.next
}

// enter marks the start of a handle-bound call and records overlaps.
func (f *Fake) enter(op, name string) func() {
	if f.inflight.Add(1) > 1 {
		f.overlaps.Add(1)
	}
	start := time.Now()
	if f.CallDelay > 0 {
		time.Sleep(f.CallDelay)
	}
	return func() {
		end := time.Now()
		f.inflight.Add(-1)
		f.mu.Lock()
		f.calls = append(f.calls, Call{Op: op, Name: name, Start: start, End: end})
		f.mu.Unlock()
	}
}

func (f *Fake) read(r engine.Region) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.mem[r.Ptr]
	if r.Len < len(b) {
		b = b[:r.Len]
	}
	return slices.Clone(b)
}

func (f *Fake) readString(r engine.Region) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.mem[r.Ptr]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// CreateInstance implements engine.Capabilities.
func (f *Fake) CreateInstance() engine.Ptr {
	if f.FailCreate {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.instances[f.next] = true
	return f.next
}

// DestroyInstance implements engine.Capabilities.
func (f *Fake) DestroyInstance(inst engine.Ptr) {
	if f.inflight.Load() > 0 {
		f.overlaps.Add(1)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.instances[inst] {
		delete(f.instances, inst)
		f.destroyed++
	}
}

// LoadReferenceData implements engine.Capabilities.
func (f *Fake) LoadReferenceData(_ engine.Ptr, data engine.Region) bool {
	defer f.enter("load_reference_data", "")()
	b := f.read(data)
	f.mu.Lock()
	f.references = append(f.references, b)
	f.mu.Unlock()
	return !f.RejectReferenceData
}

// LoadPrefixMap implements engine.Capabilities.
func (f *Fake) LoadPrefixMap(_ engine.Ptr, data engine.Region) bool {
	defer f.enter("load_prefix_map", "")()
	b := f.read(data)
	f.mu.Lock()
	f.prefixMaps = append(f.prefixMaps, b)
	f.mu.Unlock()
	return !f.RejectPrefixMap
}

// CacheFeatures implements engine.Capabilities.
func (f *Fake) CacheFeatures(_ engine.Ptr, filename, features engine.Region) bool {
	name := f.readString(filename)
	defer f.enter("cache_features", name)()
	_ = f.read(features)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RejectCache[name] {
		return false
	}
	f.cached = append(f.cached, name)
	return true
}

// SynthesizeProject implements engine.Capabilities. The output is silence
// long enough to cover every note plus two seconds of tail.
func (f *Fake) SynthesizeProject(_ engine.Ptr, request engine.Region) engine.Ptr {
	defer f.enter("synthesize_project", "")()

	var req engine.Request
	if err := json.Unmarshal([]byte(f.readString(request)), &req); err != nil {
		return 0
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.FailSynthesis || len(req.Notes) == 0 {
		return 0
	}

	var endMs float64
	for _, n := range req.Notes {
		endMs = math.Max(endMs, n.StartTime+n.Duration)
	}
	frames := int(math.Ceil((endMs + 2000) / 1000 * SampleRate))
	wav, err := audiofile.Encode(&audiofile.Buffer{Samples: make([]float32, frames), SampleRate: SampleRate})
	if err != nil {
		return 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alloc(f.results, wav)
}

// AnalyzeWaveform implements engine.Capabilities. By default features are
// the input prefixed with "features:".
func (f *Fake) AnalyzeWaveform(wav engine.Region) engine.Ptr {
	f.analyzeCalls.Add(1)
	n := f.analyzeInflight.Add(1)
	defer f.analyzeInflight.Add(-1)
	for {
		peak := f.maxAnalyze.Load()
		if n <= peak || f.maxAnalyze.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.AnalyzeDelay > 0 {
		time.Sleep(f.AnalyzeDelay)
	}

	input := f.read(wav)
	var (
		features []byte
		ok       = true
	)
	if f.AnalyzeFunc != nil {
		features, ok = f.AnalyzeFunc(input)
	} else {
		features = append([]byte("features:"), input...)
	}
	if !ok {
		return 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alloc(f.results, features)
}

// ResultBytes implements engine.Capabilities.
func (f *Fake) ResultBytes(buf engine.Ptr) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.results[buf])
}

// FreeBuffer implements engine.Capabilities.
func (f *Fake) FreeBuffer(buf engine.Ptr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.results[buf]; !ok {
		f.doubleFree++
		return
	}
	delete(f.results, buf)
}

// Alloc implements engine.Capabilities.
func (f *Fake) Alloc(n int) engine.Ptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alloc(f.mem, make([]byte, n))
}

// Write implements engine.Capabilities.
func (f *Fake) Write(p engine.Ptr, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(f.mem[p], data)
}

// Free implements engine.Capabilities.
func (f *Fake) Free(p engine.Ptr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.mem[p]; !ok {
		f.doubleFree++
		return
	}
	delete(f.mem, p)
}

// Outstanding returns argument allocations and result buffers not yet released.
func (f *Fake) Outstanding() (allocs, results int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mem), len(f.results)
}

// DoubleFrees counts releases of memory that was not live.
func (f *Fake) DoubleFrees() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doubleFree
}

// LiveInstances returns the number of created, not yet destroyed instances.
func (f *Fake) LiveInstances() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.instances)
}

// Destroyed returns how many instances were destroyed.
func (f *Fake) Destroyed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed
}

// Overlaps counts handle-bound calls that started while another was in flight.
func (f *Fake) Overlaps() int {
	return int(f.overlaps.Load())
}

// Calls returns the recorded handle-bound call spans in completion order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Cached returns the filenames accepted by CacheFeatures, in call order.
func (f *Fake) Cached() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.cached)
}

// ReferenceData returns every reference data payload received.
func (f *Fake) ReferenceData() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.references)
}

// PrefixMaps returns every prefix map payload received.
func (f *Fake) PrefixMaps() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.prefixMaps)
}

// Requests returns every render request received, decoded.
func (f *Fake) Requests() []engine.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.requests)
}

// AnalyzeCalls returns the number of AnalyzeWaveform calls.
func (f *Fake) AnalyzeCalls() int {
	return int(f.analyzeCalls.Load())
}

// MaxConcurrentAnalyze returns the highest number of simultaneous analyze calls.
func (f *Fake) MaxConcurrentAnalyze() int {
	return int(f.maxAnalyze.Load())
}
