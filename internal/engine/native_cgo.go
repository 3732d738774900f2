//go:build cgo && wsynth

package engine

/*
#cgo LDFLAGS: -lwsynth
#include <stdbool.h>
#include <stddef.h>
#include <stdint.h>
#include <stdlib.h>
#include <string.h>

typedef struct wsynth_engine wsynth_engine;

typedef struct {
	uint8_t* ptr;
	size_t len;
} wsynth_buffer;

extern void wsynth_init(void);
extern wsynth_engine* wsynth_engine_create(void);
extern void wsynth_engine_destroy(wsynth_engine* engine);
extern bool wsynth_engine_load_oto(wsynth_engine* engine, const uint8_t* data, size_t len);
extern bool wsynth_engine_load_prefix_map(wsynth_engine* engine, const uint8_t* data, size_t len);
extern bool wsynth_engine_cache_features(wsynth_engine* engine, const char* filename, const uint8_t* data, size_t len);
extern wsynth_buffer* wsynth_engine_synthesize_project(wsynth_engine* engine, const char* json);
extern wsynth_buffer* wsynth_analyze_wav(const uint8_t* data, size_t len);
extern void wsynth_free_buffer(wsynth_buffer* buffer);
*/
import "C"

import (
	"sync"
	"unsafe"
)

// Linked reports whether the engine library is linked into the binary.
const Linked = true

var nativeInit sync.Once

// NativeCapabilities returns the capability set of the linked engine library.
func NativeCapabilities() (Capabilities, error) {
	nativeInit.Do(func() { C.wsynth_init() })
	return &nativeCaps{ptrs: make(map[Ptr]unsafe.Pointer)}, nil
}

// nativeCaps maps engine pointers to opaque Ptr tokens so raw C pointers
// never round-trip through uintptr.
type nativeCaps struct {
	mu   sync.Mutex
	next Ptr
	ptrs map[Ptr]unsafe.Pointer
}

func (n *nativeCaps) register(p unsafe.Pointer) Ptr {
	if p == nil {
		return 0
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	n.ptrs[n.next] = p
	return n.next
}

func (n *nativeCaps) lookup(p Ptr) unsafe.Pointer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ptrs[p]
}

func (n *nativeCaps) unregister(p Ptr) unsafe.Pointer {
	n.mu.Lock()
	defer n.mu.Unlock()
	raw := n.ptrs[p]
	delete(n.ptrs, p)
	return raw
}

func (n *nativeCaps) engine(inst Ptr) *C.wsynth_engine {
	return (*C.wsynth_engine)(n.lookup(inst))
}

func (n *nativeCaps) bytes(r Region) (*C.uint8_t, C.size_t) {
	return (*C.uint8_t)(n.lookup(r.Ptr)), C.size_t(r.Len)
}

func (n *nativeCaps) CreateInstance() Ptr {
	return n.register(unsafe.Pointer(C.wsynth_engine_create()))
}

func (n *nativeCaps) DestroyInstance(inst Ptr) {
	if raw := n.unregister(inst); raw != nil {
		C.wsynth_engine_destroy((*C.wsynth_engine)(raw))
	}
}

func (n *nativeCaps) LoadReferenceData(inst Ptr, data Region) bool {
	p, l := n.bytes(data)
	return bool(C.wsynth_engine_load_oto(n.engine(inst), p, l))
}

func (n *nativeCaps) LoadPrefixMap(inst Ptr, data Region) bool {
	p, l := n.bytes(data)
	return bool(C.wsynth_engine_load_prefix_map(n.engine(inst), p, l))
}

func (n *nativeCaps) CacheFeatures(inst Ptr, filename, features Region) bool {
	name := (*C.char)(n.lookup(filename.Ptr))
	p, l := n.bytes(features)
	return bool(C.wsynth_engine_cache_features(n.engine(inst), name, p, l))
}

func (n *nativeCaps) SynthesizeProject(inst Ptr, request Region) Ptr {
	json := (*C.char)(n.lookup(request.Ptr))
	return n.register(unsafe.Pointer(C.wsynth_engine_synthesize_project(n.engine(inst), json)))
}

func (n *nativeCaps) AnalyzeWaveform(wav Region) Ptr {
	p, l := n.bytes(wav)
	return n.register(unsafe.Pointer(C.wsynth_analyze_wav(p, l)))
}

func (n *nativeCaps) ResultBytes(buf Ptr) []byte {
	b := (*C.wsynth_buffer)(n.lookup(buf))
	if b == nil || b.ptr == nil || b.len == 0 {
		return []byte{}
	}
	return C.GoBytes(unsafe.Pointer(b.ptr), C.int(b.len))
}

func (n *nativeCaps) FreeBuffer(buf Ptr) {
	if raw := n.unregister(buf); raw != nil {
		C.wsynth_free_buffer((*C.wsynth_buffer)(raw))
	}
}

func (n *nativeCaps) Alloc(size int) Ptr {
	// the engine builds slices from these pointers, which must not be null
	if size == 0 {
		size = 1
	}
	return n.register(C.malloc(C.size_t(size)))
}

func (n *nativeCaps) Write(p Ptr, data []byte) {
	if dst := n.lookup(p); dst != nil && len(data) > 0 {
		C.memcpy(dst, unsafe.Pointer(&data[0]), C.size_t(len(data)))
	}
}

func (n *nativeCaps) Free(p Ptr) {
	if raw := n.unregister(p); raw != nil {
		C.free(raw)
	}
}
