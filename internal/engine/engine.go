// Package engine wraps the external synthesis/analysis engine reached over a
// foreign-function boundary.
//
// The engine owns its own memory. Callers copy arguments into regions
// allocated with Capabilities.Alloc and copy results out of buffers returned
// by the engine; every region is released on every exit path.
//
// Handle is not safe for concurrent use. Handle-bound calls must be
// serialized by the caller; Analyze needs no handle and may run anywhere.
package engine

import (
	"sync"

	"github.com/tphakala/wsynth-go/internal/errors"
	"github.com/tphakala/wsynth-go/internal/logger"
)

// Ptr is an address in the engine's memory space. Zero is null.
type Ptr uintptr

// Region is a span of engine memory holding caller-provided bytes.
type Region struct {
	Ptr Ptr
	Len int
}

// Capabilities is the capability set exported by the engine library.
type Capabilities interface {
	// CreateInstance returns a new engine instance, or 0 on failure.
	CreateInstance() Ptr
	// DestroyInstance releases every engine-side resource of inst.
	DestroyInstance(inst Ptr)

	LoadReferenceData(inst Ptr, data Region) bool
	LoadPrefixMap(inst Ptr, data Region) bool
	// CacheFeatures stores analyzed features under a NUL-terminated filename.
	CacheFeatures(inst Ptr, filename Region, features Region) bool
	// SynthesizeProject renders a NUL-terminated JSON request into WAV bytes.
	// It returns a result buffer descriptor, or 0.
	SynthesizeProject(inst Ptr, request Region) Ptr
	// AnalyzeWaveform extracts features from WAV bytes. Stateless.
	// It returns a result buffer descriptor, or 0.
	AnalyzeWaveform(wav Region) Ptr

	// ResultBytes copies the contents of a result buffer into Go memory.
	ResultBytes(buf Ptr) []byte
	// FreeBuffer releases a result buffer returned by the engine.
	FreeBuffer(buf Ptr)

	// Alloc reserves n bytes of engine memory; 0 means allocation failed.
	Alloc(n int) Ptr
	// Write copies data into engine memory at p.
	Write(p Ptr, data []byte)
	// Free releases memory obtained from Alloc.
	Free(p Ptr)
}

var (
	// ErrNotLinked is returned when the binary was built without the engine library.
	ErrNotLinked = errors.NewStd("engine library not linked")
	// ErrClosed is returned by calls on a destroyed handle.
	ErrClosed = errors.NewStd("engine handle closed")
	// ErrAllocFailed is returned when the engine cannot allocate argument memory.
	ErrAllocFailed = errors.NewStd("engine memory allocation failed")
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the engine package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("engine")
	})
	return serviceLogger
}

func engineError(err error, category errors.ErrorCategory, operation string) error {
	return errors.New(err).
		Component("engine").
		Category(category).
		Context("operation", operation).
		Build()
}
