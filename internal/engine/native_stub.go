//go:build !cgo || !wsynth

package engine

import "github.com/tphakala/wsynth-go/internal/errors"

// This file is included unless building with cgo and -tags wsynth.
// The binary then has no engine and every operation reports engine-init.

// Linked reports whether the engine library is linked into the binary.
const Linked = false

// NativeCapabilities returns the capability set of the linked engine library.
func NativeCapabilities() (Capabilities, error) {
	return nil, engineError(ErrNotLinked, errors.CategoryEngineInit, "native_capabilities")
}
