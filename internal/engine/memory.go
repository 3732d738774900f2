package engine

// foreignBuffer is argument memory owned by the caller for the duration of
// one engine call. Acquire with allocBytes and always defer release.
type foreignBuffer struct {
	caps   Capabilities
	region Region
	freed  bool
}

// allocBytes copies data into freshly allocated engine memory. When
// nulTerminate is set a trailing zero byte is appended for C strings.
func allocBytes(caps Capabilities, data []byte, nulTerminate bool) (*foreignBuffer, error) {
	size := len(data)
	if nulTerminate {
		size++
	}

	ptr := caps.Alloc(size)
	if ptr == 0 && size > 0 {
		return nil, ErrAllocFailed
	}
	fb := &foreignBuffer{caps: caps, region: Region{Ptr: ptr, Len: len(data)}}
	if ptr == 0 {
		return fb, nil
	}

	if nulTerminate {
		payload := make([]byte, size)
		copy(payload, data)
		caps.Write(ptr, payload)
	} else if len(data) > 0 {
		caps.Write(ptr, data)
	}
	return fb, nil
}

// release frees the region. Safe to call more than once.
func (fb *foreignBuffer) release() {
	if fb == nil || fb.freed {
		return
	}
	fb.freed = true
	if fb.region.Ptr != 0 {
		fb.caps.Free(fb.region.Ptr)
	}
}

// takeResult copies a result buffer out of engine memory and frees it,
// including when the result is empty. A null descriptor yields ok=false.
func takeResult(caps Capabilities, buf Ptr) (data []byte, ok bool) {
	if buf == 0 {
		return nil, false
	}
	defer caps.FreeBuffer(buf)
	return caps.ResultBytes(buf), true
}
