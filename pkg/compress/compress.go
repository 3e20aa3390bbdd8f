package compress

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// Codec gzips payloads above a size threshold and leaves smaller ones alone.
// The caller records the returned flag alongside the payload so reads know
// whether to inflate.
type Codec struct {
	Threshold int
}

// Compress returns the encoded payload and whether compression was applied.
// Payloads at or below the threshold pass through untouched.
func (c Codec) Compress(p []byte) ([]byte, bool) {
	if len(p) <= c.Threshold {
		return p, false
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(p); err != nil {
		w.Close()
		return p, false
	}
	if err := w.Close(); err != nil {
		return p, false
	}
	return buf.Bytes(), true
}

// Decompress inflates a payload previously compressed by Compress. A corrupt
// stream is an error for the caller to downgrade to a miss, never a panic.
func (c Codec) Decompress(p []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(p))
	if err != nil {
		return nil, fmt.Errorf("corrupt compressed payload: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("corrupt compressed payload: %w", err)
	}
	return out, nil
}
