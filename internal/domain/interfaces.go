// ABOUTME: Domain interfaces for dependency inversion
// ABOUTME: The player and catalog depend on these, not on concrete backends
package domain

import (
	"context"
	"io"
)

// Pipeline decodes and renders one stream at a time and reports on its Bus.
type Pipeline interface {
	// Play replaces the current stream with uri. A rejected start returns
	// an error matching ErrPlay.
	Play(uri string) error
	// Stop forces the pipeline idle. It never fails.
	Stop()
	SetVolume(v float64)
	Volume() float64
	// Position and Duration are whole seconds, 0 when unknown.
	Position() int
	Duration() int
	// Record tees the raw stream into w until StopRecording or Stop.
	Record(w io.WriteCloser) error
	StopRecording() error
	Bus() *Bus
}

// FileStore reads and writes local paths and remote URLs.
type FileStore interface {
	// Read honours ctx for remote paths.
	Read(ctx context.Context, path string) ([]byte, error)
	Write(path string, data []byte) error
	Normalize(path string) string
	Exists(path string) bool
	MimeType(path string) string
}
